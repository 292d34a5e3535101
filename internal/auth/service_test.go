package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/coursehub/internal/model"
	"github.com/hitoshi/coursehub/internal/repository"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByIDFn    func(ctx context.Context, id string) (*model.User, error)
	findByEmailFn func(ctx context.Context, email string) (*model.User, error)
	createFn      func(ctx context.Context, user *model.User) error
	updateRoleFn  func(ctx context.Context, id string, role model.Role) (*model.User, error)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) UpdateRole(ctx context.Context, id string, role model.Role) (*model.User, error) {
	if m.updateRoleFn != nil {
		return m.updateRoleFn(ctx, id, role)
	}
	return nil, nil
}

type mockOAuthProvider struct {
	getLoginURLFn  func(state string) string
	exchangeCodeFn func(ctx context.Context, code string) (*OAuthProfile, error)
}

func (m *mockOAuthProvider) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return ""
}

func (m *mockOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthProfile, error) {
	if m.exchangeCodeFn != nil {
		return m.exchangeCodeFn(ctx, code)
	}
	return nil, nil
}

// --- compile-time interface checks ---
var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ OAuthProvider = (*mockOAuthProvider)(nil)

func testIssuer(t *testing.T) *TokenIssuer {
	t.Helper()
	return NewTokenIssuer(TokenIssuerConfig{
		AccessSecret:  []byte("test-access-secret"),
		RefreshSecret: []byte("test-refresh-secret"),
		AccessTTL:     60 * time.Second,
		RefreshTTL:    7 * 24 * time.Hour,
	})
}

// --- テスト ---

func TestRegister_CreatesUserWithHashedPassword(t *testing.T) {
	ctx := context.Background()

	var createdUser *model.User
	userRepo := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			createdUser = user
			return nil
		},
	}

	svc := NewService(nil, userRepo, testIssuer(t), nil)

	user, err := svc.Register(ctx, "Taro Yamada", "taro@example.com", "Passw0rd", "STUDENT")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if user == nil || createdUser == nil {
		t.Fatal("expected user to be created")
	}
	if createdUser.Email != "taro@example.com" {
		t.Errorf("email = %q, want %q", createdUser.Email, "taro@example.com")
	}
	if createdUser.Role != model.RoleStudent {
		t.Errorf("role = %q, want %q", createdUser.Role, model.RoleStudent)
	}

	// パスワードは平文で保存されないこと
	if createdUser.PasswordHash == nil {
		t.Fatal("expected password hash to be set")
	}
	if *createdUser.PasswordHash == "Passw0rd" {
		t.Error("password must not be stored in plaintext")
	}
	if !VerifyPassword("Passw0rd", *createdUser.PasswordHash) {
		t.Error("stored hash should verify against the original password")
	}
}

func TestRegister_InvalidInput_ReturnsValidationError(t *testing.T) {
	ctx := context.Background()
	svc := NewService(nil, &mockUserRepo{}, testIssuer(t), nil)

	tests := []struct {
		name     string
		userName string
		email    string
		password string
		role     string
	}{
		{"名前が短すぎる", "A", "a@example.com", "Passw0rd", "STUDENT"},
		{"メールアドレスの形式が不正", "Taro", "not-an-email", "Passw0rd", "STUDENT"},
		{"パスワードが短すぎる", "Taro", "a@example.com", "Pw1", "STUDENT"},
		{"パスワードに大文字がない", "Taro", "a@example.com", "passw0rd", "STUDENT"},
		{"役割が不正", "Taro", "a@example.com", "Passw0rd", "ADMIN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.userName, tt.email, tt.password, tt.role)
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.Code != model.ErrCodeValidationFailed {
				t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeValidationFailed)
			}
		})
	}
}

func TestRegister_DuplicateEmail_ReturnsDuplicateEmailError(t *testing.T) {
	ctx := context.Background()

	userRepo := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			return repository.ErrDuplicate
		},
	}

	svc := NewService(nil, userRepo, testIssuer(t), nil)

	_, err := svc.Register(ctx, "Taro", "taken@example.com", "Passw0rd", "STUDENT")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeDuplicateEmail {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeDuplicateEmail)
	}
}

func TestLogin_ValidCredentials_ReturnsTokenPair(t *testing.T) {
	ctx := context.Background()

	hash, err := HashPassword("Passw0rd")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{
				ID:           "user-1",
				Name:         "Taro",
				Email:        email,
				PasswordHash: &hash,
				Role:         model.RoleInstructor,
			}, nil
		},
	}

	issuer := testIssuer(t)
	svc := NewService(nil, userRepo, issuer, nil)

	user, pair, err := svc.Login(ctx, "taro@example.com", "Passw0rd")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if user == nil || pair == nil {
		t.Fatal("expected user and token pair")
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens to be issued")
	}

	// アクセストークンには役割と表示名が入ること
	claims, err := issuer.VerifyAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess() error = %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("sub = %q, want %q", claims.Subject, "user-1")
	}
	if claims.Role != model.RoleInstructor {
		t.Errorf("role = %q, want %q", claims.Role, model.RoleInstructor)
	}
	if claims.Name != "Taro" {
		t.Errorf("name = %q, want %q", claims.Name, "Taro")
	}

	// リフレッシュトークンは別の鍵で署名され、役割のみを持つこと
	refreshClaims, err := issuer.VerifyRefresh(pair.RefreshToken)
	if err != nil {
		t.Fatalf("VerifyRefresh() error = %v", err)
	}
	if refreshClaims.Name != "" {
		t.Errorf("refresh token should not carry a name, got %q", refreshClaims.Name)
	}
}

func TestLogin_WrongPassword_ReturnsInvalidCredentials(t *testing.T) {
	ctx := context.Background()

	hash, _ := HashPassword("Correct1")
	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "user-1", Email: email, PasswordHash: &hash, Role: model.RoleStudent}, nil
		},
	}

	svc := NewService(nil, userRepo, testIssuer(t), nil)

	_, _, err := svc.Login(ctx, "taro@example.com", "Wrong123")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeInvalidCredentials {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeInvalidCredentials)
	}
}

func TestLogin_UnknownEmail_ReturnsInvalidCredentials(t *testing.T) {
	ctx := context.Background()

	// ユーザー不存在とパスワード不一致は同じエラーにする
	svc := NewService(nil, &mockUserRepo{}, testIssuer(t), nil)

	_, _, err := svc.Login(ctx, "nobody@example.com", "Passw0rd")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeInvalidCredentials {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeInvalidCredentials)
	}
}

func TestLogin_OAuthOnlyUser_ReturnsInvalidCredentials(t *testing.T) {
	ctx := context.Background()

	// OAuth経由で作成されたユーザーはパスワードを持たない
	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "user-oauth", Email: email, PasswordHash: nil, Role: model.RoleStudent}, nil
		},
	}

	svc := NewService(nil, userRepo, testIssuer(t), nil)

	_, _, err := svc.Login(ctx, "oauth@example.com", "Passw0rd")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeInvalidCredentials {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeInvalidCredentials)
	}
}

func TestRefresh_ValidToken_IssuesNewAccessToken(t *testing.T) {
	issuer := testIssuer(t)
	svc := NewService(nil, &mockUserRepo{}, issuer, nil)

	refreshToken, err := issuer.IssueRefresh("user-1", model.RoleStudent)
	if err != nil {
		t.Fatalf("IssueRefresh() error = %v", err)
	}

	accessToken, err := svc.Refresh(refreshToken)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	claims, err := issuer.VerifyAccess(accessToken)
	if err != nil {
		t.Fatalf("VerifyAccess() error = %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("sub = %q, want %q", claims.Subject, "user-1")
	}
	if claims.Role != model.RoleStudent {
		t.Errorf("role = %q, want %q", claims.Role, model.RoleStudent)
	}
}

func TestRefresh_AccessTokenRejected(t *testing.T) {
	issuer := testIssuer(t)
	svc := NewService(nil, &mockUserRepo{}, issuer, nil)

	// アクセストークンをリフレッシュトークンとして使えないこと
	accessToken, err := issuer.IssueAccess("user-1", model.RoleStudent, "Taro")
	if err != nil {
		t.Fatalf("IssueAccess() error = %v", err)
	}

	_, err = svc.Refresh(accessToken)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeInvalidToken {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeInvalidToken)
	}
}

func TestRefresh_GarbageToken_ReturnsInvalidToken(t *testing.T) {
	svc := NewService(nil, &mockUserRepo{}, testIssuer(t), nil)

	_, err := svc.Refresh("not-a-jwt")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeInvalidToken {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeInvalidToken)
	}
}

func TestHandleOAuthCallback_NewUser_CreatesUserWithoutRole(t *testing.T) {
	ctx := context.Background()

	var createdUser *model.User

	provider := &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*OAuthProfile, error) {
			return &OAuthProfile{Email: "new@example.com", DisplayName: "New User"}, nil
		},
	}
	userRepo := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			createdUser = user
			return nil
		},
	}

	svc := NewService(provider, userRepo, testIssuer(t), nil)

	result, err := svc.HandleOAuthCallback(ctx, "auth-code-123")
	if err != nil {
		t.Fatalf("HandleOAuthCallback() error = %v", err)
	}

	if !result.IsNewUser {
		t.Error("expected IsNewUser = true")
	}
	if createdUser == nil {
		t.Fatal("expected user to be created")
	}
	if createdUser.Email != "new@example.com" {
		t.Errorf("email = %q, want %q", createdUser.Email, "new@example.com")
	}

	// 初回ログインでは役割未選択・パスワード無しで作成されること
	if createdUser.Role != model.RoleUnset {
		t.Errorf("role = %q, want unset", createdUser.Role)
	}
	if createdUser.PasswordHash != nil {
		t.Error("oauth user should not have a password hash")
	}

	if result.Tokens.AccessToken == "" || result.Tokens.RefreshToken == "" {
		t.Error("expected both tokens to be issued")
	}
}

func TestHandleOAuthCallback_ExistingUser_LogsIn(t *testing.T) {
	ctx := context.Background()

	provider := &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*OAuthProfile, error) {
			return &OAuthProfile{Email: "existing@example.com", DisplayName: "Existing"}, nil
		},
	}
	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "user-5", Name: "Existing", Email: email, Role: model.RoleStudent}, nil
		},
		// createFnがnilのままなので、呼ばれても何も記録されない。
		// 既存ユーザーではIsNewUserがfalseであることだけを検証する。
	}

	svc := NewService(provider, userRepo, testIssuer(t), nil)

	result, err := svc.HandleOAuthCallback(ctx, "auth-code-456")
	if err != nil {
		t.Fatalf("HandleOAuthCallback() error = %v", err)
	}
	if result.IsNewUser {
		t.Error("expected IsNewUser = false")
	}
	if result.User.ID != "user-5" {
		t.Errorf("user ID = %q, want %q", result.User.ID, "user-5")
	}
}

func TestHandleOAuthCallback_DuplicateRace_ResolvesExistingUser(t *testing.T) {
	ctx := context.Background()

	// 同一メールアドレスの同時コールバック：作成が一意制約違反になった場合、
	// 勝った側のユーザーを取得し直してログインとして扱う
	calls := 0
	provider := &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*OAuthProfile, error) {
			return &OAuthProfile{Email: "race@example.com", DisplayName: "Race"}, nil
		},
	}
	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			calls++
			if calls == 1 {
				return nil, nil
			}
			return &model.User{ID: "winner", Name: "Race", Email: email, Role: model.RoleUnset}, nil
		},
		createFn: func(ctx context.Context, user *model.User) error {
			return repository.ErrDuplicate
		},
	}

	svc := NewService(provider, userRepo, testIssuer(t), nil)

	result, err := svc.HandleOAuthCallback(ctx, "auth-code-race")
	if err != nil {
		t.Fatalf("HandleOAuthCallback() error = %v", err)
	}
	if result.IsNewUser {
		t.Error("expected IsNewUser = false after losing the race")
	}
	if result.User.ID != "winner" {
		t.Errorf("user ID = %q, want %q", result.User.ID, "winner")
	}
}

func TestHandleOAuthCallback_ExchangeError_ReturnsError(t *testing.T) {
	ctx := context.Background()

	provider := &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*OAuthProfile, error) {
			return nil, errors.New("oauth exchange failed")
		},
	}

	svc := NewService(provider, &mockUserRepo{}, testIssuer(t), nil)

	_, err := svc.HandleOAuthCallback(ctx, "bad-code")
	if err == nil {
		t.Fatal("expected error from HandleOAuthCallback")
	}
}

func TestUpdateRole_IssuesTokenWithNewRole(t *testing.T) {
	ctx := context.Background()

	userRepo := &mockUserRepo{
		updateRoleFn: func(ctx context.Context, id string, role model.Role) (*model.User, error) {
			return &model.User{ID: id, Name: "Taro", Email: "taro@example.com", Role: role}, nil
		},
	}

	issuer := testIssuer(t)
	svc := NewService(nil, userRepo, issuer, nil)

	user, accessToken, err := svc.UpdateRole(ctx, "user-1", "instructor")
	if err != nil {
		t.Fatalf("UpdateRole() error = %v", err)
	}
	if user.Role != model.RoleInstructor {
		t.Errorf("role = %q, want %q", user.Role, model.RoleInstructor)
	}

	// 新しい役割が埋め込まれたアクセストークンが発行されること
	claims, err := issuer.VerifyAccess(accessToken)
	if err != nil {
		t.Fatalf("VerifyAccess() error = %v", err)
	}
	if claims.Role != model.RoleInstructor {
		t.Errorf("token role = %q, want %q", claims.Role, model.RoleInstructor)
	}
}

func TestUpdateRole_InvalidRole_ReturnsValidationError(t *testing.T) {
	ctx := context.Background()
	svc := NewService(nil, &mockUserRepo{}, testIssuer(t), nil)

	_, _, err := svc.UpdateRole(ctx, "user-1", "ADMIN")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeValidationFailed {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeValidationFailed)
	}
}

func TestUpdateRole_UserNotFound_ReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	svc := NewService(nil, &mockUserRepo{}, testIssuer(t), nil)

	_, _, err := svc.UpdateRole(ctx, "ghost", "STUDENT")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeUserNotFound {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeUserNotFound)
	}
}
