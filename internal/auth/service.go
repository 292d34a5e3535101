// Package auth は認証・認可のビジネスロジックを提供する。
// ローカル認証（メールアドレス＋パスワード）、Google OAuthによる
// フェデレーションログイン、アクセス/リフレッシュトークンの発行を担う。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/coursehub/internal/model"
	"github.com/hitoshi/coursehub/internal/repository"
)

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// 将来的に複数IdP（Google, GitHub等）に対応するための抽象化。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、プロフィールを取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthProfile, error)
}

// MetricsRecorder は認証イベントのメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordRegistration()
	RecordLogin()
	RecordTokenRefresh()
	RecordOAuthLogin(isNewUser bool)
}

// TokenPair はログイン成功時にまとめて発行されるトークンの組。
// どちらもサーバー側には保存されない。
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// CallbackResult はOAuthコールバック処理の結果。
type CallbackResult struct {
	User      *model.User
	Tokens    TokenPair
	IsNewUser bool
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth    OAuthProvider
	userRepo repository.UserRepository
	tokens   *TokenIssuer
	metrics  MetricsRecorder
}

// NewService はServiceを生成する。
// metricsはnilを許容し、その場合は記録をスキップする。
func NewService(oauth OAuthProvider, userRepo repository.UserRepository, tokens *TokenIssuer, metrics MetricsRecorder) *Service {
	return &Service{
		oauth:    oauth,
		userRepo: userRepo,
		tokens:   tokens,
		metrics:  metrics,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// Register はローカルアカウントを作成する。
// 入力検証に失敗した場合はVALIDATION_FAILED、
// メールアドレスが既に存在する場合はDUPLICATE_EMAILを返す。
// 登録時点ではトークンは発行しない。
func (s *Service) Register(ctx context.Context, name, email, password, role string) (*model.User, error) {
	parsedRole, err := ValidateRegistration(name, email, password, role)
	if err != nil {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &model.User{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: &hash,
		Role:         parsedRole,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewDuplicateEmailError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordRegistration()
	}
	slog.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)

	return user, nil
}

// Login はメールアドレスとパスワードで認証し、トークンペアを発行する。
// ユーザー不存在とパスワード不一致は区別せずINVALID_CREDENTIALSを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*model.User, *TokenPair, error) {
	if err := ValidateLogin(email, password); err != nil {
		return nil, nil, err
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !user.HasLocalPassword() || !VerifyPassword(password, *user.PasswordHash) {
		return nil, nil, model.NewInvalidCredentialsError()
	}

	pair, err := s.issuePair(user)
	if err != nil {
		return nil, nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordLogin()
	}
	slog.Info("user logged in", slog.String("user_id", user.ID))

	return user, pair, nil
}

// Refresh はリフレッシュトークンを検証し、新しいアクセストークンのみを発行する。
// リフレッシュトークン自体はローテーションしない。
// 検証失敗の場合はINVALID_TOKENを返す。
func (s *Service) Refresh(refreshToken string) (string, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return "", model.NewInvalidTokenError()
	}

	// リフレッシュトークンには表示名が含まれないため、
	// 再発行されるアクセストークンにも表示名は入らない。
	accessToken, err := s.tokens.IssueAccess(claims.Subject, claims.Role, "")
	if err != nil {
		return "", fmt.Errorf("failed to issue access token: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordTokenRefresh()
	}

	return accessToken, nil
}

// Identify はアクセストークンを検証しクレームを返す。
// /me エンドポイントから利用され、無効な場合もエラーにはせず
// ErrInvalidTokenを返すのみで呼び出し側が未認証として扱う。
func (s *Service) Identify(accessToken string) (*Claims, error) {
	return s.tokens.VerifyAccess(accessToken)
}

// HandleOAuthCallback はOAuthコールバックを処理する。
// プロバイダーのプロフィールをローカルユーザーに紐付け、
// 初回ログインの場合はパスワード無し・役割未選択のユーザーを作成する。
// 成功時はトークンペアを発行する。
func (s *Service) HandleOAuthCallback(ctx context.Context, code string) (*CallbackResult, error) {
	profile, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	user, err := s.userRepo.FindByEmail(ctx, profile.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	isNewUser := false
	if user == nil {
		now := time.Now()
		user = &model.User{
			ID:        uuid.New().String(),
			Name:      profile.DisplayName,
			Email:     profile.Email,
			Role:      model.RoleUnset,
			CreatedAt: now,
			UpdatedAt: now,
		}

		if err := s.userRepo.Create(ctx, user); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				// 同一メールアドレスの同時コールバックに負けた場合は
				// 作成済みのユーザーを取得し直す
				user, err = s.userRepo.FindByEmail(ctx, profile.Email)
				if err != nil || user == nil {
					return nil, fmt.Errorf("failed to resolve user after duplicate: %w", err)
				}
			} else {
				return nil, fmt.Errorf("failed to create user: %w", err)
			}
		} else {
			isNewUser = true
			slog.Info("new user created via oauth",
				slog.String("user_id", user.ID),
				slog.String("email", user.Email),
			)
		}
	}

	pair, err := s.issuePair(user)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordOAuthLogin(isNewUser)
	}
	slog.Info("oauth login completed",
		slog.String("user_id", user.ID),
		slog.Bool("is_new_user", isNewUser),
	)

	return &CallbackResult{
		User:      user,
		Tokens:    *pair,
		IsNewUser: isNewUser,
	}, nil
}

// UpdateRole はユーザーの役割を更新し、新しい役割を埋め込んだ
// アクセストークンを再発行する。
// リフレッシュトークンは再発行しないため、既存のリフレッシュトークンは
// 有効期限まで古い役割を保持し続ける。
func (s *Service) UpdateRole(ctx context.Context, userID, role string) (*model.User, string, error) {
	parsedRole, ok := model.ParseRole(role)
	if !ok {
		return nil, "", model.NewValidationError("役割にはSTUDENTまたはINSTRUCTORを指定してください")
	}

	user, err := s.userRepo.UpdateRole(ctx, userID, parsedRole)
	if err != nil {
		return nil, "", fmt.Errorf("failed to update role: %w", err)
	}
	if user == nil {
		return nil, "", model.NewUserNotFoundError()
	}

	accessToken, err := s.tokens.IssueAccess(user.ID, user.Role, user.Name)
	if err != nil {
		return nil, "", fmt.Errorf("failed to issue access token: %w", err)
	}

	slog.Info("user role updated",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)

	return user, accessToken, nil
}

func (s *Service) issuePair(user *model.User) (*TokenPair, error) {
	accessToken, err := s.tokens.IssueAccess(user.ID, user.Role, user.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}
	refreshToken, err := s.tokens.IssueRefresh(user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to issue refresh token: %w", err)
	}
	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}
