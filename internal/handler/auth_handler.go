// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/coursehub/internal/auth"
	"github.com/hitoshi/coursehub/internal/middleware"
	"github.com/hitoshi/coursehub/internal/model"
)

const (
	oauthStateCookie = "oauth_state"

	// Cookieの有効期間（秒）。トークン自体のTTLと揃える。
	accessCookieMaxAge  = 60
	refreshCookieMaxAge = 7 * 24 * 60 * 60
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	GetLoginURL(state string) string
	Register(ctx context.Context, name, email, password, role string) (*model.User, error)
	Login(ctx context.Context, email, password string) (*model.User, *auth.TokenPair, error)
	Refresh(refreshToken string) (string, error)
	Identify(accessToken string) (*auth.Claims, error)
	HandleOAuthCallback(ctx context.Context, code string) (*auth.CallbackResult, error)
	UpdateRole(ctx context.Context, userID, role string) (*model.User, string, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	FrontendURL  string
	CookieSecure bool
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// registerRequest はユーザー登録リクエストのボディ。
type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// updateRoleRequest は役割更新リクエストのボディ。
type updateRoleRequest struct {
	Role string `json:"role"`
}

// userResponse は公開ユーザー情報のAPIレスポンス。
type userResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Register はユーザー登録を処理する。
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	user, err := h.service.Register(r.Context(), req.Name, req.Email, req.Password, req.Role)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

// Login はログインを処理し、トークンCookieを設定する。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	user, tokens, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setAuthCookies(w, tokens)
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// Refresh はリフレッシュトークンから新しいアクセストークンを発行する。
// リフレッシュトークン自体は再発行しない。
// POST /api/auth/refreshtoken
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.RefreshTokenCookieName)
	if err != nil || cookie.Value == "" {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	accessToken, err := h.service.Refresh(cookie.Value)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setCookie(w, middleware.AccessTokenCookieName, accessToken, accessCookieMaxAge)
	writeJSON(w, http.StatusOK, map[string]string{"message": "トークンを更新しました。"})
}

// Logout は両方のトークンCookieをクリアする。
// Cookieが存在しない場合も成功として扱う（冪等）。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.clearAuthCookies(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "ログアウトしました。"})
}

// meResponse は現在のログイン状態のAPIレスポンス。
type meResponse struct {
	Authenticated bool    `json:"authenticated"`
	User          *meUser `json:"user,omitempty"`
}

type meUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// Me は現在のログイン状態を返す。
// Cookieがない場合や検証に失敗した場合もエラーにはせず、未認証として200を返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.AccessTokenCookieName)
	if err != nil || cookie.Value == "" {
		writeJSON(w, http.StatusOK, meResponse{Authenticated: false})
		return
	}

	claims, err := h.service.Identify(cookie.Value)
	if err != nil {
		writeJSON(w, http.StatusOK, meResponse{Authenticated: false})
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		Authenticated: true,
		User: &meUser{
			ID:   claims.Subject,
			Name: claims.Name,
			Role: string(claims.Role),
		},
	})
}

// UpdateRole はユーザーの役割を更新し、新しい役割を含むアクセストークンを再発行する。
// リフレッシュトークンは更新しない。
// PUT /api/auth/user-role
func (h *AuthHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	var req updateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	user, accessToken, err := h.service.UpdateRole(r.Context(), userID, req.Role)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setCookie(w, middleware.AccessTokenCookieName, accessToken, accessCookieMaxAge)
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// GoogleLogin はGoogle OAuthフローを開始する。
// GET /api/auth/google
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		h.redirectWithError(w, r, "oauth_init_failed")
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.service.GetLoginURL(state), http.StatusTemporaryRedirect)
}

// GoogleCallback はOAuthコールバックを処理する。
// 失敗時はJSONではなくフロントエンドのログイン画面へerrorクエリ付きでリダイレクトする。
// GET /api/auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch", slog.String("query_state", state))
		h.redirectWithError(w, r, "invalid_state")
		return
	}

	// stateクッキーを削除
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// 2. 認可コードの取得
	code := r.URL.Query().Get("code")
	if code == "" {
		h.redirectWithError(w, r, "missing_code")
		return
	}

	// 3. 認証処理
	result, err := h.service.HandleOAuthCallback(r.Context(), code)
	if err != nil {
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		h.redirectWithError(w, r, "authentication_failed")
		return
	}

	// 4. トークンCookieを設定
	h.setAuthCookies(w, &result.Tokens)

	// 5. 役割に応じてフロントエンドへリダイレクト
	var path string
	switch result.User.Role {
	case model.RoleUnset:
		path = "/select-role"
	case model.RoleInstructor:
		path = "/instructor/dashboard"
	default:
		path = "/student/dashboard"
	}
	http.Redirect(w, r, h.config.FrontendURL+path, http.StatusTemporaryRedirect)
}

// --- ヘルパー関数 ---

// setAuthCookies はアクセス/リフレッシュ両方のトークンCookieを設定する。
func (h *AuthHandler) setAuthCookies(w http.ResponseWriter, tokens *auth.TokenPair) {
	h.setCookie(w, middleware.AccessTokenCookieName, tokens.AccessToken, accessCookieMaxAge)
	h.setCookie(w, middleware.RefreshTokenCookieName, tokens.RefreshToken, refreshCookieMaxAge)
}

// clearAuthCookies は両方のトークンCookieをクリアする。
func (h *AuthHandler) clearAuthCookies(w http.ResponseWriter) {
	h.setCookie(w, middleware.AccessTokenCookieName, "", -1)
	h.setCookie(w, middleware.RefreshTokenCookieName, "", -1)
}

func (h *AuthHandler) setCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// redirectWithError はフロントエンドのログイン画面へerrorクエリ付きでリダイレクトする。
func (h *AuthHandler) redirectWithError(w http.ResponseWriter, r *http.Request, reason string) {
	http.Redirect(w, r, h.config.FrontendURL+"/login?error="+url.QueryEscape(reason), http.StatusTemporaryRedirect)
}

// toUserResponse はmodel.Userから公開レスポンスに変換する。
func toUserResponse(user *model.User) userResponse {
	return userResponse{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
		Role:  string(user.Role),
	}
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
