// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/coursehub/internal/auth"
	"github.com/hitoshi/coursehub/internal/model"
)

// AccessTokenCookieName はアクセストークンを保持するCookie名。
const AccessTokenCookieName = "accessToken"

// RefreshTokenCookieName はリフレッシュトークンを保持するCookie名。
const RefreshTokenCookieName = "refreshToken"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
	userIDContextKey = contextKey("user_id")
	// userRoleContextKey はリクエストコンテキストにユーザーの役割を格納するためのキー。
	userRoleContextKey = contextKey("user_role")
)

// AccessTokenVerifier はアクセストークンの検証に必要なインターフェース。
// auth.TokenIssuerの部分集合として定義する。
type AccessTokenVerifier interface {
	VerifyAccess(token string) (*auth.Claims, error)
}

// NewAuthMiddleware はHTTP Only Cookieからアクセストークンを読み取り、
// 検証するミドルウェアを返す。
// 認証済みユーザーIDと役割をリクエストコンテキストに注入する。
// Cookie欠落とトークン不正はどちらも401 Unauthorizedを返す（区別しない）。
func NewAuthMiddleware(verifier AccessTokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(AccessTokenCookieName)
			if err != nil || cookie.Value == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
				return
			}

			claims, err := verifier.VerifyAccess(cookie.Value)
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
				return
			}

			ctx := ContextWithUser(r.Context(), claims.Subject, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// RoleFromContext はリクエストコンテキストからユーザーの役割を取得する。
// 役割未選択のユーザーはRoleUnsetを返す。
func RoleFromContext(ctx context.Context) (model.Role, error) {
	role, ok := ctx.Value(userRoleContextKey).(model.Role)
	if !ok {
		return model.RoleUnset, fmt.Errorf("user role not found in context")
	}
	return role, nil
}

// ContextWithUser はコンテキストにユーザーIDと役割を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUser(ctx context.Context, userID string, role model.Role) context.Context {
	ctx = context.WithValue(ctx, userIDContextKey, userID)
	return context.WithValue(ctx, userRoleContextKey, role)
}
