package middleware

import (
	"net/http"

	"github.com/hitoshi/coursehub/internal/model"
)

// NewRequireRoleMiddleware は指定された役割のユーザーのみを通過させる
// ミドルウェアを返す。照合は大文字の完全一致で、役割未選択のユーザーも
// 拒否される。認証ミドルウェアの後に配置すること。
func NewRequireRoleMiddleware(required model.Role) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, err := RoleFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
				return
			}

			if role != required {
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError(required))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
