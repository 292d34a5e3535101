package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/coursehub/internal/middleware"
	"github.com/hitoshi/coursehub/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenVerifier     middleware.AccessTokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	Metrics           middleware.HTTPMetricsRecorder

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// コースとレビュー
	CourseService CourseServiceInterface
	ReviewService ReviewServiceInterface

	// 受講登録と進捗
	EnrollmentService EnrollmentServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Recovery → Logging → Metrics
//
// 認証が必要なグループには Auth → RateLimit(General) → RequireRole を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewMetricsMiddleware(deps.Metrics))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	courseHandler := NewCourseHandler(deps.CourseService, deps.ReviewService)
	studentHandler := NewStudentHandler(deps.EnrollmentService, deps.CourseService)

	authenticate := middleware.NewAuthMiddleware(deps.TokenVerifier)
	requireInstructor := middleware.NewRequireRoleMiddleware(model.RoleInstructor)
	requireStudent := middleware.NewRequireRoleMiddleware(model.RoleStudent)

	// ヘルスチェック
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// --- 認証不要のルート ---

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/refreshtoken", authHandler.Refresh)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)

		// OAuthフロー
		r.Get("/google", authHandler.GoogleLogin)
		r.Get("/google/callback", authHandler.GoogleCallback)

		// 役割更新はアクセストークンが必須（役割未選択ユーザーも呼べるため役割ゲートなし）
		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(deps.RateLimiter.Middleware())

			r.Put("/user-role", authHandler.UpdateRole)
		})
	})

	r.Route("/api/course", func(r chi.Router) {
		// 公開ルート
		r.Get("/getallcourse", courseHandler.ListAll)
		r.Get("/{courseId}/getreviews", courseHandler.ListReviews)

		// 認証が必要なルート
		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(deps.RateLimiter.Middleware())

			r.Get("/{courseId}", courseHandler.GetCourse)
			r.Post("/{courseId}/reviews", courseHandler.CreateReview)
			r.Post("/reviews/{reviewId}/comments", courseHandler.AddComment)

			// 講師のみ
			r.Group(func(r chi.Router) {
				r.Use(requireInstructor)

				r.Post("/createcourse", courseHandler.CreateCourse)
				r.Get("/my-instructor-courses", courseHandler.ListInstructorCourses)
				r.Put("/{courseId}", courseHandler.UpdateCourse)
				r.Delete("/{courseId}", courseHandler.DeleteCourse)
			})
		})
	})

	r.Route("/api/student", func(r chi.Router) {
		r.Use(authenticate)
		r.Use(deps.RateLimiter.Middleware())

		// 認証のみで閲覧できるコース一覧
		r.Get("/getcourse", studentHandler.ListCourses)

		// 受講者のみ
		r.Group(func(r chi.Router) {
			r.Use(requireStudent)

			r.Post("/enroll/{courseId}", studentHandler.Enroll)
			r.Get("/my-enrollcourse", studentHandler.ListMyCourses)
			r.Get("/course/{courseId}/sessions", studentHandler.CourseSessions)
			r.Patch("/session/{sessionId}/complete", studentHandler.CompleteSession)
			r.Get("/profile", studentHandler.GetProfile)
			r.Post("/complete-course", studentHandler.CompleteCourse)
			r.Get("/progress/{courseId}", studentHandler.Progress)
		})
	})

	return r
}
