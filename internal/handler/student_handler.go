package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/coursehub/internal/enrollment"
	"github.com/hitoshi/coursehub/internal/middleware"
	"github.com/hitoshi/coursehub/internal/model"
)

// EnrollmentServiceInterface は受講者ハンドラーが必要とするサービスインターフェース。
type EnrollmentServiceInterface interface {
	Enroll(ctx context.Context, userID, courseID string) (*model.Enrollment, error)
	ListMyCourses(ctx context.Context, userID string) ([]enrollment.EnrolledCourse, error)
	CourseSessions(ctx context.Context, userID, courseID string) ([]*model.CourseSession, error)
	CompleteSession(ctx context.Context, userID, sessionID string) error
	Progress(ctx context.Context, userID, courseID string) (*model.CourseProgress, error)
	CompleteCourse(ctx context.Context, userID, courseID string) error
	GetProfile(ctx context.Context, userID string) (*enrollment.Profile, error)
}

// CourseLister は受講者向けコース一覧のための最小インターフェース。
type CourseLister interface {
	ListAll(ctx context.Context) ([]*model.Course, error)
}

// StudentHandler は受講登録・進捗管理のHTTPハンドラー。
type StudentHandler struct {
	service EnrollmentServiceInterface
	courses CourseLister
}

// NewStudentHandler はStudentHandlerを生成する。
func NewStudentHandler(service EnrollmentServiceInterface, courses CourseLister) *StudentHandler {
	return &StudentHandler{
		service: service,
		courses: courses,
	}
}

// enrollmentResponse は受講登録のAPIレスポンス。
type enrollmentResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	CourseID  string    `json:"courseId"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"createdAt"`
}

// progressResponse はコース進捗のAPIレスポンス。
type progressResponse struct {
	Completed           int      `json:"completed"`
	Total               int      `json:"total"`
	Percent             float64  `json:"percent"`
	CompletedSessionIDs []string `json:"completedSessionIds"`
}

// enrolledCourseResponse は受講中コース（進捗付き）のAPIレスポンス。
type enrolledCourseResponse struct {
	Enrollment enrollmentResponse `json:"enrollment"`
	Course     courseResponse     `json:"course"`
	Progress   progressResponse   `json:"progress"`
}

// Enroll はコースへの受講登録を処理する。
// POST /api/student/enroll/{courseId}
func (h *StudentHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	enr, err := h.service.Enroll(r.Context(), userID, chi.URLParam(r, "courseId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toEnrollmentResponse(enr))
}

// ListMyCourses は自分の受講コース一覧（進捗付き）を返す。
// GET /api/student/my-enrollcourse
func (h *StudentHandler) ListMyCourses(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	courses, err := h.service.ListMyCourses(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]enrolledCourseResponse, 0, len(courses))
	for _, ec := range courses {
		resp = append(resp, toEnrolledCourseResponse(ec))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListCourses は受講可能な全コース一覧を返す。
// GET /api/student/getcourse
func (h *StudentHandler) ListCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := h.courses.ListAll(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]courseResponse, 0, len(courses))
	for _, c := range courses {
		resp = append(resp, toCourseResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CourseSessions は受講中コースのレッスン一覧を返す。
// 受講登録がない場合は403を返す。
// GET /api/student/course/{courseId}/sessions
func (h *StudentHandler) CourseSessions(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	sessions, err := h.service.CourseSessions(r.Context(), userID, chi.URLParam(r, "courseId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		resp = append(resp, sessionResponse{
			ID:       s.ID,
			Title:    s.Title,
			VideoURL: s.VideoURL,
			Content:  s.Content,
			Position: s.Position,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// CompleteSession はレッスン完了を記録する。冪等。
// PATCH /api/student/session/{sessionId}/complete
func (h *StudentHandler) CompleteSession(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	if err := h.service.CompleteSession(r.Context(), userID, chi.URLParam(r, "sessionId")); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "レッスンを完了しました。"})
}

// Progress はコースの進捗を返す。
// GET /api/student/progress/{courseId}
func (h *StudentHandler) Progress(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	progress, err := h.service.Progress(r.Context(), userID, chi.URLParam(r, "courseId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toProgressResponse(*progress))
}

// completeCourseRequest はコース修了リクエストのボディ。
type completeCourseRequest struct {
	CourseID string `json:"courseId"`
}

// CompleteCourse はコース修了を記録する。
// POST /api/student/complete-course
func (h *StudentHandler) CompleteCourse(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	var req completeCourseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	if err := h.service.CompleteCourse(r.Context(), userID, req.CourseID); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "コースを修了しました。"})
}

// profileResponse は受講者プロフィールのAPIレスポンス。
type profileResponse struct {
	Name            string                   `json:"name"`
	Email           string                   `json:"email"`
	InProgress      []enrolledCourseResponse `json:"inProgress"`
	CompletedTitles []string                 `json:"completedTitles"`
	EnrolledCount   int                      `json:"enrolledCount"`
	CompletedCount  int                      `json:"completedCount"`
}

// GetProfile は受講者のプロフィール（受講状況サマリー付き）を返す。
// GET /api/student/profile
func (h *StudentHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	profile, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	inProgress := make([]enrolledCourseResponse, 0, len(profile.InProgress))
	for _, ec := range profile.InProgress {
		inProgress = append(inProgress, toEnrolledCourseResponse(ec))
	}
	writeJSON(w, http.StatusOK, profileResponse{
		Name:            profile.Name,
		Email:           profile.Email,
		InProgress:      inProgress,
		CompletedTitles: profile.CompletedTitles,
		EnrolledCount:   profile.EnrolledCount,
		CompletedCount:  profile.CompletedCount,
	})
}

// --- ヘルパー関数 ---

func toEnrollmentResponse(e *model.Enrollment) enrollmentResponse {
	return enrollmentResponse{
		ID:        e.ID,
		UserID:    e.UserID,
		CourseID:  e.CourseID,
		Completed: e.Completed,
		CreatedAt: e.CreatedAt,
	}
}

func toProgressResponse(p model.CourseProgress) progressResponse {
	return progressResponse{
		Completed:           p.Completed,
		Total:               p.Total,
		Percent:             p.Percent,
		CompletedSessionIDs: p.CompletedSessionIDs,
	}
}

func toEnrolledCourseResponse(ec enrollment.EnrolledCourse) enrolledCourseResponse {
	return enrolledCourseResponse{
		Enrollment: toEnrollmentResponse(&ec.Enrollment),
		Course:     toCourseResponse(&ec.Course),
		Progress:   toProgressResponse(ec.Progress),
	}
}
