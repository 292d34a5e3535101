package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/coursehub/internal/course"
	"github.com/hitoshi/coursehub/internal/middleware"
	"github.com/hitoshi/coursehub/internal/model"
	"github.com/hitoshi/coursehub/internal/review"
)

// CourseServiceInterface はコースハンドラーが必要とするサービスインターフェース。
type CourseServiceInterface interface {
	CreateCourse(ctx context.Context, instructorID string, input course.CourseInput) (*course.CourseDetail, error)
	ListAll(ctx context.Context) ([]*model.Course, error)
	GetCourse(ctx context.Context, courseID string) (*course.CourseDetail, error)
	ListInstructorCourses(ctx context.Context, instructorID string) ([]course.InstructorCourse, error)
	UpdateCourse(ctx context.Context, instructorID, courseID string, input course.CourseInput) (*course.CourseDetail, error)
	DeleteCourse(ctx context.Context, instructorID, courseID string) error
}

// ReviewServiceInterface はレビューハンドラーが必要とするサービスインターフェース。
type ReviewServiceInterface interface {
	CreateReview(ctx context.Context, studentID, courseID string, rating int, comment string) (*model.Review, error)
	ListReviews(ctx context.Context, courseID string) ([]review.ReviewThread, error)
	AddComment(ctx context.Context, userID, reviewID, body string) (*model.ReviewComment, error)
}

// CourseHandler はコース管理・レビューのHTTPハンドラー。
type CourseHandler struct {
	courses CourseServiceInterface
	reviews ReviewServiceInterface
}

// NewCourseHandler はCourseHandlerを生成する。
func NewCourseHandler(courses CourseServiceInterface, reviews ReviewServiceInterface) *CourseHandler {
	return &CourseHandler{
		courses: courses,
		reviews: reviews,
	}
}

// sessionRequest はコース作成・更新時のレッスン入力。
type sessionRequest struct {
	Title    string `json:"title"`
	VideoURL string `json:"videoUrl"`
	Content  string `json:"content"`
}

// courseRequest はコース作成・更新リクエストのボディ。
type courseRequest struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Category    string           `json:"category"`
	Sessions    []sessionRequest `json:"sessions"`
}

// createReviewRequest はレビュー投稿リクエストのボディ。
type createReviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// addCommentRequest はレビューコメント投稿リクエストのボディ。
type addCommentRequest struct {
	Body string `json:"body"`
}

// courseResponse はコース情報のAPIレスポンス。
type courseResponse struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Category      string    `json:"category"`
	InstructorID  string    `json:"instructorId"`
	AverageRating float64   `json:"averageRating"`
	CreatedAt     time.Time `json:"createdAt"`
}

// sessionResponse はレッスン情報のAPIレスポンス。
type sessionResponse struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	VideoURL string `json:"videoUrl"`
	Content  string `json:"content"`
	Position int    `json:"position"`
}

// courseDetailResponse はコースとレッスン一覧のAPIレスポンス。
type courseDetailResponse struct {
	courseResponse
	Sessions []sessionResponse `json:"sessions"`
}

// CreateCourse はコース作成を処理する。
// POST /api/course/createcourse
func (h *CourseHandler) CreateCourse(w http.ResponseWriter, r *http.Request) {
	instructorID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	var req courseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	detail, err := h.courses.CreateCourse(r.Context(), instructorID, toCourseInput(req))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toCourseDetailResponse(detail))
}

// ListAll は全コース一覧を返す。
// GET /api/course/getallcourse
func (h *CourseHandler) ListAll(w http.ResponseWriter, r *http.Request) {
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

// instructorCourseResponse は講師向けコース一覧のAPIレスポンス。
type instructorCourseResponse struct {
	courseResponse
	Enrollments []enrollmentWithUserResponse `json:"enrollments"`
}

type enrollmentWithUserResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	UserEmail string    `json:"userEmail"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"createdAt"`
}

// ListInstructorCourses は講師自身のコースと受講者一覧を返す。
// GET /api/course/my-instructor-courses
func (h *CourseHandler) ListInstructorCourses(w http.ResponseWriter, r *http.Request) {
	instructorID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	courses, err := h.courses.ListInstructorCourses(r.Context(), instructorID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]instructorCourseResponse, 0, len(courses))
	for _, ic := range courses {
		enrollments := make([]enrollmentWithUserResponse, 0, len(ic.Enrollments))
		for _, e := range ic.Enrollments {
			enrollments = append(enrollments, enrollmentWithUserResponse{
				ID:        e.ID,
				UserID:    e.UserID,
				UserName:  e.UserName,
				UserEmail: e.UserEmail,
				Completed: e.Completed,
				CreatedAt: e.CreatedAt,
			})
		}
		resp = append(resp, instructorCourseResponse{
			courseResponse: toCourseResponse(ic.Course),
			Enrollments:    enrollments,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetCourse はコース詳細を返す。
// GET /api/course/{courseId}
func (h *CourseHandler) GetCourse(w http.ResponseWriter, r *http.Request) {
	detail, err := h.courses.GetCourse(r.Context(), chi.URLParam(r, "courseId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toCourseDetailResponse(detail))
}

// UpdateCourse はコース更新を処理する。レッスンは全置換される。
// PUT /api/course/{courseId}
func (h *CourseHandler) UpdateCourse(w http.ResponseWriter, r *http.Request) {
	instructorID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	var req courseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	detail, err := h.courses.UpdateCourse(r.Context(), instructorID, chi.URLParam(r, "courseId"), toCourseInput(req))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toCourseDetailResponse(detail))
}

// DeleteCourse はコース削除を処理する。
// DELETE /api/course/{courseId}
func (h *CourseHandler) DeleteCourse(w http.ResponseWriter, r *http.Request) {
	instructorID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	if err := h.courses.DeleteCourse(r.Context(), instructorID, chi.URLParam(r, "courseId")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// reviewResponse はレビュー情報のAPIレスポンス。
type reviewResponse struct {
	ID          string            `json:"id"`
	CourseID    string            `json:"courseId"`
	StudentID   string            `json:"studentId"`
	StudentName string            `json:"studentName,omitempty"`
	Rating      int               `json:"rating"`
	Comment     string            `json:"comment"`
	CreatedAt   time.Time         `json:"createdAt"`
	Comments    []commentResponse `json:"comments,omitempty"`
}

type commentResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateReview はレビュー投稿を処理する。
// POST /api/course/{courseId}/reviews
func (h *CourseHandler) CreateReview(w http.ResponseWriter, r *http.Request) {
	studentID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	var req createReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	rev, err := h.reviews.CreateReview(r.Context(), studentID, chi.URLParam(r, "courseId"), req.Rating, req.Comment)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, reviewResponse{
		ID:        rev.ID,
		CourseID:  rev.CourseID,
		StudentID: rev.StudentID,
		Rating:    rev.Rating,
		Comment:   rev.Comment,
		CreatedAt: rev.CreatedAt,
	})
}

// ListReviews はコースのレビュー一覧（コメントスレッド付き）を返す。
// GET /api/course/{courseId}/getreviews
func (h *CourseHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	threads, err := h.reviews.ListReviews(r.Context(), chi.URLParam(r, "courseId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]reviewResponse, 0, len(threads))
	for _, t := range threads {
		comments := make([]commentResponse, 0, len(t.Comments))
		for _, c := range t.Comments {
			comments = append(comments, commentResponse{
				ID:        c.ID,
				UserID:    c.UserID,
				UserName:  c.UserName,
				Body:      c.Body,
				CreatedAt: c.CreatedAt,
			})
		}
		resp = append(resp, reviewResponse{
			ID:          t.Review.ID,
			CourseID:    t.Review.CourseID,
			StudentID:   t.Review.StudentID,
			StudentName: t.StudentName,
			Rating:      t.Review.Rating,
			Comment:     t.Review.Comment,
			CreatedAt:   t.Review.CreatedAt,
			Comments:    comments,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// AddComment はレビューへのコメント投稿を処理する。
// POST /api/course/reviews/{reviewId}/comments
func (h *CourseHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	var req addCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	comment, err := h.reviews.AddComment(r.Context(), userID, chi.URLParam(r, "reviewId"), req.Body)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, commentResponse{
		ID:        comment.ID,
		UserID:    comment.UserID,
		Body:      comment.Body,
		CreatedAt: comment.CreatedAt,
	})
}

// --- ヘルパー関数 ---

func toCourseInput(req courseRequest) course.CourseInput {
	sessions := make([]course.SessionInput, 0, len(req.Sessions))
	for _, s := range req.Sessions {
		sessions = append(sessions, course.SessionInput{
			Title:    s.Title,
			VideoURL: s.VideoURL,
			Content:  s.Content,
		})
	}
	return course.CourseInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Sessions:    sessions,
	}
}

func toCourseResponse(c *model.Course) courseResponse {
	return courseResponse{
		ID:            c.ID,
		Title:         c.Title,
		Description:   c.Description,
		Category:      c.Category,
		InstructorID:  c.InstructorID,
		AverageRating: c.AverageRating,
		CreatedAt:     c.CreatedAt,
	}
}

func toCourseDetailResponse(detail *course.CourseDetail) courseDetailResponse {
	sessions := make([]sessionResponse, 0, len(detail.Sessions))
	for _, s := range detail.Sessions {
		sessions = append(sessions, sessionResponse{
			ID:       s.ID,
			Title:    s.Title,
			VideoURL: s.VideoURL,
			Content:  s.Content,
			Position: s.Position,
		})
	}
	return courseDetailResponse{
		courseResponse: toCourseResponse(detail.Course),
		Sessions:       sessions,
	}
}
