package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/coursehub/internal/course"
	"github.com/hitoshi/coursehub/internal/middleware"
	"github.com/hitoshi/coursehub/internal/model"
	"github.com/hitoshi/coursehub/internal/repository"
	"github.com/hitoshi/coursehub/internal/review"
)

// --- モック定義 ---

// mockCourseService はCourseServiceInterfaceのモック実装。
type mockCourseService struct {
	createCourseFn          func(ctx context.Context, instructorID string, input course.CourseInput) (*course.CourseDetail, error)
	listAllFn               func(ctx context.Context) ([]*model.Course, error)
	getCourseFn             func(ctx context.Context, courseID string) (*course.CourseDetail, error)
	listInstructorCoursesFn func(ctx context.Context, instructorID string) ([]course.InstructorCourse, error)
	updateCourseFn          func(ctx context.Context, instructorID, courseID string, input course.CourseInput) (*course.CourseDetail, error)
	deleteCourseFn          func(ctx context.Context, instructorID, courseID string) error
}

func (m *mockCourseService) CreateCourse(ctx context.Context, instructorID string, input course.CourseInput) (*course.CourseDetail, error) {
	if m.createCourseFn != nil {
		return m.createCourseFn(ctx, instructorID, input)
	}
	return nil, nil
}

func (m *mockCourseService) ListAll(ctx context.Context) ([]*model.Course, error) {
	if m.listAllFn != nil {
		return m.listAllFn(ctx)
	}
	return nil, nil
}

func (m *mockCourseService) GetCourse(ctx context.Context, courseID string) (*course.CourseDetail, error) {
	if m.getCourseFn != nil {
		return m.getCourseFn(ctx, courseID)
	}
	return nil, nil
}

func (m *mockCourseService) ListInstructorCourses(ctx context.Context, instructorID string) ([]course.InstructorCourse, error) {
	if m.listInstructorCoursesFn != nil {
		return m.listInstructorCoursesFn(ctx, instructorID)
	}
	return nil, nil
}

func (m *mockCourseService) UpdateCourse(ctx context.Context, instructorID, courseID string, input course.CourseInput) (*course.CourseDetail, error) {
	if m.updateCourseFn != nil {
		return m.updateCourseFn(ctx, instructorID, courseID, input)
	}
	return nil, nil
}

func (m *mockCourseService) DeleteCourse(ctx context.Context, instructorID, courseID string) error {
	if m.deleteCourseFn != nil {
		return m.deleteCourseFn(ctx, instructorID, courseID)
	}
	return nil
}

var _ CourseServiceInterface = (*mockCourseService)(nil)

// mockReviewService はReviewServiceInterfaceのモック実装。
type mockReviewService struct {
	createReviewFn func(ctx context.Context, studentID, courseID string, rating int, comment string) (*model.Review, error)
	listReviewsFn  func(ctx context.Context, courseID string) ([]review.ReviewThread, error)
	addCommentFn   func(ctx context.Context, userID, reviewID, body string) (*model.ReviewComment, error)
}

func (m *mockReviewService) CreateReview(ctx context.Context, studentID, courseID string, rating int, comment string) (*model.Review, error) {
	if m.createReviewFn != nil {
		return m.createReviewFn(ctx, studentID, courseID, rating, comment)
	}
	return nil, nil
}

func (m *mockReviewService) ListReviews(ctx context.Context, courseID string) ([]review.ReviewThread, error) {
	if m.listReviewsFn != nil {
		return m.listReviewsFn(ctx, courseID)
	}
	return nil, nil
}

func (m *mockReviewService) AddComment(ctx context.Context, userID, reviewID, body string) (*model.ReviewComment, error) {
	if m.addCommentFn != nil {
		return m.addCommentFn(ctx, userID, reviewID, body)
	}
	return nil, nil
}

var _ ReviewServiceInterface = (*mockReviewService)(nil)

// --- テストヘルパー ---

// withUser はテスト用にリクエストコンテキストにユーザー情報を注入するヘルパー。
func withUser(r *http.Request, userID string, role model.Role) *http.Request {
	return r.WithContext(middleware.ContextWithUser(r.Context(), userID, role))
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

// --- POST /api/course/createcourse テスト ---

func TestCourseHandler_CreateCourse_Success(t *testing.T) {
	svc := &mockCourseService{
		createCourseFn: func(ctx context.Context, instructorID string, input course.CourseInput) (*course.CourseDetail, error) {
			if instructorID != "instructor-1" {
				t.Errorf("instructorID = %q, want %q", instructorID, "instructor-1")
			}
			if len(input.Sessions) != 2 {
				t.Errorf("len(sessions) = %d, want 2", len(input.Sessions))
			}
			return &course.CourseDetail{
				Course: &model.Course{
					ID:           "course-1",
					Title:        input.Title,
					InstructorID: instructorID,
				},
				Sessions: []*model.CourseSession{
					{ID: "session-1", Title: input.Sessions[0].Title, Position: 0},
					{ID: "session-2", Title: input.Sessions[1].Title, Position: 1},
				},
			}, nil
		},
	}

	h := NewCourseHandler(svc, &mockReviewService{})

	body := `{
		"title": "Go入門",
		"description": "基礎から学ぶ",
		"category": "プログラミング",
		"sessions": [
			{"title": "第1回", "videoUrl": "https://videos.example.com/1", "content": "導入"},
			{"title": "第2回", "videoUrl": "https://videos.example.com/2", "content": "型"}
		]
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/course/createcourse", bytes.NewBufferString(body))
	req = withUser(req, "instructor-1", model.RoleInstructor)
	w := httptest.NewRecorder()

	h.CreateCourse(w, req)

	if w.Result().StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusCreated)
	}

	var resp courseDetailResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ID != "course-1" {
		t.Errorf("course ID = %q, want %q", resp.ID, "course-1")
	}
	if len(resp.Sessions) != 2 {
		t.Errorf("len(sessions) = %d, want 2", len(resp.Sessions))
	}
}

func TestCourseHandler_CreateCourse_InvalidVideoURL_Returns422(t *testing.T) {
	svc := &mockCourseService{
		createCourseFn: func(ctx context.Context, instructorID string, input course.CourseInput) (*course.CourseDetail, error) {
			return nil, model.NewInvalidVideoURLError("内部ネットワークへのURLは指定できません")
		},
	}

	h := NewCourseHandler(svc, &mockReviewService{})

	body := `{"title": "Go入門", "description": "d", "category": "c", "sessions": [{"title": "第1回", "videoUrl": "http://169.254.169.254/"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/course/createcourse", bytes.NewBufferString(body))
	req = withUser(req, "instructor-1", model.RoleInstructor)
	w := httptest.NewRecorder()

	h.CreateCourse(w, req)

	if w.Result().StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnprocessableEntity)
	}

	result := parseAPIErrorResponse(t, w)
	if result["code"] != model.ErrCodeInvalidVideoURL {
		t.Errorf("code = %q, want %q", result["code"], model.ErrCodeInvalidVideoURL)
	}
}

// --- GET /api/course/{courseId} テスト ---

func TestCourseHandler_GetCourse_NotFound_Returns404(t *testing.T) {
	svc := &mockCourseService{
		getCourseFn: func(ctx context.Context, courseID string) (*course.CourseDetail, error) {
			return nil, model.NewCourseNotFoundError(courseID)
		},
	}

	h := NewCourseHandler(svc, &mockReviewService{})

	req := httptest.NewRequest(http.MethodGet, "/api/course/missing", nil)
	req = withChiURLParam(req, "courseId", "missing")
	req = withUser(req, "user-1", model.RoleStudent)
	w := httptest.NewRecorder()

	h.GetCourse(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
	}
}

// --- PUT /api/course/{courseId} テスト ---

func TestCourseHandler_UpdateCourse_NotOwner_Returns403(t *testing.T) {
	svc := &mockCourseService{
		updateCourseFn: func(ctx context.Context, instructorID, courseID string, input course.CourseInput) (*course.CourseDetail, error) {
			return nil, model.NewForbiddenError(model.RoleInstructor)
		},
	}

	h := NewCourseHandler(svc, &mockReviewService{})

	body := `{"title": "改題", "description": "d", "category": "c", "sessions": []}`
	req := httptest.NewRequest(http.MethodPut, "/api/course/course-1", bytes.NewBufferString(body))
	req = withChiURLParam(req, "courseId", "course-1")
	req = withUser(req, "other-instructor", model.RoleInstructor)
	w := httptest.NewRecorder()

	h.UpdateCourse(w, req)

	if w.Result().StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusForbidden)
	}
}

// --- DELETE /api/course/{courseId} テスト ---

func TestCourseHandler_DeleteCourse_Returns204(t *testing.T) {
	deleted := false
	svc := &mockCourseService{
		deleteCourseFn: func(ctx context.Context, instructorID, courseID string) error {
			if courseID != "course-1" {
				t.Errorf("courseID = %q, want %q", courseID, "course-1")
			}
			deleted = true
			return nil
		},
	}

	h := NewCourseHandler(svc, &mockReviewService{})

	req := httptest.NewRequest(http.MethodDelete, "/api/course/course-1", nil)
	req = withChiURLParam(req, "courseId", "course-1")
	req = withUser(req, "instructor-1", model.RoleInstructor)
	w := httptest.NewRecorder()

	h.DeleteCourse(w, req)

	if w.Result().StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNoContent)
	}
	if !deleted {
		t.Error("expected DeleteCourse to be called")
	}
}

// --- GET /api/course/my-instructor-courses テスト ---

func TestCourseHandler_ListInstructorCourses_IncludesEnrollments(t *testing.T) {
	svc := &mockCourseService{
		listInstructorCoursesFn: func(ctx context.Context, instructorID string) ([]course.InstructorCourse, error) {
			return []course.InstructorCourse{
				{
					Course: &model.Course{ID: "course-1", Title: "Go入門", InstructorID: instructorID},
					Enrollments: []repository.EnrollmentWithUser{
						{
							Enrollment: model.Enrollment{ID: "enroll-1", UserID: "student-1", CourseID: "course-1"},
							UserName:   "受講 太郎",
							UserEmail:  "taro@example.com",
						},
					},
				},
			}, nil
		},
	}

	h := NewCourseHandler(svc, &mockReviewService{})

	req := httptest.NewRequest(http.MethodGet, "/api/course/my-instructor-courses", nil)
	req = withUser(req, "instructor-1", model.RoleInstructor)
	w := httptest.NewRecorder()

	h.ListInstructorCourses(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	var resp []instructorCourseResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp) != 1 {
		t.Fatalf("len(courses) = %d, want 1", len(resp))
	}
	if len(resp[0].Enrollments) != 1 {
		t.Fatalf("len(enrollments) = %d, want 1", len(resp[0].Enrollments))
	}
	if resp[0].Enrollments[0].UserName != "受講 太郎" {
		t.Errorf("userName = %q, want %q", resp[0].Enrollments[0].UserName, "受講 太郎")
	}
}

// --- レビューテスト ---

func TestCourseHandler_CreateReview_Success(t *testing.T) {
	svc := &mockReviewService{
		createReviewFn: func(ctx context.Context, studentID, courseID string, rating int, comment string) (*model.Review, error) {
			if rating != 4 {
				t.Errorf("rating = %d, want 4", rating)
			}
			return &model.Review{
				ID:        "review-1",
				CourseID:  courseID,
				StudentID: studentID,
				Rating:    rating,
				Comment:   comment,
			}, nil
		},
	}

	h := NewCourseHandler(&mockCourseService{}, svc)

	body := `{"rating": 4, "comment": "分かりやすかった"}`
	req := httptest.NewRequest(http.MethodPost, "/api/course/course-1/reviews", bytes.NewBufferString(body))
	req = withChiURLParam(req, "courseId", "course-1")
	req = withUser(req, "student-1", model.RoleStudent)
	w := httptest.NewRecorder()

	h.CreateReview(w, req)

	if w.Result().StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusCreated)
	}
}

func TestCourseHandler_CreateReview_Duplicate_Returns400(t *testing.T) {
	svc := &mockReviewService{
		createReviewFn: func(ctx context.Context, studentID, courseID string, rating int, comment string) (*model.Review, error) {
			return nil, model.NewReviewExistsError()
		},
	}

	h := NewCourseHandler(&mockCourseService{}, svc)

	body := `{"rating": 5, "comment": "2回目"}`
	req := httptest.NewRequest(http.MethodPost, "/api/course/course-1/reviews", bytes.NewBufferString(body))
	req = withChiURLParam(req, "courseId", "course-1")
	req = withUser(req, "student-1", model.RoleStudent)
	w := httptest.NewRecorder()

	h.CreateReview(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}

	result := parseAPIErrorResponse(t, w)
	if result["code"] != model.ErrCodeReviewExists {
		t.Errorf("code = %q, want %q", result["code"], model.ErrCodeReviewExists)
	}
}

func TestCourseHandler_ListReviews_WithCommentThreads(t *testing.T) {
	svc := &mockReviewService{
		listReviewsFn: func(ctx context.Context, courseID string) ([]review.ReviewThread, error) {
			return []review.ReviewThread{
				{
					Review:      model.Review{ID: "review-1", CourseID: courseID, Rating: 5},
					StudentName: "受講 太郎",
					Comments: []repository.CommentWithAuthor{
						{
							ReviewComment: model.ReviewComment{ID: "comment-1", ReviewID: "review-1", Body: "同感です"},
							UserName:      "受講 次郎",
						},
					},
				},
			}, nil
		},
	}

	h := NewCourseHandler(&mockCourseService{}, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/course/course-1/getreviews", nil)
	req = withChiURLParam(req, "courseId", "course-1")
	w := httptest.NewRecorder()

	h.ListReviews(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	var resp []reviewResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp) != 1 {
		t.Fatalf("len(reviews) = %d, want 1", len(resp))
	}
	if resp[0].StudentName != "受講 太郎" {
		t.Errorf("studentName = %q", resp[0].StudentName)
	}
	if len(resp[0].Comments) != 1 || resp[0].Comments[0].UserName != "受講 次郎" {
		t.Errorf("comments = %+v, want one comment by 受講 次郎", resp[0].Comments)
	}
}

func TestCourseHandler_AddComment_ReviewNotFound_Returns404(t *testing.T) {
	svc := &mockReviewService{
		addCommentFn: func(ctx context.Context, userID, reviewID, body string) (*model.ReviewComment, error) {
			return nil, model.NewReviewNotFoundError(reviewID)
		},
	}

	h := NewCourseHandler(&mockCourseService{}, svc)

	body := `{"body": "どのレッスンですか？"}`
	req := httptest.NewRequest(http.MethodPost, "/api/course/reviews/missing/comments", bytes.NewBufferString(body))
	req = withChiURLParam(req, "reviewId", "missing")
	req = withUser(req, "user-1", model.RoleStudent)
	w := httptest.NewRecorder()

	h.AddComment(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
	}
}
