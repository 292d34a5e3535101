package enrollment

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/coursehub/internal/model"
	"github.com/hitoshi/coursehub/internal/repository"
)

// --- モック定義 ---

type mockEnrollRepo struct {
	createFn              func(ctx context.Context, enrollment *model.Enrollment) error
	findByUserAndCourseFn func(ctx context.Context, userID, courseID string) (*model.Enrollment, error)
	listByUserFn          func(ctx context.Context, userID string) ([]repository.EnrollmentWithCourse, error)
	updateCompletedFn     func(ctx context.Context, id string, completed bool) error
}

func (m *mockEnrollRepo) Create(ctx context.Context, enrollment *model.Enrollment) error {
	if m.createFn != nil {
		return m.createFn(ctx, enrollment)
	}
	return nil
}

func (m *mockEnrollRepo) FindByUserAndCourse(ctx context.Context, userID, courseID string) (*model.Enrollment, error) {
	if m.findByUserAndCourseFn != nil {
		return m.findByUserAndCourseFn(ctx, userID, courseID)
	}
	return nil, nil
}

func (m *mockEnrollRepo) ListByUserIDWithCourse(ctx context.Context, userID string) ([]repository.EnrollmentWithCourse, error) {
	if m.listByUserFn != nil {
		return m.listByUserFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockEnrollRepo) ListByCourseIDWithUser(ctx context.Context, courseID string) ([]repository.EnrollmentWithUser, error) {
	return nil, nil
}

func (m *mockEnrollRepo) UpdateCompleted(ctx context.Context, id string, completed bool) error {
	if m.updateCompletedFn != nil {
		return m.updateCompletedFn(ctx, id, completed)
	}
	return nil
}

type mockCourseRepo struct {
	findByIDFn      func(ctx context.Context, id string) (*model.Course, error)
	findSessionFn   func(ctx context.Context, sessionID string) (*model.CourseSession, error)
	listSessionsFn  func(ctx context.Context, courseID string) ([]*model.CourseSession, error)
	countSessionsFn func(ctx context.Context, courseID string) (int, error)
}

func (m *mockCourseRepo) FindByID(ctx context.Context, id string) (*model.Course, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockCourseRepo) ListAll(ctx context.Context) ([]*model.Course, error) {
	return nil, nil
}

func (m *mockCourseRepo) ListByInstructorID(ctx context.Context, instructorID string) ([]*model.Course, error) {
	return nil, nil
}

func (m *mockCourseRepo) CreateWithSessions(ctx context.Context, course *model.Course, sessions []*model.CourseSession) error {
	return nil
}

func (m *mockCourseRepo) UpdateWithSessions(ctx context.Context, course *model.Course, sessions []*model.CourseSession) error {
	return nil
}

func (m *mockCourseRepo) DeleteByID(ctx context.Context, id string) error {
	return nil
}

func (m *mockCourseRepo) ListSessionsByCourseID(ctx context.Context, courseID string) ([]*model.CourseSession, error) {
	if m.listSessionsFn != nil {
		return m.listSessionsFn(ctx, courseID)
	}
	return nil, nil
}

func (m *mockCourseRepo) FindSessionByID(ctx context.Context, sessionID string) (*model.CourseSession, error) {
	if m.findSessionFn != nil {
		return m.findSessionFn(ctx, sessionID)
	}
	return nil, nil
}

func (m *mockCourseRepo) CountSessionsByCourseID(ctx context.Context, courseID string) (int, error) {
	if m.countSessionsFn != nil {
		return m.countSessionsFn(ctx, courseID)
	}
	return 0, nil
}

func (m *mockCourseRepo) RefreshAverageRatings(ctx context.Context) (int64, error) {
	return 0, nil
}

type mockProgressRepo struct {
	upsertFn           func(ctx context.Context, userID, sessionID string, completed bool) error
	listCompletedIDsFn func(ctx context.Context, userID, courseID string) ([]string, error)
}

func (m *mockProgressRepo) Upsert(ctx context.Context, userID, sessionID string, completed bool) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, userID, sessionID, completed)
	}
	return nil
}

func (m *mockProgressRepo) ListCompletedSessionIDs(ctx context.Context, userID, courseID string) ([]string, error) {
	if m.listCompletedIDsFn != nil {
		return m.listCompletedIDsFn(ctx, userID, courseID)
	}
	return nil, nil
}

type mockUserRepo struct {
	findByIDFn func(ctx context.Context, id string) (*model.User, error)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return nil, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	return nil
}

func (m *mockUserRepo) UpdateRole(ctx context.Context, id string, role model.Role) (*model.User, error) {
	return nil, nil
}

// --- compile-time interface checks ---
var _ repository.EnrollmentRepository = (*mockEnrollRepo)(nil)
var _ repository.CourseRepository = (*mockCourseRepo)(nil)
var _ repository.ProgressRepository = (*mockProgressRepo)(nil)
var _ repository.UserRepository = (*mockUserRepo)(nil)

func newTestService(enroll *mockEnrollRepo, course *mockCourseRepo, progress *mockProgressRepo, user *mockUserRepo) *Service {
	if enroll == nil {
		enroll = &mockEnrollRepo{}
	}
	if course == nil {
		course = &mockCourseRepo{}
	}
	if progress == nil {
		progress = &mockProgressRepo{}
	}
	if user == nil {
		user = &mockUserRepo{}
	}
	return NewService(enroll, course, progress, user, nil)
}

func existingCourse(id string) *mockCourseRepo {
	return &mockCourseRepo{
		findByIDFn: func(ctx context.Context, cid string) (*model.Course, error) {
			if cid == id {
				return &model.Course{ID: cid, Title: "Go入門"}, nil
			}
			return nil, nil
		},
	}
}

// --- テスト ---

func TestEnroll_CreatesEnrollment(t *testing.T) {
	ctx := context.Background()

	var created *model.Enrollment
	enrollRepo := &mockEnrollRepo{
		createFn: func(ctx context.Context, enrollment *model.Enrollment) error {
			created = enrollment
			return nil
		},
	}

	svc := newTestService(enrollRepo, existingCourse("course-1"), nil, nil)

	enrollment, err := svc.Enroll(ctx, "student-1", "course-1")
	if err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	if created == nil {
		t.Fatal("expected enrollment to be created")
	}
	if enrollment.UserID != "student-1" || enrollment.CourseID != "course-1" {
		t.Errorf("enrollment = %+v, want user student-1 / course course-1", enrollment)
	}
	if enrollment.Completed {
		t.Error("new enrollment should not be completed")
	}
}

func TestEnroll_Duplicate_ReturnsAlreadyEnrolled(t *testing.T) {
	ctx := context.Background()

	enrollRepo := &mockEnrollRepo{
		createFn: func(ctx context.Context, enrollment *model.Enrollment) error {
			return repository.ErrDuplicate
		},
	}

	svc := newTestService(enrollRepo, existingCourse("course-1"), nil, nil)

	_, err := svc.Enroll(ctx, "student-1", "course-1")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeAlreadyEnrolled {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeAlreadyEnrolled)
	}
}

func TestEnroll_UnknownCourse_ReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(nil, nil, nil, nil)

	_, err := svc.Enroll(ctx, "student-1", "ghost")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeCourseNotFound {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeCourseNotFound)
	}
}

func TestCourseSessions_NotEnrolled_ReturnsNotEnrolled(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(nil, nil, nil, nil)

	_, err := svc.CourseSessions(ctx, "student-1", "course-1")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeNotEnrolled {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeNotEnrolled)
	}
}

func TestCourseSessions_Enrolled_ReturnsSessions(t *testing.T) {
	ctx := context.Background()

	enrollRepo := &mockEnrollRepo{
		findByUserAndCourseFn: func(ctx context.Context, userID, courseID string) (*model.Enrollment, error) {
			return &model.Enrollment{ID: "e1", UserID: userID, CourseID: courseID}, nil
		},
	}
	courseRepo := &mockCourseRepo{
		listSessionsFn: func(ctx context.Context, courseID string) ([]*model.CourseSession, error) {
			return []*model.CourseSession{{ID: "s1"}, {ID: "s2"}}, nil
		},
	}

	svc := newTestService(enrollRepo, courseRepo, nil, nil)

	sessions, err := svc.CourseSessions(ctx, "student-1", "course-1")
	if err != nil {
		t.Fatalf("CourseSessions() error = %v", err)
	}
	if len(sessions) != 2 {
		t.Errorf("session count = %d, want 2", len(sessions))
	}
}

func TestCompleteSession_UpsertsProgress(t *testing.T) {
	ctx := context.Background()

	var upsertedSession string
	var upsertCount int

	enrollRepo := &mockEnrollRepo{
		findByUserAndCourseFn: func(ctx context.Context, userID, courseID string) (*model.Enrollment, error) {
			return &model.Enrollment{ID: "e1", UserID: userID, CourseID: courseID}, nil
		},
	}
	courseRepo := &mockCourseRepo{
		findSessionFn: func(ctx context.Context, sessionID string) (*model.CourseSession, error) {
			return &model.CourseSession{ID: sessionID, CourseID: "course-1"}, nil
		},
	}
	progressRepo := &mockProgressRepo{
		upsertFn: func(ctx context.Context, userID, sessionID string, completed bool) error {
			upsertedSession = sessionID
			upsertCount++
			if !completed {
				t.Error("expected completed = true")
			}
			return nil
		},
	}

	svc := newTestService(enrollRepo, courseRepo, progressRepo, nil)

	if err := svc.CompleteSession(ctx, "student-1", "session-1"); err != nil {
		t.Fatalf("CompleteSession() error = %v", err)
	}
	if upsertedSession != "session-1" {
		t.Errorf("upserted session = %q, want %q", upsertedSession, "session-1")
	}

	// 冪等性: 2回目も成功すること
	if err := svc.CompleteSession(ctx, "student-1", "session-1"); err != nil {
		t.Fatalf("second CompleteSession() error = %v", err)
	}
	if upsertCount != 2 {
		t.Errorf("upsert count = %d, want 2", upsertCount)
	}
}

func TestCompleteSession_UnknownSession_ReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(nil, nil, nil, nil)

	err := svc.CompleteSession(ctx, "student-1", "ghost")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeSessionNotFound {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeSessionNotFound)
	}
}

func TestProgress_PercentRoundedToTwoDecimals(t *testing.T) {
	ctx := context.Background()

	enrollRepo := &mockEnrollRepo{
		findByUserAndCourseFn: func(ctx context.Context, userID, courseID string) (*model.Enrollment, error) {
			return &model.Enrollment{ID: "e1"}, nil
		},
	}
	courseRepo := &mockCourseRepo{
		countSessionsFn: func(ctx context.Context, courseID string) (int, error) {
			return 3, nil
		},
	}
	progressRepo := &mockProgressRepo{
		listCompletedIDsFn: func(ctx context.Context, userID, courseID string) ([]string, error) {
			return []string{"s1"}, nil
		},
	}

	svc := newTestService(enrollRepo, courseRepo, progressRepo, nil)

	progress, err := svc.Progress(ctx, "student-1", "course-1")
	if err != nil {
		t.Fatalf("Progress() error = %v", err)
	}

	// 1/3 = 33.333...% → 33.33へ丸め
	if progress.Percent != 33.33 {
		t.Errorf("percent = %v, want 33.33", progress.Percent)
	}
	if progress.Completed != 1 || progress.Total != 3 {
		t.Errorf("completed/total = %d/%d, want 1/3", progress.Completed, progress.Total)
	}
	if len(progress.CompletedSessionIDs) != 1 || progress.CompletedSessionIDs[0] != "s1" {
		t.Errorf("completedSessionIDs = %v, want [s1]", progress.CompletedSessionIDs)
	}
}

func TestProgress_NoSessions_ReturnsZeroPercent(t *testing.T) {
	ctx := context.Background()

	enrollRepo := &mockEnrollRepo{
		findByUserAndCourseFn: func(ctx context.Context, userID, courseID string) (*model.Enrollment, error) {
			return &model.Enrollment{ID: "e1"}, nil
		},
	}

	svc := newTestService(enrollRepo, nil, nil, nil)

	progress, err := svc.Progress(ctx, "student-1", "course-1")
	if err != nil {
		t.Fatalf("Progress() error = %v", err)
	}
	if progress.Percent != 0 {
		t.Errorf("percent = %v, want 0", progress.Percent)
	}
}

func TestCompleteCourse_SetsCompletedFlag(t *testing.T) {
	ctx := context.Background()

	var updatedID string
	enrollRepo := &mockEnrollRepo{
		findByUserAndCourseFn: func(ctx context.Context, userID, courseID string) (*model.Enrollment, error) {
			return &model.Enrollment{ID: "e1", UserID: userID, CourseID: courseID}, nil
		},
		updateCompletedFn: func(ctx context.Context, id string, completed bool) error {
			updatedID = id
			if !completed {
				t.Error("expected completed = true")
			}
			return nil
		},
	}

	svc := newTestService(enrollRepo, nil, nil, nil)

	if err := svc.CompleteCourse(ctx, "student-1", "course-1"); err != nil {
		t.Fatalf("CompleteCourse() error = %v", err)
	}
	if updatedID != "e1" {
		t.Errorf("updated enrollment = %q, want %q", updatedID, "e1")
	}
}

func TestCompleteCourse_NoEnrollment_ReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(nil, nil, nil, nil)

	err := svc.CompleteCourse(ctx, "student-1", "course-1")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeEnrollmentNotFound {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeEnrollmentNotFound)
	}
}

func TestGetProfile_SplitsInProgressAndCompleted(t *testing.T) {
	ctx := context.Background()

	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Name: "Hanako", Email: "hanako@example.com"}, nil
		},
	}
	enrollRepo := &mockEnrollRepo{
		listByUserFn: func(ctx context.Context, userID string) ([]repository.EnrollmentWithCourse, error) {
			return []repository.EnrollmentWithCourse{
				{
					Enrollment: model.Enrollment{ID: "e1", Completed: false},
					Course:     model.Course{ID: "c1", Title: "Go入門"},
				},
				{
					Enrollment: model.Enrollment{ID: "e2", Completed: true},
					Course:     model.Course{ID: "c2", Title: "SQL基礎"},
				},
			}, nil
		},
	}
	courseRepo := &mockCourseRepo{
		countSessionsFn: func(ctx context.Context, courseID string) (int, error) {
			return 4, nil
		},
	}
	progressRepo := &mockProgressRepo{
		listCompletedIDsFn: func(ctx context.Context, userID, courseID string) ([]string, error) {
			return []string{"s1", "s2"}, nil
		},
	}

	svc := newTestService(enrollRepo, courseRepo, progressRepo, userRepo)

	profile, err := svc.GetProfile(ctx, "student-1")
	if err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}

	if profile.Name != "Hanako" || profile.Email != "hanako@example.com" {
		t.Errorf("profile identity = %q/%q", profile.Name, profile.Email)
	}
	if profile.EnrolledCount != 2 {
		t.Errorf("enrolledCount = %d, want 2", profile.EnrolledCount)
	}
	if profile.CompletedCount != 1 {
		t.Errorf("completedCount = %d, want 1", profile.CompletedCount)
	}
	if len(profile.InProgress) != 1 || profile.InProgress[0].Course.Title != "Go入門" {
		t.Errorf("inProgress = %+v, want Go入門 only", profile.InProgress)
	}
	if len(profile.CompletedTitles) != 1 || profile.CompletedTitles[0] != "SQL基礎" {
		t.Errorf("completedTitles = %v, want [SQL基礎]", profile.CompletedTitles)
	}

	// 受講中コースの進捗: 2/4 = 50%
	if profile.InProgress[0].Progress.Percent != 50 {
		t.Errorf("percent = %v, want 50", profile.InProgress[0].Progress.Percent)
	}
}
