package course

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/coursehub/internal/model"
	"github.com/hitoshi/coursehub/internal/repository"
)

// LinkChecker は動画URL検証のインターフェース。
type LinkChecker interface {
	Check(ctx context.Context, rawURL string) error
}

// SessionInput はコース作成・更新時のレッスン入力。
type SessionInput struct {
	Title    string
	VideoURL string
	Content  string
}

// CourseInput はコース作成・更新時の入力。
type CourseInput struct {
	Title       string
	Description string
	Category    string
	Sessions    []SessionInput
}

// CourseDetail はコースとレッスン一覧を結合したドメインオブジェクト。
type CourseDetail struct {
	Course   *model.Course
	Sessions []*model.CourseSession
}

// InstructorCourse は講師向けのコースと受講者一覧。
type InstructorCourse struct {
	Course      *model.Course
	Enrollments []repository.EnrollmentWithUser
}

// Service はコース管理のサービス層。
// コースの作成・更新・削除、一覧取得のビジネスロジックを提供する。
type Service struct {
	courseRepo repository.CourseRepository
	enrollRepo repository.EnrollmentRepository
	links      LinkChecker
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(courseRepo repository.CourseRepository, enrollRepo repository.EnrollmentRepository, links LinkChecker) *Service {
	return &Service{
		courseRepo: courseRepo,
		enrollRepo: enrollRepo,
		links:      links,
	}
}

// CreateCourse はコースとレッスンを作成する。
// レッスンの表示順は入力配列の順序で決まる。
// 全レッスンの動画URLが検証を通過した場合のみ作成される。
func (s *Service) CreateCourse(ctx context.Context, instructorID string, input CourseInput) (*CourseDetail, error) {
	if err := validateCourseInput(input); err != nil {
		return nil, err
	}
	if err := s.checkVideoURLs(ctx, input.Sessions); err != nil {
		return nil, err
	}

	now := time.Now()
	c := &model.Course{
		ID:           uuid.New().String(),
		Title:        strings.TrimSpace(input.Title),
		Description:  strings.TrimSpace(input.Description),
		Category:     strings.TrimSpace(input.Category),
		InstructorID: instructorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	sessions := buildSessions(c.ID, input.Sessions, now)

	if err := s.courseRepo.CreateWithSessions(ctx, c, sessions); err != nil {
		return nil, fmt.Errorf("コースの作成に失敗しました: %w", err)
	}

	slog.Info("course created",
		slog.String("course_id", c.ID),
		slog.String("instructor_id", instructorID),
		slog.Int("session_count", len(sessions)),
	)

	return &CourseDetail{Course: c, Sessions: sessions}, nil
}

// ListAll は公開コース一覧を返す。認証不要の公開APIから使われる。
func (s *Service) ListAll(ctx context.Context) ([]*model.Course, error) {
	courses, err := s.courseRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("コース一覧の取得に失敗しました: %w", err)
	}
	return courses, nil
}

// GetCourse はコース詳細をレッスン一覧付きで返す。
func (s *Service) GetCourse(ctx context.Context, courseID string) (*CourseDetail, error) {
	c, err := s.courseRepo.FindByID(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("コースの取得に失敗しました: %w", err)
	}
	if c == nil {
		return nil, model.NewCourseNotFoundError(courseID)
	}

	sessions, err := s.courseRepo.ListSessionsByCourseID(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("レッスン一覧の取得に失敗しました: %w", err)
	}

	return &CourseDetail{Course: c, Sessions: sessions}, nil
}

// ListInstructorCourses は講師のコース一覧を受講者情報付きで返す。
func (s *Service) ListInstructorCourses(ctx context.Context, instructorID string) ([]InstructorCourse, error) {
	courses, err := s.courseRepo.ListByInstructorID(ctx, instructorID)
	if err != nil {
		return nil, fmt.Errorf("コース一覧の取得に失敗しました: %w", err)
	}

	results := make([]InstructorCourse, 0, len(courses))
	for _, c := range courses {
		enrollments, err := s.enrollRepo.ListByCourseIDWithUser(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("受講者一覧の取得に失敗しました: %w", err)
		}
		results = append(results, InstructorCourse{Course: c, Enrollments: enrollments})
	}

	return results, nil
}

// UpdateCourse はコース情報を更新し、レッスンを全置換する。
// コースを所有する講師のみが更新できる。
func (s *Service) UpdateCourse(ctx context.Context, instructorID, courseID string, input CourseInput) (*CourseDetail, error) {
	if err := validateCourseInput(input); err != nil {
		return nil, err
	}

	existing, err := s.courseRepo.FindByID(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("コースの取得に失敗しました: %w", err)
	}
	if existing == nil {
		return nil, model.NewCourseNotFoundError(courseID)
	}
	if existing.InstructorID != instructorID {
		return nil, model.NewForbiddenError(model.RoleInstructor)
	}

	if err := s.checkVideoURLs(ctx, input.Sessions); err != nil {
		return nil, err
	}

	now := time.Now()
	updated := &model.Course{
		ID:            existing.ID,
		Title:         strings.TrimSpace(input.Title),
		Description:   strings.TrimSpace(input.Description),
		Category:      strings.TrimSpace(input.Category),
		InstructorID:  existing.InstructorID,
		AverageRating: existing.AverageRating,
		CreatedAt:     existing.CreatedAt,
		UpdatedAt:     now,
	}
	sessions := buildSessions(updated.ID, input.Sessions, now)

	if err := s.courseRepo.UpdateWithSessions(ctx, updated, sessions); err != nil {
		return nil, fmt.Errorf("コースの更新に失敗しました: %w", err)
	}

	slog.Info("course updated",
		slog.String("course_id", courseID),
		slog.String("instructor_id", instructorID),
	)

	return &CourseDetail{Course: updated, Sessions: sessions}, nil
}

// DeleteCourse はコースを削除する。
// 関連するレッスン・受講登録・進捗・レビューはCASCADE削除される。
// コースを所有する講師のみが削除できる。
func (s *Service) DeleteCourse(ctx context.Context, instructorID, courseID string) error {
	existing, err := s.courseRepo.FindByID(ctx, courseID)
	if err != nil {
		return fmt.Errorf("コースの取得に失敗しました: %w", err)
	}
	if existing == nil {
		return model.NewCourseNotFoundError(courseID)
	}
	if existing.InstructorID != instructorID {
		return model.NewForbiddenError(model.RoleInstructor)
	}

	if err := s.courseRepo.DeleteByID(ctx, courseID); err != nil {
		return fmt.Errorf("コースの削除に失敗しました: %w", err)
	}

	slog.Info("course deleted",
		slog.String("course_id", courseID),
		slog.String("instructor_id", instructorID),
	)

	return nil
}

func (s *Service) checkVideoURLs(ctx context.Context, sessions []SessionInput) error {
	for _, sess := range sessions {
		if err := s.links.Check(ctx, sess.VideoURL); err != nil {
			return err
		}
	}
	return nil
}

func validateCourseInput(input CourseInput) error {
	if strings.TrimSpace(input.Title) == "" {
		return model.NewValidationError("タイトルを入力してください")
	}
	if strings.TrimSpace(input.Description) == "" {
		return model.NewValidationError("説明を入力してください")
	}
	if strings.TrimSpace(input.Category) == "" {
		return model.NewValidationError("カテゴリを入力してください")
	}
	for _, sess := range input.Sessions {
		if strings.TrimSpace(sess.Title) == "" {
			return model.NewValidationError("レッスンのタイトルを入力してください")
		}
		if strings.TrimSpace(sess.VideoURL) == "" {
			return model.NewValidationError("レッスンの動画URLを入力してください")
		}
	}
	return nil
}

func buildSessions(courseID string, inputs []SessionInput, now time.Time) []*model.CourseSession {
	sessions := make([]*model.CourseSession, len(inputs))
	for i, in := range inputs {
		sessions[i] = &model.CourseSession{
			ID:        uuid.New().String(),
			CourseID:  courseID,
			Title:     strings.TrimSpace(in.Title),
			VideoURL:  strings.TrimSpace(in.VideoURL),
			Content:   in.Content,
			Position:  i,
			CreatedAt: now,
		}
	}
	return sessions
}
