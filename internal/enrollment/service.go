// Package enrollment は受講登録と学習進捗のドメインロジックを提供する。
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/coursehub/internal/model"
	"github.com/hitoshi/coursehub/internal/repository"
)

// MetricsRecorder は受講イベントのメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordEnrollment()
	RecordSessionCompleted()
}

// EnrolledCourse は受講中コースと進捗を結合したドメインオブジェクト。
type EnrolledCourse struct {
	Enrollment model.Enrollment
	Course     model.Course
	Progress   model.CourseProgress
}

// Profile は受講者のプロフィール情報。
// 受講中コース（進捗付き）と修了済みコースを分けて保持する。
type Profile struct {
	Name            string
	Email           string
	InProgress      []EnrolledCourse
	CompletedTitles []string
	EnrolledCount   int
	CompletedCount  int
}

// Service は受講登録・進捗管理のサービス層。
type Service struct {
	enrollRepo   repository.EnrollmentRepository
	courseRepo   repository.CourseRepository
	progressRepo repository.ProgressRepository
	userRepo     repository.UserRepository
	metrics      MetricsRecorder
}

// NewService はServiceの新しいインスタンスを生成する。
// metricsはnilを許容し、その場合は記録をスキップする。
func NewService(
	enrollRepo repository.EnrollmentRepository,
	courseRepo repository.CourseRepository,
	progressRepo repository.ProgressRepository,
	userRepo repository.UserRepository,
	metrics MetricsRecorder,
) *Service {
	return &Service{
		enrollRepo:   enrollRepo,
		courseRepo:   courseRepo,
		progressRepo: progressRepo,
		userRepo:     userRepo,
		metrics:      metrics,
	}
}

// Enroll は受講登録を作成する。
// 同一コースへの重複登録はALREADY_ENROLLEDとして拒否される。
// 同時リクエスト間の競合はDBの一意制約が調停する。
func (s *Service) Enroll(ctx context.Context, userID, courseID string) (*model.Enrollment, error) {
	c, err := s.courseRepo.FindByID(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("コースの取得に失敗しました: %w", err)
	}
	if c == nil {
		return nil, model.NewCourseNotFoundError(courseID)
	}

	enrollment := &model.Enrollment{
		ID:        uuid.New().String(),
		UserID:    userID,
		CourseID:  courseID,
		CreatedAt: time.Now(),
	}

	if err := s.enrollRepo.Create(ctx, enrollment); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewAlreadyEnrolledError()
		}
		return nil, fmt.Errorf("受講登録に失敗しました: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordEnrollment()
	}
	slog.Info("student enrolled",
		slog.String("user_id", userID),
		slog.String("course_id", courseID),
	)

	return enrollment, nil
}

// ListMyCourses は受講者の登録コース一覧を進捗付きで返す。
func (s *Service) ListMyCourses(ctx context.Context, userID string) ([]EnrolledCourse, error) {
	rows, err := s.enrollRepo.ListByUserIDWithCourse(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("受講コース一覧の取得に失敗しました: %w", err)
	}

	results := make([]EnrolledCourse, 0, len(rows))
	for _, row := range rows {
		progress, err := s.computeProgress(ctx, userID, row.Course.ID)
		if err != nil {
			return nil, err
		}
		results = append(results, EnrolledCourse{
			Enrollment: row.Enrollment,
			Course:     row.Course,
			Progress:   *progress,
		})
	}

	return results, nil
}

// CourseSessions は受講コースのレッスン一覧を返す。
// 受講登録のないコースへのアクセスはNOT_ENROLLEDとして拒否される。
func (s *Service) CourseSessions(ctx context.Context, userID, courseID string) ([]*model.CourseSession, error) {
	if err := s.requireEnrollment(ctx, userID, courseID); err != nil {
		return nil, err
	}

	sessions, err := s.courseRepo.ListSessionsByCourseID(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("レッスン一覧の取得に失敗しました: %w", err)
	}
	return sessions, nil
}

// CompleteSession はレッスンを完了済みとしてマークする。
// 完了マークは冪等で、既に完了済みの場合も成功として扱う。
func (s *Service) CompleteSession(ctx context.Context, userID, sessionID string) error {
	sess, err := s.courseRepo.FindSessionByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("レッスンの取得に失敗しました: %w", err)
	}
	if sess == nil {
		return model.NewSessionNotFoundError(sessionID)
	}

	if err := s.requireEnrollment(ctx, userID, sess.CourseID); err != nil {
		return err
	}

	if err := s.progressRepo.Upsert(ctx, userID, sessionID, true); err != nil {
		return fmt.Errorf("進捗の更新に失敗しました: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordSessionCompleted()
	}
	slog.Info("session completed",
		slog.String("user_id", userID),
		slog.String("session_id", sessionID),
	)

	return nil
}

// Progress はコースの学習進捗を返す。
// 受講登録のないコースはNOT_ENROLLEDとして拒否される。
func (s *Service) Progress(ctx context.Context, userID, courseID string) (*model.CourseProgress, error) {
	if err := s.requireEnrollment(ctx, userID, courseID); err != nil {
		return nil, err
	}
	return s.computeProgress(ctx, userID, courseID)
}

// CompleteCourse は受講登録を修了済みとしてマークする。
func (s *Service) CompleteCourse(ctx context.Context, userID, courseID string) error {
	enrollment, err := s.enrollRepo.FindByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		return fmt.Errorf("受講登録の取得に失敗しました: %w", err)
	}
	if enrollment == nil {
		return model.NewEnrollmentNotFoundError()
	}

	if err := s.enrollRepo.UpdateCompleted(ctx, enrollment.ID, true); err != nil {
		return fmt.Errorf("修了フラグの更新に失敗しました: %w", err)
	}

	slog.Info("course completed",
		slog.String("user_id", userID),
		slog.String("course_id", courseID),
	)

	return nil
}

// GetProfile は受講者のプロフィール情報を返す。
// 受講中コースには進捗を付与し、修了済みコースはタイトルのみ返す。
func (s *Service) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	rows, err := s.enrollRepo.ListByUserIDWithCourse(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("受講コース一覧の取得に失敗しました: %w", err)
	}

	profile := &Profile{
		Name:          user.Name,
		Email:         user.Email,
		EnrolledCount: len(rows),
	}

	for _, row := range rows {
		if row.Completed {
			profile.CompletedTitles = append(profile.CompletedTitles, row.Course.Title)
			profile.CompletedCount++
			continue
		}

		progress, err := s.computeProgress(ctx, userID, row.Course.ID)
		if err != nil {
			return nil, err
		}
		profile.InProgress = append(profile.InProgress, EnrolledCourse{
			Enrollment: row.Enrollment,
			Course:     row.Course,
			Progress:   *progress,
		})
	}

	return profile, nil
}

func (s *Service) requireEnrollment(ctx context.Context, userID, courseID string) error {
	enrollment, err := s.enrollRepo.FindByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		return fmt.Errorf("受講登録の取得に失敗しました: %w", err)
	}
	if enrollment == nil {
		return model.NewNotEnrolledError()
	}
	return nil
}

// computeProgress は完了レッスン数/総レッスン数から進捗を算出する。
// 百分率は小数第2位へ丸める。レッスンのないコースは0%とする。
func (s *Service) computeProgress(ctx context.Context, userID, courseID string) (*model.CourseProgress, error) {
	total, err := s.courseRepo.CountSessionsByCourseID(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("レッスン数の取得に失敗しました: %w", err)
	}

	completedIDs, err := s.progressRepo.ListCompletedSessionIDs(ctx, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("完了レッスンの取得に失敗しました: %w", err)
	}

	progress := &model.CourseProgress{
		Completed:           len(completedIDs),
		Total:               total,
		CompletedSessionIDs: completedIDs,
	}
	if total > 0 {
		progress.Percent = math.Round(float64(len(completedIDs))/float64(total)*100*100) / 100
	}

	return progress, nil
}
