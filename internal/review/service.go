// Package review はコースレビューとコメントのドメインロジックを提供する。
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/coursehub/internal/model"
	"github.com/hitoshi/coursehub/internal/repository"
)

// Sanitizer は投稿テキストのサニタイズインターフェース。
// security.ContentSanitizerServiceを抽象化してテスタビリティを向上させる。
type Sanitizer interface {
	SanitizeText(raw string) string
}

// ReviewThread はレビューとコメント一覧を結合したドメインオブジェクト。
type ReviewThread struct {
	Review      model.Review
	StudentName string
	Comments    []repository.CommentWithAuthor
}

// Service はレビュー管理のサービス層。
// レビューの投稿・一覧取得、コメント投稿のビジネスロジックを提供する。
type Service struct {
	reviewRepo repository.ReviewRepository
	courseRepo repository.CourseRepository
	enrollRepo repository.EnrollmentRepository
	sanitizer  Sanitizer
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	reviewRepo repository.ReviewRepository,
	courseRepo repository.CourseRepository,
	enrollRepo repository.EnrollmentRepository,
	sanitizer Sanitizer,
) *Service {
	return &Service{
		reviewRepo: reviewRepo,
		courseRepo: courseRepo,
		enrollRepo: enrollRepo,
		sanitizer:  sanitizer,
	}
}

// CreateReview はコースへのレビューを投稿する。
// 1人の受講者は1コースにつき1件のみ投稿でき、2件目はREVIEW_EXISTSとなる。
// 評価は1〜5の整数。本文はサニタイズしてから保存する。
func (s *Service) CreateReview(ctx context.Context, studentID, courseID string, rating int, comment string) (*model.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, model.NewValidationError("評価には1から5を指定してください")
	}

	c, err := s.courseRepo.FindByID(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("コースの取得に失敗しました: %w", err)
	}
	if c == nil {
		return nil, model.NewCourseNotFoundError(courseID)
	}

	enrollment, err := s.enrollRepo.FindByUserAndCourse(ctx, studentID, courseID)
	if err != nil {
		return nil, fmt.Errorf("受講登録の取得に失敗しました: %w", err)
	}
	if enrollment == nil {
		return nil, model.NewNotEnrolledError()
	}

	review := &model.Review{
		ID:        uuid.New().String(),
		CourseID:  courseID,
		StudentID: studentID,
		Rating:    rating,
		Comment:   s.sanitizer.SanitizeText(comment),
		CreatedAt: time.Now(),
	}

	if err := s.reviewRepo.Create(ctx, review); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewReviewExistsError()
		}
		return nil, fmt.Errorf("レビューの投稿に失敗しました: %w", err)
	}

	slog.Info("review created",
		slog.String("review_id", review.ID),
		slog.String("course_id", courseID),
		slog.Int("rating", rating),
	)

	return review, nil
}

// ListReviews はコースのレビュー一覧をコメント付きで返す。
// レビューは新しい順、各レビュー内のコメントは古い順に並ぶ。
func (s *Service) ListReviews(ctx context.Context, courseID string) ([]ReviewThread, error) {
	c, err := s.courseRepo.FindByID(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("コースの取得に失敗しました: %w", err)
	}
	if c == nil {
		return nil, model.NewCourseNotFoundError(courseID)
	}

	reviews, err := s.reviewRepo.ListByCourseID(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("レビュー一覧の取得に失敗しました: %w", err)
	}

	comments, err := s.reviewRepo.ListCommentsByCourseID(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("コメント一覧の取得に失敗しました: %w", err)
	}

	// レビューIDごとにコメントを振り分ける（コメントは取得時点で古い順）
	byReview := make(map[string][]repository.CommentWithAuthor)
	for _, comment := range comments {
		byReview[comment.ReviewID] = append(byReview[comment.ReviewID], comment)
	}

	threads := make([]ReviewThread, len(reviews))
	for i, r := range reviews {
		threads[i] = ReviewThread{
			Review:      r.Review,
			StudentName: r.StudentName,
			Comments:    byReview[r.ID],
		}
	}

	return threads, nil
}

// AddComment はレビューへの返信コメントを投稿する。
// 認証済みユーザーなら誰でも投稿できる。本文はサニタイズしてから保存する。
func (s *Service) AddComment(ctx context.Context, userID, reviewID, body string) (*model.ReviewComment, error) {
	sanitized := strings.TrimSpace(s.sanitizer.SanitizeText(body))
	if sanitized == "" {
		return nil, model.NewValidationError("コメントを入力してください")
	}

	review, err := s.reviewRepo.FindByID(ctx, reviewID)
	if err != nil {
		return nil, fmt.Errorf("レビューの取得に失敗しました: %w", err)
	}
	if review == nil {
		return nil, model.NewReviewNotFoundError(reviewID)
	}

	comment := &model.ReviewComment{
		ID:        uuid.New().String(),
		ReviewID:  reviewID,
		UserID:    userID,
		Body:      sanitized,
		CreatedAt: time.Now(),
	}

	if err := s.reviewRepo.CreateComment(ctx, comment); err != nil {
		return nil, fmt.Errorf("コメントの投稿に失敗しました: %w", err)
	}

	slog.Info("review comment created",
		slog.String("comment_id", comment.ID),
		slog.String("review_id", reviewID),
	)

	return comment, nil
}
