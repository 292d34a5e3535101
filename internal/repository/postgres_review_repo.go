package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/coursehub/internal/model"
)

// PostgresReviewRepo はPostgreSQLを使用したレビューリポジトリ。
type PostgresReviewRepo struct {
	db *sql.DB
}

// NewPostgresReviewRepo はPostgresReviewRepoを生成する。
func NewPostgresReviewRepo(db *sql.DB) *PostgresReviewRepo {
	return &PostgresReviewRepo{db: db}
}

// Create はレビューを作成する。
// 同一受講者による同一コースへの重複投稿はErrDuplicateを返す。
func (r *PostgresReviewRepo) Create(ctx context.Context, review *model.Review) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reviews (id, course_id, student_id, rating, comment, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		review.ID, review.CourseID, review.StudentID,
		review.Rating, review.Comment, review.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("course %s student %s: %w", review.CourseID, review.StudentID, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert review: %w", err)
	}
	return nil
}

// FindByID は指定IDのレビューを取得する。見つからない場合はnilを返す。
func (r *PostgresReviewRepo) FindByID(ctx context.Context, id string) (*model.Review, error) {
	review := &model.Review{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, course_id, student_id, rating, comment, created_at
		 FROM reviews WHERE id = $1`,
		id,
	).Scan(&review.ID, &review.CourseID, &review.StudentID, &review.Rating, &review.Comment, &review.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find review: %w", err)
	}

	return review, nil
}

// ListByCourseID はコースのレビュー一覧を投稿者名付き・新しい順で返す。
func (r *PostgresReviewRepo) ListByCourseID(ctx context.Context, courseID string) ([]ReviewWithAuthor, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT rv.id, rv.course_id, rv.student_id, rv.rating, rv.comment, rv.created_at,
		        u.name
		 FROM reviews rv
		 JOIN users u ON u.id = rv.student_id
		 WHERE rv.course_id = $1
		 ORDER BY rv.created_at DESC`,
		courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []ReviewWithAuthor
	for rows.Next() {
		var ra ReviewWithAuthor
		if err := rows.Scan(
			&ra.ID, &ra.CourseID, &ra.StudentID, &ra.Rating, &ra.Comment, &ra.CreatedAt,
			&ra.StudentName,
		); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, ra)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reviews: %w", err)
	}

	return reviews, nil
}

// ListCommentsByCourseID はコース内全レビューへのコメントを
// 投稿者名付き・古い順で返す。
func (r *PostgresReviewRepo) ListCommentsByCourseID(ctx context.Context, courseID string) ([]CommentWithAuthor, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT rc.id, rc.review_id, rc.user_id, rc.body, rc.created_at,
		        u.name
		 FROM review_comments rc
		 JOIN reviews rv ON rv.id = rc.review_id
		 JOIN users u ON u.id = rc.user_id
		 WHERE rv.course_id = $1
		 ORDER BY rc.created_at ASC`,
		courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list review comments: %w", err)
	}
	defer rows.Close()

	var comments []CommentWithAuthor
	for rows.Next() {
		var ca CommentWithAuthor
		if err := rows.Scan(&ca.ID, &ca.ReviewID, &ca.UserID, &ca.Body, &ca.CreatedAt, &ca.UserName); err != nil {
			return nil, fmt.Errorf("failed to scan review comment: %w", err)
		}
		comments = append(comments, ca)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate review comments: %w", err)
	}

	return comments, nil
}

// CreateComment はレビューへのコメントを作成する。
func (r *PostgresReviewRepo) CreateComment(ctx context.Context, comment *model.ReviewComment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO review_comments (id, review_id, user_id, body, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		comment.ID, comment.ReviewID, comment.UserID, comment.Body, comment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert review comment: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ReviewRepository = (*PostgresReviewRepo)(nil)
