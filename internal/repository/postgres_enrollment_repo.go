package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/coursehub/internal/model"
)

// PostgresEnrollmentRepo はPostgreSQLを使用した受講登録リポジトリ。
type PostgresEnrollmentRepo struct {
	db *sql.DB
}

// NewPostgresEnrollmentRepo はPostgresEnrollmentRepoを生成する。
func NewPostgresEnrollmentRepo(db *sql.DB) *PostgresEnrollmentRepo {
	return &PostgresEnrollmentRepo{db: db}
}

// Create は受講登録を作成する。
// 同一ユーザー・同一コースの重複登録はErrDuplicateを返す。
// 同時登録の競合はDBの一意制約で解決される。
func (r *PostgresEnrollmentRepo) Create(ctx context.Context, enrollment *model.Enrollment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO enrollments (id, user_id, course_id, completed, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		enrollment.ID, enrollment.UserID, enrollment.CourseID,
		enrollment.Completed, enrollment.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s course %s: %w", enrollment.UserID, enrollment.CourseID, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert enrollment: %w", err)
	}
	return nil
}

// FindByUserAndCourse はユーザーIDとコースIDで受講登録を検索する。
// 見つからない場合はnilを返す。
func (r *PostgresEnrollmentRepo) FindByUserAndCourse(ctx context.Context, userID, courseID string) (*model.Enrollment, error) {
	e := &model.Enrollment{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, course_id, completed, created_at
		 FROM enrollments
		 WHERE user_id = $1 AND course_id = $2`,
		userID, courseID,
	).Scan(&e.ID, &e.UserID, &e.CourseID, &e.Completed, &e.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find enrollment: %w", err)
	}

	return e, nil
}

// ListByUserIDWithCourse はユーザーの受講登録一覧をコース情報付きで返す。
func (r *PostgresEnrollmentRepo) ListByUserIDWithCourse(ctx context.Context, userID string) ([]EnrollmentWithCourse, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT e.id, e.user_id, e.course_id, e.completed, e.created_at,
		        c.id, c.title, c.description, c.category, c.instructor_id,
		        c.average_rating, c.created_at, c.updated_at
		 FROM enrollments e
		 JOIN courses c ON c.id = e.course_id
		 WHERE e.user_id = $1
		 ORDER BY e.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	defer rows.Close()

	var results []EnrollmentWithCourse
	for rows.Next() {
		var ec EnrollmentWithCourse
		if err := rows.Scan(
			&ec.ID, &ec.UserID, &ec.CourseID, &ec.Completed, &ec.CreatedAt,
			&ec.Course.ID, &ec.Course.Title, &ec.Course.Description, &ec.Course.Category,
			&ec.Course.InstructorID, &ec.Course.AverageRating,
			&ec.Course.CreatedAt, &ec.Course.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan enrollment: %w", err)
		}
		results = append(results, ec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate enrollments: %w", err)
	}

	return results, nil
}

// ListByCourseIDWithUser はコースの受講者一覧をユーザー情報付きで返す。
func (r *PostgresEnrollmentRepo) ListByCourseIDWithUser(ctx context.Context, courseID string) ([]EnrollmentWithUser, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT e.id, e.user_id, e.course_id, e.completed, e.created_at,
		        u.name, u.email
		 FROM enrollments e
		 JOIN users u ON u.id = e.user_id
		 WHERE e.course_id = $1
		 ORDER BY e.created_at ASC`,
		courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list course enrollments: %w", err)
	}
	defer rows.Close()

	var results []EnrollmentWithUser
	for rows.Next() {
		var eu EnrollmentWithUser
		if err := rows.Scan(
			&eu.ID, &eu.UserID, &eu.CourseID, &eu.Completed, &eu.CreatedAt,
			&eu.UserName, &eu.UserEmail,
		); err != nil {
			return nil, fmt.Errorf("failed to scan course enrollment: %w", err)
		}
		results = append(results, eu)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate course enrollments: %w", err)
	}

	return results, nil
}

// UpdateCompleted は受講登録の修了フラグを更新する。
func (r *PostgresEnrollmentRepo) UpdateCompleted(ctx context.Context, id string, completed bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE enrollments SET completed = $2 WHERE id = $1`,
		id, completed,
	)
	if err != nil {
		return fmt.Errorf("failed to update enrollment: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("enrollment not found: %s", id)
	}
	return nil
}

// compile-time interface check
var _ EnrollmentRepository = (*PostgresEnrollmentRepo)(nil)
