package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/coursehub/internal/model"
)

// PostgresCourseRepo はPostgreSQLを使用したコースリポジトリ。
type PostgresCourseRepo struct {
	db *sql.DB
}

// NewPostgresCourseRepo はPostgresCourseRepoを生成する。
func NewPostgresCourseRepo(db *sql.DB) *PostgresCourseRepo {
	return &PostgresCourseRepo{db: db}
}

const courseColumns = `id, title, description, category, instructor_id, average_rating, created_at, updated_at`

// FindByID は指定IDのコースを取得する。見つからない場合はnilを返す。
func (r *PostgresCourseRepo) FindByID(ctx context.Context, id string) (*model.Course, error) {
	course := &model.Course{}
	err := r.db.QueryRowContext(ctx,
		`SELECT `+courseColumns+` FROM courses WHERE id = $1`,
		id,
	).Scan(
		&course.ID, &course.Title, &course.Description, &course.Category,
		&course.InstructorID, &course.AverageRating, &course.CreatedAt, &course.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find course: %w", err)
	}

	return course, nil
}

// ListAll は全コースを作成日時の降順で返す。
func (r *PostgresCourseRepo) ListAll(ctx context.Context) ([]*model.Course, error) {
	return r.list(ctx, `SELECT `+courseColumns+` FROM courses ORDER BY created_at DESC`)
}

// ListByInstructorID は指定講師のコース一覧を返す。
func (r *PostgresCourseRepo) ListByInstructorID(ctx context.Context, instructorID string) ([]*model.Course, error) {
	return r.list(ctx,
		`SELECT `+courseColumns+` FROM courses WHERE instructor_id = $1 ORDER BY created_at DESC`,
		instructorID,
	)
}

func (r *PostgresCourseRepo) list(ctx context.Context, query string, args ...any) ([]*model.Course, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}
	defer rows.Close()

	var courses []*model.Course
	for rows.Next() {
		course := &model.Course{}
		if err := rows.Scan(
			&course.ID, &course.Title, &course.Description, &course.Category,
			&course.InstructorID, &course.AverageRating, &course.CreatedAt, &course.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan course: %w", err)
		}
		courses = append(courses, course)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate courses: %w", err)
	}

	return courses, nil
}

// CreateWithSessions はコースとレッスンを同一トランザクションで作成する。
func (r *PostgresCourseRepo) CreateWithSessions(ctx context.Context, course *model.Course, sessions []*model.CourseSession) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO courses (id, title, description, category, instructor_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		course.ID, course.Title, course.Description, course.Category,
		course.InstructorID, course.CreatedAt, course.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert course: %w", err)
	}

	if err := insertSessions(ctx, tx, sessions); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// UpdateWithSessions はコース情報を更新し、レッスンを全置換する。
func (r *PostgresCourseRepo) UpdateWithSessions(ctx context.Context, course *model.Course, sessions []*model.CourseSession) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE courses SET title = $2, description = $3, category = $4, updated_at = now()
		 WHERE id = $1`,
		course.ID, course.Title, course.Description, course.Category,
	)
	if err != nil {
		return fmt.Errorf("failed to update course: %w", err)
	}

	// 既存レッスンを全削除してから作り直す。
	// 進捗レコードはCASCADE削除されるため、更新後は再度完了マークが必要になる。
	_, err = tx.ExecContext(ctx, `DELETE FROM course_sessions WHERE course_id = $1`, course.ID)
	if err != nil {
		return fmt.Errorf("failed to delete course sessions: %w", err)
	}

	if err := insertSessions(ctx, tx, sessions); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func insertSessions(ctx context.Context, tx *sql.Tx, sessions []*model.CourseSession) error {
	for _, s := range sessions {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO course_sessions (id, course_id, title, video_url, content, position, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			s.ID, s.CourseID, s.Title, s.VideoURL, s.Content, s.Position, s.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert course session: %w", err)
		}
	}
	return nil
}

// DeleteByID は指定IDのコースを削除する。
// レッスン・受講登録・レビューはCASCADE削除される。
func (r *PostgresCourseRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete course: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("course not found: %s", id)
	}
	return nil
}

// ListSessionsByCourseID はコースのレッスン一覧をposition昇順で返す。
func (r *PostgresCourseRepo) ListSessionsByCourseID(ctx context.Context, courseID string) ([]*model.CourseSession, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, course_id, title, video_url, content, position, created_at
		 FROM course_sessions
		 WHERE course_id = $1
		 ORDER BY position ASC`,
		courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list course sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.CourseSession
	for rows.Next() {
		s := &model.CourseSession{}
		if err := rows.Scan(&s.ID, &s.CourseID, &s.Title, &s.VideoURL, &s.Content, &s.Position, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan course session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate course sessions: %w", err)
	}

	return sessions, nil
}

// FindSessionByID は指定IDのレッスンを取得する。見つからない場合はnilを返す。
func (r *PostgresCourseRepo) FindSessionByID(ctx context.Context, sessionID string) (*model.CourseSession, error) {
	s := &model.CourseSession{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, course_id, title, video_url, content, position, created_at
		 FROM course_sessions WHERE id = $1`,
		sessionID,
	).Scan(&s.ID, &s.CourseID, &s.Title, &s.VideoURL, &s.Content, &s.Position, &s.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find course session: %w", err)
	}

	return s, nil
}

// CountSessionsByCourseID はコースのレッスン数を返す。
func (r *PostgresCourseRepo) CountSessionsByCourseID(ctx context.Context, courseID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM course_sessions WHERE course_id = $1`,
		courseID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count course sessions: %w", err)
	}
	return count, nil
}

// RefreshAverageRatings は全コースの平均評価をレビューから再集計する。
// レビューのないコースは0にリセットされる。
func (r *PostgresCourseRepo) RefreshAverageRatings(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE courses c
		 SET average_rating = COALESCE(agg.avg_rating, 0)
		 FROM (SELECT course_id, AVG(rating) AS avg_rating FROM reviews GROUP BY course_id) agg
		 WHERE agg.course_id = c.id AND c.average_rating IS DISTINCT FROM COALESCE(agg.avg_rating, 0)`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to refresh average ratings: %w", err)
	}
	updated, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return updated, nil
}

// compile-time interface check
var _ CourseRepository = (*PostgresCourseRepo)(nil)
