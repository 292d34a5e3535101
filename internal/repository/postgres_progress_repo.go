package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresProgressRepo はPostgreSQLを使用したレッスン進捗リポジトリ。
type PostgresProgressRepo struct {
	db *sql.DB
}

// NewPostgresProgressRepo はPostgresProgressRepoを生成する。
func NewPostgresProgressRepo(db *sql.DB) *PostgresProgressRepo {
	return &PostgresProgressRepo{db: db}
}

// Upsert はレッスン完了状態を冪等にUPSERTする。
// 同じレッスンを複数回完了マークしても結果は変わらない。
func (r *PostgresProgressRepo) Upsert(ctx context.Context, userID, sessionID string, completed bool) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO session_progress (user_id, session_id, completed, completed_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (user_id, session_id)
		 DO UPDATE SET completed = EXCLUDED.completed, completed_at = now()`,
		userID, sessionID, completed,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session progress: %w", err)
	}
	return nil
}

// ListCompletedSessionIDs はユーザーが指定コース内で完了した
// レッスンIDの一覧を返す。
func (r *PostgresProgressRepo) ListCompletedSessionIDs(ctx context.Context, userID, courseID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT sp.session_id
		 FROM session_progress sp
		 JOIN course_sessions cs ON cs.id = sp.session_id
		 WHERE sp.user_id = $1 AND sp.completed = true AND cs.course_id = $2`,
		userID, courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list completed sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate completed sessions: %w", err)
	}

	return ids, nil
}

// compile-time interface check
var _ ProgressRepository = (*PostgresProgressRepo)(nil)
