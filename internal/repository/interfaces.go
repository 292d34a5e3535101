// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/coursehub/internal/model"
)

// ErrDuplicate はDBの一意制約違反を表すセンチネルエラー。
// 同時リクエスト間の競合はアプリケーション側のロックではなく、
// DBの一意制約とこのエラーへの変換で解決する。
var ErrDuplicate = errors.New("duplicate key value")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。
	// メールアドレスが重複している場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error

	// UpdateRole は指定ユーザーの役割を更新し、更新後のユーザーを返す。
	UpdateRole(ctx context.Context, id string, role model.Role) (*model.User, error)
}

// CourseRepository はコースとレッスンの永続化インターフェース。
type CourseRepository interface {
	// FindByID は指定IDのコースを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Course, error)

	// ListAll は全コースを作成日時の降順で返す。
	ListAll(ctx context.Context) ([]*model.Course, error)

	// ListByInstructorID は指定講師のコース一覧を返す。
	ListByInstructorID(ctx context.Context, instructorID string) ([]*model.Course, error)

	// CreateWithSessions はコースとレッスンを同一トランザクションで作成する。
	CreateWithSessions(ctx context.Context, course *model.Course, sessions []*model.CourseSession) error

	// UpdateWithSessions はコース情報を更新し、レッスンを全置換する。
	// 既存レッスンの削除と新レッスンの作成を同一トランザクションで行う。
	UpdateWithSessions(ctx context.Context, course *model.Course, sessions []*model.CourseSession) error

	// DeleteByID は指定IDのコースを削除する。
	// 関連するレッスン・受講登録・進捗・レビューはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error

	// ListSessionsByCourseID はコースのレッスン一覧をposition昇順で返す。
	ListSessionsByCourseID(ctx context.Context, courseID string) ([]*model.CourseSession, error)

	// FindSessionByID は指定IDのレッスンを取得する。見つからない場合はnilを返す。
	FindSessionByID(ctx context.Context, sessionID string) (*model.CourseSession, error)

	// CountSessionsByCourseID はコースのレッスン数を返す。
	CountSessionsByCourseID(ctx context.Context, courseID string) (int, error)

	// RefreshAverageRatings は全コースの平均評価をレビューから再集計する。
	// 集計ワーカーから定期的に呼ばれる。更新されたコース数を返す。
	RefreshAverageRatings(ctx context.Context) (int64, error)
}

// EnrollmentRepository は受講登録の永続化インターフェース。
type EnrollmentRepository interface {
	// Create は受講登録を作成する。
	// 同一ユーザー・同一コースの重複登録はErrDuplicateを返す。
	Create(ctx context.Context, enrollment *model.Enrollment) error

	// FindByUserAndCourse はユーザーIDとコースIDで受講登録を検索する。
	// 見つからない場合はnilを返す。
	FindByUserAndCourse(ctx context.Context, userID, courseID string) (*model.Enrollment, error)

	// ListByUserIDWithCourse はユーザーの受講登録一覧をコース情報付きで返す。
	ListByUserIDWithCourse(ctx context.Context, userID string) ([]EnrollmentWithCourse, error)

	// ListByCourseIDWithUser はコースの受講者一覧をユーザー情報付きで返す。
	// 講師のコース管理画面で使用する。
	ListByCourseIDWithUser(ctx context.Context, courseID string) ([]EnrollmentWithUser, error)

	// UpdateCompleted は受講登録の修了フラグを更新する。
	UpdateCompleted(ctx context.Context, id string, completed bool) error
}

// ProgressRepository は受講者ごとのレッスン進捗の永続化インターフェース。
type ProgressRepository interface {
	// Upsert はレッスン完了状態を冪等にUPSERTする。
	// 既に完了済みの場合も成功として扱う。
	Upsert(ctx context.Context, userID, sessionID string, completed bool) error

	// ListCompletedSessionIDs はユーザーが指定コース内で完了した
	// レッスンIDの一覧を返す。
	ListCompletedSessionIDs(ctx context.Context, userID, courseID string) ([]string, error)
}

// ReviewRepository はレビューとレビューコメントの永続化インターフェース。
type ReviewRepository interface {
	// Create はレビューを作成する。
	// 同一受講者による同一コースへの重複投稿はErrDuplicateを返す。
	Create(ctx context.Context, review *model.Review) error

	// FindByID は指定IDのレビューを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Review, error)

	// ListByCourseID はコースのレビュー一覧を投稿者名付き・新しい順で返す。
	ListByCourseID(ctx context.Context, courseID string) ([]ReviewWithAuthor, error)

	// ListCommentsByCourseID はコース内全レビューへのコメントを
	// 投稿者名付き・古い順で返す。
	ListCommentsByCourseID(ctx context.Context, courseID string) ([]CommentWithAuthor, error)

	// CreateComment はレビューへのコメントを作成する。
	CreateComment(ctx context.Context, comment *model.ReviewComment) error
}

// EnrollmentWithCourse は受講登録とコース情報を結合した構造体。
type EnrollmentWithCourse struct {
	model.Enrollment
	Course model.Course
}

// EnrollmentWithUser は受講登録と受講者情報を結合した構造体。
type EnrollmentWithUser struct {
	model.Enrollment
	UserName  string
	UserEmail string
}

// ReviewWithAuthor はレビューと投稿者名を結合した構造体。
type ReviewWithAuthor struct {
	model.Review
	StudentName string
}

// CommentWithAuthor はレビューコメントと投稿者名を結合した構造体。
type CommentWithAuthor struct {
	model.ReviewComment
	UserName string
}
