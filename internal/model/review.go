package model

import "time"

// Review は受講者によるコースのレビューを表す。
// 1人の受講者は1コースにつき1件のみ投稿できる（DBの一意制約で保護）。
type Review struct {
	ID        string
	CourseID  string
	StudentID string
	Rating    int
	Comment   string
	CreatedAt time.Time
}

// ReviewComment はレビューへの返信コメントを表す。
// 認証済みユーザーなら誰でも投稿できる。
type ReviewComment struct {
	ID        string
	ReviewID  string
	UserID    string
	Body      string
	CreatedAt time.Time
}
