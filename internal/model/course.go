// Package model はドメインモデルを定義する。
package model

import "time"

// Course は講師が作成するコースを表す。
type Course struct {
	ID            string
	Title         string
	Description   string
	Category      string
	InstructorID  string
	AverageRating float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CourseSession はコース内の1レッスン（動画＋教材）を表す。
// Positionはコース内での表示順序。
type CourseSession struct {
	ID        string
	CourseID  string
	Title     string
	VideoURL  string
	Content   string
	Position  int
	CreatedAt time.Time
}

// Enrollment は受講者のコース登録を表す。
// (UserID, CourseID) の組はDBの一意制約で保護される。
type Enrollment struct {
	ID        string
	UserID    string
	CourseID  string
	Completed bool
	CreatedAt time.Time
}

// SessionProgress は受講者ごとのレッスン完了状態を表す。
// (UserID, SessionID) が複合主キーで、完了マークは冪等にUPSERTされる。
type SessionProgress struct {
	UserID      string
	SessionID   string
	Completed   bool
	CompletedAt time.Time
}

// CourseProgress はコース単位の進捗集計結果を表す。
// Percentは完了レッスン数/総レッスン数を百分率にし小数第2位へ丸めた値。
type CourseProgress struct {
	Completed           int
	Total               int
	Percent             float64
	CompletedSessionIDs []string
}
