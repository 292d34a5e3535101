// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// Role はユーザーの役割を表す閉じた列挙型。
// DB上はNULL（未選択）または大文字の文字列として保存される。
type Role string

const (
	// RoleStudent は受講者を表す。
	RoleStudent Role = "STUDENT"
	// RoleInstructor は講師を表す。
	RoleInstructor Role = "INSTRUCTOR"
	// RoleUnset は役割未選択の状態を表す。
	// OAuth初回ログイン直後のユーザーはこの状態になる。
	RoleUnset Role = ""
)

// IsValid は役割が選択済みの有効な値かどうかを返す。
// RoleUnsetは有効な選択値ではない。
func (r Role) IsValid() bool {
	return r == RoleStudent || r == RoleInstructor
}

// ParseRole は文字列をRoleに変換する。
// 入力は大文字に正規化して判定する。不正な値の場合はfalseを返す。
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToUpper(s)) {
	case RoleStudent:
		return RoleStudent, true
	case RoleInstructor:
		return RoleInstructor, true
	default:
		return RoleUnset, false
	}
}

// User はサービス利用ユーザーを表す。
// PasswordHashはOAuth経由で作成されローカルパスワード未設定の場合のみnil。
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash *string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasLocalPassword はローカルパスワードが設定されているかどうかを返す。
func (u *User) HasLocalPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}
