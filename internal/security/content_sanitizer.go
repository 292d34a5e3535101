// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService はレビュー本文などユーザー投稿テキストを
// サニタイズし、XSS攻撃からユーザーを保護する。投稿テキストは
// プレーンテキストとして扱うため、bluemondayの厳格ポリシーで
// 全てのHTMLタグを除去する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はユーザー投稿テキストのサニタイズ機能の
// インターフェースを定義する。レビューとレビューコメントの保存前に使用される。
type ContentSanitizerService interface {
	// SanitizeText は投稿テキストからHTMLタグを全て除去し、
	// 前後の空白を取り除いたプレーンテキストを返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeText(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// レビュー本文はHTMLとして表示しないため、StrictPolicy（全タグ除去）を使用する。
// scriptタグの中身やon*イベント属性も全て除去される。
func NewContentSanitizer() *contentSanitizer {
	return &contentSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeText は投稿テキストからHTMLタグを全て除去する。
// bluemondayはタグ除去後のテキストをHTMLエスケープして返すため、
// プレーンテキストとして保存できるようアンエスケープしてから返す。
func (s *contentSanitizer) SanitizeText(raw string) string {
	stripped := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(stripped))
}
