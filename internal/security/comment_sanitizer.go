// Package security はレポートに出力する外部由来テキストの無害化を提供する。
//
// CommentSanitizer は作業ログコメントからHTMLタグを取り除き、
// スプレッドシートやJSONにマークアップが混入しないようにする。
// bluemondayのStrictPolicyを使用し、すべてのタグを除去する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// CommentSanitizer はコメント文字列のサニタイズ機能。
type CommentSanitizer interface {
	// Sanitize はタグを除去したプレーンテキストを返す。
	// 実体参照はデコードし、前後の空白を取り除く。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// commentSanitizer はCommentSanitizerの実装。
// bluemondayのポリシーはスレッドセーフ。
type commentSanitizer struct {
	policy *bluemonday.Policy
}

// NewCommentSanitizer はCommentSanitizerの新しいインスタンスを生成する。
func NewCommentSanitizer() *commentSanitizer {
	return &commentSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はコメントからタグを除去する。
func (s *commentSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	// タグを含まない場合はそのまま返す
	if !strings.Contains(raw, "<") {
		return strings.TrimSpace(raw)
	}
	stripped := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(stripped))
}
