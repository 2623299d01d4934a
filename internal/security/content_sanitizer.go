// Package security はリモートから受け取った文字列を安全に表示するための機能を提供する。
//
// タスクのタイトルや説明はAPIから任意の文字列として返るため、
// 端末へ出力する前にHTMLタグと制御文字を取り除く。
package security

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService は表示用の文字列サニタイズのインターフェース。
type ContentSanitizerService interface {
	// Sanitize はHTMLタグを除去したプレーンテキストを返す。
	// 改行とタブ以外の制御文字（ANSIエスケープシーケンスの開始文字を含む）も除去する。
	// 同一入力に対して常に同一出力を返す。
	Sanitize(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
func NewContentSanitizer() *contentSanitizer {
	return &contentSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はHTMLタグと制御文字を除去する。
func (s *contentSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}

	// StrictPolicyは&や<をエスケープして返すため、端末表示用に元の文字へ戻す
	text := html.UnescapeString(s.policy.Sanitize(raw))

	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
}

// compile-time interface check
var _ ContentSanitizerService = (*contentSanitizer)(nil)
