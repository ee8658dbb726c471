// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService はノートやSMS本文などユーザー由来の
// 自由記述テキストをサニタイズし、保存コンテンツ経由のXSSを防ぐ。
// bluemondayライブラリの許可リストベースのポリシーを使用する。
package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService は自由記述テキストのサニタイズ機能のインターフェースを定義する。
// ノード保存前のペイロード整形で使用される。
type ContentSanitizerService interface {
	// Sanitize は入力から危険なHTMLを除去して返す。
	// 最小限の整形タグ（br, strong, em）のみを通過させ、
	// script, iframe, styleタグおよびon*イベント属性を除去する。
	// リンクにはrel="noopener noreferrer"が強制付与される。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// キャンバス上のノートはほぼプレーンテキストだが、貼り付け由来の
// 軽微な整形タグは残す。
// ポリシーの内容:
//   - 許可タグ: br, strong, em, a
//   - 禁止タグ: script, iframe, style および全てのon*イベント属性
//   - aタグ: rel="noopener noreferrer" を強制付与、相対URLは不許可
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements("br", "strong", "em")

	p.AllowAttrs("href").OnElements("a")
	p.AllowStandardURLs()
	p.AllowRelativeURLs(false)
	p.RequireNoReferrerOnLinks(true)

	return &contentSanitizer{
		policy: p,
	}
}

// Sanitize は入力から危険なHTMLを除去して返す。
func (s *contentSanitizer) Sanitize(raw string) string {
	return s.policy.Sanitize(raw)
}
