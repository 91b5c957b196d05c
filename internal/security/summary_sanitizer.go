// Package security はアプリケーションのセキュリティ機能を提供する。
//
// SummarySanitizerService は振り返りサマリをプレーンテキストとして正規化し、
// カレンダー表示時のXSS攻撃からユーザーを保護する。
// bluemondayライブラリの許可リストベースのポリシーで全タグを除去する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// SummarySanitizerService はサマリのサニタイズ機能のインターフェースを定義する。
// 記録の保存前に使用される。
type SummarySanitizerService interface {
	// Sanitize はサマリからHTMLタグを全て除去し、前後の空白を削った
	// プレーンテキストを返す。scriptタグとstyleタグは中身ごと除去する。
	// 実体参照は元の文字に戻して保存する（エスケープは表示側の責務）。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// summarySanitizer はSummarySanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type summarySanitizer struct {
	policy *bluemonday.Policy
}

// NewSummarySanitizer はSummarySanitizerServiceの新しいインスタンスを生成する。
// サマリはマークアップを持たない短文のため、タグを一切許可しないポリシーを使う。
func NewSummarySanitizer() *summarySanitizer {
	return &summarySanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はサマリをプレーンテキストに正規化して返す。
func (s *summarySanitizer) Sanitize(raw string) string {
	clean := s.policy.Sanitize(raw)
	// StrictPolicyは残したテキストを実体参照にエスケープするため、
	// 保存用に元の文字へ戻す。HTMLエスケープはテンプレート側で行う。
	clean = html.UnescapeString(clean)
	return strings.TrimSpace(clean)
}
