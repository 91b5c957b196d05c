// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, entry, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeInvalidDate        = "INVALID_DATE"
	ErrCodeInvalidScore       = "INVALID_SCORE"
	ErrCodeInvalidSummary     = "INVALID_SUMMARY"
	ErrCodeInvalidFilter      = "INVALID_FILTER"
	ErrCodeInvalidEmail       = "INVALID_EMAIL"
	ErrCodeWeakPassword       = "WEAK_PASSWORD"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeEmailTaken         = "EMAIL_TAKEN"
	ErrCodeDuplicateEntry     = "DUPLICATE_ENTRY"
	ErrCodeEntryNotFound      = "ENTRY_NOT_FOUND"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
)

// NewInvalidRequestError はリクエスト形式不正エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストの形式が不正です: %s", reason),
		Category: "validation",
		Action:   "リクエスト内容を確認して再度お試しください。",
	}
}

// NewInvalidDateError は日付形式不正エラーを生成する。
func NewInvalidDateError(value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDate,
		Message:  fmt.Sprintf("無効な日付です: %s", value),
		Category: "validation",
		Action:   "日付はYYYY-MM-DD形式で指定してください。",
	}
}

// NewInvalidScoreError はスコア範囲外エラーを生成する。
func NewInvalidScoreError(score int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidScore,
		Message:  fmt.Sprintf("無効なスコアです: %d", score),
		Category: "validation",
		Action:   "スコアは0から10の整数で指定してください。",
	}
}

// NewInvalidSummaryError はサマリ不正エラーを生成する。
func NewInvalidSummaryError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSummary,
		Message:  fmt.Sprintf("無効なサマリです: %s", reason),
		Category: "validation",
		Action:   "サマリは1文字以上200文字以内で入力してください。",
	}
}

// NewInvalidFilterError は無効な絞り込み条件エラーを生成する。
func NewInvalidFilterError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFilter,
		Message:  fmt.Sprintf("無効な絞り込み条件です: %s", reason),
		Category: "validation",
		Action:   "日付はYYYY-MM-DD形式、スコアは0から10の整数で指定してください。",
	}
}

// NewInvalidEmailError はメールアドレス形式不正エラーを生成する。
func NewInvalidEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  "メールアドレスの形式が正しくありません。",
		Category: "validation",
		Action:   "正しいメールアドレスを入力してください。",
	}
}

// NewWeakPasswordError はパスワード長不正エラーを生成する。
func NewWeakPasswordError() *APIError {
	return &APIError{
		Code:     ErrCodeWeakPassword,
		Message:  "パスワードは6文字以上72バイト以内で設定してください。",
		Category: "validation",
		Action:   "より長いパスワードを設定してください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてから再度お試しください。",
	}
}

// NewInvalidCredentialsError は認証情報不一致エラーを生成する。
// メールアドレス未登録とパスワード不一致を区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "別のメールアドレスを使用するか、ログインしてください。",
	}
}

// NewDuplicateEntryError は同一日付の記録重複エラーを生成する。
func NewDuplicateEntryError(date string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateEntry,
		Message:  fmt.Sprintf("この日付の記録は既に存在します: %s", date),
		Category: "entry",
		Action:   "既存の記録を編集するか、削除してから作成してください。",
	}
}

// NewEntryNotFoundError は記録未検出エラーを生成する。
func NewEntryNotFoundError(date string) *APIError {
	return &APIError{
		Code:     ErrCodeEntryNotFound,
		Message:  fmt.Sprintf("指定された日付の記録が見つかりません: %s", date),
		Category: "entry",
		Action:   "日付を確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}
