// Package model はドメインモデルを定義する。
package model

import "time"

// DateLayout は記録日付のフォーマット（ISO 8601のカレンダー日付）。
const DateLayout = "2006-01-02"

// スコアの有効範囲。両端を含む。
const (
	ScoreMin = 0
	ScoreMax = 10
)

// 振り返りサマリの文字数制限（トリム後）。
const (
	SummaryMinLength = 1
	SummaryMaxLength = 200
)

// Entry は1日分の振り返り記録を表す。
// 同一ユーザー・同一日付の記録は1件のみ（DBのUNIQUE制約で保証）。
type Entry struct {
	ID        string
	UserID    string
	Date      time.Time // カレンダー日付。時刻部分は持たない
	Score     int
	Summary   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DateString は記録日付をYYYY-MM-DD形式で返す。
func (e *Entry) DateString() string {
	return e.Date.Format(DateLayout)
}

// EntryFilter は記録一覧の絞り込み条件を表す。
// nilのフィールドは条件なしを意味する。
type EntryFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	MinScore  *int
	MaxScore  *int
}

// EntryPatch は記録の部分更新内容を表す。
// nilのフィールドは変更なしを意味する。
type EntryPatch struct {
	Score   *int
	Summary *string
}
