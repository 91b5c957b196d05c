// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// 1ユーザーが自分の記録だけを所有する。他ユーザーのデータは参照できない。
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
