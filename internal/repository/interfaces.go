// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/hansei/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成する。
	// メールアドレスが登録済みの場合はEMAIL_TAKENのAPIErrorを返す。
	Create(ctx context.Context, user *model.User) error

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するentriesはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// EntryRepository は1日分の振り返り記録の永続化インターフェース。
type EntryRepository interface {
	// Create は記録を作成する。
	// 同一ユーザー・同一日付の記録が既に存在する場合はDUPLICATE_ENTRYのAPIErrorを返す。
	Create(ctx context.Context, entry *model.Entry) error

	// FindByUserAndDate はユーザーIDと日付で記録を検索する。見つからない場合はnilを返す。
	FindByUserAndDate(ctx context.Context, userID string, date time.Time) (*model.Entry, error)

	// ListByUser はユーザーの記録一覧を絞り込み条件付き・日付昇順で返す。
	ListByUser(ctx context.Context, userID string, filter model.EntryFilter) ([]*model.Entry, error)

	// Update は記録のスコア・サマリ・更新日時を更新する。
	Update(ctx context.Context, entry *model.Entry) error

	// DeleteByUserAndDate はユーザーIDと日付で記録を削除する。
	// 対象が存在しない場合はENTRY_NOT_FOUNDのAPIErrorを返す。
	DeleteByUserAndDate(ctx context.Context, userID string, date time.Time) error

	// DeleteByUserID はユーザーの全記録を削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}
