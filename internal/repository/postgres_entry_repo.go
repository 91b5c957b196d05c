package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/hansei/internal/model"
)

// PostgresEntryRepo はPostgreSQLを使用した振り返り記録リポジトリ。
type PostgresEntryRepo struct {
	db *sql.DB
}

// NewPostgresEntryRepo はPostgresEntryRepoを生成する。
func NewPostgresEntryRepo(db *sql.DB) *PostgresEntryRepo {
	return &PostgresEntryRepo{db: db}
}

// Create は記録を作成する。
// (user_id, entry_date)の重複はDBのユニーク制約で検出しDUPLICATE_ENTRYを返す。
// 事前チェックでは同時リクエストの競合を防げないため、制約違反を正とする。
func (r *PostgresEntryRepo) Create(ctx context.Context, entry *model.Entry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO entries (id, user_id, entry_date, score, summary, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.UserID, entry.Date.Format(model.DateLayout), entry.Score, entry.Summary,
		entry.CreatedAt, entry.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return model.NewDuplicateEntryError(entry.DateString())
	}
	if err != nil {
		return fmt.Errorf("記録の作成に失敗しました: %w", err)
	}
	return nil
}

// FindByUserAndDate はユーザーIDと日付で記録を検索する。見つからない場合はnilを返す。
func (r *PostgresEntryRepo) FindByUserAndDate(ctx context.Context, userID string, date time.Time) (*model.Entry, error) {
	entry := &model.Entry{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, entry_date, score, summary, created_at, updated_at
		 FROM entries WHERE user_id = $1 AND entry_date = $2`,
		userID, date.Format(model.DateLayout),
	).Scan(&entry.ID, &entry.UserID, &entry.Date, &entry.Score, &entry.Summary, &entry.CreatedAt, &entry.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("記録の検索に失敗しました: %w", err)
	}

	return entry, nil
}

// ListByUser はユーザーの記録一覧を絞り込み条件付き・日付昇順で返す。
func (r *PostgresEntryRepo) ListByUser(ctx context.Context, userID string, filter model.EntryFilter) ([]*model.Entry, error) {
	baseQuery := `
		SELECT id, user_id, entry_date, score, summary, created_at, updated_at
		FROM entries
		WHERE user_id = $1`

	args := []interface{}{userID}
	argIndex := 2

	if filter.StartDate != nil {
		baseQuery += fmt.Sprintf(" AND entry_date >= $%d", argIndex)
		args = append(args, filter.StartDate.Format(model.DateLayout))
		argIndex++
	}
	if filter.EndDate != nil {
		baseQuery += fmt.Sprintf(" AND entry_date <= $%d", argIndex)
		args = append(args, filter.EndDate.Format(model.DateLayout))
		argIndex++
	}
	if filter.MinScore != nil {
		baseQuery += fmt.Sprintf(" AND score >= $%d", argIndex)
		args = append(args, *filter.MinScore)
		argIndex++
	}
	if filter.MaxScore != nil {
		baseQuery += fmt.Sprintf(" AND score <= $%d", argIndex)
		args = append(args, *filter.MaxScore)
		argIndex++
	}

	baseQuery += " ORDER BY entry_date ASC"

	rows, err := r.db.QueryContext(ctx, baseQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("記録一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var entries []*model.Entry
	for rows.Next() {
		entry := &model.Entry{}
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Date, &entry.Score, &entry.Summary, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
			return nil, fmt.Errorf("記録行の読み取りに失敗しました: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("記録一覧の走査に失敗しました: %w", err)
	}
	return entries, nil
}

// Update は記録のスコア・サマリ・更新日時を更新する。
func (r *PostgresEntryRepo) Update(ctx context.Context, entry *model.Entry) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE entries SET score = $1, summary = $2, updated_at = $3 WHERE id = $4`,
		entry.Score, entry.Summary, entry.UpdatedAt, entry.ID,
	)
	if err != nil {
		return fmt.Errorf("記録の更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewEntryNotFoundError(entry.DateString())
	}
	return nil
}

// DeleteByUserAndDate はユーザーIDと日付で記録を削除する。
// 対象が存在しない場合はENTRY_NOT_FOUNDのAPIErrorを返す。
func (r *PostgresEntryRepo) DeleteByUserAndDate(ctx context.Context, userID string, date time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM entries WHERE user_id = $1 AND entry_date = $2`,
		userID, date.Format(model.DateLayout),
	)
	if err != nil {
		return fmt.Errorf("記録の削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewEntryNotFoundError(date.Format(model.DateLayout))
	}
	return nil
}

// DeleteByUserID はユーザーの全記録を削除する。
func (r *PostgresEntryRepo) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM entries WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("記録の一括削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ EntryRepository = (*PostgresEntryRepo)(nil)
