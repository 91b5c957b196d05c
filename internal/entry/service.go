// Package entry は1日1件の振り返り記録のドメインロジックを提供する。
package entry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hitoshi/hansei/internal/model"
	"github.com/hitoshi/hansei/internal/repository"
	"github.com/hitoshi/hansei/internal/security"
)

// MetricsRecorder は記録操作のメトリクス記録を抽象化する。
type MetricsRecorder interface {
	RecordEntryCreated()
	RecordEntryUpdated()
	RecordEntryDeleted()
}

// Service は記録のサービス層。
// 入力検証、サマリのサニタイズ、永続化の呼び出しを担う。
type Service struct {
	entryRepo repository.EntryRepository
	sanitizer security.SummarySanitizerService
	metrics   MetricsRecorder
}

// NewService はServiceの新しいインスタンスを生成する。metricsはnilを許容する。
func NewService(entryRepo repository.EntryRepository, sanitizer security.SummarySanitizerService, metrics MetricsRecorder) *Service {
	return &Service{
		entryRepo: entryRepo,
		sanitizer: sanitizer,
		metrics:   metrics,
	}
}

// ParseDate はYYYY-MM-DD形式の日付文字列を解釈する。
// 形式不正や存在しない日付（2025-02-30等）はINVALID_DATEになる。
func ParseDate(value string) (time.Time, error) {
	parsed, err := time.Parse(model.DateLayout, value)
	if err != nil {
		return time.Time{}, model.NewInvalidDateError(value)
	}
	return parsed, nil
}

// Create は記録を新規作成する。同一日付の記録が既にあればDUPLICATE_ENTRYを返す。
func (s *Service) Create(ctx context.Context, userID string, date time.Time, score int, summary string) (*model.Entry, error) {
	if err := validateScore(score); err != nil {
		return nil, err
	}

	cleaned, err := s.prepareSummary(summary)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	entry := &model.Entry{
		ID:        uuid.New().String(),
		UserID:    userID,
		Date:      date,
		Score:     score,
		Summary:   cleaned,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.entryRepo.Create(ctx, entry); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordEntryCreated()
	}

	slog.Info("記録を作成しました",
		slog.String("user_id", userID),
		slog.String("entry_date", entry.DateString()),
		slog.Int("score", score),
	)

	return entry, nil
}

// Get は指定日付の記録を取得する。存在しない場合はENTRY_NOT_FOUNDを返す。
func (s *Service) Get(ctx context.Context, userID string, date time.Time) (*model.Entry, error) {
	entry, err := s.entryRepo.FindByUserAndDate(ctx, userID, date)
	if err != nil {
		return nil, fmt.Errorf("記録の取得に失敗しました: %w", err)
	}
	if entry == nil {
		return nil, model.NewEntryNotFoundError(date.Format(model.DateLayout))
	}
	return entry, nil
}

// Find は指定日付の記録を取得する。存在しない場合はnilを返す。
// 記録の有無で分岐するカレンダー表示用。
func (s *Service) Find(ctx context.Context, userID string, date time.Time) (*model.Entry, error) {
	entry, err := s.entryRepo.FindByUserAndDate(ctx, userID, date)
	if err != nil {
		return nil, fmt.Errorf("記録の取得に失敗しました: %w", err)
	}
	return entry, nil
}

// List はユーザーの記録一覧を絞り込み条件付き・日付昇順で返す。
func (s *Service) List(ctx context.Context, userID string, filter model.EntryFilter) ([]*model.Entry, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}

	entries, err := s.entryRepo.ListByUser(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("記録一覧の取得に失敗しました: %w", err)
	}
	return entries, nil
}

// Update は記録のスコアとサマリを部分更新する。
// 両方nilの場合はINVALID_REQUEST、対象が存在しない場合はENTRY_NOT_FOUNDを返す。
func (s *Service) Update(ctx context.Context, userID string, date time.Time, patch model.EntryPatch) (*model.Entry, error) {
	if patch.Score == nil && patch.Summary == nil {
		return nil, model.NewInvalidRequestError("更新対象のフィールドがありません")
	}

	entry, err := s.entryRepo.FindByUserAndDate(ctx, userID, date)
	if err != nil {
		return nil, fmt.Errorf("記録の取得に失敗しました: %w", err)
	}
	if entry == nil {
		return nil, model.NewEntryNotFoundError(date.Format(model.DateLayout))
	}

	if patch.Score != nil {
		if err := validateScore(*patch.Score); err != nil {
			return nil, err
		}
		entry.Score = *patch.Score
	}

	if patch.Summary != nil {
		cleaned, err := s.prepareSummary(*patch.Summary)
		if err != nil {
			return nil, err
		}
		entry.Summary = cleaned
	}

	entry.UpdatedAt = time.Now()

	if err := s.entryRepo.Update(ctx, entry); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordEntryUpdated()
	}

	slog.Info("記録を更新しました",
		slog.String("user_id", userID),
		slog.String("entry_date", entry.DateString()),
	)

	return entry, nil
}

// Save は記録を日付単位で保存する。既存の記録があれば上書きし、なければ新規作成する。
// 戻り値のboolは新規作成された場合にtrue。
func (s *Service) Save(ctx context.Context, userID string, date time.Time, score int, summary string) (*model.Entry, bool, error) {
	existing, err := s.entryRepo.FindByUserAndDate(ctx, userID, date)
	if err != nil {
		return nil, false, fmt.Errorf("記録の取得に失敗しました: %w", err)
	}

	if existing == nil {
		entry, err := s.Create(ctx, userID, date, score, summary)
		if err != nil {
			return nil, false, err
		}
		return entry, true, nil
	}

	patch := model.EntryPatch{Score: &score, Summary: &summary}
	entry, err := s.Update(ctx, userID, date, patch)
	if err != nil {
		return nil, false, err
	}
	return entry, false, nil
}

// Delete は指定日付の記録を削除する。対象が存在しない場合はENTRY_NOT_FOUNDを返す。
func (s *Service) Delete(ctx context.Context, userID string, date time.Time) error {
	if err := s.entryRepo.DeleteByUserAndDate(ctx, userID, date); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.RecordEntryDeleted()
	}

	slog.Info("記録を削除しました",
		slog.String("user_id", userID),
		slog.String("entry_date", date.Format(model.DateLayout)),
	)

	return nil
}

// validateScore はスコアが許容範囲内であることを検証する。
func validateScore(score int) error {
	if score < model.ScoreMin || score > model.ScoreMax {
		return model.NewInvalidScoreError(score)
	}
	return nil
}

// prepareSummary はサマリをサニタイズし、文字数要件を検証する。
func (s *Service) prepareSummary(raw string) (string, error) {
	cleaned := s.sanitizer.Sanitize(raw)

	length := utf8.RuneCountInString(cleaned)
	if length < model.SummaryMinLength {
		return "", model.NewInvalidSummaryError("サマリが空です")
	}
	if length > model.SummaryMaxLength {
		return "", model.NewInvalidSummaryError(fmt.Sprintf("%d文字を超えています", model.SummaryMaxLength))
	}

	return cleaned, nil
}

// validateFilter は絞り込み条件の整合性を検証する。
func validateFilter(filter model.EntryFilter) error {
	if filter.MinScore != nil {
		if *filter.MinScore < model.ScoreMin || *filter.MinScore > model.ScoreMax {
			return model.NewInvalidFilterError(fmt.Sprintf("min_scoreが範囲外です: %d", *filter.MinScore))
		}
	}
	if filter.MaxScore != nil {
		if *filter.MaxScore < model.ScoreMin || *filter.MaxScore > model.ScoreMax {
			return model.NewInvalidFilterError(fmt.Sprintf("max_scoreが範囲外です: %d", *filter.MaxScore))
		}
	}
	if filter.MinScore != nil && filter.MaxScore != nil && *filter.MinScore > *filter.MaxScore {
		return model.NewInvalidFilterError("min_scoreがmax_scoreより大きいです")
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.StartDate.After(*filter.EndDate) {
		return model.NewInvalidFilterError("start_dateがend_dateより後です")
	}
	return nil
}
