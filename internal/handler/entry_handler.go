package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/hansei/internal/entry"
	"github.com/hitoshi/hansei/internal/middleware"
	"github.com/hitoshi/hansei/internal/model"
	"github.com/hitoshi/hansei/internal/score"
)

// EntryServiceInterface は記録ハンドラーが必要とするサービスインターフェース。
type EntryServiceInterface interface {
	// Create は記録を新規作成する。同一日付の記録があればDUPLICATE_ENTRYを返す。
	Create(ctx context.Context, userID string, date time.Time, score int, summary string) (*model.Entry, error)
	// Get は指定日付の記録を取得する。
	Get(ctx context.Context, userID string, date time.Time) (*model.Entry, error)
	// List は記録一覧を絞り込み条件付き・日付昇順で返す。
	List(ctx context.Context, userID string, filter model.EntryFilter) ([]*model.Entry, error)
	// Update は記録のスコアとサマリを部分更新する。
	Update(ctx context.Context, userID string, date time.Time, patch model.EntryPatch) (*model.Entry, error)
	// Delete は指定日付の記録を削除する。
	Delete(ctx context.Context, userID string, date time.Time) error
}

// EntryHandler は記録管理のHTTPハンドラー。
type EntryHandler struct {
	service EntryServiceInterface
}

// NewEntryHandler はEntryHandlerを生成する。
func NewEntryHandler(service EntryServiceInterface) *EntryHandler {
	return &EntryHandler{
		service: service,
	}
}

// createEntryRequest は記録作成リクエストのボディ。
// scoreは0が有効値のためポインタで未指定と区別する。
type createEntryRequest struct {
	Date    string `json:"date"`
	Score   *int   `json:"score"`
	Summary string `json:"summary"`
}

// updateEntryRequest は記録更新リクエストのボディ。
type updateEntryRequest struct {
	Score   *int    `json:"score"`
	Summary *string `json:"summary"`
}

// entryResponse は記録のAPIレスポンス。
// スコアに対応する評価バンドと表示色を含める。
type entryResponse struct {
	ID        string    `json:"id"`
	Date      string    `json:"date"`
	Score     int       `json:"score"`
	Summary   string    `json:"summary"`
	Band      string    `json:"band"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// entryListResponse は記録一覧のAPIレスポンス。
type entryListResponse struct {
	Entries []entryResponse `json:"entries"`
	Total   int             `json:"total"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// CreateEntry は記録を新規作成する。
// POST /api/entries
func (h *EntryHandler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req createEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("ボディの解析に失敗しました"))
		return
	}

	date, err := entry.ParseDate(req.Date)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if req.Score == nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("scoreは必須です"))
		return
	}

	created, err := h.service.Create(r.Context(), userID, date, *req.Score, req.Summary)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toEntryResponse(created))
}

// GetEntry は指定日付の記録を取得する。
// GET /api/entries/:date
func (h *EntryHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	date, err := entry.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	found, err := h.service.Get(r.Context(), userID, date)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toEntryResponse(found))
}

// ListEntries は記録一覧を返す。
// GET /api/entries?start_date=&end_date=&min_score=&max_score=
func (h *EntryHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	filter, err := parseEntryFilter(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	entries, err := h.service.List(r.Context(), userID, filter)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := entryListResponse{
		Entries: make([]entryResponse, 0, len(entries)),
		Total:   len(entries),
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, toEntryResponse(e))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// UpdateEntry は記録を部分更新する。
// PUT /api/entries/:date
func (h *EntryHandler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	date, err := entry.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	var req updateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("ボディの解析に失敗しました"))
		return
	}

	updated, err := h.service.Update(r.Context(), userID, date, model.EntryPatch{
		Score:   req.Score,
		Summary: req.Summary,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toEntryResponse(updated))
}

// DeleteEntry は記録を削除する。
// DELETE /api/entries/:date
func (h *EntryHandler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	date, err := entry.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if err := h.service.Delete(r.Context(), userID, date); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetupEntryRoutes は記録管理関連のルーティングを設定したchi.Routerを返す。
func SetupEntryRoutes(service EntryServiceInterface) http.Handler {
	r := chi.NewRouter()
	h := NewEntryHandler(service)

	r.Route("/api/entries", func(r chi.Router) {
		r.Get("/", h.ListEntries)
		r.Post("/", h.CreateEntry)

		// /api/entries/:date 以下のルーティング
		r.Route("/{date}", func(r chi.Router) {
			r.Get("/", h.GetEntry)
			r.Put("/", h.UpdateEntry)
			r.Delete("/", h.DeleteEntry)
		})
	})

	return r
}

// --- ヘルパー関数 ---

// toEntryResponse はmodel.EntryからAPIレスポンスに変換する。
func toEntryResponse(e *model.Entry) entryResponse {
	return entryResponse{
		ID:        e.ID,
		Date:      e.DateString(),
		Score:     e.Score,
		Summary:   e.Summary,
		Band:      score.BandFor(e.Score).Label(),
		Color:     score.ColorFor(e.Score).Hex(),
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

// parseEntryFilter はクエリパラメータから絞り込み条件を構築する。
// 値の整合性（範囲や大小関係）の検証はサービス層が行う。
func parseEntryFilter(r *http.Request) (model.EntryFilter, error) {
	var filter model.EntryFilter
	q := r.URL.Query()

	if v := q.Get("start_date"); v != "" {
		parsed, err := entry.ParseDate(v)
		if err != nil {
			return filter, model.NewInvalidFilterError(fmt.Sprintf("start_dateの形式が不正です: %s", v))
		}
		filter.StartDate = &parsed
	}
	if v := q.Get("end_date"); v != "" {
		parsed, err := entry.ParseDate(v)
		if err != nil {
			return filter, model.NewInvalidFilterError(fmt.Sprintf("end_dateの形式が不正です: %s", v))
		}
		filter.EndDate = &parsed
	}
	if v := q.Get("min_score"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, model.NewInvalidFilterError(fmt.Sprintf("min_scoreが整数ではありません: %s", v))
		}
		filter.MinScore = &n
	}
	if v := q.Get("max_score"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, model.NewInvalidFilterError(fmt.Sprintf("max_scoreが整数ではありません: %s", v))
		}
		filter.MaxScore = &n
	}

	return filter, nil
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidDate, model.ErrCodeInvalidScore, model.ErrCodeInvalidSummary,
		model.ErrCodeInvalidFilter, model.ErrCodeInvalidEmail, model.ErrCodeWeakPassword:
		return http.StatusUnprocessableEntity
	case model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized, model.ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	case model.ErrCodeEmailTaken, model.ErrCodeDuplicateEntry:
		return http.StatusConflict
	case model.ErrCodeEntryNotFound, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
