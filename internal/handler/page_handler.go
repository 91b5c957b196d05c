package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/hansei/internal/calendar"
	"github.com/hitoshi/hansei/internal/entry"
	"github.com/hitoshi/hansei/internal/middleware"
	"github.com/hitoshi/hansei/internal/model"
	"github.com/hitoshi/hansei/internal/view"
)

// PageEntryService はページハンドラーが必要とする記録サービスインターフェース。
type PageEntryService interface {
	// Find は指定日付の記録を返す。存在しない場合はnilを返す。
	Find(ctx context.Context, userID string, date time.Time) (*model.Entry, error)
	// List は記録一覧を絞り込み条件付き・日付昇順で返す。
	List(ctx context.Context, userID string, filter model.EntryFilter) ([]*model.Entry, error)
	// Save は記録を日付単位で保存する。既存があれば上書きし、なければ新規作成する。
	Save(ctx context.Context, userID string, date time.Time, score int, summary string) (*model.Entry, bool, error)
	// Delete は指定日付の記録を削除する。
	Delete(ctx context.Context, userID string, date time.Time) error
}

// PageUserService はページハンドラーが必要とするユーザーサービスインターフェース。
type PageUserService interface {
	// Profile は指定IDのユーザー情報を返す。
	Profile(ctx context.Context, userID string) (*model.User, error)
	// Withdraw はユーザーの退会処理を実行する。
	Withdraw(ctx context.Context, userID string) error
}

// PageHandler はサーバーレンダリングされるページとhtmxパーシャルのHTTPハンドラー。
type PageHandler struct {
	auth     AuthServiceInterface
	entries  PageEntryService
	users    PageUserService
	renderer *view.Renderer
	config   AuthHandlerConfig
}

// NewPageHandler はPageHandlerを生成する。
func NewPageHandler(auth AuthServiceInterface, entries PageEntryService, users PageUserService, renderer *view.Renderer, config AuthHandlerConfig) *PageHandler {
	return &PageHandler{
		auth:     auth,
		entries:  entries,
		users:    users,
		renderer: renderer,
		config:   config,
	}
}

// Home はログイン状態に応じてカレンダーまたはログインページへ誘導する。
// GET /
func (h *PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.UserIDFromContext(r.Context()); err == nil {
		http.Redirect(w, r, "/calendar", http.StatusFound)
		return
	}
	http.Redirect(w, r, "/login", http.StatusFound)
}

// LoginPage はログインページを表示する。ログイン済みの場合はカレンダーへ誘導する。
// GET /login
func (h *PageHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.UserIDFromContext(r.Context()); err == nil {
		http.Redirect(w, r, "/calendar", http.StatusFound)
		return
	}
	h.renderPage(w, http.StatusOK, "login", view.LoginPageData{})
}

// LoginSubmit はログインフォームの送信を処理する。
// POST /login
func (h *PageHandler) LoginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderPage(w, http.StatusBadRequest, "login", view.LoginPageData{
			Error: "フォームの解析に失敗しました。",
		})
		return
	}

	email := r.PostFormValue("email")
	password := r.PostFormValue("password")

	token, _, err := h.auth.Login(r.Context(), email, password)
	if err != nil {
		status, message := pageErrorMessage(err)
		h.renderPage(w, status, "login", view.LoginPageData{
			Error: message,
			Email: email,
		})
		return
	}

	setAuthCookie(w, h.config, token)
	http.Redirect(w, r, "/calendar", http.StatusFound)
}

// RegisterPage は新規登録ページを表示する。ログイン済みの場合はカレンダーへ誘導する。
// GET /register
func (h *PageHandler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.UserIDFromContext(r.Context()); err == nil {
		http.Redirect(w, r, "/calendar", http.StatusFound)
		return
	}
	h.renderPage(w, http.StatusOK, "register", view.RegisterPageData{})
}

// RegisterSubmit は新規登録フォームの送信を処理する。
// 登録に成功した場合はそのままログインしてカレンダーへ誘導する。
// POST /register
func (h *PageHandler) RegisterSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderPage(w, http.StatusBadRequest, "register", view.RegisterPageData{
			Error: "フォームの解析に失敗しました。",
		})
		return
	}

	email := r.PostFormValue("email")
	password := r.PostFormValue("password")
	confirm := r.PostFormValue("password_confirm")

	if password != confirm {
		h.renderPage(w, http.StatusBadRequest, "register", view.RegisterPageData{
			Error: "パスワードが一致しません。",
			Email: email,
		})
		return
	}

	if _, err := h.auth.Register(r.Context(), email, password); err != nil {
		status, message := pageErrorMessage(err)
		h.renderPage(w, status, "register", view.RegisterPageData{
			Error: message,
			Email: email,
		})
		return
	}

	token, _, err := h.auth.Login(r.Context(), email, password)
	if err != nil {
		// 登録直後のログイン失敗は想定外。ログインページからやり直してもらう
		slog.Error("login after registration failed", slog.String("error", err.Error()))
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	setAuthCookie(w, h.config, token)
	http.Redirect(w, r, "/calendar", http.StatusFound)
}

// Logout はアクセストークンCookieを破棄してログインページへ誘導する。
// GET /logout
func (h *PageHandler) Logout(w http.ResponseWriter, r *http.Request) {
	clearAuthCookie(w, h.config)
	http.Redirect(w, r, "/login", http.StatusFound)
}

// CalendarPage は指定年月のカレンダーを表示する。
// 年月が未指定または範囲外の場合は現在の年月にフォールバックする。
// GET /calendar?year=&month=
func (h *PageHandler) CalendarPage(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	user, err := h.users.Profile(r.Context(), userID)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeUserNotFound {
			// トークンは正当だがユーザーが退会済みのケース
			clearAuthCookie(w, h.config)
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		slog.Error("failed to load user profile", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	now := time.Now()
	year, month := calendar.Normalize(queryInt(r, "year"), queryInt(r, "month"), now)
	grid := calendar.Build(year, month, now)

	first, last := calendar.Bounds(year, month)
	entries, err := h.entries.List(r.Context(), userID, model.EntryFilter{
		StartDate: &first,
		EndDate:   &last,
	})
	if err != nil {
		slog.Error("failed to list entries", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	byDate := make(map[string]*model.Entry, len(entries))
	for _, e := range entries {
		byDate[e.DateString()] = e
	}

	weeks := make([][]view.DayCellData, 0, len(grid.Weeks))
	for _, week := range grid.Weeks {
		cells := make([]view.DayCellData, 0, len(week))
		for _, day := range week {
			cell := view.DayCellData{
				Num:     day.Num,
				InMonth: day.InMonth,
				Today:   day.Today,
				Future:  day.Future,
			}
			if day.InMonth {
				cell.Date = day.Date.Format(model.DateLayout)
				cell.Entry = byDate[cell.Date]
			}
			cells = append(cells, cell)
		}
		weeks = append(weeks, cells)
	}

	prevYear, prevMonth := grid.Prev()
	nextYear, nextMonth := grid.Next()

	h.renderPage(w, http.StatusOK, "calendar", view.CalendarPageData{
		Email:      user.Email,
		Year:       year,
		Month:      int(month),
		MonthLabel: fmt.Sprintf("%d年%d月", year, int(month)),
		Weeks:      weeks,
		PrevYear:   prevYear,
		PrevMonth:  int(prevMonth),
		NextYear:   nextYear,
		NextMonth:  int(nextMonth),
		Legend:     view.BandLegend(),
	})
}

// DayForm は指定日付の記録入力フォームを返す。htmxのモーダル差し替え用。
// GET /calendar/day/:date
func (h *PageHandler) DayForm(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	date, err := entry.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}

	data := view.EntryFormData{
		Date:   date.Format(model.DateLayout),
		Future: date.After(todayDate()),
	}

	if !data.Future {
		found, err := h.entries.Find(r.Context(), userID, date)
		if err != nil {
			slog.Error("failed to load entry", slog.String("error", err.Error()))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		data.Entry = found
		data.HasEntry = found != nil
	}

	h.renderPartial(w, http.StatusOK, "entry_form", data)
}

// DaySubmit は記録フォームの送信を処理する。
// 成功時はモーダルを閉じるイベントを発火し、カレンダーの該当セルを返す。
// 失敗時は差し替え先をモーダル本体に切り替えてエラー付きフォームを返す。
// POST /calendar/day/:date
func (h *PageHandler) DaySubmit(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	date, err := entry.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	summary := r.PostFormValue("summary")
	scoreValue, err := strconv.Atoi(r.PostFormValue("score"))
	if err != nil {
		h.renderFormError(w, r, userID, date, -1, summary, http.StatusUnprocessableEntity, "スコアを選択してください。")
		return
	}

	saved, _, err := h.entries.Save(r.Context(), userID, date, scoreValue, summary)
	if err != nil {
		status, message := pageErrorMessage(err)
		h.renderFormError(w, r, userID, date, scoreValue, summary, status, message)
		return
	}

	w.Header().Set("HX-Trigger", "closeModal")
	h.renderPartial(w, http.StatusOK, "day_cell", dayCell(date, todayDate(), saved))
}

// DayDelete は指定日付の記録を削除する。
// 既に存在しない場合も削除済みとして成功を返す。
// DELETE /calendar/day/:date
func (h *PageHandler) DayDelete(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	date, err := entry.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}

	if err := h.entries.Delete(r.Context(), userID, date); err != nil {
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeEntryNotFound {
			slog.Error("failed to delete entry", slog.String("error", err.Error()))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("HX-Trigger", "closeModal")
	h.renderPartial(w, http.StatusOK, "day_cell", dayCell(date, todayDate(), nil))
}

// SettingsPage はアカウント設定ページを表示する。
// GET /settings
func (h *PageHandler) SettingsPage(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	user, err := h.users.Profile(r.Context(), userID)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeUserNotFound {
			clearAuthCookie(w, h.config)
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		slog.Error("failed to load user profile", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.renderPage(w, http.StatusOK, "settings", view.SettingsPageData{
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	})
}

// DeleteAccount は退会処理を実行し、ログインページへ誘導する。
// POST /settings/delete-account
func (h *PageHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	if err := h.users.Withdraw(r.Context(), userID); err != nil {
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUserNotFound {
			slog.Error("failed to withdraw user", slog.String("error", err.Error()))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
	}

	clearAuthCookie(w, h.config)
	http.Redirect(w, r, "/login", http.StatusFound)
}

// SetupPageRoutes はページとhtmxパーシャルのルーティングを設定したchi.Routerを返す。
// rl が nil でない場合、ログイン・登録の送信に認証専用レート制限を、
// 認証必須ページに一般レート制限を適用する。
func SetupPageRoutes(h *PageHandler, verifier middleware.TokenVerifier, rl *middleware.RateLimiter) http.Handler {
	r := chi.NewRouter()

	// 未認証でも到達できるページ。ログイン済みならカレンダーへ誘導する
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewOptionalAuthMiddleware(verifier))
		r.Get("/", h.Home)
		r.Get("/login", h.LoginPage)
		r.Get("/register", h.RegisterPage)
	})

	r.Group(func(r chi.Router) {
		if rl != nil {
			r.Use(rl.AuthMiddleware())
		}
		r.Post("/login", h.LoginSubmit)
		r.Post("/register", h.RegisterSubmit)
	})

	r.Get("/logout", h.Logout)

	// 認証必須のページ
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewPageAuthMiddleware(verifier))
		if rl != nil {
			r.Use(rl.GeneralMiddleware())
		}
		r.Get("/calendar", h.CalendarPage)
		r.Route("/calendar/day/{date}", func(r chi.Router) {
			r.Get("/", h.DayForm)
			r.Post("/", h.DaySubmit)
			r.Delete("/", h.DayDelete)
		})
		r.Get("/settings", h.SettingsPage)
		r.Post("/settings/delete-account", h.DeleteAccount)
	})

	return r
}

// --- ヘルパー関数 ---

// renderPage はページ全体を描画する。描画に失敗した場合は500を返す。
func (h *PageHandler) renderPage(w http.ResponseWriter, status int, page string, data interface{}) {
	var buf bytes.Buffer
	if err := h.renderer.RenderPage(&buf, page, data); err != nil {
		slog.Error("failed to render page", slog.String("page", page), slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// renderPartial はhtmx差し替え用のパーシャルを描画する。
func (h *PageHandler) renderPartial(w http.ResponseWriter, status int, partial string, data interface{}) {
	var buf bytes.Buffer
	if err := h.renderer.RenderPartial(&buf, partial, data); err != nil {
		slog.Error("failed to render partial", slog.String("partial", partial), slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// renderFormError は入力値を保持したままエラー付きの記録フォームを再描画する。
// 成功時はカレンダーのセルを差し替えるため、失敗時は差し替え先をモーダル本体に戻す。
func (h *PageHandler) renderFormError(w http.ResponseWriter, r *http.Request, userID string, date time.Time, scoreValue int, summary string, status int, message string) {
	hasEntry := false
	if found, err := h.entries.Find(r.Context(), userID, date); err == nil && found != nil {
		hasEntry = true
	}

	w.Header().Set("HX-Retarget", "#modal-body")
	w.Header().Set("HX-Reswap", "innerHTML")
	h.renderPartial(w, status, "entry_form", view.EntryFormData{
		Date:     date.Format(model.DateLayout),
		Entry:    &model.Entry{Score: scoreValue, Summary: summary},
		HasEntry: hasEntry,
		Error:    message,
	})
}

// pageErrorMessage はサービスエラーをページ表示用のステータスとメッセージに変換する。
func pageErrorMessage(err error) (int, string) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return mapAPIErrorToHTTPStatus(apiErr), apiErr.Message
	}

	slog.Error("internal server error", slog.String("error", err.Error()))
	return http.StatusInternalServerError, "内部エラーが発生しました。しばらく待ってから再度お試しください。"
}

// dayCell はカレンダーの1セル分の描画データを構築する。
func dayCell(date time.Time, today time.Time, e *model.Entry) view.DayCellData {
	return view.DayCellData{
		Date:    date.Format(model.DateLayout),
		Num:     date.Day(),
		InMonth: true,
		Today:   date.Equal(today),
		Future:  date.After(today),
		Entry:   e,
	}
}

// todayDate は現在日の0時（UTC）を返す。日付単位の比較に使う。
func todayDate() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// queryInt はクエリパラメータを整数として読み取る。未指定や不正な値は0を返す。
func queryInt(r *http.Request, key string) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
