package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/hansei/internal/middleware"
	"github.com/hitoshi/hansei/internal/view"
)

// HealthChecker はヘルスチェックで依存先の死活を確認するためのインターフェース。
// *sql.DB がこのインターフェースを満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenVerifier     middleware.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	HTTPMetrics       middleware.HTTPMetricsRecorder
	Logger            *slog.Logger

	// ヘルスチェック
	AppName       string
	HealthChecker HealthChecker

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 記録
	EntryService EntryServiceInterface
	PageEntries  PageEntryService

	// ユーザー
	UserService UserServiceInterface
	PageUsers   PageUserService

	// ページ描画
	Renderer *view.Renderer
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → Metrics
//
// に加え、認証必須のJSON APIには Auth → RateLimit(General) → CSRF を、
// 登録・ログインには認証専用レート制限を適用する。
// ページのフォーム送信はSameSite=LaxのCookieを前提とするため、
// CSRFミドルウェアはCookie認証のJSON APIにのみ適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// 全ルート共通のミドルウェア
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.HTTPMetrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.HTTPMetrics))
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	entryHandler := NewEntryHandler(deps.EntryService)
	userHandler := NewUserHandler(deps.UserService, deps.AuthConfig)
	pageHandler := NewPageHandler(deps.AuthService, deps.PageEntries, deps.PageUsers, deps.Renderer, deps.AuthConfig)

	r.Get("/health", newHealthHandler(deps.AppName, deps.HealthChecker))

	// --- 認証不要のJSON API ---

	// 登録・ログインは認証専用レート制限を追加
	r.Group(func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.AuthMiddleware())
		}
		r.Post("/api/auth/register", authHandler.Register)
		r.Post("/api/auth/login", authHandler.Login)
	})

	r.Post("/api/auth/logout", authHandler.Logout)
	r.Get("/api/auth/me", authHandler.Me)
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// --- 認証が必要なJSON API ---
	// ミドルウェアスタック: Auth → RateLimit(General) → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.TokenVerifier))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.GeneralMiddleware())
		}
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		// 記録管理
		r.Route("/api/entries", func(r chi.Router) {
			r.Get("/", entryHandler.ListEntries)
			r.Post("/", entryHandler.CreateEntry)

			r.Route("/{date}", func(r chi.Router) {
				r.Get("/", entryHandler.GetEntry)
				r.Put("/", entryHandler.UpdateEntry)
				r.Delete("/", entryHandler.DeleteEntry)
			})
		})

		// 退会（記録も連鎖削除される）
		r.Delete("/api/auth/account", userHandler.Withdraw)
	})

	// --- ページ ---

	// 未ログインでも表示できるページ
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewOptionalAuthMiddleware(deps.TokenVerifier))
		r.Get("/", pageHandler.Home)
		r.Get("/login", pageHandler.LoginPage)
		r.Get("/register", pageHandler.RegisterPage)
	})

	// ログイン・登録フォームの送信（認証専用レート制限を追加）
	r.Group(func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.AuthMiddleware())
		}
		r.Post("/login", pageHandler.LoginSubmit)
		r.Post("/register", pageHandler.RegisterSubmit)
	})

	r.Get("/logout", pageHandler.Logout)

	// ログイン必須のページ
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewPageAuthMiddleware(deps.TokenVerifier))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.GeneralMiddleware())
		}
		r.Get("/calendar", pageHandler.CalendarPage)

		r.Route("/calendar/day/{date}", func(r chi.Router) {
			r.Get("/", pageHandler.DayForm)
			r.Post("/", pageHandler.DaySubmit)
			r.Delete("/", pageHandler.DayDelete)
		})

		r.Get("/settings", pageHandler.SettingsPage)
		r.Post("/settings/delete-account", pageHandler.DeleteAccount)
	})

	return r
}

// newHealthHandler はヘルスチェック用のハンドラーを返す。
// checkerが指定されている場合はDB接続の死活も確認する。
func newHealthHandler(appName string, checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if checker != nil {
			if err := checker.PingContext(r.Context()); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy"})
				return
			}
		}

		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
			"app":    appName,
		})
	}
}
