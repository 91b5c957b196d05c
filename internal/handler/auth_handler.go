// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/hansei/internal/middleware"
	"github.com/hitoshi/hansei/internal/model"
)

// authCookieName はアクセストークンを保持するCookieの名前。
const authCookieName = "access_token"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	// Register は新規ユーザーを登録する。
	Register(ctx context.Context, email, password string) (*model.User, error)
	// Login は資格情報を検証し、アクセストークンを発行する。
	Login(ctx context.Context, email, password string) (string, *model.User, error)
	// UserFromToken はアクセストークンを検証し、対応するユーザーを返す。
	UserFromToken(ctx context.Context, tokenString string) (*model.User, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain string
	CookieSecure bool
	TokenMaxAge  int // アクセストークンCookieの有効期間（秒）
}

// AuthHandler はトークン認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// registerRequest は新規登録リクエストのボディ。
type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// tokenResponse はアクセストークンのAPIレスポンス。
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Register は新規ユーザーを登録する。
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("ボディの解析に失敗しました"))
		return
	}

	user, err := h.service.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toUserResponse(user))
}

// Login は資格情報を検証し、アクセストークンを発行する。
// OAuth2パスワードフロー互換のため、フォーム形式でusernameとpasswordを受け取る。
// POST /api/auth/login (application/x-www-form-urlencoded)
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("フォームの解析に失敗しました"))
		return
	}

	email := r.PostFormValue("username")
	password := r.PostFormValue("password")

	token, _, err := h.service.Login(r.Context(), email, password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// ブラウザからの後続リクエスト用にHttpOnly Cookieにも設定する
	setAuthCookie(w, h.config, token)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
	})
}

// Logout はアクセストークンCookieを破棄する。
// トークン自体はステートレスなため、サーバー側で無効化する状態は持たない。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	clearAuthCookie(w, h.config)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "ログアウトしました。",
	})
}

// Me は現在のログインユーザー情報を返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	token := middleware.TokenFromRequest(r)
	if token == "" {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	user, err := h.service.UserFromToken(r.Context(), token)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toUserResponse(user))
}

// SetupAuthRoutes は認証関連のルーティングを設定したchi.Routerを返す。
// authLimitMiddleware が nil でない場合、登録とログインに認証専用レート制限を適用する。
func SetupAuthRoutes(service AuthServiceInterface, config AuthHandlerConfig, authLimitMiddleware func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	h := NewAuthHandler(service, config)

	r.Route("/api/auth", func(r chi.Router) {
		if authLimitMiddleware != nil {
			r.With(authLimitMiddleware).Post("/register", h.Register)
			r.With(authLimitMiddleware).Post("/login", h.Login)
		} else {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
		}

		r.Post("/logout", h.Logout)
		r.Get("/me", h.Me)
	})

	return r
}

// --- ヘルパー関数 ---

// toUserResponse はmodel.UserからAPIレスポンスに変換する。
func toUserResponse(user *model.User) userResponse {
	return userResponse{
		ID:        user.ID,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	}
}

// setAuthCookie はアクセストークンをHttpOnly Cookieに設定する。
func setAuthCookie(w http.ResponseWriter, config AuthHandlerConfig, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    token,
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   config.TokenMaxAge,
		HttpOnly: true,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearAuthCookie はアクセストークンCookieを削除する。
func clearAuthCookie(w http.ResponseWriter, config AuthHandlerConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    "",
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
