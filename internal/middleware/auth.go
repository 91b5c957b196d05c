// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hitoshi/hansei/internal/model"
)

// authCookieName はアクセストークンを保持するCookieの名前。
const authCookieName = "access_token"

// bearerPrefix はAuthorizationヘッダーとCookie値の両方で許容する接頭辞。
const bearerPrefix = "Bearer "

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// TokenVerifier はアクセストークンの検証に必要なインターフェース。
// auth.Serviceの部分集合として定義する。
type TokenVerifier interface {
	VerifyToken(tokenString string) (string, error)
}

// TokenFromRequest はリクエストからアクセストークンを取り出す。
// Authorizationヘッダーを優先し、なければaccess_token Cookieを参照する。
// どちらも"Bearer "接頭辞の有無を許容する。
func TokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		return strings.TrimPrefix(header, bearerPrefix)
	}

	cookie, err := r.Cookie(authCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	return strings.TrimPrefix(cookie.Value, bearerPrefix)
}

// NewAuthMiddleware はアクセストークンを検証し、ユーザーIDをコンテキストに
// 注入するミドルウェアを返す。未認証リクエストには401のJSONを返す。
func NewAuthMiddleware(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			userID, err := verifier.VerifyToken(token)
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			ctx := context.WithValue(r.Context(), userIDContextKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewPageAuthMiddleware はページ向けの認証ミドルウェアを返す。
// 未認証の場合はJSONではなく/loginへリダイレクトする。
func NewPageAuthMiddleware(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				http.Redirect(w, r, "/login", http.StatusFound)
				return
			}

			userID, err := verifier.VerifyToken(token)
			if err != nil {
				http.Redirect(w, r, "/login", http.StatusFound)
				return
			}

			ctx := context.WithValue(r.Context(), userIDContextKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewOptionalAuthMiddleware はトークンが有効な場合のみユーザーIDを注入し、
// 無効でもリクエストを通すミドルウェアを返す。
// ログイン済みユーザーを/loginからカレンダーへ誘導する用途で使う。
func NewOptionalAuthMiddleware(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token != "" {
				if userID, err := verifier.VerifyToken(token); err == nil {
					r = r.WithContext(context.WithValue(r.Context(), userIDContextKey, userID))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
