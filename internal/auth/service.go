// Package auth はパスワード認証とアクセストークンの発行・検証を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/hansei/internal/model"
	"github.com/hitoshi/hansei/internal/repository"
)

// PasswordMinLength はパスワードの最小文字数。
const PasswordMinLength = 6

// PasswordMaxBytes はパスワードの最大バイト数。bcryptの入力上限に合わせる。
const PasswordMaxBytes = 72

// MetricsRecorder は認証イベントのメトリクス記録を抽象化する。
type MetricsRecorder interface {
	RecordRegistration()
	RecordLogin()
	RecordAuthFailure()
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
	tokens   *TokenManager
	metrics  MetricsRecorder
}

// NewService はServiceを生成する。metricsはnilを許容する。
func NewService(userRepo repository.UserRepository, tokens *TokenManager, metrics MetricsRecorder) *Service {
	return &Service{
		userRepo: userRepo,
		tokens:   tokens,
		metrics:  metrics,
	}
}

// Register は新規ユーザーを登録する。
// メールアドレスは小文字に正規化して保存する。
func (s *Service) Register(ctx context.Context, email, password string) (*model.User, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, model.NewInvalidEmailError()
	}

	if err := validatePassword(password); err != nil {
		return nil, err
	}

	// 事前チェック。同時登録の競合はリポジトリ側でUNIQUE制約として検出される。
	existing, err := s.userRepo.FindByEmail(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewEmailTakenError()
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}

	user := &model.User{
		ID:           uuid.New().String(),
		Email:        normalized,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordRegistration()
	}

	slog.Info("新規ユーザーを登録しました",
		slog.String("user_id", user.ID),
	)

	return user, nil
}

// Login は資格情報を検証し、アクセストークンを発行する。
// メールアドレスの登録有無は応答から区別できないよう、常に同じエラーを返す。
func (s *Service) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		s.recordAuthFailure()
		return "", nil, model.NewInvalidCredentialsError()
	}

	user, err := s.userRepo.FindByEmail(ctx, normalized)
	if err != nil {
		return "", nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		// 未登録メールでも照合時間を揃えるためダミーハッシュと比較する
		VerifyPassword(dummyHash, password)
		s.recordAuthFailure()
		return "", nil, model.NewInvalidCredentialsError()
	}

	if !VerifyPassword(user.PasswordHash, password) {
		s.recordAuthFailure()
		return "", nil, model.NewInvalidCredentialsError()
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return "", nil, fmt.Errorf("トークンの発行に失敗しました: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordLogin()
	}

	slog.Info("ログインしました",
		slog.String("user_id", user.ID),
	)

	return token, user, nil
}

// UserFromToken はアクセストークンを検証し、対応するユーザーを返す。
func (s *Service) UserFromToken(ctx context.Context, tokenString string) (*model.User, error) {
	userID, err := s.tokens.Verify(tokenString)
	if err != nil {
		s.recordAuthFailure()
		return nil, model.NewUnauthorizedError()
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		// トークンは正当だがユーザーが退会済みのケース
		s.recordAuthFailure()
		return nil, model.NewUnauthorizedError()
	}

	return user, nil
}

// VerifyToken はトークンを検証し、ユーザーIDを返す。
func (s *Service) VerifyToken(tokenString string) (string, error) {
	userID, err := s.tokens.Verify(tokenString)
	if err != nil {
		s.recordAuthFailure()
		return "", model.NewUnauthorizedError()
	}
	return userID, nil
}

// recordAuthFailure は認証失敗をメトリクスに記録する。
func (s *Service) recordAuthFailure() {
	if s.metrics != nil {
		s.metrics.RecordAuthFailure()
	}
}

// normalizeEmail はメールアドレスを検証し、前後の空白を除去して小文字に揃える。
func normalizeEmail(email string) (string, error) {
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return "", fmt.Errorf("email is empty")
	}

	addr, err := mail.ParseAddress(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid email format: %w", err)
	}
	// 表示名付き（"Name <a@b>"形式）は受け付けない
	if addr.Address != trimmed {
		return "", fmt.Errorf("email must be a bare address")
	}

	return strings.ToLower(trimmed), nil
}

// validatePassword はパスワードの長さ要件を検証する。
func validatePassword(password string) error {
	if len([]rune(password)) < PasswordMinLength {
		return model.NewWeakPasswordError()
	}
	if len(password) > PasswordMaxBytes {
		return model.NewWeakPasswordError()
	}
	return nil
}
