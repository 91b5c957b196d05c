// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/hansei/internal/model"
	"github.com/hitoshi/hansei/internal/repository"
)

// EntryDeleter は記録の一括削除インターフェース。
type EntryDeleter interface {
	DeleteByUserID(ctx context.Context, userID string) error
}

// Service はユーザー管理のサービス層。
// 退会処理のビジネスロジックを提供する。
type Service struct {
	userRepo     repository.UserRepository
	entryDeleter EntryDeleter
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, entryDeleter EntryDeleter) *Service {
	return &Service{
		userRepo:     userRepo,
		entryDeleter: entryDeleter,
	}
}

// Withdraw はユーザーの退会処理を実行する。
// 本人の記録をすべて削除したうえでユーザーを削除する。
// 記録はFKのCASCADEでも削除されるが、ストレージ実装に依存しないよう明示的に削除する。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	// ユーザー存在確認
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	// 1. 記録を削除
	if s.entryDeleter != nil {
		if err := s.entryDeleter.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("記録の削除に失敗しました: %w", err)
		}
	}

	// 2. ユーザーを削除
	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)

	return nil
}

// Profile は指定IDのユーザー情報を返す。存在しない場合はUSER_NOT_FOUNDを返す。
func (s *Service) Profile(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}
