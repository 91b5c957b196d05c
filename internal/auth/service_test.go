package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/hansei/internal/model"
	"github.com/hitoshi/hansei/internal/repository"
)

// --- モック定義 ---

type mockUserRepo struct {
	createFn      func(ctx context.Context, user *model.User) error
	findByIDFn    func(ctx context.Context, id string) (*model.User, error)
	findByEmailFn func(ctx context.Context, email string) (*model.User, error)
	deleteByIDFn  func(ctx context.Context, id string) error
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

type mockAuthMetrics struct {
	registrations int
	logins        int
	authFailures  int
}

func (m *mockAuthMetrics) RecordRegistration() { m.registrations++ }
func (m *mockAuthMetrics) RecordLogin()        { m.logins++ }
func (m *mockAuthMetrics) RecordAuthFailure()  { m.authFailures++ }

// --- compile-time interface checks ---
var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ MetricsRecorder = (*mockAuthMetrics)(nil)

func newTestService(repo repository.UserRepository) *Service {
	return NewService(repo, NewTokenManager([]byte("test-secret-key"), time.Hour), nil)
}

func assertAPIErrorCode(t *testing.T, err error, wantCode string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if apiErr.Code != wantCode {
		t.Errorf("error code = %q, want %q", apiErr.Code, wantCode)
	}
}

// --- テスト ---

func TestRegister_Success(t *testing.T) {
	ctx := context.Background()

	var created *model.User
	repo := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			created = user
			return nil
		},
	}
	svc := newTestService(repo)

	user, err := svc.Register(ctx, "taro@example.com", "secret123")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if user == nil {
		t.Fatal("expected non-nil user")
	}
	if user.ID == "" {
		t.Error("expected non-empty user ID")
	}
	if user.Email != "taro@example.com" {
		t.Errorf("user email = %q, want %q", user.Email, "taro@example.com")
	}

	// 平文パスワードは保存されないこと
	if created == nil {
		t.Fatal("expected user to be persisted")
	}
	if created.PasswordHash == "secret123" {
		t.Error("password must not be stored in plain text")
	}
	if !VerifyPassword(created.PasswordHash, "secret123") {
		t.Error("stored hash does not verify the original password")
	}
}

func TestRegister_NormalizesEmail(t *testing.T) {
	ctx := context.Background()

	var created *model.User
	repo := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			created = user
			return nil
		},
	}
	svc := newTestService(repo)

	if _, err := svc.Register(ctx, "  Taro@Example.COM  ", "secret123"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if created == nil {
		t.Fatal("expected user to be persisted")
	}
	if created.Email != "taro@example.com" {
		t.Errorf("stored email = %q, want %q", created.Email, "taro@example.com")
	}
}

func TestRegister_InvalidEmail(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(&mockUserRepo{})

	tests := []struct {
		name  string
		email string
	}{
		{name: "empty", email: ""},
		{name: "no at sign", email: "not-an-email"},
		{name: "double at sign", email: "a@b@example.com"},
		{name: "display name form", email: "Taro <taro@example.com>"},
		{name: "spaces inside", email: "ta ro@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.email, "secret123")
			if err == nil {
				t.Fatalf("Register(%q) expected error, got nil", tt.email)
			}
			assertAPIErrorCode(t, err, model.ErrCodeInvalidEmail)
		})
	}
}

func TestRegister_InvalidPassword(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(&mockUserRepo{})

	tests := []struct {
		name     string
		password string
	}{
		{name: "empty", password: ""},
		{name: "five chars", password: "12345"},
		{name: "five multibyte chars", password: "あいうえお"},
		{name: "over 72 bytes", password: strings.Repeat("a", 73)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, "taro@example.com", tt.password)
			if err == nil {
				t.Fatal("Register() expected error, got nil")
			}
			assertAPIErrorCode(t, err, model.ErrCodeWeakPassword)
		})
	}
}

func TestRegister_BoundaryPasswordLengths(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(&mockUserRepo{})

	// 6文字ちょうどと72バイトちょうどは許容される
	if _, err := svc.Register(ctx, "a@example.com", "123456"); err != nil {
		t.Errorf("Register() with 6-char password error = %v", err)
	}
	if _, err := svc.Register(ctx, "b@example.com", strings.Repeat("a", 72)); err != nil {
		t.Errorf("Register() with 72-byte password error = %v", err)
	}
}

// TestRegister_DuplicateEmail_PreCheck は事前チェックで重複メールが弾かれることを確認する。
func TestRegister_DuplicateEmail_PreCheck(t *testing.T) {
	ctx := context.Background()

	createCalled := false
	repo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "existing", Email: email}, nil
		},
		createFn: func(ctx context.Context, user *model.User) error {
			createCalled = true
			return nil
		},
	}
	svc := newTestService(repo)

	_, err := svc.Register(ctx, "taro@example.com", "secret123")
	if err == nil {
		t.Fatal("Register() expected error, got nil")
	}
	assertAPIErrorCode(t, err, model.ErrCodeEmailTaken)
	if createCalled {
		t.Error("Create must not be called when the email is already registered")
	}
}

// TestRegister_DuplicateEmail_UniqueViolation は同時登録の競合が
// リポジトリ側の制約違反として返るケースを確認する。
func TestRegister_DuplicateEmail_UniqueViolation(t *testing.T) {
	ctx := context.Background()

	repo := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			return model.NewEmailTakenError()
		},
	}
	svc := newTestService(repo)

	_, err := svc.Register(ctx, "taro@example.com", "secret123")
	if err == nil {
		t.Fatal("Register() expected error, got nil")
	}
	assertAPIErrorCode(t, err, model.ErrCodeEmailTaken)
}

func TestLogin_Success(t *testing.T) {
	ctx := context.Background()

	hash, err := HashPassword("secret123")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	repo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{
				ID:           "user-1",
				Email:        "taro@example.com",
				PasswordHash: hash,
			}, nil
		},
	}
	tokens := NewTokenManager([]byte("test-secret-key"), time.Hour)
	svc := NewService(repo, tokens, nil)

	token, user, err := svc.Login(ctx, "taro@example.com", "secret123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if user == nil || user.ID != "user-1" {
		t.Fatalf("Login() user = %+v, want ID user-1", user)
	}

	// 発行されたトークンが検証を通ること
	userID, err := tokens.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if userID != "user-1" {
		t.Errorf("token subject = %q, want %q", userID, "user-1")
	}
}

func TestLogin_NormalizesEmailBeforeLookup(t *testing.T) {
	ctx := context.Background()

	var lookedUp string
	repo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			lookedUp = email
			return nil, nil
		},
	}
	svc := newTestService(repo)

	_, _, _ = svc.Login(ctx, "  Taro@Example.COM  ", "secret123")

	if lookedUp != "taro@example.com" {
		t.Errorf("lookup email = %q, want %q", lookedUp, "taro@example.com")
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	ctx := context.Background()

	hash, err := HashPassword("secret123")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	repo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "user-1", Email: email, PasswordHash: hash}, nil
		},
	}
	svc := newTestService(repo)

	_, _, err = svc.Login(ctx, "taro@example.com", "wrong-password")
	if err == nil {
		t.Fatal("Login() expected error, got nil")
	}
	assertAPIErrorCode(t, err, model.ErrCodeInvalidCredentials)
}

func TestLogin_UnknownEmail(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(&mockUserRepo{})

	_, _, err := svc.Login(ctx, "nobody@example.com", "secret123")
	if err == nil {
		t.Fatal("Login() expected error, got nil")
	}
	assertAPIErrorCode(t, err, model.ErrCodeInvalidCredentials)
}

// TestLogin_IndistinguishableFailures は未登録メールとパスワード不一致で
// 同一のエラー応答になることを確認する。
func TestLogin_IndistinguishableFailures(t *testing.T) {
	ctx := context.Background()

	hash, err := HashPassword("secret123")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	knownRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "user-1", Email: email, PasswordHash: hash}, nil
		},
	}

	_, _, wrongPassErr := newTestService(knownRepo).Login(ctx, "taro@example.com", "wrong")
	_, _, unknownErr := newTestService(&mockUserRepo{}).Login(ctx, "nobody@example.com", "wrong")

	if wrongPassErr == nil || unknownErr == nil {
		t.Fatal("expected both logins to fail")
	}
	if wrongPassErr.Error() != unknownErr.Error() {
		t.Errorf("failure messages differ: %q vs %q", wrongPassErr.Error(), unknownErr.Error())
	}
}

func TestUserFromToken_Success(t *testing.T) {
	ctx := context.Background()

	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Email: "taro@example.com"}, nil
		},
	}
	tokens := NewTokenManager([]byte("test-secret-key"), time.Hour)
	svc := NewService(repo, tokens, nil)

	token, err := tokens.Generate("user-1")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	user, err := svc.UserFromToken(ctx, token)
	if err != nil {
		t.Fatalf("UserFromToken() error = %v", err)
	}
	if user.ID != "user-1" {
		t.Errorf("user ID = %q, want %q", user.ID, "user-1")
	}
}

func TestUserFromToken_InvalidToken(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(&mockUserRepo{})

	_, err := svc.UserFromToken(ctx, "not-a-valid-token")
	if err == nil {
		t.Fatal("UserFromToken() expected error, got nil")
	}
	assertAPIErrorCode(t, err, model.ErrCodeUnauthorized)
}

// TestUserFromToken_WithdrawnUser は退会済みユーザーのトークンが
// 未認証として扱われることを確認する。
func TestUserFromToken_WithdrawnUser(t *testing.T) {
	ctx := context.Background()

	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return nil, nil
		},
	}
	tokens := NewTokenManager([]byte("test-secret-key"), time.Hour)
	svc := NewService(repo, tokens, nil)

	token, err := tokens.Generate("gone-user")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	_, err = svc.UserFromToken(ctx, token)
	if err == nil {
		t.Fatal("UserFromToken() expected error, got nil")
	}
	assertAPIErrorCode(t, err, model.ErrCodeUnauthorized)
}

func TestVerifyToken(t *testing.T) {
	tokens := NewTokenManager([]byte("test-secret-key"), time.Hour)
	svc := NewService(&mockUserRepo{}, tokens, nil)

	token, err := tokens.Generate("user-1")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	userID, err := svc.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken() error = %v", err)
	}
	if userID != "user-1" {
		t.Errorf("VerifyToken() = %q, want %q", userID, "user-1")
	}

	if _, err := svc.VerifyToken("broken"); err == nil {
		t.Error("VerifyToken() expected error for broken token, got nil")
	}
}

// TestService_RecordsAuthMetrics は認証イベントがメトリクスに記録されることを確認する。
func TestService_RecordsAuthMetrics(t *testing.T) {
	ctx := context.Background()
	tokens := NewTokenManager([]byte("test-secret-key"), time.Hour)

	t.Run("registration", func(t *testing.T) {
		rec := &mockAuthMetrics{}
		svc := NewService(&mockUserRepo{}, tokens, rec)

		if _, err := svc.Register(ctx, "taro@example.com", "secret123"); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
		if rec.registrations != 1 {
			t.Errorf("registrations = %d, want 1", rec.registrations)
		}
	})

	t.Run("login success", func(t *testing.T) {
		hash, err := HashPassword("secret123")
		if err != nil {
			t.Fatalf("HashPassword() error = %v", err)
		}
		repo := &mockUserRepo{
			findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
				return &model.User{ID: "user-1", Email: email, PasswordHash: hash}, nil
			},
		}
		rec := &mockAuthMetrics{}
		svc := NewService(repo, tokens, rec)

		if _, _, err := svc.Login(ctx, "taro@example.com", "secret123"); err != nil {
			t.Fatalf("Login() error = %v", err)
		}
		if rec.logins != 1 {
			t.Errorf("logins = %d, want 1", rec.logins)
		}
		if rec.authFailures != 0 {
			t.Errorf("authFailures = %d, want 0", rec.authFailures)
		}
	})

	t.Run("login failure", func(t *testing.T) {
		rec := &mockAuthMetrics{}
		svc := NewService(&mockUserRepo{}, tokens, rec)

		if _, _, err := svc.Login(ctx, "nobody@example.com", "wrong-password"); err == nil {
			t.Fatal("Login() expected error, got nil")
		}
		if rec.authFailures != 1 {
			t.Errorf("authFailures = %d, want 1", rec.authFailures)
		}
		if rec.logins != 0 {
			t.Errorf("logins = %d, want 0", rec.logins)
		}
	})

	t.Run("invalid token", func(t *testing.T) {
		rec := &mockAuthMetrics{}
		svc := NewService(&mockUserRepo{}, tokens, rec)

		if _, err := svc.VerifyToken("broken"); err == nil {
			t.Fatal("VerifyToken() expected error, got nil")
		}
		if rec.authFailures != 1 {
			t.Errorf("authFailures = %d, want 1", rec.authFailures)
		}
	})
}
