package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TestTokenManager_GenerateAndVerify はトークンの発行と検証の往復を確認する。
func TestTokenManager_GenerateAndVerify(t *testing.T) {
	m := NewTokenManager([]byte("test-secret-key"), time.Hour)

	token, err := m.Generate("user-123")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	// JWTはヘッダ・ペイロード・署名の3パート構成
	if parts := strings.Split(token, "."); len(parts) != 3 {
		t.Errorf("token has %d parts, want 3", len(parts))
	}

	userID, err := m.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if userID != "user-123" {
		t.Errorf("Verify() = %q, want %q", userID, "user-123")
	}
}

// TestTokenManager_ExpiredToken は期限切れトークンが拒否されることを確認する。
func TestTokenManager_ExpiredToken(t *testing.T) {
	m := NewTokenManager([]byte("test-secret-key"), -time.Hour)

	token, err := m.Generate("user-123")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if _, err := m.Verify(token); err == nil {
		t.Error("expected error for expired token, got nil")
	}
}

// TestTokenManager_WrongSecret は別の鍵で署名されたトークンが拒否されることを確認する。
func TestTokenManager_WrongSecret(t *testing.T) {
	issuer := NewTokenManager([]byte("secret-a"), time.Hour)
	verifier := NewTokenManager([]byte("secret-b"), time.Hour)

	token, err := issuer.Generate("user-123")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if _, err := verifier.Verify(token); err == nil {
		t.Error("expected error for token signed with different secret, got nil")
	}
}

// TestTokenManager_MalformedToken は形式不正な文字列が拒否されることを確認する。
func TestTokenManager_MalformedToken(t *testing.T) {
	m := NewTokenManager([]byte("test-secret-key"), time.Hour)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "garbage", token: "not-a-jwt"},
		{name: "two parts", token: "abc.def"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Verify(tt.token); err == nil {
				t.Errorf("Verify(%q) expected error, got nil", tt.token)
			}
		})
	}
}

// TestTokenManager_RejectsNoneAlgorithm はalg=noneのトークンが拒否されることを確認する。
func TestTokenManager_RejectsNoneAlgorithm(t *testing.T) {
	m := NewTokenManager([]byte("test-secret-key"), time.Hour)

	claims := jwt.RegisteredClaims{
		Subject:   "user-123",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	if _, err := m.Verify(token); err == nil {
		t.Error("expected error for alg=none token, got nil")
	}
}

// TestTokenManager_RejectsEmptySubject はsubjectを持たないトークンが拒否されることを確認する。
func TestTokenManager_RejectsEmptySubject(t *testing.T) {
	secret := []byte("test-secret-key")
	m := NewTokenManager(secret, time.Hour)

	claims := jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	if _, err := m.Verify(signed); err == nil {
		t.Error("expected error for token without subject, got nil")
	}
}
