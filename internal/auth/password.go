package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// dummyHash は存在しないユーザーのログイン試行時に照合するダミーのbcryptハッシュ。
// 実在ユーザーとの応答時間差からメールアドレスの登録有無を推測されるのを防ぐ。
// 照合結果は常に破棄するため、元のパスワードが何であるかは動作に影響しない。
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// HashPassword はパスワードをbcryptでハッシュ化する。
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword はパスワードとハッシュを照合する。一致すればtrueを返す。
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
