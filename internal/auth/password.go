package auth

import (
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/pdf-genie/internal/apperr"
)

const (
	bcryptMaxBytes   = 72
	maxPasswordBytes = 100
)

// HashPassword はパスワードを bcrypt でハッシュ化します。
// bcrypt は先頭72バイトしか使わないため、UTF-8の文字境界で切り詰めてからハッシュ化します。
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", apperr.Validation("EMPTY_PASSWORD", "empty password")
	}
	if len(password) > maxPasswordBytes {
		return "", apperr.Validation("PASSWORD_TOO_LONG", "oversized password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(truncatePassword(password)), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword はパスワードとハッシュが一致するかを返します。
func VerifyPassword(password, hash string) bool {
	if password == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(truncatePassword(password))) == nil
}

func truncatePassword(password string) string {
	if len(password) <= bcryptMaxBytes {
		return password
	}
	cut := bcryptMaxBytes
	for cut > 0 && !utf8.RuneStart(password[cut]) {
		cut--
	}
	return password[:cut]
}
