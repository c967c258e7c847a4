package crypto

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Ошибки хеширования паролей
var (
	ErrEmptyPassword    = errors.New("password cannot be empty")
	ErrPasswordMismatch = errors.New("password does not match hash")
	ErrInvalidHash      = errors.New("invalid password hash format")
	ErrPasswordTooLong  = errors.New("password exceeds maximum length of 72 bytes")
)

// DefaultCost - стоимость bcrypt хеширования по умолчанию
const DefaultCost = 12

// MaxPasswordLength - bcrypt ограничен 72 байтами
const MaxPasswordLength = 72

// HashPassword хеширует пароль оператора через bcrypt
// Salt генерируется автоматически
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > MaxPasswordLength {
		return "", ErrPasswordTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), DefaultCost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// VerifyPassword проверяет соответствие пароля хешу
// Сравнение constant-time, защита от timing attacks
func VerifyPassword(password, hash string) error {
	if password == "" {
		return ErrEmptyPassword
	}
	if hash == "" {
		return ErrInvalidHash
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return ErrInvalidHash
	}

	return nil
}

// CheckPasswordMatch удобная bool обёртка над VerifyPassword
func CheckPasswordMatch(password, hash string) bool {
	return VerifyPassword(password, hash) == nil
}
