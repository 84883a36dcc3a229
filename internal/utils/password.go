package utils

import "golang.org/x/crypto/bcrypt"

// MinPasswordLength is enforced on registration, profile update and reset.
const MinPasswordLength = 8

// MaxPasswordLength is the bcrypt input limit in bytes.
const MaxPasswordLength = 72

// HashPassword returns bcrypt hash using the given cost.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
