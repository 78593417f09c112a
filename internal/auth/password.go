package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	ErrInvalidSalt      = errors.New("salt is not valid hex")
)

const (
	saltBytes         = 16
	MinPasswordLength = 8
)

// NewSalt returns 128 random bits, hex encoded.
func NewSalt() (string, error) {
	b := make([]byte, saltBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashPassword returns hex(SHA-256(salt || password)) where salt is the
// decoded salt bytes.
func HashPassword(salt, password string) (string, error) {
	raw, err := hex.DecodeString(salt)
	if err != nil || len(raw) == 0 {
		return "", ErrInvalidSalt
	}

	h := sha256.New()
	h.Write(raw)
	h.Write([]byte(password))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// NewCredentials salts and hashes a new password.
func NewCredentials(password string) (salt, hash string, err error) {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return "", "", ErrPasswordTooShort
	}
	salt, err = NewSalt()
	if err != nil {
		return "", "", err
	}
	hash, err = HashPassword(salt, password)
	if err != nil {
		return "", "", err
	}
	return salt, hash, nil
}

// CheckPassword compares a password with its salted hash in constant time
func CheckPassword(salt, password, hash string) bool {
	computed, err := HashPassword(salt, password)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}
