package service

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrWeakPassword = errors.New("password too weak")
	ErrCorruptHash  = errors.New("password hash corrupt")
)

const minPasswordLength = 8

// HashPassword aplica bcrypt con salt aleatorio embebido en el digest.
func HashPassword(plaintext string) (string, error) {
	if strings.TrimSpace(plaintext) == "" || len(plaintext) < minPasswordLength {
		return "", ErrWeakPassword
	}
	hashBytes, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashBytes), nil
}

// VerifyPassword compara en tiempo constante; mismatch no es error.
func VerifyPassword(plaintext, digest string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, ErrCorruptHash
}
