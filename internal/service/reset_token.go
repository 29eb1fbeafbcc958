package service

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"time"
)

const resetTokenBytes = 32

// ResetTokenService genera y verifica tokens de reseteo de contraseña.
// Solo el hash se persiste; el valor plano viaja únicamente por correo.
type ResetTokenService struct {
	ttl time.Duration
}

func NewResetTokenService(ttl time.Duration) *ResetTokenService {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ResetTokenService{ttl: ttl}
}

func (s *ResetTokenService) Generate() (string, string, time.Time, error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", time.Time{}, err
	}
	plain := hex.EncodeToString(buf)
	hash := s.HashToken(plain)
	expiresAt := time.Now().UTC().Add(s.ttl)
	return plain, hash, expiresAt, nil
}

// HashToken produce el hash determinístico usado como clave de búsqueda.
func (s *ResetTokenService) HashToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// Verify falla cerrado: cualquier mismatch o expiración devuelve false
// sin revelar cuál chequeo falló.
func (s *ResetTokenService) Verify(plain, storedHash string, storedExpiry time.Time) bool {
	if strings.TrimSpace(plain) == "" || storedHash == "" {
		return false
	}
	if !time.Now().UTC().Before(storedExpiry) {
		return false
	}
	computed := s.HashToken(plain)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}
