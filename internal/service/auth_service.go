package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"auth-api/internal/domain"
	"auth-api/internal/email"
	"auth-api/internal/repository"
)

// AuthService coordina signup, login y los flujos de contraseña.
type AuthService struct {
	logger       *zap.Logger
	users        repository.UserRepository
	emailSender  email.Sender
	resetTokens  *ResetTokenService
	loginLimiter RateLimiter
	resetLimiter RateLimiter
	appBaseURL   string
}

func NewAuthService(
	logger *zap.Logger,
	users repository.UserRepository,
	emailSender email.Sender,
	resetTokens *ResetTokenService,
	loginLimiter RateLimiter,
	resetLimiter RateLimiter,
	appBaseURL string,
) *AuthService {
	if resetTokens == nil {
		resetTokens = NewResetTokenService(0)
	}
	if loginLimiter == nil {
		loginLimiter = NewRateLimiter(time.Minute, 10)
	}
	if resetLimiter == nil {
		resetLimiter = NewRateLimiter(10*time.Minute, 3)
	}
	return &AuthService{
		logger:       logger,
		users:        users,
		emailSender:  emailSender,
		resetTokens:  resetTokens,
		loginLimiter: loginLimiter,
		resetLimiter: resetLimiter,
		appBaseURL:   strings.TrimRight(appBaseURL, "/"),
	}
}

var (
	ErrInvalidEmail       = errors.New("invalid email")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrPasswordMismatch   = errors.New("password confirmation mismatch")
	ErrResetTokenInvalid  = errors.New("reset token invalid or expired")
	ErrEmailSendFailure   = errors.New("email send failed")
	ErrRateLimited        = errors.New("rate limited")
)

type SignupInput struct {
	Email           string
	DisplayName     string
	Password        string
	PasswordConfirm string
}

func (s *AuthService) Signup(ctx context.Context, input SignupInput) (domain.User, error) {
	if s.users == nil {
		return domain.User{}, errors.New("auth service not configured")
	}

	emailAddr := normalizeEmail(input.Email)
	if emailAddr == "" {
		return domain.User{}, ErrInvalidEmail
	}
	if input.Password != input.PasswordConfirm {
		return domain.User{}, ErrPasswordMismatch
	}
	passwordHash, err := HashPassword(input.Password)
	if err != nil {
		return domain.User{}, err
	}

	if _, err := s.users.GetByEmail(ctx, emailAddr); err == nil {
		return domain.User{}, ErrEmailTaken
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, err
	}

	now := time.Now().UTC()
	user := domain.User{
		ID:                uuid.NewString(),
		Email:             emailAddr,
		DisplayName:       strings.TrimSpace(input.DisplayName),
		Role:              domain.RoleUser,
		PasswordHash:      passwordHash,
		PasswordChangedAt: now,
		CreatedAt:         now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// Authenticate devuelve el mismo error genérico para email inexistente y
// contraseña incorrecta.
func (s *AuthService) Authenticate(ctx context.Context, emailAddr, password string) (domain.User, error) {
	if s.users == nil {
		return domain.User{}, errors.New("auth service not configured")
	}

	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" || password == "" {
		return domain.User{}, ErrInvalidCredentials
	}
	if s.loginLimiter != nil && !s.loginLimiter.Allow(emailAddr) {
		return domain.User{}, ErrRateLimited
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if user.PasswordHash == "" {
		return domain.User{}, ErrInvalidCredentials
	}
	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("stored password hash unreadable", zap.String("user_id", user.ID), zap.Error(err))
		}
		return domain.User{}, ErrInvalidCredentials
	}
	if !ok {
		return domain.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// ForgotPassword genera un token de reseteo y lo envía por correo. Si el
// envío falla, el token recién guardado se revierte antes de devolver error.
func (s *AuthService) ForgotPassword(ctx context.Context, emailAddr string) error {
	if s.users == nil {
		return errors.New("auth service not configured")
	}

	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return ErrInvalidEmail
	}
	if s.resetLimiter != nil && !s.resetLimiter.Allow(emailAddr) {
		return ErrRateLimited
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}

	plain, hash, expiresAt, err := s.resetTokens.Generate()
	if err != nil {
		return err
	}
	if err := s.users.SetResetToken(ctx, user.ID, hash, expiresAt); err != nil {
		return err
	}

	if s.emailSender == nil {
		s.rollbackResetToken(ctx, user.ID)
		return ErrEmailSendFailure
	}
	resetURL := fmt.Sprintf("%s/auth/reset-password/%s", s.appBaseURL, plain)
	if err := s.emailSender.SendPasswordReset(ctx, emailAddr, resetURL, expiresAt); err != nil {
		if s.logger != nil {
			s.logger.Warn("send password reset failed", zap.Error(err), zap.String("email", emailAddr))
		}
		s.rollbackResetToken(ctx, user.ID)
		return ErrEmailSendFailure
	}
	return nil
}

// ResetPassword consume el token: un segundo intento con el mismo valor
// falla porque el hash almacenado ya fue limpiado.
func (s *AuthService) ResetPassword(ctx context.Context, plainToken, newPassword, confirm string) (domain.User, error) {
	if s.users == nil {
		return domain.User{}, errors.New("auth service not configured")
	}

	plainToken = strings.TrimSpace(plainToken)
	if plainToken == "" {
		return domain.User{}, ErrResetTokenInvalid
	}
	if newPassword != confirm {
		return domain.User{}, ErrPasswordMismatch
	}

	user, err := s.users.GetByResetTokenHash(ctx, s.resetTokens.HashToken(plainToken))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrResetTokenInvalid
		}
		return domain.User{}, err
	}
	if user.ResetTokenExpiresAt == nil ||
		!s.resetTokens.Verify(plainToken, user.ResetTokenHash, *user.ResetTokenExpiresAt) {
		return domain.User{}, ErrResetTokenInvalid
	}

	passwordHash, err := HashPassword(newPassword)
	if err != nil {
		return domain.User{}, err
	}
	now := time.Now().UTC()
	if err := s.users.UpdatePassword(ctx, user.ID, passwordHash, now); err != nil {
		return domain.User{}, err
	}

	user.PasswordHash = passwordHash
	user.PasswordChangedAt = now
	user.ResetTokenHash = ""
	user.ResetTokenExpiresAt = nil
	return user, nil
}

// ChangePassword exige la contraseña vigente y mueve el watermark, lo que
// invalida todos los tokens de sesión emitidos antes del cambio.
func (s *AuthService) ChangePassword(ctx context.Context, userID, current, newPassword, confirm string) (domain.User, error) {
	if s.users == nil {
		return domain.User{}, errors.New("auth service not configured")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	ok, err := VerifyPassword(current, user.PasswordHash)
	if err != nil || !ok {
		return domain.User{}, ErrInvalidCredentials
	}
	if newPassword != confirm {
		return domain.User{}, ErrPasswordMismatch
	}

	passwordHash, err := HashPassword(newPassword)
	if err != nil {
		return domain.User{}, err
	}
	now := time.Now().UTC()
	if err := s.users.UpdatePassword(ctx, user.ID, passwordHash, now); err != nil {
		return domain.User{}, err
	}

	user.PasswordHash = passwordHash
	user.PasswordChangedAt = now
	user.ResetTokenHash = ""
	user.ResetTokenExpiresAt = nil
	return user, nil
}

func (s *AuthService) rollbackResetToken(ctx context.Context, userID string) {
	if err := s.users.ClearResetToken(ctx, userID); err != nil && s.logger != nil {
		s.logger.Error("clear reset token after send failure", zap.String("user_id", userID), zap.Error(err))
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
