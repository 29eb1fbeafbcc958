package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"auth-api/internal/domain"
	"auth-api/internal/service"
)

type mockUserRepo struct {
	usersByID    map[string]domain.User
	usersByEmail map[string]string
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		usersByID:    make(map[string]domain.User),
		usersByEmail: make(map[string]string),
	}
}

func (m *mockUserRepo) Create(_ context.Context, user domain.User) error {
	m.usersByID[user.ID] = user
	if user.Email != "" {
		m.usersByEmail[user.Email] = user.ID
	}
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	user, ok := m.usersByID[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return user, nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (domain.User, error) {
	id, ok := m.usersByEmail[email]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return m.GetByID(context.Background(), id)
}

func (m *mockUserRepo) GetByResetTokenHash(_ context.Context, tokenHash string) (domain.User, error) {
	if tokenHash == "" {
		return domain.User{}, pgx.ErrNoRows
	}
	for _, user := range m.usersByID {
		if user.ResetTokenHash == tokenHash {
			return user, nil
		}
	}
	return domain.User{}, pgx.ErrNoRows
}

func (m *mockUserRepo) UpdatePassword(_ context.Context, id, passwordHash string, changedAt time.Time) error {
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.PasswordHash = passwordHash
	user.PasswordChangedAt = changedAt
	user.ResetTokenHash = ""
	user.ResetTokenExpiresAt = nil
	m.usersByID[id] = user
	return nil
}

func (m *mockUserRepo) SetResetToken(_ context.Context, id, tokenHash string, expiresAt time.Time) error {
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.ResetTokenHash = tokenHash
	user.ResetTokenExpiresAt = &expiresAt
	m.usersByID[id] = user
	return nil
}

func (m *mockUserRepo) ClearResetToken(_ context.Context, id string) error {
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.ResetTokenHash = ""
	user.ResetTokenExpiresAt = nil
	m.usersByID[id] = user
	return nil
}

func (m *mockUserRepo) List(_ context.Context, _, _ int) ([]domain.User, error) {
	var users []domain.User
	for _, user := range m.usersByID {
		users = append(users, user)
	}
	return users, nil
}

func (m *mockUserRepo) setRole(id string, role domain.Role) {
	user := m.usersByID[id]
	user.Role = role
	m.usersByID[id] = user
}

type mockEmailSender struct {
	lastTo  string
	lastURL string
	err     error
}

func (m *mockEmailSender) SendPasswordReset(_ context.Context, toEmail string, resetURL string, _ time.Time) error {
	m.lastTo = toEmail
	m.lastURL = resetURL
	return m.err
}

func setupAuthRouter(repo *mockUserRepo, sender *mockEmailSender) (*gin.Engine, *service.TokenService) {
	gin.SetMode(gin.TestMode)
	tokenSvc := service.NewTokenService("secret", 15*time.Minute)
	resetSvc := service.NewResetTokenService(10 * time.Minute)
	authSvc := service.NewAuthService(zap.NewNop(), repo, sender, resetSvc, nil, nil, "http://localhost:8080")
	authH := NewAuthHandler(zap.NewNop(), authSvc, tokenSvc, 7, false)
	adminH := NewAdminHandler(zap.NewNop(), repo)
	return NewRouter(zap.NewNop(), authH, adminH, tokenSvc, repo), tokenSvc
}

func performRequest(r http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeToken(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Token == "" {
		t.Fatalf("expected token in response, body: %s", rec.Body.String())
	}
	return resp.Token
}

func signupBody(email string) map[string]string {
	return map[string]string{
		"email":            email,
		"display_name":     "Tester",
		"password":         "secret123",
		"password_confirm": "secret123",
	}
}

func TestAuthHandlerSignup_Success(t *testing.T) {
	r, tokenSvc := setupAuthRouter(newMockUserRepo(), &mockEmailSender{})

	rec := performRequest(r, http.MethodPost, "/auth/signup", signupBody("a@x.com"), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	token := decodeToken(t, rec)
	claims, err := tokenSvc.Verify(token)
	if err != nil {
		t.Fatalf("verify issued token: %v", err)
	}
	if claims.Email != "a@x.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	cookie := rec.Header().Get("Set-Cookie")
	if !strings.Contains(cookie, sessionCookieName+"=") || !strings.Contains(cookie, "HttpOnly") {
		t.Fatalf("expected httpOnly session cookie, got %q", cookie)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("expected password fields to stay out of the response")
	}
}

func TestAuthHandlerSignup_ConfirmMismatch(t *testing.T) {
	r, _ := setupAuthRouter(newMockUserRepo(), &mockEmailSender{})

	body := signupBody("a@x.com")
	body["password_confirm"] = "secret124"
	rec := performRequest(r, http.MethodPost, "/auth/signup", body, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestAuthHandlerLogin_GenericInvalidCredentials(t *testing.T) {
	r, _ := setupAuthRouter(newMockUserRepo(), &mockEmailSender{})

	rec := performRequest(r, http.MethodPost, "/auth/signup", signupBody("a@x.com"), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}

	wrongPass := performRequest(r, http.MethodPost, "/auth/login", map[string]string{
		"email": "a@x.com", "password": "wrong-pass",
	}, nil)
	unknownEmail := performRequest(r, http.MethodPost, "/auth/login", map[string]string{
		"email": "nobody@x.com", "password": "secret123",
	}, nil)

	if wrongPass.Code != http.StatusUnauthorized || unknownEmail.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401/401, got %d/%d", wrongPass.Code, unknownEmail.Code)
	}
	if wrongPass.Body.String() != unknownEmail.Body.String() {
		t.Fatalf("expected identical error bodies, got %q vs %q", wrongPass.Body.String(), unknownEmail.Body.String())
	}
}

func TestAuthHandlerForgotPassword_SendFailureRollsBack(t *testing.T) {
	repo := newMockUserRepo()
	sender := &mockEmailSender{err: errors.New("smtp down")}
	r, _ := setupAuthRouter(repo, sender)

	performRequest(r, http.MethodPost, "/auth/signup", signupBody("a@x.com"), nil)

	rec := performRequest(r, http.MethodPost, "/auth/forgot-password", map[string]string{"email": "a@x.com"}, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}

	// El token generado antes de la falla no debe servir para resetear.
	idx := strings.LastIndex(sender.lastURL, "/")
	plainToken := sender.lastURL[idx+1:]
	rec = performRequest(r, http.MethodPost, "/auth/reset-password/"+plainToken, map[string]string{
		"password": "brandnew1", "password_confirm": "brandnew1",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 after rollback, got %d", rec.Code)
	}
}

func TestAuthHandlerForgotPassword_DoesNotLeakToken(t *testing.T) {
	repo := newMockUserRepo()
	sender := &mockEmailSender{}
	r, _ := setupAuthRouter(repo, sender)

	performRequest(r, http.MethodPost, "/auth/signup", signupBody("a@x.com"), nil)

	rec := performRequest(r, http.MethodPost, "/auth/forgot-password", map[string]string{"email": "a@x.com"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	idx := strings.LastIndex(sender.lastURL, "/")
	plainToken := sender.lastURL[idx+1:]
	if plainToken == "" {
		t.Fatalf("expected reset token in email url")
	}
	if strings.Contains(rec.Body.String(), plainToken) {
		t.Fatalf("reset token must not appear in the response body")
	}
}

func TestAuthHandlerResetPassword_FlowAndSingleUse(t *testing.T) {
	repo := newMockUserRepo()
	sender := &mockEmailSender{}
	r, _ := setupAuthRouter(repo, sender)

	performRequest(r, http.MethodPost, "/auth/signup", signupBody("a@x.com"), nil)
	performRequest(r, http.MethodPost, "/auth/forgot-password", map[string]string{"email": "a@x.com"}, nil)

	idx := strings.LastIndex(sender.lastURL, "/")
	plainToken := sender.lastURL[idx+1:]

	rec := performRequest(r, http.MethodPost, "/auth/reset-password/"+plainToken, map[string]string{
		"password": "brandnew1", "password_confirm": "brandnew1",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	decodeToken(t, rec)

	login := performRequest(r, http.MethodPost, "/auth/login", map[string]string{
		"email": "a@x.com", "password": "brandnew1",
	}, nil)
	if login.Code != http.StatusOK {
		t.Fatalf("expected login with new password to succeed, got %d", login.Code)
	}

	reuse := performRequest(r, http.MethodPost, "/auth/reset-password/"+plainToken, map[string]string{
		"password": "another12", "password_confirm": "another12",
	}, nil)
	if reuse.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 on token reuse, got %d", reuse.Code)
	}
}

func TestAuthHandlerChangePassword_ReissuesToken(t *testing.T) {
	repo := newMockUserRepo()
	r, tokenSvc := setupAuthRouter(repo, &mockEmailSender{})

	rec := performRequest(r, http.MethodPost, "/auth/signup", signupBody("a@x.com"), nil)
	oldToken := decodeToken(t, rec)

	rec = performRequest(r, http.MethodPost, "/auth/change-password", map[string]string{
		"current_password": "secret123",
		"password":         "brandnew1",
		"password_confirm": "brandnew1",
	}, map[string]string{"Authorization": "Bearer " + oldToken})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	newToken := decodeToken(t, rec)
	if _, err := tokenSvc.Verify(newToken); err != nil {
		t.Fatalf("verify reissued token: %v", err)
	}
}

func TestAuthHandlerAdminUsers_RoleGate(t *testing.T) {
	repo := newMockUserRepo()
	r, _ := setupAuthRouter(repo, &mockEmailSender{})

	rec := performRequest(r, http.MethodPost, "/auth/signup", signupBody("a@x.com"), nil)
	token := decodeToken(t, rec)

	forbidden := performRequest(r, http.MethodGet, "/admin/users", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if forbidden.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 for role user, got %d", forbidden.Code)
	}

	userID := repo.usersByEmail["a@x.com"]
	repo.setRole(userID, domain.RoleAdmin)

	allowed := performRequest(r, http.MethodGet, "/admin/users", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if allowed.Code != http.StatusOK {
		t.Fatalf("expected status 200 for role admin, got %d", allowed.Code)
	}
}
