package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaiwahq/kaiwa/internal/domain"
	"github.com/kaiwahq/kaiwa/internal/invite"
	"github.com/kaiwahq/kaiwa/internal/session"
)

// =============================================================================
// Mocks
// =============================================================================

var errNotImplemented = errors.New("not implemented")

// mockUserService implements service.UserService with overridable funcs.
type mockUserService struct {
	registerFunc           func(ctx context.Context, params domain.RegisterParams) (*domain.User, error)
	loginFunc              func(ctx context.Context, email, password string) (*domain.LoginResult, error)
	logoutFunc             func(ctx context.Context, token string) error
	resetPasswordFunc      func(ctx context.Context, params domain.ResetPasswordParams) error
	verifyEmailFunc        func(ctx context.Context, token string) error
	getByIDFunc            func(ctx context.Context, id uuid.UUID) (*domain.User, error)
	getByECPayTradeNoFunc  func(ctx context.Context, tradeNo string) (*domain.User, error)
	updateSubscriptionFunc func(ctx context.Context, params domain.SubscriptionUpdateParams) error
}

func (m *mockUserService) Register(ctx context.Context, params domain.RegisterParams) (*domain.User, error) {
	if m.registerFunc != nil {
		return m.registerFunc(ctx, params)
	}
	return nil, errNotImplemented
}

func (m *mockUserService) Login(ctx context.Context, email, password string) (*domain.LoginResult, error) {
	if m.loginFunc != nil {
		return m.loginFunc(ctx, email, password)
	}
	return nil, errNotImplemented
}

func (m *mockUserService) Logout(ctx context.Context, token string) error {
	if m.logoutFunc != nil {
		return m.logoutFunc(ctx, token)
	}
	return nil
}

func (m *mockUserService) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, errNotImplemented
}

func (m *mockUserService) GetBySessionToken(ctx context.Context, token string) (*domain.User, error) {
	return nil, errNotImplemented
}

func (m *mockUserService) UpdateProfile(ctx context.Context, params domain.ProfileUpdateParams) error {
	return errNotImplemented
}

func (m *mockUserService) ChangePassword(ctx context.Context, params domain.PasswordChangeParams) error {
	return errNotImplemented
}

func (m *mockUserService) DeleteExpiredSessions(ctx context.Context) error { return nil }

func (m *mockUserService) CreateEmailVerificationToken(ctx context.Context, userID uuid.UUID) (*domain.EmailTokenResult, error) {
	return &domain.EmailTokenResult{Token: "verify-token", UserID: userID}, nil
}

func (m *mockUserService) VerifyEmail(ctx context.Context, token string) error {
	if m.verifyEmailFunc != nil {
		return m.verifyEmailFunc(ctx, token)
	}
	return errNotImplemented
}

func (m *mockUserService) ResendVerificationEmail(ctx context.Context, email string) (*domain.EmailTokenResult, error) {
	return nil, errNotImplemented
}

func (m *mockUserService) CreatePasswordResetToken(ctx context.Context, email string) (*domain.EmailTokenResult, error) {
	return nil, errNotImplemented
}

func (m *mockUserService) ValidatePasswordResetToken(ctx context.Context, token string) (uuid.UUID, error) {
	return uuid.Nil, errNotImplemented
}

func (m *mockUserService) ResetPassword(ctx context.Context, params domain.ResetPasswordParams) error {
	if m.resetPasswordFunc != nil {
		return m.resetPasswordFunc(ctx, params)
	}
	return errNotImplemented
}

func (m *mockUserService) DeleteExpiredEmailTokens(ctx context.Context) error { return nil }

func (m *mockUserService) UpdateStripeCustomer(ctx context.Context, userID uuid.UUID, stripeCustomerID string) error {
	return nil
}

func (m *mockUserService) UpdateECPayTradeNo(ctx context.Context, userID uuid.UUID, tradeNo string) error {
	return nil
}

func (m *mockUserService) UpdateSubscription(ctx context.Context, params domain.SubscriptionUpdateParams) error {
	if m.updateSubscriptionFunc != nil {
		return m.updateSubscriptionFunc(ctx, params)
	}
	return nil
}

func (m *mockUserService) GetByStripeCustomerID(ctx context.Context, stripeCustomerID string) (*domain.User, error) {
	return nil, errNotImplemented
}

func (m *mockUserService) GetByECPayTradeNo(ctx context.Context, tradeNo string) (*domain.User, error) {
	if m.getByECPayTradeNoFunc != nil {
		return m.getByECPayTradeNoFunc(ctx, tradeNo)
	}
	return nil, errNotImplemented
}

// mockEmailService records sends without doing anything.
type mockEmailService struct{}

func (m *mockEmailService) SendVerificationEmail(ctx context.Context, to, name, token string) error {
	return nil
}
func (m *mockEmailService) SendPasswordResetEmail(ctx context.Context, to, name, token string) error {
	return nil
}
func (m *mockEmailService) SendReportReadyEmail(ctx context.Context, to, name, reportURL string) error {
	return nil
}
func (m *mockEmailService) SendPaymentFailedEmail(ctx context.Context, to, name string) error {
	return nil
}
func (m *mockEmailService) SendUsageWarningEmail(ctx context.Context, to, name, resource string, used, limit int64) error {
	return nil
}

func newTestAuthHandler(users *mockUserService) *AuthHandler {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewAuthHandler(users, &mockEmailService{}, invite.New(false, nil), logger, false)
}

func jsonRequest(method, target string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req
}

// =============================================================================
// Login
// =============================================================================

func TestLogin_Success_SetsSessionCookie(t *testing.T) {
	userID := uuid.New()
	users := &mockUserService{
		loginFunc: func(ctx context.Context, email, password string) (*domain.LoginResult, error) {
			assert.Equal(t, "coach@example.com", email)
			return &domain.LoginResult{
				User: &domain.User{
					ID:               userID,
					Email:            email,
					Name:             "Coach",
					SubscriptionTier: domain.PlanTierFree,
				},
				Token: "raw-session-token",
			}, nil
		},
	}
	h := newTestAuthHandler(users)

	req := jsonRequest("POST", "/api/auth/login", map[string]string{
		"email":    "Coach@Example.com", // normalized to lowercase
		"password": "secret-password",
	})
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "session cookie should be set")
	assert.Equal(t, "raw-session-token", cookie.Value)
	assert.True(t, cookie.HttpOnly)

	var resp struct {
		User UserResponse `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, userID, resp.User.ID)
	assert.Equal(t, "coach@example.com", resp.User.Email)
}

func TestLogin_InvalidCredentials_GenericMessage(t *testing.T) {
	users := &mockUserService{
		loginFunc: func(ctx context.Context, email, password string) (*domain.LoginResult, error) {
			return nil, domain.Unauthorized("user.login", "no account for coach@example.com")
		},
	}
	h := newTestAuthHandler(users)

	req := jsonRequest("POST", "/api/auth/login", map[string]string{
		"email":    "coach@example.com",
		"password": "wrong",
	})
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := rec.Body.String()
	// Whether the account exists must not leak.
	assert.Contains(t, body, "Invalid email or password")
	assert.NotContains(t, body, "no account")
}

func TestLogin_MissingFields(t *testing.T) {
	h := newTestAuthHandler(&mockUserService{})

	req := jsonRequest("POST", "/api/auth/login", map[string]string{"email": "coach@example.com"})
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// Register
// =============================================================================

func TestRegister_ValidationErrors(t *testing.T) {
	h := newTestAuthHandler(&mockUserService{})

	req := jsonRequest("POST", "/api/auth/register", map[string]string{
		"name":     "",
		"email":    "not-an-email",
		"password": "short",
	})
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp JSONError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.EINVALID, resp.Error.Code)
	assert.Contains(t, resp.Error.Fields, "name")
	assert.Contains(t, resp.Error.Fields, "email")
	assert.Contains(t, resp.Error.Fields, "password")
}

func TestRegister_DuplicateEmail_Conflict(t *testing.T) {
	users := &mockUserService{
		registerFunc: func(ctx context.Context, params domain.RegisterParams) (*domain.User, error) {
			return nil, domain.Conflict("user.register", "An account with this email already exists")
		},
	}
	h := newTestAuthHandler(users)

	req := jsonRequest("POST", "/api/auth/register", map[string]string{
		"name":     "Coach",
		"email":    "coach@example.com",
		"password": "secret-password",
	})
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegister_InviteCodeRequired(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	h := NewAuthHandler(&mockUserService{}, &mockEmailService{}, invite.New(true, []string{"WELCOME1"}), logger, false)

	req := jsonRequest("POST", "/api/auth/register", map[string]string{
		"name":     "Coach",
		"email":    "coach@example.com",
		"password": "secret-password",
	})
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp JSONError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error.Fields, "invite_code")
}

// =============================================================================
// Logout
// =============================================================================

func TestLogout_ClearsCookie(t *testing.T) {
	var loggedOut string
	users := &mockUserService{
		logoutFunc: func(ctx context.Context, token string) error {
			loggedOut = token
			return nil
		},
	}
	h := newTestAuthHandler(users)

	req := httptest.NewRequest("POST", "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "raw-session-token"})
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "raw-session-token", loggedOut)

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.Equal(t, "", cookie.Value)
	assert.Equal(t, -1, cookie.MaxAge)
}

func TestLogout_WithoutCookie_Idempotent(t *testing.T) {
	h := newTestAuthHandler(&mockUserService{})

	req := httptest.NewRequest("POST", "/api/auth/logout", nil)
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

// =============================================================================
// Email Verification & Password Reset
// =============================================================================

func TestVerifyEmail_BrowserRedirects(t *testing.T) {
	users := &mockUserService{
		verifyEmailFunc: func(ctx context.Context, token string) error {
			assert.Equal(t, "tok123", token)
			return nil
		},
	}
	h := newTestAuthHandler(users)

	req := httptest.NewRequest("GET", "/verify-email?token=tok123", nil)
	rec := httptest.NewRecorder()
	h.VerifyEmail(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login?verified=1", rec.Header().Get("Location"))
}

func TestVerifyEmail_APIClientGetsJSON(t *testing.T) {
	users := &mockUserService{
		verifyEmailFunc: func(ctx context.Context, token string) error { return nil },
	}
	h := newTestAuthHandler(users)

	req := httptest.NewRequest("GET", "/verify-email?token=tok123", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	h.VerifyEmail(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "verified")
}

func TestVerifyEmail_MissingToken(t *testing.T) {
	h := newTestAuthHandler(&mockUserService{})

	req := httptest.NewRequest("GET", "/verify-email", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	h.VerifyEmail(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestForgotPassword_AlwaysAccepted(t *testing.T) {
	// No createPasswordResetToken override: the mock fails, but the
	// endpoint must still answer 202 so account existence never leaks.
	h := newTestAuthHandler(&mockUserService{})

	req := jsonRequest("POST", "/api/auth/forgot-password", map[string]string{
		"email": "nobody@example.com",
	})
	rec := httptest.NewRecorder()
	h.ForgotPassword(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestResetPassword_Success(t *testing.T) {
	var got domain.ResetPasswordParams
	users := &mockUserService{
		resetPasswordFunc: func(ctx context.Context, params domain.ResetPasswordParams) error {
			got = params
			return nil
		},
	}
	h := newTestAuthHandler(users)

	req := jsonRequest("POST", "/api/auth/reset-password", map[string]string{
		"token":        "reset-tok",
		"new_password": "new-secret-password",
	})
	rec := httptest.NewRecorder()
	h.ResetPassword(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "reset-tok", got.Token)
	assert.Equal(t, "new-secret-password", got.NewPassword)
}

func TestResetPassword_ShortPasswordRejected(t *testing.T) {
	h := newTestAuthHandler(&mockUserService{})

	req := jsonRequest("POST", "/api/auth/reset-password", map[string]string{
		"token":        "reset-tok",
		"new_password": "short",
	})
	rec := httptest.NewRecorder()
	h.ResetPassword(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
