package handler_test

// Route enforcement tests: the full mux with real auth middleware,
// exercising the email-verification gate that protects session routes.

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/kaiwahq/kaiwa/internal/domain"
	"github.com/kaiwahq/kaiwa/internal/handler"
	"github.com/kaiwahq/kaiwa/internal/middleware"
	"github.com/kaiwahq/kaiwa/internal/session"
)

var errStub = errors.New("not implemented")

// stubUserService resolves a single canned user from the session token
// "good-token". Everything else fails.
type stubUserService struct {
	user *domain.User
}

func (s *stubUserService) GetBySessionToken(ctx context.Context, token string) (*domain.User, error) {
	if token == "good-token" && s.user != nil {
		return s.user, nil
	}
	return nil, domain.Unauthorized("user.get_by_session_token", "Invalid session")
}

func (s *stubUserService) Register(ctx context.Context, params domain.RegisterParams) (*domain.User, error) {
	return nil, errStub
}
func (s *stubUserService) Login(ctx context.Context, email, password string) (*domain.LoginResult, error) {
	return nil, errStub
}
func (s *stubUserService) Logout(ctx context.Context, token string) error { return nil }
func (s *stubUserService) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return nil, errStub
}
func (s *stubUserService) UpdateProfile(ctx context.Context, params domain.ProfileUpdateParams) error {
	return errStub
}
func (s *stubUserService) ChangePassword(ctx context.Context, params domain.PasswordChangeParams) error {
	return errStub
}
func (s *stubUserService) DeleteExpiredSessions(ctx context.Context) error { return nil }
func (s *stubUserService) CreateEmailVerificationToken(ctx context.Context, userID uuid.UUID) (*domain.EmailTokenResult, error) {
	return nil, errStub
}
func (s *stubUserService) VerifyEmail(ctx context.Context, token string) error { return errStub }
func (s *stubUserService) ResendVerificationEmail(ctx context.Context, email string) (*domain.EmailTokenResult, error) {
	return nil, errStub
}
func (s *stubUserService) CreatePasswordResetToken(ctx context.Context, email string) (*domain.EmailTokenResult, error) {
	return nil, errStub
}
func (s *stubUserService) ValidatePasswordResetToken(ctx context.Context, token string) (uuid.UUID, error) {
	return uuid.Nil, errStub
}
func (s *stubUserService) ResetPassword(ctx context.Context, params domain.ResetPasswordParams) error {
	return errStub
}
func (s *stubUserService) DeleteExpiredEmailTokens(ctx context.Context) error { return nil }
func (s *stubUserService) UpdateStripeCustomer(ctx context.Context, userID uuid.UUID, stripeCustomerID string) error {
	return errStub
}
func (s *stubUserService) UpdateECPayTradeNo(ctx context.Context, userID uuid.UUID, tradeNo string) error {
	return errStub
}
func (s *stubUserService) UpdateSubscription(ctx context.Context, params domain.SubscriptionUpdateParams) error {
	return errStub
}
func (s *stubUserService) GetByStripeCustomerID(ctx context.Context, stripeCustomerID string) (*domain.User, error) {
	return nil, errStub
}
func (s *stubUserService) GetByECPayTradeNo(ctx context.Context, tradeNo string) (*domain.User, error) {
	return nil, errStub
}

// stubSessionService only needs List for these tests; the rest fail.
type stubSessionService struct{}

func (s *stubSessionService) Create(ctx context.Context, params domain.CreateSessionParams) (*domain.CoachingSession, error) {
	return nil, errStub
}
func (s *stubSessionService) GetByID(ctx context.Context, id, userID uuid.UUID) (*domain.CoachingSession, error) {
	return nil, errStub
}
func (s *stubSessionService) List(ctx context.Context, params domain.ListSessionsParams) (*domain.ListSessionsResult, error) {
	return &domain.ListSessionsResult{Limit: params.Limit, Offset: params.Offset}, nil
}
func (s *stubSessionService) Update(ctx context.Context, params domain.UpdateSessionParams) error {
	return errStub
}
func (s *stubSessionService) Delete(ctx context.Context, id, userID uuid.UUID) error { return errStub }
func (s *stubSessionService) AttachAudio(ctx context.Context, params domain.AttachAudioParams, data io.Reader) (*domain.CoachingSession, error) {
	return nil, errStub
}
func (s *stubSessionService) AudioURL(ctx context.Context, id, userID uuid.UUID) (string, error) {
	return "", errStub
}
func (s *stubSessionService) RequestTranscription(ctx context.Context, id, userID uuid.UUID) error {
	return errStub
}
func (s *stubSessionService) UploadTranscript(ctx context.Context, id, userID uuid.UUID, filename string, content []byte) (*domain.Transcript, error) {
	return nil, errStub
}
func (s *stubSessionService) GetTranscript(ctx context.Context, id, userID uuid.UUID) (*domain.Transcript, error) {
	return nil, errStub
}
func (s *stubSessionService) AssignSpeakerRoles(ctx context.Context, params domain.AssignSpeakerRolesParams) error {
	return errStub
}
func (s *stubSessionService) RequestAnalysis(ctx context.Context, id, userID uuid.UUID) error {
	return errStub
}
func (s *stubSessionService) GetAnalysis(ctx context.Context, id, userID uuid.UUID) (*domain.SessionAnalysis, error) {
	return nil, errStub
}
func (s *stubSessionService) RequestReport(ctx context.Context, id, userID uuid.UUID, format string) error {
	return errStub
}

type stubReportService struct{}

func (s *stubReportService) Status(ctx context.Context, sessionID, userID uuid.UUID) (*domain.ReportStatus, error) {
	return nil, errStub
}
func (s *stubReportService) DownloadURL(ctx context.Context, sessionID, userID uuid.UUID, format domain.ReportFormat) (string, error) {
	return "", errStub
}

// newTestMux wires session routes behind the real auth middleware chain,
// the way main wires them.
func newTestMux(user *domain.User) *http.ServeMux {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	users := &stubUserService{user: user}
	authMw := middleware.NewAuthMiddleware(users, logger, false)

	requireVerified := middleware.Stack(authMw.WithUser, authMw.RequireUser, authMw.RequireEmailVerified)

	mux := http.NewServeMux()
	sessionHandler := handler.NewSessionHandler(&stubSessionService{}, &stubReportService{}, logger)
	sessionHandler.RegisterRoutes(mux, requireVerified)
	return mux
}

func TestSessionRoutes_RequireAuthentication(t *testing.T) {
	mux := newTestMux(nil)

	req := httptest.NewRequest("GET", "/api/sessions", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
}

func TestSessionRoutes_RejectUnverifiedEmail(t *testing.T) {
	mux := newTestMux(&domain.User{
		ID:            uuid.New(),
		Email:         "coach@example.com",
		EmailVerified: false,
	})

	req := httptest.NewRequest("GET", "/api/sessions", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "good-token"})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSessionRoutes_VerifiedUserPasses(t *testing.T) {
	mux := newTestMux(&domain.User{
		ID:            uuid.New(),
		Email:         "coach@example.com",
		EmailVerified: true,
	})

	req := httptest.NewRequest("GET", "/api/sessions", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "good-token"})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionRoutes_BadTokenIsUnauthorized(t *testing.T) {
	mux := newTestMux(&domain.User{
		ID:            uuid.New(),
		Email:         "coach@example.com",
		EmailVerified: true,
	})

	req := httptest.NewRequest("GET", "/api/sessions", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "stale-token"})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// The invalid cookie is cleared.
	cleared := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName && c.MaxAge == -1 {
			cleared = true
		}
	}
	assert.True(t, cleared, "stale session cookie should be cleared")
}
