// Package service contains the business logic layer.
//
// Services orchestrate interactions between repositories, external APIs,
// and domain logic. They are responsible for:
// - Input validation
// - Business rule enforcement
// - Transaction coordination
// - Error translation (database errors -> domain errors)
package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/kaiwahq/kaiwa/internal/domain"
	"github.com/kaiwahq/kaiwa/internal/repository"
)

// =============================================================================
// Configuration Constants
// =============================================================================

const (
	// BcryptCost is the cost factor for bcrypt password hashing.
	// Cost 12 provides good security (~250ms on modern hardware) while being
	// fast enough for login flows.
	//
	// SECURITY NOTE: This should NOT be configurable at runtime to prevent
	// accidental weakening. If you need to change it, do so here and redeploy.
	BcryptCost = 12

	// SessionTokenBytes is the number of random bytes for session tokens.
	// 32 bytes = 256 bits of entropy. The token is hex-encoded to 64
	// characters for storage/transmission.
	SessionTokenBytes = 32

	// DefaultSessionDuration is how long a session remains valid when the
	// deployment does not configure one.
	DefaultSessionDuration = 24 * time.Hour

	// MinSessionDuration is the floor for configured session durations.
	MinSessionDuration = 15 * time.Minute

	// MaxSessionDuration is the ceiling for configured session durations.
	MaxSessionDuration = 30 * 24 * time.Hour

	// MinPasswordLength is the minimum password length.
	// NIST SP 800-63B recommends 8+ characters minimum.
	MinPasswordLength = 8

	// MaxPasswordLength prevents DoS via bcrypt on very long passwords.
	// bcrypt has a 72-byte limit anyway, but we cap earlier for clarity.
	MaxPasswordLength = 72
)

// Generic messages for token failures. Every failure path returns the same
// text so a caller cannot distinguish "no such token" from "expired" from
// "already consumed".
const (
	// ErrMsgInvalidVerificationLink is the generic error for all email verification failures.
	ErrMsgInvalidVerificationLink = "Invalid or expired verification link"

	// ErrMsgInvalidResetLink is the generic error for all password reset token failures.
	ErrMsgInvalidResetLink = "Invalid or expired reset link"
)

// UserServiceConfig holds tunable settings for the user service.
type UserServiceConfig struct {
	// SessionDuration is how long login sessions stay valid.
	// Zero means DefaultSessionDuration. Out-of-range values are clamped.
	SessionDuration time.Duration
}

// normalizeSessionDuration clamps a configured duration into the allowed
// range, substituting the default for zero.
func normalizeSessionDuration(d time.Duration) time.Duration {
	if d == 0 {
		return DefaultSessionDuration
	}
	if d < MinSessionDuration {
		return MinSessionDuration
	}
	if d > MaxSessionDuration {
		return MaxSessionDuration
	}
	return d
}

// =============================================================================
// Interface Definition
// =============================================================================

// UserService defines the interface for user-related operations.
//
// This interface enables:
// - Mocking in unit tests
// - Potential future implementations (e.g., with caching)
// - Clear contract definition for handlers
type UserService interface {
	// Register creates a new coach account.
	// Returns domain.ECONFLICT if email already exists.
	// Returns domain.EINVALID for validation errors.
	Register(ctx context.Context, params domain.RegisterParams) (*domain.User, error)

	// Login authenticates a user and creates a new session.
	// Returns the user and raw session token on success.
	// Returns domain.EUNAUTHORIZED for invalid credentials.
	Login(ctx context.Context, email, password string) (*domain.LoginResult, error)

	// Logout invalidates a session by its raw token.
	// This is idempotent - calling with an invalid token is not an error.
	Logout(ctx context.Context, token string) error

	// GetByID retrieves a user by their ID.
	// Returns domain.ENOTFOUND if user does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// GetBySessionToken retrieves a user by their session token.
	// Returns domain.EUNAUTHORIZED if token is invalid or expired.
	GetBySessionToken(ctx context.Context, token string) (*domain.User, error)

	// UpdateProfile updates a user's profile information.
	// Returns domain.ENOTFOUND if user does not exist.
	UpdateProfile(ctx context.Context, params domain.ProfileUpdateParams) error

	// ChangePassword changes a user's password.
	// Validates the current password before allowing the change and
	// invalidates all existing sessions afterwards.
	// Returns domain.EUNAUTHORIZED if current password is wrong.
	ChangePassword(ctx context.Context, params domain.PasswordChangeParams) error

	// DeleteExpiredSessions removes all expired sessions from the database.
	// This should be called periodically (e.g., daily) to clean up.
	DeleteExpiredSessions(ctx context.Context) error

	// =========================================================================
	// Email Verification Methods
	// =========================================================================

	// CreateEmailVerificationToken mints a new verification token for a user.
	// Returns the raw token (to send in email) and expiration time.
	CreateEmailVerificationToken(ctx context.Context, userID uuid.UUID) (*domain.EmailTokenResult, error)

	// VerifyEmail validates a verification token and marks the user verified.
	// Returns domain.ENOTFOUND with a generic message if the token is
	// invalid, expired, or consumed.
	VerifyEmail(ctx context.Context, token string) error

	// ResendVerificationEmail creates a new verification token for an
	// unverified user. Returns domain.ECONFLICT if already verified.
	ResendVerificationEmail(ctx context.Context, email string) (*domain.EmailTokenResult, error)

	// =========================================================================
	// Password Reset Methods
	// =========================================================================

	// CreatePasswordResetToken mints a reset token for the account with the
	// given email. Returns domain.ENOTFOUND if email does not exist; callers
	// must NOT expose this to the end user (always show "if the account
	// exists, we sent an email").
	CreatePasswordResetToken(ctx context.Context, email string) (*domain.EmailTokenResult, error)

	// ValidatePasswordResetToken checks a reset token and returns the
	// associated user ID. Used to validate before showing the reset form.
	ValidatePasswordResetToken(ctx context.Context, token string) (uuid.UUID, error)

	// ResetPassword validates the token and updates the user's password.
	// On success: updates password, consumes the token, invalidates all sessions.
	ResetPassword(ctx context.Context, params domain.ResetPasswordParams) error

	// DeleteExpiredEmailTokens removes expired verification and reset tokens.
	// Periodic cleanup task.
	DeleteExpiredEmailTokens(ctx context.Context) error

	// =========================================================================
	// Billing Methods
	// =========================================================================

	// UpdateStripeCustomer saves the Stripe customer ID for a user.
	UpdateStripeCustomer(ctx context.Context, userID uuid.UUID, stripeCustomerID string) error

	// UpdateECPayTradeNo saves the latest ECPay merchant trade number for a
	// user so the payment callback can be matched back to an account.
	UpdateECPayTradeNo(ctx context.Context, userID uuid.UUID, tradeNo string) error

	// UpdateSubscription updates a user's payment provider, subscription
	// status, tier, and provider-side subscription ID.
	UpdateSubscription(ctx context.Context, params domain.SubscriptionUpdateParams) error

	// GetByStripeCustomerID retrieves a user by their Stripe customer ID.
	// Returns domain.ENOTFOUND if no user has that customer ID.
	GetByStripeCustomerID(ctx context.Context, stripeCustomerID string) (*domain.User, error)

	// GetByECPayTradeNo retrieves a user by their last ECPay merchant trade number.
	// Returns domain.ENOTFOUND if no user has that trade number.
	GetByECPayTradeNo(ctx context.Context, tradeNo string) (*domain.User, error)
}

// =============================================================================
// Implementation
// =============================================================================

// userService is the concrete implementation of UserService.
type userService struct {
	queries         *repository.Queries
	logger          *slog.Logger
	sessionDuration time.Duration
}

// NewUserService creates a new UserService instance.
func NewUserService(queries *repository.Queries, logger *slog.Logger, cfg UserServiceConfig) UserService {
	return &userService{
		queries:         queries,
		logger:          logger,
		sessionDuration: normalizeSessionDuration(cfg.SessionDuration),
	}
}

// =============================================================================
// Register Implementation
// =============================================================================

// Register creates a new coach account with the provided parameters.
//
// Security Considerations:
// - Password is hashed with bcrypt cost 12
// - Timing attacks are mitigated by always hashing even on duplicate email
// - The raw password is never logged or stored
func (s *userService) Register(ctx context.Context, params domain.RegisterParams) (*domain.User, error) {
	const op = "UserService.Register"

	// Validate and normalize input
	params.Email = strings.ToLower(strings.TrimSpace(params.Email))
	params.Name = strings.TrimSpace(params.Name)
	params.PracticeName = strings.TrimSpace(params.PracticeName)
	params.Phone = strings.TrimSpace(params.Phone)
	params.Locale = strings.TrimSpace(params.Locale)
	if params.Locale == "" {
		params.Locale = "en"
	}

	if err := validateEmail(params.Email); err != nil {
		return nil, domain.Wrap(err, domain.EINVALID, op, "Invalid email address")
	}
	if params.Name == "" {
		return nil, domain.Invalid(op, "Name is required")
	}
	if err := validatePassword(params.Password); err != nil {
		return nil, domain.Wrap(err, domain.EINVALID, op, "Invalid password")
	}

	// Check if email already exists
	_, err := s.queries.GetUserByEmail(ctx, params.Email)
	if err == nil {
		// User exists - to prevent timing attacks, we hash the password anyway
		_, _ = bcrypt.GenerateFromPassword([]byte(params.Password), BcryptCost)
		return nil, domain.Conflict(op, "Email already registered")
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, domain.Internal(err, op, "Failed to check email availability")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(params.Password), BcryptCost)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to hash password")
	}

	repoUser, err := s.queries.CreateUser(ctx, repository.CreateUserParams{
		Email:        params.Email,
		PasswordHash: string(passwordHash),
		Name:         params.Name,
		PracticeName: domain.ToNullString(params.PracticeName),
		Phone:        domain.ToNullString(params.Phone),
		Locale:       domain.ToNullString(params.Locale),
	})
	if err != nil {
		// Check for unique constraint violation (race condition)
		if strings.Contains(err.Error(), "unique") || strings.Contains(err.Error(), "duplicate") {
			return nil, domain.Conflict(op, "Email already registered")
		}
		return nil, domain.Internal(err, op, "Failed to create user")
	}

	user := repoUserToDomain(repoUser)
	user.PasswordHash = ""

	s.logger.Info("user registered", "user_id", user.ID, "email", user.Email)

	return user, nil
}

// =============================================================================
// Login Implementation
// =============================================================================

// Login authenticates a user and creates a new session.
//
// Security Considerations:
// - Constant-time password comparison via bcrypt
// - Generic error message prevents email enumeration
// - Session token is only returned once (not stored anywhere in plaintext)
// - Token is hashed before storage (if DB is compromised, tokens are useless)
func (s *userService) Login(ctx context.Context, email, password string) (*domain.LoginResult, error) {
	const op = "UserService.Login"

	email = strings.ToLower(strings.TrimSpace(email))

	repoUser, err := s.queries.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Burn a bcrypt comparison to keep timing constant.
			dummyHash := "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW" // bcrypt hash of "dummy"
			_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
			return nil, domain.Unauthorized(op, "Invalid email or password")
		}
		return nil, domain.Internal(err, op, "Failed to retrieve user")
	}

	err = bcrypt.CompareHashAndPassword([]byte(repoUser.PasswordHash), []byte(password))
	if err != nil {
		// Password mismatch - use same error message as user not found
		return nil, domain.Unauthorized(op, "Invalid email or password")
	}

	token, err := generateSessionToken()
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to generate session token")
	}
	tokenHash := hashSessionToken(token)
	expiresAt := time.Now().Add(s.sessionDuration)

	_, err = s.queries.CreateAuthSession(ctx, repository.CreateAuthSessionParams{
		UserID:    repoUser.ID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to create session")
	}

	user := repoUserToDomain(repoUser)
	user.PasswordHash = ""

	s.logger.Info("user logged in", "user_id", user.ID, "email", user.Email)

	// Return result with user and RAW token (not hash)
	return &domain.LoginResult{
		User:  user,
		Token: token,
	}, nil
}

// =============================================================================
// Logout Implementation
// =============================================================================

// Logout invalidates a session. Idempotent: an invalid or already-deleted
// token simply does nothing.
func (s *userService) Logout(ctx context.Context, token string) error {
	if len(token) != 64 {
		return nil
	}

	tokenHash := hashSessionToken(token)

	err := s.queries.DeleteAuthSessionByTokenHash(ctx, tokenHash)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		s.logger.Warn("failed to delete session", "error", err)
	}

	s.logger.Debug("session invalidated")
	return nil
}

// =============================================================================
// GetByID Implementation
// =============================================================================

// GetByID retrieves a user by their ID.
func (s *userService) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	const op = "UserService.GetByID"

	repoUser, err := s.queries.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "user", id.String())
		}
		return nil, domain.Internal(err, op, "Failed to retrieve user")
	}

	user := repoUserToDomain(repoUser)
	user.PasswordHash = ""
	return user, nil
}

// =============================================================================
// GetBySessionToken Implementation
// =============================================================================

// GetBySessionToken retrieves a user by their session token.
//
// Security Considerations:
// - Token is hashed before database lookup
// - Expiry is checked against the stored expires_at
func (s *userService) GetBySessionToken(ctx context.Context, token string) (*domain.User, error) {
	const op = "UserService.GetBySessionToken"

	if len(token) != 64 {
		return nil, domain.Unauthorized(op, "Invalid or expired session")
	}

	tokenHash := hashSessionToken(token)

	session, err := s.queries.GetAuthSessionByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.Unauthorized(op, "Invalid or expired session")
		}
		return nil, domain.Internal(err, op, "Failed to retrieve session")
	}

	if time.Now().After(session.ExpiresAt) {
		return nil, domain.Unauthorized(op, "Invalid or expired session")
	}

	repoUser, err := s.queries.GetUserByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Unlikely but possible if user was deleted
			return nil, domain.Unauthorized(op, "Invalid or expired session")
		}
		return nil, domain.Internal(err, op, "Failed to retrieve user")
	}

	user := repoUserToDomain(repoUser)
	user.PasswordHash = ""
	return user, nil
}

// =============================================================================
// UpdateProfile Implementation
// =============================================================================

// UpdateProfile updates a user's profile information.
func (s *userService) UpdateProfile(ctx context.Context, params domain.ProfileUpdateParams) error {
	const op = "UserService.UpdateProfile"

	params.Name = strings.TrimSpace(params.Name)
	params.PracticeName = strings.TrimSpace(params.PracticeName)
	params.Phone = strings.TrimSpace(params.Phone)
	params.Locale = strings.TrimSpace(params.Locale)

	if params.Name == "" {
		return domain.Invalid(op, "Name is required")
	}

	user, err := s.queries.GetUserByID(ctx, params.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound(op, "user", params.UserID.String())
		}
		return domain.Internal(err, op, "Failed to retrieve user")
	}

	// Preserve the stored locale when the update doesn't carry one.
	locale := domain.ToNullString(params.Locale)
	if params.Locale == "" {
		locale = user.Locale
	}

	err = s.queries.UpdateUserProfile(ctx, repository.UpdateUserProfileParams{
		ID:           params.UserID,
		Name:         params.Name,
		PracticeName: domain.ToNullString(params.PracticeName),
		Phone:        domain.ToNullString(params.Phone),
		Locale:       locale,
	})
	if err != nil {
		return domain.Internal(err, op, "Failed to update profile")
	}

	s.logger.Info("user profile updated", "user_id", params.UserID)
	return nil
}

// =============================================================================
// ChangePassword Implementation
// =============================================================================

// ChangePassword changes a user's password.
//
// Security Considerations:
// - Current password must be verified to prevent session hijacking attacks
// - All sessions are invalidated to force re-authentication
func (s *userService) ChangePassword(ctx context.Context, params domain.PasswordChangeParams) error {
	const op = "UserService.ChangePassword"

	if err := validatePassword(params.NewPassword); err != nil {
		return domain.Wrap(err, domain.EINVALID, op, "Invalid new password")
	}

	repoUser, err := s.queries.GetUserByID(ctx, params.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound(op, "user", params.UserID.String())
		}
		return domain.Internal(err, op, "Failed to retrieve user")
	}

	err = bcrypt.CompareHashAndPassword([]byte(repoUser.PasswordHash), []byte(params.CurrentPassword))
	if err != nil {
		return domain.Unauthorized(op, "Current password is incorrect")
	}

	newPasswordHash, err := bcrypt.GenerateFromPassword([]byte(params.NewPassword), BcryptCost)
	if err != nil {
		return domain.Internal(err, op, "Failed to hash new password")
	}

	err = s.queries.UpdateUserPassword(ctx, params.UserID, string(newPasswordHash))
	if err != nil {
		return domain.Internal(err, op, "Failed to update password")
	}

	// Invalidate all user sessions (force re-authentication)
	err = s.queries.DeleteAuthSessionsByUserID(ctx, params.UserID)
	if err != nil {
		// Log but don't fail - password was changed successfully
		s.logger.Warn("failed to delete user sessions after password change", "user_id", params.UserID, "error", err)
	}

	s.logger.Info("user password changed", "user_id", params.UserID)
	return nil
}

// =============================================================================
// DeleteExpiredSessions Implementation
// =============================================================================

// DeleteExpiredSessions removes all expired sessions.
// This should be called periodically as a maintenance task.
func (s *userService) DeleteExpiredSessions(ctx context.Context) error {
	const op = "UserService.DeleteExpiredSessions"

	n, err := s.queries.DeleteExpiredAuthSessions(ctx)
	if err != nil {
		return domain.Internal(err, op, "Failed to delete expired sessions")
	}

	s.logger.Info("expired sessions cleaned up", "deleted", n)
	return nil
}

// =============================================================================
// Email Verification Implementation
// =============================================================================

// CreateEmailVerificationToken mints a new verification token for a user.
//
// Security Considerations:
// - Raw token is returned only once (not stored anywhere in plaintext)
// - Token is hashed before storage using same pattern as session tokens
// - Caller is responsible for sending the raw token via email
func (s *userService) CreateEmailVerificationToken(ctx context.Context, userID uuid.UUID) (*domain.EmailTokenResult, error) {
	const op = "UserService.CreateEmailVerificationToken"

	user, err := s.queries.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "user", userID.String())
		}
		return nil, domain.Internal(err, op, "Failed to retrieve user")
	}

	return s.createEmailToken(ctx, op, user, domain.EmailTokenPurposeVerify, domain.EmailVerificationTokenDuration)
}

// VerifyEmail validates a verification token and marks the user as verified.
//
// All failure paths return the same generic message so callers cannot probe
// which tokens exist.
func (s *userService) VerifyEmail(ctx context.Context, token string) error {
	const op = "UserService.VerifyEmail"

	if len(token) != 64 {
		return domain.NotFound(op, "verification token", "")
	}

	tokenHash := hashSessionToken(token)

	// Query filters consumed and expired tokens.
	emailToken, err := s.queries.GetEmailTokenByHash(ctx, tokenHash, string(domain.EmailTokenPurposeVerify))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound(op, "verification token", "")
		}
		return domain.Internal(err, op, "Failed to retrieve verification token")
	}

	user, err := s.queries.GetUserByID(ctx, emailToken.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound(op, "user", emailToken.UserID.String())
		}
		return domain.Internal(err, op, "Failed to retrieve user")
	}

	if user.EmailVerified {
		return domain.Conflict(op, "Email is already verified")
	}

	if err := s.queries.SetUserEmailVerified(ctx, user.ID); err != nil {
		return domain.Internal(err, op, "Failed to mark email as verified")
	}

	if err := s.queries.ConsumeEmailToken(ctx, emailToken.ID); err != nil {
		// Log but don't fail - verification already succeeded
		s.logger.Warn("failed to consume verification token after use", "error", err, "user_id", user.ID)
	}

	s.logger.Info("email verified", "user_id", user.ID, "email", user.Email)
	return nil
}

// ResendVerificationEmail creates a new verification token for an unverified user.
func (s *userService) ResendVerificationEmail(ctx context.Context, email string) (*domain.EmailTokenResult, error) {
	const op = "UserService.ResendVerificationEmail"

	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.queries.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "user", email)
		}
		return nil, domain.Internal(err, op, "Failed to retrieve user")
	}

	if user.EmailVerified {
		return nil, domain.Conflict(op, "Email is already verified")
	}

	return s.createEmailToken(ctx, op, user, domain.EmailTokenPurposeVerify, domain.EmailVerificationTokenDuration)
}

// =============================================================================
// Password Reset Implementation
// =============================================================================

// CreatePasswordResetToken mints a reset token for the account with the
// given email.
//
// Security Considerations:
//   - Returns NotFound if email doesn't exist, but caller should NOT expose
//     this to the end user (always show "if the account exists..." message)
//   - Shorter expiration than email verification (1 hour vs 24 hours)
func (s *userService) CreatePasswordResetToken(ctx context.Context, email string) (*domain.EmailTokenResult, error) {
	const op = "UserService.CreatePasswordResetToken"

	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.queries.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "user", email)
		}
		return nil, domain.Internal(err, op, "Failed to retrieve user")
	}

	return s.createEmailToken(ctx, op, user, domain.EmailTokenPurposeReset, domain.PasswordResetTokenDuration)
}

// ValidatePasswordResetToken checks if a password reset token is valid and
// returns the associated user ID. Does not consume the token; that happens
// in ResetPassword.
func (s *userService) ValidatePasswordResetToken(ctx context.Context, token string) (uuid.UUID, error) {
	const op = "UserService.ValidatePasswordResetToken"

	if len(token) != 64 {
		return uuid.Nil, domain.NotFound(op, "reset token", "")
	}

	tokenHash := hashSessionToken(token)

	resetToken, err := s.queries.GetEmailTokenByHash(ctx, tokenHash, string(domain.EmailTokenPurposeReset))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, domain.NotFound(op, "reset token", "")
		}
		return uuid.Nil, domain.Internal(err, op, "Failed to retrieve reset token")
	}

	return resetToken.UserID, nil
}

// ResetPassword validates the token and updates the user's password.
//
// Security Considerations:
// - Token is validated again (race condition protection)
// - Token is consumed, not deleted (audit trail)
// - All sessions are invalidated (force re-authentication)
func (s *userService) ResetPassword(ctx context.Context, params domain.ResetPasswordParams) error {
	const op = "UserService.ResetPassword"

	if len(params.Token) != 64 {
		return domain.NotFound(op, "reset token", "")
	}

	if err := validatePassword(params.NewPassword); err != nil {
		return domain.Wrap(err, domain.EINVALID, op, "Invalid new password")
	}

	tokenHash := hashSessionToken(params.Token)

	resetToken, err := s.queries.GetEmailTokenByHash(ctx, tokenHash, string(domain.EmailTokenPurposeReset))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound(op, "reset token", "")
		}
		return domain.Internal(err, op, "Failed to retrieve reset token")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(params.NewPassword), BcryptCost)
	if err != nil {
		return domain.Internal(err, op, "Failed to hash new password")
	}

	err = s.queries.UpdateUserPassword(ctx, resetToken.UserID, string(passwordHash))
	if err != nil {
		return domain.Internal(err, op, "Failed to update password")
	}

	if err := s.queries.ConsumeEmailToken(ctx, resetToken.ID); err != nil {
		// Log but don't fail - password was already changed
		s.logger.Warn("failed to consume reset token", "error", err, "user_id", resetToken.UserID)
	}

	if err := s.queries.DeleteAuthSessionsByUserID(ctx, resetToken.UserID); err != nil {
		// Log but don't fail - password was changed successfully
		s.logger.Warn("failed to delete user sessions after password reset", "error", err, "user_id", resetToken.UserID)
	}

	s.logger.Info("password reset completed", "user_id", resetToken.UserID)
	return nil
}

// DeleteExpiredEmailTokens removes all expired email tokens.
func (s *userService) DeleteExpiredEmailTokens(ctx context.Context) error {
	const op = "UserService.DeleteExpiredEmailTokens"

	n, err := s.queries.DeleteExpiredEmailTokens(ctx)
	if err != nil {
		return domain.Internal(err, op, "Failed to delete expired tokens")
	}

	s.logger.Info("expired email tokens cleaned up", "deleted", n)
	return nil
}

// createEmailToken mints, hashes, and stores a token of the given purpose.
func (s *userService) createEmailToken(ctx context.Context, op string, user repository.User, purpose domain.EmailTokenPurpose, ttl time.Duration) (*domain.EmailTokenResult, error) {
	rawToken, err := generateSessionToken()
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to generate token")
	}

	tokenHash := hashSessionToken(rawToken)
	expiresAt := time.Now().Add(ttl)

	_, err = s.queries.CreateEmailToken(ctx, repository.CreateEmailTokenParams{
		UserID:    user.ID,
		TokenHash: tokenHash,
		Purpose:   string(purpose),
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to create token")
	}

	s.logger.Info("email token created", "user_id", user.ID, "purpose", purpose)

	return &domain.EmailTokenResult{
		Token:     rawToken,
		ExpiresAt: expiresAt,
		UserID:    user.ID,
		Email:     user.Email,
	}, nil
}

// =============================================================================
// Billing Methods Implementation
// =============================================================================

// UpdateStripeCustomer saves the Stripe customer ID for a user.
func (s *userService) UpdateStripeCustomer(ctx context.Context, userID uuid.UUID, stripeCustomerID string) error {
	const op = "UserService.UpdateStripeCustomer"

	err := s.queries.UpdateUserStripeCustomer(ctx, userID, stripeCustomerID)
	if err != nil {
		return domain.Internal(err, op, "Failed to update Stripe customer ID")
	}

	s.logger.Info("stripe customer ID updated", "user_id", userID, "stripe_customer_id", stripeCustomerID)
	return nil
}

// UpdateECPayTradeNo saves the latest ECPay merchant trade number for a user.
func (s *userService) UpdateECPayTradeNo(ctx context.Context, userID uuid.UUID, tradeNo string) error {
	const op = "UserService.UpdateECPayTradeNo"

	err := s.queries.UpdateUserECPayTradeNo(ctx, userID, tradeNo)
	if err != nil {
		return domain.Internal(err, op, "Failed to update ECPay trade number")
	}

	s.logger.Info("ecpay trade number updated", "user_id", userID, "trade_no", tradeNo)
	return nil
}

// UpdateSubscription updates a user's provider, status, tier, and subscription ID.
func (s *userService) UpdateSubscription(ctx context.Context, params domain.SubscriptionUpdateParams) error {
	const op = "UserService.UpdateSubscription"

	tier := domain.ParseTier(string(params.Tier))

	err := s.queries.UpdateUserSubscription(ctx, repository.UpdateUserSubscriptionParams{
		ID:                 params.UserID,
		PaymentProvider:    domain.ToNullString(string(params.Provider)),
		SubscriptionStatus: string(params.Status),
		SubscriptionTier:   string(tier),
		SubscriptionID:     domain.ToNullString(params.SubscriptionID),
	})
	if err != nil {
		return domain.Internal(err, op, "Failed to update subscription")
	}

	s.logger.Info("subscription updated",
		"user_id", params.UserID,
		"provider", params.Provider,
		"status", params.Status,
		"tier", tier,
	)
	return nil
}

// GetByStripeCustomerID retrieves a user by their Stripe customer ID.
func (s *userService) GetByStripeCustomerID(ctx context.Context, stripeCustomerID string) (*domain.User, error) {
	const op = "UserService.GetByStripeCustomerID"

	repoUser, err := s.queries.GetUserByStripeCustomerID(ctx, stripeCustomerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "user", stripeCustomerID)
		}
		return nil, domain.Internal(err, op, "Failed to retrieve user by Stripe customer ID")
	}

	user := repoUserToDomain(repoUser)
	user.PasswordHash = ""
	return user, nil
}

// GetByECPayTradeNo retrieves a user by their last ECPay merchant trade number.
func (s *userService) GetByECPayTradeNo(ctx context.Context, tradeNo string) (*domain.User, error) {
	const op = "UserService.GetByECPayTradeNo"

	repoUser, err := s.queries.GetUserByECPayTradeNo(ctx, tradeNo)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "user", tradeNo)
		}
		return nil, domain.Internal(err, op, "Failed to retrieve user by trade number")
	}

	user := repoUserToDomain(repoUser)
	user.PasswordHash = ""
	return user, nil
}

// =============================================================================
// Helper Functions
// =============================================================================

// generateSessionToken creates a cryptographically secure token,
// hex-encoded to 64 characters (32 random bytes).
func generateSessionToken() (string, error) {
	bytes := make([]byte, SessionTokenBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// hashSessionToken creates a SHA-256 hash of a token.
//
// Tokens are hashed before storage because:
//  1. If the database is compromised, attackers cannot use the hashes directly
//  2. SHA-256 is fast enough for per-request validation
//  3. Unlike passwords, these are high-entropy random values,
//     so SHA-256 is sufficient (bcrypt would be overkill and slow)
func hashSessionToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// repoUserToDomain converts a repository.User to domain.User.
//
// This handles the conversion from database types (sql.Null*) to Go types,
// making the domain model easier to work with in business logic.
func repoUserToDomain(u repository.User) *domain.User {
	return &domain.User{
		ID:                   u.ID,
		Email:                u.Email,
		PasswordHash:         u.PasswordHash,
		Name:                 u.Name,
		PracticeName:         domain.NullStringValue(u.PracticeName),
		Phone:                domain.NullStringValue(u.Phone),
		Locale:               domain.NullStringValue(u.Locale),
		PaymentProvider:      domain.PaymentProvider(domain.NullStringValue(u.PaymentProvider)),
		StripeCustomerID:     domain.NullStringValue(u.StripeCustomerID),
		ECPayMerchantTradeNo: domain.NullStringValue(u.EcpayMerchantTradeNo),
		SubscriptionStatus:   domain.SubscriptionStatus(u.SubscriptionStatus),
		SubscriptionTier:     domain.ParseTier(u.SubscriptionTier),
		SubscriptionID:       domain.NullStringValue(u.SubscriptionID),
		EmailVerified:        u.EmailVerified,
		EmailVerifiedAt:      domain.NullTimeValue(u.EmailVerifiedAt),
		CreatedAt:            u.CreatedAt,
		UpdatedAt:            u.UpdatedAt,
	}
}

// validateEmail validates an email address format.
//
// Checks:
// - Basic format validation (contains @, has domain)
// - Length limits (RFC 5321: 254 chars max)
func validateEmail(email string) error {
	if email == "" {
		return domain.Invalid("", "Email is required")
	}

	if len(email) > 254 {
		return domain.Invalid("", "Email must be 254 characters or less")
	}

	// Must contain exactly one @, and domain part must have a dot
	atIndex := strings.IndexByte(email, '@')
	if atIndex < 0 || strings.IndexByte(email[atIndex+1:], '@') >= 0 {
		return domain.Invalid("", "Email must contain exactly one @ symbol")
	}

	if atIndex == 0 {
		return domain.Invalid("", "Email cannot start with @")
	}

	if atIndex == len(email)-1 {
		return domain.Invalid("", "Email cannot end with @")
	}

	if !strings.Contains(email[atIndex+1:], ".") {
		return domain.Invalid("", "Email domain must contain a dot")
	}

	if strings.Contains(email, "..") {
		return domain.Invalid("", "Email cannot contain consecutive dots")
	}

	return nil
}

// commonPasswords are rejected outright even when they satisfy the
// composition rules. Checked case-insensitively.
var commonPasswords = map[string]struct{}{
	"password1":   {},
	"password123": {},
	"qwerty123":   {},
	"letmein1":    {},
	"welcome1":    {},
	"admin123":    {},
	"iloveyou1":   {},
	"sunshine1":   {},
}

// validatePassword validates password strength requirements.
//
// Rules:
// - Minimum length: 8 characters (NIST SP 800-63B)
// - Maximum length: 72 characters (bcrypt limit)
// - Must contain at least one letter and one number
// - Must not be a known common password
func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return domain.Invalid("", "Password must be at least 8 characters")
	}

	if len(password) > MaxPasswordLength {
		return domain.Invalid("", "Password must be 72 characters or less")
	}

	var hasLetter, hasNumber bool
	for _, c := range password {
		switch {
		case (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
			hasLetter = true
		case c >= '0' && c <= '9':
			hasNumber = true
		}
	}
	if !hasLetter {
		return domain.Invalid("", "Password must contain at least one letter")
	}
	if !hasNumber {
		return domain.Invalid("", "Password must contain at least one number")
	}

	if _, ok := commonPasswords[strings.ToLower(password)]; ok {
		return domain.Invalid("", "Password is too common")
	}

	return nil
}

// =============================================================================
// Compile-time interface check
// =============================================================================

// Ensure userService implements UserService
var _ UserService = (*userService)(nil)
