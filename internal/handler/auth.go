// Package handler contains the HTTP handlers for the Kaiwa API.
//
// This file implements authentication: registration, login, logout,
// email verification, password reset, and the current-user endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kaiwahq/kaiwa/internal/auth"
	"github.com/kaiwahq/kaiwa/internal/domain"
	"github.com/kaiwahq/kaiwa/internal/email"
	"github.com/kaiwahq/kaiwa/internal/invite"
	"github.com/kaiwahq/kaiwa/internal/service"
	"github.com/kaiwahq/kaiwa/internal/session"
)

// emailSendTimeout bounds the async transactional email sends spawned
// from request handlers.
const emailSendTimeout = 30 * time.Second

// AuthHandler handles authentication-related HTTP requests.
type AuthHandler struct {
	userService     service.UserService
	emailService    email.EmailService
	inviteValidator *invite.Validator
	logger          *slog.Logger
	isSecure        bool
}

// NewAuthHandler creates a new AuthHandler.
// isSecure should be true in production so session cookies are HTTPS-only.
func NewAuthHandler(
	userService service.UserService,
	emailService email.EmailService,
	inviteValidator *invite.Validator,
	logger *slog.Logger,
	isSecure bool,
) *AuthHandler {
	return &AuthHandler{
		userService:     userService,
		emailService:    emailService,
		inviteValidator: inviteValidator,
		logger:          logger,
		isSecure:        isSecure,
	}
}

// RegisterRoutes registers auth routes on the provided mux.
// The /api/me routes require the caller to wrap them with auth middleware.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.HandleFunc("POST /api/auth/register", h.Register)
	mux.HandleFunc("POST /api/auth/login", h.Login)
	mux.HandleFunc("POST /api/auth/logout", h.Logout)
	mux.HandleFunc("POST /api/auth/resend-verification", h.ResendVerification)
	mux.HandleFunc("POST /api/auth/forgot-password", h.ForgotPassword)
	mux.HandleFunc("POST /api/auth/reset-password", h.ResetPassword)

	// Email links land here in a browser, outside the API prefix.
	mux.HandleFunc("GET /verify-email", h.VerifyEmail)

	mux.Handle("GET /api/me", requireUser(http.HandlerFunc(h.Me)))
	mux.Handle("PATCH /api/me", requireUser(http.HandlerFunc(h.UpdateProfile)))
	mux.Handle("PUT /api/me/password", requireUser(http.HandlerFunc(h.ChangePassword)))
}

// =============================================================================
// POST /api/auth/register
// =============================================================================

type registerRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	PracticeName string `json:"practice_name"`
	Phone        string `json:"phone"`
	Locale       string `json:"locale"`
	InviteCode   string `json:"invite_code"`
}

// Register creates a coach account, sends the verification email, and
// logs the new user in.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.InviteCode = strings.TrimSpace(req.InviteCode)

	var verr error
	if req.Name == "" {
		verr = domain.AddFieldError(verr, "name", "Name is required")
	}
	if req.Email == "" {
		verr = domain.AddFieldError(verr, "email", "Email is required")
	} else if !isValidEmail(req.Email) {
		verr = domain.AddFieldError(verr, "email", "Please enter a valid email address")
	}
	if len(req.Password) < 8 {
		verr = domain.AddFieldError(verr, "password", "Password must be at least 8 characters")
	}
	if h.inviteValidator.IsEnabled() {
		if req.InviteCode == "" {
			verr = domain.AddFieldError(verr, "invite_code", "Invite code is required")
		} else if !h.inviteValidator.ValidateCode(req.InviteCode) {
			verr = domain.AddFieldError(verr, "invite_code", "Invalid invite code")
		}
	}
	if verr != nil {
		ValidationErrorResponse(w, r, h.logger, verr)
		return
	}

	user, err := h.userService.Register(r.Context(), domain.RegisterParams{
		Email:        req.Email,
		Password:     req.Password,
		Name:         req.Name,
		PracticeName: strings.TrimSpace(req.PracticeName),
		Phone:        strings.TrimSpace(req.Phone),
		Locale:       strings.TrimSpace(req.Locale),
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	go h.sendVerificationEmail(user.ID, user.Email, user.DisplayName())

	// Log the new user in so the dashboard works immediately; the email
	// verification gate applies to the coaching features, not the account.
	result, err := h.userService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Error("auto-login after registration failed", "error", err, "user_id", user.ID)
		respondJSON(w, http.StatusCreated, map[string]interface{}{"user": newUserResponse(user)})
		return
	}

	setSessionCookie(w, result.Token, h.isSecure)
	h.logger.Info("user registered", "user_id", user.ID, "email", user.Email)
	respondJSON(w, http.StatusCreated, map[string]interface{}{"user": newUserResponse(result.User)})
}

// =============================================================================
// POST /api/auth/login
// =============================================================================

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates a user and sets the session cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid("auth.login", "Email and password are required"))
		return
	}

	result, err := h.userService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		// Generic message regardless of whether the account exists.
		if domain.ErrorCode(err) == domain.EUNAUTHORIZED {
			ErrorResponse(w, r, h.logger, domain.Unauthorized("auth.login", "Invalid email or password"))
			return
		}
		ErrorResponse(w, r, h.logger, err)
		return
	}

	setSessionCookie(w, result.Token, h.isSecure)
	h.logger.Info("user logged in", "user_id", result.User.ID)
	respondJSON(w, http.StatusOK, map[string]interface{}{"user": newUserResponse(result.User)})
}

// =============================================================================
// POST /api/auth/logout
// =============================================================================

// Logout invalidates the session and clears the cookie. Idempotent.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(session.CookieName); err == nil && cookie.Value != "" {
		if err := h.userService.Logout(r.Context(), cookie.Value); err != nil {
			// Cookie gets cleared regardless.
			h.logger.Warn("failed to invalidate session", "error", err)
		}
	}
	clearSessionCookie(w, h.isSecure)
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Current User
// =============================================================================

// Me returns the authenticated user's account.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"user": newUserResponse(user)})
}

type updateProfileRequest struct {
	Name         string `json:"name"`
	PracticeName string `json:"practice_name"`
	Phone        string `json:"phone"`
	Locale       string `json:"locale"`
}

// UpdateProfile updates the authenticated user's profile fields.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req updateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	err := h.userService.UpdateProfile(r.Context(), domain.ProfileUpdateParams{
		UserID:       user.ID,
		Name:         strings.TrimSpace(req.Name),
		PracticeName: strings.TrimSpace(req.PracticeName),
		Phone:        strings.TrimSpace(req.Phone),
		Locale:       strings.TrimSpace(req.Locale),
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	updated, err := h.userService.GetByID(r.Context(), user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"user": newUserResponse(updated)})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword changes the password. All sessions are invalidated by
// the service, so the client must log in again.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if len(req.NewPassword) < 8 {
		ErrorResponse(w, r, h.logger, domain.Invalid("auth.change_password", "New password must be at least 8 characters"))
		return
	}

	err := h.userService.ChangePassword(r.Context(), domain.PasswordChangeParams{
		UserID:          user.ID,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	clearSessionCookie(w, h.isSecure)
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Email Verification
// =============================================================================

// VerifyEmail handles the verification link from the email.
// Browsers get a redirect; API clients get JSON.
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid("auth.verify_email", "Verification token is required"))
		return
	}

	if err := h.userService.VerifyEmail(r.Context(), token); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if acceptsJSON(r) {
		respondJSON(w, http.StatusOK, map[string]bool{"verified": true})
		return
	}
	http.Redirect(w, r, "/login?verified=1", http.StatusSeeOther)
}

type resendVerificationRequest struct {
	Email string `json:"email"`
}

// ResendVerification issues a fresh verification token. The response is
// the same whether or not the address has an account, so the endpoint
// can't be used to probe for registered emails.
func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req resendVerificationRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	addr := strings.ToLower(strings.TrimSpace(req.Email))
	if addr == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid("auth.resend_verification", "Email is required"))
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), emailSendTimeout)
		defer cancel()

		result, err := h.userService.ResendVerificationEmail(ctx, addr)
		if err != nil {
			h.logger.Info("resend verification skipped", "error", err)
			return
		}
		if err := h.emailService.SendVerificationEmail(ctx, result.Email, "", result.Token); err != nil {
			h.logger.Error("failed to send verification email", "error", err, "user_id", result.UserID)
		}
	}()

	respondJSON(w, http.StatusAccepted, map[string]string{
		"message": "If the account exists and is unverified, a new verification email has been sent.",
	})
}

// =============================================================================
// Password Reset
// =============================================================================

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPassword starts the reset flow. Always responds 202 with a
// generic message so account existence is never revealed.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	addr := strings.ToLower(strings.TrimSpace(req.Email))
	if addr == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid("auth.forgot_password", "Email is required"))
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), emailSendTimeout)
		defer cancel()

		result, err := h.userService.CreatePasswordResetToken(ctx, addr)
		if err != nil {
			h.logger.Info("password reset skipped", "error", err)
			return
		}
		if err := h.emailService.SendPasswordResetEmail(ctx, result.Email, "", result.Token); err != nil {
			h.logger.Error("failed to send password reset email", "error", err, "user_id", result.UserID)
		}
	}()

	respondJSON(w, http.StatusAccepted, map[string]string{
		"message": "If the account exists, a password reset email has been sent.",
	})
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// ResetPassword completes the reset flow with the emailed token.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if req.Token == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid("auth.reset_password", "Reset token is required"))
		return
	}
	if len(req.NewPassword) < 8 {
		ErrorResponse(w, r, h.logger, domain.Invalid("auth.reset_password", "Password must be at least 8 characters"))
		return
	}

	err := h.userService.ResetPassword(r.Context(), domain.ResetPasswordParams{
		Token:       req.Token,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Helpers
// =============================================================================

// sendVerificationEmail mints a verification token and emails it.
// Runs in its own goroutine with a fresh context so a finished request
// doesn't cancel the send.
func (h *AuthHandler) sendVerificationEmail(userID uuid.UUID, emailAddr, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), emailSendTimeout)
	defer cancel()

	result, err := h.userService.CreateEmailVerificationToken(ctx, userID)
	if err != nil {
		h.logger.Error("failed to create verification token", "error", err, "user_id", userID)
		return
	}

	if err := h.emailService.SendVerificationEmail(ctx, emailAddr, name, result.Token); err != nil {
		h.logger.Error("failed to send verification email", "error", err, "user_id", userID)
		return
	}

	h.logger.Info("verification email sent", "user_id", userID)
}

// setSessionCookie sets the session cookie on the response.
func setSessionCookie(w http.ResponseWriter, token string, isSecure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    token,
		Path:     session.CookiePath,
		MaxAge:   session.CookieMaxAge,
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie removes the session cookie from the client.
func clearSessionCookie(w http.ResponseWriter, isSecure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    "",
		Path:     session.CookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// isValidEmail performs basic email format validation. The service does
// the thorough check; this exists for immediate field-level feedback.
func isValidEmail(email string) bool {
	atIndex := strings.Index(email, "@")
	if atIndex < 1 || atIndex >= len(email)-1 {
		return false
	}
	return strings.Contains(email[atIndex+1:], ".")
}
