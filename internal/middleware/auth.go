// Package middleware contains HTTP middleware for the Kaiwa application.
//
// Middleware functions follow the standard Go pattern of wrapping
// http.Handler and are composed with Stack.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kaiwahq/kaiwa/internal/auth"
	"github.com/kaiwahq/kaiwa/internal/domain"
	"github.com/kaiwahq/kaiwa/internal/handler"
	"github.com/kaiwahq/kaiwa/internal/service"
	"github.com/kaiwahq/kaiwa/internal/session"
)

// GetUser retrieves the authenticated user from the request context.
// Returns nil if no user is authenticated.
func GetUser(ctx context.Context) *domain.User {
	return auth.GetUser(ctx)
}

// =============================================================================
// Auth Middleware
// =============================================================================

// AuthMiddleware provides session-cookie authentication middleware.
type AuthMiddleware struct {
	userService service.UserService
	logger      *slog.Logger
	isSecure    bool // Whether to set Secure flag on cookies (true in production)
	adminEmails map[string]bool
}

// NewAuthMiddleware creates a new AuthMiddleware instance.
func NewAuthMiddleware(userService service.UserService, logger *slog.Logger, isSecure bool) *AuthMiddleware {
	return &AuthMiddleware{
		userService: userService,
		logger:      logger,
		isSecure:    isSecure,
		adminEmails: make(map[string]bool),
	}
}

// WithAdminEmails sets the allowlist of admin emails (case-insensitive)
// and returns the middleware for chaining.
func (m *AuthMiddleware) WithAdminEmails(emails []string) *AuthMiddleware {
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			m.adminEmails[e] = true
		}
	}
	return m
}

// WithUser attempts to load the user from the session cookie and stores
// it in the request context. It continues to the next handler whether or
// not a valid session was found; an invalid or expired cookie is cleared.
//
// Use this as the outermost auth layer so RequireUser and friends can
// read the context.
func (m *AuthMiddleware) WithUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(session.CookieName)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		user, err := m.userService.GetBySessionToken(r.Context(), cookie.Value)
		if err != nil {
			clearSessionCookie(w, m.isSecure)
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.SetUser(r.Context(), user)))
	})
}

// RequireUser requires an authenticated user in the context.
// API requests get a 401 JSON error; browser requests are redirected to
// the login page with a return_to parameter.
//
// Must run after WithUser in the middleware chain.
func (m *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := auth.GetUser(r.Context())
		if user == nil {
			if isAPIRequest(r) {
				handler.UnauthorizedResponse(w, r, m.logger)
				return
			}

			returnTo := r.URL.Path
			if r.URL.RawQuery != "" {
				returnTo += "?" + r.URL.RawQuery
			}
			http.Redirect(w, r, "/login?return_to="+returnTo, http.StatusSeeOther)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireEmailVerified requires the user's email to be verified.
// API requests get a 403; browser requests are redirected to the
// verification reminder page.
//
// Must run after RequireUser.
func (m *AuthMiddleware) RequireEmailVerified(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := auth.GetUser(r.Context())
		if user == nil {
			m.logger.Error("RequireEmailVerified called without user in context")
			if isAPIRequest(r) {
				handler.UnauthorizedResponse(w, r, m.logger)
			} else {
				http.Redirect(w, r, "/login", http.StatusSeeOther)
			}
			return
		}

		if !user.EmailVerified {
			if isAPIRequest(r) {
				err := domain.Forbidden("", "Email verification required")
				handler.ErrorResponse(w, r, m.logger, err)
				return
			}
			http.Redirect(w, r, "/verify-email-reminder", http.StatusSeeOther)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireActiveSubscription requires an active (or trialing) subscription.
// API requests get a 402 Payment Required; browser requests are
// redirected to the billing page.
//
// Must run after RequireUser.
func (m *AuthMiddleware) RequireActiveSubscription(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := auth.GetUser(r.Context())
		if user == nil {
			m.logger.Error("RequireActiveSubscription called without user in context")
			if isAPIRequest(r) {
				handler.UnauthorizedResponse(w, r, m.logger)
			} else {
				http.Redirect(w, r, "/login", http.StatusSeeOther)
			}
			return
		}

		if !user.IsActive() {
			if isAPIRequest(r) {
				err := domain.Errorf(domain.EPAYMENT, "", "Active subscription required")
				handler.ErrorResponse(w, r, m.logger, err)
				return
			}
			http.Redirect(w, r, "/settings/billing?upgrade=1", http.StatusSeeOther)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireAdmin requires the authenticated user's email to be on the
// admin allowlist. Matching is case-insensitive.
//
// Must run after RequireUser.
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := auth.GetUser(r.Context())
		if user == nil {
			if isAPIRequest(r) {
				handler.UnauthorizedResponse(w, r, m.logger)
				return
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		if !m.adminEmails[strings.ToLower(user.Email)] {
			m.logger.Warn("non-admin attempted admin access", "user_id", user.ID, "path", r.URL.Path)
			if isAPIRequest(r) {
				handler.ForbiddenResponse(w, r, m.logger)
				return
			}
			http.Error(w, "403 Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Cookie Helpers
// =============================================================================

// SetSessionCookie sets the session cookie on the response.
//
// HttpOnly blocks JavaScript access, SameSite=Lax prevents CSRF while
// allowing normal navigation, and MaxAge matches the session duration.
func SetSessionCookie(w http.ResponseWriter, token string, isSecure bool) {
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

// clearSessionCookie removes the session cookie by setting MaxAge to -1.
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

// ClearSessionCookie is the exported version for use in logout handlers.
func ClearSessionCookie(w http.ResponseWriter, isSecure bool) {
	clearSessionCookie(w, isSecure)
}

// =============================================================================
// Request Helpers
// =============================================================================

// isAPIRequest reports whether the request expects a JSON response,
// deciding between redirects (browser) and JSON errors (API).
func isAPIRequest(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return true
	}
	return strings.HasPrefix(r.URL.Path, "/api/")
}

// =============================================================================
// Middleware Stack Helpers
// =============================================================================

// Stack composes middleware functions into one. The first middleware in
// the list is the outermost (runs first on the request).
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}
