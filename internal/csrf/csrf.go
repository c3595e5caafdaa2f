// Package csrf provides CSRF protection using the double-submit cookie pattern.
//
// The double-submit cookie pattern works by:
// 1. Setting a random token in a cookie (not HttpOnly, so the client can read it)
// 2. Requiring the same token in the X-CSRF-Token header on mutating requests
// 3. Comparing the cookie value with the header value
//
// This is secure because:
// - Attackers can make the browser send cookies with cross-origin requests
// - But attackers cannot read/set cookies for our domain (same-origin policy)
// - So they cannot include the correct token in the request header
package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
)

const (
	// CookieName is the name of the CSRF token cookie.
	CookieName = "csrf_token"

	// HeaderName is the request header that must carry the token on
	// mutating requests.
	HeaderName = "X-CSRF-Token"

	// TokenLength is the number of random bytes for the token (32 bytes = 256 bits).
	TokenLength = 32

	// CookieMaxAge is the lifetime of the CSRF cookie (1 hour).
	// Shorter than session cookies; tokens are cheap to refresh.
	CookieMaxAge = 3600
)

// =============================================================================
// Token Generation
// =============================================================================

// GenerateToken generates a cryptographically secure random token,
// base64 URL-encoded (43 characters).
func GenerateToken() (string, error) {
	b := make([]byte, TokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// =============================================================================
// Token Validation
// =============================================================================

// ValidateToken compares the cookie token with the header token in
// constant time.
func ValidateToken(cookieToken, headerToken string) bool {
	if cookieToken == "" || headerToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookieToken), []byte(headerToken)) == 1
}

// ValidateRequest validates the CSRF token on a request, comparing the
// csrf_token cookie against the X-CSRF-Token header.
func ValidateRequest(r *http.Request) bool {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return false
	}
	return ValidateToken(cookie.Value, r.Header.Get(HeaderName))
}

// =============================================================================
// Cookie Management
// =============================================================================

// SetCookie sets the CSRF token cookie on the response.
//
// HttpOnly is false: the client must read the cookie to echo the token
// back in the header. SameSite=Strict for maximum protection.
func SetCookie(w http.ResponseWriter, token string, isSecure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   CookieMaxAge,
		HttpOnly: false,
		Secure:   isSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

// EnsureToken ensures a CSRF token cookie exists for the request and
// returns the token in force.
func EnsureToken(w http.ResponseWriter, r *http.Request, isSecure bool) (string, error) {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	token, err := GenerateToken()
	if err != nil {
		return "", err
	}
	SetCookie(w, token, isSecure)
	return token, nil
}

// =============================================================================
// Middleware
// =============================================================================

// Protect wraps a handler with double-submit CSRF enforcement.
//
// Safe methods (GET, HEAD, OPTIONS) pass through and get a token cookie
// if they don't have one. Mutating methods must present a matching
// X-CSRF-Token header or the request is rejected with 403.
//
// Webhook routes must NOT be wrapped: the payment gateways authenticate
// with signatures, not cookies.
func Protect(isSecure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				_, _ = EnsureToken(w, r, isSecure)
				next.ServeHTTP(w, r)
				return
			}

			if !ValidateRequest(r) {
				http.Error(w, "CSRF token missing or invalid", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
