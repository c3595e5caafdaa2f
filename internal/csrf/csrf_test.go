package csrf

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGenerateToken_UniqueAndLongEnough(t *testing.T) {
	a, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	b, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	if a == b {
		t.Error("two generated tokens are identical")
	}
	if len(a) < 40 {
		t.Errorf("token too short: %d chars", len(a))
	}
}

func TestValidateToken(t *testing.T) {
	tests := []struct {
		name   string
		cookie string
		header string
		want   bool
	}{
		{"matching tokens", "abc123", "abc123", true},
		{"mismatched tokens", "abc123", "xyz789", false},
		{"empty cookie", "", "abc123", false},
		{"empty header", "abc123", "", false},
		{"both empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateToken(tt.cookie, tt.header); got != tt.want {
				t.Errorf("ValidateToken(%q, %q) = %v, want %v", tt.cookie, tt.header, got, tt.want)
			}
		})
	}
}

func TestProtect_GETSetsTokenCookie(t *testing.T) {
	handler := Protect(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/api/sessions", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	found := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == CookieName && c.Value != "" {
			found = true
		}
	}
	if !found {
		t.Error("GET request did not receive a csrf_token cookie")
	}
}

func TestProtect_POSTWithoutTokenRejected(t *testing.T) {
	called := false
	handler := Protect(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest("POST", "/api/sessions", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	if called {
		t.Error("handler should not run without a valid token")
	}
}

func TestProtect_POSTWithMatchingTokenPasses(t *testing.T) {
	called := false
	handler := Protect(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/api/sessions", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "token-value"})
	req.Header.Set(HeaderName, "token-value")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if !called {
		t.Error("handler should run with a valid token")
	}
}
