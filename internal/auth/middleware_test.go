package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func mustToken(t *testing.T, secret []byte, subject string, expiresIn time.Duration) string {
	t.Helper()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareDisabledPassesEverything(t *testing.T) {
	mw := NewMiddleware(nil)
	if mw.Enabled() {
		t.Fatal("middleware with no secret should be disabled")
	}
	handler := mw.Wrap(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/alarms/mute", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestMiddlewareReadsStayOpen(t *testing.T) {
	mw := NewMiddleware([]byte("helm-secret"))
	handler := mw.Wrap(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/alarms", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestMiddlewareNoToken(t *testing.T) {
	mw := NewMiddleware([]byte("helm-secret"))
	handler := mw.Wrap(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/alarms/mute", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestMiddlewareValidTokenCarriesSubject(t *testing.T) {
	secret := []byte("helm-secret")
	mw := NewMiddleware(secret)
	var subject string
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/alarms/mute", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, secret, "skipper", time.Hour))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if subject != "skipper" {
		t.Fatalf("subject = %q, want skipper", subject)
	}
}

func TestMiddlewareWrongSecret(t *testing.T) {
	mw := NewMiddleware([]byte("helm-secret"))
	handler := mw.Wrap(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/alarms/mute", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, []byte("other-secret"), "skipper", time.Hour))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestMiddlewareExpiredToken(t *testing.T) {
	secret := []byte("helm-secret")
	mw := NewMiddleware(secret)
	handler := mw.Wrap(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/alarms/mute", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, secret, "skipper", -time.Hour))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestParseJWTRejectsOtherAlgorithms(t *testing.T) {
	secret := []byte("helm-secret")
	token := jwt.NewWithClaims(jwt.SigningMethodHS384, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "skipper"},
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := ParseJWT(signed, secret); err == nil {
		t.Fatal("HS384 token should be rejected")
	}
}

func TestExtractBearer(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer abc", "abc"},
		{"", ""},
		{"abc", ""},
		{"Basic abc", ""},
		{"Bearer abc def", ""},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		if got := extractBearer(req); got != tc.want {
			t.Errorf("extractBearer(%q) = %q, want %q", tc.header, got, tc.want)
		}
	}
}
