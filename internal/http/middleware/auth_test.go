// README: Tests for the auth, logging and recovery middleware.
package middleware_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"carpool/internal/http/middleware"
	"carpool/internal/infra"
)

// stubVerifier is a test double for infra.TokenVerifier.
type stubVerifier struct {
	token *infra.FirebaseToken
	err   error
}

func (s *stubVerifier) VerifyIDToken(_ context.Context, _ string) (*infra.FirebaseToken, error) {
	return s.token, s.err
}

func newTestRouter(verifier infra.TokenVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Auth(verifier))
	r.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"uid": middleware.CallerUID(c), "role": middleware.CallerRole(c)})
	})
	return r
}

func TestAuth(t *testing.T) {
	analyst := &infra.FirebaseToken{UID: "analyst-7", Claims: map[string]interface{}{"role": "operator"}}
	cases := []struct {
		name     string
		verifier infra.TokenVerifier
		header   string
		want     int
		contains []string
	}{
		{"missing header", &stubVerifier{token: analyst}, "", http.StatusUnauthorized, nil},
		{"wrong scheme", &stubVerifier{token: analyst}, "Token abc", http.StatusUnauthorized, nil},
		{"empty bearer", &stubVerifier{token: analyst}, "Bearer ", http.StatusUnauthorized, nil},
		{"verifier error", &stubVerifier{err: errors.New("bad token")}, "Bearer nope", http.StatusUnauthorized, nil},
		{"valid token", &stubVerifier{token: analyst}, "Bearer ok", http.StatusOK, []string{"analyst-7", "operator"}},
		{"no role claim", &stubVerifier{token: &infra.FirebaseToken{UID: "guest", Claims: map[string]interface{}{}}}, "Bearer ok", http.StatusOK, []string{"guest"}},
		{"auth disabled", nil, "", http.StatusOK, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			newTestRouter(tc.verifier).ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d", w.Code, tc.want)
			}
			for _, s := range tc.contains {
				if !strings.Contains(w.Body.String(), s) {
					t.Errorf("body %s does not contain %q", w.Body.String(), s)
				}
			}
		})
	}
}

func TestRecoveryAndLogging(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	r := gin.New()
	r.Use(middleware.Logging(log), middleware.Recovery(log))
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	out := buf.String()
	if !strings.Contains(out, "kaboom") || !strings.Contains(out, `"status":500`) {
		t.Fatalf("log output = %s", out)
	}
}
