package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/osvaldoandrade/gaitkeepr/pkg/auth/static"
)

func newAuthRouter(t *testing.T, token string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var mw gin.HandlerFunc
	if token == "" {
		mw = AuthMiddleware(nil)
	} else {
		v, err := static.NewValidatorFromJSON(json.RawMessage(`{"token":"` + token + `","subject":"runner-1"}`))
		if err != nil {
			t.Fatalf("validator: %v", err)
		}
		mw = AuthMiddleware(v)
	}
	r.GET("/protected", mw, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"subject": c.GetString("subject")})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	r := newAuthRouter(t, "s3cret")

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic s3cret", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer s3cret", http.StatusOK},
		{"case-insensitive scheme", "bearer s3cret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
			if tt.want == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
				t.Fatal("expected WWW-Authenticate header")
			}
			if tt.want == http.StatusOK && rec.Body.String() != `{"subject":"runner-1"}` {
				t.Fatalf("body = %s", rec.Body.String())
			}
		})
	}
}

func TestAuthMiddlewareOpenWithoutValidator(t *testing.T) {
	r := newAuthRouter(t, "")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/protected", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
