package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware(), LoggerMiddleware(testLogger()))
	var seen string
	r.GET("/x", func(c *gin.Context) {
		seen = RequestID(c.Request.Context())
		if Logger(c) == nil {
			t.Error("expected request logger")
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if seen != "req-123" || rec.Header().Get(HeaderRequestID) != "req-123" {
		t.Fatalf("request id not propagated: ctx=%q header=%q", seen, rec.Header().Get(HeaderRequestID))
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if _, err := uuid.Parse(rec.Header().Get(HeaderRequestID)); err != nil {
		t.Fatalf("generated id is not a uuid: %q", rec.Header().Get(HeaderRequestID))
	}
	if seen != rec.Header().Get(HeaderRequestID) {
		t.Fatal("context and header ids differ")
	}
}
