package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/osvaldoandrade/gaitkeepr/internal/services"
	"github.com/osvaldoandrade/gaitkeepr/pkg/domain"
)

type fakeJobs struct {
	createErr error
	gotName   string
	gotBody   string
	result    *domain.ScoreResult
	resultErr error
}

func (f *fakeJobs) Create(ctx context.Context, name string, r io.Reader) (*domain.UploadResponse, error) {
	f.gotName = name
	b, _ := io.ReadAll(r)
	f.gotBody = string(b)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &domain.UploadResponse{JobID: "job-1", Status: domain.StatusQueued}, nil
}

func (f *fakeJobs) Result(ctx context.Context, id string) (*domain.ScoreResult, error) {
	return f.result, f.resultErr
}

type fakeChecker struct{ err error }

func (f fakeChecker) Health(ctx context.Context) error { return f.err }

func newRouter(jobs services.JobsService, checker HealthChecker, maxBytes int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/health", NewHealthController(checker).Handle)
	r.POST("/upload", NewUploadVideoController(jobs, maxBytes).Handle)
	r.GET("/results/:job_id", NewGetResultController(jobs).Handle)
	r.POST("/chat", NewChatController(services.NewCoachService()).Handle)
	return r
}

func multipartBody(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(fw, content)
	w.Close()
	return &buf, w.FormDataContentType()
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(&fakeJobs{}, fakeChecker{}, 0).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != `{"ok":true}` {
		t.Fatalf("health = %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	newRouter(&fakeJobs{}, fakeChecker{err: errors.New("down")}, 0).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unhealthy status = %d", rec.Code)
	}
}

func TestUpload(t *testing.T) {
	jobs := &fakeJobs{}
	body, ct := multipartBody(t, "file", "run.mp4", "frames")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	newRouter(jobs, nil, 0).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != `{"job_id":"job-1","status":"queued"}` {
		t.Fatalf("body = %s", rec.Body.String())
	}
	if jobs.gotName != "run.mp4" || jobs.gotBody != "frames" {
		t.Fatalf("service got %q %q", jobs.gotName, jobs.gotBody)
	}
}

func TestUploadErrors(t *testing.T) {
	tests := []struct {
		name      string
		field     string
		createErr error
		want      int
	}{
		{"wrong field", "video", nil, http.StatusBadRequest},
		{"empty file", "file", services.ErrEmptyFile, http.StatusBadRequest},
		{"missing filename", "file", services.ErrMissingFilename, http.StatusBadRequest},
		{"too large", "file", services.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{"storage failure", "file", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := multipartBody(t, tt.field, "run.mp4", "x")
			req := httptest.NewRequest(http.MethodPost, "/upload", body)
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()
			newRouter(&fakeJobs{createErr: tt.createErr}, nil, 0).ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
			var resp map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp["error"] == nil {
				t.Fatalf("expected {error} body, got %s", rec.Body.String())
			}
		})
	}
}

func TestUploadBodyLimit(t *testing.T) {
	body, ct := multipartBody(t, "file", "run.mp4", strings.Repeat("x", 2<<20))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	newRouter(&fakeJobs{}, nil, 10).ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGetResult(t *testing.T) {
	msg := "Could not detect a runner in the video"
	jobs := &fakeJobs{result: &domain.ScoreResult{JobID: "job-1", Status: domain.StatusError, Error: &msg}}
	rec := httptest.NewRecorder()
	newRouter(jobs, nil, 0).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/results/job-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got domain.ScoreResult
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != domain.StatusError || got.ErrorMessage() != msg {
		t.Fatalf("unexpected result %+v", got)
	}

	rec = httptest.NewRecorder()
	newRouter(&fakeJobs{resultErr: services.ErrJobNotFound}, nil, 0).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/results/nope", nil))
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "job_id not found") {
		t.Fatalf("not found = %d %s", rec.Code, rec.Body.String())
	}
}

func TestChat(t *testing.T) {
	r := newRouter(&fakeJobs{}, nil, 0)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"shin splints","run_context":null}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d %s", rec.Code, rec.Body.String())
	}
	var resp domain.ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Citations) != 2 {
		t.Fatalf("citations = %+v", resp.Citations)
	}

	for _, body := range []string{`{`, `{}`, `{"message":"   "}`} {
		rec = httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d", body, rec.Code)
		}
	}
}
