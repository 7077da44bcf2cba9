package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/osvaldoandrade/gaitkeepr/pkg/analysis"
	"github.com/osvaldoandrade/gaitkeepr/pkg/auth/hmac"
	"github.com/osvaldoandrade/gaitkeepr/pkg/chat"
	"github.com/osvaldoandrade/gaitkeepr/pkg/client"
	"github.com/osvaldoandrade/gaitkeepr/pkg/config"
	"github.com/osvaldoandrade/gaitkeepr/pkg/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("PERSISTENCE_PROVIDER", "")
	cfg, err := config.LoadConfigOptional("")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.ArtifactsDir = t.TempDir()
	cfg.SQLitePath = t.TempDir() + "/jobs.db"
	return cfg
}

func startServer(t *testing.T, cfg *config.Config, opts ...ApplicationOption) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	opts = append([]ApplicationOption{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	application, err := NewApplication(cfg, opts...)
	if err != nil {
		t.Fatalf("NewApplication: %v", err)
	}
	SetupMappings(application)
	application.Start()
	srv := httptest.NewServer(application.Engine)
	t.Cleanup(func() {
		srv.Close()
		_ = application.Close(context.Background())
	})
	return srv
}

func runAnalysis(t *testing.T, c *client.Client, clk *fakeClock, name string) (*domain.ScoreResult, []analysis.State, error) {
	t.Helper()
	var (
		mu     sync.Mutex
		states []analysis.State
	)
	opts := analysis.Options{
		Interval: time.Second,
		Observer: func(s analysis.State) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
	}
	if clk != nil {
		opts.Sleep = clk.Sleep
	}
	ctrl := analysis.NewController(c, opts)
	res, err := ctrl.Run(context.Background(), &analysis.File{Name: name, Reader: strings.NewReader("fake video bytes")})
	return res, states, err
}

func TestHTTPIntegrationFlow(t *testing.T) {
	cfg := testConfig(t)
	cfg.QueuedSeconds = 2
	cfg.ProcessingSeconds = 3
	clk := &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	srv := startServer(t, cfg, WithClock(clk.Now))
	c := client.New(srv.URL)

	ctx := context.Background()
	if h, err := c.Health(ctx); err != nil || !h.OK {
		t.Fatalf("health: %+v %v", h, err)
	}

	res, states, err := runAnalysis(t, c, clk, "run.mp4")
	if err != nil {
		t.Fatalf("analysis: %v", err)
	}
	if res.Status != domain.StatusDone || domain.FormatScore(res.OverallScore) != "76" {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := res.Metrics[2].Display(); got != "82 • 7.5 deg" {
		t.Errorf("torso lean display = %q", got)
	}

	last := states[len(states)-1]
	if last.Phase != analysis.PhaseDone || last.Loading {
		t.Fatalf("final state = %+v", last)
	}
	// queued at +0s and +1s, processing at +2s..+4s, done at +5s
	if last.Attempt != 6 {
		t.Errorf("attempts = %d, want 6", last.Attempt)
	}
	sawProcessing := false
	for _, s := range states {
		if s.Result != nil && s.Result.Status == domain.StatusProcessing {
			sawProcessing = true
		}
	}
	if !sawProcessing {
		t.Error("expected a processing snapshot while polling")
	}

	// a finished job stays finished on later fetches
	again, err := c.FetchResult(ctx, res.JobID)
	if err != nil || again.Status != domain.StatusDone {
		t.Fatalf("refetch: %+v %v", again, err)
	}

	session := chat.NewSession(c)
	session.SetRunContext(chat.RunContextFromResult(res))
	reply, err := session.Send(ctx, "my shin hurts after long runs")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !strings.Contains(reply.Text, "Sources:\n- Mock KB: Tibialis Raises") {
		t.Fatalf("reply = %q", reply.Text)
	}
}

func TestHTTPIntegrationTimeout(t *testing.T) {
	cfg := testConfig(t)
	cfg.QueuedSeconds = 3600
	clk := &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	srv := startServer(t, cfg, WithClock(clk.Now))

	ctrl := analysis.NewController(client.New(srv.URL), analysis.Options{MaxAttempts: 5, Sleep: clk.Sleep})
	_, err := ctrl.Run(context.Background(), &analysis.File{Name: "run.mp4", Reader: strings.NewReader("x")})
	if !errors.Is(err, analysis.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	st := ctrl.State()
	if st.Phase != analysis.PhaseTimedOut || st.Message() != "Analysis timed out. Please try again." {
		t.Fatalf("state = %+v", st)
	}
}

func TestHTTPIntegrationFailedJob(t *testing.T) {
	cfg := testConfig(t)
	cfg.FailMarker = "blurry"
	srv := startServer(t, cfg)

	res, _, err := runAnalysis(t, client.New(srv.URL), nil, "Blurry-treadmill.mp4")
	if err != nil {
		t.Fatalf("analysis: %v", err)
	}
	if res.Status != domain.StatusError || res.ErrorMessage() == "" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestHTTPIntegrationErrors(t *testing.T) {
	srv := startServer(t, testConfig(t))
	c := client.New(srv.URL)
	ctx := context.Background()

	_, err := c.FetchResult(ctx, "does-not-exist")
	if client.StatusCode(err) != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}

	if _, err := c.Upload(ctx, "empty.mp4", bytes.NewReader(nil)); client.StatusCode(err) != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty upload, got %v", err)
	}

	ctrl := analysis.NewController(c, analysis.Options{})
	if _, err := ctrl.Run(ctx, &analysis.File{Name: "empty.mp4", Reader: bytes.NewReader(nil)}); err == nil || err.Error() != "Upload failed (400)" {
		t.Fatalf("expected upload failure, got %v", err)
	}
	if ctrl.State().Phase != analysis.PhaseFailed {
		t.Fatalf("phase = %s", ctrl.State().Phase)
	}

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "gaitkeepr_uploads_total") {
		t.Fatal("expected gaitkeepr metrics to be exposed")
	}
}

func TestHTTPIntegrationAuth(t *testing.T) {
	cfg := testConfig(t)
	cfg.AuthProvider = "hmac"
	cfg.AuthSecret = "integration-secret-0123"
	cfg.AuthIssuer = "gaitkeepr-test"
	srv := startServer(t, cfg)
	ctx := context.Background()

	if _, err := client.New(srv.URL).Chat(ctx, "hi", nil); client.StatusCode(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %v", err)
	}
	if _, err := client.New(srv.URL).Health(ctx); err != nil {
		t.Fatalf("health must stay public: %v", err)
	}

	tok, err := hmac.Issue(hmac.Config{Secret: cfg.AuthSecret, Issuer: cfg.AuthIssuer, Audience: cfg.AuthAudience}, "runner-1", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	resp, err := client.New(srv.URL, client.WithToken(tok)).Chat(ctx, "knee", nil)
	if err != nil {
		t.Fatalf("chat with token: %v", err)
	}
	if !strings.HasPrefix(resp.Message, "Tell me where it hurts") {
		t.Fatalf("reply = %q", resp.Message)
	}
}

func TestHTTPIntegrationRedisAndRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.PersistenceProvider = "redis"
	cfg.RedisAddr = mr.Addr()
	cfg.RateLimit.Chat = config.RateLimitBucketConfig{RequestsPerMinute: 1, BurstSize: 1}
	srv := startServer(t, cfg)
	c := client.New(srv.URL)
	ctx := context.Background()

	res, _, err := runAnalysis(t, c, nil, "run.mp4")
	if err != nil || res.Status != domain.StatusDone {
		t.Fatalf("analysis on redis: %+v %v", res, err)
	}
	if !mr.Exists("gaitkeepr:job:"+res.JobID) {
		t.Fatal("job not stored in redis")
	}

	if _, err := c.Chat(ctx, "shin", nil); err != nil {
		t.Fatalf("first chat: %v", err)
	}
	_, err = c.Chat(ctx, "shin", nil)
	if client.StatusCode(err) != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
}

func TestHTTPIntegrationSQLite(t *testing.T) {
	cfg := testConfig(t)
	cfg.PersistenceProvider = "sqlite"
	srv := startServer(t, cfg)

	res, _, err := runAnalysis(t, client.New(srv.URL), nil, "run.mp4")
	if err != nil || res.Status != domain.StatusDone {
		t.Fatalf("analysis on sqlite: %+v %v", res, err)
	}
}
