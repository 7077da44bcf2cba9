package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/osvaldoandrade/gaitkeepr/internal/providers"
	"github.com/osvaldoandrade/gaitkeepr/pkg/domain"
	"github.com/osvaldoandrade/gaitkeepr/pkg/persistence"
	"github.com/osvaldoandrade/gaitkeepr/pkg/persistence/memory"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestJobsService(t *testing.T, progress Progression, maxBytes int64) (JobsService, *clock, persistence.JobStorage) {
	t.Helper()
	plugin, err := memory.NewPlugin(persistence.PluginConfig{Timezone: time.UTC})
	if err != nil {
		t.Fatalf("memory plugin: %v", err)
	}
	clk := &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := plugin.JobStorage()
	svc := NewJobsService(store, providers.NewLocalUploader(t.TempDir(), maxBytes), progress, logger, clk.now, time.UTC)
	return svc, clk, store
}

func TestJobsServiceCreate(t *testing.T) {
	svc, _, store := newTestJobsService(t, Progression{}, 0)

	resp, err := svc.Create(context.Background(), "run.mp4", strings.NewReader("frames"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if resp.JobID == "" || resp.Status != domain.StatusQueued {
		t.Fatalf("unexpected response %+v", resp)
	}
	job, err := store.Get(context.Background(), resp.JobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.OriginalName != "run.mp4" {
		t.Errorf("OriginalName = %q", job.OriginalName)
	}
	if data, err := os.ReadFile(job.Filename); err != nil || string(data) != "frames" {
		t.Errorf("stored file: %q %v", data, err)
	}
}

func TestJobsServiceCreateRejects(t *testing.T) {
	svc, _, _ := newTestJobsService(t, Progression{}, 4)
	ctx := context.Background()

	tests := []struct {
		name    string
		file    string
		content string
		want    error
	}{
		{"missing filename", " ", "x", ErrMissingFilename},
		{"empty file", "run.mp4", "", ErrEmptyFile},
		{"too large", "run.mp4", "12345", ErrFileTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, tt.file, strings.NewReader(tt.content)); !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestJobsServiceProgression(t *testing.T) {
	svc, clk, store := newTestJobsService(t, Progression{Queued: 2 * time.Second, Processing: 5 * time.Second}, 0)
	ctx := context.Background()

	resp, err := svc.Create(ctx, "run.mp4", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	steps := []struct {
		after time.Duration
		want  domain.JobStatus
	}{
		{0, domain.StatusQueued},
		{time.Second, domain.StatusQueued},
		{3 * time.Second, domain.StatusProcessing},
		{7 * time.Second, domain.StatusDone},
	}
	created := clk.t
	for _, st := range steps {
		clk.t = created.Add(st.after)
		res, err := svc.Result(ctx, resp.JobID)
		if err != nil {
			t.Fatalf("Result at +%s: %v", st.after, err)
		}
		if res.Status != st.want {
			t.Fatalf("status at +%s = %s, want %s", st.after, res.Status, st.want)
		}
		if st.want != domain.StatusDone && (res.OverallScore != nil || len(res.Metrics) != 0) {
			t.Fatalf("non-done snapshot must be bare: %+v", res)
		}
	}

	job, _ := store.Get(ctx, resp.JobID)
	if job.Status != domain.StatusDone {
		t.Fatalf("done must be persisted, got %s", job.Status)
	}
}

func TestJobsServiceDonePayload(t *testing.T) {
	svc, _, _ := newTestJobsService(t, Progression{}, 0)
	ctx := context.Background()
	resp, _ := svc.Create(ctx, "run.mp4", strings.NewReader("x"))

	res, err := svc.Result(ctx, resp.JobID)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if res.Status != domain.StatusDone || res.OverallScore == nil || *res.OverallScore != 76 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(res.Metrics) != 4 || len(res.Tips) != 3 {
		t.Fatalf("metrics=%d tips=%d", len(res.Metrics), len(res.Tips))
	}
	if got := res.Metrics[0].Display(); got != "78 • 172 spm" {
		t.Errorf("cadence display = %q", got)
	}
	if got := res.Metrics[1].Display(); got != "66 • 0.18 leg-lengths" {
		t.Errorf("overstride display = %q", got)
	}
}

func TestJobsServiceFailMarker(t *testing.T) {
	svc, _, _ := newTestJobsService(t, Progression{FailMarker: "FAIL"}, 0)
	ctx := context.Background()
	resp, _ := svc.Create(ctx, "treadmill-fail.mp4", strings.NewReader("x"))

	res, err := svc.Result(ctx, resp.JobID)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if res.Status != domain.StatusError || res.ErrorMessage() != FailedAnalysisMessage {
		t.Fatalf("unexpected result %+v", res)
	}
	// stays failed
	res, _ = svc.Result(ctx, resp.JobID)
	if res.Status != domain.StatusError {
		t.Fatalf("terminal status changed to %s", res.Status)
	}
}

func TestJobsServiceNotFound(t *testing.T) {
	svc, _, _ := newTestJobsService(t, Progression{}, 0)
	if _, err := svc.Result(context.Background(), "nope"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("got %v, want ErrJobNotFound", err)
	}
}
