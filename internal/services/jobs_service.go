package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/osvaldoandrade/gaitkeepr/internal/metrics"
	"github.com/osvaldoandrade/gaitkeepr/internal/providers"
	"github.com/osvaldoandrade/gaitkeepr/internal/tracing"
	"github.com/osvaldoandrade/gaitkeepr/pkg/domain"
	"github.com/osvaldoandrade/gaitkeepr/pkg/persistence"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrMissingFilename = errors.New("Missing filename")
	ErrEmptyFile       = errors.New("Empty file")
	ErrFileTooLarge    = errors.New("File too large")
	ErrJobNotFound     = errors.New("job_id not found")
)

// FailedAnalysisMessage is stored on jobs whose upload name carries the
// configured fail marker.
const FailedAnalysisMessage = "Could not detect a runner in the video"

type JobsService interface {
	Create(ctx context.Context, originalName string, content io.Reader) (*domain.UploadResponse, error)
	Result(ctx context.Context, jobID string) (*domain.ScoreResult, error)
}

// Progression controls how long a simulated job stays in each phase.
type Progression struct {
	Queued     time.Duration
	Processing time.Duration
	// FailMarker, when non-empty, makes uploads whose name contains it
	// (case-insensitive) finish with an error instead of a score.
	FailMarker string
}

type jobsService struct {
	store    persistence.JobStorage
	uploader providers.Uploader
	progress Progression
	logger   *slog.Logger
	now      func() time.Time
	loc      *time.Location
	newID    func() string
}

func NewJobsService(store persistence.JobStorage, uploader providers.Uploader, progress Progression, logger *slog.Logger, now func() time.Time, loc *time.Location) JobsService {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	return &jobsService{
		store:    store,
		uploader: uploader,
		progress: progress,
		logger:   logger,
		now:      now,
		loc:      loc,
		newID:    uuid.NewString,
	}
}

func (s *jobsService) Create(ctx context.Context, originalName string, content io.Reader) (*domain.UploadResponse, error) {
	ctx, span := tracing.Start(ctx, "gaitkeepr.job.create", attribute.String("gaitkeepr.filename", originalName))
	defer span.End()

	if strings.TrimSpace(originalName) == "" {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		return nil, ErrMissingFilename
	}
	br := bufio.NewReader(content)
	if _, err := br.Peek(1); err != nil {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyFile
		}
		return nil, fmt.Errorf("read upload: %w", err)
	}

	stored, err := s.uploader.Save(ctx, originalName, br)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		tracing.Fail(span, err)
		if errors.Is(err, providers.ErrTooLarge) {
			return nil, ErrFileTooLarge
		}
		return nil, fmt.Errorf("save upload: %w", err)
	}

	now := s.now().In(s.loc)
	job := &domain.JobRecord{
		ID:           s.newID(),
		Status:       domain.StatusQueued,
		Filename:     stored.Path,
		OriginalName: originalName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, job); err != nil {
		tracing.Fail(span, err)
		return nil, fmt.Errorf("create job: %w", err)
	}

	metrics.UploadsTotal.WithLabelValues("accepted").Inc()
	metrics.UploadBytes.Observe(float64(stored.Size))
	span.SetAttributes(attribute.String("gaitkeepr.job_id", job.ID), attribute.Int64("gaitkeepr.bytes", stored.Size))
	s.logger.Info("job created", "jobId", job.ID, "file", stored.Name, "bytes", stored.Size)

	return &domain.UploadResponse{JobID: job.ID, Status: job.Status}, nil
}

func (s *jobsService) Result(ctx context.Context, jobID string) (*domain.ScoreResult, error) {
	ctx, span := tracing.Start(ctx, "gaitkeepr.job.result", attribute.String("gaitkeepr.job_id", jobID))
	defer span.End()

	job, err := s.store.Get(ctx, jobID)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, tracing.Fail(span, err)
	}

	job, err = s.advance(ctx, job)
	if err != nil {
		return nil, tracing.Fail(span, err)
	}
	span.SetAttributes(attribute.String("gaitkeepr.status", string(job.Status)))
	metrics.ResultPollsTotal.WithLabelValues(string(job.Status)).Inc()

	switch job.Status {
	case domain.StatusError:
		msg := job.Error
		if msg == "" {
			msg = "Unknown error"
		}
		return &domain.ScoreResult{JobID: job.ID, Status: domain.StatusError, Metrics: []domain.MetricScore{}, Tips: []string{}, Error: &msg}, nil
	case domain.StatusDone:
		return MockScore(job.ID), nil
	default:
		return &domain.ScoreResult{JobID: job.ID, Status: job.Status, Metrics: []domain.MetricScore{}, Tips: []string{}}, nil
	}
}

// advance moves job to the status its age calls for and persists the change.
func (s *jobsService) advance(ctx context.Context, job *domain.JobRecord) (*domain.JobRecord, error) {
	if job.Status.IsTerminal() {
		return job, nil
	}
	now := s.now()
	next, errMsg := s.statusAt(job, now)
	if next == job.Status {
		return job, nil
	}

	updated, err := s.store.UpdateStatus(ctx, job.ID, next, errMsg, now)
	if errors.Is(err, persistence.ErrTerminal) {
		// another poll finished it first
		return updated, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}
	s.logger.Info("job status changed", "jobId", job.ID, "from", job.Status, "to", next)
	if next.IsTerminal() {
		metrics.JobsCompletedTotal.WithLabelValues(string(next)).Inc()
		metrics.JobLatencySeconds.WithLabelValues(string(next)).Observe(now.Sub(job.CreatedAt).Seconds())
	}
	return updated, nil
}

func (s *jobsService) statusAt(job *domain.JobRecord, now time.Time) (domain.JobStatus, string) {
	age := now.Sub(job.CreatedAt)
	switch {
	case age < s.progress.Queued:
		return domain.StatusQueued, ""
	case age < s.progress.Queued+s.progress.Processing:
		return domain.StatusProcessing, ""
	}
	marker := strings.ToLower(strings.TrimSpace(s.progress.FailMarker))
	if marker != "" && strings.Contains(strings.ToLower(job.OriginalName), marker) {
		return domain.StatusError, FailedAnalysisMessage
	}
	return domain.StatusDone, ""
}

// MockScore is the fixed scoring payload returned for finished jobs until a
// real analyzer is attached.
func MockScore(jobID string) *domain.ScoreResult {
	overall := 76
	return &domain.ScoreResult{
		JobID:        jobID,
		Status:       domain.StatusDone,
		OverallScore: &overall,
		Metrics: []domain.MetricScore{
			metric("Cadence", 78, 172, "spm"),
			metric("Overstride", 66, 0.18, "leg-lengths"),
			metric("Torso Lean", 82, 7.5, "deg"),
			metric("Vertical Bounce", 71, 5.2, "cm"),
		},
		Tips: []string{
			"Try increasing cadence slightly (+5–10 spm) to reduce impact.",
			"Aim to land closer under your hips to reduce overstriding.",
			"Keep a small forward lean from the ankles (not a waist bend).",
		},
	}
}

func metric(name string, score int, value float64, unit string) domain.MetricScore {
	return domain.MetricScore{Name: name, Score: score, Value: &value, Unit: &unit}
}
