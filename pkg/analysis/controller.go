// Package analysis drives one video submission from upload to a terminal
// result: submit the file, then poll the result resource until the job
// finishes or the attempt budget runs out.
package analysis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/osvaldoandrade/gaitkeepr/internal/backoff"
	"github.com/osvaldoandrade/gaitkeepr/pkg/domain"
)

const (
	DefaultMaxAttempts = 180
	DefaultInterval    = time.Second
)

var (
	ErrNoFile     = errors.New("no file selected")
	ErrTimeout    = errors.New("Analysis timed out. Please try again.")
	ErrSuperseded = errors.New("analysis superseded by a newer submission")
)

// Backend is the subset of the API client the controller needs.
type Backend interface {
	Upload(ctx context.Context, filename string, r io.Reader) (*domain.UploadResponse, error)
	FetchResult(ctx context.Context, jobID string) (*domain.ScoreResult, error)
}

// File is a video selected for upload.
type File struct {
	Name   string
	Reader io.Reader
}

// Observer receives a copy of the state after every transition.
type Observer func(State)

type Options struct {
	MaxAttempts int
	Interval    time.Duration
	Policy      backoff.Policy
	MaxInterval time.Duration
	Observer    Observer
	Logger      *slog.Logger

	// Sleep waits between attempts; it must return ctx.Err() when ctx ends.
	Sleep func(ctx context.Context, d time.Duration) error
}

type Controller struct {
	backend     Backend
	maxAttempts int
	schedule    backoff.Schedule
	sleep       func(ctx context.Context, d time.Duration) error
	observer    Observer
	logger      *slog.Logger

	mu    sync.Mutex
	gen   uint64
	state State
}

func NewController(backend Backend, opts Options) *Controller {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Policy == "" {
		opts.Policy = backoff.Fixed
	}
	if opts.MaxInterval < opts.Interval {
		opts.MaxInterval = opts.Interval
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Controller{
		backend:     backend,
		maxAttempts: opts.MaxAttempts,
		schedule:    backoff.NewSchedule(opts.Policy, opts.Interval, opts.MaxInterval, nil),
		sleep:       opts.Sleep,
		observer:    opts.Observer,
		logger:      opts.Logger,
		state:       State{Phase: PhaseIdle, MaxAttempts: opts.MaxAttempts},
	}
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run submits f and polls until the job reaches a terminal status.
// A job that ends in "error" is returned without error; the backend message
// is available via State().Message(). Starting a new Run supersedes any run
// still in flight: its later updates are dropped and it returns ErrSuperseded.
func (c *Controller) Run(ctx context.Context, f *File) (*domain.ScoreResult, error) {
	if f == nil || f.Reader == nil {
		return nil, ErrNoFile
	}
	gen := c.begin()
	log := c.logger.With("file", f.Name)

	up, err := c.backend.Upload(ctx, f.Name, f.Reader)
	if err != nil {
		log.Debug("upload failed", "err", err)
		return nil, c.fail(gen, PhaseFailed, err)
	}
	jobID := up.JobID
	log = log.With("job_id", jobID)
	if !c.update(gen, func(s *State) {
		s.Phase = PhasePolling
		s.JobID = jobID
		s.Result = domain.Placeholder(jobID)
	}) {
		return nil, ErrSuperseded
	}

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if !c.update(gen, func(s *State) { s.Attempt = attempt }) {
			return nil, ErrSuperseded
		}
		res, err := c.backend.FetchResult(ctx, jobID)
		if err != nil {
			log.Debug("fetch failed", "attempt", attempt, "err", err)
			return nil, c.fail(gen, PhaseFailed, err)
		}
		if !c.update(gen, func(s *State) { s.Result = res }) {
			return nil, ErrSuperseded
		}
		switch res.Status {
		case domain.StatusDone:
			log.Debug("analysis done", "attempts", attempt)
			c.finish(gen, PhaseDone)
			return res, nil
		case domain.StatusError:
			log.Debug("analysis failed on backend", "attempts", attempt, "error", res.ErrorMessage())
			c.finish(gen, PhaseError)
			return res, nil
		}
		if attempt == c.maxAttempts {
			break
		}
		if err := c.sleep(ctx, c.schedule.Delay(attempt-1)); err != nil {
			return nil, c.fail(gen, PhaseFailed, err)
		}
	}

	log.Debug("analysis timed out", "attempts", c.maxAttempts)
	return nil, c.fail(gen, PhaseTimedOut, ErrTimeout)
}

func (c *Controller) begin() uint64 {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.state = State{
		Phase:       PhaseSubmitting,
		Loading:     true,
		MaxAttempts: c.maxAttempts,
	}
	snapshot := c.state
	c.mu.Unlock()
	c.publish(snapshot)
	return gen
}

// update applies fn when gen is still the current run.
func (c *Controller) update(gen uint64, fn func(*State)) bool {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return false
	}
	fn(&c.state)
	snapshot := c.state
	c.mu.Unlock()
	c.publish(snapshot)
	return true
}

func (c *Controller) finish(gen uint64, phase Phase) {
	c.update(gen, func(s *State) {
		s.Phase = phase
		s.Loading = false
	})
}

func (c *Controller) fail(gen uint64, phase Phase, err error) error {
	if !c.update(gen, func(s *State) {
		s.Phase = phase
		s.Loading = false
		s.Err = err
	}) {
		return ErrSuperseded
	}
	return err
}

func (c *Controller) publish(s State) {
	if c.observer != nil {
		c.observer(s)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
