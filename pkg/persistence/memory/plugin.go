package memory

import (
	"context"
	"sync"
	"time"

	"github.com/osvaldoandrade/gaitkeepr/pkg/domain"
	"github.com/osvaldoandrade/gaitkeepr/pkg/persistence"
)

// Plugin implements PluginPersistence for in-memory storage.
// Jobs are lost on restart; use it for local development and tests.
type Plugin struct {
	mu   sync.RWMutex
	jobs map[string]domain.JobRecord
	tz   *time.Location
}

// NewPlugin creates a new in-memory persistence plugin
func NewPlugin(config persistence.PluginConfig) (persistence.PluginPersistence, error) {
	tz := config.Timezone
	if tz == nil {
		tz = time.UTC
	}
	return &Plugin{jobs: make(map[string]domain.JobRecord), tz: tz}, nil
}

// JobStorage returns the job storage implementation
func (p *Plugin) JobStorage() persistence.JobStorage {
	return &jobStorage{plugin: p}
}

// Health always returns nil for in-memory storage
func (p *Plugin) Health(ctx context.Context) error {
	return nil
}

// Close is a no-op for in-memory storage
func (p *Plugin) Close() error {
	return nil
}

func init() {
	persistence.RegisterProvider("memory", NewPlugin)
}

type jobStorage struct {
	plugin *Plugin
}

func (s *jobStorage) Create(ctx context.Context, job *domain.JobRecord) error {
	p := s.plugin
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.jobs[job.ID]; ok {
		return persistence.ErrAlreadyExists
	}
	p.jobs[job.ID] = *job
	return nil
}

func (s *jobStorage) Get(ctx context.Context, id string) (*domain.JobRecord, error) {
	p := s.plugin
	p.mu.RLock()
	defer p.mu.RUnlock()
	rec, ok := p.jobs[id]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return &rec, nil
}

func (s *jobStorage) UpdateStatus(ctx context.Context, id string, status domain.JobStatus, errorMsg string, at time.Time) (*domain.JobRecord, error) {
	p := s.plugin
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.jobs[id]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	change, err := persistence.CheckTransition(&rec, status)
	if err != nil || !change {
		return &rec, err
	}
	rec.Status = status
	rec.Error = errorMsg
	rec.UpdatedAt = at.In(p.tz)
	p.jobs[id] = rec
	return &rec, nil
}

func (s *jobStorage) CountByStatus(ctx context.Context) (map[domain.JobStatus]int64, error) {
	p := s.plugin
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[domain.JobStatus]int64, 4)
	for _, rec := range p.jobs {
		out[rec.Status]++
	}
	return out, nil
}
