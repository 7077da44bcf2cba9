package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/osvaldoandrade/gaitkeepr/pkg/persistence"
)

type CleanupService interface {
	Start(ctx context.Context)
	RunOnce(ctx context.Context) (int, error)
}

type cleanupService struct {
	store    persistence.Expirer
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
}

const cleanupBatch = 1000

func NewCleanupService(store persistence.Expirer, logger *slog.Logger, intervalSeconds int, now func() time.Time) CleanupService {
	if intervalSeconds <= 0 {
		intervalSeconds = 300
	}
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &cleanupService{
		store:    store,
		logger:   logger,
		interval: time.Duration(intervalSeconds) * time.Second,
		now:      now,
	}
}

func (s *cleanupService) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.RunOnce(ctx)
			if err != nil {
				s.logger.Warn("job cleanup failed", "err", err)
				continue
			}
			if removed > 0 {
				s.logger.Info("job cleanup removed", "count", removed)
			}
		}
	}
}

func (s *cleanupService) RunOnce(ctx context.Context) (int, error) {
	return s.store.CleanupExpired(ctx, s.now(), cleanupBatch)
}
