package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/osvaldoandrade/gaitkeepr/internal/providers"
	"github.com/osvaldoandrade/gaitkeepr/pkg/domain"
	"github.com/osvaldoandrade/gaitkeepr/pkg/persistence"

	"github.com/go-redis/redis/v8"
)

// Config holds Redis-specific configuration
type Config struct {
	Addr     string `json:"addr"`
	Password string `json:"password,omitempty"`
	// RetentionHours bounds how long finished jobs stay indexed for cleanup.
	RetentionHours int `json:"retentionHours,omitempty"`
}

// Plugin implements PluginPersistence for Redis/KVRocks
type Plugin struct {
	client    *redis.Client
	tz        *time.Location
	retention time.Duration
}

// NewPlugin creates a new Redis persistence plugin
func NewPlugin(config persistence.PluginConfig) (persistence.PluginPersistence, error) {
	var cfg Config
	if err := json.Unmarshal(config.Config, &cfg); err != nil {
		return nil, err
	}
	if cfg.Addr == "" {
		return nil, errors.New("addr is required")
	}
	if cfg.RetentionHours <= 0 {
		cfg.RetentionHours = 24
	}
	tz := config.Timezone
	if tz == nil {
		tz = time.UTC
	}
	return NewPluginWithClient(providers.NewRedisProvider(cfg.Addr, cfg.Password), tz, time.Duration(cfg.RetentionHours)*time.Hour), nil
}

// NewPluginWithClient wraps an existing client.
func NewPluginWithClient(client *redis.Client, tz *time.Location, retention time.Duration) *Plugin {
	return &Plugin{client: client, tz: tz, retention: retention}
}

// Client exposes the underlying connection so other components (rate
// limiting) can share it.
func (p *Plugin) Client() *redis.Client { return p.client }

// JobStorage returns the job storage implementation
func (p *Plugin) JobStorage() persistence.JobStorage {
	return &jobStorage{plugin: p}
}

// Health checks if Redis is healthy
func (p *Plugin) Health(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close releases Redis connection
func (p *Plugin) Close() error {
	return p.client.Close()
}

func init() {
	persistence.RegisterProvider("redis", NewPlugin)
}

type jobStorage struct {
	plugin *Plugin
}

// Each job lives under its own key so WATCH on one job never conflicts with
// updates to another. keyJobIDs indexes them for counting.
const (
	keyJobPrefix = "gaitkeepr:job:"
	keyJobIDs    = "gaitkeepr:jobs:ids"
	keyTTLIndex  = "gaitkeepr:jobs:ttl"

	maxUpdateRetries = 10
)

func keyJob(id string) string { return keyJobPrefix + id }

func (s *jobStorage) Create(ctx context.Context, job *domain.JobRecord) error {
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	rdb := s.plugin.client
	ok, err := rdb.SetNX(ctx, keyJob(job.ID), string(b), 0).Result()
	if err != nil {
		return fmt.Errorf("redis SETNX job: %w", err)
	}
	if !ok {
		return persistence.ErrAlreadyExists
	}
	if err := rdb.SAdd(ctx, keyJobIDs, job.ID).Err(); err != nil {
		return fmt.Errorf("redis SADD job id: %w", err)
	}
	return nil
}

func (s *jobStorage) Get(ctx context.Context, id string) (*domain.JobRecord, error) {
	return s.get(ctx, s.plugin.client, id)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *jobStorage) get(ctx context.Context, cmd getter, id string) (*domain.JobRecord, error) {
	js, err := cmd.Get(ctx, keyJob(id)).Result()
	if err == redis.Nil || (err == nil && js == "") {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET job: %w", err)
	}
	var rec domain.JobRecord
	if err := json.Unmarshal([]byte(js), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &rec, nil
}

// UpdateStatus runs under WATCH on the job's key so two concurrent pollers
// cannot both move the same job. A lost race is retried.
func (s *jobStorage) UpdateStatus(ctx context.Context, id string, status domain.JobStatus, errorMsg string, at time.Time) (*domain.JobRecord, error) {
	p := s.plugin
	key := keyJob(id)
	var out *domain.JobRecord
	txf := func(tx *redis.Tx) error {
		rec, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		change, err := persistence.CheckTransition(rec, status)
		if err != nil || !change {
			out = rec
			return err
		}
		rec.Status = status
		rec.Error = errorMsg
		rec.UpdatedAt = at.In(p.tz)
		b, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, string(b), 0)
			if status.IsTerminal() {
				pipe.ZAdd(ctx, keyTTLIndex, &redis.Z{Score: float64(at.Add(p.retention).UTC().Unix()), Member: id})
			}
			return nil
		})
		if err != nil {
			return err
		}
		out = rec
		return nil
	}
	for i := 0; i < maxUpdateRetries; i++ {
		err := p.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return out, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("redis update job %s: too much contention", id)
}

func (s *jobStorage) CountByStatus(ctx context.Context) (map[domain.JobStatus]int64, error) {
	rdb := s.plugin.client
	ids, err := rdb.SMembers(ctx, keyJobIDs).Result()
	if err != nil {
		return nil, fmt.Errorf("redis SMEMBERS jobs: %w", err)
	}
	out := make(map[domain.JobStatus]int64, 4)
	const batch = 500
	for len(ids) > 0 {
		n := len(ids)
		if n > batch {
			n = batch
		}
		keys := make([]string, n)
		for i, id := range ids[:n] {
			keys[i] = keyJob(id)
		}
		ids = ids[n:]

		vals, err := rdb.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, fmt.Errorf("redis MGET jobs: %w", err)
		}
		for _, v := range vals {
			js, ok := v.(string)
			if !ok {
				continue
			}
			var rec struct {
				Status domain.JobStatus `json:"status"`
			}
			if err := json.Unmarshal([]byte(js), &rec); err != nil {
				continue
			}
			out[rec.Status]++
		}
	}
	return out, nil
}

// CleanupExpired drops finished jobs whose retention elapsed before now.
func (p *Plugin) CleanupExpired(ctx context.Context, now time.Time, limit int64) (int, error) {
	ids, err := p.client.ZRangeByScore(ctx, keyTTLIndex, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", now.UTC().Unix()),
		Count: limit,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("redis ZRANGEBYSCORE ttl: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	keys := make([]string, len(ids))
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		keys[i] = keyJob(id)
		members[i] = id
	}
	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.SRem(ctx, keyJobIDs, members...)
		pipe.ZRem(ctx, keyTTLIndex, members...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis cleanup: %w", err)
	}
	return len(ids), nil
}
