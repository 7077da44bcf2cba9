package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/osvaldoandrade/gaitkeepr/pkg/domain"
	"github.com/osvaldoandrade/gaitkeepr/pkg/persistence"

	_ "modernc.org/sqlite"
)

// Config holds SQLite-specific configuration
type Config struct {
	Path string `json:"path"`
	// RetentionHours bounds how long finished jobs are kept.
	RetentionHours int `json:"retentionHours,omitempty"`
}

// Plugin implements PluginPersistence on a single SQLite file
type Plugin struct {
	db        *sql.DB
	tz        *time.Location
	retention time.Duration
}

// NewPlugin opens (and creates if needed) the database at Config.Path
func NewPlugin(config persistence.PluginConfig) (persistence.PluginPersistence, error) {
	var cfg Config
	if err := json.Unmarshal(config.Config, &cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("path is required")
	}
	tz := config.Timezone
	if tz == nil {
		tz = time.UTC
	}
	p, err := Open(cfg.Path, tz)
	if err != nil {
		return nil, err
	}
	if cfg.RetentionHours > 0 {
		p.retention = time.Duration(cfg.RetentionHours) * time.Hour
	}
	return p, nil
}

// Open creates the parent directory, opens the database in WAL mode and
// ensures the schema exists.
func Open(path string, tz *time.Location) (*Plugin, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory failed: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}
	// single writer; keeps status transitions serialized
	db.SetMaxOpenConns(1)

	p := &Plugin{db: db, tz: tz, retention: 24 * time.Hour}
	if err := p.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema failed: %w", err)
	}
	return p, nil
}

func (p *Plugin) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		filename TEXT NOT NULL,
		original_name TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
	`
	_, err := p.db.Exec(schema)
	return err
}

// JobStorage returns the job storage implementation
func (p *Plugin) JobStorage() persistence.JobStorage {
	return &jobStorage{plugin: p}
}

// Health pings the database
func (p *Plugin) Health(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database handle
func (p *Plugin) Close() error {
	return p.db.Close()
}

// CleanupExpired deletes up to limit finished jobs last updated more than
// the retention window before now.
func (p *Plugin) CleanupExpired(ctx context.Context, now time.Time, limit int64) (int, error) {
	res, err := p.db.ExecContext(ctx, `
		DELETE FROM jobs WHERE id IN (
			SELECT id FROM jobs
			WHERE status IN (?, ?) AND updated_at < ?
			ORDER BY updated_at LIMIT ?
		)
	`, string(domain.StatusDone), string(domain.StatusError), formatTime(now.Add(-p.retention)), limit)
	if err != nil {
		return 0, fmt.Errorf("cleanup jobs: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func init() {
	persistence.RegisterProvider("sqlite", NewPlugin)
}

type jobStorage struct {
	plugin *Plugin
}

type scanner interface {
	Scan(dest ...any) error
}

const selectJob = `SELECT id, status, filename, original_name, error, created_at, updated_at FROM jobs WHERE id = ?`

func (s *jobStorage) Create(ctx context.Context, job *domain.JobRecord) error {
	_, err := s.plugin.db.ExecContext(ctx, `
		INSERT INTO jobs (id, status, filename, original_name, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, job.ID, string(job.Status), job.Filename, job.OriginalName, job.Error,
		formatTime(job.CreatedAt), formatTime(job.UpdatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return persistence.ErrAlreadyExists
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *jobStorage) Get(ctx context.Context, id string) (*domain.JobRecord, error) {
	return s.scanJob(s.plugin.db.QueryRowContext(ctx, selectJob, id))
}

func (s *jobStorage) UpdateStatus(ctx context.Context, id string, status domain.JobStatus, errorMsg string, at time.Time) (*domain.JobRecord, error) {
	tx, err := s.plugin.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rec, err := s.scanJob(tx.QueryRowContext(ctx, selectJob, id))
	if err != nil {
		return nil, err
	}
	change, err := persistence.CheckTransition(rec, status)
	if err != nil || !change {
		return rec, err
	}
	rec.Status = status
	rec.Error = errorMsg
	rec.UpdatedAt = at.In(s.plugin.tz)
	if _, err := tx.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), errorMsg, formatTime(rec.UpdatedAt), id,
	); err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

func (s *jobStorage) CountByStatus(ctx context.Context) (map[domain.JobStatus]int64, error) {
	rows, err := s.plugin.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.JobStatus]int64, 4)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[domain.JobStatus(status)] = n
	}
	return out, rows.Err()
}

func (s *jobStorage) scanJob(row scanner) (*domain.JobRecord, error) {
	var (
		rec              domain.JobRecord
		status           string
		created, updated string
	)
	err := row.Scan(&rec.ID, &status, &rec.Filename, &rec.OriginalName, &rec.Error, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}
	rec.Status = domain.JobStatus(status)
	if rec.CreatedAt, err = parseTime(created, s.plugin.tz); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseTime(updated, s.plugin.tz); err != nil {
		return nil, err
	}
	return &rec, nil
}

// fixed-width so stored timestamps compare correctly as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string, tz *time.Location) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", v, err)
	}
	return t.In(tz), nil
}
