// Package postgres stores run records in PostgreSQL through the pgx
// database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-experiment/internal/env"
	"github.com/goliatone/go-experiment/pkg/runstore"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Schema creates the runs table. It is safe to apply repeatedly.
const Schema = `CREATE TABLE IF NOT EXISTS experiment_runs (
	id TEXT PRIMARY KEY,
	experiment TEXT NOT NULL,
	main TEXT NOT NULL,
	status TEXT NOT NULL,
	config JSONB,
	config_fingerprint TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMPTZ NOT NULL,
	ended_at TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS experiment_runs_experiment_started_idx
	ON experiment_runs (experiment, started_at DESC)`

const upsertRun = `INSERT INTO experiment_runs
	(id, experiment, main, status, config, config_fingerprint, error, started_at, ended_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
	experiment = EXCLUDED.experiment,
	main = EXCLUDED.main,
	status = EXCLUDED.status,
	config = EXCLUDED.config,
	config_fingerprint = EXCLUDED.config_fingerprint,
	error = EXCLUDED.error,
	started_at = EXCLUDED.started_at,
	ended_at = EXCLUDED.ended_at,
	updated_at = EXCLUDED.updated_at`

const selectColumns = `SELECT id, experiment, main, status, config, config_fingerprint, error, started_at, ended_at, updated_at
FROM experiment_runs`

// DB is the subset of *sql.DB the store needs.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// RunStore implements runstore.Store.
type RunStore struct {
	db DB
}

var _ runstore.Store = (*RunStore)(nil)

func NewRunStore(db DB) *RunStore {
	return &RunStore{db: db}
}

// EnsureSchema applies Schema.
func EnsureSchema(ctx context.Context, db DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("runstore: ensure schema: %w", err)
	}
	return nil
}

func (s *RunStore) Save(ctx context.Context, record runstore.Record) error {
	id := strings.TrimSpace(record.ID)
	if id == "" {
		return runstore.ErrRunIDRequired
	}
	var config []byte
	if record.Config != nil {
		encoded, err := json.Marshal(record.Config)
		if err != nil {
			return fmt.Errorf("runstore: encode config for run %s: %w", id, err)
		}
		config = encoded
	}
	updatedAt := record.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, upsertRun,
		id,
		record.Experiment,
		record.Main,
		record.Status,
		config,
		record.Fingerprint,
		record.Error,
		record.StartedAt.UTC(),
		nullTime(record.EndedAt),
		updatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("runstore: save run %s: %w", id, err)
	}
	return nil
}

func (s *RunStore) Get(ctx context.Context, id string) (runstore.Record, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = $1`, strings.TrimSpace(id))
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return runstore.Record{}, runstore.ErrNotFound
	}
	if err != nil {
		return runstore.Record{}, fmt.Errorf("runstore: get run %s: %w", id, err)
	}
	return record, nil
}

func (s *RunStore) List(ctx context.Context, experiment string, limit int) ([]runstore.Record, error) {
	query := selectColumns
	var args []any
	if experiment = strings.TrimSpace(experiment); experiment != "" {
		args = append(args, experiment)
		query += fmt.Sprintf(` WHERE experiment = $%d`, len(args))
	}
	query += ` ORDER BY started_at DESC, id DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("runstore: list runs: %w", err)
	}
	defer rows.Close()

	var out []runstore.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("runstore: scan run: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("runstore: list runs: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (runstore.Record, error) {
	var (
		record  runstore.Record
		config  []byte
		endedAt sql.NullTime
	)
	if err := row.Scan(
		&record.ID,
		&record.Experiment,
		&record.Main,
		&record.Status,
		&config,
		&record.Fingerprint,
		&record.Error,
		&record.StartedAt,
		&endedAt,
		&record.UpdatedAt,
	); err != nil {
		return runstore.Record{}, err
	}
	if len(config) > 0 {
		if err := json.Unmarshal(config, &record.Config); err != nil {
			return runstore.Record{}, fmt.Errorf("decode config: %w", err)
		}
	}
	if endedAt.Valid {
		record.EndedAt = endedAt.Time.UTC()
	}
	record.StartedAt = record.StartedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	return record, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// Config holds connection settings.
type Config struct {
	URL             string
	PingTimeout     time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ConfigFromEnv reads EXPERIMENT_DATABASE_* variables.
func ConfigFromEnv() (Config, error) {
	pingTimeout, err := env.Duration("EXPERIMENT_DATABASE_PING_TIMEOUT", 2*time.Second)
	if err != nil {
		return Config{}, err
	}
	maxOpenConns, err := env.Int("EXPERIMENT_DATABASE_MAX_OPEN_CONNS", 4)
	if err != nil {
		return Config{}, err
	}
	maxIdleConns, err := env.Int("EXPERIMENT_DATABASE_MAX_IDLE_CONNS", 2)
	if err != nil {
		return Config{}, err
	}
	connMaxLifetime, err := env.Duration("EXPERIMENT_DATABASE_CONN_MAX_LIFETIME", 30*time.Minute)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		URL:             env.String("EXPERIMENT_DATABASE_URL", ""),
		PingTimeout:     pingTimeout,
		MaxOpenConns:    maxOpenConns,
		MaxIdleConns:    maxIdleConns,
		ConnMaxLifetime: connMaxLifetime,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("EXPERIMENT_DATABASE_URL is required")
	}
	if c.PingTimeout <= 0 {
		return errors.New("EXPERIMENT_DATABASE_PING_TIMEOUT must be positive")
	}
	if c.MaxOpenConns < 1 {
		return errors.New("EXPERIMENT_DATABASE_MAX_OPEN_CONNS must be >= 1")
	}
	if c.MaxIdleConns < 0 || c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("EXPERIMENT_DATABASE_MAX_IDLE_CONNS must be between 0 and EXPERIMENT_DATABASE_MAX_OPEN_CONNS")
	}
	if c.ConnMaxLifetime < 0 {
		return errors.New("EXPERIMENT_DATABASE_CONN_MAX_LIFETIME must be >= 0")
	}
	return nil
}

// Open connects with the pgx driver and pings the server.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return db, nil
}
