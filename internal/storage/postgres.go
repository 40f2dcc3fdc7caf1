package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	createAlertStateTableSQL = `CREATE TABLE IF NOT EXISTS alert_state (
        id         SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
        state      JSONB NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	loadAlertStateSQL = `SELECT state FROM alert_state WHERE id = 1;`

	saveAlertStateSQL = `INSERT INTO alert_state (id, state, updated_at)
    VALUES (1, $1, now())
    ON CONFLICT (id) DO UPDATE
    SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at;`
)

// PostgresStore keeps the alert map as one JSONB document in a
// single-row table; the upsert gives whole-document replace semantics.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// PostgresConfig encapsulates connectivity for the Postgres backend.
type PostgresConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// NewPostgresStore connects and ensures the state table exists.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage: postgres dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	if _, err := pool.Exec(ctx, createAlertStateTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create alert_state table: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Load reads the state document; an absent row means no open alerts.
func (s *PostgresStore) Load(ctx context.Context) (AlertState, error) {
	if s.pool == nil {
		return nil, ErrNotConfigured
	}

	var data []byte
	err := s.pool.QueryRow(ctx, loadAlertStateSQL).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return AlertState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load alert state: %w", err)
	}

	state := AlertState{}
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode alert state: %w", err)
	}
	return state, nil
}

// Save upserts the full document in one statement.
func (s *PostgresStore) Save(ctx context.Context, state AlertState) error {
	if s.pool == nil {
		return ErrNotConfigured
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode alert state: %w", err)
	}

	if _, err := s.pool.Exec(ctx, saveAlertStateSQL, data); err != nil {
		return fmt.Errorf("save alert state: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

var _ AlertStateStore = (*PostgresStore)(nil)
