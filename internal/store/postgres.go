package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema of the review table.
const postgresSchema = `
	CREATE TABLE IF NOT EXISTS prediction_review (
	  id UUID PRIMARY KEY,
	  mode TEXT NOT NULL,
	  created_at TIMESTAMPTZ NOT NULL,
	  record JSONB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_prediction_review_created ON prediction_review(created_at DESC);
`

// PostgresStore keeps records in the prediction_review table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects and creates the table if needed.
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create prediction_review: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Save(ctx context.Context, r *Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	query := `
		INSERT INTO prediction_review (id, mode, created_at, record)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET mode = EXCLUDED.mode, created_at = EXCLUDED.created_at, record = EXCLUDED.record
	`
	if _, err := p.pool.Exec(ctx, query, r.ID, r.Mode, r.CreatedAt, data); err != nil {
		return fmt.Errorf("postgres upsert failed: %w", err)
	}
	return nil
}

func (p *PostgresStore) Latest(ctx context.Context) (*Record, error) {
	return p.queryOne(ctx, `SELECT record FROM prediction_review ORDER BY created_at DESC LIMIT 1`)
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	return p.queryOne(ctx, `SELECT record FROM prediction_review WHERE id = $1`, id)
}

func (p *PostgresStore) queryOne(ctx context.Context, query string, args ...any) (*Record, error) {
	var data []byte
	if err := p.pool.QueryRow(ctx, query, args...).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("postgres query failed: %w", err)
	}

	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &r, nil
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
