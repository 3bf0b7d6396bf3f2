// Package store keeps served predictions for review by downstream tools.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/YassChaai/SmartCare-Analytics/internal/forecast"
	"github.com/YassChaai/SmartCare-Analytics/internal/resources"
)

// Prediction modes.
const (
	ModeSingle = "single"
	ModeMulti  = "multi"
)

// Backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// ErrNotFound is returned when no record matches.
var ErrNotFound = errors.New("prediction record not found")

// Record is one served prediction with its resource estimate.
type Record struct {
	ID        string              `json:"id"`
	Mode      string              `json:"mode"`
	CreatedAt time.Time           `json:"created_at"`
	Request   json.RawMessage     `json:"request,omitempty"`
	Days      []forecast.Day      `json:"days"`
	Resources *resources.Estimate `json:"resources,omitempty"`
	Summary   *resources.Summary  `json:"summary,omitempty"`
}

// NewRecord stamps a record with a fresh id and creation time.
func NewRecord(mode string, request any, days []forecast.Day) (*Record, error) {
	var raw json.RawMessage
	if request != nil {
		data, err := json.Marshal(request)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		raw = data
	}
	return &Record{
		ID:        uuid.NewString(),
		Mode:      mode,
		CreatedAt: time.Now().UTC(),
		Request:   raw,
		Days:      days,
	}, nil
}

// Store persists prediction records.
type Store interface {
	// Save stores r and makes it the latest record. Saving an existing id
	// replaces it.
	Save(ctx context.Context, r *Record) error

	// Latest returns the most recently saved record.
	Latest(ctx context.Context) (*Record, error)

	// Get returns a record by id.
	Get(ctx context.Context, id string) (*Record, error)

	// Close releases resources
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend       string
	Path          string // file backend snapshot
	Limit         int    // records kept by the memory and file backends
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PostgresURL   string
	TTL           time.Duration // redis expiry, 0 keeps records forever
}

// Open creates the configured backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemoryStore("", cfg.Limit)
	case BackendFile:
		if cfg.Path == "" {
			return nil, fmt.Errorf("file store requires a path")
		}
		return NewMemoryStore(cfg.Path, cfg.Limit)
	case BackendRedis:
		return NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.TTL)
	case BackendPostgres:
		return NewPostgresStore(ctx, cfg.PostgresURL)
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}
