package prediction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// ErrEntryNotFound is returned when no live cache entry exists for a key.
var ErrEntryNotFound = errors.New("prediction: cache entry not found")

// Entry is one persisted cache row. Data must reproduce exactly what the
// heuristic would return for the same input hash for the entry's lifetime.
type Entry struct {
	CacheKey   string          `json:"cache_key"`
	ModelID    string          `json:"model_id"`
	InputHash  string          `json:"input_hash"`
	Data       json.RawMessage `json:"prediction_data"`
	Confidence float64         `json:"confidence"`
	HitCount   int64           `json:"hit_count"`
	ExpiresAt  time.Time       `json:"expires_at"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Store is the persistent second cache layer.
type Store interface {
	Get(ctx context.Context, cacheKey string) (*Entry, error)
	Put(ctx context.Context, entry Entry) error
	DeleteExpired(ctx context.Context) (int64, error)
}

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists cache entries in the prediction_cache table.
type PostgresStore struct {
	db     rowQuerier
	tracer trace.Tracer
}

// NewPostgresStore builds a store backed by pgxpool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("prediction: pgx pool required")
	}
	return &PostgresStore{
		db:     pool,
		tracer: otel.Tracer("clinicflow.internal.prediction"),
	}
}

func newPostgresStoreWithExec(exec rowQuerier) *PostgresStore {
	if exec == nil {
		panic("prediction: exec required")
	}
	return &PostgresStore{
		db:     exec,
		tracer: otel.Tracer("clinicflow.internal.prediction"),
	}
}

var _ Store = (*PostgresStore)(nil)

// Get returns the live entry for cacheKey and increments its hit counter in
// the same statement. Expired rows are treated as absent; the cleaner owns
// their deletion.
func (s *PostgresStore) Get(ctx context.Context, cacheKey string) (*Entry, error) {
	ctx, span := s.tracer.Start(ctx, "prediction.cache_get")
	defer span.End()

	query := `
		UPDATE prediction_cache
		SET hit_count = hit_count + 1
		WHERE cache_key = $1 AND expires_at > now()
		RETURNING cache_key, model_id, input_hash, prediction_data, confidence, hit_count, expires_at, created_at
	`
	var entry Entry
	var data []byte
	if err := s.db.QueryRow(ctx, query, cacheKey).Scan(
		&entry.CacheKey,
		&entry.ModelID,
		&entry.InputHash,
		&data,
		&entry.Confidence,
		&entry.HitCount,
		&entry.ExpiresAt,
		&entry.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("prediction: cache select failed: %w", err)
	}
	entry.Data = append([]byte(nil), data...)
	return &entry, nil
}

// Put upserts an entry. Overwriting a key starts a fresh lifecycle, so the
// hit counter resets.
func (s *PostgresStore) Put(ctx context.Context, entry Entry) error {
	ctx, span := s.tracer.Start(ctx, "prediction.cache_put")
	defer span.End()

	query := `
		INSERT INTO prediction_cache (cache_key, model_id, input_hash, prediction_data, confidence, hit_count, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, now())
		ON CONFLICT (cache_key) DO UPDATE SET
			model_id = EXCLUDED.model_id,
			input_hash = EXCLUDED.input_hash,
			prediction_data = EXCLUDED.prediction_data,
			confidence = EXCLUDED.confidence,
			hit_count = 0,
			expires_at = EXCLUDED.expires_at,
			created_at = now()
	`
	if _, err := s.db.Exec(ctx, query,
		entry.CacheKey,
		entry.ModelID,
		entry.InputHash,
		[]byte(entry.Data),
		entry.Confidence,
		entry.ExpiresAt,
	); err != nil {
		span.RecordError(err)
		return fmt.Errorf("prediction: cache upsert failed: %w", err)
	}
	return nil
}

// DeleteExpired removes rows past their expiry and reports how many went.
func (s *PostgresStore) DeleteExpired(ctx context.Context) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "prediction.cache_delete_expired")
	defer span.End()

	ct, err := s.db.Exec(ctx, `DELETE FROM prediction_cache WHERE expires_at <= now()`)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("prediction: cache cleanup failed: %w", err)
	}
	return ct.RowsAffected(), nil
}
