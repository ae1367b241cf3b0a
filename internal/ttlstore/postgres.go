package ttlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresBackend struct {
	pool *pgxpool.Pool
}

func NewPostgresBackend(ctx context.Context, dsn string) (*PostgresBackend, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	backend := &PostgresBackend{pool: pool}
	if err := backend.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return backend, nil
}

func (b *PostgresBackend) Close() {
	b.pool.Close()
}

func (b *PostgresBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var raw []byte
	var expiresAt time.Time
	err := b.pool.QueryRow(ctx, `
SELECT payload, expires_at FROM taxon_totals WHERE key = $1
`, key).Scan(&raw, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("ttlstore postgres get: %w", err)
	}
	if time.Now().UTC().After(expiresAt.UTC()) {
		return nil, false, nil
	}
	return raw, true, nil
}

func (b *PostgresBackend) Set(ctx context.Context, key string, raw []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}
	expiresAt := time.Now().UTC().Add(ttl)
	_, err := b.pool.Exec(ctx, `
INSERT INTO taxon_totals (key, payload, expires_at)
VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload, expires_at = EXCLUDED.expires_at
`, key, raw, expiresAt)
	if err != nil {
		return fmt.Errorf("ttlstore postgres set: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.pool.Exec(ctx, `DELETE FROM taxon_totals WHERE key = $1`, key); err != nil {
		return fmt.Errorf("ttlstore postgres delete: %w", err)
	}
	return nil
}

// Purge removes rows past their expiry and reports how many were deleted.
func (b *PostgresBackend) Purge(ctx context.Context) (int64, error) {
	result, err := b.pool.Exec(ctx, `DELETE FROM taxon_totals WHERE expires_at < $1`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("ttlstore postgres purge: %w", err)
	}
	return result.RowsAffected(), nil
}

func (b *PostgresBackend) initSchema(ctx context.Context) error {
	statements := []string{
		`
CREATE TABLE IF NOT EXISTS taxon_totals (
	key TEXT PRIMARY KEY,
	payload BYTEA NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);
`,
		`CREATE INDEX IF NOT EXISTS idx_taxon_totals_expires_at ON taxon_totals (expires_at);`,
	}

	for _, stmt := range statements {
		if _, err := b.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("initialize taxon_totals schema: %w", err)
		}
	}
	return nil
}
