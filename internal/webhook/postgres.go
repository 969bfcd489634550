package webhook

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is an IdempotencyStore backed by a Postgres table with a
// unique (provider, delivery_id) constraint. INSERT .. ON CONFLICT DO
// NOTHING is the atomic first-seen primitive; expired rows are reaped
// opportunistically on each write.
type PostgresStore struct {
	pool    *pgxpool.Pool
	ttl     time.Duration
	timeout time.Duration
}

// NewPostgresStore connects and ensures the deliveries table exists.
func NewPostgresStore(ctx context.Context, dsn string, ttl time.Duration) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	s := &PostgresStore{pool: pool, ttl: ttl, timeout: 2 * time.Second}

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err = pool.Exec(initCtx, `
		CREATE TABLE IF NOT EXISTS webhook_deliveries (
			provider    TEXT NOT NULL,
			delivery_id TEXT NOT NULL,
			seen_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (provider, delivery_id)
		)`)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// RecordIfNew implements IdempotencyStore.
func (s *PostgresStore) RecordIfNew(ctx context.Context, provider, deliveryID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// Reap expired records first so a replay past the retention window
	// counts as first again.
	_, err := s.pool.Exec(ctx,
		`DELETE FROM webhook_deliveries WHERE provider = $1 AND delivery_id = $2 AND seen_at < now() - make_interval(secs => $3)`,
		provider, deliveryID, s.ttl.Seconds())
	if err != nil {
		return false, err
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO webhook_deliveries (provider, delivery_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		provider, deliveryID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
