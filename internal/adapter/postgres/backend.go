package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/portcullis/portcullis/internal/core/domain"
)

// Backend serves the gate's capability interface over a pgx pool. Each call
// borrows one pooled connection and releases it on every exit path; the pool
// is the only shared state.
type Backend struct {
	pool    *pgxpool.Pool
	schemas []string // empty means all non-system schemas
}

func NewBackend(pool *pgxpool.Pool, schemas []string) *Backend {
	return &Backend{pool: pool, schemas: schemas}
}

func (b *Backend) Dialect() domain.Dialect { return domain.DialectPostgres }

// Connect verifies that the pool can reach the server.
func (b *Backend) Connect(ctx context.Context) error {
	if err := b.pool.Ping(ctx); err != nil {
		return domain.WrapError(domain.KindConnection, "pinging database", err)
	}
	return nil
}

// Close releases every pooled connection.
func (b *Backend) Close() {
	b.pool.Close()
}
