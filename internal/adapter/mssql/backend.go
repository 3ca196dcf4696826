package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/microsoft/go-mssqldb"
	"github.com/portcullis/portcullis/internal/core/domain"
)

// Backend serves the gate's capability interface over a database/sql pool
// using the sqlserver driver. T-SQL has no read-only transaction mode, so
// write protection rests on the gate's validation and the login's own
// permissions; grant the connecting login db_datareader only.
type Backend struct {
	db      *sql.DB
	schemas []string // empty means all non-system schemas
}

func NewBackend(db *sql.DB, schemas []string) *Backend {
	return &Backend{db: db, schemas: schemas}
}

// PoolConfig sizes the database/sql connection pool. Zero values keep the
// driver defaults.
type PoolConfig struct {
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Open dials dsn, applies the sizing knobs, and verifies the connection with
// a bounded ping.
func Open(ctx context.Context, dsn string, pc PoolConfig) (*sql.DB, error) {
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlserver connection: %w", err)
	}
	if pc.MaxConns > 0 {
		db.SetMaxOpenConns(pc.MaxConns)
	}
	if pc.MinConns > 0 {
		db.SetMaxIdleConns(pc.MinConns)
	}
	if pc.MaxConnLifetime > 0 {
		db.SetConnMaxLifetime(pc.MaxConnLifetime)
	}
	if pc.MaxConnIdleTime > 0 {
		db.SetConnMaxIdleTime(pc.MaxConnIdleTime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database (10s timeout): %w", err)
	}

	return db, nil
}

func (b *Backend) Dialect() domain.Dialect { return domain.DialectMSSQL }

// Connect verifies that the pool can reach the server.
func (b *Backend) Connect(ctx context.Context) error {
	if err := b.db.PingContext(ctx); err != nil {
		return domain.WrapError(domain.KindConnection, "pinging database", err)
	}
	return nil
}

// Close releases every pooled connection.
func (b *Backend) Close() error {
	return b.db.Close()
}
