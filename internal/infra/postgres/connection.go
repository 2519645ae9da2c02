// Package postgres implements the domain repositories on PostgreSQL. The
// task repository is the interesting one: every status change is a
// conditional UPDATE so racing workers and cancellations stay safe without
// advisory locks.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/config"
)

const connectTimeout = 5 * time.Second

// DB wraps sql.DB with the helpers the repositories share.
type DB struct {
	*sql.DB
}

// New opens a connection pool and verifies it with a ping.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db}, nil
}

// Close closes the pool.
func (db *DB) Close() error {
	return db.DB.Close()
}

// HealthCheck pings the database, for the readiness probe.
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.PingContext(ctx)
}

// Transaction runs fn inside a transaction, committing on nil and rolling
// back on error. Batch task creation during an evaluation pass uses this so
// a half-written batch never reaches the queue.
func (db *DB) Transaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("failed to rollback transaction: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
