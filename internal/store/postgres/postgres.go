// Package postgres keeps posts, their meta, terms and events in
// PostgreSQL. The schema mirrors the classic posts/postmeta/terms layout
// so revisions are plain rows of type "revision".
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/metarev/internal/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

// dbtx is what queries need from either a pool or a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a store.Store on a connection pool.
type Store struct {
	queries
	pool *sql.DB
}

var _ store.Store = (*Store)(nil)

// New connects to databaseURL and brings the schema up to date.
func New(databaseURL string) (*Store, error) {
	pool, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	pool.SetMaxOpenConns(25)
	pool.SetMaxIdleConns(5)
	pool.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrateUp(pool); err != nil {
		pool.Close()
		return nil, err
	}
	return newStore(pool), nil
}

func newStore(pool *sql.DB) *Store {
	return &Store{queries: queries{db: pool}, pool: pool}
}

func migrateUp(pool *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	drv, err := migratepg.WithInstance(pool, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", drv)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.pool.Close()
}

// SetObjectTerms replaces a taxonomy's assignments atomically.
func (s *Store) SetObjectTerms(ctx context.Context, postID int64, taxonomy string, slugs []string) error {
	return s.RunInTransaction(ctx, func(tx store.Store) error {
		return tx.SetObjectTerms(ctx, postID, taxonomy, slugs)
	})
}

// RunInTransaction runs fn against a store bound to one transaction. fn's
// error rolls everything back.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	sqlTx, err := s.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&txStore{queries{db: sqlTx}}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore is the store handed to RunInTransaction callbacks.
type txStore struct {
	queries
}

var _ store.Store = (*txStore)(nil)

// RunInTransaction joins the enclosing transaction.
func (t *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(t)
}

// Close leaves the connection to the owning Store.
func (t *txStore) Close() error { return nil }
