// Package postgres reads platform-wide counts from the fleet database for the
// system metrics collector.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dwsmith1983/fleetmon/pkg/types"
)

const defaultDriverTable = "drivers"

// querier is the subset of pgxpool.Pool used here.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Source counts on-shift drivers and active connections.
type Source struct {
	pool        *pgxpool.Pool
	db          querier
	driverQuery string
}

// New connects to Postgres and verifies the connection.
func New(ctx context.Context, cfg *types.PostgresConfig) (*Source, error) {
	if cfg == nil || cfg.DSN == "" {
		return nil, errors.New("postgres: dsn is required")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	s := newSource(pool, cfg.DriverTable)
	s.pool = pool
	return s, nil
}

func newSource(db querier, table string) *Source {
	if table == "" {
		table = defaultDriverTable
	}
	return &Source{
		db: db,
		driverQuery: "SELECT count(*) FROM " + pgx.Identifier(strings.Split(table, ".")).Sanitize() +
			" WHERE status = 'active'",
	}
}

// ActiveDriverCount returns the number of drivers whose status is active.
func (s *Source) ActiveDriverCount(ctx context.Context) (int, error) {
	return s.count(ctx, s.driverQuery)
}

// ActiveDatabaseConnections returns the number of backends currently running
// a query against this database.
func (s *Source) ActiveDatabaseConnections(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT count(*) FROM pg_stat_activity
		WHERE datname = current_database() AND state = 'active'`)
}

func (s *Source) count(ctx context.Context, query string) (int, error) {
	var n int64
	if err := s.db.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres count: %w", err)
	}
	return int(n), nil
}

// Ping verifies the pool can reach the server.
func (s *Source) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *Source) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
