/*
Package store opens the configured persistence backend.

PURPOSE:
  One place that turns (driver, dsn) into a payroll.TxRepository, so the
  server and the CLI open storage the same way.

DRIVERS:
  sqlite    store/sqlite, dsn is a file path or ":memory:"
  postgres  store/postgres, dsn is a postgres:// URL
*/
package store

import (
	"context"
	"fmt"

	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/store/postgres"
	"github.com/warp/payroll-engine/store/sqlite"
)

// Backend is a transactional repository that can also be seeded with
// employees and sales.
type Backend interface {
	payroll.TxRepository
	SaveEmployee(ctx context.Context, emp payroll.EmployeeProfile) error
	SaveSale(ctx context.Context, sale payroll.Sale) error
	Close() error
}

var (
	_ Backend = (*sqlite.Store)(nil)
	_ Backend = (*postgres.Store)(nil)
)

// Open connects to driver ("sqlite" or "postgres") at dsn.
func Open(ctx context.Context, driver, dsn string) (Backend, error) {
	switch driver {
	case "sqlite":
		s, err := sqlite.New(dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return s, nil
	case "postgres":
		s, err := postgres.New(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
