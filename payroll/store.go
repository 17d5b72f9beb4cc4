/*
store.go - Persistence contract the payroll engine consumes

PURPOSE:
  Defines the interface between the engine and whatever stores employees,
  sales, payroll records, commission records and history snapshots.

KEY INTERFACES:
  Repository:   reads and versioned writes
  TxRepository: Repository plus WithTx for atomic multi-table writes

OPTIMISTIC CONCURRENCY:
  SavePayrollRecord receives a record whose Version is one more than the
  version the engine read (0 when the record did not exist). The store
  writes only if the version it holds is still Version-1, otherwise it
  returns ErrVersionConflict and writes nothing.

APPEND-ONLY CONTRACT:
  - Audit entries passed to SavePayrollRecord are appended in the same
    atomic write as the record; they are never edited or removed
  - History snapshots are inserted once and never updated

IMPLEMENTATIONS:
  - payroll/store/memory.go: in-memory, for tests and development
  - store/sqlite/sqlite.go: SQLite
  - store/postgres/postgres.go: PostgreSQL
*/
package payroll

import (
	"context"
	"time"
)

// =============================================================================
// QUERY SHAPES
// =============================================================================

// EmployeeFilter narrows ListEmployeesForPeriod; zero values match everything.
type EmployeeFilter struct {
	Department  string
	EmployeeIDs []string
}

func (f EmployeeFilter) Matches(p EmployeeProfile) bool {
	if f.Department != "" && f.Department != p.Department {
		return false
	}
	if len(f.EmployeeIDs) == 0 {
		return true
	}
	for _, id := range f.EmployeeIDs {
		if id == p.ID {
			return true
		}
	}
	return false
}

// SalesQuery selects an agent's sales either by Period or by an inclusive
// date range. The range wins when both are set.
type SalesQuery struct {
	Period *Period
	Range  *DateRange
}

func SalesForPeriod(p Period) SalesQuery { return SalesQuery{Period: &p} }

func SalesBetween(start, end time.Time) SalesQuery {
	return SalesQuery{Range: &DateRange{Start: start, End: end}}
}

// Bounds returns the inclusive [start, end] the query covers.
func (q SalesQuery) Bounds() (time.Time, time.Time, bool) {
	switch {
	case q.Range != nil:
		return q.Range.Start, q.Range.End, true
	case q.Period != nil:
		return q.Period.Start(), q.Period.End(), true
	default:
		return time.Time{}, time.Time{}, false
	}
}

// Matches reports whether a sale dated at falls inside the query.
func (q SalesQuery) Matches(at time.Time) bool {
	start, end, ok := q.Bounds()
	if !ok {
		return true
	}
	return !at.Before(start) && !at.After(end)
}

// =============================================================================
// REPOSITORY
// =============================================================================

// Repository is implemented by the persistence layer. Implementations must
// return copies: callers may mutate what they get back.
type Repository interface {
	// GetEmployee returns ErrEmployeeNotFound for unknown ids.
	GetEmployee(ctx context.Context, employeeID string) (EmployeeProfile, error)
	ListEmployeesForPeriod(ctx context.Context, period Period, filter EmployeeFilter) ([]EmployeeProfile, error)
	ListSalesForAgent(ctx context.Context, agentID string, query SalesQuery) ([]Sale, error)

	// LoadPayrollRecord returns (nil, nil) when no record exists.
	LoadPayrollRecord(ctx context.Context, employeeID string, period Period) (*PayrollRecord, error)
	// SavePayrollRecord persists record together with the new audit entries.
	// See the package comment for the version contract.
	SavePayrollRecord(ctx context.Context, record PayrollRecord, entries []AuditLogEntry) error

	// LoadCommissionRecord returns (nil, nil) when no record exists.
	LoadCommissionRecord(ctx context.Context, agentID string, period Period) (*CommissionRecord, error)
	// SaveCommissionRecord replaces the (agent, period) commission record.
	SaveCommissionRecord(ctx context.Context, record CommissionRecord) error

	SavePayrollHistorySnapshot(ctx context.Context, snapshot PayrollHistory) error
	ListPayrollHistory(ctx context.Context, filter HistoryFilter) ([]PayrollHistory, error)
}

// TxRepository adds atomic multi-write support. The engine uses it when
// available so commission and payroll records commit together.
type TxRepository interface {
	Repository

	// WithTx runs fn inside a transaction: committed if fn returns nil,
	// rolled back otherwise.
	WithTx(ctx context.Context, fn func(Repository) error) error
}
