/*
Package sqlite provides a SQLite-backed payroll.Repository.

PURPOSE:
  Persists employees, sales, payroll records, commission records, the audit
  trail and finalized history snapshots. The server uses it by default; the
  PostgreSQL store follows the same layout.

INTERFACES IMPLEMENTED:
  payroll.Repository:   reads and versioned writes
  payroll.TxRepository: WithTx for atomic multi-table writes

KEY TABLES:
  employees:          Employee profiles (basic salary, agent id)
  sales:              Sales per agent, queried by period or date range
  payroll_records:    One row per (employee, period), versioned
  audit_log:          Append-only field changes (triggers reject UPDATE/DELETE)
  commission_records: One row per (agent, period)
  payroll_history:    Append-only finalized snapshots

OPTIMISTIC CONCURRENCY:
  A record saved with Version 1 is INSERTed; a duplicate key means another
  writer created it first. Later versions UPDATE ... WHERE version = v-1 and
  treat zero affected rows as a conflict. Both return payroll.ErrVersionConflict.

  The record row and its audit entries are written in one SQL transaction.

CONCURRENCY:
  Uses sync.RWMutex around every call, and a single connection so that
  ":memory:" databases are shared by all callers.

USAGE:
  store, err := sqlite.New("./data/payroll.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine, err := payroll.NewEngine(store, rates)

MIGRATION:
  Schema is auto-migrated on New().
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements payroll.TxRepository using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		department TEXT NOT NULL DEFAULT '',
		basic_salary TEXT NOT NULL,
		agent_id TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sales (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		customer_name TEXT NOT NULL DEFAULT '',
		sale_amount TEXT NOT NULL,
		sale_date TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sales_agent_date
		ON sales(agent_id, sale_date);

	CREATE TABLE IF NOT EXISTS payroll_records (
		employee_id TEXT NOT NULL,
		period TEXT NOT NULL,
		status TEXT NOT NULL,
		version INTEGER NOT NULL,
		record_json TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (employee_id, period)
	);

	CREATE INDEX IF NOT EXISTS idx_payroll_records_period_status
		ON payroll_records(period, status);

	-- Append-only: one row per tracked-field change
	CREATE TABLE IF NOT EXISTS audit_log (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		employee_id TEXT NOT NULL,
		period TEXT NOT NULL,
		field_name TEXT NOT NULL,
		old_value TEXT NOT NULL,
		new_value TEXT NOT NULL,
		changed_by TEXT NOT NULL,
		changed_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_log_record
		ON audit_log(employee_id, period, seq);

	CREATE TRIGGER IF NOT EXISTS audit_log_no_update
		BEFORE UPDATE ON audit_log
		BEGIN SELECT RAISE(ABORT, 'audit_log is append-only'); END;

	CREATE TRIGGER IF NOT EXISTS audit_log_no_delete
		BEFORE DELETE ON audit_log
		BEGIN SELECT RAISE(ABORT, 'audit_log is append-only'); END;

	CREATE TABLE IF NOT EXISTS commission_records (
		agent_id TEXT NOT NULL,
		period TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		record_json TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (agent_id, period)
	);

	-- Append-only: finalized snapshots
	CREATE TABLE IF NOT EXISTS payroll_history (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		period TEXT NOT NULL,
		snapshot_json TEXT NOT NULL,
		finalized_by TEXT NOT NULL,
		finalized_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payroll_history_employee_period
		ON payroll_history(employee_id, period);

	CREATE TRIGGER IF NOT EXISTS payroll_history_no_update
		BEFORE UPDATE ON payroll_history
		BEGIN SELECT RAISE(ABORT, 'payroll_history is append-only'); END;
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// EMPLOYEES AND SALES
// =============================================================================

// SaveEmployee inserts or replaces an employee profile.
func (s *Store) SaveEmployee(ctx context.Context, emp payroll.EmployeeProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO employees (id, name, department, basic_salary, agent_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			department = excluded.department,
			basic_salary = excluded.basic_salary,
			agent_id = excluded.agent_id
	`
	_, err := s.db.ExecContext(ctx, query,
		emp.ID, emp.Name, emp.Department,
		emp.BasicSalary.String(),
		nullString(emp.AgentID),
		time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

// SaveSale records a sale. Sale ids are unique.
func (s *Store) SaveSale(ctx context.Context, sale payroll.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sales (id, agent_id, customer_name, sale_amount, sale_date)
		VALUES (?, ?, ?, ?, ?)
	`, sale.ID, sale.AgentID, sale.CustomerName, sale.SaleAmount.String(), sale.Date.UTC().Format(timeLayout))
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("sale %s already exists", sale.ID)
		}
		return fmt.Errorf("failed to save sale: %w", err)
	}
	return nil
}

func (s *Store) GetEmployee(ctx context.Context, id string) (payroll.EmployeeProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getEmployee(ctx, s.db, id)
}

func (s *Store) ListEmployeesForPeriod(ctx context.Context, _ payroll.Period, filter payroll.EmployeeFilter) ([]payroll.EmployeeProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listEmployees(ctx, s.db, filter)
}

func (s *Store) ListSalesForAgent(ctx context.Context, agentID string, q payroll.SalesQuery) ([]payroll.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listSales(ctx, s.db, agentID, q)
}

func getEmployee(ctx context.Context, q querier, id string) (payroll.EmployeeProfile, error) {
	var (
		emp     payroll.EmployeeProfile
		basic   string
		agentID sql.NullString
	)
	err := q.QueryRowContext(ctx,
		"SELECT id, name, department, basic_salary, agent_id FROM employees WHERE id = ?", id,
	).Scan(&emp.ID, &emp.Name, &emp.Department, &basic, &agentID)
	if errors.Is(err, sql.ErrNoRows) {
		return payroll.EmployeeProfile{}, payroll.ErrEmployeeNotFound
	}
	if err != nil {
		return payroll.EmployeeProfile{}, fmt.Errorf("failed to get employee: %w", err)
	}
	if emp.BasicSalary, err = decimal.NewFromString(basic); err != nil {
		return payroll.EmployeeProfile{}, fmt.Errorf("employee %s: bad basic salary %q: %w", id, basic, err)
	}
	emp.AgentID = agentID.String
	return emp, nil
}

func listEmployees(ctx context.Context, q querier, filter payroll.EmployeeFilter) ([]payroll.EmployeeProfile, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, name, department, basic_salary, agent_id FROM employees ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	defer rows.Close()

	out := []payroll.EmployeeProfile{}
	for rows.Next() {
		var (
			emp     payroll.EmployeeProfile
			basic   string
			agentID sql.NullString
		)
		if err := rows.Scan(&emp.ID, &emp.Name, &emp.Department, &basic, &agentID); err != nil {
			return nil, err
		}
		if emp.BasicSalary, err = decimal.NewFromString(basic); err != nil {
			return nil, fmt.Errorf("employee %s: bad basic salary %q: %w", emp.ID, basic, err)
		}
		emp.AgentID = agentID.String
		if filter.Matches(emp) {
			out = append(out, emp)
		}
	}
	return out, rows.Err()
}

func listSales(ctx context.Context, q querier, agentID string, sq payroll.SalesQuery) ([]payroll.Sale, error) {
	query := "SELECT id, agent_id, customer_name, sale_amount, sale_date FROM sales WHERE agent_id = ?"
	args := []any{agentID}
	if start, end, ok := sq.Bounds(); ok {
		query += " AND sale_date >= ? AND sale_date <= ?"
		args = append(args, start.UTC().Format(timeLayout), end.UTC().Format(timeLayout))
	}
	query += " ORDER BY sale_date, id"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	defer rows.Close()

	out := []payroll.Sale{}
	for rows.Next() {
		var (
			sale           payroll.Sale
			amount, dateAt string
		)
		if err := rows.Scan(&sale.ID, &sale.AgentID, &sale.CustomerName, &amount, &dateAt); err != nil {
			return nil, err
		}
		if sale.SaleAmount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("sale %s: bad amount %q: %w", sale.ID, amount, err)
		}
		if sale.Date, err = time.Parse(timeLayout, dateAt); err != nil {
			return nil, fmt.Errorf("sale %s: bad date %q: %w", sale.ID, dateAt, err)
		}
		out = append(out, sale)
	}
	return out, rows.Err()
}

// =============================================================================
// PAYROLL RECORDS
// =============================================================================

func (s *Store) LoadPayrollRecord(ctx context.Context, employeeID string, period payroll.Period) (*payroll.PayrollRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadRecord(ctx, s.db, employeeID, period)
}

// SavePayrollRecord writes the record and its new audit entries in one
// SQL transaction.
func (s *Store) SavePayrollRecord(ctx context.Context, rec payroll.PayrollRecord, entries []payroll.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := saveRecord(ctx, sqlTx, rec, entries); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func loadRecord(ctx context.Context, q querier, employeeID string, period payroll.Period) (*payroll.PayrollRecord, error) {
	var (
		raw     string
		version int64
	)
	err := q.QueryRowContext(ctx,
		"SELECT record_json, version FROM payroll_records WHERE employee_id = ? AND period = ?",
		employeeID, period.String(),
	).Scan(&raw, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payroll record: %w", err)
	}

	var rec payroll.PayrollRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode payroll record: %w", err)
	}
	rec.Version = version

	rec.AuditLog, err = loadAudit(ctx, q, employeeID, period)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func loadAudit(ctx context.Context, q querier, employeeID string, period payroll.Period) ([]payroll.AuditLogEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, field_name, old_value, new_value, changed_by, changed_at
		FROM audit_log WHERE employee_id = ? AND period = ? ORDER BY seq
	`, employeeID, period.String())
	if err != nil {
		return nil, fmt.Errorf("failed to load audit log: %w", err)
	}
	defer rows.Close()

	var out []payroll.AuditLogEntry
	for rows.Next() {
		var (
			e         payroll.AuditLogEntry
			changedAt string
		)
		if err := rows.Scan(&e.ID, &e.FieldName, &e.OldValue, &e.NewValue, &e.ChangedBy, &changedAt); err != nil {
			return nil, err
		}
		if e.ChangedAt, err = time.Parse(timeLayout, changedAt); err != nil {
			return nil, fmt.Errorf("audit entry %s: bad timestamp %q: %w", e.ID, changedAt, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// saveRecord enforces the version contract, then appends entries. The
// audit log lives in its own table, so record_json is stored without it.
func saveRecord(ctx context.Context, q querier, rec payroll.PayrollRecord, entries []payroll.AuditLogEntry) error {
	body := rec.Clone()
	body.AuditLog = nil
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode payroll record: %w", err)
	}
	period := rec.Period.String()
	updatedAt := rec.UpdatedAt.UTC().Format(timeLayout)

	if rec.Version <= 1 {
		_, err := q.ExecContext(ctx, `
			INSERT INTO payroll_records (employee_id, period, status, version, record_json, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, rec.EmployeeID, period, rec.Status, rec.Version, string(raw), updatedAt)
		if isUniqueConstraintError(err) {
			return payroll.ErrVersionConflict
		}
		if err != nil {
			return fmt.Errorf("failed to insert payroll record: %w", err)
		}
	} else {
		res, err := q.ExecContext(ctx, `
			UPDATE payroll_records
			SET status = ?, version = ?, record_json = ?, updated_at = ?
			WHERE employee_id = ? AND period = ? AND version = ?
		`, rec.Status, rec.Version, string(raw), updatedAt, rec.EmployeeID, period, rec.Version-1)
		if err != nil {
			return fmt.Errorf("failed to update payroll record: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return payroll.ErrVersionConflict
		}
	}

	for _, e := range entries {
		_, err := q.ExecContext(ctx, `
			INSERT INTO audit_log (id, employee_id, period, field_name, old_value, new_value, changed_by, changed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, e.ID, rec.EmployeeID, period, e.FieldName, e.OldValue, e.NewValue, e.ChangedBy, e.ChangedAt.UTC().Format(timeLayout))
		if err != nil {
			return fmt.Errorf("failed to append audit entry: %w", err)
		}
	}
	return nil
}

// =============================================================================
// COMMISSION RECORDS
// =============================================================================

func (s *Store) LoadCommissionRecord(ctx context.Context, agentID string, period payroll.Period) (*payroll.CommissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadCommission(ctx, s.db, agentID, period)
}

func (s *Store) SaveCommissionRecord(ctx context.Context, rec payroll.CommissionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveCommission(ctx, s.db, rec)
}

func loadCommission(ctx context.Context, q querier, agentID string, period payroll.Period) (*payroll.CommissionRecord, error) {
	var raw string
	err := q.QueryRowContext(ctx,
		"SELECT record_json FROM commission_records WHERE agent_id = ? AND period = ?",
		agentID, period.String(),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load commission record: %w", err)
	}
	var rec payroll.CommissionRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode commission record: %w", err)
	}
	return &rec, nil
}

func saveCommission(ctx context.Context, q querier, rec payroll.CommissionRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode commission record: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO commission_records (agent_id, period, employee_id, record_json, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(agent_id, period) DO UPDATE SET
			employee_id = excluded.employee_id,
			record_json = excluded.record_json,
			updated_at = excluded.updated_at
	`, rec.AgentID, rec.Period.String(), rec.EmployeeID, string(raw), rec.UpdatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to save commission record: %w", err)
	}
	return nil
}

// =============================================================================
// HISTORY SNAPSHOTS
// =============================================================================

func (s *Store) SavePayrollHistorySnapshot(ctx context.Context, snap payroll.PayrollHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveHistory(ctx, s.db, snap)
}

func (s *Store) ListPayrollHistory(ctx context.Context, filter payroll.HistoryFilter) ([]payroll.PayrollHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listHistory(ctx, s.db, filter)
}

func saveHistory(ctx context.Context, q querier, snap payroll.PayrollHistory) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode history snapshot: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO payroll_history (id, employee_id, period, snapshot_json, finalized_by, finalized_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, snap.ID, snap.EmployeeID, snap.Period.String(), string(raw), snap.FinalizedBy, snap.FinalizedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to save history snapshot: %w", err)
	}
	return nil
}

func listHistory(ctx context.Context, q querier, filter payroll.HistoryFilter) ([]payroll.PayrollHistory, error) {
	var (
		where []string
		args  []any
	)
	if filter.EmployeeID != nil {
		where = append(where, "employee_id = ?")
		args = append(args, *filter.EmployeeID)
	}
	if filter.Period != nil {
		where = append(where, "period = ?")
		args = append(args, filter.Period.String())
	}
	query := "SELECT snapshot_json FROM payroll_history"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY finalized_at, id"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	out := []payroll.PayrollHistory{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var h payroll.PayrollHistory
		if err := json.Unmarshal([]byte(raw), &h); err != nil {
			return nil, fmt.Errorf("failed to decode history snapshot: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a SQL transaction. Every call fn makes on the
// Repository it receives runs inside that transaction.
func (s *Store) WithTx(ctx context.Context, fn func(payroll.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetEmployee(ctx context.Context, id string) (payroll.EmployeeProfile, error) {
	return getEmployee(ctx, ts.tx, id)
}

func (ts *txStore) ListEmployeesForPeriod(ctx context.Context, _ payroll.Period, f payroll.EmployeeFilter) ([]payroll.EmployeeProfile, error) {
	return listEmployees(ctx, ts.tx, f)
}

func (ts *txStore) ListSalesForAgent(ctx context.Context, agentID string, q payroll.SalesQuery) ([]payroll.Sale, error) {
	return listSales(ctx, ts.tx, agentID, q)
}

func (ts *txStore) LoadPayrollRecord(ctx context.Context, id string, p payroll.Period) (*payroll.PayrollRecord, error) {
	return loadRecord(ctx, ts.tx, id, p)
}

func (ts *txStore) SavePayrollRecord(ctx context.Context, rec payroll.PayrollRecord, entries []payroll.AuditLogEntry) error {
	return saveRecord(ctx, ts.tx, rec, entries)
}

func (ts *txStore) LoadCommissionRecord(ctx context.Context, agentID string, p payroll.Period) (*payroll.CommissionRecord, error) {
	return loadCommission(ctx, ts.tx, agentID, p)
}

func (ts *txStore) SaveCommissionRecord(ctx context.Context, rec payroll.CommissionRecord) error {
	return saveCommission(ctx, ts.tx, rec)
}

func (ts *txStore) SavePayrollHistorySnapshot(ctx context.Context, snap payroll.PayrollHistory) error {
	return saveHistory(ctx, ts.tx, snap)
}

func (ts *txStore) ListPayrollHistory(ctx context.Context, f payroll.HistoryFilter) ([]payroll.PayrollHistory, error) {
	return listHistory(ctx, ts.tx, f)
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY constraint failed"))
}
