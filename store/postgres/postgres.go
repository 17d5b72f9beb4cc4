/*
Package postgres provides a PostgreSQL-backed payroll.Repository on pgxpool.

PURPOSE:
  Same tables and version contract as store/sqlite, in PostgreSQL dialect.
  Money is NUMERIC; records and snapshots are JSONB.

OPTIMISTIC CONCURRENCY:
  Version 1 INSERTs (unique violation 23505 → payroll.ErrVersionConflict);
  later versions UPDATE ... WHERE version = v-1 (0 rows → conflict).

USAGE:
  store, err := postgres.New(ctx, os.Getenv("DB_DSN"))
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
*/
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Store implements payroll.TxRepository.
type Store struct {
	pool *pgxpool.Pool
	q    Querier
}

// New connects, pings and migrates.
func New(ctx context.Context, dsn string) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	config.MaxConns = 25
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	s := &Store{pool: pool, q: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		department TEXT NOT NULL DEFAULT '',
		basic_salary NUMERIC NOT NULL,
		agent_id TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS sales (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		customer_name TEXT NOT NULL DEFAULT '',
		sale_amount NUMERIC NOT NULL,
		sale_date TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sales_agent_date ON sales(agent_id, sale_date);

	CREATE TABLE IF NOT EXISTS payroll_records (
		employee_id TEXT NOT NULL,
		period TEXT NOT NULL,
		status TEXT NOT NULL,
		version BIGINT NOT NULL,
		record_json JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (employee_id, period)
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		employee_id TEXT NOT NULL,
		period TEXT NOT NULL,
		field_name TEXT NOT NULL,
		old_value TEXT NOT NULL,
		new_value TEXT NOT NULL,
		changed_by TEXT NOT NULL,
		changed_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_log_record ON audit_log(employee_id, period, seq);

	CREATE TABLE IF NOT EXISTS commission_records (
		agent_id TEXT NOT NULL,
		period TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		record_json JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (agent_id, period)
	);

	CREATE TABLE IF NOT EXISTS payroll_history (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		period TEXT NOT NULL,
		snapshot_json JSONB NOT NULL,
		finalized_by TEXT NOT NULL,
		finalized_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_payroll_history_employee_period ON payroll_history(employee_id, period);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// WithTx runs fn inside a transaction; fn's Repository uses the transaction.
func (s *Store) WithTx(ctx context.Context, fn func(payroll.Repository) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(&Store{q: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback error: %v (original error: %w)", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// =============================================================================
// EMPLOYEES AND SALES
// =============================================================================

func (s *Store) SaveEmployee(ctx context.Context, emp payroll.EmployeeProfile) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO employees (id, name, department, basic_salary, agent_id)
		VALUES ($1, $2, $3, $4::numeric, NULLIF($5, ''))
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			department = EXCLUDED.department,
			basic_salary = EXCLUDED.basic_salary,
			agent_id = EXCLUDED.agent_id
	`, emp.ID, emp.Name, emp.Department, emp.BasicSalary.String(), emp.AgentID)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

func (s *Store) SaveSale(ctx context.Context, sale payroll.Sale) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO sales (id, agent_id, customer_name, sale_amount, sale_date)
		VALUES ($1, $2, $3, $4::numeric, $5)
	`, sale.ID, sale.AgentID, sale.CustomerName, sale.SaleAmount.String(), sale.Date.UTC())
	if err != nil {
		return fmt.Errorf("failed to save sale: %w", err)
	}
	return nil
}

func (s *Store) GetEmployee(ctx context.Context, id string) (payroll.EmployeeProfile, error) {
	row := s.q.QueryRow(ctx, `
		SELECT id, name, department, basic_salary::text, COALESCE(agent_id, '')
		FROM employees WHERE id = $1
	`, id)
	emp, err := scanEmployee(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return payroll.EmployeeProfile{}, payroll.ErrEmployeeNotFound
	}
	if err != nil {
		return payroll.EmployeeProfile{}, fmt.Errorf("failed to get employee: %w", err)
	}
	return emp, nil
}

func (s *Store) ListEmployeesForPeriod(ctx context.Context, _ payroll.Period, filter payroll.EmployeeFilter) ([]payroll.EmployeeProfile, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, name, department, basic_salary::text, COALESCE(agent_id, '')
		FROM employees ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	defer rows.Close()

	out := []payroll.EmployeeProfile{}
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		if filter.Matches(emp) {
			out = append(out, emp)
		}
	}
	return out, rows.Err()
}

func scanEmployee(row pgx.Row) (payroll.EmployeeProfile, error) {
	var (
		emp   payroll.EmployeeProfile
		basic string
	)
	if err := row.Scan(&emp.ID, &emp.Name, &emp.Department, &basic, &emp.AgentID); err != nil {
		return payroll.EmployeeProfile{}, err
	}
	d, err := decimal.NewFromString(basic)
	if err != nil {
		return payroll.EmployeeProfile{}, fmt.Errorf("employee %s: bad basic salary %q: %w", emp.ID, basic, err)
	}
	emp.BasicSalary = d
	return emp, nil
}

func (s *Store) ListSalesForAgent(ctx context.Context, agentID string, sq payroll.SalesQuery) ([]payroll.Sale, error) {
	query := `SELECT id, agent_id, customer_name, sale_amount::text, sale_date FROM sales WHERE agent_id = $1`
	args := []interface{}{agentID}
	if start, end, ok := sq.Bounds(); ok {
		query += ` AND sale_date >= $2 AND sale_date <= $3`
		args = append(args, start.UTC(), end.UTC())
	}
	query += ` ORDER BY sale_date, id`

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	defer rows.Close()

	out := []payroll.Sale{}
	for rows.Next() {
		var (
			sale   payroll.Sale
			amount string
		)
		if err := rows.Scan(&sale.ID, &sale.AgentID, &sale.CustomerName, &amount, &sale.Date); err != nil {
			return nil, err
		}
		if sale.SaleAmount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("sale %s: bad amount %q: %w", sale.ID, amount, err)
		}
		sale.Date = sale.Date.UTC()
		out = append(out, sale)
	}
	return out, rows.Err()
}

// =============================================================================
// PAYROLL RECORDS
// =============================================================================

func (s *Store) LoadPayrollRecord(ctx context.Context, employeeID string, period payroll.Period) (*payroll.PayrollRecord, error) {
	var (
		raw     []byte
		version int64
	)
	err := s.q.QueryRow(ctx,
		`SELECT record_json, version FROM payroll_records WHERE employee_id = $1 AND period = $2`,
		employeeID, period.String(),
	).Scan(&raw, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payroll record: %w", err)
	}

	var rec payroll.PayrollRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode payroll record: %w", err)
	}
	rec.Version = version

	rows, err := s.q.Query(ctx, `
		SELECT id, field_name, old_value, new_value, changed_by, changed_at
		FROM audit_log WHERE employee_id = $1 AND period = $2 ORDER BY seq
	`, employeeID, period.String())
	if err != nil {
		return nil, fmt.Errorf("failed to load audit log: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e payroll.AuditLogEntry
		if err := rows.Scan(&e.ID, &e.FieldName, &e.OldValue, &e.NewValue, &e.ChangedBy, &e.ChangedAt); err != nil {
			return nil, err
		}
		e.ChangedAt = e.ChangedAt.UTC()
		rec.AuditLog = append(rec.AuditLog, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &rec, nil
}

// SavePayrollRecord writes the record and its audit entries atomically,
// opening a transaction unless already inside one.
func (s *Store) SavePayrollRecord(ctx context.Context, rec payroll.PayrollRecord, entries []payroll.AuditLogEntry) error {
	if s.pool == nil {
		return s.saveRecord(ctx, rec, entries)
	}
	return s.WithTx(ctx, func(r payroll.Repository) error {
		return r.(*Store).saveRecord(ctx, rec, entries)
	})
}

func (s *Store) saveRecord(ctx context.Context, rec payroll.PayrollRecord, entries []payroll.AuditLogEntry) error {
	body := rec.Clone()
	body.AuditLog = nil
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode payroll record: %w", err)
	}
	period := rec.Period.String()

	if rec.Version <= 1 {
		_, err := s.q.Exec(ctx, `
			INSERT INTO payroll_records (employee_id, period, status, version, record_json, updated_at)
			VALUES ($1, $2, $3, $4, $5::jsonb, $6)
		`, rec.EmployeeID, period, string(rec.Status), rec.Version, string(raw), rec.UpdatedAt.UTC())
		if isUniqueViolation(err) {
			return payroll.ErrVersionConflict
		}
		if err != nil {
			return fmt.Errorf("failed to insert payroll record: %w", err)
		}
	} else {
		tag, err := s.q.Exec(ctx, `
			UPDATE payroll_records
			SET status = $1, version = $2, record_json = $3::jsonb, updated_at = $4
			WHERE employee_id = $5 AND period = $6 AND version = $7
		`, string(rec.Status), rec.Version, string(raw), rec.UpdatedAt.UTC(), rec.EmployeeID, period, rec.Version-1)
		if err != nil {
			return fmt.Errorf("failed to update payroll record: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return payroll.ErrVersionConflict
		}
	}

	for _, e := range entries {
		_, err := s.q.Exec(ctx, `
			INSERT INTO audit_log (id, employee_id, period, field_name, old_value, new_value, changed_by, changed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, e.ID, rec.EmployeeID, period, e.FieldName, e.OldValue, e.NewValue, e.ChangedBy, e.ChangedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to append audit entry: %w", err)
		}
	}
	return nil
}

// =============================================================================
// COMMISSION RECORDS AND HISTORY
// =============================================================================

func (s *Store) LoadCommissionRecord(ctx context.Context, agentID string, period payroll.Period) (*payroll.CommissionRecord, error) {
	var raw []byte
	err := s.q.QueryRow(ctx,
		`SELECT record_json FROM commission_records WHERE agent_id = $1 AND period = $2`,
		agentID, period.String(),
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load commission record: %w", err)
	}
	var rec payroll.CommissionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode commission record: %w", err)
	}
	return &rec, nil
}

func (s *Store) SaveCommissionRecord(ctx context.Context, rec payroll.CommissionRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode commission record: %w", err)
	}
	_, err = s.q.Exec(ctx, `
		INSERT INTO commission_records (agent_id, period, employee_id, record_json, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, $5)
		ON CONFLICT (agent_id, period) DO UPDATE SET
			employee_id = EXCLUDED.employee_id,
			record_json = EXCLUDED.record_json,
			updated_at = EXCLUDED.updated_at
	`, rec.AgentID, rec.Period.String(), rec.EmployeeID, string(raw), rec.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save commission record: %w", err)
	}
	return nil
}

func (s *Store) SavePayrollHistorySnapshot(ctx context.Context, snap payroll.PayrollHistory) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode history snapshot: %w", err)
	}
	_, err = s.q.Exec(ctx, `
		INSERT INTO payroll_history (id, employee_id, period, snapshot_json, finalized_by, finalized_at)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6)
	`, snap.ID, snap.EmployeeID, snap.Period.String(), string(raw), snap.FinalizedBy, snap.FinalizedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save history snapshot: %w", err)
	}
	return nil
}

func (s *Store) ListPayrollHistory(ctx context.Context, filter payroll.HistoryFilter) ([]payroll.PayrollHistory, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.EmployeeID != nil {
		args = append(args, *filter.EmployeeID)
		where = append(where, fmt.Sprintf("employee_id = $%d", len(args)))
	}
	if filter.Period != nil {
		args = append(args, filter.Period.String())
		where = append(where, fmt.Sprintf("period = $%d", len(args)))
	}
	query := `SELECT snapshot_json FROM payroll_history`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY finalized_at, id`

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	out := []payroll.PayrollHistory{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var h payroll.PayrollHistory
		if err := json.Unmarshal(raw, &h); err != nil {
			return nil, fmt.Errorf("failed to decode history snapshot: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Truncate removes every row; tests only.
func (s *Store) Truncate(ctx context.Context) error {
	_, err := s.q.Exec(ctx, `TRUNCATE employees, sales, payroll_records, audit_log, commission_records, payroll_history`)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
