// Package store provides in-memory payroll.Repository implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	employees   map[string]payroll.EmployeeProfile
	sales       map[string][]payroll.Sale
	records     map[recordKey]payroll.PayrollRecord
	commissions map[recordKey]payroll.CommissionRecord
	history     []payroll.PayrollHistory
}

// recordKey identifies a payroll record by employee or a commission record
// by agent.
type recordKey struct {
	ID     string
	Period payroll.Period
}

func NewMemory() *Memory {
	return &Memory{
		employees:   make(map[string]payroll.EmployeeProfile),
		sales:       make(map[string][]payroll.Sale),
		records:     make(map[recordKey]payroll.PayrollRecord),
		commissions: make(map[recordKey]payroll.CommissionRecord),
	}
}

// AddEmployee inserts or replaces an employee profile.
func (m *Memory) AddEmployee(p payroll.EmployeeProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees[p.ID] = p
}

// AddSale records a sale for its agent, keeping each agent's sales ordered
// by date.
func (m *Memory) AddSale(s payroll.Sale) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sales := m.sales[s.AgentID]
	i := sort.Search(len(sales), func(i int) bool { return sales[i].Date.After(s.Date) })
	sales = append(sales, payroll.Sale{})
	copy(sales[i+1:], sales[i:])
	sales[i] = s
	m.sales[s.AgentID] = sales
}

func (m *Memory) GetEmployee(_ context.Context, employeeID string) (payroll.EmployeeProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getEmployeeLocked(employeeID)
}

func (m *Memory) ListEmployeesForPeriod(_ context.Context, _ payroll.Period, filter payroll.EmployeeFilter) ([]payroll.EmployeeProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listEmployeesLocked(filter), nil
}

func (m *Memory) ListSalesForAgent(_ context.Context, agentID string, q payroll.SalesQuery) ([]payroll.Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listSalesLocked(agentID, q), nil
}

func (m *Memory) LoadPayrollRecord(_ context.Context, employeeID string, period payroll.Period) (*payroll.PayrollRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadRecordLocked(employeeID, period), nil
}

func (m *Memory) SavePayrollRecord(_ context.Context, rec payroll.PayrollRecord, entries []payroll.AuditLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveRecordLocked(rec, entries)
}

func (m *Memory) LoadCommissionRecord(_ context.Context, agentID string, period payroll.Period) (*payroll.CommissionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadCommissionLocked(agentID, period), nil
}

func (m *Memory) SaveCommissionRecord(_ context.Context, rec payroll.CommissionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCommissionLocked(rec)
	return nil
}

func (m *Memory) SavePayrollHistorySnapshot(_ context.Context, snap payroll.PayrollHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, snap.Clone())
	return nil
}

func (m *Memory) ListPayrollHistory(_ context.Context, filter payroll.HistoryFilter) ([]payroll.PayrollHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listHistoryLocked(filter), nil
}

// =============================================================================
// LOCKED HELPERS - callers hold m.mu
// =============================================================================

func (m *Memory) getEmployeeLocked(id string) (payroll.EmployeeProfile, error) {
	p, ok := m.employees[id]
	if !ok {
		return payroll.EmployeeProfile{}, payroll.ErrEmployeeNotFound
	}
	return p, nil
}

func (m *Memory) listEmployeesLocked(filter payroll.EmployeeFilter) []payroll.EmployeeProfile {
	out := make([]payroll.EmployeeProfile, 0, len(m.employees))
	for _, p := range m.employees {
		if filter.Matches(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) listSalesLocked(agentID string, q payroll.SalesQuery) []payroll.Sale {
	out := []payroll.Sale{}
	for _, s := range m.sales[agentID] {
		if q.Matches(s.Date) {
			out = append(out, s)
		}
	}
	return out
}

func (m *Memory) loadRecordLocked(employeeID string, period payroll.Period) *payroll.PayrollRecord {
	rec, ok := m.records[recordKey{ID: employeeID, Period: period}]
	if !ok {
		return nil
	}
	c := rec.Clone()
	return &c
}

// saveRecordLocked enforces the version contract. The record already
// carries the appended entries in its AuditLog.
func (m *Memory) saveRecordLocked(rec payroll.PayrollRecord, _ []payroll.AuditLogEntry) error {
	k := recordKey{ID: rec.EmployeeID, Period: rec.Period}
	var stored int64
	if cur, ok := m.records[k]; ok {
		stored = cur.Version
	}
	if stored != rec.Version-1 {
		return payroll.ErrVersionConflict
	}
	m.records[k] = rec.Clone()
	return nil
}

func (m *Memory) loadCommissionLocked(agentID string, period payroll.Period) *payroll.CommissionRecord {
	rec, ok := m.commissions[recordKey{ID: agentID, Period: period}]
	if !ok {
		return nil
	}
	c := rec.Clone()
	return &c
}

func (m *Memory) saveCommissionLocked(rec payroll.CommissionRecord) {
	m.commissions[recordKey{ID: rec.AgentID, Period: rec.Period}] = rec.Clone()
}

func (m *Memory) listHistoryLocked(filter payroll.HistoryFilter) []payroll.PayrollHistory {
	out := []payroll.PayrollHistory{}
	for _, h := range m.history {
		if filter.Matches(h) {
			out = append(out, h.Clone())
		}
	}
	return out
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn while holding the write lock. Writes go straight to
// the maps and are rolled back from a snapshot if fn fails.
func (tm *TxMemory) WithTx(_ context.Context, fn func(payroll.Repository) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(&txMemoryView{parent: tm.Memory}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	records     map[recordKey]payroll.PayrollRecord
	commissions map[recordKey]payroll.CommissionRecord
	history     []payroll.PayrollHistory
}

func (tm *TxMemory) snapshot() memorySnapshot {
	s := memorySnapshot{
		records:     make(map[recordKey]payroll.PayrollRecord, len(tm.records)),
		commissions: make(map[recordKey]payroll.CommissionRecord, len(tm.commissions)),
		history:     append([]payroll.PayrollHistory{}, tm.history...),
	}
	for k, v := range tm.records {
		s.records[k] = v
	}
	for k, v := range tm.commissions {
		s.commissions[k] = v
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.records = s.records
	tm.commissions = s.commissions
	tm.history = s.history
}

// txMemoryView is the Repository handed to WithTx callbacks. The parent
// lock is already held, so it calls the locked helpers directly.
type txMemoryView struct {
	parent *Memory
}

func (v *txMemoryView) GetEmployee(_ context.Context, id string) (payroll.EmployeeProfile, error) {
	return v.parent.getEmployeeLocked(id)
}

func (v *txMemoryView) ListEmployeesForPeriod(_ context.Context, _ payroll.Period, f payroll.EmployeeFilter) ([]payroll.EmployeeProfile, error) {
	return v.parent.listEmployeesLocked(f), nil
}

func (v *txMemoryView) ListSalesForAgent(_ context.Context, agentID string, q payroll.SalesQuery) ([]payroll.Sale, error) {
	return v.parent.listSalesLocked(agentID, q), nil
}

func (v *txMemoryView) LoadPayrollRecord(_ context.Context, id string, p payroll.Period) (*payroll.PayrollRecord, error) {
	return v.parent.loadRecordLocked(id, p), nil
}

func (v *txMemoryView) SavePayrollRecord(_ context.Context, rec payroll.PayrollRecord, entries []payroll.AuditLogEntry) error {
	return v.parent.saveRecordLocked(rec, entries)
}

func (v *txMemoryView) LoadCommissionRecord(_ context.Context, agentID string, p payroll.Period) (*payroll.CommissionRecord, error) {
	return v.parent.loadCommissionLocked(agentID, p), nil
}

func (v *txMemoryView) SaveCommissionRecord(_ context.Context, rec payroll.CommissionRecord) error {
	v.parent.saveCommissionLocked(rec)
	return nil
}

func (v *txMemoryView) SavePayrollHistorySnapshot(_ context.Context, snap payroll.PayrollHistory) error {
	v.parent.history = append(v.parent.history, snap.Clone())
	return nil
}

func (v *txMemoryView) ListPayrollHistory(_ context.Context, f payroll.HistoryFilter) ([]payroll.PayrollHistory, error) {
	return v.parent.listHistoryLocked(f), nil
}
