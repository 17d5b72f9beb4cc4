/*
engine.go - Payroll lifecycle operations

PURPOSE:
  The entry point callers use. Every operation follows the same shape:

    1. validate input            → ValidationError, nothing read
    2. load record (+ employee)  → repository errors surface unchanged
    3. Authorize(record, op)     → InvalidStateError / UnauthorizedTransitionError
    4. recompute via Aggregator  → ValidationError
    5. diff with AuditLogger
    6. save record + entries     → ConcurrentModificationError on stale version

  Nothing is written unless steps 1-5 succeed, so a rejected call never
  leaves a partial record or a stray audit entry behind.

OPERATIONS:
  Calculate               actor-less, drafts only, never moves status
  SubmitHRAdjustment      HR inputs, → hr_submitted (creates the record)
  SubmitFinanceAdjustment finance inputs, → finance_reviewed
  SubmitCommission        sales or manual totals, → finance_reviewed
  Approve                 → approved, values frozen
  Lock                    → locked, fully immutable
  Finalize                PayrollHistory snapshot, status unchanged
  CalculateBatch          see batch.go

CONCURRENCY:
  The engine holds no per-record state; it is safe for concurrent use.
  Writes to the same (employee, period) are serialized by the version
  check in Repository.SavePayrollRecord.
*/
package payroll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Observer is notified after every engine operation.
type Observer interface {
	OperationCompleted(op Operation, outcome string, elapsed time.Duration)
	BatchCompleted(period Period, succeeded, failed int)
}

// Outcome labels an operation result for metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrUnauthorizedTransition):
		return "unauthorized"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrConcurrentModification):
		return "conflict"
	default:
		return "error"
	}
}

type nopObserver struct{}

func (nopObserver) OperationCompleted(Operation, string, time.Duration) {}
func (nopObserver) BatchCompleted(Period, int, int)                     {}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	Repo             Repository
	Rates            Rates
	Logger           *zap.Logger
	Observer         Observer
	Now              func() time.Time
	BatchConcurrency int

	aggregator *Aggregator
	audit      *AuditLogger
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.Logger = l } }

func WithObserver(o Observer) Option { return func(e *Engine) { e.Observer = o } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.Now = now } }

func WithBatchConcurrency(n int) Option { return func(e *Engine) { e.BatchConcurrency = n } }

// DefaultBatchConcurrency bounds CalculateBatch fan-out.
const DefaultBatchConcurrency = 4

// NewEngine validates rates and wires the calculators. It fails while the
// commission rate pair is unset.
func NewEngine(repo Repository, rates Rates, opts ...Option) (*Engine, error) {
	if repo == nil {
		return nil, errors.New("payroll: repository is required")
	}
	if err := rates.Validate(); err != nil {
		return nil, fmt.Errorf("payroll: invalid rates: %w", err)
	}
	e := &Engine{
		Repo:             repo,
		Rates:            rates,
		Logger:           zap.NewNop(),
		Observer:         nopObserver{},
		Now:              time.Now,
		BatchConcurrency: DefaultBatchConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.Logger == nil {
		e.Logger = zap.NewNop()
	}
	if e.Observer == nil {
		e.Observer = nopObserver{}
	}
	if e.BatchConcurrency < 1 {
		e.BatchConcurrency = 1
	}
	e.aggregator = NewAggregator(rates)
	e.audit = NewAuditLogger(e.Now)
	return e, nil
}

func (e *Engine) done(op Operation, employeeID string, period Period, actor Actor, start time.Time, err error) {
	e.Observer.OperationCompleted(op, Outcome(err), time.Since(start))
	fields := []zap.Field{
		zap.String("operation", string(op)),
		zap.String("employee_id", employeeID),
		zap.Stringer("period", period),
		zap.String("actor_id", actor.ID),
	}
	if err != nil {
		e.Logger.Debug("payroll operation rejected", append(fields, zap.Error(err))...)
		return
	}
	e.Logger.Debug("payroll operation completed", fields...)
}

// =============================================================================
// READ OPERATIONS
// =============================================================================

// Record returns the live record, or a ValidationError if there is none.
func (e *Engine) Record(ctx context.Context, employeeID string, period Period) (PayrollRecord, error) {
	return e.existing(ctx, employeeID, period)
}

// History lists finalized snapshots matching filter.
func (e *Engine) History(ctx context.Context, filter HistoryFilter) ([]PayrollHistory, error) {
	out, err := e.Repo.ListPayrollHistory(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list payroll history: %w", err)
	}
	return out, nil
}

// =============================================================================
// CALCULATE
// =============================================================================

// Calculate builds a draft record from inputs, or replaces the inputs of a
// record that is still a draft. It takes no actor, so once HR has submitted
// the inputs belong to HR and Finance and Calculate fails with an
// InvalidStateError. Audit entries are attributed to SystemActor.
func (e *Engine) Calculate(ctx context.Context, employeeID string, period Period, in Inputs) (rec PayrollRecord, err error) {
	defer func(start time.Time) { e.done(OpCalculate, employeeID, period, SystemActor, start, err) }(time.Now())

	if err := validateStruct(in); err != nil {
		return PayrollRecord{}, err
	}
	current, err := e.load(ctx, employeeID, period)
	if err != nil {
		return PayrollRecord{}, err
	}
	if current != nil && current.Status != StatusDraft {
		return PayrollRecord{}, &InvalidStateError{
			EmployeeID: employeeID,
			Period:     period,
			Operation:  OpCalculate,
			Status:     current.Status,
		}
	}
	profile, err := e.employee(ctx, employeeID)
	if err != nil {
		return PayrollRecord{}, err
	}
	prev := draftFor(employeeID, period)
	if current != nil {
		prev = *current
	}
	return e.recalculate(ctx, prev, profile, in, CommissionFromSubmittedSales)
}

// recalculate is Calculate after loading; CalculateBatch shares it. source
// labels the commission record written when in carries sales.
func (e *Engine) recalculate(ctx context.Context, prev PayrollRecord, profile EmployeeProfile, in Inputs, source CommissionSource) (PayrollRecord, error) {
	if err := Authorize(prev, OpCalculate, SystemActor); err != nil {
		return PayrollRecord{}, err
	}
	next, commission, err := e.recompute(prev, in)
	if err != nil {
		return PayrollRecord{}, err
	}
	var cr *CommissionRecord
	if commission != nil {
		cr = e.commissionRecord(profile, prev.Period, *commission, source, SystemActor)
	}
	return e.commit(ctx, prev, next, SystemActor, cr)
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

// SubmitHRAdjustment applies HR-owned inputs and moves the record to
// hr_submitted. A missing record is created from the employee profile.
func (e *Engine) SubmitHRAdjustment(ctx context.Context, employeeID string, period Period, hr HRInputs, actor Actor) (rec PayrollRecord, err error) {
	defer func(start time.Time) { e.done(OpSubmitHRAdjustment, employeeID, period, actor, start, err) }(time.Now())

	if err := validateStruct(hr); err != nil {
		return PayrollRecord{}, err
	}
	current, err := e.load(ctx, employeeID, period)
	if err != nil {
		return PayrollRecord{}, err
	}

	var prev PayrollRecord
	var base Inputs
	if current == nil {
		profile, err := e.employee(ctx, employeeID)
		if err != nil {
			return PayrollRecord{}, err
		}
		prev = draftFor(employeeID, period)
		basic := profile.BasicSalary
		base = Inputs{BasicSalary: &basic}
	} else {
		prev = *current
		base = prev.Inputs()
	}

	if err := Authorize(prev, OpSubmitHRAdjustment, actor); err != nil {
		return PayrollRecord{}, err
	}
	next, _, err := e.recompute(prev, hr.apply(base))
	if err != nil {
		return PayrollRecord{}, err
	}
	advance(&next, OpSubmitHRAdjustment, actor)
	return e.commit(ctx, prev, next, actor, nil)
}

// SubmitFinanceAdjustment applies finance allowances and deductions and
// moves the record to finance_reviewed. Requires hr_submitted or later.
func (e *Engine) SubmitFinanceAdjustment(ctx context.Context, employeeID string, period Period, fin FinanceInputs, actor Actor) (rec PayrollRecord, err error) {
	defer func(start time.Time) { e.done(OpSubmitFinanceAdjustment, employeeID, period, actor, start, err) }(time.Now())

	if err := validateStruct(fin); err != nil {
		return PayrollRecord{}, err
	}
	prev, err := e.existing(ctx, employeeID, period)
	if err != nil {
		return PayrollRecord{}, err
	}
	if err := Authorize(prev, OpSubmitFinanceAdjustment, actor); err != nil {
		return PayrollRecord{}, err
	}
	next, _, err := e.recompute(prev, fin.apply(prev.Inputs()))
	if err != nil {
		return PayrollRecord{}, err
	}
	advance(&next, OpSubmitFinanceAdjustment, actor)
	return e.commit(ctx, prev, next, actor, nil)
}

// SubmitCommission replaces the period's commission and moves the record to
// finance_reviewed. Sales take precedence over Manual totals; with neither,
// the agent's stored sales for the period (or sub.Range) are used.
func (e *Engine) SubmitCommission(ctx context.Context, employeeID string, period Period, sub CommissionSubmission, actor Actor) (rec PayrollRecord, err error) {
	defer func(start time.Time) { e.done(OpSubmitCommission, employeeID, period, actor, start, err) }(time.Now())

	if err := validateStruct(sub); err != nil {
		return PayrollRecord{}, err
	}
	if sub.Sales == nil && sub.Manual != nil {
		if err := validateManualTotals(*sub.Manual); err != nil {
			return PayrollRecord{}, err
		}
	}
	if sub.Range != nil && sub.Range.End.Before(sub.Range.Start) {
		return PayrollRecord{}, newValidationError("range.end", "must not be before range.start")
	}

	prev, err := e.existing(ctx, employeeID, period)
	if err != nil {
		return PayrollRecord{}, err
	}
	if err := Authorize(prev, OpSubmitCommission, actor); err != nil {
		return PayrollRecord{}, err
	}
	profile, err := e.employee(ctx, employeeID)
	if err != nil {
		return PayrollRecord{}, err
	}

	var (
		totals CommissionTotals
		cr     *CommissionRecord
	)
	switch {
	case sub.Sales != nil || sub.Manual == nil:
		sales := sub.Sales
		if sales == nil {
			if sales, err = e.agentSales(ctx, profile, period, sub.Range); err != nil {
				return PayrollRecord{}, err
			}
		}
		res, err := ComputeCommission(sales, e.Rates.Commission, e.Rates.RoundingPlaces)
		if err != nil {
			return PayrollRecord{}, err
		}
		totals = res.Totals()
		source := CommissionFromSubmittedSales
		if sub.Sales == nil && sub.Range == nil {
			source = CommissionFromStoredSales
		}
		cr = e.commissionRecord(profile, period, res, source, actor)
	default:
		totals = *sub.Manual
		cr = e.commissionRecord(profile, period, CommissionResult{
			GrossCommission: totals.GrossCommission,
			CommissionTax:   totals.CommissionTax,
			NetCommission:   totals.NetCommission,
			NumberOfSales:   totals.NumberOfSales,
		}, CommissionFromManualTotals, actor)
	}

	in := prev.Inputs()
	in.Commission = &totals
	next, _, err := e.recompute(prev, in)
	if err != nil {
		return PayrollRecord{}, err
	}
	advance(&next, OpSubmitCommission, actor)
	return e.commit(ctx, prev, next, actor, cr)
}

func validateManualTotals(t CommissionTotals) error {
	if err := validateStruct(t); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			for i := range verr.Fields {
				verr.Fields[i].Field = "manual." + verr.Fields[i].Field
			}
		}
		return err
	}
	if t.GrossCommission.IsZero() && t.CommissionTax.IsZero() {
		return nil
	}
	if !t.GrossCommission.Sub(t.CommissionTax).Equal(t.NetCommission) {
		return newValidationError("manual.net_commission", "must equal gross_commission minus commission_tax")
	}
	return nil
}

// agentSales loads the agent's sales for period, or for rng when set.
func (e *Engine) agentSales(ctx context.Context, profile EmployeeProfile, period Period, rng *DateRange) ([]Sale, error) {
	if !profile.IsAgent() {
		return nil, newValidationError("agent_id", "employee is not a sales agent")
	}
	q := SalesForPeriod(period)
	if rng != nil {
		q.Range = rng
	}
	sales, err := e.Repo.ListSalesForAgent(ctx, profile.AgentID, q)
	if err != nil {
		return nil, fmt.Errorf("list sales for agent %s: %w", profile.AgentID, err)
	}
	if sales == nil {
		sales = []Sale{}
	}
	return sales, nil
}

// =============================================================================
// LIFECYCLE TRANSITIONS
// =============================================================================

// Approve freezes the record's business values.
func (e *Engine) Approve(ctx context.Context, employeeID string, period Period, actor Actor) (PayrollRecord, error) {
	return e.transition(ctx, OpApprove, employeeID, period, actor)
}

// Lock makes an approved record permanently immutable.
func (e *Engine) Lock(ctx context.Context, employeeID string, period Period, actor Actor) (PayrollRecord, error) {
	return e.transition(ctx, OpLock, employeeID, period, actor)
}

func (e *Engine) transition(ctx context.Context, op Operation, employeeID string, period Period, actor Actor) (rec PayrollRecord, err error) {
	defer func(start time.Time) { e.done(op, employeeID, period, actor, start, err) }(time.Now())

	prev, err := e.existing(ctx, employeeID, period)
	if err != nil {
		return PayrollRecord{}, err
	}
	if err := Authorize(prev, op, actor); err != nil {
		return PayrollRecord{}, err
	}
	next := prev.Clone()
	advance(&next, op, actor)
	return e.commit(ctx, prev, next, actor, nil)
}

// =============================================================================
// FINALIZE
// =============================================================================

// Finalize writes an immutable PayrollHistory snapshot of the live record
// and its commission record. Status is unchanged and no audit entry is
// written; later edits to the live record never reach the snapshot.
func (e *Engine) Finalize(ctx context.Context, employeeID string, period Period, actor Actor) (snap PayrollHistory, err error) {
	defer func(start time.Time) { e.done(OpFinalize, employeeID, period, actor, start, err) }(time.Now())

	rec, err := e.existing(ctx, employeeID, period)
	if err != nil {
		return PayrollHistory{}, err
	}
	if err := Authorize(rec, OpFinalize, actor); err != nil {
		return PayrollHistory{}, err
	}
	profile, err := e.employee(ctx, employeeID)
	if err != nil {
		return PayrollHistory{}, err
	}

	snap = PayrollHistory{
		ID:          uuid.NewString(),
		EmployeeID:  employeeID,
		Period:      period,
		Record:      rec.Clone(),
		FinalizedBy: actor.ID,
		FinalizedAt: e.Now().UTC(),
	}
	cr, err := e.Repo.LoadCommissionRecord(ctx, commissionKey(profile), period)
	if err != nil {
		return PayrollHistory{}, fmt.Errorf("load commission record: %w", err)
	}
	if cr != nil {
		c := cr.Clone()
		snap.Commission = &c
	}

	if err := e.Repo.SavePayrollHistorySnapshot(ctx, snap.Clone()); err != nil {
		return PayrollHistory{}, fmt.Errorf("save payroll history: %w", err)
	}
	e.Logger.Info("payroll finalized",
		zap.String("employee_id", employeeID),
		zap.Stringer("period", period),
		zap.String("snapshot_id", snap.ID),
		zap.String("net_salary", rec.NetSalary.String()))
	return snap, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func draftFor(employeeID string, period Period) PayrollRecord {
	return PayrollRecord{EmployeeID: employeeID, Period: period, Status: StatusDraft}
}

func advance(rec *PayrollRecord, op Operation, actor Actor) {
	rec.Status = nextStatus(rec.Status, op)
	stampActor(rec, op, actor)
}

// load validates identity and returns the stored record or nil.
func (e *Engine) load(ctx context.Context, employeeID string, period Period) (*PayrollRecord, error) {
	if employeeID == "" {
		return nil, newValidationError("employee_id", "is required")
	}
	if err := period.Validate(); err != nil {
		return nil, err
	}
	rec, err := e.Repo.LoadPayrollRecord(ctx, employeeID, period)
	if err != nil {
		return nil, fmt.Errorf("load payroll record %s/%s: %w", employeeID, period, err)
	}
	return rec, nil
}

// existing is load for operations that need a record to already exist.
func (e *Engine) existing(ctx context.Context, employeeID string, period Period) (PayrollRecord, error) {
	rec, err := e.load(ctx, employeeID, period)
	if err != nil {
		return PayrollRecord{}, err
	}
	if rec == nil {
		return PayrollRecord{}, newValidationError("payroll_record", "no payroll record for "+employeeID+" in "+period.String())
	}
	return *rec, nil
}

func (e *Engine) employee(ctx context.Context, employeeID string) (EmployeeProfile, error) {
	p, err := e.Repo.GetEmployee(ctx, employeeID)
	if errors.Is(err, ErrEmployeeNotFound) {
		return EmployeeProfile{}, newValidationError("employee_id", "unknown employee "+employeeID)
	}
	if err != nil {
		return EmployeeProfile{}, fmt.Errorf("get employee %s: %w", employeeID, err)
	}
	return p, nil
}

// recompute builds a new record from in and carries over prev's lifecycle
// fields, audit log, version and creation time.
func (e *Engine) recompute(prev PayrollRecord, in Inputs) (PayrollRecord, *CommissionResult, error) {
	c, err := e.aggregator.Build(prev.EmployeeID, prev.Period, in)
	if err != nil {
		return PayrollRecord{}, nil, err
	}
	next := c.Record
	next.Status = prev.Status
	next.HRSubmittedBy = prev.HRSubmittedBy
	next.FinanceReviewedBy = prev.FinanceReviewedBy
	next.ApprovedBy = prev.ApprovedBy
	next.LockedBy = prev.LockedBy
	next.AuditLog = prev.AuditLog
	next.Version = prev.Version
	next.CreatedAt = prev.CreatedAt
	return next, c.Commission, nil
}

func commissionKey(p EmployeeProfile) string {
	if p.IsAgent() {
		return p.AgentID
	}
	return p.ID
}

func (e *Engine) commissionRecord(p EmployeeProfile, period Period, res CommissionResult, source CommissionSource, actor Actor) *CommissionRecord {
	return &CommissionRecord{
		AgentID:           commissionKey(p),
		EmployeeID:        p.ID,
		Period:            period,
		CommissionDetails: res.Details,
		Totals:            res.Totals(),
		Manual:            source == CommissionFromManualTotals,
		Source:            source,
		UpdatedBy:         actor.ID,
		UpdatedAt:         e.Now().UTC(),
	}
}

// commit diffs prev and next, bumps the version and persists. When the
// repository supports transactions the commission record and the payroll
// record are written atomically.
func (e *Engine) commit(ctx context.Context, prev, next PayrollRecord, actor Actor, cr *CommissionRecord) (PayrollRecord, error) {
	now := e.Now().UTC()

	before := prev
	if prev.Version == 0 {
		// New records are diffed against nothing so every initial value is logged.
		before = PayrollRecord{}
		next.CreatedAt = now
	}
	next.UpdatedAt = now
	next.Version = prev.Version + 1

	entries := e.audit.Record(before, next, actor)
	trail := make([]AuditLogEntry, 0, len(prev.AuditLog)+len(entries))
	trail = append(trail, prev.AuditLog...)
	next.AuditLog = append(trail, entries...)

	write := func(repo Repository) error {
		if err := repo.SavePayrollRecord(ctx, next.Clone(), entries); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				return &ConcurrentModificationError{
					EmployeeID:      next.EmployeeID,
					Period:          next.Period,
					ObservedVersion: prev.Version,
				}
			}
			return fmt.Errorf("save payroll record: %w", err)
		}
		if cr != nil {
			if err := repo.SaveCommissionRecord(ctx, cr.Clone()); err != nil {
				return fmt.Errorf("save commission record: %w", err)
			}
		}
		return nil
	}

	var err error
	if txRepo, ok := e.Repo.(TxRepository); ok {
		err = txRepo.WithTx(ctx, write)
	} else {
		err = write(e.Repo)
	}
	if err != nil {
		return PayrollRecord{}, err
	}
	return next, nil
}
