package payroll

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// BATCH CALCULATION
// =============================================================================

// BatchFailure explains why one employee was not recalculated.
type BatchFailure struct {
	EmployeeID string `json:"employee_id"`
	Reason     string `json:"reason"`
	Err        error  `json:"-"`
}

// BatchResult is the per-employee report of CalculateBatch. Both slices
// follow the order employees were requested (or listed) in.
type BatchResult struct {
	Succeeded []PayrollRecord `json:"succeeded"`
	Failed    []BatchFailure  `json:"failed"`
}

// CalculateBatch recalculates every listed employee for period, or every
// employee the repository returns for the period when employeeIDs is empty.
//
// Each employee is independent: a failure is recorded in the report and the
// rest carry on. Employees without a record start from their profile;
// existing records are recomputed from their stored inputs. Agents pick up
// their stored sales unless Finance has already supplied the commission,
// either as sales or as manual totals.
//
// The returned error is non-nil only when the employee list itself cannot
// be obtained.
func (e *Engine) CalculateBatch(ctx context.Context, period Period, employeeIDs []string) (BatchResult, error) {
	start := time.Now()
	if err := period.Validate(); err != nil {
		return BatchResult{}, err
	}

	ids := employeeIDs
	if len(ids) == 0 {
		profiles, err := e.Repo.ListEmployeesForPeriod(ctx, period, EmployeeFilter{})
		if err != nil {
			return BatchResult{}, fmt.Errorf("list employees for %s: %w", period, err)
		}
		ids = make([]string, len(profiles))
		for i, p := range profiles {
			ids[i] = p.ID
		}
	}

	records := make([]*PayrollRecord, len(ids))
	errs := make([]error, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.BatchConcurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			rec, err := e.calculateOne(gctx, id, period)
			if err != nil {
				errs[i] = err
				return nil
			}
			records[i] = &rec
			return nil
		})
	}
	_ = g.Wait()

	res := BatchResult{Succeeded: []PayrollRecord{}, Failed: []BatchFailure{}}
	for i, id := range ids {
		if errs[i] != nil {
			e.Logger.Warn("batch calculation failed for employee",
				zap.String("employee_id", id),
				zap.Stringer("period", period),
				zap.Error(errs[i]))
			res.Failed = append(res.Failed, BatchFailure{EmployeeID: id, Reason: errs[i].Error(), Err: errs[i]})
			continue
		}
		res.Succeeded = append(res.Succeeded, *records[i])
	}

	e.Observer.BatchCompleted(period, len(res.Succeeded), len(res.Failed))
	e.Logger.Info("batch calculation finished",
		zap.Stringer("period", period),
		zap.Int("succeeded", len(res.Succeeded)),
		zap.Int("failed", len(res.Failed)),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

func (e *Engine) calculateOne(ctx context.Context, employeeID string, period Period) (rec PayrollRecord, err error) {
	defer func(start time.Time) { e.done(OpCalculate, employeeID, period, SystemActor, start, err) }(time.Now())

	if err := ctx.Err(); err != nil {
		return PayrollRecord{}, err
	}
	current, err := e.load(ctx, employeeID, period)
	if err != nil {
		return PayrollRecord{}, err
	}
	profile, err := e.employee(ctx, employeeID)
	if err != nil {
		return PayrollRecord{}, err
	}

	prev := draftFor(employeeID, period)
	in := Inputs{}
	if current != nil {
		prev = *current
		in = prev.Inputs()
	} else {
		basic := profile.BasicSalary
		in.BasicSalary = &basic
	}
	// Frozen records fail here before any sales are read.
	if err := Authorize(prev, OpCalculate, SystemActor); err != nil {
		return PayrollRecord{}, err
	}

	if profile.IsAgent() {
		cr, err := e.Repo.LoadCommissionRecord(ctx, profile.AgentID, period)
		if err != nil {
			return PayrollRecord{}, fmt.Errorf("load commission record: %w", err)
		}
		if cr == nil || cr.Refreshable() {
			sales, err := e.agentSales(ctx, profile, period, nil)
			if err != nil {
				return PayrollRecord{}, err
			}
			in.Sales = sales
			in.Commission = nil
		}
	}
	return e.recalculate(ctx, prev, profile, in, CommissionFromStoredSales)
}
