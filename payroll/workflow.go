package payroll

// =============================================================================
// APPROVAL WORKFLOW - Who may do what, and when
// =============================================================================
//
//   draft ──HR──▶ hr_submitted ──Finance──▶ finance_reviewed ──Admin──▶ approved ──Admin──▶ locked
//
// Transitions only move forward. Adjustments may be resubmitted at any
// status before approved; finalize snapshots without moving the status.

// Operation names an engine operation.
type Operation string

const (
	OpCalculate               Operation = "calculate"
	OpSubmitHRAdjustment      Operation = "submit_hr_adjustment"
	OpSubmitFinanceAdjustment Operation = "submit_finance_adjustment"
	OpSubmitCommission        Operation = "submit_commission"
	OpApprove                 Operation = "approve"
	OpLock                    Operation = "lock"
	OpFinalize                Operation = "finalize"
)

// allowedRoles is the transition table. OpCalculate is not listed: it takes
// no actor and runs as SystemActor.
var allowedRoles = map[Operation][]Role{
	OpSubmitHRAdjustment:      {RoleHR, RoleHRAdmin},
	OpSubmitFinanceAdjustment: {RoleFinance},
	OpSubmitCommission:        {RoleFinance},
	OpFinalize:                {RoleFinance},
	OpApprove:                 {RoleAdmin, RoleHRAdmin},
	OpLock:                    {RoleAdmin},
}

// AllowedRoles returns the roles that may run op.
func AllowedRoles(op Operation) []Role {
	roles := allowedRoles[op]
	out := make([]Role, len(roles))
	copy(out, roles)
	return out
}

func roleAllowed(op Operation, role Role) bool {
	if op == OpCalculate {
		return role == RoleSystem
	}
	for _, r := range allowedRoles[op] {
		if r == role {
			return true
		}
	}
	return false
}

// Authorize checks op against the record's current status and the actor's
// role. Checks run in this order:
//
//  1. locked rejects everything (InvalidState)
//  2. approved rejects everything except lock (InvalidState)
//  3. role must be in the transition table (UnauthorizedTransition)
//  4. the operation's own precondition (InvalidState)
func Authorize(rec PayrollRecord, op Operation, actor Actor) error {
	stateErr := &InvalidStateError{
		EmployeeID: rec.EmployeeID,
		Period:     rec.Period,
		Operation:  op,
		Status:     rec.Status,
	}

	switch {
	case rec.Status == StatusLocked:
		return stateErr
	case rec.Status == StatusApproved && op != OpLock:
		return stateErr
	}

	if !roleAllowed(op, actor.Role) {
		return &UnauthorizedTransitionError{Actor: actor, Operation: op, Status: rec.Status}
	}

	switch op {
	case OpSubmitFinanceAdjustment, OpSubmitCommission:
		if rec.Status.Rank() < StatusHRSubmitted.Rank() {
			return stateErr
		}
	case OpApprove:
		if rec.Status != StatusFinanceReviewed {
			return stateErr
		}
	case OpLock:
		if rec.Status != StatusApproved {
			return stateErr
		}
	}
	return nil
}

// nextStatus is the status after op succeeds. Resubmissions never move a
// record backwards.
func nextStatus(current Status, op Operation) Status {
	var target Status
	switch op {
	case OpSubmitHRAdjustment:
		target = StatusHRSubmitted
	case OpSubmitFinanceAdjustment, OpSubmitCommission:
		target = StatusFinanceReviewed
	case OpApprove:
		target = StatusApproved
	case OpLock:
		target = StatusLocked
	default:
		return current
	}
	if target.Rank() > current.Rank() {
		return target
	}
	return current
}

// stampActor records who moved the record into its current status.
func stampActor(rec *PayrollRecord, op Operation, actor Actor) {
	switch op {
	case OpSubmitHRAdjustment:
		rec.HRSubmittedBy = actor.ID
	case OpSubmitFinanceAdjustment, OpSubmitCommission:
		rec.FinanceReviewedBy = actor.ID
	case OpApprove:
		rec.ApprovedBy = actor.ID
	case OpLock:
		rec.LockedBy = actor.ID
	}
}
