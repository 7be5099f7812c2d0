package payroll

import (
	"context"
	"sort"
)

// =============================================================================
// LIFECYCLE - pending -> approved -> created
// =============================================================================

// CanTransition reports whether a run may move from one status to another.
// Statuses only move forward, one step at a time.
func CanTransition(from, to RunStatus) bool {
	switch from {
	case RunPending:
		return to == RunApproved
	case RunApproved:
		return to == RunCreated
	default:
		return false
	}
}

// Lifecycle moves runs through their states. All status changes are
// compare-and-swap on the store, so two concurrent approvals of the same
// run produce exactly one success.
type Lifecycle struct {
	Runs   RunStore
	Config ConfigStore
}

// Approve locks a pending run. Every in-scope employee must have entries
// and no unresolved template; otherwise *IncompletePayrollError is
// returned and the run stays pending.
func (l Lifecycle) Approve(ctx context.Context, runID RunID) (PayrollRun, error) {
	run, err := l.Runs.GetRun(ctx, runID)
	if err != nil {
		return PayrollRun{}, DataAccess("get run", err)
	}
	if run.Status != RunPending {
		return run, &PayrollLockedError{RunID: runID, Status: run.Status}
	}

	blocked, err := l.unresolved(ctx, run)
	if err != nil {
		return run, err
	}
	if len(blocked) > 0 {
		return run, &IncompletePayrollError{RunID: runID, Employees: blocked}
	}

	return l.transition(ctx, runID, RunPending, RunApproved)
}

// MarkCreated records that payments for an approved run were issued.
func (l Lifecycle) MarkCreated(ctx context.Context, runID RunID) (PayrollRun, error) {
	return l.transition(ctx, runID, RunApproved, RunCreated)
}

func (l Lifecycle) transition(ctx context.Context, runID RunID, from, to RunStatus) (PayrollRun, error) {
	if !CanTransition(from, to) {
		return PayrollRun{}, ErrInvalidTransition
	}
	// Lost races surface as *PayrollLockedError or *TransitionConflictError.
	if err := l.Runs.TransitionStatus(ctx, runID, from, to); err != nil {
		return PayrollRun{}, DataAccess("transition status", err)
	}
	run, err := l.Runs.GetRun(ctx, runID)
	if err != nil {
		return PayrollRun{}, DataAccess("get run", err)
	}
	return run, nil
}

// unresolved lists in-scope employees that have no entries or carry a
// no_template_found fault.
func (l Lifecycle) unresolved(ctx context.Context, run PayrollRun) ([]EmployeeID, error) {
	employees, err := l.Config.ListEmployees(ctx, run.Scope())
	if err != nil {
		return nil, DataAccess("list employees", err)
	}
	entries, err := l.Runs.ListEntries(ctx, run.ID)
	if err != nil {
		return nil, DataAccess("list entries", err)
	}
	faults, err := l.Runs.ListFaults(ctx, run.ID)
	if err != nil {
		return nil, DataAccess("list faults", err)
	}

	hasEntries := make(map[EmployeeID]bool, len(entries))
	for _, e := range entries {
		hasEntries[e.EmployeeID] = true
	}
	noTemplate := make(map[EmployeeID]bool)
	for _, f := range faults {
		if f.Code == FaultNoTemplateFound {
			noTemplate[f.EmployeeID] = true
		}
	}

	var blocked []EmployeeID
	for _, emp := range employees {
		if !emp.InScope(run.Period) {
			continue
		}
		if !hasEntries[emp.ID] || noTemplate[emp.ID] {
			blocked = append(blocked, emp.ID)
		}
	}
	sort.Slice(blocked, func(i, j int) bool { return blocked[i] < blocked[j] })
	return blocked, nil
}
