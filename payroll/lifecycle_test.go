package payroll_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/payroll"
)

// computedRun returns a computed pending run with one complete employee.
func computedRun(t *testing.T) (*fixture, payroll.PayrollRun) {
	t.Helper()
	f := newFixture(t)
	f.employee("emp-1")
	f.attend("emp-1", march, "25", "26")
	run := f.run(march)
	_, err := f.runner.Compute(f.ctx, run.ID)
	require.NoError(t, err)
	return f, run
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to payroll.RunStatus
		want     bool
	}{
		{payroll.RunPending, payroll.RunApproved, true},
		{payroll.RunApproved, payroll.RunCreated, true},
		{payroll.RunPending, payroll.RunCreated, false},
		{payroll.RunApproved, payroll.RunPending, false},
		{payroll.RunCreated, payroll.RunPending, false},
		{payroll.RunCreated, payroll.RunApproved, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, payroll.CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

// =============================================================================
// LOCKING
// =============================================================================

func TestApprove_LocksEntries(t *testing.T) {
	// GIVEN: An approved run
	f, run := computedRun(t)
	approved, err := f.lifecycle().Approve(f.ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, payroll.RunApproved, approved.Status)
	before, err := f.store.ListEntries(f.ctx, run.ID)
	require.NoError(t, err)

	// WHEN: Anything tries to change its entries
	_, computeErr := f.runner.Compute(f.ctx, run.ID)
	replaceErr := f.store.ReplaceEmployeeResult(f.ctx, run.ID, "emp-1", nil, nil)
	valueErr := f.store.SaveSalaryFieldValue(f.ctx, payroll.SalaryFieldValue{
		RunID: run.ID, EmployeeID: "emp-1", FieldID: "incentive", Amount: d("100"),
	})
	totalsErr := f.store.CommitTotals(f.ctx, run.ID, 0, d("0"))

	// THEN: Every write is rejected and the entries are unchanged
	for _, err := range []error{computeErr, replaceErr, valueErr, totalsErr} {
		assert.ErrorIs(t, err, payroll.ErrPayrollLocked)
	}
	var locked *payroll.PayrollLockedError
	require.ErrorAs(t, computeErr, &locked)
	assert.Equal(t, payroll.RunApproved, locked.Status)

	after, err := f.store.ListEntries(f.ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestApprove_TwiceReportsLocked(t *testing.T) {
	f, run := computedRun(t)
	_, err := f.lifecycle().Approve(f.ctx, run.ID)
	require.NoError(t, err)

	_, err = f.lifecycle().Approve(f.ctx, run.ID)

	assert.ErrorIs(t, err, payroll.ErrPayrollLocked)
	assert.True(t, payroll.IsClientError(err))
}

func TestApprove_ConcurrentExactlyOneSucceeds(t *testing.T) {
	// GIVEN: A complete pending run
	f, run := computedRun(t)

	// WHEN: Ten callers approve at once
	const callers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.lifecycle().Approve(f.ctx, run.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			failures = append(failures, err)
		}()
	}
	wg.Wait()

	// THEN: Exactly one wins; the rest see a locked run
	assert.Equal(t, 1, successes)
	require.Len(t, failures, callers-1)
	for _, err := range failures {
		assert.ErrorIs(t, err, payroll.ErrPayrollLocked)
	}
}

func TestMarkCreated(t *testing.T) {
	f, run := computedRun(t)

	// Pending runs cannot skip approval
	_, err := f.lifecycle().MarkCreated(f.ctx, run.ID)
	require.ErrorIs(t, err, payroll.ErrConcurrentModification)

	_, err = f.lifecycle().Approve(f.ctx, run.ID)
	require.NoError(t, err)
	created, err := f.lifecycle().MarkCreated(f.ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, payroll.RunCreated, created.Status)

	_, err = f.lifecycle().MarkCreated(f.ctx, run.ID)
	var conflict *payroll.TransitionConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, payroll.RunCreated, conflict.Actual)
}

func TestApprove_UnknownRun(t *testing.T) {
	f := newFixture(t)

	_, err := f.lifecycle().Approve(f.ctx, "missing")

	assert.ErrorIs(t, err, payroll.ErrNotFound)
}
