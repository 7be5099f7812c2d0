package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/payroll/store"
	"github.com/warp/payroll-engine/statutory"
)

var created = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

func newRun(t *testing.T, m *store.Memory) payroll.PayrollRun {
	t.Helper()
	run := payroll.PayrollRun{
		ID: "run-1", CompanyID: "acme", Period: payroll.MonthPeriod(2025, time.March),
		Status: payroll.RunPending, CreatedAt: created, UpdatedAt: created,
	}
	require.NoError(t, m.CreateRun(context.Background(), run))
	return run
}

func entry(id string, component payroll.ComponentID, amount int64) payroll.PayrollEntry {
	return payroll.PayrollEntry{
		ID: id, ComponentID: component, Name: string(component),
		ComponentType: payroll.ComponentEarning,
		Amount:        decimal.NewFromInt(amount), RawAmount: decimal.NewFromInt(amount),
		PaymentStatus: payroll.PaymentUnpaid,
	}
}

func TestMemory_ReplaceEmployeeResultUpserts(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	run := newRun(t, m)

	// GIVEN: Two stored entries
	require.NoError(t, m.ReplaceEmployeeResult(ctx, run.ID, "emp-1",
		[]payroll.PayrollEntry{entry("e-1", "basic", 100), entry("e-2", "hra", 50)}, nil))

	// WHEN: Replaced with a changed basic, no hra and a new allowance
	require.NoError(t, m.ReplaceEmployeeResult(ctx, run.ID, "emp-1",
		[]payroll.PayrollEntry{entry("e-3", "basic", 120), entry("e-4", "allowance", 10)}, nil))

	// THEN: basic keeps its id, hra is gone, allowance is new
	entries, err := m.ListEntries(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	ids := map[payroll.ComponentID]string{}
	for _, e := range entries {
		ids[e.ComponentID] = e.ID
	}
	assert.Equal(t, "e-1", ids["basic"])
	assert.Equal(t, "e-4", ids["allowance"])
	assert.NotContains(t, ids, payroll.ComponentID("hra"))
}

func TestMemory_ReplaceLeavesOtherEmployeesAlone(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	run := newRun(t, m)
	require.NoError(t, m.ReplaceEmployeeResult(ctx, run.ID, "emp-1", []payroll.PayrollEntry{entry("a", "basic", 1)}, nil))
	require.NoError(t, m.ReplaceEmployeeResult(ctx, run.ID, "emp-2", []payroll.PayrollEntry{entry("b", "basic", 2)}, nil))

	require.NoError(t, m.ReplaceEmployeeResult(ctx, run.ID, "emp-1", nil, []payroll.Fault{
		{RunID: run.ID, EmployeeID: "emp-1", Code: payroll.FaultNoTemplateFound, Fatal: true},
	}))

	entries, err := m.ListEntries(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, payroll.EmployeeID("emp-2"), entries[0].EmployeeID)
	faults, err := m.ListFaults(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, faults, 1)
	assert.Equal(t, payroll.FaultNoTemplateFound, faults[0].Code)
}

func TestMemory_WriteGuard(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	run := newRun(t, m)
	require.NoError(t, m.TransitionStatus(ctx, run.ID, payroll.RunPending, payroll.RunApproved))

	err := m.ReplaceEmployeeResult(ctx, run.ID, "emp-1", []payroll.PayrollEntry{entry("e-1", "basic", 1)}, nil)
	assert.ErrorIs(t, err, payroll.ErrPayrollLocked)

	err = m.CommitTotals(ctx, run.ID, 1, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, payroll.ErrPayrollLocked)

	entries, err := m.ListEntries(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMemory_TransitionStatusIsCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	run := newRun(t, m)

	require.NoError(t, m.TransitionStatus(ctx, run.ID, payroll.RunPending, payroll.RunApproved))

	err := m.TransitionStatus(ctx, run.ID, payroll.RunPending, payroll.RunApproved)
	assert.ErrorIs(t, err, payroll.ErrPayrollLocked)

	err = m.TransitionStatus(ctx, run.ID, payroll.RunCreated, payroll.RunCreated)
	assert.ErrorIs(t, err, payroll.ErrConcurrentModification)

	err = m.TransitionStatus(ctx, "missing", payroll.RunPending, payroll.RunApproved)
	assert.ErrorIs(t, err, payroll.ErrNotFound)
}

func TestMemory_LoadCatalogIsCompanyScoped(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	for _, cfg := range statutory.StandardCatalog("acme", created).All() {
		require.NoError(t, m.SaveStatutory(ctx, cfg))
	}
	require.NoError(t, m.SaveStatutory(ctx, statutory.StandardProvidentFund("epf-other", "globex", created)))

	cat, err := m.LoadCatalog(ctx, "acme")
	require.NoError(t, err)

	assert.Len(t, cat.ProvidentFunds, 1)
	assert.Len(t, cat.All(), 7)
	_, anomaly, ok := cat.ProvidentFund("")
	assert.True(t, ok)
	assert.Nil(t, anomaly)
}

func TestMemory_ListComponentsOrdered(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	for _, c := range []payroll.TemplateComponent{
		{ID: "c", TemplateID: "tpl", DisplayOrder: 3},
		{ID: "a", TemplateID: "tpl", DisplayOrder: 1},
		{ID: "b", TemplateID: "tpl", DisplayOrder: 1},
		{ID: "x", TemplateID: "other", DisplayOrder: 0},
	} {
		require.NoError(t, m.SaveComponent(ctx, c))
	}

	comps, err := m.ListComponents(ctx, "tpl")
	require.NoError(t, err)

	var ids []payroll.ComponentID
	for _, c := range comps {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []payroll.ComponentID{"a", "b", "c"}, ids)
}

func TestMemory_PaySequenceNotFound(t *testing.T) {
	_, err := store.NewMemory().GetPaySequence(context.Background(), "acme")
	assert.ErrorIs(t, err, payroll.ErrNotFound)
}

func TestMemory_Reset(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	newRun(t, m)
	require.NoError(t, m.SaveEmployee(ctx, payroll.Employee{ID: "emp-1", CompanyID: "acme", Active: true}))

	require.NoError(t, m.Reset(ctx))

	_, err := m.GetRun(ctx, "run-1")
	assert.ErrorIs(t, err, payroll.ErrNotFound)
	employees, err := m.ListEmployees(ctx, payroll.RunScope{CompanyID: "acme"})
	require.NoError(t, err)
	assert.Empty(t, employees)
}

func TestMemory_PruneEmployees(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	run := newRun(t, m)
	require.NoError(t, m.ReplaceEmployeeResult(ctx, run.ID, "emp-1", []payroll.PayrollEntry{entry("a", "basic", 1)}, nil))
	require.NoError(t, m.ReplaceEmployeeResult(ctx, run.ID, "emp-2", []payroll.PayrollEntry{entry("b", "basic", 2)},
		[]payroll.Fault{{RunID: run.ID, EmployeeID: "emp-2", Code: payroll.FaultNegativeNet}}))

	require.NoError(t, m.PruneEmployees(ctx, run.ID, []payroll.EmployeeID{"emp-1"}))

	entries, err := m.ListEntries(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, payroll.EmployeeID("emp-1"), entries[0].EmployeeID)
	faults, err := m.ListFaults(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, faults)

	// Locked runs refuse the prune like every other write.
	require.NoError(t, m.TransitionStatus(ctx, run.ID, payroll.RunPending, payroll.RunApproved))
	assert.ErrorIs(t, m.PruneEmployees(ctx, run.ID, nil), payroll.ErrPayrollLocked)
}
