package postgres_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/statutory"
	"github.com/warp/payroll-engine/store/postgres"
)

var created = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

// newStore connects to PAYROLL_TEST_DATABASE_URL and empties it. Tests
// are skipped when it is unset.
func newStore(t *testing.T) *postgres.Store {
	t.Helper()
	url := os.Getenv("PAYROLL_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PAYROLL_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := postgres.Connect(ctx, url)
	require.NoError(t, err)
	require.NoError(t, s.Reset(ctx))
	t.Cleanup(func() { s.Close() })
	return s
}

func newRun(t *testing.T, s *postgres.Store) payroll.PayrollRun {
	t.Helper()
	run := payroll.PayrollRun{
		ID: "run-1", CompanyID: "acme", Period: payroll.MonthPeriod(2025, time.March),
		Status: payroll.RunPending, TotalNetAmount: decimal.Zero,
		RunDate: created, CreatedAt: created, UpdatedAt: created,
	}
	require.NoError(t, s.CreateRun(context.Background(), run))
	return run
}

func entry(id string, component payroll.ComponentID, amount string) payroll.PayrollEntry {
	a := decimal.RequireFromString(amount)
	return payroll.PayrollEntry{
		ID: id, ComponentID: component, Name: string(component),
		ComponentType: payroll.ComponentEarning,
		Amount:        a.Round(0), RawAmount: a,
		PaymentStatus: payroll.PaymentUnpaid,
		Warnings:      []string{"checked"},
	}
}

func TestPostgres_RoundTripsConfiguration(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	ctc := decimal.RequireFromString("480000.50")
	require.NoError(t, s.SaveEmployee(ctx, payroll.Employee{
		ID: "emp-1", CompanyID: "acme", SiteID: "site-1", Name: "Asha", State: "MH",
		JoinedOn: time.Date(2020, time.January, 6, 0, 0, 0, 0, time.UTC), CTCOverride: &ctc, Active: true,
	}))
	e, err := s.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	require.NotNil(t, e.CTCOverride)
	assert.True(t, ctc.Equal(*e.CTCOverride))
	assert.Nil(t, e.ExitedOn)

	require.NoError(t, s.SaveComponent(ctx, payroll.TemplateComponent{
		ID: "c-1", TemplateID: "tpl", Name: "EPF", ComponentType: payroll.ComponentStatutoryContribution,
		Target: payroll.EPFTarget{ConfigID: "epf-std"},
	}))
	comps, err := s.ListComponents(ctx, "tpl")
	require.NoError(t, err)
	require.Len(t, comps, 1)
	assert.Equal(t, payroll.EPFTarget{ConfigID: "epf-std"}, comps[0].Target)

	for _, cfg := range statutory.StandardCatalog("acme", created).All() {
		require.NoError(t, s.SaveStatutory(ctx, cfg))
	}
	cat, err := s.LoadCatalog(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, cat.All(), 7)
}

func TestPostgres_ReplaceEmployeeResultUpserts(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	run := newRun(t, s)

	require.NoError(t, s.ReplaceEmployeeResult(ctx, run.ID, "emp-1",
		[]payroll.PayrollEntry{entry("e-1", "basic", "100.4"), entry("e-2", "hra", "50")}, nil))
	require.NoError(t, s.ReplaceEmployeeResult(ctx, run.ID, "emp-1",
		[]payroll.PayrollEntry{entry("e-3", "basic", "120.25")}, []payroll.Fault{
			{Code: payroll.FaultCatalogAnomaly, Message: "two defaults"},
		}))

	entries, err := s.ListEntries(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "e-1", entries[0].ID)
	assert.True(t, decimal.RequireFromString("120.25").Equal(entries[0].RawAmount))
	assert.Equal(t, []string{"checked"}, entries[0].Warnings)

	faults, err := s.ListFaults(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, faults, 1)
	assert.Equal(t, payroll.EmployeeID("emp-1"), faults[0].EmployeeID)
}

func TestPostgres_PruneEmployees(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	run := newRun(t, s)
	for _, id := range []payroll.EmployeeID{"emp-1", "emp-2"} {
		require.NoError(t, s.ReplaceEmployeeResult(ctx, run.ID, id,
			[]payroll.PayrollEntry{entry("e-"+string(id), "basic", "1")},
			[]payroll.Fault{{Code: payroll.FaultNegativeNet, Message: "check"}}))
	}

	require.NoError(t, s.PruneEmployees(ctx, run.ID, []payroll.EmployeeID{"emp-1"}))

	entries, err := s.ListEntries(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, payroll.EmployeeID("emp-1"), entries[0].EmployeeID)
	faults, err := s.ListFaults(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, faults, 1)
	assert.Equal(t, payroll.EmployeeID("emp-1"), faults[0].EmployeeID)
}

func TestPostgres_ConcurrentApprovalHasOneWinner(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	run := newRun(t, s)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.TransitionStatus(ctx, run.ID, payroll.RunPending, payroll.RunApproved)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, payroll.ErrPayrollLocked)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	err := s.ReplaceEmployeeResult(ctx, run.ID, "emp-1", []payroll.PayrollEntry{entry("e-1", "basic", "1")}, nil)
	assert.ErrorIs(t, err, payroll.ErrPayrollLocked)
	err = s.TransitionStatus(ctx, "missing", payroll.RunPending, payroll.RunApproved)
	assert.ErrorIs(t, err, payroll.ErrNotFound)
}
