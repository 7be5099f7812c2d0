/*
scenarios_test.go - Unit tests for demo scenarios

PURPOSE:

	Tests that each scenario correctly sets up the expected state:
	- The document parses and applies
	- A pending March 2025 run is opened
	- Computing the run gives the outcome the scenario demonstrates

These tests ensure scenarios work correctly and can be used as integration tests.
*/
package api

import (
	"context"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/payroll/store"
)

func setupTestHandler(t *testing.T) *Handler {
	t.Helper()
	mem := store.NewMemory()
	logger := slog.New(slog.DiscardHandler)
	return NewHandler(mem, payroll.NewRunner(mem, logger), logger)
}

func TestScenarios_AllDocumentsLoad(t *testing.T) {
	h := setupTestHandler(t)
	ctx := context.Background()

	for _, s := range scenarios {
		t.Run(s.ID, func(t *testing.T) {
			_, ok := scenarioDocuments[s.ID]
			require.True(t, ok, "scenario %s has no document", s.ID)

			run, err := h.loadScenario(ctx, s.ID)
			require.NoError(t, err)
			assert.Equal(t, payroll.RunPending, run.Status)
			assert.Equal(t, scenarioMonth, run.Period)

			// Loading resets: only this scenario's run exists.
			runs, err := h.Store.ListRuns(ctx, "")
			require.NoError(t, err)
			assert.Len(t, runs, 1)
		})
	}
}

func TestScenario_StandardMonth(t *testing.T) {
	// GIVEN: The standard-month scenario
	h := setupTestHandler(t)
	ctx := context.Background()
	run, err := h.loadScenario(ctx, "standard-month")
	require.NoError(t, err)

	// WHEN: Previewing the employee with 25 of 26 days present
	res, err := h.Runner.Preview(ctx, run.ID, "emp-asha")
	require.NoError(t, err)

	// THEN: The default template applies and net pay is prorated
	assert.Equal(t, payroll.TemplateID("tpl-std"), res.TemplateID)
	assert.Len(t, res.Entries, 6)
	assert.True(t, decimal.NewFromInt(31654).Equal(res.Totals.Rounded().Total), "net %s", res.Totals.Total)

	// AND: Computing the run stores every employee
	out, err := h.Runner.Compute(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, out.Run.TotalEmployees)
	for _, emp := range out.Employees {
		assert.False(t, emp.Fatal(), "employee %s", emp.EmployeeID)
	}
}

func TestScenario_SiteTemplates(t *testing.T) {
	// GIVEN: Templates assigned per employee, position and skill level
	h := setupTestHandler(t)
	ctx := context.Background()
	run, err := h.loadScenario(ctx, "site-templates")
	require.NoError(t, err)

	// THEN: Each employee resolves through a different strategy
	expected := map[payroll.EmployeeID]payroll.TemplateID{
		"emp-asha":   "tpl-guard",   // position wins over skill level
		"emp-imran":  "tpl-skilled", // skill level
		"emp-vikram": "tpl-manager", // employee assignment
	}
	for emp, tpl := range expected {
		res, err := h.Runner.Preview(ctx, run.ID, emp)
		require.NoError(t, err)
		assert.Equal(t, tpl, res.TemplateID, "employee %s", emp)
	}
}

func TestScenario_UnresolvedEmployeeBlocksApproval(t *testing.T) {
	// GIVEN: One employee matches no assignment and there is no default
	h := setupTestHandler(t)
	ctx := context.Background()
	run, err := h.loadScenario(ctx, "unresolved-employee")
	require.NoError(t, err)

	// WHEN: The run is computed and approved
	_, err = h.Runner.Compute(ctx, run.ID)
	require.NoError(t, err)
	_, err = h.Lifecycle.Approve(ctx, run.ID)

	// THEN: Approval names the unresolved employee and the run stays pending
	var incomplete *payroll.IncompletePayrollError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, []payroll.EmployeeID{"emp-leo"}, incomplete.Employees)

	stored, err := h.Store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, payroll.RunPending, stored.Status)
}

func TestScenario_ExitSettlement(t *testing.T) {
	// GIVEN: An employee with ten years of service exiting mid-March
	h := setupTestHandler(t)
	ctx := context.Background()
	_, err := h.loadScenario(ctx, "exit-settlement")
	require.NoError(t, err)

	// WHEN: Settling at the exit date
	s, err := h.Runner.Settle(ctx, payroll.SettlementRequest{
		EmployeeID:   "emp-sunil",
		LeaveBalance: decimal.NewFromInt(20),
	})
	require.NoError(t, err)

	// THEN: Gratuity is due on the full-attendance basic
	assert.Equal(t, 10, s.CompletedYears)
	assert.True(t, s.GratuityEligible)
	assert.True(t, s.Gratuity.IsPositive())
	assert.True(t, decimal.NewFromInt(25000).Equal(s.MonthlyBasic), "basic %s", s.MonthlyBasic)
}

func TestScenario_LoadReplacesPrevious(t *testing.T) {
	h := setupTestHandler(t)
	ctx := context.Background()

	_, err := h.loadScenario(ctx, "standard-month")
	require.NoError(t, err)
	_, err = h.loadScenario(ctx, "exit-settlement")
	require.NoError(t, err)

	_, err = h.Store.GetEmployee(ctx, "emp-asha")
	assert.ErrorIs(t, err, payroll.ErrNotFound)
	_, err = h.Store.GetEmployee(ctx, "emp-sunil")
	assert.NoError(t, err)
}
