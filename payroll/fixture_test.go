package payroll_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/payroll/store"
	"github.com/warp/payroll-engine/statutory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const company payroll.CompanyID = "acme"

var (
	t0    = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	march = payroll.MonthPeriod(2025, time.March)
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, d(want).Equal(got), "want %s, got %s", want, got)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// standardComponents is Basic 50% + HRA 20% of CTC, then EPF, ESIC and PT.
func standardComponents(templateID payroll.TemplateID) []payroll.TemplateComponent {
	id := func(s string) payroll.ComponentID { return payroll.ComponentID(string(templateID) + "-" + s) }
	return []payroll.TemplateComponent{
		{
			ID: id("basic"), TemplateID: templateID, Name: "Basic",
			ComponentType: payroll.ComponentEarning, CalculationType: payroll.CalculationPercentageOfCTC,
			CalculationValue: d("50"), DisplayOrder: 1, Target: payroll.PaymentFieldTarget{FieldID: "basic"},
		},
		{
			ID: id("hra"), TemplateID: templateID, Name: "HRA",
			ComponentType: payroll.ComponentEarning, CalculationType: payroll.CalculationPercentageOfCTC,
			CalculationValue: d("20"), DisplayOrder: 2, Target: payroll.PaymentFieldTarget{FieldID: "hra"},
		},
		{
			ID: id("epf"), TemplateID: templateID, Name: "EPF",
			ComponentType: payroll.ComponentStatutoryContribution, DisplayOrder: 10,
			Target: payroll.EPFTarget{ConfigID: "epf-std"},
		},
		{
			ID: id("esic"), TemplateID: templateID, Name: "ESIC",
			ComponentType: payroll.ComponentStatutoryContribution, DisplayOrder: 11,
			Target: payroll.ESICTarget{ConfigID: "esic-std"},
		},
		{
			ID: id("pt"), TemplateID: templateID, Name: "Professional Tax",
			ComponentType: payroll.ComponentStatutoryContribution, DisplayOrder: 12,
			Target: payroll.PTTarget{ConfigID: "pt-mh"},
		},
	}
}

func standardFields() []payroll.PaymentField {
	return []payroll.PaymentField{
		{ID: "basic", CompanyID: company, Name: "Basic", Code: "BASIC", Type: payroll.ComponentEarning, PFWage: true},
		{ID: "hra", CompanyID: company, Name: "HRA", Code: "HRA", Type: payroll.ComponentEarning},
		{ID: "incentive", CompanyID: company, Name: "Incentive", Code: "INC", Type: payroll.ComponentEarning},
	}
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  *store.Memory
	runner *payroll.Runner
}

// newFixture seeds company acme with the standard fields, a default
// template "tpl-std" at CTC 600000 and the standard statutory catalog.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{t: t, ctx: context.Background(), store: store.NewMemory()}
	f.runner = payroll.NewRunner(f.store, quietLogger())

	for _, field := range standardFields() {
		require.NoError(t, f.store.SavePaymentField(f.ctx, field))
	}
	f.template("tpl-std", "600000", true, t0)
	for _, cfg := range statutory.StandardCatalog(string(company), t0).All() {
		require.NoError(t, f.store.SaveStatutory(f.ctx, cfg))
	}
	return f
}

func (f *fixture) template(id payroll.TemplateID, ctc string, isDefault bool, created time.Time) {
	f.t.Helper()
	require.NoError(f.t, f.store.SaveTemplate(f.ctx, payroll.PaymentTemplate{
		ID: id, CompanyID: company, Name: string(id), AnnualCTC: d(ctc),
		IsActive: true, IsDefault: isDefault, CreatedAt: created,
	}))
	for _, c := range standardComponents(id) {
		require.NoError(f.t, f.store.SaveComponent(f.ctx, c))
	}
}

func (f *fixture) employee(id payroll.EmployeeID, mutate ...func(*payroll.Employee)) payroll.Employee {
	f.t.Helper()
	e := payroll.Employee{
		ID: id, CompanyID: company, SiteID: "site-1", Name: string(id),
		Position: "guard", SkillLevel: "skilled", State: "MH",
		JoinedOn: time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC), Active: true,
	}
	for _, m := range mutate {
		m(&e)
	}
	require.NoError(f.t, f.store.SaveEmployee(f.ctx, e))
	return e
}

func (f *fixture) attend(id payroll.EmployeeID, period payroll.Period, present, working string) {
	f.t.Helper()
	require.NoError(f.t, f.store.SaveAttendance(f.ctx, payroll.Attendance{
		EmployeeID: id, Period: period, PresentDays: d(present), WorkingDays: d(working),
	}))
}

func (f *fixture) run(period payroll.Period) payroll.PayrollRun {
	f.t.Helper()
	run, err := f.runner.CreateRun(f.ctx, payroll.RunScope{CompanyID: company}, period, time.Time{})
	require.NoError(f.t, err)
	return run
}

func (f *fixture) lifecycle() payroll.Lifecycle {
	return payroll.Lifecycle{Runs: f.store, Config: f.store}
}

func entriesFor(entries []payroll.PayrollEntry, employeeID payroll.EmployeeID) map[string]payroll.PayrollEntry {
	out := make(map[string]payroll.PayrollEntry)
	for _, e := range entries {
		if e.EmployeeID == employeeID {
			out[e.Name] = e
		}
	}
	return out
}
