package factory_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/payroll/store"
	"github.com/warp/payroll-engine/statutory"
)

const acmeDocument = `
version: 1
company: acme
created_at: 2025-01-01
pay_sequence:
  frequency: monthly
  working_days: 26
  pay_day: 1
fields:
  - {id: basic, name: Basic, type: earning, pf_wage: true}
  - {id: hra, name: HRA, type: earning}
templates:
  - id: tpl-std
    name: Standard
    annual_ctc: 600000
    default: true
    components:
      - {name: Basic, type: earning, calculation: percentage_of_ctc, value: 50, order: 1,
         target: {type: payment_field, id: basic}}
      - {name: HRA, type: earning, value: 20, order: 2, target: {type: payment_field, id: hra}}
      - {name: EPF, type: statutory_contribution, order: 10, target: {type: epf, id: epf-std}}
assignments:
  - {id: as-1, template: tpl-std, site: site-1, eligibility: position, value: guard, from: 2025-01-01}
statutory:
  presets: standard
  professional_tax:
    - id: pt-ka
      state: KA
      slabs:
        - {lower: 0, upper: 24999, amount: 0}
        - {lower: 25000, amount: 200}
      cycle: {frequency: monthly}
  bonuses:
    - {id: bonus-diwali, percentage: "8.33", payout_month: october, basis: basic}
employees:
  - {id: emp-1, name: Asha, site: site-1, position: guard, state: MH, joined_on: 2020-01-06}
  - {id: emp-2, name: Ravi, site: site-1, state: KA, joined_on: 2024-06-01, ctc_override: "480000.50"}
attendance:
  - {employee: emp-1, month: 2025-03, present_days: 25, working_days: 26}
`

func TestParse_BuildsCompany(t *testing.T) {
	// GIVEN a complete company document
	// WHEN it is parsed
	c, err := factory.Parse([]byte(acmeDocument))
	require.NoError(t, err)

	// THEN every section is converted
	assert.Equal(t, payroll.CompanyID("acme"), c.ID)
	require.NotNil(t, c.PaySequence)
	assert.Equal(t, payroll.PayMonthly, c.PaySequence.Frequency)
	assert.Equal(t, 26, c.PaySequence.WorkingDays)
	assert.True(t, c.PaySequence.HoursPerDay.Equal(decimal.NewFromInt(8)))

	require.Len(t, c.Fields, 2)
	assert.True(t, c.Fields[0].PFWage)

	require.Len(t, c.Templates, 1)
	assert.True(t, c.Templates[0].IsActive)
	assert.True(t, c.Templates[0].AnnualCTC.Equal(decimal.NewFromInt(600000)))

	require.Len(t, c.Components, 3)
	assert.Equal(t, payroll.ComponentID("tpl-std-basic"), c.Components[0].ID)
	assert.Equal(t, payroll.PaymentFieldTarget{FieldID: "basic"}, c.Components[0].Target)
	assert.Equal(t, payroll.CalculationPercentageOfCTC, c.Components[1].CalculationType, "calculation defaults to percentage_of_ctc")
	assert.Equal(t, payroll.EPFTarget{ConfigID: "epf-std"}, c.Components[2].Target)

	require.Len(t, c.Assignments, 1)
	assert.Equal(t, payroll.AssignSite, c.Assignments[0].Type)
	assert.Equal(t, payroll.EligibilityPosition, c.Assignments[0].Eligibility)
	assert.Nil(t, c.Assignments[0].EffectiveTo)

	// 7 presets plus the two explicit records
	assert.Len(t, c.Statutory, 9)

	require.Len(t, c.Employees, 2)
	require.NotNil(t, c.Employees[1].CTCOverride)
	assert.Equal(t, "480000.5", c.Employees[1].CTCOverride.String())

	require.Len(t, c.Attendance, 1)
	assert.Equal(t, payroll.MonthPeriod(2025, time.March), c.Attendance[0].Period)
}

func TestParse_StatutoryRecords(t *testing.T) {
	c, err := factory.Parse([]byte(acmeDocument))
	require.NoError(t, err)

	cat := &statutory.Catalog{CompanyID: "acme"}
	for _, cfg := range c.Statutory {
		require.NoError(t, cat.Add(cfg))
	}

	pt, _, ok := cat.ProfessionalTaxFor("pt-ka", "KA")
	require.True(t, ok)
	require.Len(t, pt.Slabs, 2)
	assert.Nil(t, pt.Slabs[1].Upper)
	assert.Equal(t, statutory.FrequencyMonthly, pt.Cycle.Frequency)

	bonus, _, ok := cat.Bonus("bonus-diwali")
	require.True(t, ok)
	assert.Equal(t, time.October, bonus.PayoutMonth)
	assert.Equal(t, statutory.BonusBasisBasic, bonus.Basis)
	assert.True(t, bonus.Percentage.Equal(decimal.RequireFromString("8.33")))
}

func TestParse_AcceptsJSON(t *testing.T) {
	doc := `{"version": 1, "company": "acme",
  "fields": [{"id": "basic", "type": "earning"}],
  "templates": [{"id": "tpl", "annual_ctc": "120000",
    "components": [{"id": "c-basic", "type": "earning", "value": 100,
      "target": {"type": "payment_field", "id": "basic"}}]}]}`

	c, err := factory.Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, c.Components, 1)
	assert.Equal(t, payroll.ComponentID("c-basic"), c.Components[0].ID)
	assert.Nil(t, c.PaySequence)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unsupported version", "version: 2\ncompany: acme\n"},
		{"missing version", "company: acme\n"},
		{"missing company", "version: 1\n"},
		{"bad amount", "version: 1\ncompany: acme\ntemplates: [{id: t, annual_ctc: lots}]\n"},
		{"unknown component type", `version: 1
company: acme
templates: [{id: t, components: [{name: X, type: perk, target: {type: payment_field, id: x}}]}]
`},
		{"unknown target type", `version: 1
company: acme
templates: [{id: t, components: [{name: X, type: earning, value: 1, target: {type: pension, id: x}}]}]
`},
		{"target without id", `version: 1
company: acme
templates: [{id: t, components: [{name: X, type: statutory_contribution, target: {type: epf}}]}]
`},
		{"percentage without value", `version: 1
company: acme
templates: [{id: t, components: [{name: X, type: earning, target: {type: payment_field, id: x}}]}]
`},
		{"duplicate component", `version: 1
company: acme
templates: [{id: t, components: [
  {id: a, type: earning, value: 1, target: {type: payment_field, id: x}},
  {id: a, type: earning, value: 1, target: {type: payment_field, id: y}}]}]
`},
		{"assignment without scope", "version: 1\ncompany: acme\nassignments: [{id: a, template: t, from: 2025-01-01}]\n"},
		{"assignment bad eligibility", "version: 1\ncompany: acme\nassignments: [{id: a, template: t, site: s, eligibility: grade, from: 2025-01-01}]\n"},
		{"assignment ends before start", "version: 1\ncompany: acme\nassignments: [{id: a, template: t, employee: e, from: 2025-02-01, to: 2025-01-01}]\n"},
		{"bad date", "version: 1\ncompany: acme\nemployees: [{id: e, joined_on: 01/02/2020}]\n"},
		{"unknown preset", "version: 1\ncompany: acme\nstatutory: {presets: lavish}\n"},
		{"pt without slabs", "version: 1\ncompany: acme\nstatutory: {professional_tax: [{id: pt, state: KA}]}\n"},
		{"bad month", "version: 1\ncompany: acme\nstatutory: {bonuses: [{id: b, percentage: 8, payout_month: smarch}]}\n"},
		{"bad frequency", "version: 1\ncompany: acme\nstatutory: {labour_welfare: [{id: l, cycle: {frequency: fortnightly}}]}\n"},
		{"bad pay frequency", "version: 1\ncompany: acme\npay_sequence: {frequency: daily}\n"},
		{"attendance without period", "version: 1\ncompany: acme\nattendance: [{employee: e, present_days: 1, working_days: 1}]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := factory.Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestApply_ComputesRun(t *testing.T) {
	ctx := context.Background()

	// GIVEN a document applied to an empty store
	c, err := factory.Parse([]byte(acmeDocument))
	require.NoError(t, err)
	s := store.NewMemory()
	require.NoError(t, c.Apply(ctx, s))

	// THEN the configuration is readable through the config side
	employees, err := s.ListEmployees(ctx, payroll.RunScope{CompanyID: "acme"})
	require.NoError(t, err)
	assert.Len(t, employees, 2)

	comps, err := s.ListComponents(ctx, "tpl-std")
	require.NoError(t, err)
	assert.Len(t, comps, 3)

	seq, err := s.GetPaySequence(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 26, seq.WorkingDays)

	cat, err := s.LoadCatalog(ctx, "acme")
	require.NoError(t, err)
	_, _, ok := cat.ProvidentFund("epf-std")
	assert.True(t, ok)

	att, found, err := s.GetAttendance(ctx, "emp-1", payroll.MonthPeriod(2025, time.March))
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, att.PresentDays.Equal(decimal.NewFromInt(25)))

	// AND applying twice is harmless
	require.NoError(t, c.Apply(ctx, s))
	comps, err = s.ListComponents(ctx, "tpl-std")
	require.NoError(t, err)
	assert.Len(t, comps, 3)

	// AND a run computes from the loaded configuration
	runner := payroll.NewRunner(s, slog.New(slog.DiscardHandler))
	run, err := runner.CreateRun(ctx, payroll.RunScope{CompanyID: "acme"}, payroll.MonthPeriod(2025, time.March), time.Time{})
	require.NoError(t, err)
	res, err := runner.Compute(ctx, run.ID)
	require.NoError(t, err)

	byEmployee := map[payroll.EmployeeID]payroll.EmployeeResult{}
	for _, r := range res.Employees {
		byEmployee[r.EmployeeID] = r
	}
	assert.Len(t, byEmployee["emp-1"].Entries, 3)
	assert.False(t, byEmployee["emp-1"].Fatal())
	assert.True(t, byEmployee["emp-2"].Fatal(), "emp-2 has no attendance")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acme.yaml")
	require.NoError(t, os.WriteFile(path, []byte(acmeDocument), 0o600))

	c, err := factory.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payroll.CompanyID("acme"), c.ID)

	_, err = factory.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
