package statutory_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/statutory"
)

var created = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, d(want).Equal(got), "want %s, got %s", want, got)
}

// =============================================================================
// DEDUCTION CYCLE
// =============================================================================

func TestDeductionCycle_Due(t *testing.T) {
	monthly := statutory.DeductionCycle{Frequency: statutory.FrequencyMonthly}
	for m := time.January; m <= time.December; m++ {
		assert.True(t, monthly.Due(m), "monthly cycle due in %s", m)
	}

	quarterly := statutory.DeductionCycle{Frequency: statutory.FrequencyQuarterly, StartMonth: time.April}
	assert.True(t, quarterly.Due(time.April))
	assert.True(t, quarterly.Due(time.July))
	assert.True(t, quarterly.Due(time.January))
	assert.False(t, quarterly.Due(time.February))

	halfYearly := statutory.DeductionCycle{Frequency: statutory.FrequencyHalfYearly, StartMonth: time.June}
	assert.True(t, halfYearly.Due(time.June))
	assert.True(t, halfYearly.Due(time.December))
	assert.False(t, halfYearly.Due(time.July))

	yearly := statutory.DeductionCycle{Frequency: statutory.FrequencyYearly}
	assert.True(t, yearly.Due(time.January))
	assert.False(t, yearly.Due(time.March))
}

// =============================================================================
// PROVIDENT FUND
// =============================================================================

func TestProvidentFund_RestrictCapsEachSide(t *testing.T) {
	// GIVEN: 12% PF capped at 15,000 on both sides
	pf := statutory.StandardProvidentFund("epf", "c1", created)

	// WHEN: The wage base is 20,000
	c := pf.Contribution(d("20000"))

	// THEN: Both sides use the 15,000 cap; only the employee side is on the line
	assertDecimal(t, "1800", c.Employee)
	assertDecimal(t, "1800", c.Employer)
	assertDecimal(t, "1800", c.Total)
	assert.True(t, c.EDLI.IsZero())
	assert.True(t, c.Admin.IsZero())
}

func TestProvidentFund_EmployerAndChargesOnlyWhenFlagged(t *testing.T) {
	pf := statutory.StandardProvidentFund("epf", "c1", created)
	pf.IncludeEmployerContribution = true
	pf.IncludeEDLI = true
	pf.IncludeAdminCharges = true

	c := pf.Contribution(d("10000"))

	assertDecimal(t, "1200", c.Employee)
	assertDecimal(t, "1200", c.Employer)
	assertDecimal(t, "50", c.EDLI)
	assertDecimal(t, "50", c.Admin)
	assertDecimal(t, "2500", c.Total)
}

func TestProvidentFund_IndependentRestricts(t *testing.T) {
	pf := statutory.StandardProvidentFund("epf", "c1", created)
	pf.EmployeeRestrict = nil

	c := pf.Contribution(d("20000"))

	assertDecimal(t, "2400", c.Employee)
	assertDecimal(t, "1800", c.Employer)
}

// =============================================================================
// STATE INSURANCE
// =============================================================================

func TestStateInsurance_Ceiling(t *testing.T) {
	esi := statutory.StandardStateInsurance("esic", "c1", created)

	assertDecimal(t, "150", esi.Contribution(d("20000")).Total)
	assertDecimal(t, "157.5", esi.Contribution(d("21000")).Total)
	assert.True(t, esi.Contribution(d("21000.01")).Total.IsZero())
	assert.False(t, esi.Eligible(d("30000")))
}

func TestStateInsurance_IncludeEmployer(t *testing.T) {
	esi := statutory.StandardStateInsurance("esic", "c1", created)
	esi.IncludeEmployerContribution = true

	c := esi.Contribution(d("10000"))
	assertDecimal(t, "75", c.Employee)
	assertDecimal(t, "325", c.Employer)
	assertDecimal(t, "400", c.Total)
}

// =============================================================================
// PROFESSIONAL TAX
// =============================================================================

func TestProfessionalTax_FlatSlabs(t *testing.T) {
	pt := statutory.MaharashtraPT("pt", "c1", created)

	cases := []struct {
		gross string
		want  string
	}{
		{"0", "0"},
		{"15000", "0"},
		{"15000.40", "0"},
		{"15001", "150"},
		{"20000", "150"},
		{"25000", "150"},
		{"25000.50", "150"},
		{"25001", "200"},
		{"1000000", "200"},
	}
	for _, tc := range cases {
		amount, found := pt.Amount(d(tc.gross), time.March)
		require.True(t, found, "gross %s", tc.gross)
		assertDecimal(t, tc.want, amount)
	}
}

func TestProfessionalTax_NoSlabBelowFirstBound(t *testing.T) {
	pt := statutory.MaharashtraPT("pt", "c1", created)
	_, found := pt.Amount(d("-10"), time.March)
	assert.False(t, found)
}

func TestProfessionalTax_OffCycleMonthIsZero(t *testing.T) {
	pt := statutory.MaharashtraPT("pt", "c1", created)
	pt.Cycle = statutory.DeductionCycle{Frequency: statutory.FrequencyQuarterly, StartMonth: time.April}

	amount, found := pt.Amount(d("20000"), time.May)
	assert.True(t, found)
	assert.True(t, amount.IsZero())
}

// =============================================================================
// LWF / BONUS
// =============================================================================

func TestLabourWelfare_OnlyInCycleMonths(t *testing.T) {
	lwf := statutory.MaharashtraLWF("lwf", "c1", created)

	assertDecimal(t, "25", lwf.Contribution(time.June).Total)
	assertDecimal(t, "25", lwf.Contribution(time.December).Total)
	assert.True(t, lwf.Contribution(time.July).Total.IsZero())

	lwf.Active = false
	assert.True(t, lwf.Contribution(time.June).Total.IsZero())
}

func TestBonus_PayoutMonthOnly(t *testing.T) {
	b := statutory.StandardBonus("bonus", "c1", created)

	assertDecimal(t, "49980", b.Amount(d("600000"), time.October))
	assert.True(t, b.Amount(d("600000"), time.November).IsZero())
}

// =============================================================================
// GRATUITY / LEAVE ENCASHMENT
// =============================================================================

func TestGratuity_Payout(t *testing.T) {
	g := statutory.StandardGratuity("g", "c1", created)

	amount, ok := g.Payout(d("26000"), 10)
	require.True(t, ok)
	assertDecimal(t, "150000", amount)

	_, ok = g.Payout(d("26000"), 4)
	assert.False(t, ok, "below vesting")

	g.MaxYears = 5
	amount, _ = g.Payout(d("26000"), 10)
	assertDecimal(t, "75000", amount)

	ceiling := d("50000")
	g.MaxAmount = &ceiling
	amount, _ = g.Payout(d("26000"), 10)
	assertDecimal(t, "50000", amount)
}

func TestLeaveEncashment_Payout(t *testing.T) {
	l := statutory.StandardLeaveEncashment("le", "c1", created)

	amount, ok := l.Payout(d("36500"), d("10"), 2)
	require.True(t, ok)
	assertDecimal(t, "12000", amount)

	amount, _ = l.Payout(d("36500"), d("40"), 2)
	assertDecimal(t, "36000", amount)

	_, ok = l.Payout(d("36500"), d("10"), 0)
	assert.False(t, ok)
}

// =============================================================================
// CATALOG LOOKUPS
// =============================================================================

func TestCatalog_LatestDefaultWinsAndReportsAnomaly(t *testing.T) {
	older := statutory.StandardBonus("bonus-old", "c1", created)
	newer := statutory.StandardBonus("bonus-new", "c1", created.AddDate(0, 1, 0))
	cat := &statutory.Catalog{CompanyID: "c1", Bonuses: []statutory.Bonus{older, newer}}

	got, anomaly, ok := cat.Bonus("")
	require.True(t, ok)
	assert.Equal(t, "bonus-new", got.ID)
	require.NotNil(t, anomaly)
	assert.Equal(t, statutory.KindBonus, anomaly.Kind)
	assert.ElementsMatch(t, []string{"bonus-old", "bonus-new"}, anomaly.RecordIDs)
	assert.Equal(t, "bonus-new", anomaly.Chosen)
}

func TestCatalog_IDAddressedWins(t *testing.T) {
	specific := statutory.StandardBonus("bonus-special", "c1", created)
	specific.IsDefault = false
	def := statutory.StandardBonus("bonus-default", "c1", created.AddDate(0, 1, 0))
	cat := &statutory.Catalog{CompanyID: "c1", Bonuses: []statutory.Bonus{specific, def}}

	got, anomaly, ok := cat.Bonus("bonus-special")
	require.True(t, ok)
	assert.Nil(t, anomaly)
	assert.Equal(t, "bonus-special", got.ID)

	got, _, ok = cat.Bonus("bonus-deleted")
	require.True(t, ok)
	assert.Equal(t, "bonus-default", got.ID, "unknown id falls back to the default")
	assert.True(t, got.Substitutes("bonus-deleted"))
	assert.False(t, got.Substitutes("bonus-default"))
	assert.False(t, got.Substitutes(""), "an empty id asks for the default")
}

func TestDeductionCycle_ZeroMonthIsNeverDue(t *testing.T) {
	monthly := statutory.DeductionCycle{Frequency: statutory.FrequencyMonthly}
	assert.False(t, monthly.Due(0))
	assert.True(t, monthly.Due(time.May))

	bonus := statutory.StandardBonus("b", "c1", created)
	assert.True(t, bonus.Amount(d("100000"), 0).IsZero())
}

func TestCatalog_StateScopedDefaults(t *testing.T) {
	mh := statutory.MaharashtraPT("pt-mh", "c1", created)
	ka := statutory.MaharashtraPT("pt-ka", "c1", created)
	ka.State = "KA"
	cat := &statutory.Catalog{CompanyID: "c1", ProfessionalTax: []statutory.ProfessionalTax{mh, ka}}

	got, anomaly, ok := cat.ProfessionalTaxFor("", "KA")
	require.True(t, ok)
	assert.Nil(t, anomaly)
	assert.Equal(t, "pt-ka", got.ID)

	_, _, ok = cat.ProfessionalTaxFor("", "TN")
	assert.False(t, ok, "no state-less default exists")
}

func TestCatalog_MissingKind(t *testing.T) {
	cat := &statutory.Catalog{CompanyID: "c1"}
	_, _, ok := cat.ProvidentFund("epf")
	assert.False(t, ok)
}
