package statutory

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

func percentOf(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Div(hundred)
}

func capped(base decimal.Decimal, limit *decimal.Decimal) decimal.Decimal {
	if limit != nil && base.GreaterThan(*limit) {
		return *limit
	}
	return base
}

// Contribution is the split of one statutory amount. Total is the part
// that lands on the employee's payroll line.
type Contribution struct {
	Employee decimal.Decimal
	Employer decimal.Decimal
	EDLI     decimal.Decimal
	Admin    decimal.Decimal
	Total    decimal.Decimal
}

// =============================================================================
// PROVIDENT FUND
// =============================================================================

// Contribution computes PF on the wage base. Each side applies its own
// restrict value; EDLI and admin charges use the employer-side base.
func (p ProvidentFund) Contribution(base decimal.Decimal) Contribution {
	employeeBase := capped(base, p.EmployeeRestrict)
	employerBase := capped(base, p.EmployerRestrict)

	c := Contribution{
		Employee: percentOf(employeeBase, p.EmployeeRate),
		Employer: percentOf(employerBase, p.EmployerRate),
	}
	c.Total = c.Employee
	if p.IncludeEmployerContribution {
		c.Total = c.Total.Add(c.Employer)
	}
	if p.IncludeEDLI {
		c.EDLI = percentOf(employerBase, p.EDLIRate)
		c.Total = c.Total.Add(c.EDLI)
	}
	if p.IncludeAdminCharges {
		c.Admin = percentOf(employerBase, p.AdminChargeRate)
		c.Total = c.Total.Add(c.Admin)
	}
	return c
}

// =============================================================================
// STATE INSURANCE
// =============================================================================

// Eligible reports whether gross for the period is within the ceiling.
func (s StateInsurance) Eligible(gross decimal.Decimal) bool {
	return gross.LessThanOrEqual(s.EligibilityCeiling)
}

// Contribution returns zero for a period whose gross exceeds the ceiling.
func (s StateInsurance) Contribution(gross decimal.Decimal) Contribution {
	if !s.Eligible(gross) {
		return Contribution{}
	}
	c := Contribution{
		Employee: percentOf(gross, s.EmployeeRate),
		Employer: percentOf(gross, s.EmployerRate),
	}
	c.Total = c.Employee
	if s.IncludeEmployerContribution {
		c.Total = c.Total.Add(c.Employer)
	}
	return c
}

// =============================================================================
// PROFESSIONAL TAX
// =============================================================================

// SlabFor returns the slab whose [Lower, Upper] contains gross. A gross
// that falls between two whole-unit bounds (15000.40 between 15000 and
// 15001) belongs to the lower slab.
func (p ProfessionalTax) SlabFor(gross decimal.Decimal) (Slab, bool) {
	slabs := make([]Slab, len(p.Slabs))
	copy(slabs, p.Slabs)
	sort.SliceStable(slabs, func(i, j int) bool { return slabs[i].Lower.LessThan(slabs[j].Lower) })

	var below *Slab
	for i := range slabs {
		s := slabs[i]
		if gross.LessThan(s.Lower) {
			if below != nil {
				return *below, true
			}
			break
		}
		if s.Upper == nil || gross.LessThanOrEqual(*s.Upper) {
			return s, true
		}
		below = &slabs[i]
	}
	return Slab{}, false
}

// Amount is the flat tax for gross in the given month. found is false
// when no slab covers gross.
func (p ProfessionalTax) Amount(gross decimal.Decimal, month time.Month) (amount decimal.Decimal, found bool) {
	slab, ok := p.SlabFor(gross)
	if !ok {
		return decimal.Zero, false
	}
	if !p.Cycle.Due(month) {
		return decimal.Zero, true
	}
	return slab.Amount, true
}

// =============================================================================
// LABOUR WELFARE FUND
// =============================================================================

// Contribution returns the fixed amounts in cycle months, zero otherwise.
func (l LabourWelfareFund) Contribution(month time.Month) Contribution {
	if !l.Active || !l.Cycle.Due(month) {
		return Contribution{}
	}
	c := Contribution{Employee: l.EmployeeAmount, Employer: l.EmployerAmount}
	c.Total = c.Employee
	if l.IncludeEmployerContribution {
		c.Total = c.Total.Add(c.Employer)
	}
	return c
}

// =============================================================================
// BONUS
// =============================================================================

// Amount is basis * Percentage in the payout month and zero otherwise.
func (b Bonus) Amount(basis decimal.Decimal, month time.Month) decimal.Decimal {
	if month == 0 || month != b.PayoutMonth {
		return decimal.Zero
	}
	return percentOf(basis, b.Percentage)
}

// =============================================================================
// GRATUITY
// =============================================================================

// Payout computes gratuity on the last drawn monthly basic:
//
//	basic * PresentDaysPerYear / PaymentDaysPerYear * years
//
// years is capped at MaxYears and the result at MaxAmount.
func (g Gratuity) Payout(monthlyBasic decimal.Decimal, completedYears int) (decimal.Decimal, bool) {
	if completedYears < g.EligibilityYears || g.PaymentDaysPerYear.IsZero() {
		return decimal.Zero, false
	}
	years := completedYears
	if g.MaxYears > 0 && years > g.MaxYears {
		years = g.MaxYears
	}
	amount := monthlyBasic.
		Mul(g.PresentDaysPerYear).
		Div(g.PaymentDaysPerYear).
		Mul(decimal.NewFromInt(int64(years)))
	return capped(amount, g.MaxAmount), true
}

// =============================================================================
// LEAVE ENCASHMENT
// =============================================================================

// Payout values encashable leave at the daily rate derived from the
// annualised basic, scaled by Multiplier and capped at MaxAmount.
func (l LeaveEncashment) Payout(monthlyBasic, leaves decimal.Decimal, completedYears int) (decimal.Decimal, bool) {
	if completedYears < l.EligibilityYears || l.WorkingDaysPerYear.IsZero() {
		return decimal.Zero, false
	}
	units := leaves
	if l.MaxUnits.IsPositive() && units.GreaterThan(l.MaxUnits) {
		units = l.MaxUnits
	}
	if units.IsNegative() {
		units = decimal.Zero
	}
	multiplier := l.Multiplier
	if multiplier.IsZero() {
		multiplier = decimal.NewFromInt(1)
	}
	daily := monthlyBasic.Mul(decimal.NewFromInt(12)).Div(l.WorkingDaysPerYear)
	return capped(daily.Mul(units).Mul(multiplier), l.MaxAmount), true
}
