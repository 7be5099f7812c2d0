/*
Package statutory provides the statutory rule catalog and its formulas.

PURPOSE:
  Holds a company's statutory configurations (provident fund, state
  insurance, professional tax, labour-welfare fund, bonus, gratuity and
  leave encashment) and the kind-specific formulas that turn them into
  monetary amounts. The payroll engine consults this package; it never
  reads rates or slabs directly.

KEY CONCEPTS IN THIS FILE (types.go):
  - Kind: which statutory scheme a record belongs to
  - Record: common header (id, company, default flag, created time)
  - One config struct per kind, carrying only that kind's fields
  - DeductionCycle: monthly/quarterly/half-yearly/yearly due months

PERCENTAGES:
  All rates are stored as percentages (12 means 12%). Formulas divide by
  100 internally.

SEE ALSO:
  - catalog.go: Snapshot with latest-default lookup
  - formulas.go: Contribution formulas
  - presets.go: Common statutory configurations
*/
package statutory

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// KIND
// =============================================================================

type Kind string

const (
	KindProvidentFund     Kind = "epf"
	KindStateInsurance    Kind = "esic"
	KindProfessionalTax   Kind = "pt"
	KindLabourWelfareFund Kind = "lwf"
	KindBonus             Kind = "bonus"
	KindGratuity          Kind = "gratuity"
	KindLeaveEncashment   Kind = "leave_encashment"
)

// ParseKind validates a stored kind string.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindProvidentFund, KindStateInsurance, KindProfessionalTax,
		KindLabourWelfareFund, KindBonus, KindGratuity, KindLeaveEncashment:
		return k, nil
	}
	return "", fmt.Errorf("unknown statutory kind %q", s)
}

// =============================================================================
// RECORD HEADER
// =============================================================================

// Record is the header shared by every statutory configuration.
type Record struct {
	ID        string
	CompanyID string
	IsDefault bool
	CreatedAt time.Time
}

// Substitutes reports whether r answered a lookup for a different,
// non-empty id. That happens when a component references a record that no
// longer exists and the newest default stands in for it.
func (r Record) Substitutes(requested string) bool {
	return requested != "" && r.ID != requested
}

// Config is implemented by every statutory configuration type.
type Config interface {
	Kind() Kind
	Header() Record
}

// =============================================================================
// DEDUCTION CYCLE
// =============================================================================

type Frequency string

const (
	FrequencyMonthly    Frequency = "monthly"
	FrequencyQuarterly  Frequency = "quarterly"
	FrequencyHalfYearly Frequency = "half_yearly"
	FrequencyYearly     Frequency = "yearly"
)

func (f Frequency) step() int {
	switch f {
	case FrequencyQuarterly:
		return 3
	case FrequencyHalfYearly:
		return 6
	case FrequencyYearly:
		return 12
	default:
		return 1
	}
}

// DeductionCycle decides in which months a periodic deduction applies.
// StartMonth anchors the cycle; zero means January.
type DeductionCycle struct {
	Frequency  Frequency
	StartMonth time.Month
}

// Due reports whether the cycle deducts in the given month. The zero
// month is never due; periods that settle no month pass it.
func (c DeductionCycle) Due(month time.Month) bool {
	if month < time.January || month > time.December {
		return false
	}
	start := c.StartMonth
	if start == 0 {
		start = time.January
	}
	diff := (int(month) - int(start) + 12) % 12
	return diff%c.Frequency.step() == 0
}

// =============================================================================
// PROVIDENT FUND
// =============================================================================

type ProvidentFund struct {
	Record
	EmployeeRate decimal.Decimal
	EmployerRate decimal.Decimal

	// Caps on the wage base. Nil means uncapped.
	EmployeeRestrict *decimal.Decimal
	EmployerRestrict *decimal.Decimal

	IncludeEmployerContribution bool
	IncludeEDLI                 bool
	EDLIRate                    decimal.Decimal
	IncludeAdminCharges         bool
	AdminChargeRate             decimal.Decimal
}

func (p ProvidentFund) Kind() Kind     { return KindProvidentFund }
func (p ProvidentFund) Header() Record { return p.Record }

// =============================================================================
// STATE INSURANCE
// =============================================================================

type StateInsurance struct {
	Record
	EmployeeRate                decimal.Decimal
	EmployerRate                decimal.Decimal
	EligibilityCeiling          decimal.Decimal
	IncludeEmployerContribution bool
}

func (s StateInsurance) Kind() Kind     { return KindStateInsurance }
func (s StateInsurance) Header() Record { return s.Record }

// =============================================================================
// PROFESSIONAL TAX
// =============================================================================

// Slab is one flat-amount bracket. A nil Upper is unbounded.
type Slab struct {
	Lower  decimal.Decimal
	Upper  *decimal.Decimal
	Amount decimal.Decimal
}

type ProfessionalTax struct {
	Record
	State string
	Slabs []Slab
	Cycle DeductionCycle
}

func (p ProfessionalTax) Kind() Kind     { return KindProfessionalTax }
func (p ProfessionalTax) Header() Record { return p.Record }

// =============================================================================
// LABOUR WELFARE FUND
// =============================================================================

type LabourWelfareFund struct {
	Record
	State                       string
	EmployeeAmount              decimal.Decimal
	EmployerAmount              decimal.Decimal
	IncludeEmployerContribution bool
	Cycle                       DeductionCycle
	Active                      bool
}

func (l LabourWelfareFund) Kind() Kind     { return KindLabourWelfareFund }
func (l LabourWelfareFund) Header() Record { return l.Record }

// =============================================================================
// STATUTORY BONUS
// =============================================================================

type BonusBasis string

const (
	BonusBasisCTC   BonusBasis = "ctc"
	BonusBasisBasic BonusBasis = "basic"
)

type Bonus struct {
	Record
	Percentage  decimal.Decimal
	PayoutMonth time.Month
	Basis       BonusBasis
}

func (b Bonus) Kind() Kind     { return KindBonus }
func (b Bonus) Header() Record { return b.Record }

// =============================================================================
// GRATUITY
// =============================================================================

type Gratuity struct {
	Record
	EligibilityYears   int
	PresentDaysPerYear decimal.Decimal // e.g. 15
	PaymentDaysPerYear decimal.Decimal // e.g. 26
	MaxYears           int             // 0 = no cap
	MaxAmount          *decimal.Decimal
}

func (g Gratuity) Kind() Kind     { return KindGratuity }
func (g Gratuity) Header() Record { return g.Record }

// =============================================================================
// LEAVE ENCASHMENT
// =============================================================================

type LeaveEncashment struct {
	Record
	EligibilityYears   int
	MaxUnits           decimal.Decimal
	MaxAmount          *decimal.Decimal
	Multiplier         decimal.Decimal
	WorkingDaysPerYear decimal.Decimal
	Frequency          Frequency
}

func (l LeaveEncashment) Kind() Kind     { return KindLeaveEncashment }
func (l LeaveEncashment) Header() Record { return l.Record }
