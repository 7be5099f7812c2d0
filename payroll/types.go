/*
Package payroll provides the payroll computation engine.

PURPOSE:
  Resolves which payment template applies to an employee, expands the
  template's components into monetary amounts for a pay period, folds
  them into gross/deduction/net totals and guards the run lifecycle that
  decides when those figures may still change.

KEY CONCEPTS IN THIS FILE (types.go):
  - Typed identifiers (EmployeeID, TemplateID, RunID, ...)
  - PaymentTemplate / TemplateComponent with a tagged-union Target
  - TemplateAssignment (employee or site level)
  - Employee, PaySequence, Attendance, SalaryFieldValue
  - PayrollRun, PayrollEntry, Fault

MONEY:
  All amounts are decimal.Decimal. Raw values feed arithmetic; rounding
  to whole currency units (RoundHalfUp) happens only when a value is
  persisted or presented.

SEE ALSO:
  - resolver.go: Template resolution
  - evaluator.go: Component evaluation
  - aggregate.go: Totals and entries
  - lifecycle.go: Run state machine
  - runner.go: Batch orchestration
*/
package payroll

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/statutory"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CompanyID string
type SiteID string
type EmployeeID string
type TemplateID string
type ComponentID string
type FieldID string
type RunID string

// =============================================================================
// MONEY
// =============================================================================

var half = decimal.NewFromFloat(0.5)

// RoundHalfUp rounds to whole currency units, halves toward +infinity.
func RoundHalfUp(d decimal.Decimal) decimal.Decimal {
	return d.Add(half).Floor()
}

// =============================================================================
// COMPONENT CLASSIFICATION
// =============================================================================

type ComponentType string

const (
	ComponentEarning               ComponentType = "earning"
	ComponentDeduction             ComponentType = "deduction"
	ComponentStatutoryContribution ComponentType = "statutory_contribution"
	ComponentBonus                 ComponentType = "bonus"
	ComponentOther                 ComponentType = "other"
)

func (c ComponentType) Valid() bool {
	switch c {
	case ComponentEarning, ComponentDeduction, ComponentStatutoryContribution, ComponentBonus, ComponentOther:
		return true
	}
	return false
}

// AddsToGross is true for earnings and bonuses.
func (c ComponentType) AddsToGross() bool { return c == ComponentEarning || c == ComponentBonus }

// AddsToDeduction is true for deductions and statutory contributions.
func (c ComponentType) AddsToDeduction() bool {
	return c == ComponentDeduction || c == ComponentStatutoryContribution
}

type CalculationType string

const (
	CalculationVariable        CalculationType = "variable"
	CalculationPercentageOfCTC CalculationType = "percentage_of_ctc"
)

func (c CalculationType) Valid() bool {
	return c == CalculationVariable || c == CalculationPercentageOfCTC
}

// =============================================================================
// COMPONENT TARGET - Tagged union over what a component computes
// =============================================================================

type TargetType string

const (
	TargetPaymentField TargetType = "payment_field"
	TargetEPF          TargetType = "epf"
	TargetESIC         TargetType = "esic"
	TargetBonus        TargetType = "bonus"
	TargetPT           TargetType = "pt"
	TargetLWF          TargetType = "lwf"
)

// ComponentTarget is the single foreign reference of a component. Each
// variant carries only the id its calculation needs.
type ComponentTarget interface {
	TargetType() TargetType
	TargetID() string
	sealed()
}

type PaymentFieldTarget struct{ FieldID FieldID }
type EPFTarget struct{ ConfigID string }
type ESICTarget struct{ ConfigID string }
type BonusTarget struct{ ConfigID string }
type PTTarget struct{ ConfigID string }
type LWFTarget struct{ ConfigID string }

func (t PaymentFieldTarget) TargetType() TargetType { return TargetPaymentField }
func (t PaymentFieldTarget) TargetID() string       { return string(t.FieldID) }
func (PaymentFieldTarget) sealed()                  {}

func (t EPFTarget) TargetType() TargetType { return TargetEPF }
func (t EPFTarget) TargetID() string       { return t.ConfigID }
func (EPFTarget) sealed()                  {}

func (t ESICTarget) TargetType() TargetType { return TargetESIC }
func (t ESICTarget) TargetID() string       { return t.ConfigID }
func (ESICTarget) sealed()                  {}

func (t BonusTarget) TargetType() TargetType { return TargetBonus }
func (t BonusTarget) TargetID() string       { return t.ConfigID }
func (BonusTarget) sealed()                  {}

func (t PTTarget) TargetType() TargetType { return TargetPT }
func (t PTTarget) TargetID() string       { return t.ConfigID }
func (PTTarget) sealed()                  {}

func (t LWFTarget) TargetType() TargetType { return TargetLWF }
func (t LWFTarget) TargetID() string       { return t.ConfigID }
func (LWFTarget) sealed()                  {}

// NewTarget rebuilds a target from its flattened storage form.
func NewTarget(targetType string, id string) (ComponentTarget, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: %s target without id", ErrMalformedComponent, targetType)
	}
	switch TargetType(targetType) {
	case TargetPaymentField:
		return PaymentFieldTarget{FieldID: FieldID(id)}, nil
	case TargetEPF:
		return EPFTarget{ConfigID: id}, nil
	case TargetESIC:
		return ESICTarget{ConfigID: id}, nil
	case TargetBonus:
		return BonusTarget{ConfigID: id}, nil
	case TargetPT:
		return PTTarget{ConfigID: id}, nil
	case TargetLWF:
		return LWFTarget{ConfigID: id}, nil
	}
	return nil, fmt.Errorf("%w: unknown target type %q", ErrMalformedComponent, targetType)
}

// StatutoryKind maps statutory targets to their catalog kind.
func StatutoryKind(t ComponentTarget) (statutory.Kind, bool) {
	switch t.(type) {
	case EPFTarget:
		return statutory.KindProvidentFund, true
	case ESICTarget:
		return statutory.KindStateInsurance, true
	case BonusTarget:
		return statutory.KindBonus, true
	case PTTarget:
		return statutory.KindProfessionalTax, true
	case LWFTarget:
		return statutory.KindLabourWelfareFund, true
	}
	return "", false
}

// =============================================================================
// TEMPLATES
// =============================================================================

type PaymentTemplate struct {
	ID        TemplateID
	CompanyID CompanyID
	Name      string
	AnnualCTC decimal.Decimal
	IsActive  bool
	IsDefault bool
	CreatedAt time.Time
}

type TemplateComponent struct {
	ID               ComponentID
	TemplateID       TemplateID
	Name             string
	ComponentType    ComponentType
	CalculationType  CalculationType
	CalculationValue decimal.Decimal
	DisplayOrder     int
	Overtime         bool
	Target           ComponentTarget
	// TargetErr is why a stored target could not be rebuilt; Target is
	// nil when it is set.
	TargetErr error
}

// PaymentField is a named salary head (Basic, HRA, Canteen...). PFWage
// marks the heads that make up the provident-fund wage and the "basic"
// used by bonus and settlements.
type PaymentField struct {
	ID        FieldID
	CompanyID CompanyID
	Name      string
	Code      string
	Type      ComponentType
	PFWage    bool
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

type AssignmentType string

const (
	AssignEmployee AssignmentType = "employee"
	AssignSite     AssignmentType = "site"
)

type Eligibility string

const (
	EligibilityPosition   Eligibility = "position"
	EligibilitySkillLevel Eligibility = "skill_level"
)

type TemplateAssignment struct {
	ID               string
	CompanyID        CompanyID
	TemplateID       TemplateID
	Type             AssignmentType
	EmployeeID       EmployeeID
	SiteID           SiteID
	Eligibility      Eligibility
	EligibilityValue string
	EffectiveFrom    time.Time
	EffectiveTo      *time.Time // nil = open ended
	IsActive         bool
	CreatedAt        time.Time
}

// Covers reports whether the assignment is active for the whole period.
func (a TemplateAssignment) Covers(p Period) bool {
	if !a.IsActive {
		return false
	}
	return Period{Start: a.EffectiveFrom, End: openEnd(a.EffectiveTo)}.Covers(p)
}

// =============================================================================
// EMPLOYEES AND INPUTS
// =============================================================================

type Employee struct {
	ID          EmployeeID
	CompanyID   CompanyID
	SiteID      SiteID
	Name        string
	Position    string
	SkillLevel  string
	State       string
	JoinedOn    time.Time
	ExitedOn    *time.Time
	CTCOverride *decimal.Decimal
	Active      bool
}

// InScope reports whether the employee belongs in a run for period p.
func (e Employee) InScope(p Period) bool {
	if !e.Active {
		return false
	}
	if !e.JoinedOn.IsZero() && dateOf(e.JoinedOn).After(p.End) {
		return false
	}
	if e.ExitedOn != nil && dateOf(*e.ExitedOn).Before(p.Start) {
		return false
	}
	return true
}

// CompletedYears counts whole years of service at the given date.
func (e Employee) CompletedYears(at time.Time) int {
	if e.JoinedOn.IsZero() || at.Before(e.JoinedOn) {
		return 0
	}
	years := at.Year() - e.JoinedOn.Year()
	anniversary := e.JoinedOn.AddDate(years, 0, 0)
	if at.Before(anniversary) {
		years--
	}
	return years
}

// CTC is the override when present, otherwise the template's figure.
func (e Employee) CTC(t PaymentTemplate) decimal.Decimal {
	if e.CTCOverride != nil {
		return *e.CTCOverride
	}
	return t.AnnualCTC
}

type PayFrequency string

const (
	PayMonthly     PayFrequency = "monthly"
	PaySemiMonthly PayFrequency = "semi_monthly"
	PayBiweekly    PayFrequency = "biweekly"
	PayWeekly      PayFrequency = "weekly"
)

// PeriodsPerYear is the divisor applied to annual figures.
func (f PayFrequency) PeriodsPerYear() decimal.Decimal {
	switch f {
	case PaySemiMonthly:
		return decimal.NewFromInt(24)
	case PayBiweekly:
		return decimal.NewFromInt(26)
	case PayWeekly:
		return decimal.NewFromInt(52)
	default:
		return decimal.NewFromInt(12)
	}
}

type PaySequence struct {
	CompanyID          CompanyID
	Frequency          PayFrequency
	WorkingDays        int
	PayDay             int
	OvertimeMultiplier decimal.Decimal
	HoursPerDay        decimal.Decimal
}

// DefaultPaySequence is used when a company has not configured one.
func DefaultPaySequence(companyID CompanyID) PaySequence {
	return PaySequence{
		CompanyID:          companyID,
		Frequency:          PayMonthly,
		WorkingDays:        26,
		PayDay:             1,
		OvertimeMultiplier: decimal.NewFromInt(2),
		HoursPerDay:        decimal.NewFromInt(8),
	}
}

type Attendance struct {
	EmployeeID    EmployeeID
	Period        Period
	PresentDays   decimal.Decimal
	WorkingDays   decimal.Decimal
	OvertimeHours decimal.Decimal
}

// SalaryFieldValue is a manually entered amount for a variable component.
type SalaryFieldValue struct {
	RunID      RunID
	EmployeeID EmployeeID
	FieldID    FieldID
	Amount     decimal.Decimal
	Type       ComponentType
}

// =============================================================================
// RUNS AND ENTRIES
// =============================================================================

type RunStatus string

const (
	RunPending  RunStatus = "pending"
	RunApproved RunStatus = "approved"
	RunCreated  RunStatus = "created"
)

// Locked is true once entries may no longer change.
func (s RunStatus) Locked() bool { return s != RunPending }

// RunScope selects the employees of a run. An empty SiteID means the
// whole company.
type RunScope struct {
	CompanyID CompanyID
	SiteID    SiteID
}

type PayrollRun struct {
	ID             RunID
	CompanyID      CompanyID
	SiteID         SiteID
	Period         Period
	Status         RunStatus
	RunDate        time.Time
	TotalEmployees int
	TotalNetAmount decimal.Decimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (r PayrollRun) Scope() RunScope { return RunScope{CompanyID: r.CompanyID, SiteID: r.SiteID} }

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

// PayrollEntry is unique per (EmployeeID, PayrollID, ComponentID).
type PayrollEntry struct {
	ID            string
	EmployeeID    EmployeeID
	PayrollID     RunID
	ComponentID   ComponentID
	Name          string
	ComponentType ComponentType
	DisplayOrder  int
	Amount        decimal.Decimal // whole units
	RawAmount     decimal.Decimal
	PaymentStatus PaymentStatus
	Warnings      []string
}

type FaultCode string

const (
	FaultNoTemplateFound        FaultCode = "no_template_found"
	FaultMissingStatutoryConfig FaultCode = "missing_statutory_config"
	FaultMalformedComponent     FaultCode = "malformed_component"
	FaultAttendanceMissing      FaultCode = "attendance_missing"
	FaultDataAccess             FaultCode = "data_access_failure"
	FaultCatalogAnomaly         FaultCode = "catalog_anomaly"
	FaultStatutoryFallback      FaultCode = "statutory_fallback"
	FaultNoSlab                 FaultCode = "no_pt_slab"
	FaultNegativeNet            FaultCode = "negative_net"
)

// Fault is an employee- or component-scoped problem found while
// computing a run. Fatal faults mean the employee has no entries.
type Fault struct {
	RunID       RunID
	EmployeeID  EmployeeID
	ComponentID ComponentID
	Code        FaultCode
	Message     string
	Fatal       bool
}
