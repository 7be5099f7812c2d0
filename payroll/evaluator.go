/*
evaluator.go - Template components to monetary amounts

PURPOSE:
  Converts each component of an employee's template into a raw amount
  for one pay period. Evaluation runs in two passes:

    1. Payment-field components (variable and percentage_of_ctc). Their
       earnings and bonuses form the period gross; PF-wage fields form the
       provident-fund base.
    2. Statutory components (epf, esic, pt, lwf, bonus), which read the
       gross and PF base from pass 1.

  Output is sorted by display order, then component id.

CALCULATION MODES:
  variable:           the SalaryFieldValue entered for the field, else 0
  percentage_of_ctc:  ctc * value / 100 / periods-per-year, pro-rated by
                      present/working days (never above 1)
  overtime earnings:  + overtime_hours * hourly * overtime_multiplier,
                      hourly = unprorated base / (working_days * hours_per_day)

STATUTORY FORMULAS:
  See statutory/formulas.go. A missing record evaluates to 0 with a
  MissingStatutoryConfig warning; the component is still emitted. A
  dangling id served by the company default carries a StatutoryFallback
  warning.

  PT, LWF and bonus are charged only in the period that settles a month
  (Period.SettlementMonth), once per month whatever the pay frequency.

FATAL:
  A component without a target, with an unknown classification or with
  a calculation type its target cannot use returns *MalformedComponentError.

SEE ALSO:
  - aggregate.go: Folding evaluated components into totals
  - statutory/catalog.go: Record lookup
*/
package payroll

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/statutory"
)

// EvaluationInput is everything needed to evaluate one employee. No I/O
// happens past this point.
type EvaluationInput struct {
	RunID       RunID
	Employee    Employee
	Period      Period
	Template    PaymentTemplate
	Components  []TemplateComponent
	Fields      []PaymentField
	Values      []SalaryFieldValue
	Attendance  Attendance
	PaySequence PaySequence
	Catalog     *statutory.Catalog
}

// Warning is a recoverable problem attached to a component or employee.
type Warning struct {
	Code    FaultCode
	Message string
}

type EvaluatedComponent struct {
	ComponentID   ComponentID
	Name          string
	ComponentType ComponentType
	TargetType    TargetType
	DisplayOrder  int
	Amount        decimal.Decimal
	Breakdown     *statutory.Contribution
	Warnings      []Warning
}

type Evaluation struct {
	Components []EvaluatedComponent
	Gross      decimal.Decimal
	PFWage     decimal.Decimal
	// Warnings not tied to one component (catalog anomalies).
	Warnings []Warning
}

// Evaluator is stateless; the zero value is ready to use.
type Evaluator struct{}

// PercentageOfCTC is the per-period, attendance-adjusted amount of a
// percentage_of_ctc component.
func PercentageOfCTC(ctc, percent, periodsPerYear decimal.Decimal, att Attendance) decimal.Decimal {
	return prorate(periodBase(ctc, percent, periodsPerYear), att)
}

func periodBase(ctc, percent, periodsPerYear decimal.Decimal) decimal.Decimal {
	return ctc.Mul(percent).Div(decimal.NewFromInt(100)).Div(periodsPerYear)
}

func prorate(base decimal.Decimal, att Attendance) decimal.Decimal {
	if att.ProrationFactor().Equal(decimal.NewFromInt(1)) {
		return base
	}
	if !att.PresentDays.IsPositive() {
		return decimal.Zero
	}
	return base.Mul(att.PresentDays).Div(att.WorkingDays)
}

func (ev Evaluator) Evaluate(in EvaluationInput) (Evaluation, error) {
	components := make([]TemplateComponent, len(in.Components))
	copy(components, in.Components)
	sort.SliceStable(components, func(i, j int) bool {
		if components[i].DisplayOrder == components[j].DisplayOrder {
			return components[i].ID < components[j].ID
		}
		return components[i].DisplayOrder < components[j].DisplayOrder
	})

	fields := make(map[FieldID]PaymentField, len(in.Fields))
	for _, f := range in.Fields {
		fields[f.ID] = f
	}
	values := make(map[FieldID]decimal.Decimal, len(in.Values))
	for _, v := range in.Values {
		values[v.FieldID] = values[v.FieldID].Add(v.Amount)
	}

	st := &evalState{
		in:        in,
		fields:    fields,
		values:    values,
		ctc:       in.Employee.CTC(in.Template),
		anomalies: make(map[string]bool),
	}

	out := make([]EvaluatedComponent, len(components))
	pfWageSeen := false

	// Pass 1: payment fields.
	for i, c := range components {
		if err := validate(c); err != nil {
			return Evaluation{}, err
		}
		target, ok := c.Target.(PaymentFieldTarget)
		if !ok {
			continue
		}
		ec := st.paymentField(c, target)
		out[i] = ec
		if c.ComponentType.AddsToGross() {
			st.gross = st.gross.Add(ec.Amount)
			if f, ok := fields[target.FieldID]; ok && f.PFWage {
				st.pfWage = st.pfWage.Add(ec.Amount)
				pfWageSeen = true
			}
		}
	}
	if !pfWageSeen {
		st.pfWage = st.gross
	}

	// Pass 2: statutory targets.
	for i, c := range components {
		if _, ok := c.Target.(PaymentFieldTarget); ok {
			continue
		}
		out[i] = st.statutory(c)
	}

	return Evaluation{
		Components: out,
		Gross:      st.gross,
		PFWage:     st.pfWage,
		Warnings:   st.warnings,
	}, nil
}

func validate(c TemplateComponent) error {
	if c.Target == nil {
		if c.TargetErr != nil {
			return &MalformedComponentError{ComponentID: c.ID, Reason: c.TargetErr.Error()}
		}
		return &MalformedComponentError{ComponentID: c.ID, Reason: "no target reference"}
	}
	if c.Target.TargetID() == "" {
		return &MalformedComponentError{ComponentID: c.ID, Reason: fmt.Sprintf("empty %s reference", c.Target.TargetType())}
	}
	if !c.ComponentType.Valid() {
		return &MalformedComponentError{ComponentID: c.ID, Reason: fmt.Sprintf("unknown component type %q", c.ComponentType)}
	}
	if _, ok := c.Target.(PaymentFieldTarget); ok && !c.CalculationType.Valid() {
		return &MalformedComponentError{ComponentID: c.ID, Reason: fmt.Sprintf("unknown calculation type %q", c.CalculationType)}
	}
	return nil
}

// =============================================================================
// EVALUATION STATE
// =============================================================================

type evalState struct {
	in        EvaluationInput
	fields    map[FieldID]PaymentField
	values    map[FieldID]decimal.Decimal
	ctc       decimal.Decimal
	gross     decimal.Decimal
	pfWage    decimal.Decimal
	warnings  []Warning
	anomalies map[string]bool
}

func newEvaluated(c TemplateComponent) EvaluatedComponent {
	return EvaluatedComponent{
		ComponentID:   c.ID,
		Name:          c.Name,
		ComponentType: c.ComponentType,
		TargetType:    c.Target.TargetType(),
		DisplayOrder:  c.DisplayOrder,
		Amount:        decimal.Zero,
	}
}

func (st *evalState) paymentField(c TemplateComponent, target PaymentFieldTarget) EvaluatedComponent {
	ec := newEvaluated(c)
	if ec.Name == "" {
		ec.Name = st.fields[target.FieldID].Name
	}

	var unprorated decimal.Decimal
	switch c.CalculationType {
	case CalculationVariable:
		unprorated = st.values[target.FieldID]
		ec.Amount = unprorated
	case CalculationPercentageOfCTC:
		unprorated = periodBase(st.ctc, c.CalculationValue, st.in.PaySequence.Frequency.PeriodsPerYear())
		ec.Amount = prorate(unprorated, st.in.Attendance)
	}

	if c.Overtime && c.ComponentType == ComponentEarning && st.in.Attendance.OvertimeHours.IsPositive() {
		ec.Amount = ec.Amount.Add(st.overtime(unprorated))
	}
	return ec
}

func (st *evalState) overtime(unprorated decimal.Decimal) decimal.Decimal {
	seq := st.in.PaySequence
	hoursPerDay := seq.HoursPerDay
	if !hoursPerDay.IsPositive() {
		hoursPerDay = decimal.NewFromInt(8)
	}
	workingDays := st.in.Attendance.WorkingDays
	if !workingDays.IsPositive() {
		workingDays = decimal.NewFromInt(int64(seq.WorkingDays))
	}
	if !workingDays.IsPositive() {
		return decimal.Zero
	}
	hourly := unprorated.Div(workingDays.Mul(hoursPerDay))
	return st.in.Attendance.OvertimeHours.Mul(hourly).Mul(seq.OvertimeMultiplier)
}

func (st *evalState) statutory(c TemplateComponent) EvaluatedComponent {
	ec := newEvaluated(c)
	if ec.Name == "" {
		ec.Name = strings.ToUpper(string(ec.TargetType))
	}
	cat := st.in.Catalog
	if cat == nil {
		cat = &statutory.Catalog{}
	}
	id := c.Target.TargetID()
	state := st.in.Employee.State
	// Zero when the period closes no month; cycle and payout checks then fail.
	month, _ := st.in.Period.SettlementMonth()

	var (
		found   bool
		anomaly *statutory.Anomaly
		record  statutory.Record
	)
	switch c.Target.(type) {
	case EPFTarget:
		var pf statutory.ProvidentFund
		if pf, anomaly, found = cat.ProvidentFund(id); found {
			contrib := pf.Contribution(st.pfWage)
			ec.Amount, ec.Breakdown, record = contrib.Total, &contrib, pf.Record
		}
	case ESICTarget:
		var esi statutory.StateInsurance
		if esi, anomaly, found = cat.StateInsuranceScheme(id); found {
			contrib := esi.Contribution(st.gross)
			ec.Amount, ec.Breakdown, record = contrib.Total, &contrib, esi.Record
		}
	case PTTarget:
		var pt statutory.ProfessionalTax
		if pt, anomaly, found = cat.ProfessionalTaxFor(id, state); found {
			amount, inSlab := pt.Amount(st.gross, month)
			ec.Amount, record = amount, pt.Record
			if !inSlab {
				ec.Warnings = append(ec.Warnings, Warning{
					Code:    FaultNoSlab,
					Message: fmt.Sprintf("no professional tax slab contains gross %s", st.gross.StringFixed(2)),
				})
			}
		}
	case LWFTarget:
		var lwf statutory.LabourWelfareFund
		if lwf, anomaly, found = cat.LabourWelfareFor(id, state); found {
			contrib := lwf.Contribution(month)
			ec.Amount, ec.Breakdown, record = contrib.Total, &contrib, lwf.Record
		}
	case BonusTarget:
		var bonus statutory.Bonus
		if bonus, anomaly, found = cat.Bonus(id); found {
			ec.Amount, record = bonus.Amount(st.bonusBasis(bonus), month), bonus.Record
		}
	}

	if !found {
		missing := &MissingStatutoryConfigError{ComponentID: c.ID, Target: c.Target.TargetType(), ConfigID: id}
		ec.Amount = decimal.Zero
		ec.Warnings = append(ec.Warnings, Warning{Code: FaultMissingStatutoryConfig, Message: missing.Error()})
	} else if record.Substitutes(id) {
		ec.Warnings = append(ec.Warnings, Warning{
			Code:    FaultStatutoryFallback,
			Message: fmt.Sprintf("component %s: %s configuration %q not found; using default %s",
				c.ID, c.Target.TargetType(), id, record.ID),
		})
	}
	if anomaly != nil {
		st.noteAnomaly(*anomaly)
	}
	return ec
}

// bonusBasis is the annual CTC or the annualised PF wage.
func (st *evalState) bonusBasis(b statutory.Bonus) decimal.Decimal {
	if b.Basis == statutory.BonusBasisBasic {
		return st.pfWage.Mul(st.in.PaySequence.Frequency.PeriodsPerYear())
	}
	return st.ctc
}

func (st *evalState) noteAnomaly(a statutory.Anomaly) {
	msg := a.String()
	if st.anomalies[msg] {
		return
	}
	st.anomalies[msg] = true
	st.warnings = append(st.warnings, Warning{Code: FaultCatalogAnomaly, Message: msg})
}
