/*
Package factory converts company configuration documents into payroll
configuration.

PURPOSE:
  A company's payroll setup (payment fields, salary templates and their
  components, template assignments, statutory schemes, pay calendar,
  employees and attendance) can be described in one YAML document and
  loaded without code changes. JSON documents are accepted too, since
  JSON is valid YAML.

DOCUMENT:
  version: 1
  company: acme
  pay_sequence: {frequency: monthly, working_days: 26, pay_day: 1}
  fields:
    - {id: basic, name: Basic, type: earning, pf_wage: true}
  templates:
    - id: tpl-std
      name: Standard
      annual_ctc: 600000
      default: true
      components:
        - {name: Basic, type: earning, calculation: percentage_of_ctc,
           value: 50, order: 1, target: {type: payment_field, id: basic}}
        - {name: EPF, type: statutory_contribution, order: 10,
           target: {type: epf, id: epf-std}}
  assignments:
    - {id: as-1, template: tpl-guard, site: site-1,
       eligibility: position, value: guard, from: 2025-01-01}
  statutory:
    presets: standard
    professional_tax:
      - id: pt-ka
        state: KA
        slabs: [{lower: 0, upper: 24999, amount: 0}, {lower: 25000, amount: 200}]
  employees:
    - {id: emp-1, name: Asha, site: site-1, position: guard, state: MH, joined_on: 2020-01-06}
  attendance:
    - {employee: emp-1, month: 2025-03, present_days: 25, working_days: 26}

VALIDATION:
  Parsing is strict: unknown enum values, malformed component targets
  and unparseable amounts are errors. Stores accept whatever Apply
  writes.

USAGE:
  doc, err := factory.LoadFile("seed/acme.yaml")
  if err != nil {
      return err
  }
  if err := doc.Apply(ctx, store); err != nil {
      return err
  }

SEE ALSO:
  - statutory/presets.go: Preset schemes used by "presets: standard"
  - api/scenarios.go: Demo company built from a document
*/
package factory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/statutory"
	"gopkg.in/yaml.v3"
)

// SupportedVersion is the only accepted document version.
const SupportedVersion = 1

// =============================================================================
// SCALAR TYPES
// =============================================================================

// Amount is a decimal written as a YAML number or string.
type Amount struct{ decimal.Decimal }

func (a *Amount) UnmarshalYAML(value *yaml.Node) error {
	d, err := decimal.NewFromString(strings.TrimSpace(value.Value))
	if err != nil {
		return fmt.Errorf("line %d: invalid amount %q", value.Line, value.Value)
	}
	a.Decimal = d
	return nil
}

func (a *Amount) ptr() *decimal.Decimal {
	if a == nil {
		return nil
	}
	d := a.Decimal
	return &d
}

// Date is a calendar date written as 2006-01-02.
type Date struct{ time.Time }

func (d *Date) UnmarshalYAML(value *yaml.Node) error {
	t, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(value.Value), time.UTC)
	if err != nil {
		return fmt.Errorf("line %d: invalid date %q", value.Line, value.Value)
	}
	d.Time = t
	return nil
}

func (d *Date) ptr() *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}

// Month is a month number (1-12) or English name.
type Month time.Month

func (m *Month) UnmarshalYAML(value *yaml.Node) error {
	s := strings.TrimSpace(value.Value)
	if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= 12 {
		*m = Month(n)
		return nil
	}
	for i := time.January; i <= time.December; i++ {
		if strings.EqualFold(s, i.String()) || strings.EqualFold(s, i.String()[:3]) {
			*m = Month(i)
			return nil
		}
	}
	return fmt.Errorf("line %d: invalid month %q", value.Line, value.Value)
}

// =============================================================================
// DOCUMENT SCHEMA
// =============================================================================

type Document struct {
	Version     int             `yaml:"version"`
	Company     string          `yaml:"company"`
	CreatedAt   *Date           `yaml:"created_at"`
	PaySequence *PaySequenceDoc `yaml:"pay_sequence"`
	Fields      []FieldDoc      `yaml:"fields"`
	Templates   []TemplateDoc   `yaml:"templates"`
	Assignments []AssignmentDoc `yaml:"assignments"`
	Statutory   StatutoryDoc    `yaml:"statutory"`
	Employees   []EmployeeDoc   `yaml:"employees"`
	Attendance  []AttendanceDoc `yaml:"attendance"`
}

type PaySequenceDoc struct {
	Frequency          string  `yaml:"frequency"`
	WorkingDays        int     `yaml:"working_days"`
	PayDay             int     `yaml:"pay_day"`
	OvertimeMultiplier *Amount `yaml:"overtime_multiplier"`
	HoursPerDay        *Amount `yaml:"hours_per_day"`
}

type FieldDoc struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Code   string `yaml:"code"`
	Type   string `yaml:"type"`
	PFWage bool   `yaml:"pf_wage"`
}

type TemplateDoc struct {
	ID         string         `yaml:"id"`
	Name       string         `yaml:"name"`
	AnnualCTC  Amount         `yaml:"annual_ctc"`
	Default    bool           `yaml:"default"`
	Active     *bool          `yaml:"active"` // default true
	CreatedAt  *Date          `yaml:"created_at"`
	Components []ComponentDoc `yaml:"components"`
}

type ComponentDoc struct {
	ID          string    `yaml:"id"`
	Name        string    `yaml:"name"`
	Type        string    `yaml:"type"`
	Calculation string    `yaml:"calculation"`
	Value       *Amount   `yaml:"value"`
	Order       int       `yaml:"order"`
	Overtime    bool      `yaml:"overtime"`
	Target      TargetDoc `yaml:"target"`
}

type TargetDoc struct {
	Type string `yaml:"type"`
	ID   string `yaml:"id"`
}

type AssignmentDoc struct {
	ID          string `yaml:"id"`
	Template    string `yaml:"template"`
	Employee    string `yaml:"employee"`
	Site        string `yaml:"site"`
	Eligibility string `yaml:"eligibility"`
	Value       string `yaml:"value"`
	From        Date   `yaml:"from"`
	To          *Date  `yaml:"to"`
	Active      *bool  `yaml:"active"`
	CreatedAt   *Date  `yaml:"created_at"`
}

type EmployeeDoc struct {
	ID          string  `yaml:"id"`
	Name        string  `yaml:"name"`
	Site        string  `yaml:"site"`
	Position    string  `yaml:"position"`
	SkillLevel  string  `yaml:"skill_level"`
	State       string  `yaml:"state"`
	JoinedOn    Date    `yaml:"joined_on"`
	ExitedOn    *Date   `yaml:"exited_on"`
	CTCOverride *Amount `yaml:"ctc_override"`
	Active      *bool   `yaml:"active"`
}

type AttendanceDoc struct {
	Employee      string  `yaml:"employee"`
	Month         string  `yaml:"month"` // 2006-01
	From          *Date   `yaml:"from"`
	To            *Date   `yaml:"to"`
	PresentDays   Amount  `yaml:"present_days"`
	WorkingDays   Amount  `yaml:"working_days"`
	OvertimeHours *Amount `yaml:"overtime_hours"`
}

type StatutoryDoc struct {
	Presets         string               `yaml:"presets"` // "standard" or empty
	ProvidentFunds  []ProvidentFundDoc   `yaml:"provident_funds"`
	StateInsurance  []StateInsuranceDoc  `yaml:"state_insurance"`
	ProfessionalTax []ProfessionalTaxDoc `yaml:"professional_tax"`
	LabourWelfare   []LabourWelfareDoc   `yaml:"labour_welfare"`
	Bonuses         []BonusDoc           `yaml:"bonuses"`
	Gratuities      []GratuityDoc        `yaml:"gratuities"`
	Encashments     []EncashmentDoc      `yaml:"leave_encashments"`
}

type RecordDoc struct {
	ID        string `yaml:"id"`
	Default   bool   `yaml:"default"`
	CreatedAt *Date  `yaml:"created_at"`
}

type ProvidentFundDoc struct {
	RecordDoc                   `yaml:",inline"`
	EmployeeRate                Amount  `yaml:"employee_rate"`
	EmployerRate                Amount  `yaml:"employer_rate"`
	EmployeeRestrict            *Amount `yaml:"employee_restrict"`
	EmployerRestrict            *Amount `yaml:"employer_restrict"`
	IncludeEmployerContribution bool    `yaml:"include_employer_contribution"`
	IncludeEDLI                 bool    `yaml:"include_edli"`
	EDLIRate                    *Amount `yaml:"edli_rate"`
	IncludeAdminCharges         bool    `yaml:"include_admin_charges"`
	AdminChargeRate             *Amount `yaml:"admin_charge_rate"`
}

type StateInsuranceDoc struct {
	RecordDoc                   `yaml:",inline"`
	EmployeeRate                Amount `yaml:"employee_rate"`
	EmployerRate                Amount `yaml:"employer_rate"`
	EligibilityCeiling          Amount `yaml:"eligibility_ceiling"`
	IncludeEmployerContribution bool   `yaml:"include_employer_contribution"`
}

type SlabDoc struct {
	Lower  Amount  `yaml:"lower"`
	Upper  *Amount `yaml:"upper"`
	Amount Amount  `yaml:"amount"`
}

type CycleDoc struct {
	Frequency  string `yaml:"frequency"`
	StartMonth *Month `yaml:"start_month"`
}

type ProfessionalTaxDoc struct {
	RecordDoc `yaml:",inline"`
	State     string    `yaml:"state"`
	Slabs     []SlabDoc `yaml:"slabs"`
	Cycle     CycleDoc  `yaml:"cycle"`
}

type LabourWelfareDoc struct {
	RecordDoc                   `yaml:",inline"`
	State                       string   `yaml:"state"`
	EmployeeAmount              Amount   `yaml:"employee_amount"`
	EmployerAmount              Amount   `yaml:"employer_amount"`
	IncludeEmployerContribution bool     `yaml:"include_employer_contribution"`
	Cycle                       CycleDoc `yaml:"cycle"`
	Active                      *bool    `yaml:"active"`
}

type BonusDoc struct {
	RecordDoc   `yaml:",inline"`
	Percentage  Amount `yaml:"percentage"`
	PayoutMonth Month  `yaml:"payout_month"`
	Basis       string `yaml:"basis"`
}

type GratuityDoc struct {
	RecordDoc          `yaml:",inline"`
	EligibilityYears   int     `yaml:"eligibility_years"`
	PresentDaysPerYear Amount  `yaml:"present_days_per_year"`
	PaymentDaysPerYear Amount  `yaml:"payment_days_per_year"`
	MaxYears           int     `yaml:"max_years"`
	MaxAmount          *Amount `yaml:"max_amount"`
}

type EncashmentDoc struct {
	RecordDoc          `yaml:",inline"`
	EligibilityYears   int     `yaml:"eligibility_years"`
	MaxUnits           Amount  `yaml:"max_units"`
	MaxAmount          *Amount `yaml:"max_amount"`
	Multiplier         *Amount `yaml:"multiplier"`
	WorkingDaysPerYear Amount  `yaml:"working_days_per_year"`
	Frequency          string  `yaml:"frequency"`
}

// =============================================================================
// COMPANY CONFIGURATION
// =============================================================================

// Company is a parsed, validated document.
type Company struct {
	ID          payroll.CompanyID
	PaySequence *payroll.PaySequence
	Fields      []payroll.PaymentField
	Templates   []payroll.PaymentTemplate
	Components  []payroll.TemplateComponent
	Assignments []payroll.TemplateAssignment
	Statutory   []statutory.Config
	Employees   []payroll.Employee
	Attendance  []payroll.Attendance
}

// LoadFile reads and parses a document from disk.
func LoadFile(path string) (*Company, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read company document: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML or JSON document.
func Parse(data []byte) (*Company, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse company document: %w", err)
	}
	return doc.Build()
}

// Build validates the document and converts it to payroll types.
func (d Document) Build() (*Company, error) {
	if d.Version != SupportedVersion {
		return nil, fmt.Errorf("company document: unsupported version %d", d.Version)
	}
	if strings.TrimSpace(d.Company) == "" {
		return nil, errors.New("company document: company is required")
	}

	b := builder{company: payroll.CompanyID(d.Company), created: time.Unix(0, 0).UTC()}
	if d.CreatedAt != nil {
		b.created = d.CreatedAt.Time
	}
	c := &Company{ID: b.company}

	if d.PaySequence != nil {
		seq, err := b.paySequence(*d.PaySequence)
		if err != nil {
			return nil, err
		}
		c.PaySequence = &seq
	}
	for _, fd := range d.Fields {
		f, err := b.field(fd)
		if err != nil {
			return nil, err
		}
		c.Fields = append(c.Fields, f)
	}
	for _, td := range d.Templates {
		t, comps, err := b.template(td)
		if err != nil {
			return nil, err
		}
		c.Templates = append(c.Templates, t)
		c.Components = append(c.Components, comps...)
	}
	for _, ad := range d.Assignments {
		a, err := b.assignment(ad)
		if err != nil {
			return nil, err
		}
		c.Assignments = append(c.Assignments, a)
	}
	configs, err := b.statutory(d.Statutory)
	if err != nil {
		return nil, err
	}
	c.Statutory = configs
	for _, ed := range d.Employees {
		e, err := b.employee(ed)
		if err != nil {
			return nil, err
		}
		c.Employees = append(c.Employees, e)
	}
	for _, ad := range d.Attendance {
		a, err := b.attendance(ad)
		if err != nil {
			return nil, err
		}
		c.Attendance = append(c.Attendance, a)
	}
	return c, nil
}

// Apply writes every record through the admin store. Existing records
// with the same ids are replaced.
func (c *Company) Apply(ctx context.Context, store payroll.AdminStore) error {
	if c.PaySequence != nil {
		if err := store.SavePaySequence(ctx, *c.PaySequence); err != nil {
			return fmt.Errorf("save pay sequence: %w", err)
		}
	}
	for _, f := range c.Fields {
		if err := store.SavePaymentField(ctx, f); err != nil {
			return fmt.Errorf("save field %s: %w", f.ID, err)
		}
	}
	for _, t := range c.Templates {
		if err := store.SaveTemplate(ctx, t); err != nil {
			return fmt.Errorf("save template %s: %w", t.ID, err)
		}
	}
	for _, comp := range c.Components {
		if err := store.SaveComponent(ctx, comp); err != nil {
			return fmt.Errorf("save component %s: %w", comp.ID, err)
		}
	}
	for _, a := range c.Assignments {
		if err := store.SaveAssignment(ctx, a); err != nil {
			return fmt.Errorf("save assignment %s: %w", a.ID, err)
		}
	}
	for _, cfg := range c.Statutory {
		if err := store.SaveStatutory(ctx, cfg); err != nil {
			return fmt.Errorf("save %s %s: %w", cfg.Kind(), cfg.Header().ID, err)
		}
	}
	for _, e := range c.Employees {
		if err := store.SaveEmployee(ctx, e); err != nil {
			return fmt.Errorf("save employee %s: %w", e.ID, err)
		}
	}
	for _, a := range c.Attendance {
		if err := store.SaveAttendance(ctx, a); err != nil {
			return fmt.Errorf("save attendance %s %s: %w", a.EmployeeID, a.Period, err)
		}
	}
	return nil
}

// =============================================================================
// BUILDERS
// =============================================================================

type builder struct {
	company payroll.CompanyID
	created time.Time
}

func (b builder) createdAt(d *Date) time.Time {
	if d != nil {
		return d.Time
	}
	return b.created
}

func (b builder) paySequence(sd PaySequenceDoc) (payroll.PaySequence, error) {
	seq := payroll.DefaultPaySequence(b.company)
	if sd.Frequency != "" {
		freq := payroll.PayFrequency(sd.Frequency)
		switch freq {
		case payroll.PayMonthly, payroll.PaySemiMonthly, payroll.PayBiweekly, payroll.PayWeekly:
			seq.Frequency = freq
		default:
			return seq, fmt.Errorf("pay_sequence: unknown frequency %q", sd.Frequency)
		}
	}
	if sd.WorkingDays > 0 {
		seq.WorkingDays = sd.WorkingDays
	}
	if sd.PayDay > 0 {
		seq.PayDay = sd.PayDay
	}
	if sd.OvertimeMultiplier != nil {
		seq.OvertimeMultiplier = sd.OvertimeMultiplier.Decimal
	}
	if sd.HoursPerDay != nil {
		seq.HoursPerDay = sd.HoursPerDay.Decimal
	}
	return seq, nil
}

func (b builder) field(fd FieldDoc) (payroll.PaymentField, error) {
	if fd.ID == "" {
		return payroll.PaymentField{}, errors.New("field: id is required")
	}
	typ := payroll.ComponentType(fd.Type)
	if fd.Type == "" {
		typ = payroll.ComponentEarning
	}
	if !typ.Valid() {
		return payroll.PaymentField{}, fmt.Errorf("field %s: unknown type %q", fd.ID, fd.Type)
	}
	return payroll.PaymentField{
		ID: payroll.FieldID(fd.ID), CompanyID: b.company, Name: orDefault(fd.Name, fd.ID),
		Code: fd.Code, Type: typ, PFWage: fd.PFWage,
	}, nil
}

func (b builder) template(td TemplateDoc) (payroll.PaymentTemplate, []payroll.TemplateComponent, error) {
	if td.ID == "" {
		return payroll.PaymentTemplate{}, nil, errors.New("template: id is required")
	}
	t := payroll.PaymentTemplate{
		ID: payroll.TemplateID(td.ID), CompanyID: b.company, Name: orDefault(td.Name, td.ID),
		AnnualCTC: td.AnnualCTC.Decimal, IsActive: boolOr(td.Active, true), IsDefault: td.Default,
		CreatedAt: b.createdAt(td.CreatedAt),
	}
	if t.AnnualCTC.IsNegative() {
		return t, nil, fmt.Errorf("template %s: annual_ctc must not be negative", td.ID)
	}

	seen := make(map[payroll.ComponentID]bool, len(td.Components))
	comps := make([]payroll.TemplateComponent, 0, len(td.Components))
	for i, cd := range td.Components {
		c, err := component(t.ID, i, cd)
		if err != nil {
			return t, nil, err
		}
		if seen[c.ID] {
			return t, nil, fmt.Errorf("template %s: duplicate component id %s", td.ID, c.ID)
		}
		seen[c.ID] = true
		comps = append(comps, c)
	}
	return t, comps, nil
}

func component(templateID payroll.TemplateID, index int, cd ComponentDoc) (payroll.TemplateComponent, error) {
	id := cd.ID
	if id == "" {
		id = string(templateID) + "-" + slug(orDefault(cd.Name, strconv.Itoa(index+1)))
	}
	where := fmt.Sprintf("template %s component %s", templateID, id)

	typ := payroll.ComponentType(cd.Type)
	if !typ.Valid() {
		return payroll.TemplateComponent{}, fmt.Errorf("%s: unknown type %q", where, cd.Type)
	}
	target, err := payroll.NewTarget(cd.Target.Type, cd.Target.ID)
	if err != nil {
		return payroll.TemplateComponent{}, fmt.Errorf("%s: %w", where, err)
	}
	c := payroll.TemplateComponent{
		ID: payroll.ComponentID(id), TemplateID: templateID, Name: orDefault(cd.Name, id),
		ComponentType: typ, DisplayOrder: cd.Order, Overtime: cd.Overtime, Target: target,
	}
	if cd.Value != nil {
		c.CalculationValue = cd.Value.Decimal
	}

	if _, ok := target.(payroll.PaymentFieldTarget); ok {
		c.CalculationType = payroll.CalculationType(cd.Calculation)
		if cd.Calculation == "" {
			c.CalculationType = payroll.CalculationPercentageOfCTC
		}
		if !c.CalculationType.Valid() {
			return c, fmt.Errorf("%s: unknown calculation %q", where, cd.Calculation)
		}
		if c.CalculationType == payroll.CalculationPercentageOfCTC && cd.Value == nil {
			return c, fmt.Errorf("%s: percentage_of_ctc needs a value", where)
		}
	}
	return c, nil
}

func (b builder) assignment(ad AssignmentDoc) (payroll.TemplateAssignment, error) {
	if ad.ID == "" || ad.Template == "" {
		return payroll.TemplateAssignment{}, errors.New("assignment: id and template are required")
	}
	a := payroll.TemplateAssignment{
		ID: ad.ID, CompanyID: b.company, TemplateID: payroll.TemplateID(ad.Template),
		EffectiveFrom: ad.From.Time, EffectiveTo: ad.To.ptr(),
		IsActive: boolOr(ad.Active, true), CreatedAt: b.createdAt(ad.CreatedAt),
	}
	switch {
	case ad.Employee != "" && ad.Site != "":
		return a, fmt.Errorf("assignment %s: set employee or site, not both", ad.ID)
	case ad.Employee != "":
		a.Type, a.EmployeeID = payroll.AssignEmployee, payroll.EmployeeID(ad.Employee)
	case ad.Site != "":
		a.Type, a.SiteID = payroll.AssignSite, payroll.SiteID(ad.Site)
		a.Eligibility, a.EligibilityValue = payroll.Eligibility(ad.Eligibility), ad.Value
		if a.Eligibility != payroll.EligibilityPosition && a.Eligibility != payroll.EligibilitySkillLevel {
			return a, fmt.Errorf("assignment %s: eligibility must be position or skill_level", ad.ID)
		}
	default:
		return a, fmt.Errorf("assignment %s: employee or site is required", ad.ID)
	}
	if a.EffectiveFrom.IsZero() {
		return a, fmt.Errorf("assignment %s: from is required", ad.ID)
	}
	if a.EffectiveTo != nil && a.EffectiveTo.Before(a.EffectiveFrom) {
		return a, fmt.Errorf("assignment %s: to is before from", ad.ID)
	}
	return a, nil
}

func (b builder) employee(ed EmployeeDoc) (payroll.Employee, error) {
	if ed.ID == "" {
		return payroll.Employee{}, errors.New("employee: id is required")
	}
	e := payroll.Employee{
		ID: payroll.EmployeeID(ed.ID), CompanyID: b.company, SiteID: payroll.SiteID(ed.Site),
		Name: orDefault(ed.Name, ed.ID), Position: ed.Position, SkillLevel: ed.SkillLevel, State: ed.State,
		JoinedOn: ed.JoinedOn.Time, ExitedOn: ed.ExitedOn.ptr(), CTCOverride: ed.CTCOverride.ptr(),
		Active: boolOr(ed.Active, true),
	}
	if e.ExitedOn != nil && e.ExitedOn.Before(e.JoinedOn) {
		return e, fmt.Errorf("employee %s: exited before joining", ed.ID)
	}
	return e, nil
}

func (b builder) attendance(ad AttendanceDoc) (payroll.Attendance, error) {
	var (
		period payroll.Period
		err    error
	)
	switch {
	case ad.Month != "":
		m, perr := time.Parse("2006-01", ad.Month)
		if perr != nil {
			return payroll.Attendance{}, fmt.Errorf("attendance %s: invalid month %q", ad.Employee, ad.Month)
		}
		period = payroll.MonthPeriod(m.Year(), m.Month())
	case ad.From != nil && ad.To != nil:
		if period, err = payroll.NewPeriod(ad.From.Time, ad.To.Time); err != nil {
			return payroll.Attendance{}, fmt.Errorf("attendance %s: %w", ad.Employee, err)
		}
	default:
		return payroll.Attendance{}, fmt.Errorf("attendance %s: month or from/to is required", ad.Employee)
	}
	a := payroll.Attendance{
		EmployeeID: payroll.EmployeeID(ad.Employee), Period: period,
		PresentDays: ad.PresentDays.Decimal, WorkingDays: ad.WorkingDays.Decimal,
	}
	if ad.OvertimeHours != nil {
		a.OvertimeHours = ad.OvertimeHours.Decimal
	}
	return a, nil
}

// =============================================================================
// STATUTORY
// =============================================================================

func (b builder) record(rd RecordDoc, kind statutory.Kind) (statutory.Record, error) {
	if rd.ID == "" {
		return statutory.Record{}, fmt.Errorf("statutory %s: id is required", kind)
	}
	return statutory.Record{
		ID: rd.ID, CompanyID: string(b.company), IsDefault: rd.Default, CreatedAt: b.createdAt(rd.CreatedAt),
	}, nil
}

func (b builder) statutory(sd StatutoryDoc) ([]statutory.Config, error) {
	var out []statutory.Config
	switch sd.Presets {
	case "":
	case "standard":
		out = append(out, statutory.StandardCatalog(string(b.company), b.created).All()...)
	default:
		return nil, fmt.Errorf("statutory: unknown presets %q", sd.Presets)
	}

	for _, d := range sd.ProvidentFunds {
		rec, err := b.record(d.RecordDoc, statutory.KindProvidentFund)
		if err != nil {
			return nil, err
		}
		out = append(out, statutory.ProvidentFund{
			Record:                      rec,
			EmployeeRate:                d.EmployeeRate.Decimal,
			EmployerRate:                d.EmployerRate.Decimal,
			EmployeeRestrict:            d.EmployeeRestrict.ptr(),
			EmployerRestrict:            d.EmployerRestrict.ptr(),
			IncludeEmployerContribution: d.IncludeEmployerContribution,
			IncludeEDLI:                 d.IncludeEDLI,
			EDLIRate:                    amountOr(d.EDLIRate),
			IncludeAdminCharges:         d.IncludeAdminCharges,
			AdminChargeRate:             amountOr(d.AdminChargeRate),
		})
	}
	for _, d := range sd.StateInsurance {
		rec, err := b.record(d.RecordDoc, statutory.KindStateInsurance)
		if err != nil {
			return nil, err
		}
		out = append(out, statutory.StateInsurance{
			Record:                      rec,
			EmployeeRate:                d.EmployeeRate.Decimal,
			EmployerRate:                d.EmployerRate.Decimal,
			EligibilityCeiling:          d.EligibilityCeiling.Decimal,
			IncludeEmployerContribution: d.IncludeEmployerContribution,
		})
	}
	for _, d := range sd.ProfessionalTax {
		rec, err := b.record(d.RecordDoc, statutory.KindProfessionalTax)
		if err != nil {
			return nil, err
		}
		cycle, err := deductionCycle(d.Cycle, rec.ID)
		if err != nil {
			return nil, err
		}
		pt := statutory.ProfessionalTax{Record: rec, State: d.State, Cycle: cycle}
		for _, s := range d.Slabs {
			pt.Slabs = append(pt.Slabs, statutory.Slab{Lower: s.Lower.Decimal, Upper: s.Upper.ptr(), Amount: s.Amount.Decimal})
		}
		if len(pt.Slabs) == 0 {
			return nil, fmt.Errorf("professional_tax %s: at least one slab is required", rec.ID)
		}
		out = append(out, pt)
	}
	for _, d := range sd.LabourWelfare {
		rec, err := b.record(d.RecordDoc, statutory.KindLabourWelfareFund)
		if err != nil {
			return nil, err
		}
		cycle, err := deductionCycle(d.Cycle, rec.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, statutory.LabourWelfareFund{
			Record: rec, State: d.State, EmployeeAmount: d.EmployeeAmount.Decimal,
			EmployerAmount: d.EmployerAmount.Decimal, IncludeEmployerContribution: d.IncludeEmployerContribution,
			Cycle: cycle, Active: boolOr(d.Active, true),
		})
	}
	for _, d := range sd.Bonuses {
		rec, err := b.record(d.RecordDoc, statutory.KindBonus)
		if err != nil {
			return nil, err
		}
		basis := statutory.BonusBasis(orDefault(d.Basis, string(statutory.BonusBasisCTC)))
		if basis != statutory.BonusBasisCTC && basis != statutory.BonusBasisBasic {
			return nil, fmt.Errorf("bonus %s: unknown basis %q", rec.ID, d.Basis)
		}
		if d.PayoutMonth == 0 {
			return nil, fmt.Errorf("bonus %s: payout_month is required", rec.ID)
		}
		out = append(out, statutory.Bonus{
			Record: rec, Percentage: d.Percentage.Decimal, PayoutMonth: time.Month(d.PayoutMonth), Basis: basis,
		})
	}
	for _, d := range sd.Gratuities {
		rec, err := b.record(d.RecordDoc, statutory.KindGratuity)
		if err != nil {
			return nil, err
		}
		out = append(out, statutory.Gratuity{
			Record: rec, EligibilityYears: d.EligibilityYears,
			PresentDaysPerYear: d.PresentDaysPerYear.Decimal, PaymentDaysPerYear: d.PaymentDaysPerYear.Decimal,
			MaxYears: d.MaxYears, MaxAmount: d.MaxAmount.ptr(),
		})
	}
	for _, d := range sd.Encashments {
		rec, err := b.record(d.RecordDoc, statutory.KindLeaveEncashment)
		if err != nil {
			return nil, err
		}
		freq, err := frequency(d.Frequency, statutory.FrequencyYearly)
		if err != nil {
			return nil, fmt.Errorf("leave_encashment %s: %w", rec.ID, err)
		}
		multiplier := decimal.NewFromInt(1)
		if d.Multiplier != nil {
			multiplier = d.Multiplier.Decimal
		}
		out = append(out, statutory.LeaveEncashment{
			Record: rec, EligibilityYears: d.EligibilityYears, MaxUnits: d.MaxUnits.Decimal,
			MaxAmount: d.MaxAmount.ptr(), Multiplier: multiplier,
			WorkingDaysPerYear: d.WorkingDaysPerYear.Decimal, Frequency: freq,
		})
	}
	return out, nil
}

func deductionCycle(cd CycleDoc, id string) (statutory.DeductionCycle, error) {
	freq, err := frequency(cd.Frequency, statutory.FrequencyMonthly)
	if err != nil {
		return statutory.DeductionCycle{}, fmt.Errorf("%s: %w", id, err)
	}
	cycle := statutory.DeductionCycle{Frequency: freq}
	if cd.StartMonth != nil {
		cycle.StartMonth = time.Month(*cd.StartMonth)
	}
	return cycle, nil
}

func frequency(s string, fallback statutory.Frequency) (statutory.Frequency, error) {
	if s == "" {
		return fallback, nil
	}
	switch f := statutory.Frequency(s); f {
	case statutory.FrequencyMonthly, statutory.FrequencyQuarterly, statutory.FrequencyHalfYearly, statutory.FrequencyYearly:
		return f, nil
	}
	return "", fmt.Errorf("unknown frequency %q", s)
}

// =============================================================================
// HELPERS
// =============================================================================

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func boolOr(b *bool, fallback bool) bool {
	if b == nil {
		return fallback
	}
	return *b
}

func amountOr(a *Amount) decimal.Decimal {
	if a == nil {
		return decimal.Zero
	}
	return a.Decimal
}

func slug(s string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			dash = false
		case !dash && sb.Len() > 0:
			sb.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(sb.String(), "-")
}
