/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the payroll domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Amounts are decimal.Decimal and marshal as JSON strings ("24038.46").
  Clients may send numbers or strings.

DATES:
  Calendar dates are "2006-01-02"; timestamps are RFC 3339.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/catalog.go: Company document accepted by PUT /api/companies/{company}/config
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/statutory"
)

const dateLayout = "2006-01-02"

// =============================================================================
// CONFIGURATION
// =============================================================================

type EmployeeDTO struct {
	ID          string           `json:"id"`
	CompanyID   string           `json:"company_id"`
	SiteID      string           `json:"site_id,omitempty"`
	Name        string           `json:"name"`
	Position    string           `json:"position,omitempty"`
	SkillLevel  string           `json:"skill_level,omitempty"`
	State       string           `json:"state,omitempty"`
	JoinedOn    string           `json:"joined_on,omitempty"`
	ExitedOn    string           `json:"exited_on,omitempty"`
	CTCOverride *decimal.Decimal `json:"ctc_override,omitempty"`
	Active      bool             `json:"active"`
}

// CreateEmployeeRequest creates or replaces an employee.
type CreateEmployeeRequest struct {
	ID          string           `json:"id"`
	CompanyID   string           `json:"company_id"`
	SiteID      string           `json:"site_id"`
	Name        string           `json:"name"`
	Position    string           `json:"position"`
	SkillLevel  string           `json:"skill_level"`
	State       string           `json:"state"`
	JoinedOn    string           `json:"joined_on"`
	ExitedOn    string           `json:"exited_on"`
	CTCOverride *decimal.Decimal `json:"ctc_override"`
	Active      *bool            `json:"active"`
}

type TemplateDTO struct {
	ID         string          `json:"id"`
	CompanyID  string          `json:"company_id"`
	Name       string          `json:"name"`
	AnnualCTC  decimal.Decimal `json:"annual_ctc"`
	IsActive   bool            `json:"is_active"`
	IsDefault  bool            `json:"is_default"`
	CreatedAt  string          `json:"created_at"`
	Components []ComponentDTO  `json:"components,omitempty"`
}

type ComponentDTO struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	ComponentType    string          `json:"component_type"`
	CalculationType  string          `json:"calculation_type,omitempty"`
	CalculationValue decimal.Decimal `json:"calculation_value"`
	DisplayOrder     int             `json:"display_order"`
	Overtime         bool            `json:"overtime,omitempty"`
	TargetType       string          `json:"target_type,omitempty"`
	TargetID         string          `json:"target_id,omitempty"`
}

// StatutoryDTO summarises one catalog record.
type StatutoryDTO struct {
	Kind      string `json:"kind"`
	ID        string `json:"id"`
	IsDefault bool   `json:"is_default"`
	State     string `json:"state,omitempty"`
	CreatedAt string `json:"created_at"`
}

// AttendanceRequest records present and working days for one period.
type AttendanceRequest struct {
	EmployeeID    string          `json:"employee_id"`
	Month         string          `json:"month"` // 2006-01
	PeriodStart   string          `json:"period_start"`
	PeriodEnd     string          `json:"period_end"`
	PresentDays   decimal.Decimal `json:"present_days"`
	WorkingDays   decimal.Decimal `json:"working_days"`
	OvertimeHours decimal.Decimal `json:"overtime_hours"`
}

// ConfigResponse reports what a company document wrote.
type ConfigResponse struct {
	CompanyID   string `json:"company_id"`
	Fields      int    `json:"fields"`
	Templates   int    `json:"templates"`
	Components  int    `json:"components"`
	Assignments int    `json:"assignments"`
	Statutory   int    `json:"statutory"`
	Employees   int    `json:"employees"`
	Attendance  int    `json:"attendance"`
}

// =============================================================================
// RUNS
// =============================================================================

// CreateRunRequest opens a run. Either Month or PeriodStart/PeriodEnd is
// required.
type CreateRunRequest struct {
	CompanyID   string `json:"company_id"`
	SiteID      string `json:"site_id"`
	Month       string `json:"month"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
	RunDate     string `json:"run_date"`
}

type RunDTO struct {
	ID             string          `json:"id"`
	CompanyID      string          `json:"company_id"`
	SiteID         string          `json:"site_id,omitempty"`
	PeriodStart    string          `json:"period_start"`
	PeriodEnd      string          `json:"period_end"`
	Status         string          `json:"status"`
	RunDate        string          `json:"run_date"`
	TotalEmployees int             `json:"total_employees"`
	TotalNetAmount decimal.Decimal `json:"total_net_amount"`
	CreatedAt      string          `json:"created_at"`
	UpdatedAt      string          `json:"updated_at"`
}

type EntryDTO struct {
	ID            string          `json:"id"`
	EmployeeID    string          `json:"employee_id"`
	ComponentID   string          `json:"component_id"`
	Name          string          `json:"name"`
	ComponentType string          `json:"component_type"`
	DisplayOrder  int             `json:"display_order"`
	Amount        decimal.Decimal `json:"amount"`
	RawAmount     decimal.Decimal `json:"raw_amount"`
	PaymentStatus string          `json:"payment_status"`
	Warnings      []string        `json:"warnings,omitempty"`
}

type FaultDTO struct {
	EmployeeID  string `json:"employee_id,omitempty"`
	ComponentID string `json:"component_id,omitempty"`
	Code        string `json:"code"`
	Message     string `json:"message"`
	Fatal       bool   `json:"fatal"`
}

// ComputeResponse is returned by POST /api/runs/{id}/compute.
type ComputeResponse struct {
	Run       RunDTO     `json:"run"`
	Computed  int        `json:"computed"`
	Faults    []FaultDTO `json:"faults"`
	Cancelled bool       `json:"cancelled,omitempty"`
	Skipped   []string   `json:"skipped,omitempty"`
}

// TotalsDTO is one employee's rounded totals.
type TotalsDTO struct {
	ByField   map[string]decimal.Decimal `json:"by_field"`
	Gross     decimal.Decimal            `json:"gross"`
	Deduction decimal.Decimal            `json:"deduction"`
	Total     decimal.Decimal            `json:"total"`
}

// PreviewDTO is a read-only evaluation of one employee.
type PreviewDTO struct {
	RunID      string          `json:"run_id"`
	EmployeeID string          `json:"employee_id"`
	TemplateID string          `json:"template_id,omitempty"`
	Entries    []EntryDTO      `json:"entries"`
	Totals     TotalsDTO       `json:"totals"`
	PFWage     decimal.Decimal `json:"pf_wage"`
	Faults     []FaultDTO      `json:"faults"`
}

// SalaryValueRequest sets a variable component amount for one employee.
type SalaryValueRequest struct {
	EmployeeID string          `json:"employee_id"`
	FieldID    string          `json:"field_id"`
	Amount     decimal.Decimal `json:"amount"`
	Type       string          `json:"type"`
}

// =============================================================================
// SETTLEMENT
// =============================================================================

type SettlementRequest struct {
	AsOf         string          `json:"as_of"`
	LeaveBalance decimal.Decimal `json:"leave_balance"`
	GratuityID   string          `json:"gratuity_id"`
	EncashmentID string          `json:"encashment_id"`
}

type SettlementDTO struct {
	EmployeeID       string          `json:"employee_id"`
	AsOf             string          `json:"as_of"`
	CompletedYears   int             `json:"completed_years"`
	MonthlyBasic     decimal.Decimal `json:"monthly_basic"`
	Gratuity         decimal.Decimal `json:"gratuity"`
	GratuityEligible bool            `json:"gratuity_eligible"`
	LeaveEncashment  decimal.Decimal `json:"leave_encashment"`
	EncashEligible   bool            `json:"encash_eligible"`
	Total            decimal.Decimal `json:"total"`
	Warnings         []string        `json:"warnings,omitempty"`
}

// =============================================================================
// SCENARIOS AND ERRORS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// LoadScenarioResponse names the run opened for the scenario.
type LoadScenarioResponse struct {
	Status   string `json:"status"`
	Scenario string `json:"scenario"`
	RunID    string `json:"run_id"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error     string   `json:"error"`
	Details   string   `json:"details,omitempty"`
	Employees []string `json:"employees,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func toEmployeeDTO(e payroll.Employee) EmployeeDTO {
	dto := EmployeeDTO{
		ID:          string(e.ID),
		CompanyID:   string(e.CompanyID),
		SiteID:      string(e.SiteID),
		Name:        e.Name,
		Position:    e.Position,
		SkillLevel:  e.SkillLevel,
		State:       e.State,
		JoinedOn:    formatDate(e.JoinedOn),
		CTCOverride: e.CTCOverride,
		Active:      e.Active,
	}
	if e.ExitedOn != nil {
		dto.ExitedOn = formatDate(*e.ExitedOn)
	}
	return dto
}

func toTemplateDTO(t payroll.PaymentTemplate, comps []payroll.TemplateComponent) TemplateDTO {
	dto := TemplateDTO{
		ID:        string(t.ID),
		CompanyID: string(t.CompanyID),
		Name:      t.Name,
		AnnualCTC: t.AnnualCTC,
		IsActive:  t.IsActive,
		IsDefault: t.IsDefault,
		CreatedAt: t.CreatedAt.Format(time.RFC3339),
	}
	for _, c := range comps {
		cd := ComponentDTO{
			ID:               string(c.ID),
			Name:             c.Name,
			ComponentType:    string(c.ComponentType),
			CalculationType:  string(c.CalculationType),
			CalculationValue: c.CalculationValue,
			DisplayOrder:     c.DisplayOrder,
			Overtime:         c.Overtime,
		}
		if c.Target != nil {
			cd.TargetType, cd.TargetID = string(c.Target.TargetType()), c.Target.TargetID()
		}
		dto.Components = append(dto.Components, cd)
	}
	return dto
}

func toStatutoryDTO(cfg statutory.Config) StatutoryDTO {
	h := cfg.Header()
	dto := StatutoryDTO{
		Kind:      string(cfg.Kind()),
		ID:        h.ID,
		IsDefault: h.IsDefault,
		CreatedAt: h.CreatedAt.Format(time.RFC3339),
	}
	switch v := cfg.(type) {
	case statutory.ProfessionalTax:
		dto.State = v.State
	case statutory.LabourWelfareFund:
		dto.State = v.State
	}
	return dto
}

func toRunDTO(r payroll.PayrollRun) RunDTO {
	return RunDTO{
		ID:             string(r.ID),
		CompanyID:      string(r.CompanyID),
		SiteID:         string(r.SiteID),
		PeriodStart:    formatDate(r.Period.Start),
		PeriodEnd:      formatDate(r.Period.End),
		Status:         string(r.Status),
		RunDate:        formatDate(r.RunDate),
		TotalEmployees: r.TotalEmployees,
		TotalNetAmount: r.TotalNetAmount,
		CreatedAt:      r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      r.UpdatedAt.Format(time.RFC3339),
	}
}

func toEntryDTOs(entries []payroll.PayrollEntry) []EntryDTO {
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = EntryDTO{
			ID:            e.ID,
			EmployeeID:    string(e.EmployeeID),
			ComponentID:   string(e.ComponentID),
			Name:          e.Name,
			ComponentType: string(e.ComponentType),
			DisplayOrder:  e.DisplayOrder,
			Amount:        e.Amount,
			RawAmount:     e.RawAmount,
			PaymentStatus: string(e.PaymentStatus),
			Warnings:      e.Warnings,
		}
	}
	return dtos
}

func toFaultDTOs(faults []payroll.Fault) []FaultDTO {
	dtos := make([]FaultDTO, len(faults))
	for i, f := range faults {
		dtos[i] = FaultDTO{
			EmployeeID:  string(f.EmployeeID),
			ComponentID: string(f.ComponentID),
			Code:        string(f.Code),
			Message:     f.Message,
			Fatal:       f.Fatal,
		}
	}
	return dtos
}

func toTotalsDTO(t payroll.Totals) TotalsDTO {
	r := t.Rounded()
	dto := TotalsDTO{
		ByField:   make(map[string]decimal.Decimal, len(r.ByField)),
		Gross:     r.Gross,
		Deduction: r.Deduction,
		Total:     r.Total,
	}
	for name, ft := range r.ByField {
		dto.ByField[name] = ft.Amount
	}
	return dto
}

func toSettlementDTO(s payroll.Settlement) SettlementDTO {
	dto := SettlementDTO{
		EmployeeID:       string(s.EmployeeID),
		AsOf:             formatDate(s.AsOf),
		CompletedYears:   s.CompletedYears,
		MonthlyBasic:     s.MonthlyBasic,
		Gratuity:         s.Gratuity,
		GratuityEligible: s.GratuityEligible,
		LeaveEncashment:  s.LeaveEncashment,
		EncashEligible:   s.EncashEligible,
		Total:            s.Total,
	}
	for _, w := range s.Warnings {
		dto.Warnings = append(dto.Warnings, string(w.Code)+": "+w.Message)
	}
	return dto
}
