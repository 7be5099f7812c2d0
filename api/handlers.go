/*
handlers.go - HTTP API handlers for the payroll engine

PURPOSE:
  Exposes the payroll engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the payroll package.

ENDPOINTS:
  Configuration:
    PUT    /api/companies/{company}/config      Apply a company document (YAML or JSON)
    GET    /api/companies/{company}/templates   Templates with components
    GET    /api/companies/{company}/statutory   Statutory catalog records
    GET    /api/employees?company_id=&site_id=  List employees
    POST   /api/employees                       Create or replace employee
    GET    /api/employees/{id}                  Get employee
    POST   /api/employees/{id}/settlement       Gratuity + leave encashment
    POST   /api/attendance                      Record attendance

  Runs:
    POST   /api/runs                            Open a pending run
    GET    /api/runs?company_id=                List runs
    GET    /api/runs/{id}                       Get run
    POST   /api/runs/{id}/compute               Compute (or recompute) a pending run
    POST   /api/runs/{id}/approve               pending -> approved
    POST   /api/runs/{id}/mark-created          approved -> created
    GET    /api/runs/{id}/entries               Entry set (?employee_id= filters)
    GET    /api/runs/{id}/faults                Faults of the last computation
    PUT    /api/runs/{id}/salary-values         Manual amount for a variable component
    GET    /api/runs/{id}/employees/{employeeID}/preview  Read-only evaluation
    GET    /api/runs/{id}/employees/{employeeID}/payslip  PDF salary slip

  Scenarios:
    GET    /api/scenarios                       List demo scenarios
    GET    /api/scenarios/current               Currently loaded scenario
    POST   /api/scenarios/load                  Load a demo scenario
    POST   /api/reset                           Clear all data

ERROR HANDLING:
  Errors are returned as JSON with a status derived via errors.Is:
  - 400: Invalid input, malformed component, invalid period
  - 404: Run, employee or template not found
  - 409: Run locked, lost status race, invalid transition
  - 422: Approval blocked by unresolved employees (ids listed)
  - 500: Data access and everything else

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/payslip"
)

// maxDocumentBytes bounds company documents and JSON bodies.
const maxDocumentBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is a full payroll backend that can also be emptied.
type Store interface {
	payroll.Store
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     Store
	Runner    *payroll.Runner
	Lifecycle payroll.Lifecycle
	Logger    *slog.Logger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires handlers to a store and a runner sharing that store.
func NewHandler(store Store, runner *payroll.Runner, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Store:     store,
		Runner:    runner,
		Lifecycle: payroll.Lifecycle{Runs: store, Config: store},
		Logger:    logger,
	}
}

// =============================================================================
// CONFIGURATION HANDLERS
// =============================================================================

// PutCompanyConfig applies a versioned company document.
func (h *Handler) PutCompanyConfig(w http.ResponseWriter, r *http.Request) {
	companyID := chi.URLParam(r, "company")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDocumentBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body", err)
		return
	}
	doc, err := factory.Parse(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid company document", err)
		return
	}
	if string(doc.ID) != companyID {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("Document company %q does not match %q", doc.ID, companyID), nil)
		return
	}
	if err := doc.Apply(r.Context(), h.Store); err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.Logger.Info("company configuration applied",
		"company_id", companyID, "templates", len(doc.Templates), "employees", len(doc.Employees))
	writeJSON(w, http.StatusOK, ConfigResponse{
		CompanyID:   companyID,
		Fields:      len(doc.Fields),
		Templates:   len(doc.Templates),
		Components:  len(doc.Components),
		Assignments: len(doc.Assignments),
		Statutory:   len(doc.Statutory),
		Employees:   len(doc.Employees),
		Attendance:  len(doc.Attendance),
	})
}

// ListTemplates returns a company's templates with their components.
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	templates, err := h.Store.ListTemplates(ctx, payroll.CompanyID(chi.URLParam(r, "company")))
	if err != nil {
		h.writeDomainError(w, payroll.DataAccess("list templates", err))
		return
	}

	dtos := make([]TemplateDTO, 0, len(templates))
	for _, t := range templates {
		comps, err := h.Store.ListComponents(ctx, t.ID)
		if err != nil {
			h.writeDomainError(w, payroll.DataAccess("list components", err))
			return
		}
		dtos = append(dtos, toTemplateDTO(t, comps))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListStatutory returns a company's statutory catalog.
func (h *Handler) ListStatutory(w http.ResponseWriter, r *http.Request) {
	cat, err := h.Store.LoadCatalog(r.Context(), payroll.CompanyID(chi.URLParam(r, "company")))
	if err != nil {
		h.writeDomainError(w, payroll.DataAccess("load catalog", err))
		return
	}
	records := cat.All()
	dtos := make([]StatutoryDTO, len(records))
	for i, cfg := range records {
		dtos[i] = toStatutoryDTO(cfg)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListEmployees returns a company's employees, optionally for one site.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	scope := payroll.RunScope{
		CompanyID: payroll.CompanyID(r.URL.Query().Get("company_id")),
		SiteID:    payroll.SiteID(r.URL.Query().Get("site_id")),
	}
	if scope.CompanyID == "" {
		writeError(w, http.StatusBadRequest, "company_id is required", nil)
		return
	}
	employees, err := h.Store.ListEmployees(r.Context(), scope)
	if err != nil {
		h.writeDomainError(w, payroll.DataAccess("list employees", err))
		return
	}
	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetEmployee returns a single employee.
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.Store.GetEmployee(r.Context(), payroll.EmployeeID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(emp))
}

// CreateEmployee creates or replaces an employee.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ID == "" || req.CompanyID == "" {
		writeError(w, http.StatusBadRequest, "id and company_id are required", nil)
		return
	}

	emp := payroll.Employee{
		ID:          payroll.EmployeeID(req.ID),
		CompanyID:   payroll.CompanyID(req.CompanyID),
		SiteID:      payroll.SiteID(req.SiteID),
		Name:        req.Name,
		Position:    req.Position,
		SkillLevel:  req.SkillLevel,
		State:       req.State,
		CTCOverride: req.CTCOverride,
		Active:      req.Active == nil || *req.Active,
	}
	if req.JoinedOn != "" {
		joined, err := time.Parse(dateLayout, req.JoinedOn)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid joined_on format (use YYYY-MM-DD)", err)
			return
		}
		emp.JoinedOn = joined
	}
	if req.ExitedOn != "" {
		exited, err := time.Parse(dateLayout, req.ExitedOn)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid exited_on format (use YYYY-MM-DD)", err)
			return
		}
		emp.ExitedOn = &exited
	}
	if err := h.Store.SaveEmployee(r.Context(), emp); err != nil {
		h.writeDomainError(w, payroll.DataAccess("save employee", err))
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(emp))
}

// RecordAttendance stores present and working days for one period.
func (h *Handler) RecordAttendance(w http.ResponseWriter, r *http.Request) {
	var req AttendanceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.EmployeeID == "" {
		writeError(w, http.StatusBadRequest, "employee_id is required", nil)
		return
	}
	period, err := parsePeriod(req.Month, req.PeriodStart, req.PeriodEnd)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}
	if req.PresentDays.IsNegative() || req.WorkingDays.IsNegative() || req.OvertimeHours.IsNegative() {
		writeError(w, http.StatusBadRequest, "Attendance figures must not be negative", nil)
		return
	}

	att := payroll.Attendance{
		EmployeeID:    payroll.EmployeeID(req.EmployeeID),
		Period:        period,
		PresentDays:   req.PresentDays,
		WorkingDays:   req.WorkingDays,
		OvertimeHours: req.OvertimeHours,
	}
	if err := h.Store.SaveAttendance(r.Context(), att); err != nil {
		h.writeDomainError(w, payroll.DataAccess("save attendance", err))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}

// Settle computes an employee's gratuity and leave encashment.
func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	var req SettlementRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sr := payroll.SettlementRequest{
		EmployeeID:   payroll.EmployeeID(chi.URLParam(r, "id")),
		LeaveBalance: req.LeaveBalance,
		GratuityID:   req.GratuityID,
		EncashmentID: req.EncashmentID,
	}
	if req.AsOf != "" {
		asOf, err := time.Parse(dateLayout, req.AsOf)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of format (use YYYY-MM-DD)", err)
			return
		}
		sr.AsOf = asOf
	}

	s, err := h.Runner.Settle(r.Context(), sr)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlementDTO(s))
}

// =============================================================================
// RUN HANDLERS
// =============================================================================

// CreateRun opens a pending run for a company or site.
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.CompanyID == "" {
		writeError(w, http.StatusBadRequest, "company_id is required", nil)
		return
	}
	period, err := parsePeriod(req.Month, req.PeriodStart, req.PeriodEnd)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}
	var runDate time.Time
	if req.RunDate != "" {
		if runDate, err = time.Parse(dateLayout, req.RunDate); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid run_date format (use YYYY-MM-DD)", err)
			return
		}
	}

	scope := payroll.RunScope{CompanyID: payroll.CompanyID(req.CompanyID), SiteID: payroll.SiteID(req.SiteID)}
	run, err := h.Runner.CreateRun(r.Context(), scope, period, runDate)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRunDTO(run))
}

// ListRuns returns runs, optionally for one company.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.ListRuns(r.Context(), payroll.CompanyID(r.URL.Query().Get("company_id")))
	if err != nil {
		h.writeDomainError(w, payroll.DataAccess("list runs", err))
		return
	}
	dtos := make([]RunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetRun returns a single run.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.Store.GetRun(r.Context(), runID(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRunDTO(run))
}

// ComputeRun evaluates every in-scope employee of a pending run.
func (h *Handler) ComputeRun(w http.ResponseWriter, r *http.Request) {
	res, err := h.Runner.Compute(r.Context(), runID(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp := ComputeResponse{
		Run:       toRunDTO(res.Run),
		Faults:    toFaultDTOs(res.Faults),
		Cancelled: res.Cancelled,
	}
	for _, emp := range res.Employees {
		if !emp.Fatal() && emp.Err == nil {
			resp.Computed++
		}
	}
	for _, id := range res.Skipped {
		resp.Skipped = append(resp.Skipped, string(id))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ApproveRun locks a pending run.
func (h *Handler) ApproveRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.Lifecycle.Approve(r.Context(), runID(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.Logger.Info("payroll run approved", "run_id", run.ID, "total_net", run.TotalNetAmount.String())
	writeJSON(w, http.StatusOK, toRunDTO(run))
}

// MarkRunCreated records that payments for an approved run were issued.
func (h *Handler) MarkRunCreated(w http.ResponseWriter, r *http.Request) {
	run, err := h.Lifecycle.MarkCreated(r.Context(), runID(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.Logger.Info("payroll run marked created", "run_id", run.ID)
	writeJSON(w, http.StatusOK, toRunDTO(run))
}

// ListEntries returns a run's entry set.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := runID(r)
	if _, err := h.Store.GetRun(ctx, id); err != nil {
		h.writeDomainError(w, err)
		return
	}
	entries, err := h.Store.ListEntries(ctx, id)
	if err != nil {
		h.writeDomainError(w, payroll.DataAccess("list entries", err))
		return
	}
	if emp := r.URL.Query().Get("employee_id"); emp != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if string(e.EmployeeID) == emp {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

// ListFaults returns the faults stored by the last computation.
func (h *Handler) ListFaults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := runID(r)
	if _, err := h.Store.GetRun(ctx, id); err != nil {
		h.writeDomainError(w, err)
		return
	}
	faults, err := h.Store.ListFaults(ctx, id)
	if err != nil {
		h.writeDomainError(w, payroll.DataAccess("list faults", err))
		return
	}
	writeJSON(w, http.StatusOK, toFaultDTOs(faults))
}

// SaveSalaryValue stores a manual amount for a variable component.
func (h *Handler) SaveSalaryValue(w http.ResponseWriter, r *http.Request) {
	var req SalaryValueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.EmployeeID == "" || req.FieldID == "" {
		writeError(w, http.StatusBadRequest, "employee_id and field_id are required", nil)
		return
	}
	typ := payroll.ComponentType(req.Type)
	if req.Type == "" {
		typ = payroll.ComponentEarning
	}
	if !typ.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown component type %q", req.Type), nil)
		return
	}

	v := payroll.SalaryFieldValue{
		RunID:      runID(r),
		EmployeeID: payroll.EmployeeID(req.EmployeeID),
		FieldID:    payroll.FieldID(req.FieldID),
		Amount:     req.Amount,
		Type:       typ,
	}
	if err := h.Store.SaveSalaryFieldValue(r.Context(), v); err != nil {
		h.writeDomainError(w, payroll.DataAccess("save salary field value", err))
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// PreviewEmployee evaluates one employee without writing. Works in any
// run state.
func (h *Handler) PreviewEmployee(w http.ResponseWriter, r *http.Request) {
	id := runID(r)
	res, err := h.Runner.Preview(r.Context(), id, payroll.EmployeeID(chi.URLParam(r, "employeeID")))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PreviewDTO{
		RunID:      string(id),
		EmployeeID: string(res.EmployeeID),
		TemplateID: string(res.TemplateID),
		Entries:    toEntryDTOs(res.Entries),
		Totals:     toTotalsDTO(res.Totals),
		PFWage:     payroll.RoundHalfUp(res.Evaluation.PFWage),
		Faults:     toFaultDTOs(res.Faults),
	})
}

// GetPayslip renders one employee's salary slip as PDF.
func (h *Handler) GetPayslip(w http.ResponseWriter, r *http.Request) {
	id := runID(r)
	employeeID := payroll.EmployeeID(chi.URLParam(r, "employeeID"))
	slip, err := payslip.Load(r.Context(), h.Store, id, employeeID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := payslip.Render(&buf, slip); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", fmt.Sprintf("payslip-%s-%s.pdf", id, employeeID)))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.Logger.Warn("payslip write failed", "run_id", id, "employee_id", employeeID, "error", err)
	}
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func runID(r *http.Request) payroll.RunID {
	return payroll.RunID(chi.URLParam(r, "id"))
}

// parsePeriod accepts a month ("2006-01") or an explicit start and end date.
func parsePeriod(month, start, end string) (payroll.Period, error) {
	if month != "" {
		m, err := time.Parse("2006-01", month)
		if err != nil {
			return payroll.Period{}, fmt.Errorf("month must be YYYY-MM: %w", err)
		}
		return payroll.MonthPeriod(m.Year(), m.Month()), nil
	}
	if start == "" || end == "" {
		return payroll.Period{}, errors.New("month or period_start and period_end are required")
	}
	s, err := time.Parse(dateLayout, start)
	if err != nil {
		return payroll.Period{}, fmt.Errorf("period_start: %w", err)
	}
	e, err := time.Parse(dateLayout, end)
	if err != nil {
		return payroll.Period{}, fmt.Errorf("period_end: %w", err)
	}
	return payroll.NewPeriod(s, e)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDocumentBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, payroll.ErrNotFound),
		errors.Is(err, payroll.ErrNoTemplateFound),
		errors.Is(err, payslip.ErrNoEntries):
		return http.StatusNotFound
	case errors.Is(err, payroll.ErrIncompletePayroll):
		return http.StatusUnprocessableEntity
	case errors.Is(err, payroll.ErrPayrollLocked),
		errors.Is(err, payroll.ErrConcurrentModification),
		errors.Is(err, payroll.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, payroll.ErrInvalidPeriod),
		errors.Is(err, payroll.ErrMalformedComponent),
		errors.Is(err, payroll.ErrAttendanceMissing):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: http.StatusText(status), Details: err.Error()}

	var incomplete *payroll.IncompletePayrollError
	if errors.As(err, &incomplete) {
		for _, id := range incomplete.Employees {
			resp.Employees = append(resp.Employees, string(id))
		}
	}
	if status >= http.StatusInternalServerError {
		h.Logger.Error("request failed", "error", err, "retryable", payroll.IsRetryable(err))
	}
	writeJSON(w, status, resp)
}
