/*
handlers_test.go - HTTP tests for API handlers

Tests for:
- Scenario loading and the run lifecycle over HTTP
- Error status mapping (404, 409, 422, 400, 500)
- Company documents, attendance intake and payslips
*/
package api_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/api"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/payroll/store"
)

type testServer struct {
	router *chi.Mux
	mem    *store.Memory
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mem := store.NewMemory()
	logger := slog.New(slog.DiscardHandler)
	h := api.NewHandler(mem, payroll.NewRunner(mem, logger), logger)
	return &testServer{router: api.NewRouter(h, api.RouterOptions{}), mem: mem}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) loadScenario(t *testing.T, id string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/scenarios/load", api.LoadScenarioRequest{ScenarioID: id})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[api.LoadScenarioResponse](t, rec)
	require.NotEmpty(t, resp.RunID)
	return resp.RunID
}

// =============================================================================
// RUN LIFECYCLE
// =============================================================================

func TestRunLifecycle_ComputeApproveMarkCreated(t *testing.T) {
	// GIVEN: The standard-month scenario
	s := newTestServer(t)
	runID := s.loadScenario(t, "standard-month")

	// WHEN: The run is computed
	rec := s.do(t, http.MethodPost, "/api/runs/"+runID+"/compute", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	computed := decode[api.ComputeResponse](t, rec)

	// THEN: Every employee has entries and totals are committed
	assert.Equal(t, 3, computed.Computed)
	assert.Equal(t, 3, computed.Run.TotalEmployees)
	assert.True(t, computed.Run.TotalNetAmount.IsPositive())
	for _, f := range computed.Faults {
		assert.False(t, f.Fatal, "fault %+v", f)
	}

	// AND: Approval locks the run
	rec = s.do(t, http.MethodPost, "/api/runs/"+runID+"/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, string(payroll.RunApproved), decode[api.RunDTO](t, rec).Status)

	rec = s.do(t, http.MethodPost, "/api/runs/"+runID+"/compute", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// AND: Payments can be marked created exactly once
	rec = s.do(t, http.MethodPost, "/api/runs/"+runID+"/mark-created", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, string(payroll.RunCreated), decode[api.RunDTO](t, rec).Status)

	rec = s.do(t, http.MethodPost, "/api/runs/"+runID+"/mark-created", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestApproveRun_UnresolvedEmployeeIs422(t *testing.T) {
	// GIVEN: A computed run with an employee that has no template
	s := newTestServer(t)
	runID := s.loadScenario(t, "unresolved-employee")
	rec := s.do(t, http.MethodPost, "/api/runs/"+runID+"/compute", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	faults := decode[api.ComputeResponse](t, rec).Faults
	var codes []string
	for _, f := range faults {
		codes = append(codes, f.Code)
	}
	assert.Contains(t, codes, string(payroll.FaultNoTemplateFound))

	// WHEN: Approving
	rec = s.do(t, http.MethodPost, "/api/runs/"+runID+"/approve", nil)

	// THEN: 422 lists the blocking employee
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, []string{"emp-leo"}, decode[api.ErrorResponse](t, rec).Employees)
}

func TestPreviewEmployee(t *testing.T) {
	s := newTestServer(t)
	runID := s.loadScenario(t, "standard-month")

	rec := s.do(t, http.MethodGet, "/api/runs/"+runID+"/employees/emp-asha/preview", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	preview := decode[api.PreviewDTO](t, rec)
	assert.Equal(t, "tpl-std", preview.TemplateID)
	assert.Equal(t, "31654", preview.Totals.Total.String())
	assert.Equal(t, "24038", preview.PFWage.String())

	// Preview never writes.
	rec = s.do(t, http.MethodGet, "/api/runs/"+runID+"/entries", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]api.EntryDTO](t, rec))
}

func TestSaveSalaryValue_FeedsVariableComponent(t *testing.T) {
	// GIVEN: A manual incentive for one employee
	s := newTestServer(t)
	runID := s.loadScenario(t, "standard-month")
	rec := s.do(t, http.MethodPut, "/api/runs/"+runID+"/salary-values",
		`{"employee_id": "emp-asha", "field_id": "incentive", "amount": "1500"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// WHEN: The run is computed
	rec = s.do(t, http.MethodPost, "/api/runs/"+runID+"/compute", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: The entry carries the entered amount, unprorated
	rec = s.do(t, http.MethodGet, "/api/runs/"+runID+"/entries?employee_id=emp-asha", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]api.EntryDTO](t, rec)
	require.Len(t, entries, 6)
	var incentive string
	for _, e := range entries {
		assert.Equal(t, "emp-asha", e.EmployeeID)
		if e.ComponentID == "tpl-std-incentive" {
			incentive = e.Amount.String()
		}
	}
	assert.Equal(t, "1500", incentive)
}

func TestGetPayslip(t *testing.T) {
	s := newTestServer(t)
	runID := s.loadScenario(t, "standard-month")

	// Nothing computed yet.
	rec := s.do(t, http.MethodGet, "/api/runs/"+runID+"/employees/emp-asha/payslip", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/runs/"+runID+"/compute", nil).Code)
	rec = s.do(t, http.MethodGet, "/api/runs/"+runID+"/employees/emp-asha/payslip", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestErrors_StatusMapping(t *testing.T) {
	s := newTestServer(t)
	runID := s.loadScenario(t, "standard-month")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"unknown run", http.MethodGet, "/api/runs/missing", nil, http.StatusNotFound},
		{"compute unknown run", http.MethodPost, "/api/runs/missing/compute", nil, http.StatusNotFound},
		{"unknown employee", http.MethodGet, "/api/employees/nobody", nil, http.StatusNotFound},
		{"preview unknown employee", http.MethodGet, "/api/runs/" + runID + "/employees/nobody/preview", nil, http.StatusNotFound},
		{"mark-created on pending", http.MethodPost, "/api/runs/" + runID + "/mark-created", nil, http.StatusConflict},
		{"reversed period", http.MethodPost, "/api/runs", `{"company_id": "acme", "period_start": "2025-03-31", "period_end": "2025-03-01"}`, http.StatusBadRequest},
		{"bad month", http.MethodPost, "/api/runs", `{"company_id": "acme", "month": "March"}`, http.StatusBadRequest},
		{"missing company", http.MethodPost, "/api/runs", `{"month": "2025-03"}`, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/api/attendance", `{"employee_id":`, http.StatusBadRequest},
		{"unknown scenario", http.MethodPost, "/api/scenarios/load", `{"scenario_id": "nope"}`, http.StatusBadRequest},
		{"employees without company", http.MethodGet, "/api/employees", nil, http.StatusBadRequest},
		{"unknown salary value type", http.MethodPut, "/api/runs/" + runID + "/salary-values", `{"employee_id": "emp-asha", "field_id": "incentive", "type": "tip"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[api.ErrorResponse](t, rec).Error)
		})
	}
}

func TestErrors_DataAccessIs500(t *testing.T) {
	s := newTestServer(t)
	runID := s.loadScenario(t, "standard-month")
	s.mem.FailOn("ListEntries", errors.New("disk gone"))

	rec := s.do(t, http.MethodGet, "/api/runs/"+runID+"/entries", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode[api.ErrorResponse](t, rec).Details, "disk gone")
}

// =============================================================================
// CONFIGURATION
// =============================================================================

const betaDocument = `
version: 1
company: beta
fields:
  - {id: basic, name: Basic, type: earning, pf_wage: true}
templates:
  - id: tpl-beta
    name: Beta
    annual_ctc: 360000
    default: true
    components:
      - {name: Basic, type: earning, value: 100, target: {type: payment_field, id: basic}}
statutory:
  presets: standard
employees:
  - {id: beta-1, name: Nisha, state: MH, joined_on: 2024-01-01}
`

func TestPutCompanyConfig(t *testing.T) {
	s := newTestServer(t)

	// WHEN: The document names another company
	rec := s.do(t, http.MethodPut, "/api/companies/acme/config", betaDocument)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// WHEN: The document matches the URL
	rec = s.do(t, http.MethodPut, "/api/companies/beta/config", betaDocument)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[api.ConfigResponse](t, rec)
	assert.Equal(t, 1, resp.Templates)
	assert.Equal(t, 1, resp.Components)
	assert.Equal(t, 1, resp.Employees)

	// THEN: Templates and statutory records are listed
	rec = s.do(t, http.MethodGet, "/api/companies/beta/templates", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	templates := decode[[]api.TemplateDTO](t, rec)
	require.Len(t, templates, 1)
	require.Len(t, templates[0].Components, 1)
	assert.Equal(t, "payment_field", templates[0].Components[0].TargetType)

	rec = s.do(t, http.MethodGet, "/api/companies/beta/statutory", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.StatutoryDTO](t, rec), 7)

	// AND: Invalid documents are rejected
	rec = s.do(t, http.MethodPut, "/api/companies/beta/config", "version: 2\ncompany: beta\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEmployeesAndAttendance(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/api/companies/beta/config", betaDocument).Code)

	rec := s.do(t, http.MethodPost, "/api/employees", api.CreateEmployeeRequest{
		ID: "beta-2", CompanyID: "beta", Name: "Omar", State: "MH", JoinedOn: "2024-06-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, decode[api.EmployeeDTO](t, rec).Active)

	rec = s.do(t, http.MethodGet, "/api/employees?company_id=beta", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.EmployeeDTO](t, rec), 2)

	rec = s.do(t, http.MethodPost, "/api/attendance",
		`{"employee_id": "beta-1", "month": "2025-03", "present_days": 13, "working_days": 26}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/attendance",
		`{"employee_id": "beta-1", "month": "2025-03", "present_days": -1, "working_days": 26}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Half attendance halves the single 30000 component.
	rec = s.do(t, http.MethodPost, "/api/runs", api.CreateRunRequest{CompanyID: "beta", Month: "2025-03"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	run := decode[api.RunDTO](t, rec)
	assert.Equal(t, "2025-03-01", run.PeriodStart)
	assert.Equal(t, "2025-03-31", run.PeriodEnd)

	rec = s.do(t, http.MethodGet, "/api/runs/"+run.ID+"/employees/beta-1/preview", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "15000", decode[api.PreviewDTO](t, rec).Totals.Gross.String())
}

func TestSettle(t *testing.T) {
	s := newTestServer(t)
	s.loadScenario(t, "exit-settlement")

	rec := s.do(t, http.MethodPost, "/api/employees/emp-sunil/settlement", `{"leave_balance": "20"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	settlement := decode[api.SettlementDTO](t, rec)
	assert.Equal(t, 10, settlement.CompletedYears)
	assert.Equal(t, "2025-03-15", settlement.AsOf)
	assert.True(t, settlement.GratuityEligible)
	assert.True(t, settlement.Total.Equal(settlement.Gratuity.Add(settlement.LeaveEncashment)))
}

// =============================================================================
// SCENARIOS AND RESET
// =============================================================================

func TestScenarioEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.ScenarioDTO](t, rec), 4)

	rec = s.do(t, http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", string(bytes.TrimSpace(rec.Body.Bytes())))

	s.loadScenario(t, "site-templates")
	rec = s.do(t, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "site-templates", decode[api.ScenarioDTO](t, rec).ID)

	rec = s.do(t, http.MethodPost, "/api/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/runs", nil)
	assert.Empty(t, decode[[]api.RunDTO](t, rec))
	rec = s.do(t, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "null", string(bytes.TrimSpace(rec.Body.Bytes())))
}

func TestHeartbeatAndLanding(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", nil).Code)

	rec := s.do(t, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Payroll Engine API")
}
