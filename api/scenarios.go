/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built companies that populate the store with realistic
	payroll configuration. Each scenario is a company document (the same
	format PUT /api/companies/{company}/config accepts) plus a pending run
	for March 2025, ready to compute.

AVAILABLE SCENARIOS:

	standard-month:      Default template, full statutory catalog, mixed attendance
	site-templates:      Employee, site+position and site+skill assignments
	unresolved-employee: One employee has no template; approval is blocked
	exit-settlement:     Long-serving employee leaving mid-month

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Parse the scenario document via factory
 3. Apply it through the admin store
 4. Open a pending run for March 2025

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "standard-month"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Add the document to 'scenarioDocuments'

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: ResetDatabase
  - factory/catalog.go: Document format
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/payroll"
)

// scenarioMonth is the period every scenario run covers.
var scenarioMonth = payroll.MonthPeriod(2025, time.March)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "standard-month",
		Name:        "Standard Month",
		Description: "One default template with EPF, ESIC and Maharashtra PT; full, partial and low attendance",
		Category:    "payroll",
	},
	{
		ID:          "site-templates",
		Name:        "Site Templates",
		Description: "Templates resolved by employee assignment, site+position and site+skill level",
		Category:    "payroll",
	},
	{
		ID:          "unresolved-employee",
		Name:        "Unresolved Employee",
		Description: "No default template; one employee matches nothing and blocks approval",
		Category:    "payroll",
	},
	{
		ID:          "exit-settlement",
		Name:        "Exit Settlement",
		Description: "Employee with ten years of service exiting mid-March; gratuity and leave encashment",
		Category:    "settlement",
	},
}

const standardComponents = `
      - {name: Basic, type: earning, calculation: percentage_of_ctc, value: 50, order: 1,
         target: {type: payment_field, id: basic}}
      - {name: HRA, type: earning, calculation: percentage_of_ctc, value: 20, order: 2,
         target: {type: payment_field, id: hra}}
      - {name: Incentive, type: earning, calculation: variable, order: 3,
         target: {type: payment_field, id: incentive}}
      - {name: EPF, type: statutory_contribution, order: 10, target: {type: epf, id: epf-std}}
      - {name: ESIC, type: statutory_contribution, order: 11, target: {type: esic, id: esic-std}}
      - {name: Professional Tax, type: statutory_contribution, order: 12, target: {type: pt, id: pt-mh}}
`

const commonSetup = `
version: 1
company: acme
created_at: 2024-01-01
pay_sequence: {frequency: monthly, working_days: 26, pay_day: 1}
fields:
  - {id: basic, name: Basic, code: BASIC, type: earning, pf_wage: true}
  - {id: hra, name: HRA, code: HRA, type: earning}
  - {id: incentive, name: Incentive, code: INC, type: earning}
statutory:
  presets: standard
`

var scenarioDocuments = map[string]string{
	"standard-month": commonSetup + `
templates:
  - id: tpl-std
    name: Standard
    annual_ctc: 600000
    default: true
    components:` + standardComponents + `
employees:
  - {id: emp-asha, name: Asha Patil, site: site-pune, position: guard, state: MH, joined_on: 2020-01-01}
  - {id: emp-ravi, name: Ravi Kumar, site: site-pune, position: guard, state: MH, joined_on: 2022-07-01}
  - {id: emp-meena, name: Meena Shah, site: site-pune, position: supervisor, state: MH, joined_on: 2019-03-15,
     ctc_override: 240000}
attendance:
  - {employee: emp-asha, month: 2025-03, present_days: 25, working_days: 26}
  - {employee: emp-ravi, month: 2025-03, present_days: 26, working_days: 26, overtime_hours: 6}
  - {employee: emp-meena, month: 2025-03, present_days: 13, working_days: 26}
`,

	"site-templates": commonSetup + `
templates:
  - id: tpl-guard
    name: Guard
    annual_ctc: 240000
    components:` + standardComponents + `
  - id: tpl-skilled
    name: Skilled Technician
    annual_ctc: 420000
    components:` + standardComponents + `
  - id: tpl-manager
    name: Site Manager
    annual_ctc: 900000
    components:` + standardComponents + `
assignments:
  - {id: as-guard, template: tpl-guard, site: site-pune, eligibility: position, value: guard, from: 2025-01-01}
  - {id: as-skilled, template: tpl-skilled, site: site-pune, eligibility: skill_level, value: skilled, from: 2025-01-01}
  - {id: as-manager, template: tpl-manager, employee: emp-vikram, from: 2024-04-01}
employees:
  - {id: emp-asha, name: Asha Patil, site: site-pune, position: guard, skill_level: skilled, state: MH, joined_on: 2020-01-01}
  - {id: emp-imran, name: Imran Khan, site: site-pune, position: technician, skill_level: skilled, state: MH, joined_on: 2023-02-01}
  - {id: emp-vikram, name: Vikram Rao, site: site-pune, position: manager, state: MH, joined_on: 2018-06-01}
attendance:
  - {employee: emp-asha, month: 2025-03, present_days: 26, working_days: 26}
  - {employee: emp-imran, month: 2025-03, present_days: 24, working_days: 26}
  - {employee: emp-vikram, month: 2025-03, present_days: 26, working_days: 26}
`,

	"unresolved-employee": commonSetup + `
templates:
  - id: tpl-guard
    name: Guard
    annual_ctc: 240000
    components:` + standardComponents + `
assignments:
  - {id: as-guard, template: tpl-guard, site: site-pune, eligibility: position, value: guard, from: 2025-01-01}
employees:
  - {id: emp-asha, name: Asha Patil, site: site-pune, position: guard, state: MH, joined_on: 2020-01-01}
  - {id: emp-leo, name: Leo Dsouza, site: site-goa, position: driver, state: GA, joined_on: 2024-11-01}
attendance:
  - {employee: emp-asha, month: 2025-03, present_days: 26, working_days: 26}
  - {employee: emp-leo, month: 2025-03, present_days: 26, working_days: 26}
`,

	"exit-settlement": commonSetup + `
templates:
  - id: tpl-std
    name: Standard
    annual_ctc: 600000
    default: true
    components:` + standardComponents + `
employees:
  - {id: emp-sunil, name: Sunil Joshi, site: site-pune, position: supervisor, state: MH,
     joined_on: 2015-03-01, exited_on: 2025-03-15}
attendance:
  - {employee: emp-sunil, month: 2025-03, present_days: 13, working_days: 26}
`,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current, Description: "Currently loaded scenario"})
}

// LoadScenario resets the store and loads a predefined company.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, ok := scenarioDocuments[req.ScenarioID]; !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	run, err := h.loadScenario(r.Context(), req.ScenarioID)
	if err != nil {
		h.currentScenario = ""
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	h.currentScenario = req.ScenarioID

	h.Logger.Info("scenario loaded", "scenario", req.ScenarioID, "run_id", run.ID)
	writeJSON(w, http.StatusOK, LoadScenarioResponse{Status: "loaded", Scenario: req.ScenarioID, RunID: string(run.ID)})
}

// =============================================================================
// SCENARIO LOADER
// =============================================================================

func (h *Handler) loadScenario(ctx context.Context, id string) (payroll.PayrollRun, error) {
	doc, err := factory.Parse([]byte(scenarioDocuments[id]))
	if err != nil {
		return payroll.PayrollRun{}, fmt.Errorf("parse scenario %s: %w", id, err)
	}
	if err := h.Store.Reset(ctx); err != nil {
		return payroll.PayrollRun{}, fmt.Errorf("reset store: %w", err)
	}
	if err := doc.Apply(ctx, h.Store); err != nil {
		return payroll.PayrollRun{}, err
	}
	return h.Runner.CreateRun(ctx, payroll.RunScope{CompanyID: doc.ID}, scenarioMonth, scenarioMonth.End)
}
