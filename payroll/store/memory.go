// Package store provides the in-memory payroll.Store used by tests, the
// demo scenarios and the "memory" driver.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/statutory"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	employees   map[payroll.EmployeeID]payroll.Employee
	fields      map[payroll.FieldID]payroll.PaymentField
	templates   map[payroll.TemplateID]payroll.PaymentTemplate
	components  map[payroll.ComponentID]payroll.TemplateComponent
	assignments map[string]payroll.TemplateAssignment
	statutory   map[statutoryKey]statutory.Config
	sequences   map[payroll.CompanyID]payroll.PaySequence
	attendance  map[attendanceKey]payroll.Attendance

	runs    map[payroll.RunID]payroll.PayrollRun
	entries map[payroll.RunID]map[entryKey]payroll.PayrollEntry
	faults  map[payroll.RunID]map[payroll.EmployeeID][]payroll.Fault
	values  map[payroll.RunID]map[valueKey]payroll.SalaryFieldValue

	failures map[string]error
	now      func() time.Time
}

type statutoryKey struct {
	Kind statutory.Kind
	ID   string
}

type attendanceKey struct {
	EmployeeID payroll.EmployeeID
	Start      time.Time
	End        time.Time
}

type entryKey struct {
	EmployeeID  payroll.EmployeeID
	ComponentID payroll.ComponentID
}

type valueKey struct {
	EmployeeID payroll.EmployeeID
	FieldID    payroll.FieldID
}

func NewMemory() *Memory {
	return &Memory{
		employees:   make(map[payroll.EmployeeID]payroll.Employee),
		fields:      make(map[payroll.FieldID]payroll.PaymentField),
		templates:   make(map[payroll.TemplateID]payroll.PaymentTemplate),
		components:  make(map[payroll.ComponentID]payroll.TemplateComponent),
		assignments: make(map[string]payroll.TemplateAssignment),
		statutory:   make(map[statutoryKey]statutory.Config),
		sequences:   make(map[payroll.CompanyID]payroll.PaySequence),
		attendance:  make(map[attendanceKey]payroll.Attendance),
		runs:        make(map[payroll.RunID]payroll.PayrollRun),
		entries:     make(map[payroll.RunID]map[entryKey]payroll.PayrollEntry),
		faults:      make(map[payroll.RunID]map[payroll.EmployeeID][]payroll.Fault),
		values:      make(map[payroll.RunID]map[valueKey]payroll.SalaryFieldValue),
		failures:    make(map[string]error),
		now:         time.Now,
	}
}

// FailOn makes every later call of the named method return err. A nil
// err clears the failure. Used to exercise data-access fault handling.
func (m *Memory) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, method)
		return
	}
	m.failures[method] = err
}

func (m *Memory) failure(method string) error {
	return m.failures[method]
}

// =============================================================================
// CONFIG READS
// =============================================================================

func (m *Memory) GetEmployee(_ context.Context, id payroll.EmployeeID) (payroll.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failure("GetEmployee"); err != nil {
		return payroll.Employee{}, err
	}
	e, ok := m.employees[id]
	if !ok {
		return payroll.Employee{}, payroll.ErrNotFound
	}
	return e, nil
}

func (m *Memory) ListEmployees(_ context.Context, scope payroll.RunScope) ([]payroll.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failure("ListEmployees"); err != nil {
		return nil, err
	}
	var out []payroll.Employee
	for _, e := range m.employees {
		if e.CompanyID != scope.CompanyID {
			continue
		}
		if scope.SiteID != "" && e.SiteID != scope.SiteID {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ListPaymentFields(_ context.Context, companyID payroll.CompanyID) ([]payroll.PaymentField, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failure("ListPaymentFields"); err != nil {
		return nil, err
	}
	var out []payroll.PaymentField
	for _, f := range m.fields {
		if f.CompanyID == companyID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ListTemplates(_ context.Context, companyID payroll.CompanyID) ([]payroll.PaymentTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failure("ListTemplates"); err != nil {
		return nil, err
	}
	var out []payroll.PaymentTemplate
	for _, t := range m.templates {
		if t.CompanyID == companyID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetTemplate(_ context.Context, id payroll.TemplateID) (payroll.PaymentTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failure("GetTemplate"); err != nil {
		return payroll.PaymentTemplate{}, err
	}
	t, ok := m.templates[id]
	if !ok {
		return payroll.PaymentTemplate{}, payroll.ErrNotFound
	}
	return t, nil
}

func (m *Memory) ListComponents(_ context.Context, templateID payroll.TemplateID) ([]payroll.TemplateComponent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failure("ListComponents"); err != nil {
		return nil, err
	}
	var out []payroll.TemplateComponent
	for _, c := range m.components {
		if c.TemplateID == templateID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder == out[j].DisplayOrder {
			return out[i].ID < out[j].ID
		}
		return out[i].DisplayOrder < out[j].DisplayOrder
	})
	return out, nil
}

func (m *Memory) ListAssignments(_ context.Context, companyID payroll.CompanyID) ([]payroll.TemplateAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failure("ListAssignments"); err != nil {
		return nil, err
	}
	var out []payroll.TemplateAssignment
	for _, a := range m.assignments {
		if a.CompanyID == companyID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) LoadCatalog(_ context.Context, companyID payroll.CompanyID) (*statutory.Catalog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failure("LoadCatalog"); err != nil {
		return nil, err
	}
	keys := make([]statutoryKey, 0, len(m.statutory))
	for k, cfg := range m.statutory {
		if cfg.Header().CompanyID == string(companyID) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Kind == keys[j].Kind {
			return keys[i].ID < keys[j].ID
		}
		return keys[i].Kind < keys[j].Kind
	})
	cat := &statutory.Catalog{CompanyID: string(companyID)}
	for _, k := range keys {
		if err := cat.Add(m.statutory[k]); err != nil {
			return nil, err
		}
	}
	return cat, nil
}

func (m *Memory) GetPaySequence(_ context.Context, companyID payroll.CompanyID) (payroll.PaySequence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seq, ok := m.sequences[companyID]
	if !ok {
		return payroll.PaySequence{}, payroll.ErrNotFound
	}
	return seq, nil
}

func (m *Memory) GetAttendance(_ context.Context, employeeID payroll.EmployeeID, period payroll.Period) (payroll.Attendance, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failure("GetAttendance"); err != nil {
		return payroll.Attendance{}, false, err
	}
	a, ok := m.attendance[attendanceKey{EmployeeID: employeeID, Start: period.Start, End: period.End}]
	return a, ok, nil
}

func (m *Memory) ListSalaryFieldValues(_ context.Context, runID payroll.RunID, employeeID payroll.EmployeeID) ([]payroll.SalaryFieldValue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []payroll.SalaryFieldValue
	for k, v := range m.values[runID] {
		if k.EmployeeID == employeeID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FieldID < out[j].FieldID })
	return out, nil
}

// =============================================================================
// RUNS
// =============================================================================

func (m *Memory) CreateRun(_ context.Context, run payroll.PayrollRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("CreateRun"); err != nil {
		return err
	}
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) GetRun(_ context.Context, id payroll.RunID) (payroll.PayrollRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return payroll.PayrollRun{}, payroll.ErrNotFound
	}
	return run, nil
}

func (m *Memory) ListRuns(_ context.Context, companyID payroll.CompanyID) ([]payroll.PayrollRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []payroll.PayrollRun
	for _, r := range m.runs {
		if companyID == "" || r.CompanyID == companyID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// pendingLocked is the write guard. Callers hold m.mu.
func (m *Memory) pendingLocked(runID payroll.RunID) error {
	run, ok := m.runs[runID]
	if !ok {
		return payroll.ErrNotFound
	}
	if run.Status.Locked() {
		return &payroll.PayrollLockedError{RunID: runID, Status: run.Status}
	}
	return nil
}

func (m *Memory) ReplaceEmployeeResult(_ context.Context, runID payroll.RunID, employeeID payroll.EmployeeID, entries []payroll.PayrollEntry, faults []payroll.Fault) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("ReplaceEmployeeResult"); err != nil {
		return err
	}
	if err := m.pendingLocked(runID); err != nil {
		return err
	}

	if employeeID != "" {
		existing := m.entries[runID]
		if existing == nil {
			existing = make(map[entryKey]payroll.PayrollEntry)
			m.entries[runID] = existing
		}
		keep := make(map[entryKey]bool, len(entries))
		for _, e := range entries {
			k := entryKey{EmployeeID: employeeID, ComponentID: e.ComponentID}
			if old, ok := existing[k]; ok {
				e.ID = old.ID
			}
			e.EmployeeID = employeeID
			e.PayrollID = runID
			e.Warnings = append([]string(nil), e.Warnings...)
			existing[k] = e
			keep[k] = true
		}
		for k := range existing {
			if k.EmployeeID == employeeID && !keep[k] {
				delete(existing, k)
			}
		}
	}

	byEmployee := m.faults[runID]
	if byEmployee == nil {
		byEmployee = make(map[payroll.EmployeeID][]payroll.Fault)
		m.faults[runID] = byEmployee
	}
	if len(faults) == 0 {
		delete(byEmployee, employeeID)
	} else {
		byEmployee[employeeID] = append([]payroll.Fault(nil), faults...)
	}
	return nil
}

func (m *Memory) PruneEmployees(_ context.Context, runID payroll.RunID, keep []payroll.EmployeeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("PruneEmployees"); err != nil {
		return err
	}
	if err := m.pendingLocked(runID); err != nil {
		return err
	}

	kept := make(map[payroll.EmployeeID]bool, len(keep))
	for _, id := range keep {
		kept[id] = true
	}
	for k := range m.entries[runID] {
		if !kept[k.EmployeeID] {
			delete(m.entries[runID], k)
		}
	}
	for id := range m.faults[runID] {
		if id != "" && !kept[id] {
			delete(m.faults[runID], id)
		}
	}
	return nil
}

func (m *Memory) ListEntries(_ context.Context, runID payroll.RunID) ([]payroll.PayrollEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failure("ListEntries"); err != nil {
		return nil, err
	}
	out := make([]payroll.PayrollEntry, 0, len(m.entries[runID]))
	for _, e := range m.entries[runID] {
		out = append(out, e)
	}
	sortEntries(out)
	return out, nil
}

func sortEntries(entries []payroll.PayrollEntry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.EmployeeID != b.EmployeeID {
			return a.EmployeeID < b.EmployeeID
		}
		if a.DisplayOrder != b.DisplayOrder {
			return a.DisplayOrder < b.DisplayOrder
		}
		return a.ComponentID < b.ComponentID
	})
}

func (m *Memory) ListFaults(_ context.Context, runID payroll.RunID) ([]payroll.Fault, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []payroll.Fault
	for _, fs := range m.faults[runID] {
		out = append(out, fs...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].EmployeeID == out[j].EmployeeID {
			return out[i].Code < out[j].Code
		}
		return out[i].EmployeeID < out[j].EmployeeID
	})
	return out, nil
}

func (m *Memory) CommitTotals(_ context.Context, runID payroll.RunID, employees int, net decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.pendingLocked(runID); err != nil {
		return err
	}
	run := m.runs[runID]
	run.TotalEmployees = employees
	run.TotalNetAmount = net
	run.UpdatedAt = m.now().UTC()
	m.runs[runID] = run
	return nil
}

func (m *Memory) TransitionStatus(_ context.Context, runID payroll.RunID, from, to payroll.RunStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return payroll.ErrNotFound
	}
	if run.Status != from {
		return payroll.StatusConflict(runID, from, run.Status)
	}
	run.Status = to
	run.UpdatedAt = m.now().UTC()
	m.runs[runID] = run
	return nil
}

func (m *Memory) SaveSalaryFieldValue(_ context.Context, v payroll.SalaryFieldValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.pendingLocked(v.RunID); err != nil {
		return err
	}
	values := m.values[v.RunID]
	if values == nil {
		values = make(map[valueKey]payroll.SalaryFieldValue)
		m.values[v.RunID] = values
	}
	values[valueKey{EmployeeID: v.EmployeeID, FieldID: v.FieldID}] = v
	return nil
}

// =============================================================================
// ADMIN WRITES
// =============================================================================

func (m *Memory) SaveEmployee(_ context.Context, e payroll.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees[e.ID] = e
	return nil
}

func (m *Memory) SavePaymentField(_ context.Context, f payroll.PaymentField) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fields[f.ID] = f
	return nil
}

func (m *Memory) SaveTemplate(_ context.Context, t payroll.PaymentTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[t.ID] = t
	return nil
}

func (m *Memory) SaveComponent(_ context.Context, c payroll.TemplateComponent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components[c.ID] = c
	return nil
}

func (m *Memory) SaveAssignment(_ context.Context, a payroll.TemplateAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments[a.ID] = a
	return nil
}

func (m *Memory) SaveStatutory(_ context.Context, cfg statutory.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statutory[statutoryKey{Kind: cfg.Kind(), ID: cfg.Header().ID}] = cfg
	return nil
}

func (m *Memory) SavePaySequence(_ context.Context, seq payroll.PaySequence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequences[seq.CompanyID] = seq
	return nil
}

func (m *Memory) SaveAttendance(_ context.Context, a payroll.Attendance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attendance[attendanceKey{EmployeeID: a.EmployeeID, Start: a.Period.Start, End: a.Period.End}] = a
	return nil
}

// Reset clears every record. Failure hooks are kept.
func (m *Memory) Reset(_ context.Context) error {
	fresh := NewMemory()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees, m.fields, m.templates = fresh.employees, fresh.fields, fresh.templates
	m.components, m.assignments, m.statutory = fresh.components, fresh.assignments, fresh.statutory
	m.sequences, m.attendance = fresh.sequences, fresh.attendance
	m.runs, m.entries, m.faults, m.values = fresh.runs, fresh.entries, fresh.faults, fresh.values
	return nil
}

var _ payroll.Store = (*Memory)(nil)
