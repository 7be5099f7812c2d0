/*
store.go - Data-access contracts consumed by the engine

PURPOSE:
  The engine never owns persistence. It reads configuration and inputs
  and writes run results through these interfaces. Implementations live
  outside the package (memory, SQLite, PostgreSQL).

KEY INTERFACES:
  ConfigStore:       Employees, templates, assignments, statutory catalog
  AttendanceSource:  Present/working days and overtime per period
  SalaryFieldSource: Manually entered variable amounts
  RunStore:          Runs, entries, faults, status CAS
  AdminStore:        Configuration writes used by factories and the API

WRITE GUARD:
  Every RunStore write that touches entries, faults, totals or salary
  field values must check, inside the same transaction, that the run is
  still pending, and return *PayrollLockedError otherwise. Status changes
  are compare-and-swap: TransitionStatus succeeds only if the stored
  status equals from.

UPSERT:
  ReplaceEmployeeResult writes an employee's entries keyed by
  (employee, run, component). Existing rows are updated in place and keep
  their id; rows whose component is no longer present are removed. The
  employee's faults are replaced in the same transaction.

ERRORS:
  Missing records return ErrNotFound. Driver failures are wrapped with
  DataAccess so callers can test errors.Is(err, ErrDataAccess).

SEE ALSO:
  - payroll/store/memory.go: In-memory implementation
  - store/sqlite/sqlite.go: SQLite implementation
  - store/postgres/postgres.go: PostgreSQL implementation
*/
package payroll

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/statutory"
)

// =============================================================================
// READ SIDE
// =============================================================================

type ConfigStore interface {
	GetEmployee(ctx context.Context, id EmployeeID) (Employee, error)
	ListEmployees(ctx context.Context, scope RunScope) ([]Employee, error)

	ListPaymentFields(ctx context.Context, companyID CompanyID) ([]PaymentField, error)
	ListTemplates(ctx context.Context, companyID CompanyID) ([]PaymentTemplate, error)
	GetTemplate(ctx context.Context, id TemplateID) (PaymentTemplate, error)
	// ListComponents returns components ordered by DisplayOrder.
	ListComponents(ctx context.Context, templateID TemplateID) ([]TemplateComponent, error)
	ListAssignments(ctx context.Context, companyID CompanyID) ([]TemplateAssignment, error)

	LoadCatalog(ctx context.Context, companyID CompanyID) (*statutory.Catalog, error)
	// GetPaySequence returns ErrNotFound when the company has none.
	GetPaySequence(ctx context.Context, companyID CompanyID) (PaySequence, error)
}

type AttendanceSource interface {
	// GetAttendance returns found=false when no record exists.
	GetAttendance(ctx context.Context, employeeID EmployeeID, period Period) (Attendance, bool, error)
}

type SalaryFieldSource interface {
	ListSalaryFieldValues(ctx context.Context, runID RunID, employeeID EmployeeID) ([]SalaryFieldValue, error)
}

// =============================================================================
// RUN SIDE
// =============================================================================

type RunStore interface {
	CreateRun(ctx context.Context, run PayrollRun) error
	GetRun(ctx context.Context, id RunID) (PayrollRun, error)
	ListRuns(ctx context.Context, companyID CompanyID) ([]PayrollRun, error)

	// ReplaceEmployeeResult upserts entries and replaces faults for one
	// employee. An empty employeeID addresses run-level faults.
	ReplaceEmployeeResult(ctx context.Context, runID RunID, employeeID EmployeeID, entries []PayrollEntry, faults []Fault) error
	ListEntries(ctx context.Context, runID RunID) ([]PayrollEntry, error)
	ListFaults(ctx context.Context, runID RunID) ([]Fault, error)

	// PruneEmployees removes entries and faults of every employee not in
	// keep. Run-level faults stay. Same pending guard as the other writes.
	PruneEmployees(ctx context.Context, runID RunID, keep []EmployeeID) error

	// CommitTotals stores the derived run totals.
	CommitTotals(ctx context.Context, runID RunID, employees int, net decimal.Decimal) error

	// TransitionStatus is a compare-and-swap on the run status.
	TransitionStatus(ctx context.Context, runID RunID, from, to RunStatus) error

	SaveSalaryFieldValue(ctx context.Context, v SalaryFieldValue) error
}

// =============================================================================
// ADMIN SIDE
// =============================================================================

type AdminStore interface {
	SaveEmployee(ctx context.Context, e Employee) error
	SavePaymentField(ctx context.Context, f PaymentField) error
	SaveTemplate(ctx context.Context, t PaymentTemplate) error
	SaveComponent(ctx context.Context, c TemplateComponent) error
	SaveAssignment(ctx context.Context, a TemplateAssignment) error
	SaveStatutory(ctx context.Context, cfg statutory.Config) error
	SavePaySequence(ctx context.Context, seq PaySequence) error
	SaveAttendance(ctx context.Context, a Attendance) error
}

// Store is everything a full backend provides.
type Store interface {
	ConfigStore
	AttendanceSource
	SalaryFieldSource
	RunStore
	AdminStore
}
