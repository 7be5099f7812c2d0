/*
errors.go - Error taxonomy for the payroll engine

PURPOSE:
  All error types in one place. Callers test with errors.Is against the
  sentinels; structured errors carry context and unwrap to them.

ERROR CATEGORIES:
  1. Employee-scoped:  NoTemplateFound, AttendanceMissing, MalformedComponent
  2. Component-scoped: MissingStatutoryConfig (recoverable, amount 0)
  3. Run-scoped:       IncompletePayroll, PayrollLocked
  4. Store-level:      DataAccess, NotFound, ConcurrentModification

PROPAGATION:
  Employee and component faults are collected on the run result and
  never abort the batch. Run-scoped errors abort only the operation that
  raised them. The engine never retries; a DataAccess failure is reported
  and the caller may retry once.

SEE ALSO:
  - runner.go: Fault collection
  - lifecycle.go: IncompletePayroll / PayrollLocked
*/
package payroll

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNoTemplateFound is returned when no resolver strategy matches an employee.
	ErrNoTemplateFound = errors.New("no payment template found")

	// ErrMissingStatutoryConfig marks a statutory component with no usable record.
	ErrMissingStatutoryConfig = errors.New("missing statutory configuration")

	// ErrIncompletePayroll blocks approval while employees are unresolved.
	ErrIncompletePayroll = errors.New("incomplete payroll")

	// ErrPayrollLocked rejects writes to a run that has left pending.
	ErrPayrollLocked = errors.New("payroll is locked")

	// ErrDataAccess wraps any failure from the data-access collaborator.
	ErrDataAccess = errors.New("data access failure")

	// ErrMalformedComponent is returned for a component whose target or
	// classification cannot be evaluated.
	ErrMalformedComponent = errors.New("malformed template component")

	// ErrAttendanceMissing is returned when no attendance record exists and
	// full attendance was not configured.
	ErrAttendanceMissing = errors.New("attendance record missing")

	// ErrConcurrentModification is returned when a compare-and-swap loses.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrInvalidTransition is returned for a status change the lifecycle forbids.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNotFound is returned by stores for a missing record.
	ErrNotFound = errors.New("not found")

	// ErrInvalidPeriod is returned when a period ends before it starts.
	ErrInvalidPeriod = errors.New("invalid period: end before start")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

type NoTemplateFoundError struct {
	EmployeeID EmployeeID
	CompanyID  CompanyID
	Period     Period
}

func (e *NoTemplateFoundError) Error() string {
	return fmt.Sprintf("no payment template found for employee %s in company %s for %s",
		e.EmployeeID, e.CompanyID, e.Period)
}

func (e *NoTemplateFoundError) Unwrap() error { return ErrNoTemplateFound }

type MissingStatutoryConfigError struct {
	ComponentID ComponentID
	Target      TargetType
	ConfigID    string
}

func (e *MissingStatutoryConfigError) Error() string {
	return fmt.Sprintf("component %s: no %s configuration for %q", e.ComponentID, e.Target, e.ConfigID)
}

func (e *MissingStatutoryConfigError) Unwrap() error { return ErrMissingStatutoryConfig }

type MalformedComponentError struct {
	ComponentID ComponentID
	Reason      string
}

func (e *MalformedComponentError) Error() string {
	return fmt.Sprintf("component %s: %s", e.ComponentID, e.Reason)
}

func (e *MalformedComponentError) Unwrap() error { return ErrMalformedComponent }

type AttendanceMissingError struct {
	EmployeeID EmployeeID
	Period     Period
}

func (e *AttendanceMissingError) Error() string {
	return fmt.Sprintf("no attendance for employee %s in %s", e.EmployeeID, e.Period)
}

func (e *AttendanceMissingError) Unwrap() error { return ErrAttendanceMissing }

// IncompletePayrollError lists the employees that block approval.
type IncompletePayrollError struct {
	RunID     RunID
	Employees []EmployeeID
}

func (e *IncompletePayrollError) Error() string {
	ids := make([]string, len(e.Employees))
	for i, id := range e.Employees {
		ids[i] = string(id)
	}
	return fmt.Sprintf("payroll %s incomplete: %d employee(s) unresolved: %s",
		e.RunID, len(e.Employees), strings.Join(ids, ", "))
}

func (e *IncompletePayrollError) Unwrap() error { return ErrIncompletePayroll }

type PayrollLockedError struct {
	RunID  RunID
	Status RunStatus
}

func (e *PayrollLockedError) Error() string {
	return fmt.Sprintf("payroll %s is %s; entries are read-only", e.RunID, e.Status)
}

func (e *PayrollLockedError) Unwrap() error { return ErrPayrollLocked }

// TransitionConflictError reports a lost compare-and-swap on run status.
type TransitionConflictError struct {
	RunID    RunID
	Expected RunStatus
	Actual   RunStatus
}

func (e *TransitionConflictError) Error() string {
	return fmt.Sprintf("payroll %s: expected status %s, found %s", e.RunID, e.Expected, e.Actual)
}

func (e *TransitionConflictError) Unwrap() error { return ErrConcurrentModification }

// DataAccessError wraps a store failure. It matches both ErrDataAccess
// and the underlying cause.
type DataAccessError struct {
	Op  string
	Err error
}

func (e *DataAccessError) Error() string   { return e.Op + ": " + e.Err.Error() }
func (e *DataAccessError) Unwrap() []error { return []error{ErrDataAccess, e.Err} }

// DataAccess wraps err unless it is nil or already a domain error.
func DataAccess(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrPayrollLocked) ||
		errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrDataAccess) {
		return err
	}
	return &DataAccessError{Op: op, Err: err}
}

// StatusConflict builds the error for a failed status CAS. A run that
// has already left pending reports as locked.
func StatusConflict(runID RunID, expected, actual RunStatus) error {
	if expected == RunPending && actual.Locked() {
		return &PayrollLockedError{RunID: runID, Status: actual}
	}
	return &TransitionConflictError{RunID: runID, Expected: expected, Actual: actual}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrDataAccess)
}

// IsClientError returns true if the error is due to the request itself.
func IsClientError(err error) bool {
	return errors.Is(err, ErrIncompletePayroll) ||
		errors.Is(err, ErrPayrollLocked) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrMalformedComponent)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrNoTemplateFound)
}
