/*
runner.go - Batch computation of a payroll run

PURPOSE:
  Computes every in-scope employee of a pending run and stores their
  entries. Each employee goes through an independent pipeline:

    resolve template -> load components/fields/values -> attendance
      -> evaluate -> build entries -> ReplaceEmployeeResult

  Pipelines run on a bounded worker pool. A failure in one pipeline
  becomes a fault on that employee and never stops the others.

CONCURRENCY:
  - At most PoolSize pipelines run at once (errgroup.SetLimit).
  - Configuration reads go through a per-invocation cache; each key is
    loaded once per Compute.
  - Per-employee writes go through the store's pending guard. If the run
    is approved mid-flight, the remaining writes fail with
    *PayrollLockedError and Compute reports it.
  - Run totals are derived once, after all pipelines finish, from the
    stored entry set. They are never accumulated by workers.

CANCELLATION:
  Cancelling ctx stops new pipelines from starting, including one that
  was waiting for a free worker. Pipelines already running finish their
  write so no employee is left half-written. The result lists the
  employees that were skipped.

SCOPE:
  Entries and faults of employees no longer in scope (deactivated, exited
  or moved to another site since the last compute) are pruned before the
  totals are derived, so totals and approval see the current scope only.

IDEMPOTENCY:
  Recomputing a pending run upserts entries by (employee, run, component)
  and replaces faults, so the entry set never grows duplicates.

SEE ALSO:
  - resolver.go: Template precedence
  - evaluator.go: Component amounts
  - lifecycle.go: Approval and locking
*/
package payroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const DefaultPoolSize = 8

// EmployeeResult is the outcome of one employee pipeline.
type EmployeeResult struct {
	EmployeeID EmployeeID
	TemplateID TemplateID
	Evaluation Evaluation
	Totals     Totals
	Entries    []PayrollEntry
	Faults     []Fault
	// Err is set when the pipeline could not store its result.
	Err error
}

// Fatal reports whether the employee ended without entries.
func (r EmployeeResult) Fatal() bool {
	for _, f := range r.Faults {
		if f.Fatal {
			return true
		}
	}
	return false
}

type RunResult struct {
	Run       PayrollRun
	Employees []EmployeeResult
	Faults    []Fault
	Cancelled bool
	Skipped   []EmployeeID
}

// =============================================================================
// RUNNER
// =============================================================================

type Runner struct {
	Store      Store
	Attendance AttendanceAdapter
	Evaluator  Evaluator
	Strategies []ResolveStrategy
	PoolSize   int
	Logger     *slog.Logger
	NewID      func() string
	Now        func() time.Time
}

// NewRunner returns a runner reading attendance from the same store.
func NewRunner(store Store, logger *slog.Logger) *Runner {
	return &Runner{
		Store:      store,
		Attendance: AttendanceAdapter{Source: store},
		Strategies: DefaultStrategies(),
		PoolSize:   DefaultPoolSize,
		Logger:     logger,
		NewID:      uuid.NewString,
		Now:        time.Now,
	}
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

func (r *Runner) newID() string {
	if r.NewID == nil {
		return uuid.NewString()
	}
	return r.NewID()
}

func (r *Runner) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now().UTC()
}

func (r *Runner) resolver(src TemplateSource) *Resolver {
	strategies := r.Strategies
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	return &Resolver{Source: src, Strategies: strategies}
}

// CreateRun opens a pending run for a company or one of its sites.
func (r *Runner) CreateRun(ctx context.Context, scope RunScope, period Period, runDate time.Time) (PayrollRun, error) {
	if scope.CompanyID == "" {
		return PayrollRun{}, fmt.Errorf("create run: company is required")
	}
	if period.End.Before(period.Start) {
		return PayrollRun{}, ErrInvalidPeriod
	}
	now := r.now()
	if runDate.IsZero() {
		runDate = now
	}
	run := PayrollRun{
		ID:             RunID(r.newID()),
		CompanyID:      scope.CompanyID,
		SiteID:         scope.SiteID,
		Period:         period,
		Status:         RunPending,
		RunDate:        runDate,
		TotalNetAmount: decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := r.Store.CreateRun(ctx, run); err != nil {
		return PayrollRun{}, DataAccess("create run", err)
	}
	r.logger().Info("payroll run created",
		"run_id", run.ID, "company_id", run.CompanyID, "site_id", run.SiteID, "period", run.Period.String())
	return run, nil
}

// Compute evaluates every in-scope employee of a pending run and stores
// entries, faults and totals.
func (r *Runner) Compute(ctx context.Context, runID RunID) (RunResult, error) {
	started := time.Now()
	run, err := r.Store.GetRun(ctx, runID)
	if err != nil {
		return RunResult{}, DataAccess("get run", err)
	}
	if run.Status.Locked() {
		return RunResult{Run: run}, &PayrollLockedError{RunID: runID, Status: run.Status}
	}

	cache := newRunCache(r.Store)
	all, err := cache.ListEmployees(ctx, run.Scope())
	if err != nil {
		return RunResult{Run: run}, DataAccess("list employees", err)
	}
	var employees []Employee
	for _, emp := range all {
		if emp.InScope(run.Period) {
			employees = append(employees, emp)
		}
	}

	log := r.logger().With("run_id", run.ID, "company_id", run.CompanyID)
	log.Info("computing payroll", "employees", len(employees), "period", run.Period.String())

	poolSize := r.PoolSize
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	resolver := r.resolver(cache)
	results := make([]*EmployeeResult, len(employees))
	work := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(poolSize)
	result := RunResult{}
	skipped := make([]bool, len(employees))
	for i, emp := range employees {
		if ctx.Err() != nil {
			for j := i; j < len(employees); j++ {
				skipped[j] = true
			}
			break
		}
		// g.Go blocks while the pool is full; ctx may be cancelled by the
		// time a slot frees up.
		g.Go(func() error {
			if ctx.Err() != nil {
				skipped[i] = true
				return nil
			}
			res := r.compute(work, cache, resolver, run, emp)
			results[i] = &res
			return nil
		})
	}
	_ = g.Wait()
	for i, s := range skipped {
		if s {
			result.Cancelled = true
			result.Skipped = append(result.Skipped, employees[i].ID)
		}
	}

	var locked error
	for _, res := range results {
		if res == nil {
			continue
		}
		result.Employees = append(result.Employees, *res)
		result.Faults = append(result.Faults, res.Faults...)
		for _, f := range res.Faults {
			if f.Fatal {
				log.Warn("employee not computed", "employee_id", res.EmployeeID, "code", f.Code, "message", f.Message)
			}
		}
		if res.Err != nil {
			if errors.Is(res.Err, ErrPayrollLocked) {
				locked = res.Err
			}
			log.Error("employee result not stored", "employee_id", res.EmployeeID, "error", res.Err)
		}
	}
	if locked == nil {
		// Employees that left the scope since the last compute (deactivated,
		// exited, moved site) must not keep entries the totals would count.
		keep := make([]EmployeeID, len(employees))
		for i, emp := range employees {
			keep[i] = emp.ID
		}
		if err := r.Store.PruneEmployees(work, runID, keep); err != nil {
			if !errors.Is(err, ErrPayrollLocked) {
				return result, DataAccess("prune employees", err)
			}
			locked = err
		}
	}
	if locked != nil {
		result.Run, _ = r.Store.GetRun(work, runID)
		return result, locked
	}

	entries, err := r.Store.ListEntries(work, runID)
	if err != nil {
		return result, DataAccess("list entries", err)
	}
	count, net := RunTotals(entries)
	if err := r.Store.CommitTotals(work, runID, count, net); err != nil {
		return result, DataAccess("commit totals", err)
	}
	if result.Run, err = r.Store.GetRun(work, runID); err != nil {
		return result, DataAccess("get run", err)
	}

	log.Info("payroll computed",
		"employees", count,
		"faults", len(result.Faults),
		"total_net", net.String(),
		"cancelled", result.Cancelled,
		"skipped", len(result.Skipped),
		"duration", time.Since(started))
	return result, nil
}

// Preview evaluates one employee against a run without writing anything.
// It works in every run state.
func (r *Runner) Preview(ctx context.Context, runID RunID, employeeID EmployeeID) (EmployeeResult, error) {
	run, err := r.Store.GetRun(ctx, runID)
	if err != nil {
		return EmployeeResult{}, DataAccess("get run", err)
	}
	emp, err := r.Store.GetEmployee(ctx, employeeID)
	if err != nil {
		return EmployeeResult{}, DataAccess("get employee", err)
	}
	if emp.CompanyID != run.CompanyID {
		return EmployeeResult{}, &NoTemplateFoundError{EmployeeID: employeeID, CompanyID: run.CompanyID, Period: run.Period}
	}
	cache := newRunCache(r.Store)
	res := r.evaluate(ctx, cache, r.resolver(cache), run, emp)
	return res, nil
}

// =============================================================================
// PIPELINE
// =============================================================================

// compute evaluates and stores one employee.
func (r *Runner) compute(ctx context.Context, cache *runCache, resolver *Resolver, run PayrollRun, emp Employee) EmployeeResult {
	res := r.evaluate(ctx, cache, resolver, run, emp)
	if err := r.Store.ReplaceEmployeeResult(ctx, run.ID, emp.ID, res.Entries, res.Faults); err != nil {
		res.Err = DataAccess("replace employee result", err)
		if !errors.Is(err, ErrPayrollLocked) {
			res.Faults = append(res.Faults, r.fault(run.ID, emp.ID, res.Err))
		}
		return res
	}
	r.logger().Debug("employee computed",
		"run_id", run.ID, "employee_id", emp.ID, "template_id", res.TemplateID,
		"entries", len(res.Entries), "faults", len(res.Faults))
	return res
}

// evaluate runs the read-only part of the pipeline. A fatal fault leaves
// Entries empty.
func (r *Runner) evaluate(ctx context.Context, cache *runCache, resolver *Resolver, run PayrollRun, emp Employee) EmployeeResult {
	res := EmployeeResult{EmployeeID: emp.ID}

	in, err := r.prepare(ctx, cache, resolver, run, emp)
	res.TemplateID = in.Template.ID
	if err != nil {
		res.Faults = []Fault{r.fault(run.ID, emp.ID, err)}
		return res
	}

	eval, err := r.Evaluator.Evaluate(in)
	if err != nil {
		res.Faults = []Fault{r.fault(run.ID, emp.ID, err)}
		return res
	}

	res.Evaluation = eval
	res.Entries = BuildEntries(run.ID, emp.ID, eval.Components, r.newID)
	res.Totals = Aggregate(eval.Components)
	res.Faults = warningFaults(run.ID, emp.ID, eval, res.Totals)
	return res
}

// prepare gathers everything the evaluator needs for one employee.
func (r *Runner) prepare(ctx context.Context, cache *runCache, resolver *Resolver, run PayrollRun, emp Employee) (EvaluationInput, error) {
	in := EvaluationInput{RunID: run.ID, Employee: emp, Period: run.Period}

	templateID, err := resolver.ResolveFor(ctx, emp, run.Period)
	if err != nil {
		return in, err
	}
	if in.Template, err = cache.GetTemplate(ctx, templateID); err != nil {
		return in, DataAccess("get template", err)
	}
	if in.Components, err = cache.ListComponents(ctx, templateID); err != nil {
		return in, DataAccess("list components", err)
	}
	if in.Fields, err = cache.ListPaymentFields(ctx, emp.CompanyID); err != nil {
		return in, DataAccess("list payment fields", err)
	}
	if in.Catalog, err = cache.LoadCatalog(ctx, emp.CompanyID); err != nil {
		return in, DataAccess("load statutory catalog", err)
	}
	if in.PaySequence, err = cache.GetPaySequence(ctx, emp.CompanyID); err != nil {
		return in, DataAccess("get pay sequence", err)
	}
	if in.Values, err = r.Store.ListSalaryFieldValues(ctx, run.ID, emp.ID); err != nil {
		return in, DataAccess("list salary field values", err)
	}
	attendance := r.Attendance
	if attendance.Source == nil {
		attendance.Source = r.Store
	}
	if in.Attendance, err = attendance.Get(ctx, emp.ID, run.Period, in.PaySequence); err != nil {
		return in, err
	}
	return in, nil
}

// fault classifies a pipeline error. Every classified error is fatal for
// the employee.
func (r *Runner) fault(runID RunID, employeeID EmployeeID, err error) Fault {
	f := Fault{RunID: runID, EmployeeID: employeeID, Message: err.Error(), Fatal: true}
	var malformed *MalformedComponentError
	switch {
	case errors.Is(err, ErrNoTemplateFound):
		f.Code = FaultNoTemplateFound
	case errors.As(err, &malformed):
		f.Code = FaultMalformedComponent
		f.ComponentID = malformed.ComponentID
	case errors.Is(err, ErrAttendanceMissing):
		f.Code = FaultAttendanceMissing
	default:
		f.Code = FaultDataAccess
	}
	return f
}

// warningFaults turns evaluation warnings into non-fatal faults.
func warningFaults(runID RunID, employeeID EmployeeID, eval Evaluation, totals Totals) []Fault {
	var faults []Fault
	for _, c := range eval.Components {
		for _, w := range c.Warnings {
			faults = append(faults, Fault{
				RunID: runID, EmployeeID: employeeID, ComponentID: c.ComponentID,
				Code: w.Code, Message: w.Message,
			})
		}
	}
	for _, w := range eval.Warnings {
		faults = append(faults, Fault{RunID: runID, EmployeeID: employeeID, Code: w.Code, Message: w.Message})
	}
	if totals.Total.IsNegative() {
		faults = append(faults, Fault{
			RunID: runID, EmployeeID: employeeID, Code: FaultNegativeNet,
			Message: fmt.Sprintf("deductions exceed gross: net %s", totals.Total.StringFixed(2)),
		})
	}
	return faults
}
