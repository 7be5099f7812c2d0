/*
Package sqlite provides a SQLite-backed implementation of payroll.Store.

PURPOSE:
  Persists configuration (employees, templates, statutory records),
  inputs (attendance, salary field values) and run results (runs,
  entries, faults). The PostgreSQL store in store/postgres implements
  the same contract with the same table layout.

KEY TABLES:
  employees, payment_fields, payment_templates, template_components,
  template_assignments:  Configuration
  statutory_configs:     One row per record, payload in config_json
  pay_sequences:         Company pay calendar
  attendance:            Present/working days per employee and period
  payroll_runs:          Run header with status and derived totals
  payroll_entries:       UNIQUE(employee_id, payroll_id, component_id)
  payroll_faults:        Faults from the last computation
  salary_field_values:   Manually entered variable amounts

MONEY:
  Decimals are stored as TEXT and parsed with shopspring/decimal, so no
  value ever passes through float64.

WRITE GUARD:
  Every write to entries, faults, totals or salary values runs in a
  transaction that first reads the run status and returns
  *payroll.PayrollLockedError unless it is pending. Status changes are
  UPDATE ... WHERE status = from; zero affected rows is a lost race.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of SQLite's single writer.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) so readers don't block
  the writer.

USAGE:
  store, err := sqlite.New("./data/payroll.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  runner := payroll.NewRunner(store, logger)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - payroll/store.go: Interface definitions
  - payroll/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/statutory"
)

const dateLayout = "2006-01-02"

// Store implements payroll.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		site_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		position TEXT NOT NULL DEFAULT '',
		skill_level TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT '',
		joined_on TEXT,
		exited_on TEXT,
		ctc_override TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE INDEX IF NOT EXISTS idx_employees_company_site
		ON employees(company_id, site_id);

	CREATE TABLE IF NOT EXISTS payment_fields (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		name TEXT NOT NULL,
		code TEXT NOT NULL DEFAULT '',
		field_type TEXT NOT NULL,
		pf_wage BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE TABLE IF NOT EXISTS payment_templates (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		name TEXT NOT NULL,
		annual_ctc TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		is_default BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_templates_company
		ON payment_templates(company_id);

	CREATE TABLE IF NOT EXISTS template_components (
		id TEXT PRIMARY KEY,
		template_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		component_type TEXT NOT NULL,
		calculation_type TEXT NOT NULL DEFAULT '',
		calculation_value TEXT NOT NULL DEFAULT '0',
		display_order INTEGER NOT NULL DEFAULT 0,
		overtime BOOLEAN NOT NULL DEFAULT FALSE,
		target_type TEXT NOT NULL,
		target_id TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_components_template
		ON template_components(template_id, display_order);

	CREATE TABLE IF NOT EXISTS template_assignments (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		template_id TEXT NOT NULL,
		assignment_type TEXT NOT NULL,
		employee_id TEXT NOT NULL DEFAULT '',
		site_id TEXT NOT NULL DEFAULT '',
		eligibility TEXT NOT NULL DEFAULT '',
		eligibility_value TEXT NOT NULL DEFAULT '',
		effective_from TEXT NOT NULL,
		effective_to TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_assignments_company
		ON template_assignments(company_id);

	CREATE TABLE IF NOT EXISTS statutory_configs (
		kind TEXT NOT NULL,
		id TEXT NOT NULL,
		company_id TEXT NOT NULL,
		is_default BOOLEAN NOT NULL DEFAULT FALSE,
		config_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (kind, id)
	);

	CREATE INDEX IF NOT EXISTS idx_statutory_company
		ON statutory_configs(company_id, kind);

	CREATE TABLE IF NOT EXISTS pay_sequences (
		company_id TEXT PRIMARY KEY,
		frequency TEXT NOT NULL,
		working_days INTEGER NOT NULL,
		pay_day INTEGER NOT NULL,
		overtime_multiplier TEXT NOT NULL,
		hours_per_day TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS attendance (
		employee_id TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		present_days TEXT NOT NULL,
		working_days TEXT NOT NULL,
		overtime_hours TEXT NOT NULL DEFAULT '0',
		PRIMARY KEY (employee_id, period_start, period_end)
	);

	CREATE TABLE IF NOT EXISTS payroll_runs (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		site_id TEXT NOT NULL DEFAULT '',
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		run_date TEXT NOT NULL,
		total_employees INTEGER NOT NULL DEFAULT 0,
		total_net_amount TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_company
		ON payroll_runs(company_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_runs_status
		ON payroll_runs(status);

	CREATE TABLE IF NOT EXISTS payroll_entries (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		payroll_id TEXT NOT NULL REFERENCES payroll_runs(id),
		component_id TEXT NOT NULL,
		name TEXT NOT NULL,
		component_type TEXT NOT NULL,
		display_order INTEGER NOT NULL DEFAULT 0,
		amount TEXT NOT NULL,
		raw_amount TEXT NOT NULL,
		payment_status TEXT NOT NULL DEFAULT 'unpaid',
		warnings_json TEXT
	);

	-- One row per (employee, run, component); recomputation upserts.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_unique
		ON payroll_entries(employee_id, payroll_id, component_id);
	CREATE INDEX IF NOT EXISTS idx_entries_payroll
		ON payroll_entries(payroll_id);

	CREATE TABLE IF NOT EXISTS payroll_faults (
		payroll_id TEXT NOT NULL REFERENCES payroll_runs(id),
		employee_id TEXT NOT NULL DEFAULT '',
		component_id TEXT NOT NULL DEFAULT '',
		code TEXT NOT NULL,
		message TEXT NOT NULL,
		fatal BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_faults_payroll_employee
		ON payroll_faults(payroll_id, employee_id);

	CREATE TABLE IF NOT EXISTS salary_field_values (
		payroll_id TEXT NOT NULL REFERENCES payroll_runs(id),
		employee_id TEXT NOT NULL,
		field_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		field_type TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (payroll_id, employee_id, field_id)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// EMPLOYEES
// =============================================================================

const employeeColumns = `id, company_id, site_id, name, position, skill_level, state,
	joined_on, exited_on, ctc_override, active`

func (s *Store) SaveEmployee(ctx context.Context, e payroll.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO employees (` + employeeColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			company_id = excluded.company_id,
			site_id = excluded.site_id,
			name = excluded.name,
			position = excluded.position,
			skill_level = excluded.skill_level,
			state = excluded.state,
			joined_on = excluded.joined_on,
			exited_on = excluded.exited_on,
			ctc_override = excluded.ctc_override,
			active = excluded.active
	`
	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.CompanyID, e.SiteID, e.Name, e.Position, e.SkillLevel, e.State,
		formatDate(e.JoinedOn), formatDatePtr(e.ExitedOn), formatDecimalPtr(e.CTCOverride), e.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

func (s *Store) GetEmployee(ctx context.Context, id payroll.EmployeeID) (payroll.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = ?`, id)
	e, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return payroll.Employee{}, payroll.ErrNotFound
	}
	return e, err
}

func (s *Store) ListEmployees(ctx context.Context, scope payroll.RunScope) ([]payroll.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + employeeColumns + ` FROM employees WHERE company_id = ?`
	args := []any{scope.CompanyID}
	if scope.SiteID != "" {
		query += ` AND site_id = ?`
		args = append(args, scope.SiteID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	defer rows.Close()

	var out []payroll.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEmployee(sc scanner) (payroll.Employee, error) {
	var (
		e                 payroll.Employee
		joined, exited    sql.NullString
		ctcOverride       sql.NullString
		companyID, siteID string
	)
	if err := sc.Scan(&e.ID, &companyID, &siteID, &e.Name, &e.Position, &e.SkillLevel, &e.State,
		&joined, &exited, &ctcOverride, &e.Active); err != nil {
		return payroll.Employee{}, err
	}
	e.CompanyID = payroll.CompanyID(companyID)
	e.SiteID = payroll.SiteID(siteID)

	var err error
	if e.JoinedOn, err = parseDate(joined.String); err != nil {
		return payroll.Employee{}, err
	}
	if e.ExitedOn, err = parseDatePtr(exited); err != nil {
		return payroll.Employee{}, err
	}
	if e.CTCOverride, err = parseDecimalPtr(ctcOverride); err != nil {
		return payroll.Employee{}, err
	}
	return e, nil
}

// =============================================================================
// PAYMENT FIELDS AND TEMPLATES
// =============================================================================

func (s *Store) SavePaymentField(ctx context.Context, f payroll.PaymentField) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO payment_fields (id, company_id, name, code, field_type, pf_wage)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			company_id = excluded.company_id,
			name = excluded.name,
			code = excluded.code,
			field_type = excluded.field_type,
			pf_wage = excluded.pf_wage
	`
	if _, err := s.db.ExecContext(ctx, query, f.ID, f.CompanyID, f.Name, f.Code, f.Type, f.PFWage); err != nil {
		return fmt.Errorf("failed to save payment field: %w", err)
	}
	return nil
}

func (s *Store) ListPaymentFields(ctx context.Context, companyID payroll.CompanyID) ([]payroll.PaymentField, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, name, code, field_type, pf_wage
		FROM payment_fields WHERE company_id = ? ORDER BY id`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment fields: %w", err)
	}
	defer rows.Close()

	var out []payroll.PaymentField
	for rows.Next() {
		var (
			f                 payroll.PaymentField
			id, company, kind string
		)
		if err := rows.Scan(&id, &company, &f.Name, &f.Code, &kind, &f.PFWage); err != nil {
			return nil, err
		}
		f.ID, f.CompanyID, f.Type = payroll.FieldID(id), payroll.CompanyID(company), payroll.ComponentType(kind)
		out = append(out, f)
	}
	return out, rows.Err()
}

const templateColumns = `id, company_id, name, annual_ctc, is_active, is_default, created_at`

func (s *Store) SaveTemplate(ctx context.Context, t payroll.PaymentTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO payment_templates (` + templateColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			company_id = excluded.company_id,
			name = excluded.name,
			annual_ctc = excluded.annual_ctc,
			is_active = excluded.is_active,
			is_default = excluded.is_default
	`
	_, err := s.db.ExecContext(ctx, query,
		t.ID, t.CompanyID, t.Name, t.AnnualCTC.String(), t.IsActive, t.IsDefault, formatTime(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}
	return nil
}

func (s *Store) GetTemplate(ctx context.Context, id payroll.TemplateID) (payroll.PaymentTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := scanTemplate(s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM payment_templates WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return payroll.PaymentTemplate{}, payroll.ErrNotFound
	}
	return t, err
}

func (s *Store) ListTemplates(ctx context.Context, companyID payroll.CompanyID) ([]payroll.PaymentTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+templateColumns+` FROM payment_templates WHERE company_id = ? ORDER BY id`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var out []payroll.PaymentTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTemplate(sc scanner) (payroll.PaymentTemplate, error) {
	var (
		t              payroll.PaymentTemplate
		id, company    string
		ctc, createdAt string
	)
	if err := sc.Scan(&id, &company, &t.Name, &ctc, &t.IsActive, &t.IsDefault, &createdAt); err != nil {
		return payroll.PaymentTemplate{}, err
	}
	t.ID, t.CompanyID = payroll.TemplateID(id), payroll.CompanyID(company)
	var err error
	if t.AnnualCTC, err = decimal.NewFromString(ctc); err != nil {
		return payroll.PaymentTemplate{}, fmt.Errorf("template %s: annual_ctc: %w", id, err)
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return payroll.PaymentTemplate{}, err
	}
	return t, nil
}

func (s *Store) SaveComponent(ctx context.Context, c payroll.TemplateComponent) error {
	targetType, targetID := targetColumns(c.Target)

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO template_components
		(id, template_id, name, component_type, calculation_type, calculation_value,
		 display_order, overtime, target_type, target_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			template_id = excluded.template_id,
			name = excluded.name,
			component_type = excluded.component_type,
			calculation_type = excluded.calculation_type,
			calculation_value = excluded.calculation_value,
			display_order = excluded.display_order,
			overtime = excluded.overtime,
			target_type = excluded.target_type,
			target_id = excluded.target_id
	`
	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.TemplateID, c.Name, c.ComponentType, c.CalculationType, c.CalculationValue.String(),
		c.DisplayOrder, c.Overtime, targetType, targetID)
	if err != nil {
		return fmt.Errorf("failed to save component: %w", err)
	}
	return nil
}

func (s *Store) ListComponents(ctx context.Context, templateID payroll.TemplateID) ([]payroll.TemplateComponent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, template_id, name, component_type, calculation_type, calculation_value,
		       display_order, overtime, target_type, target_id
		FROM template_components
		WHERE template_id = ?
		ORDER BY display_order, id`, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list components: %w", err)
	}
	defer rows.Close()

	var out []payroll.TemplateComponent
	for rows.Next() {
		var (
			c                           payroll.TemplateComponent
			id, tpl, ctype, calc, value string
			targetType, targetID        string
		)
		if err := rows.Scan(&id, &tpl, &c.Name, &ctype, &calc, &value,
			&c.DisplayOrder, &c.Overtime, &targetType, &targetID); err != nil {
			return nil, err
		}
		c.ID, c.TemplateID = payroll.ComponentID(id), payroll.TemplateID(tpl)
		c.ComponentType, c.CalculationType = payroll.ComponentType(ctype), payroll.CalculationType(calc)
		if c.CalculationValue, err = decimal.NewFromString(value); err != nil {
			return nil, fmt.Errorf("component %s: calculation_value: %w", id, err)
		}
		// A bad target is left nil with its reason so the evaluator reports
		// the component as malformed instead of failing the whole listing.
		c.Target, c.TargetErr = payroll.NewTarget(targetType, targetID)
		out = append(out, c)
	}
	return out, rows.Err()
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

func (s *Store) SaveAssignment(ctx context.Context, a payroll.TemplateAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO template_assignments
		(id, company_id, template_id, assignment_type, employee_id, site_id, eligibility,
		 eligibility_value, effective_from, effective_to, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			template_id = excluded.template_id,
			assignment_type = excluded.assignment_type,
			employee_id = excluded.employee_id,
			site_id = excluded.site_id,
			eligibility = excluded.eligibility,
			eligibility_value = excluded.eligibility_value,
			effective_from = excluded.effective_from,
			effective_to = excluded.effective_to,
			is_active = excluded.is_active
	`
	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.CompanyID, a.TemplateID, a.Type, a.EmployeeID, a.SiteID, a.Eligibility,
		a.EligibilityValue, formatDate(a.EffectiveFrom), formatDatePtr(a.EffectiveTo), a.IsActive,
		formatTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save assignment: %w", err)
	}
	return nil
}

func (s *Store) ListAssignments(ctx context.Context, companyID payroll.CompanyID) ([]payroll.TemplateAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, template_id, assignment_type, employee_id, site_id, eligibility,
		       eligibility_value, effective_from, effective_to, is_active, created_at
		FROM template_assignments
		WHERE company_id = ?
		ORDER BY id`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	var out []payroll.TemplateAssignment
	for rows.Next() {
		var (
			a                                  payroll.TemplateAssignment
			company, tpl, typ, emp, site, elig string
			from, createdAt                    string
			to                                 sql.NullString
		)
		if err := rows.Scan(&a.ID, &company, &tpl, &typ, &emp, &site, &elig,
			&a.EligibilityValue, &from, &to, &a.IsActive, &createdAt); err != nil {
			return nil, err
		}
		a.CompanyID, a.TemplateID = payroll.CompanyID(company), payroll.TemplateID(tpl)
		a.Type, a.EmployeeID, a.SiteID = payroll.AssignmentType(typ), payroll.EmployeeID(emp), payroll.SiteID(site)
		a.Eligibility = payroll.Eligibility(elig)
		if a.EffectiveFrom, err = parseDate(from); err != nil {
			return nil, err
		}
		if a.EffectiveTo, err = parseDatePtr(to); err != nil {
			return nil, err
		}
		if a.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// =============================================================================
// STATUTORY CATALOG
// =============================================================================

func (s *Store) SaveStatutory(ctx context.Context, cfg statutory.Config) error {
	data, err := statutory.Encode(cfg)
	if err != nil {
		return err
	}
	h := cfg.Header()

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO statutory_configs (kind, id, company_id, is_default, config_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, id) DO UPDATE SET
			company_id = excluded.company_id,
			is_default = excluded.is_default,
			config_json = excluded.config_json,
			created_at = excluded.created_at
	`
	if _, err := s.db.ExecContext(ctx, query,
		cfg.Kind(), h.ID, h.CompanyID, h.IsDefault, string(data), formatTime(h.CreatedAt)); err != nil {
		return fmt.Errorf("failed to save statutory config: %w", err)
	}
	return nil
}

func (s *Store) LoadCatalog(ctx context.Context, companyID payroll.CompanyID) (*statutory.Catalog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, config_json FROM statutory_configs
		WHERE company_id = ?
		ORDER BY kind, id`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load statutory catalog: %w", err)
	}
	defer rows.Close()

	cat := &statutory.Catalog{CompanyID: string(companyID)}
	for rows.Next() {
		var kind, data string
		if err := rows.Scan(&kind, &data); err != nil {
			return nil, err
		}
		k, err := statutory.ParseKind(kind)
		if err != nil {
			return nil, err
		}
		cfg, err := statutory.Decode(k, []byte(data))
		if err != nil {
			return nil, err
		}
		if err := cat.Add(cfg); err != nil {
			return nil, err
		}
	}
	return cat, rows.Err()
}

// =============================================================================
// PAY SEQUENCE AND ATTENDANCE
// =============================================================================

func (s *Store) SavePaySequence(ctx context.Context, seq payroll.PaySequence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO pay_sequences (company_id, frequency, working_days, pay_day, overtime_multiplier, hours_per_day)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(company_id) DO UPDATE SET
			frequency = excluded.frequency,
			working_days = excluded.working_days,
			pay_day = excluded.pay_day,
			overtime_multiplier = excluded.overtime_multiplier,
			hours_per_day = excluded.hours_per_day
	`
	_, err := s.db.ExecContext(ctx, query, seq.CompanyID, seq.Frequency, seq.WorkingDays, seq.PayDay,
		seq.OvertimeMultiplier.String(), seq.HoursPerDay.String())
	if err != nil {
		return fmt.Errorf("failed to save pay sequence: %w", err)
	}
	return nil
}

func (s *Store) GetPaySequence(ctx context.Context, companyID payroll.CompanyID) (payroll.PaySequence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		seq               payroll.PaySequence
		freq              string
		multiplier, hours string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT frequency, working_days, pay_day, overtime_multiplier, hours_per_day
		FROM pay_sequences WHERE company_id = ?`, companyID,
	).Scan(&freq, &seq.WorkingDays, &seq.PayDay, &multiplier, &hours)
	if errors.Is(err, sql.ErrNoRows) {
		return payroll.PaySequence{}, payroll.ErrNotFound
	}
	if err != nil {
		return payroll.PaySequence{}, fmt.Errorf("failed to get pay sequence: %w", err)
	}
	seq.CompanyID, seq.Frequency = companyID, payroll.PayFrequency(freq)
	if seq.OvertimeMultiplier, err = decimal.NewFromString(multiplier); err != nil {
		return payroll.PaySequence{}, err
	}
	if seq.HoursPerDay, err = decimal.NewFromString(hours); err != nil {
		return payroll.PaySequence{}, err
	}
	return seq, nil
}

func (s *Store) SaveAttendance(ctx context.Context, a payroll.Attendance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO attendance (employee_id, period_start, period_end, present_days, working_days, overtime_hours)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(employee_id, period_start, period_end) DO UPDATE SET
			present_days = excluded.present_days,
			working_days = excluded.working_days,
			overtime_hours = excluded.overtime_hours
	`
	_, err := s.db.ExecContext(ctx, query, a.EmployeeID, formatDate(a.Period.Start), formatDate(a.Period.End),
		a.PresentDays.String(), a.WorkingDays.String(), a.OvertimeHours.String())
	if err != nil {
		return fmt.Errorf("failed to save attendance: %w", err)
	}
	return nil
}

func (s *Store) GetAttendance(ctx context.Context, employeeID payroll.EmployeeID, period payroll.Period) (payroll.Attendance, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var present, working, overtime string
	err := s.db.QueryRowContext(ctx, `
		SELECT present_days, working_days, overtime_hours
		FROM attendance
		WHERE employee_id = ? AND period_start = ? AND period_end = ?`,
		employeeID, formatDate(period.Start), formatDate(period.End),
	).Scan(&present, &working, &overtime)
	if errors.Is(err, sql.ErrNoRows) {
		return payroll.Attendance{}, false, nil
	}
	if err != nil {
		return payroll.Attendance{}, false, fmt.Errorf("failed to get attendance: %w", err)
	}

	a := payroll.Attendance{EmployeeID: employeeID, Period: period}
	if a.PresentDays, err = decimal.NewFromString(present); err != nil {
		return payroll.Attendance{}, false, err
	}
	if a.WorkingDays, err = decimal.NewFromString(working); err != nil {
		return payroll.Attendance{}, false, err
	}
	if a.OvertimeHours, err = decimal.NewFromString(overtime); err != nil {
		return payroll.Attendance{}, false, err
	}
	return a, true, nil
}

// =============================================================================
// RUNS
// =============================================================================

const runColumns = `id, company_id, site_id, period_start, period_end, status, run_date,
	total_employees, total_net_amount, created_at, updated_at`

func (s *Store) CreateRun(ctx context.Context, run payroll.PayrollRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `INSERT INTO payroll_runs (` + runColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.CompanyID, run.SiteID, formatDate(run.Period.Start), formatDate(run.Period.End),
		run.Status, formatTime(run.RunDate), run.TotalEmployees, run.TotalNetAmount.String(),
		formatTime(run.CreatedAt), formatTime(run.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, id payroll.RunID) (payroll.PayrollRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM payroll_runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return payroll.PayrollRun{}, payroll.ErrNotFound
	}
	return run, err
}

// ListRuns returns runs oldest first. An empty companyID lists every run.
func (s *Store) ListRuns(ctx context.Context, companyID payroll.CompanyID) ([]payroll.PayrollRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + runColumns + ` FROM payroll_runs`
	var args []any
	if companyID != "" {
		query += ` WHERE company_id = ?`
		args = append(args, companyID)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []payroll.PayrollRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func scanRun(sc scanner) (payroll.PayrollRun, error) {
	var (
		r                         payroll.PayrollRun
		id, company, site, status string
		start, end, runDate, net  string
		createdAt, updatedAt      string
	)
	if err := sc.Scan(&id, &company, &site, &start, &end, &status, &runDate,
		&r.TotalEmployees, &net, &createdAt, &updatedAt); err != nil {
		return payroll.PayrollRun{}, err
	}
	r.ID, r.CompanyID, r.SiteID = payroll.RunID(id), payroll.CompanyID(company), payroll.SiteID(site)
	r.Status = payroll.RunStatus(status)

	var err error
	if r.Period.Start, err = parseDate(start); err != nil {
		return payroll.PayrollRun{}, err
	}
	if r.Period.End, err = parseDate(end); err != nil {
		return payroll.PayrollRun{}, err
	}
	if r.RunDate, err = parseTime(runDate); err != nil {
		return payroll.PayrollRun{}, err
	}
	if r.TotalNetAmount, err = decimal.NewFromString(net); err != nil {
		return payroll.PayrollRun{}, err
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return payroll.PayrollRun{}, err
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return payroll.PayrollRun{}, err
	}
	return r, nil
}

// withPendingRun runs fn in a transaction after checking the run is
// still pending.
func (s *Store) withPendingRun(ctx context.Context, runID payroll.RunID, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM payroll_runs WHERE id = ?`, runID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return payroll.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read run status: %w", err)
	}
	if st := payroll.RunStatus(status); st.Locked() {
		return &payroll.PayrollLockedError{RunID: runID, Status: st}
	}

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ReplaceEmployeeResult(ctx context.Context, runID payroll.RunID, employeeID payroll.EmployeeID, entries []payroll.PayrollEntry, faults []payroll.Fault) error {
	return s.withPendingRun(ctx, runID, func(tx *sql.Tx) error {
		if employeeID != "" {
			if err := upsertEntries(ctx, tx, runID, employeeID, entries); err != nil {
				return err
			}
		}
		return replaceFaults(ctx, tx, runID, employeeID, faults)
	})
}

func upsertEntries(ctx context.Context, tx execer, runID payroll.RunID, employeeID payroll.EmployeeID, entries []payroll.PayrollEntry) error {
	query := `
		INSERT INTO payroll_entries
		(id, employee_id, payroll_id, component_id, name, component_type, display_order,
		 amount, raw_amount, payment_status, warnings_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(employee_id, payroll_id, component_id) DO UPDATE SET
			name = excluded.name,
			component_type = excluded.component_type,
			display_order = excluded.display_order,
			amount = excluded.amount,
			raw_amount = excluded.raw_amount,
			payment_status = excluded.payment_status,
			warnings_json = excluded.warnings_json
	`
	keep := make([]any, 0, len(entries)+2)
	keep = append(keep, runID, employeeID)
	for _, e := range entries {
		warnings, err := encodeWarnings(e.Warnings)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query,
			e.ID, employeeID, runID, e.ComponentID, e.Name, e.ComponentType, e.DisplayOrder,
			e.Amount.String(), e.RawAmount.String(), e.PaymentStatus, warnings); err != nil {
			return fmt.Errorf("failed to upsert entry: %w", err)
		}
		keep = append(keep, e.ComponentID)
	}

	stale := `DELETE FROM payroll_entries WHERE payroll_id = ? AND employee_id = ?`
	if len(entries) > 0 {
		stale += ` AND component_id NOT IN (` + placeholders(len(entries)) + `)`
	}
	if _, err := tx.ExecContext(ctx, stale, keep...); err != nil {
		return fmt.Errorf("failed to remove stale entries: %w", err)
	}
	return nil
}

func replaceFaults(ctx context.Context, tx execer, runID payroll.RunID, employeeID payroll.EmployeeID, faults []payroll.Fault) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM payroll_faults WHERE payroll_id = ? AND employee_id = ?`, runID, employeeID); err != nil {
		return fmt.Errorf("failed to clear faults: %w", err)
	}
	for _, f := range faults {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO payroll_faults (payroll_id, employee_id, component_id, code, message, fatal)
			VALUES (?, ?, ?, ?, ?, ?)`,
			runID, employeeID, f.ComponentID, f.Code, f.Message, f.Fatal); err != nil {
			return fmt.Errorf("failed to insert fault: %w", err)
		}
	}
	return nil
}

// PruneEmployees deletes entries and employee faults of everyone outside
// keep in one transaction.
func (s *Store) PruneEmployees(ctx context.Context, runID payroll.RunID, keep []payroll.EmployeeID) error {
	return s.withPendingRun(ctx, runID, func(tx *sql.Tx) error {
		args := make([]any, 0, len(keep)+1)
		args = append(args, runID)
		for _, id := range keep {
			args = append(args, id)
		}
		notKept := ""
		if len(keep) > 0 {
			notKept = ` AND employee_id NOT IN (` + placeholders(len(keep)) + `)`
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM payroll_entries WHERE payroll_id = ?`+notKept, args...); err != nil {
			return fmt.Errorf("failed to prune entries: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM payroll_faults WHERE payroll_id = ? AND employee_id <> ''`+notKept, args...); err != nil {
			return fmt.Errorf("failed to prune faults: %w", err)
		}
		return nil
	})
}

func (s *Store) ListEntries(ctx context.Context, runID payroll.RunID) ([]payroll.PayrollEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, employee_id, payroll_id, component_id, name, component_type, display_order,
		       amount, raw_amount, payment_status, warnings_json
		FROM payroll_entries
		WHERE payroll_id = ?
		ORDER BY employee_id, display_order, component_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var out []payroll.PayrollEntry
	for rows.Next() {
		var (
			e                             payroll.PayrollEntry
			emp, run, comp, ctype, status string
			amount, raw                   string
			warnings                      sql.NullString
		)
		if err := rows.Scan(&e.ID, &emp, &run, &comp, &e.Name, &ctype, &e.DisplayOrder,
			&amount, &raw, &status, &warnings); err != nil {
			return nil, err
		}
		e.EmployeeID, e.PayrollID, e.ComponentID = payroll.EmployeeID(emp), payroll.RunID(run), payroll.ComponentID(comp)
		e.ComponentType, e.PaymentStatus = payroll.ComponentType(ctype), payroll.PaymentStatus(status)
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		if e.RawAmount, err = decimal.NewFromString(raw); err != nil {
			return nil, err
		}
		if e.Warnings, err = decodeWarnings(warnings); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) ListFaults(ctx context.Context, runID payroll.RunID) ([]payroll.Fault, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT employee_id, component_id, code, message, fatal
		FROM payroll_faults
		WHERE payroll_id = ?
		ORDER BY employee_id, code, rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list faults: %w", err)
	}
	defer rows.Close()

	var out []payroll.Fault
	for rows.Next() {
		var (
			f               payroll.Fault
			emp, comp, code string
		)
		if err := rows.Scan(&emp, &comp, &code, &f.Message, &f.Fatal); err != nil {
			return nil, err
		}
		f.RunID, f.EmployeeID, f.ComponentID, f.Code = runID, payroll.EmployeeID(emp), payroll.ComponentID(comp), payroll.FaultCode(code)
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) CommitTotals(ctx context.Context, runID payroll.RunID, employees int, net decimal.Decimal) error {
	return s.withPendingRun(ctx, runID, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE payroll_runs SET total_employees = ?, total_net_amount = ?, updated_at = ?
			WHERE id = ?`, employees, net.String(), formatTime(time.Now()), runID)
		if err != nil {
			return fmt.Errorf("failed to commit totals: %w", err)
		}
		return nil
	})
}

func (s *Store) TransitionStatus(ctx context.Context, runID payroll.RunID, from, to payroll.RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE payroll_runs SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`, to, formatTime(time.Now()), runID, from)
	if err != nil {
		return fmt.Errorf("failed to transition status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var actual string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM payroll_runs WHERE id = ?`, runID).Scan(&actual)
	if errors.Is(err, sql.ErrNoRows) {
		return payroll.ErrNotFound
	}
	if err != nil {
		return err
	}
	return payroll.StatusConflict(runID, from, payroll.RunStatus(actual))
}

func (s *Store) SaveSalaryFieldValue(ctx context.Context, v payroll.SalaryFieldValue) error {
	return s.withPendingRun(ctx, v.RunID, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO salary_field_values (payroll_id, employee_id, field_id, amount, field_type)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(payroll_id, employee_id, field_id) DO UPDATE SET
				amount = excluded.amount,
				field_type = excluded.field_type`,
			v.RunID, v.EmployeeID, v.FieldID, v.Amount.String(), v.Type)
		if err != nil {
			return fmt.Errorf("failed to save salary field value: %w", err)
		}
		return nil
	})
}

func (s *Store) ListSalaryFieldValues(ctx context.Context, runID payroll.RunID, employeeID payroll.EmployeeID) ([]payroll.SalaryFieldValue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT field_id, amount, field_type
		FROM salary_field_values
		WHERE payroll_id = ? AND employee_id = ?
		ORDER BY field_id`, runID, employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list salary field values: %w", err)
	}
	defer rows.Close()

	var out []payroll.SalaryFieldValue
	for rows.Next() {
		var field, amount, typ string
		if err := rows.Scan(&field, &amount, &typ); err != nil {
			return nil, err
		}
		v := payroll.SalaryFieldValue{
			RunID: runID, EmployeeID: employeeID, FieldID: payroll.FieldID(field), Type: payroll.ComponentType(typ),
		}
		if v.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Reset clears all data (for testing/demo purposes).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"salary_field_values", "payroll_faults", "payroll_entries", "payroll_runs",
		"attendance", "pay_sequences", "statutory_configs", "template_assignments",
		"template_components", "payment_templates", "payment_fields", "employees",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

var _ payroll.Store = (*Store)(nil)

// Helper functions

// targetColumns flattens a target. A nil target is stored empty and
// reads back as malformed.
func targetColumns(t payroll.ComponentTarget) (string, string) {
	if t == nil {
		return "", ""
	}
	return string(t.TargetType()), t.TargetID()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t.UTC(), nil
}

func formatDate(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(dateLayout), Valid: true}
}

func formatDatePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return formatDate(*t)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

func parseDatePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseDate(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatDecimalPtr(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseDecimalPtr(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func encodeWarnings(w []string) (sql.NullString, error) {
	if len(w) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(w)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeWarnings(s sql.NullString) ([]string, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var w []string
	if err := json.Unmarshal([]byte(s.String), &w); err != nil {
		return nil, err
	}
	return w, nil
}
