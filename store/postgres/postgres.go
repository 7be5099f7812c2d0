/*
Package postgres provides a PostgreSQL implementation of payroll.Store
on a pgx connection pool.

The table layout matches store/sqlite with native column types: NUMERIC
for money, DATE for periods, TIMESTAMPTZ for audit times and JSONB for
statutory payloads. NUMERIC values are read back through ::text so they
reach shopspring/decimal without a float conversion.

The write guard takes a row lock on the run (SELECT ... FOR UPDATE), so
a concurrent approval either waits for the write to commit or is seen
by it.

SEE ALSO:
  - store/sqlite/sqlite.go: Same contract on SQLite
  - payroll/store.go: Interface definitions
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/statutory"
)

// Store implements payroll.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool for databaseURL and migrates the schema.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// New wraps an existing pool. The schema is migrated.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		site_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		position TEXT NOT NULL DEFAULT '',
		skill_level TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT '',
		joined_on DATE,
		exited_on DATE,
		ctc_override NUMERIC,
		active BOOLEAN NOT NULL DEFAULT TRUE
	);
	CREATE INDEX IF NOT EXISTS idx_employees_company_site ON employees(company_id, site_id);

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
		annual_ctc NUMERIC NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		is_default BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_templates_company ON payment_templates(company_id);

	CREATE TABLE IF NOT EXISTS template_components (
		id TEXT PRIMARY KEY,
		template_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		component_type TEXT NOT NULL,
		calculation_type TEXT NOT NULL DEFAULT '',
		calculation_value NUMERIC NOT NULL DEFAULT 0,
		display_order INTEGER NOT NULL DEFAULT 0,
		overtime BOOLEAN NOT NULL DEFAULT FALSE,
		target_type TEXT NOT NULL,
		target_id TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_components_template ON template_components(template_id, display_order);

	CREATE TABLE IF NOT EXISTS template_assignments (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		template_id TEXT NOT NULL,
		assignment_type TEXT NOT NULL,
		employee_id TEXT NOT NULL DEFAULT '',
		site_id TEXT NOT NULL DEFAULT '',
		eligibility TEXT NOT NULL DEFAULT '',
		eligibility_value TEXT NOT NULL DEFAULT '',
		effective_from DATE NOT NULL,
		effective_to DATE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_assignments_company ON template_assignments(company_id);

	CREATE TABLE IF NOT EXISTS statutory_configs (
		kind TEXT NOT NULL,
		id TEXT NOT NULL,
		company_id TEXT NOT NULL,
		is_default BOOLEAN NOT NULL DEFAULT FALSE,
		config_json JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (kind, id)
	);
	CREATE INDEX IF NOT EXISTS idx_statutory_company ON statutory_configs(company_id, kind);

	CREATE TABLE IF NOT EXISTS pay_sequences (
		company_id TEXT PRIMARY KEY,
		frequency TEXT NOT NULL,
		working_days INTEGER NOT NULL,
		pay_day INTEGER NOT NULL,
		overtime_multiplier NUMERIC NOT NULL,
		hours_per_day NUMERIC NOT NULL
	);

	CREATE TABLE IF NOT EXISTS attendance (
		employee_id TEXT NOT NULL,
		period_start DATE NOT NULL,
		period_end DATE NOT NULL,
		present_days NUMERIC NOT NULL,
		working_days NUMERIC NOT NULL,
		overtime_hours NUMERIC NOT NULL DEFAULT 0,
		PRIMARY KEY (employee_id, period_start, period_end)
	);

	CREATE TABLE IF NOT EXISTS payroll_runs (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		site_id TEXT NOT NULL DEFAULT '',
		period_start DATE NOT NULL,
		period_end DATE NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		run_date TIMESTAMPTZ NOT NULL,
		total_employees INTEGER NOT NULL DEFAULT 0,
		total_net_amount NUMERIC NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_company ON payroll_runs(company_id, created_at);

	CREATE TABLE IF NOT EXISTS payroll_entries (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		payroll_id TEXT NOT NULL REFERENCES payroll_runs(id),
		component_id TEXT NOT NULL,
		name TEXT NOT NULL,
		component_type TEXT NOT NULL,
		display_order INTEGER NOT NULL DEFAULT 0,
		amount NUMERIC NOT NULL,
		raw_amount NUMERIC NOT NULL,
		payment_status TEXT NOT NULL DEFAULT 'unpaid',
		warnings TEXT[],
		UNIQUE (employee_id, payroll_id, component_id)
	);
	CREATE INDEX IF NOT EXISTS idx_entries_payroll ON payroll_entries(payroll_id);

	CREATE TABLE IF NOT EXISTS payroll_faults (
		seq BIGSERIAL PRIMARY KEY,
		payroll_id TEXT NOT NULL REFERENCES payroll_runs(id),
		employee_id TEXT NOT NULL DEFAULT '',
		component_id TEXT NOT NULL DEFAULT '',
		code TEXT NOT NULL,
		message TEXT NOT NULL,
		fatal BOOLEAN NOT NULL DEFAULT FALSE
	);
	CREATE INDEX IF NOT EXISTS idx_faults_payroll_employee ON payroll_faults(payroll_id, employee_id);

	CREATE TABLE IF NOT EXISTS salary_field_values (
		payroll_id TEXT NOT NULL REFERENCES payroll_runs(id),
		employee_id TEXT NOT NULL,
		field_id TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		field_type TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (payroll_id, employee_id, field_id)
	);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// =============================================================================
// EMPLOYEES
// =============================================================================

const employeeColumns = `id, company_id, site_id, name, position, skill_level, state,
	joined_on, exited_on, ctc_override::text, active`

func (s *Store) SaveEmployee(ctx context.Context, e payroll.Employee) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO employees (id, company_id, site_id, name, position, skill_level, state,
			joined_on, exited_on, ctc_override, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::numeric, $11)
		ON CONFLICT (id) DO UPDATE SET
			company_id = EXCLUDED.company_id,
			site_id = EXCLUDED.site_id,
			name = EXCLUDED.name,
			position = EXCLUDED.position,
			skill_level = EXCLUDED.skill_level,
			state = EXCLUDED.state,
			joined_on = EXCLUDED.joined_on,
			exited_on = EXCLUDED.exited_on,
			ctc_override = EXCLUDED.ctc_override,
			active = EXCLUDED.active`,
		string(e.ID), string(e.CompanyID), string(e.SiteID), e.Name, e.Position, e.SkillLevel, e.State,
		dateArg(e.JoinedOn), datePtrArg(e.ExitedOn), decimalPtrArg(e.CTCOverride), e.Active)
	if err != nil {
		return fmt.Errorf("save employee: %w", err)
	}
	return nil
}

func (s *Store) GetEmployee(ctx context.Context, id payroll.EmployeeID) (payroll.Employee, error) {
	e, err := scanEmployee(s.pool.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return payroll.Employee{}, payroll.ErrNotFound
	}
	return e, err
}

func (s *Store) ListEmployees(ctx context.Context, scope payroll.RunScope) ([]payroll.Employee, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+employeeColumns+` FROM employees
		WHERE company_id = $1 AND ($2::text = '' OR site_id = $2)
		ORDER BY id`, string(scope.CompanyID), string(scope.SiteID))
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (payroll.Employee, error) {
		return scanEmployee(row)
	})
}

func scanEmployee(row pgx.Row) (payroll.Employee, error) {
	var (
		e                 payroll.Employee
		id, company, site string
		joined            *time.Time
		ctcOverride       *string
	)
	if err := row.Scan(&id, &company, &site, &e.Name, &e.Position, &e.SkillLevel, &e.State,
		&joined, &e.ExitedOn, &ctcOverride, &e.Active); err != nil {
		return payroll.Employee{}, err
	}
	e.ID, e.CompanyID, e.SiteID = payroll.EmployeeID(id), payroll.CompanyID(company), payroll.SiteID(site)
	if joined != nil {
		e.JoinedOn = *joined
	}
	var err error
	if e.CTCOverride, err = decimalPtr(ctcOverride); err != nil {
		return payroll.Employee{}, err
	}
	return e, nil
}

// =============================================================================
// PAYMENT FIELDS AND TEMPLATES
// =============================================================================

func (s *Store) SavePaymentField(ctx context.Context, f payroll.PaymentField) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO payment_fields (id, company_id, name, code, field_type, pf_wage)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			company_id = EXCLUDED.company_id,
			name = EXCLUDED.name,
			code = EXCLUDED.code,
			field_type = EXCLUDED.field_type,
			pf_wage = EXCLUDED.pf_wage`,
		string(f.ID), string(f.CompanyID), f.Name, f.Code, string(f.Type), f.PFWage)
	if err != nil {
		return fmt.Errorf("save payment field: %w", err)
	}
	return nil
}

func (s *Store) ListPaymentFields(ctx context.Context, companyID payroll.CompanyID) ([]payroll.PaymentField, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, company_id, name, code, field_type, pf_wage
		FROM payment_fields WHERE company_id = $1 ORDER BY id`, string(companyID))
	if err != nil {
		return nil, fmt.Errorf("list payment fields: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (payroll.PaymentField, error) {
		var (
			f                 payroll.PaymentField
			id, company, kind string
		)
		err := row.Scan(&id, &company, &f.Name, &f.Code, &kind, &f.PFWage)
		f.ID, f.CompanyID, f.Type = payroll.FieldID(id), payroll.CompanyID(company), payroll.ComponentType(kind)
		return f, err
	})
}

const templateColumns = `id, company_id, name, annual_ctc::text, is_active, is_default, created_at`

func (s *Store) SaveTemplate(ctx context.Context, t payroll.PaymentTemplate) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO payment_templates (id, company_id, name, annual_ctc, is_active, is_default, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			company_id = EXCLUDED.company_id,
			name = EXCLUDED.name,
			annual_ctc = EXCLUDED.annual_ctc,
			is_active = EXCLUDED.is_active,
			is_default = EXCLUDED.is_default`,
		string(t.ID), string(t.CompanyID), t.Name, t.AnnualCTC.String(), t.IsActive, t.IsDefault, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("save template: %w", err)
	}
	return nil
}

func (s *Store) GetTemplate(ctx context.Context, id payroll.TemplateID) (payroll.PaymentTemplate, error) {
	t, err := scanTemplate(s.pool.QueryRow(ctx, `SELECT `+templateColumns+` FROM payment_templates WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return payroll.PaymentTemplate{}, payroll.ErrNotFound
	}
	return t, err
}

func (s *Store) ListTemplates(ctx context.Context, companyID payroll.CompanyID) ([]payroll.PaymentTemplate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+templateColumns+` FROM payment_templates WHERE company_id = $1 ORDER BY id`, string(companyID))
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (payroll.PaymentTemplate, error) {
		return scanTemplate(row)
	})
}

func scanTemplate(row pgx.Row) (payroll.PaymentTemplate, error) {
	var (
		t                payroll.PaymentTemplate
		id, company, ctc string
	)
	if err := row.Scan(&id, &company, &t.Name, &ctc, &t.IsActive, &t.IsDefault, &t.CreatedAt); err != nil {
		return payroll.PaymentTemplate{}, err
	}
	t.ID, t.CompanyID = payroll.TemplateID(id), payroll.CompanyID(company)
	var err error
	t.AnnualCTC, err = decimal.NewFromString(ctc)
	return t, err
}

func (s *Store) SaveComponent(ctx context.Context, c payroll.TemplateComponent) error {
	targetType, targetID := "", ""
	if c.Target != nil {
		targetType, targetID = string(c.Target.TargetType()), c.Target.TargetID()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO template_components (id, template_id, name, component_type, calculation_type,
			calculation_value, display_order, overtime, target_type, target_id)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			template_id = EXCLUDED.template_id,
			name = EXCLUDED.name,
			component_type = EXCLUDED.component_type,
			calculation_type = EXCLUDED.calculation_type,
			calculation_value = EXCLUDED.calculation_value,
			display_order = EXCLUDED.display_order,
			overtime = EXCLUDED.overtime,
			target_type = EXCLUDED.target_type,
			target_id = EXCLUDED.target_id`,
		string(c.ID), string(c.TemplateID), c.Name, string(c.ComponentType), string(c.CalculationType),
		c.CalculationValue.String(), c.DisplayOrder, c.Overtime, targetType, targetID)
	if err != nil {
		return fmt.Errorf("save component: %w", err)
	}
	return nil
}

func (s *Store) ListComponents(ctx context.Context, templateID payroll.TemplateID) ([]payroll.TemplateComponent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, template_id, name, component_type, calculation_type, calculation_value::text,
		       display_order, overtime, target_type, target_id
		FROM template_components
		WHERE template_id = $1
		ORDER BY display_order, id`, string(templateID))
	if err != nil {
		return nil, fmt.Errorf("list components: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (payroll.TemplateComponent, error) {
		var (
			c                           payroll.TemplateComponent
			id, tpl, ctype, calc, value string
			targetType, targetID        string
		)
		if err := row.Scan(&id, &tpl, &c.Name, &ctype, &calc, &value,
			&c.DisplayOrder, &c.Overtime, &targetType, &targetID); err != nil {
			return c, err
		}
		c.ID, c.TemplateID = payroll.ComponentID(id), payroll.TemplateID(tpl)
		c.ComponentType, c.CalculationType = payroll.ComponentType(ctype), payroll.CalculationType(calc)
		c.Target, c.TargetErr = payroll.NewTarget(targetType, targetID)
		var err error
		c.CalculationValue, err = decimal.NewFromString(value)
		return c, err
	})
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

func (s *Store) SaveAssignment(ctx context.Context, a payroll.TemplateAssignment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO template_assignments (id, company_id, template_id, assignment_type, employee_id,
			site_id, eligibility, eligibility_value, effective_from, effective_to, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			template_id = EXCLUDED.template_id,
			assignment_type = EXCLUDED.assignment_type,
			employee_id = EXCLUDED.employee_id,
			site_id = EXCLUDED.site_id,
			eligibility = EXCLUDED.eligibility,
			eligibility_value = EXCLUDED.eligibility_value,
			effective_from = EXCLUDED.effective_from,
			effective_to = EXCLUDED.effective_to,
			is_active = EXCLUDED.is_active`,
		a.ID, string(a.CompanyID), string(a.TemplateID), string(a.Type), string(a.EmployeeID),
		string(a.SiteID), string(a.Eligibility), a.EligibilityValue, a.EffectiveFrom, datePtrArg(a.EffectiveTo),
		a.IsActive, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("save assignment: %w", err)
	}
	return nil
}

func (s *Store) ListAssignments(ctx context.Context, companyID payroll.CompanyID) ([]payroll.TemplateAssignment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, company_id, template_id, assignment_type, employee_id, site_id, eligibility,
		       eligibility_value, effective_from, effective_to, is_active, created_at
		FROM template_assignments
		WHERE company_id = $1
		ORDER BY id`, string(companyID))
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (payroll.TemplateAssignment, error) {
		var (
			a                                  payroll.TemplateAssignment
			company, tpl, typ, emp, site, elig string
		)
		err := row.Scan(&a.ID, &company, &tpl, &typ, &emp, &site, &elig,
			&a.EligibilityValue, &a.EffectiveFrom, &a.EffectiveTo, &a.IsActive, &a.CreatedAt)
		a.CompanyID, a.TemplateID = payroll.CompanyID(company), payroll.TemplateID(tpl)
		a.Type, a.EmployeeID, a.SiteID = payroll.AssignmentType(typ), payroll.EmployeeID(emp), payroll.SiteID(site)
		a.Eligibility = payroll.Eligibility(elig)
		return a, err
	})
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
	_, err = s.pool.Exec(ctx, `
		INSERT INTO statutory_configs (kind, id, company_id, is_default, config_json, created_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6)
		ON CONFLICT (kind, id) DO UPDATE SET
			company_id = EXCLUDED.company_id,
			is_default = EXCLUDED.is_default,
			config_json = EXCLUDED.config_json,
			created_at = EXCLUDED.created_at`,
		string(cfg.Kind()), h.ID, h.CompanyID, h.IsDefault, string(data), h.CreatedAt)
	if err != nil {
		return fmt.Errorf("save statutory config: %w", err)
	}
	return nil
}

func (s *Store) LoadCatalog(ctx context.Context, companyID payroll.CompanyID) (*statutory.Catalog, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT kind, config_json::text FROM statutory_configs
		WHERE company_id = $1
		ORDER BY kind, id`, string(companyID))
	if err != nil {
		return nil, fmt.Errorf("load statutory catalog: %w", err)
	}
	configs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (statutory.Config, error) {
		var kind, data string
		if err := row.Scan(&kind, &data); err != nil {
			return nil, err
		}
		k, err := statutory.ParseKind(kind)
		if err != nil {
			return nil, err
		}
		return statutory.Decode(k, []byte(data))
	})
	if err != nil {
		return nil, err
	}

	cat := &statutory.Catalog{CompanyID: string(companyID)}
	for _, cfg := range configs {
		if err := cat.Add(cfg); err != nil {
			return nil, err
		}
	}
	return cat, nil
}

// =============================================================================
// PAY SEQUENCE AND ATTENDANCE
// =============================================================================

func (s *Store) SavePaySequence(ctx context.Context, seq payroll.PaySequence) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pay_sequences (company_id, frequency, working_days, pay_day, overtime_multiplier, hours_per_day)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric)
		ON CONFLICT (company_id) DO UPDATE SET
			frequency = EXCLUDED.frequency,
			working_days = EXCLUDED.working_days,
			pay_day = EXCLUDED.pay_day,
			overtime_multiplier = EXCLUDED.overtime_multiplier,
			hours_per_day = EXCLUDED.hours_per_day`,
		string(seq.CompanyID), string(seq.Frequency), seq.WorkingDays, seq.PayDay,
		seq.OvertimeMultiplier.String(), seq.HoursPerDay.String())
	if err != nil {
		return fmt.Errorf("save pay sequence: %w", err)
	}
	return nil
}

func (s *Store) GetPaySequence(ctx context.Context, companyID payroll.CompanyID) (payroll.PaySequence, error) {
	var (
		seq                     payroll.PaySequence
		freq, multiplier, hours string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT frequency, working_days, pay_day, overtime_multiplier::text, hours_per_day::text
		FROM pay_sequences WHERE company_id = $1`, string(companyID),
	).Scan(&freq, &seq.WorkingDays, &seq.PayDay, &multiplier, &hours)
	if errors.Is(err, pgx.ErrNoRows) {
		return payroll.PaySequence{}, payroll.ErrNotFound
	}
	if err != nil {
		return payroll.PaySequence{}, fmt.Errorf("get pay sequence: %w", err)
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
	_, err := s.pool.Exec(ctx, `
		INSERT INTO attendance (employee_id, period_start, period_end, present_days, working_days, overtime_hours)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric)
		ON CONFLICT (employee_id, period_start, period_end) DO UPDATE SET
			present_days = EXCLUDED.present_days,
			working_days = EXCLUDED.working_days,
			overtime_hours = EXCLUDED.overtime_hours`,
		string(a.EmployeeID), a.Period.Start, a.Period.End,
		a.PresentDays.String(), a.WorkingDays.String(), a.OvertimeHours.String())
	if err != nil {
		return fmt.Errorf("save attendance: %w", err)
	}
	return nil
}

func (s *Store) GetAttendance(ctx context.Context, employeeID payroll.EmployeeID, period payroll.Period) (payroll.Attendance, bool, error) {
	var present, working, overtime string
	err := s.pool.QueryRow(ctx, `
		SELECT present_days::text, working_days::text, overtime_hours::text
		FROM attendance
		WHERE employee_id = $1 AND period_start = $2 AND period_end = $3`,
		string(employeeID), period.Start, period.End,
	).Scan(&present, &working, &overtime)
	if errors.Is(err, pgx.ErrNoRows) {
		return payroll.Attendance{}, false, nil
	}
	if err != nil {
		return payroll.Attendance{}, false, fmt.Errorf("get attendance: %w", err)
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
	total_employees, total_net_amount::text, created_at, updated_at`

func (s *Store) CreateRun(ctx context.Context, run payroll.PayrollRun) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO payroll_runs (id, company_id, site_id, period_start, period_end, status, run_date,
			total_employees, total_net_amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10, $11)`,
		string(run.ID), string(run.CompanyID), string(run.SiteID), run.Period.Start, run.Period.End,
		string(run.Status), run.RunDate, run.TotalEmployees, run.TotalNetAmount.String(),
		run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, id payroll.RunID) (payroll.PayrollRun, error) {
	run, err := scanRun(s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM payroll_runs WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return payroll.PayrollRun{}, payroll.ErrNotFound
	}
	return run, err
}

// ListRuns returns runs oldest first. An empty companyID lists every run.
func (s *Store) ListRuns(ctx context.Context, companyID payroll.CompanyID) ([]payroll.PayrollRun, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+runColumns+` FROM payroll_runs
		WHERE ($1::text = '' OR company_id = $1)
		ORDER BY created_at, id`, string(companyID))
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (payroll.PayrollRun, error) {
		return scanRun(row)
	})
}

func scanRun(row pgx.Row) (payroll.PayrollRun, error) {
	var (
		r                              payroll.PayrollRun
		id, company, site, status, net string
	)
	if err := row.Scan(&id, &company, &site, &r.Period.Start, &r.Period.End, &status, &r.RunDate,
		&r.TotalEmployees, &net, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return payroll.PayrollRun{}, err
	}
	r.ID, r.CompanyID, r.SiteID = payroll.RunID(id), payroll.CompanyID(company), payroll.SiteID(site)
	r.Status = payroll.RunStatus(status)
	r.RunDate, r.CreatedAt, r.UpdatedAt = r.RunDate.UTC(), r.CreatedAt.UTC(), r.UpdatedAt.UTC()
	var err error
	r.TotalNetAmount, err = decimal.NewFromString(net)
	return r, err
}

// withPendingRun locks the run row and runs fn if it is still pending.
func (s *Store) withPendingRun(ctx context.Context, runID payroll.RunID, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var status string
	err = tx.QueryRow(ctx, `SELECT status FROM payroll_runs WHERE id = $1 FOR UPDATE`, string(runID)).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return payroll.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read run status: %w", err)
	}
	if st := payroll.RunStatus(status); st.Locked() {
		return &payroll.PayrollLockedError{RunID: runID, Status: st}
	}

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) ReplaceEmployeeResult(ctx context.Context, runID payroll.RunID, employeeID payroll.EmployeeID, entries []payroll.PayrollEntry, faults []payroll.Fault) error {
	return s.withPendingRun(ctx, runID, func(tx pgx.Tx) error {
		if employeeID != "" {
			if err := upsertEntries(ctx, tx, runID, employeeID, entries); err != nil {
				return err
			}
		}
		return replaceFaults(ctx, tx, runID, employeeID, faults)
	})
}

func upsertEntries(ctx context.Context, tx pgx.Tx, runID payroll.RunID, employeeID payroll.EmployeeID, entries []payroll.PayrollEntry) error {
	batch := &pgx.Batch{}
	keep := make([]string, 0, len(entries))
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO payroll_entries (id, employee_id, payroll_id, component_id, name, component_type,
				display_order, amount, raw_amount, payment_status, warnings)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9::numeric, $10, $11)
			ON CONFLICT (employee_id, payroll_id, component_id) DO UPDATE SET
				name = EXCLUDED.name,
				component_type = EXCLUDED.component_type,
				display_order = EXCLUDED.display_order,
				amount = EXCLUDED.amount,
				raw_amount = EXCLUDED.raw_amount,
				payment_status = EXCLUDED.payment_status,
				warnings = EXCLUDED.warnings`,
			e.ID, string(employeeID), string(runID), string(e.ComponentID), e.Name, string(e.ComponentType),
			e.DisplayOrder, e.Amount.String(), e.RawAmount.String(), string(e.PaymentStatus), e.Warnings)
		keep = append(keep, string(e.ComponentID))
	}
	batch.Queue(`
		DELETE FROM payroll_entries
		WHERE payroll_id = $1 AND employee_id = $2 AND NOT (component_id = ANY($3))`,
		string(runID), string(employeeID), keep)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert entries: %w", err)
	}
	return nil
}

func replaceFaults(ctx context.Context, tx pgx.Tx, runID payroll.RunID, employeeID payroll.EmployeeID, faults []payroll.Fault) error {
	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM payroll_faults WHERE payroll_id = $1 AND employee_id = $2`, string(runID), string(employeeID))
	for _, f := range faults {
		batch.Queue(`
			INSERT INTO payroll_faults (payroll_id, employee_id, component_id, code, message, fatal)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			string(runID), string(employeeID), string(f.ComponentID), string(f.Code), f.Message, f.Fatal)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("replace faults: %w", err)
	}
	return nil
}

func (s *Store) PruneEmployees(ctx context.Context, runID payroll.RunID, keep []payroll.EmployeeID) error {
	ids := make([]string, 0, len(keep))
	for _, id := range keep {
		ids = append(ids, string(id))
	}
	return s.withPendingRun(ctx, runID, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		batch.Queue(`
			DELETE FROM payroll_entries
			WHERE payroll_id = $1 AND NOT (employee_id = ANY($2))`, string(runID), ids)
		batch.Queue(`
			DELETE FROM payroll_faults
			WHERE payroll_id = $1 AND employee_id <> '' AND NOT (employee_id = ANY($2))`, string(runID), ids)
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("prune employees: %w", err)
		}
		return nil
	})
}

func (s *Store) ListEntries(ctx context.Context, runID payroll.RunID) ([]payroll.PayrollEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, employee_id, component_id, name, component_type, display_order,
		       amount::text, raw_amount::text, payment_status, warnings
		FROM payroll_entries
		WHERE payroll_id = $1
		ORDER BY employee_id, display_order, component_id`, string(runID))
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (payroll.PayrollEntry, error) {
		var (
			e                                     payroll.PayrollEntry
			emp, comp, ctype, status, amount, raw string
		)
		if err := row.Scan(&e.ID, &emp, &comp, &e.Name, &ctype, &e.DisplayOrder,
			&amount, &raw, &status, &e.Warnings); err != nil {
			return e, err
		}
		e.EmployeeID, e.PayrollID, e.ComponentID = payroll.EmployeeID(emp), runID, payroll.ComponentID(comp)
		e.ComponentType, e.PaymentStatus = payroll.ComponentType(ctype), payroll.PaymentStatus(status)
		var err error
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return e, err
		}
		e.RawAmount, err = decimal.NewFromString(raw)
		return e, err
	})
}

func (s *Store) ListFaults(ctx context.Context, runID payroll.RunID) ([]payroll.Fault, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT employee_id, component_id, code, message, fatal
		FROM payroll_faults
		WHERE payroll_id = $1
		ORDER BY employee_id, code, seq`, string(runID))
	if err != nil {
		return nil, fmt.Errorf("list faults: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (payroll.Fault, error) {
		var (
			f               payroll.Fault
			emp, comp, code string
		)
		err := row.Scan(&emp, &comp, &code, &f.Message, &f.Fatal)
		f.RunID, f.EmployeeID, f.ComponentID, f.Code = runID, payroll.EmployeeID(emp), payroll.ComponentID(comp), payroll.FaultCode(code)
		return f, err
	})
}

func (s *Store) CommitTotals(ctx context.Context, runID payroll.RunID, employees int, net decimal.Decimal) error {
	return s.withPendingRun(ctx, runID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			UPDATE payroll_runs SET total_employees = $2, total_net_amount = $3::numeric, updated_at = now()
			WHERE id = $1`, string(runID), employees, net.String())
		if err != nil {
			return fmt.Errorf("commit totals: %w", err)
		}
		return nil
	})
}

func (s *Store) TransitionStatus(ctx context.Context, runID payroll.RunID, from, to payroll.RunStatus) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE payroll_runs SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`, string(runID), string(from), string(to))
	if err != nil {
		return fmt.Errorf("transition status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var actual string
	err = s.pool.QueryRow(ctx, `SELECT status FROM payroll_runs WHERE id = $1`, string(runID)).Scan(&actual)
	if errors.Is(err, pgx.ErrNoRows) {
		return payroll.ErrNotFound
	}
	if err != nil {
		return err
	}
	return payroll.StatusConflict(runID, from, payroll.RunStatus(actual))
}

func (s *Store) SaveSalaryFieldValue(ctx context.Context, v payroll.SalaryFieldValue) error {
	return s.withPendingRun(ctx, v.RunID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO salary_field_values (payroll_id, employee_id, field_id, amount, field_type)
			VALUES ($1, $2, $3, $4::numeric, $5)
			ON CONFLICT (payroll_id, employee_id, field_id) DO UPDATE SET
				amount = EXCLUDED.amount,
				field_type = EXCLUDED.field_type`,
			string(v.RunID), string(v.EmployeeID), string(v.FieldID), v.Amount.String(), string(v.Type))
		if err != nil {
			return fmt.Errorf("save salary field value: %w", err)
		}
		return nil
	})
}

func (s *Store) ListSalaryFieldValues(ctx context.Context, runID payroll.RunID, employeeID payroll.EmployeeID) ([]payroll.SalaryFieldValue, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT field_id, amount::text, field_type
		FROM salary_field_values
		WHERE payroll_id = $1 AND employee_id = $2
		ORDER BY field_id`, string(runID), string(employeeID))
	if err != nil {
		return nil, fmt.Errorf("list salary field values: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (payroll.SalaryFieldValue, error) {
		var field, amount, typ string
		if err := row.Scan(&field, &amount, &typ); err != nil {
			return payroll.SalaryFieldValue{}, err
		}
		v := payroll.SalaryFieldValue{
			RunID: runID, EmployeeID: employeeID, FieldID: payroll.FieldID(field), Type: payroll.ComponentType(typ),
		}
		var err error
		v.Amount, err = decimal.NewFromString(amount)
		return v, err
	})
}

// Reset truncates every table. Used by tests against a shared database.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		TRUNCATE salary_field_values, payroll_faults, payroll_entries, payroll_runs,
			attendance, pay_sequences, statutory_configs, template_assignments,
			template_components, payment_templates, payment_fields, employees`)
	return err
}

var _ payroll.Store = (*Store)(nil)

// Helper functions

func dateArg(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func datePtrArg(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	return t
}

func decimalPtrArg(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	v := d.String()
	return &v
}

func decimalPtr(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
