/*
resolver.go - Which payment template applies to an employee

PURPOSE:
  Resolution is an ordered list of strategies tried in sequence; the
  first strategy that matches wins:

    1. EmployeeAssignment   employee-level assignment covering the period
    2. SitePosition         site assignment matching the employee's position
    3. SiteSkillLevel       site assignment matching the employee's skill level
    4. CompanyDefault       the company's default template

  If none match, resolution fails with *NoTemplateFoundError. Within one
  strategy the most recently created match wins. Templates that are not
  active never match.

EXAMPLE:
  resolver := payroll.NewResolver(store)
  templateID, err := resolver.Resolve(ctx, "emp-1", "acme", payroll.MonthPeriod(2025, time.March))
  if errors.Is(err, payroll.ErrNoTemplateFound) {
      // fault the employee, keep going
  }

SEE ALSO:
  - types.go: TemplateAssignment.Covers
  - runner.go: Per-employee pipeline
*/
package payroll

import (
	"context"
	"sort"
	"strings"
)

// TemplateSource is the slice of ConfigStore the resolver reads.
type TemplateSource interface {
	GetEmployee(ctx context.Context, id EmployeeID) (Employee, error)
	ListTemplates(ctx context.Context, companyID CompanyID) ([]PaymentTemplate, error)
	ListAssignments(ctx context.Context, companyID CompanyID) ([]TemplateAssignment, error)
}

// ResolveStrategy is one step of the precedence chain.
type ResolveStrategy interface {
	Name() string
	Resolve(ctx context.Context, src TemplateSource, emp Employee, period Period) (TemplateID, bool, error)
}

// DefaultStrategies returns the standard precedence chain.
func DefaultStrategies() []ResolveStrategy {
	return []ResolveStrategy{
		EmployeeAssignmentStrategy{},
		SiteEligibilityStrategy{Eligibility: EligibilityPosition},
		SiteEligibilityStrategy{Eligibility: EligibilitySkillLevel},
		CompanyDefaultStrategy{},
	}
}

// =============================================================================
// RESOLVER
// =============================================================================

type Resolver struct {
	Source     TemplateSource
	Strategies []ResolveStrategy
}

func NewResolver(src TemplateSource) *Resolver {
	return &Resolver{Source: src, Strategies: DefaultStrategies()}
}

// Resolve loads the employee and resolves their template for period.
func (r *Resolver) Resolve(ctx context.Context, employeeID EmployeeID, companyID CompanyID, period Period) (TemplateID, error) {
	emp, err := r.Source.GetEmployee(ctx, employeeID)
	if err != nil {
		return "", DataAccess("get employee", err)
	}
	if emp.CompanyID != companyID {
		return "", &NoTemplateFoundError{EmployeeID: employeeID, CompanyID: companyID, Period: period}
	}
	return r.ResolveFor(ctx, emp, period)
}

// ResolveFor runs the strategies for an already loaded employee.
func (r *Resolver) ResolveFor(ctx context.Context, emp Employee, period Period) (TemplateID, error) {
	for _, s := range r.Strategies {
		id, ok, err := s.Resolve(ctx, r.Source, emp, period)
		if err != nil {
			return "", err
		}
		if ok {
			return id, nil
		}
	}
	return "", &NoTemplateFoundError{EmployeeID: emp.ID, CompanyID: emp.CompanyID, Period: period}
}

// =============================================================================
// STRATEGIES
// =============================================================================

// EmployeeAssignmentStrategy matches assignments made to the employee.
type EmployeeAssignmentStrategy struct{}

func (EmployeeAssignmentStrategy) Name() string { return "employee_assignment" }

func (EmployeeAssignmentStrategy) Resolve(ctx context.Context, src TemplateSource, emp Employee, period Period) (TemplateID, bool, error) {
	return pickAssignment(ctx, src, emp, func(a TemplateAssignment) bool {
		return a.Type == AssignEmployee && a.EmployeeID == emp.ID && a.Covers(period)
	})
}

// SiteEligibilityStrategy matches site assignments whose eligibility
// value equals the employee's position or skill level.
type SiteEligibilityStrategy struct {
	Eligibility Eligibility
}

func (s SiteEligibilityStrategy) Name() string { return "site_" + string(s.Eligibility) }

func (s SiteEligibilityStrategy) Resolve(ctx context.Context, src TemplateSource, emp Employee, period Period) (TemplateID, bool, error) {
	want := emp.Position
	if s.Eligibility == EligibilitySkillLevel {
		want = emp.SkillLevel
	}
	if emp.SiteID == "" || strings.TrimSpace(want) == "" {
		return "", false, nil
	}
	return pickAssignment(ctx, src, emp, func(a TemplateAssignment) bool {
		return a.Type == AssignSite &&
			a.SiteID == emp.SiteID &&
			a.Eligibility == s.Eligibility &&
			strings.EqualFold(strings.TrimSpace(a.EligibilityValue), strings.TrimSpace(want)) &&
			a.Covers(period)
	})
}

// CompanyDefaultStrategy falls back to the company's default template.
type CompanyDefaultStrategy struct{}

func (CompanyDefaultStrategy) Name() string { return "company_default" }

func (CompanyDefaultStrategy) Resolve(ctx context.Context, src TemplateSource, emp Employee, _ Period) (TemplateID, bool, error) {
	templates, err := src.ListTemplates(ctx, emp.CompanyID)
	if err != nil {
		return "", false, DataAccess("list templates", err)
	}
	var defaults []PaymentTemplate
	for _, t := range templates {
		if t.IsDefault && t.IsActive {
			defaults = append(defaults, t)
		}
	}
	if len(defaults) == 0 {
		return "", false, nil
	}
	sort.SliceStable(defaults, func(i, j int) bool {
		if defaults[i].CreatedAt.Equal(defaults[j].CreatedAt) {
			return defaults[i].ID > defaults[j].ID
		}
		return defaults[i].CreatedAt.After(defaults[j].CreatedAt)
	})
	return defaults[0].ID, true, nil
}

// pickAssignment returns the newest matching assignment whose template
// is active.
func pickAssignment(ctx context.Context, src TemplateSource, emp Employee, match func(TemplateAssignment) bool) (TemplateID, bool, error) {
	assignments, err := src.ListAssignments(ctx, emp.CompanyID)
	if err != nil {
		return "", false, DataAccess("list assignments", err)
	}
	var matches []TemplateAssignment
	for _, a := range assignments {
		if match(a) {
			matches = append(matches, a)
		}
	}
	if len(matches) == 0 {
		return "", false, nil
	}

	templates, err := src.ListTemplates(ctx, emp.CompanyID)
	if err != nil {
		return "", false, DataAccess("list templates", err)
	}
	active := make(map[TemplateID]bool, len(templates))
	for _, t := range templates {
		active[t.ID] = t.IsActive
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].ID > matches[j].ID
		}
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	for _, a := range matches {
		if active[a.TemplateID] {
			return a.TemplateID, true, nil
		}
	}
	return "", false, nil
}
