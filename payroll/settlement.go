package payroll

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/statutory"
)

// =============================================================================
// SETTLEMENT - Gratuity and leave encashment at exit
// =============================================================================

// SettlementRequest asks for an employee's exit payouts. AsOf defaults to
// the employee's exit date. Empty config ids select the company default.
type SettlementRequest struct {
	EmployeeID   EmployeeID
	AsOf         time.Time
	LeaveBalance decimal.Decimal
	GratuityID   string
	EncashmentID string
}

type Settlement struct {
	EmployeeID       EmployeeID
	AsOf             time.Time
	CompletedYears   int
	MonthlyBasic     decimal.Decimal
	Gratuity         decimal.Decimal
	GratuityEligible bool
	LeaveEncashment  decimal.Decimal
	EncashEligible   bool
	Total            decimal.Decimal
	Warnings         []Warning
}

// Settle computes gratuity and leave encashment. The monthly basic is the
// PF wage of a full-attendance evaluation of the employee's template for
// the month containing AsOf. Amounts are rounded half-up.
func (r *Runner) Settle(ctx context.Context, req SettlementRequest) (Settlement, error) {
	emp, err := r.Store.GetEmployee(ctx, req.EmployeeID)
	if err != nil {
		return Settlement{}, DataAccess("get employee", err)
	}
	asOf := req.AsOf
	if asOf.IsZero() {
		if emp.ExitedOn == nil {
			return Settlement{}, fmt.Errorf("settle %s: no settlement date and no exit date", emp.ID)
		}
		asOf = *emp.ExitedOn
	}
	asOf = dateOf(asOf)

	period := MonthPeriod(asOf.Year(), asOf.Month())
	run := PayrollRun{CompanyID: emp.CompanyID, SiteID: emp.SiteID, Period: period}

	full := *r
	full.Attendance = AttendanceAdapter{Source: noAttendance{}, AssumeFullAttendance: true}
	cache := newRunCache(r.Store)
	in, err := full.prepare(ctx, cache, full.resolver(cache), run, emp)
	if err != nil {
		return Settlement{}, err
	}
	eval, err := r.Evaluator.Evaluate(in)
	if err != nil {
		return Settlement{}, err
	}
	if in.Catalog == nil {
		in.Catalog = &statutory.Catalog{}
	}

	s := Settlement{
		EmployeeID:      emp.ID,
		AsOf:            asOf,
		CompletedYears:  emp.CompletedYears(asOf),
		MonthlyBasic:    RoundHalfUp(eval.PFWage),
		Gratuity:        decimal.Zero,
		LeaveEncashment: decimal.Zero,
	}

	if g, anomaly, ok := in.Catalog.Gratuity(req.GratuityID); ok {
		amount, eligible := g.Payout(eval.PFWage, s.CompletedYears)
		s.Gratuity, s.GratuityEligible = RoundHalfUp(amount), eligible
		if anomaly != nil {
			s.Warnings = append(s.Warnings, Warning{Code: FaultCatalogAnomaly, Message: anomaly.String()})
		}
		if g.Substitutes(req.GratuityID) {
			s.Warnings = append(s.Warnings, fallbackWarning("gratuity", req.GratuityID, g.ID))
		}
	} else {
		s.Warnings = append(s.Warnings, Warning{Code: FaultMissingStatutoryConfig, Message: "no gratuity configuration"})
	}

	if l, anomaly, ok := in.Catalog.LeaveEncashment(req.EncashmentID); ok {
		amount, eligible := l.Payout(eval.PFWage, req.LeaveBalance, s.CompletedYears)
		s.LeaveEncashment, s.EncashEligible = RoundHalfUp(amount), eligible
		if anomaly != nil {
			s.Warnings = append(s.Warnings, Warning{Code: FaultCatalogAnomaly, Message: anomaly.String()})
		}
		if l.Substitutes(req.EncashmentID) {
			s.Warnings = append(s.Warnings, fallbackWarning("leave encashment", req.EncashmentID, l.ID))
		}
	} else {
		s.Warnings = append(s.Warnings, Warning{Code: FaultMissingStatutoryConfig, Message: "no leave encashment configuration"})
	}

	s.Total = s.Gratuity.Add(s.LeaveEncashment)
	r.logger().Info("settlement computed",
		"employee_id", emp.ID, "completed_years", s.CompletedYears, "total", s.Total.String())
	return s, nil
}

func fallbackWarning(kind, requested, used string) Warning {
	return Warning{
		Code:    FaultStatutoryFallback,
		Message: fmt.Sprintf("%s configuration %q not found; using default %s", kind, requested, used),
	}
}

type noAttendance struct{}

func (noAttendance) GetAttendance(context.Context, EmployeeID, Period) (Attendance, bool, error) {
	return Attendance{}, false, nil
}
