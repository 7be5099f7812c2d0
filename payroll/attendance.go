package payroll

import (
	"context"

	"github.com/shopspring/decimal"
)

// AttendanceAdapter supplies present days, working days and overtime for
// one employee and period. A missing record is full attendance only when
// AssumeFullAttendance is set; otherwise it is reported as a data gap.
type AttendanceAdapter struct {
	Source               AttendanceSource
	AssumeFullAttendance bool
}

func (a AttendanceAdapter) Get(ctx context.Context, employeeID EmployeeID, period Period, seq PaySequence) (Attendance, error) {
	scheduled := decimal.NewFromInt(int64(seq.WorkingDays))

	var (
		att   Attendance
		found bool
	)
	if a.Source != nil {
		var err error
		att, found, err = a.Source.GetAttendance(ctx, employeeID, period)
		if err != nil {
			return Attendance{}, DataAccess("get attendance", err)
		}
	}
	if !found {
		if !a.AssumeFullAttendance {
			return Attendance{}, &AttendanceMissingError{EmployeeID: employeeID, Period: period}
		}
		return Attendance{
			EmployeeID:  employeeID,
			Period:      period,
			PresentDays: scheduled,
			WorkingDays: scheduled,
		}, nil
	}

	if !att.WorkingDays.IsPositive() {
		att.WorkingDays = scheduled
	}
	return att, nil
}

// ProrationFactor is present/working, clamped to [0, 1]. A period with no
// working days is paid in full.
func (a Attendance) ProrationFactor() decimal.Decimal {
	one := decimal.NewFromInt(1)
	if !a.WorkingDays.IsPositive() {
		return one
	}
	if a.PresentDays.GreaterThanOrEqual(a.WorkingDays) {
		return one
	}
	if a.PresentDays.IsNegative() {
		return decimal.Zero
	}
	return a.PresentDays.Div(a.WorkingDays)
}
