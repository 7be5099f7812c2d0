package payroll

import "time"

// =============================================================================
// PERIOD - Pay period and effective-date ranges
// =============================================================================

// Period is an inclusive range of calendar days [Start, End] in UTC.
type Period struct {
	Start time.Time
	End   time.Time
}

var farFuture = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func openEnd(t *time.Time) time.Time {
	if t == nil {
		return farFuture
	}
	return *t
}

// NewPeriod normalizes both ends to dates and validates the order.
func NewPeriod(start, end time.Time) (Period, error) {
	p := Period{Start: dateOf(start), End: dateOf(end)}
	if p.End.Before(p.Start) {
		return Period{}, ErrInvalidPeriod
	}
	return p, nil
}

// MonthPeriod returns the calendar month as a period.
func MonthPeriod(year int, month time.Month) Period {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return Period{Start: start, End: start.AddDate(0, 1, -1)}
}

// Contains returns true if t falls within [Start, End].
func (p Period) Contains(t time.Time) bool {
	d := dateOf(t)
	return !d.Before(dateOf(p.Start)) && !d.After(dateOf(p.End))
}

// Covers returns true if other lies entirely inside p.
func (p Period) Covers(other Period) bool {
	return p.Contains(other.Start) && p.Contains(other.End)
}

// SettlementMonth is the month whose last day falls inside the period.
// Monthly and cyclic statutory amounts (PT, LWF, bonus) are charged only
// in that period, so a month split over several weekly or semi-monthly
// periods is charged once. ok is false when the period contains no month
// end. A period spanning two month ends settles the later one.
func (p Period) SettlementMonth() (month time.Month, ok bool) {
	end := dateOf(p.End)
	if end.AddDate(0, 0, 1).Month() != end.Month() {
		return end.Month(), true
	}
	prev := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	if p.Contains(prev) {
		return prev.Month(), true
	}
	return 0, false
}

// Days is the number of calendar days in the period.
func (p Period) Days() int {
	return int(dateOf(p.End).Sub(dateOf(p.Start)).Hours()/24) + 1
}

func (p Period) String() string {
	return "[" + p.Start.Format("2006-01-02") + ", " + p.End.Format("2006-01-02") + "]"
}
