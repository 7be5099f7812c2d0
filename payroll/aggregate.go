package payroll

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TOTALS - Per-employee aggregation
// =============================================================================

type FieldTotal struct {
	Amount decimal.Decimal
	Type   ComponentType
}

// Totals holds raw sums. Total is always exactly Gross - Deduction and is
// never clamped at zero.
type Totals struct {
	ByField   map[string]FieldTotal
	Gross     decimal.Decimal
	Deduction decimal.Decimal
	Total     decimal.Decimal
}

// Aggregate folds evaluated components into totals. Components of type
// "other" are listed by field but count toward neither side.
func Aggregate(components []EvaluatedComponent) Totals {
	t := Totals{ByField: make(map[string]FieldTotal, len(components))}
	for _, c := range components {
		ft := t.ByField[c.Name]
		ft.Amount = ft.Amount.Add(c.Amount)
		ft.Type = c.ComponentType
		t.ByField[c.Name] = ft

		switch {
		case c.ComponentType.AddsToGross():
			t.Gross = t.Gross.Add(c.Amount)
		case c.ComponentType.AddsToDeduction():
			t.Deduction = t.Deduction.Add(c.Amount)
		}
	}
	t.Total = t.Gross.Sub(t.Deduction)
	return t
}

// Rounded returns the totals in whole currency units for presentation.
// Total is rounded from the raw net, not recomputed from rounded sides.
func (t Totals) Rounded() Totals {
	r := Totals{
		ByField:   make(map[string]FieldTotal, len(t.ByField)),
		Gross:     RoundHalfUp(t.Gross),
		Deduction: RoundHalfUp(t.Deduction),
		Total:     RoundHalfUp(t.Total),
	}
	for name, ft := range t.ByField {
		r.ByField[name] = FieldTotal{Amount: RoundHalfUp(ft.Amount), Type: ft.Type}
	}
	return r
}

// FieldNames returns ByField keys in a stable order.
func (t Totals) FieldNames() []string {
	names := make([]string, 0, len(t.ByField))
	for name := range t.ByField {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// =============================================================================
// ENTRIES
// =============================================================================

// BuildEntries turns evaluated components into payroll entries keyed by
// (employee, run, component). newID supplies ids for rows the store has
// not seen; stores keep the id of an existing row on upsert.
func BuildEntries(runID RunID, employeeID EmployeeID, components []EvaluatedComponent, newID func() string) []PayrollEntry {
	entries := make([]PayrollEntry, 0, len(components))
	for _, c := range components {
		var warnings []string
		for _, w := range c.Warnings {
			warnings = append(warnings, w.Message)
		}
		entries = append(entries, PayrollEntry{
			ID:            newID(),
			EmployeeID:    employeeID,
			PayrollID:     runID,
			ComponentID:   c.ComponentID,
			Name:          c.Name,
			ComponentType: c.ComponentType,
			DisplayOrder:  c.DisplayOrder,
			Amount:        RoundHalfUp(c.Amount),
			RawAmount:     c.Amount,
			PaymentStatus: PaymentUnpaid,
			Warnings:      warnings,
		})
	}
	return entries
}

// EntryTotals rebuilds one employee's totals from stored entries.
func EntryTotals(entries []PayrollEntry) Totals {
	components := make([]EvaluatedComponent, len(entries))
	for i, e := range entries {
		components[i] = EvaluatedComponent{
			ComponentID:   e.ComponentID,
			Name:          e.Name,
			ComponentType: e.ComponentType,
			DisplayOrder:  e.DisplayOrder,
			Amount:        e.RawAmount,
		}
	}
	return Aggregate(components)
}

// RunTotals derives a run's employee count and net amount from its entry
// set. The net is summed raw and rounded once.
func RunTotals(entries []PayrollEntry) (employees int, net decimal.Decimal) {
	byEmployee := make(map[EmployeeID][]PayrollEntry)
	for _, e := range entries {
		byEmployee[e.EmployeeID] = append(byEmployee[e.EmployeeID], e)
	}
	sum := decimal.Zero
	for _, es := range byEmployee {
		sum = sum.Add(EntryTotals(es).Total)
	}
	return len(byEmployee), RoundHalfUp(sum)
}
