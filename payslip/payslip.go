/*
Package payslip renders one employee's salary slip for a payroll run.

PURPOSE:
  Turns the stored entry set of an employee into a printable document.
  The slip only reads results; it never recomputes amounts.

LAYOUT:
  Header     company, run period, status, employee details
  Earnings   earning and bonus entries in display order
  Deductions deduction and statutory entries in display order
  Other      informational entries (not part of either total)
  Summary    gross, deductions, net

AMOUNTS:
  Line amounts are the stored whole-unit amounts. Gross, deductions and
  net come from payroll.EntryTotals over raw amounts, rounded once, so
  the slip's net always equals the net used for the run total.

SEE ALSO:
  - payroll/aggregate.go: EntryTotals
  - api/handlers.go: GET /api/runs/{id}/employees/{employeeID}/payslip
*/
package payslip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/payroll"
)

// ErrNoEntries is returned when the employee has nothing to print in the run.
var ErrNoEntries = errors.New("payslip: employee has no entries in run")

type Line struct {
	Name   string
	Amount decimal.Decimal
}

type Slip struct {
	Run        payroll.PayrollRun
	Employee   payroll.Employee
	Earnings   []Line
	Deductions []Line
	Other      []Line
	Gross      decimal.Decimal
	Deduction  decimal.Decimal
	Net        decimal.Decimal
	Warnings   []string
}

// Source is the read side a slip needs.
type Source interface {
	GetRun(ctx context.Context, id payroll.RunID) (payroll.PayrollRun, error)
	GetEmployee(ctx context.Context, id payroll.EmployeeID) (payroll.Employee, error)
	ListEntries(ctx context.Context, runID payroll.RunID) ([]payroll.PayrollEntry, error)
}

// Load reads a run, an employee and the run's entries, and builds the slip.
func Load(ctx context.Context, src Source, runID payroll.RunID, employeeID payroll.EmployeeID) (Slip, error) {
	run, err := src.GetRun(ctx, runID)
	if err != nil {
		return Slip{}, payroll.DataAccess("get run", err)
	}
	emp, err := src.GetEmployee(ctx, employeeID)
	if err != nil {
		return Slip{}, payroll.DataAccess("get employee", err)
	}
	entries, err := src.ListEntries(ctx, runID)
	if err != nil {
		return Slip{}, payroll.DataAccess("list entries", err)
	}
	return Build(run, emp, entries)
}

// Build selects the employee's entries from a run's entry set.
func Build(run payroll.PayrollRun, emp payroll.Employee, entries []payroll.PayrollEntry) (Slip, error) {
	var mine []payroll.PayrollEntry
	for _, e := range entries {
		if e.EmployeeID == emp.ID {
			mine = append(mine, e)
		}
	}
	if len(mine) == 0 {
		return Slip{}, ErrNoEntries
	}
	sort.SliceStable(mine, func(i, j int) bool {
		if mine[i].DisplayOrder == mine[j].DisplayOrder {
			return mine[i].ComponentID < mine[j].ComponentID
		}
		return mine[i].DisplayOrder < mine[j].DisplayOrder
	})

	s := Slip{Run: run, Employee: emp}
	for _, e := range mine {
		line := Line{Name: e.Name, Amount: e.Amount}
		switch {
		case e.ComponentType.AddsToGross():
			s.Earnings = append(s.Earnings, line)
		case e.ComponentType.AddsToDeduction():
			s.Deductions = append(s.Deductions, line)
		default:
			s.Other = append(s.Other, line)
		}
		for _, w := range e.Warnings {
			s.Warnings = append(s.Warnings, e.Name+": "+w)
		}
	}

	totals := payroll.EntryTotals(mine).Rounded()
	s.Gross, s.Deduction, s.Net = totals.Gross, totals.Deduction, totals.Total
	return s, nil
}

// =============================================================================
// PDF
// =============================================================================

const (
	labelWidth  = 120.0
	amountWidth = 60.0
	lineHeight  = 7.0
)

// Render writes the slip as an A4 PDF.
func Render(w io.Writer, s Slip) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Payslip %s %s", s.Employee.ID, s.Run.Period), true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Payslip")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	header := [][2]string{
		{"Company", string(s.Run.CompanyID)},
		{"Period", fmt.Sprintf("%s to %s", s.Run.Period.Start.Format("2006-01-02"), s.Run.Period.End.Format("2006-01-02"))},
		{"Run", fmt.Sprintf("%s (%s)", s.Run.ID, s.Run.Status)},
		{"Employee", fmt.Sprintf("%s (%s)", s.Employee.Name, s.Employee.ID)},
	}
	if s.Employee.Position != "" {
		header = append(header, [2]string{"Position", s.Employee.Position})
	}
	if s.Employee.SiteID != "" {
		header = append(header, [2]string{"Site", string(s.Employee.SiteID)})
	}
	for _, h := range header {
		pdf.CellFormat(40, lineHeight, h[0]+":", "", 0, "L", false, 0, "")
		pdf.CellFormat(0, lineHeight, h[1], "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	section(pdf, "Earnings", s.Earnings)
	section(pdf, "Deductions", s.Deductions)
	if len(s.Other) > 0 {
		section(pdf, "Other", s.Other)
	}

	pdf.SetFont("Helvetica", "B", 11)
	row(pdf, "Gross", s.Gross, "T")
	row(pdf, "Total deductions", s.Deduction, "")
	row(pdf, "Net pay", s.Net, "B")

	if len(s.Warnings) > 0 {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "I", 9)
		for _, w := range s.Warnings {
			pdf.MultiCell(0, 5, w, "", "L", false)
		}
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render payslip: %w", err)
	}
	return nil
}

func section(pdf *gofpdf.Fpdf, title string, lines []Line) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, title, "B", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	if len(lines) == 0 {
		pdf.CellFormat(0, lineHeight, "-", "", 1, "L", false, 0, "")
	}
	for _, l := range lines {
		row(pdf, l.Name, l.Amount, "")
	}
	pdf.Ln(3)
}

func row(pdf *gofpdf.Fpdf, label string, amount decimal.Decimal, border string) {
	pdf.CellFormat(labelWidth, lineHeight, label, border, 0, "L", false, 0, "")
	pdf.CellFormat(amountWidth, lineHeight, amount.StringFixed(2), border, 1, "R", false, 0, "")
}
