package payslip_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/payroll/store"
	"github.com/warp/payroll-engine/payslip"
)

func entry(emp payroll.EmployeeID, comp payroll.ComponentID, typ payroll.ComponentType, order int, raw string) payroll.PayrollEntry {
	a := decimal.RequireFromString(raw)
	return payroll.PayrollEntry{
		ID: string(emp) + "-" + string(comp), EmployeeID: emp, PayrollID: "run-1",
		ComponentID: comp, Name: string(comp), ComponentType: typ, DisplayOrder: order,
		Amount: payroll.RoundHalfUp(a), RawAmount: a, PaymentStatus: payroll.PaymentUnpaid,
	}
}

func fixture() (payroll.PayrollRun, payroll.Employee, []payroll.PayrollEntry) {
	run := payroll.PayrollRun{
		ID: "run-1", CompanyID: "acme", Period: payroll.MonthPeriod(2025, time.March), Status: payroll.RunApproved,
	}
	emp := payroll.Employee{ID: "emp-1", CompanyID: "acme", Name: "Asha", Position: "guard", SiteID: "site-1", Active: true}
	entries := []payroll.PayrollEntry{
		entry("emp-1", "epf", payroll.ComponentStatutoryContribution, 10, "1800"),
		entry("emp-1", "basic", payroll.ComponentEarning, 1, "24038.46"),
		entry("emp-1", "hra", payroll.ComponentEarning, 2, "9615.38"),
		entry("emp-1", "memo", payroll.ComponentOther, 20, "500"),
		entry("emp-2", "basic", payroll.ComponentEarning, 1, "1000"),
	}
	entries[0].Warnings = []string{"capped at 1800"}
	return run, emp, entries
}

func TestBuild_GroupsEntries(t *testing.T) {
	// GIVEN a run's entry set with two employees
	run, emp, entries := fixture()

	// WHEN the slip for emp-1 is built
	s, err := payslip.Build(run, emp, entries)
	require.NoError(t, err)

	// THEN lines are grouped by type in display order
	require.Len(t, s.Earnings, 2)
	assert.Equal(t, "basic", s.Earnings[0].Name)
	assert.Equal(t, "24038", s.Earnings[0].Amount.String())
	require.Len(t, s.Deductions, 1)
	require.Len(t, s.Other, 1)

	// AND totals come from raw amounts, rounded once
	assert.Equal(t, "33654", s.Gross.String())
	assert.Equal(t, "1800", s.Deduction.String())
	assert.Equal(t, "31854", s.Net.String())
	assert.Equal(t, []string{"epf: capped at 1800"}, s.Warnings)
}

func TestBuild_NoEntries(t *testing.T) {
	run, _, entries := fixture()
	_, err := payslip.Build(run, payroll.Employee{ID: "emp-9"}, entries)
	assert.ErrorIs(t, err, payslip.ErrNoEntries)
}

func TestRender_WritesPDF(t *testing.T) {
	run, emp, entries := fixture()
	s, err := payslip.Build(run, emp, entries)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, payslip.Render(&buf, s))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestLoad_ReadsStore(t *testing.T) {
	ctx := context.Background()
	run, emp, entries := fixture()
	run.Status = payroll.RunPending

	s := store.NewMemory()
	require.NoError(t, s.SaveEmployee(ctx, emp))
	require.NoError(t, s.CreateRun(ctx, run))
	require.NoError(t, s.ReplaceEmployeeResult(ctx, run.ID, emp.ID, entries[:4], nil))

	slip, err := payslip.Load(ctx, s, run.ID, emp.ID)
	require.NoError(t, err)
	assert.Equal(t, "31854", slip.Net.String())

	_, err = payslip.Load(ctx, s, "missing", emp.ID)
	assert.ErrorIs(t, err, payroll.ErrNotFound)
}
