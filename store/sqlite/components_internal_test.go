package sqlite

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/payroll"
)

func TestListComponents_KeepsTargetError(t *testing.T) {
	ctx := context.Background()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	// GIVEN: A stored component whose target type is no longer supported
	require.NoError(t, s.SaveComponent(ctx, payroll.TemplateComponent{
		ID: "c-1", TemplateID: "tpl", Name: "Gratuity",
		ComponentType: payroll.ComponentDeduction, CalculationValue: decimal.Zero,
		Target: payroll.EPFTarget{ConfigID: "g-1"},
	}))
	_, err = s.db.ExecContext(ctx, `UPDATE template_components SET target_type = 'gratuity' WHERE id = 'c-1'`)
	require.NoError(t, err)

	// WHEN: Listed
	comps, err := s.ListComponents(ctx, "tpl")
	require.NoError(t, err)

	// THEN: The listing succeeds and the component carries the reason
	require.Len(t, comps, 1)
	assert.Nil(t, comps[0].Target)
	assert.ErrorIs(t, comps[0].TargetErr, payroll.ErrMalformedComponent)

	// AND: Evaluation reports the real cause
	_, err = payroll.Evaluator{}.Evaluate(payroll.EvaluationInput{Components: comps})
	require.ErrorIs(t, err, payroll.ErrMalformedComponent)
	assert.Contains(t, err.Error(), `unknown target type "gratuity"`)
}
