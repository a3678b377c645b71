package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parasol-framework/xquery/internal/ast"
	"github.com/parasol-framework/xquery/internal/value"
	"github.com/parasol-framework/xquery/internal/xqerr"
)

func TestEvalValueComparisonSingleItems(t *testing.T) {
	got, err := evalValueComparison(&Context{}, ast.OpValueLT, value.Integer(3), value.Integer(5))
	require.NoError(t, err)
	assert.Equal(t, value.Boolean(true), got)
}

func TestEvalValueComparisonEmptyOperandYieldsEmpty(t *testing.T) {
	got, err := evalValueComparison(&Context{}, ast.OpValueEQ, value.Empty(), value.Integer(5))
	require.NoError(t, err)
	assert.True(t, got.IsEmpty())
}

func TestEvalValueComparisonRejectsMultiItemOperand(t *testing.T) {
	seq := value.Sequence([]value.Value{value.Integer(1), value.Integer(2)})
	_, err := evalValueComparison(&Context{}, ast.OpValueEQ, seq, value.Integer(1))
	require.Error(t, err)
	assert.True(t, xqerr.ErrTypeMismatch.Is(err))
}

func TestEvalGeneralComparisonAllowsMultiItemOperand(t *testing.T) {
	seq := value.Sequence([]value.Value{value.Integer(1), value.Integer(2)})
	got, err := evalGeneralComparison(&Context{}, ast.OpGeneralEQ, seq, value.Integer(2))
	require.NoError(t, err)
	assert.Equal(t, value.Boolean(true), got)
}
