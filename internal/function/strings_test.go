package function

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parasol-framework/xquery/internal/eval"
	"github.com/parasol-framework/xquery/internal/value"
)

func lookup(t *testing.T, qname string, arity int) eval.FunctionImpl {
	t.Helper()
	fn, ok := Default().Lookup(qname, arity)
	require.True(t, ok, "expected %s#%d to be registered", qname, arity)
	return fn
}

func TestFnStringOneArity(t *testing.T) {
	fn := lookup(t, "fn:string", 1)
	got, err := fn(&eval.Context{}, []value.Value{value.Integer(42)})
	require.NoError(t, err)
	assert.Equal(t, value.String("42"), got)
}

// fn:string() with zero arguments reads the context item rather than an
// explicit argument, the overload a trailing path step such as
// `/@price/string()` relies on.
func TestFnStringZeroArityUsesContextItem(t *testing.T) {
	fn := lookup(t, "fn:string", 0)
	ctx := &eval.Context{ContextItem: value.Integer(5)}
	got, err := fn(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, value.String("5"), got)
}

func TestFnConcat(t *testing.T) {
	fn := lookup(t, "fn:concat", 3)
	got, err := fn(&eval.Context{}, []value.Value{value.String("a"), value.String("b"), value.String("c")})
	require.NoError(t, err)
	assert.Equal(t, value.String("abc"), got)
}

func TestFnStringLengthBothArities(t *testing.T) {
	one := lookup(t, "fn:string-length", 1)
	got, err := one(&eval.Context{}, []value.Value{value.String("hello")})
	require.NoError(t, err)
	assert.Equal(t, value.Integer(5), got)

	zero := lookup(t, "fn:string-length", 0)
	got, err = zero(&eval.Context{ContextItem: value.String("hi")}, nil)
	require.NoError(t, err)
	assert.Equal(t, value.Integer(2), got)
}

func TestFnNormalizeSpace(t *testing.T) {
	fn := lookup(t, "fn:normalize-space", 1)
	got, err := fn(&eval.Context{}, []value.Value{value.String("  a   b\tc  ")})
	require.NoError(t, err)
	assert.Equal(t, value.String("a b c"), got)
}

func TestFnSubstring(t *testing.T) {
	fn := lookup(t, "fn:substring", 2)
	got, err := fn(&eval.Context{}, []value.Value{value.String("motorcycle"), value.Integer(4)})
	require.NoError(t, err)
	assert.Equal(t, value.String("orcycle"), got)
}

func TestFnStartsEndsWithAndContains(t *testing.T) {
	startsWith := lookup(t, "fn:starts-with", 2)
	got, err := startsWith(&eval.Context{}, []value.Value{value.String("tattoo"), value.String("tat")})
	require.NoError(t, err)
	assert.Equal(t, value.Boolean(true), got)

	endsWith := lookup(t, "fn:ends-with", 2)
	got, err = endsWith(&eval.Context{}, []value.Value{value.String("tattoo"), value.String("too")})
	require.NoError(t, err)
	assert.Equal(t, value.Boolean(true), got)

	contains := lookup(t, "fn:contains", 2)
	got, err = contains(&eval.Context{}, []value.Value{value.String("tattoo"), value.String("atto")})
	require.NoError(t, err)
	assert.Equal(t, value.Boolean(true), got)
}
