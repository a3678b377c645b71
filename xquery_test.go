package xquery_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parasol-framework/xquery"
	"github.com/parasol-framework/xquery/xmlmodel"
	"github.com/parasol-framework/xquery/xmltest"
)

// S1: a predicate filtering attributes by numeric comparison, followed by a
// path step that isn't a node test (trailing fn:string()).
func TestEndToEndAttributeFilterAndString(t *testing.T) {
	doc := xmltest.NewBuilder("").
		Element("", "root", "").
		Element("", "book", "").Attribute("", "price", "", "5").End().
		Element("", "book", "").Attribute("", "price", "", "12").End().
		Element("", "book", "").Attribute("", "price", "", "8").End().
		End().
		Build()

	q := xquery.NewQuery(`/root/book[@price < 10]/@price/string()`, nil)
	require.Equal(t, xquery.Okay, q.Init())

	status := q.Evaluate(doc)
	require.Equal(t, xquery.Okay, status, q.ErrorMsg)
	assert.Equal(t, "5 8", q.ResultString)
}

// S2: FLWOR with an order by clause re-sorting unordered document input.
func TestEndToEndFLWOROrderBy(t *testing.T) {
	doc := xmltest.NewBuilder("").
		Element("", "ns", "").
		Element("", "x", "").Attribute("", "v", "", "3").End().
		Element("", "x", "").Attribute("", "v", "", "1").End().
		Element("", "x", "").Attribute("", "v", "", "2").End().
		End().
		Build()

	q := xquery.NewQuery(`for $x in /ns/x order by number($x/@v) return string($x/@v)`, nil)
	require.Equal(t, xquery.Okay, q.Init())

	status := q.Evaluate(doc)
	require.Equal(t, xquery.Okay, status, q.ErrorMsg)
	assert.Equal(t, "1 2 3", q.ResultString)
}

// S3: a query with no document context at all, run via Activate.
func TestEndToEndActivateWithoutDocument(t *testing.T) {
	q := xquery.NewQuery(`sum(1 to 100)`, nil)
	require.Equal(t, xquery.Okay, q.Init())

	status := q.Activate()
	require.Equal(t, xquery.Okay, status, q.ErrorMsg)
	assert.Equal(t, "5050", q.ResultString)
	assert.Equal(t, xquery.FeatureFlags(0), q.FeatureFlags())
}

// S4: a direct element constructor with an attribute value template that
// embeds a path expression, serialised back to XML text.
func TestEndToEndDirectConstructorWithTemplate(t *testing.T) {
	doc := xmltest.NewBuilder("").
		Element("", "users", "").
		Element("", "u", "").Attribute("", "name", "", "Ada").End().
		End().
		Build()

	q := xquery.NewQuery(`<greet who="{/users/u/@name}">Hello</greet>`, nil)
	require.Equal(t, xquery.Okay, q.Init())
	assert.True(t, q.FeatureFlags()&xquery.UsesConstructors != 0)

	status := q.Evaluate(doc)
	require.Equal(t, xquery.Okay, status, q.ErrorMsg)
	assert.Equal(t, `<greet who="Ada">Hello</greet>`, q.ResultString)
}

// S5: typeswitch branching on the dynamic type of an atomic operand.
func TestEndToEndTypeswitch(t *testing.T) {
	q := xquery.NewQuery(`typeswitch(42) case xs:string return "s" case xs:integer return "i" default return "?"`, nil)
	require.Equal(t, xquery.Okay, q.Init())

	status := q.Activate()
	require.Equal(t, xquery.Okay, status, q.ErrorMsg)
	assert.Equal(t, "i", q.ResultString)
}

// S6: Search stops early, with Status Terminate, when the callback returns
// ErrTerminate; the callback must not be invoked again after that.
func TestEndToEndSearchTerminate(t *testing.T) {
	doc := xmltest.NewBuilder("").
		Element("", "r", "").
		Element("", "a", "").End().
		Element("", "a", "").End().
		Element("", "a", "").End().
		End().
		Build()

	q := xquery.NewQuery(`//a`, nil)
	require.Equal(t, xquery.Okay, q.Init())

	calls := 0
	status := q.Search(doc, func(doc xmlmodel.Document, node xmlmodel.Node, attr xmlmodel.Attribute) error {
		calls++
		return xquery.ErrTerminate
	})

	assert.Equal(t, xquery.Terminate, status)
	assert.Equal(t, 1, calls)
}

func TestSearchInvokesCallbackPerMatch(t *testing.T) {
	doc := xmltest.NewBuilder("").
		Element("", "r", "").
		Element("", "a", "").End().
		Element("", "a", "").End().
		End().
		Build()

	q := xquery.NewQuery(`//a`, nil)
	require.Equal(t, xquery.Okay, q.Init())

	var seen []string
	status := q.Search(doc, func(doc xmlmodel.Document, node xmlmodel.Node, attr xmlmodel.Attribute) error {
		seen = append(seen, node.LocalName())
		return nil
	})

	assert.Equal(t, xquery.Okay, status)
	assert.Equal(t, []string{"a", "a"}, seen)
}

func TestSearchReportsNoMatches(t *testing.T) {
	doc := xmltest.NewBuilder("").Element("", "r", "").End().Build()

	q := xquery.NewQuery(`//a`, nil)
	require.Equal(t, xquery.Okay, q.Init())

	status := q.Search(doc, func(doc xmlmodel.Document, node xmlmodel.Node, attr xmlmodel.Attribute) error {
		t.Fatal("callback should not run when there are no matches")
		return nil
	})
	assert.Equal(t, xquery.Search, status)
}

func TestSyntaxErrorSetsErrorMsg(t *testing.T) {
	q := xquery.NewQuery(`for $x in return $x`, nil)
	assert.Equal(t, xquery.Syntax, q.Init())
	assert.NotEmpty(t, q.ErrorMsg)
}

func TestClearResetsResultButKeepsStatement(t *testing.T) {
	q := xquery.NewQuery(`1 + 1`, nil)
	require.Equal(t, xquery.Okay, q.Init())
	require.Equal(t, xquery.Okay, q.Activate())
	require.Equal(t, "2", q.ResultString)

	q.Clear()
	assert.Equal(t, "1 + 1", q.Statement)
	assert.Equal(t, "", q.ResultString)
	assert.Equal(t, xquery.FeatureFlags(0), q.FeatureFlags())
}

func TestSetKeyBindsHostVariable(t *testing.T) {
	q := xquery.New(nil)
	q.Statement = `$greeting`
	q.SetKey("greeting", "hi")
	require.Equal(t, xquery.Okay, q.Init())

	v, ok := q.GetKey("greeting")
	require.True(t, ok)
	assert.Equal(t, "hi", v)

	require.Equal(t, xquery.Okay, q.Activate())
	assert.Equal(t, "hi", q.ResultString)
}

func TestRegisterFunctionYieldsToBuiltinOnClash(t *testing.T) {
	q := xquery.New(nil)
	called := false
	q.RegisterFunction("fn:true", 0, func(args []xquery.Value) (xquery.Value, error) {
		called = true
		return xquery.Value{}, errors.New("should never run")
	})
	q.Statement = `true()`
	require.Equal(t, xquery.Okay, q.Init())
	require.Equal(t, xquery.Okay, q.Activate())
	assert.Equal(t, "true", q.ResultString)
	assert.False(t, called)
}

func TestRegisterFunctionHandlesUnboundQName(t *testing.T) {
	q := xquery.New(nil)
	q.RegisterFunction("local:double", 1, func(args []xquery.Value) (xquery.Value, error) {
		return xquery.Value{}, errors.New("unused")
	})
	q.Statement = `1 + 1`
	require.Equal(t, xquery.Okay, q.Init())
	require.Equal(t, xquery.Okay, q.Activate())
	assert.Equal(t, "2", q.ResultString)
}
