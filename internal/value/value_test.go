package value

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsBoolean(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want bool
	}{
		{"empty", Empty(), false},
		{"zero-length string", String(""), false},
		{"non-empty string", String("0"), true},
		{"zero integer", Integer(0), false},
		{"non-zero integer", Integer(1), true},
		{"nan double", Double(math.NaN()), false},
		{"zero decimal", Decimal(decimal.Zero), false},
		{"one-node set", NodeSet([]NodeRef{{}}), true},
		{"empty node set", NodeSet(nil), false},
		{"empty map", Map(nil), false},
		{"non-empty array", Array([]Value{Integer(1)}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.v.AsBoolean())
		})
	}
}

func TestAsStringAtomics(t *testing.T) {
	assert.Equal(t, "", Empty().AsString(nil))
	assert.Equal(t, "true", Boolean(true).AsString(nil))
	assert.Equal(t, "false", Boolean(false).AsString(nil))
	assert.Equal(t, "42", Integer(42).AsString(nil))
	assert.Equal(t, "NaN", Double(math.NaN()).AsString(nil))
	assert.Equal(t, "INF", Double(math.Inf(1)).AsString(nil))
	assert.Equal(t, "1.5", Double(1.5).AsString(nil))
	assert.Equal(t, "3", Double(3).AsString(nil))
}

func TestAsStringSequenceJoinsWithSpace(t *testing.T) {
	seq := Sequence([]Value{Integer(1), Integer(2), String("x")})
	assert.Equal(t, "1 2 x", seq.AsString(nil))
}

func TestAsStringNodeSetUsesStringValueOf(t *testing.T) {
	svo := func(ref NodeRef) string { return "node-" + string(rune('0'+ref.NodeID)) }
	v := NodeSet([]NodeRef{{NodeID: 3}})
	assert.Equal(t, "node-3", v.AsString(svo))
}

func TestAsNumberConversions(t *testing.T) {
	assert.True(t, math.IsNaN(Empty().AsNumber(nil, nil)))
	assert.Equal(t, 1.0, Boolean(true).AsNumber(nil, nil))
	assert.Equal(t, 0.0, Boolean(false).AsNumber(nil, nil))
	assert.Equal(t, 42.0, Integer(42).AsNumber(nil, nil))
	assert.Equal(t, 3.5, String("3.5").AsNumber(nil, nil))
	assert.True(t, math.IsNaN(String("not-a-number").AsNumber(nil, nil)))
}

func TestSequenceCollapsesSingleItem(t *testing.T) {
	assert.Equal(t, Integer(5), Sequence([]Value{Integer(5)}))
	assert.True(t, Sequence(nil).IsEmpty())
}

func TestItemsFlattening(t *testing.T) {
	seq := Sequence([]Value{Integer(1), Integer(2)})
	require.Len(t, seq.Items(), 2)

	nodeset := NodeSet([]NodeRef{{NodeID: 1}, {NodeID: 2}})
	items := nodeset.Items()
	require.Len(t, items, 2)
	for _, item := range items {
		assert.Equal(t, TypeNodeSet, item.Type())
		assert.Len(t, item.Nodes(), 1)
	}

	assert.Equal(t, []Value{Integer(7)}, Integer(7).Items())
	assert.Nil(t, Empty().Items())
}

func TestParseXSDouble(t *testing.T) {
	assert.Equal(t, math.Inf(1), ParseXSDouble("INF"))
	assert.Equal(t, math.Inf(1), ParseXSDouble("+INF"))
	assert.Equal(t, math.Inf(-1), ParseXSDouble("-INF"))
	assert.True(t, math.IsNaN(ParseXSDouble("NaN")))
	assert.True(t, math.IsNaN(ParseXSDouble("bogus")))
	assert.Equal(t, 2.5, ParseXSDouble(" 2.5 "))
}

func TestNormaliseNodeSetSortsAndDedups(t *testing.T) {
	nodes := []NodeRef{
		{DocID: 1, Position: 3},
		{DocID: 1, Position: 1},
		{DocID: 1, Position: 1},
		{DocID: 0, Position: 9},
	}
	got := NormaliseNodeSet(nodes)
	want := []NodeRef{
		{DocID: 0, Position: 9},
		{DocID: 1, Position: 1},
		{DocID: 1, Position: 3},
	}
	assert.Equal(t, want, got)
}

func TestDecimalConversion(t *testing.T) {
	assert.True(t, decimal.NewFromInt(4).Equal(Integer(4).Decimal()))
	assert.True(t, decimal.Zero.Equal(String("not-a-decimal").Decimal()))
}
