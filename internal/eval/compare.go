package eval

import (
	"github.com/parasol-framework/xquery/internal/ast"
	"github.com/parasol-framework/xquery/internal/value"
	"github.com/parasol-framework/xquery/internal/xqerr"
)

// evalGeneralComparison implements spec §4.F general comparison semantics:
// existentially quantified over both operands' items, atomizing node-sets
// to their typed string-value before the scalar comparison (spec §4.F
// "general comparison... existential").
func evalGeneralComparison(ctx *Context, kind ast.BinaryOperationKind, left, right value.Value) (value.Value, error) {
	leftItems := left.Items()
	rightItems := right.Items()
	if len(leftItems) == 0 || len(rightItems) == 0 {
		return value.Boolean(false), nil
	}
	for _, l := range leftItems {
		for _, r := range rightItems {
			if generalCompareOne(ctx, kind, l, r) {
				return value.Boolean(true), nil
			}
		}
	}
	return value.Boolean(false), nil
}

func generalCompareOne(ctx *Context, kind ast.BinaryOperationKind, l, r value.Value) bool {
	// Numeric comparison when either side is already numeric; otherwise
	// string comparison (spec §4.F atomic-pair comparison rule).
	if isNumeric(l) || isNumeric(r) {
		a := l.AsNumber(ctx.StringValueOf, ctx.NumberOrderOf)
		b := r.AsNumber(ctx.StringValueOf, ctx.NumberOrderOf)
		return compareNumbers(kind, a, b)
	}
	a := l.AsString(ctx.StringValueOf)
	b := r.AsString(ctx.StringValueOf)
	return compareStrings(kind, a, b)
}

func isNumeric(v value.Value) bool {
	switch v.Type() {
	case value.TypeInteger, value.TypeDouble, value.TypeDecimal:
		return true
	default:
		return false
	}
}

func compareNumbers(kind ast.BinaryOperationKind, a, b float64) bool {
	switch kind {
	case ast.OpGeneralEQ, ast.OpValueEQ:
		return a == b
	case ast.OpGeneralNE, ast.OpValueNE:
		return a != b
	case ast.OpGeneralLT, ast.OpValueLT:
		return a < b
	case ast.OpGeneralLE, ast.OpValueLE:
		return a <= b
	case ast.OpGeneralGT, ast.OpValueGT:
		return a > b
	case ast.OpGeneralGE, ast.OpValueGE:
		return a >= b
	default:
		return false
	}
}

func compareStrings(kind ast.BinaryOperationKind, a, b string) bool {
	switch kind {
	case ast.OpGeneralEQ, ast.OpValueEQ:
		return a == b
	case ast.OpGeneralNE, ast.OpValueNE:
		return a != b
	case ast.OpGeneralLT, ast.OpValueLT:
		return a < b
	case ast.OpGeneralLE, ast.OpValueLE:
		return a <= b
	case ast.OpGeneralGT, ast.OpValueGT:
		return a > b
	case ast.OpGeneralGE, ast.OpValueGE:
		return a >= b
	default:
		return false
	}
}

// evalValueComparison implements spec §4.F value comparison: both operands
// must be at most a single item; an empty operand yields the empty
// sequence (a three-valued "unknown", matching XPath 2.0's eq/ne/lt family
// rather than boolean false), and a multi-item operand is a type error
// rather than an implicit first-item comparison.
func evalValueComparison(ctx *Context, kind ast.BinaryOperationKind, left, right value.Value) (value.Value, error) {
	if left.IsEmpty() || right.IsEmpty() {
		return value.Empty(), nil
	}
	if len(left.Items()) > 1 || len(right.Items()) > 1 {
		return value.Value{}, xqerr.ErrTypeMismatch.New("value comparison operand is not a single item")
	}
	return value.Boolean(generalCompareOne(ctx, kind, left, right)), nil
}
