package eval

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/parasol-framework/xquery/internal/ast"
	"github.com/parasol-framework/xquery/internal/value"
	"github.com/parasol-framework/xquery/internal/xqerr"
)

// evalBinaryOp dispatches on the parser-resolved BinaryKind (spec §4.C: the
// parser caches this enum so the evaluator never re-parses operator text).
func evalBinaryOp(ctx *Context, n *ast.Node) (value.Value, error) {
	switch n.BinaryKind {
	case ast.OpAnd:
		return evalAnd(ctx, n)
	case ast.OpOr:
		return evalOr(ctx, n)
	}

	left, err := Eval(ctx, n.Child(0))
	if err != nil {
		return value.Value{}, err
	}
	right, err := Eval(ctx, n.Child(1))
	if err != nil {
		return value.Value{}, err
	}

	switch n.BinaryKind {
	case ast.OpAdd, ast.OpSub, ast.OpMul, ast.OpDiv, ast.OpMod:
		return evalArithmetic(ctx, n.BinaryKind, left, right)
	case ast.OpRange:
		return evalRange(left, right)
	case ast.OpUnion, ast.OpIntersect, ast.OpExcept:
		return evalSetOp(n.BinaryKind, left, right)
	case ast.OpNodeIs:
		return evalNodeIs(left, right)
	case ast.OpGeneralEQ, ast.OpGeneralNE, ast.OpGeneralLT, ast.OpGeneralLE, ast.OpGeneralGT, ast.OpGeneralGE:
		return evalGeneralComparison(ctx, n.BinaryKind, left, right)
	case ast.OpValueEQ, ast.OpValueNE, ast.OpValueLT, ast.OpValueLE, ast.OpValueGT, ast.OpValueGE:
		return evalValueComparison(ctx, n.BinaryKind, left, right)
	default:
		return value.Value{}, xqerr.ErrTypeMismatch.New("unsupported binary operator")
	}
}

// evalAnd/evalOr short-circuit, evaluating the right operand only when it
// can affect the result (spec §4.H logical operators).
func evalAnd(ctx *Context, n *ast.Node) (value.Value, error) {
	left, err := Eval(ctx, n.Child(0))
	if err != nil {
		return value.Value{}, err
	}
	if !left.AsBoolean() {
		return value.Boolean(false), nil
	}
	right, err := Eval(ctx, n.Child(1))
	if err != nil {
		return value.Value{}, err
	}
	return value.Boolean(right.AsBoolean()), nil
}

func evalOr(ctx *Context, n *ast.Node) (value.Value, error) {
	left, err := Eval(ctx, n.Child(0))
	if err != nil {
		return value.Value{}, err
	}
	if left.AsBoolean() {
		return value.Boolean(true), nil
	}
	right, err := Eval(ctx, n.Child(1))
	if err != nil {
		return value.Value{}, err
	}
	return value.Boolean(right.AsBoolean()), nil
}

// evalArithmetic implements SPEC_FULL's decimal promotion rule: integer
// arithmetic stays exact (int64) when both operands are xs:integer (except
// `div`, which yields xs:decimal), decimal arithmetic is used when both
// operands are numeric and neither is xs:double, and double arithmetic is
// used otherwise (node-sets and strings included) — the
// standard XPath 2.0 numeric type promotion hierarchy integer < decimal <
// double, implemented via shopspring/decimal for the middle tier so FOCA
// precision errors don't leak in from float64 round-off.
func evalArithmetic(ctx *Context, kind ast.BinaryOperationKind, left, right value.Value) (value.Value, error) {
	if left.IsEmpty() || right.IsEmpty() {
		return value.Empty(), nil
	}

	bothInteger := left.Type() == value.TypeInteger && right.Type() == value.TypeInteger
	eitherDouble := left.Type() == value.TypeDouble || right.Type() == value.TypeDouble

	switch {
	case bothInteger && kind != ast.OpDiv:
		return integerArithmetic(kind, int64(left.AsNumber(nil, nil)), int64(right.AsNumber(nil, nil)))
	case isNumeric(left) && isNumeric(right) && !eitherDouble:
		return decimalArithmetic(kind, left.Decimal(), right.Decimal())
	default:
		return doubleArithmetic(kind, left.AsNumber(ctx.StringValueOf, ctx.NumberOrderOf), right.AsNumber(ctx.StringValueOf, ctx.NumberOrderOf))
	}
}

func integerArithmetic(kind ast.BinaryOperationKind, a, b int64) (value.Value, error) {
	switch kind {
	case ast.OpAdd:
		return value.Integer(a + b), nil
	case ast.OpSub:
		return value.Integer(a - b), nil
	case ast.OpMul:
		return value.Integer(a * b), nil
	case ast.OpMod:
		if b == 0 {
			return value.Value{}, xqerr.ErrDivideByZero.New()
		}
		return value.Integer(a % b), nil
	default:
		return value.Value{}, xqerr.ErrTypeMismatch.New("unsupported integer operator")
	}
}

func doubleArithmetic(kind ast.BinaryOperationKind, a, b float64) (value.Value, error) {
	switch kind {
	case ast.OpAdd:
		return value.Double(a + b), nil
	case ast.OpSub:
		return value.Double(a - b), nil
	case ast.OpMul:
		return value.Double(a * b), nil
	case ast.OpDiv:
		return value.Double(a / b), nil
	case ast.OpMod:
		return value.Double(math.Mod(a, b)), nil
	default:
		return value.Value{}, xqerr.ErrTypeMismatch.New("unsupported double operator")
	}
}

func decimalArithmetic(kind ast.BinaryOperationKind, a, b decimal.Decimal) (value.Value, error) {
	switch kind {
	case ast.OpAdd:
		return value.Decimal(a.Add(b)), nil
	case ast.OpSub:
		return value.Decimal(a.Sub(b)), nil
	case ast.OpMul:
		return value.Decimal(a.Mul(b)), nil
	case ast.OpDiv:
		if b.IsZero() {
			return value.Value{}, xqerr.ErrDivideByZero.New()
		}
		return value.Decimal(a.Div(b)), nil
	case ast.OpMod:
		if b.IsZero() {
			return value.Value{}, xqerr.ErrDivideByZero.New()
		}
		return value.Decimal(a.Mod(b)), nil
	default:
		return value.Value{}, xqerr.ErrTypeMismatch.New("unsupported decimal operator")
	}
}

func evalRange(left, right value.Value) (value.Value, error) {
	if left.IsEmpty() || right.IsEmpty() {
		return value.Empty(), nil
	}
	lo := int64(left.AsNumber(nil, nil))
	hi := int64(right.AsNumber(nil, nil))
	if hi < lo {
		return value.Empty(), nil
	}
	items := make([]value.Value, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		items = append(items, value.Integer(i))
	}
	return value.Sequence(items), nil
}

func evalSetOp(kind ast.BinaryOperationKind, left, right value.Value) (value.Value, error) {
	a, b := left.Nodes(), right.Nodes()
	seen := make(map[nodeKey]bool, len(a))
	for _, n := range a {
		seen[refKey(n)] = true
	}
	var out []value.NodeRef
	switch kind {
	case ast.OpUnion:
		out = append(out, a...)
		for _, n := range b {
			if !seen[refKey(n)] {
				out = append(out, n)
				seen[refKey(n)] = true
			}
		}
	case ast.OpIntersect:
		inB := make(map[nodeKey]bool, len(b))
		for _, n := range b {
			inB[refKey(n)] = true
		}
		for _, n := range a {
			if inB[refKey(n)] {
				out = append(out, n)
			}
		}
	case ast.OpExcept:
		inB := make(map[nodeKey]bool, len(b))
		for _, n := range b {
			inB[refKey(n)] = true
		}
		for _, n := range a {
			if !inB[refKey(n)] {
				out = append(out, n)
			}
		}
	}
	return value.NodeSet(value.NormaliseNodeSet(out)), nil
}

type nodeKey struct {
	doc, id int64
}

func refKey(n value.NodeRef) nodeKey { return nodeKey{n.DocID, n.NodeID} }

func evalNodeIs(left, right value.Value) (value.Value, error) {
	a, b := left.Nodes(), right.Nodes()
	if len(a) != 1 || len(b) != 1 {
		return value.Empty(), nil
	}
	return value.Boolean(refKey(a[0]) == refKey(b[0])), nil
}
