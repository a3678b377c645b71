package function

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/parasol-framework/xquery/internal/eval"
	"github.com/parasol-framework/xquery/internal/value"
)

func registerNumericFunctions(r *Registry) {
	r.register("fn:abs", 1, fnAbs)
	r.register("fn:ceiling", 1, fnCeiling)
	r.register("fn:floor", 1, fnFloor)
	r.register("fn:round", 1, fnRound)
	r.register("fn:round-half-to-even", 1, fnRoundHalfToEven)
	r.register("fn:sum", 1, fnSum)
	r.register("fn:sum", 2, fnSumWithDefault)
	r.register("fn:avg", 1, fnAvg)
	r.register("fn:min", 1, fnMin)
	r.register("fn:max", 1, fnMax)
	r.register("fn:number", 1, fnNumber)
}

func fnNumber(ctx *eval.Context, args []value.Value) (value.Value, error) {
	return value.Double(args[0].AsNumber(ctx.StringValueOf, ctx.NumberOrderOf)), nil
}

func fnAbs(ctx *eval.Context, args []value.Value) (value.Value, error) {
	v := args[0]
	switch v.Type() {
	case value.TypeInteger:
		n := int64(v.AsNumber(nil, nil))
		if n < 0 {
			n = -n
		}
		return value.Integer(n), nil
	case value.TypeDecimal:
		return value.Decimal(v.Decimal().Abs()), nil
	default:
		return value.Double(math.Abs(v.AsNumber(ctx.StringValueOf, ctx.NumberOrderOf))), nil
	}
}

func fnCeiling(ctx *eval.Context, args []value.Value) (value.Value, error) {
	v := args[0]
	if v.Type() == value.TypeInteger {
		return v, nil
	}
	if v.Type() == value.TypeDecimal {
		return value.Decimal(v.Decimal().Ceil()), nil
	}
	return value.Double(math.Ceil(v.AsNumber(ctx.StringValueOf, ctx.NumberOrderOf))), nil
}

func fnFloor(ctx *eval.Context, args []value.Value) (value.Value, error) {
	v := args[0]
	if v.Type() == value.TypeInteger {
		return v, nil
	}
	if v.Type() == value.TypeDecimal {
		return value.Decimal(v.Decimal().Floor()), nil
	}
	return value.Double(math.Floor(v.AsNumber(ctx.StringValueOf, ctx.NumberOrderOf))), nil
}

func fnRound(ctx *eval.Context, args []value.Value) (value.Value, error) {
	v := args[0]
	switch v.Type() {
	case value.TypeInteger:
		return v, nil
	case value.TypeDecimal:
		return value.Decimal(v.Decimal().Round(0)), nil
	default:
		return value.Double(math.Floor(v.AsNumber(ctx.StringValueOf, ctx.NumberOrderOf) + 0.5)), nil
	}
}

func fnRoundHalfToEven(ctx *eval.Context, args []value.Value) (value.Value, error) {
	v := args[0]
	if v.Type() == value.TypeInteger {
		return v, nil
	}
	d := v.Decimal()
	return value.Decimal(d.RoundBank(0)), nil
}

func fnSum(ctx *eval.Context, args []value.Value) (value.Value, error) {
	items := args[0].Items()
	if len(items) == 0 {
		return value.Integer(0), nil
	}
	return sumItems(ctx, items), nil
}

func fnSumWithDefault(ctx *eval.Context, args []value.Value) (value.Value, error) {
	items := args[0].Items()
	if len(items) == 0 {
		return args[1], nil
	}
	return sumItems(ctx, items), nil
}

func sumItems(ctx *eval.Context, items []value.Value) value.Value {
	allInteger := true
	for _, item := range items {
		if item.Type() != value.TypeInteger {
			allInteger = false
			break
		}
	}
	if allInteger {
		var total int64
		for _, item := range items {
			total += int64(item.AsNumber(nil, nil))
		}
		return value.Integer(total)
	}
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Decimal())
	}
	return value.Decimal(total)
}

func fnAvg(ctx *eval.Context, args []value.Value) (value.Value, error) {
	items := args[0].Items()
	if len(items) == 0 {
		return value.Empty(), nil
	}
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Decimal())
	}
	return value.Decimal(total.Div(decimal.NewFromInt(int64(len(items))))), nil
}

func fnMin(ctx *eval.Context, args []value.Value) (value.Value, error) {
	return minMax(ctx, args[0].Items(), true)
}

func fnMax(ctx *eval.Context, args []value.Value) (value.Value, error) {
	return minMax(ctx, args[0].Items(), false)
}

func minMax(ctx *eval.Context, items []value.Value, wantMin bool) (value.Value, error) {
	if len(items) == 0 {
		return value.Empty(), nil
	}
	best := items[0]
	bestNum := best.AsNumber(ctx.StringValueOf, ctx.NumberOrderOf)
	for _, item := range items[1:] {
		n := item.AsNumber(ctx.StringValueOf, ctx.NumberOrderOf)
		if (wantMin && n < bestNum) || (!wantMin && n > bestNum) {
			best, bestNum = item, n
		}
	}
	return best, nil
}
