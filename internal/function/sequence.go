package function

import (
	"github.com/parasol-framework/xquery/internal/eval"
	"github.com/parasol-framework/xquery/internal/value"
)

func registerSequenceFunctions(r *Registry) {
	r.register("fn:count", 1, fnCount)
	r.register("fn:empty", 1, fnEmpty)
	r.register("fn:exists", 1, fnExists)
	r.register("fn:reverse", 1, fnReverse)
	r.register("fn:distinct-values", 1, fnDistinctValues)
	r.register("fn:subsequence", 2, fnSubsequence)
	r.register("fn:subsequence", 3, fnSubsequence)
	r.register("fn:insert-before", 3, fnInsertBefore)
	r.register("fn:remove", 2, fnRemove)
	r.register("fn:index-of", 2, fnIndexOf)
	r.register("fn:zero-or-one", 1, fnZeroOrOne)
	r.register("fn:one-or-more", 1, fnOneOrMore)
	r.register("fn:exactly-one", 1, fnExactlyOne)
}

func fnCount(ctx *eval.Context, args []value.Value) (value.Value, error) {
	return value.Integer(int64(len(args[0].Items()))), nil
}

func fnEmpty(ctx *eval.Context, args []value.Value) (value.Value, error) {
	return value.Boolean(len(args[0].Items()) == 0), nil
}

func fnExists(ctx *eval.Context, args []value.Value) (value.Value, error) {
	return value.Boolean(len(args[0].Items()) > 0), nil
}

func fnReverse(ctx *eval.Context, args []value.Value) (value.Value, error) {
	items := args[0].Items()
	out := make([]value.Value, len(items))
	for i, item := range items {
		out[len(items)-1-i] = item
	}
	return value.Sequence(out), nil
}

func fnDistinctValues(ctx *eval.Context, args []value.Value) (value.Value, error) {
	items := args[0].Items()
	seen := make(map[string]bool, len(items))
	var out []value.Value
	for _, item := range items {
		key := item.AsString(ctx.StringValueOf)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return value.Sequence(out), nil
}

func fnSubsequence(ctx *eval.Context, args []value.Value) (value.Value, error) {
	items := args[0].Items()
	start := roundHalfToEven(args[1].AsNumber(ctx.StringValueOf, ctx.NumberOrderOf))
	length := int64(len(items)) - start + 1
	if len(args) == 3 {
		length = roundHalfToEven(args[2].AsNumber(ctx.StringValueOf, ctx.NumberOrderOf))
	}
	from := start
	if from < 1 {
		from = 1
	}
	to := start + length
	if to > int64(len(items))+1 {
		to = int64(len(items)) + 1
	}
	if to <= from {
		return value.Empty(), nil
	}
	return value.Sequence(items[from-1 : to-1]), nil
}

func fnInsertBefore(ctx *eval.Context, args []value.Value) (value.Value, error) {
	items := args[0].Items()
	pos := int64(args[1].AsNumber(ctx.StringValueOf, ctx.NumberOrderOf))
	inserts := args[2].Items()
	if pos < 1 {
		pos = 1
	}
	if pos > int64(len(items))+1 {
		pos = int64(len(items)) + 1
	}
	out := make([]value.Value, 0, len(items)+len(inserts))
	out = append(out, items[:pos-1]...)
	out = append(out, inserts...)
	out = append(out, items[pos-1:]...)
	return value.Sequence(out), nil
}

func fnRemove(ctx *eval.Context, args []value.Value) (value.Value, error) {
	items := args[0].Items()
	pos := int64(args[1].AsNumber(ctx.StringValueOf, ctx.NumberOrderOf))
	if pos < 1 || pos > int64(len(items)) {
		return value.Sequence(items), nil
	}
	out := make([]value.Value, 0, len(items)-1)
	out = append(out, items[:pos-1]...)
	out = append(out, items[pos:]...)
	return value.Sequence(out), nil
}

func fnIndexOf(ctx *eval.Context, args []value.Value) (value.Value, error) {
	items := args[0].Items()
	target := args[1]
	var out []value.Value
	for i, item := range items {
		if mapKeysEqualValue(ctx, item, target) {
			out = append(out, value.Integer(int64(i+1)))
		}
	}
	return value.Sequence(out), nil
}

func mapKeysEqualValue(ctx *eval.Context, a, b value.Value) bool {
	if isNumericValue(a) && isNumericValue(b) {
		return a.AsNumber(ctx.StringValueOf, ctx.NumberOrderOf) == b.AsNumber(ctx.StringValueOf, ctx.NumberOrderOf)
	}
	return a.AsString(ctx.StringValueOf) == b.AsString(ctx.StringValueOf)
}

func isNumericValue(v value.Value) bool {
	switch v.Type() {
	case value.TypeInteger, value.TypeDouble, value.TypeDecimal:
		return true
	default:
		return false
	}
}

func fnZeroOrOne(ctx *eval.Context, args []value.Value) (value.Value, error) {
	items := args[0].Items()
	if len(items) > 1 {
		return value.Value{}, arityCardinalityErr("zero-or-one", len(items))
	}
	return args[0], nil
}

func fnOneOrMore(ctx *eval.Context, args []value.Value) (value.Value, error) {
	if len(args[0].Items()) == 0 {
		return value.Value{}, arityCardinalityErr("one-or-more", 0)
	}
	return args[0], nil
}

func fnExactlyOne(ctx *eval.Context, args []value.Value) (value.Value, error) {
	if len(args[0].Items()) != 1 {
		return value.Value{}, arityCardinalityErr("exactly-one", len(args[0].Items()))
	}
	return args[0], nil
}
