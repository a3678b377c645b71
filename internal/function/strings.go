package function

import (
	"strings"

	"github.com/parasol-framework/xquery/internal/eval"
	"github.com/parasol-framework/xquery/internal/value"
)

func registerStringFunctions(r *Registry) {
	r.register("fn:string", 0, fnStringContext)
	r.register("fn:string", 1, fnString)
	r.register("fn:concat", 2, fnConcat)
	r.register("fn:concat", 3, fnConcat)
	r.register("fn:concat", 4, fnConcat)
	r.register("fn:string-length", 0, fnStringLengthContext)
	r.register("fn:string-length", 1, fnStringLength)
	r.register("fn:substring", 2, fnSubstring)
	r.register("fn:substring", 3, fnSubstring)
	r.register("fn:upper-case", 1, fnUpperCase)
	r.register("fn:lower-case", 1, fnLowerCase)
	r.register("fn:contains", 2, fnContains)
	r.register("fn:starts-with", 2, fnStartsWith)
	r.register("fn:ends-with", 2, fnEndsWith)
	r.register("fn:normalize-space", 0, fnNormalizeSpaceContext)
	r.register("fn:normalize-space", 1, fnNormalizeSpace)
	r.register("fn:translate", 3, fnTranslate)
	r.register("fn:string-join", 2, fnStringJoin)
	r.register("fn:substring-before", 2, fnSubstringBefore)
	r.register("fn:substring-after", 2, fnSubstringAfter)
}

func argString(ctx *eval.Context, v value.Value) string { return v.AsString(ctx.StringValueOf) }

func fnString(ctx *eval.Context, args []value.Value) (value.Value, error) {
	return value.String(argString(ctx, args[0])), nil
}

func fnStringContext(ctx *eval.Context, args []value.Value) (value.Value, error) {
	return value.String(argString(ctx, ctx.ContextItem)), nil
}

func fnConcat(ctx *eval.Context, args []value.Value) (value.Value, error) {
	var b strings.Builder
	for _, a := range args {
		b.WriteString(argString(ctx, a))
	}
	return value.String(b.String()), nil
}

func fnStringLength(ctx *eval.Context, args []value.Value) (value.Value, error) {
	return value.Integer(int64(len([]rune(argString(ctx, args[0]))))), nil
}

func fnStringLengthContext(ctx *eval.Context, args []value.Value) (value.Value, error) {
	return value.Integer(int64(len([]rune(argString(ctx, ctx.ContextItem))))), nil
}

func fnSubstring(ctx *eval.Context, args []value.Value) (value.Value, error) {
	s := []rune(argString(ctx, args[0]))
	start := args[1].AsNumber(ctx.StringValueOf, ctx.NumberOrderOf)
	length := float64(len(s)) + 1 - start
	if len(args) == 3 {
		length = args[2].AsNumber(ctx.StringValueOf, ctx.NumberOrderOf)
	}
	from := roundHalfToEven(start)
	to := roundHalfToEven(start + length)
	if from < 1 {
		from = 1
	}
	if to > int64(len(s))+1 {
		to = int64(len(s)) + 1
	}
	if to <= from {
		return value.String(""), nil
	}
	return value.String(string(s[from-1 : to-1])), nil
}

func roundHalfToEven(f float64) int64 {
	if f != f { // NaN
		return 0
	}
	floor := int64(f)
	if f-float64(floor) >= 0.5 {
		return floor + 1
	}
	return floor
}

func fnUpperCase(ctx *eval.Context, args []value.Value) (value.Value, error) {
	return value.String(strings.ToUpper(argString(ctx, args[0]))), nil
}

func fnLowerCase(ctx *eval.Context, args []value.Value) (value.Value, error) {
	return value.String(strings.ToLower(argString(ctx, args[0]))), nil
}

func fnContains(ctx *eval.Context, args []value.Value) (value.Value, error) {
	return value.Boolean(strings.Contains(argString(ctx, args[0]), argString(ctx, args[1]))), nil
}

func fnStartsWith(ctx *eval.Context, args []value.Value) (value.Value, error) {
	return value.Boolean(strings.HasPrefix(argString(ctx, args[0]), argString(ctx, args[1]))), nil
}

func fnEndsWith(ctx *eval.Context, args []value.Value) (value.Value, error) {
	return value.Boolean(strings.HasSuffix(argString(ctx, args[0]), argString(ctx, args[1]))), nil
}

func fnNormalizeSpace(ctx *eval.Context, args []value.Value) (value.Value, error) {
	return value.String(normalizeSpace(argString(ctx, args[0]))), nil
}

func fnNormalizeSpaceContext(ctx *eval.Context, args []value.Value) (value.Value, error) {
	return value.String(normalizeSpace(argString(ctx, ctx.ContextItem))), nil
}

func normalizeSpace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

func fnTranslate(ctx *eval.Context, args []value.Value) (value.Value, error) {
	src := []rune(argString(ctx, args[0]))
	from := []rune(argString(ctx, args[1]))
	to := []rune(argString(ctx, args[2]))
	mapping := make(map[rune]rune, len(from))
	dropped := make(map[rune]bool, len(from))
	for i, r := range from {
		if i < len(to) {
			mapping[r] = to[i]
		} else {
			dropped[r] = true
		}
	}
	var b strings.Builder
	for _, r := range src {
		if dropped[r] {
			continue
		}
		if m, ok := mapping[r]; ok {
			b.WriteRune(m)
			continue
		}
		b.WriteRune(r)
	}
	return value.String(b.String()), nil
}

func fnStringJoin(ctx *eval.Context, args []value.Value) (value.Value, error) {
	sep := argString(ctx, args[1])
	items := args[0].Items()
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = argString(ctx, item)
	}
	return value.String(strings.Join(parts, sep)), nil
}

func fnSubstringBefore(ctx *eval.Context, args []value.Value) (value.Value, error) {
	s, sep := argString(ctx, args[0]), argString(ctx, args[1])
	idx := strings.Index(s, sep)
	if idx < 0 {
		return value.String(""), nil
	}
	return value.String(s[:idx]), nil
}

func fnSubstringAfter(ctx *eval.Context, args []value.Value) (value.Value, error) {
	s, sep := argString(ctx, args[0]), argString(ctx, args[1])
	idx := strings.Index(s, sep)
	if idx < 0 {
		return value.String(""), nil
	}
	return value.String(s[idx+len(sep):]), nil
}
