package function

import (
	"strconv"
	"strings"

	"github.com/parasol-framework/xquery/internal/eval"
	"github.com/parasol-framework/xquery/internal/value"
)

func registerFormatFunctions(r *Registry) {
	r.register("fn:format-number", 2, fnFormatNumber)
	r.register("fn:format-integer", 2, fnFormatInteger)
}

// fnFormatNumber implements a grounded subset of the picture-string
// vocabulary (spec §4.I decimal-format obligations): grouping separator
// every three digits and a fixed fractional-digit count taken from the
// picture's own decimal part, using the prolog's default decimal format.
func fnFormatNumber(ctx *eval.Context, args []value.Value) (value.Value, error) {
	n := args[0].AsNumber(ctx.StringValueOf, ctx.NumberOrderOf)
	picture := argString(ctx, args[1])
	format := ctx.Prolog.DecimalFormats[""]

	intPart, fracDigits := parsePicture(picture)
	scaled := strconv.FormatFloat(n, 'f', fracDigits, 64)
	neg := strings.HasPrefix(scaled, "-")
	scaled = strings.TrimPrefix(scaled, "-")

	whole, frac, _ := strings.Cut(scaled, ".")
	if intPart {
		whole = groupDigits(whole, format.GroupingSeparator)
	}
	out := whole
	if fracDigits > 0 {
		out += format.DecimalSeparator + frac
	}
	if neg {
		out = format.MinusSign + out
	}
	return value.String(out), nil
}

func parsePicture(picture string) (grouped bool, fracDigits int) {
	grouped = strings.Contains(picture, ",")
	if idx := strings.IndexByte(picture, '.'); idx >= 0 {
		fracDigits = len(picture) - idx - 1
	}
	return grouped, fracDigits
}

func groupDigits(digits, sep string) string {
	if len(digits) <= 3 {
		return digits
	}
	var parts []string
	for len(digits) > 3 {
		parts = append([]string{digits[len(digits)-3:]}, parts...)
		digits = digits[:len(digits)-3]
	}
	parts = append([]string{digits}, parts...)
	return strings.Join(parts, sep)
}

func fnFormatInteger(ctx *eval.Context, args []value.Value) (value.Value, error) {
	n := int64(args[0].AsNumber(ctx.StringValueOf, ctx.NumberOrderOf))
	picture := argString(ctx, args[1])
	switch picture {
	case "roman", "Roman", "I":
		return value.String(toRoman(n)), nil
	default:
		return value.String(strconv.FormatInt(n, 10)), nil
	}
}

func toRoman(n int64) string {
	if n <= 0 {
		return strconv.FormatInt(n, 10)
	}
	values := []int64{1000, 900, 500, 400, 100, 90, 50, 40, 10, 9, 5, 4, 1}
	symbols := []string{"M", "CM", "D", "CD", "C", "XC", "L", "XL", "X", "IX", "V", "IV", "I"}
	var b strings.Builder
	for i, v := range values {
		for n >= v {
			b.WriteString(symbols[i])
			n -= v
		}
	}
	return b.String()
}
