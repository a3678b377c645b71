package function

import (
	"strings"

	"github.com/parasol-framework/xquery/internal/eval"
	"github.com/parasol-framework/xquery/internal/value"
	"github.com/parasol-framework/xquery/internal/xqerr"
	"github.com/parasol-framework/xquery/regexengine"
)

func registerRegexFunctions(r *Registry) {
	r.register("fn:matches", 2, fnMatches)
	r.register("fn:matches", 3, fnMatches)
	r.register("fn:replace", 3, fnReplace)
	r.register("fn:replace", 4, fnReplace)
	r.register("fn:tokenize", 2, fnTokenize)
	r.register("fn:tokenize", 3, fnTokenize)
}

func regexFlags(args []value.Value, flagsIdx int, ctx *eval.Context) string {
	if len(args) > flagsIdx {
		return argString(ctx, args[flagsIdx])
	}
	return ""
}

func fnMatches(ctx *eval.Context, args []value.Value) (value.Value, error) {
	text := argString(ctx, args[0])
	pattern := argString(ctx, args[1])
	flags := regexFlags(args, 2, ctx)
	ok, err := regexengine.Default().Match(pattern, flags, text)
	if err != nil {
		return value.Value{}, wrapRegexErr(err)
	}
	return value.Boolean(ok), nil
}

func fnReplace(ctx *eval.Context, args []value.Value) (value.Value, error) {
	text := argString(ctx, args[0])
	pattern := argString(ctx, args[1])
	replacement := argString(ctx, args[2])
	flags := regexFlags(args, 3, ctx)
	out, err := regexengine.Default().Replace(pattern, flags, text, replacement)
	if err != nil {
		return value.Value{}, wrapRegexErr(err)
	}
	return value.String(out), nil
}

func fnTokenize(ctx *eval.Context, args []value.Value) (value.Value, error) {
	text := argString(ctx, args[0])
	pattern := argString(ctx, args[1])
	flags := regexFlags(args, 2, ctx)
	if text == "" {
		return value.Empty(), nil
	}
	parts, err := regexengine.Default().Split(pattern, flags, text)
	if err != nil {
		return value.Value{}, wrapRegexErr(err)
	}
	out := make([]value.Value, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" && p == "" {
			continue
		}
		out = append(out, value.String(p))
	}
	return value.Sequence(out), nil
}

func wrapRegexErr(err error) error {
	return xqerr.ErrRegexEngine.Wrap(err)
}
