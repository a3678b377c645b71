package function

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/parasol-framework/xquery/internal/eval"
	"github.com/parasol-framework/xquery/internal/value"
	"github.com/parasol-framework/xquery/internal/xqerr"
)

func registerUtilityFunctions(r *Registry) {
	r.register("fn:position", 0, fnPosition)
	r.register("fn:last", 0, fnLast)
	r.register("fn:error", 0, fnError0)
	r.register("fn:error", 1, fnError1)
	r.register("fn:trace", 2, fnTrace)
	r.register("fn:default-collation", 0, fnDefaultCollation)
}

func fnPosition(ctx *eval.Context, args []value.Value) (value.Value, error) {
	return value.Integer(ctx.Position), nil
}

func fnLast(ctx *eval.Context, args []value.Value) (value.Value, error) {
	return value.Integer(ctx.Size), nil
}

func fnError0(ctx *eval.Context, args []value.Value) (value.Value, error) {
	return value.Value{}, xqerr.ErrTypeMismatch.New("fn:error() raised by query")
}

func fnError1(ctx *eval.Context, args []value.Value) (value.Value, error) {
	return value.Value{}, xqerr.ErrTypeMismatch.New(argString(ctx, args[0]))
}

// fnTrace logs the value through the same structured logger the rest of
// the engine uses, then passes it through unchanged (spec §4.I tracing
// obligation: a debugging aid, never altering the query's result).
func fnTrace(ctx *eval.Context, args []value.Value) (value.Value, error) {
	label := argString(ctx, args[1])
	logrus.WithField("trace", label).Debug(fmt.Sprintf("%v", argString(ctx, args[0])))
	return args[0], nil
}

func fnDefaultCollation(ctx *eval.Context, args []value.Value) (value.Value, error) {
	if ctx.Prolog != nil && ctx.Prolog.Collation != "" {
		return value.String(ctx.Prolog.Collation), nil
	}
	return value.String("http://www.w3.org/2005/xpath-functions/collation/codepoint"), nil
}
