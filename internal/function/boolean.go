package function

import (
	"github.com/parasol-framework/xquery/internal/eval"
	"github.com/parasol-framework/xquery/internal/value"
)

func registerBooleanFunctions(r *Registry) {
	r.register("fn:not", 1, fnNot)
	r.register("fn:true", 0, fnTrue)
	r.register("fn:false", 0, fnFalse)
	r.register("fn:boolean", 1, fnBoolean)
}

func fnNot(ctx *eval.Context, args []value.Value) (value.Value, error) {
	return value.Boolean(!args[0].AsBoolean()), nil
}

func fnTrue(ctx *eval.Context, args []value.Value) (value.Value, error) {
	return value.Boolean(true), nil
}

func fnFalse(ctx *eval.Context, args []value.Value) (value.Value, error) {
	return value.Boolean(false), nil
}

func fnBoolean(ctx *eval.Context, args []value.Value) (value.Value, error) {
	return value.Boolean(args[0].AsBoolean()), nil
}
