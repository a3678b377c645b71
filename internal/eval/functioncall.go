package eval

import (
	"github.com/parasol-framework/xquery/internal/ast"
	"github.com/parasol-framework/xquery/internal/prolog"
	"github.com/parasol-framework/xquery/internal/value"
	"github.com/parasol-framework/xquery/internal/xqerr"
)

// evalFunctionCall resolves a call in spec §4.H's fixed order: a prolog's
// own function declarations first, then an imported library module, then
// the built-in library, then a one-argument xs: type constructor (a cast
// to that type), keeping user code free to shadow a built-in name
// the way the teacher's own name resolution prefers the most local scope.
func evalFunctionCall(ctx *Context, n *ast.Node) (value.Value, error) {
	args := make([]value.Value, len(n.Children))
	for i, c := range n.Children {
		v, err := Eval(ctx, c)
		if err != nil {
			return value.Value{}, err
		}
		args[i] = v
	}

	qname := n.Value
	arity := len(args)

	if ctx.Prolog != nil {
		if fn, ok := ctx.Prolog.FindFunction(qname, arity); ok {
			return callUserFunction(ctx, fn, args)
		}
	}

	if ctx.Modules != nil {
		if prefix, local, ok := splitQNameLocal(qname); ok {
			if uri, ok := ctx.Prolog.LookupNamespace(prefix); ok {
				if impl, ok := ctx.Modules.Resolve(uri, local, arity); ok {
					return impl(ctx, args)
				}
			}
		}
	}

	if ctx.Builtins != nil {
		if impl, ok := ctx.Builtins.Lookup(qname, arity); ok {
			return impl(ctx, args)
		}
		// Most call sites write builtins unprefixed (`string()`, `count()`),
		// relying on fn: being the default function namespace; the registry
		// keys everything by its fn:-qualified lexical form, so retry there
		// before giving up.
		if _, _, hasPrefix := splitQNameLocal(qname); !hasPrefix {
			if impl, ok := ctx.Builtins.Lookup("fn:"+qname, arity); ok {
				return impl(ctx, args)
			}
		}
	}

	if prefix, _, ok := splitQNameLocal(qname); ok && prefix == "xs" && arity == 1 {
		return castTo(args[0], qname, ctx)
	}

	return value.Value{}, xqerr.ErrUnresolvedFunction.New(qname, arity)
}

func splitQNameLocal(qname string) (prefix, local string, hasPrefix bool) {
	for i := 0; i < len(qname); i++ {
		if qname[i] == ':' {
			return qname[:i], qname[i+1:], true
		}
	}
	return "", qname, false
}

// callUserFunction binds parameters as a fresh variable scope layered on
// the function's own lexical context (its prolog, not the caller's local
// bindings), matching spec §4.H's "functions are not closures over call-site
// bindings" rule.
func callUserFunction(ctx *Context, fn *prolog.Function, args []value.Value) (value.Value, error) {
	if len(fn.ParameterNames) != len(args) {
		return value.Value{}, xqerr.ErrArityMismatch.New(fn.QName, len(fn.ParameterNames), len(args))
	}
	child, ok := ctx.EnterRecursion()
	if !ok {
		return value.Value{}, xqerr.ErrRecursionLimit.New(child.maxDepth, fn.QName)
	}
	callCtx := &Context{
		Document:   ctx.Document,
		Axis:       ctx.Axis,
		Prolog:     ctx.Prolog,
		Builtins:   ctx.Builtins,
		Modules:    ctx.Modules,
		Flags:      ctx.Flags,
		DocLoader:  ctx.DocLoader,
		TextLoader: ctx.TextLoader,
		docs:       ctx.docs,
		docCache:   ctx.docCache,
		textCache:  ctx.textCache,
		depth:      child.depth,
		maxDepth:   ctx.maxDepth,
	}
	for i, name := range fn.ParameterNames {
		callCtx = callCtx.WithVariable(name, args[i])
	}
	return Eval(callCtx, fn.Body)
}
