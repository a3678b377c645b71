package function

import (
	"github.com/parasol-framework/xquery/internal/eval"
	"github.com/parasol-framework/xquery/internal/value"
	"github.com/parasol-framework/xquery/xmlmodel"
)

func registerNodeFunctions(r *Registry) {
	r.register("fn:name", 0, fnNameContext)
	r.register("fn:name", 1, fnName)
	r.register("fn:local-name", 0, fnLocalNameContext)
	r.register("fn:local-name", 1, fnLocalName)
	r.register("fn:namespace-uri", 0, fnNamespaceURIContext)
	r.register("fn:namespace-uri", 1, fnNamespaceURI)
	r.register("fn:root", 0, fnRootContext)
	r.register("fn:root", 1, fnRoot)
	r.register("fn:data", 1, fnData)
}

func soleNode(ctx *eval.Context, v value.Value) xmlmodel.Node {
	nodes := v.Nodes()
	if len(nodes) == 0 {
		return nil
	}
	return ctx.ResolveNode(nodes[0])
}

func fnName(ctx *eval.Context, args []value.Value) (value.Value, error) {
	return value.String(qualifiedName(soleNode(ctx, args[0]))), nil
}

func fnNameContext(ctx *eval.Context, args []value.Value) (value.Value, error) {
	return value.String(qualifiedName(soleNode(ctx, ctx.ContextItem))), nil
}

func qualifiedName(n xmlmodel.Node) string {
	if n == nil {
		return ""
	}
	if n.Prefix() == "" {
		return n.LocalName()
	}
	return n.Prefix() + ":" + n.LocalName()
}

func fnLocalName(ctx *eval.Context, args []value.Value) (value.Value, error) {
	n := soleNode(ctx, args[0])
	if n == nil {
		return value.String(""), nil
	}
	return value.String(n.LocalName()), nil
}

func fnLocalNameContext(ctx *eval.Context, args []value.Value) (value.Value, error) {
	n := soleNode(ctx, ctx.ContextItem)
	if n == nil {
		return value.String(""), nil
	}
	return value.String(n.LocalName()), nil
}

func fnNamespaceURI(ctx *eval.Context, args []value.Value) (value.Value, error) {
	n := soleNode(ctx, args[0])
	if n == nil {
		return value.String(""), nil
	}
	return value.String(n.NamespaceURI()), nil
}

func fnNamespaceURIContext(ctx *eval.Context, args []value.Value) (value.Value, error) {
	n := soleNode(ctx, ctx.ContextItem)
	if n == nil {
		return value.String(""), nil
	}
	return value.String(n.NamespaceURI()), nil
}

func fnRoot(ctx *eval.Context, args []value.Value) (value.Value, error) {
	return rootOf(ctx, args[0]), nil
}

func fnRootContext(ctx *eval.Context, args []value.Value) (value.Value, error) {
	return rootOf(ctx, ctx.ContextItem), nil
}

// rootOf walks to the top-most ancestor and converts it back to a NodeRef
// via the context's own axis evaluator. This assumes the node belongs to
// the evaluation's primary bound document, which holds for every call site
// reachable from ordinary path navigation; a node from a separately
// registered document (a fn:doc() result) would need its own evaluator,
// not exposed on xmlmodel.Node itself.
func rootOf(ctx *eval.Context, v value.Value) value.Value {
	n := soleNode(ctx, v)
	if n == nil {
		return value.Empty()
	}
	cur := n
	for cur.Parent() != nil {
		cur = cur.Parent()
	}
	if ctx.Axis == nil {
		return value.Empty()
	}
	return value.NodeSet([]value.NodeRef{ctx.Axis.ToRef(cur)})
}

func fnData(ctx *eval.Context, args []value.Value) (value.Value, error) {
	items := args[0].Items()
	out := make([]value.Value, len(items))
	for i, item := range items {
		if item.Type() == value.TypeNodeSet {
			out[i] = value.String(item.AsString(ctx.StringValueOf))
			continue
		}
		out[i] = item
	}
	return value.Sequence(out), nil
}
