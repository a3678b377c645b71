package function

import (
	"strings"

	"github.com/parasol-framework/xquery/internal/eval"
	"github.com/parasol-framework/xquery/internal/value"
)

func registerDocumentFunctions(r *Registry) {
	r.register("fn:doc", 1, fnDoc)
	r.register("fn:doc-available", 1, fnDocAvailable)
	r.register("fn:unparsed-text", 1, fnUnparsedText)
	r.register("fn:unparsed-text", 2, fnUnparsedText)
	r.register("fn:unparsed-text-lines", 1, fnUnparsedTextLines)
	r.register("fn:unparsed-text-lines", 2, fnUnparsedTextLines)
}

func fnDoc(ctx *eval.Context, args []value.Value) (value.Value, error) {
	uri := argString(ctx, args[0])
	doc, err := ctx.LoadDocument(uri)
	if err != nil {
		return value.Value{}, err
	}
	return value.NodeSet([]value.NodeRef{ctx.DocumentRoot(doc)}), nil
}

func fnDocAvailable(ctx *eval.Context, args []value.Value) (value.Value, error) {
	uri := argString(ctx, args[0])
	_, err := ctx.LoadDocument(uri)
	return value.Boolean(err == nil), nil
}

func fnUnparsedText(ctx *eval.Context, args []value.Value) (value.Value, error) {
	uri := argString(ctx, args[0])
	text, err := ctx.LoadText(uri)
	if err != nil {
		return value.Value{}, err
	}
	return value.String(text), nil
}

func fnUnparsedTextLines(ctx *eval.Context, args []value.Value) (value.Value, error) {
	uri := argString(ctx, args[0])
	text, err := ctx.LoadText(uri)
	if err != nil {
		return value.Value{}, err
	}
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	out := make([]value.Value, len(lines))
	for i, l := range lines {
		out[i] = value.String(strings.TrimSuffix(l, "\r"))
	}
	return value.Sequence(out), nil
}
