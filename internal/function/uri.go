package function

import (
	"net/url"
	"strings"

	"github.com/parasol-framework/xquery/internal/eval"
	"github.com/parasol-framework/xquery/internal/value"
)

func registerURIFunctions(r *Registry) {
	r.register("fn:resolve-uri", 1, fnResolveURI)
	r.register("fn:resolve-uri", 2, fnResolveURI)
	r.register("fn:base-uri", 0, fnBaseURIContext)
	r.register("fn:base-uri", 1, fnBaseURI)
	r.register("fn:encode-for-uri", 1, fnEncodeForURI)
	r.register("fn:static-base-uri", 0, fnStaticBaseURI)
}

func fnResolveURI(ctx *eval.Context, args []value.Value) (value.Value, error) {
	relative := argString(ctx, args[0])
	base := ctx.Prolog.BaseURI
	if len(args) == 2 {
		base = argString(ctx, args[1])
	}
	baseURL, err := url.Parse(base)
	if err != nil || base == "" {
		return value.String(relative), nil
	}
	relURL, err := url.Parse(relative)
	if err != nil {
		return value.String(relative), nil
	}
	return value.String(baseURL.ResolveReference(relURL).String()), nil
}

func fnBaseURI(ctx *eval.Context, args []value.Value) (value.Value, error) {
	n := soleNode(ctx, args[0])
	if n == nil {
		return value.Empty(), nil
	}
	return value.String(ctx.Document.BaseURI()), nil
}

func fnBaseURIContext(ctx *eval.Context, args []value.Value) (value.Value, error) {
	if ctx.Document == nil {
		return value.Empty(), nil
	}
	return value.String(ctx.Document.BaseURI()), nil
}

func fnEncodeForURI(ctx *eval.Context, args []value.Value) (value.Value, error) {
	s := argString(ctx, args[0])
	return value.String(strings.ReplaceAll(url.QueryEscape(s), "+", "%20")), nil
}

func fnStaticBaseURI(ctx *eval.Context, args []value.Value) (value.Value, error) {
	if ctx.Prolog == nil {
		return value.Empty(), nil
	}
	return value.String(ctx.Prolog.BaseURI), nil
}
