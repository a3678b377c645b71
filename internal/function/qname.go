package function

import (
	"strings"

	"github.com/parasol-framework/xquery/internal/eval"
	"github.com/parasol-framework/xquery/internal/value"
)

func registerQNameFunctions(r *Registry) {
	r.register("fn:QName", 2, fnQName)
	r.register("fn:local-name-from-QName", 1, fnLocalNameFromQName)
	r.register("fn:namespace-uri-from-QName", 1, fnNamespaceURIFromQName)
	r.register("fn:prefix-from-QName", 1, fnPrefixFromQName)
}

func fnQName(ctx *eval.Context, args []value.Value) (value.Value, error) {
	uri := argString(ctx, args[0])
	lexical := argString(ctx, args[1])
	if uri == "" {
		return value.String(lexical), nil
	}
	_, local, hasPrefix := splitQNameArg(lexical)
	if hasPrefix {
		return value.String(lexical), nil
	}
	return value.String("Q{" + uri + "}" + local), nil
}

func splitQNameArg(s string) (prefix, local string, hasPrefix bool) {
	if idx := strings.IndexByte(s, ':'); idx >= 0 {
		return s[:idx], s[idx+1:], true
	}
	return "", s, false
}

func fnLocalNameFromQName(ctx *eval.Context, args []value.Value) (value.Value, error) {
	s := argString(ctx, args[0])
	if s == "" {
		return value.Empty(), nil
	}
	if idx := strings.LastIndexByte(s, '}'); idx >= 0 {
		return value.String(s[idx+1:]), nil
	}
	_, local, _ := splitQNameArg(s)
	return value.String(local), nil
}

func fnNamespaceURIFromQName(ctx *eval.Context, args []value.Value) (value.Value, error) {
	s := argString(ctx, args[0])
	if strings.HasPrefix(s, "Q{") {
		if idx := strings.IndexByte(s, '}'); idx >= 0 {
			return value.String(s[2:idx]), nil
		}
	}
	return value.String(""), nil
}

func fnPrefixFromQName(ctx *eval.Context, args []value.Value) (value.Value, error) {
	s := argString(ctx, args[0])
	prefix, _, hasPrefix := splitQNameArg(s)
	if !hasPrefix {
		return value.Empty(), nil
	}
	return value.String(prefix), nil
}
