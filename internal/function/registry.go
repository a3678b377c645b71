// Package function implements the built-in XPath 2.0 / XQuery 1.0 function
// library (spec §4.I). Each function is registered under its lexical QName
// and arity; Registry implements eval.Registry so the evaluator can resolve
// calls without importing this package, the same inversion the teacher uses
// for its own pluggable catalog tables.
package function

import (
	"github.com/parasol-framework/xquery/internal/eval"
)

type key struct {
	qname string
	arity int
}

// Registry is the process-wide, immutable built-in function catalog (spec
// §5 "Global built-in function registry: built once at startup; immutable
// afterwards").
type Registry struct {
	fns map[key]eval.FunctionImpl
}

func (r *Registry) Lookup(qname string, arity int) (eval.FunctionImpl, bool) {
	fn, ok := r.fns[key{qname, arity}]
	return fn, ok
}

func (r *Registry) register(qname string, arity int, fn eval.FunctionImpl) {
	r.fns[key{qname, arity}] = fn
}

var global = buildRegistry()

// Default returns the shared, immutable built-in registry.
func Default() *Registry { return global }

func buildRegistry() *Registry {
	r := &Registry{fns: make(map[key]eval.FunctionImpl)}
	registerStringFunctions(r)
	registerNumericFunctions(r)
	registerBooleanFunctions(r)
	registerSequenceFunctions(r)
	registerNodeFunctions(r)
	registerRegexFunctions(r)
	registerDateTimeFunctions(r)
	registerDocumentFunctions(r)
	registerQNameFunctions(r)
	registerURIFunctions(r)
	registerFormatFunctions(r)
	registerUtilityFunctions(r)
	return r
}
