// Package xquery is the public facade of the engine: a compiler and
// tree-walking interpreter for the XPath 2.0 / XQuery 1.0 grammar subset
// documented in internal/token and internal/parser, evaluated against a
// caller-supplied, read-only xmlmodel.Document. Everything under internal/
// is implementation detail reachable only from this package and its tests,
// mirroring the teacher's convention of a thin top-level facade over a
// `sql/...`-shaped implementation tree.
package xquery

import (
	"github.com/sirupsen/logrus"

	"github.com/parasol-framework/xquery/internal/ast"
	"github.com/parasol-framework/xquery/internal/axis"
	"github.com/parasol-framework/xquery/internal/eval"
	"github.com/parasol-framework/xquery/internal/function"
	"github.com/parasol-framework/xquery/internal/module"
	"github.com/parasol-framework/xquery/internal/parser"
	"github.com/parasol-framework/xquery/internal/value"
	"github.com/parasol-framework/xquery/internal/xqerr"
	"github.com/parasol-framework/xquery/xmlmodel"
)

// Status is the result code every compiling/evaluating operation returns,
// per spec §6 ("Returns Okay/Syntax/AllocMemory", "Returns Okay/Search/
// Terminate/Syntax").
type Status int

const (
	Okay Status = iota
	Syntax
	AllocMemory
	Search
	Terminate
)

func (s Status) String() string {
	switch s {
	case Okay:
		return "Okay"
	case Syntax:
		return "Syntax"
	case AllocMemory:
		return "AllocMemory"
	case Search:
		return "Search"
	case Terminate:
		return "Terminate"
	default:
		return "Unknown"
	}
}

// Value is the typed result item the engine produces; an alias over the
// internal tagged-union implementation so host code can inspect a Result
// (via its exported methods) without this package re-exporting the whole
// internal/value API surface.
type Value = value.Value

// FeatureFlags re-exports the evaluator's bitset so host code can branch on
// which optional language features a compiled query exercises without
// importing internal/eval directly.
type FeatureFlags = eval.FeatureFlags

const (
	UsesModules      = eval.UsesModules
	UsesConstructors = eval.UsesConstructors
	UsesRegex        = eval.UsesRegex
	UsesExternalDocs = eval.UsesExternalDocs
	UsesContentMatch = eval.UsesContentMatch
	UsesFLWOR        = eval.UsesFLWOR
)

// FunctionCallback is a host-supplied function implementation registered via
// XQuery.RegisterFunction. Built-in functions always take precedence over a
// callback of the same name and arity (spec §6 "register_function... core
// stores registration but the built-in library takes precedence on
// clashes").
type FunctionCallback func(args []Value) (Value, error)

// MatchCallback is invoked once per match by Search. Returning a non-nil
// error stops the search early with Status Terminate; for any error other
// than ErrTerminate, its message is also stored in ErrorMsg (spec §6
// "Callback contract").
type MatchCallback func(doc xmlmodel.Document, node xmlmodel.Node, attr xmlmodel.Attribute) error

// ErrTerminate is the sentinel a MatchCallback returns to request an early,
// non-error stop; Search reports it as Status Terminate rather than
// propagating it as ErrorMsg.
var ErrTerminate = xqerr.ErrSearchTerminated.New()

// Config configures a compiled query's resource limits and host adapters
// (SPEC_FULL §4 ambient-stack "Configuration"; mirrors engine.go's
// Config+New(a, cfg) pattern). A nil Config passed to New/NewQuery applies
// DefaultConfig().
type Config struct {
	// MaxRecursionDepth bounds nested expression/FLWOR/function-call
	// evaluation (spec §7 "recovered by returning an empty sequence...
	// never stack overflow", XPST0083).
	MaxRecursionDepth int
	// DefaultCollation is stored but not read by the engine: string
	// comparisons always use codepoint order, and fn:default-collation
	// reports the query's declared collation or the codepoint collation URI.
	DefaultCollation string
	// DocLoader backs fn:doc(); a nil loader makes fn:doc() fail with
	// FODC0002 rather than panicking.
	DocLoader xmlmodel.DocumentLoader
	// TextLoader backs fn:unparsed-text(); a nil loader makes it fail with
	// FODC0002.
	TextLoader xmlmodel.TextLoader
	// ModuleLoader resolves `import module` location hints to source text;
	// a nil loader makes any import fail with FODC0002.
	ModuleLoader xmlmodel.TextLoader
}

// DefaultConfig returns the Config applied when New/NewQuery receive nil.
func DefaultConfig() *Config {
	return &Config{MaxRecursionDepth: 1024, DefaultCollation: "http://www.w3.org/2005/xpath-functions/collation/codepoint"}
}

type funcKey struct {
	qname string
	arity int
}

// compositeRegistry layers host-registered callbacks under the immutable
// built-in library, giving built-ins precedence on a name/arity clash (spec
// §6 register_function contract).
type compositeRegistry struct {
	builtins *function.Registry
	custom   map[funcKey]eval.FunctionImpl
}

func (r *compositeRegistry) Lookup(qname string, arity int) (eval.FunctionImpl, bool) {
	if impl, ok := r.builtins.Lookup(qname, arity); ok {
		return impl, true
	}
	if r.custom == nil {
		return nil, false
	}
	impl, ok := r.custom[funcKey{qname, arity}]
	return impl, ok
}

// XQuery is the engine's controller object (spec §6 "XQuery fields" /
// "XQuery operations"): it owns one compiled query plus the last
// evaluation's result and diagnostic state.
type XQuery struct {
	// Statement is the query text. Setting it directly (rather than through
	// NewQuery) leaves the engine uncompiled until Init is called.
	Statement string
	// Path is the base URI used to resolve relative URIs in fn:doc(),
	// fn:unparsed-text(), and module location hints.
	Path string
	// ErrorMsg is the last parse/execute diagnostic, single-line.
	ErrorMsg string

	// Result is the last evaluation's value.
	Result Value
	// ResultString is Result's serialised form, cached alongside Result.
	ResultString string
	// ResultType is Result's type.
	ResultType value.Type

	cfg      *Config
	compiled *parser.Result
	flags    FeatureFlags
	modules  *module.Cache
	registry *compositeRegistry
	keys     map[string]string

	compiledOK bool
}

// New builds an uncompiled engine ready to receive a Statement and Init().
func New(cfg *Config) *XQuery {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &XQuery{
		cfg:      cfg,
		registry: &compositeRegistry{builtins: function.Default()},
		keys:     make(map[string]string),
	}
}

// NewQuery builds an engine for statement and compiles it immediately,
// matching spec §6 "init(): if Statement is set, compile eagerly".
func NewQuery(statement string, cfg *Config) *XQuery {
	q := New(cfg)
	q.Statement = statement
	q.Init()
	return q
}

// Init compiles Statement if set (spec §6 "init()"). It is safe to call
// again after changing Statement; the previous compiled form and Result are
// discarded first.
func (q *XQuery) Init() Status {
	q.Clear()
	if q.Statement == "" {
		return Okay
	}
	return q.compile()
}

func (q *XQuery) compile() Status {
	result := parser.Parse(q.Statement)
	if len(result.Diagnostics) > 0 {
		q.ErrorMsg = result.Diagnostics[0].Message
		return Syntax
	}
	if result.Prolog.BaseURI == "" {
		result.Prolog.BaseURI = q.Path
	}

	modules := module.NewCache(q.cfg.ModuleLoader)
	for _, imp := range result.Prolog.ModuleImports() {
		if _, err := modules.FetchOrLoad(imp.TargetNamespace, result.Prolog.BaseURI, imp.LocationHints); err != nil {
			q.ErrorMsg = err.Error()
			return Syntax
		}
	}

	q.compiled = result
	q.modules = modules
	q.flags = computeFeatureFlags(result)
	q.compiledOK = true
	logrus.WithField("feature_flags", q.flags).Debug("xquery: compiled statement")
	return Okay
}

// Activate runs the compiled query with no XML document context (spec §6
// "activate(): run the compiled query with no XML context").
func (q *XQuery) Activate() Status {
	return q.evaluate(nil)
}

// Evaluate runs the compiled query against doc, storing the outcome in
// Result/ResultString/ResultType (spec §6 "evaluate(xml_doc)").
func (q *XQuery) Evaluate(doc xmlmodel.Document) Status {
	return q.evaluate(doc)
}

func (q *XQuery) evaluate(doc xmlmodel.Document) Status {
	if !q.compiledOK {
		if st := q.compile(); st != Okay {
			return st
		}
	}
	ctx := q.rootContext(doc)
	v, err := eval.Eval(ctx, q.compiled.Expr)
	if err != nil {
		q.ErrorMsg = err.Error()
		logrus.WithField("error", err).Warn("xquery: evaluation failed")
		return Syntax
	}
	q.Result = v
	q.ResultType = v.Type()
	q.ResultString = eval.Serialize(ctx, v)
	return Okay
}

func (q *XQuery) rootContext(doc xmlmodel.Document) *eval.Context {
	ctx := eval.NewRootContext(doc, q.compiled.Prolog, q.registry, q.modules, q.flags)
	ctx.DocLoader = q.cfg.DocLoader
	ctx.TextLoader = q.cfg.TextLoader
	if q.cfg.MaxRecursionDepth > 0 {
		ctx = ctx.WithMaxDepth(q.cfg.MaxRecursionDepth)
	}
	for k, v := range q.keys {
		ctx = ctx.WithVariable(k, value.String(v))
	}
	return ctx
}

// Search runs the compiled query against doc and invokes callback once per
// matched node or attribute (spec §6 "search(xml_doc, callback?)"). A nil
// callback stops at the first match, per spec, leaving that match in
// Result.
func (q *XQuery) Search(doc xmlmodel.Document, callback MatchCallback) Status {
	if !q.compiledOK {
		if st := q.compile(); st != Okay {
			return st
		}
	}
	ctx := q.rootContext(doc)
	v, err := eval.Eval(ctx, q.compiled.Expr)
	if err != nil {
		q.ErrorMsg = err.Error()
		return Syntax
	}
	q.Result = v
	q.ResultType = v.Type()
	q.ResultString = eval.Serialize(ctx, v)

	nodes := v.Nodes()
	if len(nodes) == 0 {
		return Search
	}
	for _, ref := range nodes {
		n := ctx.ResolveNode(ref)
		if n == nil {
			continue
		}
		node, attr := n, xmlmodel.Attribute(nil)
		if a, ok := axis.Attr(n); ok {
			attr = a
			node = n.Parent()
		}
		if callback == nil {
			q.Result = value.NodeSet([]value.NodeRef{ref})
			q.ResultType = q.Result.Type()
			q.ResultString = eval.Serialize(ctx, q.Result)
			return Okay
		}
		if err := callback(doc, node, attr); err != nil {
			if xqerr.ErrSearchTerminated.Is(err) {
				return Terminate
			}
			q.ErrorMsg = err.Error()
			return Terminate
		}
	}
	return Okay
}

// Clear drops the compiled form and last result, keeping Statement/Path
// (spec §6 "clear()/reset(): drop compiled form and results; keep
// Statement/Path").
func (q *XQuery) Clear() {
	q.compiled = nil
	q.compiledOK = false
	q.modules = nil
	q.flags = 0
	q.Result = value.Empty()
	q.ResultString = ""
	q.ResultType = value.TypeEmpty
	q.ErrorMsg = ""
}

// Reset is Clear's spec name; both are exposed since spec §6 lists them as
// synonyms ("clear() / reset()").
func (q *XQuery) Reset() { q.Clear() }

// SetKey binds a host-settable string variable visible as $k in the query
// (spec §6 "set_key(k, v?)"). Calling it again with the same key rebinds it;
// the rebinding only takes effect on the next compile/evaluate since
// variables are bound into the root context at evaluation time.
func (q *XQuery) SetKey(key, v string) {
	q.keys[key] = v
}

// UnsetKey removes a previously set host variable (spec §6's optional `v`
// form of set_key, used to unset).
func (q *XQuery) UnsetKey(key string) {
	delete(q.keys, key)
}

// GetKey returns a previously set host variable (spec §6 "get_key(k)").
func (q *XQuery) GetKey(key string) (string, bool) {
	v, ok := q.keys[key]
	return v, ok
}

// RegisterFunction registers a host callback for qname/arity (spec §6
// "register_function(name, callback)"). A built-in of the same name and
// arity always wins; RegisterFunction does not error on that clash, it is
// simply never consulted for it.
func (q *XQuery) RegisterFunction(qname string, arity int, fn FunctionCallback) {
	if q.registry.custom == nil {
		q.registry.custom = make(map[funcKey]eval.FunctionImpl)
	}
	q.registry.custom[funcKey{qname, arity}] = func(ctx *eval.Context, args []value.Value) (value.Value, error) {
		return fn(args)
	}
}

// FeatureFlags reports which optional language features the compiled query
// exercises (spec §6 "FeatureFlags (R flags): features detected in the
// compiled query, for host policy checks").
func (q *XQuery) FeatureFlags() FeatureFlags { return q.flags }

// Functions lists user-declared function names from the query's own prolog
// plus every imported module's exports, lexical form (spec §6 "Functions").
func (q *XQuery) Functions() []string {
	if !q.compiledOK {
		return nil
	}
	var out []string
	for _, f := range q.compiled.Prolog.Functions() {
		out = append(out, f.QName)
	}
	if q.modules != nil {
		out = append(out, q.modules.ExportedFunctionNames()...)
	}
	return out
}

// Variables lists host-set keys plus the variable names declared in the
// query's own prolog (spec §6 "Variables"). Variables declared in imported
// library modules are not listed.
func (q *XQuery) Variables() []string {
	var out []string
	for k := range q.keys {
		out = append(out, k)
	}
	if q.compiledOK {
		for _, v := range q.compiled.Prolog.Variables() {
			out = append(out, v.QName)
		}
	}
	return out
}

// computeFeatureFlags walks the compiled AST and prolog once after a
// successful parse, setting the bits a host might use for policy checks
// (SPEC_FULL §9 FeatureFlags resolution).
func computeFeatureFlags(result *parser.Result) FeatureFlags {
	var flags FeatureFlags
	if len(result.Prolog.ModuleImports()) > 0 {
		flags |= eval.UsesModules
	}
	walkFlags(result.Expr, &flags)
	return flags
}

func walkFlags(n *ast.Node, flags *FeatureFlags) {
	if n == nil {
		return
	}
	switch n.Kind {
	case ast.Unknown:
		if n.Value == "content-match-predicate" {
			*flags |= eval.UsesContentMatch
		}
	case ast.FLWOR:
		*flags |= eval.UsesFLWOR
	case ast.DirectElementConstructor, ast.DirectAttributeConstructor,
		ast.ComputedElementConstructor, ast.ComputedAttributeConstructor,
		ast.ComputedTextConstructor, ast.ComputedCommentConstructor,
		ast.ComputedPIConstructor, ast.ComputedDocumentConstructor:
		*flags |= eval.UsesConstructors
	case ast.FunctionCall:
		switch n.Value {
		case "fn:matches", "fn:replace", "fn:tokenize", "fn:analyze-string",
			"matches", "replace", "tokenize", "analyze-string":
			*flags |= eval.UsesRegex
		case "fn:doc", "fn:unparsed-text", "doc", "unparsed-text":
			*flags |= eval.UsesExternalDocs
		}
	}
	for _, c := range n.Children {
		walkFlags(c, flags)
	}
}
