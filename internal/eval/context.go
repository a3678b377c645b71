// Package eval implements the tree-walking evaluator of spec §4.H: it
// dispatches on ast.Kind, threads an evaluation Context carrying the
// context item/position/size and variable bindings, and resolves function
// calls through user-defined, imported-module, then built-in lookup.
package eval

import (
	"github.com/parasol-framework/xquery/internal/ast"
	"github.com/parasol-framework/xquery/internal/axis"
	"github.com/parasol-framework/xquery/internal/prolog"
	"github.com/parasol-framework/xquery/internal/value"
	"github.com/parasol-framework/xquery/internal/xqerr"
	"github.com/parasol-framework/xquery/xmlmodel"
)

func xqerrDocumentFetch(uri string) error { return xqerr.ErrDocumentFetch.New(uri) }
func xqerrTextFetch(uri string) error     { return xqerr.ErrTextFetch.New(uri) }

// FeatureFlags records which optional language features a compiled query
// actually uses (SPEC_FULL §4 resolution of the FeatureFlags open
// question). Context carries it, but the evaluator does not branch on it.
type FeatureFlags uint

const (
	UsesModules FeatureFlags = 1 << iota
	UsesConstructors
	UsesRegex
	UsesExternalDocs
	UsesContentMatch
	UsesFLWOR
)

// FunctionImpl is a built-in or user-defined callable. args are already
// evaluated to Value; ctx provides document/prolog access for functions
// that need it (fn:doc, fn:id).
type FunctionImpl func(ctx *Context, args []value.Value) (value.Value, error)

// Registry resolves QName+arity to a callable, checked in the order spec
// §4.H specifies: user-defined prolog function, then imported module
// function, then built-in, then type constructor.
type Registry interface {
	Lookup(qname string, arity int) (FunctionImpl, bool)
}

// binding is one variable's bound value in the current lexical scope.
type binding struct {
	name  string
	value value.Value
}

// docRegistry tracks every document in play during one evaluation: the
// query's bound input document plus any documents materialised on the fly
// by computed/direct constructors (spec §4.H "constructed nodes get a
// synthetic document identity"). Shared by pointer across every Context
// derived via WithFocus/WithVariable so a NodeRef minted anywhere in the
// evaluation remains resolvable everywhere.
type docRegistry struct {
	byDocID map[int64]*axis.Evaluator
	nextID  int64
}

func newDocRegistry(startID int64) *docRegistry {
	return &docRegistry{byDocID: make(map[int64]*axis.Evaluator), nextID: startID}
}

func (r *docRegistry) register(doc xmlmodel.Document) *axis.Evaluator {
	ev := axis.NewEvaluator(doc)
	r.byDocID[doc.ID()] = ev
	return ev
}

func (r *docRegistry) allocDocID() int64 {
	r.nextID++
	return r.nextID
}

// Context is the per-evaluation-step environment threaded through every
// Eval call (spec §4.H "Context: context node/attribute/position/size/
// variable bindings/doc/prolog/module-cache/flags").
type Context struct {
	Document xmlmodel.Document
	Axis     *axis.Evaluator

	ContextItem value.Value
	Position    int64
	Size        int64

	Prolog   *prolog.Prolog
	Builtins Registry
	Modules  ModuleResolver

	Flags FeatureFlags

	DocLoader  xmlmodel.DocumentLoader
	TextLoader xmlmodel.TextLoader

	bindings  []binding
	docs      *docRegistry
	docCache  map[string]xmlmodel.Document
	textCache map[string]string

	depth    int
	maxDepth int
}

// ModuleResolver fetches and evaluates library-module functions, bridging
// to internal/module without eval importing it directly (avoids an import
// cycle since module.Cache itself needs to invoke the evaluator).
type ModuleResolver interface {
	Resolve(namespaceURI, localName string, arity int) (FunctionImpl, bool)
}

// NewRootContext builds the context a top-level query evaluates in: no
// context item bound yet (referencing "." outside any focus raises
// xqerr.ErrUnresolvedVariable, XPST0008), depth counters reset.
func NewRootContext(doc xmlmodel.Document, pl *prolog.Prolog, builtins Registry, modules ModuleResolver, flags FeatureFlags) *Context {
	registry := newDocRegistry(1)
	var axisEval *axis.Evaluator
	if doc != nil {
		axisEval = registry.register(doc)
	}
	return &Context{
		Document:  doc,
		Axis:      axisEval,
		Prolog:    pl,
		Builtins:  builtins,
		Modules:   modules,
		Flags:     flags,
		docs:      registry,
		docCache:  make(map[string]xmlmodel.Document),
		textCache: make(map[string]string),
		maxDepth:  1024,
	}
}

// WithFocus returns a derived context with a new context item/position/size
// triple, per spec §4.H "each step establishes its own focus for its
// right-hand operand". Variable bindings and recursion depth carry over.
func (c *Context) WithFocus(item value.Value, position, size int64) *Context {
	child := *c
	child.ContextItem = item
	child.Position = position
	child.Size = size
	return &child
}

// WithMaxDepth returns a derived context with a different recursion-depth
// limit, applied by the root controller from Config.MaxRecursionDepth
// before the first Eval call.
func (c *Context) WithMaxDepth(n int) *Context {
	child := *c
	child.maxDepth = n
	return &child
}

// WithProlog returns a derived context bound to a different prolog (a
// library module's own declarations), used when a cross-module function
// call needs to evaluate a function body in its defining module's lexical
// scope rather than the caller's (spec §4.J module cache).
func (c *Context) WithProlog(p *prolog.Prolog) *Context {
	child := *c
	child.Prolog = p
	child.bindings = nil
	return &child
}

// WithVariable returns a derived context with name bound to v, shadowing
// any outer binding of the same name (spec §4.H "lexical scoping, inner
// bindings shadow outer").
func (c *Context) WithVariable(name string, v value.Value) *Context {
	child := *c
	child.bindings = append(append([]binding{}, c.bindings...), binding{name: name, value: v})
	return &child
}

// LookupVariable searches local bindings innermost-first. It does not
// consult prolog-declared variables; evalVarRef falls back to those.
func (c *Context) LookupVariable(name string) (value.Value, bool) {
	for i := len(c.bindings) - 1; i >= 0; i-- {
		if c.bindings[i].name == name {
			return c.bindings[i].value, true
		}
	}
	return value.Empty(), false
}

// EnterRecursion guards every nested ExprSingle evaluation against runaway
// recursion (user-defined function cycles, deeply nested FLWOR), returning
// a new Context one level deeper, or ok=false at the limit (spec §4.H,
// error code XPST0083).
func (c *Context) EnterRecursion() (ctx *Context, ok bool) {
	if c.depth+1 > c.maxDepth {
		return c, false
	}
	child := *c
	child.depth = c.depth + 1
	return &child, true
}

// StringValueOf adapts a value.NodeRef back to its typed string-value by
// resolving it against the bound document, used by value.Value's
// AsString/AsNumber/AsBoolean promotions (spec §4.F).
func (c *Context) StringValueOf(ref value.NodeRef) string {
	if c.Document == nil {
		return ""
	}
	n := c.findNode(ref)
	if n == nil {
		return ""
	}
	return n.TextContent()
}

// findNode resolves a NodeRef back to a live xmlmodel.Node, looking past
// this Context's own bound document into the shared registry for nodes
// that came from a constructed document (fn:doc() result or a computed
// constructor's output).
func (c *Context) findNode(ref value.NodeRef) xmlmodel.Node {
	if c.Axis != nil && c.Document != nil && ref.DocID == c.Document.ID() {
		return resolveRef(c.Axis, ref)
	}
	if c.docs == nil {
		return nil
	}
	if ev, ok := c.docs.byDocID[ref.DocID]; ok {
		return resolveRef(ev, ref)
	}
	return nil
}

// resolveRef dispatches a NodeRef to the axis.Evaluator method that can
// round-trip its node shape: attribute and namespace refs carry the owner's
// position plus an index rather than a position of their own (neither is
// ever added to the document-order table), so NodeAt alone would resolve
// them back to the owner element instead of the binding/attribute.
func resolveRef(ev *axis.Evaluator, ref value.NodeRef) xmlmodel.Node {
	switch {
	case ref.IsAttr:
		return ev.AttrAt(ref.Position, ref.AttrIndex)
	case ref.IsNamespace:
		return ev.NamespaceAt(ref.Position, ref.AttrIndex)
	default:
		return ev.NodeAt(ref.Position)
	}
}

// LoadDocument resolves uri against the prolog's base URI and fetches it
// through the host-supplied DocumentLoader, caching by resolved URI for the
// lifetime of this evaluation (spec §4.I "cache results on ...XMLCache").
func (c *Context) LoadDocument(uri string) (xmlmodel.Document, error) {
	resolved := c.resolveURI(uri)
	if doc, ok := c.docCache[resolved]; ok {
		return doc, nil
	}
	if c.DocLoader == nil {
		return nil, xqerrDocumentFetch(resolved)
	}
	doc, err := c.DocLoader.LoadDocument(resolved)
	if err != nil {
		return nil, err
	}
	c.registerDocument(doc)
	c.docCache[resolved] = doc
	return doc, nil
}

// DocumentRoot returns a NodeRef to doc's root element, for callers (like
// fn:doc) that only hold the xmlmodel.Document and need to mint a NodeRef
// into it. doc must already be registered (LoadDocument/registerDocument).
func (c *Context) DocumentRoot(doc xmlmodel.Document) value.NodeRef {
	if ev, ok := c.docs.byDocID[doc.ID()]; ok {
		return ev.ToRef(doc.Root())
	}
	return value.NodeRef{DocID: doc.ID(), NodeID: doc.Root().ID(), AttrIndex: -1}
}

// LoadText resolves uri and fetches its text content through the
// host-supplied TextLoader, caching by resolved URI (spec §4.I
// "Evaluator.text_cache").
func (c *Context) LoadText(uri string) (string, error) {
	resolved := c.resolveURI(uri)
	if text, ok := c.textCache[resolved]; ok {
		return text, nil
	}
	if c.TextLoader == nil {
		return "", xqerrTextFetch(resolved)
	}
	text, err := c.TextLoader.LoadText(resolved)
	if err != nil {
		return "", err
	}
	c.textCache[resolved] = text
	return text, nil
}

func (c *Context) resolveURI(uri string) string {
	if c.Prolog == nil || c.Prolog.BaseURI == "" || uri == "" {
		return uri
	}
	if len(uri) > 0 && (uri[0] == '/' || hasScheme(uri)) {
		return uri
	}
	base := c.Prolog.BaseURI
	if base[len(base)-1] != '/' {
		base += "/"
	}
	return base + uri
}

func hasScheme(uri string) bool {
	for i := 0; i < len(uri); i++ {
		switch {
		case uri[i] == ':':
			return i > 0
		case uri[i] == '/':
			return false
		}
	}
	return false
}

// ResolveNode exposes findNode to other packages (the built-in function
// library needs to walk from a NodeRef back to a live xmlmodel.Node the
// same way the evaluator itself does).
func (c *Context) ResolveNode(ref value.NodeRef) xmlmodel.Node {
	return c.findNode(ref)
}

// registerDocument adopts a freshly built document (from a computed
// constructor or fn:doc()) into the shared registry and returns its axis
// evaluator, so later steps can navigate it the same way as the bound
// input document.
func (c *Context) registerDocument(doc xmlmodel.Document) *axis.Evaluator {
	if c.docs == nil {
		c.docs = newDocRegistry(1)
	}
	return c.docs.register(doc)
}

// NumberOrderOf picks the first-in-document-order node from a set, for
// value.Value.AsNumber's node-set coercion.
func (c *Context) NumberOrderOf(nodes []value.NodeRef) value.NodeRef {
	if len(nodes) == 0 {
		return value.NodeRef{}
	}
	best := nodes[0]
	for _, n := range nodes[1:] {
		if n.Position < best.Position {
			best = n
		}
	}
	return best
}

// ResolveNodeTest compiles an ast node-test/kind-test node into an
// axis.NodeTest predicate. Prefixed name tests compare the node's lexical
// prefix; the prefix is not resolved to a namespace URI.
func ResolveNodeTest(n *ast.Node) axis.NodeTest {
	if n == nil {
		return axis.AnyNode
	}
	switch n.Kind {
	case ast.KindTest:
		return kindTestPredicate(n.Value)
	case ast.NodeTest:
		return nameTestPredicate(n.Value)
	default:
		return axis.AnyNode
	}
}

func kindTestPredicate(spec string) axis.NodeTest {
	name := spec
	for i := 0; i < len(spec); i++ {
		if spec[i] == ':' {
			name = spec[:i]
			break
		}
	}
	switch name {
	case "node":
		return axis.AnyNode
	case "text":
		return func(n xmlmodel.Node) bool { return n.Type() == xmlmodel.TextNode }
	case "comment":
		return func(n xmlmodel.Node) bool { return n.Type() == xmlmodel.CommentNode }
	case "processing-instruction":
		return func(n xmlmodel.Node) bool { return n.Type() == xmlmodel.ProcessingInstructionNode }
	case "document-node":
		return func(n xmlmodel.Node) bool { return n.Type() == xmlmodel.DocumentNode }
	case "element":
		return func(n xmlmodel.Node) bool { return n.Type() == xmlmodel.ElementNode }
	case "attribute":
		return func(n xmlmodel.Node) bool { return n.Type() == xmlmodel.AttributeNode }
	case "namespace-node":
		return func(n xmlmodel.Node) bool { return n.Type() == xmlmodel.NamespaceNode }
	default:
		return axis.AnyNode
	}
}

func nameTestPredicate(spec string) axis.NodeTest {
	if spec == "*" {
		return func(n xmlmodel.Node) bool {
			switch n.Type() {
			case xmlmodel.ElementNode, xmlmodel.AttributeNode, xmlmodel.NamespaceNode:
				return true
			default:
				return false
			}
		}
	}
	prefix, local, hasPrefix := splitName(spec)
	if hasPrefix && local == "*" {
		return func(n xmlmodel.Node) bool { return n.Prefix() == prefix }
	}
	if hasPrefix {
		return func(n xmlmodel.Node) bool { return n.Prefix() == prefix && n.LocalName() == local }
	}
	return func(n xmlmodel.Node) bool { return n.LocalName() == spec }
}

func splitName(s string) (prefix, local string, hasPrefix bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return s[:i], s[i+1:], true
		}
	}
	return "", s, false
}
