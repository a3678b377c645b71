// Package axis implements the 13 XPath axes over xmlmodel.Node (spec §4.G):
// document-order normalisation, de-duplication, and the ancestor-path and
// document-order caches that make repeated axis evaluation over the same
// document cheap.
package axis

import (
	"sort"

	"github.com/parasol-framework/xquery/internal/ast"
	"github.com/parasol-framework/xquery/internal/value"
	"github.com/parasol-framework/xquery/xmlmodel"
)

// NodeTest filters candidate nodes during axis traversal: name tests,
// wildcard tests, and kind tests (node(), text(), element(name), etc.) all
// reduce to this predicate once the parser resolves them (spec §4.D).
type NodeTest func(xmlmodel.Node) bool

// AnyNode accepts every node; used for node() kind tests and attribute
// wildcards.
func AnyNode(xmlmodel.Node) bool { return true }

// Evaluator walks axes over one Document, caching document-order positions
// and ancestor chains so repeated descendant/following/preceding axis
// evaluations over the same document amortise their cost (spec §4.G
// "cache document order, cache ancestor paths").
type Evaluator struct {
	doc xmlmodel.Document

	order    map[int64]int64 // node ID -> document-order position
	orderSeq []xmlmodel.Node
	ordered  bool

	ancestorCache map[int64][]xmlmodel.Node
}

func NewEvaluator(doc xmlmodel.Document) *Evaluator {
	return &Evaluator{
		doc:           doc,
		order:         make(map[int64]int64),
		ancestorCache: make(map[int64][]xmlmodel.Node),
	}
}

// ensureOrder performs one pre-order walk of the whole document, assigning
// each node a monotonically increasing position. Subsequent axis
// evaluations reuse this table instead of re-walking.
func (e *Evaluator) ensureOrder() {
	if e.ordered {
		return
	}
	e.orderSeq = e.orderSeq[:0]
	var walk func(n xmlmodel.Node)
	walk = func(n xmlmodel.Node) {
		e.order[n.ID()] = int64(len(e.orderSeq))
		e.orderSeq = append(e.orderSeq, n)
		for _, c := range n.Children() {
			walk(c)
		}
	}
	walk(e.doc.Root())
	e.ordered = true
}

// Position returns n's document-order index, computing the document-wide
// order table on first use.
func (e *Evaluator) Position(n xmlmodel.Node) int64 {
	e.ensureOrder()
	return e.order[n.ID()]
}

// NodeAt resolves a document-order position back to its node, the inverse
// of Position. Used to round-trip a value.NodeRef (which only carries a
// position) back to a live xmlmodel.Node.
func (e *Evaluator) NodeAt(position int64) xmlmodel.Node {
	e.ensureOrder()
	if position < 0 || position >= int64(len(e.orderSeq)) {
		return nil
	}
	return e.orderSeq[position]
}

// ToRef converts a live node to the value package's comparable NodeRef. An
// attributeWrapper (attribute:: axis output) carries no position of its own
// — it sorts at its owning element's position (spec §4.G: attribute nodes
// sort immediately after their element) — so its ref records the owner's
// position plus the attribute's index within the owner, the pair findNode
// needs to round-trip back to the same attribute rather than the element.
func (e *Evaluator) ToRef(n xmlmodel.Node) value.NodeRef {
	switch w := n.(type) {
	case attributeWrapper:
		return value.NodeRef{DocID: e.doc.ID(), NodeID: w.owner.ID(), AttrIndex: w.index, Position: e.Position(w.owner), IsAttr: true}
	case namespaceNode:
		return value.NodeRef{DocID: e.doc.ID(), NodeID: w.owner.ID(), AttrIndex: w.index, Position: e.Position(w.owner), IsNamespace: true}
	default:
		return value.NodeRef{DocID: e.doc.ID(), NodeID: n.ID(), AttrIndex: -1, Position: e.Position(n)}
	}
}

func (e *Evaluator) ancestors(n xmlmodel.Node) []xmlmodel.Node {
	if cached, ok := e.ancestorCache[n.ID()]; ok {
		return cached
	}
	var chain []xmlmodel.Node
	for p := n.Parent(); p != nil; p = p.Parent() {
		chain = append(chain, p)
	}
	e.ancestorCache[n.ID()] = chain
	return chain
}

// Evaluate runs the named axis from context node n, returning matching
// nodes filtered by test but NOT yet normalised into document order — axis
// direction matters for `reverse axis` callers that want reverse order
// before the final normalisation step (spec §4.G preceding/ancestor are
// reverse axes).
func (e *Evaluator) Evaluate(axisType ast.AxisType, n xmlmodel.Node, test NodeTest) []xmlmodel.Node {
	switch axisType {
	case ast.AxisSelf:
		return filterOne(n, test)
	case ast.AxisChild:
		return filterAll(n.Children(), test)
	case ast.AxisDescendant:
		var out []xmlmodel.Node
		e.collectDescendants(n, test, &out)
		return out
	case ast.AxisDescendantOrSelf:
		out := filterOne(n, test)
		e.collectDescendants(n, test, &out)
		return out
	case ast.AxisParent:
		if p := n.Parent(); p != nil {
			return filterOne(p, test)
		}
		return nil
	case ast.AxisAncestor:
		return filterAll(e.ancestors(n), test)
	case ast.AxisAncestorOrSelf:
		out := filterOne(n, test)
		out = append(out, filterAll(e.ancestors(n), test)...)
		return out
	case ast.AxisFollowingSibling:
		return filterAll(e.siblingsAfter(n), test)
	case ast.AxisPrecedingSibling:
		return filterAll(e.siblingsBefore(n), test)
	case ast.AxisFollowing:
		return filterAll(e.followingNodes(n), test)
	case ast.AxisPreceding:
		return filterAll(e.precedingNodes(n), test)
	case ast.AxisAttribute:
		return e.attributeNodes(n, test)
	case ast.AxisNamespace:
		return e.namespaceNodes(n, test)
	default:
		return nil
	}
}

func (e *Evaluator) collectDescendants(n xmlmodel.Node, test NodeTest, out *[]xmlmodel.Node) {
	for _, c := range n.Children() {
		if test(c) {
			*out = append(*out, c)
		}
		e.collectDescendants(c, test, out)
	}
}

func (e *Evaluator) siblingsAfter(n xmlmodel.Node) []xmlmodel.Node {
	return siblingSlice(n, true)
}

func (e *Evaluator) siblingsBefore(n xmlmodel.Node) []xmlmodel.Node {
	return siblingSlice(n, false)
}

func siblingSlice(n xmlmodel.Node, after bool) []xmlmodel.Node {
	p := n.Parent()
	if p == nil {
		return nil
	}
	siblings := p.Children()
	idx := -1
	for i, s := range siblings {
		if s.ID() == n.ID() {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	if after {
		return siblings[idx+1:]
	}
	out := make([]xmlmodel.Node, idx)
	for i := 0; i < idx; i++ {
		out[i] = siblings[idx-1-i] // reverse document order, per spec §4.G preceding-sibling
	}
	return out
}

// followingNodes returns every node after n in document order, excluding
// descendants of n (spec's definition of the following axis).
func (e *Evaluator) followingNodes(n xmlmodel.Node) []xmlmodel.Node {
	e.ensureOrder()
	excluded := descendantSet(n)
	pos := e.Position(n)
	var out []xmlmodel.Node
	for i := pos + 1; i < int64(len(e.orderSeq)); i++ {
		cand := e.orderSeq[i]
		if _, isDesc := excluded[cand.ID()]; isDesc {
			continue
		}
		out = append(out, cand)
	}
	return out
}

// precedingNodes returns every node before n in document order, excluding
// n's ancestors, in reverse document order (spec §4.G reverse axis).
func (e *Evaluator) precedingNodes(n xmlmodel.Node) []xmlmodel.Node {
	e.ensureOrder()
	ancestorIDs := make(map[int64]struct{})
	for _, a := range e.ancestors(n) {
		ancestorIDs[a.ID()] = struct{}{}
	}
	pos := e.Position(n)
	var out []xmlmodel.Node
	for i := pos - 1; i >= 0; i-- {
		cand := e.orderSeq[i]
		if _, isAnc := ancestorIDs[cand.ID()]; isAnc {
			continue
		}
		out = append(out, cand)
	}
	return out
}

func descendantSet(n xmlmodel.Node) map[int64]struct{} {
	set := make(map[int64]struct{})
	var walk func(xmlmodel.Node)
	walk = func(c xmlmodel.Node) {
		set[c.ID()] = struct{}{}
		for _, gc := range c.Children() {
			walk(gc)
		}
	}
	walk(n)
	return set
}

func (e *Evaluator) attributeNodes(n xmlmodel.Node, test NodeTest) []xmlmodel.Node {
	var out []xmlmodel.Node
	for i, a := range n.Attributes() {
		wrapped := attributeWrapper{owner: n, attr: a, index: i}
		if test(wrapped) {
			out = append(out, wrapped)
		}
	}
	return out
}

// attributeWrapper adapts an xmlmodel.Attribute to the xmlmodel.Node
// interface so node tests (which only know about Node) can filter
// attributes uniformly with elements. index is the attribute's position in
// owner.Attributes(), carried so ToRef/AttrAt can round-trip identity
// without it being added to the document-order table (spec §4.G: attribute
// nodes sort immediately after their element, before any children).
type attributeWrapper struct {
	owner xmlmodel.Node
	attr  xmlmodel.Attribute
	index int
}

func (w attributeWrapper) Type() xmlmodel.NodeType         { return xmlmodel.AttributeNode }
func (w attributeWrapper) ID() int64                       { return w.owner.ID() }
func (w attributeWrapper) LocalName() string                { return w.attr.LocalName() }
func (w attributeWrapper) Prefix() string                   { return w.attr.Prefix() }
func (w attributeWrapper) NamespaceURI() string              { return w.attr.NamespaceURI() }
func (w attributeWrapper) TextContent() string               { return w.attr.Value() }
func (w attributeWrapper) Target() string                    { return "" }
func (w attributeWrapper) Parent() xmlmodel.Node             { return w.owner }
func (w attributeWrapper) Children() []xmlmodel.Node         { return nil }
func (w attributeWrapper) Attributes() []xmlmodel.Attribute  { return nil }
func (w attributeWrapper) ResolvePrefix(p string) (string, bool) { return w.owner.ResolvePrefix(p) }
func (w attributeWrapper) InScopeNamespaces() map[string]string { return w.owner.InScopeNamespaces() }

// Attr unwraps an attributeWrapper produced by the attribute:: axis, for
// callers (fn:string, fn:name) that need the underlying Attribute value.
func Attr(n xmlmodel.Node) (xmlmodel.Attribute, bool) {
	w, ok := n.(attributeWrapper)
	if !ok {
		return nil, false
	}
	return w.attr, true
}

// AttrAt is ToRef's inverse for an attribute NodeRef: it resolves the
// owner's document-order position back to the owner node, then re-wraps its
// attribute at attrIndex. Returns nil if the owner or index no longer
// matches (e.g. a stale ref against a different document generation).
func (e *Evaluator) AttrAt(position int64, attrIndex int) xmlmodel.Node {
	owner := e.NodeAt(position)
	if owner == nil {
		return nil
	}
	attrs := owner.Attributes()
	if attrIndex < 0 || attrIndex >= len(attrs) {
		return nil
	}
	return attributeWrapper{owner: owner, attr: attrs[attrIndex], index: attrIndex}
}

// xmlPrefixNamespaceURI is the implicit binding every element carries for
// the "xml" prefix, per the XML namespaces recommendation; xmlmodel
// implementations aren't required to declare it themselves.
const xmlPrefixNamespaceURI = "http://www.w3.org/XML/1998/namespace"

// namespaceBindingsFor returns n's in-scope namespace bindings (spec §4.G:
// "xml" always present, shadowed prefixes removed — the latter is already
// handled by InScopeNamespaces, which only records the innermost binding per
// prefix) as namespaceNodes in a deterministic order, so a NodeRef's index
// round-trips to the same binding across calls within one evaluation.
func namespaceBindingsFor(n xmlmodel.Node) []namespaceNode {
	merged := map[string]string{"xml": xmlPrefixNamespaceURI}
	for prefix, uri := range n.InScopeNamespaces() {
		merged[prefix] = uri
	}
	prefixes := make([]string, 0, len(merged))
	for p := range merged {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)
	out := make([]namespaceNode, len(prefixes))
	for i, p := range prefixes {
		out[i] = namespaceNode{owner: n, prefix: p, uri: merged[p], index: i}
	}
	return out
}

func (e *Evaluator) namespaceNodes(n xmlmodel.Node, test NodeTest) []xmlmodel.Node {
	var out []xmlmodel.Node
	for _, ns := range namespaceBindingsFor(n) {
		if test(ns) {
			out = append(out, ns)
		}
	}
	return out
}

// NamespaceAt is ToRef's inverse for a namespace NodeRef: it resolves the
// owner's document-order position, then recomputes the owner's binding list
// and re-wraps the binding at index. The binding list is deterministic for
// an unchanged owner, so this round-trips within one evaluation.
func (e *Evaluator) NamespaceAt(position int64, index int) xmlmodel.Node {
	owner := e.NodeAt(position)
	if owner == nil {
		return nil
	}
	bindings := namespaceBindingsFor(owner)
	if index < 0 || index >= len(bindings) {
		return nil
	}
	return bindings[index]
}

// namespaceNode adapts one namespace binding visible at owner to the
// xmlmodel.Node interface, the namespace:: axis's materialised node shape
// (spec §4.G). Its local name is the bound prefix; its string-value (and
// hence fn:string) is the namespace URI.
type namespaceNode struct {
	owner xmlmodel.Node
	index int

	prefix string
	uri    string
}

func (w namespaceNode) Type() xmlmodel.NodeType                { return xmlmodel.NamespaceNode }
func (w namespaceNode) ID() int64                              { return w.owner.ID() }
func (w namespaceNode) LocalName() string                      { return w.prefix }
func (w namespaceNode) Prefix() string                         { return "" }
func (w namespaceNode) NamespaceURI() string                   { return "" }
func (w namespaceNode) TextContent() string                    { return w.uri }
func (w namespaceNode) Target() string                         { return "" }
func (w namespaceNode) Parent() xmlmodel.Node                  { return w.owner }
func (w namespaceNode) Children() []xmlmodel.Node              { return nil }
func (w namespaceNode) Attributes() []xmlmodel.Attribute       { return nil }
func (w namespaceNode) ResolvePrefix(p string) (string, bool)  { return w.owner.ResolvePrefix(p) }
func (w namespaceNode) InScopeNamespaces() map[string]string   { return w.owner.InScopeNamespaces() }

func filterOne(n xmlmodel.Node, test NodeTest) []xmlmodel.Node {
	if test(n) {
		return []xmlmodel.Node{n}
	}
	return nil
}

func filterAll(nodes []xmlmodel.Node, test NodeTest) []xmlmodel.Node {
	var out []xmlmodel.Node
	for _, n := range nodes {
		if test(n) {
			out = append(out, n)
		}
	}
	return out
}

// Compare orders two nodes by document position for the `<<` / `>>` node
// comparison operators and for sort-by-document-order merges (spec §4.G).
func (e *Evaluator) Compare(a, b xmlmodel.Node) int {
	pa, pb := e.Position(a), e.Position(b)
	switch {
	case pa < pb:
		return -1
	case pa > pb:
		return 1
	default:
		return 0
	}
}

// SortDocumentOrder sorts nodes in place by document position, then
// de-duplicates by ID, matching value.NormaliseNodeSet's contract but
// operating on live xmlmodel.Node values instead of NodeRef.
func (e *Evaluator) SortDocumentOrder(nodes []xmlmodel.Node) []xmlmodel.Node {
	e.ensureOrder()
	sorted := make([]xmlmodel.Node, len(nodes))
	copy(sorted, nodes)
	insertionSortByPosition(sorted, e.order)
	if len(sorted) < 2 {
		return sorted
	}
	out := sorted[:1]
	for _, n := range sorted[1:] {
		if n.ID() != out[len(out)-1].ID() {
			out = append(out, n)
		}
	}
	return out
}

func insertionSortByPosition(nodes []xmlmodel.Node, order map[int64]int64) {
	for i := 1; i < len(nodes); i++ {
		j := i
		for j > 0 && order[nodes[j-1].ID()] > order[nodes[j].ID()] {
			nodes[j-1], nodes[j] = nodes[j], nodes[j-1]
			j--
		}
	}
}
