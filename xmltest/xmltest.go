// Package xmltest is an in-memory xmlmodel.Document implementation used by
// the engine's own tests and by callers who want to build documents
// programmatically rather than parsing XML text. It mirrors the teacher's
// in-memory table idiom: a builder constructs immutable nodes up front, and
// every node's identity/position is assigned once at build time.
package xmltest

import (
	"strings"
	"sync/atomic"

	"github.com/parasol-framework/xquery/xmlmodel"
)

// Attr is one literal attribute of a Builder-created element.
type Attr struct {
	NSPrefix string
	Local    string
	NSURI    string
	Text     string
}

func (a Attr) LocalName() string     { return a.Local }
func (a Attr) Prefix() string        { return a.NSPrefix }
func (a Attr) NamespaceURI() string  { return a.NSURI }
func (a Attr) Value() string         { return a.Text }

// node is the concrete in-memory xmlmodel.Node.
type node struct {
	id       int64
	typ      xmlmodel.NodeType
	local    string
	prefix   string
	nsURI    string
	text     string
	target   string
	attrs    []xmlmodel.Attribute
	nsDecls  map[string]string
	parent   *node
	children []xmlmodel.Node
}

func (n *node) Type() xmlmodel.NodeType        { return n.typ }
func (n *node) ID() int64                      { return n.id }
func (n *node) LocalName() string              { return n.local }
func (n *node) Prefix() string                 { return n.prefix }
func (n *node) NamespaceURI() string           { return n.nsURI }
func (n *node) Target() string                 { return n.target }
func (n *node) Attributes() []xmlmodel.Attribute { return n.attrs }
func (n *node) Children() []xmlmodel.Node      { return n.children }

func (n *node) Parent() xmlmodel.Node {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

// TextContent implements the typed string-value of spec §4.F: an element's
// string-value is the concatenation of all its descendant text nodes; a
// text/comment/PI node's string-value is its own text.
func (n *node) TextContent() string {
	switch n.typ {
	case xmlmodel.TextNode, xmlmodel.CommentNode, xmlmodel.ProcessingInstructionNode:
		return n.text
	default:
		var b strings.Builder
		collectText(n, &b)
		return b.String()
	}
}

func collectText(n *node, b *strings.Builder) {
	if n.typ == xmlmodel.TextNode {
		b.WriteString(n.text)
		return
	}
	for _, c := range n.children {
		collectText(c.(*node), b)
	}
}

func (n *node) ResolvePrefix(prefix string) (string, bool) {
	for cur := n; cur != nil; cur = cur.parent {
		if uri, ok := cur.nsDecls[prefix]; ok {
			return uri, true
		}
	}
	return "", false
}

func (n *node) InScopeNamespaces() map[string]string {
	out := make(map[string]string)
	var chain []*node
	for cur := n; cur != nil; cur = cur.parent {
		chain = append(chain, cur)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		for p, u := range chain[i].nsDecls {
			out[p] = u
		}
	}
	return out
}

// Document is the in-memory xmlmodel.Document.
type Document struct {
	id      int64
	root    *node
	baseURI string
}

func (d *Document) ID() int64          { return d.id }
func (d *Document) Root() xmlmodel.Node { return d.root }
func (d *Document) BaseURI() string    { return d.baseURI }

// Builder assembles an in-memory document top-down. It is not safe for
// concurrent use; build the tree, then call Build once.
type Builder struct {
	nextID  int64
	baseURI string
	stack   []*node
	root    *node
}

func NewBuilder(baseURI string) *Builder {
	return &Builder{baseURI: baseURI}
}

func (b *Builder) allocID() int64 {
	b.nextID++
	return b.nextID
}

// Element starts an element node and pushes it as the current insertion
// point; call End to pop back to the parent.
func (b *Builder) Element(prefix, local, nsURI string) *Builder {
	n := &node{id: b.allocID(), typ: xmlmodel.ElementNode, prefix: prefix, local: local, nsURI: nsURI, nsDecls: make(map[string]string)}
	if b.root == nil {
		b.root = n
	} else {
		b.attach(n)
	}
	b.stack = append(b.stack, n)
	return b
}

// Namespace declares a namespace binding on the current (most recently
// opened) element.
func (b *Builder) Namespace(prefix, uri string) *Builder {
	if len(b.stack) == 0 {
		return b
	}
	b.stack[len(b.stack)-1].nsDecls[prefix] = uri
	return b
}

// Attribute attaches a literal attribute to the current element.
func (b *Builder) Attribute(prefix, local, nsURI, value string) *Builder {
	if len(b.stack) == 0 {
		return b
	}
	cur := b.stack[len(b.stack)-1]
	cur.attrs = append(cur.attrs, Attr{NSPrefix: prefix, Local: local, NSURI: nsURI, Text: value})
	return b
}

// Text appends a text node under the current element.
func (b *Builder) Text(s string) *Builder {
	n := &node{id: b.allocID(), typ: xmlmodel.TextNode, text: s}
	b.attach(n)
	return b
}

// Comment appends a comment node under the current element.
func (b *Builder) Comment(s string) *Builder {
	n := &node{id: b.allocID(), typ: xmlmodel.CommentNode, text: s}
	b.attach(n)
	return b
}

// PI appends a processing-instruction node under the current element.
func (b *Builder) PI(target, content string) *Builder {
	n := &node{id: b.allocID(), typ: xmlmodel.ProcessingInstructionNode, target: target, text: content}
	b.attach(n)
	return b
}

// End closes the most recently opened element.
func (b *Builder) End() *Builder {
	if len(b.stack) > 0 {
		b.stack = b.stack[:len(b.stack)-1]
	}
	return b
}

func (b *Builder) attach(n *node) {
	if len(b.stack) == 0 {
		return
	}
	parent := b.stack[len(b.stack)-1]
	n.parent = parent
	parent.children = append(parent.children, n)
}

// lastDocumentID is the process-wide counter Build draws document IDs from,
// so two documents never share an ID.
var lastDocumentID int64

// Build finalises the tree and returns the resulting Document. The
// builder must be fully unwound (every Element matched by an End) before
// calling Build.
func (b *Builder) Build() *Document {
	return &Document{id: atomic.AddInt64(&lastDocumentID, 1), root: b.root, baseURI: b.baseURI}
}
