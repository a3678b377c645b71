package axis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parasol-framework/xquery/internal/ast"
	"github.com/parasol-framework/xquery/internal/value"
	"github.com/parasol-framework/xquery/xmlmodel"
	"github.com/parasol-framework/xquery/xmltest"
)

func anyNode(xmlmodel.Node) bool { return true }

func buildDoc() *xmltest.Document {
	return xmltest.NewBuilder("base://").
		Element("", "root", "").
		Element("", "book", "").Attribute("", "price", "", "12").End().
		Element("", "book", "").Attribute("", "price", "", "8").End().
		End().
		Build()
}

func TestChildAxisReturnsDirectChildrenInOrder(t *testing.T) {
	doc := buildDoc()
	ev := NewEvaluator(doc)
	children := ev.Evaluate(ast.AxisChild, doc.Root(), anyNode)
	require.Len(t, children, 2)
	assert.Equal(t, "book", children[0].LocalName())
	assert.Equal(t, "book", children[1].LocalName())
}

func TestAttributeAxisWrapsAttributesAsNodes(t *testing.T) {
	doc := buildDoc()
	ev := NewEvaluator(doc)
	books := ev.Evaluate(ast.AxisChild, doc.Root(), anyNode)
	require.Len(t, books, 2)

	attrs := ev.Evaluate(ast.AxisAttribute, books[0], anyNode)
	require.Len(t, attrs, 1)
	assert.Equal(t, xmlmodel.AttributeNode, attrs[0].Type())
	assert.Equal(t, "price", attrs[0].LocalName())
	assert.Equal(t, "12", attrs[0].TextContent())

	raw, ok := Attr(attrs[0])
	require.True(t, ok)
	assert.Equal(t, "12", raw.Value())
	assert.Equal(t, books[0], attrs[0].Parent())
}

func TestAttrReturnsFalseForOrdinaryNode(t *testing.T) {
	doc := buildDoc()
	_, ok := Attr(doc.Root())
	assert.False(t, ok)
}

func TestToRefAndNodeAtRoundTrip(t *testing.T) {
	doc := buildDoc()
	ev := NewEvaluator(doc)
	books := ev.Evaluate(ast.AxisChild, doc.Root(), anyNode)
	ref := ev.ToRef(books[1])
	assert.Equal(t, int64(-1), int64(ref.AttrIndex))

	got := ev.NodeAt(ref.Position)
	require.NotNil(t, got)
	assert.Equal(t, books[1].ID(), got.ID())
}

func TestDescendantAxisFindsNestedBooks(t *testing.T) {
	doc := buildDoc()
	ev := NewEvaluator(doc)
	descendants := ev.Evaluate(ast.AxisDescendant, doc.Root(), func(n xmlmodel.Node) bool {
		return n.Type() == xmlmodel.ElementNode
	})
	assert.Len(t, descendants, 2)
}

func TestAttributeToRefAndAttrAtRoundTrip(t *testing.T) {
	doc := buildDoc()
	ev := NewEvaluator(doc)
	books := ev.Evaluate(ast.AxisChild, doc.Root(), anyNode)
	attrs := ev.Evaluate(ast.AxisAttribute, books[1], anyNode)
	require.Len(t, attrs, 1)

	ref := ev.ToRef(attrs[0])
	assert.True(t, ref.IsAttr)
	assert.Equal(t, books[1].ID(), ref.NodeID)

	got := ev.AttrAt(ref.Position, ref.AttrIndex)
	require.NotNil(t, got)
	assert.Equal(t, xmlmodel.AttributeNode, got.Type())
	assert.Equal(t, "8", got.TextContent())
}

func TestNamespaceAxisIncludesImplicitXMLPrefixAndShadowing(t *testing.T) {
	doc := xmltest.NewBuilder("base://").
		Element("", "root", "").
		Namespace("b", "urn:outer").
		Element("", "child", "").
		Namespace("b", "urn:inner").
		End().
		End().
		Build()

	ev := NewEvaluator(doc)
	root := doc.Root()
	child := ev.Evaluate(ast.AxisChild, root, anyNode)
	require.Len(t, child, 1)

	rootNS := ev.Evaluate(ast.AxisNamespace, root, anyNode)
	byPrefix := func(nodes []xmlmodel.Node) map[string]string {
		out := make(map[string]string, len(nodes))
		for _, n := range nodes {
			out[n.LocalName()] = n.TextContent()
		}
		return out
	}
	rootBindings := byPrefix(rootNS)
	assert.Equal(t, "http://www.w3.org/XML/1998/namespace", rootBindings["xml"])
	assert.Equal(t, "urn:outer", rootBindings["b"])

	childNS := ev.Evaluate(ast.AxisNamespace, child[0], anyNode)
	childBindings := byPrefix(childNS)
	assert.Equal(t, "urn:inner", childBindings["b"], "child's own binding should shadow the ancestor's")
}

func TestNamespaceToRefAndNamespaceAtRoundTrip(t *testing.T) {
	doc := xmltest.NewBuilder("base://").
		Element("", "root", "").
		Namespace("b", "urn:outer").
		End().
		Build()

	ev := NewEvaluator(doc)
	nsNodes := ev.Evaluate(ast.AxisNamespace, doc.Root(), anyNode)
	require.NotEmpty(t, nsNodes)

	var bRef value.NodeRef
	var found bool
	for _, n := range nsNodes {
		if n.LocalName() == "b" {
			bRef = ev.ToRef(n)
			found = true
		}
	}
	require.True(t, found)
	assert.True(t, bRef.IsNamespace)

	got := ev.NamespaceAt(bRef.Position, bRef.AttrIndex)
	require.NotNil(t, got)
	assert.Equal(t, "b", got.LocalName())
	assert.Equal(t, "urn:outer", got.TextContent())
}
