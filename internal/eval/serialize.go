package eval

import (
	"strings"

	"github.com/parasol-framework/xquery/internal/value"
	"github.com/parasol-framework/xquery/xmlmodel"
)

// Serialize renders a Value as the engine's test/debug string form (SPEC_FULL
// §9 "Direct constructor serialisation" resolution): atomic items join with a
// single space, exactly as fn:string-join(..., " ") would, and element nodes
// render as double-quoted-attribute XML with no extra whitespace. It is not a
// general XML serializer (no CDATA/entity-escaping policy knobs); it exists
// to make XQuery.ResultString legible and reproducible.
func Serialize(ctx *Context, v value.Value) string {
	items := v.Items()
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, serializeItem(ctx, item))
	}
	return strings.Join(parts, " ")
}

func serializeItem(ctx *Context, item value.Value) string {
	if item.Type() != value.TypeNodeSet {
		return item.AsString(ctx.StringValueOf)
	}
	var b strings.Builder
	for _, ref := range item.Nodes() {
		n := ctx.findNode(ref)
		if n == nil {
			continue
		}
		serializeNode(&b, n)
	}
	return b.String()
}

func serializeNode(b *strings.Builder, n xmlmodel.Node) {
	switch n.Type() {
	case xmlmodel.TextNode:
		b.WriteString(escapeText(n.TextContent()))
	case xmlmodel.CommentNode:
		b.WriteString("<!--")
		b.WriteString(n.TextContent())
		b.WriteString("-->")
	case xmlmodel.ProcessingInstructionNode:
		b.WriteString("<?")
		b.WriteString(n.Target())
		b.WriteString(" ")
		b.WriteString(n.TextContent())
		b.WriteString("?>")
	case xmlmodel.AttributeNode:
		b.WriteString(escapeText(n.TextContent()))
	case xmlmodel.ElementNode:
		serializeElement(b, n)
	default:
	}
}

func serializeElement(b *strings.Builder, n xmlmodel.Node) {
	b.WriteString("<")
	writeQName(b, n.Prefix(), n.LocalName())
	for _, a := range n.Attributes() {
		b.WriteString(" ")
		writeQName(b, a.Prefix(), a.LocalName())
		b.WriteString(`="`)
		b.WriteString(escapeAttr(a.Value()))
		b.WriteString(`"`)
	}
	children := n.Children()
	if len(children) == 0 {
		b.WriteString("/>")
		return
	}
	b.WriteString(">")
	for _, c := range children {
		serializeNode(b, c)
	}
	b.WriteString("</")
	writeQName(b, n.Prefix(), n.LocalName())
	b.WriteString(">")
}

func writeQName(b *strings.Builder, prefix, local string) {
	if prefix != "" {
		b.WriteString(prefix)
		b.WriteString(":")
	}
	b.WriteString(local)
}

func escapeText(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	return strings.ReplaceAll(s, ">", "&gt;")
}

func escapeAttr(s string) string {
	s = escapeText(s)
	return strings.ReplaceAll(s, `"`, "&quot;")
}
