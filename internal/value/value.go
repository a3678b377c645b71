// Package value implements the typed value model of spec §4.F: a variant
// over string, double, boolean, node-set, general sequence, map, and array,
// with the total, deterministic conversion rules §4.F specifies.
package value

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Type tags the variant held by a Value, matching spec §3's enumeration.
type Type int

const (
	TypeEmpty Type = iota
	TypeString
	TypeInteger // xs:integer fast path; promoted to Double/Decimal on mixed arithmetic
	TypeDouble
	TypeDecimal
	TypeBoolean
	TypeNodeSet
	TypeSequence
	TypeMap
	TypeArray
)

func (t Type) String() string {
	switch t {
	case TypeEmpty:
		return "empty-sequence()"
	case TypeString:
		return "xs:string"
	case TypeInteger:
		return "xs:integer"
	case TypeDouble:
		return "xs:double"
	case TypeDecimal:
		return "xs:decimal"
	case TypeBoolean:
		return "xs:boolean"
	case TypeNodeSet:
		return "node()*"
	case TypeSequence:
		return "item()*"
	case TypeMap:
		return "map(*)"
	case TypeArray:
		return "array(*)"
	default:
		return "unknown"
	}
}

// NodeRef identifies one node in a document-order-comparable way: a
// document identity plus a position. The evaluator fills DocID from the
// xmlmodel.Document it is bound to (or a synthetic ID for constructed
// documents) and Position from the axis evaluator's document-order cache.
type NodeRef struct {
	DocID       int64
	NodeID      int64
	AttrIndex   int // -1 for element/text/comment/PI nodes; attribute or namespace-binding index otherwise
	Position    int64
	IsAttr      bool
	IsNamespace bool
}

// MapEntry is one key/sequence pair of a map value, preserving insertion
// order (spec §4.F "arrays preserve insertion order"; maps likewise here,
// which also makes iteration deterministic for serialisation/testing).
type MapEntry struct {
	Key   Value
	Value Value
}

// Value is the tagged union described in spec §4.F.
type Value struct {
	typ Type

	str  string
	num  float64
	dec  decimal.Decimal
	hasDecimal bool
	boolean bool

	nodes []NodeRef
	seq   []Value

	mapEntries []MapEntry
	array      []Value
}

func Empty() Value { return Value{typ: TypeEmpty} }

func String(s string) Value { return Value{typ: TypeString, str: s} }

func Double(f float64) Value { return Value{typ: TypeDouble, num: f} }

func Integer(i int64) Value { return Value{typ: TypeInteger, num: float64(i)} }

func Decimal(d decimal.Decimal) Value { return Value{typ: TypeDecimal, dec: d, hasDecimal: true} }

func Boolean(b bool) Value { return Value{typ: TypeBoolean, boolean: b} }

func NodeSet(nodes []NodeRef) Value { return Value{typ: TypeNodeSet, nodes: nodes} }

func Sequence(items []Value) Value {
	if len(items) == 0 {
		return Empty()
	}
	if len(items) == 1 {
		return items[0]
	}
	return Value{typ: TypeSequence, seq: items}
}

func Map(entries []MapEntry) Value { return Value{typ: TypeMap, mapEntries: entries} }

func Array(items []Value) Value { return Value{typ: TypeArray, array: items} }

func (v Value) Type() Type { return v.typ }

func (v Value) Nodes() []NodeRef { return v.nodes }

func (v Value) ArrayMembers() []Value { return v.array }

func (v Value) MapEntries() []MapEntry { return v.mapEntries }

// Items flattens a Value into its constituent items: a sequence yields its
// members, a node-set yields one item per node, everything else yields a
// single-item slice (atomics, maps, and arrays are themselves single
// items per the XQuery data model).
func (v Value) Items() []Value {
	switch v.typ {
	case TypeEmpty:
		return nil
	case TypeSequence:
		return v.seq
	case TypeNodeSet:
		items := make([]Value, len(v.nodes))
		for i, n := range v.nodes {
			items[i] = Value{typ: TypeNodeSet, nodes: []NodeRef{n}}
		}
		return items
	default:
		return []Value{v}
	}
}

// IsEmpty reports whether v is the empty sequence (spec §4.F: only the
// zero-length sequence/node-set, NOT the empty string or zero number).
func (v Value) IsEmpty() bool {
	switch v.typ {
	case TypeEmpty:
		return true
	case TypeNodeSet:
		return len(v.nodes) == 0
	case TypeSequence:
		return len(v.seq) == 0
	default:
		return false
	}
}

// --- §4.F conversion rules ------------------------------------------------

// StringValueOf is supplied by the evaluator to fetch a node's typed
// string-value; the value package itself has no document access.
type StringValueOf func(NodeRef) string

// NumberOrderOf picks the first-in-document-order node of a node-set.
type NumberOrderOf func([]NodeRef) NodeRef

// AsBoolean implements the boolean(v) promotion of spec §4.F.
func (v Value) AsBoolean() bool {
	switch v.typ {
	case TypeEmpty:
		return false
	case TypeBoolean:
		return v.boolean
	case TypeString:
		return v.str != ""
	case TypeInteger, TypeDouble:
		return v.num != 0 && !math.IsNaN(v.num)
	case TypeDecimal:
		return !v.dec.IsZero()
	case TypeNodeSet:
		return len(v.nodes) >= 1
	case TypeSequence:
		return len(v.seq) >= 1
	case TypeMap:
		return len(v.mapEntries) > 0
	case TypeArray:
		return len(v.array) > 0
	default:
		return false
	}
}

// AsNumber implements the number(v) promotion of spec §4.F. svo resolves a
// node-set's first-in-document-order string-value when needed.
func (v Value) AsNumber(svo StringValueOf, order NumberOrderOf) float64 {
	switch v.typ {
	case TypeEmpty:
		return math.NaN()
	case TypeInteger, TypeDouble:
		return v.num
	case TypeDecimal:
		f, _ := v.dec.Float64()
		return f
	case TypeBoolean:
		if v.boolean {
			return 1
		}
		return 0
	case TypeString:
		return ParseXSDouble(v.str)
	case TypeNodeSet:
		if len(v.nodes) == 0 {
			return math.NaN()
		}
		first := v.nodes[0]
		if order != nil {
			first = order(v.nodes)
		}
		if svo == nil {
			return math.NaN()
		}
		return ParseXSDouble(svo(first))
	case TypeSequence:
		if len(v.seq) == 0 {
			return math.NaN()
		}
		return v.seq[0].AsNumber(svo, order)
	default:
		return math.NaN()
	}
}

// ParseXSDouble parses the xs:double lexical space: NaN on failure, INF /
// -INF for infinities, -0 kept distinct from 0 (spec §4.F).
func ParseXSDouble(s string) float64 {
	trimmed := strings.TrimSpace(s)
	switch trimmed {
	case "INF", "+INF":
		return math.Inf(1)
	case "-INF":
		return math.Inf(-1)
	case "NaN":
		return math.NaN()
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// AsString implements the string(v) promotion of spec §4.F.
func (v Value) AsString(svo StringValueOf) string {
	switch v.typ {
	case TypeEmpty:
		return ""
	case TypeString:
		return v.str
	case TypeBoolean:
		if v.boolean {
			return "true"
		}
		return "false"
	case TypeInteger:
		return strconv.FormatInt(int64(v.num), 10)
	case TypeDouble:
		return formatXSDouble(v.num)
	case TypeDecimal:
		return v.dec.String()
	case TypeNodeSet:
		if len(v.nodes) == 0 || svo == nil {
			return ""
		}
		return svo(v.nodes[0])
	case TypeSequence:
		parts := make([]string, len(v.seq))
		for i, item := range v.seq {
			parts[i] = item.AsString(svo)
		}
		return strings.Join(parts, " ")
	default:
		return ""
	}
}

func formatXSDouble(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "INF"
	case math.IsInf(f, -1):
		return "-INF"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Decimal returns the value's exact decimal representation, converting from
// double/integer as needed. Used by arithmetic that must not lose
// precision (spec SPEC_FULL §4 decimal promotion rule).
func (v Value) Decimal() decimal.Decimal {
	switch v.typ {
	case TypeDecimal:
		return v.dec
	case TypeInteger:
		return decimal.NewFromInt(int64(v.num))
	case TypeDouble:
		return decimal.NewFromFloat(v.num)
	case TypeString:
		d, err := decimal.NewFromString(strings.TrimSpace(v.str))
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}

// SortNodeRefs sorts in document order: (DocID, Position) ascending, per
// spec §4.G normalise_node_set.
func SortNodeRefs(nodes []NodeRef) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].DocID != nodes[j].DocID {
			return nodes[i].DocID < nodes[j].DocID
		}
		return nodes[i].Position < nodes[j].Position
	})
}

// DedupNodeRefs removes duplicates from an already document-ordered slice.
func DedupNodeRefs(nodes []NodeRef) []NodeRef {
	if len(nodes) < 2 {
		return nodes
	}
	out := nodes[:1]
	for _, n := range nodes[1:] {
		last := out[len(out)-1]
		if n.DocID == last.DocID && n.Position == last.Position && n.IsAttr == last.IsAttr && n.IsNamespace == last.IsNamespace && n.AttrIndex == last.AttrIndex {
			continue
		}
		out = append(out, n)
	}
	return out
}

// NormaliseNodeSet sorts and dedups, per spec §4.G.
func NormaliseNodeSet(nodes []NodeRef) []NodeRef {
	cp := make([]NodeRef, len(nodes))
	copy(cp, nodes)
	SortNodeRefs(cp)
	return DedupNodeRefs(cp)
}
