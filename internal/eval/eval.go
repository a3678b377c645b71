package eval

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/parasol-framework/xquery/internal/ast"
	"github.com/parasol-framework/xquery/internal/value"
	"github.com/parasol-framework/xquery/internal/xqerr"
	"github.com/parasol-framework/xquery/xmlmodel"
)

// Eval dispatches on n.Kind, the single entry point every sub-evaluator
// calls recursively (spec §4.H "tree-walking dispatch over ast.Kind").
func Eval(ctx *Context, n *ast.Node) (value.Value, error) {
	if n == nil {
		return value.Empty(), nil
	}
	next, ok := ctx.EnterRecursion()
	if !ok {
		return value.Value{}, xqerr.ErrRecursionLimit.New(next.maxDepth, fmt.Sprintf("node kind %d", n.Kind))
	}
	ctx = next

	switch n.Kind {
	case ast.Literal:
		return value.String(n.Value), nil
	case ast.NumberLiteral:
		return evalNumberLiteral(n.Value), nil
	case ast.EmptySequence:
		return value.Empty(), nil
	case ast.ContextItem:
		if ctx.ContextItem.Type() == value.TypeEmpty && ctx.Position == 0 {
			return value.Value{}, xqerr.ErrUnresolvedVariable.New(".")
		}
		return ctx.ContextItem, nil
	case ast.VarRef:
		return evalVarRef(ctx, n)
	case ast.Sequence:
		return evalSequence(ctx, n)
	case ast.Path:
		return evalPath(ctx, n)
	case ast.AxisStep:
		return evalAxisStepStandalone(ctx, n)
	case ast.BinaryOp:
		return evalBinaryOp(ctx, n)
	case ast.UnaryOp:
		return evalUnaryOp(ctx, n)
	case ast.If:
		return evalIf(ctx, n)
	case ast.FLWOR:
		return evalFLWOR(ctx, n)
	case ast.Quantified:
		return evalQuantified(ctx, n)
	case ast.Typeswitch:
		return evalTypeswitch(ctx, n)
	case ast.Cast:
		return evalCast(ctx, n)
	case ast.Castable:
		return evalCastable(ctx, n)
	case ast.TreatAs:
		return evalTreatAs(ctx, n)
	case ast.InstanceOf:
		return evalInstanceOf(ctx, n)
	case ast.FunctionCall:
		return evalFunctionCall(ctx, n)
	case ast.DirectElementConstructor, ast.ComputedElementConstructor:
		return evalElementConstructor(ctx, n)
	case ast.DirectAttributeConstructor, ast.ComputedAttributeConstructor:
		return evalAttributeConstructor(ctx, n)
	case ast.ComputedTextConstructor:
		return evalTextConstructor(ctx, n)
	case ast.ComputedCommentConstructor:
		return evalCommentConstructor(ctx, n)
	case ast.ComputedPIConstructor:
		return evalPIConstructor(ctx, n)
	case ast.ComputedDocumentConstructor:
		return evalDocumentConstructor(ctx, n)
	case ast.MapConstructor:
		return evalMapConstructor(ctx, n)
	case ast.ArrayConstructorSquare, ast.ArrayConstructorCurly:
		return evalArrayConstructor(ctx, n)
	case ast.Lookup:
		return evalLookup(ctx, n)
	case ast.ExpressionWrapper:
		if n.ChildCount() == 0 {
			return value.Empty(), nil
		}
		return Eval(ctx, n.Child(0))
	default:
		return value.Value{}, xqerr.ErrUnexpectedToken.New(fmt.Sprintf("unhandled node kind %d", n.Kind), n.SourceOffset)
	}
}

func evalNumberLiteral(text string) value.Value {
	isInt := true
	for i := 0; i < len(text); i++ {
		if text[i] == '.' {
			isInt = false
			break
		}
	}
	if isInt {
		var iv int64
		_, err := fmt.Sscanf(text, "%d", &iv)
		if err == nil {
			return value.Integer(iv)
		}
	}
	d, err := decimal.NewFromString(text)
	if err == nil {
		return value.Decimal(d)
	}
	return value.Double(value.ParseXSDouble(text))
}

func evalVarRef(ctx *Context, n *ast.Node) (value.Value, error) {
	if v, ok := ctx.LookupVariable(n.Value); ok {
		return v, nil
	}
	if ctx.Prolog != nil {
		if decl, ok := ctx.Prolog.FindVariable(n.Value); ok {
			if decl.Initializer != nil {
				return Eval(ctx, decl.Initializer)
			}
			return value.Empty(), nil // external, host never bound it
		}
	}
	return value.Value{}, xqerr.ErrUnresolvedVariable.New(n.Value)
}

func evalSequence(ctx *Context, n *ast.Node) (value.Value, error) {
	var items []value.Value
	for _, c := range n.Children {
		v, err := Eval(ctx, c)
		if err != nil {
			return value.Value{}, err
		}
		items = append(items, v.Items()...)
	}
	return value.Sequence(items), nil
}

// --- Path / AxisStep ---------------------------------------------------

func evalPath(ctx *Context, n *ast.Node) (value.Value, error) {
	if len(n.Children) == 0 {
		return rootContextValue(ctx), nil
	}

	var current []value.NodeRef
	start := 0
	switch n.Value {
	case "/":
		current = []value.NodeRef{ctx.Axis.ToRef(ctx.Document.Root())}
	case "//":
		nodes := ctx.Axis.Evaluate(ast.AxisDescendantOrSelf, ctx.Document.Root(), axisAnyNode)
		current = toRefs(ctx, nodes)
	default:
		v, err := evalStepInput(ctx, n.Children[0])
		if err != nil {
			return value.Value{}, err
		}
		current = v
		start = 1
	}

	for i := start; i < len(n.Children); i++ {
		step := n.Children[i]
		if step.Kind == ast.AxisStep && step.Value == "//" && step.HasAxis {
			var next []value.NodeRef
			for _, ref := range current {
				node := ctx.findNode(ref)
				if node == nil {
					continue
				}
				nodes := ctx.Axis.Evaluate(ast.AxisDescendantOrSelf, node, axisAnyNode)
				next = append(next, toRefs(ctx, nodes)...)
			}
			current = value.NormaliseNodeSet(next)
			continue
		}
		if isNodeProducingStep(step) {
			next, err := evalOneStep(ctx, step, current)
			if err != nil {
				return value.Value{}, err
			}
			current = value.NormaliseNodeSet(next)
			continue
		}
		// A step that is an arbitrary expression (most commonly a bare
		// function call such as `string()`) rather than an axis or self
		// step evaluates once per item of the previous step with that item
		// as focus, and its results concatenate in input order rather than
		// document order.
		items, err := evalGenericPathStep(ctx, step, current)
		if err != nil {
			return value.Value{}, err
		}
		if i == len(n.Children)-1 {
			return value.Sequence(items), nil
		}
		current = itemsToNodeRefs(items)
	}
	return value.NodeSet(value.NormaliseNodeSet(current)), nil
}

func isNodeProducingStep(step *ast.Node) bool {
	return (step.Kind == ast.AxisStep && step.HasAxis) || step.Value == "."
}

func evalGenericPathStep(ctx *Context, step *ast.Node, input []value.NodeRef) ([]value.Value, error) {
	var out []value.Value
	size := int64(len(input))
	for i, ref := range input {
		item := value.NodeSet([]value.NodeRef{ref})
		stepCtx := ctx.WithFocus(item, int64(i+1), size)
		v, err := Eval(stepCtx, step)
		if err != nil {
			return nil, err
		}
		out = append(out, v.Items()...)
	}
	return out, nil
}

func itemsToNodeRefs(items []value.Value) []value.NodeRef {
	var out []value.NodeRef
	for _, it := range items {
		out = append(out, it.Nodes()...)
	}
	return out
}

func axisAnyNode(n xmlmodel.Node) bool { return true }

func rootContextValue(ctx *Context) value.Value {
	if ctx.Document == nil {
		return value.Empty()
	}
	return value.NodeSet([]value.NodeRef{ctx.Axis.ToRef(ctx.Document.Root())})
}

func toRefs(ctx *Context, nodes []xmlmodel.Node) []value.NodeRef {
	out := make([]value.NodeRef, len(nodes))
	for i, n := range nodes {
		out[i] = ctx.Axis.ToRef(n)
	}
	return out
}

// evalStepInput evaluates the first path segment, which may itself be an
// arbitrary PrimaryExpr (e.g. a variable bound to a node-set) rather than
// an AxisStep.
func evalStepInput(ctx *Context, n *ast.Node) ([]value.NodeRef, error) {
	v, err := Eval(ctx, n)
	if err != nil {
		return nil, err
	}
	return v.Nodes(), nil
}

func evalOneStep(ctx *Context, step *ast.Node, input []value.NodeRef) ([]value.NodeRef, error) {
	var out []value.NodeRef
	for _, ref := range input {
		n := ctx.findNode(ref)
		if n == nil {
			continue
		}
		matched := evalAxisStepOnNode(ctx, step, n)
		filtered, err := applyPredicates(ctx, step, matched)
		if err != nil {
			return nil, err
		}
		out = append(out, filtered...)
	}
	return out, nil
}

func evalAxisStepOnNode(ctx *Context, step *ast.Node, n xmlmodel.Node) []value.NodeRef {
	if step.Kind != ast.AxisStep || !step.HasAxis {
		if step.Value == "." {
			return []value.NodeRef{ctx.Axis.ToRef(n)}
		}
		return nil
	}
	test := ResolveNodeTest(step.NameExpr)
	matched := ctx.Axis.Evaluate(step.Axis, n, test)
	return toRefs(ctx, matched)
}

// evalAxisStepStandalone handles an AxisStep that is the whole expression
// (no enclosing Path), evaluated against the current context item.
func evalAxisStepStandalone(ctx *Context, n *ast.Node) (value.Value, error) {
	if ctx.ContextItem.Type() != value.TypeNodeSet || len(ctx.ContextItem.Nodes()) == 0 {
		return value.Value{}, xqerr.ErrTypeMismatch.New("axis step requires a node context item")
	}
	var out []value.NodeRef
	for _, ref := range ctx.ContextItem.Nodes() {
		cur := ctx.findNode(ref)
		if cur == nil {
			continue
		}
		matched := evalAxisStepOnNode(ctx, n, cur)
		filtered, err := applyPredicates(ctx, n, matched)
		if err != nil {
			return value.Value{}, err
		}
		out = append(out, filtered...)
	}
	return value.NodeSet(value.NormaliseNodeSet(out)), nil
}

// applyPredicates runs every predicate child of step against the matched
// node set, threading positional $1-based context per spec §4.H.
func applyPredicates(ctx *Context, step *ast.Node, matched []value.NodeRef) ([]value.NodeRef, error) {
	predicates := step.Children
	current := matched
	for _, pred := range predicates {
		var kept []value.NodeRef
		size := int64(len(current))
		for i, ref := range current {
			item := value.NodeSet([]value.NodeRef{ref})
			stepCtx := ctx.WithFocus(item, int64(i+1), size)
			result, err := Eval(stepCtx, pred.Child(0))
			if err != nil {
				return nil, err
			}
			if predicateMatches(result, int64(i+1)) {
				kept = append(kept, ref)
			}
		}
		current = kept
	}
	return current, nil
}

// predicateMatches implements spec §4.F numeric predicate shorthand:
// `[N]` keeps the item at position N; any other value is boolean()-coerced.
func predicateMatches(v value.Value, position int64) bool {
	switch v.Type() {
	case value.TypeInteger, value.TypeDouble, value.TypeDecimal:
		return v.AsNumber(nil, nil) == float64(position)
	default:
		return v.AsBoolean()
	}
}

// --- Unary -----------------------------------------------------------------

func evalUnaryOp(ctx *Context, n *ast.Node) (value.Value, error) {
	operand, err := Eval(ctx, n.Child(0))
	if err != nil {
		return value.Value{}, err
	}
	if n.UnaryKind == ast.UnaryLogicalNot {
		return value.Boolean(!operand.AsBoolean()), nil
	}
	return negate(operand), nil
}

func negate(v value.Value) value.Value {
	switch v.Type() {
	case value.TypeInteger:
		return value.Integer(-int64(v.AsNumber(nil, nil)))
	case value.TypeDecimal:
		return value.Decimal(v.Decimal().Neg())
	default:
		return value.Double(-v.AsNumber(nil, nil))
	}
}

// --- If ----------------------------------------------------------------

func evalIf(ctx *Context, n *ast.Node) (value.Value, error) {
	cond, err := Eval(ctx, n.Child(0))
	if err != nil {
		return value.Value{}, err
	}
	if cond.AsBoolean() {
		return Eval(ctx, n.Child(1))
	}
	return Eval(ctx, n.Child(2))
}

// --- Cast / Castable / TreatAs / InstanceOf -------------------------------

func evalCast(ctx *Context, n *ast.Node) (value.Value, error) {
	operand, err := Eval(ctx, n.Child(0))
	if err != nil {
		return value.Value{}, err
	}
	return castTo(operand, n.SeqType.TypeName, ctx)
}

func evalCastable(ctx *Context, n *ast.Node) (value.Value, error) {
	operand, err := Eval(ctx, n.Child(0))
	if err != nil {
		return value.Value{}, err
	}
	_, castErr := castTo(operand, n.SeqType.TypeName, ctx)
	return value.Boolean(castErr == nil), nil
}

func castTo(v value.Value, typeName string, ctx *Context) (value.Value, error) {
	switch typeName {
	case "xs:string":
		return value.String(v.AsString(ctx.StringValueOf)), nil
	case "xs:boolean":
		return value.Boolean(v.AsBoolean()), nil
	case "xs:integer":
		f := v.AsNumber(ctx.StringValueOf, ctx.NumberOrderOf)
		if math.IsNaN(f) {
			return value.Value{}, xqerr.ErrInvalidCast.New(v.AsString(ctx.StringValueOf), typeName)
		}
		return value.Integer(int64(f)), nil
	case "xs:double":
		f := v.AsNumber(ctx.StringValueOf, ctx.NumberOrderOf)
		return value.Double(f), nil
	case "xs:decimal":
		return value.Decimal(v.Decimal()), nil
	default:
		return value.Value{}, xqerr.ErrInvalidCast.New(v.AsString(ctx.StringValueOf), typeName)
	}
}

func evalTreatAs(ctx *Context, n *ast.Node) (value.Value, error) {
	operand, err := Eval(ctx, n.Child(0))
	if err != nil {
		return value.Value{}, err
	}
	if !matchesSequenceType(operand, n.SeqType) {
		return value.Value{}, xqerr.ErrTypeMismatch.New(fmt.Sprintf("value does not match treat-as type %s", n.SeqType.TypeName))
	}
	return operand, nil
}

func evalInstanceOf(ctx *Context, n *ast.Node) (value.Value, error) {
	operand, err := Eval(ctx, n.Child(0))
	if err != nil {
		return value.Value{}, err
	}
	return value.Boolean(matchesSequenceType(operand, n.SeqType)), nil
}

func matchesSequenceType(v value.Value, st *ast.SequenceType) bool {
	if st.TypeName == "empty-sequence()" {
		return v.IsEmpty()
	}
	items := v.Items()
	switch st.Occurrence {
	case '?':
		if len(items) > 1 {
			return false
		}
	case 0:
		if len(items) != 1 {
			return false
		}
	}
	for _, item := range items {
		if !matchesItemType(item, st.TypeName) {
			return false
		}
	}
	return true
}

func matchesItemType(v value.Value, typeName string) bool {
	switch typeName {
	case "item":
		return true
	case "node":
		return v.Type() == value.TypeNodeSet
	case "xs:string":
		return v.Type() == value.TypeString
	case "xs:boolean":
		return v.Type() == value.TypeBoolean
	case "xs:integer":
		return v.Type() == value.TypeInteger
	case "xs:double":
		return v.Type() == value.TypeDouble
	case "xs:decimal":
		return v.Type() == value.TypeDecimal || v.Type() == value.TypeInteger
	default:
		return true
	}
}
