package eval

import (
	"sort"

	"github.com/parasol-framework/xquery/internal/ast"
	"github.com/parasol-framework/xquery/internal/value"
)

// tuple is one row of the FLWOR evaluation's binding table: a snapshot of
// every for/let/group variable bound so far for one combination of
// for-clause values (spec §4.H "FLWOR engine").
type tuple struct {
	ctx *Context
}

// evalFLWOR walks the FLWOR's clause children in order, threading a set of
// tuples through for/let/where/group-by/order-by/count, then evaluating
// the trailing return clause once per surviving tuple.
func evalFLWOR(ctx *Context, n *ast.Node) (value.Value, error) {
	tuples := []tuple{{ctx: ctx}}
	var returnClause *ast.Node

	for _, clause := range n.Children {
		var err error
		switch clause.Kind {
		case ast.For:
			tuples, err = applyForClause(tuples, clause)
		case ast.Let:
			tuples, err = applyLetClause(tuples, clause)
		case ast.Where:
			tuples, err = applyWhereClause(tuples, clause)
		case ast.GroupBy:
			tuples, err = applyGroupByClause(tuples, clause, len(ctx.bindings))
		case ast.OrderBy:
			tuples, err = applyOrderByClause(tuples, clause)
		case ast.CountClause:
			tuples = applyCountClause(tuples, clause)
		case ast.Return:
			returnClause = clause
		}
		if err != nil {
			return value.Value{}, err
		}
	}

	var results []value.Value
	for _, t := range tuples {
		v, err := Eval(t.ctx, returnClause.Child(0))
		if err != nil {
			return value.Value{}, err
		}
		results = append(results, v.Items()...)
	}
	return value.Sequence(results), nil
}

func applyForClause(tuples []tuple, clause *ast.Node) ([]tuple, error) {
	var out []tuple
	for _, t := range tuples {
		for _, binding := range clause.Children {
			source, err := Eval(t.ctx, binding.Child(0))
			if err != nil {
				return nil, err
			}
			items := source.Items()
			if len(items) == 0 && binding.AllowingEmpty {
				items = []value.Value{value.Empty()}
			}
			for i, item := range items {
				child := t.ctx.WithVariable(binding.Value, item)
				if binding.PositionVarName != "" {
					child = child.WithVariable(binding.PositionVarName, value.Integer(int64(i+1)))
				}
				out = append(out, tuple{ctx: child})
			}
		}
	}
	return out, nil
}

func applyLetClause(tuples []tuple, clause *ast.Node) ([]tuple, error) {
	var out []tuple
	for _, t := range tuples {
		cur := t.ctx
		for _, binding := range clause.Children {
			v, err := Eval(cur, binding.Child(0))
			if err != nil {
				return nil, err
			}
			cur = cur.WithVariable(binding.Value, v)
		}
		out = append(out, tuple{ctx: cur})
	}
	return out, nil
}

func applyWhereClause(tuples []tuple, clause *ast.Node) ([]tuple, error) {
	var out []tuple
	for _, t := range tuples {
		v, err := Eval(t.ctx, clause.Child(0))
		if err != nil {
			return nil, err
		}
		if v.AsBoolean() {
			out = append(out, t)
		}
	}
	return out, nil
}

func applyCountClause(tuples []tuple, clause *ast.Node) []tuple {
	out := make([]tuple, len(tuples))
	for i, t := range tuples {
		out[i] = tuple{ctx: t.ctx.WithVariable(clause.Value, value.Integer(int64(i+1)))}
	}
	return out
}

// applyGroupByClause partitions tuples by the equality of their named
// group-key variables, binding each surviving group-key variable to the
// single representative value and every other for/let variable to the
// sequence of its per-member values, per spec §4.H group-by semantics.
func applyGroupByClause(tuples []tuple, clause *ast.Node, outer int) ([]tuple, error) {
	type group struct {
		keyVals []value.Value
		members []tuple
	}
	var groups []*group
	index := make(map[string]*group)

	for _, t := range tuples {
		var keyVals []value.Value
		keyStr := ""
		for _, keyNode := range clause.Children {
			v, ok := t.ctx.LookupVariable(keyNode.GroupKey.VariableName)
			if !ok {
				v = value.Empty()
			}
			keyVals = append(keyVals, v)
			keyStr += v.AsString(nil) + "\x00"
		}
		g, exists := index[keyStr]
		if !exists {
			g = &group{keyVals: keyVals}
			index[keyStr] = g
			groups = append(groups, g)
		}
		g.members = append(g.members, t)
	}

	isKey := make(map[string]bool)
	for _, keyNode := range clause.Children {
		isKey[keyNode.GroupKey.VariableName] = true
	}
	var out []tuple
	for _, g := range groups {
		base := g.members[0].ctx
		for _, b := range base.bindings[outer:] {
			if isKey[b.name] {
				continue
			}
			var items []value.Value
			for _, m := range g.members {
				v, _ := m.ctx.LookupVariable(b.name)
				items = append(items, v.Items()...)
			}
			base = base.WithVariable(b.name, value.Sequence(items))
		}
		for i, keyNode := range clause.Children {
			base = base.WithVariable(keyNode.GroupKey.VariableName, g.keyVals[i])
		}
		out = append(out, tuple{ctx: base})
	}
	return out, nil
}

func applyOrderByClause(tuples []tuple, clause *ast.Node) ([]tuple, error) {
	type keyed struct {
		t    tuple
		keys []value.Value
	}
	rows := make([]keyed, len(tuples))
	for i, t := range tuples {
		var keys []value.Value
		for _, spec := range clause.Children {
			v, err := Eval(t.ctx, spec.Child(0))
			if err != nil {
				return nil, err
			}
			keys = append(keys, v)
		}
		rows[i] = keyed{t: t, keys: keys}
	}

	less := func(i, j int) bool {
		for k, spec := range clause.Children {
			cmp := compareOrderKeys(rows[i].keys[k], rows[j].keys[k])
			if spec.OrderOptions != nil && spec.OrderOptions.Descending {
				cmp = -cmp
			}
			if cmp != 0 {
				return cmp < 0
			}
		}
		return false
	}
	if clause.OrderStable {
		sort.SliceStable(rows, less)
	} else {
		sort.Slice(rows, less)
	}

	out := make([]tuple, len(rows))
	for i, r := range rows {
		out[i] = r.t
	}
	return out, nil
}

func compareOrderKeys(a, b value.Value) int {
	if a.IsEmpty() && b.IsEmpty() {
		return 0
	}
	if a.IsEmpty() {
		return 1 // empty sorts greatest by default (spec §4.E empty-order)
	}
	if b.IsEmpty() {
		return -1
	}
	if isNumeric(a) || isNumeric(b) {
		x, y := a.AsNumber(nil, nil), b.AsNumber(nil, nil)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		default:
			return 0
		}
	}
	x, y := a.AsString(nil), b.AsString(nil)
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

// evalQuantified implements `some`/`every $v in seq satisfies expr`.
func evalQuantified(ctx *Context, n *ast.Node) (value.Value, error) {
	isEvery := n.Value == "every"
	bindings := n.Children[:len(n.Children)-1]
	satisfies := n.Children[len(n.Children)-1]

	var combos []*Context
	combos = append(combos, ctx)
	for _, binding := range bindings {
		var next []*Context
		for _, c := range combos {
			source, err := Eval(c, binding.Child(0))
			if err != nil {
				return value.Value{}, err
			}
			for _, item := range source.Items() {
				next = append(next, c.WithVariable(binding.Value, item))
			}
		}
		combos = next
	}

	for _, c := range combos {
		v, err := Eval(c, satisfies)
		if err != nil {
			return value.Value{}, err
		}
		if isEvery && !v.AsBoolean() {
			return value.Boolean(false), nil
		}
		if !isEvery && v.AsBoolean() {
			return value.Boolean(true), nil
		}
	}
	return value.Boolean(isEvery), nil
}

// evalTypeswitch dispatches to the first matching case clause, binding its
// variable (if any) to the operand, falling back to default.
func evalTypeswitch(ctx *Context, n *ast.Node) (value.Value, error) {
	operand, err := Eval(ctx, n.Child(0))
	if err != nil {
		return value.Value{}, err
	}
	cases := n.Children[1:]
	var defaultCase *ast.Node
	for _, c := range cases {
		info := c.TypeswitchCase
		if info.IsDefault {
			defaultCase = c
			continue
		}
		if matchesTypeswitchType(operand, info.SequenceType) {
			branchCtx := ctx
			if info.VariableName != "" {
				branchCtx = ctx.WithVariable(info.VariableName, operand)
			}
			return Eval(branchCtx, c.Child(0))
		}
	}
	branchCtx := ctx
	if defaultCase.TypeswitchCase.VariableName != "" {
		branchCtx = ctx.WithVariable(defaultCase.TypeswitchCase.VariableName, operand)
	}
	return Eval(branchCtx, defaultCase.Child(0))
}

func matchesTypeswitchType(v value.Value, typeName string) bool {
	return matchesItemType(v, typeName)
}
