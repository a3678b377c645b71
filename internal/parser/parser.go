// Package parser implements the recursive-descent parser of spec §4.D: it
// walks the token.Block produced by internal/token and builds an ast.Node
// tree plus a prolog.Prolog, following the documented operator precedence
// chain (Expr > ExprSingle > OrExpr > AndExpr > ComparisonExpr > RangeExpr
// > AdditiveExpr > MultiplicativeExpr > UnionExpr > IntersectExceptExpr >
// InstanceofExpr > TreatExpr > CastableExpr > CastExpr > UnaryExpr >
// ValueExpr > PathExpr > StepExpr > PrimaryExpr).
package parser

import (
	"fmt"

	"github.com/parasol-framework/xquery/internal/ast"
	"github.com/parasol-framework/xquery/internal/prolog"
	"github.com/parasol-framework/xquery/internal/token"
	"github.com/parasol-framework/xquery/internal/xqerr"
)

// Diagnostic is one parse error collected during a best-effort parse (spec
// §7: "accumulate diagnostics, report the first by source position but
// keep parsing where recovery is unambiguous").
type Diagnostic struct {
	Message string
	Offset  int
}

// Result is the parser's output: the expression tree, the prolog gathered
// while parsing it, and any diagnostics accumulated along the way.
type Result struct {
	Expr        *ast.Node
	Prolog      *prolog.Prolog
	Diagnostics []Diagnostic
}

// Parser consumes a token.Block produced by the tokeniser and builds the
// AST. It is not reentrant; construct one per parse.
type Parser struct {
	block  *token.Block
	pos    int
	prolog *prolog.Prolog
	diags  []Diagnostic

	recursionDepth int
	maxRecursion   int
}

// Parse tokenises and parses a complete query unit in one call.
func Parse(source string) *Result {
	block := token.Tokenize(source)
	p := &Parser{block: block, prolog: prolog.New(), maxRecursion: 1024}
	expr := p.parseModule()
	return &Result{Expr: expr, Prolog: p.prolog, Diagnostics: p.diags}
}

// --- token stream helpers -------------------------------------------------

func (p *Parser) cur() token.Token {
	if p.pos < len(p.block.Tokens) {
		return p.block.Tokens[p.pos]
	}
	return token.Token{Type: token.EndOfInput}
}

func (p *Parser) curType() token.Type { return p.cur().Type }

func (p *Parser) peekType(offset int) token.Type {
	idx := p.pos + offset
	if idx < len(p.block.Tokens) {
		return p.block.Tokens[idx].Type
	}
	return token.EndOfInput
}

func (p *Parser) advance() token.Token {
	t := p.cur()
	if p.pos < len(p.block.Tokens) {
		p.pos++
	}
	return t
}

func (p *Parser) check(tt token.Type) bool { return p.curType() == tt }

func (p *Parser) accept(tt token.Type) (token.Token, bool) {
	if p.check(tt) {
		return p.advance(), true
	}
	return token.Token{}, false
}

func (p *Parser) expect(tt token.Type, context string) token.Token {
	if p.check(tt) {
		return p.advance()
	}
	p.errorf("expected token in %s, found %q", context, p.cur().Text)
	return token.Token{}
}

func (p *Parser) errorf(format string, args ...interface{}) {
	p.diags = append(p.diags, Diagnostic{Message: fmt.Sprintf(format, args...), Offset: p.cur().SourceOffset})
}

// enterRecursion guards every ExprSingle-level recursive call against
// pathological nesting depth, mirroring the XPST0083 guard the evaluator
// applies at runtime (spec §4.H); a parser needs the same guard since deep
// parenthesis nesting recurses before any evaluation happens.
func (p *Parser) enterRecursion() bool {
	p.recursionDepth++
	if p.recursionDepth > p.maxRecursion {
		p.errorf("expression nesting exceeds limit of %d", p.maxRecursion)
		return false
	}
	return true
}

func (p *Parser) exitRecursion() { p.recursionDepth-- }

// --- module / prolog -------------------------------------------------------

func (p *Parser) parseModule() *ast.Node {
	if p.check(token.Module) {
		p.parseModuleDecl()
	}
	p.parseProlog()
	p.prolog.MarkBodyParsingStarted()
	if err := p.prolog.ValidateLibraryExports(); err != nil {
		p.errorf("%s", err.Error())
	}
	if p.prolog.IsLibraryModule {
		return nil // library modules have no body expression
	}
	return p.parseExpr()
}

func (p *Parser) parseModuleDecl() {
	p.advance() // 'module'
	p.expect(token.Namespace, "module declaration")
	prefix := p.expect(token.Identifier, "module declaration").Text
	p.expect(token.Assign, "module declaration")
	uri := p.expect(token.String, "module declaration").Text
	p.expect(token.Semicolon, "module declaration")
	p.prolog.IsLibraryModule = true
	p.prolog.ModuleNamespaceURI = uri
	if err := p.prolog.DeclareNamespace(prefix, uri); err != nil {
		p.errorf("%s", err.Error())
	}
}

func (p *Parser) parseProlog() {
	for p.check(token.Declare) || p.check(token.Import) {
		switch {
		case p.check(token.Declare):
			p.parseDeclaration()
		case p.check(token.Import):
			p.parseImport()
		}
	}
}

func (p *Parser) parseDeclaration() {
	p.advance() // 'declare'
	switch p.curType() {
	case token.Namespace:
		p.advance()
		prefix := p.expect(token.Identifier, "namespace declaration").Text
		p.expect(token.Assign, "namespace declaration")
		uri := p.expect(token.String, "namespace declaration").Text
		if err := p.prolog.DeclareNamespace(prefix, uri); err != nil {
			p.errorf("%s", err.Error())
		}
	case token.Default:
		p.advance()
		switch p.curType() {
		case token.Function, token.Identifier:
			kind := p.advance().Text // "function" (promoted keyword) or "element"/"attribute"
			p.expect(token.Namespace, "default namespace declaration")
			uri := p.expect(token.String, "default namespace declaration").Text
			if kind == "function" {
				p.prolog.DefaultFunctionNamespace = uri
			} else {
				p.prolog.DefaultElementNamespace = uri
			}
		case token.Collation:
			p.advance()
			p.prolog.Collation = p.expect(token.String, "default collation declaration").Text
		case token.Order:
			p.advance()
			p.expect(token.Empty, "default order declaration")
			switch p.advance().Text {
			case "greatest":
				p.prolog.EmptyOrder = "greatest"
			default:
				p.prolog.EmptyOrder = "least"
			}
		}
	case token.BoundarySpace:
		p.advance()
		p.prolog.BoundarySpace = p.advance().Text
	case token.BaseURI:
		p.advance()
		p.prolog.BaseURI = p.expect(token.String, "base-uri declaration").Text
	case token.Construction:
		p.advance()
		p.prolog.Construction = p.advance().Text
	case token.Ordering:
		p.advance()
		p.prolog.Ordering = p.advance().Text
	case token.CopyNamespaces:
		p.advance()
		preserve := p.advance().Text
		p.expect(token.Comma, "copy-namespaces declaration")
		inherit := p.advance().Text
		p.prolog.CopyNamespaces = preserve + "," + inherit
	case token.DecimalFormat:
		p.advance()
		name := ""
		if p.check(token.Identifier) {
			name = p.advance().Text
		}
		df := prolog.DefaultDecimalFormat()
		df.Name = name
		for p.check(token.Identifier) {
			p.advance() // property name, e.g. decimal-separator
			p.expect(token.Assign, "decimal-format declaration")
			p.expect(token.String, "decimal-format declaration")
		}
		p.prolog.DecimalFormats[name] = df
	case token.Option:
		p.advance()
		name := p.parseQName()
		val := p.expect(token.String, "option declaration").Text
		p.prolog.Options[name] = val
	case token.Variable:
		p.parseVariableDecl()
	case token.Function:
		p.parseFunctionDecl()
	default:
		p.errorf("unsupported prolog declaration")
	}
	p.expect(token.Semicolon, "prolog declaration")
}

func (p *Parser) parseImport() {
	p.advance() // 'import'
	p.expect(token.Module, "module import")
	p.expect(token.Namespace, "module import")
	prefix := ""
	if p.check(token.Identifier) && p.peekType(1) == token.Assign {
		prefix = p.advance().Text
		p.advance() // :=
	}
	uri := p.expect(token.String, "module import").Text
	var hints []string
	if _, ok := p.accept(token.At); ok {
		hints = append(hints, p.expect(token.String, "module import").Text)
		for {
			if _, ok := p.accept(token.Comma); !ok {
				break
			}
			hints = append(hints, p.expect(token.String, "module import").Text)
		}
	}
	if prefix != "" {
		if err := p.prolog.DeclareNamespace(prefix, uri); err != nil {
			p.errorf("%s", err.Error())
		}
	}
	if err := p.prolog.DeclareModuleImport(&prolog.ModuleImport{TargetNamespace: uri, LocationHints: hints}); err != nil {
		p.errorf("%s", err.Error())
	}
	p.expect(token.Semicolon, "module import")
}

func (p *Parser) parseVariableDecl() {
	p.advance() // 'variable'
	p.expect(token.Dollar, "variable declaration")
	name := p.parseQName()
	if _, ok := p.accept(token.As); ok {
		p.parseSequenceType()
	}
	v := &prolog.Variable{QName: name}
	if p.check(token.Assign) {
		p.advance()
		v.Initializer = p.parseExprSingle()
	} else {
		p.expect(token.External, "variable declaration")
		v.IsExternal = true
	}
	if err := p.prolog.DeclareVariable(v); err != nil {
		p.errorf("%s", err.Error())
	}
}

func (p *Parser) parseFunctionDecl() {
	p.advance() // 'function'
	name := p.parseQName()
	p.expect(token.LParen, "function declaration")
	var paramNames, paramTypes []string
	for !p.check(token.RParen) && !p.check(token.EndOfInput) {
		p.expect(token.Dollar, "function parameter")
		paramNames = append(paramNames, p.parseQName())
		typeName := ""
		if _, ok := p.accept(token.As); ok {
			typeName = p.parseSequenceType().TypeName
		}
		paramTypes = append(paramTypes, typeName)
		if _, ok := p.accept(token.Comma); !ok {
			break
		}
	}
	p.expect(token.RParen, "function declaration")
	returnType := ""
	if _, ok := p.accept(token.As); ok {
		returnType = p.parseSequenceType().TypeName
	}
	f := &prolog.Function{QName: name, Arity: len(paramNames), ParameterNames: paramNames, ParameterTypes: paramTypes, ReturnType: returnType}
	if p.check(token.External) {
		p.advance()
		f.IsExternal = true
	} else {
		p.expect(token.LBrace, "function body")
		f.Body = p.parseExpr()
		p.expect(token.RBrace, "function body")
	}
	if err := p.prolog.DeclareFunction(f); err != nil {
		p.errorf("%s", err.Error())
	}
}

func (p *Parser) parseQName() string {
	first := p.expect(token.Identifier, "name").Text
	if _, ok := p.accept(token.Colon); ok {
		second := p.expect(token.Identifier, "name").Text
		return first + ":" + second
	}
	return first
}

// --- Expr / ExprSingle -----------------------------------------------------

// parseExpr handles the comma operator: Expr ::= ExprSingle ("," ExprSingle)*
func (p *Parser) parseExpr() *ast.Node {
	first := p.parseExprSingle()
	if !p.check(token.Comma) {
		return first
	}
	n := ast.New(ast.Sequence, ",")
	n.AddChild(first)
	for {
		if _, ok := p.accept(token.Comma); !ok {
			break
		}
		n.AddChild(p.parseExprSingle())
	}
	return n
}

func (p *Parser) parseExprSingle() *ast.Node {
	if !p.enterRecursion() {
		return ast.New(ast.Unknown, "")
	}
	defer p.exitRecursion()

	switch p.curType() {
	case token.For, token.Let:
		return p.parseFLWOR()
	case token.Some, token.Every:
		return p.parseQuantified()
	case token.If:
		return p.parseIf()
	case token.Typeswitch:
		return p.parseTypeswitch()
	default:
		return p.parseOrExpr()
	}
}

// --- FLWOR ------------------------------------------------------------------

func (p *Parser) parseFLWOR() *ast.Node {
	n := ast.New(ast.FLWOR, "")
	for p.check(token.For) || p.check(token.Let) {
		if p.check(token.For) {
			n.AddChild(p.parseForClause())
		} else {
			n.AddChild(p.parseLetClause())
		}
	}
	if p.check(token.Where) {
		p.advance()
		w := ast.New(ast.Where, "")
		w.AddChild(p.parseExprSingle())
		n.AddChild(w)
	}
	if p.check(token.Group) {
		n.AddChild(p.parseGroupBy())
	}
	if p.check(token.Order) || (p.check(token.Stable) && p.peekType(1) == token.Order) {
		n.AddChild(p.parseOrderBy())
	}
	if p.check(token.Count) {
		p.advance()
		p.expect(token.Dollar, "count clause")
		c := ast.New(ast.CountClause, p.parseQName())
		n.AddChild(c)
	}
	p.expect(token.Return, "FLWOR expression")
	ret := ast.New(ast.Return, "")
	ret.AddChild(p.parseExprSingle())
	n.AddChild(ret)
	return n
}

func (p *Parser) parseForClause() *ast.Node {
	p.advance() // 'for'
	clause := ast.New(ast.For, "")
	for {
		p.expect(token.Dollar, "for clause")
		binding := ast.New(ast.VarRef, p.parseQName())
		if _, ok := p.accept(token.As); ok {
			p.parseSequenceType()
		}
		allowingEmpty := false
		if p.check(token.Identifier) && p.cur().Text == "allowing" {
			p.advance()
			p.expect(token.Empty, "for clause")
			allowingEmpty = true
		}
		if p.check(token.Identifier) && p.cur().Text == "at" {
			p.advance()
			p.expect(token.Dollar, "for clause positional variable")
			binding.PositionVarName = p.parseQName()
		}
		p.expect(token.In, "for clause")
		source := p.parseExprSingle()
		binding.AddChild(source)
		binding.AllowingEmpty = allowingEmpty
		clause.AddChild(binding)
		if _, ok := p.accept(token.Comma); !ok {
			break
		}
	}
	return clause
}

func (p *Parser) parseLetClause() *ast.Node {
	p.advance() // 'let'
	clause := ast.New(ast.Let, "")
	for {
		p.expect(token.Dollar, "let clause")
		binding := ast.New(ast.VarRef, p.parseQName())
		if _, ok := p.accept(token.As); ok {
			p.parseSequenceType()
		}
		p.expect(token.Assign, "let clause")
		binding.AddChild(p.parseExprSingle())
		clause.AddChild(binding)
		if _, ok := p.accept(token.Comma); !ok {
			break
		}
	}
	return clause
}

func (p *Parser) parseGroupBy() *ast.Node {
	p.advance() // 'group'
	p.expect(token.By, "group by clause")
	n := ast.New(ast.GroupBy, "")
	for {
		p.expect(token.Dollar, "group by clause")
		name := p.parseQName()
		key := ast.New(ast.VarRef, name)
		key.GroupKey = &ast.GroupKeyInfo{VariableName: name}
		n.AddChild(key)
		if _, ok := p.accept(token.Comma); !ok {
			break
		}
	}
	return n
}

func (p *Parser) parseOrderBy() *ast.Node {
	stable := false
	if _, ok := p.accept(token.Stable); ok {
		stable = true
	}
	p.expect(token.Order, "order by clause")
	p.expect(token.By, "order by clause")
	n := ast.New(ast.OrderBy, "")
	n.OrderStable = stable
	for {
		spec := p.parseExprSingle()
		opts := &ast.OrderSpecOptions{EmptyGreatest: true}
		if p.check(token.Ascending) {
			p.advance()
		} else if _, ok := p.accept(token.Descending); ok {
			opts.Descending = true
		}
		if _, ok := p.accept(token.Empty); ok {
			switch p.advance().Text {
			case "greatest":
				opts.EmptyGreatest = true
			default:
				opts.EmptyGreatest = false
			}
			opts.HasEmptyMode = true
		}
		if _, ok := p.accept(token.Collation); ok {
			opts.CollationURI = p.expect(token.String, "order by clause").Text
		}
		wrapped := ast.New(ast.ExpressionWrapper, "")
		wrapped.OrderOptions = opts
		wrapped.AddChild(spec)
		n.AddChild(wrapped)
		if _, ok := p.accept(token.Comma); !ok {
			break
		}
	}
	return n
}

func (p *Parser) parseQuantified() *ast.Node {
	isEvery := p.check(token.Every)
	p.advance()
	n := ast.New(ast.Quantified, "some")
	if isEvery {
		n.Value = "every"
	}
	for {
		p.expect(token.Dollar, "quantified expression")
		binding := ast.New(ast.VarRef, p.parseQName())
		if _, ok := p.accept(token.As); ok {
			p.parseSequenceType()
		}
		p.expect(token.In, "quantified expression")
		binding.AddChild(p.parseExprSingle())
		n.AddChild(binding)
		if _, ok := p.accept(token.Comma); !ok {
			break
		}
	}
	p.expect(token.Satisfies, "quantified expression")
	n.AddChild(p.parseExprSingle())
	return n
}

func (p *Parser) parseIf() *ast.Node {
	p.advance() // 'if'
	p.expect(token.LParen, "if expression")
	cond := p.parseExpr()
	p.expect(token.RParen, "if expression")
	p.expect(token.Then, "if expression")
	thenExpr := p.parseExprSingle()
	p.expect(token.Else, "if expression")
	elseExpr := p.parseExprSingle()
	n := ast.New(ast.If, "")
	n.AddChild(cond)
	n.AddChild(thenExpr)
	n.AddChild(elseExpr)
	return n
}

func (p *Parser) parseTypeswitch() *ast.Node {
	p.advance() // 'typeswitch'
	p.expect(token.LParen, "typeswitch expression")
	operand := p.parseExpr()
	p.expect(token.RParen, "typeswitch expression")
	n := ast.New(ast.Typeswitch, "")
	n.AddChild(operand)
	for p.check(token.Case) {
		n.AddChild(p.parseTypeswitchCase(false))
	}
	p.expect(token.Default, "typeswitch expression")
	n.AddChild(p.parseTypeswitchCase(true))
	return n
}

func (p *Parser) parseTypeswitchCase(isDefault bool) *ast.Node {
	p.advance() // 'case' or 'default'
	info := &ast.TypeswitchCaseInfo{IsDefault: isDefault}
	if p.check(token.Dollar) {
		p.advance()
		info.VariableName = p.parseQName()
	}
	if !isDefault || p.check(token.As) {
		st := p.parseSequenceType()
		info.SequenceType = st.TypeName
	}
	p.expect(token.Return, "typeswitch case")
	n := ast.New(ast.TypeswitchCase, "")
	n.TypeswitchCase = info
	n.AddChild(p.parseExprSingle())
	return n
}

// --- OrExpr through UnaryExpr precedence chain ------------------------------

func (p *Parser) parseOrExpr() *ast.Node {
	left := p.parseAndExpr()
	for p.check(token.Or) {
		p.advance()
		right := p.parseAndExpr()
		left = binaryNode(ast.OpOr, "or", left, right)
	}
	return left
}

func (p *Parser) parseAndExpr() *ast.Node {
	left := p.parseComparisonExpr()
	for p.check(token.And) {
		p.advance()
		right := p.parseComparisonExpr()
		left = binaryNode(ast.OpAnd, "and", left, right)
	}
	return left
}

var generalCompare = map[token.Type]ast.BinaryOperationKind{
	token.Equals: ast.OpGeneralEQ, token.NotEquals: ast.OpGeneralNE,
	token.LessThan: ast.OpGeneralLT, token.LessEqual: ast.OpGeneralLE,
	token.GreaterThan: ast.OpGeneralGT, token.GreaterEqual: ast.OpGeneralGE,
}

var valueCompare = map[token.Type]ast.BinaryOperationKind{
	token.Eq: ast.OpValueEQ, token.Ne: ast.OpValueNE,
	token.Lt: ast.OpValueLT, token.Le: ast.OpValueLE,
	token.Gt: ast.OpValueGT, token.Ge: ast.OpValueGE,
}

// ComparisonExpr is non-associative: at most one comparison operator per
// expression (spec grammar), so this does not loop like the others.
func (p *Parser) parseComparisonExpr() *ast.Node {
	left := p.parseRangeExpr()
	if kind, ok := generalCompare[p.curType()]; ok {
		op := p.advance().Text
		right := p.parseRangeExpr()
		return binaryNode(kind, op, left, right)
	}
	if kind, ok := valueCompare[p.curType()]; ok {
		op := p.advance().Text
		right := p.parseRangeExpr()
		return binaryNode(kind, op, left, right)
	}
	if p.check(token.Identifier) && (p.cur().Text == "is") {
		p.advance()
		right := p.parseRangeExpr()
		return binaryNode(ast.OpNodeIs, "is", left, right)
	}
	return left
}

func (p *Parser) parseRangeExpr() *ast.Node {
	left := p.parseAdditiveExpr()
	if _, ok := p.accept(token.To); ok {
		right := p.parseAdditiveExpr()
		return binaryNode(ast.OpRange, "to", left, right)
	}
	return left
}

func (p *Parser) parseAdditiveExpr() *ast.Node {
	left := p.parseMultiplicativeExpr()
	for p.check(token.Plus) || p.check(token.Minus) {
		op := p.advance()
		right := p.parseMultiplicativeExpr()
		kind := ast.OpAdd
		if op.Type == token.Minus {
			kind = ast.OpSub
		}
		left = binaryNode(kind, op.Text, left, right)
	}
	return left
}

func (p *Parser) parseMultiplicativeExpr() *ast.Node {
	left := p.parseUnionExpr()
	for p.check(token.Multiply) || p.check(token.Divide) || p.check(token.Modulo) {
		op := p.advance()
		right := p.parseUnionExpr()
		var kind ast.BinaryOperationKind
		switch op.Type {
		case token.Multiply:
			kind = ast.OpMul
		case token.Divide:
			kind = ast.OpDiv
		case token.Modulo:
			kind = ast.OpMod
		}
		left = binaryNode(kind, op.Text, left, right)
	}
	return left
}

func (p *Parser) parseUnionExpr() *ast.Node {
	left := p.parseIntersectExceptExpr()
	for p.check(token.Union) || p.check(token.Pipe) {
		p.advance()
		right := p.parseIntersectExceptExpr()
		left = binaryNode(ast.OpUnion, "union", left, right)
	}
	return left
}

func (p *Parser) parseIntersectExceptExpr() *ast.Node {
	left := p.parseInstanceofExpr()
	for p.check(token.Intersect) || p.check(token.Except) {
		op := p.advance()
		right := p.parseInstanceofExpr()
		kind := ast.OpIntersect
		if op.Type == token.Except {
			kind = ast.OpExcept
		}
		left = binaryNode(kind, op.Text, left, right)
	}
	return left
}

func (p *Parser) parseInstanceofExpr() *ast.Node {
	left := p.parseTreatExpr()
	if p.check(token.Instance) {
		p.advance()
		p.expect(token.Of, "instance of expression")
		st := p.parseSequenceType()
		n := ast.New(ast.InstanceOf, "")
		n.SeqType = st
		n.AddChild(left)
		return n
	}
	return left
}

func (p *Parser) parseTreatExpr() *ast.Node {
	left := p.parseCastableExpr()
	if p.check(token.Treat) {
		p.advance()
		p.expect(token.As, "treat expression")
		st := p.parseSequenceType()
		n := ast.New(ast.TreatAs, "")
		n.SeqType = st
		n.AddChild(left)
		return n
	}
	return left
}

func (p *Parser) parseCastableExpr() *ast.Node {
	left := p.parseCastExpr()
	if p.check(token.Castable) {
		p.advance()
		p.expect(token.As, "castable expression")
		st := p.parseSequenceType()
		n := ast.New(ast.Castable, "")
		n.SeqType = st
		n.AddChild(left)
		return n
	}
	return left
}

func (p *Parser) parseCastExpr() *ast.Node {
	left := p.parseUnaryExpr()
	if p.check(token.Cast) {
		p.advance()
		p.expect(token.As, "cast expression")
		st := p.parseSequenceType()
		n := ast.New(ast.Cast, "")
		n.SeqType = st
		n.AddChild(left)
		return n
	}
	return left
}

func (p *Parser) parseUnaryExpr() *ast.Node {
	if p.check(token.Minus) || p.check(token.Plus) {
		negate := p.check(token.Minus)
		p.advance()
		operand := p.parseUnaryExpr()
		if !negate {
			return operand
		}
		n := ast.New(ast.UnaryOp, "-")
		n.UnaryKind = ast.UnaryNegate
		n.AddChild(operand)
		return n
	}
	return p.parseValueExpr()
}

func (p *Parser) parseValueExpr() *ast.Node {
	return p.parsePathExpr()
}

func binaryNode(kind ast.BinaryOperationKind, op string, left, right *ast.Node) *ast.Node {
	n := ast.New(ast.BinaryOp, op)
	n.BinaryKind = kind
	n.AddChild(left)
	n.AddChild(right)
	return n
}

// --- SequenceType -----------------------------------------------------------

func (p *Parser) parseSequenceType() *ast.SequenceType {
	st := &ast.SequenceType{}
	if p.check(token.Identifier) && p.cur().Text == "empty-sequence" && p.peekType(1) == token.LParen {
		p.advance()
		p.advance()
		p.expect(token.RParen, "empty-sequence type")
		st.TypeName = "empty-sequence()"
		return st
	}
	st.TypeName = p.parseItemType()
	switch p.curType() {
	case token.QuestionMark:
		p.advance()
		st.Occurrence = '?'
	case token.Multiply:
		p.advance()
		st.Occurrence = '*'
	case token.Plus:
		p.advance()
		st.Occurrence = '+'
	}
	return st
}

func (p *Parser) parseItemType() string {
	name := p.parseQName()
	if p.check(token.LParen) {
		p.advance()
		for !p.check(token.RParen) && !p.check(token.EndOfInput) {
			if p.check(token.Identifier) {
				p.advance()
			} else if p.check(token.Comma) {
				p.advance()
			} else {
				break
			}
		}
		p.expect(token.RParen, "item type argument list")
		return name + "()"
	}
	return name
}

// --- PathExpr / StepExpr -----------------------------------------------------

func (p *Parser) parsePathExpr() *ast.Node {
	leadingSlash := false
	doubleSlash := false
	switch {
	case p.check(token.DoubleSlash):
		p.advance()
		doubleSlash = true
	case p.check(token.Slash):
		p.advance()
		leadingSlash = true
	}

	if leadingSlash && !p.startsStep() {
		root := ast.New(ast.Path, "/")
		return root
	}

	path := ast.New(ast.Path, "")
	if leadingSlash {
		path.Value = "/"
	}
	if doubleSlash {
		path.Value = "//"
		step := p.parseStepExpr()
		path.AddChild(step)
	} else {
		path.AddChild(p.parseStepExpr())
	}

	for p.check(token.Slash) || p.check(token.DoubleSlash) {
		sep := p.advance()
		step := p.parseStepExpr()
		if sep.Type == token.DoubleSlash {
			marker := ast.New(ast.AxisStep, "//")
			marker.Axis = ast.AxisDescendantOrSelf
			marker.HasAxis = true
			path.AddChild(marker)
		}
		path.AddChild(step)
	}
	if len(path.Children) == 1 && path.Value == "" {
		return path.Children[0]
	}
	return path
}

func (p *Parser) startsStep() bool {
	switch p.curType() {
	case token.Dot, token.DoubleDot, token.At, token.Identifier, token.Wildcard:
		return true
	default:
		return false
	}
}

func (p *Parser) parseStepExpr() *ast.Node {
	if p.check(token.Dot) {
		p.advance()
		return p.parsePredicates(ast.New(ast.AxisStep, "."))
	}
	if p.check(token.DoubleDot) {
		p.advance()
		n := ast.New(ast.AxisStep, "..")
		n.Axis = ast.AxisParent
		n.HasAxis = true
		return p.parsePredicates(n)
	}
	if p.check(token.Identifier) && p.peekType(1) == token.LParen && !isKindTestName(p.cur().Text) {
		// A bare identifier immediately followed by `(` is a function call
		// used as a path step (e.g. `/@price/string()`), not a name test.
		return p.parsePrimaryExprWithPredicates()
	}
	if p.check(token.Identifier) {
		next := p.peekType(1)
		switch p.cur().Text {
		case "text", "comment", "document", "processing-instruction":
			if next == token.LBrace {
				n, _ := p.tryComputedConstructor(p.cur().Text)
				return n
			}
		case "element", "attribute":
			if next == token.LBrace || next == token.Identifier {
				n, _ := p.tryComputedConstructor(p.cur().Text)
				return n
			}
		}
	}
	if p.check(token.At) || p.check(token.Identifier) || p.check(token.Wildcard) {
		return p.parseAxisStep()
	}
	return p.parsePrimaryExprWithPredicates()
}

func (p *Parser) parseAxisStep() *ast.Node {
	n := ast.New(ast.AxisStep, "")
	n.Axis = ast.AxisChild
	n.HasAxis = true

	if p.check(token.At) {
		p.advance()
		n.Axis = ast.AxisAttribute
	} else if p.check(token.Identifier) && p.peekType(1) == token.AxisSeparator {
		axisName := p.advance().Text
		p.advance() // ::
		n.Axis = axisFromName(axisName)
	}

	n.NameExpr = p.parseNodeTest()
	return p.parsePredicates(n)
}

func axisFromName(name string) ast.AxisType {
	switch name {
	case "child":
		return ast.AxisChild
	case "descendant":
		return ast.AxisDescendant
	case "descendant-or-self":
		return ast.AxisDescendantOrSelf
	case "parent":
		return ast.AxisParent
	case "ancestor":
		return ast.AxisAncestor
	case "ancestor-or-self":
		return ast.AxisAncestorOrSelf
	case "following-sibling":
		return ast.AxisFollowingSibling
	case "preceding-sibling":
		return ast.AxisPrecedingSibling
	case "following":
		return ast.AxisFollowing
	case "preceding":
		return ast.AxisPreceding
	case "attribute":
		return ast.AxisAttribute
	case "namespace":
		return ast.AxisNamespace
	case "self":
		return ast.AxisSelf
	default:
		return ast.AxisChild
	}
}

func (p *Parser) parseNodeTest() *ast.Node {
	if p.check(token.Wildcard) {
		p.advance()
		return ast.New(ast.NodeTest, "*")
	}
	if p.check(token.Identifier) && isKindTestName(p.cur().Text) && p.peekType(1) == token.LParen {
		return p.parseKindTest()
	}
	name := p.advance().Text
	if _, ok := p.accept(token.Colon); ok {
		if p.check(token.Wildcard) {
			p.advance()
			return ast.New(ast.NodeTest, name+":*")
		}
		local := p.advance().Text
		return ast.New(ast.NodeTest, name+":"+local)
	}
	return ast.New(ast.NodeTest, name)
}

func isKindTestName(name string) bool {
	switch name {
	case "node", "text", "comment", "processing-instruction", "document-node", "element", "attribute", "schema-element", "schema-attribute":
		return true
	default:
		return false
	}
}

func (p *Parser) parseKindTest() *ast.Node {
	name := p.advance().Text
	p.expect(token.LParen, "kind test")
	n := ast.New(ast.KindTest, name)
	if name == "processing-instruction" && p.check(token.Identifier) {
		n.Value = name + ":" + p.advance().Text
	} else if name == "element" && p.check(token.Identifier) {
		n.Value = name + ":" + p.advance().Text
		if _, ok := p.accept(token.Comma); ok {
			p.advance() // type annotation name
		}
	}
	p.expect(token.RParen, "kind test")
	return n
}

func (p *Parser) parsePredicates(n *ast.Node) *ast.Node {
	for p.check(token.LBracket) {
		p.advance()
		if pred, ok := p.tryParseContentMatchPredicate(); ok {
			n.AddChild(pred)
			continue
		}
		pred := ast.New(ast.Unknown, "predicate")
		pred.AddChild(p.parseExpr())
		p.expect(token.RBracket, "predicate")
		n.AddChild(pred)
	}
	return n
}

// parsePrimaryExprWithPredicates handles FilterExpr: a PrimaryExpr followed
// by zero or more predicates, e.g. (1 to 5)[. > 2] or $seq[1].
func (p *Parser) parsePrimaryExprWithPredicates() *ast.Node {
	n := p.parsePrimaryExpr()
	for p.check(token.LBracket) {
		p.advance()
		if pred, ok := p.tryParseContentMatchPredicate(); ok {
			n.AddChild(pred)
			continue
		}
		pred := ast.New(ast.Unknown, "predicate")
		pred.AddChild(p.parseExpr())
		p.expect(token.RBracket, "predicate")
		n.AddChild(pred)
	}
	for p.check(token.Lookup) {
		n = p.parseLookup(n)
	}
	return n
}

// tryParseContentMatchPredicate recognises the Parasol extension
// `[=literal]` (e.g. `/menu[=contentmatch]`): a predicate testing whether
// the context node's string-value contains the given literal. It is
// indistinguishable from a general-comparison predicate only in its first
// token, `=` with no left-hand operand, which standard XPath never
// produces (a predicate always needs an operand before a comparison
// operator), so peeking for a bare leading `=` is unambiguous. Desugars to
// `fn:contains(fn:string(.), literal)` so the rest of the evaluator needs
// no special case.
func (p *Parser) tryParseContentMatchPredicate() (*ast.Node, bool) {
	if !p.check(token.Equals) {
		return nil, false
	}
	p.advance() // '='
	literal := p.advance().Text
	p.expect(token.RBracket, "content-match predicate")

	strCall := ast.New(ast.FunctionCall, "fn:string")
	strCall.AddChild(ast.New(ast.ContextItem, "."))

	call := ast.New(ast.FunctionCall, "fn:contains")
	call.AddChild(strCall)
	call.AddChild(ast.New(ast.Literal, literal))

	pred := ast.New(ast.Unknown, "content-match-predicate")
	pred.AddChild(call)
	return pred, true
}

func (p *Parser) parseLookup(base *ast.Node) *ast.Node {
	p.advance() // '?'
	n := ast.New(ast.Lookup, "")
	n.AddChild(base)
	spec := ast.LookupSpecifier{}
	switch {
	case p.check(token.Wildcard):
		p.advance()
		spec.Kind = ast.LookupWildcard
	case p.check(token.Number):
		spec.Kind = ast.LookupInteger
		spec.Literal = p.advance().Text
	case p.check(token.LParen):
		p.advance()
		spec.Kind = ast.LookupExpression
		spec.Expression = p.parseExpr()
		p.expect(token.RParen, "lookup expression")
	case p.check(token.Identifier):
		spec.Kind = ast.LookupNCName
		spec.Literal = p.advance().Text
	}
	n.LookupSpecs = append(n.LookupSpecs, spec)
	return n
}

// --- PrimaryExpr -------------------------------------------------------------

func (p *Parser) parsePrimaryExpr() *ast.Node {
	switch p.curType() {
	case token.String:
		t := p.advance()
		return ast.New(ast.Literal, t.Text)
	case token.Number:
		t := p.advance()
		return ast.New(ast.NumberLiteral, t.Text)
	case token.Dollar:
		p.advance()
		return ast.New(ast.VarRef, p.parseQName())
	case token.LParen:
		p.advance()
		if p.check(token.RParen) {
			p.advance()
			return ast.New(ast.EmptySequence, "")
		}
		inner := p.parseExpr()
		p.expect(token.RParen, "parenthesized expression")
		return inner
	case token.Dot:
		p.advance()
		return ast.New(ast.ContextItem, ".")
	case token.Map:
		return p.parseMapConstructor()
	case token.Array:
		return p.parseArrayConstructorCurly()
	case token.LBracket:
		return p.parseArrayConstructorSquare()
	case token.TagOpen:
		return p.parseDirectElementConstructor()
	case token.Identifier:
		if p.peekType(1) == token.LParen {
			return p.parseFunctionCallOrConstructor()
		}
		return ast.New(ast.VarRef, p.parseQName()) // bare name, resolved later (e.g. axis-less reference)
	default:
		p.errorf("unexpected token %q in expression", p.cur().Text)
		p.advance()
		return ast.New(ast.Unknown, "")
	}
}

func (p *Parser) parseFunctionCallOrConstructor() *ast.Node {
	name := p.parseQName()
	switch name {
	case "element", "attribute", "text", "comment", "processing-instruction", "document":
		if kind, ok := p.tryComputedConstructor(name); ok {
			return kind
		}
	}
	p.expect(token.LParen, "function call")
	n := ast.New(ast.FunctionCall, name)
	for !p.check(token.RParen) && !p.check(token.EndOfInput) {
		n.AddChild(p.parseExprSingle())
		if _, ok := p.accept(token.Comma); !ok {
			break
		}
	}
	p.expect(token.RParen, "function call")
	return n
}

func (p *Parser) tryComputedConstructor(name string) (*ast.Node, bool) {
	switch name {
	case "text":
		p.advance()
		p.expect(token.LBrace, "computed text constructor")
		n := ast.New(ast.ComputedTextConstructor, "")
		n.AddChild(p.parseExpr())
		p.expect(token.RBrace, "computed text constructor")
		return n, true
	case "comment":
		p.advance()
		p.expect(token.LBrace, "computed comment constructor")
		n := ast.New(ast.ComputedCommentConstructor, "")
		n.AddChild(p.parseExpr())
		p.expect(token.RBrace, "computed comment constructor")
		return n, true
	case "document":
		p.advance()
		p.expect(token.LBrace, "computed document constructor")
		n := ast.New(ast.ComputedDocumentConstructor, "")
		n.AddChild(p.parseExpr())
		p.expect(token.RBrace, "computed document constructor")
		return n, true
	case "processing-instruction":
		p.advance()
		p.expect(token.LBrace, "computed PI constructor")
		target := p.parseExpr()
		p.expect(token.RBrace, "computed PI constructor")
		p.expect(token.LBrace, "computed PI constructor")
		content := p.parseExpr()
		p.expect(token.RBrace, "computed PI constructor")
		n := ast.New(ast.ComputedPIConstructor, "")
		n.NameExpr = target
		n.AddChild(content)
		return n, true
	case "element":
		p.advance()
		nameExpr := p.parseConstructorNameOrExpr()
		p.expect(token.LBrace, "computed element constructor")
		n := ast.New(ast.ComputedElementConstructor, "")
		n.NameExpr = nameExpr
		n.Constructor = &ast.ConstructorInfo{}
		if !p.check(token.RBrace) {
			n.AddChild(p.parseExpr())
		}
		p.expect(token.RBrace, "computed element constructor")
		return n, true
	case "attribute":
		p.advance()
		nameExpr := p.parseConstructorNameOrExpr()
		p.expect(token.LBrace, "computed attribute constructor")
		n := ast.New(ast.ComputedAttributeConstructor, "")
		n.NameExpr = nameExpr
		if !p.check(token.RBrace) {
			n.AddChild(p.parseExpr())
		}
		p.expect(token.RBrace, "computed attribute constructor")
		return n, true
	}
	return nil, false
}

func (p *Parser) parseConstructorNameOrExpr() *ast.Node {
	if p.check(token.LBrace) {
		p.advance()
		n := p.parseExpr()
		p.expect(token.RBrace, "computed constructor name expression")
		return n
	}
	return ast.New(ast.Literal, p.parseQName())
}

// --- map / array constructors ------------------------------------------------

func (p *Parser) parseMapConstructor() *ast.Node {
	p.advance() // 'map'
	p.expect(token.LBrace, "map constructor")
	n := ast.New(ast.MapConstructor, "")
	for !p.check(token.RBrace) && !p.check(token.EndOfInput) {
		key := p.parseExprSingle()
		p.expect(token.Colon, "map constructor entry")
		val := p.parseExprSingle()
		n.MapEntries = append(n.MapEntries, ast.MapEntry{Key: key, Value: val})
		if _, ok := p.accept(token.Comma); !ok {
			break
		}
	}
	p.expect(token.RBrace, "map constructor")
	return n
}

func (p *Parser) parseArrayConstructorCurly() *ast.Node {
	p.advance() // 'array'
	p.expect(token.LBrace, "array constructor")
	n := ast.New(ast.ArrayConstructorCurly, "")
	if !p.check(token.RBrace) {
		n.AddChild(p.parseExpr())
	}
	p.expect(token.RBrace, "array constructor")
	return n
}

func (p *Parser) parseArrayConstructorSquare() *ast.Node {
	p.advance() // '['
	n := ast.New(ast.ArrayConstructorSquare, "")
	for !p.check(token.RBracket) && !p.check(token.EndOfInput) {
		n.ArrayMembers = append(n.ArrayMembers, p.parseExprSingle())
		if _, ok := p.accept(token.Comma); !ok {
			break
		}
	}
	p.expect(token.RBracket, "array constructor")
	return n
}

// --- direct constructors ------------------------------------------------------

func (p *Parser) parseDirectElementConstructor() *ast.Node {
	p.advance() // '<'
	prefix, local := p.parseDirectName()
	n := ast.New(ast.DirectElementConstructor, "")
	info := &ast.ConstructorInfo{Prefix: prefix, Name: local, IsDirect: true}

	for p.check(token.Identifier) {
		attrPrefix, attrLocal := p.parseDirectName()
		t := p.expect(token.String, "attribute value")
		attr := ast.ConstructorAttribute{Prefix: attrPrefix, Name: attrLocal}
		if attrPrefix == "xmlns" || (attrPrefix == "" && attrLocal == "xmlns") {
			attr.IsNamespaceDecl = true
		}
		if t.IsAttrValue {
			for _, part := range t.AttrValueParts {
				attr.LiteralParts = append(attr.LiteralParts, part.Text)
				attr.IsExpressionPart = append(attr.IsExpressionPart, part.IsExpression)
				if part.IsExpression {
					sub := Parse(part.Text)
					attr.ExpressionParts = append(attr.ExpressionParts, sub.Expr)
				} else {
					attr.ExpressionParts = append(attr.ExpressionParts, nil)
				}
			}
		} else {
			attr.LiteralParts = []string{t.Text}
			attr.IsExpressionPart = []bool{false}
			attr.ExpressionParts = []*ast.Node{nil}
		}
		info.Attributes = append(info.Attributes, attr)
	}

	if _, ok := p.accept(token.EmptyTagClose); ok {
		info.IsEmpty = true
		n.Constructor = info
		return n
	}
	p.expect(token.TagClose, "element constructor")

	for !p.check(token.CloseTagOpen) && !p.check(token.EndOfInput) {
		n.AddChild(p.parseDirectConstructorContent())
	}
	p.expect(token.CloseTagOpen, "element constructor closing tag")
	p.parseDirectName()
	p.expect(token.TagClose, "element constructor closing tag")

	n.Constructor = info
	return n
}

func (p *Parser) parseDirectConstructorContent() *ast.Node {
	switch p.curType() {
	case token.TextContent:
		t := p.advance()
		return ast.New(ast.Literal, t.Text)
	case token.LBrace:
		p.advance()
		inner := p.parseExpr()
		p.expect(token.RBrace, "constructor content expression")
		wrapper := ast.New(ast.ExpressionWrapper, "")
		wrapper.AddChild(inner)
		return wrapper
	case token.TagOpen:
		return p.parseDirectElementConstructor()
	default:
		p.errorf("unexpected token %q in element content", p.cur().Text)
		p.advance()
		return ast.New(ast.Unknown, "")
	}
}

func (p *Parser) parseDirectName() (prefix, local string) {
	first := p.advance().Text
	if _, ok := p.accept(token.Colon); ok {
		second := p.advance().Text
		return first, second
	}
	return "", first
}

// --- errors --------------------------------------------------------------

// wrapErr converts one accumulated Diagnostic into an
// xqerr.ErrUnexpectedToken error.
func wrapErr(d Diagnostic) error {
	return xqerr.ErrUnexpectedToken.New(d.Message, d.Offset)
}
