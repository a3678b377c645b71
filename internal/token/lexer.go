package token

import "strings"

// Lexer performs the single-pass scan described in spec §4.B. It carries the
// explicit previous_token_type / prior_token_type scanner state called for
// by design note "Context-sensitive keyword tokenisation": do not try to
// resolve by lookahead only.
type Lexer struct {
	input  string
	pos    int
	length int

	block *Block

	bracketDepth   int
	parenDepth     int
	directDepth    int
	insideTag      bool
	pendingClose   bool
	constructorExprDepth int

	previousType Type
	priorType    Type
}

// Tokenize scans a complete query string and returns the resulting Block.
func Tokenize(input string) *Block {
	l := &Lexer{input: input, length: len(input), block: NewBlock()}
	l.previousType, l.priorType = Unknown, Unknown
	l.run()
	return l.block
}

func (l *Lexer) run() {
	for l.pos < l.length {
		inConstructorContent := l.directDepth > 0 && !l.insideTag && l.constructorExprDepth == 0

		if !inConstructorContent {
			l.skipWhitespace()
			if l.pos >= l.length {
				break
			}
		} else if l.pos >= l.length {
			break
		}

		if inConstructorContent {
			c := l.current()
			if c != '<' && c != '{' {
				if l.scanTextContent() {
					continue
				}
			}
		}
		if l.pos >= l.length {
			break
		}

		ch := l.current()

		switch {
		case l.insideTag && ch == '/' && l.peek(1) == '>':
			l.emitFixed(EmptyTagClose, 2)
			l.insideTag, l.pendingClose = false, false
			if l.directDepth > 0 {
				l.directDepth--
			}
		case l.insideTag && ch == '?' && l.peek(1) == '>':
			l.emitFixed(PIEnd, 2)
			l.insideTag, l.pendingClose = false, false
		case l.insideTag && (ch == '\'' || ch == '"'):
			l.scanAttributeValue(ch)
		case l.insideTag && ch == '>':
			l.emitFixed(TagClose, 1)
			l.insideTag = false
			if l.pendingClose && l.directDepth > 0 {
				l.directDepth--
			}
			l.pendingClose = false
		case ch == '{':
			l.emitFixed(LBrace, 1)
			if l.directDepth > 0 && !l.insideTag {
				l.constructorExprDepth++
			}
		case ch == '}':
			l.emitFixed(RBrace, 1)
			if l.directDepth > 0 && !l.insideTag && l.constructorExprDepth > 0 {
				l.constructorExprDepth--
			}
		case ch == '<':
			l.scanLessThan()
		case ch == '*':
			l.scanStarOrWildcard()
		case ch == '"' || ch == '\'':
			l.scanString(ch)
		case isDigit(ch) || (ch == '.' && isDigit(l.peek(1))):
			l.scanNumber()
		case l.match("::"):
			l.emitFixed(AxisSeparator, 2)
		case ch == ':' && l.peek(1) == '=':
			l.emitFixed(Assign, 2)
		case ch == ':':
			l.emitFixed(Colon, 1)
		case isNameStartChar(ch):
			l.scanNameOrKeyword()
		case ch == '$':
			l.emitFixed(Dollar, 1)
		case ch == '@':
			l.emitFixed(At, 1)
		case ch == '?':
			l.scanQuestionMark()
		case ch == '(':
			l.parenDepth++
			l.emitFixed(LParen, 1)
		case ch == ')':
			l.parenDepth--
			l.emitFixed(RParen, 1)
		case ch == '[':
			l.bracketDepth++
			l.emitFixed(LBracket, 1)
		case ch == ']':
			l.bracketDepth--
			l.emitFixed(RBracket, 1)
		case l.match(".."):
			l.emitFixed(DoubleDot, 2)
		case ch == '.':
			l.emitFixed(Dot, 1)
		case l.match("//"):
			l.emitFixed(DoubleSlash, 2)
		case ch == '/':
			l.emitFixed(Slash, 1)
		case ch == '!' && l.peek(1) == '=':
			l.emitFixed(NotEquals, 2)
		case ch == '!':
			l.emitFixed(Unknown, 1)
		case ch == '=':
			l.emitFixed(Equals, 1)
		case ch == '|':
			l.emitFixed(Pipe, 1)
		case ch == ',':
			l.emitFixed(Comma, 1)
		case ch == ';':
			l.emitFixed(Semicolon, 1)
		case ch == '+':
			l.emitFixed(Plus, 1)
		case ch == '-':
			l.emitFixed(Minus, 1)
		case ch == '>' && l.peek(1) == '=':
			l.emitFixed(GreaterEqual, 2)
		case ch == '>':
			l.emitFixed(GreaterThan, 1)
		default:
			l.emitFixed(Unknown, 1)
		}
	}

	l.block.Tokens = append(l.block.Tokens, Token{Type: EndOfInput, SourceOffset: l.pos})
}

// --- character classes -------------------------------------------------

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isAlpha(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isNameStartChar(c byte) bool { return isAlpha(c) || c == '_' }
func isNameChar(c byte) bool {
	return isAlpha(c) || isDigit(c) || c == '_' || c == '-' || c == '.'
}
func isWhitespace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// --- low level scan helpers ---------------------------------------------

func (l *Lexer) current() byte {
	if l.pos < l.length {
		return l.input[l.pos]
	}
	return 0
}

func (l *Lexer) peek(offset int) byte {
	p := l.pos + offset
	if p < l.length {
		return l.input[p]
	}
	return 0
}

func (l *Lexer) match(s string) bool {
	return strings.HasPrefix(l.input[l.pos:], s)
}

func (l *Lexer) skipWhitespace() {
	for l.pos < l.length && isWhitespace(l.input[l.pos]) {
		l.pos++
	}
}

func (l *Lexer) lookaheadNonWhitespace(from int) int {
	i := from
	for i < l.length && isWhitespace(l.input[i]) {
		i++
	}
	return i
}

func (l *Lexer) emit(t Token) {
	l.block.Tokens = append(l.block.Tokens, t)
	l.priorType = l.previousType
	l.previousType = t.Type
}

func (l *Lexer) emitFixed(tt Type, n int) {
	start := l.pos
	text := l.input[start : start+n]
	l.pos += n
	l.emit(Token{Type: tt, Text: text, SourceOffset: start, Length: n})
}

func (l *Lexer) lastIsOperand() bool {
	if len(l.block.Tokens) == 0 {
		return false
	}
	switch l.block.Tokens[len(l.block.Tokens)-1].Type {
	case Identifier, Number, String, TextContent, RParen, RBracket:
		return true
	default:
		return false
	}
}

// --- content / text -----------------------------------------------------

func (l *Lexer) scanTextContent() bool {
	start := l.pos
	for l.pos < l.length {
		c := l.input[l.pos]
		if c == '<' || c == '{' {
			break
		}
		l.pos++
	}
	if l.pos == start {
		return false
	}
	l.emit(Token{Type: TextContent, Text: l.input[start:l.pos], SourceOffset: start, Length: l.pos - start})
	return true
}

func (l *Lexer) scanLessThan() {
	start := l.pos
	if l.peek(1) == '=' {
		l.emitFixed(LessEqual, 2)
		return
	}

	prevIsOperand := l.lastIsOperand()
	namePos := l.lookaheadNonWhitespace(l.pos + 1)
	var lookaheadChar byte
	if namePos < l.length {
		lookaheadChar = l.input[namePos]
	}

	startsClose := lookaheadChar == '/'
	startsPI := lookaheadChar == '?'
	startsName := isNameStartChar(lookaheadChar)
	candidate := startsClose || startsPI || startsName
	treatAsConstructor := candidate && (!prevIsOperand || l.directDepth > 0 || len(l.block.Tokens) == 0)

	if treatAsConstructor {
		switch {
		case startsClose:
			l.pos += 2
			l.emit(Token{Type: CloseTagOpen, Text: l.input[start:l.pos], SourceOffset: start, Length: 2})
			l.insideTag, l.pendingClose = true, true
		case startsPI:
			l.pos += 2
			l.emit(Token{Type: PIStart, Text: l.input[start:l.pos], SourceOffset: start, Length: 2})
			l.insideTag, l.pendingClose = true, false
		default:
			l.pos++
			l.emit(Token{Type: TagOpen, Text: l.input[start:l.pos], SourceOffset: start, Length: 1})
			l.insideTag, l.pendingClose = true, false
			l.directDepth++
		}
		return
	}

	l.pos++
	l.emit(Token{Type: LessThan, Text: l.input[start:l.pos], SourceOffset: start, Length: 1})
}

// scanStarOrWildcard disambiguates MULTIPLY vs WILDCARD per spec §4.B: emit
// MULTIPLY when the preceding token is an operand and an operand follows,
// and either a bracket/paren nesting is open or the previous token opens an
// expression; otherwise emit WILDCARD.
func (l *Lexer) scanStarOrWildcard() {
	start := l.pos
	l.pos++

	prevIsOperand := false
	prevOpensExpr := false
	if len(l.block.Tokens) > 0 {
		prev := l.block.Tokens[len(l.block.Tokens)-1].Type
		switch prev {
		case Number, String, Identifier, RParen, RBracket:
			prevIsOperand = true
		}
		switch prev {
		case Return, Assign, Comma, Then, Else,
			Equals, NotEquals, LessThan, LessEqual, GreaterThan, GreaterEqual,
			Eq, Ne, Lt, Le, Gt, Ge,
			Plus, Minus, Multiply, Divide, Modulo:
			prevOpensExpr = true
		}
	}

	nextIsOperand := l.isOperandStart(l.pos)
	nestingOpen := l.bracketDepth > 0 || l.parenDepth > 0

	tt := Wildcard
	if prevIsOperand && nextIsOperand && (nestingOpen || prevOpensExpr) {
		tt = Multiply
	}
	l.emit(Token{Type: tt, Text: l.input[start:l.pos], SourceOffset: start, Length: 1})
}

func (l *Lexer) isOperandStart(index int) bool {
	if index >= l.length {
		return false
	}
	c := l.input[index]
	switch {
	case isDigit(c), c == '.', c == '/', isNameStartChar(c):
		return true
	case c == '@' || c == '$' || c == '(':
		return true
	case c == '\'' || c == '"':
		return true
	default:
		return false
	}
}

// --- strings, numbers, names ---------------------------------------------

func (l *Lexer) scanString(quote byte) {
	start := l.pos
	l.pos++ // opening quote
	var sb strings.Builder
	hasEscape := false
	for l.pos < l.length && l.input[l.pos] != quote {
		c := l.input[l.pos]
		if c == '\\' && l.pos+1 < l.length {
			hasEscape = true
			next := l.input[l.pos+1]
			switch next {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case '\\', '\'', '"', '*':
				sb.WriteByte(next)
			default:
				sb.WriteByte(next)
			}
			l.pos += 2
			continue
		}
		sb.WriteByte(c)
		l.pos++
	}
	if l.pos < l.length {
		l.pos++ // closing quote
	}

	if hasEscape {
		text := l.block.Storage.WriteCopy(sb.String())
		l.emit(Token{Type: String, Text: text, SourceOffset: start, Length: l.pos - start, Ownership: ArenaOwned})
	} else {
		raw := l.input[start+1 : l.pos-1]
		l.emit(Token{Type: String, Text: raw, SourceOffset: start, Length: l.pos - start})
	}
}

func (l *Lexer) scanAttributeValue(quote byte) {
	start := l.pos
	l.pos++
	var parts []AttributeValuePart
	var literal strings.Builder

	flushLiteral := func() {
		if literal.Len() > 0 {
			text := l.block.Storage.WriteCopy(literal.String())
			parts = append(parts, AttributeValuePart{Text: text, Kind: ArenaOwned})
			literal.Reset()
		}
	}

	for l.pos < l.length && l.input[l.pos] != quote {
		c := l.input[l.pos]
		switch {
		case c == '{' && l.peek(1) == '{':
			literal.WriteByte('{')
			l.pos += 2
		case c == '}' && l.peek(1) == '}':
			literal.WriteByte('}')
			l.pos += 2
		case c == '{':
			flushLiteral()
			depth := 1
			exprStart := l.pos + 1
			l.pos++
			for l.pos < l.length && depth > 0 {
				switch l.input[l.pos] {
				case '{':
					depth++
				case '}':
					depth--
				}
				if depth > 0 {
					l.pos++
				}
			}
			exprText := l.input[exprStart:l.pos]
			if l.pos < l.length {
				l.pos++ // consume closing }
			}
			parts = append(parts, AttributeValuePart{IsExpression: true, Text: exprText})
		case c == '\\' && l.pos+1 < l.length:
			literal.WriteByte(l.input[l.pos+1])
			l.pos += 2
		default:
			literal.WriteByte(c)
			l.pos++
		}
	}
	flushLiteral()
	if l.pos < l.length {
		l.pos++ // closing quote
	}

	l.emit(Token{
		Type:           String,
		Text:           l.input[start:l.pos],
		SourceOffset:   start,
		Length:         l.pos - start,
		IsAttrValue:    true,
		AttrValueParts: parts,
	})
}

func (l *Lexer) scanNumber() {
	start := l.pos
	dotSeen := false
	for l.pos < l.length {
		c := l.input[l.pos]
		if isDigit(c) {
			l.pos++
		} else if c == '.' && !dotSeen {
			dotSeen = true
			l.pos++
		} else {
			break
		}
	}
	l.emit(Token{Type: Number, Text: l.input[start:l.pos], SourceOffset: start, Length: l.pos - start})
}

func (l *Lexer) scanNameOrKeyword() {
	start := l.pos
	for l.pos < l.length && isNameChar(l.input[l.pos]) {
		l.pos++
	}
	text := l.input[start:l.pos]

	if kw, ok := keywordTable[text]; ok {
		if allowed, contextual := contextuallyPromoted[text]; contextual {
			if !l.previousAllows(allowed, text) {
				l.emit(Token{Type: Identifier, Text: text, SourceOffset: start, Length: l.pos - start})
				return
			}
		}
		l.emit(Token{Type: kw, Text: text, SourceOffset: start, Length: l.pos - start})
		return
	}
	l.emit(Token{Type: Identifier, Text: text, SourceOffset: start, Length: l.pos - start})
}

func (l *Lexer) previousAllows(allowed []Type, keyword string) bool {
	for _, t := range allowed {
		if l.previousType == t {
			return true
		}
	}
	if keyword == "external" {
		// "external" is also promoted after "$ident" or ":ident".
		n := len(l.block.Tokens)
		if n >= 2 {
			prev, prev2 := l.block.Tokens[n-1], l.block.Tokens[n-2]
			if prev.Type == Identifier && (prev2.Type == Dollar || prev2.Type == Colon) {
				return true
			}
		}
	}
	if keyword == "namespace" {
		// "default element namespace" / "default attribute namespace": the
		// literal "element"/"attribute" sits between "default" and
		// "namespace" and never becomes a keyword of its own, so the usual
		// previous-token check misses it.
		n := len(l.block.Tokens)
		if n >= 1 {
			prev := l.block.Tokens[n-1]
			if prev.Type == Identifier && (prev.Text == "element" || prev.Text == "attribute") {
				return true
			}
		}
	}
	return false
}

func (l *Lexer) scanQuestionMark() {
	start := l.pos
	l.pos++
	// '?' is LOOKUP when it follows an operand (base?selector); otherwise it
	// is the occurrence-indicator QUESTION_MARK used in sequence types.
	tt := QuestionMark
	if l.lastIsOperand() {
		tt = Lookup
	}
	l.emit(Token{Type: tt, Text: l.input[start:l.pos], SourceOffset: start, Length: 1})
}
