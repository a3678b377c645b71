package token

// Type enumerates the lexical categories the tokeniser can emit. It mirrors
// original_source's XPathTokenType enum (src/xquery/xquery.h) one-for-one so
// behaviour stays traceable to the source this module was distilled from.
type Type int

const (
	Unknown Type = iota

	// Path operators.
	Slash       // /
	DoubleSlash // //
	Dot         // .
	DoubleDot   // ..

	Identifier
	String
	Number
	Wildcard

	LBracket
	RBracket
	LParen
	RParen
	At
	Comma
	Semicolon
	Pipe
	Union
	Intersect
	Except

	Equals
	NotEquals
	LessThan
	LessEqual
	GreaterThan
	GreaterEqual
	Eq
	Ne
	Lt
	Le
	Gt
	Ge

	And
	Or
	Not

	If
	Then
	Else
	For
	Let
	In
	Return
	Where
	Group
	By
	Order
	Stable
	Ascending
	Descending
	Empty
	Default
	Typeswitch
	Case
	Declare
	Function
	Variable
	Namespace
	External
	BoundarySpace
	BaseURI
	Greatest
	Least
	Collation
	Construction
	Ordering
	CopyNamespaces
	DecimalFormat
	Option
	Import
	Module
	Schema
	Count
	Some
	Every
	Satisfies
	Cast
	Castable
	Treat
	As
	Instance
	Of
	To
	Map
	Array

	Plus
	Minus
	Multiply
	Divide
	Modulo

	AxisSeparator // ::
	Colon         // :

	Dollar
	Assign // :=

	LBrace
	RBrace
	TagOpen        // <
	CloseTagOpen   // </
	TagClose       // >
	EmptyTagClose  // />
	PIStart        // <?
	PIEnd          // ?>

	TextContent
	QuestionMark // ? occurrence indicator
	Lookup       // ? lookup operator

	EndOfInput
)

// TextOwnership records whether a Token's Text view borrows directly from
// the input query string or was copied into the owning Block's Arena (only
// necessary when the lexeme required escape processing).
type TextOwnership int

const (
	Borrowed TextOwnership = iota
	ArenaOwned
)

// AttributeValuePart is one literal-or-expression fragment of an attribute
// value template, e.g. `who="{$name}!"` has parts [expr $name, literal "!"].
type AttributeValuePart struct {
	IsExpression bool
	Text         string
	Kind         TextOwnership
}

// Token is one lexical unit. SourceOffset/Length let callers reconstruct the
// original text verbatim (spec §8 property 1, token round-trip).
type Token struct {
	Type          Type
	Text          string
	SourceOffset  int
	Length        int
	Ownership     TextOwnership
	IsAttrValue   bool
	AttrValueParts []AttributeValuePart
}

// Block is the tokeniser's output: a storage arena plus the resulting token
// stream, terminated with an EndOfInput token.
type Block struct {
	Storage *Arena
	Tokens  []Token
}

func NewBlock() *Block {
	return &Block{Storage: NewArena()}
}

var keywordTable = map[string]Type{
	"and": And, "or": Or, "not": Not,
	"div": Divide, "mod": Modulo,
	"eq": Eq, "ne": Ne, "lt": Lt, "le": Le, "gt": Gt, "ge": Ge,
	"if": If, "then": Then, "else": Else,
	"for": For, "let": Let, "in": In, "return": Return,
	"where": Where, "group": Group, "by": By,
	"order": Order, "stable": Stable,
	"ascending": Ascending, "descending": Descending,
	"empty": Empty, "default": Default,
	"typeswitch": Typeswitch, "case": Case,
	"declare": Declare, "function": Function, "variable": Variable,
	"namespace": Namespace, "external": External,
	"boundary-space": BoundarySpace, "base-uri": BaseURI,
	"greatest": Greatest, "least": Least,
	"collation": Collation, "construction": Construction,
	"ordering": Ordering, "copy-namespaces": CopyNamespaces,
	"decimal-format": DecimalFormat, "option": Option,
	"import": Import, "module": Module, "schema": Schema,
	"count": Count, "some": Some, "every": Every, "satisfies": Satisfies,
	"to": To, "cast": Cast, "castable": Castable, "treat": Treat,
	"as": As, "instance": Instance, "of": Of,
	"union": Union, "intersect": Intersect, "except": Except,
	"map": Map, "array": Array,
}

// contextuallyPromoted lists keywords that are only recognised as keywords
// when the preceding token matches one of the allowed predecessors (spec
// §4.B's promotion table). All other keyword-shaped identifiers are always
// promoted (e.g. "for", "return") because XPath/XQuery grammar makes them
// unambiguous in context; the handful below collide with valid NCNames
// used as plain identifiers/step names elsewhere.
var contextuallyPromoted = map[string][]Type{
	"function":       {Declare, Default},
	"variable":       {Declare},
	"namespace":      {Declare, Default, Function, Module},
	"external":       {Declare, Variable, RParen},
	"boundary-space": {Declare},
	"base-uri":       {Declare},
}
