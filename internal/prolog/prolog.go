// Package prolog implements the declaration model described in spec §4.E:
// namespaces, variables, functions, decimal formats, options, and module
// imports gathered from a query or module prolog.
package prolog

import (
	"fmt"

	"github.com/parasol-framework/xquery/internal/ast"
	"github.com/parasol-framework/xquery/internal/xqerr"
)

// Variable is a prolog-declared variable: either it has an initializer
// expression or it is `external` (host-supplied via XQuery.SetKey).
type Variable struct {
	QName       string
	Initializer *ast.Node
	IsExternal  bool
}

// Function is a prolog-declared (or imported) user function.
type Function struct {
	QName          string
	Arity          int
	ParameterNames []string
	ParameterTypes []string
	ReturnType     string
	Body           *ast.Node
	IsExternal     bool
}

type functionKey struct {
	qname string
	arity int
}

// DecimalFormat mirrors original_source's DecimalFormat (xquery.h): the
// picture-string vocabulary used by fn:format-number-style functions.
type DecimalFormat struct {
	Name                string
	DecimalSeparator    string
	GroupingSeparator   string
	Infinity            string
	MinusSign           string
	NaN                 string
	Percent             string
	PerMille            string
	ZeroDigit           string
	Digit               string
	PatternSeparator    string
}

func DefaultDecimalFormat() DecimalFormat {
	return DecimalFormat{
		DecimalSeparator: ".", GroupingSeparator: ",", Infinity: "INF",
		MinusSign: "-", NaN: "NaN", Percent: "%", PerMille: "‰",
		ZeroDigit: "0", Digit: "#", PatternSeparator: ";",
	}
}

// ModuleImport is one `import module namespace ... at URI (, URI)*` decl.
type ModuleImport struct {
	TargetNamespace string
	LocationHints   []string
}

// Prolog holds every declaration gathered while parsing a query or module
// unit (spec §3 "Prolog").
type Prolog struct {
	// namespace prefix -> URI, and its reverse for serialisation/lookup.
	namespaces    map[string]string
	namespacesRev map[string]string

	variables map[string]*Variable
	functions map[functionKey]*Function
	imports   map[string]*ModuleImport

	DecimalFormats map[string]DecimalFormat
	Options        map[string]string

	DefaultElementNamespace  string
	DefaultFunctionNamespace string
	BaseURI                  string
	Collation                string
	BoundarySpace            string // "preserve" | "strip"
	Construction             string // "preserve" | "strip"
	Ordering                 string // "ordered" | "unordered"
	EmptyOrder               string // "greatest" | "least"
	CopyNamespaces           string // "preserve,inherit" etc.

	// IsLibraryModule is true once a `module namespace` declaration has
	// been seen; ModuleNamespaceURI is that namespace.
	IsLibraryModule     bool
	ModuleNamespaceURI  string

	// bodyParsingStarted is set once any function/variable body has begun
	// parsing; namespace rebinding is rejected afterwards (spec §4.E).
	bodyParsingStarted bool
}

func New() *Prolog {
	return &Prolog{
		namespaces:     map[string]string{"xml": "http://www.w3.org/XML/1998/namespace"},
		namespacesRev:  map[string]string{"http://www.w3.org/XML/1998/namespace": "xml"},
		variables:      make(map[string]*Variable),
		functions:      make(map[functionKey]*Function),
		imports:        make(map[string]*ModuleImport),
		DecimalFormats: map[string]DecimalFormat{"": DefaultDecimalFormat()},
		Options:        make(map[string]string),
		BoundarySpace:  "strip",
		Construction:   "preserve",
		Ordering:       "ordered",
		EmptyOrder:     "greatest",
	}
}

// MarkBodyParsingStarted records that a function/variable body is now being
// parsed, after which namespace declarations may no longer be rebound.
func (p *Prolog) MarkBodyParsingStarted() { p.bodyParsingStarted = true }

// DeclareNamespace binds prefix -> uri. Rebinding an existing prefix is only
// permitted before any function/variable body has been parsed.
func (p *Prolog) DeclareNamespace(prefix, uri string) error {
	if existing, ok := p.namespaces[prefix]; ok && existing != uri && p.bodyParsingStarted {
		return xqerr.ErrInvalidProlog.New(fmt.Sprintf("cannot rebind namespace prefix %q after body parsing has started", prefix))
	}
	p.namespaces[prefix] = uri
	p.namespacesRev[uri] = prefix
	return nil
}

func (p *Prolog) LookupNamespace(prefix string) (string, bool) {
	uri, ok := p.namespaces[prefix]
	return uri, ok
}

func (p *Prolog) LookupPrefix(uri string) (string, bool) {
	prefix, ok := p.namespacesRev[uri]
	return prefix, ok
}

// ResolvePrefix resolves a prefix against the prolog, falling back to the
// supplied doc resolver (the XML document's own in-scope prefixes) per
// spec §4.E.
func (p *Prolog) ResolvePrefix(prefix string, docResolve func(string) (string, bool)) (string, bool) {
	if uri, ok := p.namespaces[prefix]; ok {
		return uri, true
	}
	if docResolve != nil {
		return docResolve(prefix)
	}
	return "", false
}

// DeclareVariable registers a prolog variable, rejecting duplicate QNames.
func (p *Prolog) DeclareVariable(v *Variable) error {
	if _, exists := p.variables[v.QName]; exists {
		return xqerr.ErrDuplicateVariable.New(v.QName)
	}
	p.variables[v.QName] = v
	return nil
}

func (p *Prolog) FindVariable(qname string) (*Variable, bool) {
	v, ok := p.variables[qname]
	return v, ok
}

func (p *Prolog) Variables() []*Variable {
	out := make([]*Variable, 0, len(p.variables))
	for _, v := range p.variables {
		out = append(out, v)
	}
	return out
}

// DeclareFunction registers a prolog function keyed by (QName, arity),
// rejecting duplicates (spec §4.E "function key is (qname, arity)").
func (p *Prolog) DeclareFunction(f *Function) error {
	key := functionKey{f.QName, f.Arity}
	if _, exists := p.functions[key]; exists {
		return xqerr.ErrDuplicateFunction.New(f.QName, f.Arity)
	}
	p.functions[key] = f
	return nil
}

func (p *Prolog) FindFunction(qname string, arity int) (*Function, bool) {
	f, ok := p.functions[functionKey{qname, arity}]
	return f, ok
}

func (p *Prolog) Functions() []*Function {
	out := make([]*Function, 0, len(p.functions))
	for _, f := range p.functions {
		out = append(out, f)
	}
	return out
}

// DeclareModuleImport registers a module import, rejecting duplicate target
// namespaces (spec §4.E).
func (p *Prolog) DeclareModuleImport(imp *ModuleImport) error {
	if _, exists := p.imports[imp.TargetNamespace]; exists {
		return xqerr.ErrDuplicateImport.New(imp.TargetNamespace)
	}
	p.imports[imp.TargetNamespace] = imp
	return nil
}

func (p *Prolog) ModuleImports() []*ModuleImport {
	out := make([]*ModuleImport, 0, len(p.imports))
	for _, imp := range p.imports {
		out = append(out, imp)
	}
	return out
}

// NormaliseFunctionQName canonicalises a lexical QName to Q{uri}local when
// the prefix has a known namespace binding (spec §4.E).
func (p *Prolog) NormaliseFunctionQName(qname string) string {
	prefix, local, hasPrefix := splitQName(qname)
	if !hasPrefix {
		if p.DefaultFunctionNamespace != "" {
			return "Q{" + p.DefaultFunctionNamespace + "}" + local
		}
		return local
	}
	if uri, ok := p.namespaces[prefix]; ok {
		return "Q{" + uri + "}" + local
	}
	return qname
}

func splitQName(qname string) (prefix, local string, hasPrefix bool) {
	for i := 0; i < len(qname); i++ {
		if qname[i] == ':' {
			return qname[:i], qname[i+1:], true
		}
	}
	return "", qname, false
}

// ValidateLibraryExports enforces spec §4.E: in a library module, every
// declared function and non-local variable must expand into the module's
// own namespace.
func (p *Prolog) ValidateLibraryExports() error {
	if !p.IsLibraryModule {
		return nil
	}
	for _, f := range p.functions {
		expanded := p.NormaliseFunctionQName(f.QName)
		if !hasNamespaceURI(expanded, p.ModuleNamespaceURI) {
			return xqerr.ErrLibraryExportViolation.New(f.QName, p.ModuleNamespaceURI)
		}
	}
	for _, v := range p.variables {
		if v.IsExternal {
			continue
		}
		expanded := p.NormaliseFunctionQName(v.QName)
		if !hasNamespaceURI(expanded, p.ModuleNamespaceURI) {
			return xqerr.ErrLibraryExportViolation.New(v.QName, p.ModuleNamespaceURI)
		}
	}
	return nil
}

func hasNamespaceURI(expanded, uri string) bool {
	want := "Q{" + uri + "}"
	return len(expanded) >= len(want) && expanded[:len(want)] == want
}
