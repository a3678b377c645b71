// Package xqerr declares the diagnostic codes raised by the xquery compiler
// and evaluator. Each code is a gopkg.in/src-d/go-errors.v1 Kind, so callers
// can test error identity with Kind.Is(err) the same way callers of
// go-mysql-server test sql.ErrTableNotFound.Is(err).
package xqerr

import "gopkg.in/src-d/go-errors.v1"

// Parse errors (spec §7 "Parse errors").
var (
	ErrUnexpectedToken   = errors.NewKind("unexpected token %s at offset %d")
	ErrMissingTerminator = errors.NewKind("expected %s but reached end of input")
	ErrUnbalancedBraces  = errors.NewKind("unbalanced %s in expression")
	ErrInvalidProlog     = errors.NewKind("invalid prolog declaration order: %s")
	ErrBadSequenceType   = errors.NewKind("invalid sequence type syntax: %s")
)

// Static errors (spec §7 "Static errors").
var (
	// XQST0049 - duplicate variable declaration within a module.
	ErrDuplicateVariable = errors.NewKind("XQST0049: variable %s is already declared")
	// XQST0034 - duplicate function declaration (same QName and arity).
	ErrDuplicateFunction = errors.NewKind("XQST0034: function %s#%d is already declared")
	// XQST0047 - duplicate module import target namespace.
	ErrDuplicateImport = errors.NewKind("XQST0047: module namespace %s is already imported")
	// XQST0036 - library module export outside its own namespace.
	ErrLibraryExportViolation = errors.NewKind("XQST0036: %s is not in the module's namespace %s")
	// XPST0081 - QName prefix has no in-scope binding.
	ErrUnresolvedPrefix = errors.NewKind("XPST0081: unresolved namespace prefix %s")
	// XQST0093 - a module (transitively) imports itself.
	ErrCircularImport = errors.NewKind("XQST0093: circular module import for namespace %s")
)

// Dynamic evaluation errors (spec §7 "Dynamic evaluation errors").
var (
	// XPST0008 - variable or in-scope type not defined.
	ErrUnresolvedVariable = errors.NewKind("XPST0008: variable %s is not defined")
	// XPST0017 - no matching function signature.
	ErrUnresolvedFunction = errors.NewKind("XPST0017: function %s#%d is not defined")
	ErrArityMismatch      = errors.NewKind("XPST0017: function %s expects %d arguments, got %d")
	// XPTY0004 - type mismatch in a cast, treat, or operand position.
	ErrTypeMismatch = errors.NewKind("XPTY0004: %s")
	// FOAR0001 - integer division by zero.
	ErrDivideByZero = errors.NewKind("FOAR0001: division by zero")
	// FOCA0002 - invalid lexical value during cast.
	ErrInvalidCast = errors.NewKind("FOCA0002: cannot cast %q to %s")
	// FOAY0001 - array index out of range.
	ErrArrayIndexOutOfRange = errors.NewKind("FOAY0001: array index %d out of range (size %d)")
	// FOTY0013 - map key not found while an indexed lookup demanded one.
	ErrMapKeyNotFound = errors.NewKind("FOTY0013: map has no entry for key %v")
	// XPST0083 - recursion depth limit reached. The error propagates and
	// ends the evaluation; it is not recovered into an empty sequence.
	ErrRecursionLimit = errors.NewKind("XPST0083: recursion depth limit (%d) exceeded evaluating %s")
	// FORG0003/FORG0005 - cardinality assertion function given an
	// unexpected number of items (fn:zero-or-one, fn:exactly-one, ...).
	ErrCardinality = errors.NewKind("FORG0003: %s expects a different cardinality, got %d items")
	// FOCH0002 - unsupported or unknown collation URI.
	ErrUnsupportedCollation = errors.NewKind("FOCH0002: unsupported collation %s")
)

// External errors (spec §7 "External errors").
var (
	// FODC0002 - error retrieving resource.
	ErrDocumentFetch = errors.NewKind("FODC0002: failed to fetch document %s")
	ErrTextFetch     = errors.NewKind("FODC0002: failed to fetch text resource %s")
	ErrRegexEngine   = errors.NewKind("FODC0002: failed to load regular expression engine")
)

// Control signals (spec §7 "Control signals (non-errors): Terminate from a
// search callback"). Modelled as a Kind, not a sentinel error value, so
// callers can test it the same way as every other diagnostic.
var (
	ErrSearchTerminated = errors.NewKind("search callback requested termination")
)
