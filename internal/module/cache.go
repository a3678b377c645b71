// Package module implements the library-module cache of spec §4.J:
// resolving `import module namespace` declarations to a parsed, validated
// prolog and dispatching cross-module function calls against it, with
// circular-import detection and a loading-in-progress guard shared across
// one compiled query's evaluation.
package module

import (
	"strings"
	"sync"

	"github.com/parasol-framework/xquery/internal/eval"
	"github.com/parasol-framework/xquery/internal/parser"
	"github.com/parasol-framework/xquery/internal/prolog"
	"github.com/parasol-framework/xquery/internal/value"
	"github.com/parasol-framework/xquery/internal/xqerr"
	"github.com/parasol-framework/xquery/xmlmodel"
)

// Cache is shared by weak reference from the importing prolog (here, a
// plain pointer held by the root XQuery controller) to avoid a reference
// cycle back into the AST it serves.
type Cache struct {
	mu      sync.Mutex
	modules map[string]*prolog.Prolog
	loading map[string]bool

	loader xmlmodel.TextLoader
}

func NewCache(loader xmlmodel.TextLoader) *Cache {
	return &Cache{
		modules: make(map[string]*prolog.Prolog),
		loading: make(map[string]bool),
		loader:  loader,
	}
}

// FetchOrLoad implements spec §4.J's fetch_or_load: circular-import check,
// cache hit, then fetch+tokenise+parse+validate on a miss, with the
// loading-in-progress marker removed on every exit path.
func (c *Cache) FetchOrLoad(namespaceURI, baseURI string, locationHints []string) (*prolog.Prolog, error) {
	c.mu.Lock()
	if c.loading[namespaceURI] {
		c.mu.Unlock()
		return nil, xqerr.ErrCircularImport.New(namespaceURI)
	}
	if p, ok := c.modules[namespaceURI]; ok {
		c.mu.Unlock()
		return p, nil
	}
	c.loading[namespaceURI] = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.loading, namespaceURI)
		c.mu.Unlock()
	}()

	p, err := c.loadFromHints(namespaceURI, baseURI, locationHints)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.modules[namespaceURI] = p
	c.mu.Unlock()
	return p, nil
}

func (c *Cache) loadFromHints(namespaceURI, baseURI string, hints []string) (*prolog.Prolog, error) {
	if c.loader == nil || len(hints) == 0 {
		return nil, xqerr.ErrDocumentFetch.New(namespaceURI)
	}
	var lastErr error
	for _, hint := range hints {
		text, err := c.loader.LoadText(resolveHint(baseURI, hint))
		if err != nil {
			lastErr = err
			continue
		}
		result := parser.Parse(text)
		if len(result.Diagnostics) > 0 {
			lastErr = xqerr.ErrInvalidProlog.New(result.Diagnostics[0].Message)
			continue
		}
		if !result.Prolog.IsLibraryModule || result.Prolog.ModuleNamespaceURI != namespaceURI {
			lastErr = xqerr.ErrInvalidProlog.New("imported unit is not a library module for " + namespaceURI)
			continue
		}
		if err := result.Prolog.ValidateLibraryExports(); err != nil {
			return nil, err
		}
		return result.Prolog, nil
	}
	if lastErr == nil {
		lastErr = xqerr.ErrDocumentFetch.New(namespaceURI)
	}
	return nil, lastErr
}

// ExportedFunctionNames lists every function QName exported by a currently
// cached (already-loaded) module, lexical form, for XQuery.Functions.
func (c *Cache) ExportedFunctionNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, p := range c.modules {
		for _, fn := range p.Functions() {
			out = append(out, fn.QName)
		}
	}
	return out
}

func resolveHint(baseURI, hint string) string {
	if baseURI == "" || strings.Contains(hint, "://") {
		return hint
	}
	if strings.HasSuffix(baseURI, "/") {
		return baseURI + hint
	}
	return baseURI + "/" + hint
}

// Resolve implements eval.ModuleResolver: it finds a function of the given
// namespace/local-name/arity among an already-cached module's exports and
// returns a closure that evaluates its body in that module's own prolog.
func (c *Cache) Resolve(namespaceURI, localName string, arity int) (eval.FunctionImpl, bool) {
	c.mu.Lock()
	modProlog, ok := c.modules[namespaceURI]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	want := "Q{" + namespaceURI + "}" + localName
	for _, fn := range modProlog.Functions() {
		if fn.Arity != arity {
			continue
		}
		if modProlog.NormaliseFunctionQName(fn.QName) != want {
			continue
		}
		captured := fn
		return func(ctx *eval.Context, args []value.Value) (value.Value, error) {
			return callModuleFunction(ctx, modProlog, captured, args)
		}, true
	}
	return nil, false
}

func callModuleFunction(ctx *eval.Context, modProlog *prolog.Prolog, fn *prolog.Function, args []value.Value) (value.Value, error) {
	if len(fn.ParameterNames) != len(args) {
		return value.Value{}, xqerr.ErrArityMismatch.New(fn.QName, len(fn.ParameterNames), len(args))
	}
	callCtx := ctx.WithProlog(modProlog)
	for i, name := range fn.ParameterNames {
		callCtx = callCtx.WithVariable(name, args[i])
	}
	return eval.Eval(callCtx, fn.Body)
}
