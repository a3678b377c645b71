// Package regexengine exposes the narrow regex surface the function
// library needs (fn:matches, fn:replace, fn:tokenize) behind an interface,
// so the engine never hard-depends on one backend.
// The default backend is lazily constructed on first use, grounded on
// github.com/dlclark/regexp2 for .NET/XPath-flavoured regex semantics
// (backreferences, lookaround) that Go's RE2-based regexp package lacks.
package regexengine

import (
	"strings"
	"sync"

	"github.com/dlclark/regexp2"
	"github.com/pkg/errors"
)

// MatchInfo is one match's span and captured groups, as returned by
// Engine.FindAll. The function library does not call FindAll, and
// fn:analyze-string is not registered.
type MatchInfo struct {
	Start  int
	End    int
	Groups []string
}

// Engine is the pluggable regex surface (spec SPEC_FULL §4 domain stack).
type Engine interface {
	Match(pattern, flags, text string) (bool, error)
	FindAll(pattern, flags, text string) ([]MatchInfo, error)
	Replace(pattern, flags, text, replacement string) (string, error)
	Split(pattern, flags, text string) ([]string, error)
}

// translateFlags maps the xs:string flags argument ("s", "m", "i", "x") of
// fn:matches/fn:replace/fn:tokenize onto regexp2.RegexOptions.
func translateFlags(flags string) regexp2.RegexOptions {
	opts := regexp2.None
	for _, f := range flags {
		switch f {
		case 's':
			opts |= regexp2.Singleline
		case 'm':
			opts |= regexp2.Multiline
		case 'i':
			opts |= regexp2.IgnoreCase
		case 'x':
			opts |= regexp2.IgnorePatternWhitespace
		}
	}
	return opts
}

// regexp2Engine is the default Engine, built lazily and cached per
// (pattern, flags) pair since query evaluation frequently reuses literal
// pattern/flag arguments across many node matches.
type regexp2Engine struct {
	mu    sync.Mutex
	cache map[string]*regexp2.Regexp
}

// Default returns the lazily constructed package-wide regex engine.
func Default() Engine {
	defaultOnce.Do(func() {
		defaultEngine = &regexp2Engine{cache: make(map[string]*regexp2.Regexp)}
	})
	return defaultEngine
}

var (
	defaultOnce   sync.Once
	defaultEngine *regexp2Engine
)

func (e *regexp2Engine) compile(pattern, flags string) (*regexp2.Regexp, error) {
	key := flags + "\x00" + pattern
	e.mu.Lock()
	defer e.mu.Unlock()
	if re, ok := e.cache[key]; ok {
		return re, nil
	}
	re, err := regexp2.Compile(pattern, translateFlags(flags))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid regular expression %q", pattern)
	}
	e.cache[key] = re
	return re, nil
}

func (e *regexp2Engine) Match(pattern, flags, text string) (bool, error) {
	re, err := e.compile(pattern, flags)
	if err != nil {
		return false, err
	}
	m, err := re.MatchString(text)
	if err != nil {
		return false, errors.Wrap(err, "regex matching failed")
	}
	return m, nil
}

func (e *regexp2Engine) FindAll(pattern, flags, text string) ([]MatchInfo, error) {
	re, err := e.compile(pattern, flags)
	if err != nil {
		return nil, err
	}
	var results []MatchInfo
	m, err := re.FindStringMatch(text)
	if err != nil {
		return nil, errors.Wrap(err, "regex matching failed")
	}
	for m != nil {
		info := MatchInfo{Start: m.Index, End: m.Index + m.Length}
		for _, g := range m.Groups() {
			info.Groups = append(info.Groups, g.String())
		}
		results = append(results, info)
		m, err = re.FindNextMatch(m)
		if err != nil {
			return nil, errors.Wrap(err, "regex matching failed")
		}
	}
	return results, nil
}

func (e *regexp2Engine) Replace(pattern, flags, text, replacement string) (string, error) {
	re, err := e.compile(pattern, flags)
	if err != nil {
		return "", err
	}
	out, err := re.Replace(text, translateReplacement(replacement), -1, -1)
	if err != nil {
		return "", errors.Wrap(err, "regex replace failed")
	}
	return out, nil
}

func (e *regexp2Engine) Split(pattern, flags, text string) ([]string, error) {
	re, err := e.compile(pattern, flags)
	if err != nil {
		return nil, err
	}
	var parts []string
	last := 0
	m, err := re.FindStringMatch(text)
	if err != nil {
		return nil, errors.Wrap(err, "regex split failed")
	}
	for m != nil {
		if m.Length == 0 {
			break // avoid infinite loop on zero-width matches (FORX0003 territory)
		}
		parts = append(parts, text[last:m.Index])
		last = m.Index + m.Length
		m, err = re.FindNextMatch(m)
		if err != nil {
			return nil, errors.Wrap(err, "regex split failed")
		}
	}
	parts = append(parts, text[last:])
	return parts, nil
}

// translateReplacement converts XPath's $N backreference syntax to
// regexp2's ${N} syntax.
func translateReplacement(repl string) string {
	var b strings.Builder
	for i := 0; i < len(repl); i++ {
		if repl[i] == '$' && i+1 < len(repl) && repl[i+1] >= '0' && repl[i+1] <= '9' {
			j := i + 1
			for j < len(repl) && repl[j] >= '0' && repl[j] <= '9' {
				j++
			}
			b.WriteString("${")
			b.WriteString(repl[i+1 : j])
			b.WriteString("}")
			i = j - 1
			continue
		}
		b.WriteByte(repl[i])
	}
	return b.String()
}
