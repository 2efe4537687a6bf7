package redact

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// TokenMap provides bidirectional mapping between hidden values and
// tokens for one request scope, so server-side logs can correlate the
// tokens the remote side saw. Not goroutine-safe.
type TokenMap struct {
	forward  map[string]string   // value → "<<TYPE_N>>"
	reverse  map[string]string   // "<<TYPE_N>>" → value
	counters map[PatternType]int // next number per pattern type
	Scope    string
}

// NewTokenMap creates an empty token map for a request scope.
func NewTokenMap(scope string) *TokenMap {
	return &TokenMap{
		forward:  make(map[string]string),
		reverse:  make(map[string]string),
		counters: make(map[PatternType]int),
		Scope:    scope,
	}
}

// Token returns the token for a value. The same value always returns the
// same token within a map.
func (tm *TokenMap) Token(typ PatternType, value string) string {
	if tok, ok := tm.forward[value]; ok {
		return tok
	}
	tm.counters[typ]++
	tok := fmt.Sprintf("<<%s_%d>>", typ, tm.counters[typ])
	tm.forward[value] = tok
	tm.reverse[tok] = value
	return tok
}

// Resolve returns the original value for a token.
func (tm *TokenMap) Resolve(token string) (string, bool) {
	v, ok := tm.reverse[token]
	return v, ok
}

// Len returns the number of mappings.
func (tm *TokenMap) Len() int {
	return len(tm.forward)
}

// Values returns all hidden values, longest first.
func (tm *TokenMap) Values() []string {
	vals := make([]string, 0, len(tm.forward))
	for v := range tm.forward {
		vals = append(vals, v)
	}
	sort.Slice(vals, func(i, j int) bool {
		if len(vals[i]) != len(vals[j]) {
			return len(vals[i]) > len(vals[j])
		}
		return vals[i] < vals[j]
	})
	return vals
}

// Tokens returns all tokens, sorted.
func (tm *TokenMap) Tokens() []string {
	toks := make([]string, 0, len(tm.reverse))
	for t := range tm.reverse {
		toks = append(toks, t)
	}
	sort.Strings(toks)
	return toks
}

// LogValue renders the mapping for server-side logs.
func (tm *TokenMap) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(tm.reverse)+1)
	attrs = append(attrs, slog.String("scope", tm.Scope))
	for _, tok := range tm.Tokens() {
		attrs = append(attrs, slog.String(strings.Trim(tok, "<>"), tm.reverse[tok]))
	}
	return slog.GroupValue(attrs...)
}
