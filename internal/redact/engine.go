package redact

import "strings"

// Redactor rewrites text before it crosses the boundary. It is
// immutable and safe for concurrent use; token maps are per scope.
type Redactor struct {
	mode  Mode
	cfg   Config
	extra []ExtraPattern
}

// New creates a Redactor. Invalid extra patterns are reported here so
// policy loading can reject them.
func New(cfg Config, mode Mode) (*Redactor, error) {
	extra, err := CompilePatterns(cfg)
	if err != nil {
		return nil, err
	}
	return &Redactor{mode: mode, cfg: cfg, extra: extra}, nil
}

// Mode returns the active mode.
func (r *Redactor) Mode() Mode {
	if r == nil {
		return ModeRedact
	}
	return r.mode
}

// IncludeDetail reports whether full reasons may cross the boundary.
func (r *Redactor) IncludeDetail() bool {
	return r.Mode() == ModeDetail
}

// Redact replaces sensitive detail in text with tokens allocated in tm.
// In detail mode text is returned unchanged. A nil tm uses a throwaway
// map.
func (r *Redactor) Redact(text string, tm *TokenMap) string {
	if r.IncludeDetail() {
		return text
	}
	if tm == nil {
		tm = NewTokenMap("")
	}
	var cfg Config
	var extra []ExtraPattern
	if r != nil {
		cfg, extra = r.cfg, r.extra
	}
	return redactWith(text, tm, cfg, extra)
}

// Redact replaces sensitive detail using the built-in patterns only.
func Redact(text string, tm *TokenMap) string {
	return redactWith(text, tm, Config{}, nil)
}

func redactWith(text string, tm *TokenMap, cfg Config, extra []ExtraPattern) string {
	matches := ScanWithConfig(text, cfg, extra)
	if len(matches) == 0 {
		return text
	}
	for _, m := range matches {
		tm.Token(m.Type, m.Value)
	}
	// Longest values first so a path is not partially replaced by a
	// shorter path it contains.
	result := text
	for _, val := range tm.Values() {
		result = strings.ReplaceAll(result, val, tm.forward[val])
	}
	return result
}

// Detoken replaces all tokens in text with their original values.
func Detoken(text string, tm *TokenMap) string {
	result := text
	for _, tok := range tm.Tokens() {
		val, _ := tm.Resolve(tok)
		result = strings.ReplaceAll(result, tok, val)
	}
	return result
}

// CheckLeaks returns hidden values that still appear literally in text.
func CheckLeaks(text string, tm *TokenMap) []string {
	var leaks []string
	for _, val := range tm.Values() {
		if strings.Contains(text, val) {
			leaks = append(leaks, val)
		}
	}
	return leaks
}
