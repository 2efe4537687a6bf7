package redact

import (
	"fmt"
	"regexp"
	"strings"
)

// Config holds operator redaction settings, read from the policy file's
// redact section.
type Config struct {
	// IncludeDetail sends full rejection reasons to the remote side.
	IncludeDetail bool `yaml:"include_detail" json:"include_detail"`
	// SafePaths are path prefixes that may be shown verbatim.
	SafePaths []string `yaml:"safe_paths" json:"safe_paths"`
	// Literals are site-specific strings that are always tokenized.
	Literals []string `yaml:"literals" json:"literals"`
	// ExtraPatterns are additional regexes to tokenize.
	ExtraPatterns []ExtraPatternDef `yaml:"extra_patterns" json:"extra_patterns"`
}

// ExtraPatternDef defines a custom pattern from config.
type ExtraPatternDef struct {
	Name  string `yaml:"name" json:"name"`
	Regex string `yaml:"regex" json:"regex"`
}

// ExtraPattern is a compiled custom pattern.
type ExtraPattern struct {
	Name        string
	Regex       *regexp.Regexp
	TokenPrefix PatternType
}

// CompilePatterns validates and compiles extra patterns from config.
func CompilePatterns(cfg Config) ([]ExtraPattern, error) {
	var patterns []ExtraPattern
	for i, def := range cfg.ExtraPatterns {
		if def.Name == "" {
			return nil, fmt.Errorf("extra_patterns[%d]: name is required", i)
		}
		if def.Regex == "" {
			return nil, fmt.Errorf("extra_patterns[%d]: regex is required", i)
		}
		re, err := regexp.Compile(def.Regex)
		if err != nil {
			return nil, fmt.Errorf("extra_patterns[%d] %q: invalid regex: %w", i, def.Name, err)
		}
		patterns = append(patterns, ExtraPattern{
			Name:        def.Name,
			Regex:       re,
			TokenPrefix: PatternType(strings.ToUpper(def.Name)),
		})
	}
	return patterns, nil
}
