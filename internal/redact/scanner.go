package redact

import (
	"regexp"
	"sort"
	"strings"
)

// PatternType identifies the category of detail being hidden.
type PatternType string

const (
	PatternPath    PatternType = "PATH"
	PatternIP      PatternType = "IP"
	PatternHost    PatternType = "HOST"
	PatternCred    PatternType = "CRED"
	PatternLiteral PatternType = "LITERAL"
)

// Match is a single occurrence of sensitive detail in text.
type Match struct {
	Type  PatternType
	Value string
	Start int
	End   int
}

var (
	// Absolute, home-relative, dot-relative and slash-separated relative
	// paths, plus drive-letter paths.
	pathRe = regexp.MustCompile(`(?:~|\.\.?)?/[^\s"'<>|(){}\[\],;]+|[A-Za-z0-9_.\-]+(?:/[A-Za-z0-9_.\-]+)+|[A-Za-z]:\\[^\s"'<>|]+`)

	// IPv4 addresses (4 octets, no range validation).
	ipv4Re = regexp.MustCompile(`\b(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})\b`)

	// FQDNs with at least two dots and an alphabetic TLD.
	hostRe = regexp.MustCompile(`\b([a-zA-Z0-9][-a-zA-Z0-9]*\.[-a-zA-Z0-9]+\.[a-zA-Z]{2,})\b`)

	// key=value pairs where the key suggests a secret.
	credKVRe = regexp.MustCompile(`(?i)((?:password|passwd|secret|token|api_key|apikey|auth)[ \t]*[=:][ \t]*\S+)`)
)

var safeIPs = map[string]bool{
	"127.0.0.1": true,
	"0.0.0.0":   true,
}

// Scan finds sensitive detail in text and returns deduplicated matches
// sorted by position.
func Scan(text string) []Match {
	return ScanWithConfig(text, Config{}, nil)
}

// ScanWithConfig is Scan with operator safe lists, literals and extra
// patterns applied.
func ScanWithConfig(text string, cfg Config, extra []ExtraPattern) []Match {
	seen := make(map[string]bool)
	var matches []Match

	add := func(typ PatternType, value string, start int) {
		value = strings.TrimRight(value, ".,;:\"'`)}]")
		if value == "" || seen[value] {
			return
		}
		seen[value] = true
		matches = append(matches, Match{Type: typ, Value: value, Start: start, End: start + len(value)})
	}

	for _, lit := range cfg.Literals {
		if lit == "" {
			continue
		}
		if idx := strings.Index(text, lit); idx >= 0 {
			add(PatternLiteral, lit, idx)
		}
	}

	for _, p := range extra {
		for _, loc := range p.Regex.FindAllStringIndex(text, -1) {
			add(p.TokenPrefix, text[loc[0]:loc[1]], loc[0])
		}
	}

	for _, loc := range credKVRe.FindAllStringIndex(text, -1) {
		add(PatternCred, text[loc[0]:loc[1]], loc[0])
	}

	for _, loc := range pathRe.FindAllStringIndex(text, -1) {
		v := text[loc[0]:loc[1]]
		if !isSafePath(v, cfg.SafePaths) && !isIPLike(v) {
			add(PatternPath, v, loc[0])
		}
	}

	for _, loc := range ipv4Re.FindAllStringIndex(text, -1) {
		v := text[loc[0]:loc[1]]
		if !safeIPs[v] {
			add(PatternIP, v, loc[0])
		}
	}

	for _, loc := range hostRe.FindAllStringIndex(text, -1) {
		v := text[loc[0]:loc[1]]
		if !isIPLike(v) && !insideMatch(loc[0], matches) {
			add(PatternHost, v, loc[0])
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Start < matches[j].Start
	})
	return matches
}

func isSafePath(p string, safe []string) bool {
	for _, s := range safe {
		if s != "" && strings.HasPrefix(p, s) {
			return true
		}
	}
	return false
}

// insideMatch reports whether pos falls inside an earlier match. Hosts
// embedded in paths are covered by the path token.
func insideMatch(pos int, matches []Match) bool {
	for _, m := range matches {
		if pos >= m.Start && pos < m.End {
			return true
		}
	}
	return false
}

// isIPLike returns true if s is all digits and dots.
func isIPLike(s string) bool {
	for _, c := range s {
		if c != '.' && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
