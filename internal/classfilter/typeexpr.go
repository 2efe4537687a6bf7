package classfilter

import (
	"fmt"
	"strings"
)

const maxTypeDepth = 32

// Components decomposes a type expression into the class names it
// references. Supported forms: name, *T, []T, [N]T, map[K]V and
// name[A,B] (generic parameters). Order follows first appearance and
// duplicates are removed.
func Components(expr string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	if err := collect(strings.TrimSpace(expr), 0, func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}); err != nil {
		return nil, err
	}
	return out, nil
}

func collect(expr string, depth int, emit func(string)) error {
	if depth > maxTypeDepth {
		return fmt.Errorf("type expression nested deeper than %d", maxTypeDepth)
	}
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return fmt.Errorf("empty type expression")
	}

	switch {
	case strings.HasPrefix(expr, "*"):
		return collect(expr[1:], depth+1, emit)

	case strings.HasPrefix(expr, "[]"):
		return collect(expr[2:], depth+1, emit)

	case strings.HasPrefix(expr, "["):
		end := strings.IndexByte(expr, ']')
		if end < 0 {
			return fmt.Errorf("unterminated array length in %q", expr)
		}
		for _, r := range expr[1:end] {
			if r < '0' || r > '9' {
				return fmt.Errorf("invalid array length in %q", expr)
			}
		}
		return collect(expr[end+1:], depth+1, emit)

	case strings.HasPrefix(expr, "map["):
		end, err := matchBracket(expr, 3)
		if err != nil {
			return err
		}
		if err := collect(expr[4:end], depth+1, emit); err != nil {
			return err
		}
		return collect(expr[end+1:], depth+1, emit)
	}

	open := strings.IndexByte(expr, '[')
	if open < 0 {
		if err := validateName(expr); err != nil {
			return err
		}
		emit(expr)
		return nil
	}

	name := expr[:open]
	if err := validateName(name); err != nil {
		return err
	}
	end, err := matchBracket(expr, open)
	if err != nil {
		return err
	}
	if end != len(expr)-1 {
		return fmt.Errorf("trailing characters after type parameters in %q", expr)
	}
	emit(name)
	for _, param := range splitTopLevel(expr[open+1 : end]) {
		if err := collect(param, depth+1, emit); err != nil {
			return err
		}
	}
	return nil
}

// matchBracket returns the index of the ']' closing the '[' at open.
func matchBracket(expr string, open int) (int, error) {
	level := 0
	for i := open; i < len(expr); i++ {
		switch expr[i] {
		case '[':
			level++
		case ']':
			level--
			if level == 0 {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("unbalanced brackets in %q", expr)
}

func splitTopLevel(s string) []string {
	var parts []string
	level, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[':
			level++
		case ']':
			level--
		case ',':
			if level == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("empty class name")
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '/', r == '_', r == '$', r == '-':
		default:
			return fmt.Errorf("invalid character %q in class name %q", r, name)
		}
	}
	return nil
}
