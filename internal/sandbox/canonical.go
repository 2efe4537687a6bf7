package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MaxSymlinkHops bounds symlink expansion during one resolution.
const MaxSymlinkHops = 255

var (
	// ErrNoBase is returned for relative paths when no base directory is known.
	ErrNoBase = errors.New("relative path without base directory")
	// ErrSymlinkLoop is returned when resolution exceeds MaxSymlinkHops.
	ErrSymlinkLoop = errors.New("too many levels of symbolic links")
)

// Hop is one symlink followed during resolution.
type Hop struct {
	// Link is the canonical location of the symlink itself.
	Link string
	// Target is where the link points, made absolute against Link's directory.
	Target string
}

// Resolution is the outcome of canonicalizing a path.
type Resolution struct {
	Nominal   string
	Canonical string
	Hops      []Hop
	// Missing is set when a trailing part of the path does not exist.
	// Those components are resolved lexically.
	Missing bool
}

// Canonicalize resolves path to its canonical absolute form, following
// symlinks one component at a time. Relative paths resolve against base.
// Nonexistent trailing components are appended lexically.
func Canonicalize(path, base string) (Resolution, error) {
	if path == "" {
		return Resolution{}, fmt.Errorf("empty path")
	}
	nominal := path
	if !filepath.IsAbs(nominal) {
		if base == "" {
			return Resolution{}, ErrNoBase
		}
		if !filepath.IsAbs(base) {
			return Resolution{}, fmt.Errorf("base directory %q is not absolute", base)
		}
		nominal = filepath.Join(base, nominal)
	}
	nominal = filepath.Clean(nominal)

	res := Resolution{Nominal: nominal}
	volume := filepath.VolumeName(nominal)
	resolved := volume + string(filepath.Separator)
	pending := splitPath(nominal[len(volume):])

	for len(pending) > 0 {
		comp := pending[0]
		pending = pending[1:]

		switch comp {
		case "", ".":
			continue
		case "..":
			resolved = filepath.Dir(resolved)
			continue
		}

		next := filepath.Join(resolved, comp)
		if res.Missing {
			resolved = next
			continue
		}

		info, err := os.Lstat(next)
		if err != nil {
			if os.IsNotExist(err) {
				res.Missing = true
				resolved = next
				continue
			}
			return res, fmt.Errorf("resolve %s: %w", next, err)
		}
		if info.Mode()&os.ModeSymlink == 0 {
			resolved = next
			continue
		}

		if len(res.Hops) >= MaxSymlinkHops {
			return res, ErrSymlinkLoop
		}
		target, err := os.Readlink(next)
		if err != nil {
			return res, fmt.Errorf("read link %s: %w", next, err)
		}
		hop := Hop{Link: next}
		if filepath.IsAbs(target) {
			hop.Target = filepath.Clean(target)
			tv := filepath.VolumeName(target)
			resolved = tv + string(filepath.Separator)
			target = target[len(tv):]
		} else {
			hop.Target = filepath.Join(resolved, target)
		}
		res.Hops = append(res.Hops, hop)
		pending = append(splitPath(target), pending...)
	}

	res.Canonical = resolved
	return res, nil
}

func splitPath(p string) []string {
	return strings.FieldsFunc(p, func(r rune) bool {
		return r == filepath.Separator || r == '/'
	})
}

// Within reports whether path lies at or below root. Both must be clean
// absolute paths.
func Within(path, root string) bool {
	path = filepath.Clean(path)
	root = filepath.Clean(root)
	if path == root {
		return true
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
