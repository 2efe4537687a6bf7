package sandbox

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// realDir returns dir with its own symlinks resolved, so expectations
// hold on systems where the temp dir lives behind a symlink.
func realDir(t *testing.T, dir string) string {
	t.Helper()
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatal(err)
	}
	return resolved
}

func mustSymlink(t *testing.T, target, link string) {
	t.Helper()
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
}

func TestCanonicalizeRelativeWithoutBase(t *testing.T) {
	_, err := Canonicalize("sub/file.txt", "")
	if !errors.Is(err, ErrNoBase) {
		t.Fatalf("expected ErrNoBase, got %v", err)
	}
}

func TestCanonicalizeRelativeAgainstBase(t *testing.T) {
	dir := realDir(t, t.TempDir())
	res, err := Canonicalize("a/../b.txt", dir)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "b.txt"); res.Canonical != want {
		t.Errorf("expected %s, got %s", want, res.Canonical)
	}
	if !res.Missing {
		t.Error("expected missing suffix to be reported")
	}
}

func TestCanonicalizeFollowsIntermediateSymlink(t *testing.T) {
	dir := realDir(t, t.TempDir())
	if err := os.MkdirAll(filepath.Join(dir, "real", "deep"), 0o755); err != nil {
		t.Fatal(err)
	}
	mustSymlink(t, "real", filepath.Join(dir, "alias"))

	res, err := Canonicalize(filepath.Join(dir, "alias", "deep", "f"), "")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "real", "deep", "f"); res.Canonical != want {
		t.Errorf("expected %s, got %s", want, res.Canonical)
	}
	if len(res.Hops) != 1 || res.Hops[0].Link != filepath.Join(dir, "alias") {
		t.Errorf("unexpected hops %+v", res.Hops)
	}
	if res.Hops[0].Target != filepath.Join(dir, "real") {
		t.Errorf("unexpected hop target %s", res.Hops[0].Target)
	}
}

func TestCanonicalizeDotDotAfterSymlink(t *testing.T) {
	dir := realDir(t, t.TempDir())
	if err := os.MkdirAll(filepath.Join(dir, "x", "y"), 0o755); err != nil {
		t.Fatal(err)
	}
	mustSymlink(t, filepath.Join(dir, "x", "y"), filepath.Join(dir, "ly"))

	res, err := Canonicalize(filepath.Join(dir, "ly")+string(filepath.Separator)+"..", "")
	if err != nil {
		t.Fatal(err)
	}
	// The nominal path is cleaned lexically before resolution.
	if res.Canonical != dir {
		t.Errorf("expected lexical collapse to %s, got %s", dir, res.Canonical)
	}
}

func TestCanonicalizeLoop(t *testing.T) {
	dir := realDir(t, t.TempDir())
	mustSymlink(t, "b", filepath.Join(dir, "a"))
	mustSymlink(t, "a", filepath.Join(dir, "b"))

	_, err := Canonicalize(filepath.Join(dir, "a", "file"), "")
	if !errors.Is(err, ErrSymlinkLoop) {
		t.Fatalf("expected ErrSymlinkLoop, got %v", err)
	}
}

func TestWithin(t *testing.T) {
	sep := string(filepath.Separator)
	root := sep + filepath.Join("srv", "ws")
	tests := []struct {
		path string
		want bool
	}{
		{root, true},
		{filepath.Join(root, "a", "b"), true},
		{filepath.Join(sep, "srv"), false},
		{filepath.Join(sep, "srv", "ws2"), false},
		{filepath.Join(sep, "srv", "ws..x"), false},
		{filepath.Join(root, "..", "other"), false},
	}
	for _, tt := range tests {
		if got := Within(tt.path, root); got != tt.want {
			t.Errorf("Within(%q, %q) = %v, want %v", tt.path, root, got, tt.want)
		}
	}
}
