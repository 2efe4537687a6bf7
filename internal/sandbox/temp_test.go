package sandbox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ppiankov/chaingate/internal/model"
)

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestCreateTempInsideRoot(t *testing.T) {
	root := realDir(t, t.TempDir())
	g := Guard{Side: model.SideAgent, Roots: []Root{NewRoot(root, RootWorkspace)}}

	f, err := g.CreateTemp(root, "upload-*.bin")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer f.Close()
	if filepath.Dir(f.Name()) != root {
		t.Errorf("temp file created in %s, want %s", filepath.Dir(f.Name()), root)
	}
}

func TestCreateTempOutsideRootDenied(t *testing.T) {
	root := realDir(t, t.TempDir())
	outside := realDir(t, t.TempDir())
	g := Guard{Side: model.SideAgent, Roots: []Root{NewRoot(root, RootWorkspace)}}

	if _, err := g.CreateTemp(outside, "x-*"); err == nil {
		t.Fatal("expected temp file outside roots to be denied")
	}
	if names := dirEntries(t, outside); len(names) != 0 {
		t.Errorf("nothing should be created outside roots, found %v", names)
	}
}

func TestCreateTempRejectedResultRemoved(t *testing.T) {
	root := realDir(t, t.TempDir())
	g := Guard{Side: model.SideAgent, Roots: []Root{{Path: root, Kind: RootWorkspace, Protected: []string{"*.lock"}}}}

	_, err := g.CreateTemp(root, "state-*.lock")
	d, ok := AsDenied(err)
	if !ok {
		t.Fatalf("expected denial, got %v", err)
	}
	if d.Kind != model.KindPathEscape {
		t.Errorf("expected PathEscape, got %s", d.Kind)
	}
	if names := dirEntries(t, root); len(names) != 0 {
		t.Errorf("rejected temp file must be removed, found %v", names)
	}
}

func TestMkdirTempRejectedResultRemoved(t *testing.T) {
	root := realDir(t, t.TempDir())
	g := Guard{Side: model.SideAgent, Roots: []Root{{Path: root, Kind: RootWorkspace, Protected: []string{"cache-*"}}}}

	if _, err := g.MkdirTemp(root, "cache-*"); err == nil {
		t.Fatal("expected protected temp dir to be denied")
	}
	if names := dirEntries(t, root); len(names) != 0 {
		t.Errorf("rejected temp dir must be removed, found %v", names)
	}

	name, err := g.MkdirTemp(root, "work-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	if info, err := os.Stat(name); err != nil || !info.IsDir() {
		t.Errorf("expected directory at %s: %v", name, err)
	}
}

func TestOpenNoFollowRefusesFinalSymlink(t *testing.T) {
	dir := realDir(t, t.TempDir())
	target := filepath.Join(dir, "target")
	if err := os.WriteFile(target, []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}
	mustSymlink(t, target, filepath.Join(dir, "link"))

	if f, err := OpenNoFollow(filepath.Join(dir, "link"), os.O_WRONLY|os.O_TRUNC, 0o644); err == nil {
		f.Close()
		t.Fatal("expected open through final symlink to fail")
	}
	if got, _ := os.ReadFile(target); string(got) != "keep" {
		t.Errorf("target modified: %q", got)
	}
}
