package sandbox

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/ppiankov/chaingate/internal/model"
)

type tarEntry struct {
	name     string
	body     string
	typeflag byte
	linkname string
}

func file(name, body string) tarEntry { return tarEntry{name: name, body: body, typeflag: tar.TypeReg} }

func tarBytes(t *testing.T, entries ...tarEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Typeflag: e.typeflag, Linkname: e.linkname, Mode: 0o644}
		if e.typeflag == tar.TypeReg {
			hdr.Size = int64(len(e.body))
		}
		if e.typeflag == tar.TypeDir {
			hdr.Mode = 0o755
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if e.typeflag == tar.TypeReg {
			if _, err := tw.Write([]byte(e.body)); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func compress(t *testing.T, format Format, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	var w io.WriteCloser
	switch format {
	case FormatTar:
		return data
	case FormatTarGzip:
		w = gzip.NewWriter(&buf)
	case FormatTarZstd:
		enc, err := zstd.NewWriter(&buf)
		if err != nil {
			t.Fatal(err)
		}
		w = enc
	case FormatTarLz4:
		w = lz4.NewWriter(&buf)
	default:
		t.Fatalf("compress: unsupported %s", format)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func zipBytes(t *testing.T, entries ...tarEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		hdr := &zip.FileHeader{Name: e.name, Method: zip.Deflate}
		body := e.body
		switch e.typeflag {
		case tar.TypeSymlink:
			hdr.SetMode(os.ModeSymlink | 0o777)
			body = e.linkname
		case tar.TypeDir:
			hdr.SetMode(os.ModeDir | 0o755)
		default:
			hdr.SetMode(0o644)
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func writeArchive(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

type extractFixture struct {
	ws      string
	dest    string
	outside string
	guard   Guard
}

func newExtractFixture(t *testing.T) extractFixture {
	t.Helper()
	parent := realDir(t, t.TempDir())
	ws := filepath.Join(parent, "ws")
	outside := filepath.Join(parent, "outside")
	for _, d := range []string{ws, outside} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return extractFixture{
		ws:      ws,
		dest:    filepath.Join(ws, "out"),
		outside: outside,
		guard:   Guard{Side: model.SideAgent, Roots: []Root{NewRoot(ws, RootWorkspace)}},
	}
}

func assertArchiveDenied(t *testing.T, err error) model.Decision {
	t.Helper()
	d, ok := AsDenied(err)
	if !ok {
		t.Fatalf("expected denial, got %v", err)
	}
	if d.Kind != model.KindArchiveEntryEscape {
		t.Errorf("expected ArchiveEntryEscape, got %s", d.Kind)
	}
	if d.Redacted != RedactedArchive {
		t.Errorf("unexpected redacted message %q", d.Redacted)
	}
	return d
}

func TestExtractFormats(t *testing.T) {
	entries := []tarEntry{
		{name: "pkg/", typeflag: tar.TypeDir},
		file("pkg/a.txt", "alpha"),
		file("pkg/nested/b.txt", "beta"),
		{name: "pkg/link", typeflag: tar.TypeSymlink, linkname: "a.txt"},
	}
	for _, format := range []Format{FormatTar, FormatTarGzip, FormatTarZstd, FormatTarLz4, FormatZip} {
		t.Run(string(format), func(t *testing.T) {
			fx := newExtractFixture(t)
			var data []byte
			if format == FormatZip {
				data = zipBytes(t, entries...)
			} else {
				data = compress(t, format, tarBytes(t, entries...))
			}
			archive := writeArchive(t, fx.ws, "bundle."+string(format), data)

			report, err := fx.guard.Extract(context.Background(), archive, fx.dest, "")
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if report.Format != format {
				t.Errorf("expected format %s, got %s", format, report.Format)
			}
			got, err := os.ReadFile(filepath.Join(fx.dest, "pkg", "nested", "b.txt"))
			if err != nil || string(got) != "beta" {
				t.Errorf("nested file: %q %v", got, err)
			}
			linked, err := os.ReadFile(filepath.Join(fx.dest, "pkg", "link"))
			if err != nil || string(linked) != "alpha" {
				t.Errorf("internal symlink: %q %v", linked, err)
			}
		})
	}
}

func TestExtractStopsBeforeEscapingEntry(t *testing.T) {
	fx := newExtractFixture(t)
	archive := writeArchive(t, fx.ws, "slip.tar", tarBytes(t,
		file("safe.txt", "ok"),
		file("../../outside/escape.txt", "pwned"),
		file("after.txt", "never"),
	))

	report, err := fx.guard.Extract(context.Background(), archive, fx.dest, "")
	assertArchiveDenied(t, err)

	if got, err := os.ReadFile(filepath.Join(fx.dest, "safe.txt")); err != nil || string(got) != "ok" {
		t.Errorf("safe entry should be written and kept: %q %v", got, err)
	}
	if _, err := os.Stat(filepath.Join(fx.outside, "escape.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("escaping entry must not exist on disk, stat err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(fx.dest, "after.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("entries after the rejected one must not be written, stat err = %v", err)
	}
	if len(report.Written) != 1 || report.Written[0] != "safe.txt" {
		t.Errorf("unexpected report %+v", report)
	}
	if report.Denied != "../../outside/escape.txt" {
		t.Errorf("expected report to name the denied entry, got %q", report.Denied)
	}
}

func TestExtractZipSlip(t *testing.T) {
	fx := newExtractFixture(t)
	archive := writeArchive(t, fx.ws, "slip.zip", zipBytes(t,
		file("ok.txt", "fine"),
		file(`..\..\outside\evil.txt`, "pwned"),
	))

	_, err := fx.guard.Extract(context.Background(), archive, fx.dest, "")
	assertArchiveDenied(t, err)
	if _, err := os.Stat(filepath.Join(fx.outside, "evil.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("zip slip entry written: %v", err)
	}
}

func TestExtractAbsoluteEntryDenied(t *testing.T) {
	fx := newExtractFixture(t)
	archive := writeArchive(t, fx.ws, "abs.tar", tarBytes(t, file(filepath.Join(fx.outside, "abs.txt"), "x")))

	_, err := fx.guard.Extract(context.Background(), archive, fx.dest, FormatTar)
	assertArchiveDenied(t, err)
	if _, err := os.Stat(filepath.Join(fx.outside, "abs.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("absolute entry written: %v", err)
	}
}

func TestExtractSymlinkEntryOutsideDenied(t *testing.T) {
	fx := newExtractFixture(t)
	archive := writeArchive(t, fx.ws, "link.tar", tarBytes(t,
		tarEntry{name: "escape", typeflag: tar.TypeSymlink, linkname: fx.outside},
		file("escape/evil.txt", "pwned"),
	))

	_, err := fx.guard.Extract(context.Background(), archive, fx.dest, "")
	assertArchiveDenied(t, err)
	if _, err := os.Lstat(filepath.Join(fx.dest, "escape")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("escaping symlink must not be created: %v", err)
	}
	if _, err := os.Stat(filepath.Join(fx.outside, "evil.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("file written through symlink: %v", err)
	}
}

func TestExtractRelativeSymlinkOutsideDenied(t *testing.T) {
	fx := newExtractFixture(t)
	archive := writeArchive(t, fx.ws, "rel.tar", tarBytes(t,
		tarEntry{name: "sub/up", typeflag: tar.TypeSymlink, linkname: "../../../outside"},
	))

	_, err := fx.guard.Extract(context.Background(), archive, fx.dest, "")
	assertArchiveDenied(t, err)
}

func TestExtractThroughPreexistingSymlinkDenied(t *testing.T) {
	fx := newExtractFixture(t)
	if err := os.MkdirAll(fx.dest, 0o755); err != nil {
		t.Fatal(err)
	}
	mustSymlink(t, fx.outside, filepath.Join(fx.dest, "planted"))
	archive := writeArchive(t, fx.ws, "planted.tar", tarBytes(t, file("planted/evil.txt", "pwned")))

	_, err := fx.guard.Extract(context.Background(), archive, fx.dest, "")
	assertArchiveDenied(t, err)
	if _, err := os.Stat(filepath.Join(fx.outside, "evil.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("file written through planted symlink: %v", err)
	}
}

func TestExtractReplacesFinalSymlinkWithoutFollowing(t *testing.T) {
	fx := newExtractFixture(t)
	if err := os.MkdirAll(fx.dest, 0o755); err != nil {
		t.Fatal(err)
	}
	victim := filepath.Join(fx.dest, "victim.txt")
	if err := os.WriteFile(victim, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}
	mustSymlink(t, "victim.txt", filepath.Join(fx.dest, "data.txt"))
	archive := writeArchive(t, fx.ws, "over.tar", tarBytes(t, file("data.txt", "new")))

	if _, err := fx.guard.Extract(context.Background(), archive, fx.dest, ""); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got, _ := os.ReadFile(victim); string(got) != "original" {
		t.Errorf("symlink target was overwritten: %q", got)
	}
	info, err := os.Lstat(filepath.Join(fx.dest, "data.txt"))
	if err != nil || info.Mode()&os.ModeSymlink != 0 {
		t.Errorf("expected regular file replacing the symlink, got %v %v", info, err)
	}
}

func TestExtractHardlinkOutsideDenied(t *testing.T) {
	fx := newExtractFixture(t)
	archive := writeArchive(t, fx.ws, "hard.tar", tarBytes(t,
		tarEntry{name: "passwd", typeflag: tar.TypeLink, linkname: "../../outside/secret"},
	))

	_, err := fx.guard.Extract(context.Background(), archive, fx.dest, "")
	assertArchiveDenied(t, err)
}

func TestExtractHardlinkInside(t *testing.T) {
	fx := newExtractFixture(t)
	archive := writeArchive(t, fx.ws, "hard.tar", tarBytes(t,
		file("a.txt", "shared"),
		tarEntry{name: "b.txt", typeflag: tar.TypeLink, linkname: "a.txt"},
	))

	if _, err := fx.guard.Extract(context.Background(), archive, fx.dest, ""); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got, _ := os.ReadFile(filepath.Join(fx.dest, "b.txt")); string(got) != "shared" {
		t.Errorf("unexpected hardlink content %q", got)
	}
}

func TestExtractDestinationOutsideRoots(t *testing.T) {
	fx := newExtractFixture(t)
	archive := writeArchive(t, fx.ws, "ok.tar", tarBytes(t, file("a.txt", "x")))

	_, err := fx.guard.Extract(context.Background(), archive, filepath.Join(fx.outside, "dest"), "")
	d, ok := AsDenied(err)
	if !ok || d.Kind != model.KindPathEscape {
		t.Fatalf("expected PathEscape for destination, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(fx.outside, "dest")); !errors.Is(err, os.ErrNotExist) {
		t.Error("destination outside roots must not be created")
	}
}

func TestExtractProtectedEntryDenied(t *testing.T) {
	fx := newExtractFixture(t)
	fx.guard.Roots = []Root{{Path: fx.ws, Kind: RootBuild, Protected: []string{"out/build.xml"}}}
	archive := writeArchive(t, fx.ws, "p.tar", tarBytes(t, file("build.xml", "<evil/>")))

	_, err := fx.guard.Extract(context.Background(), archive, fx.dest, "")
	assertArchiveDenied(t, err)
}

func TestExtractCancelled(t *testing.T) {
	fx := newExtractFixture(t)
	archive := writeArchive(t, fx.ws, "c.tar", tarBytes(t, file("a.txt", "x")))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := fx.guard.Extract(ctx, archive, fx.dest, ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDetectFormatByMagic(t *testing.T) {
	tests := []struct {
		head []byte
		want Format
	}{
		{[]byte{0x1f, 0x8b, 0x08}, FormatTarGzip},
		{[]byte{0x28, 0xb5, 0x2f, 0xfd, 0x00}, FormatTarZstd},
		{[]byte{0x04, 0x22, 0x4d, 0x18}, FormatTarLz4},
		{[]byte("PK\x03\x04rest"), FormatZip},
	}
	for _, tt := range tests {
		got, err := DetectFormat("upload.bin", tt.head)
		if err != nil || got != tt.want {
			t.Errorf("DetectFormat(%x) = %s, %v; want %s", tt.head, got, err, tt.want)
		}
	}

	tarHead := tarBytes(t, file("a", "b"))
	if got, err := DetectFormat("upload.bin", tarHead[:512]); err != nil || got != FormatTar {
		t.Errorf("tar magic: %s %v", got, err)
	}
	if _, err := DetectFormat("upload.bin", []byte("plain text")); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("TGZ"); err != nil || f != FormatTarGzip {
		t.Errorf("ParseFormat(TGZ) = %s %v", f, err)
	}
	if _, err := ParseFormat("rar"); err == nil {
		t.Error("expected error for rar")
	}
}
