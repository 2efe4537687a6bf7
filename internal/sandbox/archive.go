package sandbox

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/ppiankov/chaingate/internal/model"
)

// Format is an archive container format.
type Format string

const (
	FormatTar     Format = "tar"
	FormatTarGzip Format = "tar.gz"
	FormatTarZstd Format = "tar.zst"
	FormatTarLz4  Format = "tar.lz4"
	FormatZip     Format = "zip"
)

// maxLinkTarget bounds the size of a symlink target stored as zip content.
const maxLinkTarget = 4096

var (
	magicGzip = []byte{0x1f, 0x8b}
	magicZstd = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicLz4  = []byte{0x04, 0x22, 0x4d, 0x18}
	magicZip  = []byte("PK\x03\x04")
	magicTar  = []byte("ustar")
)

// DetectFormat picks a format from the file name, falling back to the
// leading bytes of the file.
func DetectFormat(name string, head []byte) (Format, error) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatTarGzip, nil
	case strings.HasSuffix(lower, ".tar.zst"), strings.HasSuffix(lower, ".tzst"):
		return FormatTarZstd, nil
	case strings.HasSuffix(lower, ".tar.lz4"):
		return FormatTarLz4, nil
	case strings.HasSuffix(lower, ".tar"):
		return FormatTar, nil
	case strings.HasSuffix(lower, ".zip"), strings.HasSuffix(lower, ".jar"), strings.HasSuffix(lower, ".war"):
		return FormatZip, nil
	}

	switch {
	case bytes.HasPrefix(head, magicGzip):
		return FormatTarGzip, nil
	case bytes.HasPrefix(head, magicZstd):
		return FormatTarZstd, nil
	case bytes.HasPrefix(head, magicLz4):
		return FormatTarLz4, nil
	case bytes.HasPrefix(head, magicZip):
		return FormatZip, nil
	case len(head) >= 262 && bytes.Equal(head[257:262], magicTar):
		return FormatTar, nil
	}
	return "", fmt.Errorf("unrecognized archive format: %s", name)
}

// ParseFormat maps a string to a Format. Empty means detect.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatTar, FormatTarGzip, FormatTarZstd, FormatTarLz4, FormatZip:
		return f, nil
	case "tgz":
		return FormatTarGzip, nil
	default:
		return "", fmt.Errorf("unknown archive format %q", s)
	}
}

// Report lists what an extraction did. On a denied entry it still
// describes the entries extracted before it.
type Report struct {
	Format  Format   `json:"format"`
	Written []string `json:"written"`
	Skipped []string `json:"skipped,omitempty"`
	Denied  string   `json:"denied,omitempty"`
}

type entryKind int

const (
	entryFile entryKind = iota
	entryDir
	entrySymlink
	entryHardlink
	entryOther
)

type entry struct {
	name     string
	kind     entryKind
	linkname string
	mode     os.FileMode
	body     func() (io.ReadCloser, error)
}

// Extract unpacks archive into dest. Every entry is checked before any
// byte of it is written: its name, its resolved parent directory, and
// for links their target. Extraction stops at the first rejected entry;
// entries written before it are left in place. An empty format is
// detected from the archive.
func (g Guard) Extract(ctx context.Context, archive, dest string, format Format) (*Report, error) {
	if err := g.Require(model.OpRead, archive); err != nil {
		return nil, err
	}
	if err := g.Require(model.OpExtract, dest); err != nil {
		return nil, err
	}

	archivePath, destPath := archive, dest
	if !filepath.IsAbs(archivePath) {
		archivePath = filepath.Join(g.Base, archivePath)
	}
	if !filepath.IsAbs(destPath) {
		destPath = filepath.Join(g.Base, destPath)
	}
	if err := os.MkdirAll(destPath, 0o755); err != nil {
		return nil, fmt.Errorf("create extraction root: %w", err)
	}
	destRes, err := Canonicalize(destPath, "")
	if err != nil {
		return nil, fmt.Errorf("resolve extraction root: %w", err)
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	if format == "" {
		head := make([]byte, 512)
		n, _ := io.ReadFull(f, head)
		if format, err = DetectFormat(archivePath, head[:n]); err != nil {
			return nil, err
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("rewind archive: %w", err)
		}
	}

	x := &extractor{ctx: ctx, guard: g, dest: destRes.Canonical, report: &Report{Format: format}}
	switch format {
	case FormatZip:
		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("stat archive: %w", err)
		}
		err = walkZip(f, info.Size(), x.extract)
		return x.finish(err)
	case FormatTar:
		return x.finish(walkTar(f, x.extract))
	case FormatTarGzip:
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open gzip stream: %w", err)
		}
		defer zr.Close()
		return x.finish(walkTar(zr, x.extract))
	case FormatTarZstd:
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open zstd stream: %w", err)
		}
		defer zr.Close()
		return x.finish(walkTar(zr, x.extract))
	case FormatTarLz4:
		return x.finish(walkTar(lz4.NewReader(f), x.extract))
	default:
		return nil, fmt.Errorf("unsupported archive format %q", format)
	}
}

func walkTar(r io.Reader, fn func(entry) error) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		// Insecure names are judged by the extractor, not the reader.
		if err != nil && !(errors.Is(err, tar.ErrInsecurePath) && hdr != nil) {
			return fmt.Errorf("read tar entry: %w", err)
		}
		e := entry{
			name:     hdr.Name,
			linkname: hdr.Linkname,
			mode:     hdr.FileInfo().Mode(),
			body:     func() (io.ReadCloser, error) { return io.NopCloser(tr), nil },
		}
		switch hdr.Typeflag {
		case tar.TypeReg:
			e.kind = entryFile
		case tar.TypeDir:
			e.kind = entryDir
		case tar.TypeSymlink:
			e.kind = entrySymlink
		case tar.TypeLink:
			e.kind = entryHardlink
		default:
			e.kind = entryOther
		}
		if err := fn(e); err != nil {
			return err
		}
	}
}

func walkZip(r io.ReaderAt, size int64, fn func(entry) error) error {
	zr, err := zip.NewReader(r, size)
	if zr == nil {
		return fmt.Errorf("open zip: %w", err)
	}
	for _, zf := range zr.File {
		mode := zf.Mode()
		e := entry{name: zf.Name, mode: mode, body: zf.Open}
		switch {
		case mode&os.ModeSymlink != 0:
			e.kind = entrySymlink
			target, err := readLinkTarget(zf)
			if err != nil {
				return err
			}
			e.linkname = target
		case mode.IsDir() || strings.HasSuffix(zf.Name, "/"):
			e.kind = entryDir
		case mode.IsRegular():
			e.kind = entryFile
		default:
			e.kind = entryOther
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func readLinkTarget(zf *zip.File) (string, error) {
	rc, err := zf.Open()
	if err != nil {
		return "", fmt.Errorf("open zip entry %s: %w", zf.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxLinkTarget+1))
	if err != nil {
		return "", fmt.Errorf("read zip entry %s: %w", zf.Name, err)
	}
	if len(data) > maxLinkTarget {
		return "", fmt.Errorf("zip entry %s: symlink target too long", zf.Name)
	}
	return string(data), nil
}

type extractor struct {
	ctx    context.Context
	guard  Guard
	dest   string
	report *Report
}

func (x *extractor) finish(err error) (*Report, error) {
	if d, ok := AsDenied(err); ok {
		x.report.Denied = d.Identifier
	}
	return x.report, err
}

func (x *extractor) extract(e entry) error {
	if err := x.ctx.Err(); err != nil {
		return err
	}
	if e.kind == entryOther {
		x.report.Skipped = append(x.report.Skipped, e.name)
		return nil
	}

	op := model.OpExtract
	if e.kind == entrySymlink {
		op = model.OpSymlink
	}
	target, err := x.place(e.name, op)
	if err != nil {
		return err
	}

	switch e.kind {
	case entryDir:
		if info, err := os.Lstat(target); err == nil && info.Mode()&os.ModeSymlink != 0 {
			return x.deny(e.name, fmt.Sprintf("directory entry %s collides with existing symlink", e.name))
		}
		if err := os.MkdirAll(target, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", e.name, err)
		}
	case entryFile:
		if err := x.writeFile(target, e); err != nil {
			return err
		}
	case entrySymlink:
		if err := x.checkLinkTarget(e, filepath.Join(filepath.Dir(target), filepath.FromSlash(e.linkname))); err != nil {
			return err
		}
		if err := x.clear(target); err != nil {
			return err
		}
		if err := os.Symlink(e.linkname, target); err != nil {
			return fmt.Errorf("create symlink %s: %w", e.name, err)
		}
	case entryHardlink:
		source, err := x.place(e.linkname, model.OpRead)
		if err != nil {
			return x.deny(e.name, fmt.Sprintf("hardlink %s targets %s outside extraction root", e.name, e.linkname))
		}
		if err := x.clear(target); err != nil {
			return err
		}
		if err := os.Link(source, target); err != nil {
			return fmt.Errorf("create hardlink %s: %w", e.name, err)
		}
	}
	x.report.Written = append(x.report.Written, e.name)
	return nil
}

// place maps an entry name to its on-disk location. The parent directory
// is fully resolved; the final component is kept literal.
func (x *extractor) place(name string, op model.Operation) (string, error) {
	clean := strings.ReplaceAll(name, `\`, "/")
	if strings.HasPrefix(clean, "/") || filepath.VolumeName(clean) != "" {
		return "", x.deny(name, fmt.Sprintf("entry %s has an absolute name", name))
	}
	clean = path.Clean(clean)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", x.deny(name, fmt.Sprintf("entry %s escapes extraction root", name))
	}
	if clean == "." {
		return x.dest, nil
	}

	nominal := filepath.Join(x.dest, filepath.FromSlash(clean))
	parent, err := Canonicalize(filepath.Dir(nominal), "")
	if err != nil {
		return "", x.deny(name, fmt.Sprintf("cannot resolve parent of entry %s: %v", name, err))
	}
	if !Within(parent.Canonical, x.dest) {
		return "", x.deny(name, fmt.Sprintf("entry %s resolves to %s outside extraction root", name, parent.Canonical))
	}
	for _, hop := range parent.Hops {
		if !Within(hop.Target, x.dest) {
			return "", x.deny(name, fmt.Sprintf("entry %s passes through symlink %s to %s", name, hop.Link, hop.Target))
		}
	}

	target := filepath.Join(parent.Canonical, filepath.Base(nominal))
	if d := x.guard.Check(op, target); !d.Allowed {
		return "", x.deny(name, d.Reason)
	}
	return target, nil
}

func (x *extractor) checkLinkTarget(e entry, resolved string) error {
	if filepath.IsAbs(e.linkname) {
		resolved = filepath.Clean(e.linkname)
	}
	res, err := Canonicalize(resolved, "")
	if err != nil {
		return x.deny(e.name, fmt.Sprintf("cannot resolve symlink target of %s: %v", e.name, err))
	}
	if !Within(res.Canonical, x.dest) {
		return x.deny(e.name, fmt.Sprintf("symlink %s points to %s outside extraction root", e.name, res.Canonical))
	}
	return nil
}

// clear removes an existing non-directory at target so a link or file
// can take its place without following it.
func (x *extractor) clear(target string) error {
	info, err := os.Lstat(target)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", target, err)
	}
	if info.IsDir() {
		return fmt.Errorf("cannot replace directory %s", target)
	}
	return os.Remove(target)
}

func (x *extractor) writeFile(target string, e entry) error {
	if info, err := os.Lstat(target); err == nil && info.Mode()&os.ModeSymlink != 0 {
		if err := os.Remove(target); err != nil {
			return fmt.Errorf("replace symlink %s: %w", e.name, err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create parent of %s: %w", e.name, err)
	}
	perm := e.mode.Perm()
	if perm == 0 {
		perm = 0o644
	}
	out, err := OpenNoFollow(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create %s: %w", e.name, err)
	}
	body, err := e.body()
	if err != nil {
		_ = out.Close()
		return fmt.Errorf("open entry %s: %w", e.name, err)
	}
	_, copyErr := io.Copy(out, body)
	_ = body.Close()
	if err := out.Close(); err != nil && copyErr == nil {
		copyErr = err
	}
	if copyErr != nil {
		return fmt.Errorf("write %s: %w", e.name, copyErr)
	}
	return nil
}

func (x *extractor) deny(name, reason string) error {
	return &DeniedError{Decision: model.Deny(model.KindArchiveEntryEscape, name, reason, RedactedArchive)}
}
