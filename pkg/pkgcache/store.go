// Package pkgcache implements the on-disk package cache: one directory per
// (id, version) holding the extracted archive plus a hash sentinel.
//
// A cache entry is valid when it contains both the sentinel file and a
// .nuspec manifest at its root. Entries survive indefinitely across runs;
// a failed download or extraction rolls the entry back so a later attempt
// starts clean.
package pkgcache

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nugo-cli/nugo/pkg/errors"
	"github.com/nugo-cli/nugo/pkg/observability"
)

// HashSentinel is the file at a cache entry's root holding the
// base64-encoded SHA-256 of the original archive bytes. Its presence marks
// a completed extraction; the hash itself is forward-compatibility
// scaffolding and is not compared on later runs.
const HashSentinel = ".package.hash"

// Downloader fetches package archive bytes from a registry.
type Downloader interface {
	DownloadArchive(ctx context.Context, id, version string) ([]byte, error)
}

// Store manages extracted package directories under a cache root.
type Store struct {
	root   string
	logger func(string, ...any)
}

// NewStore creates a store rooted at dir, creating it if absent. The root
// must be non-empty. The optional logger receives per-entry warnings
// (path-traversal skips, rollback failures); pass nil to discard them.
func NewStore(dir string, logger func(string, ...any)) (*Store, error) {
	if dir == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "empty cache root")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "resolve cache root %s", dir)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "create cache root %s", abs)
	}
	if logger == nil {
		logger = func(string, ...any) {}
	}
	return &Store{root: abs, logger: logger}, nil
}

// Root returns the absolute cache root path.
func (s *Store) Root() string { return s.root }

// Dir returns the cache entry directory for a package, whether or not it
// exists: <root>/<id-lower>/<version-lower>.
func (s *Store) Dir(id, version string) string {
	return filepath.Join(s.root, strings.ToLower(id), strings.ToLower(version))
}

// Valid reports whether dir is a complete cache entry: the hash sentinel
// plus at least one .nuspec manifest at its root.
func Valid(dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, HashSentinel)); err != nil {
		return false
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.nuspec"))
	return err == nil && len(matches) > 0
}

// Ensure makes the cache entry for (id, version) present and valid,
// downloading and extracting the archive if needed. It returns the entry
// directory and whether it was already cached (no network I/O performed).
//
// On any download or extraction failure the entry directory is removed
// (best effort) so the next attempt rebuilds it from scratch.
func (s *Store) Ensure(ctx context.Context, dl Downloader, id, version string) (dir string, cached bool, err error) {
	pkg := strings.ToLower(id) + "@" + strings.ToLower(version)
	dir = s.Dir(id, version)

	if Valid(dir) {
		observability.Cache().OnCacheHit(ctx, pkg)
		return dir, true, nil
	}
	observability.Cache().OnCacheMiss(ctx, pkg)

	if err := os.RemoveAll(dir); err != nil {
		return "", false, errors.Wrap(errors.ErrCodeInternal, err, "clear cache entry %s", dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, errors.Wrap(errors.ErrCodeInternal, err, "create cache entry %s", dir)
	}

	archive, err := dl.DownloadArchive(ctx, id, version)
	if err != nil {
		s.rollback(dir)
		return "", false, errors.Wrap(errors.ErrCodeDownloadFailed, err, "download %s", pkg)
	}

	if err := s.extract(ctx, dir, pkg, archive); err != nil {
		s.rollback(dir)
		return "", false, errors.Wrap(errors.ErrCodeDownloadFailed, err, "extract %s", pkg)
	}

	if !Valid(dir) {
		s.rollback(dir)
		return "", false, errors.New(errors.ErrCodeIntegrityCheck, "cache entry %s is incomplete after extraction", pkg)
	}
	return dir, false, nil
}

// extract writes the hash sentinel and unpacks the archive into dir,
// mirroring the archive's internal layout. Entries that would land outside
// dir are skipped with a warning.
func (s *Store) extract(ctx context.Context, dir, pkg string, archive []byte) error {
	sum := sha256.Sum256(archive)
	sentinel := base64.StdEncoding.EncodeToString(sum[:])
	if err := os.WriteFile(filepath.Join(dir, HashSentinel), []byte(sentinel), 0o644); err != nil {
		return err
	}

	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil && !stderrors.Is(err, zip.ErrInsecurePath) {
		// Insecure entry names are handled per entry below; anything else
		// means the archive itself is unreadable.
		return err
	}

	files := 0
	var written int64
	for _, f := range zr.File {
		dest, ok := s.safeDest(dir, f.Name)
		if !ok {
			s.logger("skipping archive entry outside cache dir: %s (%s)", f.Name, pkg)
			continue
		}

		if isDirEntry(f.Name) {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		n, err := writeEntry(dest, f)
		if err != nil {
			return err
		}
		files++
		written += n
	}

	observability.Cache().OnExtract(ctx, pkg, files, written)
	return nil
}

// safeDest resolves an archive entry name below dir, rejecting names whose
// cleaned path escapes the entry directory.
func (s *Store) safeDest(dir, name string) (string, bool) {
	dest := filepath.Join(dir, filepath.FromSlash(name))
	rel, err := filepath.Rel(dir, dest)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return dest, true
}

// isDirEntry reports whether an archive entry names a directory: the
// basename after the final slash is empty.
func isDirEntry(name string) bool {
	return strings.HasSuffix(name, "/")
}

func writeEntry(dest string, f *zip.File) (int64, error) {
	rc, err := f.Open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, rc)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return n, err
}

func (s *Store) rollback(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		s.logger("rollback of %s failed: %v", dir, err)
	}
}
