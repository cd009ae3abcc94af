// Package fsutil provides the filesystem capture primitives shared by the
// snapshot store and the backup engine: recursive copy, hashing, and
// manifest building/verification over a file tree.
package fsutil

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/stackward/stackward/internal/core/manifest"
)

// DefaultMaxConcurrent bounds parallel hashing work.
const DefaultMaxConcurrent = 4

// =============================================================================
// Hashing
// =============================================================================

// HashFile returns the SHA-256 checksum of a file as lowercase hex.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FilesEqual reports whether two files have identical content. A missing
// file is never equal to an existing one.
func FilesEqual(a, b string) (bool, error) {
	ha, err := HashFile(a)
	if err != nil {
		return false, err
	}
	hb, err := HashFile(b)
	if err != nil {
		return false, err
	}
	return ha == hb, nil
}

// =============================================================================
// Copying
// =============================================================================

// CopyFile copies a regular file, preserving its mode. Parent directories of
// dst are created as needed.
func CopyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// CopyPath copies a file or directory tree. Symlinks and other irregular
// files are skipped.
func CopyPath(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return CopyFile(src, dst)
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return CopyFile(path, target)
	})
}

// =============================================================================
// Manifest Building and Verification
// =============================================================================

// ListFiles returns the slash-separated relative paths of all regular files
// under root, sorted.
func ListFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// BuildManifest checksums every regular file under root, hashing up to
// maxConcurrent files in parallel. Individual file errors abort the build;
// a manifest with holes is worthless.
func BuildManifest(ctx context.Context, root string, maxConcurrent int) ([]manifest.Entry, error) {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}

	paths, err := ListFiles(root)
	if err != nil {
		return nil, err
	}

	entries := make([]manifest.Entry, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)

	for i, rel := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			full := filepath.Join(root, filepath.FromSlash(rel))
			info, err := os.Stat(full)
			if err != nil {
				return err
			}
			sum, err := HashFile(full)
			if err != nil {
				return err
			}
			entries[i] = manifest.Entry{Path: rel, Size: info.Size(), Checksum: sum}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

// VerifyTree checks every manifest entry against the files under root and
// returns one reason per mismatch. An empty result means the tree matches.
func VerifyTree(ctx context.Context, root string, entries []manifest.Entry) []string {
	var (
		mu      sync.Mutex
		reasons []string
	)
	record := func(reason string) {
		mu.Lock()
		reasons = append(reasons, reason)
		mu.Unlock()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(DefaultMaxConcurrent)
	for _, e := range entries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			full := filepath.Join(root, filepath.FromSlash(e.Path))
			info, err := os.Stat(full)
			if err != nil {
				record(fmt.Sprintf("%s: missing (%v)", e.Path, err))
				return nil
			}
			if info.Size() != e.Size {
				record(fmt.Sprintf("%s: size %d, manifest says %d", e.Path, info.Size(), e.Size))
				return nil
			}
			sum, err := HashFile(full)
			if err != nil {
				record(fmt.Sprintf("%s: unreadable (%v)", e.Path, err))
				return nil
			}
			if sum != e.Checksum {
				record(fmt.Sprintf("%s: checksum mismatch", e.Path))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		record(fmt.Sprintf("verification aborted: %v", err))
	}
	sort.Strings(reasons)
	return reasons
}

// TreeSize returns the total size in bytes of regular files under root.
func TreeSize(root string) int64 {
	var total int64
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}
