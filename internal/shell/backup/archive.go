package backup

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stackward/stackward/internal/core/domain"
	"github.com/stackward/stackward/internal/core/manifest"
)

// Archive layout: metadata.yaml and manifest.txt at the root, captured files
// under files/ with their original absolute paths made relative (leading
// slash stripped).
const (
	metaFileName = "metadata.yaml"
	filesPrefix  = "files/"
)

// archiveMeta is the typed record stored inside every archive.
type archiveMeta struct {
	ID          string            `yaml:"id"`
	Type        domain.BackupType `yaml:"type"`
	CreatedAt   time.Time         `yaml:"created_at"`
	BaseArchive string            `yaml:"base_archive,omitempty"`
}

// =============================================================================
// Writing
// =============================================================================

// writeArchive streams metadata, manifest, and the manifest's files (read
// from stagingRoot) into a tar.gz at dst. dst is expected to be a temporary
// path; publishing is the caller's job.
func writeArchive(dst, stagingRoot string, meta *archiveMeta, entries []manifest.Entry) (err error) {
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()

	gw := gzip.NewWriter(f)
	tw := tar.NewWriter(gw)

	metaBytes, err := yaml.Marshal(meta)
	if err != nil {
		return err
	}
	if err := writeTarFile(tw, metaFileName, metaBytes, meta.CreatedAt); err != nil {
		return err
	}
	if err := writeTarFile(tw, manifest.FileName, []byte(manifest.Format(entries)), meta.CreatedAt); err != nil {
		return err
	}

	for _, e := range entries {
		src := filepath.Join(stagingRoot, filepath.FromSlash(e.Path))
		if err := writeTarEntry(tw, filesPrefix+e.Path, src); err != nil {
			return fmt.Errorf("archive %s: %w", e.Path, err)
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gw.Close()
}

func writeTarFile(tw *tar.Writer, name string, data []byte, modTime time.Time) error {
	hdr := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    int64(len(data)),
		ModTime: modTime,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}

func writeTarEntry(tw *tar.Writer, name, src string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	hdr := &tar.Header{
		Name:    name,
		Mode:    int64(info.Mode().Perm()),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}

// =============================================================================
// Reading
// =============================================================================

// fileDigest is the observed size and checksum of one files/ entry.
type fileDigest struct {
	Size     int64
	Checksum string
}

// archiveContents is everything one decompression pass learns about an
// archive.
type archiveContents struct {
	Meta          *archiveMeta
	Entries       []manifest.Entry
	ManifestFound bool
	Digests       map[string]fileDigest
}

// scanArchive decompresses the archive once, returning its metadata,
// manifest, and the digest of every files/ entry. Any read error makes the
// archive unreadable as a whole.
func scanArchive(archivePath string) (*archiveContents, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("not gzip: %w", err)
	}
	defer gr.Close()

	contents := &archiveContents{Digests: make(map[string]fileDigest)}

	tr := tar.NewReader(gr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		switch {
		case hdr.Name == metaFileName:
			data, err := io.ReadAll(tr)
			if err != nil {
				return nil, err
			}
			var m archiveMeta
			if err := yaml.Unmarshal(data, &m); err != nil {
				return nil, fmt.Errorf("parse metadata: %w", err)
			}
			contents.Meta = &m
		case hdr.Name == manifest.FileName:
			parsed, err := manifest.Parse(tr)
			if err != nil {
				return nil, err
			}
			contents.Entries = parsed
			contents.ManifestFound = true
		case strings.HasPrefix(hdr.Name, filesPrefix):
			h := sha256.New()
			n, err := io.Copy(h, tr)
			if err != nil {
				return nil, err
			}
			contents.Digests[strings.TrimPrefix(hdr.Name, filesPrefix)] = fileDigest{
				Size:     n,
				Checksum: hex.EncodeToString(h.Sum(nil)),
			}
		}
	}
	return contents, nil
}

// extractArchive writes the files/ entries into destDir, preserving their
// relative paths. Entries escaping destDir are rejected.
func extractArchive(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("not gzip: %w", err)
	}
	defer gr.Close()

	tr := tar.NewReader(gr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg || !strings.HasPrefix(hdr.Name, filesPrefix) {
			continue
		}

		rel := strings.TrimPrefix(hdr.Name, filesPrefix)
		clean := path.Clean(rel)
		if clean == ".." || strings.HasPrefix(clean, "../") || path.IsAbs(clean) {
			return fmt.Errorf("archive entry escapes destination: %q", hdr.Name)
		}

		target := filepath.Join(destDir, filepath.FromSlash(clean))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(hdr.Mode).Perm())
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}
	}
}
