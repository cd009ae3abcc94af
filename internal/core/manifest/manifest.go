// Package manifest defines the integrity manifest format shared by snapshots
// and backup archives: one `path\tsize\tchecksum` line per file, sorted by
// path. Checksums are SHA-256 hex. This package contains no I/O; building a
// manifest from a file tree lives in the shell layer.
package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// FileName is the manifest's name inside snapshots and archives.
const FileName = "manifest.txt"

// ErrMalformed is returned when a manifest line does not have exactly three
// tab-separated fields.
var ErrMalformed = errors.New("malformed manifest line")

// Entry describes one file covered by a manifest. Path is slash-separated
// and relative to the manifest's root.
type Entry struct {
	Path     string
	Size     int64
	Checksum string
}

// Format renders entries as manifest text, sorted by path.
func Format(entries []Entry) string {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	var b strings.Builder
	for _, e := range sorted {
		fmt.Fprintf(&b, "%s\t%d\t%s\n", e.Path, e.Size, e.Checksum)
	}
	return b.String()
}

// Parse reads manifest text. Blank lines are ignored.
func Parse(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r\n")
		if strings.TrimSpace(text) == "" {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) != 3 {
			return nil, fmt.Errorf("%w: line %d", ErrMalformed, line)
		}
		size, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: bad size %q", ErrMalformed, line, fields[1])
		}
		entries = append(entries, Entry{Path: fields[0], Size: size, Checksum: fields[2]})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Index maps entries by path for lookup.
func Index(entries []Entry) map[string]Entry {
	idx := make(map[string]Entry, len(entries))
	for _, e := range entries {
		idx[e.Path] = e
	}
	return idx
}

// Diff returns the entries of current that are new or changed relative to
// base. Deletions are not tracked; an incremental archive only carries
// content that must be written on restore.
func Diff(base, current []Entry) []Entry {
	baseIdx := Index(base)
	var changed []Entry
	for _, e := range current {
		old, ok := baseIdx[e.Path]
		if !ok || old.Size != e.Size || old.Checksum != e.Checksum {
			changed = append(changed, e)
		}
	}
	return changed
}
