package snapshot

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stackward/stackward/internal/core/domain"
)

// metadataFileName is the typed snapshot record inside each snapshot
// directory. YAML keeps it human-readable for manual recovery.
const metadataFileName = "metadata.yaml"

// =============================================================================
// Metadata Record
// =============================================================================

// pathRecord maps one captured source path to its storage location inside
// the snapshot directory.
type pathRecord struct {
	Source string `yaml:"source"`
	Stored string `yaml:"stored"`
	Kind   string `yaml:"kind"` // file | directory
}

// record is the on-disk snapshot metadata.
type record struct {
	ID            string            `yaml:"id"`
	OperationName string            `yaml:"operation"`
	CreatedAt     time.Time         `yaml:"created_at"`
	Paths         []pathRecord      `yaml:"paths"`
	Metadata      map[string]string `yaml:"metadata,omitempty"`
	System        map[string]string `yaml:"system,omitempty"`
}

func (r *record) snapshot() *domain.Snapshot {
	captured := make([]string, 0, len(r.Paths))
	for _, p := range r.Paths {
		captured = append(captured, p.Source)
	}
	return &domain.Snapshot{
		ID:            r.ID,
		OperationName: r.OperationName,
		CreatedAt:     r.CreatedAt,
		CapturedPaths: captured,
		Metadata:      r.Metadata,
	}
}

// systemInfo captures host facts useful when a snapshot is inspected long
// after the fact.
func systemInfo(now time.Time) map[string]string {
	hostname, _ := os.Hostname()
	return map[string]string{
		"hostname":    hostname,
		"platform":    runtime.GOOS + "/" + runtime.GOARCH,
		"pid":         fmt.Sprintf("%d", os.Getpid()),
		"captured_at": now.UTC().Format(time.RFC3339),
	}
}

func writeRecord(path string, r *record) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func readRecord(path string) (*record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r record
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse snapshot metadata: %w", err)
	}
	return &r, nil
}
