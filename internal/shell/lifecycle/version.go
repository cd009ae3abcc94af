package lifecycle

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// =============================================================================
// Version Pin
// =============================================================================

// VersionFile pins the active stack version in the compose env file, where
// the compose file references it (for example `image: app:${APP_VERSION}`).
// Because the env file sits inside the executor's protected path set, a
// failed update's snapshot restore reverts the pin along with the rest of
// the config.
type VersionFile struct {
	path string
	key  string
}

// NewVersionFile tracks key inside the env file at path.
func NewVersionFile(path, key string) *VersionFile {
	if key == "" {
		key = "APP_VERSION"
	}
	return &VersionFile{path: path, key: key}
}

// Path returns the env file location.
func (v *VersionFile) Path() string {
	return v.path
}

// Current returns the pinned version, or empty when the file or key is
// absent.
func (v *VersionFile) Current() string {
	data, err := os.ReadFile(v.path)
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, v.key+"=") {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, v.key+"="))
		}
	}
	return ""
}

// Pin rewrites the env file with key set to version, preserving every other
// line. The file is created when missing.
func (v *VersionFile) Pin(version string) error {
	data, err := os.ReadFile(v.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	entry := fmt.Sprintf("%s=%s", v.key, version)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	replaced := false
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), v.key+"=") {
			lines[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		if len(lines) == 1 && lines[0] == "" {
			lines[0] = entry
		} else {
			lines = append(lines, entry)
		}
	}
	return os.WriteFile(v.path, []byte(strings.Join(lines, "\n")+"\n"), 0o644)
}
