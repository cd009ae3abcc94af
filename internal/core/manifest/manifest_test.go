package manifest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Format and Parse Tests
// =============================================================================

func TestFormat_SortedByPath(t *testing.T) {
	entries := []Entry{
		{Path: "config/b.yml", Size: 10, Checksum: "bbb"},
		{Path: "config/a.yml", Size: 5, Checksum: "aaa"},
	}

	text := Format(entries)

	assert.Equal(t, "config/a.yml\t5\taaa\nconfig/b.yml\t10\tbbb\n", text)
}

func TestParse_RoundTrip(t *testing.T) {
	entries := []Entry{
		{Path: "data/app.db", Size: 4096, Checksum: "deadbeef"},
		{Path: "ssl/cert.pem", Size: 1234, Checksum: "cafef00d"},
	}

	parsed, err := Parse(strings.NewReader(Format(entries)))

	require.NoError(t, err)
	assert.Equal(t, entries, parsed)
}

func TestParse_IgnoresBlankLines(t *testing.T) {
	parsed, err := Parse(strings.NewReader("\na\t1\tx\n\n\nb\t2\ty\n"))

	require.NoError(t, err)
	require.Len(t, parsed, 2)
}

func TestParse_MalformedLine(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"missing field", "a\t1\n"},
		{"extra field", "a\t1\tx\ty\n"},
		{"bad size", "a\tbig\tx\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.text))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

// =============================================================================
// Diff Tests
// =============================================================================

func TestDiff_NewAndChangedOnly(t *testing.T) {
	base := []Entry{
		{Path: "a", Size: 1, Checksum: "a1"},
		{Path: "b", Size: 2, Checksum: "b1"},
		{Path: "gone", Size: 3, Checksum: "g1"},
	}
	current := []Entry{
		{Path: "a", Size: 1, Checksum: "a1"}, // unchanged
		{Path: "b", Size: 2, Checksum: "b2"}, // content changed
		{Path: "c", Size: 4, Checksum: "c1"}, // new
	}

	changed := Diff(base, current)

	require.Len(t, changed, 2)
	assert.Equal(t, "b", changed[0].Path)
	assert.Equal(t, "c", changed[1].Path)
}

func TestDiff_EmptyBaseReturnsEverything(t *testing.T) {
	current := []Entry{{Path: "a", Size: 1, Checksum: "a1"}}

	assert.Equal(t, current, Diff(nil, current))
}
