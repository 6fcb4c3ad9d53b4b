// internal/scan/csv_test.go
package scan

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestURLsFromCSV covers header skipping, blank rows and extra columns.
func TestURLsFromCSV(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "header and urls",
			input: "url\nhttps://a.example\nhttps://b.example\n",
			want:  []string{"https://a.example", "https://b.example"},
		},
		{
			name:  "no header",
			input: "https://a.example\nhttps://b.example",
			want:  []string{"https://a.example", "https://b.example"},
		},
		{
			name:  "extra columns ignored",
			input: "url,notes\nhttps://a.example,suspicious referrer\n",
			want:  []string{"https://a.example"},
		},
		{
			name:  "blank first cells skipped",
			input: "https://a.example\n,orphan note\nhttps://b.example\n",
			want:  []string{"https://a.example", "https://b.example"},
		},
		{
			name:  "empty input",
			input: "",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := URLsFromCSV(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestURLsFromCSV_MalformedQuoting verifies a broken CSV is rejected rather
// than silently truncated.
func TestURLsFromCSV_MalformedQuoting(t *testing.T) {
	_, err := URLsFromCSV(strings.NewReader("https://a.example\n\"unclosed\n"))
	require.Error(t, err)
}
