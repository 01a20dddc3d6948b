package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePrinterConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "printer.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestPrinterConfig_GetString(t *testing.T) {
	path := writePrinterConfig(t, `{"advanced":{"thumbnailDiskTtlDays":"3"},"machine":{"name":"test"}}`)
	pc := LoadPrinterConfig(path)

	assert.Equal(t, "3", pc.GetString("thumbnailDiskTtlDays", "advanced"))
	assert.Equal(t, "test", pc.GetString("name", "machine"))
	assert.Equal(t, "", pc.GetString("missing", "advanced"))
	assert.Equal(t, "", pc.GetString("name", "missing"))
}

func TestPrinterConfig_MissingFile(t *testing.T) {
	pc := LoadPrinterConfig(filepath.Join(t.TempDir(), "nope.json"))
	assert.Equal(t, "", pc.GetString("thumbnailDiskTtlDays", "advanced"))
	assert.Equal(t, 7*24*time.Hour, pc.ThumbnailDiskTTL())
}

func TestPrinterConfig_ThumbnailDiskTTL(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"unset uses default", "", 7 * 24 * time.Hour},
		{"positive days", "3", 3 * 24 * time.Hour},
		{"zero disables", "0", 0},
		{"negative disables", "-1", 0},
		{"unparseable uses default", "soon", 7 * 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := `{"advanced":{}}`
			if tt.value != "" {
				content = `{"advanced":{"thumbnailDiskTtlDays":"` + tt.value + `"}}`
			}
			pc := LoadPrinterConfig(writePrinterConfig(t, content))
			assert.Equal(t, tt.want, pc.ThumbnailDiskTTL())
		})
	}
}
