package utils

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.0 KB", FormatBytes(1024))
	assert.Equal(t, "1.5 MB", FormatBytes(1536*1024))
	assert.Equal(t, "2.0 GB", FormatBytes(2*1024*1024*1024))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "250ms", FormatDuration(250*time.Millisecond))
	assert.Equal(t, "42s", FormatDuration(42*time.Second))
	assert.Equal(t, "5m", FormatDuration(5*time.Minute))
	assert.Equal(t, "2h 15m", FormatDuration(2*time.Hour+15*time.Minute))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))
	assert.Equal(t, "abcdefg...", TruncateString("abcdefghijklmnop", 10))

	// "ж" is two bytes; a cut at byte 7 would split the fourth one
	cyr := strings.Repeat("ж", 20)
	out := TruncateString(cyr, 10)
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, "жжж...", out)
	assert.Equal(t, "ж", TruncateString(cyr, 3))
	assert.Equal(t, "", TruncateString("日本", 2))
}

func TestRound(t *testing.T) {
	assert.Equal(t, 12.35, Round(12.3456, 2))
	assert.Equal(t, 12.3, Round(12.34, 1))
}
