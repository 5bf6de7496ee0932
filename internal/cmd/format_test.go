package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		ts := start.Add(d)
		return &ts
	}
	assert.Equal(t, "running", formatDuration(start, nil))
	assert.Equal(t, "250ms", formatDuration(start, at(250*time.Millisecond)))
	assert.Equal(t, "1.5s", formatDuration(start, at(1520*time.Millisecond)))
	assert.Equal(t, "2m3s", formatDuration(start, at(123*time.Second)))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
	assert.Equal(t, "héllo", truncate("héllo", 5))
}
