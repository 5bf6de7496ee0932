package cmd

import (
	"fmt"
	"time"
)

// formatDuration renders how long a run took, or "running" while it is open.
func formatDuration(started time.Time, completed *time.Time) string {
	if completed == nil {
		return "running"
	}
	d := completed.Sub(started)
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(100 * time.Millisecond).String()
}

// truncate shortens s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
