// Package stringutil provides common string manipulation utilities.
package stringutil

import (
	"fmt"
	"time"
)

// Truncate shortens s to at most maxLen runes, ending in "..." when cut.
// Cutting on rune boundaries keeps the result valid UTF-8.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:max(maxLen, 0)])
	}
	return string(r[:maxLen-3]) + "..."
}

// TruncateMiddle shortens s in the middle, keeping its start and end.
// Example: "https://api.example.com/v1/users/12345" -> "https://api.example...rs/12345"
func TruncateMiddle(s string, maxLen int) string {
	if maxLen <= 5 {
		return Truncate(s, maxLen)
	}
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}

	remaining := maxLen - 3
	startLen := remaining / 2
	endLen := remaining - startLen

	return string(r[:startLen]) + "..." + string(r[len(r)-endLen:])
}

// FormatBytes renders a byte count with a binary unit, e.g. "1.5 KB".
func FormatBytes(n int64) string {
	units := []string{"B", "KB", "MB", "GB"}
	size := float64(n)
	i := 0
	for size >= 1024 && i < len(units)-1 {
		size /= 1024
		i++
	}
	return fmt.Sprintf("%.1f %s", size, units[i])
}

// FormatRate renders a transfer speed for n bytes over elapsed.
func FormatRate(n int64, elapsed time.Duration) string {
	if elapsed <= 0 {
		return FormatBytes(0) + "/s"
	}
	return FormatBytes(int64(float64(n)/elapsed.Seconds())) + "/s"
}
