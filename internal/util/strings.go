// Package util holds small helpers shared across the library's packages.
package util

// SafeTruncate truncates s to at most n bytes. The cut is byte-oriented:
// callers that need rune boundaries must not use this.
func SafeTruncate(s string, n int) string {
	if n < 0 {
		n = 0
	}
	if len(s) <= n {
		return s
	}
	return s[:n]
}
