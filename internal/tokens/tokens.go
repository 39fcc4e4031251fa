// Package tokens provides a deterministic token-count estimate for budgeting
// prompts, adapted from the corpus's chars-per-token heuristic rather than
// a real tokenizer: a stable, monotonically additive estimator, not an
// exact vocabulary-aware count.
package tokens

import "unicode/utf8"

const defaultCharsPerToken = 4.0

// Counter estimates token counts from byte strings.
type Counter struct {
	charsPerToken float64
}

// NewCounter returns a Counter using Kai's default 4-characters-per-token
// heuristic.
func NewCounter() *Counter {
	return &Counter{charsPerToken: defaultCharsPerToken}
}

// Count returns the estimated token count of s.
func (c *Counter) Count(s string) int {
	if s == "" {
		return 0
	}
	n := utf8.RuneCountInString(s)
	est := float64(n) / c.charsPerToken
	if est < 1 {
		return 1
	}
	return int(est + 0.5)
}

// CountAll sums the estimated token counts of each string independently,
// preserving monotonic additivity over concatenation.
func (c *Counter) CountAll(strs ...string) int {
	total := 0
	for _, s := range strs {
		total += c.Count(s)
	}
	return total
}

var shared = NewCounter()

// Count is a package-level convenience wrapping a shared Counter, mirroring
// how the corpus exposes a default instance for call sites that don't need
// a custom charsPerToken.
func Count(s string) int { return shared.Count(s) }
