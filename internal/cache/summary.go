package cache

import (
	"fmt"
	"strings"
)

const EmptySummary = "No cached responses available. Please try again when online."

// FormatSummary renders up to limit entries newest-first, each as its index,
// the utterance and a guidance preview of at most previewChars runes.
func FormatSummary(entries []Exchange, limit, previewChars int) string {
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	if len(entries) == 0 {
		return EmptySummary
	}

	parts := make([]string, 0, len(entries))
	for i, ex := range entries {
		parts = append(parts, fmt.Sprintf("%d. %s\n→ %s", i+1, ex.Utterance, Preview(ex.Guidance, previewChars)))
	}
	return fmt.Sprintf("Offline mode: Here are your last %d cached responses:\n\n", len(entries)) +
		strings.Join(parts, "\n\n")
}

// Preview truncates s to n runes, marking the cut with "...".
func Preview(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
