package llm

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/regcheck/backend/internal/vectorstore"
)

const (
	contextSeparator = "\n---\n"
	noContextMessage = "No relevant regulatory passages were found. Assess the document against general crypto-asset regulatory principles."
	truncationMarker = "\n[... document truncated ...]"
)

// FormatContext joins retrieved passages, each followed by its source and
// relevance line
func FormatContext(matches []vectorstore.Match) string {
	if len(matches) == 0 {
		return noContextMessage
	}
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		parts = append(parts, formatMatch(m))
	}
	return strings.Join(parts, contextSeparator)
}

func formatMatch(m vectorstore.Match) string {
	return fmt.Sprintf("%s\nSource: %s, Relevance: %.2f", strings.TrimSpace(m.Passage.Content), sourceLabel(m.Passage), m.Similarity)
}

func sourceLabel(p vectorstore.Passage) string {
	label := strings.TrimSpace(strings.Join([]string{p.Source, p.Reference}, " "))
	if label == "" {
		return "Unknown"
	}
	return label
}

// BuildAnalysisPrompt fills the analysis template, keeping the document text
// and context within maxChars. Passages are dropped from the end before the
// document text is cut, but the document keeps at least half the budget.
func BuildAnalysisPrompt(filename, text string, matches []vectorstore.Match, maxChars int) string {
	if maxChars <= 0 {
		return fmt.Sprintf(COMPLIANCE_ANALYSIS_PROMPT, filename, text, FormatContext(matches))
	}

	kept := matches
	regulatory := FormatContext(kept)
	for len(kept) > 0 && utf8.RuneCountInString(regulatory) > maxChars/2 {
		kept = kept[:len(kept)-1]
		regulatory = FormatContext(kept)
	}

	budget := maxChars - utf8.RuneCountInString(regulatory)
	return fmt.Sprintf(COMPLIANCE_ANALYSIS_PROMPT, filename, truncateRunes(text, budget), regulatory)
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return truncationMarker
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + truncationMarker
}
