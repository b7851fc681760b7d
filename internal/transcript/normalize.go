package transcript

import (
	"regexp"
	"strings"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	// Boundaries are any non-word rune, Unicode-aware, so "muséum" keeps its "um". A
	// trailing comma goes with the filler so "So, um, the" becomes "So, the".
	fillerWords     = regexp.MustCompile(`(?i)(^|[^\p{L}\p{M}\p{N}_])(?:uhh?|umm?|erm|you know),?($|[^\p{L}\p{M}\p{N}_])`)
	spaceBeforePunc = regexp.MustCompile(`\s+([,.!?;:])`)
	leadingPunc     = regexp.MustCompile(`^[,;:]\s*`)
)

// Normalize cleans raw caption text: strips filler words, collapses whitespace and trims.
// The result is a fixpoint, so Normalize(Normalize(x)) == Normalize(x).
func Normalize(text string) string {
	s := collapse(text)
	for {
		next := cleanOnce(s)
		if next == s {
			return s
		}
		s = next
	}
}

func cleanOnce(s string) string {
	s = fillerWords.ReplaceAllString(s, "$1 $2")
	s = collapse(s)
	s = spaceBeforePunc.ReplaceAllString(s, "$1")
	s = leadingPunc.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

func collapse(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}
