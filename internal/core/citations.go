package core

import "regexp"

var citationRe = regexp.MustCompile(`\[\d{2}:\d{2}(?::\d{2})?[–-]\d{2}:\d{2}(?::\d{2})?\]`)

// UnknownCitations lists the timestamp labels cited in answer that match no retrieved
// chunk, in order of first appearance. A hyphen is accepted in place of the en dash.
func UnknownCitations(answer string, chunks []RetrievedChunk) []string {
	known := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		known[c.TimestampLabel] = true
	}

	var unknown []string
	seen := make(map[string]bool)
	for _, label := range citationRe.FindAllString(answer, -1) {
		canonical := canonicalLabel(label)
		if known[canonical] || seen[canonical] {
			continue
		}
		seen[canonical] = true
		unknown = append(unknown, label)
	}
	return unknown
}

var hyphenRe = regexp.MustCompile(`(\d)-(\d)`)

func canonicalLabel(label string) string {
	return hyphenRe.ReplaceAllString(label, "$1–$2")
}
