package core

import (
	"regexp"
	"strings"
)

// Mode is the response framing chosen for a question.
type Mode string

const (
	ModeSummary    Mode = "summary"
	ModeExpansion  Mode = "expansion"
	ModeEvidence   Mode = "evidence"
	ModeBackground Mode = "background"
	ModeComparison Mode = "comparison"
	ModeGeneral    Mode = "general"
)

func (m Mode) String() string { return string(m) }

var (
	evidenceRe = regexp.MustCompile(
		`(?i)\bwhat\b.*\b(?:at|in|during|around)\b.*(?:\d{1,2}:\d{2}|\btimestamp\b|\bsection\b|\bpart\b|\bmoment\b|\bminute\b)`)
	timestampRe = regexp.MustCompile(`(?i)\b(?:at|around|near)\s+\[?\d{1,2}:\d{2}(?::\d{2})?\b`)

	expansionRe = regexp.MustCompile(
		`(?i)\b(?:give|tell|show)\b[^.?!]*\bmore\b|\bmore details?\b|\belaborate\b|\bgo deeper\b|^\s*(?:explain|elaborate|expand|give|tell|show)\b`)

	backgroundRe = regexp.MustCompile(`(?i)^\s*(?:who|what)\s+(?:is|are)\b`)
	thisVideoRe  = regexp.MustCompile(`(?i)\bthis video\b`)

	comparisonRe = regexp.MustCompile(
		`(?i)\bwhat makes\b.*\b(?:rare|special|different|unique)\b|\b(?:compare|compared|comparison|differ|differs|difference|differences|versus|vs)\b`)

	overviewRe = regexp.MustCompile(
		`(?i)\bwhat(?:'s| is) (?:this|the) video about\b|\bsummar(?:y|ise|ize)\b|\bmain (?:topic|point|idea|theme)s?\b|\boverview\b|\bkey (?:points|takeaways)\b|\btl;?dr\b`)
)

// modeRule pairs a mode with its predicate. Rules are evaluated in slice order and the
// first match wins.
type modeRule struct {
	mode  Mode
	match func(question string, history []ConversationTurn) bool
}

var modeRules = []modeRule{
	{ModeEvidence, func(q string, _ []ConversationTurn) bool {
		return evidenceRe.MatchString(q) || timestampRe.MatchString(q)
	}},
	{ModeExpansion, func(q string, _ []ConversationTurn) bool {
		return expansionRe.MatchString(q)
	}},
	{ModeBackground, func(q string, _ []ConversationTurn) bool {
		return backgroundRe.MatchString(q) && !thisVideoRe.MatchString(q)
	}},
	{ModeComparison, func(q string, _ []ConversationTurn) bool {
		return comparisonRe.MatchString(q)
	}},
	{ModeSummary, func(q string, history []ConversationTurn) bool {
		return len(history) == 0 || overviewRe.MatchString(q)
	}},
}

// ClassifyMode picks the framing for a question. It is pure pattern matching and never
// touches the index or a provider.
func ClassifyMode(question string, history []ConversationTurn) Mode {
	q := strings.TrimSpace(question)
	for _, rule := range modeRules {
		if rule.match(q, history) {
			return rule.mode
		}
	}
	return ModeGeneral
}

var modeInstructions = map[Mode]string{
	ModeSummary: `MODE: SUMMARY
Give a short overview of what the video covers.
Then list 3 to 5 representative moments, each with its timestamp.
End with 2 or 3 follow-up questions the viewer could ask.`,

	ModeExpansion: `MODE: EXPANSION
The user wants more depth on the previous answer. Do not summarize the video again.
Start by naming what from the previous turn you are expanding on, then add detail that was not said before.`,

	ModeEvidence: `MODE: EVIDENCE
Answer only from the part of the video at the timestamps the user named.
Quote or paraphrase what is said there and cite each claim. Ignore other sections.`,

	ModeBackground: `MODE: BACKGROUND
Answer in two labelled parts.
"General knowledge:" a brief, neutral explanation of the subject.
"In this video:" what the transcript says about it, with timestamps.`,

	ModeComparison: `MODE: COMPARISON
Open with a one-sentence thesis.
Then list the distinguishing factors, each backed by a timestamped point from the transcript.`,

	ModeGeneral: `MODE: GENERAL
Answer the question directly and concisely, grounded in the transcript.`,
}

// Instruction returns the prompt block that frames answers in this mode.
func (m Mode) Instruction() string {
	if s, ok := modeInstructions[m]; ok {
		return s
	}
	return modeInstructions[ModeGeneral]
}
