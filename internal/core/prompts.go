package core

import (
	"fmt"
	"strings"

	"gwi.com/video-qa/internal/llm"
)

const systemPreamble = "You are a helpful assistant that answers questions about a single video using only its transcript excerpts."

const baseRules = `RULES:
- Cite every factual claim with the timestamp range of its source, exactly as written in the context, e.g. [00:04–00:49].
- Do not re-summarize the whole video unless the user asks for a summary.
- If the transcript does not contain the answer, say so plainly instead of guessing.
- Never mention relevance scores, search results, sources being limited or "the context". Speak as someone who watched the video.`

var languageNames = map[string]string{
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"it": "Italian",
	"pt": "Portuguese",
	"nl": "Dutch",
	"pl": "Polish",
	"el": "Greek",
	"ja": "Japanese",
	"zh": "Chinese",
}

func languageDirective(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		lang = "en"
	}
	name, ok := languageNames[strings.ToLower(lang)]
	if !ok {
		name = lang
	}
	return fmt.Sprintf("- Respond in %s.", name)
}

type PromptInput struct {
	Mode     Mode
	Question string
	History  []ConversationTurn
	Context  string
	Language string
}

// BuildPrompt assembles the provider-neutral prompt: mode block and base rules in the
// system part; recent turns, context and question in the user part.
func BuildPrompt(in PromptInput) llm.Prompt {
	var sys strings.Builder
	sys.WriteString(systemPreamble)
	sys.WriteString("\n\n")
	sys.WriteString(in.Mode.Instruction())
	sys.WriteString("\n\n")
	sys.WriteString(baseRules)
	sys.WriteString("\n")
	sys.WriteString(languageDirective(in.Language))

	var user strings.Builder
	if turns := lastTurns(in.History, DefaultHistoryTurns); len(turns) > 0 {
		user.WriteString("CONVERSATION SO FAR:\n")
		for _, t := range turns {
			fmt.Fprintf(&user, "%s: %s\n", roleLabel(t.Role), strings.TrimSpace(t.Content))
		}
		user.WriteString("\n")
	}
	user.WriteString("--- TRANSCRIPT EXCERPTS START ---\n")
	user.WriteString(in.Context)
	user.WriteString("\n--- TRANSCRIPT EXCERPTS END ---\n\n")
	fmt.Fprintf(&user, "QUESTION: %s", strings.TrimSpace(in.Question))

	return llm.Prompt{System: sys.String(), User: user.String()}
}

func lastTurns(history []ConversationTurn, n int) []ConversationTurn {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

func roleLabel(role string) string {
	if strings.EqualFold(role, "assistant") || strings.EqualFold(role, "model") {
		return "Assistant"
	}
	return "User"
}
