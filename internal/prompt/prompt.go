package prompt

import (
	"fmt"
	"strings"

	"github.com/mycelian/mycelian-persona/internal/model"
)

// Mode selects the conversational surface the reply is written for.
type Mode string

const (
	ModeChannel       Mode = "channel"
	ModeDirectMessage Mode = "direct_message"
)

const styleRules = `Study the previous context to learn how %[1]s writes. Mirror their typical sentence length, complexity, formality and emoji usage.
Rules:
- Write only the message text %[1]s would send, as plain conversational text.
- Do not use lists, headings, code blocks or any other markdown.
- Never start the reply with a name, a colon or any chat-style header.
- Do not mention that you are an AI or that you are imitating anyone.`

// Build renders the system and user messages for a persona reply. An empty
// contextText still yields a usable prompt.
func Build(mode Mode, name, contextText, triggerText string) model.PersonaPrompt {
	var intro string
	switch mode {
	case ModeDirectMessage:
		intro = fmt.Sprintf("You are %s, replying to a direct message from a teammate in a team chat app.", name)
	default:
		intro = fmt.Sprintf("You are %s, replying to a message in a shared team chat channel.", name)
	}
	return model.PersonaPrompt{
		SystemText: intro + "\n" + fmt.Sprintf(styleRules, name),
		UserText: fmt.Sprintf("Previous context showing %s's communication style:\n%s\n\nNew message to respond to:\n%s",
			name, contextText, triggerText),
	}
}

// StripSpeakerPrefix removes a leading "name:" header the model may emit
// despite instructions, and trims surrounding whitespace.
func StripSpeakerPrefix(name, text string) string {
	out := strings.TrimSpace(text)
	if name == "" {
		return out
	}
	for _, p := range []string{name + ":", "**" + name + "**:", "**" + name + ":**"} {
		if len(out) >= len(p) && strings.EqualFold(out[:len(p)], p) {
			return strings.TrimSpace(out[len(p):])
		}
	}
	return out
}
