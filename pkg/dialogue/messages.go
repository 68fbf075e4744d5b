package dialogue

import (
	"fmt"
	"strings"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/llm"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/persona"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/session"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/supervisor"
)

const (
	// BrowserApology is returned, not persisted, when the model fails.
	BrowserApology = "I'm sorry, I'm having trouble responding right now. Could you say that again in a moment?"
	DefaultSummary = "Call completed."

	summaryPrompt = "You write call history notes. Summarize the conversation below in at most two plain sentences. Mention the caller's main concern and how the call ended. No names of AI systems, no lists."
)

// EscalationMessage is the system turn appended on auto-escalation.
func EscalationMessage(p persona.Persona, note session.SupervisorNote) string {
	name := p.Name
	if name == "" {
		name = "your companion"
	}
	if note.HasFlag(supervisor.FlagSelfHarm) {
		return fmt.Sprintf("%s here. What you're feeling matters, and you don't have to face it alone. "+
			"I'm connecting you with a trained human counselor right now. "+
			"If you are in immediate danger, please call or text 988 (Suicide & Crisis Lifeline) or your local emergency number.", name)
	}
	return fmt.Sprintf("%s here. It sounds like this deserves more support than I can give on my own, "+
		"so I'm bringing in a member of our human team to talk with you. Please stay with us.", name)
}

// ManualEscalationMessage is appended when the caller asks for a human.
func ManualEscalationMessage(p persona.Persona) string {
	return fmt.Sprintf("%s is connecting you with a human operator now.", nonEmpty(p.Name, "Your companion"))
}

// EndedByProviderSummary is the generic summary for provider-ended calls.
func EndedByProviderSummary(status string) string {
	return fmt.Sprintf("Call ended (%s).", nonEmpty(status, "completed"))
}

// conversation maps non-system turns onto model messages in order.
func conversation(turns []session.Turn) []llm.Message {
	out := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case session.RoleUser:
			out = append(out, llm.Message{Role: llm.RoleUser, Content: t.Text})
		case session.RoleAgent:
			out = append(out, llm.Message{Role: llm.RoleAssistant, Content: t.Text})
		}
	}
	return out
}

func transcriptText(turns []session.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		label := "Caller"
		switch t.Role {
		case session.RoleAgent:
			label = "Agent"
		case session.RoleSystem:
			label = "System"
		}
		fmt.Fprintf(&b, "%s: %s\n", label, t.Text)
	}
	return b.String()
}

func nonEmpty(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
