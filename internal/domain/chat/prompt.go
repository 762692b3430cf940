package chat

import (
	"strings"

	"github.com/matiasleandrokruk/scalechat/internal/domain/conversation"
	"github.com/matiasleandrokruk/scalechat/internal/infra/llm"
)

// buildPrompt renders the context window for one turn.
//
// history holds the messages that precede the current user turn, already
// bounded to policy.Window by the caller. For transcript-style providers the
// history becomes a "Role: content" block followed by the new user line; for
// chat-style providers the new turn is appended to the history, the result is
// trimmed to policy.Window and prefixed with the system preamble.
func buildPrompt(policy llm.ContextPolicy, history []conversation.Message, input string) llm.Prompt {
	prompt := llm.Prompt{Input: input}

	switch policy.Style {
	case llm.StyleChat:
		window := make([]llm.Message, 0, len(history)+1)
		for _, m := range history {
			window = append(window, llm.Message{Role: m.Role, Content: m.Content})
		}
		window = append(window, llm.Message{Role: llm.RoleUser, Content: input})
		if policy.Window > 0 && len(window) > policy.Window {
			window = window[len(window)-policy.Window:]
		}

		msgs := make([]llm.Message, 0, len(window)+1)
		if policy.SystemPrompt != "" {
			msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: policy.SystemPrompt})
		}
		prompt.Messages = append(msgs, window...)
	default:
		var b strings.Builder
		b.WriteString("Context: ")
		b.WriteString(renderTranscript(history, policy.Preamble))
		b.WriteString("\nUser: ")
		b.WriteString(input)
		b.WriteString("\nAssistant:")
		prompt.Text = b.String()
	}
	return prompt
}

// renderTranscript formats messages one per line as "Role: content".
func renderTranscript(history []conversation.Message, preamble string) string {
	if len(history) == 0 {
		return preamble
	}
	lines := make([]string, len(history))
	for i, m := range history {
		lines[i] = titleRole(m.Role) + ": " + m.Content
	}
	return strings.Join(lines, "\n")
}

func titleRole(r llm.Role) string {
	s := string(r)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
