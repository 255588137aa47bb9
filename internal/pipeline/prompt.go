package pipeline

import "strings"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// Prompt is either plain text or a message sequence. When Messages is set, Text is ignored.
type Prompt struct {
	Text     string
	Messages []Message
}

func TextPrompt(text string) Prompt { return Prompt{Text: text} }

func MessagesPrompt(messages ...Message) Prompt {
	return Prompt{Messages: append([]Message(nil), messages...)}
}

func (p Prompt) IsEmpty() bool {
	if len(p.Messages) > 0 {
		for _, message := range p.Messages {
			if strings.TrimSpace(message.Content) != "" {
				return false
			}
		}
		return true
	}
	return strings.TrimSpace(p.Text) == ""
}

// WithFeedback returns a copy of the prompt with feedback appended: to the text, or to the
// last user message, or as a new user message when the sequence has none.
func (p Prompt) WithFeedback(feedback string) Prompt {
	if strings.TrimSpace(feedback) == "" {
		return p.clone()
	}
	if len(p.Messages) == 0 {
		return Prompt{Text: appendRefine(p.Text, feedback)}
	}
	messages := append([]Message(nil), p.Messages...)
	for index := len(messages) - 1; index >= 0; index-- {
		if messages[index].Role == RoleUser {
			messages[index].Content = appendRefine(messages[index].Content, feedback)
			return Prompt{Messages: messages}
		}
	}
	return Prompt{Messages: append(messages, Message{Role: RoleUser, Content: feedback})}
}

// Render flattens the prompt into one string. Message sequences render as "role: content"
// blocks separated by blank lines.
func (p Prompt) Render() string {
	if len(p.Messages) == 0 {
		return p.Text
	}
	blocks := make([]string, 0, len(p.Messages))
	for _, message := range p.Messages {
		blocks = append(blocks, message.Role+": "+message.Content)
	}
	return strings.Join(blocks, "\n\n")
}

func (p Prompt) clone() Prompt {
	if p.Messages == nil {
		return Prompt{Text: p.Text}
	}
	return Prompt{Text: p.Text, Messages: append([]Message(nil), p.Messages...)}
}
