package memory

import (
	"strings"
	"time"
)

type Speaker string

const (
	Human     Speaker = "human"
	Assistant Speaker = "assistant"
)

type Message struct {
	Speaker Speaker   `json:"speaker"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// History is the append-only conversation of one session. Callers
// serialise access.
type History struct {
	messages []Message
}

// AppendTurn records one completed question/answer pair.
func (h *History) AppendTurn(question, answer string, at time.Time) {
	h.messages = append(h.messages,
		Message{Speaker: Human, Content: question, At: at},
		Message{Speaker: Assistant, Content: answer, At: at},
	)
}

func (h *History) Messages() []Message {
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

func (h *History) Len() int {
	return len(h.messages)
}

// Turns is the number of human questions recorded.
func (h *History) Turns() int {
	turns := 0
	for _, message := range h.messages {
		if message.Speaker == Human {
			turns++
		}
	}
	return turns
}

// Window returns the messages starting at the maxTurns-th human message from
// the end. Stored history is left untouched.
func (h *History) Window(maxTurns int) []Message {
	if maxTurns <= 0 || len(h.messages) == 0 {
		return []Message{}
	}

	humansSeen := 0
	start := 0
	for i := len(h.messages) - 1; i >= 0; i-- {
		if h.messages[i].Speaker == Human {
			humansSeen++
			if humansSeen == maxTurns {
				start = i
				break
			}
		}
	}

	out := make([]Message, len(h.messages)-start)
	copy(out, h.messages[start:])
	return out
}

// Render formats messages as a transcript for prompt templates.
func Render(messages []Message) string {
	var b strings.Builder
	for i, message := range messages {
		if i > 0 {
			b.WriteString("\n")
		}
		switch message.Speaker {
		case Human:
			b.WriteString("Human: ")
		default:
			b.WriteString("Assistant: ")
		}
		b.WriteString(message.Content)
	}
	return b.String()
}
