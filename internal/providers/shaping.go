package providers

import "github.com/chatchonk/automodel/internal/task"

// NeutralUserPrefix opens the conversation for vendors that require the
// first non-system message to come from the user.
const NeutralUserPrefix = "Please help me with the following:"

// BuildMessages assembles the canonical conversation for a generation-style
// call: task system prompt first, then prior session turns, then the current
// content. Consecutive messages with the same role are merged.
func BuildMessages(req Request) []Message {
	var msgs []Message
	if sp := req.Task.SystemPrompt(); sp != "" {
		msgs = append(msgs, Message{Role: "system", Content: sp})
	}
	msgs = append(msgs, req.SessionMessages...)
	if len(req.Messages) > 0 {
		msgs = append(msgs, req.Messages...)
	} else if req.Text != "" {
		msgs = append(msgs, Message{Role: "user", Content: req.Text})
	}
	return MergeConsecutive(msgs)
}

// MergeConsecutive joins adjacent messages that share a role, separated by a
// blank line. Vendor APIs with strict alternation reject repeated roles.
func MergeConsecutive(msgs []Message) []Message {
	if len(msgs) < 2 {
		return msgs
	}
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Content += "\n\n" + m.Content
			continue
		}
		out = append(out, m)
	}
	return out
}

// SplitSystem separates leading system messages from the conversation, for
// vendors that take the system prompt as a top-level field.
func SplitSystem(msgs []Message) (system string, rest []Message) {
	for i, m := range msgs {
		if m.Role != "system" {
			return system, msgs[i:]
		}
		if system != "" {
			system += "\n\n"
		}
		system += m.Content
	}
	return system, nil
}

// EnsureUserFirst prepends a neutral user turn when the conversation would
// otherwise open with an assistant message.
func EnsureUserFirst(msgs []Message) []Message {
	if len(msgs) == 0 || msgs[0].Role == "user" {
		return msgs
	}
	return append([]Message{{Role: "user", Content: NeutralUserPrefix}}, msgs...)
}

// PlainText flattens the request content to a single string, for vendors
// whose task endpoints take raw text rather than a conversation.
func PlainText(req Request) string {
	if req.Text != "" {
		return req.Text
	}
	var s string
	for _, m := range req.Messages {
		if s != "" {
			s += "\n"
		}
		s += m.Content
	}
	return s
}

// GenerationTask reports whether a kind is served by chat-style generation
// rather than a dedicated vendor endpoint.
func GenerationTask(kind task.Kind) bool {
	return kind != task.Embedding
}
