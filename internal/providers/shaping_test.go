package providers

import (
	"testing"

	"github.com/chatchonk/automodel/internal/task"
)

func TestBuildMessagesSystemPromptFirst(t *testing.T) {
	msgs := BuildMessages(Request{
		Task: task.Summarization,
		Text: "summarize this",
	})
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "system" {
		t.Errorf("first message should be system, got %s", msgs[0].Role)
	}
	if msgs[1].Role != "user" || msgs[1].Content != "summarize this" {
		t.Errorf("unexpected user message: %+v", msgs[1])
	}
}

func TestBuildMessagesSessionContextOrdering(t *testing.T) {
	msgs := BuildMessages(Request{
		Task: task.Chat,
		Text: "and now?",
		SessionMessages: []Message{
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello"},
		},
	})
	want := []string{"user", "assistant", "user"}
	if len(msgs) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(msgs))
	}
	for i, role := range want {
		if msgs[i].Role != role {
			t.Errorf("message %d role = %s, want %s", i, msgs[i].Role, role)
		}
	}
}

func TestMergeConsecutive(t *testing.T) {
	msgs := MergeConsecutive([]Message{
		{Role: "user", Content: "first"},
		{Role: "user", Content: "second"},
		{Role: "assistant", Content: "reply"},
	})
	if len(msgs) != 2 {
		t.Fatalf("expected merge to 2 messages, got %d", len(msgs))
	}
	if msgs[0].Content != "first\n\nsecond" {
		t.Errorf("merged content = %q", msgs[0].Content)
	}
}

func TestSplitSystem(t *testing.T) {
	system, rest := SplitSystem([]Message{
		{Role: "system", Content: "be helpful"},
		{Role: "user", Content: "hi"},
	})
	if system != "be helpful" {
		t.Errorf("system = %q", system)
	}
	if len(rest) != 1 || rest[0].Role != "user" {
		t.Errorf("rest = %+v", rest)
	}
}

func TestEnsureUserFirst(t *testing.T) {
	msgs := EnsureUserFirst([]Message{{Role: "assistant", Content: "previous reply"}})
	if len(msgs) != 2 {
		t.Fatalf("expected prepended message, got %d", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[0].Content != NeutralUserPrefix {
		t.Errorf("unexpected prefix message: %+v", msgs[0])
	}

	already := []Message{{Role: "user", Content: "hi"}}
	if got := EnsureUserFirst(already); len(got) != 1 {
		t.Errorf("user-first conversation should be unchanged")
	}
}

func TestChatPayloadOmitsUnsetParameters(t *testing.T) {
	payload := ChatPayload(Request{ModelID: "m"}, []Message{{Role: "user", Content: "hi"}})
	for _, key := range []string{"max_tokens", "temperature", "top_p", "frequency_penalty", "presence_penalty", "stop"} {
		if _, ok := payload[key]; ok {
			t.Errorf("unset parameter %s should be omitted", key)
		}
	}

	payload = ChatPayload(Request{ModelID: "m", MaxTokens: 5, Temperature: Float64(0.2)}, nil)
	if payload["max_tokens"] != 5 {
		t.Errorf("max_tokens = %v", payload["max_tokens"])
	}
	if payload["temperature"] != 0.2 {
		t.Errorf("temperature = %v", payload["temperature"])
	}
}
