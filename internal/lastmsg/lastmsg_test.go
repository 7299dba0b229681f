package lastmsg

import (
	"strings"
	"testing"
)

func TestLastAgentMessage_ReturnsLastMatch(t *testing.T) {
	stream := strings.Join([]string{
		`{"type":"thread.started","thread_id":"t1"}`,
		`{"type":"item.completed","item":{"id":"i0","type":"reasoning","text":"thinking"}}`,
		`{"type":"item.completed","item":{"id":"i1","type":"agent_message","text":"first finding"}}`,
		`{"type":"item.started","item":{"id":"i2","type":"command_execution","command":"go test"}}`,
		`{"type":"future.event","payload":{"anything":[1,2,3]}}`,
		`{"type":"item.completed","item":{"id":"i3","type":"agent_message","text":"final report"}}`,
		`{"type":"turn.completed","usage":{"input_tokens":10,"output_tokens":5}}`,
	}, "\n")

	got, ok := LastAgentMessage(stream)
	if !ok {
		t.Fatal("expected a match")
	}
	if got != "final report" {
		t.Fatalf("LastAgentMessage() = %q, want %q", got, "final report")
	}
}

func TestLastAgentMessage_NoMatch(t *testing.T) {
	cases := []struct {
		name   string
		stream string
	}{
		{"empty", ""},
		{"whitespace", "\n\n   \n"},
		{"only other events", `{"type":"thread.started"}` + "\n" + `{"type":"item.completed","item":{"type":"reasoning","text":"x"}}`},
		{"agent message not completed", `{"type":"item.started","item":{"type":"agent_message","text":"partial"}}`},
		{"plain text", "codex: error: not logged in"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got, ok := LastAgentMessage(tc.stream); ok {
				t.Fatalf("expected no match, got %q", got)
			}
		})
	}
}

func TestLastAgentMessage_ToleratesMalformedLines(t *testing.T) {
	stream := strings.Join([]string{
		`{"type":"item.completed","item":{"type":"agent_message","text":"kept"}}`,
		`{"type":"item.completed","item":{"type":"agent_message","text":`,
		`not json at all`,
		`{"type":"item.completed","item":"string-not-object"}`,
		`{"type":42}`,
		`[1,2,3]`,
		`{"type":"item.completed"}`,
	}, "\r\n")

	got, ok := LastAgentMessage(stream)
	if !ok || got != "kept" {
		t.Fatalf("LastAgentMessage() = %q, %v; want kept", got, ok)
	}
}

func TestLastAgentMessage_MultilineTextAndLongLines(t *testing.T) {
	long := strings.Repeat("x", 256*1024)
	stream := `{"type":"item.completed","item":{"type":"agent_message","text":"line one\nline two"}}` + "\n" +
		`{"type":"item.completed","item":{"type":"agent_message","text":"` + long + `"}}`

	got, ok := LastAgentMessage(stream)
	if !ok || got != long {
		t.Fatalf("expected the long message, got len=%d ok=%v", len(got), ok)
	}

	got, ok = LastAgentMessage(`{"type":"item.completed","item":{"type":"agent_message","text":"line one\nline two"}}`)
	if !ok || got != "line one\nline two" {
		t.Fatalf("escaped newlines should be decoded, got %q", got)
	}
}
