// Package lastmsg recovers the final agent-authored message from a review
// CLI's JSON-lines event stream (codex exec --json).
package lastmsg

import (
	"encoding/json"
	"strings"
)

// Event type constants for the JSON-lines stream.
const (
	EventTypeItemCompleted = "item.completed"
	ItemTypeAgentMessage   = "agent_message"
)

// streamEvent is the subset of a stream line needed here. Unknown fields are
// ignored so new event shapes never break the scan.
type streamEvent struct {
	Type string `json:"type"`
	Item *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"item"`
}

// LastAgentMessage returns the text of the last item.completed event whose
// item is an agent_message. Lines that are not JSON, or carry any other
// event or item type, are skipped. It never fails; ok is false when no line
// matches.
func LastAgentMessage(stream string) (text string, ok bool) {
	for len(stream) > 0 {
		var line string
		if idx := strings.IndexByte(stream, '\n'); idx >= 0 {
			line, stream = stream[:idx], stream[idx+1:]
		} else {
			line, stream = stream, ""
		}
		if msg, matched := parseAgentMessage(line); matched {
			text, ok = msg, true
		}
	}
	return text, ok
}

func parseAgentMessage(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || line[0] != '{' {
		return "", false
	}
	var ev streamEvent
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		return "", false
	}
	if ev.Type != EventTypeItemCompleted || ev.Item == nil || ev.Item.Type != ItemTypeAgentMessage {
		return "", false
	}
	return ev.Item.Text, true
}
