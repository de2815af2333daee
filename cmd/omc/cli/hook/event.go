// Package hook routes host lifecycle events to the coordination components
// and shapes the replies. Handlers are best-effort by contract: nothing in
// this package may block or break the agent turn that triggered it.
package hook

import (
	"encoding/json"
	"strings"
)

// EventType identifies one host lifecycle event.
type EventType string

const (
	SessionStart     EventType = "session-start"
	UserPromptSubmit EventType = "user-prompt-submit"
	Stop             EventType = "stop"
	PreCompact       EventType = "pre-compact"
	SessionEnd       EventType = "session-end"
	FileModified     EventType = "file-modified"
)

// Types returns every event type the dispatcher understands.
func Types() []EventType {
	return []EventType{SessionStart, UserPromptSubmit, Stop, PreCompact, SessionEnd, FileModified}
}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case SessionStart, UserPromptSubmit, Stop, PreCompact, SessionEnd, FileModified:
		return true
	}
	return false
}

// ParseEventType normalizes s into an EventType.
func ParseEventType(s string) (EventType, bool) {
	t := EventType(strings.ToLower(strings.TrimSpace(s)))
	return t, t.Valid()
}

// Event is one host lifecycle notification. Payload is the raw body the
// host sent; handlers pull out the few fields they understand and pass the
// rest through untouched.
type Event struct {
	Type        EventType       `json:"type"`
	SessionID   string          `json:"sessionId"`
	ProjectPath string          `json:"projectPath"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// payloadEnvelope lifts session identity out of a raw payload. Hosts do not
// agree on key casing, so both spellings are read; cwd stands in for the
// project path when nothing better is present.
type payloadEnvelope struct {
	SessionID        string `json:"session_id"`
	SessionIDCamel   string `json:"sessionId"`
	ProjectPath      string `json:"project_path"`
	ProjectPathCamel string `json:"projectPath"`
	Cwd              string `json:"cwd"`
}

// ParseEvent builds an Event of type t from a raw payload. Malformed
// payloads yield an event with empty identifiers rather than an error; the
// dispatcher fills in a session id when the host omitted one.
func ParseEvent(t EventType, raw []byte) Event {
	var env payloadEnvelope
	_ = json.Unmarshal(raw, &env)

	ev := Event{Type: t, Payload: raw}
	ev.SessionID = firstNonEmpty(env.SessionID, env.SessionIDCamel)
	ev.ProjectPath = firstNonEmpty(env.ProjectPath, env.ProjectPathCamel, env.Cwd)
	return ev
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Format tells the host how to treat response content.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// Response is the reply written back to the host for one event. Content
// marshals as null when the event produced nothing to inject.
type Response struct {
	Success   bool      `json:"success"`
	Type      EventType `json:"type,omitempty"`
	Format    Format    `json:"format,omitempty"`
	Content   any       `json:"content"`
	SessionID string    `json:"sessionId,omitempty"`
}
