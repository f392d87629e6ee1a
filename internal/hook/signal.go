// Package hook defines the records exchanged with the agent host at the
// lifecycle hook boundary: inbound events (stop, pre-compaction, prompt
// submission, session start) and the outbound decisions written back.
//
// Inbound records are decoded tolerantly. The host is not consistent
// about field spelling, so every field of a [StopSignal] is accepted in
// both snake_case and camelCase and normalized once, at decode time,
// into a single canonical field. Nothing downstream of this package ever
// branches on spelling.
package hook

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Hook event names as reported in hook_event_name.
const (
	EventStop             = "Stop"
	EventPreCompact       = "PreCompact"
	EventUserPromptSubmit = "UserPromptSubmit"
	EventSessionStart     = "SessionStart"
)

// ActiveMode is the execution mode a host may embed in a stop signal.
type ActiveMode string

const (
	ModeAnalysis ActiveMode = "analysis"
	ModeWrite    ActiveMode = "write"
	ModeReview   ActiveMode = "review"
	ModeAuto     ActiveMode = "auto"
)

// Known reports whether m is one of the four execution modes.
func (m ActiveMode) Known() bool {
	switch m {
	case ModeAnalysis, ModeWrite, ModeReview, ModeAuto:
		return true
	}
	return false
}

// StopSignal is the canonical form of a stop event. Absent fields are
// zero values; a matcher treats a zero value as "no match".
type StopSignal struct {
	StopReason     string
	EndTurnReason  string
	UserRequested  bool
	SessionID      string
	ActiveMode     ActiveMode
	ActiveWorkflow bool
}

// CombinedReason returns the lowercased stop and end-turn reasons joined
// by a space, the text the context-limit matcher scans.
func (s StopSignal) CombinedReason() string {
	return strings.ToLower(strings.TrimSpace(s.StopReason + " " + s.EndTurnReason))
}

// NormalizedStopReason returns the trimmed, lowercased stop reason.
func (s StopSignal) NormalizedStopReason() string {
	return strings.ToLower(strings.TrimSpace(s.StopReason))
}

// stopSignalJSON is the canonical wire shape. MarshalJSON always emits
// snake_case so that decode(encode(x)) == x.
type stopSignalJSON struct {
	StopReason     string     `json:"stop_reason,omitempty"`
	EndTurnReason  string     `json:"end_turn_reason,omitempty"`
	UserRequested  bool       `json:"user_requested,omitempty"`
	SessionID      string     `json:"session_id,omitempty"`
	ActiveMode     ActiveMode `json:"active_mode,omitempty"`
	ActiveWorkflow bool       `json:"active_workflow,omitempty"`
}

// MarshalJSON implements [json.Marshaler] using snake_case field names.
func (s StopSignal) MarshalJSON() ([]byte, error) {
	return json.Marshal(stopSignalJSON(s))
}

// UnmarshalJSON implements [json.Unmarshaler]. Each field is looked up
// under its snake_case name first and its camelCase name second. A field
// whose value has the wrong JSON type is dropped rather than failing the
// whole record. Only a payload that is not a JSON object is an error.
func (s *StopSignal) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	f := fields(raw)
	*s = StopSignal{
		StopReason:     f.str("stop_reason", "stopReason"),
		EndTurnReason:  f.str("end_turn_reason", "endTurnReason"),
		UserRequested:  f.boolean("user_requested", "userRequested"),
		SessionID:      f.str("session_id", "sessionId"),
		ActiveMode:     ActiveMode(strings.ToLower(f.str("active_mode", "activeMode"))),
		ActiveWorkflow: f.boolean("active_workflow", "activeWorkflow"),
	}
	return nil
}

// fields is a decoded JSON object with spelling-tolerant accessors.
type fields map[string]json.RawMessage

// raw returns the value stored under name, or false when it is absent
// or null.
func (f fields) raw(name string) (json.RawMessage, bool) {
	v, ok := f[name]
	if !ok || string(v) == "null" {
		return nil, false
	}
	return v, true
}

// str returns the first value among names that decodes as a string. A
// spelling holding the wrong type is skipped.
func (f fields) str(names ...string) string {
	for _, name := range names {
		raw, ok := f.raw(name)
		if !ok {
			continue
		}
		var v string
		if err := json.Unmarshal(raw, &v); err == nil {
			return v
		}
	}
	return ""
}

// boolean returns the first value among names that is a JSON bool or a
// string that [strconv.ParseBool] understands. Anything else is skipped,
// and false is returned when nothing qualifies.
func (f fields) boolean(names ...string) bool {
	for _, name := range names {
		raw, ok := f.raw(name)
		if !ok {
			continue
		}
		var b bool
		if err := json.Unmarshal(raw, &b); err == nil {
			return b
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			continue
		}
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b
		}
	}
	return false
}
