package hook

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
)

// maxPayloadBytes caps how much of a hook payload is read. Hook payloads
// are small JSON objects.
const maxPayloadBytes = 1 << 20

// CompactTrigger is what the host reports as the cause of compaction.
type CompactTrigger string

const (
	CompactManual CompactTrigger = "manual"
	CompactAuto   CompactTrigger = "auto"
)

// PreCompactEvent is sent immediately before the host compacts the
// session context.
type PreCompactEvent struct {
	SessionID          string         `json:"session_id"`
	TranscriptPath     string         `json:"transcript_path,omitempty"`
	CWD                string         `json:"cwd"`
	PermissionMode     string         `json:"permission_mode,omitempty"`
	HookEventName      string         `json:"hook_event_name"`
	Trigger            CompactTrigger `json:"trigger"`
	CustomInstructions string         `json:"custom_instructions,omitempty"`
}

// DedupKey returns the key concurrent pre-compaction events are
// collapsed on: the cleaned working directory, or the session when the
// host did not report one.
func (e PreCompactEvent) DedupKey() string {
	if e.CWD != "" {
		return filepath.Clean(e.CWD)
	}
	return "session:" + e.SessionID
}

// PromptEvent is sent when the user submits a prompt.
type PromptEvent struct {
	SessionID     string `json:"session_id"`
	CWD           string `json:"cwd"`
	HookEventName string `json:"hook_event_name"`
	Prompt        string `json:"prompt"`
}

// SessionStartEvent is sent when a session starts or resumes.
type SessionStartEvent struct {
	SessionID     string `json:"session_id"`
	CWD           string `json:"cwd"`
	HookEventName string `json:"hook_event_name"`
	// Source is "startup", "resume", "clear" or "compact".
	Source string `json:"source"`
}

// Decode reads a single JSON hook payload from r into v. At most 1 MiB
// is read. An empty payload leaves v untouched and is not an error.
func Decode(r io.Reader, v any) error {
	data, err := io.ReadAll(io.LimitReader(r, maxPayloadBytes))
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
