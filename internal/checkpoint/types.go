// Package checkpoint provides durable, append-only session snapshots
// taken at compaction boundaries, and renders them as recovery messages.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by [Store.Get] for an unknown id.
var ErrNotFound = errors.New("checkpoint not found")

// Trigger describes what caused a checkpoint to be created.
type Trigger string

const (
	TriggerManual  Trigger = "manual"  // User ran /compact
	TriggerCompact Trigger = "compact" // Host compacted on its own
)

// Valid reports whether t is a known trigger.
func (t Trigger) Valid() bool {
	return t == TriggerManual || t == TriggerCompact
}

// ModeState is a mode's activation as captured in a checkpoint.
type ModeState struct {
	Active      bool      `json:"active"`
	ActivatedAt time.Time `json:"activated_at"`
}

// Bundle is the state captured into a checkpoint. WorkflowState and
// MemoryContext are opaque to this package.
type Bundle struct {
	ModeStates    map[string]ModeState `json:"mode_states"`
	WorkflowState json.RawMessage      `json:"workflow_state,omitempty"`
	MemoryContext json.RawMessage      `json:"memory_context,omitempty"`
}

// Checkpoint is a point-in-time snapshot of a session. Checkpoints are
// never edited; a newer checkpoint for the same session supersedes an
// older one.
type Checkpoint struct {
	ID        uuid.UUID `json:"id"`
	SessionID string    `json:"session_id"`
	Trigger   Trigger   `json:"trigger"`
	CreatedAt time.Time `json:"created_at"`

	ModeStates    map[string]ModeState `json:"mode_states"`
	WorkflowState json.RawMessage      `json:"workflow_state,omitempty"`
	MemoryContext json.RawMessage      `json:"memory_context,omitempty"`

	// ByteSize is the compressed size of the persisted state. Zero until
	// the checkpoint has been saved or loaded.
	ByteSize int64 `json:"byte_size,omitempty"`
}

func (c *Checkpoint) bundle() Bundle {
	return Bundle{
		ModeStates:    c.ModeStates,
		WorkflowState: c.WorkflowState,
		MemoryContext: c.MemoryContext,
	}
}

// ActiveModes returns the names of the active modes, sorted.
func (c *Checkpoint) ActiveModes() []string {
	var names []string
	for name, st := range c.ModeStates {
		if st.Active {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Summary returns a one-line human-readable summary of the checkpoint.
func (c *Checkpoint) Summary() string {
	return fmt.Sprintf("%s | %s | %s | %s | %d active mode(s)",
		c.ID.String()[:8],
		c.CreatedAt.UTC().Format("2006-01-02 15:04"),
		c.Trigger,
		c.SessionID,
		len(c.ActiveModes()),
	)
}
