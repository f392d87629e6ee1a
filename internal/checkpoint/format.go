package checkpoint

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// maxContextBytes caps how much opaque workflow or memory state is
// echoed into a recovery message.
const maxContextBytes = 2048

// FormatRecoveryMessage renders cp as a plain-text block the host can
// inject into a restarted session.
func FormatRecoveryMessage(cp *Checkpoint) (string, error) {
	if cp == nil {
		return "", errors.New("nil checkpoint")
	}

	var sb strings.Builder
	sb.WriteString("## Session Recovery\n\n")
	fmt.Fprintf(&sb, "Checkpoint: %s\n", cp.ID)
	fmt.Fprintf(&sb, "Created: %s\n", cp.CreatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&sb, "Trigger: %s\n", cp.Trigger)
	fmt.Fprintf(&sb, "Session: %s\n", cp.SessionID)

	if active := cp.ActiveModes(); len(active) > 0 {
		sb.WriteString("\n### Active Modes\n")
		for _, name := range active {
			fmt.Fprintf(&sb, "- %s (since %s)\n", name,
				cp.ModeStates[name].ActivatedAt.UTC().Format(time.RFC3339))
		}
	}

	if s := compactJSON(cp.WorkflowState); s != "" {
		sb.WriteString("\n### Workflow State\n")
		sb.WriteString(s)
		sb.WriteString("\n")
	}
	if s := compactJSON(cp.MemoryContext); s != "" {
		sb.WriteString("\n### Project Context\n")
		sb.WriteString(s)
		sb.WriteString("\n")
	}

	sb.WriteString("\nResume the work described above before starting anything new.")
	return sb.String(), nil
}

func compactJSON(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return ""
	}
	s := buf.String()
	if len(s) > maxContextBytes {
		n := maxContextBytes
		for n > 0 && !utf8.RuneStart(s[n]) {
			n--
		}
		s = s[:n] + "..."
	}
	return s
}
