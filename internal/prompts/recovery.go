package prompts

import (
	"fmt"
	"strings"
	"time"
)

// recoveryFallbackTemplate renders a checkpoint when the store's own
// formatter is unavailable. Format verbs: (1) id, (2) creation time,
// (3) trigger, (4) session id.
const recoveryFallbackTemplate = `## Session Recovery

Checkpoint: %s
Created: %s
Trigger: %s
Session: %s

Resume the work described above before starting anything new.`

// checkpointWarningTemplate is returned when checkpoint creation fails.
// The single format verb is the error text.
const checkpointWarningTemplate = `[CHECKPOINT WARNING]
Lifeline could not save a checkpoint before compaction: %s
Compaction will continue. Session state may not be recoverable after a
restart; summarize open work before continuing.`

// RecoveryFallback returns a minimal recovery block for a checkpoint.
func RecoveryFallback(id string, createdAt time.Time, trigger, sessionID string) string {
	return fmt.Sprintf(recoveryFallbackTemplate,
		id, createdAt.UTC().Format(time.RFC3339), trigger, sessionID)
}

// CheckpointWarning returns the warning message for a failed checkpoint.
func CheckpointWarning(err error) string {
	reason := "unknown error"
	if err != nil {
		reason = err.Error()
	}
	return fmt.Sprintf(checkpointWarningTemplate, reason)
}

func upper(s string) string {
	return strings.ToUpper(s)
}
