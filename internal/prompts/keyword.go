package prompts

import (
	"fmt"
	"strings"
)

// keywordTemplate tells the host which keyword was recognised in the
// user's prompt. Format verbs: (1) primary keyword.
const keywordTemplate = `[MAGIC KEYWORD: %s]`

// cancelMessage is sent when the prompt cancelled every active mode.
const cancelMessage = `[MAGIC KEYWORD: CANCEL]
All active modes for this session have been cancelled. Stop any
persistent loop and wait for further instructions.`

// KeywordContext returns the additional context for a prompt whose
// resolved keywords start with primary. activated lists the modes that
// were switched on; hints are extra lines appended verbatim. An empty
// primary yields an empty string.
func KeywordContext(primary string, activated []string, hints ...string) string {
	if primary == "" {
		return ""
	}
	if primary == "cancel" {
		return cancelMessage
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, keywordTemplate, upper(primary))
	if len(activated) > 0 {
		fmt.Fprintf(&sb, "\nActivated modes: %s. They stay active until the work is verified complete or cancelled.",
			strings.Join(activated, ", "))
	}
	for _, h := range hints {
		if h == "" {
			continue
		}
		sb.WriteString("\n")
		sb.WriteString(h)
	}
	return sb.String()
}
