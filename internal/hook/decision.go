package hook

import "fmt"

// Rule identifies which stop check produced a decision.
type Rule int

const (
	RuleNone Rule = iota
	RuleContextLimit
	RuleUserAbort
	RuleActiveWorkflow
	RuleActiveMode
)

var ruleNames = [...]string{
	RuleNone:           "none",
	RuleContextLimit:   "context-limit",
	RuleUserAbort:      "user-abort",
	RuleActiveWorkflow: "active-workflow",
	RuleActiveMode:     "active-mode",
}

func (r Rule) String() string {
	if r < 0 || int(r) >= len(ruleNames) {
		return fmt.Sprintf("Rule(%d)", int(r))
	}
	return ruleNames[r]
}

// MarshalText implements [encoding.TextMarshaler].
func (r Rule) MarshalText() ([]byte, error) {
	if r < 0 || int(r) >= len(ruleNames) {
		return nil, fmt.Errorf("unknown rule %d", int(r))
	}
	return []byte(ruleNames[r]), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (r *Rule) UnmarshalText(b []byte) error {
	for i, name := range ruleNames {
		if name == string(b) {
			*r = Rule(i)
			return nil
		}
	}
	return fmt.Errorf("unknown rule %q", b)
}

// StopDecision is the answer to a stop event. Continue is always true:
// the coordinator may attach a message but never blocks the host.
type StopDecision struct {
	Continue bool           `json:"continue"`
	Message  string         `json:"message,omitempty"`
	Rule     Rule           `json:"mode"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Allow builds a StopDecision. It is the only constructor the stop
// coordinator uses, which keeps Continue pinned to true.
func Allow(rule Rule, message string, metadata map[string]any) StopDecision {
	return StopDecision{
		Continue: true,
		Message:  message,
		Rule:     rule,
		Metadata: metadata,
	}
}

// RecoveryOutput is the answer to a pre-compaction event.
type RecoveryOutput struct {
	Continue      bool   `json:"continue"`
	SystemMessage string `json:"systemMessage,omitempty"`
}

// Recovery builds a RecoveryOutput carrying msg.
func Recovery(msg string) RecoveryOutput {
	return RecoveryOutput{Continue: true, SystemMessage: msg}
}

// HookSpecific carries additional context for prompt and session-start
// events in the shape the host expects.
type HookSpecific struct {
	HookEventName     string `json:"hookEventName"`
	AdditionalContext string `json:"additionalContext,omitempty"`
}

// ContextOutput is the answer to prompt and session-start events.
type ContextOutput struct {
	Continue           bool          `json:"continue"`
	HookSpecificOutput *HookSpecific `json:"hookSpecificOutput,omitempty"`
}

// WithContext builds a ContextOutput. An empty text yields a bare
// {"continue": true}.
func WithContext(event, text string) ContextOutput {
	out := ContextOutput{Continue: true}
	if text != "" {
		out.HookSpecificOutput = &HookSpecific{
			HookEventName:     event,
			AdditionalContext: text,
		}
	}
	return out
}
