// Package matcher classifies stop signals against fixed pattern tables.
// Matchers never fail: a missing or malformed field is simply "no match".
package matcher

import (
	"strings"

	"github.com/nugget/lifeline/internal/hook"
)

// Matcher is a classifier over a stop signal.
type Matcher interface {
	// Detect reports whether the signal matches.
	Detect(sig hook.StopSignal) bool
	// MatchingPattern returns the first pattern that matched.
	MatchingPattern(sig hook.StopSignal) (string, bool)
	// AllMatchingPatterns returns every pattern that matched, in table order.
	AllMatchingPatterns(sig hook.StopSignal) []string
}

// contextLimitPatterns are substrings of stop or end-turn reasons that
// mean the host ran out of context. These stops must always be allowed
// through: the host cannot compact until it stops.
var contextLimitPatterns = []string{
	"context_limit",
	"context_window",
	"context_exceeded",
	"context_full",
	"max_context",
	"token_limit",
	"max_tokens",
	"conversation_too_long",
	"input_too_long",
}

// ContextLimit matches context exhaustion in the combined stop and
// end-turn reasons, case-insensitively.
type ContextLimit struct{}

var _ Matcher = ContextLimit{}

// Detect implements [Matcher].
func (ContextLimit) Detect(sig hook.StopSignal) bool {
	_, ok := ContextLimit{}.MatchingPattern(sig)
	return ok
}

// MatchingPattern implements [Matcher].
func (ContextLimit) MatchingPattern(sig hook.StopSignal) (string, bool) {
	reason := sig.CombinedReason()
	if reason == "" {
		return "", false
	}
	for _, p := range contextLimitPatterns {
		if strings.Contains(reason, p) {
			return p, true
		}
	}
	return "", false
}

// AllMatchingPatterns implements [Matcher].
func (ContextLimit) AllMatchingPatterns(sig hook.StopSignal) []string {
	reason := sig.CombinedReason()
	if reason == "" {
		return nil
	}
	var out []string
	for _, p := range contextLimitPatterns {
		if strings.Contains(reason, p) {
			out = append(out, p)
		}
	}
	return out
}
