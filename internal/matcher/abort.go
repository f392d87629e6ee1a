package matcher

import (
	"strings"

	"github.com/nugget/lifeline/internal/hook"
)

// UserRequestedPattern is reported by [UserAbort.MatchingPattern] when the
// explicit user_requested flag caused the match.
const UserRequestedPattern = "user_requested"

// abortExactPatterns must equal the whole normalized stop reason. They
// are short generic words that would false-positive as substrings
// ("cancelled_order").
var abortExactPatterns = []string{
	"aborted",
	"abort",
	"cancel",
	"interrupt",
}

// abortSubstringPatterns are compound tokens safe for containment checks.
var abortSubstringPatterns = []string{
	"user_cancel",
	"user_interrupt",
	"ctrl_c",
	"manual_stop",
}

// UserAbort matches an explicit user cancellation. The host documents
// that Stop does not fire on user interrupts, so in practice this rarely
// matches; it stays in case that contract changes.
type UserAbort struct{}

var _ Matcher = UserAbort{}

// Detect implements [Matcher].
func (UserAbort) Detect(sig hook.StopSignal) bool {
	_, ok := UserAbort{}.MatchingPattern(sig)
	return ok
}

// MatchingPattern implements [Matcher]. The user_requested flag short
// circuits the pattern tiers.
func (UserAbort) MatchingPattern(sig hook.StopSignal) (string, bool) {
	if sig.UserRequested {
		return UserRequestedPattern, true
	}
	all := UserAbort{}.patterns(sig.NormalizedStopReason())
	if len(all) == 0 {
		return "", false
	}
	return all[0], true
}

// AllMatchingPatterns implements [Matcher].
func (UserAbort) AllMatchingPatterns(sig hook.StopSignal) []string {
	var out []string
	if sig.UserRequested {
		out = append(out, UserRequestedPattern)
	}
	return append(out, UserAbort{}.patterns(sig.NormalizedStopReason())...)
}

func (UserAbort) patterns(reason string) []string {
	if reason == "" {
		return nil
	}
	var out []string
	for _, p := range abortExactPatterns {
		if reason == p {
			out = append(out, p)
		}
	}
	for _, p := range abortSubstringPatterns {
		if strings.Contains(reason, p) {
			out = append(out, p)
		}
	}
	return out
}
