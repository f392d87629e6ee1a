package matcher

import (
	"slices"
	"testing"

	"github.com/nugget/lifeline/internal/hook"
)

func TestContextLimit(t *testing.T) {
	tests := []struct {
		name    string
		sig     hook.StopSignal
		want    bool
		pattern string
	}{
		{"empty", hook.StopSignal{}, false, ""},
		{"end turn", hook.StopSignal{StopReason: "end_turn"}, false, ""},
		{"stop reason", hook.StopSignal{StopReason: "context_exceeded"}, true, "context_exceeded"},
		{"uppercase", hook.StopSignal{StopReason: "MAX_TOKENS"}, true, "max_tokens"},
		{"end turn reason only", hook.StopSignal{EndTurnReason: "input_too_long"}, true, "input_too_long"},
		{"embedded", hook.StopSignal{StopReason: "error: token_limit reached"}, true, "token_limit"},
		{"user abort is not a limit", hook.StopSignal{StopReason: "abort", UserRequested: true}, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := ContextLimit{}
			if got := m.Detect(tt.sig); got != tt.want {
				t.Errorf("Detect() = %v, want %v", got, tt.want)
			}
			p, ok := m.MatchingPattern(tt.sig)
			if ok != tt.want || p != tt.pattern {
				t.Errorf("MatchingPattern() = (%q, %v), want (%q, %v)", p, ok, tt.pattern, tt.want)
			}
		})
	}
}

func TestContextLimit_AllMatchingPatterns(t *testing.T) {
	sig := hook.StopSignal{StopReason: "context_window", EndTurnReason: "max_tokens"}
	got := ContextLimit{}.AllMatchingPatterns(sig)
	want := []string{"context_window", "max_tokens"}
	if !slices.Equal(got, want) {
		t.Errorf("AllMatchingPatterns() = %v, want %v", got, want)
	}
	if got := (ContextLimit{}).AllMatchingPatterns(hook.StopSignal{}); got != nil {
		t.Errorf("AllMatchingPatterns(empty) = %v, want nil", got)
	}
}

func TestUserAbort(t *testing.T) {
	tests := []struct {
		name    string
		sig     hook.StopSignal
		want    bool
		pattern string
	}{
		{"empty", hook.StopSignal{}, false, ""},
		{"flag", hook.StopSignal{UserRequested: true}, true, UserRequestedPattern},
		{"flag wins over reason", hook.StopSignal{UserRequested: true, StopReason: "abort"}, true, UserRequestedPattern},
		{"exact abort", hook.StopSignal{StopReason: "abort"}, true, "abort"},
		{"exact with case and space", hook.StopSignal{StopReason: " Cancel "}, true, "cancel"},
		{"exact words never substring", hook.StopSignal{StopReason: "cancelled_order"}, false, ""},
		{"interrupt inside word", hook.StopSignal{StopReason: "uninterruptible"}, false, ""},
		{"compound substring", hook.StopSignal{StopReason: "stopped_by_ctrl_c"}, true, "ctrl_c"},
		{"user_cancel", hook.StopSignal{StopReason: "user_cancelled"}, true, "user_cancel"},
		{"manual stop", hook.StopSignal{StopReason: "manual_stop"}, true, "manual_stop"},
		{"end turn reason ignored", hook.StopSignal{EndTurnReason: "abort"}, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := UserAbort{}
			if got := m.Detect(tt.sig); got != tt.want {
				t.Errorf("Detect() = %v, want %v", got, tt.want)
			}
			p, ok := m.MatchingPattern(tt.sig)
			if ok != tt.want || p != tt.pattern {
				t.Errorf("MatchingPattern() = (%q, %v), want (%q, %v)", p, ok, tt.pattern, tt.want)
			}
		})
	}
}

func TestUserAbort_AllMatchingPatterns(t *testing.T) {
	sig := hook.StopSignal{UserRequested: true, StopReason: "user_interrupt_ctrl_c"}
	got := UserAbort{}.AllMatchingPatterns(sig)
	want := []string{UserRequestedPattern, "user_interrupt", "ctrl_c"}
	if !slices.Equal(got, want) {
		t.Errorf("AllMatchingPatterns() = %v, want %v", got, want)
	}
}
