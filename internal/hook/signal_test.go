package hook

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestStopSignalUnmarshal_BothSpellings(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    StopSignal
	}{
		{
			name:    "snake_case",
			payload: `{"stop_reason":"end_turn","end_turn_reason":"done","user_requested":true,"session_id":"s1","active_mode":"write","active_workflow":true}`,
			want:    StopSignal{StopReason: "end_turn", EndTurnReason: "done", UserRequested: true, SessionID: "s1", ActiveMode: ModeWrite, ActiveWorkflow: true},
		},
		{
			name:    "camelCase",
			payload: `{"stopReason":"end_turn","endTurnReason":"done","userRequested":true,"sessionId":"s1","activeMode":"write","activeWorkflow":true}`,
			want:    StopSignal{StopReason: "end_turn", EndTurnReason: "done", UserRequested: true, SessionID: "s1", ActiveMode: ModeWrite, ActiveWorkflow: true},
		},
		{
			name:    "mixed",
			payload: `{"stop_reason":"x","sessionId":"s2"}`,
			want:    StopSignal{StopReason: "x", SessionID: "s2"},
		},
		{
			name:    "snake wins when both present",
			payload: `{"stop_reason":"snake","stopReason":"camel"}`,
			want:    StopSignal{StopReason: "snake"},
		},
		{
			name:    "null falls through to other spelling",
			payload: `{"stop_reason":null,"stopReason":"camel"}`,
			want:    StopSignal{StopReason: "camel"},
		},
		{
			name:    "wrong types are dropped",
			payload: `{"stop_reason":42,"user_requested":"yes","active_workflow":{}}`,
			want:    StopSignal{},
		},
		{
			name:    "wrong type falls through to other spelling",
			payload: `{"stop_reason":42,"stopReason":"context_limit","user_requested":"maybe","userRequested":true}`,
			want:    StopSignal{StopReason: "context_limit", UserRequested: true},
		},
		{
			name:    "string booleans",
			payload: `{"user_requested":"true"}`,
			want:    StopSignal{UserRequested: true},
		},
		{
			name:    "mode is lowercased",
			payload: `{"activeMode":"Review"}`,
			want:    StopSignal{ActiveMode: ModeReview},
		},
		{
			name:    "empty object",
			payload: `{}`,
			want:    StopSignal{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got StopSignal
			if err := json.Unmarshal([]byte(tt.payload), &got); err != nil {
				t.Fatalf("Unmarshal() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Unmarshal() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStopSignalUnmarshal_NotObject(t *testing.T) {
	var s StopSignal
	if err := json.Unmarshal([]byte(`[1,2]`), &s); err == nil {
		t.Error("Unmarshal(array) should error")
	}
}

func TestStopSignal_NormalizationIdempotent(t *testing.T) {
	in := `{"stopReason":"Context_Limit","end_turn_reason":"x","userRequested":true,"session_id":"abc","activeMode":"auto","active_workflow":true}`

	var first StopSignal
	if err := json.Unmarshal([]byte(in), &first); err != nil {
		t.Fatalf("first Unmarshal: %v", err)
	}
	encoded, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if strings.Contains(string(encoded), "stopReason") {
		t.Errorf("Marshal emitted camelCase: %s", encoded)
	}

	var second StopSignal
	if err := json.Unmarshal(encoded, &second); err != nil {
		t.Fatalf("second Unmarshal: %v", err)
	}
	if first != second {
		t.Errorf("normalization not idempotent: %+v != %+v", first, second)
	}
}

func TestCombinedReason(t *testing.T) {
	s := StopSignal{StopReason: "  End_Turn", EndTurnReason: "MAX_TOKENS "}
	if got, want := s.CombinedReason(), "end_turn max_tokens"; got != want {
		t.Errorf("CombinedReason() = %q, want %q", got, want)
	}
	if got := (StopSignal{}).CombinedReason(); got != "" {
		t.Errorf("CombinedReason() on empty = %q, want empty", got)
	}
}

func TestActiveModeKnown(t *testing.T) {
	for _, m := range []ActiveMode{ModeAnalysis, ModeWrite, ModeReview, ModeAuto} {
		if !m.Known() {
			t.Errorf("%q.Known() = false", m)
		}
	}
	if ActiveMode("turbo").Known() {
		t.Error(`"turbo".Known() = true`)
	}
}
