package hook

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestRuleText(t *testing.T) {
	for _, r := range []Rule{RuleNone, RuleContextLimit, RuleUserAbort, RuleActiveWorkflow, RuleActiveMode} {
		b, err := r.MarshalText()
		if err != nil {
			t.Fatalf("%v.MarshalText() error: %v", r, err)
		}
		var back Rule
		if err := back.UnmarshalText(b); err != nil {
			t.Fatalf("UnmarshalText(%q) error: %v", b, err)
		}
		if back != r {
			t.Errorf("round trip %v -> %q -> %v", r, b, back)
		}
	}

	if _, err := Rule(99).MarshalText(); err == nil {
		t.Error("MarshalText(99) should error")
	}
	var r Rule
	if err := r.UnmarshalText([]byte("blocked")); err == nil {
		t.Error(`UnmarshalText("blocked") should error`)
	}
}

func TestStopDecisionJSON(t *testing.T) {
	d := Allow(RuleContextLimit, "", map[string]any{"session_id": "s1"})
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got := string(b)
	for _, want := range []string{`"continue":true`, `"mode":"context-limit"`, `"session_id":"s1"`} {
		if !strings.Contains(got, want) {
			t.Errorf("JSON %s missing %s", got, want)
		}
	}
	if strings.Contains(got, `"message"`) {
		t.Errorf("JSON %s should omit empty message", got)
	}
}

func TestWithContext(t *testing.T) {
	bare := WithContext(EventSessionStart, "")
	if !bare.Continue || bare.HookSpecificOutput != nil {
		t.Errorf("WithContext(empty) = %+v", bare)
	}

	out := WithContext(EventUserPromptSubmit, "hello")
	if out.HookSpecificOutput == nil || out.HookSpecificOutput.AdditionalContext != "hello" {
		t.Fatalf("WithContext() = %+v", out)
	}
	if out.HookSpecificOutput.HookEventName != EventUserPromptSubmit {
		t.Errorf("HookEventName = %q", out.HookSpecificOutput.HookEventName)
	}
}

func TestDecode(t *testing.T) {
	var ev PreCompactEvent
	if err := Decode(strings.NewReader(`{"session_id":"s","cwd":"/tmp/p/","trigger":"manual"}`), &ev); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ev.Trigger != CompactManual {
		t.Errorf("Trigger = %q, want manual", ev.Trigger)
	}
	if got := ev.DedupKey(); got != "/tmp/p" {
		t.Errorf("DedupKey() = %q, want /tmp/p", got)
	}

	var empty PreCompactEvent
	if err := Decode(bytes.NewReader(nil), &empty); err != nil {
		t.Errorf("Decode(empty) error: %v", err)
	}
	if got := (PreCompactEvent{SessionID: "abc"}).DedupKey(); got != "session:abc" {
		t.Errorf("DedupKey() without cwd = %q", got)
	}

	if err := Decode(strings.NewReader(`not json`), &ev); err == nil {
		t.Error("Decode(garbage) should error")
	}
}
