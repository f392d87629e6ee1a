// Package keyword detects magic mode keywords in free text and resolves
// simultaneous hits into an ordered mode list.
//
// Detection runs over sanitized text (see [Sanitize]) so that code,
// markup, URLs and file paths quoted in a prompt cannot trigger a mode.
// Resolution applies the conflict rules in a fixed order: cancel is
// exclusive, team suppresses autopilot, and the legacy ultrapilot and
// swarm aliases additionally emit team when team support is enabled.
package keyword

import "fmt"

// Kind is one of the fixed mode keywords.
type Kind int

const (
	Cancel Kind = iota
	Ralph
	Autopilot
	Ultrapilot
	Team
	Ultrawork
	Swarm
	Pipeline
	Ralplan
	Plan
	TDD
	Deepsearch
	Analyze
	Codex
	Gemini
)

var kindNames = [...]string{
	Cancel:     "cancel",
	Ralph:      "ralph",
	Autopilot:  "autopilot",
	Ultrapilot: "ultrapilot",
	Team:       "team",
	Ultrawork:  "ultrawork",
	Swarm:      "swarm",
	Pipeline:   "pipeline",
	Ralplan:    "ralplan",
	Plan:       "plan",
	TDD:        "tdd",
	Deepsearch: "deepsearch",
	Analyze:    "analyze",
	Codex:      "codex",
	Gemini:     "gemini",
}

// Priority is the global resolution order, highest first.
var Priority = []Kind{
	Cancel,
	Ralph,
	Autopilot,
	Ultrapilot,
	Team,
	Ultrawork,
	Swarm,
	Pipeline,
	Ralplan,
	Plan,
	TDD,
	Deepsearch,
	Analyze,
	Codex,
	Gemini,
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// MarshalText implements [encoding.TextMarshaler].
func (k Kind) MarshalText() ([]byte, error) {
	if k < 0 || int(k) >= len(kindNames) {
		return nil, fmt.Errorf("unknown keyword kind %d", int(k))
	}
	return []byte(kindNames[k]), nil
}

// TeamRelated reports whether k is only detected when team support is
// enabled.
func (k Kind) TeamRelated() bool {
	switch k {
	case Team, Ultrapilot, Swarm:
		return true
	}
	return false
}

// Persistent reports whether k names a session mode that stays active
// until cancelled, as opposed to a one-shot hint.
func (k Kind) Persistent() bool {
	switch k {
	case Ralph, Autopilot, Ultrapilot, Team, Ultrawork, Swarm, Pipeline:
		return true
	case Cancel, Ralplan, Plan, TDD, Deepsearch, Analyze, Codex, Gemini:
		return false
	}
	return false
}
