// Package mode is the registry of session-scoped execution modes: a
// static table describing each mode, and a SQLite store recording which
// modes are active for which session.
package mode

import "time"

// ID identifies a mode.
type ID string

const (
	Autopilot  ID = "autopilot"
	Ralph      ID = "ralph"
	Ultrawork  ID = "ultrawork"
	Ultrapilot ID = "ultrapilot"
	Team       ID = "team"
	Swarm      ID = "swarm"
	Pipeline   ID = "pipeline"
)

// Info describes a mode.
type Info struct {
	ID          ID
	Name        string
	Description string
}

// table is in display order; ActiveModes returns modes in this order.
var table = []Info{
	{Autopilot, "Autopilot", "autonomous execution from idea to verified code"},
	{Ralph, "Ralph", "persistent loop that keeps working until the task is verified complete"},
	{Ultrawork, "Ultrawork", "maximum-parallelism execution across agents"},
	{Team, "Team", "coordinated multi-agent team with a shared task list"},
	{Ultrapilot, "Ultrapilot", "parallel autopilot across partitioned work (legacy alias of team)"},
	{Swarm, "Swarm", "many agents claiming tasks from a shared pool (legacy alias of team)"},
	{Pipeline, "Pipeline", "sequential chain of agents passing output forward"},
}

// Lookup returns the table entry for id.
func Lookup(id ID) (Info, bool) {
	for _, info := range table {
		if info.ID == id {
			return info, true
		}
	}
	return Info{}, false
}

// Name returns the display name of id, or id itself when unknown.
func Name(id ID) string {
	if info, ok := Lookup(id); ok {
		return info.Name
	}
	return string(id)
}

// All returns a copy of the mode table.
func All() []Info {
	out := make([]Info, len(table))
	copy(out, table)
	return out
}

func rank(id ID) int {
	for i, info := range table {
		if info.ID == id {
			return i
		}
	}
	return len(table)
}

// State is a mode's activation record for a session.
type State struct {
	ID          ID        `json:"id"`
	Active      bool      `json:"active"`
	ActivatedAt time.Time `json:"activated_at"`
}
