// Package stop decides what to tell the host when it is about to stop.
//
// Decisions are soft: every decision allows the stop. The coordinator
// only chooses whether to attach a continuation message, using four
// ordered checks where the first match wins:
//
//  1. context limit reached: allow silently, never nag a full context
//  2. user abort: allow silently
//  3. active workflow: attach the workflow-continuation message
//  4. active mode: attach the mode-continuation message
package stop

import (
	"context"
	"log/slog"

	"github.com/nugget/lifeline/internal/events"
	"github.com/nugget/lifeline/internal/hook"
	"github.com/nugget/lifeline/internal/matcher"
	"github.com/nugget/lifeline/internal/mode"
	"github.com/nugget/lifeline/internal/prompts"
)

// ModeRegistry reports the active modes of a session.
// [*mode.Store] satisfies this interface.
type ModeRegistry interface {
	ActiveModes(ctx context.Context, sessionID string) ([]mode.ID, error)
}

// Coordinator produces stop decisions.
type Coordinator struct {
	contextLimit matcher.Matcher
	userAbort    matcher.Matcher
	modes        ModeRegistry
	bus          *events.Bus
	logger       *slog.Logger
}

// New creates a stop coordinator. modes and bus may be nil; without a
// registry the coordinator relies on the active mode carried by the
// signal itself.
func New(modes ModeRegistry, bus *events.Bus, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		contextLimit: matcher.ContextLimit{},
		userAbort:    matcher.UserAbort{},
		modes:        modes,
		bus:          bus,
		logger:       logger,
	}
}

// Decide evaluates sig and returns a decision. It never fails and the
// returned decision always has Continue set.
func (c *Coordinator) Decide(ctx context.Context, sig hook.StopSignal) hook.StopDecision {
	meta := map[string]any{
		"reason":          sig.CombinedReason(),
		"session_id":      sig.SessionID,
		"user_requested":  sig.UserRequested,
		"active_mode":     string(sig.ActiveMode),
		"active_workflow": sig.ActiveWorkflow,
	}

	d := c.decide(ctx, sig, meta)

	c.logger.Debug("stop decision",
		"session_id", sig.SessionID,
		"rule", d.Rule,
		"reason", meta["reason"],
	)
	c.bus.Emit(events.SourceStop, events.KindDecision, map[string]any{
		"session_id": sig.SessionID,
		"rule":       d.Rule.String(),
		"pattern":    meta["pattern"],
	})
	return d
}

func (c *Coordinator) decide(ctx context.Context, sig hook.StopSignal, meta map[string]any) hook.StopDecision {
	if p, ok := c.contextLimit.MatchingPattern(sig); ok {
		meta["pattern"] = p
		return hook.Allow(hook.RuleContextLimit, "", meta)
	}

	if p, ok := c.userAbort.MatchingPattern(sig); ok {
		meta["pattern"] = p
		return hook.Allow(hook.RuleUserAbort, "", meta)
	}

	if sig.ActiveWorkflow {
		return hook.Allow(hook.RuleActiveWorkflow, prompts.WorkflowContinuation(), meta)
	}

	if name, ok := c.activeMode(ctx, sig); ok {
		meta["mode_name"] = name
		return hook.Allow(hook.RuleActiveMode, prompts.ModeContinuation(name), meta)
	}

	return hook.Allow(hook.RuleNone, "", meta)
}

// activeMode returns the display name of the session's highest-ranked
// active mode. The signal's own active mode is used only when the
// registry cannot answer.
func (c *Coordinator) activeMode(ctx context.Context, sig hook.StopSignal) (string, bool) {
	if c.modes != nil && sig.SessionID != "" {
		ids, err := c.modes.ActiveModes(ctx, sig.SessionID)
		if err == nil {
			if len(ids) == 0 {
				return "", false
			}
			return mode.Name(ids[0]), true
		}
		c.logger.Warn("mode registry unavailable, using signal active mode",
			"session_id", sig.SessionID,
			"error", err,
		)
	}

	switch {
	case sig.ActiveMode.Known():
		return string(sig.ActiveMode), true
	case sig.ActiveMode != "":
		c.logger.Debug("ignoring unknown active mode in stop signal",
			"session_id", sig.SessionID,
			"active_mode", sig.ActiveMode,
		)
	}
	return "", false
}
