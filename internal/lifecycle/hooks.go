// Package lifecycle wires the stop and compaction coordinators, the
// keyword resolver and the mode registry into one handler per host hook
// event. The CLI and the HTTP server both drive a [Hooks].
package lifecycle

import (
	"context"
	"log/slog"
	"strings"

	"github.com/nugget/lifeline/internal/checkpoint"
	"github.com/nugget/lifeline/internal/compact"
	"github.com/nugget/lifeline/internal/events"
	"github.com/nugget/lifeline/internal/hook"
	"github.com/nugget/lifeline/internal/keyword"
	"github.com/nugget/lifeline/internal/mode"
	"github.com/nugget/lifeline/internal/prompts"
	"github.com/nugget/lifeline/internal/stop"
)

// ModeStore is the mode registry as the hooks use it.
// [*mode.Store] satisfies this interface.
type ModeStore interface {
	ActiveModes(ctx context.Context, sessionID string) ([]mode.ID, error)
	Activate(ctx context.Context, sessionID string, id mode.ID) error
	DeactivateAll(ctx context.Context, sessionID string) (int, error)
}

// Config holds the collaborators shared by every hook.
type Config struct {
	Modes       ModeStore
	Checkpoints compact.Store
	State       compact.StateProvider
	// TeamEnabled turns on detection of the team family of keywords.
	TeamEnabled bool
	Bus         *events.Bus
	Logger      *slog.Logger
}

// Hooks handles host hook events. It is safe for concurrent use.
type Hooks struct {
	stop        *stop.Coordinator
	compact     *compact.Coordinator
	modes       ModeStore
	teamEnabled bool
	bus         *events.Bus
	logger      *slog.Logger
}

// New builds the coordinators from cfg.
func New(cfg Config) *Hooks {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var registry stop.ModeRegistry
	var compactModes compact.ModeRegistry
	if cfg.Modes != nil {
		registry = cfg.Modes
		compactModes = cfg.Modes
	}

	return &Hooks{
		stop: stop.New(registry, cfg.Bus, logger.With("component", "stop")),
		compact: compact.New(compact.Config{
			Store:  cfg.Checkpoints,
			Modes:  compactModes,
			State:  cfg.State,
			Format: checkpoint.FormatRecoveryMessage,
			Bus:    cfg.Bus,
			Logger: logger.With("component", "compact"),
		}),
		modes:       cfg.Modes,
		teamEnabled: cfg.TeamEnabled,
		bus:         cfg.Bus,
		logger:      logger,
	}
}

// Stop answers a stop event.
func (h *Hooks) Stop(ctx context.Context, sig hook.StopSignal) hook.StopDecision {
	return h.stop.Decide(ctx, sig)
}

// PreCompact answers a pre-compaction event.
func (h *Hooks) PreCompact(ctx context.Context, ev hook.PreCompactEvent) hook.RecoveryOutput {
	return h.compact.HandlePreCompact(ctx, ev)
}

// Recover returns the session's latest checkpoint and its recovery
// message. The checkpoint is nil when there is nothing to recover.
func (h *Hooks) Recover(ctx context.Context, sessionID string) (*checkpoint.Checkpoint, string) {
	cp := h.compact.CheckRecovery(ctx, sessionID)
	if cp == nil {
		return nil, ""
	}
	return cp, h.compact.FormatRecoveryMessage(cp)
}

// HandlePrompt resolves keywords in the submitted prompt. A cancel
// keyword clears every mode for the session; persistent keywords
// activate their mode. The returned context names what was recognised.
func (h *Hooks) HandlePrompt(ctx context.Context, ev hook.PromptEvent) hook.ContextOutput {
	kinds := keyword.Resolve(ev.Prompt, keyword.Options{TeamEnabled: h.teamEnabled})
	if len(kinds) == 0 {
		return hook.WithContext(hook.EventUserPromptSubmit, "")
	}

	primary := kinds[0]
	var activated, others []string

	if primary == keyword.Cancel {
		h.cancelModes(ctx, ev.SessionID)
	} else {
		for _, k := range kinds {
			if !k.Persistent() {
				if k != primary {
					others = append(others, k.String())
				}
				continue
			}
			if h.activate(ctx, ev.SessionID, mode.ID(k.String())) {
				activated = append(activated, k.String())
			}
		}
	}

	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	h.logger.Debug("keywords detected",
		"session_id", ev.SessionID,
		"keywords", names,
		"activated", activated,
	)
	h.bus.Emit(events.SourcePrompt, events.KindKeywordsDetected, map[string]any{
		"session_id": ev.SessionID,
		"keywords":   names,
		"activated":  activated,
	})

	var hint string
	if len(others) > 0 {
		hint = "Also requested: " + strings.Join(others, ", ") + "."
	}
	text := prompts.KeywordContext(primary.String(), activated, hint)
	return hook.WithContext(hook.EventUserPromptSubmit, text)
}

func (h *Hooks) cancelModes(ctx context.Context, sessionID string) {
	if h.modes == nil || sessionID == "" {
		return
	}
	n, err := h.modes.DeactivateAll(ctx, sessionID)
	if err != nil {
		h.logger.Warn("cancel modes failed", "session_id", sessionID, "error", err)
		return
	}
	h.logger.Info("modes cancelled", "session_id", sessionID, "count", n)
}

func (h *Hooks) activate(ctx context.Context, sessionID string, id mode.ID) bool {
	if h.modes == nil || sessionID == "" {
		return false
	}
	if err := h.modes.Activate(ctx, sessionID, id); err != nil {
		h.logger.Warn("mode activation failed", "session_id", sessionID, "mode", id, "error", err)
		return false
	}
	return true
}

// HandleSessionStart returns the recovery message for the session's
// latest checkpoint as additional context, if there is one.
func (h *Hooks) HandleSessionStart(ctx context.Context, ev hook.SessionStartEvent) hook.ContextOutput {
	cp, msg := h.Recover(ctx, ev.SessionID)
	if cp == nil {
		return hook.WithContext(hook.EventSessionStart, "")
	}

	h.logger.Info("recovery served",
		"session_id", ev.SessionID,
		"checkpoint_id", cp.ID,
		"source", ev.Source,
	)
	h.bus.Emit(events.SourceSession, events.KindRecoveryServed, map[string]any{
		"session_id":    ev.SessionID,
		"checkpoint_id": cp.ID.String(),
	})
	return hook.WithContext(hook.EventSessionStart, msg)
}
