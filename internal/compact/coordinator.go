// Package compact snapshots session state before the host compacts its
// context, and serves the snapshot back when a session restarts.
//
// Concurrent pre-compaction events for the same working directory are
// collapsed into one checkpoint; every caller receives the same message.
// Failures never block compaction: they turn into a warning message.
package compact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nugget/lifeline/internal/checkpoint"
	"github.com/nugget/lifeline/internal/events"
	"github.com/nugget/lifeline/internal/hook"
	"github.com/nugget/lifeline/internal/inflight"
	"github.com/nugget/lifeline/internal/mode"
	"github.com/nugget/lifeline/internal/prompts"
)

// ModeRegistry reports the active modes of a session.
type ModeRegistry interface {
	ActiveModes(ctx context.Context, sessionID string) ([]mode.ID, error)
}

// Store creates, persists and retrieves checkpoints.
// [*checkpoint.Store] satisfies this interface.
type Store interface {
	Create(sessionID string, trigger checkpoint.Trigger, b checkpoint.Bundle) (*checkpoint.Checkpoint, error)
	Save(ctx context.Context, cp *checkpoint.Checkpoint) error
	Latest(ctx context.Context, sessionID string) (*checkpoint.Checkpoint, error)
}

// StateProvider supplies the opaque workflow and memory state captured
// alongside mode states. [*workflow.Provider] satisfies this interface.
type StateProvider interface {
	WorkflowState(ctx context.Context, cwd string) (json.RawMessage, error)
	MemoryContext(ctx context.Context, cwd string) (json.RawMessage, error)
}

// Formatter renders a checkpoint as a recovery message.
type Formatter func(cp *checkpoint.Checkpoint) (string, error)

// Config holds the coordinator's collaborators. Store is required for
// checkpoints to be taken; everything else is optional.
type Config struct {
	Store  Store
	Modes  ModeRegistry
	State  StateProvider
	Format Formatter
	Bus    *events.Bus
	Logger *slog.Logger
}

// Coordinator handles pre-compaction and recovery.
type Coordinator struct {
	store   Store
	modes   ModeRegistry
	state   StateProvider
	format  Formatter
	bus     *events.Bus
	logger  *slog.Logger
	flights inflight.Group[string]
	now     func() time.Time
}

// New creates a coordinator from cfg.
func New(cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:  cfg.Store,
		modes:  cfg.Modes,
		state:  cfg.State,
		format: cfg.Format,
		bus:    cfg.Bus,
		logger: logger,
		now:    time.Now,
	}
}

// HandlePreCompact takes a checkpoint for ev and returns the recovery
// message. If a checkpoint for the same working directory is already
// being taken, it waits for that one instead of starting another.
func (c *Coordinator) HandlePreCompact(ctx context.Context, ev hook.PreCompactEvent) hook.RecoveryOutput {
	key := ev.DedupKey()

	// The shared work must not die with the caller that happened to
	// start it; waiters still need its result.
	detached := context.WithoutCancel(ctx)
	msg, err, shared := c.flights.Do(ctx, key, func() (string, error) {
		return c.checkpointMessage(detached, ev), nil
	})
	if err != nil {
		c.logger.Warn("pre-compact checkpoint did not complete",
			"session_id", ev.SessionID,
			"cwd", key,
			"error", err,
		)
		msg = prompts.CheckpointWarning(err)
	}
	if shared {
		c.logger.Debug("pre-compact joined in-flight checkpoint",
			"session_id", ev.SessionID,
			"cwd", key,
		)
		c.bus.Emit(events.SourceCompact, events.KindCheckpointShared, map[string]any{
			"session_id": ev.SessionID,
			"cwd":        key,
		})
	}
	return hook.Recovery(msg)
}

// checkpointMessage runs one real checkpoint and always produces a
// message: the recovery block on success, a warning on failure.
func (c *Coordinator) checkpointMessage(ctx context.Context, ev hook.PreCompactEvent) string {
	cp, err := c.createCheckpoint(ctx, ev)
	if err != nil {
		c.logger.Warn("checkpoint failed",
			"session_id", ev.SessionID,
			"cwd", ev.CWD,
			"error", err,
		)
		c.bus.Emit(events.SourceCompact, events.KindCheckpointFailed, map[string]any{
			"session_id": ev.SessionID,
			"cwd":        ev.CWD,
			"error":      err.Error(),
		})
		return prompts.CheckpointWarning(err)
	}

	c.logger.Info("checkpoint created",
		"session_id", cp.SessionID,
		"checkpoint_id", cp.ID,
		"trigger", cp.Trigger,
		"bytes", cp.ByteSize,
	)
	c.bus.Emit(events.SourceCompact, events.KindCheckpointCreated, map[string]any{
		"session_id":    cp.SessionID,
		"checkpoint_id": cp.ID.String(),
		"trigger":       string(cp.Trigger),
		"cwd":           ev.CWD,
		"active_modes":  cp.ActiveModes(),
	})
	return c.FormatRecoveryMessage(cp)
}

func (c *Coordinator) createCheckpoint(ctx context.Context, ev hook.PreCompactEvent) (*checkpoint.Checkpoint, error) {
	if c.store == nil {
		return nil, errors.New("no checkpoint store configured")
	}

	bundle, err := c.collect(ctx, ev)
	if err != nil {
		return nil, err
	}

	cp, err := c.store.Create(ev.SessionID, triggerFor(ev.Trigger), bundle)
	if err != nil {
		return nil, fmt.Errorf("create checkpoint: %w", err)
	}
	if err := c.store.Save(ctx, cp); err != nil {
		return nil, fmt.Errorf("save checkpoint: %w", err)
	}
	return cp, nil
}

// collect gathers the state bundle concurrently. A mode registry failure
// fails the checkpoint; workflow state is best effort.
func (c *Coordinator) collect(ctx context.Context, ev hook.PreCompactEvent) (checkpoint.Bundle, error) {
	var b checkpoint.Bundle
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		states := map[string]checkpoint.ModeState{}
		if c.modes != nil {
			ids, err := c.modes.ActiveModes(gctx, ev.SessionID)
			if err != nil {
				return fmt.Errorf("query active modes: %w", err)
			}
			now := c.now().UTC()
			for _, id := range ids {
				states[string(id)] = checkpoint.ModeState{Active: true, ActivatedAt: now}
			}
		}
		b.ModeStates = states
		return nil
	})

	if c.state != nil {
		g.Go(func() error {
			ws, err := c.state.WorkflowState(gctx, ev.CWD)
			if err != nil {
				c.logger.Warn("workflow state unavailable", "cwd", ev.CWD, "error", err)
				return nil
			}
			b.WorkflowState = ws
			return nil
		})
		g.Go(func() error {
			mc, err := c.state.MemoryContext(gctx, ev.CWD)
			if err != nil {
				c.logger.Warn("memory context unavailable", "cwd", ev.CWD, "error", err)
				return nil
			}
			b.MemoryContext = mc
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return checkpoint.Bundle{}, err
	}
	return b, nil
}

func triggerFor(t hook.CompactTrigger) checkpoint.Trigger {
	if strings.EqualFold(string(t), string(hook.CompactManual)) {
		return checkpoint.TriggerManual
	}
	return checkpoint.TriggerCompact
}

// CheckRecovery returns the most recent checkpoint for the session, or
// nil when there is none or the store cannot be reached.
func (c *Coordinator) CheckRecovery(ctx context.Context, sessionID string) *checkpoint.Checkpoint {
	if c.store == nil || sessionID == "" {
		return nil
	}
	cp, err := c.store.Latest(ctx, sessionID)
	if err != nil {
		c.logger.Warn("recovery lookup failed", "session_id", sessionID, "error", err)
		return nil
	}
	return cp
}

// FormatRecoveryMessage renders cp with the configured formatter, or
// with a minimal fallback when the formatter is missing or fails.
func (c *Coordinator) FormatRecoveryMessage(cp *checkpoint.Checkpoint) string {
	if cp == nil {
		return ""
	}
	if c.format != nil {
		msg, err := c.format(cp)
		if err == nil {
			return msg
		}
		c.logger.Warn("recovery formatter failed, using fallback",
			"checkpoint_id", cp.ID,
			"error", err,
		)
	}
	return prompts.RecoveryFallback(cp.ID.String(), cp.CreatedAt, string(cp.Trigger), cp.SessionID)
}
