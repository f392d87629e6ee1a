package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/nugget/lifeline/internal/config"
	"github.com/nugget/lifeline/internal/events"
	"github.com/nugget/lifeline/internal/hook"
	"github.com/nugget/lifeline/internal/lifecycle"
	"github.com/nugget/lifeline/internal/workflow"
)

// continueOnly is the answer when a hook cannot be processed at all.
var continueOnly = hook.WithContext("", "")

// runHook answers a single host hook event. The event is read from
// stdin and the answer written to stdout; logs go to stderr because
// stdout belongs to the host. Every failure degrades to a bare
// continue and a nil error.
func runHook(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, configPath, event string) error {
	cfg := hookConfig(stderr, configPath)
	logger := cfg.Logger(stderr).With("hook", event)

	answer := func(v any) error {
		if err := json.NewEncoder(stdout).Encode(v); err != nil {
			logger.Error("write hook answer failed", "error", err)
		}
		return nil
	}

	payload, err := io.ReadAll(stdin)
	if err != nil {
		logger.Warn("read hook payload failed", "error", err)
		return answer(continueOnly)
	}
	logger.Log(ctx, config.LevelTrace, "hook payload", "payload", string(payload))

	hcfg := lifecycle.Config{
		State:       workflow.NewProvider(cfg.Workflow.Dir),
		TeamEnabled: cfg.Features.Team,
		Bus:         events.New(),
		Logger:      logger,
	}
	st, err := openStores(cfg)
	if err != nil {
		logger.Warn("stores unavailable, continuing without them", "error", err)
	} else {
		defer st.Close()
		hcfg.Modes = st.modes
		hcfg.Checkpoints = st.checkpoints
	}
	hooks := lifecycle.New(hcfg)

	answer(dispatchHook(ctx, hooks, event, payload, logger))

	// The answer is already written, so retention work never delays the
	// host.
	if st != nil {
		pruneCheckpoints(ctx, st, cfg, logger)
	}
	return nil
}

// dispatchHook decodes payload for event and returns the answer. A
// malformed payload or unknown event yields a bare continue.
func dispatchHook(ctx context.Context, hooks *lifecycle.Hooks, event string, payload []byte, logger *slog.Logger) any {
	switch event {
	case "stop":
		var sig hook.StopSignal
		if err := hook.Decode(bytes.NewReader(payload), &sig); err != nil {
			logger.Warn("malformed stop payload", "error", err)
			return continueOnly
		}
		return hooks.Stop(ctx, sig)
	case "precompact":
		var ev hook.PreCompactEvent
		if err := hook.Decode(bytes.NewReader(payload), &ev); err != nil {
			logger.Warn("malformed precompact payload", "error", err)
			return continueOnly
		}
		return hooks.PreCompact(ctx, ev)
	case "prompt":
		var ev hook.PromptEvent
		if err := hook.Decode(bytes.NewReader(payload), &ev); err != nil {
			logger.Warn("malformed prompt payload", "error", err)
			return continueOnly
		}
		return hooks.HandlePrompt(ctx, ev)
	case "session-start":
		var ev hook.SessionStartEvent
		if err := hook.Decode(bytes.NewReader(payload), &ev); err != nil {
			logger.Warn("malformed session-start payload", "error", err)
			return continueOnly
		}
		return hooks.HandleSessionStart(ctx, ev)
	default:
		logger.Error("unknown hook event (expected stop, precompact, prompt or session-start)")
		return continueOnly
	}
}

// hookConfig loads the configuration for a hook run. A missing or
// invalid config file falls back to the defaults.
func hookConfig(stderr io.Writer, configPath string) *config.Config {
	cfg, path, err := loadConfig(configPath)
	if err == nil {
		return cfg
	}
	if path != "" || configPath != "" {
		config.NewLogger(stderr, slog.LevelInfo, "text").Warn("using default config", "error", err)
	}
	return config.Default()
}
