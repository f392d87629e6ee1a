package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/nugget/lifeline/internal/checkpoint"
	"github.com/nugget/lifeline/internal/config"
	"github.com/nugget/lifeline/internal/lifecycle"
	"github.com/nugget/lifeline/internal/mode"
)

// openForQuery loads the config and opens the stores for a read-only
// subcommand. Logs go to stderr so stdout stays parseable.
func openForQuery(stderr io.Writer, configPath string) (*stores, *lifecycle.Hooks, error) {
	cfg, path, err := loadConfig(configPath)
	if err != nil {
		// Only a missing, undiscovered config falls back to defaults.
		if configPath != "" || path != "" {
			return nil, nil, err
		}
		cfg = config.Default()
	}
	st, err := openStores(cfg)
	if err != nil {
		return nil, nil, err
	}
	hooks := lifecycle.New(lifecycle.Config{
		Modes:       st.modes,
		Checkpoints: st.checkpoints,
		TeamEnabled: cfg.Features.Team,
		Logger:      cfg.Logger(stderr),
	})
	return st, hooks, nil
}

// runRecover prints the recovery message for the newest checkpoint of a
// session.
func runRecover(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt, sessionID string) error {
	st, hooks, err := openForQuery(stderr, configPath)
	if err != nil {
		return err
	}
	defer st.Close()

	cp, msg := hooks.Recover(ctx, sessionID)
	if cp == nil {
		return fmt.Errorf("no checkpoint for session %s", sessionID)
	}
	if outputFmt == "json" {
		return writeJSON(stdout, map[string]any{
			"checkpoint": cp,
			"message":    msg,
		})
	}
	fmt.Fprintln(stdout, msg)
	return nil
}

// runCheckpoints lists recent checkpoints, newest first. An empty
// session lists every session.
func runCheckpoints(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt, sessionID string) error {
	st, _, err := openForQuery(stderr, configPath)
	if err != nil {
		return err
	}
	defer st.Close()

	list, err := st.checkpoints.List(ctx, sessionID, 0)
	if err != nil {
		return fmt.Errorf("list checkpoints: %w", err)
	}
	if outputFmt == "json" {
		if list == nil {
			list = []*checkpoint.Checkpoint{}
		}
		return writeJSON(stdout, list)
	}
	if len(list) == 0 {
		fmt.Fprintln(stdout, "No checkpoints.")
		return nil
	}
	for _, cp := range list {
		fmt.Fprintf(stdout, "%s | %d bytes\n", cp.Summary(), cp.ByteSize)
	}
	return nil
}

// runModes prints every mode recorded for a session.
func runModes(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt, sessionID string) error {
	st, _, err := openForQuery(stderr, configPath)
	if err != nil {
		return err
	}
	defer st.Close()

	states, err := st.modes.States(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("list modes: %w", err)
	}
	if outputFmt == "json" {
		if states == nil {
			states = []mode.State{}
		}
		return writeJSON(stdout, states)
	}
	if len(states) == 0 {
		fmt.Fprintf(stdout, "No modes recorded for session %s.\n", sessionID)
		return nil
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODE\tACTIVE\tSINCE")
	for _, s := range states {
		fmt.Fprintf(tw, "%s\t%t\t%s\n", mode.Name(s.ID), s.Active, s.ActivatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}
