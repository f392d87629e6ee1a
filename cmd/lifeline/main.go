// Lifeline keeps long-running coding-assistant sessions alive across
// stops and context compaction.
//
// The host runs one hook subcommand per lifecycle event, passing the
// event as JSON on stdin and reading the answer from stdout. The same
// hooks are available over HTTP from a long-running server.
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	lifeline hook stop             Answer a stop event
//	lifeline hook precompact       Checkpoint before compaction
//	lifeline hook prompt           Resolve keywords in a submitted prompt
//	lifeline hook session-start    Serve recovery for a resumed session
//	lifeline recover <session>     Print the recovery message for a session
//	lifeline checkpoints [session] List recent checkpoints
//	lifeline modes <session>       Show a session's modes
//	lifeline serve                 Start the API server
//	lifeline init [dir]            Write an example config and hook settings
//	lifeline version               Print version and build information
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nugget/lifeline/internal/buildinfo"
	"github.com/nugget/lifeline/internal/checkpoint"
	"github.com/nugget/lifeline/internal/config"
	"github.com/nugget/lifeline/internal/mode"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run] so the whole
// command surface can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the lifeline command. args is
// os.Args[1:]. Arguments are parsed by hand because the flag package's
// global state interferes with parallel tests.
//
// run returns nil on success and a non-nil error for any failure. Hook
// subcommands never fail: the host must always get a document telling
// it to continue.
func run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "hook":
		event := ""
		if len(cmdArgs) > 0 {
			event = cmdArgs[0]
		}
		return runHook(ctx, stdin, stdout, stderr, configPath, event)
	case "recover":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: lifeline recover <session>")
		}
		return runRecover(ctx, stdout, stderr, configPath, outputFmt, cmdArgs[0])
	case "checkpoints":
		session := ""
		if len(cmdArgs) > 0 {
			session = cmdArgs[0]
		}
		return runCheckpoints(ctx, stdout, stderr, configPath, outputFmt, session)
	case "modes":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: lifeline modes <session>")
		}
		return runModes(ctx, stdout, stderr, configPath, outputFmt, cmdArgs[0])
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		return writeJSON(w, info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Lifeline - session lifecycle hooks for coding assistants")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: lifeline [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  hook <event>           Answer a host hook (stop, precompact, prompt, session-start)")
	fmt.Fprintln(w, "  recover <session>      Print the recovery message for a session")
	fmt.Fprintln(w, "  checkpoints [session]  List recent checkpoints")
	fmt.Fprintln(w, "  modes <session>        Show a session's modes")
	fmt.Fprintln(w, "  serve                  Start the API server")
	fmt.Fprintln(w, "  init [dir]             Write example config and hook settings (default: .)")
	fmt.Fprintln(w, "  version                Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./lifeline.yaml, ~/.config/lifeline/config.yaml, /etc/lifeline/config.yaml")
	return nil
}

// loadConfig locates and parses the YAML configuration file. If explicit
// is non-empty, that exact path is used (and must exist). Otherwise,
// [config.FindConfig] searches the default locations. Returns the parsed
// config, the path that was loaded, and any error.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}

// stores bundles the database and the stores opened on it.
type stores struct {
	db          *sql.DB
	modes       *mode.Store
	checkpoints *checkpoint.Store
}

func (s *stores) Close() error {
	return s.db.Close()
}

// openStores opens the SQLite database in cfg.DataDir, creating the
// directory if needed. Several hook processes may open it at once, so
// the connection waits on locks instead of failing immediately.
func openStores(cfg *config.Config) (*stores, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	dsn := cfg.DBPath() + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", filepath.Base(cfg.DBPath()), err)
	}

	modes, err := mode.NewStore(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("mode store: %w", err)
	}
	cps, err := checkpoint.NewStore(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("checkpoint store: %w", err)
	}
	return &stores{db: db, modes: modes, checkpoints: cps}, nil
}

// pruneCheckpoints removes checkpoints past the configured retention.
// A retention of zero disables pruning. Failures are logged, not
// returned.
func pruneCheckpoints(ctx context.Context, st *stores, cfg *config.Config, logger *slog.Logger) {
	retention := cfg.Checkpoints.Retention()
	if retention <= 0 {
		return
	}
	deleted, err := st.checkpoints.Prune(ctx, retention, cfg.Checkpoints.MinKeep)
	if err != nil {
		logger.Warn("checkpoint prune failed", "error", err)
		return
	}
	if deleted > 0 {
		logger.Info("pruned old checkpoints", "deleted", deleted, "retention", retention)
	}
}

// writeJSON writes v to w as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
