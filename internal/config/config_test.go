package config

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFindConfig_Explicit(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "test.yaml", "listen:\n  port: 9999\n")

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "lifeline.yaml", "listen:\n  port: 8080\n")
	t.Chdir(dir)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "lifeline.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "lifeline.yaml")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if !cfg.Features.Team {
		t.Error("team feature should default on")
	}
	if cfg.Listen.Port != 8642 {
		t.Errorf("port = %d", cfg.Listen.Port)
	}
	if strings.HasPrefix(cfg.DataDir, "~") {
		t.Errorf("DataDir %q not expanded", cfg.DataDir)
	}
	if cfg.Checkpoints.Retention() != 30*24*time.Hour || cfg.Checkpoints.MinKeep != 10 {
		t.Errorf("checkpoints = %+v", cfg.Checkpoints)
	}
	if cfg.MQTT.Configured() {
		t.Error("mqtt should not be configured by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestLoad_KeepsDefaultsForMissingKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", "data_dir: "+dir+"\nlog_level: debug\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.DataDir != dir || cfg.LogLevel != "debug" {
		t.Errorf("cfg = %+v", cfg)
	}
	if !cfg.Features.Team || cfg.Listen.Port != 8642 || cfg.Workflow.Dir != ".workflow" {
		t.Errorf("defaults lost: %+v", cfg)
	}
	if cfg.DBPath() != filepath.Join(dir, "lifeline.db") {
		t.Errorf("DBPath() = %q", cfg.DBPath())
	}
}

func TestLoad_Overrides(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", `
features:
  team: false
listen:
  address: 127.0.0.1
  port: 9000
checkpoints:
  retention_days: 0
  min_keep: 3
mqtt:
  broker: mqtt://broker:1883
  topic_prefix: /hooks/
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Features.Team {
		t.Error("team should be disabled")
	}
	if cfg.Listen.Address != "127.0.0.1" || cfg.Listen.Port != 9000 {
		t.Errorf("listen = %+v", cfg.Listen)
	}
	if cfg.Checkpoints.RetentionDays != 0 || cfg.Checkpoints.MinKeep != 3 {
		t.Errorf("checkpoints = %+v", cfg.Checkpoints)
	}
	if !cfg.MQTT.Configured() || cfg.MQTT.TopicPrefix != "hooks" {
		t.Errorf("mqtt = %+v", cfg.MQTT)
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", "mqtt:\n  password: ${LIFELINE_TEST_PASSWORD}\n")
	t.Setenv("LIFELINE_TEST_PASSWORD", "secret123")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.MQTT.Password != "secret123" {
		t.Errorf("password = %q, want %q", cfg.MQTT.Password, "secret123")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad yaml":   "listen: [",
		"log level":  "log_level: loud\n",
		"log format": "log_format: xml\n",
		"port":       "listen:\n  port: 70000\n",
		"retention":  "checkpoints:\n  retention_days: -1\n",
		"min keep":   "checkpoints:\n  min_keep: -2\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), "config.yaml", content)
			if _, err := Load(path); err == nil {
				t.Errorf("Load(%q) should fail", content)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{" TRACE ", LevelTrace, false},
		{"debug", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLogLevel(%q) = (%v, %v)", tt.in, got, err)
		}
	}
}

func TestReplaceLogLevelNames(t *testing.T) {
	a := ReplaceLogLevelNames(nil, slog.Any(slog.LevelKey, LevelTrace))
	if a.Value.String() != "TRACE" {
		t.Errorf("trace rendered as %q", a.Value.String())
	}
	a = ReplaceLogLevelNames(nil, slog.Any(slog.LevelKey, slog.LevelInfo))
	if a.Value.Any() != slog.LevelInfo {
		t.Errorf("info rewritten to %v", a.Value)
	}
}

func TestConfigLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := &Config{LogLevel: "trace", LogFormat: "json"}
	logger := cfg.Logger(&buf)
	logger.Log(context.Background(), LevelTrace, "hook payload", "payload", "{}")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("log line %q is not JSON: %v", buf.String(), err)
	}
	if rec["level"] != "TRACE" || rec["msg"] != "hook payload" {
		t.Errorf("record = %v", rec)
	}

	buf.Reset()
	cfg = &Config{LogLevel: "warn", LogFormat: "text"}
	logger = cfg.Logger(&buf)
	logger.Info("dropped")
	logger.Warn("kept")
	if out := buf.String(); strings.Contains(out, "dropped") || !strings.Contains(out, "level=WARN msg=kept") {
		t.Errorf("text output = %q", out)
	}
}
