// Package config handles Lifeline configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./lifeline.yaml, ~/.config/lifeline/config.yaml, /etc/lifeline/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"lifeline.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "lifeline", "config.yaml"))
	}

	paths = append(paths, "/etc/lifeline/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Lifeline configuration.
type Config struct {
	// DataDir holds the SQLite database and the instance id.
	// A leading ~ is expanded to the user's home directory.
	DataDir     string            `yaml:"data_dir"`
	LogLevel    string            `yaml:"log_level"`
	LogFormat   string            `yaml:"log_format"` // text or json
	Features    FeaturesConfig    `yaml:"features"`
	Listen      ListenConfig      `yaml:"listen"`
	Checkpoints CheckpointsConfig `yaml:"checkpoints"`
	Workflow    WorkflowConfig    `yaml:"workflow"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
}

// FeaturesConfig toggles optional behavior.
type FeaturesConfig struct {
	// Team enables the team, ultrapilot and swarm keywords.
	Team bool `yaml:"team"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// CheckpointsConfig controls checkpoint retention.
type CheckpointsConfig struct {
	// RetentionDays is how long checkpoints are kept. 0 disables pruning.
	RetentionDays int `yaml:"retention_days"`
	// MinKeep is the number of checkpoints never pruned regardless of age.
	MinKeep int `yaml:"min_keep"`
}

// Retention returns RetentionDays as a duration.
func (c CheckpointsConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// WorkflowConfig locates workflow state captured in checkpoints.
type WorkflowConfig struct {
	// Dir is relative to the session's working directory unless absolute.
	Dir string `yaml:"dir"`
}

// MQTTConfig defines the optional MQTT event forwarder.
type MQTTConfig struct {
	Broker      string `yaml:"broker"` // mqtt://host:1883 or mqtts://host:8883
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	ClientName  string `yaml:"client_name"`
}

// Configured reports whether a broker has been set.
func (c MQTTConfig) Configured() bool {
	return c.Broker != ""
}

// DBPath returns the path of the SQLite database.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "lifeline.db")
}

// Load reads configuration from a YAML file. Values not present in the
// file keep their [Default] values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	cfg := &Config{
		DataDir:   "~/.lifeline",
		LogFormat: "text",
		Features:  FeaturesConfig{Team: true},
		Listen:    ListenConfig{Port: 8642},
		Checkpoints: CheckpointsConfig{
			RetentionDays: 30,
			MinKeep:       10,
		},
		Workflow: WorkflowConfig{Dir: ".workflow"},
		MQTT: MQTTConfig{
			TopicPrefix: "lifeline",
		},
	}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills values a config file may have blanked and expands
// the data directory.
func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "~/.lifeline"
	}
	c.DataDir = expandHome(c.DataDir)
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.Listen.Port == 0 {
		c.Listen.Port = 8642
	}
	if c.Workflow.Dir == "" {
		c.Workflow.Dir = ".workflow"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "lifeline"
	}
	c.MQTT.TopicPrefix = strings.Trim(c.MQTT.TopicPrefix, "/")
	if c.MQTT.ClientName == "" {
		if host, err := os.Hostname(); err == nil {
			c.MQTT.ClientName = host
		} else {
			c.MQTT.ClientName = "lifeline"
		}
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log_format %q (valid: text, json)", c.LogFormat)
	}
	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range", c.Listen.Port)
	}
	if c.Checkpoints.RetentionDays < 0 {
		return fmt.Errorf("checkpoints.retention_days must not be negative")
	}
	if c.Checkpoints.MinKeep < 0 {
		return fmt.Errorf("checkpoints.min_keep must not be negative")
	}
	return nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
