// Package config handles YAML configuration loading and validation
// for the volmover tool.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values can be written as "30s",
// "5m" or "24h".
type Duration time.Duration

// UnmarshalYAML parses a duration string or a plain number of seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var seconds int64
	if err := value.Decode(&seconds); err == nil {
		*d = Duration(time.Duration(seconds) * time.Second)
		return nil
	}

	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration value: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in time.Duration string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Valid cutover actions accepted by the cluster.
var cutoverActions = map[string]bool{
	"retry": true,
	"defer": true,
	"abort": true,
	"force": true,
}

// Config represents the YAML configuration file structure.
// The cluster password is never stored here; it comes from the --password
// flag or the ONTAP_PASSWORD environment variable.
type Config struct {
	Cluster        string   `yaml:"cluster"`
	Username       string   `yaml:"username"`
	InsecureTLS    bool     `yaml:"insecureTLS"`
	DestNode       string   `yaml:"destNode,omitempty"`
	DestAggregate  string   `yaml:"destAggregate,omitempty"`
	Volumes        []string `yaml:"volumes,omitempty"`
	VolumeListFile string   `yaml:"volumeListFile,omitempty"`
	MaxConcurrent  int      `yaml:"maxConcurrent"`
	MaxAttempts    int      `yaml:"maxAttempts"`
	PollInterval   Duration `yaml:"pollInterval"`
	JobTimeout     Duration `yaml:"jobTimeout"`
	CutoverWindow  int      `yaml:"cutoverWindow"`
	CutoverAction  string   `yaml:"cutoverAction"`
	LogFile        string   `yaml:"logFile,omitempty"`
	LogLevel       string   `yaml:"logLevel"`
}

// DefaultConfig returns a config with default values.
func DefaultConfig() *Config {
	return &Config{
		Cluster:       "",
		Username:      "admin",
		InsecureTLS:   false,
		MaxConcurrent: 4,
		MaxAttempts:   3,
		PollInterval:  Duration(30 * time.Second),
		JobTimeout:    Duration(24 * time.Hour),
		CutoverWindow: 30,
		CutoverAction: "retry",
		LogLevel:      "info",
	}
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Path comes from CLI flag, user-controlled input is expected
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Cluster == "" {
		return fmt.Errorf("cluster is required")
	}
	if c.Username == "" {
		return fmt.Errorf("username is required")
	}
	if c.DestNode == "" && c.DestAggregate == "" {
		return fmt.Errorf("a destination node or aggregate is required")
	}
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("maxConcurrent must be at least 1")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("maxAttempts must be at least 1")
	}
	if c.PollInterval.Std() <= 0 {
		return fmt.Errorf("pollInterval must be positive")
	}
	if c.JobTimeout.Std() <= 0 {
		return fmt.Errorf("jobTimeout must be positive")
	}
	if !cutoverActions[c.CutoverAction] {
		return fmt.Errorf("cutoverAction must be one of retry, defer, abort, force")
	}
	return nil
}

// WriteExampleConfig writes an example configuration file.
func WriteExampleConfig(path string) error {
	example := &Config{
		Cluster:       "cluster-mgmt.example.com",
		Username:      "admin",
		InsecureTLS:   true,
		DestAggregate: "aggr2_node02",
		Volumes:       []string{"vol_app01", "vol_app02"},
		MaxConcurrent: 4,
		MaxAttempts:   3,
		PollInterval:  Duration(30 * time.Second),
		JobTimeout:    Duration(24 * time.Hour),
		CutoverWindow: 30,
		CutoverAction: "retry",
		LogFile:       "volume_migration.log",
		LogLevel:      "info",
	}

	data, err := yaml.Marshal(example)
	if err != nil {
		return fmt.Errorf("failed to marshal example config: %w", err)
	}

	header := `# volmover configuration
#
# Moves the listed volumes to the destination node or aggregate. When both
# destNode and destAggregate are set, the aggregate wins.
#
# Volumes can come from this file, from a one-name-per-line file
# (volumeListFile) or from repeated --volume flags; duplicates collapse.
#
# The cluster password is read from the --password flag or the
# ONTAP_PASSWORD environment variable, never from this file.

`
	if err := os.WriteFile(path, []byte(header+string(data)), 0600); err != nil {
		return fmt.Errorf("failed to write example config: %w", err)
	}

	return nil
}
