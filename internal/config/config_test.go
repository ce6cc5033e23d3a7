package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	assert.Empty(t, cfg.Cluster)
	assert.Equal(t, "admin", cfg.Username)
	assert.False(t, cfg.InsecureTLS)
	assert.Equal(t, 4, cfg.MaxConcurrent)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.PollInterval.Std())
	assert.Equal(t, 24*time.Hour, cfg.JobTimeout.Std())
	assert.Equal(t, 30, cfg.CutoverWindow)
	assert.Equal(t, "retry", cfg.CutoverAction)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		filePath    string
		wantErr     bool
		errContains string
		validate    func(t *testing.T, cfg *Config)
	}{
		{
			name:     "valid_config",
			filePath: "../../testdata/valid_config.yaml",
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "cluster-mgmt.example.com", cfg.Cluster)
				assert.Equal(t, "vsadmin", cfg.Username)
				assert.True(t, cfg.InsecureTLS)
				assert.Equal(t, "aggr2_node02", cfg.DestAggregate)
				assert.Equal(t, []string{"vol_app01", "vol_app02"}, cfg.Volumes)
				assert.Equal(t, 2, cfg.MaxConcurrent)
				assert.Equal(t, 5, cfg.MaxAttempts)
				assert.Equal(t, 10*time.Second, cfg.PollInterval.Std())
				assert.Equal(t, 2*time.Hour, cfg.JobTimeout.Std())
				assert.Equal(t, 45, cfg.CutoverWindow)
				assert.Equal(t, "defer", cfg.CutoverAction)
				assert.Equal(t, "moves.log", cfg.LogFile)
				assert.Equal(t, "debug", cfg.LogLevel)
			},
		},
		{
			name:     "minimal_config_keeps_defaults",
			filePath: "../../testdata/minimal_config.yaml",
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "node02", cfg.DestNode)
				assert.Equal(t, "volumes.txt", cfg.VolumeListFile)
				// Unset fields fall back to defaults
				assert.Equal(t, "admin", cfg.Username)
				assert.Equal(t, 4, cfg.MaxConcurrent)
				assert.Equal(t, 30*time.Second, cfg.PollInterval.Std())
				assert.Equal(t, "retry", cfg.CutoverAction)
			},
		},
		{
			name:     "durations_as_seconds",
			filePath: "../../testdata/seconds_config.yaml",
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 15*time.Second, cfg.PollInterval.Std())
				assert.Equal(t, time.Hour, cfg.JobTimeout.Std())
			},
		},
		{
			name:        "invalid_yaml",
			filePath:    "../../testdata/invalid_config.yaml",
			wantErr:     true,
			errContains: "failed to parse config file",
		},
		{
			name:        "file_not_found",
			filePath:    "../../testdata/does_not_exist.yaml",
			wantErr:     true,
			errContains: "failed to read config file",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := LoadFromFile(tc.filePath)

			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.errContains)
				return
			}
			require.NoError(t, err)
			tc.validate(t, cfg)
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Cluster = "cluster-mgmt.example.com"
		cfg.DestAggregate = "aggr2"
		return cfg
	}

	cases := []struct {
		name        string
		mutate      func(cfg *Config)
		errContains string
	}{
		{
			name:   "valid",
			mutate: func(cfg *Config) {},
		},
		{
			name:   "node_destination_is_enough",
			mutate: func(cfg *Config) { cfg.DestAggregate = ""; cfg.DestNode = "node02" },
		},
		{
			name:        "missing_cluster",
			mutate:      func(cfg *Config) { cfg.Cluster = "" },
			errContains: "cluster is required",
		},
		{
			name:        "missing_username",
			mutate:      func(cfg *Config) { cfg.Username = "" },
			errContains: "username is required",
		},
		{
			name:        "missing_destination",
			mutate:      func(cfg *Config) { cfg.DestAggregate = "" },
			errContains: "destination node or aggregate",
		},
		{
			name:        "zero_concurrency",
			mutate:      func(cfg *Config) { cfg.MaxConcurrent = 0 },
			errContains: "maxConcurrent",
		},
		{
			name:        "zero_attempts",
			mutate:      func(cfg *Config) { cfg.MaxAttempts = 0 },
			errContains: "maxAttempts",
		},
		{
			name:        "zero_poll_interval",
			mutate:      func(cfg *Config) { cfg.PollInterval = 0 },
			errContains: "pollInterval",
		},
		{
			name:        "negative_timeout",
			mutate:      func(cfg *Config) { cfg.JobTimeout = Duration(-time.Hour) },
			errContains: "jobTimeout",
		},
		{
			name:        "unknown_cutover_action",
			mutate:      func(cfg *Config) { cfg.CutoverAction = "panic" },
			errContains: "cutoverAction",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid()
			tc.mutate(cfg)

			err := cfg.Validate()

			if tc.errContains == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errContains)
		})
	}
}

func TestWriteExampleConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "example.yaml")

	require.NoError(t, WriteExampleConfig(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// The example must load and validate as-is
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "cluster-mgmt.example.com", cfg.Cluster)
	assert.Equal(t, []string{"vol_app01", "vol_app02"}, cfg.Volumes)

	// No password key may ever appear in the file
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "password:")
}

func TestDuration_Marshal(t *testing.T) {
	t.Parallel()

	out, err := Duration(90 * time.Second).MarshalYAML()

	require.NoError(t, err)
	assert.Equal(t, "1m30s", out)
}
