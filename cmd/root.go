// Package cmd implements the CLI commands for the volmover tool.
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"volmover/internal/config"
)

var (
	// Global config file path
	configFile string

	// Loaded configuration
	cfg *config.Config

	// CLI flag values (can override config file)
	cluster        string
	username       string
	password       string
	insecureTLS    bool
	destNode       string
	destAggregate  string
	volumes        []string
	volumeListFile string
	maxConcurrent  int
	maxAttempts    int
	pollInterval   time.Duration
	jobTimeout     time.Duration
	cutoverWindow  int
	cutoverAction  string
	logFile        string
	logLevel       string
	planOnly       bool
	plainMode      bool
)

var rootCmd = &cobra.Command{
	Use:   "volmover",
	Short: "Move NetApp ONTAP volumes between nodes and aggregates",
	Long: `A CLI tool to relocate ONTAP FlexVol volumes to a destination node
or aggregate, with bounded concurrency and per-volume progress tracking.

For each volume the tool submits a move through the cluster management
API, polls it through data copy and cutover, retries transient
submission failures with backoff, and reports the final outcome.

Example:
  volmover move --cluster cluster-mgmt.example.com -u admin \
    --dest-aggr aggr2_node02 --volume vol_app01 --volume vol_app02

  # Volume list from a file (one name per line):
  volmover move --cluster cluster-mgmt.example.com -u admin \
    --dest-node node02 --volume-list volumes.txt

  # Using a config file:
  volmover move -c volmover.yaml`,
	Version: "1.0.0",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
}

var moveCmd = &cobra.Command{
	Use:          "move",
	Short:        "Start the volume move batch",
	Long:         `Move the specified volumes to the destination node or aggregate.`,
	SilenceUsage: true,
	RunE:         runMove,
}

var initConfigCmd = &cobra.Command{
	Use:   "init-config [filename]",
	Short: "Generate an example configuration file",
	Long:  `Generate an example YAML configuration file with default values.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filename := "volmover.yaml"
		if len(args) > 0 {
			filename = args[0]
		}
		if err := config.WriteExampleConfig(filename); err != nil {
			return err
		}
		fmt.Printf("Example configuration written to: %s\n", filename)
		return nil
	},
}

func init() {
	// Global config flag available to all commands
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to YAML configuration file")

	// Move-specific flags
	moveCmd.Flags().StringVar(&cluster, "cluster", "", "Cluster management IP or hostname")
	moveCmd.Flags().StringVarP(&username, "username", "u", "", "Admin username")
	moveCmd.Flags().StringVarP(&password, "password", "p", "", "Admin password (defaults to ONTAP_PASSWORD env var)")
	moveCmd.Flags().BoolVar(&insecureTLS, "insecure", false, "Disable TLS certificate verification")
	moveCmd.Flags().StringVar(&destNode, "dest-node", "", "Destination node name")
	moveCmd.Flags().StringVar(&destAggregate, "dest-aggr", "", "Destination aggregate name (wins over --dest-node)")
	moveCmd.Flags().StringArrayVar(&volumes, "volume", nil, "Volume to move (can be specified multiple times)")
	moveCmd.Flags().StringVar(&volumeListFile, "volume-list", "", "Path to file containing volumes to move, one per line")
	moveCmd.Flags().IntVar(&maxConcurrent, "concurrency", 0, "Maximum concurrent volume moves")
	moveCmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "Maximum submission attempts per volume")
	moveCmd.Flags().DurationVar(&pollInterval, "poll-interval", 0, "Move status poll interval")
	moveCmd.Flags().DurationVar(&jobTimeout, "timeout", 0, "Per-volume move timeout")
	moveCmd.Flags().IntVar(&cutoverWindow, "cutover-window", 0, "Cutover time window in seconds")
	moveCmd.Flags().StringVar(&cutoverAction, "cutover-action", "", "Action when cutover is delayed: retry, defer, abort, force")
	moveCmd.Flags().StringVar(&logFile, "log-file", "", "Write a structured log to this file")
	moveCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	moveCmd.Flags().BoolVar(&planOnly, "plan", false, "Show the move plan and exit without moving anything")
	moveCmd.Flags().BoolVar(&plainMode, "plain", false, "Stream log output instead of the interactive UI")

	rootCmd.AddCommand(moveCmd)
	rootCmd.AddCommand(initConfigCmd)
}

// loadConfig loads configuration from file and merges with CLI flags
func loadConfig(cmd *cobra.Command) error {
	// Start with default config
	cfg = config.DefaultConfig()

	// Load from config file if specified
	if configFile != "" {
		fileCfg, err := config.LoadFromFile(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config file: %w", err)
		}
		cfg = fileCfg
	}

	// CLI flags override config file values
	// Only override if the flag was explicitly set
	if cmd.Flags().Changed("cluster") {
		cfg.Cluster = cluster
	}
	if cmd.Flags().Changed("username") {
		cfg.Username = username
	}
	if cmd.Flags().Changed("insecure") {
		cfg.InsecureTLS = insecureTLS
	}
	if cmd.Flags().Changed("dest-node") {
		cfg.DestNode = destNode
	}
	if cmd.Flags().Changed("dest-aggr") {
		cfg.DestAggregate = destAggregate
	}
	if cmd.Flags().Changed("volume") {
		cfg.Volumes = volumes
	}
	if cmd.Flags().Changed("volume-list") {
		cfg.VolumeListFile = volumeListFile
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.MaxConcurrent = maxConcurrent
	}
	if cmd.Flags().Changed("max-attempts") {
		cfg.MaxAttempts = maxAttempts
	}
	if cmd.Flags().Changed("poll-interval") {
		cfg.PollInterval = config.Duration(pollInterval)
	}
	if cmd.Flags().Changed("timeout") {
		cfg.JobTimeout = config.Duration(jobTimeout)
	}
	if cmd.Flags().Changed("cutover-window") {
		cfg.CutoverWindow = cutoverWindow
	}
	if cmd.Flags().Changed("cutover-action") {
		cfg.CutoverAction = cutoverAction
	}
	if cmd.Flags().Changed("log-file") {
		cfg.LogFile = logFile
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = logLevel
	}

	return nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
