package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/netfabric/netfabric/pkg/config"
	"github.com/netfabric/netfabric/pkg/fabric"
	"github.com/netfabric/netfabric/pkg/shell"
)

var (
	// Global flags
	configFile string
	logLevel   string
	logFormat  string
	backend    string

	// Build info (set by build system)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "netfabricctl",
		Short: "Network fabric provisioning control",
		Long: `netfabricctl inspects and reverses the kernel network objects that the
netfabric provisioning layer creates for emulated topologies: bridges, veth
pairs, GRE taps, and traffic-control rules. It speaks both the kernel-bridge
and the Open vSwitch backends.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&logFormat, "log-format", "f", "", "log format (json, text, console)")
	rootCmd.PersistentFlags().StringVarP(&backend, "backend", "b", "", "provisioning backend (bridge, ovs)")

	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newCleanupCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads the configuration and applies command line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if backend != "" {
		cfg.Fabric.Backend = backend
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newSession builds a provisioning session against the configured backend.
func newSession(cfg *config.Config) *fabric.Session {
	client := fabric.New(cfg.Fabric.UseOvs(), shell.NewRunner())
	return fabric.NewSession(fabric.SessionConfig{
		LockDir:       cfg.Fabric.LockDir,
		EnableLocking: cfg.Fabric.EnableLocking,
	}, client)
}

func setup() (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := setupLogging(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	log.Logger = logger
	return cfg, nil
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <node-id>",
		Short: "Check a node id for leftover bridges",
		Long: `Check queries the active backend for bridges whose identity token
(b.<node-id>.<sequence>) belongs to the given node. Leftover bridges are
residue of a prior run that was not torn down; creating new bridges for the
node will collide with them until they are cleaned up.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			nodeID := args[0]

			client := fabric.New(cfg.Fabric.UseOvs(), shell.NewRunner())
			names, err := client.ListBridges(nodeID)
			if err != nil {
				return fmt.Errorf("failed to list bridges: %w", err)
			}

			if len(names) == 0 {
				fmt.Printf("No bridges found for node %s\n", nodeID)
				return nil
			}
			fmt.Printf("Found %d bridge(s) for node %s:\n", len(names), nodeID)
			for _, name := range names {
				fmt.Printf("  %s\n", name)
			}
			return nil
		},
	}
}

func newCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup <node-id>",
		Short: "Delete leftover bridges for a node id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			nodeID := args[0]

			session := newSession(cfg)
			if err := session.TeardownNode(nodeID); err != nil {
				return fmt.Errorf("failed to clean up node %s: %w", nodeID, err)
			}
			fmt.Printf("Cleaned up node %s\n", nodeID)
			return nil
		},
	}
}

func newConfigCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management commands",
	}

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()

			if outputPath == "" {
				outputPath = "netfabricctl.yaml"
			}

			if err := cfg.SaveConfig(outputPath); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			fmt.Printf("Generated default configuration: %s\n", outputPath)
			return nil
		},
	}
	generateCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file path")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			fmt.Printf("Configuration is valid\n")
			fmt.Printf("Backend: %s\n", cfg.Fabric.Backend)
			fmt.Printf("Locking: %t (dir: %s)\n", cfg.Fabric.EnableLocking, cfg.Fabric.LockDir)
			return nil
		},
	}

	cmd.AddCommand(generateCmd)
	cmd.AddCommand(validateCmd)

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("netfabricctl\n")
			fmt.Printf("Version: %s\n", version)
			fmt.Printf("Commit: %s\n", commit)
			fmt.Printf("Built: %s\n", date)
		},
	}
}

func setupLogging(cfg config.LoggingConfig) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)

	var output *os.File
	if cfg.OutputFile != "" {
		logDir := filepath.Dir(cfg.OutputFile)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return zerolog.Logger{}, fmt.Errorf("failed to create log directory: %w", err)
		}

		file, err := os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return zerolog.Logger{}, fmt.Errorf("failed to open log file: %w", err)
		}
		output = file
	} else {
		output = os.Stderr
	}

	var logger zerolog.Logger
	switch cfg.Format {
	case "console":
		logger = log.Output(zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339})
	case "text":
		logger = zerolog.New(output).With().Timestamp().Logger()
	case "json":
		fallthrough
	default:
		logger = zerolog.New(output).With().Timestamp().Logger()
	}

	return logger, nil
}
