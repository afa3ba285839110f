package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Backend names accepted by FabricConfig.Backend.
const (
	BackendBridge = "bridge"
	BackendOvs    = "ovs"
)

// Config is the netfabric configuration.
type Config struct {
	Fabric  FabricConfig  `yaml:"fabric" mapstructure:"fabric"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// FabricConfig selects and tunes the provisioning backend. The backend is
// fixed for the lifetime of a provisioning session; it cannot change
// mid-topology.
type FabricConfig struct {
	Backend       string `yaml:"backend" mapstructure:"backend"`
	LockDir       string `yaml:"lock_dir" mapstructure:"lock_dir"`
	EnableLocking bool   `yaml:"enable_locking" mapstructure:"enable_locking"`
}

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	Format     string `yaml:"format" mapstructure:"format"`
	OutputFile string `yaml:"output_file" mapstructure:"output_file"`
}

// UseOvs reports whether the Open vSwitch backend is selected.
func (f FabricConfig) UseOvs() bool {
	return f.Backend == BackendOvs
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Fabric: FabricConfig{
			Backend:       BackendBridge,
			LockDir:       "/var/run/netfabric",
			EnableLocking: false,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputFile: "",
		},
	}
}

// LoadConfig loads configuration from a file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("netfabricctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/netfabric")
		v.AddConfigPath("/etc/netfabric")
	}

	v.SetEnvPrefix("NETFABRIC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine, defaults apply.
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// SaveConfig writes the configuration to a file.
func (c *Config) SaveConfig(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Fabric.Backend != BackendBridge && c.Fabric.Backend != BackendOvs {
		return fmt.Errorf("invalid backend: %s (must be %q or %q)",
			c.Fabric.Backend, BackendBridge, BackendOvs)
	}

	if c.Fabric.EnableLocking && c.Fabric.LockDir == "" {
		return fmt.Errorf("lock directory cannot be empty when locking is enabled")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true, "text": true, "console": true,
	}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be json, text, or console)", c.Logging.Format)
	}

	return nil
}
