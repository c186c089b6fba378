package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/viper"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Set defaults
	cfg := DefaultConfig()

	// Set up viper
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// Read config file (optional - if file doesn't exist, continue with defaults)
	if err := viper.ReadInConfig(); err != nil {
		fmt.Printf("Warning: Could not read config file %s: %v. Using defaults and environment variables.\n", configPath, err)
	} else {
		// Unmarshal file contents
		if err := viper.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	// Override with environment variables (these take precedence)
	applyEnvironmentOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// applyEnvironmentOverrides applies environment variable overrides to config
func applyEnvironmentOverrides(cfg *Config) {
	if mode := os.Getenv("CHECK_MODE"); mode != "" {
		cfg.Check.Mode = mode
	}
	if contract := os.Getenv("CHECK_CONSISTENCY"); contract != "" {
		cfg.Check.Consistency = contract
	}
	if seed := os.Getenv("CHECK_SEED"); seed != "" {
		if s, err := strconv.ParseInt(seed, 10, 64); err == nil {
			cfg.Check.Seed = s
		}
	}
	if rollouts := os.Getenv("CHECK_ROLLOUTS"); rollouts != "" {
		if n, err := strconv.Atoi(rollouts); err == nil {
			cfg.Check.Rollouts = n
		}
	}
	if depth := os.Getenv("CHECK_MAX_DEPTH"); depth != "" {
		if n, err := strconv.Atoi(depth); err == nil {
			cfg.Check.MaxDepth = n
		}
	}
	if states := os.Getenv("CHECK_MAX_STATES"); states != "" {
		if n, err := strconv.Atoi(states); err == nil {
			cfg.Check.MaxStates = n
		}
	}

	if path := os.Getenv("REPORT_PATH"); path != "" {
		cfg.Report.Path = path
	}
	if path := os.Getenv("PROGRESS_PATH"); path != "" {
		cfg.Report.ProgressPath = path
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.Logging.Level = logLevel
	}
}
