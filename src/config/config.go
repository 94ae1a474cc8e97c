package config

import (
	"fmt"
	"os"

	"stock-charter/src/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides loading and validation
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new MConfig instance from a YAML file. API keys are
// never stored in the YAML itself; each provider names an environment
// variable (optionally loaded from a .env file) that holds its key.
func NewConfig(configPath string) (*Config, error) {
	// .env is optional; real deployments set the variables directly
	_ = godotenv.Load()

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.resolveAPIKeys()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// resolveAPIKeys fills each provider's APIKey from its APIKeyEnv variable.
// A provider with no key available is disabled rather than rejected, so a
// single-key setup still starts.
func (c *Config) resolveAPIKeys() {
	for i := range c.Providers {
		p := &c.Providers[i]
		if p.APIKey == "" && p.APIKeyEnv != "" {
			p.APIKey = os.Getenv(p.APIKeyEnv)
		}
		if p.Enabled && p.APIKey == "" {
			p.Enabled = false
		}
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}

	if c.Storage.DBType != "sqlite" && c.Storage.DBType != "postgres" {
		return fmt.Errorf("unknown database type '%s' (sqlite or postgres)", c.Storage.DBType)
	}
	if c.Storage.DBType == "sqlite" && c.Storage.DBPath == "" {
		return fmt.Errorf("database path cannot be empty for sqlite")
	}
	if c.Storage.DBType == "postgres" && c.Storage.DBConnectionString == "" {
		return fmt.Errorf("connection string cannot be empty for postgres")
	}

	if c.Network.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be greater than 0")
	}
	if c.Network.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}
	seen := make(map[string]bool)
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider %d must have a name", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("provider '%s' is configured twice", p.Name)
		}
		seen[p.Name] = true
		if p.DailyLimit <= 0 {
			return fmt.Errorf("provider '%s' daily limit must be greater than 0", p.Name)
		}
		if p.MinuteLimit <= 0 {
			return fmt.Errorf("provider '%s' minute limit must be greater than 0", p.Name)
		}
	}

	if c.Scheduler.TickSeconds <= 0 {
		return fmt.Errorf("scheduler tick must be greater than 0")
	}
	if c.Scheduler.ScanCron == "" || c.Scheduler.SweepCron == "" {
		return fmt.Errorf("scheduler scan_cron and sweep_cron must be set")
	}
	if c.Scheduler.PriceMaxAgeHours <= 0 {
		return fmt.Errorf("price max age must be greater than 0")
	}

	return nil
}

// -----------------------------------------------------------------------------

// EnabledProviders returns the providers that survived key resolution.
func (c *Config) EnabledProviders() []models.MProviderConfig {
	enabled := make([]models.MProviderConfig, 0, len(c.Providers))
	for _, p := range c.Providers {
		if p.Enabled {
			enabled = append(enabled, p)
		}
	}
	return enabled
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path.
// API keys are scrubbed first so they never land on disk.
func (c *Config) Save(configPath string) error {
	clone := *c.MConfig
	clone.Providers = make([]models.MProviderConfig, len(c.Providers))
	copy(clone.Providers, c.Providers)
	for i := range clone.Providers {
		clone.Providers[i].APIKey = ""
	}

	data, err := yaml.Marshal(&clone)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file '%s': %w", configPath, err)
	}

	return nil
}
