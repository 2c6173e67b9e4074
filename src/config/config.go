package config

import (
	"fmt"
	"os"
	"time"

	"trading-data-viewer/src/models"

	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------
// Defaults
// -----------------------------------------------------------------------------

const (
	DefaultMaxConnections = 10
	DefaultAcquireTimeout = 30 // seconds
	DefaultIdleTimeout    = 300
	DefaultMaxAttempts    = 5
	DefaultBaseDelayMs    = 100
	DefaultMaxDelayMs     = 2000
	DefaultPageLimit      = 250
	DefaultHardCap        = 50000
	DefaultCacheCapacity  = 1000
	DefaultNativeInterval = "1m"

	DefaultCatalogRefreshCron = "*/5 * * * *" // every 5 minutes
	DefaultIdleSweepCron      = "* * * * *"   // every minute
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new MConfig instance from YAML file
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	// 2. Unmarshal data into the models struct
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.applyDefaults()

	// 3. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

func (c *Config) applyDefaults() {
	if c.Pool.MaxConnections == 0 {
		c.Pool.MaxConnections = DefaultMaxConnections
	}
	if c.Pool.AcquireTimeoutSeconds == 0 {
		c.Pool.AcquireTimeoutSeconds = DefaultAcquireTimeout
	}
	if c.Pool.IdleTimeoutSeconds == 0 {
		c.Pool.IdleTimeoutSeconds = DefaultIdleTimeout
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if c.Retry.BaseDelayMs == 0 {
		c.Retry.BaseDelayMs = DefaultBaseDelayMs
	}
	if c.Retry.MaxDelayMs == 0 {
		c.Retry.MaxDelayMs = DefaultMaxDelayMs
	}
	if c.Paging.DefaultLimit == 0 {
		c.Paging.DefaultLimit = DefaultPageLimit
	}
	if c.Paging.HardCap == 0 {
		c.Paging.HardCap = DefaultHardCap
	}
	if c.Cache.Capacity == 0 {
		c.Cache.Capacity = DefaultCacheCapacity
	}
	if c.Storage.NativeInterval == "" {
		c.Storage.NativeInterval = DefaultNativeInterval
	}
	if c.CalendarMIC == "" {
		c.CalendarMIC = "xnys"
	}
	if c.Maintenance.CatalogRefreshCron == "" {
		c.Maintenance.CatalogRefreshCron = DefaultCatalogRefreshCron
	}
	if c.Maintenance.IdleSweepCron == "" {
		c.Maintenance.IdleSweepCron = DefaultIdleSweepCron
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	// Validate App configuration (Flattened)
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	// Validate Server configuration (Flattened)
	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}

	// Validate Storage configuration
	if c.Storage.DBType == "" {
		return fmt.Errorf("database type cannot be empty")
	}
	if c.Storage.DBType == "sqlite" && c.Storage.DBPath == "" {
		return fmt.Errorf("database path cannot be empty for sqlite")
	}
	if c.Storage.DBType == "postgres" && c.Storage.DBConnectionString == "" {
		return fmt.Errorf("connection string cannot be empty for postgres")
	}
	if _, err := c.NativeInterval(); err != nil {
		return err
	}

	// Validate Pool configuration
	if c.Pool.MaxConnections <= 0 {
		return fmt.Errorf("pool max connections must be greater than 0")
	}
	if c.Pool.AcquireTimeoutSeconds <= 0 {
		return fmt.Errorf("pool acquire timeout must be greater than 0")
	}

	// Validate Retry configuration
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry max attempts must be greater than 0")
	}
	if c.Retry.BaseDelayMs <= 0 || c.Retry.MaxDelayMs < c.Retry.BaseDelayMs {
		return fmt.Errorf("invalid retry delays: base=%dms max=%dms", c.Retry.BaseDelayMs, c.Retry.MaxDelayMs)
	}

	// Validate Paging configuration
	if c.Paging.DefaultLimit <= 0 || c.Paging.DefaultLimit > c.Paging.HardCap {
		return fmt.Errorf("invalid default page limit: %d (hard cap %d)", c.Paging.DefaultLimit, c.Paging.HardCap)
	}

	return nil
}

// -----------------------------------------------------------------------------

// NativeInterval parses the configured native storage granularity.
func (c *Config) NativeInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Storage.NativeInterval)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid native_interval '%s'", c.Storage.NativeInterval)
	}
	return d, nil
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	// 1. Marshal the struct to YAML
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// 2. Write to file (0644 permissions)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
