package models

// MConfig Structure
type MConfig struct {
	Name        string             `yaml:"name"`
	Host        string             `yaml:"host"`
	Port        int                `yaml:"port"`
	LogLevel    string             `yaml:"log_level"`
	CalendarMIC string             `yaml:"calendar_mic"`
	Storage     MStorageConfig     `yaml:"storage"`
	Pool        MPoolConfig        `yaml:"pool"`
	Retry       MRetryConfig       `yaml:"retry"`
	Paging      MPagingConfig      `yaml:"paging"`
	Cache       MCacheConfig       `yaml:"cache"`
	Maintenance MMaintenanceConfig `yaml:"maintenance"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"`
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
	NativeInterval     string `yaml:"native_interval"` // finest stored granularity, e.g. "1m"
}

type MPoolConfig struct {
	MaxConnections        int `yaml:"max_connections"`
	AcquireTimeoutSeconds int `yaml:"acquire_timeout_seconds"`
	IdleTimeoutSeconds    int `yaml:"idle_timeout_seconds"`
}

type MRetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	BaseDelayMs int `yaml:"base_delay_ms"`
	MaxDelayMs  int `yaml:"max_delay_ms"`
}

type MPagingConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	HardCap      int `yaml:"hard_cap"`
}

type MCacheConfig struct {
	Capacity   int `yaml:"capacity"`
	TTLSeconds int `yaml:"ttl_seconds"` // 0 disables expiry
}

type MMaintenanceConfig struct {
	CatalogRefreshCron string `yaml:"catalog_refresh_cron"`
	IdleSweepCron      string `yaml:"idle_sweep_cron"`
}
