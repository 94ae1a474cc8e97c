package models

// MConfig Structure
type MConfig struct {
	Name      string            `yaml:"name"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	LogLevel  string            `yaml:"log_level"`
	Storage   MStorageConfig    `yaml:"storage"`
	Network   MNetworkConfig    `yaml:"network"`
	Providers []MProviderConfig `yaml:"providers"`
	Scheduler MSchedulerConfig  `yaml:"scheduler"`
	Symbols   MSymbolsConfig    `yaml:"symbols"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"`
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
}

type MNetworkConfig struct {
	RequestTimeout int    `yaml:"timeout"`
	MaxRetries     int    `yaml:"retries"`
	UserAgent      string `yaml:"user_agent"`
}

// MProviderConfig describes one upstream market-data provider.
// Providers are attempted in the order they appear in the config.
type MProviderConfig struct {
	Name        string `yaml:"name"`
	Enabled     bool   `yaml:"enabled"`
	APIKey      string `yaml:"api_key"`
	APIKeyEnv   string `yaml:"api_key_env"` // env var consulted when api_key is empty
	DailyLimit  int    `yaml:"daily_limit"`
	MinuteLimit int    `yaml:"minute_limit"`
}

type MSchedulerConfig struct {
	TickSeconds           int    `yaml:"tick_seconds"`
	MaxRetries            int    `yaml:"max_retries"`
	ScanCron              string `yaml:"scan_cron"`
	SweepCron             string `yaml:"sweep_cron"`
	BatchLimit            int    `yaml:"batch_limit"`
	PriceMaxAgeHours      int    `yaml:"price_max_age_hours"`
	ClosedMaxAgeHours     int    `yaml:"closed_max_age_hours"` // price staleness while all tracked markets are closed
	OverviewMaxAgeHours   int    `yaml:"overview_max_age_hours"`
	FinancialsMaxAgeHours int    `yaml:"financials_max_age_hours"`
}

type MSymbolsConfig struct {
	Default string   `yaml:"default"`
	Seed    []string `yaml:"seed"` // registered for background tracking at startup
}
