package main

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Gmail     GmailConfig     `mapstructure:"gmail"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Anchor    AnchorConfig    `mapstructure:"anchor"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// GmailConfig holds mailbox provider configuration. OAuth client credentials
// are shared across accounts; per-account tokens live in the account table.
type GmailConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	UseIMAP      bool   `mapstructure:"use_imap"`
	IMAPHost     string `mapstructure:"imap_host"`
	IMAPPort     int    `mapstructure:"imap_port"`
	IMAPUser     string `mapstructure:"imap_user"`
	IMAPPassword string `mapstructure:"imap_password"`
}

// GeminiConfig holds classifier model configuration
type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// AnchorConfig holds browser automation provider configuration
type AnchorConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	SessionTimeout int           `mapstructure:"session_timeout_minutes"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	IntervalMinutes      int `mapstructure:"interval_minutes"`
	SweepIntervalMinutes int `mapstructure:"sweep_interval_minutes"`
	StaleAfterMinutes    int `mapstructure:"stale_after_minutes"`
}

// PipelineConfig holds task queue tuning per task type
type PipelineConfig struct {
	ListPageSize        int           `mapstructure:"list_page_size"`
	IngestConcurrency   int           `mapstructure:"ingest_concurrency"`
	FinalizeConcurrency int           `mapstructure:"finalize_concurrency"`
	UnsubConcurrency    int           `mapstructure:"unsub_concurrency"`
	IngestMaxAttempts   int           `mapstructure:"ingest_max_attempts"`
	FinalizeMaxAttempts int           `mapstructure:"finalize_max_attempts"`
	UnsubMaxAttempts    int           `mapstructure:"unsub_max_attempts"`
	TaskTimeout         time.Duration `mapstructure:"task_timeout"`
	RetryDelay          time.Duration `mapstructure:"retry_delay"`
	ReprocessWindow     time.Duration `mapstructure:"reprocess_window"`
}

// LoadConfig loads configuration from environment variables and config file
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set defaults
	setDefaults()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Environment variables override config file
	viper.AutomaticEnv()

	// Bind environment variables
	bindEnvVars()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 3306)

	viper.SetDefault("gmail.use_imap", false)
	viper.SetDefault("gmail.imap_host", "imap.gmail.com")
	viper.SetDefault("gmail.imap_port", 993)

	viper.SetDefault("gemini.model", "gemini-2.0-flash")

	viper.SetDefault("anchor.base_url", "https://api.anchorbrowser.io")
	viper.SetDefault("anchor.session_timeout_minutes", 2)
	viper.SetDefault("anchor.request_timeout", "120s")

	viper.SetDefault("scheduler.interval_minutes", 15)
	viper.SetDefault("scheduler.sweep_interval_minutes", 5)
	viper.SetDefault("scheduler.stale_after_minutes", 30)

	viper.SetDefault("pipeline.list_page_size", 100)
	viper.SetDefault("pipeline.ingest_concurrency", 20)
	viper.SetDefault("pipeline.finalize_concurrency", 20)
	viper.SetDefault("pipeline.unsub_concurrency", 1)
	viper.SetDefault("pipeline.ingest_max_attempts", 1)
	viper.SetDefault("pipeline.finalize_max_attempts", 3)
	viper.SetDefault("pipeline.unsub_max_attempts", 2)
	viper.SetDefault("pipeline.task_timeout", "5m")
	viper.SetDefault("pipeline.retry_delay", "5s")
	viper.SetDefault("pipeline.reprocess_window", "10m")
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars() {
	// Server
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")

	// Database
	viper.BindEnv("database.host", "DB_HOST")
	viper.BindEnv("database.port", "DB_PORT")
	viper.BindEnv("database.user", "DB_USER")
	viper.BindEnv("database.password", "DB_PASSWORD")
	viper.BindEnv("database.dbname", "DB_NAME")

	// Gmail
	viper.BindEnv("gmail.client_id", "GMAIL_CLIENT_ID")
	viper.BindEnv("gmail.client_secret", "GMAIL_CLIENT_SECRET")
	viper.BindEnv("gmail.use_imap", "GMAIL_USE_IMAP")
	viper.BindEnv("gmail.imap_host", "GMAIL_IMAP_HOST")
	viper.BindEnv("gmail.imap_port", "GMAIL_IMAP_PORT")
	viper.BindEnv("gmail.imap_user", "GMAIL_IMAP_USER")
	viper.BindEnv("gmail.imap_password", "GMAIL_IMAP_PASSWORD")

	// Gemini
	viper.BindEnv("gemini.api_key", "GEMINI_API_KEY")
	viper.BindEnv("gemini.model", "GEMINI_MODEL")

	// Anchor Browser
	viper.BindEnv("anchor.api_key", "ANCHOR_BROWSER_KEY")
	viper.BindEnv("anchor.base_url", "ANCHOR_BASE_URL")
	viper.BindEnv("anchor.session_timeout_minutes", "ANCHOR_SESSION_TIMEOUT_MINUTES")
	viper.BindEnv("anchor.request_timeout", "ANCHOR_REQUEST_TIMEOUT")

	// Scheduler
	viper.BindEnv("scheduler.interval_minutes", "SCHEDULER_INTERVAL_MINUTES")
	viper.BindEnv("scheduler.sweep_interval_minutes", "SCHEDULER_SWEEP_INTERVAL_MINUTES")
	viper.BindEnv("scheduler.stale_after_minutes", "SCHEDULER_STALE_AFTER_MINUTES")

	// Pipeline
	viper.BindEnv("pipeline.list_page_size", "PIPELINE_LIST_PAGE_SIZE")
	viper.BindEnv("pipeline.ingest_concurrency", "PIPELINE_INGEST_CONCURRENCY")
	viper.BindEnv("pipeline.finalize_concurrency", "PIPELINE_FINALIZE_CONCURRENCY")
	viper.BindEnv("pipeline.unsub_concurrency", "PIPELINE_UNSUB_CONCURRENCY")
	viper.BindEnv("pipeline.task_timeout", "PIPELINE_TASK_TIMEOUT")
	viper.BindEnv("pipeline.retry_delay", "PIPELINE_RETRY_DELAY")
	viper.BindEnv("pipeline.reprocess_window", "PIPELINE_REPROCESS_WINDOW")
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// StaleAfter returns the reconciliation staleness threshold
func (c *SchedulerConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterMinutes) * time.Minute
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
		return fmt.Errorf("database host, user, and dbname are required")
	}

	if !c.Gmail.UseIMAP {
		if c.Gmail.ClientID == "" || c.Gmail.ClientSecret == "" {
			return fmt.Errorf("Gmail OAuth2 client credentials are required when not using IMAP")
		}
	} else {
		if c.Gmail.IMAPUser == "" || c.Gmail.IMAPPassword == "" {
			return fmt.Errorf("IMAP credentials are required when using IMAP")
		}
	}

	if c.Gemini.APIKey == "" {
		return fmt.Errorf("Gemini API key is required")
	}

	if c.Anchor.APIKey == "" {
		return fmt.Errorf("Anchor Browser API key is required")
	}

	if c.Scheduler.IntervalMinutes <= 0 {
		return fmt.Errorf("scheduler interval must be greater than 0")
	}

	if c.Scheduler.StaleAfterMinutes <= c.Scheduler.SweepIntervalMinutes {
		return fmt.Errorf("stale threshold must be greater than the sweep interval")
	}

	if c.Pipeline.UnsubConcurrency <= 0 || c.Pipeline.FinalizeConcurrency <= 0 || c.Pipeline.IngestConcurrency <= 0 {
		return fmt.Errorf("pipeline concurrency limits must be greater than 0")
	}

	return nil
}
