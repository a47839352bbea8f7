package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	WebSocket WebSocketConfig `yaml:"websocket" envconfig:"WEBSOCKET"`
	Study     StudyConfig     `yaml:"study" envconfig:"STUDY"`
	Source    SourceConfig    `yaml:"source" envconfig:"SOURCE"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	StudyTimeout    time.Duration `yaml:"study_timeout" envconfig:"STUDY_TIMEOUT" validate:"gt=0"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" validate:"min=1"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains HTTP rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
	Format      string `yaml:"format" envconfig:"FORMAT"`
	Output      string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=stdout file both"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	BaseDir    string `yaml:"base_dir" envconfig:"BASE_DIR"`
	DataDir    string `yaml:"data_dir" envconfig:"DATA_DIR"`
	CacheDir   string `yaml:"cache_dir" envconfig:"CACHE_DIR"`
	ReportsDir string `yaml:"reports_dir" envconfig:"REPORTS_DIR"`
	LogsDir    string `yaml:"logs_dir" envconfig:"LOGS_DIR"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT"`
}

// StudyConfig holds the numeric parameters of the entropy study.
// Training and testing periods are disjoint by construction: training is
// [StartDate, TrainEndDate), testing is [TrainEndDate, end of data].
type StudyConfig struct {
	Window              int     `yaml:"window" envconfig:"WINDOW" validate:"min=2"`
	ThresholdPercentile float64 `yaml:"threshold_percentile" envconfig:"THRESHOLD_PERCENTILE" validate:"gt=0,lt=100"`
	HoldingPeriod       int     `yaml:"holding_period" envconfig:"HOLDING_PERIOD" validate:"min=1"`
	StartDate           string  `yaml:"start_date" envconfig:"START_DATE" validate:"datetime=2006-01-02"`
	TrainEndDate        string  `yaml:"train_end_date" envconfig:"TRAIN_END_DATE" validate:"datetime=2006-01-02"`
	TradeMode           string  `yaml:"trade_mode" envconfig:"TRADE_MODE" validate:"oneof=overlapping nonoverlapping weekly"`
	EntryWeekday        int     `yaml:"entry_weekday" envconfig:"ENTRY_WEEKDAY" validate:"min=0,max=6"`
	MinUniverse         int     `yaml:"min_universe" envconfig:"MIN_UNIVERSE" validate:"min=2"`
	MinHistoryRows      int     `yaml:"min_history_rows" envconfig:"MIN_HISTORY_ROWS" validate:"min=0"`
	StartSlackDays      int     `yaml:"start_slack_days" envconfig:"START_SLACK_DAYS" validate:"min=0"`
}

// SourceConfig contains price source (HTTP) configuration
type SourceConfig struct {
	BaseURL     string        `yaml:"base_url" envconfig:"BASE_URL" validate:"url"`
	Timeout     time.Duration `yaml:"timeout" envconfig:"TIMEOUT" validate:"gt=0"`
	MaxRetries  int           `yaml:"max_retries" envconfig:"MAX_RETRIES" validate:"min=1"`
	RetryDelay  time.Duration `yaml:"retry_delay" envconfig:"RETRY_DELAY"`
	RateLimit   float64       `yaml:"rate_limit" envconfig:"RATE_LIMIT" validate:"gt=0"`
	RateBurst   int           `yaml:"rate_burst" envconfig:"RATE_BURST" validate:"min=1"`
	Concurrency int           `yaml:"concurrency" envconfig:"CONCURRENCY" validate:"min=1"`
}

// Load loads configuration from defaults, an optional YAML file, and
// environment variables. Environment variables take precedence over the
// file, which takes precedence over defaults.
func Load() (*Config, error) {
	cfg := Default()

	if configFile := findConfigFile(); configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process("EMIS", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadFrom is Load with an explicit config file instead of the search
// path. The file must exist.
func LoadFrom(configFile string) (*Config, error) {
	cfg := Default()

	if err := loadFromFile(configFile, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from file: %w", err)
	}

	if err := envconfig.Process("EMIS", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays configuration from a YAML file onto cfg.
// Fields absent from the file keep their current values.
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// validate checks field constraints and cross-field invariants
func (c *Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	start, err := time.Parse("2006-01-02", c.Study.StartDate)
	if err != nil {
		return fmt.Errorf("invalid study start date: %w", err)
	}
	trainEnd, err := time.Parse("2006-01-02", c.Study.TrainEndDate)
	if err != nil {
		return fmt.Errorf("invalid study train end date: %w", err)
	}
	if !trainEnd.After(start) {
		return fmt.Errorf("train end date %s must be after start date %s",
			c.Study.TrainEndDate, c.Study.StartDate)
	}

	if c.Logging.Format != "json" {
		// JSON is the only supported structured format
		c.Logging.Format = "json"
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/emis.log"
	}

	return nil
}

// Start returns the parsed study start date
func (s StudyConfig) Start() (time.Time, error) {
	return time.Parse("2006-01-02", s.StartDate)
}

// TrainBoundary returns the parsed training end date (exclusive bound
// of the training period).
func (s StudyConfig) TrainBoundary() (time.Time, error) {
	return time.Parse("2006-01-02", s.TrainEndDate)
}

// StudyStart returns the parsed study start date.
// Call only after validate; the format is guaranteed then.
func (c *Config) StudyStart() time.Time {
	t, _ := c.Study.Start()
	return t
}

// TrainEnd returns the parsed training end date (exclusive bound of the
// training period).
func (c *Config) TrainEnd() time.Time {
	t, _ := c.Study.TrainBoundary()
	return t
}

// findConfigFile returns the path to the config file, or "" if none exists
func findConfigFile() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
		"../configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: 30 * time.Second,
			StudyTimeout:    2 * time.Hour,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     100,
				Burst:   50,
			},
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "json",
			Output:      "both",
			FilePath:    "logs/emis.log",
			Development: false,
		},
		Paths: PathsConfig{
			DataDir:    "data",
			CacheDir:   "data/cache",
			ReportsDir: "data/reports",
			LogsDir:    "logs",
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      30 * time.Second,
			PongWait:        60 * time.Second,
		},
		Study: StudyConfig{
			Window:              60,
			ThresholdPercentile: 90,
			HoldingPeriod:       30,
			StartDate:           "2005-01-01",
			TrainEndDate:        "2020-01-01",
			TradeMode:           "overlapping",
			EntryWeekday:        1, // Monday
			MinUniverse:         20,
			MinHistoryRows:      1000,
			StartSlackDays:      30,
		},
		Source: SourceConfig{
			BaseURL:     "https://query1.finance.yahoo.com",
			Timeout:     30 * time.Second,
			MaxRetries:  3,
			RetryDelay:  2 * time.Second,
			RateLimit:   4,
			RateBurst:   2,
			Concurrency: 4,
		},
	}
}
