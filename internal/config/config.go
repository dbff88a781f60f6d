package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Monday     MondayConfig     `yaml:"monday"`
	Redis      RedisConfig      `yaml:"redis"`
	Database   DatabaseConfig   `yaml:"database"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

// MondayConfig holds endpoints and credentials for the work-management platform.
type MondayConfig struct {
	APIURL        string `yaml:"api_url"`
	FileAPIURL    string `yaml:"file_api_url"`
	TokenURL      string `yaml:"token_url"`
	AuthURL       string `yaml:"auth_url"`
	ClientID      string `yaml:"client_id"`
	ClientSecret  string `yaml:"client_secret"`
	SigningSecret string `yaml:"signing_secret"`
	TimeoutSec    int    `yaml:"timeout_seconds"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	TokenTTL string `yaml:"token_ttl"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

// TelegramConfig enables operator alerts. Optional: alerts are skipped when the
// token is empty.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
	Debug    bool   `yaml:"debug"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port int `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// PipelineConfig carries the per-scenario constants for the one parameterized
// transfer pipeline. Scenarios absent from the config file fall back to the
// defaults table in applyDefaults.
type PipelineConfig struct {
	ScratchDir string                    `yaml:"scratch_dir"`
	Scenarios  map[string]ScenarioConfig `yaml:"scenarios"`
}

// Scenario names. Each is the same drain loop with its own constants block.
const (
	ScenarioColumnToColumn = "column_to_column"
	ScenarioItemToItem     = "item_to_item"
	ScenarioBoardToBoard   = "board_to_board"
	ScenarioUpdateToFiles  = "update_to_files"
)

type ScenarioConfig struct {
	Concurrency    int           `yaml:"concurrency"`
	MaxTaskRetries int           `yaml:"max_task_retries"`
	InterTaskDelay Duration      `yaml:"inter_task_delay"`
	WindowSize     Duration      `yaml:"window_size"`
	WindowLimit    int           `yaml:"window_limit"`
	DrainCeiling   Duration      `yaml:"drain_ceiling"`
	Retry          RetryConfig   `yaml:"retry"`
	Breaker        BreakerConfig `yaml:"breaker"`
}

type RetryConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	BaseDelay    Duration      `yaml:"base_delay"`
	MaxDelay     Duration      `yaml:"max_delay"`
	JitterFactor float64       `yaml:"jitter_factor"`
}

type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	ResetTimeout     Duration      `yaml:"reset_timeout"`
	Cooldown         Duration      `yaml:"cooldown"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; variables may come from the environment directly.
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Expand ${VAR} references in the YAML before parsing.
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Monday.ClientID == "" || c.Monday.ClientSecret == "" {
		return errors.New("monday client credentials are required")
	}
	if c.Monday.SigningSecret == "" {
		return errors.New("monday signing secret is required")
	}
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	for name, sc := range c.Pipeline.Scenarios {
		if sc.Concurrency <= 0 {
			return fmt.Errorf("scenario %s: concurrency must be positive", name)
		}
		if sc.WindowLimit <= 0 {
			return fmt.Errorf("scenario %s: window_limit must be positive", name)
		}
	}
	return nil
}

// Scenario returns the constants block for a scenario name, falling back to
// the column_to_column block for unknown names.
func (c *Config) Scenario(name string) ScenarioConfig {
	if sc, ok := c.Pipeline.Scenarios[name]; ok {
		return sc
	}
	return c.Pipeline.Scenarios[ScenarioColumnToColumn]
}

func defaultScenario() ScenarioConfig {
	return ScenarioConfig{
		Concurrency:    3,
		MaxTaskRetries: 10,
		InterTaskDelay: Duration(2 * time.Second),
		WindowSize:     Duration(60 * time.Second),
		WindowLimit:    20,
		DrainCeiling:   Duration(50 * time.Minute),
		Retry: RetryConfig{
			MaxRetries:   5,
			BaseDelay:    Duration(time.Second),
			MaxDelay:     Duration(30 * time.Second),
			JitterFactor: 0.2,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 8,
			SuccessThreshold: 2,
			ResetTimeout:     Duration(120 * time.Second),
			Cooldown:         Duration(180 * time.Second),
		},
	}
}

func (c *Config) applyDefaults() {
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if !c.API.Auth.Enabled {
		c.API.Auth.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}

	if c.Monday.APIURL == "" {
		c.Monday.APIURL = "https://api.monday.com/v2"
	}
	if c.Monday.FileAPIURL == "" {
		c.Monday.FileAPIURL = "https://api.monday.com/v2/file"
	}
	if c.Monday.TokenURL == "" {
		c.Monday.TokenURL = "https://auth.monday.com/oauth2/token"
	}
	if c.Monday.AuthURL == "" {
		c.Monday.AuthURL = "https://auth.monday.com/oauth2/authorize"
	}
	if c.Monday.TimeoutSec == 0 {
		c.Monday.TimeoutSec = 30
	}

	if c.Redis.TokenTTL == "" {
		c.Redis.TokenTTL = "720h"
	}
	if c.Pipeline.ScratchDir == "" {
		c.Pipeline.ScratchDir = os.TempDir()
	}

	if c.Pipeline.Scenarios == nil {
		c.Pipeline.Scenarios = make(map[string]ScenarioConfig)
	}

	// Divergent constants per scenario, preserved as configuration rather than
	// duplicated pipelines.
	defaults := map[string]ScenarioConfig{
		ScenarioColumnToColumn: defaultScenario(),
		ScenarioItemToItem:     defaultScenario(),
		ScenarioBoardToBoard:   defaultScenario(),
		ScenarioUpdateToFiles:  defaultScenario(),
	}
	itemToItem := defaults[ScenarioItemToItem]
	itemToItem.Concurrency = 4
	itemToItem.WindowLimit = 25
	defaults[ScenarioItemToItem] = itemToItem

	updateToFiles := defaults[ScenarioUpdateToFiles]
	updateToFiles.Concurrency = 5
	updateToFiles.WindowLimit = 30
	defaults[ScenarioUpdateToFiles] = updateToFiles

	for name, def := range defaults {
		sc, ok := c.Pipeline.Scenarios[name]
		if !ok {
			c.Pipeline.Scenarios[name] = def
			continue
		}
		c.Pipeline.Scenarios[name] = mergeScenario(sc, def)
	}
}

func mergeScenario(sc, def ScenarioConfig) ScenarioConfig {
	if sc.Concurrency == 0 {
		sc.Concurrency = def.Concurrency
	}
	if sc.MaxTaskRetries == 0 {
		sc.MaxTaskRetries = def.MaxTaskRetries
	}
	if sc.InterTaskDelay == 0 {
		sc.InterTaskDelay = def.InterTaskDelay
	}
	if sc.WindowSize == 0 {
		sc.WindowSize = def.WindowSize
	}
	if sc.WindowLimit == 0 {
		sc.WindowLimit = def.WindowLimit
	}
	if sc.DrainCeiling == 0 {
		sc.DrainCeiling = def.DrainCeiling
	}
	if sc.Retry.MaxRetries == 0 {
		sc.Retry.MaxRetries = def.Retry.MaxRetries
	}
	if sc.Retry.BaseDelay == 0 {
		sc.Retry.BaseDelay = def.Retry.BaseDelay
	}
	if sc.Retry.MaxDelay == 0 {
		sc.Retry.MaxDelay = def.Retry.MaxDelay
	}
	if sc.Retry.JitterFactor == 0 {
		sc.Retry.JitterFactor = def.Retry.JitterFactor
	}
	if sc.Breaker.FailureThreshold == 0 {
		sc.Breaker.FailureThreshold = def.Breaker.FailureThreshold
	}
	if sc.Breaker.SuccessThreshold == 0 {
		sc.Breaker.SuccessThreshold = def.Breaker.SuccessThreshold
	}
	if sc.Breaker.ResetTimeout == 0 {
		sc.Breaker.ResetTimeout = def.Breaker.ResetTimeout
	}
	if sc.Breaker.Cooldown == 0 {
		sc.Breaker.Cooldown = def.Breaker.Cooldown
	}
	return sc
}
