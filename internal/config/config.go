package config

import (
	"errors"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMissingUserCode is returned when no DayBetter user code is configured.
var ErrMissingUserCode = errors.New("daybetter.user_code is required")

// DefaultBaseURL is the DayBetter cloud API root used for integrations.
const DefaultBaseURL = "https://cloud.v2.dbiot.link/daybetter/hass/api/v1.0"

// DefaultLightPIDs are the device mold PIDs known to be lights.
var DefaultLightPIDs = []string{
	"P01E", "P021", "P024", "P025", "P027", "P02B", "P032", "P035", "P037", "P038",
	"P039", "P03B", "P03D", "P03E", "P03F", "P040", "P041", "P042", "P043", "P045",
	"P046", "P048", "P049", "P04E", "P04F", "P050", "P051", "P054", "P055", "P056",
	"P058", "P059", "P05A", "P05B", "P05C", "P05D", "P05E", "P05F", "P064", "P067",
	"P069", "P06F", "P072", "P073", "P074", "P076", "P078", "P079", "P07A", "P07B",
	"P07C", "P07E", "P086",
}

// Config represents the application configuration
type Config struct {
	DayBetter       DayBetterConfig `yaml:"daybetter"`
	Poll            PollConfig      `yaml:"poll"`
	Database        DatabaseConfig  `yaml:"database"`
	Log             LogConfig       `yaml:"log"`
	API             APIConfig       `yaml:"api"`
	MQTT            MQTTConfig      `yaml:"mqtt"`
	EventBus        EventBusConfig  `yaml:"eventbus"`
	Ledger          LedgerConfig    `yaml:"ledger"`
	ShutdownTimeout Duration        `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// DayBetterConfig contains cloud API connection settings
type DayBetterConfig struct {
	BaseURL      string   `yaml:"base_url"`
	UserCode     string   `yaml:"user_code"`
	Timeout      Duration `yaml:"timeout"`        // HTTP timeout for API requests
	RateLimitRPS float64  `yaml:"rate_limit_rps"` // Outbound request budget
	TokenTTL     Duration `yaml:"token_ttl"`      // Used when the exchange response has no expiry
	LightPIDs    []string `yaml:"light_pids"`
}

// PollConfig contains adaptive polling settings
type PollConfig struct {
	NormalInterval Duration `yaml:"normal_interval"`
	BurstInterval  Duration `yaml:"burst_interval"`
	BurstDuration  Duration `yaml:"burst_duration"`
	IdleTimeout    Duration `yaml:"idle_timeout"`
	Tick           Duration `yaml:"tick"` // How often each device loop evaluates its schedule
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	Colors  bool   `yaml:"colors"`
	UseJSON bool   `yaml:"json"`
}

// GetLevel returns the configured level, defaulting to info
func (c LogConfig) GetLevel() string {
	if c.Level == "" {
		return "info"
	}
	return strings.ToLower(c.Level)
}

// APIConfig contains HTTP control API settings
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// MQTTConfig contains state publication settings
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 4)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 4
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

// LedgerConfig contains command ledger settings
type LedgerConfig struct {
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses configuration bytes, expands environment variables and applies defaults
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if strings.TrimSpace(cfg.DayBetter.UserCode) == "" {
		return nil, ErrMissingUserCode
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./daybetterd.sqlite"
	}

	// DayBetter defaults
	if cfg.DayBetter.BaseURL == "" {
		cfg.DayBetter.BaseURL = DefaultBaseURL
	}
	cfg.DayBetter.BaseURL = strings.TrimRight(cfg.DayBetter.BaseURL, "/")
	if cfg.DayBetter.Timeout == 0 {
		cfg.DayBetter.Timeout = Duration(10 * time.Second)
	}
	if cfg.DayBetter.RateLimitRPS == 0 {
		cfg.DayBetter.RateLimitRPS = 5.0
	}
	if cfg.DayBetter.TokenTTL == 0 {
		cfg.DayBetter.TokenTTL = Duration(30 * 24 * time.Hour)
	}
	if len(cfg.DayBetter.LightPIDs) == 0 {
		cfg.DayBetter.LightPIDs = append([]string(nil), DefaultLightPIDs...)
	}

	// Poll defaults
	if cfg.Poll.NormalInterval == 0 {
		cfg.Poll.NormalInterval = Duration(30 * time.Second)
	}
	if cfg.Poll.BurstInterval == 0 {
		cfg.Poll.BurstInterval = Duration(5 * time.Second)
	}
	if cfg.Poll.BurstDuration == 0 {
		cfg.Poll.BurstDuration = Duration(30 * time.Second)
	}
	if cfg.Poll.IdleTimeout == 0 {
		cfg.Poll.IdleTimeout = Duration(5 * time.Minute)
	}
	if cfg.Poll.Tick == 0 {
		cfg.Poll.Tick = Duration(1 * time.Second)
	}

	// API defaults
	if cfg.API.Host == "" {
		cfg.API.Host = "0.0.0.0"
	}
	if cfg.API.Port == 0 {
		cfg.API.Port = 8080
	}

	// MQTT defaults
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "daybetterd"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "daybetter"
	}
	if cfg.MQTT.QoS == 0 {
		cfg.MQTT.QoS = 1
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
