// Package config provides configuration management for the engine.
// It supports environment variables, config files (YAML/JSON), and defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the acquisition engine.
type Config struct {
	// Environment is the deployment environment (development, staging, production)
	Environment string `mapstructure:"environment"`

	// Database configuration
	Database DatabaseConfig `mapstructure:"database"`

	// HTTP server configuration
	HTTP HTTPConfig `mapstructure:"http"`

	// MQTT live-event configuration
	MQTT MQTTConfig `mapstructure:"mqtt"`

	// Modbus transport configuration
	Modbus ModbusConfig `mapstructure:"modbus"`

	// Poll cycle configuration
	Poll PollConfig `mapstructure:"poll"`

	// Write executor configuration
	Writer WriterConfig `mapstructure:"writer"`

	// Automation tick configuration
	Automation AutomationConfig `mapstructure:"automation"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	// DSN is the SQLite data source name
	DSN string `mapstructure:"dsn"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// MQTTConfig holds MQTT client configuration.
type MQTTConfig struct {
	BrokerURL      string        `mapstructure:"broker_url"`
	ClientID       string        `mapstructure:"client_id"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	QoS            byte          `mapstructure:"qos"`
	KeepAlive      time.Duration `mapstructure:"keep_alive"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	BufferSize     int           `mapstructure:"buffer_size"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
	TopicPrefix    string        `mapstructure:"topic_prefix"`
}

// ModbusConfig holds Modbus transport configuration.
type ModbusConfig struct {
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// PollConfig holds poll cycle configuration.
type PollConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	PacingDelay time.Duration `mapstructure:"pacing_delay"`
	// Circuit breaker configuration
	CBTimeout          time.Duration `mapstructure:"cb_timeout"`
	CBFailureThreshold uint32        `mapstructure:"cb_failure_threshold"`
}

// WriterConfig holds write executor configuration.
type WriterConfig struct {
	QueueSize    int           `mapstructure:"queue_size"`
	Workers      int           `mapstructure:"workers"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// AutomationConfig holds scheduler and session supervision intervals.
type AutomationConfig struct {
	// SchedulerTick is how often the time-of-day scheduler checks for due
	// tasks. Must be under a minute so no firing window is missed.
	SchedulerTick time.Duration `mapstructure:"scheduler_tick"`

	// SessionCheck is how often the active run is checked for natural
	// completion.
	SessionCheck time.Duration `mapstructure:"session_check"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // json or console
	Output     string `mapstructure:"output"` // stdout, stderr, or file path
	TimeFormat string `mapstructure:"time_format"`
}

// Load loads configuration from files and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/bench-engine")

	// Config file is optional; defaults and env vars cover everything
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Database
	v.SetDefault("database.dsn", "./bench-engine.db")

	// HTTP
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)

	// MQTT
	v.SetDefault("mqtt.broker_url", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "bench-engine")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.keep_alive", 30*time.Second)
	v.SetDefault("mqtt.connect_timeout", 10*time.Second)
	v.SetDefault("mqtt.reconnect_delay", 5*time.Second)
	v.SetDefault("mqtt.buffer_size", 10000)
	v.SetDefault("mqtt.publish_timeout", 5*time.Second)
	v.SetDefault("mqtt.topic_prefix", "bench/live")

	// Modbus
	v.SetDefault("modbus.dial_timeout", 5*time.Second)

	// Poll cycle
	v.SetDefault("poll.interval", 3*time.Second)
	v.SetDefault("poll.pacing_delay", 500*time.Millisecond)
	v.SetDefault("poll.cb_timeout", 30*time.Second)
	v.SetDefault("poll.cb_failure_threshold", 3)

	// Write executor
	v.SetDefault("writer.queue_size", 256)
	v.SetDefault("writer.workers", 4)
	v.SetDefault("writer.write_timeout", 5*time.Second)

	// Automation
	v.SetDefault("automation.scheduler_tick", 15*time.Second)
	v.SetDefault("automation.session_check", 30*time.Second)

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.time_format", time.RFC3339)
}

// bindEnvVars binds environment variables to config keys.
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("environment", "ENVIRONMENT")
	_ = v.BindEnv("database.dsn", "DATABASE_DSN")

	_ = v.BindEnv("mqtt.broker_url", "MQTT_BROKER_URL")
	_ = v.BindEnv("mqtt.username", "MQTT_USERNAME")
	_ = v.BindEnv("mqtt.password", "MQTT_PASSWORD")
	_ = v.BindEnv("mqtt.client_id", "MQTT_CLIENT_ID")

	_ = v.BindEnv("http.port", "HTTP_PORT")

	_ = v.BindEnv("logging.level", "LOG_LEVEL")
	_ = v.BindEnv("logging.format", "LOG_FORMAT")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}
	if c.MQTT.BrokerURL == "" {
		return fmt.Errorf("MQTT broker URL is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTP.Port)
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.Writer.QueueSize <= 0 {
		return fmt.Errorf("writer queue size must be positive")
	}
	if c.Automation.SchedulerTick <= 0 || c.Automation.SchedulerTick >= time.Minute {
		return fmt.Errorf("scheduler tick must be positive and under one minute")
	}
	return nil
}
