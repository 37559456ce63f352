package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Background execution modes for the deferred coordinates phase
const (
	BackgroundLocal = "local"
	BackgroundQueue = "queue"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Logging  LoggingConfig  `yaml:"logging"`
	App      AppConfig      `yaml:"app"`
	Worker   WorkerConfig   `yaml:"worker"`
	Enrich   EnrichConfig   `yaml:"enrich"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
	// DeadLetterExchange receives run messages rejected without requeue
	DeadLetterExchange string `yaml:"dead_letter_exchange"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency       int           `yaml:"concurrency"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	// StaleAfter is how long a RUNNING run may go without a heartbeat before
	// it is reclaimed
	StaleAfter      time.Duration `yaml:"stale_after"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// EnrichConfig holds enrichment pipeline configuration
type EnrichConfig struct {
	// DataDir holds one directory per tracker owner with raw.json and parsed.json
	DataDir          string         `yaml:"data_dir"`
	CachePath        string         `yaml:"cache_path"`
	AutosaveInterval time.Duration  `yaml:"autosave_interval"`
	CourtesyDelay    time.Duration  `yaml:"courtesy_delay"`
	GeocodeTimeout   time.Duration  `yaml:"geocode_timeout"`
	Background       string         `yaml:"background"`
	RunTimeout       time.Duration  `yaml:"run_timeout"`
	MaxRetries       int            `yaml:"max_retries"`
	Geocoder         GeocoderConfig `yaml:"geocoder"`
}

// GeocoderConfig holds Nominatim client settings
type GeocoderConfig struct {
	BaseURL      string  `yaml:"base_url"`
	UserAgent    string  `yaml:"user_agent"`
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
}

// Load reads and parses the configuration file. ${VAR} references are
// expanded from the environment before parsing.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()
	return &config, nil
}

// ApplyDefaults fills unset enrichment and worker settings
func (c *Config) ApplyDefaults() {
	e := &c.Enrich
	if e.DataDir == "" {
		e.DataDir = "data"
	}
	if e.CachePath == "" {
		e.CachePath = "location_cache.json"
	}
	if e.AutosaveInterval == 0 {
		e.AutosaveInterval = 3 * time.Second
	}
	if e.CourtesyDelay == 0 {
		e.CourtesyDelay = time.Second
	}
	if e.GeocodeTimeout == 0 {
		e.GeocodeTimeout = 10 * time.Second
	}
	if e.Background == "" {
		e.Background = BackgroundLocal
	}
	if e.RunTimeout == 0 {
		e.RunTimeout = 30 * time.Minute
	}
	if e.Geocoder.BaseURL == "" {
		e.Geocoder.BaseURL = "https://nominatim.openstreetmap.org"
	}
	if e.Geocoder.UserAgent == "" {
		e.Geocoder.UserAgent = "tracker-enrich-location-converter/1.0"
	}
	if e.Geocoder.RateLimitRPS == 0 {
		e.Geocoder.RateLimitRPS = 1
	}

	if c.Worker.HeartbeatInterval == 0 {
		c.Worker.HeartbeatInterval = 30 * time.Second
	}
	if c.Worker.StaleAfter == 0 {
		c.Worker.StaleAfter = 4 * c.Worker.HeartbeatInterval
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Worker.ShutdownTimeout == 0 {
		c.Worker.ShutdownTimeout = 30 * time.Second
	}
}

// ValidateEnrichConfig checks the enrichment section
func (c *Config) ValidateEnrichConfig() error {
	e := c.Enrich

	if strings.TrimSpace(e.DataDir) == "" {
		return fmt.Errorf("enrich data_dir is required")
	}

	if strings.TrimSpace(e.CachePath) == "" {
		return fmt.Errorf("enrich cache_path is required")
	}

	if e.AutosaveInterval <= 0 {
		return fmt.Errorf("enrich autosave_interval must be greater than 0")
	}

	if e.GeocodeTimeout <= 0 {
		return fmt.Errorf("enrich geocode_timeout must be greater than 0")
	}

	if e.RunTimeout <= 0 {
		return fmt.Errorf("enrich run_timeout must be greater than 0")
	}

	if e.MaxRetries < 0 {
		return fmt.Errorf("enrich max_retries must not be negative")
	}

	if e.Background != BackgroundLocal && e.Background != BackgroundQueue {
		return fmt.Errorf("invalid enrich background mode: %q (must be %q or %q)", e.Background, BackgroundLocal, BackgroundQueue)
	}

	if e.Geocoder.BaseURL == "" {
		return fmt.Errorf("enrich geocoder base_url is required")
	}

	if e.Geocoder.UserAgent == "" {
		return fmt.Errorf("enrich geocoder user_agent is required")
	}

	return nil
}

// ValidateAPIConfig checks the settings the API service depends on. The
// database and broker are only required when runs go through the queue.
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.ValidateEnrichConfig(); err != nil {
		return err
	}

	if c.Enrich.Background == BackgroundQueue {
		if err := c.validateDatabase(); err != nil {
			return err
		}
		if err := c.validateRabbitMQ(); err != nil {
			return err
		}
	}

	return nil
}

// ValidateWorkerConfig checks the settings the worker service depends on
func (c *Config) ValidateWorkerConfig() error {
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.HeartbeatInterval <= 0 {
		return fmt.Errorf("worker heartbeat_interval must be greater than 0")
	}

	if c.Worker.StaleAfter <= c.Worker.HeartbeatInterval {
		return fmt.Errorf("worker stale_after must be greater than heartbeat_interval")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if err := c.ValidateEnrichConfig(); err != nil {
		return err
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	return c.validateRabbitMQ()
}

func (c *Config) validateDatabase() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	return nil
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	return nil
}
