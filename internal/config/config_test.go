package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("TRACKER_DB_PASSWORD", "from-env")

	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			assert.Equal(t, 8080, cfg.Server.Port)
			assert.Equal(t, "localhost", cfg.Database.Host)
			assert.Equal(t, "from-env", cfg.Database.Password)
			assert.Equal(t, "tracker_enrich", cfg.Database.Database)
			assert.Equal(t, "enrich_exchange", cfg.RabbitMQ.Exchange.Name)
			assert.Equal(t, "coordinates_runs", cfg.RabbitMQ.Queue.Name)
			assert.Equal(t, "enrich_dlx", cfg.RabbitMQ.Queue.DeadLetterExchange)
			assert.Equal(t, 1, cfg.RabbitMQ.Consumer.PrefetchCount)
			assert.Equal(t, "tracker-enrich-api", cfg.App.Name)

			assert.Equal(t, "/var/lib/tracker/data", cfg.Enrich.DataDir)
			assert.Equal(t, 1500*time.Millisecond, cfg.Enrich.CourtesyDelay)
			assert.Equal(t, BackgroundQueue, cfg.Enrich.Background)
			assert.Equal(t, 2, cfg.Enrich.MaxRetries)
			assert.Equal(t, "tracker-enrich-test/1.0", cfg.Enrich.Geocoder.UserAgent)
			// defaults fill what the file leaves out
			assert.Equal(t, 3*time.Second, cfg.Enrich.AutosaveInterval)
			assert.Equal(t, "https://nominatim.openstreetmap.org", cfg.Enrich.Geocoder.BaseURL)
		})
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load("testdata/minimal_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "data", cfg.Enrich.DataDir)
	assert.Equal(t, "location_cache.json", cfg.Enrich.CachePath)
	assert.Equal(t, 3*time.Second, cfg.Enrich.AutosaveInterval)
	assert.Equal(t, time.Second, cfg.Enrich.CourtesyDelay)
	assert.Equal(t, 10*time.Second, cfg.Enrich.GeocodeTimeout)
	assert.Equal(t, BackgroundLocal, cfg.Enrich.Background)
	assert.Equal(t, 30*time.Minute, cfg.Enrich.RunTimeout)
	assert.Equal(t, 1.0, cfg.Enrich.Geocoder.RateLimitRPS)
	assert.Equal(t, 30*time.Second, cfg.Worker.HeartbeatInterval)
	assert.Equal(t, 2*time.Minute, cfg.Worker.StaleAfter)

	// local mode needs neither database nor broker
	assert.NoError(t, cfg.ValidateAPIConfig())
}

func validQueueConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "tracker_enrich",
		},
		RabbitMQ: RabbitMQConfig{
			Host:     "localhost",
			Port:     5672,
			Exchange: ExchangeConfig{Name: "enrich_exchange"},
			Queue:    QueueConfig{Name: "coordinates_runs"},
		},
		Worker: WorkerConfig{Concurrency: 2},
		Enrich: EnrichConfig{Background: BackgroundQueue},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		errString string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:      "invalid server port - too low",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			errString: "invalid server port",
		},
		{
			name:      "invalid server port - too high",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			errString: "invalid server port",
		},
		{
			name:      "missing database host in queue mode",
			mutate:    func(c *Config) { c.Database.Host = "" },
			errString: "database host is required",
		},
		{
			name: "database not needed in local mode",
			mutate: func(c *Config) {
				c.Enrich.Background = BackgroundLocal
				c.Database = DatabaseConfig{}
				c.RabbitMQ = RabbitMQConfig{}
			},
		},
		{
			name:      "missing rabbitmq exchange",
			mutate:    func(c *Config) { c.RabbitMQ.Exchange.Name = "" },
			errString: "rabbitmq exchange name is required",
		},
		{
			name:      "missing rabbitmq queue",
			mutate:    func(c *Config) { c.RabbitMQ.Queue.Name = "" },
			errString: "rabbitmq queue name is required",
		},
		{
			name:      "unknown background mode",
			mutate:    func(c *Config) { c.Enrich.Background = "cron" },
			errString: "invalid enrich background mode",
		},
		{
			name:      "negative max retries",
			mutate:    func(c *Config) { c.Enrich.MaxRetries = -1 },
			errString: "max_retries must not be negative",
		},
		{
			name:      "negative autosave interval",
			mutate:    func(c *Config) { c.Enrich.AutosaveInterval = -time.Second },
			errString: "autosave_interval must be greater than 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validQueueConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()
			if tt.errString == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		errString string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:      "zero concurrency",
			mutate:    func(c *Config) { c.Worker.Concurrency = 0 },
			errString: "worker concurrency must be greater than 0",
		},
		{
			name:      "negative heartbeat",
			mutate:    func(c *Config) { c.Worker.HeartbeatInterval = -time.Second },
			errString: "heartbeat_interval must be greater than 0",
		},
		{
			name:      "stale_after not above heartbeat",
			mutate:    func(c *Config) { c.Worker.StaleAfter = c.Worker.HeartbeatInterval },
			errString: "stale_after must be greater than heartbeat_interval",
		},
		{
			name:      "worker always needs the database",
			mutate:    func(c *Config) { c.Enrich.Background = BackgroundLocal; c.Database.Database = "" },
			errString: "database name is required",
		},
		{
			name:      "worker always needs the broker",
			mutate:    func(c *Config) { c.RabbitMQ.Port = 0 },
			errString: "invalid rabbitmq port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validQueueConfig()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()
			if tt.errString == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}
