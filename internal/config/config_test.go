package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "applyflow_db",
		},
		Redis: RedisConfig{URL: "redis://localhost:6379/0"},
		RabbitMQ: RabbitMQConfig{
			Host: "localhost",
			Port: 5672,
			Exchange: ExchangeConfig{
				Name: "applyflow_events",
				Type: "topic",
			},
		},
		Queue: QueueConfig{Backend: "redis", MaxAttempts: 5},
		Scheduler: SchedulerConfig{
			TickInterval:          15 * time.Minute,
			Cadence:               4 * time.Hour,
			BackpressureThreshold: 1000,
			JitterMax:             3 * time.Minute,
		},
		SearchWorker: WorkerConfig{
			Concurrency:       4,
			VisibilityTimeout: 5 * time.Minute,
			JobTimeout:        4 * time.Minute,
		},
		ApplyWorker: WorkerConfig{
			Concurrency:       2,
			VisibilityTimeout: 5 * time.Minute,
			JobTimeout:        4 * time.Minute,
		},
		Submission: SubmissionConfig{Mode: SubmissionModeSimulated},
	}
}

func TestLoad(t *testing.T) {
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
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				// Verify some key fields are populated
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, "applyflow_db", cfg.Database.Database)
				assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
				assert.Equal(t, "applyflow_events", cfg.RabbitMQ.Exchange.Name)
				assert.Equal(t, "applyflow-api", cfg.App.Name)
				assert.Equal(t, 15*time.Minute, cfg.Scheduler.TickInterval)
				assert.Equal(t, 4*time.Hour, cfg.Scheduler.Cadence)
				assert.Equal(t, 4, cfg.SearchWorker.Concurrency)
				assert.Equal(t, SubmissionModeSimulated, cfg.Submission.Mode)
				require.Len(t, cfg.Sources, 1)
				assert.Equal(t, "adzuna", cfg.Sources[0].Name)
			}
		})
	}
}

func TestValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			wantErr: false,
		},
		{
			name:      "invalid server port - too low",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "invalid server port - too high",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "empty database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			wantErr:   true,
			errString: "database host is required",
		},
		{
			name:      "empty database name",
			mutate:    func(c *Config) { c.Database.Database = "" },
			wantErr:   true,
			errString: "database name is required",
		},
		{
			name:      "redis backend requires url",
			mutate:    func(c *Config) { c.Redis.URL = "" },
			wantErr:   true,
			errString: "redis url is required",
		},
		{
			name: "memory backend needs no redis url",
			mutate: func(c *Config) {
				c.Queue.Backend = "memory"
				c.Redis.URL = ""
			},
			wantErr: false,
		},
		{
			name:      "unknown queue backend",
			mutate:    func(c *Config) { c.Queue.Backend = "sqs" },
			wantErr:   true,
			errString: "invalid queue backend",
		},
		{
			name:      "zero max attempts",
			mutate:    func(c *Config) { c.Queue.MaxAttempts = 0 },
			wantErr:   true,
			errString: "max_attempts must be greater than 0",
		},
		{
			name:      "empty rabbitmq host",
			mutate:    func(c *Config) { c.RabbitMQ.Host = "" },
			wantErr:   true,
			errString: "rabbitmq host is required",
		},
		{
			name:      "empty exchange name",
			mutate:    func(c *Config) { c.RabbitMQ.Exchange.Name = "" },
			wantErr:   true,
			errString: "rabbitmq exchange name is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}

			err := cfg.ValidateAPIConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			wantErr: false,
		},
		{
			name:      "zero tick interval",
			mutate:    func(c *Config) { c.Scheduler.TickInterval = 0 },
			wantErr:   true,
			errString: "tick_interval must be greater than 0",
		},
		{
			name:      "zero cadence",
			mutate:    func(c *Config) { c.Scheduler.Cadence = 0 },
			wantErr:   true,
			errString: "cadence must be greater than 0",
		},
		{
			name:      "zero search worker concurrency",
			mutate:    func(c *Config) { c.SearchWorker.Concurrency = 0 },
			wantErr:   true,
			errString: "concurrency must be greater than 0",
		},
		{
			name:      "job timeout over visibility timeout",
			mutate:    func(c *Config) { c.ApplyWorker.JobTimeout = 10 * time.Minute },
			wantErr:   true,
			errString: "job_timeout must not exceed visibility_timeout",
		},
		{
			name:      "http submission requires endpoint",
			mutate:    func(c *Config) { c.Submission.Mode = SubmissionModeHTTP },
			wantErr:   true,
			errString: "submission endpoint is required",
		},
		{
			name: "http submission with endpoint",
			mutate: func(c *Config) {
				c.Submission.Mode = SubmissionModeHTTP
				c.Submission.Endpoint = "https://portal.example.com/apply"
			},
			wantErr: false,
		},
		{
			name:      "unknown submission mode",
			mutate:    func(c *Config) { c.Submission.Mode = "carrier-pigeon" },
			wantErr:   true,
			errString: "invalid submission mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}

			err := cfg.ValidateWorkerConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoad_ValidateIntegration(t *testing.T) {
	t.Run("load and validate valid config", func(t *testing.T) {
		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		require.NoError(t, cfg.ValidateAPIConfig())
		require.NoError(t, cfg.ValidateWorkerConfig())
	})

	t.Run("load config with invalid port", func(t *testing.T) {
		cfg, err := Load("testdata/invalid_port.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server port")
	})

	t.Run("load config with missing database", func(t *testing.T) {
		cfg, err := Load("testdata/missing_database.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database name is required")
	})
}
