package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Submission modes.
const (
	SubmissionModeSimulated = "simulated"
	SubmissionModeHTTP      = "http"
)

// Config represents the complete application configuration
type Config struct {
	Server       ServerConfig     `yaml:"server"`
	Database     DatabaseConfig   `yaml:"database"`
	Redis        RedisConfig      `yaml:"redis"`
	RabbitMQ     RabbitMQConfig   `yaml:"rabbitmq"`
	Logging      LoggingConfig    `yaml:"logging"`
	App          AppConfig        `yaml:"app"`
	Queue        QueueConfig      `yaml:"queue"`
	Scheduler    SchedulerConfig  `yaml:"scheduler"`
	SearchWorker WorkerConfig     `yaml:"search_worker"`
	ApplyWorker  WorkerConfig     `yaml:"apply_worker"`
	AI           AIConfig         `yaml:"ai"`
	Sources      []SourceConfig   `yaml:"sources"`
	Submission   SubmissionConfig `yaml:"submission"`
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

// RedisConfig holds the Redis connection backing the work queues.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange configuration for
// the notification event bus.
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
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

// QueueConfig holds work-queue settings shared by all consumers.
type QueueConfig struct {
	// Backend selects the queue implementation: "redis" or "memory".
	// Memory is for local development and tests only.
	Backend     string `yaml:"backend"`
	MaxAttempts int    `yaml:"max_attempts"`
}

// SchedulerConfig holds the periodic search scheduler settings.
type SchedulerConfig struct {
	TickInterval          time.Duration `yaml:"tick_interval"`
	Cadence               time.Duration `yaml:"cadence"`
	BackpressureThreshold int64         `yaml:"backpressure_threshold"`
	JitterMax             time.Duration `yaml:"jitter_max"`
}

// WorkerConfig holds the settings of one queue consumer.
type WorkerConfig struct {
	Concurrency       int           `yaml:"concurrency"`
	BatchSize         int           `yaml:"batch_size"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
	JobTimeout        time.Duration `yaml:"job_timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryBaseDelay    time.Duration `yaml:"retry_base_delay"`
}

// AIConfig holds text-generation settings. APIKey is normally injected via
// the GEMINI_API_KEY environment variable rather than the yaml file.
type AIConfig struct {
	Enabled        bool          `yaml:"enabled"`
	APIKey         string        `yaml:"api_key"`
	Model          string        `yaml:"model"`
	MaxRetries     int           `yaml:"max_retries"`
	BaseDelay      time.Duration `yaml:"base_delay"`
	MaxDelay       time.Duration `yaml:"max_delay"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// SourceConfig holds one job portal's API settings. Sources are queried in
// the order they appear.
type SourceConfig struct {
	Name     string        `yaml:"name"`
	BaseURL  string        `yaml:"base_url"`
	AppID    string        `yaml:"app_id"`
	AppKey   string        `yaml:"app_key"`
	Country  string        `yaml:"country"`
	PageSize int           `yaml:"page_size"`
	Timeout  time.Duration `yaml:"timeout"`
}

// SubmissionConfig selects how applications are filed.
type SubmissionConfig struct {
	Mode     string        `yaml:"mode"`
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// ValidateAPIConfig checks the fields the API service needs.
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateShared(); err != nil {
		return err
	}

	return nil
}

// ValidateWorkerConfig checks the fields the worker service needs.
func (c *Config) ValidateWorkerConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateShared(); err != nil {
		return err
	}

	if c.Scheduler.TickInterval <= 0 {
		return fmt.Errorf("scheduler tick_interval must be greater than 0")
	}

	if c.Scheduler.Cadence <= 0 {
		return fmt.Errorf("scheduler cadence must be greater than 0")
	}

	for name, worker := range map[string]WorkerConfig{
		"search_worker": c.SearchWorker,
		"apply_worker":  c.ApplyWorker,
	} {
		if worker.Concurrency <= 0 {
			return fmt.Errorf("%s concurrency must be greater than 0", name)
		}
		if worker.VisibilityTimeout <= 0 {
			return fmt.Errorf("%s visibility_timeout must be greater than 0", name)
		}
		if worker.JobTimeout > worker.VisibilityTimeout {
			return fmt.Errorf("%s job_timeout must not exceed visibility_timeout", name)
		}
	}

	switch c.Submission.Mode {
	case SubmissionModeSimulated:
	case SubmissionModeHTTP:
		if c.Submission.Endpoint == "" {
			return fmt.Errorf("submission endpoint is required in http mode")
		}
	default:
		return fmt.Errorf("invalid submission mode: %q", c.Submission.Mode)
	}

	return nil
}

func (c *Config) validateShared() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	switch c.Queue.Backend {
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("redis url is required with the redis queue backend")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid queue backend: %q", c.Queue.Backend)
	}

	if c.Queue.MaxAttempts <= 0 {
		return fmt.Errorf("queue max_attempts must be greater than 0")
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	return nil
}
