package config

import (
	"fmt"
	"os"
	"strconv"
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

// Ledger backends
const (
	LedgerBackendMemory   = "memory"
	LedgerBackendPostgres = "postgres"
	LedgerBackendRedis    = "redis"
	LedgerBackendBadger   = "badger"
)

// Config represents the complete application configuration
type Config struct {
	App               AppConfig      `yaml:"app"`
	Logging           LoggingConfig  `yaml:"logging"`
	AWS               AWSConfig      `yaml:"aws"`
	Ledger            LedgerConfig   `yaml:"ledger"`
	Transfer          TransferConfig `yaml:"transfer"`
	Listener          ListenerConfig `yaml:"listener"`
	InventoriesBucket string         `yaml:"inventories_bucket"`
	BasePath          string         `yaml:"base_path"`
	RabbitMQ          RabbitMQConfig `yaml:"rabbitmq"`
	Mail              MailConfig     `yaml:"mail"`
	Vimeo             VimeoConfig    `yaml:"vimeo"`
	Server            ServerConfig   `yaml:"server"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AWSConfig holds archive service credentials and region
type AWSConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Endpoint        string `yaml:"endpoint"`
}

// LedgerConfig selects and configures the ledger backend
type LedgerConfig struct {
	Backend   string         `yaml:"backend"`
	BadgerDir string         `yaml:"badger_dir"`
	Database  DatabaseConfig `yaml:"database"`
	Redis     RedisConfig    `yaml:"redis"`
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

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// TransferConfig holds upload retry settings
type TransferConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff"`
}

// ListenerConfig holds notification polling settings
type ListenerConfig struct {
	PollInterval         time.Duration `yaml:"poll_interval"`
	Timeout              time.Duration `yaml:"timeout"`
	WaitForMatchingJobID bool          `yaml:"wait_for_matching_job_id"`
}

// RabbitMQConfig holds the run event exchange configuration
type RabbitMQConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
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
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// MailConfig holds outbound mail settings
type MailConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Sender   string `yaml:"sender"`
	Receiver string `yaml:"receiver"`
	Password string `yaml:"password"`
}

// Enabled reports whether every field needed to send mail is present
func (m MailConfig) Enabled() bool {
	return m.Host != "" && m.Port != 0 && m.Sender != "" && m.Receiver != "" && m.Password != ""
}

// VimeoConfig holds video API settings
type VimeoConfig struct {
	BaseURL           string                         `yaml:"base_url"`
	PerPage           int                            `yaml:"per_page"`
	RequestsPerSecond float64                        `yaml:"requests_per_second"`
	Platforms         map[string]VimeoPlatformConfig `yaml:"platforms"`
}

// VimeoPlatformConfig holds per-platform video API credentials
type VimeoPlatformConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	AccessToken  string `yaml:"access_token"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:        "vaulty",
			Version:     "0.1.0",
			Environment: "development",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Ledger: LedgerConfig{
			Backend:   LedgerBackendMemory,
			BadgerDir: "ledger",
			Redis:     RedisConfig{KeyPrefix: "vaulty:ledger"},
		},
		Transfer: TransferConfig{
			MaxAttempts: 9,
			Backoff:     time.Second,
		},
		Listener: ListenerConfig{
			PollInterval: 10 * time.Second,
		},
		InventoriesBucket: "vaultinventories",
		BasePath:          ".",
		Vimeo: VimeoConfig{
			BaseURL:           "https://api.vimeo.com",
			PerPage:           25,
			RequestsPerSecond: 2,
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Load reads and parses the configuration file on top of the defaults
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// ApplyEnv overlays credentials provided by the environment
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	set(&c.AWS.AccessKeyID, "AWS_ACCESS_KEY_ID")
	set(&c.AWS.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")
	set(&c.AWS.Region, "AWS_REGION")

	set(&c.Mail.Host, "MAIL_HOST")
	set(&c.Mail.Sender, "MAIL_SENDER")
	set(&c.Mail.Receiver, "MAIL_RECEIVER")
	set(&c.Mail.Password, "MAIL_PASSWORD")
	if v, ok := lookup("MAIL_PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			c.Mail.Port = port
		}
	}

	for name, p := range c.Vimeo.Platforms {
		prefix := "VIMEO_" + strings.ToUpper(name) + "_"
		set(&p.ClientID, prefix+"CLIENT_ID")
		set(&p.ClientSecret, prefix+"CLIENT_SECRET")
		set(&p.AccessToken, prefix+"ACCESS_TOKEN")
		c.Vimeo.Platforms[name] = p
	}
}

// VimeoPlatform returns credentials for a platform, falling back to the
// environment for platforms absent from the file
func (c *Config) VimeoPlatform(name string, lookup func(string) (string, bool)) (VimeoPlatformConfig, error) {
	p, ok := c.Vimeo.Platforms[name]
	if !ok {
		prefix := "VIMEO_" + strings.ToUpper(name) + "_"
		p.ClientID, _ = lookup(prefix + "CLIENT_ID")
		p.ClientSecret, _ = lookup(prefix + "CLIENT_SECRET")
		p.AccessToken, _ = lookup(prefix + "ACCESS_TOKEN")
	}
	if p.AccessToken == "" {
		return p, fmt.Errorf("vimeo access token for platform %q is required", name)
	}
	return p, nil
}

// Validate checks the settings shared by every command
func (c *Config) Validate() error {
	if c.AWS.Region == "" {
		return fmt.Errorf("aws region is required")
	}

	if c.Transfer.MaxAttempts <= 0 {
		return fmt.Errorf("transfer max_attempts must be greater than 0")
	}

	if c.Transfer.Backoff < 0 {
		return fmt.Errorf("transfer backoff must not be negative")
	}

	if c.Listener.PollInterval <= 0 {
		return fmt.Errorf("listener poll_interval must be greater than 0")
	}

	if c.Listener.Timeout < 0 {
		return fmt.Errorf("listener timeout must not be negative")
	}

	if c.InventoriesBucket == "" {
		return fmt.Errorf("inventories bucket is required")
	}

	if err := c.Ledger.Validate(); err != nil {
		return err
	}

	if c.RabbitMQ.Enabled {
		if c.RabbitMQ.Host == "" {
			return fmt.Errorf("rabbitmq host is required")
		}

		if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
			return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
		}

		if c.RabbitMQ.Exchange.Name == "" {
			return fmt.Errorf("rabbitmq exchange name is required")
		}
	}

	return nil
}

// Validate checks the selected ledger backend has what it needs
func (l *LedgerConfig) Validate() error {
	switch l.Backend {
	case LedgerBackendMemory:
		return nil
	case LedgerBackendBadger:
		if l.BadgerDir == "" {
			return fmt.Errorf("ledger badger_dir is required")
		}
	case LedgerBackendPostgres:
		if l.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}

		if l.Database.Port < MinPort || l.Database.Port > MaxPort {
			return fmt.Errorf("invalid database port: %d (must be between %d and %d)", l.Database.Port, MinPort, MaxPort)
		}

		if l.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	case LedgerBackendRedis:
		if l.Redis.Addr == "" {
			return fmt.Errorf("redis addr is required")
		}
	default:
		return fmt.Errorf("unknown ledger backend: %q", l.Backend)
	}

	return nil
}

// ValidateAPIConfig checks the ledger browser settings
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.Ledger.Backend == LedgerBackendMemory {
		return fmt.Errorf("ledger backend %q cannot be browsed from another process", c.Ledger.Backend)
	}

	return c.Ledger.Validate()
}
