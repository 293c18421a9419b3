package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App      AppConfig      `yaml:"app"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Storage  StorageConfig  `yaml:"storage"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Journal  JournalConfig  `yaml:"journal"`
	Workers  WorkersConfig  `yaml:"workers"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type AppConfig struct {
	Name    string `yaml:"name" validate:"required"`
	Version string `yaml:"version"`
	Env     string `yaml:"env" validate:"omitempty,oneof=development staging production"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" validate:"min=0,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	User               string        `yaml:"user"`
	Password           string        `yaml:"password"`
	Name               string        `yaml:"name"`
	Charset            string        `yaml:"charset"`
	ParseTime          bool          `yaml:"parse_time"`
	Loc                string        `yaml:"loc"`
	MaxConnections     int           `yaml:"max_connections"`
	MaxIdleConnections int           `yaml:"max_idle_connections"`
	ConnectionLifetime time.Duration `yaml:"connection_lifetime"`
}

type RedisConfig struct {
	Host              string `yaml:"host"`
	Port              int    `yaml:"port"`
	Password          string `yaml:"password"`
	DB                int    `yaml:"db"`
	PoolSize          int    `yaml:"pool_size"`
	NotificationQueue string `yaml:"notification_queue"`
	DLQSuffix         string `yaml:"dlq_suffix"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket" validate:"required_if=Enabled true"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
	Prefix    string `yaml:"prefix"`
}

// GatewayConfig describes the remote REST service that owns journal data.
type GatewayConfig struct {
	BaseURL      string        `yaml:"base_url" validate:"required,url"`
	AuthEndpoint string        `yaml:"auth_endpoint"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries" validate:"min=0,max=10"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	MaxRetryWait time.Duration `yaml:"max_retry_wait"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	Endpoints    Endpoints     `yaml:"endpoints"`
}

type Endpoints struct {
	Attendance     string `yaml:"attendance"`
	AttendanceBulk string `yaml:"attendance_bulk"`
	Grades         string `yaml:"grades"`
	Lessons        string `yaml:"lessons"`
	Students       string `yaml:"students"`
	Stats          string `yaml:"stats"`
	Attestation    string `yaml:"attestation"`
}

type JournalConfig struct {
	StatsDebounce time.Duration `yaml:"stats_debounce"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
}

type WorkersConfig struct {
	Notify NotifyWorkerConfig `yaml:"notify"`
}

type NotifyWorkerConfig struct {
	Count int `yaml:"count" validate:"min=0"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=json console"`
}

func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML (after expanding ${VAR} references), fills defaults and validates.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyDefaults()

	if err := validator.New().Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "journal-sync"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Gateway.Timeout == 0 {
		c.Gateway.Timeout = 30 * time.Second
	}
	if c.Gateway.MaxRetries == 0 {
		c.Gateway.MaxRetries = 3
	}
	if c.Gateway.RetryDelay == 0 {
		c.Gateway.RetryDelay = 500 * time.Millisecond
	}
	if c.Gateway.MaxRetryWait == 0 {
		c.Gateway.MaxRetryWait = 5 * time.Second
	}
	if c.Gateway.CacheTTL == 0 {
		c.Gateway.CacheTTL = 5 * time.Minute
	}

	ep := &c.Gateway.Endpoints
	setDefault(&ep.Attendance, "/api/attendance")
	setDefault(&ep.AttendanceBulk, "/api/attendance/bulk")
	setDefault(&ep.Grades, "/api/grades")
	setDefault(&ep.Lessons, "/api/lessons")
	setDefault(&ep.Students, "/api/students")
	setDefault(&ep.Stats, "/api/attendance/stats")
	setDefault(&ep.Attestation, "/api/attestation")

	if c.Journal.StatsDebounce == 0 {
		c.Journal.StatsDebounce = 300 * time.Millisecond
	}
	if c.Journal.SessionTTL == 0 {
		c.Journal.SessionTTL = 2 * time.Hour
	}

	setDefault(&c.Redis.NotificationQueue, "journal:notifications")
	setDefault(&c.Redis.DLQSuffix, ":dlq")
	if c.Workers.Notify.Count == 0 {
		c.Workers.Notify.Count = 2
	}

	setDefault(&c.Logging.Level, "info")
	setDefault(&c.Logging.Format, "json")
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

// MySQL DSN format: [username[:password]@][protocol[(address)]]/dbname[?param1=value1&...&paramN=valueN]
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=%s",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port,
		c.Database.Name, c.Database.Charset, c.Database.ParseTime, c.Database.Loc)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
