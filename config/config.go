package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds all configuration for the harvest service
type Config struct {
	Telegram  TelegramConfig
	Database  DatabaseConfig
	Kafka     KafkaConfig
	S3        S3Config
	Collector CollectorConfig
	Listener  ListenerConfig
	Export    ExportConfig
	Logging   LoggingConfig
	Service   ServiceConfig
}

// TelegramConfig holds Telegram MTProto configuration
type TelegramConfig struct {
	APIID           int
	APIHash         string
	DeviceModel     string
	RateLimit       float64 // requests per second per connection
	RateBurst       int
	DialogsPageSize int
	ConnectTimeout  time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	MigrationsPath string
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Enabled       bool
	Brokers       []string
	TopicSpeakers string
	TopicCrawls   string
}

// S3Config holds S3/MinIO configuration for exports
type S3Config struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string
}

// CollectorConfig holds historical crawl configuration
type CollectorConfig struct {
	MaxConcurrency      int
	DefaultWindowDays   int
	HistoryPageSize     int
	MessagePace         time.Duration
	LookupFailurePace   time.Duration
	GroupFailurePace    time.Duration
	FloodWaitMargin     time.Duration
	FloodWaitMaxRetries int
}

// ListenerConfig holds live listener configuration
type ListenerConfig struct {
	QueueSize int
}

// ExportConfig holds export configuration
type ExportConfig struct {
	Timezone string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string
}

// ServiceConfig holds service configuration
type ServiceConfig struct {
	Name string
	Port string
}

// Result is fx.Out struct for providing config dependencies
type Result struct {
	fx.Out

	Config          *Config
	TelegramConfig  *TelegramConfig
	DatabaseConfig  *DatabaseConfig
	KafkaConfig     *KafkaConfig
	S3Config        *S3Config
	CollectorConfig *CollectorConfig
	ListenerConfig  *ListenerConfig
	ExportConfig    *ExportConfig
	LoggingConfig   *LoggingConfig
	ServiceConfig   *ServiceConfig
}

// Out returns fx-compatible config result
func Out() (Result, error) {
	cfg, err := Load()
	if err != nil {
		return Result{}, err
	}

	return Result{
		Config:          cfg,
		TelegramConfig:  &cfg.Telegram,
		DatabaseConfig:  &cfg.Database,
		KafkaConfig:     &cfg.Kafka,
		S3Config:        &cfg.S3,
		CollectorConfig: &cfg.Collector,
		ListenerConfig:  &cfg.Listener,
		ExportConfig:    &cfg.Export,
		LoggingConfig:   &cfg.Logging,
		ServiceConfig:   &cfg.Service,
	}, nil
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	_ = godotenv.Load()

	apiID, err := strconv.Atoi(getEnv("TELEGRAM_API_ID", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_API_ID: %w", err)
	}

	rateLimit, err := strconv.ParseFloat(getEnv("TELEGRAM_RATE_LIMIT", "10"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_RATE_LIMIT: %w", err)
	}

	cfg := &Config{
		Telegram: TelegramConfig{
			APIID:           apiID,
			APIHash:         getEnv("TELEGRAM_API_HASH", ""),
			DeviceModel:     getEnv("TELEGRAM_DEVICE_MODEL", "tg-userharvest"),
			RateLimit:       rateLimit,
			RateBurst:       getEnvInt("TELEGRAM_RATE_BURST", 10),
			DialogsPageSize: getEnvInt("TELEGRAM_DIALOGS_PAGE_SIZE", 100),
			ConnectTimeout:  getEnvDuration("TELEGRAM_CONNECT_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DATABASE_HOST", "localhost"),
			Port:           getEnv("DATABASE_PORT", "5432"),
			User:           getEnv("DATABASE_USER", "harvest_user"),
			Password:       getEnv("DATABASE_PASSWORD", "harvest_pass"),
			DBName:         getEnv("DATABASE_NAME", "harvest_db"),
			SSLMode:        getEnv("DATABASE_SSLMODE", "disable"),
			MigrationsPath: getEnv("DATABASE_MIGRATIONS_PATH", "file://migrations"),
		},
		Kafka: KafkaConfig{
			Enabled:       getEnvBool("KAFKA_ENABLED", false),
			Brokers:       strings.Split(getEnv("KAFKA_BROKERS", "localhost:9093"), ","),
			TopicSpeakers: getEnv("KAFKA_TOPIC_SPEAKERS", "speakers.discovered"),
			TopicCrawls:   getEnv("KAFKA_TOPIC_CRAWLS", "crawls.completed"),
		},
		S3: S3Config{
			Enabled:   getEnvBool("S3_ENABLED", false),
			Endpoint:  getEnv("S3_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("S3_ACCESS_KEY", ""),
			SecretKey: getEnv("S3_SECRET_KEY", ""),
			Bucket:    getEnv("S3_BUCKET", "exports"),
			UseSSL:    getEnvBool("S3_USE_SSL", false),
			PublicURL: getEnv("S3_PUBLIC_URL", "http://localhost:9000"),
		},
		Collector: CollectorConfig{
			MaxConcurrency:      getEnvInt("MAX_CONCURRENCY", 2),
			DefaultWindowDays:   getEnvInt("COLLECT_DEFAULT_DAYS", 7),
			HistoryPageSize:     getEnvInt("COLLECT_HISTORY_PAGE_SIZE", 100),
			MessagePace:         getEnvDuration("COLLECT_MESSAGE_PACE", 10*time.Millisecond),
			LookupFailurePace:   getEnvDuration("COLLECT_LOOKUP_FAILURE_PACE", 20*time.Millisecond),
			GroupFailurePace:    getEnvDuration("COLLECT_GROUP_FAILURE_PACE", 50*time.Millisecond),
			FloodWaitMargin:     getEnvDuration("COLLECT_FLOOD_WAIT_MARGIN", time.Second),
			FloodWaitMaxRetries: getEnvInt("COLLECT_FLOOD_WAIT_MAX_RETRIES", 10),
		},
		Listener: ListenerConfig{
			QueueSize: getEnvInt("LISTENER_QUEUE_SIZE", 256),
		},
		Export: ExportConfig{
			Timezone: getEnv("TZ", "UTC"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Service: ServiceConfig{
			Name: getEnv("SERVICE_NAME", "tg-userharvest"),
			Port: getEnv("SERVICE_PORT", "8000"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Telegram.APIID == 0 {
		return fmt.Errorf("TELEGRAM_API_ID is required")
	}

	if c.Telegram.APIHash == "" {
		return fmt.Errorf("TELEGRAM_API_HASH is required")
	}

	if c.Database.Host == "" {
		return fmt.Errorf("DATABASE_HOST is required")
	}

	if c.Database.DBName == "" {
		return fmt.Errorf("DATABASE_NAME is required")
	}

	if c.Collector.MaxConcurrency < 1 {
		return fmt.Errorf("MAX_CONCURRENCY must be at least 1")
	}

	if c.Listener.QueueSize < 1 {
		return fmt.Errorf("LISTENER_QUEUE_SIZE must be at least 1")
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when Kafka is enabled")
	}

	if c.S3.Enabled && c.S3.Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required when S3 is enabled")
	}

	if _, err := time.LoadLocation(c.Export.Timezone); err != nil {
		return fmt.Errorf("invalid TZ %q: %w", c.Export.Timezone, err)
	}

	return nil
}

// GetDSN returns database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

// getEnvDuration gets environment variable as duration with default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
