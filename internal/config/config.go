package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"

	NotifierLog      = "log"
	NotifierRabbitMQ = "rabbitmq"
	NotifierPush     = "push"
)

type Config struct {
	Port      string `mapstructure:"PORT"`
	Env       string `mapstructure:"ENV"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
	AppName   string `mapstructure:"APP_NAME"`

	StorageBackend string `mapstructure:"STORAGE_BACKEND"`
	DBDSN          string `mapstructure:"DB_DSN"`
	MongoURI       string `mapstructure:"MONGO_URI"`
	MongoDatabase  string `mapstructure:"MONGO_DATABASE"`

	AuthJWTSecret string `mapstructure:"AUTH_JWT_SECRET"`
	AuthJWTIssuer string `mapstructure:"AUTH_JWT_ISSUER"`

	Timezone    string `mapstructure:"TIMEZONE"`
	AlarmDBPath string `mapstructure:"ALARM_DB_PATH"`

	Notifier         string `mapstructure:"NOTIFIER"`
	RabbitMQURL      string `mapstructure:"RABBITMQ_URL"`
	RabbitMQExchange string `mapstructure:"RABBITMQ_EXCHANGE"`
	PushGatewayURL   string `mapstructure:"PUSH_GATEWAY_URL"`
	PushAPIKey       string `mapstructure:"PUSH_API_KEY"`

	SlotsCacheSize       int           `mapstructure:"SLOTS_CACHE_SIZE"`
	SlotsCacheTTL        time.Duration `mapstructure:"SLOTS_CACHE_TTL"`
	HistorySweepInterval time.Duration `mapstructure:"HISTORY_SWEEP_INTERVAL"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "LOG_FORMAT", "APP_NAME",
	"STORAGE_BACKEND", "DB_DSN", "MONGO_URI", "MONGO_DATABASE",
	"AUTH_JWT_SECRET", "AUTH_JWT_ISSUER",
	"TIMEZONE", "ALARM_DB_PATH",
	"NOTIFIER", "RABBITMQ_URL", "RABBITMQ_EXCHANGE", "PUSH_GATEWAY_URL", "PUSH_API_KEY",
	"SLOTS_CACHE_SIZE", "SLOTS_CACHE_TTL", "HISTORY_SWEEP_INTERVAL",
}

// Load lee variables de entorno y, si existe, un .env en el directorio actual.
func Load() (*Config, error) {
	return load(viper.New(), ".env")
}

func load(v *viper.Viper, envFile string) (*Config, error) {
	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
	}
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("APP_NAME", "pet-care-tracker")
	v.SetDefault("STORAGE_BACKEND", BackendMemory)
	v.SetDefault("MONGO_DATABASE", "pet_care")
	v.SetDefault("AUTH_JWT_ISSUER", "pet-care-tracker")
	v.SetDefault("TIMEZONE", "Local")
	v.SetDefault("ALARM_DB_PATH", "data/alarms.db")
	v.SetDefault("NOTIFIER", NotifierLog)
	v.SetDefault("RABBITMQ_EXCHANGE", "pet-care")
	v.SetDefault("SLOTS_CACHE_SIZE", 256)
	v.SetDefault("SLOTS_CACHE_TTL", "30s")
	v.SetDefault("HISTORY_SWEEP_INTERVAL", "1m")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// .env es opcional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(cfg.StorageBackend))
	cfg.Notifier = strings.ToLower(strings.TrimSpace(cfg.Notifier))
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Location resuelve TIMEZONE para los disparos de recordatorios.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Validate revisa combinaciones que impedirían arrancar.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DBDSN == "" {
			return fmt.Errorf("DB_DSN is required when STORAGE_BACKEND=%s", BackendPostgres)
		}
	case BackendMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required when STORAGE_BACKEND=%s", BackendMongo)
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be %q, %q or %q, got %q",
			BackendMemory, BackendPostgres, BackendMongo, c.StorageBackend)
	}

	switch c.Notifier {
	case NotifierLog:
	case NotifierRabbitMQ:
		if c.RabbitMQURL == "" {
			return fmt.Errorf("RABBITMQ_URL is required when NOTIFIER=%s", NotifierRabbitMQ)
		}
	case NotifierPush:
		if c.PushGatewayURL == "" {
			return fmt.Errorf("PUSH_GATEWAY_URL is required when NOTIFIER=%s", NotifierPush)
		}
	default:
		return fmt.Errorf("NOTIFIER must be %q, %q or %q, got %q",
			NotifierLog, NotifierRabbitMQ, NotifierPush, c.Notifier)
	}

	if !c.IsDev() && c.AuthJWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required outside development (ENV=%q)", c.Env)
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("TIMEZONE: %w", err)
	}
	if c.SlotsCacheTTL < 0 || c.HistorySweepInterval < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	return nil
}
