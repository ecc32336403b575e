package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

type ServerConfig struct {
	Port            string        `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	Directory string `yaml:"directory"`
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
}

type SecurityConfig struct {
	JWTSecret    string `yaml:"jwt_secret"`
	JWTPublicKey string `yaml:"jwt_public_key"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver       string        `yaml:"driver"`
	URL          string        `yaml:"url"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	ConnMaxIdle  time.Duration `yaml:"conn_max_idle"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	GroupID string   `yaml:"group_id"`
	// Topics maps a business event name (order.created, order.payment, ...) to the kafka topic carrying it.
	Topics map[string]string `yaml:"topics"`
}

type WebsocketConfig struct {
	SendBuffer     int           `yaml:"send_buffer"`
	ReadLimit      int64         `yaml:"read_limit"`
	PongWait       time.Duration `yaml:"pong_wait"`
	PingPeriod     time.Duration `yaml:"ping_period"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

type UploadsConfig struct {
	Directory string `yaml:"directory"`
	BaseURL   string `yaml:"base_url"`
	MaxBytes  int64  `yaml:"max_bytes"`
}

type TracingConfig struct {
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Database  DatabaseConfig  `yaml:"database"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Websocket WebsocketConfig `yaml:"websocket"`
	Uploads   UploadsConfig   `yaml:"uploads"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

var (
	ErrMissingJWTKey      = errors.New("jwt secret or public key is required")
	ErrMissingDatabaseURL = errors.New("database url is required")
	ErrUnsupportedDriver  = errors.New("unsupported database driver")
)

// Default event -> topic bindings used when neither the file nor the environment provides any.
var defaultTopics = map[string]string{
	"order.created":   "orders.created",
	"order.payment":   "orders.payment",
	"order.status":    "orders.status",
	"driver.location": "drivers.location",
}

func defaults() *Config {
	topics := make(map[string]string, len(defaultTopics))
	for k, v := range defaultTopics {
		topics[k] = v
	}
	return &Config{
		Server:  ServerConfig{Port: "8080", ShutdownTimeout: 15 * time.Second},
		Logging: LoggingConfig{Directory: "./logs", Level: "info", Format: "json"},
		Database: DatabaseConfig{
			Driver:       "postgres",
			MaxOpenConns: 10,
			ConnMaxIdle:  5 * time.Minute,
		},
		Kafka: KafkaConfig{GroupID: "food-delivery-ws", Topics: topics},
		Websocket: WebsocketConfig{
			SendBuffer: 16,
			ReadLimit:  1 << 16,
			PongWait:   60 * time.Second,
			PingPeriod: 30 * time.Second,
		},
		Uploads: UploadsConfig{Directory: "./uploads", BaseURL: "/uploads", MaxBytes: 10 << 20},
		Tracing: TracingConfig{ServiceName: "food-delivery-ws"},
	}
}

// Load reads the optional YAML file named by CONFIG_PATH and then applies environment overrides.
func Load() (*Config, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("CONFIG_PATH")); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Port, "PORT")
	setDuration(&cfg.Server.ShutdownTimeout, "SHUTDOWN_TIMEOUT")

	setString(&cfg.Logging.Directory, "LOG_DIR")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOG_FORMAT")

	setString(&cfg.Security.JWTSecret, "JWT_SECRET")
	setString(&cfg.Security.JWTPublicKey, "JWT_PUBLIC_KEY")

	setString(&cfg.Database.Driver, "DB_DRIVER")
	setString(&cfg.Database.URL, "DATABASE_URL")
	setInt(&cfg.Database.MaxOpenConns, "DB_MAX_OPEN_CONNS")
	setDuration(&cfg.Database.ConnMaxIdle, "DB_CONN_MAX_IDLE")

	// KAFKA_BROKERS takes precedence over the single-broker KAFKA_BROKER variable.
	if brokers := splitList(os.Getenv("KAFKA_BROKERS")); len(brokers) > 0 {
		cfg.Kafka.Brokers = brokers
	} else if broker := strings.TrimSpace(os.Getenv("KAFKA_BROKER")); broker != "" {
		cfg.Kafka.Brokers = []string{broker}
	}
	setString(&cfg.Kafka.GroupID, "KAFKA_GROUP_ID")
	for event := range defaultTopics {
		key := "KAFKA_TOPIC_" + strings.ToUpper(strings.ReplaceAll(event, ".", "_"))
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			if cfg.Kafka.Topics == nil {
				cfg.Kafka.Topics = map[string]string{}
			}
			cfg.Kafka.Topics[event] = v
		}
	}

	setInt(&cfg.Websocket.SendBuffer, "WS_SEND_BUFFER")
	setInt64(&cfg.Websocket.ReadLimit, "WS_READ_LIMIT")
	setDuration(&cfg.Websocket.PongWait, "WS_PONG_WAIT")
	setDuration(&cfg.Websocket.PingPeriod, "WS_PING_PERIOD")
	if origins := splitList(os.Getenv("WS_ALLOWED_ORIGINS")); len(origins) > 0 {
		cfg.Websocket.AllowedOrigins = origins
	}

	setString(&cfg.Uploads.Directory, "UPLOAD_DIR")
	setString(&cfg.Uploads.BaseURL, "UPLOAD_BASE_URL")
	setInt64(&cfg.Uploads.MaxBytes, "UPLOAD_MAX_BYTES")

	setString(&cfg.Tracing.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.Tracing.ServiceName, "OTEL_SERVICE_NAME")
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Security.JWTSecret) == "" && strings.TrimSpace(c.Security.JWTPublicKey) == "" {
		return ErrMissingJWTKey
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedDriver, c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.URL) == "" {
		return ErrMissingDatabaseURL
	}
	if c.Websocket.PingPeriod >= c.Websocket.PongWait {
		c.Websocket.PingPeriod = c.Websocket.PongWait * 9 / 10
	}
	if c.Websocket.SendBuffer <= 0 {
		c.Websocket.SendBuffer = 16
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
