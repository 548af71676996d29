package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Port      string   `yaml:"port" env:"PORT" env-default:"8081"`
	JWTSecret string   `yaml:"jwt_secret" env:"JWT_SECRET" env-required:"true"`
	LogLevel  string   `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	LogFormat string   `yaml:"log_format" env:"LOG_FORMAT" env-default:"json"`
	Database  Database `yaml:"database"`
	Redis     Redis    `yaml:"redis"`
	Kafka     Kafka    `yaml:"kafka"`
	Cache     Cache    `yaml:"cache"`
	Seckill   Seckill  `yaml:"seckill"`
}

type Database struct {
	User         string `yaml:"user" env:"DB_USER" env-required:"true"`
	Password     string `yaml:"password" env:"DB_PASSWORD" env-required:"true"`
	DatabaseName string `yaml:"database_name" env:"DB_NAME" env-required:"true"`
	Host         string `yaml:"host" env:"DB_HOST" env-default:"localhost"`
	Port         string `yaml:"port" env:"DB_PORT" env-default:"5432"`
	SSLMode      string `yaml:"ssl_mode" env:"DB_SSL_MODE" env-default:"disable"`

	// Connection Pool Settings
	MaxOpenConns           int `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	MaxIdleConns           int `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes" env:"DB_CONN_MAX_LIFETIME" env-default:"30"`
}

func (d *Database) ConnMaxLifetime() time.Duration {
	return time.Duration(d.ConnMaxLifetimeMinutes) * time.Minute
}

func (d *Database) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DatabaseName, d.SSLMode)
}

type Redis struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	PoolSize int    `yaml:"pool_size" env:"REDIS_POOL_SIZE" env-default:"100"`
}

func (r *Redis) GetRedisURL() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

type Kafka struct {
	Brokers    []string `yaml:"brokers" env:"KAFKA_BROKERS" env-default:"localhost:9092" env-separator:","`
	OrderTopic string   `yaml:"order_topic" env:"KAFKA_ORDER_TOPIC" env-default:"voucher-orders"`
	Enabled    bool     `yaml:"enabled" env:"KAFKA_ENABLED" env-default:"false"`

	// Partial batches are flushed after this long
	BatchTimeoutMillis int `yaml:"batch_timeout_ms" env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"10"`
}

func (k *Kafka) BatchTimeout() time.Duration {
	return time.Duration(k.BatchTimeoutMillis) * time.Millisecond
}

type Cache struct {
	ShopTTLMinutes        int `yaml:"shop_ttl_minutes" env:"CACHE_SHOP_TTL_MINUTES" env-default:"30"`
	ShopLogicalTTLSeconds int `yaml:"shop_logical_ttl_seconds" env:"CACHE_SHOP_LOGICAL_TTL_SECONDS" env-default:"20"`
	RebuildWorkers        int `yaml:"rebuild_workers" env:"CACHE_REBUILD_WORKERS" env-default:"10"`
	RebuildQueue          int `yaml:"rebuild_queue" env:"CACHE_REBUILD_QUEUE" env-default:"1024"`
}

func (c *Cache) ShopTTL() time.Duration {
	return time.Duration(c.ShopTTLMinutes) * time.Minute
}

func (c *Cache) ShopLogicalTTL() time.Duration {
	return time.Duration(c.ShopLogicalTTLSeconds) * time.Second
}

type Seckill struct {
	ConsumerGroup   string `yaml:"consumer_group" env:"SECKILL_CONSUMER_GROUP" env-default:"g1"`
	ConsumerName    string `yaml:"consumer_name" env:"SECKILL_CONSUMER_NAME" env-default:""`
	Consumers       int    `yaml:"consumers" env:"SECKILL_CONSUMERS" env-default:"1"`
	BlockSeconds    int    `yaml:"block_seconds" env:"SECKILL_BLOCK_SECONDS" env-default:"2"`
	RecoverySeconds int    `yaml:"recovery_interval_seconds" env:"SECKILL_RECOVERY_INTERVAL" env-default:"60"`
	ClaimIdleSecond int    `yaml:"claim_min_idle_seconds" env:"SECKILL_CLAIM_MIN_IDLE" env-default:"180"`
}

func (s *Seckill) Block() time.Duration {
	return time.Duration(s.BlockSeconds) * time.Second
}

func (s *Seckill) RecoveryInterval() time.Duration {
	return time.Duration(s.RecoverySeconds) * time.Second
}

func (s *Seckill) ClaimMinIdle() time.Duration {
	return time.Duration(s.ClaimIdleSecond) * time.Second
}

// ConsumerID returns the configured consumer name, falling back to the hostname.
func (s *Seckill) ConsumerID() string {
	if s.ConsumerName != "" {
		return s.ConsumerName
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "c1"
	}
	return host
}

func Initialise(configPath string, useEnv bool) (*Config, error) {
	cfg := &Config{}

	if useEnv {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment variables: %w", err)
		}
		return cfg, nil
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := cleanenv.ReadConfig(configPath, cfg); err != nil {
				return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
			}
			return cfg, nil
		}
	}

	// Fallback to environment variables
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment variables: %w", err)
	}

	return cfg, nil
}
