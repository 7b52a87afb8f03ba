// Package config loads and validates application configuration from YAML
// files with environment-variable overrides. It provides typed structs for
// every subsystem (Engine, Postgres, Kafka, Redis, Metrics, Logging).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration for the queryd daemon.
// The batch cmd/query driver does not read it; it takes its settings from
// command-line flags.
type Config struct {
	Engine   EngineConfig   `yaml:"engine"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// EngineConfig controls index loading and per-query execution limits.
type EngineConfig struct {
	IndexDir                    string  `yaml:"indexDir"`
	IndexVersion                int     `yaml:"indexVersion"`
	TopK                        int     `yaml:"topK"`
	AccumulatorWidth            uint    `yaml:"accumulatorWidth"`
	AccumulatorPolicy           string  `yaml:"accumulatorPolicy"`
	Parser                      string  `yaml:"parser"`
	PostingsToProcess           int64   `yaml:"postingsToProcess"`
	PostingsToProcessProportion float64 `yaml:"postingsToProcessProportion"`
	PostingsToProcessMin        int64   `yaml:"postingsToProcessMin"`
	OracleFile                  string  `yaml:"oracleFile"`
	Threads                     int     `yaml:"threads"`
	Tag                         string  `yaml:"tag"`
}

// PostgresConfig holds PostgreSQL connection parameters for the run archive.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings for the streaming query
// source/sink used by the daemon.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	QueryStream  string `yaml:"queryStream"`
	ResultStream string `yaml:"resultStream"`
}

// RedisConfig holds Redis connection and caching parameters for the
// query-result cache. OracleTTL is not read by cmd/queryd, which has no
// oracle cache.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	PoolSize  int           `yaml:"poolSize"`
	ResultTTL time.Duration `yaml:"resultTTL"`
	OracleTTL time.Duration `yaml:"oracleTTL"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// defaultConfig returns a Config with the driver's documented CLI defaults.
func defaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			IndexDir:                    ".",
			IndexVersion:                2,
			TopK:                        10,
			AccumulatorWidth:            16,
			AccumulatorPolicy:           "dense",
			Parser:                      "query",
			PostingsToProcess:           0,
			PostingsToProcessProportion: 1.0,
			PostingsToProcessMin:        0,
			Threads:                     1,
			Tag:                         "impactrank",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "impactrank",
			User:            "impactrank",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "impactrank-group",
			Topics: KafkaTopics{
				QueryStream:  "query-stream",
				ResultStream: "result-stream",
			},
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			Password:  "",
			DB:        0,
			PoolSize:  10,
			ResultTTL: 60 * time.Second,
			OracleTTL: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads IR_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("IR_ENGINE_INDEX_DIR"); v != "" {
		cfg.Engine.IndexDir = v
	}
	if v := os.Getenv("IR_ENGINE_INDEX_VERSION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.IndexVersion = n
		}
	}
	if v := os.Getenv("IR_ENGINE_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.TopK = n
		}
	}
	if v := os.Getenv("IR_ENGINE_ACCUMULATOR_WIDTH"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.Engine.AccumulatorWidth = uint(n)
		}
	}
	if v := os.Getenv("IR_ENGINE_ACCUMULATOR_POLICY"); v != "" {
		cfg.Engine.AccumulatorPolicy = v
	}
	if v := os.Getenv("IR_ENGINE_PARSER"); v != "" {
		cfg.Engine.Parser = v
	}
	if v := os.Getenv("IR_ENGINE_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.Threads = n
		}
	}
	if v := os.Getenv("IR_ENGINE_ORACLE_FILE"); v != "" {
		cfg.Engine.OracleFile = v
	}
	if v := os.Getenv("IR_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("IR_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("IR_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("IR_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("IR_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("IR_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("IR_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("IR_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("IR_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("IR_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("IR_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("IR_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
