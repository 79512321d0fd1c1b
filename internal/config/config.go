// Package config loads service configuration from a YAML file with optional
// .env / environment overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Metrics MetricsConfig `yaml:"metrics"`
	Redis   RedisConfig   `yaml:"redis"`
	Lock    LockConfig    `yaml:"lock"`
	Storage StorageConfig `yaml:"storage"`
	Kafka   KafkaConfig   `yaml:"kafka"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// RedisConfig lists the independent Redis nodes backing the distributed
// lock. Use an odd number of nodes (>= 3) in production; an empty list runs
// the lock on a single in-process store (degraded mode).
type RedisConfig struct {
	Addrs []string `yaml:"addrs"`
}

type LockConfig struct {
	TTL         Duration `yaml:"ttl"`
	DriftFactor float64  `yaml:"drift_factor"`
	RetryCount  int      `yaml:"retry_count"`
	RetryDelay  Duration `yaml:"retry_delay"`
	RetryJitter Duration `yaml:"retry_jitter"`
}

type StorageConfig struct {
	// Backend is "memory" or "postgres".
	Backend      string `yaml:"backend"`
	PostgresDSN  string `yaml:"postgres_dsn"`
	SeedDemoData bool   `yaml:"seed_demo_data"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Duration decodes YAML values like "200ms" or "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func defaults() Config {
	return Config{
		Server:  ServerConfig{Addr: ":8080"},
		Metrics: MetricsConfig{Addr: ":9090"},
		Lock: LockConfig{
			TTL:         Duration(30 * time.Second),
			DriftFactor: 0.01,
			RetryCount:  -1,
			RetryDelay:  Duration(200 * time.Millisecond),
			RetryJitter: Duration(200 * time.Millisecond),
		},
		Storage: StorageConfig{Backend: "memory"},
		Kafka:   KafkaConfig{Topic: "transaction_completed"},
	}
}

// Load reads the config file at path (skipped when path is empty or the
// file does not exist) and applies environment overrides on top.
func Load(path string) (Config, error) {
	// A .env file is optional; real environment variables win either way.
	_ = godotenv.Load()

	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("reading config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("REDIS_ADDRS"); v != "" {
		cfg.Redis.Addrs = splitList(v)
	}
	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
