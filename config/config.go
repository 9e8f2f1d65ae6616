package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v4"
)

type Config struct {
	Ship24     Ship24Config     `yaml:"ship24"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Batch      BatchConfig      `yaml:"batch"`
	Storage    StorageConfig    `yaml:"storage"`
	Database   DatabaseConfig   `yaml:"database"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	TrackBatch TrackBatchConfig `yaml:"trackbatch"`
}

type Ship24Config struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	// UseFake switches to the offline carrier; also used when APIKey is empty.
	UseFake bool `yaml:"use_fake"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	// Shared limiter in Redis so several processes stay under one API quota.
	RedisEnabled bool   `yaml:"redis_enabled"`
	RedisPrefix  string `yaml:"redis_prefix"`
}

type BatchConfig struct {
	ChunkSize int `yaml:"chunk_size"`
	PauseMS   int `yaml:"pause_ms"`
}

type StorageConfig struct {
	Backend     string `yaml:"backend"` // "file" | "postgres"
	NumbersFile string `yaml:"numbers_file"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (c DatabaseConfig) ConnString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Username, c.Password, c.Host, c.Port, c.DBName, sslMode)
}

type KafkaConfig struct {
	Host                     string `yaml:"host"`
	Port                     int    `yaml:"port"`
	TrackingUpdatedTopicName string `yaml:"tracking_updated_topic_name"`
}

func (c KafkaConfig) Brokers() []string {
	return []string{fmt.Sprintf("%s:%d", c.Host, c.Port)}
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type TrackBatchConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`
	LogLevel           string `yaml:"log_level"`
	LogFormat          string `yaml:"log_format"` // "json" | "text"

	WorkerPollIntervalSeconds int    `yaml:"worker_poll_interval_seconds"`
	WorkerBatchSize           int    `yaml:"worker_batch_size"`
	WorkerHTTPAddr            string `yaml:"worker_http_addr"`

	// Worker scheduling (optional). If not set, defaults are "prod-like" minutes/hours:
	// in transit: 30..120 minutes, unknown: 90 minutes, backoff: 5/15/30/60 minutes.
	WorkerNextCheckInTransitMinSeconds int `yaml:"worker_next_check_in_transit_min_seconds"`
	WorkerNextCheckInTransitMaxSeconds int `yaml:"worker_next_check_in_transit_max_seconds"`
	WorkerNextCheckUnknownSeconds      int `yaml:"worker_next_check_unknown_seconds"`
	WorkerBackoff1Seconds              int `yaml:"worker_backoff_1_seconds"`
	WorkerBackoff2Seconds              int `yaml:"worker_backoff_2_seconds"`
	WorkerBackoff3Seconds              int `yaml:"worker_backoff_3_seconds"`
	WorkerBackoff4Seconds              int `yaml:"worker_backoff_4_seconds"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}

// LoadConfigFromEnv reads .env (if present), then the YAML file, then applies
// environment overrides. An empty filename means env-only.
func LoadConfigFromEnv(filename string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if filename != "" {
		var err error
		cfg, err = LoadConfig(filename)
		if err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("SHIP24_API_KEY"); v != "" {
		cfg.Ship24.APIKey = v
	}
	if v := os.Getenv("SHIP24_BASE_URL"); v != "" {
		cfg.Ship24.BaseURL = v
	}
	if v := os.Getenv("TRACKBATCH_RATE_LIMIT_RPS"); v != "" {
		rps, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid TRACKBATCH_RATE_LIMIT_RPS: %w", err)
		}
		cfg.RateLimit.RequestsPerSecond = rps
	}
	if v := os.Getenv("TRACKBATCH_NUMBERS_FILE"); v != "" {
		cfg.Storage.NumbersFile = v
	}
	if v := os.Getenv("TRACKBATCH_LOG_LEVEL"); v != "" {
		cfg.TrackBatch.LogLevel = v
	}
	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}

	return cfg, nil
}
