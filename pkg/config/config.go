package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"FinHybrid/internal/services/hybrid"
	"FinHybrid/pkg/logger"
	"FinHybrid/pkg/util"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment  string        `yaml:"environment" default:"development" validate:"oneof=development staging production test"`
	Server       Server        `yaml:"server"`
	Metrics      Metrics       `yaml:"metrics"`
	Logging      logger.Config `yaml:"logging"`
	Model        hybrid.Config `yaml:"model"`
	PatternsFile string        `yaml:"patterns_file"`
	Temporal     Temporal      `yaml:"temporal"`
	Training     Training      `yaml:"training"`
	Redis        Redis         `yaml:"redis"`
	ClickHouse   ClickHouse    `yaml:"clickhouse"`
	Kafka        Kafka         `yaml:"kafka"`
}

type Server struct {
	Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	RateLimit       float64       `yaml:"rate_limit" default:"20" validate:"gte=0"` // requests per second per client, 0 disables
	RateBurst       int           `yaml:"rate_burst" default:"40" validate:"gte=0"`
	CORSOrigins     []string      `yaml:"cors_origins" default:"[\"*\"]"`
}

type Metrics struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

// Temporal selects the sequence-model adapter. "local" uses the built-in heuristic, "http" a remote service.
type Temporal struct {
	Mode      string        `yaml:"mode" default:"local" validate:"oneof=local http"`
	URL       string        `yaml:"url" validate:"required_if=Mode http"`
	Timeout   time.Duration `yaml:"timeout" default:"5s"`
	Retries   int           `yaml:"retries" default:"2" validate:"gte=0,lte=10"`
	Backoff   time.Duration `yaml:"backoff" default:"200ms"`
	Cache     string        `yaml:"cache" default:"memory" validate:"oneof=none memory redis layered"`
	CacheTTL  time.Duration `yaml:"cache_ttl" default:"30s"`
	CacheSize int           `yaml:"cache_size" default:"1024" validate:"gte=1"`
}

// Training bounds background jobs. LockTTL is the lease of the cross-replica lock; a running job
// renews it every LockTTL/3, so a crashed replica frees the lock after at most LockTTL.
type Training struct {
	LockTTL time.Duration `yaml:"lock_ttl" default:"1m" validate:"min=3s"`
	Timeout time.Duration `yaml:"timeout" default:"1h" validate:"gt=0"`
}

type Redis struct {
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size" default:"10" validate:"gte=1"`
	Prefix   string `yaml:"prefix" default:"finhybrid"`
}

type ClickHouse struct {
	Enabled          bool          `yaml:"enabled"`
	InitSchema       bool          `yaml:"init_schema"`
	Host             string        `yaml:"host" default:"localhost" validate:"required_if=Enabled true"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"finhybrid"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
}

type Kafka struct {
	Enabled       bool     `yaml:"enabled"`
	Brokers       []string `yaml:"brokers" validate:"required_if=Enabled true"`
	SignalTopic   string   `yaml:"signal_topic" default:"finhybrid.signals"`
	FeaturesTopic string   `yaml:"features_topic" default:"finhybrid.features"`
	RequiredAcks  int      `yaml:"required_acks" default:"-1"`
	Compression   string   `yaml:"compression" default:"snappy" validate:"oneof=gzip snappy lz4 zstd"`
	Producer      struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		Linger       time.Duration `yaml:"linger" default:"50ms"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
	} `yaml:"producer"`
	Consumer struct {
		GroupID    string        `yaml:"group_id" default:"finhybrid"`
		Workers    int           `yaml:"workers" default:"2" validate:"gte=1"`
		BufferSize int           `yaml:"buffer_size" default:"64"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
		DLQTopic   string        `yaml:"dlq_topic"`
		MinBytes   int           `yaml:"min_bytes" default:"10000"`
		MaxBytes   int           `yaml:"max_bytes" default:"10000000"`
	} `yaml:"consumer"`
}

var validate = validator.New()

// Default returns a configuration with every default applied.
func Default() (*Config, error) {
	c := &Config{Model: hybrid.DefaultConfig()}
	if err := defaults.Set(c); err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}
	return c, nil
}

// Parse applies defaults, then overlays YAML from b.
func Parse(b []byte) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	c, err := Parse(b)
	if err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv preloads .env (if present), loads path and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := Parse(b)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("FINHYBRID_ENV"); v != "" {
		c.Environment = v
	}
	if v := getenv("HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HTTP_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := getenv("PATTERNS_FILE"); v != "" {
		c.PatternsFile = v
	}
	if v := getenv("TEMPORAL_MODE"); v != "" {
		c.Temporal.Mode = v
	}
	if v := getenv("TEMPORAL_URL"); v != "" {
		c.Temporal.URL = v
	}
	if v := getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	c.Redis.DB = util.ParseIntDefault(getenv("REDIS_DB"), c.Redis.DB)
	c.ClickHouse.Enabled = util.ParseBoolDefault(getenv("CLICKHOUSE_ENABLED"), c.ClickHouse.Enabled)
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	c.Kafka.Enabled = util.ParseBoolDefault(getenv("KAFKA_ENABLED"), c.Kafka.Enabled)
	if v := util.SplitList(getenv("KAFKA_BROKERS")); len(v) > 0 {
		c.Kafka.Brokers = v
	}
	if v := getenv("KAFKA_SIGNAL_TOPIC"); v != "" {
		c.Kafka.SignalTopic = v
	}
	return nil
}

// Validate checks field ranges and the model configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if err := c.Model.Validate(); err != nil {
		return fmt.Errorf("model: %w", err)
	}
	if c.Temporal.URL != "" {
		if err := validate.Var(c.Temporal.URL, "url"); err != nil {
			return fmt.Errorf("temporal.url: %w", err)
		}
	}
	if c.Temporal.Cache == "redis" || c.Temporal.Cache == "layered" {
		if c.Redis.Host == "" {
			return fmt.Errorf("temporal.cache=%s requires redis.host", c.Temporal.Cache)
		}
	}
	return nil
}
