// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Corpus, Retrieval, Redis, Kafka, Postgres, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Corpus    CorpusConfig    `yaml:"corpus"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// CORSOrigins lists origins allowed to call the API from a browser.
	// Empty disables CORS headers.
	CORSOrigins []string `yaml:"corsOrigins"`
	// RateLimit is the number of requests per minute allowed per client
	// address. Zero disables limiting.
	RateLimit int `yaml:"rateLimit"`
}

// CorpusConfig tells the loader where the processed token files and the raw
// texts live, and how queries are preprocessed so they match the corpus.
type CorpusConfig struct {
	ProcessedDir string   `yaml:"processedDir"`
	RawDir       string   `yaml:"rawDir"`
	Extension    string   `yaml:"extension"`
	GoldPath     string   `yaml:"goldPath"`
	Stopwords    []string `yaml:"stopwords"`
	Stemmer      string   `yaml:"stemmer"`
}

// RetrievalConfig holds the default model selection and scoring parameters.
type RetrievalConfig struct {
	Model           string  `yaml:"model"`
	Weighting       string  `yaml:"weighting"`
	Operator        string  `yaml:"operator"`
	DefaultK        int     `yaml:"defaultK"`
	MaxK            int     `yaml:"maxK"`
	K1              float64 `yaml:"k1"`
	B               float64 `yaml:"b"`
	OOVPolicy       string  `yaml:"oovPolicy"`
	Vectorizer      string  `yaml:"vectorizer"`
	SnippetLength   int     `yaml:"snippetLength"`
	ExplainTerms    int     `yaml:"explainTerms"`
	EvalConcurrency int     `yaml:"evalConcurrency"`
	// SlowQuery is the search latency at or above which the request's
	// stage timings are logged.
	SlowQuery time.Duration `yaml:"slowQuery"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	QueryTimeout    time.Duration `yaml:"queryTimeout"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Brokers       []string      `yaml:"brokers"`
	ConsumerGroup string        `yaml:"consumerGroup"`
	Topics        KafkaTopics   `yaml:"topics"`
	BufferSize    int           `yaml:"bufferSize"`
	BatchSize     int           `yaml:"batchSize"`
	FlushInterval time.Duration `yaml:"flushInterval"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	SearchEvents string `yaml:"searchEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
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
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the retrieval core cannot work with.
func (c *Config) Validate() error {
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rateLimit must not be negative, got %d", c.Server.RateLimit)
	}
	r := c.Retrieval
	if r.DefaultK <= 0 {
		return fmt.Errorf("retrieval.defaultK must be positive, got %d", r.DefaultK)
	}
	if r.MaxK < r.DefaultK {
		return fmt.Errorf("retrieval.maxK (%d) must be >= defaultK (%d)", r.MaxK, r.DefaultK)
	}
	if r.K1 < 0 || r.B < 0 || r.B > 1 {
		return fmt.Errorf("bm25 parameters out of range: k1=%v b=%v", r.K1, r.B)
	}
	switch strings.ToLower(strings.TrimSpace(r.Model)) {
	case "", "boolean", "vsm", "bm25":
	default:
		return fmt.Errorf("retrieval.model must be boolean, vsm or bm25, got %q", r.Model)
	}
	switch strings.ToLower(strings.TrimSpace(r.Weighting)) {
	case "", "raw", "sublinear", "tfidf", "tfidf_sublinear":
	default:
		return fmt.Errorf("retrieval.weighting must be raw or sublinear, got %q", r.Weighting)
	}
	switch strings.ToUpper(strings.TrimSpace(r.Operator)) {
	case "", "AND", "OR":
	default:
		return fmt.Errorf("retrieval.operator must be AND or OR, got %q", r.Operator)
	}
	switch r.OOVPolicy {
	case "zero", "smoothed":
	default:
		return fmt.Errorf("retrieval.oovPolicy must be zero or smoothed, got %q", r.OOVPolicy)
	}
	switch r.Vectorizer {
	case "sparse", "vocabulary":
	default:
		return fmt.Errorf("retrieval.vectorizer must be sparse or vocabulary, got %q", r.Vectorizer)
	}
	return nil
}

// defaultConfig returns a Config with defaults suitable for local use against
// a data/processed corpus.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Corpus: CorpusConfig{
			ProcessedDir: "data/processed",
			RawDir:       "data",
			Extension:    ".txt",
		},
		Retrieval: RetrievalConfig{
			Model:           "vsm",
			Weighting:       "raw",
			Operator:        "AND",
			DefaultK:        5,
			MaxK:            100,
			K1:              1.5,
			B:               0.75,
			OOVPolicy:       "zero",
			Vectorizer:      "sparse",
			SnippetLength:   120,
			ExplainTerms:    5,
			EvalConcurrency: 4,
			SlowQuery:       250 * time.Millisecond,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "retrieval",
			User:            "retrieval",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
			QueryTimeout:    5 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "retrieval-analytics",
			Topics: KafkaTopics{
				SearchEvents: "search-events",
			},
			BufferSize:    10000,
			BatchSize:     100,
			FlushInterval: 5 * time.Second,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads SP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SP_SERVER_RATE_LIMIT"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			cfg.Server.RateLimit = limit
		}
	}
	if v := os.Getenv("SP_SERVER_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_CORPUS_PROCESSED_DIR"); v != "" {
		cfg.Corpus.ProcessedDir = v
	}
	if v := os.Getenv("SP_CORPUS_RAW_DIR"); v != "" {
		cfg.Corpus.RawDir = v
	}
	if v := os.Getenv("SP_CORPUS_GOLD_PATH"); v != "" {
		cfg.Corpus.GoldPath = v
	}
	if v := os.Getenv("SP_CORPUS_STEMMER"); v != "" {
		cfg.Corpus.Stemmer = v
	}
	if v := os.Getenv("SP_RETRIEVAL_MODEL"); v != "" {
		cfg.Retrieval.Model = v
	}
	if v := os.Getenv("SP_RETRIEVAL_WEIGHTING"); v != "" {
		cfg.Retrieval.Weighting = v
	}
	if v := os.Getenv("SP_RETRIEVAL_OOV_POLICY"); v != "" {
		cfg.Retrieval.OOVPolicy = v
	}
	if v := os.Getenv("SP_RETRIEVAL_VECTORIZER"); v != "" {
		cfg.Retrieval.Vectorizer = v
	}
	if v := os.Getenv("SP_RETRIEVAL_K1"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Retrieval.K1 = f
		}
	}
	if v := os.Getenv("SP_RETRIEVAL_B"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Retrieval.B = f
		}
	}
	if v := os.Getenv("SP_POSTGRES_ENABLED"); v != "" {
		cfg.Postgres.Enabled = parseBool(v)
	}
	if v := os.Getenv("SP_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SP_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SP_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SP_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SP_KAFKA_ENABLED"); v != "" {
		cfg.Kafka.Enabled = parseBool(v)
	}
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_REDIS_ENABLED"); v != "" {
		cfg.Redis.Enabled = parseBool(v)
	}
	if v := os.Getenv("SP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
