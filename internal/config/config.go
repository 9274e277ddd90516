package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port           string  `envconfig:"PORT" default:"8080"`
	Debug          bool    `envconfig:"DEBUG" default:"false"`
	Environment    string  `envconfig:"ENVIRONMENT" default:"development"`
	APIToken       string  `envconfig:"API_TOKEN"`
	RateLimitRPS   float64 `envconfig:"RATE_LIMIT_RPS" default:"2"`
	RateLimitBurst int     `envconfig:"RATE_LIMIT_BURST" default:"5"`
	MaxUploadBytes int64   `envconfig:"MAX_UPLOAD_BYTES" default:"50000000"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	DatabaseURL      string `envconfig:"DATABASE_URL" required:"true"`
	DatabaseMaxConns int32  `envconfig:"DATABASE_MAX_CONNS" default:"10"`

	StorageDir  string `envconfig:"STORAGE_DIR" default:"./uploads"`
	TempDir     string `envconfig:"TEMP_DIR"`
	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"meddocs-files"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	ChunkSize    int `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap int `envconfig:"CHUNK_OVERLAP" default:"200"`

	QATopK              int     `envconfig:"QA_TOP_K" default:"5"`
	QAMinSimilarity     float64 `envconfig:"QA_MIN_SIMILARITY" default:"0.3"`
	ReportTopK          int     `envconfig:"REPORT_TOP_K" default:"10"`
	ReportMinSimilarity float64 `envconfig:"REPORT_MIN_SIMILARITY" default:"0.2"`
	HistoryTurns        int     `envconfig:"HISTORY_TURNS" default:"6"`

	VectorBackend string `envconfig:"VECTOR_BACKEND" default:"pgvector"`
	IndexName     string `envconfig:"INDEX_NAME" default:"medical_documents"`
	QdrantHost    string `envconfig:"QDRANT_HOST" default:"localhost"`
	QdrantPort    int    `envconfig:"QDRANT_PORT" default:"6334"`
	QdrantAPIKey  string `envconfig:"QDRANT_API_KEY"`
	QdrantUseTLS  bool   `envconfig:"QDRANT_USE_TLS" default:"false"`

	EmbeddingProvider    string `envconfig:"EMBEDDING_PROVIDER" default:"local"`
	EmbeddingModel       string `envconfig:"EMBEDDING_MODEL" default:"sentence-transformers/all-MiniLM-L6-v2"`
	LocalModelDir        string `envconfig:"LOCAL_MODEL_DIR" default:"./models"`
	OpenAIEmbeddingModel string `envconfig:"OPENAI_EMBEDDING_MODEL" default:"text-embedding-3-small"`
	GeminiEmbeddingModel string `envconfig:"GEMINI_EMBEDDING_MODEL" default:"text-embedding-004"`
	EmbeddingBatchSize   int    `envconfig:"EMBEDDING_BATCH_SIZE" default:"64"`

	GeneratorProvider string  `envconfig:"GENERATOR_PROVIDER" default:"gemini"`
	GoogleAPIKey      string  `envconfig:"GOOGLE_API_KEY"`
	GeminiModel       string  `envconfig:"GEMINI_MODEL" default:"gemini-1.5-flash"`
	OpenAIAPIKey      string  `envconfig:"OPENAI_API_KEY"`
	OpenAIModel       string  `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	Temperature       float32 `envconfig:"TEMPERATURE" default:"0.1"`
	MaxOutputTokens   int32   `envconfig:"MAX_OUTPUT_TOKENS" default:"8192"`

	RedisURL string        `envconfig:"REDIS_URL"`
	LockTTL  time.Duration `envconfig:"LOCK_TTL" default:"10m"`

	DriveCredentialsFile string `envconfig:"GOOGLE_DRIVE_CREDENTIALS_FILE"`
	DriveTokenFile       string `envconfig:"GOOGLE_DRIVE_TOKEN_FILE"`

	WorkerPollInterval time.Duration `envconfig:"WORKER_POLL_INTERVAL" default:"5s"`
	WorkerConcurrency  int           `envconfig:"WORKER_CONCURRENCY" default:"4"`
	JobMaxRetries      int32         `envconfig:"JOB_MAX_RETRIES" default:"3"`

	SentryDSN string `envconfig:"SENTRY_DSN"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("MEDDOCS", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.VectorBackend {
	case "pgvector", "qdrant", "memory":
	default:
		return fmt.Errorf("invalid VECTOR_BACKEND %q", c.VectorBackend)
	}
	switch c.EmbeddingProvider {
	case "local", "openai", "gemini":
	default:
		return fmt.Errorf("invalid EMBEDDING_PROVIDER %q", c.EmbeddingProvider)
	}
	switch c.GeneratorProvider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("invalid GENERATOR_PROVIDER %q", c.GeneratorProvider)
	}
	for name, v := range map[string]float64{
		"QA_MIN_SIMILARITY":     c.QAMinSimilarity,
		"REPORT_MIN_SIMILARITY": c.ReportMinSimilarity,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0, 1], got %v", name, v)
		}
	}
	return nil
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasRedis() bool {
	return c.RedisURL != ""
}

func (c *Config) HasDrive() bool {
	return c.DriveCredentialsFile != "" && c.DriveTokenFile != ""
}

func (c *Config) HasSentry() bool {
	return c.SentryDSN != ""
}

func (c *Config) HasAPIToken() bool {
	return c.APIToken != ""
}
