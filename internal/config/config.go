package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every setting the backend reads from the environment
type Config struct {
	Env        string
	Port       string
	GinMode    string
	CORSOrigin string
	Version    string

	Database  DatabaseConfig
	Auth      AuthConfig
	Cache     CacheConfig
	Upload    UploadConfig
	Chunking  ChunkingConfig
	Embedding EmbeddingConfig
	Vector    VectorConfig
	LLM       LLMConfig
	RateLimit RateLimitConfig
	Worker    WorkerConfig
	Cleanup   CleanupConfig
}

type DatabaseConfig struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN returns DATABASE_URL when set, otherwise a key/value DSN built from the parts
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode)
}

type AuthConfig struct {
	JWTSecret   string
	TokenExpiry time.Duration
}

type CacheConfig struct {
	RedisURL     string
	DefaultTTL   time.Duration
	LocalSize    int
	AnalysisTTL  time.Duration
	EmbeddingTTL time.Duration
}

type UploadConfig struct {
	Dir               string
	MaxSize           int64
	AllowedExtensions []string
}

type ChunkingConfig struct {
	ChunkSize        int
	ChunkOverlap     int
	MinChunkSize     int
	RespectSentences bool
}

type EmbeddingConfig struct {
	Provider     string // "ollama" or "openai"
	BaseURL      string
	APIKey       string
	Model        string
	Dimension    int
	Timeout      time.Duration
	RequestsPerS float64
}

type VectorConfig struct {
	Backend       string // "pgvector" or "memory"
	TopK          int
	MinSimilarity float64
	QueryChunks   int
}

type LLMConfig struct {
	Provider        string // "ollama" or "anthropic"
	BaseURL         string
	APIKey          string
	Model           string
	Temperature     float64
	MaxTokens       int
	Timeout         time.Duration
	MaxContextChars int
	RequestsPerMin  int
	MaxRetries      int
}

type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	Burst             int
}

type WorkerConfig struct {
	Count     int
	QueueSize int
}

type CleanupConfig struct {
	Interval      time.Duration
	RetentionDays int
	TempMaxAge    time.Duration
}

// Load reads the configuration from the environment, applying defaults
func Load() *Config {
	cfg := &Config{
		Env:        getEnv("ENV", "development"),
		Port:       getEnv("PORT", "8080"),
		GinMode:    getEnv("GIN_MODE", "debug"),
		CORSOrigin: getEnv("CORS_ORIGIN", "http://localhost:5173"),
		Version:    getEnv("APP_VERSION", "1.0.0"),
		Database: DatabaseConfig{
			URL:      os.Getenv("DATABASE_URL"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     getEnv("DB_NAME", "regcheck"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Auth: AuthConfig{
			JWTSecret:   os.Getenv("JWT_SECRET"),
			TokenExpiry: time.Duration(getEnvInt("JWT_EXPIRY_HOURS", 24)) * time.Hour,
		},
		Cache: CacheConfig{
			RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379/0"),
			DefaultTTL:   getEnvSeconds("CACHE_DEFAULT_TTL", 3600),
			LocalSize:    getEnvInt("CACHE_LOCAL_SIZE", 1000),
			AnalysisTTL:  getEnvSeconds("ANALYSIS_CACHE_TTL", 24*3600),
			EmbeddingTTL: getEnvSeconds("EMBEDDING_CACHE_TTL", 3600),
		},
		Upload: UploadConfig{
			Dir:               getEnv("UPLOAD_DIR", "uploads/documents"),
			MaxSize:           int64(getEnvInt("MAX_UPLOAD_SIZE", 25*1024*1024)),
			AllowedExtensions: getEnvList("ALLOWED_FILE_EXTENSIONS", []string{".pdf", ".docx", ".txt"}),
		},
		Chunking: ChunkingConfig{
			ChunkSize:        getEnvInt("CHUNK_SIZE", 512),
			ChunkOverlap:     getEnvInt("CHUNK_OVERLAP", 50),
			MinChunkSize:     getEnvInt("MIN_CHUNK_SIZE", 20),
			RespectSentences: getEnvBool("CHUNK_RESPECT_SENTENCES", true),
		},
		Embedding: EmbeddingConfig{
			Provider:     getEnv("EMBEDDING_PROVIDER", "ollama"),
			BaseURL:      getEnv("EMBEDDING_URL", getEnv("OLLAMA_URL", "http://localhost:11434")),
			APIKey:       os.Getenv("EMBEDDING_API_KEY"),
			Model:        getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
			Dimension:    getEnvInt("EMBEDDING_DIMENSION", 768),
			Timeout:      getEnvSeconds("EMBEDDING_TIMEOUT_SECONDS", 60),
			RequestsPerS: getEnvFloat("EMBEDDING_REQUESTS_PER_SECOND", 10),
		},
		Vector: VectorConfig{
			Backend:       getEnv("VECTOR_STORE", "pgvector"),
			TopK:          getEnvInt("RETRIEVAL_TOP_K", 5),
			MinSimilarity: getEnvFloat("RETRIEVAL_MIN_SIMILARITY", 0.6),
			QueryChunks:   getEnvInt("RETRIEVAL_QUERY_CHUNKS", 8),
		},
		LLM: LLMConfig{
			Provider:        getEnv("LLM_PROVIDER", "ollama"),
			BaseURL:         getEnv("LLM_URL", os.Getenv("OLLAMA_URL")),
			APIKey:          os.Getenv("LLM_API_KEY"),
			Model:           getEnv("LLM_MODEL", "llama3:8b"),
			Temperature:     getEnvFloat("LLM_TEMPERATURE", 0.1),
			MaxTokens:       getEnvInt("LLM_MAX_TOKENS", 2048),
			Timeout:         getEnvSeconds("LLM_TIMEOUT_SECONDS", 300),
			MaxContextChars: getEnvInt("LLM_MAX_CONTEXT_CHARS", 16000),
			RequestsPerMin:  getEnvInt("LLM_REQUESTS_PER_MINUTE", 60),
			MaxRetries:      getEnvInt("UPSTREAM_MAX_RETRIES", 3),
		},
		RateLimit: RateLimitConfig{
			Enabled:           getEnvBool("RATE_LIMIT_ENABLED", true),
			RequestsPerMinute: getEnvInt("RATE_LIMIT_REQUESTS", 100),
			Burst:             getEnvInt("RATE_LIMIT_BURST", 20),
		},
		Worker: WorkerConfig{
			Count:     getEnvInt("WORKER_COUNT", 2),
			QueueSize: getEnvInt("JOB_QUEUE_SIZE", 100),
		},
		Cleanup: CleanupConfig{
			Interval:      getEnvSeconds("CLEANUP_INTERVAL_SECONDS", 3600),
			RetentionDays: getEnvInt("DOCUMENT_RETENTION_DAYS", 0),
			TempMaxAge:    24 * time.Hour,
		},
	}
	return cfg
}

// Validate checks the settings that would otherwise fail later at request time
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" && !c.IsLocal() && c.Env != "test" {
		return fmt.Errorf("JWT_SECRET is required in %s environment", c.Env)
	}
	ch := c.Chunking
	if ch.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive")
	}
	if ch.ChunkOverlap < 0 || ch.ChunkOverlap >= ch.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE)")
	}
	if ch.MinChunkSize <= 0 || ch.MinChunkSize > ch.ChunkSize {
		return fmt.Errorf("MIN_CHUNK_SIZE must be in (0, CHUNK_SIZE]")
	}
	if c.Upload.MaxSize <= 0 {
		return fmt.Errorf("MAX_UPLOAD_SIZE must be positive")
	}
	if c.Worker.Count <= 0 {
		return fmt.Errorf("WORKER_COUNT must be positive")
	}
	if c.Vector.MinSimilarity < 0 || c.Vector.MinSimilarity > 1 {
		return fmt.Errorf("RETRIEVAL_MIN_SIMILARITY must be between 0 and 1")
	}
	return nil
}

// IsLocal reports whether the server runs in a developer setup
func (c *Config) IsLocal() bool {
	return c.Env == "" || c.Env == "local" || c.Env == "development"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Second
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}
