package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	VectorStore VectorStoreConfig
	Ai          AIConfig
	Cluster     ClusterConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	EventBus           string // "nats" or "memory"
	EventMaxRetries    int
	EventRetryInterval time.Duration
	JwtSecret          string
}

type DatabaseConfig struct {
	Connection string
	Store      string // "postgres" or "memory"
}

type VectorStoreConfig struct {
	Provider       string // "qdrant" or "pgvector"
	QdrantHost     string
	QdrantPort     int
	QdrantAPIKey   string
	QdrantUseTLS   bool
	Dimension      int // 0 infers from the stored vectors
	PageSize       int
	RequestTimeout time.Duration
}

type AIConfig struct {
	LLMProvider   string // "ollama", "langchain", "huggingface" or "none"
	LLMAPIKey     string
	LLMBaseURL    string
	LLMModel      string
	NamingTimeout time.Duration
}

type ClusterConfig struct {
	MaxIterations         int
	ConvergenceThreshold  float64
	DefaultMaxClusters    int
	DefaultMinClusterSize int
	BridgeThreshold       float64
	LockTTL               time.Duration
	SuggestionTTL         time.Duration
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "app.log.csv"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			EventBus:           getEnv("EVENT_BUS", "nats"),
			EventMaxRetries:    getEnvAsInt("EVENT_MAX_RETRIES", 5),
			EventRetryInterval: getEnvAsDuration("EVENT_RETRY_INTERVAL", 200*time.Millisecond),
			JwtSecret:          getEnv("JWT_SECRET", ""),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
			Store:      getEnv("CLUSTER_STORE", "postgres"),
		},
		VectorStore: VectorStoreConfig{
			Provider:       getEnv("VECTOR_STORE_PROVIDER", "qdrant"),
			QdrantHost:     getEnv("QDRANT_HOST", "localhost"),
			QdrantPort:     getEnvAsInt("QDRANT_PORT", 6334),
			QdrantAPIKey:   getEnv("QDRANT_API_KEY", ""),
			QdrantUseTLS:   getEnvAsBool("QDRANT_USE_TLS", false),
			Dimension:      getEnvAsInt("VECTOR_DIMENSION", 0),
			PageSize:       getEnvAsInt("VECTOR_PAGE_SIZE", 1000),
			RequestTimeout: getEnvAsDuration("VECTOR_REQUEST_TIMEOUT", 30*time.Second),
		},
		Ai: AIConfig{
			LLMProvider:   getEnv("LLM_PROVIDER", "none"),
			LLMAPIKey:     getEnv("LLM_API_KEY", ""),
			LLMBaseURL:    getEnv("LLM_BASE_URL", "http://localhost:11434"),
			LLMModel:      getEnv("LLM_MODEL", "llama3"),
			NamingTimeout: getEnvAsDuration("LLM_NAMING_TIMEOUT", 10*time.Second),
		},
		Cluster: ClusterConfig{
			MaxIterations:         getEnvAsInt("KMEANS_MAX_ITERATIONS", 50),
			ConvergenceThreshold:  getEnvAsFloat("KMEANS_CONVERGENCE_THRESHOLD", 1e-3),
			DefaultMaxClusters:    getEnvAsInt("CLUSTER_DEFAULT_MAX_CLUSTERS", 5),
			DefaultMinClusterSize: getEnvAsInt("CLUSTER_DEFAULT_MIN_SIZE", 3),
			BridgeThreshold:       getEnvAsFloat("CLUSTER_BRIDGE_THRESHOLD", 0.75),
			LockTTL:               getEnvAsDuration("CLUSTER_LOCK_TTL", 30*time.Second),
			SuggestionTTL:         getEnvAsDuration("CLUSTER_SUGGESTION_TTL", 7*24*time.Hour),
		},
	}
}

// Validate reports every out-of-range setting at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(oneOf(c.App.EventBus, "nats", "memory"), "EVENT_BUS must be nats or memory, got %q", c.App.EventBus)
	check(c.App.EventMaxRetries >= 0, "EVENT_MAX_RETRIES must not be negative")
	check(c.App.EventRetryInterval > 0, "EVENT_RETRY_INTERVAL must be positive")
	check(oneOf(c.Database.Store, "postgres", "memory"), "CLUSTER_STORE must be postgres or memory, got %q", c.Database.Store)
	check(c.Database.Store != "postgres" || c.Database.Connection != "", "DB_CONNECTION_STRING is required for the postgres store")
	check(oneOf(c.VectorStore.Provider, "qdrant", "pgvector"), "VECTOR_STORE_PROVIDER must be qdrant or pgvector, got %q", c.VectorStore.Provider)
	check(c.VectorStore.Provider != "pgvector" || c.Database.Connection != "", "DB_CONNECTION_STRING is required for pgvector")
	check(c.VectorStore.QdrantPort > 0 && c.VectorStore.QdrantPort < 65536, "QDRANT_PORT out of range: %d", c.VectorStore.QdrantPort)
	check(c.VectorStore.Dimension >= 0, "VECTOR_DIMENSION must not be negative")
	check(c.VectorStore.PageSize > 0, "VECTOR_PAGE_SIZE must be positive")
	check(c.VectorStore.RequestTimeout > 0, "VECTOR_REQUEST_TIMEOUT must be positive")
	check(oneOf(c.Ai.LLMProvider, "ollama", "langchain", "huggingface", "none"), "LLM_PROVIDER is not supported: %q", c.Ai.LLMProvider)
	check(c.Ai.LLMProvider != "huggingface" || c.Ai.LLMAPIKey != "", "LLM_API_KEY is required for huggingface")
	check(c.Cluster.MaxIterations > 0, "KMEANS_MAX_ITERATIONS must be positive")
	check(c.Cluster.ConvergenceThreshold > 0, "KMEANS_CONVERGENCE_THRESHOLD must be positive")
	check(c.Cluster.DefaultMaxClusters > 0, "CLUSTER_DEFAULT_MAX_CLUSTERS must be positive")
	check(c.Cluster.DefaultMinClusterSize > 0, "CLUSTER_DEFAULT_MIN_SIZE must be positive")
	check(c.Cluster.BridgeThreshold > 0 && c.Cluster.BridgeThreshold <= 1, "CLUSTER_BRIDGE_THRESHOLD must be in (0, 1]")
	check(c.Cluster.LockTTL > 0, "CLUSTER_LOCK_TTL must be positive")
	check(c.Cluster.SuggestionTTL > 0, "CLUSTER_SUGGESTION_TTL must be positive")
	if c.IsProduction() {
		check(c.App.JwtSecret != "", "JWT_SECRET is required in production")
	}

	return errors.Join(errs...)
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("30s") or plain seconds.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
