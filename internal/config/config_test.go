package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CLUSTER_STORE", "memory")
	t.Setenv("DB_CONNECTION_STRING", "")

	cfg := Load()

	assert.Equal(t, "memory", cfg.Database.Store)
	assert.Equal(t, "qdrant", cfg.VectorStore.Provider)
	assert.Equal(t, 6334, cfg.VectorStore.QdrantPort)
	assert.Equal(t, 50, cfg.Cluster.MaxIterations)
	assert.InDelta(t, 1e-3, cfg.Cluster.ConvergenceThreshold, 1e-12)
	assert.Equal(t, 5, cfg.Cluster.DefaultMaxClusters)
	assert.Equal(t, 3, cfg.Cluster.DefaultMinClusterSize)
	assert.InDelta(t, 0.75, cfg.Cluster.BridgeThreshold, 1e-12)
	assert.Equal(t, 30*time.Second, cfg.Cluster.LockTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Cluster.SuggestionTTL)
	assert.Equal(t, 5, cfg.App.EventMaxRetries)
	assert.Equal(t, 200*time.Millisecond, cfg.App.EventRetryInterval)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CLUSTER_LOCK_TTL", "45")
	t.Setenv("CLUSTER_SUGGESTION_TTL", "2h")
	t.Setenv("QDRANT_USE_TLS", "true")
	t.Setenv("CLUSTER_BRIDGE_THRESHOLD", "0.9")
	t.Setenv("VECTOR_PAGE_SIZE", "not-a-number")

	cfg := Load()

	assert.Equal(t, 45*time.Second, cfg.Cluster.LockTTL)
	assert.Equal(t, 2*time.Hour, cfg.Cluster.SuggestionTTL)
	assert.True(t, cfg.VectorStore.QdrantUseTLS)
	assert.InDelta(t, 0.9, cfg.Cluster.BridgeThreshold, 1e-12)
	assert.Equal(t, 1000, cfg.VectorStore.PageSize)
}

func TestValidate(t *testing.T) {
	t.Setenv("CLUSTER_STORE", "memory")
	t.Setenv("LLM_PROVIDER", "none")

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantMsg string
	}{
		{"unknown bus", func(c *Config) { c.App.EventBus = "kafka" }, "EVENT_BUS"},
		{"postgres without dsn", func(c *Config) { c.Database.Store = "postgres"; c.Database.Connection = "" }, "DB_CONNECTION_STRING"},
		{"bridge threshold above one", func(c *Config) { c.Cluster.BridgeThreshold = 1.5 }, "CLUSTER_BRIDGE_THRESHOLD"},
		{"negative event retries", func(c *Config) { c.App.EventMaxRetries = -1 }, "EVENT_MAX_RETRIES"},
		{"negative dimension", func(c *Config) { c.VectorStore.Dimension = -1 }, "VECTOR_DIMENSION"},
		{"huggingface without key", func(c *Config) { c.Ai.LLMProvider = "huggingface" }, "LLM_API_KEY"},
		{"production without secret", func(c *Config) { c.App.Environment = "production"; c.App.JwtSecret = "" }, "JWT_SECRET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			cfg.Database.Connection = ""
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}
