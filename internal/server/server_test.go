package server

import (
	"context"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"cluster-intelligence-be/internal/bootstrap"
	"cluster-intelligence-be/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		App: config.AppConfig{
			Port:               "0",
			Environment:        "test",
			LogFilePath:        filepath.Join(t.TempDir(), "app.log"),
			CorsAllowedOrigins: "*",
			EventBus:           "memory",
			JwtSecret:          testSecret,
		},
		Database:    config.DatabaseConfig{Store: "memory"},
		VectorStore: config.VectorStoreConfig{Provider: "pgvector", PageSize: 100, RequestTimeout: time.Second},
		Ai:          config.AIConfig{LLMProvider: "none"},
		Cluster: config.ClusterConfig{
			MaxIterations:         10,
			ConvergenceThreshold:  1e-3,
			DefaultMaxClusters:    5,
			DefaultMinClusterSize: 3,
			BridgeThreshold:       0.75,
			LockTTL:               time.Second,
			SuggestionTTL:         time.Hour,
		},
	}

	container := bootstrap.NewContainer(nil, cfg)
	t.Cleanup(container.Close)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, container.ConsumerService.Consume(ctx))

	return New(cfg, container)
}

func bearer(t *testing.T, userId uuid.UUID) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userId.String(),
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func TestServer_Wiring(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.GetApp().Test(httptest.NewRequest("GET", "/healthz", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = srv.GetApp().Test(httptest.NewRequest("GET", "/metrics", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "go_goroutines")

	resp, err = srv.GetApp().Test(httptest.NewRequest("GET", "/api/cluster/v1", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)

	req := httptest.NewRequest("GET", "/api/cluster/v1", nil)
	req.Header.Set("Authorization", bearer(t, uuid.New()))
	resp, err = srv.GetApp().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	// No vector store is configured, so bridge detection reports the
	// collaborator as unavailable.
	req = httptest.NewRequest("GET", "/api/cluster/v1/bridge-documents", nil)
	req.Header.Set("Authorization", bearer(t, uuid.New()))
	resp, err = srv.GetApp().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 502, resp.StatusCode)
}
