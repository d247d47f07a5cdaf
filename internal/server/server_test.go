package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morinonusi421/nexustrade-line/internal/config"
	"github.com/morinonusi421/nexustrade-line/internal/dedupe"
	"github.com/morinonusi421/nexustrade-line/pkg/logger"
)

// unconfiguredConfig はLINEの認証情報が無い設定
func unconfiguredConfig(t *testing.T) *config.Config {
	return &config.Config{
		Port: "0",
		Log:  config.LogConfig{Level: "error", Format: "json"},
		LINE: config.LINEConfig{HTTPTimeout: time.Second},
		Retry: config.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   10 * time.Millisecond,
			MaxDelay:    50 * time.Millisecond,
			Deadline:    time.Second,
		},
		Batch: config.BatchConfig{Size: 500},
		Webhook: config.WebhookConfig{
			MaxEvents:      100,
			Workers:        1,
			QueueSize:      8,
			HandlerTimeout: time.Second,
		},
		Database: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "server.db")},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	log := logger.New(logger.Options{Level: "error", Output: io.Discard})
	s, err := New(context.Background(), cfg, log, Options{})
	require.NoError(t, err)
	t.Cleanup(func() {
		s.Shutdown(context.Background())
	})
	return s.Handler()
}

func TestServer_Unconfigured(t *testing.T) {
	h := newTestServer(t, unconfiguredConfig(t))

	t.Run("ヘルスチェックは未設定でも200", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, false, body["configured"])
	})

	t.Run("Webhookは503", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"events":[]}`))
		req.Header.Set("X-Line-Signature", "c2ln")
		h.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})

	t.Run("API_TOKEN未設定なら内部APIは503", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/line/status", nil)
		req.Header.Set("Authorization", "Bearer anything")
		h.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})

	t.Run("メトリクスを公開する", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "go_goroutines")
	})
}

func TestServer_UnconfiguredSendIsConfigurationError(t *testing.T) {
	cfg := unconfiguredConfig(t)
	cfg.API.Token = "secret"
	h := newTestServer(t, cfg)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/line/send",
		strings.NewReader(`{"to":"U4af4980629abcdef0123456789abcdef","text":"hi"}`))
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var body struct {
		Success bool              `json:"success"`
		Error   map[string]string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "configuration", body.Error["type"])
}

func TestServer_UnreachableRedisIsNotFatal(t *testing.T) {
	cfg := unconfiguredConfig(t)
	cfg.Redis.URL = "redis://127.0.0.1:1/0"
	cfg.Webhook.DedupeTTL = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	log := logger.New(logger.Options{Level: "error", Output: io.Discard})
	s, err := New(ctx, cfg, log, Options{})
	require.NoError(t, err)
	defer s.Shutdown(context.Background())

	assert.Nil(t, s.redis)
}

func TestServer_Ready(t *testing.T) {
	readyBody := func(t *testing.T, h http.Handler) (int, map[string]any) {
		t.Helper()
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))
		var body map[string]any
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		return rr.Code, body
	}

	t.Run("Redisなしならデータベースだけ確認する", func(t *testing.T) {
		h := newTestServer(t, unconfiguredConfig(t))

		code, body := readyBody(t, h)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ready", body["status"])
		assert.Equal(t, map[string]any{"database": "ok", "redis": "disabled"}, body["checks"])
	})

	t.Run("Redisに届かなければ503", func(t *testing.T) {
		log := logger.New(logger.Options{Level: "error", Output: io.Discard})
		s, err := New(context.Background(), unconfiguredConfig(t), log, Options{})
		require.NoError(t, err)
		defer s.Shutdown(context.Background())

		client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
		defer client.Close()
		s.guard = dedupe.NewGuard(client, time.Minute)

		code, body := readyBody(t, s.Handler())
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "not_ready", body["status"])
		assert.Equal(t, map[string]any{"database": "ok", "redis": "unavailable"}, body["checks"])
	})

	t.Run("データベースが閉じていれば503", func(t *testing.T) {
		log := logger.New(logger.Options{Level: "error", Output: io.Discard})
		s, err := New(context.Background(), unconfiguredConfig(t), log, Options{})
		require.NoError(t, err)
		require.NoError(t, s.Close())
		defer s.Shutdown(context.Background())

		code, body := readyBody(t, s.Handler())
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "closed", body["checks"].(map[string]any)["database"])
	})
}
