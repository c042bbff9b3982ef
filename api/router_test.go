package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/racefetch/cleaner"
	"github.com/use-agent/racefetch/config"
	"github.com/use-agent/racefetch/engine"
	"github.com/use-agent/racefetch/webhook"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	d, err := engine.NewDispatcher([]engine.Strategy{
		engine.StrategyFunc{ID: "direct", Fn: func(context.Context, string) (string, error) {
			return `{"ok":true}`, nil
		}},
	}, engine.RaceConfig{}, nil)
	require.NoError(t, err)

	cfg := config.Load()
	cfg.Server.Mode = "test"
	cfg.Auth = config.AuthConfig{Enabled: true, APIKeys: []string{"key"}}
	cfg.RateLimit.RequestsPerSecond = 0
	return NewRouter(d, cleaner.NewCleaner(), webhook.NewNotifier(), nil, cfg, time.Now())
}

func TestRouter_HealthIsPublic(t *testing.T) {
	w := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"direct"`)
}

func TestRouter_AcquireNeedsKey(t *testing.T) {
	r := newTestRouter(t)
	body := `{"url":"https://example.com/data.json","gate":"json"}`

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/acquire", strings.NewReader(body)))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/acquire", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", "key")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"strategy":"direct"`)
}
