package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/quicksched/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("DATABASE_URL", "postgres://localhost/quicksched")
	t.Setenv("GRAPH_PAGE_ID", "")
	t.Setenv("GRAPH_ACCESS_TOKEN", "")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, "@every 30s", cfg.ReconcileSchedule)
	assert.Equal(t, 4, cfg.ReconcileWorkers)
	assert.Equal(t, 30*time.Minute, cfg.MinScheduleLead)
	assert.Equal(t, "https://graph.facebook.com/v22.0", cfg.GraphBaseURL)
	assert.False(t, cfg.PublishingEnabled())
	assert.False(t, cfg.StatusChecksEnabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/q.db")
	t.Setenv("MIN_SCHEDULE_LEAD", "10m")
	t.Setenv("RECONCILE_WORKERS", "16")
	t.Setenv("GRAPH_BASE_URL", "http://graph.local/v22.0/")
	t.Setenv("GRAPH_PAGE_ID", "123")
	t.Setenv("GRAPH_ACCESS_TOKEN", "token")
	t.Setenv("RETRY_BACKOFF_BASE", "not-a-duration")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, 10*time.Minute, cfg.MinScheduleLead)
	assert.Equal(t, 16, cfg.ReconcileWorkers)
	assert.Equal(t, "http://graph.local/v22.0", cfg.GraphBaseURL)
	assert.Equal(t, 30*time.Second, cfg.RetryBackoffBase, "unparsable values fall back to the default")
	assert.True(t, cfg.PublishingEnabled())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"postgres without url", map[string]string{"STORE_DRIVER": "postgres", "DATABASE_URL": ""}},
		{"unknown driver", map[string]string{"STORE_DRIVER": "mongo"}},
		{"zero workers", map[string]string{"STORE_DRIVER": "sqlite", "RECONCILE_WORKERS": "0"}},
		{"backoff max below base", map[string]string{"STORE_DRIVER": "sqlite", "RETRY_BACKOFF_BASE": "1m", "RETRY_BACKOFF_MAX": "10s"}},
		{"zero item timeout", map[string]string{"STORE_DRIVER": "sqlite", "RECONCILE_ITEM_TIMEOUT": "0"}},
		{"negative graph timeout", map[string]string{"STORE_DRIVER": "sqlite", "GRAPH_TIMEOUT": "-1s"}},
		{"zero asset timeout", map[string]string{"STORE_DRIVER": "sqlite", "ASSET_TIMEOUT": "0s"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}
