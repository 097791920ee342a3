package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GRAHAM_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "4189", cfg.BCB.Series)
	assert.Equal(t, 2.0, cfg.BCB.RequestsPerSecond)
	assert.Equal(t, filepath.Join(dir, "exports"), cfg.Export.Dir)
	assert.False(t, cfg.Export.S3Enabled())
	assert.Equal(t, filepath.Join(dir, "history.db"), cfg.HistoryPath())
	assert.Equal(t, filepath.Join(dir, "ledger.db"), cfg.LedgerPath())

	assert.Equal(t, 0.5, cfg.Run.SafetyMargin)
	assert.Equal(t, 10000.0, cfg.Run.InitialCapital)
	assert.Equal(t, 10.0, cfg.Run.MinCashMultiplier)
	assert.Equal(t, "cash", cfg.Run.DividendMode)
	assert.Equal(t, "year", cfg.Run.CacheMode)
	assert.Equal(t, "4189", cfg.Run.RateSeries)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("GRAHAM_DATA_DIR", t.TempDir())
	t.Setenv("GO_PORT", "9100")
	t.Setenv("BCB_SERIES", "432")
	t.Setenv("GRAHAM_SAFETY_MARGIN", "0.3")
	t.Setenv("GRAHAM_DIVIDEND_MODE", "REINVEST")
	t.Setenv("EXPORT_S3_BUCKET", "runs")
	t.Setenv("GRAHAM_DEFINITION", "/etc/graham/run.toml")
	t.Setenv("GRAHAM_SCHEDULE", "0 22 * * MON-FRI")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "432", cfg.Run.RateSeries)
	assert.Equal(t, 0.3, cfg.Run.SafetyMargin)
	assert.Equal(t, "reinvest", cfg.Run.DividendMode)
	assert.True(t, cfg.Export.S3Enabled())
	assert.Equal(t, "0 22 * * MON-FRI", cfg.Schedule)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"margin", map[string]string{"GRAHAM_SAFETY_MARGIN": "1"}},
		{"capital", map[string]string{"GRAHAM_INITIAL_CAPITAL": "-5"}},
		{"dividend mode", map[string]string{"GRAHAM_DIVIDEND_MODE": "drip"}},
		{"cache mode", map[string]string{"GRAHAM_CACHE_MODE": "week"}},
		{"schedule", map[string]string{"GRAHAM_RATES_SCHEDULE": "sometimes"}},
		{"schedule without definition", map[string]string{"GRAHAM_SCHEDULE": "@daily"}},
		{"port", map[string]string{"GO_PORT": "70000"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GRAHAM_DATA_DIR", t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
