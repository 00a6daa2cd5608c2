package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/star/orbstate/internal/celestrak"
	"github.com/star/orbstate/internal/sgp4"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orbstate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "wgs72", cfg.Propagation.Gravity)
	assert.Equal(t, 30.0, cfg.Propagation.ValidityWindowDays)
	assert.Equal(t, celestrak.DefaultBaseURL, cfg.Fetch.BaseURL)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.False(t, cfg.Auth.Enabled)

	pc, err := cfg.PropagationConfig()
	require.NoError(t, err)
	assert.Equal(t, sgp4.WGS72, pc.Gravity)
	assert.Equal(t, 30*24*time.Hour, pc.ValidityWindow)
	assert.Greater(t, pc.Workers, 0)
}

func TestLoadFileOverlay(t *testing.T) {
	path := writeFile(t, `
log:
  level: DEBUG
propagation:
  workers: 3
  gravity: wgs84
  decay_altitude_km: 80
fetch:
  format: json
  timeout: 5s
  retries: 0
dataset:
  sort_by_key: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, slog.LevelDebug, cfg.Log.SlogLevel())
	assert.True(t, cfg.Dataset.SortByKey)
	assert.Equal(t, 5*time.Second, cfg.Fetch.Timeout)

	ac, err := cfg.AssemblerConfig()
	require.NoError(t, err)
	assert.Equal(t, 3, ac.Propagation.Workers)
	assert.Equal(t, sgp4.WGS84, ac.Propagation.Gravity)
	assert.Equal(t, 80.0, ac.Propagation.DecayAltitudeKm)
	assert.True(t, ac.SortByKey)

	opts, err := cfg.ClientOptions()
	require.NoError(t, err)
	assert.Equal(t, celestrak.FormatJSON, opts.Format)
	assert.Equal(t, 0, opts.Retries)
}

func TestEnvironmentWinsOverFile(t *testing.T) {
	path := writeFile(t, "propagation:\n  workers: 3\nserver:\n  addr: \":9000\"\n")
	t.Setenv("ORBSTATE_PROPAGATION_WORKERS", "7")
	t.Setenv("ORBSTATE_PARSE_VERIFY_CHECKSUM", "true")
	t.Setenv("ORBSTATE_SERVER_READ_TIMEOUT", "3s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Propagation.Workers)
	assert.True(t, cfg.Parse.VerifyChecksum)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 3*time.Second, cfg.Server.ReadTimeout)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantMsg string
	}{
		{name: "unknown gravity", yaml: "propagation:\n  gravity: egm96\n", wantMsg: "Propagation.Gravity"},
		{name: "negative decay floor", yaml: "propagation:\n  decay_altitude_km: -1\n", wantMsg: "DecayAltitudeKm"},
		{name: "bad output format", yaml: "output:\n  format: parquet\n", wantMsg: "Output.Format"},
		{name: "auth without token", env: map[string]string{"ORBSTATE_AUTH_ENABLED": "true"}, wantMsg: "Auth.Token"},
		{name: "zero burst", yaml: "fetch:\n  burst: 0\n", wantMsg: "Fetch.Burst"},
		{name: "unknown key", yaml: "propagation:\n  horizon: 600\n", wantMsg: "horizon"},
		{name: "malformed env", env: map[string]string{"ORBSTATE_PROPAGATION_WORKERS": "many"}, wantMsg: "WORKERS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.yaml != "" {
				path = writeFile(t, tt.yaml)
			}
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeFile(t, ""))
	require.NoError(t, err)
	assert.Equal(t, "csv", cfg.Output.Format)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestAuthConfig(t *testing.T) {
	t.Setenv("ORBSTATE_AUTH_ENABLED", "true")
	t.Setenv("ORBSTATE_AUTH_TOKEN", "s3cret")
	cfg, err := Load("")
	require.NoError(t, err)
	ac := cfg.AuthConfig()
	assert.True(t, ac.Enabled)
	assert.Equal(t, "s3cret", ac.Token)
}
