package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "duewatch", cfg.App.Name)
	assert.Equal(t, []string{"nats://127.0.0.1:4222"}, cfg.NATS.URLs)
	assert.Equal(t, 90, cfg.Classifier.ServiceThresholdDays)
	assert.Equal(t, 30, cfg.Classifier.PlanThresholdDays)
	assert.Equal(t, "/planes-mejora", cfg.Backend.Endpoints.PlanesMejora)
	assert.Equal(t, 30*24*time.Hour, cfg.Schedule.Retention)
	assert.Equal(t, 3, cfg.Backend.MaxAttempts)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
app:
  name: duewatch-test
nats:
  urls:
    - nats://nats-1:4222
    - nats://nats-2:4222
  reconnect_wait: 5s
backend:
  base_url: https://sogc.example.org/api
  timeout: 30s
  endpoints:
    servicios: /v2/servicios
classifier:
  service_threshold_days: 60
schedule:
  evaluate: "0 0 * * * *"
storage:
  path: /var/lib/duewatch/history.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "duewatch-test", cfg.App.Name)
	assert.Equal(t, []string{"nats://nats-1:4222", "nats://nats-2:4222"}, cfg.NATS.URLs)
	assert.Equal(t, 5*time.Second, cfg.NATS.ReconnectWait)
	assert.Equal(t, "https://sogc.example.org/api", cfg.Backend.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, "/v2/servicios", cfg.Backend.Endpoints.Servicios)
	assert.Equal(t, "/hallazgos", cfg.Backend.Endpoints.Hallazgos)
	assert.Equal(t, 60, cfg.Classifier.ServiceThresholdDays)
	assert.Equal(t, 30, cfg.Classifier.PlanThresholdDays)
	assert.Equal(t, "0 0 * * * *", cfg.Schedule.Evaluate)
	assert.Equal(t, "/var/lib/duewatch/history.db", cfg.Storage.Path)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DUEWATCH_BACKEND_BASE_URL", "http://backend:9000")
	t.Setenv("DUEWATCH_CLASSIFIER_PLAN_THRESHOLD_DAYS", "15")

	path := writeConfig(t, `
backend:
  base_url: http://ignored
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://backend:9000", cfg.Backend.BaseURL)
	assert.Equal(t, 15, cfg.Classifier.PlanThresholdDays)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Run("bad cron expression", func(t *testing.T) {
		path := writeConfig(t, `
schedule:
  evaluate: "every day"
`)
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "schedule.evaluate")
	})

	t.Run("email without recipients", func(t *testing.T) {
		path := writeConfig(t, `
notify:
  email:
    enabled: true
    host: smtp.example.org
    from: alertas@example.org
`)
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "recipient")
	})

	t.Run("zero attempts", func(t *testing.T) {
		path := writeConfig(t, `
backend:
  max_attempts: 0
`)
		_, err := Load(path)
		require.Error(t, err)
	})
}

func TestLoad_SampleFile(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)

	assert.False(t, cfg.Log.Development)
	assert.Equal(t, "0 */15 * * * *", cfg.Schedule.Evaluate)
	assert.Equal(t, "/autoevaluaciones", cfg.Backend.Endpoints.Autoevaluaciones)
	assert.False(t, cfg.Notify.Email.Enabled)
	assert.Equal(t, []string{"calidad@example.org"}, cfg.Notify.Email.Recipients)
	assert.Equal(t, time.Minute, cfg.Metrics.Interval)
}
