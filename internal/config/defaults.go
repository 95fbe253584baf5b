package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/t77yq/duewatch/internal/classifier"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "duewatch")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", true)

	v.SetDefault("nats.urls", []string{"nats://127.0.0.1:4222"})
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)
	v.SetDefault("nats.connect_timeout", 5*time.Second)
	v.SetDefault("nats.connect_retries", 5)

	v.SetDefault("backend.base_url", "http://127.0.0.1:8000/api")
	v.SetDefault("backend.timeout", 15*time.Second)
	v.SetDefault("backend.max_attempts", 3)
	v.SetDefault("backend.retry_initial_delay", 500*time.Millisecond)
	v.SetDefault("backend.retry_max_delay", 5*time.Second)
	v.SetDefault("backend.endpoints.habilitaciones", "/habilitaciones")
	v.SetDefault("backend.endpoints.planes_mejora", "/planes-mejora")
	v.SetDefault("backend.endpoints.servicios", "/servicios")
	v.SetDefault("backend.endpoints.autoevaluaciones", "/autoevaluaciones")
	v.SetDefault("backend.endpoints.hallazgos", "/hallazgos")

	v.SetDefault("classifier.service_threshold_days", classifier.DefaultServiceThresholdDays)
	v.SetDefault("classifier.plan_threshold_days", classifier.DefaultPlanThresholdDays)

	// every 15 minutes, and history cleanup daily at 03:00
	v.SetDefault("schedule.evaluate", "0 */15 * * * *")
	v.SetDefault("schedule.cleanup", "0 0 3 * * *")
	v.SetDefault("schedule.retention", 30*24*time.Hour)

	v.SetDefault("storage.path", "duewatch.db")

	v.SetDefault("notify.email.enabled", false)
	v.SetDefault("notify.email.port", 587)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.interval", time.Minute)
}
