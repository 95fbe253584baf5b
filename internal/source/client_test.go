package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/duewatch/internal/config"
	"github.com/t77yq/duewatch/internal/model"
)

func testBackendConfig(baseURL string) config.BackendConfig {
	return config.BackendConfig{
		BaseURL:           baseURL,
		Token:             "secret",
		Timeout:           2 * time.Second,
		MaxAttempts:       3,
		RetryInitialDelay: 10 * time.Millisecond,
		RetryMaxDelay:     20 * time.Millisecond,
		Endpoints: config.EndpointsConfig{
			Habilitaciones:   "/habilitaciones",
			PlanesMejora:     "/planes-mejora",
			Servicios:        "/servicios",
			Autoevaluaciones: "/autoevaluaciones",
			Hallazgos:        "/hallazgos",
		},
	}
}

func TestClient_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/servicios", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":1,"codigo_servicio":"S-1","fecha_vencimiento":"2025-05-01"},
			{"codigo_servicio":"no-id"},
			{"id":2,"codigo_servicio":"S-2"}
		]`))
	}))
	defer srv.Close()

	client := NewClient(testBackendConfig(srv.URL+"/api/"), zaptest.NewLogger(t))

	entities, err := client.Fetch(context.Background(), model.EntityKindServicio)
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, "1", entities[0].ID)
	assert.NotNil(t, entities[0].DueDate)
	assert.Equal(t, "2", entities[1].ID)
	assert.Nil(t, entities[1].DueDate)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"results":[{"id":"h1","estado":"ABIERTO","severidad":"MENOR"}]}`))
	}))
	defer srv.Close()

	client := NewClient(testBackendConfig(srv.URL), zaptest.NewLogger(t))

	entities, err := client.Fetch(context.Background(), model.EntityKindHallazgo)
	require.NoError(t, err)
	assert.Len(t, entities, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(testBackendConfig(srv.URL), zaptest.NewLogger(t))

	_, err := client.Fetch(context.Background(), model.EntityKindPlanMejora)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnexpectedStatus))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_UnknownKind(t *testing.T) {
	client := NewClient(testBackendConfig("http://127.0.0.1:1"), zaptest.NewLogger(t))

	_, err := client.Fetch(context.Background(), "FACTURA")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestExponentialBackoff(t *testing.T) {
	b := &ExponentialBackoff{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}

	assert.Equal(t, 100*time.Millisecond, b.NextRetry(0))
	assert.Equal(t, 200*time.Millisecond, b.NextRetry(1))
	assert.Equal(t, 800*time.Millisecond, b.NextRetry(3))
	assert.Equal(t, time.Second, b.NextRetry(4))
}
