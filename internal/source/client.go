package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/duewatch/internal/config"
	"github.com/t77yq/duewatch/internal/model"
)

// maxBodySize caps how much of a collection response is read
const maxBodySize = 32 << 20

// Fetcher retrieves the current snapshot of one entity kind
type Fetcher interface {
	Fetch(ctx context.Context, kind model.EntityKind) ([]model.TrackedEntity, error)
}

// Client fetches entity collections from the REST backend
type Client struct {
	logger      *zap.Logger
	httpClient  *http.Client
	baseURL     string
	token       string
	endpoints   map[model.EntityKind]string
	strategy    RetryStrategy
	maxAttempts int
}

// NewClient creates a backend client from configuration
func NewClient(cfg config.BackendConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &Client{
		logger: logger.Named("backend"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		endpoints: map[model.EntityKind]string{
			model.EntityKindHabilitacion:   cfg.Endpoints.Habilitaciones,
			model.EntityKindPlanMejora:     cfg.Endpoints.PlanesMejora,
			model.EntityKindServicio:       cfg.Endpoints.Servicios,
			model.EntityKindAutoevaluacion: cfg.Endpoints.Autoevaluaciones,
			model.EntityKindHallazgo:       cfg.Endpoints.Hallazgos,
		},
		strategy: &ExponentialBackoff{
			InitialDelay: cfg.RetryInitialDelay,
			MaxDelay:     cfg.RetryMaxDelay,
			Multiplier:   2,
		},
		maxAttempts: maxAttempts,
	}
}

// Fetch downloads and adapts the collection of one kind. Records that fail to
// decode are logged and skipped.
func (c *Client) Fetch(ctx context.Context, kind model.EntityKind) ([]model.TrackedEntity, error) {
	path, ok := c.endpoints[kind]
	if !ok || path == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	body, err := c.getWithRetry(ctx, c.baseURL+path)
	if err != nil {
		return nil, err
	}

	raws, err := decodeCollection(body)
	if err != nil {
		return nil, err
	}

	entities := make([]model.TrackedEntity, 0, len(raws))
	for i, raw := range raws {
		e, err := Adapt(kind, raw)
		if err != nil {
			c.logger.Warn("Skipping malformed record",
				zap.String("kind", string(kind)),
				zap.Int("index", i),
				zap.Error(err))
			continue
		}
		entities = append(entities, e)
	}

	c.logger.Debug("Fetched collection",
		zap.String("kind", string(kind)),
		zap.Int("count", len(entities)))

	return entities, nil
}

func (c *Client) getWithRetry(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.strategy.NextRetry(attempt - 1)
			c.logger.Warn("Retrying backend request",
				zap.String("url", url),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(lastErr))

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		body, retryable, err := c.get(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

// get performs one request; retryable marks transport errors and 5xx answers
func (c *Client) get(ctx context.Context, url string) (body []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, !errors.Is(err, context.Canceled), fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode >= 500, fmt.Errorf("%w: %d from %s", ErrUnexpectedStatus, resp.StatusCode, url)
	}
	return body, false, nil
}
