package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/duewatch/internal/classifier"
	"github.com/t77yq/duewatch/internal/clock"
	"github.com/t77yq/duewatch/internal/model"
	"github.com/t77yq/duewatch/internal/notify"
	"github.com/t77yq/duewatch/internal/source"
	"github.com/t77yq/duewatch/internal/storage"
)

const (
	feedStreamName     = "FEEDS"
	FeedLatestSubject  = "feed.latest"
	alertStreamName    = "ALERTS"
	AlertSubjectPrefix = "alert."
)

// Loader provides the entity snapshot for one evaluation
type Loader interface {
	Load(ctx context.Context) (*source.LoadResult, error)
}

// EvaluationStats summarizes evaluator activity
type EvaluationStats struct {
	Runs            int                    `json:"runs"`
	LoadFailures    int                    `json:"load_failures"`
	LastRunAt       time.Time              `json:"last_run_at"`
	LastDuration    time.Duration          `json:"last_duration"`
	LastEntityCount int                    `json:"last_entity_count"`
	LastCounts      map[model.Severity]int `json:"last_counts"`
	NewAlerts       int                    `json:"new_alerts"`
}

// Evaluator periodically turns backend entities into an alert feed and
// publishes it
type Evaluator struct {
	logger   *zap.Logger
	js       nats.JetStreamContext
	loader   Loader
	history  storage.FeedHistoryStorage
	clock    clock.Clock
	opts     classifier.Options
	channels []notify.Channel

	runMu sync.Mutex // serializes Evaluate

	mu     sync.RWMutex
	latest *model.FeedRun
	known  map[string]struct{}
	stats  EvaluationStats
}

// NewEvaluator creates a new evaluator
func NewEvaluator(
	logger *zap.Logger,
	js nats.JetStreamContext,
	loader Loader,
	history storage.FeedHistoryStorage,
	clk clock.Clock,
	opts classifier.Options,
	channels ...notify.Channel,
) *Evaluator {
	return &Evaluator{
		logger:   logger.Named("evaluator"),
		js:       js,
		loader:   loader,
		history:  history,
		clock:    clk,
		opts:     opts,
		channels: channels,
	}
}

// Setup creates the feed and alert streams and restores the last feed from history
func (e *Evaluator) Setup(ctx context.Context) error {
	if err := ensureStream(e.js, &nats.StreamConfig{
		Name:              feedStreamName,
		Subjects:          []string{"feed.latest"},
		Storage:           nats.FileStorage,
		MaxMsgsPerSubject: 10,
	}); err != nil {
		return err
	}
	if err := ensureStream(e.js, &nats.StreamConfig{
		Name:     alertStreamName,
		Subjects: []string{AlertSubjectPrefix + "*"},
		Storage:  nats.FileStorage,
		MaxAge:   7 * 24 * time.Hour,
	}); err != nil {
		return err
	}

	last, err := e.history.Latest(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrFeedRunNotFound) {
			return nil
		}
		return fmt.Errorf("failed to restore last feed: %w", err)
	}

	e.mu.Lock()
	e.latest = last
	e.known = idSet(last.Feed)
	e.mu.Unlock()

	e.logger.Info("Restored last feed",
		zap.String("run_id", last.ID),
		zap.Time("generated_at", last.GeneratedAt),
		zap.Int("alerts", last.Feed.TotalCount))
	return nil
}

func ensureStream(js nats.JetStreamContext, cfg *nats.StreamConfig) error {
	_, err := js.StreamInfo(cfg.Name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to get stream info: %w", err)
	}
	if _, err := js.AddStream(cfg); err != nil {
		return fmt.Errorf("failed to create stream %s: %w", cfg.Name, err)
	}
	return nil
}

// Evaluate loads the current entities, builds the feed, records it and
// publishes the feed plus every alert that was not in the previous feed
func (e *Evaluator) Evaluate(ctx context.Context) (*model.FeedRun, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	started := time.Now()
	reference := e.clock.Now()

	loaded, err := e.loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load entities: %w", err)
	}

	for _, entity := range loaded.Entities {
		if !entity.Kind.Valid() {
			e.logger.Warn("Unrecognized entity kind",
				zap.String("entity_id", entity.ID),
				zap.String("kind", string(entity.Kind)))
		}
	}

	feed, err := classifier.BuildFeed(loaded.Entities, reference, e.opts)
	if err != nil {
		return nil, err
	}

	run := &model.FeedRun{
		ID:          uuid.New().String(),
		GeneratedAt: time.Now().UTC(),
		Reference:   reference,
		EntityCount: len(loaded.Entities),
		Failures:    failureList(loaded.Failures),
		Duration:    time.Since(started),
		Feed:        feed,
	}

	if err := e.history.Store(ctx, run); err != nil {
		e.logger.Error("Failed to store feed run", zap.String("run_id", run.ID), zap.Error(err))
	}

	e.mu.Lock()
	fresh := newAlerts(feed, e.known)
	e.latest = run
	e.known = idSet(feed)
	e.stats.Runs++
	e.stats.LoadFailures += len(loaded.Failures)
	e.stats.LastRunAt = run.GeneratedAt
	e.stats.LastDuration = run.Duration
	e.stats.LastEntityCount = run.EntityCount
	e.stats.LastCounts = feed.CountBySeverity
	e.stats.NewAlerts += len(fresh)
	e.mu.Unlock()

	e.publishFeed(run)
	e.publishAlerts(fresh)
	e.notify(ctx, fresh)

	e.logger.Info("Feed evaluated",
		zap.String("run_id", run.ID),
		zap.Int("entities", run.EntityCount),
		zap.Int("alerts", feed.TotalCount),
		zap.Int("critical", feed.CountBySeverity[model.SeverityCritical]),
		zap.Int("warning", feed.CountBySeverity[model.SeverityWarning]),
		zap.Int("info", feed.CountBySeverity[model.SeverityInfo]),
		zap.Int("new", len(fresh)),
		zap.Int("load_failures", len(loaded.Failures)),
		zap.Duration("duration", run.Duration))

	return run, nil
}

// Latest returns the most recent feed run, nil before the first evaluation
func (e *Evaluator) Latest() *model.FeedRun {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.latest
}

// Stats returns a copy of the evaluator counters
func (e *Evaluator) Stats() EvaluationStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	stats := e.stats
	stats.LastCounts = make(map[model.Severity]int, len(e.stats.LastCounts))
	for k, v := range e.stats.LastCounts {
		stats.LastCounts[k] = v
	}
	return stats
}

func (e *Evaluator) publishFeed(run *model.FeedRun) {
	data, err := json.Marshal(run)
	if err != nil {
		e.logger.Error("Failed to marshal feed run", zap.Error(err))
		return
	}
	if _, err := e.js.Publish(FeedLatestSubject, data, nats.MsgId(run.ID)); err != nil {
		e.logger.Error("Failed to publish feed", zap.String("run_id", run.ID), zap.Error(err))
	}
}

func (e *Evaluator) publishAlerts(alerts []model.AlertRecord) {
	for _, alert := range alerts {
		data, err := json.Marshal(alert)
		if err != nil {
			e.logger.Error("Failed to marshal alert", zap.Error(err))
			continue
		}

		subject := AlertSubjectPrefix + strings.ToLower(string(alert.Severity))
		// the stable id lets JetStream drop duplicates inside its dedupe window
		if _, err := e.js.Publish(subject, data, nats.MsgId(alert.ID)); err != nil {
			e.logger.Error("Failed to publish alert",
				zap.String("alert_id", alert.ID),
				zap.Error(err))
			continue
		}

		e.logger.Info("Alert raised",
			zap.String("alert_id", alert.ID),
			zap.String("severity", string(alert.Severity)),
			zap.String("rule", alert.Rule),
			zap.Strings("entities", alert.EntityIDs))
	}
}

func (e *Evaluator) notify(ctx context.Context, alerts []model.AlertRecord) {
	var critical []model.AlertRecord
	for _, alert := range alerts {
		if alert.Severity == model.SeverityCritical {
			critical = append(critical, alert)
		}
	}
	if len(critical) == 0 {
		return
	}

	for _, channel := range e.channels {
		if err := channel.Send(ctx, critical); err != nil {
			e.logger.Error("Failed to notify",
				zap.String("channel", channel.Name()),
				zap.Error(err))
		}
	}
}

func idSet(feed *model.AlertFeed) map[string]struct{} {
	ids := make(map[string]struct{})
	if feed == nil {
		return ids
	}
	for _, item := range feed.Items {
		ids[item.ID] = struct{}{}
	}
	return ids
}

func newAlerts(feed *model.AlertFeed, known map[string]struct{}) []model.AlertRecord {
	var fresh []model.AlertRecord
	for _, item := range feed.Items {
		if _, ok := known[item.ID]; !ok {
			fresh = append(fresh, item)
		}
	}
	return fresh
}

func failureList(failures map[model.EntityKind]error) []string {
	if len(failures) == 0 {
		return nil
	}
	list := make([]string, 0, len(failures))
	for kind, err := range failures {
		list = append(list, fmt.Sprintf("%s: %v", kind, err))
	}
	sort.Strings(list)
	return list
}
