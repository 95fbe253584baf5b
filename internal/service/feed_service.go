package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/duewatch/internal/dismissal"
	"github.com/t77yq/duewatch/internal/model"
	"github.com/t77yq/duewatch/internal/storage"
)

const (
	SubjectGet     = "feed.get"
	SubjectDismiss = "feed.dismiss"
	SubjectReset   = "feed.reset"
	SubjectHistory = "feed.history"
	SubjectRefresh = "feed.refresh"

	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
	refreshTimeout      = 2 * time.Minute
	// DefaultSessionTTL is how long an idle session keeps its dismissals
	DefaultSessionTTL = 24 * time.Hour
)

// FeedSource exposes the latest feed and can rebuild it on demand
type FeedSource interface {
	Latest() *model.FeedRun
	Evaluate(ctx context.Context) (*model.FeedRun, error)
}

// Request is the body of every feed.* request
type Request struct {
	Session string `json:"session,omitempty"`
	AlertID string `json:"alert_id,omitempty"`
	Offset  int    `json:"offset,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// RunSummary describes a stored feed run without its items
type RunSummary struct {
	ID              string                 `json:"id"`
	GeneratedAt     time.Time              `json:"generated_at"`
	EntityCount     int                    `json:"entity_count"`
	TotalCount      int                    `json:"total_count"`
	CountBySeverity map[model.Severity]int `json:"count_by_severity"`
	Failures        []string               `json:"failures,omitempty"`
}

// Response is the reply to every feed.* request
type Response struct {
	Error       string           `json:"error,omitempty"`
	RunID       string           `json:"run_id,omitempty"`
	GeneratedAt *time.Time       `json:"generated_at,omitempty"`
	Feed        *model.AlertFeed `json:"feed,omitempty"`
	Dismissed   int              `json:"dismissed,omitempty"`
	Runs        []RunSummary     `json:"runs,omitempty"`
	Total       int              `json:"total,omitempty"`
}

type session struct {
	dismissed *dismissal.Set
	lastSeen  time.Time
}

// FeedService answers feed queries over NATS request/reply and keeps the
// dismissals of every viewer session
type FeedService struct {
	nc         *nats.Conn
	source     FeedSource
	history    storage.FeedHistoryStorage
	logger     *zap.Logger
	sessionTTL time.Duration

	ctx  context.Context
	subs []*nats.Subscription

	mu       sync.Mutex
	sessions map[string]*session
}

// NewFeedService creates a new feed service
func NewFeedService(nc *nats.Conn, source FeedSource, history storage.FeedHistoryStorage, logger *zap.Logger) *FeedService {
	return &FeedService{
		nc:         nc,
		source:     source,
		history:    history,
		logger:     logger.Named("feed-service"),
		sessionTTL: DefaultSessionTTL,
		ctx:        context.Background(),
		sessions:   make(map[string]*session),
	}
}

// Start subscribes to the request subjects
func (s *FeedService) Start(ctx context.Context) error {
	s.ctx = ctx

	handlers := map[string]func(context.Context, Request) (*Response, error){
		SubjectGet:     s.handleGet,
		SubjectDismiss: s.handleDismiss,
		SubjectReset:   s.handleReset,
		SubjectHistory: s.handleHistory,
		SubjectRefresh: s.handleRefresh,
	}

	for subject, handler := range handlers {
		sub, err := s.nc.Subscribe(subject, s.wrap(subject, handler))
		if err != nil {
			s.Stop()
			return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
	}

	s.logger.Info("Feed service started", zap.Int("subjects", len(s.subs)))
	return nil
}

// Stop removes every subscription
func (s *FeedService) Stop() {
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			s.logger.Warn("Failed to unsubscribe", zap.String("subject", sub.Subject), zap.Error(err))
		}
	}
	s.subs = nil
}

func (s *FeedService) wrap(subject string, handler func(context.Context, Request) (*Response, error)) nats.MsgHandler {
	return func(msg *nats.Msg) {
		var req Request
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &req); err != nil {
				s.respond(msg, &Response{Error: fmt.Sprintf("invalid request: %v", err)})
				return
			}
		}

		resp, err := handler(s.ctx, req)
		if err != nil {
			s.logger.Debug("Request failed",
				zap.String("subject", subject),
				zap.String("session", req.Session),
				zap.Error(err))
			resp = &Response{Error: err.Error()}
		}
		s.respond(msg, resp)
	}
}

func (s *FeedService) respond(msg *nats.Msg, resp *Response) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("Failed to marshal response", zap.Error(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Error("Failed to respond", zap.String("subject", msg.Subject), zap.Error(err))
	}
}

// Feed returns the latest feed as seen by session, without the alerts it dismissed
func (s *FeedService) Feed(sessionID string) (*Response, error) {
	set, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	return s.feedResponse(set), nil
}

// Dismiss hides alertID from session's view until Reset
func (s *FeedService) Dismiss(sessionID, alertID string) (*Response, error) {
	if alertID == "" {
		return nil, ErrAlertIDRequired
	}
	set, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	set.Dismiss(alertID)

	s.logger.Debug("Alert dismissed", zap.String("session", sessionID), zap.String("alert_id", alertID))
	return s.feedResponse(set), nil
}

// Reset clears the dismissals of session
func (s *FeedService) Reset(sessionID string) (*Response, error) {
	set, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	set.Reset()
	return s.feedResponse(set), nil
}

func (s *FeedService) handleGet(_ context.Context, req Request) (*Response, error) {
	return s.Feed(req.Session)
}

func (s *FeedService) handleDismiss(_ context.Context, req Request) (*Response, error) {
	return s.Dismiss(req.Session, req.AlertID)
}

func (s *FeedService) handleReset(_ context.Context, req Request) (*Response, error) {
	return s.Reset(req.Session)
}

func (s *FeedService) handleHistory(ctx context.Context, req Request) (*Response, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}

	runs, err := s.history.List(ctx, offset, limit)
	if err != nil {
		return nil, err
	}
	total, err := s.history.Count(ctx)
	if err != nil {
		return nil, err
	}

	resp := &Response{Total: total, Runs: make([]RunSummary, 0, len(runs))}
	for _, run := range runs {
		resp.Runs = append(resp.Runs, summarize(run))
	}
	return resp, nil
}

func (s *FeedService) handleRefresh(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	if _, err := s.source.Evaluate(ctx); err != nil {
		return nil, err
	}
	if req.Session == "" {
		return s.feedResponse(nil), nil
	}
	return s.Feed(req.Session)
}

func (s *FeedService) feedResponse(set *dismissal.Set) *Response {
	resp := &Response{}
	run := s.source.Latest()
	if run == nil {
		resp.Feed = model.NewAlertFeed(nil)
	} else {
		generatedAt := run.GeneratedAt
		resp.RunID = run.ID
		resp.GeneratedAt = &generatedAt
		resp.Feed = run.Feed
	}

	if set != nil {
		resp.Feed = set.Filter(resp.Feed)
		resp.Dismissed = set.Len()
	}
	return resp
}

// session returns the dismissal set of id, creating it on first use. Idle
// sessions older than the TTL are dropped on the way.
func (s *FeedService) session(id string) (*dismissal.Set, error) {
	if id == "" {
		return nil, ErrSessionRequired
	}

	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, sess := range s.sessions {
		if now.Sub(sess.lastSeen) > s.sessionTTL {
			delete(s.sessions, key)
		}
	}

	sess, ok := s.sessions[id]
	if !ok {
		sess = &session{dismissed: dismissal.NewSet()}
		s.sessions[id] = sess
	}
	sess.lastSeen = now
	return sess.dismissed, nil
}

// SessionCount returns the number of live sessions
func (s *FeedService) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func summarize(run *model.FeedRun) RunSummary {
	summary := RunSummary{
		ID:          run.ID,
		GeneratedAt: run.GeneratedAt,
		EntityCount: run.EntityCount,
		Failures:    run.Failures,
	}
	if run.Feed != nil {
		summary.TotalCount = run.Feed.TotalCount
		summary.CountBySeverity = run.Feed.CountBySeverity
	}
	return summary
}
