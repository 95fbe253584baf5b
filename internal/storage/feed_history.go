package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/t77yq/duewatch/internal/model"
)

// ErrFeedRunNotFound is returned when no feed run matches the lookup
var ErrFeedRunNotFound = errors.New("feed run not found")

// FeedHistoryStorage defines the interface for feed run history
type FeedHistoryStorage interface {
	// Store stores a feed run
	Store(ctx context.Context, run *model.FeedRun) error

	// Get retrieves a feed run by ID
	Get(ctx context.Context, id string) (*model.FeedRun, error)

	// Latest retrieves the most recently generated feed run
	Latest(ctx context.Context) (*model.FeedRun, error)

	// List retrieves feed runs, newest first, with pagination
	List(ctx context.Context, offset, limit int) ([]*model.FeedRun, error)

	// Count returns the total number of stored runs
	Count(ctx context.Context) (int, error)

	// DeleteBefore deletes runs generated before the specified time
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// SQLiteFeedHistory implements FeedHistoryStorage using SQLite
type SQLiteFeedHistory struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteFeedHistory opens (or creates) the history database at dbPath
func NewSQLiteFeedHistory(logger *zap.Logger, dbPath string) (*SQLiteFeedHistory, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite serializes writers; one connection avoids "database is locked"
	db.SetMaxOpenConns(1)

	storage := &SQLiteFeedHistory{
		logger: logger.Named("feed-history"),
		db:     db,
	}

	if err := storage.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return storage, nil
}

// initialize creates the necessary tables if they don't exist
func (s *SQLiteFeedHistory) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS feed_runs (
			id TEXT PRIMARY KEY,
			generated_at DATETIME NOT NULL,
			reference DATETIME NOT NULL,
			entity_count INTEGER NOT NULL,
			total_count INTEGER NOT NULL,
			critical_count INTEGER NOT NULL,
			warning_count INTEGER NOT NULL,
			info_count INTEGER NOT NULL,
			failures TEXT,
			duration INTEGER,
			feed TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_feed_runs_generated_at ON feed_runs(generated_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// Store implements FeedHistoryStorage.Store
func (s *SQLiteFeedHistory) Store(ctx context.Context, run *model.FeedRun) error {
	if run.Feed == nil {
		run.Feed = model.NewAlertFeed(nil)
	}

	feedJSON, err := json.Marshal(run.Feed)
	if err != nil {
		return fmt.Errorf("failed to marshal feed: %w", err)
	}

	var failures sql.NullString
	if len(run.Failures) > 0 {
		data, err := json.Marshal(run.Failures)
		if err != nil {
			return fmt.Errorf("failed to marshal failures: %w", err)
		}
		failures = sql.NullString{String: string(data), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO feed_runs (
			id, generated_at, reference, entity_count, total_count,
			critical_count, warning_count, info_count, failures, duration, feed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.GeneratedAt.UTC(),
		run.Reference.UTC(),
		run.EntityCount,
		run.Feed.TotalCount,
		run.Feed.CountBySeverity[model.SeverityCritical],
		run.Feed.CountBySeverity[model.SeverityWarning],
		run.Feed.CountBySeverity[model.SeverityInfo],
		failures,
		int64(run.Duration),
		string(feedJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to store feed run: %w", err)
	}
	return nil
}

const selectRun = `SELECT id, generated_at, reference, entity_count, failures, duration, feed FROM feed_runs`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*model.FeedRun, error) {
	var run model.FeedRun
	var failures sql.NullString
	var durationNanos sql.NullInt64
	var feedJSON string

	if err := row.Scan(
		&run.ID,
		&run.GeneratedAt,
		&run.Reference,
		&run.EntityCount,
		&failures,
		&durationNanos,
		&feedJSON,
	); err != nil {
		return nil, err
	}

	if failures.Valid && failures.String != "" {
		if err := json.Unmarshal([]byte(failures.String), &run.Failures); err != nil {
			return nil, fmt.Errorf("failed to unmarshal failures: %w", err)
		}
	}
	if durationNanos.Valid {
		run.Duration = time.Duration(durationNanos.Int64)
	}

	run.Feed = &model.AlertFeed{}
	if err := json.Unmarshal([]byte(feedJSON), run.Feed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal feed: %w", err)
	}

	return &run, nil
}

// Get implements FeedHistoryStorage.Get
func (s *SQLiteFeedHistory) Get(ctx context.Context, id string) (*model.FeedRun, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, selectRun+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFeedRunNotFound
		}
		return nil, fmt.Errorf("failed to scan feed run: %w", err)
	}
	return run, nil
}

// Latest implements FeedHistoryStorage.Latest
func (s *SQLiteFeedHistory) Latest(ctx context.Context) (*model.FeedRun, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, selectRun+` ORDER BY generated_at DESC LIMIT 1`))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFeedRunNotFound
		}
		return nil, fmt.Errorf("failed to scan feed run: %w", err)
	}
	return run, nil
}

// List implements FeedHistoryStorage.List
func (s *SQLiteFeedHistory) List(ctx context.Context, offset, limit int) ([]*model.FeedRun, error) {
	rows, err := s.db.QueryContext(ctx, selectRun+` ORDER BY generated_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list feed runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.FeedRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return runs, nil
}

// Count implements FeedHistoryStorage.Count
func (s *SQLiteFeedHistory) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM feed_runs").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count feed runs: %w", err)
	}
	return count, nil
}

// DeleteBefore implements FeedHistoryStorage.DeleteBefore
func (s *SQLiteFeedHistory) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM feed_runs WHERE generated_at < ?", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete feed runs: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	s.logger.Info("Deleted old feed runs",
		zap.Time("before", before),
		zap.Int64("deleted", affected))

	return affected, nil
}

// Close closes the database connection
func (s *SQLiteFeedHistory) Close() error {
	return s.db.Close()
}
