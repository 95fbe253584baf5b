package source

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/t77yq/duewatch/internal/model"
)

// LoadResult is the outcome of one load pass. Entities keeps the order of
// Loader kinds; Failures lists the kinds that could not be fetched.
type LoadResult struct {
	Entities []model.TrackedEntity
	Failures map[model.EntityKind]error
}

// Loader fetches every kind concurrently and tolerates partial failures
type Loader struct {
	logger  *zap.Logger
	fetcher Fetcher
	kinds   []model.EntityKind
}

// NewLoader creates a loader over the given kinds, all kinds when none are given
func NewLoader(fetcher Fetcher, logger *zap.Logger, kinds ...model.EntityKind) *Loader {
	if len(kinds) == 0 {
		kinds = model.EntityKinds
	}
	return &Loader{
		logger:  logger.Named("loader"),
		fetcher: fetcher,
		kinds:   kinds,
	}
}

// Load fetches all kinds. A failing kind is recorded in Failures and the rest
// still load; the returned error is non-nil only when ctx is done.
func (l *Loader) Load(ctx context.Context) (*LoadResult, error) {
	perKind := make([][]model.TrackedEntity, len(l.kinds))
	failures := make(map[model.EntityKind]error)
	var mu sync.Mutex

	var g errgroup.Group
	for i, kind := range l.kinds {
		i, kind := i, kind
		g.Go(func() error {
			entities, err := l.fetcher.Fetch(ctx, kind)
			if err != nil {
				l.logger.Warn("Failed to load collection",
					zap.String("kind", string(kind)),
					zap.Error(err))
				mu.Lock()
				failures[kind] = err
				mu.Unlock()
				return nil
			}
			perKind[i] = entities
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &LoadResult{Failures: failures}
	for _, entities := range perKind {
		result.Entities = append(result.Entities, entities...)
	}
	return result, nil
}
