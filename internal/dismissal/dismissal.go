package dismissal

import (
	"sync"

	"github.com/t77yq/duewatch/internal/model"
)

// Set holds the alert ids a user dismissed during one session.
// Ids are stable across feed rebuilds, so a dismissal keeps suppressing the
// same alert after a refetch until the alert's membership changes.
type Set struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewSet creates an empty dismissal set
func NewSet() *Set {
	return &Set{ids: make(map[string]struct{})}
}

// Dismiss marks an alert id as dismissed
func (s *Set) Dismiss(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[id] = struct{}{}
}

// IsDismissed reports whether id was dismissed
func (s *Set) IsDismissed(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of dismissed ids
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// Reset forgets every dismissal
func (s *Set) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = make(map[string]struct{})
}

// Filter returns a copy of feed without dismissed items, with counters recomputed
func (s *Set) Filter(feed *model.AlertFeed) *model.AlertFeed {
	if feed == nil {
		return model.NewAlertFeed(nil)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]model.AlertRecord, 0, len(feed.Items))
	for _, item := range feed.Items {
		if _, ok := s.ids[item.ID]; ok {
			continue
		}
		items = append(items, item)
	}
	return model.NewAlertFeed(items)
}
