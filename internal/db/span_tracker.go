package db

import (
	"fmt"

	"github.com/quadrant-vision/marker.report/internal/marker"
)

// SpanTracker converts per-frame visible sets into persisted visibility
// spans by diffing each set against the previous one: a newly visible
// marker opens a span, a still-visible one extends it, a vanished one
// closes it. It is driven from the single scan loop and is not
// goroutine-safe.
type SpanTracker struct {
	db        *DB
	sessionID string
	open      map[int]bool
}

// NewSpanTracker creates a tracker for one scan session.
func NewSpanTracker(database *DB, sessionID string) *SpanTracker {
	return &SpanTracker{
		db:        database,
		sessionID: sessionID,
		open:      map[int]bool{},
	}
}

// Apply records the transitions implied by the latest visible set.
func (t *SpanTracker) Apply(visible marker.VisibleSet) error {
	current := make(map[int]bool, len(visible))
	for _, m := range visible {
		current[m.ID] = true
		if t.open[m.ID] {
			if err := t.db.ExtendVisibleSpan(t.sessionID, m.ID, m.LastSeen); err != nil {
				return fmt.Errorf("span tracker: %w", err)
			}
			continue
		}
		if err := t.db.OpenVisibleSpan(t.sessionID, m.ID, string(m.Source), m.LastSeen); err != nil {
			return fmt.Errorf("span tracker: %w", err)
		}
		t.open[m.ID] = true
	}

	for id := range t.open {
		if current[id] {
			continue
		}
		if err := t.db.CloseVisibleSpan(t.sessionID, id); err != nil {
			return fmt.Errorf("span tracker: %w", err)
		}
		delete(t.open, id)
	}
	return nil
}

// Close ends all spans the tracker still has open.
func (t *SpanTracker) Close() error {
	for id := range t.open {
		if err := t.db.CloseVisibleSpan(t.sessionID, id); err != nil {
			return err
		}
		delete(t.open, id)
	}
	return nil
}
