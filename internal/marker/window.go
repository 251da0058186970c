package marker

import (
	"sort"
	"sync"
	"time"
)

// VisibleMarker is one entry of a visibility snapshot.
type VisibleMarker struct {
	ID       int
	Source   CodeSource
	LastSeen time.Time
}

// VisibleSet is the set of markers considered visible at a point in time,
// ordered by ID.
type VisibleSet []VisibleMarker

// IDs returns the visible marker IDs in ascending order.
func (vs VisibleSet) IDs() []int {
	ids := make([]int, len(vs))
	for i, m := range vs {
		ids[i] = m.ID
	}
	return ids
}

// Contains reports whether the set includes the given marker ID.
func (vs VisibleSet) Contains(id int) bool {
	for _, m := range vs {
		if m.ID == id {
			return true
		}
	}
	return false
}

// TrackingWindow maintains the time-windowed set of visible markers. A
// marker becomes visible on detection and stays visible until no frame
// has re-detected it for the timeout. All timing derives from frame
// capture timestamps, never the wall clock, so replayed footage tracks
// identically to live footage.
//
// The window is safe for concurrent use; Update and Snapshot take the
// same lock.
type TrackingWindow struct {
	mu      sync.Mutex
	timeout time.Duration
	seen    map[int]windowEntry
}

type windowEntry struct {
	source   CodeSource
	lastSeen time.Time
}

// NewTrackingWindow creates a window with the given visibility timeout.
func NewTrackingWindow(timeout time.Duration) *TrackingWindow {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &TrackingWindow{
		timeout: timeout,
		seen:    map[int]windowEntry{},
	}
}

// Timeout returns the configured visibility timeout.
func (w *TrackingWindow) Timeout() time.Duration {
	return w.timeout
}

// Update records the resolved detections of one frame at the frame's
// capture time and returns the visible set as of that time. A frame with
// no detections still advances eviction: markers whose last sighting has
// aged past the timeout drop out.
//
// Frames are expected in non-decreasing capture order. A timestamp older
// than a marker's recorded sighting is ignored for that marker, so a
// slightly out-of-order frame cannot move a sighting backwards.
func (w *TrackingWindow) Update(detections []Detection, frameTime time.Time) VisibleSet {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, det := range detections {
		prev, ok := w.seen[det.ID]
		if ok && prev.lastSeen.After(frameTime) {
			continue
		}
		if !ok {
			diagf("[Window] marker %d (%s) appeared at %s", det.ID, det.Source, frameTime.Format(time.RFC3339))
		}
		w.seen[det.ID] = windowEntry{source: det.Source, lastSeen: frameTime}
	}

	w.evictLocked(frameTime)
	return w.snapshotLocked()
}

// Snapshot returns the visible set as of the given time without recording
// any detections. Eviction applies: entries older than the timeout
// relative to asOf are removed.
func (w *TrackingWindow) Snapshot(asOf time.Time) VisibleSet {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evictLocked(asOf)
	return w.snapshotLocked()
}

// Len returns the current number of tracked markers without evicting.
func (w *TrackingWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.seen)
}

// Reset clears all tracked markers.
func (w *TrackingWindow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seen = map[int]windowEntry{}
}

// evictLocked drops entries whose age at `now` exceeds the timeout.
// A marker last seen exactly timeout ago is still visible; eviction is
// strictly-older-than.
func (w *TrackingWindow) evictLocked(now time.Time) {
	for id, e := range w.seen {
		if now.Sub(e.lastSeen) > w.timeout {
			diagf("[Window] marker %d expired (last seen %s)", id, e.lastSeen.Format(time.RFC3339))
			delete(w.seen, id)
		}
	}
}

func (w *TrackingWindow) snapshotLocked() VisibleSet {
	out := make(VisibleSet, 0, len(w.seen))
	for id, e := range w.seen {
		out = append(out, VisibleMarker{ID: id, Source: e.source, LastSeen: e.lastSeen})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
