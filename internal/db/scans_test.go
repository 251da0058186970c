package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quadrant-vision/marker.report/internal/marker"
)

var scanEpoch = time.Date(2026, 6, 10, 8, 0, 0, 0, time.UTC)

// openTestDB creates a fresh migrated database in a temp dir.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	require.NoError(t, database.MigrateUp(filepath.Join("..", "..", "migrations")))
	return database
}

func testDetection(id, bitErrors int, capturedAt time.Time) marker.Detection {
	return marker.Detection{
		ID:        id,
		Source:    marker.SourceStandard,
		Rotation:  1,
		BitErrors: bitErrors,
		Quad: marker.Quad{Corners: [4]marker.Point2{
			{X: 10, Y: 10}, {X: 50, Y: 10}, {X: 50, Y: 50}, {X: 10, Y: 50},
		}},
		CapturedAt: capturedAt,
	}
}

func TestMigrateUpIsIdempotent(t *testing.T) {
	database := openTestDB(t)
	require.NoError(t, database.MigrateUp(filepath.Join("..", "..", "migrations")))

	version, dirty, err := database.MigrateVersion(filepath.Join("..", "..", "migrations"))
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.EqualValues(t, 1, version)
}

func TestScanSessionLifecycle(t *testing.T) {
	database := openTestDB(t)

	id, err := database.StartScanSession("frames/", "bench run", scanEpoch)
	require.NoError(t, err)
	require.Contains(t, id, "scan_")

	s, err := database.GetScanSession(id)
	require.NoError(t, err)
	assert.Equal(t, "frames/", s.Source)
	assert.Equal(t, "bench run", s.Notes)
	assert.Nil(t, s.EndedAt)

	require.NoError(t, database.EndScanSession(id, scanEpoch.Add(time.Minute)))
	s, err = database.GetScanSession(id)
	require.NoError(t, err)
	require.NotNil(t, s.EndedAt)
	assert.True(t, s.EndedAt.Equal(scanEpoch.Add(time.Minute)))
}

func TestListScanSessionsNewestFirst(t *testing.T) {
	database := openTestDB(t)

	first, err := database.StartScanSession("a", "", scanEpoch)
	require.NoError(t, err)
	second, err := database.StartScanSession("b", "", scanEpoch.Add(time.Hour))
	require.NoError(t, err)

	sessions, err := database.ListScanSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, second, sessions[0].ID)
	assert.Equal(t, first, sessions[1].ID)
}

func TestRecordAndQueryDetections(t *testing.T) {
	database := openTestDB(t)
	session, err := database.StartScanSession("frames/", "", scanEpoch)
	require.NoError(t, err)

	require.NoError(t, database.RecordDetections(session, nil), "empty frame is a no-op")

	dets := []marker.Detection{
		testDetection(3, 0, scanEpoch),
		testDetection(17, 2, scanEpoch),
	}
	require.NoError(t, database.RecordDetections(session, dets))
	require.NoError(t, database.RecordDetections(session, []marker.Detection{
		testDetection(3, 1, scanEpoch.Add(time.Second)),
	}))

	rows, err := database.DetectionsBySession(session)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, 3, rows[0].MarkerID)
	assert.Equal(t, "standard", rows[0].Source)
	assert.Equal(t, 1, rows[0].Rotation)
	assert.Equal(t, 30.0, rows[0].CenterX)
	assert.Equal(t, 30.0, rows[0].CenterY)
	assert.Equal(t, [2]float64{10, 10}, rows[0].Corners[0])
	assert.Equal(t, [2]float64{50, 50}, rows[0].Corners[2])

	counts, err := database.DetectionCounts(session)
	require.NoError(t, err)
	assert.Equal(t, map[int]int64{3: 2, 17: 1}, counts)
}

func TestVisibleSpanLifecycle(t *testing.T) {
	database := openTestDB(t)
	session, err := database.StartScanSession("frames/", "", scanEpoch)
	require.NoError(t, err)

	require.NoError(t, database.OpenVisibleSpan(session, 5, "custom", scanEpoch))
	require.NoError(t, database.ExtendVisibleSpan(session, 5, scanEpoch.Add(4*time.Second)))
	require.NoError(t, database.CloseVisibleSpan(session, 5))

	// Extending a closed span is an error: there is nothing open.
	require.Error(t, database.ExtendVisibleSpan(session, 5, scanEpoch.Add(9*time.Second)))

	spans, err := database.SpansBySession(session)
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, 5, spans[0].MarkerID)
	assert.Equal(t, "custom", spans[0].Source)
	assert.False(t, spans[0].Open)
	assert.True(t, spans[0].FirstSeen.Equal(scanEpoch))
	assert.True(t, spans[0].LastSeen.Equal(scanEpoch.Add(4*time.Second)))
}

func TestEndScanSessionClosesOpenSpans(t *testing.T) {
	database := openTestDB(t)
	session, err := database.StartScanSession("frames/", "", scanEpoch)
	require.NoError(t, err)

	require.NoError(t, database.OpenVisibleSpan(session, 1, "standard", scanEpoch))
	require.NoError(t, database.EndScanSession(session, scanEpoch.Add(time.Minute)))

	spans, err := database.SpansBySession(session)
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.False(t, spans[0].Open, "session end must close dangling spans")
}

func TestSpanTrackerTransitions(t *testing.T) {
	database := openTestDB(t)
	session, err := database.StartScanSession("frames/", "", scanEpoch)
	require.NoError(t, err)
	tracker := NewSpanTracker(database, session)

	vis := func(ids []int, at time.Time) marker.VisibleSet {
		out := make(marker.VisibleSet, 0, len(ids))
		for _, id := range ids {
			out = append(out, marker.VisibleMarker{ID: id, Source: marker.SourceStandard, LastSeen: at})
		}
		return out
	}

	// Marker 1 appears, then 1 and 2, then only 2, then none.
	require.NoError(t, tracker.Apply(vis([]int{1}, scanEpoch)))
	require.NoError(t, tracker.Apply(vis([]int{1, 2}, scanEpoch.Add(time.Second))))
	require.NoError(t, tracker.Apply(vis([]int{2}, scanEpoch.Add(2*time.Second))))
	require.NoError(t, tracker.Apply(vis(nil, scanEpoch.Add(3*time.Second))))

	spans, err := database.SpansBySession(session)
	require.NoError(t, err)
	require.Len(t, spans, 2)

	assert.Equal(t, 1, spans[0].MarkerID)
	assert.False(t, spans[0].Open)
	assert.True(t, spans[0].FirstSeen.Equal(scanEpoch))
	assert.True(t, spans[0].LastSeen.Equal(scanEpoch.Add(time.Second)))

	assert.Equal(t, 2, spans[1].MarkerID)
	assert.False(t, spans[1].Open)
	assert.True(t, spans[1].FirstSeen.Equal(scanEpoch.Add(time.Second)))
	assert.True(t, spans[1].LastSeen.Equal(scanEpoch.Add(2*time.Second)))
}

func TestSpanTrackerClose(t *testing.T) {
	database := openTestDB(t)
	session, err := database.StartScanSession("frames/", "", scanEpoch)
	require.NoError(t, err)
	tracker := NewSpanTracker(database, session)

	require.NoError(t, tracker.Apply(marker.VisibleSet{
		{ID: 9, Source: marker.SourceCustom, LastSeen: scanEpoch},
	}))
	require.NoError(t, tracker.Close())

	spans, err := database.SpansBySession(session)
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.False(t, spans[0].Open)
}
