package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quadrant-vision/marker.report/internal/marker"
)

// ScanSession is one recorded scan run over a frame source.
type ScanSession struct {
	ID        string
	Source    string
	StartedAt time.Time
	EndedAt   *time.Time
	Notes     string
}

// DetectionRow is one persisted detection.
type DetectionRow struct {
	ID         int64
	SessionID  string
	MarkerID   int
	Source     string
	Rotation   int
	BitErrors  int
	CenterX    float64
	CenterY    float64
	Corners    [4][2]float64
	CapturedAt time.Time
}

// VisibleSpan is one contiguous visibility interval of a marker within a
// session: opened when the marker appears, extended while re-detected,
// closed when it ages out of the tracking window.
type VisibleSpan struct {
	ID        int64
	SessionID string
	MarkerID  int
	Source    string
	FirstSeen time.Time
	LastSeen  time.Time
	Open      bool
}

// NewScanSessionID generates a session identifier, "scan_" plus a UUID.
func NewScanSessionID() string {
	return "scan_" + uuid.NewString()
}

// StartScanSession inserts a new session row and returns its ID.
func (db *DB) StartScanSession(source, notes string, startedAt time.Time) (string, error) {
	id := NewScanSessionID()
	_, err := db.Exec(
		`INSERT INTO scan_sessions (id, source, started_at, notes) VALUES (?, ?, ?, ?)`,
		id, source, startedAt, notes,
	)
	if err != nil {
		return "", fmt.Errorf("starting scan session: %w", err)
	}
	return id, nil
}

// EndScanSession stamps the session's end time and closes any spans still
// open.
func (db *DB) EndScanSession(sessionID string, endedAt time.Time) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`UPDATE scan_sessions SET ended_at = ? WHERE id = ?`, endedAt, sessionID,
	); err != nil {
		return fmt.Errorf("ending scan session: %w", err)
	}
	if _, err := tx.Exec(
		`UPDATE visible_spans SET open = 0 WHERE session_id = ? AND open = 1`, sessionID,
	); err != nil {
		return fmt.Errorf("closing open spans: %w", err)
	}
	return tx.Commit()
}

// GetScanSession loads one session by ID.
func (db *DB) GetScanSession(sessionID string) (ScanSession, error) {
	var s ScanSession
	var ended sql.NullTime
	err := db.QueryRow(
		`SELECT id, source, started_at, ended_at, notes FROM scan_sessions WHERE id = ?`,
		sessionID,
	).Scan(&s.ID, &s.Source, &s.StartedAt, &ended, &s.Notes)
	if err != nil {
		return ScanSession{}, err
	}
	if ended.Valid {
		t := ended.Time
		s.EndedAt = &t
	}
	return s, nil
}

// ListScanSessions returns all sessions, newest first.
func (db *DB) ListScanSessions() ([]ScanSession, error) {
	rows, err := db.Query(
		`SELECT id, source, started_at, ended_at, notes FROM scan_sessions ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []ScanSession
	for rows.Next() {
		var s ScanSession
		var ended sql.NullTime
		if err := rows.Scan(&s.ID, &s.Source, &s.StartedAt, &ended, &s.Notes); err != nil {
			return nil, err
		}
		if ended.Valid {
			t := ended.Time
			s.EndedAt = &t
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// RecordDetections persists one frame's resolved detections in a single
// transaction. A frame with no detections is a no-op.
func (db *DB) RecordDetections(sessionID string, detections []marker.Detection) error {
	if len(detections) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO detections (
			session_id, marker_id, source, rotation, bit_errors,
			center_x, center_y, corners, captured_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, det := range detections {
		center := det.Quad.Center()
		corners, err := marshalCorners(det.Quad)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(
			sessionID, det.ID, string(det.Source), det.Rotation, det.BitErrors,
			center.X, center.Y, corners, det.CapturedAt,
		); err != nil {
			return fmt.Errorf("recording detection of marker %d: %w", det.ID, err)
		}
	}
	return tx.Commit()
}

// DetectionsBySession returns a session's detections in capture order.
func (db *DB) DetectionsBySession(sessionID string) ([]DetectionRow, error) {
	rows, err := db.Query(
		`SELECT id, session_id, marker_id, source, rotation, bit_errors,
		        center_x, center_y, corners, captured_at
		 FROM detections WHERE session_id = ? ORDER BY captured_at, marker_id`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DetectionRow
	for rows.Next() {
		var d DetectionRow
		var corners string
		if err := rows.Scan(&d.ID, &d.SessionID, &d.MarkerID, &d.Source, &d.Rotation,
			&d.BitErrors, &d.CenterX, &d.CenterY, &corners, &d.CapturedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(corners), &d.Corners); err != nil {
			return nil, fmt.Errorf("corrupt corners for detection %d: %w", d.ID, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DetectionCounts returns detections per marker ID for one session.
func (db *DB) DetectionCounts(sessionID string) (map[int]int64, error) {
	rows, err := db.Query(
		`SELECT marker_id, COUNT(*) FROM detections WHERE session_id = ? GROUP BY marker_id`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[int]int64{}
	for rows.Next() {
		var id int
		var count int64
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		counts[id] = count
	}
	return counts, rows.Err()
}

// OpenVisibleSpan starts a visibility interval for a marker.
func (db *DB) OpenVisibleSpan(sessionID string, markerID int, source string, seenAt time.Time) error {
	_, err := db.Exec(
		`INSERT INTO visible_spans (session_id, marker_id, source, first_seen, last_seen, open)
		 VALUES (?, ?, ?, ?, ?, 1)`,
		sessionID, markerID, source, seenAt, seenAt,
	)
	if err != nil {
		return fmt.Errorf("opening span for marker %d: %w", markerID, err)
	}
	return nil
}

// ExtendVisibleSpan advances the last-seen time of the marker's open span.
func (db *DB) ExtendVisibleSpan(sessionID string, markerID int, seenAt time.Time) error {
	res, err := db.Exec(
		`UPDATE visible_spans SET last_seen = ?
		 WHERE session_id = ? AND marker_id = ? AND open = 1`,
		seenAt, sessionID, markerID,
	)
	if err != nil {
		return fmt.Errorf("extending span for marker %d: %w", markerID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no open span for marker %d in session %s", markerID, sessionID)
	}
	return nil
}

// CloseVisibleSpan marks the marker's open span as ended.
func (db *DB) CloseVisibleSpan(sessionID string, markerID int) error {
	_, err := db.Exec(
		`UPDATE visible_spans SET open = 0
		 WHERE session_id = ? AND marker_id = ? AND open = 1`,
		sessionID, markerID,
	)
	if err != nil {
		return fmt.Errorf("closing span for marker %d: %w", markerID, err)
	}
	return nil
}

// SpansBySession returns a session's visibility spans ordered by start.
func (db *DB) SpansBySession(sessionID string) ([]VisibleSpan, error) {
	rows, err := db.Query(
		`SELECT id, session_id, marker_id, source, first_seen, last_seen, open
		 FROM visible_spans WHERE session_id = ? ORDER BY first_seen, marker_id`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VisibleSpan
	for rows.Next() {
		var s VisibleSpan
		var open int
		if err := rows.Scan(&s.ID, &s.SessionID, &s.MarkerID, &s.Source,
			&s.FirstSeen, &s.LastSeen, &open); err != nil {
			return nil, err
		}
		s.Open = open != 0
		out = append(out, s)
	}
	return out, rows.Err()
}

func marshalCorners(q marker.Quad) (string, error) {
	var corners [4][2]float64
	for i, p := range q.Corners {
		corners[i] = [2]float64{p.X, p.Y}
	}
	b, err := json.Marshal(corners)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
