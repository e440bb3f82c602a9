package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Session state values.
const (
	StateActive = "active"
	StatePaused = "paused"
	StateEnded  = "ended"
)

// Session is one focus session row.
type Session struct {
	ID              string `json:"id"`
	Focus           string `json:"focus"`
	State           string `json:"state"`
	StartedAt       int64  `json:"started_at"`
	AnchoredAt      *int64 `json:"anchored_at,omitempty"` // start of the open active segment, nil while paused
	PausedAt        *int64 `json:"paused_at,omitempty"`
	EndedAt         *int64 `json:"ended_at,omitempty"`
	AccumulatedMS   int64  `json:"accumulated_ms"`
	LastRelevantURL string `json:"last_relevant_url,omitempty"`
	LimitReached    bool   `json:"limit_reached"`
}

// InsertSession stores a new session.
func (s *Store) InsertSession(ctx context.Context, sess *Session) error {
	if sess.StartedAt == 0 {
		sess.StartedAt = time.Now().UnixMilli()
	}
	if sess.State == "" {
		sess.State = StateActive
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO sessions
			(id, focus, state, started_at, anchored_at, paused_at, ended_at,
			 accumulated_ms, last_relevant_url, limit_reached)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		sess.ID, sess.Focus, sess.State, sess.StartedAt, sess.AnchoredAt,
		sess.PausedAt, sess.EndedAt,
		sess.AccumulatedMS, sess.LastRelevantURL, boolInt(sess.LimitReached),
	)
	return err
}

// UpdateSession rewrites a session's mutable fields.
func (s *Store) UpdateSession(ctx context.Context, sess *Session) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE sessions
		SET state = ?, anchored_at = ?, paused_at = ?, ended_at = ?,
		    accumulated_ms = ?, last_relevant_url = ?, limit_reached = ?
		WHERE id = ?`,
		sess.State, sess.AnchoredAt, sess.PausedAt, sess.EndedAt,
		sess.AccumulatedMS, sess.LastRelevantURL, boolInt(sess.LimitReached), sess.ID,
	)
	return err
}

// LiveSession returns the most recent non-ended session, or nil.
func (s *Store) LiveSession(ctx context.Context) (*Session, error) {
	return s.scanSession(s.DB.QueryRowContext(ctx, `
		SELECT id, focus, state, started_at, anchored_at, paused_at, ended_at,
		       accumulated_ms, last_relevant_url, limit_reached
		FROM sessions WHERE state != ?
		ORDER BY started_at DESC LIMIT 1`, StateEnded))
}

// GetSession returns a session by ID, or nil.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	return s.scanSession(s.DB.QueryRowContext(ctx, `
		SELECT id, focus, state, started_at, anchored_at, paused_at, ended_at,
		       accumulated_ms, last_relevant_url, limit_reached
		FROM sessions WHERE id = ?`, id))
}

func (s *Store) scanSession(row *sql.Row) (*Session, error) {
	sess := &Session{}
	var anchoredAt, pausedAt, endedAt sql.NullInt64
	var limit int
	err := row.Scan(
		&sess.ID, &sess.Focus, &sess.State, &sess.StartedAt, &anchoredAt, &pausedAt, &endedAt,
		&sess.AccumulatedMS, &sess.LastRelevantURL, &limit,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if anchoredAt.Valid {
		sess.AnchoredAt = &anchoredAt.Int64
	}
	if pausedAt.Valid {
		sess.PausedAt = &pausedAt.Int64
	}
	if endedAt.Valid {
		sess.EndedAt = &endedAt.Int64
	}
	sess.LimitReached = limit != 0
	return sess, nil
}

// AddDailyFocus credits focused time to a day's ledger entry.
// countSession additionally bumps the day's session counter, done once
// per session at its end.
func (s *Store) AddDailyFocus(ctx context.Context, day string, focusedMS int64, countSession bool) error {
	bump := 0
	if countSession {
		bump = 1
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO daily_focus (day, focused_ms, sessions)
		VALUES (?, ?, ?)
		ON CONFLICT(day) DO UPDATE SET
			focused_ms = focused_ms + excluded.focused_ms,
			sessions = sessions + excluded.sessions`,
		day, focusedMS, bump,
	)
	return err
}

// DailyTotal is one ledger row.
type DailyTotal struct {
	Day       string `json:"day"`
	FocusedMS int64  `json:"focused_ms"`
	Sessions  int    `json:"sessions"`
}

// DailyFocus returns a single day's totals; zero totals if absent.
func (s *Store) DailyFocus(ctx context.Context, day string) (*DailyTotal, error) {
	t := &DailyTotal{Day: day}
	err := s.DB.QueryRowContext(ctx, `
		SELECT focused_ms, sessions FROM daily_focus WHERE day = ?`, day).
		Scan(&t.FocusedMS, &t.Sessions)
	if errors.Is(err, sql.ErrNoRows) {
		return t, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ListDailyFocus returns ledger entries from day onward, newest first.
func (s *Store) ListDailyFocus(ctx context.Context, fromDay string) ([]*DailyTotal, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT day, focused_ms, sessions FROM daily_focus
		WHERE day >= ? ORDER BY day DESC`, fromDay)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*DailyTotal
	for rows.Next() {
		t := &DailyTotal{}
		if err := rows.Scan(&t.Day, &t.FocusedMS, &t.Sessions); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
