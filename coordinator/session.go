package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/karstvig/focusd/coordinator/internal/store"
)

// Sentinel errors for session lifecycle misuse.
var (
	ErrNoSession     = errors.New("coordinator: no live session")
	ErrSessionExists = errors.New("coordinator: a session is already live")
	ErrNotPaused     = errors.New("coordinator: session is not paused")
	ErrAlreadyPaused = errors.New("coordinator: session is already paused")
)

// StartSession begins a focus session. Only one session may be live.
func (c *Coordinator) StartSession(ctx context.Context, focus string) (*store.Session, error) {
	if focus == "" {
		return nil, fmt.Errorf("coordinator: empty focus")
	}
	live, err := c.store.LiveSession(ctx)
	if err != nil {
		return nil, err
	}
	if live != nil {
		return nil, ErrSessionExists
	}

	now := time.Now().UnixMilli()
	sess := &store.Session{
		ID:         c.newID(),
		Focus:      focus,
		State:      store.StateActive,
		StartedAt:  now,
		AnchoredAt: &now,
	}
	if err := c.store.InsertSession(ctx, sess); err != nil {
		return nil, err
	}

	// A new focus means prior verdicts no longer apply.
	c.sticky.clear()
	c.mu.Lock()
	c.last = make(map[string]lastResult)
	c.mu.Unlock()

	c.logger.Info("coordinator: session started", "session", sess.ID, "focus", focus)

	// Judge whatever the user is looking at right now.
	if c.pages != nil {
		if tab := c.pages.ActiveTab(); tab != "" {
			if err := c.pages.RequestRecheck(tab); err != nil {
				c.logger.Debug("coordinator: initial recheck failed", "tab", tab, "error", err)
			}
		}
	}
	return sess, nil
}

// PauseSession folds the open active segment into the accumulated total
// and the daily ledger, then suspends classification.
func (c *Coordinator) PauseSession(ctx context.Context) (*store.Session, error) {
	sess, err := c.store.LiveSession(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrNoSession
	}
	if sess.State == store.StatePaused {
		return nil, ErrAlreadyPaused
	}

	now := time.Now().UnixMilli()
	seg := c.foldSegment(sess, now)
	sess.State = store.StatePaused
	sess.PausedAt = &now
	sess.AnchoredAt = nil
	if err := c.store.UpdateSession(ctx, sess); err != nil {
		return nil, err
	}
	if seg > 0 {
		if err := c.store.AddDailyFocus(ctx, dayOf(now), seg, false); err != nil {
			c.logger.Error("coordinator: ledger credit failed", "error", err)
		}
	}
	c.logger.Info("coordinator: session paused", "session", sess.ID, "segment_ms", seg)
	return sess, nil
}

// ResumeSession re-anchors a paused session.
func (c *Coordinator) ResumeSession(ctx context.Context) (*store.Session, error) {
	sess, err := c.store.LiveSession(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrNoSession
	}
	if sess.State != store.StatePaused {
		return nil, ErrNotPaused
	}

	now := time.Now().UnixMilli()
	sess.State = store.StateActive
	sess.AnchoredAt = &now
	sess.PausedAt = nil
	if err := c.store.UpdateSession(ctx, sess); err != nil {
		return nil, err
	}
	c.logger.Info("coordinator: session resumed", "session", sess.ID)
	return sess, nil
}

// EndSession folds any open segment, credits the daily ledger, clears
// the per-session caches, and neutralises the UI.
func (c *Coordinator) EndSession(ctx context.Context) (*store.Session, error) {
	sess, err := c.store.LiveSession(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrNoSession
	}

	now := time.Now().UnixMilli()
	seg := c.foldSegment(sess, now)
	sess.State = store.StateEnded
	sess.EndedAt = &now
	sess.AnchoredAt = nil
	if err := c.store.UpdateSession(ctx, sess); err != nil {
		return nil, err
	}
	if err := c.store.AddDailyFocus(ctx, dayOf(now), seg, true); err != nil {
		c.logger.Error("coordinator: ledger credit failed", "error", err)
	}

	// Only the in-memory session caches reset; the persistent (url,
	// focus) assessments outlive sessions and age out on their own.
	c.sticky.clear()
	c.mu.Lock()
	c.last = make(map[string]lastResult)
	c.mu.Unlock()

	if c.pages != nil {
		if tab := c.pages.ActiveTab(); tab != "" {
			if err := c.pages.SetBadge(ctx, tab, ""); err != nil {
				c.logger.Debug("coordinator: badge clear failed", "tab", tab, "error", err)
			}
		}
	}

	c.logger.Info("coordinator: session ended",
		"session", sess.ID, "total_ms", sess.AccumulatedMS)
	return sess, nil
}

// Session returns the live session, or ErrNoSession.
func (c *Coordinator) Session(ctx context.Context) (*store.Session, error) {
	sess, err := c.store.LiveSession(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrNoSession
	}
	return sess, nil
}

// foldSegment moves the open active segment into AccumulatedMS and
// returns its length. Zero for a paused session.
func (c *Coordinator) foldSegment(sess *store.Session, nowMS int64) int64 {
	if sess.AnchoredAt == nil {
		return 0
	}
	seg := nowMS - *sess.AnchoredAt
	if seg < 0 {
		seg = 0
	}
	sess.AccumulatedMS += seg
	return seg
}

// AddToWhitelist marks an exact URL, or a bare host, as always
// relevant and re-checks the active tab so the verdict updates
// immediately. A URL entry covers only that page; a host entry covers
// the whole site.
func (c *Coordinator) AddToWhitelist(ctx context.Context, entry string) error {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return fmt.Errorf("coordinator: empty whitelist entry")
	}
	if strings.Contains(entry, "://") && hostOf(entry) == "" {
		return fmt.Errorf("coordinator: whitelist URL %q has no host", entry)
	}
	if err := c.store.AddWhitelist(ctx, entry); err != nil {
		return err
	}
	c.logger.Info("coordinator: whitelisted", "entry", entry)
	c.recheckActive()
	return nil
}

// RemoveFromWhitelist drops an entry and re-checks the active tab,
// since its page may now need a real verdict.
func (c *Coordinator) RemoveFromWhitelist(ctx context.Context, entry string) error {
	removed, err := c.store.RemoveWhitelist(ctx, entry)
	if err != nil {
		return err
	}
	if removed {
		c.logger.Info("coordinator: removed from whitelist", "entry", entry)
		c.recheckActive()
	}
	return nil
}

// Whitelist lists the whitelist entries.
func (c *Coordinator) Whitelist(ctx context.Context) ([]string, error) {
	return c.store.ListWhitelist(ctx)
}

// DailyFocus returns the ledger entry for a day ("YYYY-MM-DD").
func (c *Coordinator) DailyFocus(ctx context.Context, day string) (*store.DailyTotal, error) {
	return c.store.DailyFocus(ctx, day)
}

// DailyFocusSince returns ledger entries from a day onward.
func (c *Coordinator) DailyFocusSince(ctx context.Context, fromDay string) ([]*store.DailyTotal, error) {
	return c.store.ListDailyFocus(ctx, fromDay)
}

func (c *Coordinator) recheckActive() {
	if c.pages == nil {
		return
	}
	if tab := c.pages.ActiveTab(); tab != "" {
		if err := c.pages.RequestRecheck(tab); err != nil {
			c.logger.Debug("coordinator: recheck failed", "tab", tab, "error", err)
		}
	}
}

func dayOf(ms int64) string {
	return time.UnixMilli(ms).Format("2006-01-02")
}

func todayString() string {
	return time.Now().Format("2006-01-02")
}
