package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/karstvig/focusd/classify"
	"github.com/karstvig/focusd/coordinator/internal/store"
	"github.com/karstvig/focusd/pagewatch/snapshot"
)

// classifyAndPublish resolves a verdict for the snapshot and publishes
// it. The in-flight lock on snap.URL is held on entry and released on
// every path.
func (c *Coordinator) classifyAndPublish(ctx context.Context, sess *store.Session, snap snapshot.Snapshot) error {
	defer c.locks.release(snap.URL)

	if c.limitReached.Load() {
		c.publishVerdict(ctx, sess, snap, VerdictLimitReached, false)
		return nil
	}

	// Persistent cache first: same page, same focus.
	cached, hit, err := c.store.GetAssessment(ctx, snap.URL, sess.Focus, c.cfg.Cache.TTL)
	if err != nil {
		return err
	}
	if hit {
		v := Verdict(cached)
		if v == VerdictRelevant {
			c.sticky.markRelevant(snap.URL)
			if err := c.persistRelevant(ctx, sess.ID, snap.URL); err != nil {
				c.logger.Error("coordinator: persist relevant failed", "url", snap.URL, "error", err)
			}
		}
		c.publishResult(ctx, sess, Result{
			SessionID: sess.ID,
			TabID:     snap.TabID,
			URL:       snap.URL,
			Verdict:   v,
			FromCache: true,
			At:        time.Now(),
		})
		return nil
	}

	// The in-flight lock already dropped duplicate snapshots for this
	// URL; the semaphore caps how many calls run at once across pages.
	if err := c.slots.Acquire(ctx, 1); err != nil {
		return err
	}
	assessment, err := c.classifier.Classify(ctx, classify.Request{
		URL:             snap.URL,
		Title:           snap.Title,
		MetaDescription: snap.MetaDescription,
		MetaKeywords:    snap.MetaKeywords,
		PageTextSnippet: snap.BodyText,
		SessionFocus:    sess.Focus,
	})
	c.slots.Release(1)

	if err != nil {
		if errors.Is(err, classify.ErrQuotaExhausted) {
			c.limitReached.Store(true)
			c.logger.Warn("coordinator: classification quota exhausted, latching", "url", snap.URL)
			c.publishVerdict(ctx, sess, snap, VerdictLimitReached, false)
			return nil
		}
		c.logger.Error("coordinator: classification failed", "url", snap.URL, "error", err)
		c.publishVerdict(ctx, sess, snap, VerdictError, false)
		return nil
	}

	verdict := VerdictIrrelevant
	if assessment == classify.Relevant {
		verdict = VerdictRelevant
	}

	// Sticky override runs before the cache write so a suppressed
	// flicker is what later lookups see; only a genuine Relevant
	// refreshes the shield.
	final := c.sticky.override(snap.URL, verdict)
	if verdict == VerdictRelevant {
		c.sticky.markRelevant(snap.URL)
	}
	if final != verdict {
		c.logger.Info("coordinator: sticky override", "url", snap.URL, "raw", verdict, "final", final)
	}

	if err := c.store.PutAssessment(ctx, snap.URL, sess.Focus, string(final)); err != nil {
		c.logger.Error("coordinator: cache write failed", "url", snap.URL, "error", err)
	}
	if _, err := c.store.PruneAssessments(ctx, c.cfg.Cache.TTL, c.cfg.Cache.MaxRows); err != nil {
		c.logger.Warn("coordinator: cache prune failed", "error", err)
	}

	if final == VerdictRelevant {
		if err := c.persistRelevant(ctx, sess.ID, snap.URL); err != nil {
			c.logger.Error("coordinator: persist relevant failed", "url", snap.URL, "error", err)
		}
	}

	c.publishVerdict(ctx, sess, snap, final, false)
	return nil
}

// persistRelevant records the session's most recent relevant page, the
// go-back target for the off-focus prompt.
func (c *Coordinator) persistRelevant(ctx context.Context, sessionID, url string) error {
	sess, err := c.store.GetSession(ctx, sessionID)
	if err != nil || sess == nil {
		return err
	}
	sess.LastRelevantURL = url
	return c.store.UpdateSession(ctx, sess)
}

func (c *Coordinator) publishVerdict(ctx context.Context, sess *store.Session, snap snapshot.Snapshot, v Verdict, whitelisted bool) {
	c.publishResult(ctx, sess, Result{
		SessionID:   sess.ID,
		TabID:       snap.TabID,
		URL:         snap.URL,
		Verdict:     v,
		Whitelisted: whitelisted,
		At:          time.Now(),
	})
}

// publish is the whitelist/cooldown entry point; publishResult the
// common tail.
func (c *Coordinator) publish(ctx context.Context, sess *store.Session, res Result) {
	c.publishResult(ctx, sess, res)
}

// publishResult records the verdict for cooldown purposes and fans it
// out: publishers, tab badge, and the off-focus prompt when warranted.
func (c *Coordinator) publishResult(ctx context.Context, sess *store.Session, res Result) {
	if !res.Rebroadcast {
		c.mu.Lock()
		c.last[res.URL] = lastResult{verdict: res.Verdict, whitelisted: res.Whitelisted, at: res.At}
		c.mu.Unlock()
	}

	c.logger.Info("coordinator: assessment",
		"url", res.URL, "verdict", res.Verdict,
		"whitelisted", res.Whitelisted, "cached", res.FromCache,
		"rebroadcast", res.Rebroadcast)

	for _, p := range c.pubs {
		p.Publish(ctx, res)
	}

	if c.pages == nil {
		return
	}
	if state := badgeState(res.Verdict); state != "" && res.TabID != "" {
		if err := c.pages.SetBadge(ctx, res.TabID, state); err != nil {
			c.logger.Debug("coordinator: badge update failed", "tab", res.TabID, "error", err)
		}
	}
	if res.Verdict == VerdictIrrelevant && !res.Whitelisted && res.TabID != "" {
		if err := c.pages.ShowOffFocusPrompt(ctx, res.TabID, sess.Focus, sess.LastRelevantURL); err != nil {
			c.logger.Warn("coordinator: prompt failed", "tab", res.TabID, "error", err)
		}
	}
}

// SetActiveBadge pushes an indicator state to the active tab. Meant for
// the UI's work/break marker; "" clears the badge.
func (c *Coordinator) SetActiveBadge(ctx context.Context, state string) error {
	if c.pages == nil {
		return nil
	}
	tab := c.pages.ActiveTab()
	if tab == "" {
		return nil
	}
	return c.pages.SetBadge(ctx, tab, state)
}

// ResetLimit clears the quota latch so classification may resume.
func (c *Coordinator) ResetLimit() {
	c.limitReached.Store(false)
	c.logger.Info("coordinator: quota latch reset")
}

// LimitReached reports whether the quota latch is set.
func (c *Coordinator) LimitReached() bool {
	return c.limitReached.Load()
}
