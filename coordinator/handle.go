package coordinator

import (
	"context"
	"time"

	"github.com/karstvig/focusd/coordinator/internal/store"
	"github.com/karstvig/focusd/pagewatch/snapshot"
)

// HandleSnapshot runs one settled page snapshot through the gating
// pipeline. Each gate short-circuits; only a snapshot that clears them
// all reaches the classifier.
func (c *Coordinator) HandleSnapshot(ctx context.Context, snap snapshot.Snapshot) error {
	sess, err := c.store.LiveSession(ctx)
	if err != nil {
		return err
	}
	if sess == nil || sess.State != store.StateActive {
		c.logger.Debug("coordinator: no active session, dropping snapshot", "url", snap.URL)
		return nil
	}

	if snap.URL == "" {
		c.logger.Warn("coordinator: snapshot without URL dropped", "tab", snap.TabID, "request", snap.RequestID)
		return nil
	}
	host := hostOf(snap.URL)
	if host == "" {
		c.logger.Warn("coordinator: malformed snapshot URL dropped", "url", snap.URL)
		return nil
	}

	whitelisted, err := c.store.IsWhitelisted(ctx, snap.URL, host)
	if err != nil {
		return err
	}
	if whitelisted {
		// Trusted host: Relevant with no network call, but the verdict
		// still flows through the same bookkeeping and publication.
		c.sticky.markRelevant(snap.URL)
		if err := c.persistRelevant(ctx, sess.ID, snap.URL); err != nil {
			c.logger.Error("coordinator: persist relevant failed", "url", snap.URL, "error", err)
		}
		c.publish(ctx, sess, Result{
			SessionID:   sess.ID,
			TabID:       snap.TabID,
			URL:         snap.URL,
			Verdict:     VerdictRelevant,
			Whitelisted: true,
			At:          time.Now(),
		})
		return nil
	}

	if c.locks.held(snap.URL) {
		c.logger.Debug("coordinator: classification in flight, dropping", "url", snap.URL)
		return nil
	}

	c.mu.Lock()
	prior, hasPrior := c.last[snap.URL]
	c.mu.Unlock()
	if hasPrior && time.Since(prior.at) < c.cfg.Cooldown {
		// Too soon to re-classify. The active tab still gets the prior
		// verdict so its UI reflects reality.
		if c.pages != nil && c.pages.ActiveTab() == snap.TabID {
			c.publish(ctx, sess, Result{
				SessionID:   sess.ID,
				TabID:       snap.TabID,
				URL:         snap.URL,
				Verdict:     prior.verdict,
				Whitelisted: prior.whitelisted,
				Rebroadcast: true,
				At:          time.Now(),
			})
		} else {
			c.logger.Debug("coordinator: cooldown, dropping", "url", snap.URL)
		}
		return nil
	}

	if !c.locks.tryAcquire(snap.URL) {
		return nil
	}
	return c.classifyAndPublish(ctx, sess, snap)
}
