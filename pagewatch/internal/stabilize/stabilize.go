// Package stabilize implements the page-change stabilization state
// machine: given an arbitrarily dynamic page, decide the single moment
// at which a meaningful content snapshot exists and emit it.
//
// The machine is IDLE → WATCHING → (SETTLED | TIMED_OUT) → IDLE. A watch
// polls the page's content fingerprint; when the fingerprint holds still
// for the quiet period the page has settled, and when the max-wait
// deadline fires the snapshot is taken regardless. Exactly one token is
// live per page: starting a new watch cancels the previous one, and
// every resumption re-checks token identity so a superseded attempt can
// never send.
package stabilize

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/karstvig/focusd/extract"
	"github.com/karstvig/focusd/idgen"
	"github.com/karstvig/focusd/pagewatch/snapshot"
)

// Page is the stabilizer's read-only view of a browser page.
type Page interface {
	// URL returns the page's current address without touching the DOM.
	URL() string
	// View serialises the page's current DOM.
	View(ctx context.Context) (*snapshot.View, error)
}

// Config controls stabilization timing. All durations must satisfy
// PollInterval < QuietPeriod <= MaxWait; Validate enforces this.
type Config struct {
	PollInterval time.Duration // how often the fingerprint is sampled
	QuietPeriod  time.Duration // how long it must hold still to settle
	MaxWait      time.Duration // hard deadline for a send
	SendCooldown time.Duration // min gap between sends for the same URL

	BodyLimit   int // max runes of body text in a snapshot
	MinReadable int // min clean chars for the readable extraction path

	Logger *slog.Logger
	NewID  idgen.Generator
}

func (c *Config) defaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 300 * time.Millisecond
	}
	if c.QuietPeriod <= 0 {
		c.QuietPeriod = 1200 * time.Millisecond
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 3 * time.Second
	}
	if c.SendCooldown <= 0 {
		c.SendCooldown = 7 * time.Second
	}
	if c.BodyLimit <= 0 {
		c.BodyLimit = 2000
	}
	if c.MinReadable <= 0 {
		c.MinReadable = 100
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.NewID == nil {
		c.NewID = idgen.Prefixed("stab_", idgen.NanoID(8))
	}
}

// Valid reports whether the timing relations hold.
func (c *Config) Valid() bool {
	return c.PollInterval < c.QuietPeriod && c.QuietPeriod <= c.MaxWait
}

// token represents one in-progress wait for the page to settle. Fields
// after cancel are only touched by the owning watch goroutine.
type token struct {
	id        string
	startedAt time.Time
	cancel    context.CancelFunc

	lastSig     string
	lastSigAt   time.Time
	changeCount int
}

// Stabilizer owns the per-page stabilization state machine.
type Stabilizer struct {
	page      Page
	cfg       Config
	emit      func(snapshot.Snapshot)
	snippeter *extract.Snippeter
	logger    *slog.Logger

	ctx    context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	active   *token
	lastSent map[string]time.Time
}

// New creates a Stabilizer that reads page and calls emit with each
// settled snapshot. emit is called from the watch goroutine; it must not
// block for long.
func New(page Page, cfg Config, emit func(snapshot.Snapshot)) *Stabilizer {
	cfg.defaults()
	ctx, stop := context.WithCancel(context.Background())
	return &Stabilizer{
		page:      page,
		cfg:       cfg,
		emit:      emit,
		snippeter: extract.NewSnippeter(cfg.MinReadable),
		logger:    cfg.Logger,
		ctx:       ctx,
		stop:      stop,
		lastSent:  make(map[string]time.Time),
	}
}

// Trigger (re)enters WATCHING, superseding any in-progress watch. The
// previous token's timers become no-ops through context cancellation
// plus the identity check in finish. A trigger inside the per-URL send
// cooldown is dropped.
func (s *Stabilizer) Trigger(source snapshot.Source) {
	url := s.page.URL()

	s.mu.Lock()
	if last, ok := s.lastSent[url]; ok && time.Since(last) < s.cfg.SendCooldown {
		s.mu.Unlock()
		s.logger.Debug("stabilize: send cooldown, dropping trigger",
			"url", url, "source", source)
		return
	}
	if s.active != nil {
		s.active.cancel()
		s.logger.Debug("stabilize: superseding previous token",
			"previous", s.active.id, "source", source)
	}
	ctx, cancel := context.WithCancel(s.ctx)
	tok := &token{
		id:        s.cfg.NewID(),
		startedAt: time.Now(),
		cancel:    cancel,
	}
	s.active = tok
	s.mu.Unlock()

	s.logger.Debug("stabilize: watching", "token", tok.id, "url", url, "source", source)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.watch(ctx, tok, source)
	}()
}

// Stop cancels any in-progress watch and waits for its goroutine.
func (s *Stabilizer) Stop() {
	s.stop()
	s.wg.Wait()
}

// watch polls the fingerprint until the page settles or the deadline
// fires. Only this goroutine touches the token's signature fields.
func (s *Stabilizer) watch(ctx context.Context, tok *token, source snapshot.Source) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(s.cfg.MaxWait)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			s.finish(ctx, tok, source, snapshot.OutcomeTimedOut)
			return
		case now := <-ticker.C:
			sig, err := s.currentFingerprint(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Debug("stabilize: fingerprint failed", "token", tok.id, "error", err)
				continue
			}
			if tok.lastSig == "" || sig != tok.lastSig {
				if tok.lastSig != "" {
					tok.changeCount++
				}
				tok.lastSig = sig
				tok.lastSigAt = now
				continue
			}
			if now.Sub(tok.lastSigAt) >= s.cfg.QuietPeriod {
				s.finish(ctx, tok, source, snapshot.OutcomeSettled)
				return
			}
		}
	}
}

// finish performs the single send for a watch. The identity check under
// the mutex guarantees a superseded token falls through silently even if
// its timer fired concurrently with the supersede.
func (s *Stabilizer) finish(ctx context.Context, tok *token, source snapshot.Source, outcome snapshot.Outcome) {
	s.mu.Lock()
	if s.active != tok {
		s.mu.Unlock()
		s.logger.Debug("stabilize: token superseded, not sending",
			"token", tok.id, "outcome", outcome)
		return
	}
	s.active = nil
	s.mu.Unlock()

	snap, err := s.takeSnapshot(ctx, tok, source, outcome)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("stabilize: snapshot extraction failed",
				"token", tok.id, "error", err)
		}
		return
	}

	s.mu.Lock()
	s.lastSent[snap.URL] = time.Now()
	s.mu.Unlock()

	s.logger.Info("stabilize: snapshot",
		"token", tok.id, "url", snap.URL, "outcome", outcome,
		"changes", tok.changeCount, "waited", time.Since(tok.startedAt))
	s.emit(*snap)
}

// currentFingerprint samples the page and derives its change-detection
// signature.
func (s *Stabilizer) currentFingerprint(ctx context.Context) (string, error) {
	view, err := s.page.View(ctx)
	if err != nil {
		return "", err
	}
	doc, err := extract.Parse([]byte(view.HTML))
	if err != nil {
		return "", err
	}
	return Fingerprint(doc, view.URL), nil
}

// takeSnapshot extracts the full classification payload just before
// sending, so the body text reflects the settled page.
func (s *Stabilizer) takeSnapshot(ctx context.Context, tok *token, source snapshot.Source, outcome snapshot.Outcome) (*snapshot.Snapshot, error) {
	view, err := s.page.View(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := extract.Parse([]byte(view.HTML))
	if err != nil {
		return nil, err
	}

	return &snapshot.Snapshot{
		URL:             view.URL,
		Title:           doc.Title,
		MetaDescription: doc.MetaDescription,
		MetaKeywords:    doc.MetaKeywords,
		BodyText:        s.snippeter.Snippet(doc, s.cfg.BodyLimit),
		ExtractedAt:     time.Now(),
		Source:          source,
		Outcome:         outcome,
		RequestID:       tok.id,
	}, nil
}
