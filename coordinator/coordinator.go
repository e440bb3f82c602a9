// Package coordinator is the session brain of focusd.
//
// It sits between pagewatch (page observation) and the relevance
// service. The pipeline:
//
//	pagewatch → coordinator.HandleSnapshot → gate → classify → publish
//
// Key features:
//   - Gating: drops snapshots with no live session, malformed URLs,
//     in-flight duplicates, and cooldown repeats
//   - Whitelist: trusted URLs and hosts are Relevant without a
//     network call
//   - Caching: persistent (url, focus) verdict cache with TTL
//   - Dedup + backpressure: a per-URL in-flight lock drops duplicate
//     snapshots; a weighted semaphore caps concurrent calls
//   - Sticky relevance: a fresh Relevant verdict shields the URL from
//     an immediate Irrelevant flicker
//   - Quota latch: HTTP 429 stops all network attempts until reset
//   - Session lifecycle with a daily focus-time ledger
//
// Usage:
//
//	c, err := coordinator.New(cfg, logger, coordinator.WithPublisher(hub))
//	defer c.Close()
//	sink := c.Sink()  // plug into pagewatch
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/karstvig/focusd/classify"
	"github.com/karstvig/focusd/coordinator/internal/store"
	"github.com/karstvig/focusd/dbopen"
	"github.com/karstvig/focusd/idgen"
)

// Classifier is the relevance service surface the coordinator needs.
// *classify.Client satisfies it.
type Classifier interface {
	Classify(ctx context.Context, req classify.Request) (classify.Assessment, error)
}

// Coordinator orchestrates gating, classification, and publication.
type Coordinator struct {
	cfg        *Config
	store      *store.Store
	classifier Classifier
	logger     *slog.Logger
	pages      PageControl
	pubs       []Publisher
	newID      idgen.Generator
	dbOpts     []dbopen.Option

	slots        *semaphore.Weighted
	locks        *inflight
	sticky       *sticky
	limitReached atomic.Bool

	mu   sync.Mutex
	last map[string]lastResult // per URL, for cooldown re-broadcast
}

type lastResult struct {
	verdict     Verdict
	whitelisted bool
	at          time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClassifier overrides the HTTP client, mainly for tests.
func WithClassifier(cl Classifier) Option {
	return func(c *Coordinator) { c.classifier = cl }
}

// WithPublisher adds a destination for assessment results.
func WithPublisher(p Publisher) Option {
	return func(c *Coordinator) { c.pubs = append(c.pubs, p) }
}

// WithPages connects the coordinator to pagewatch for badges, prompts,
// and re-checks.
func WithPages(pc PageControl) Option {
	return func(c *Coordinator) { c.pages = pc }
}

// WithDBOptions forwards options to the database open, e.g. an
// in-memory database in tests.
func WithDBOptions(opts ...dbopen.Option) Option {
	return func(c *Coordinator) { c.dbOpts = opts }
}

// New creates a Coordinator. Opens the SQLite database and initialises
// the gating state.
func New(cfg *Config, logger *slog.Logger, opts ...Option) (*Coordinator, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	c := &Coordinator{
		cfg:    cfg,
		logger: logger,
		newID:  idgen.Prefixed("ses_", idgen.NanoID(10)),
		slots:  semaphore.NewWeighted(cfg.MaxConcurrent),
		locks:  newInflight(),
		sticky: newSticky(cfg.StickyTTL),
		last:   make(map[string]lastResult),
	}
	for _, opt := range opts {
		opt(c)
	}

	s, err := store.Open(cfg.DBPath, c.dbOpts...)
	if err != nil {
		return nil, fmt.Errorf("coordinator: open store: %w", err)
	}
	c.store = s

	if c.classifier == nil {
		c.classifier = classify.New(classify.Config{
			Endpoint: cfg.Classify.Endpoint,
			APIKey:   cfg.Classify.APIKey,
			Timeout:  cfg.Classify.Timeout,
		})
	}
	return c, nil
}

// SetPages connects the coordinator to pagewatch after construction.
// The watcher needs the coordinator's sink to exist first, so the two
// are wired in this order.
func (c *Coordinator) SetPages(pc PageControl) {
	c.pages = pc
}

// Close shuts down the coordinator and closes the database.
func (c *Coordinator) Close() error {
	return c.store.Close()
}

// Store returns the underlying store for direct access (testing, admin).
func (c *Coordinator) Store() *store.Store {
	return c.store
}

// hostOf extracts the lowercased host from a page URL, empty on
// malformed input.
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
