package coordinator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/karstvig/focusd/classify"
	"github.com/karstvig/focusd/pagewatch/snapshot"
	_ "modernc.org/sqlite"
)

type fakeClassifier struct {
	mu    sync.Mutex
	calls int
	fn    func(classify.Request) (classify.Assessment, error)

	// When set, Classify signals started and waits on release.
	started chan struct{}
	release chan struct{}
}

func (f *fakeClassifier) Classify(ctx context.Context, req classify.Request) (classify.Assessment, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
		<-f.release
	}
	return f.fn(req)
}

func (f *fakeClassifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakePages struct {
	mu       sync.Mutex
	active   string
	badges   []string
	prompts  []string
	rechecks []string
}

func (p *fakePages) ActiveTab() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

func (p *fakePages) SetBadge(_ context.Context, tabID, state string) error {
	p.mu.Lock()
	p.badges = append(p.badges, tabID+":"+state)
	p.mu.Unlock()
	return nil
}

func (p *fakePages) ShowOffFocusPrompt(_ context.Context, tabID, focus, _ string) error {
	p.mu.Lock()
	p.prompts = append(p.prompts, tabID+":"+focus)
	p.mu.Unlock()
	return nil
}

func (p *fakePages) RequestRecheck(tabID string) error {
	p.mu.Lock()
	p.rechecks = append(p.rechecks, tabID)
	p.mu.Unlock()
	return nil
}

type resultCollector struct {
	mu      sync.Mutex
	results []Result
}

func (r *resultCollector) Publish(_ context.Context, res Result) {
	r.mu.Lock()
	r.results = append(r.results, res)
	r.mu.Unlock()
}

func (r *resultCollector) all() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Result, len(r.results))
	copy(out, r.results)
	return out
}

func (r *resultCollector) lastVerdict(t *testing.T) Result {
	t.Helper()
	all := r.all()
	if len(all) == 0 {
		t.Fatal("no results published")
	}
	return all[len(all)-1]
}

func newTest(t *testing.T, cl *fakeClassifier) (*Coordinator, *resultCollector, *fakePages) {
	t.Helper()
	cfg := &Config{
		DBPath:        filepath.Join(t.TempDir(), "focusd.db"),
		Cooldown:      40 * time.Millisecond,
		StickyTTL:     150 * time.Millisecond,
		MaxConcurrent: 2,
	}
	col := &resultCollector{}
	pages := &fakePages{active: "tab_1"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	c, err := New(cfg, logger,
		WithClassifier(cl),
		WithPublisher(col),
		WithPages(pages),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, col, pages
}

func relevantClassifier() *fakeClassifier {
	return &fakeClassifier{fn: func(classify.Request) (classify.Assessment, error) {
		return classify.Relevant, nil
	}}
}

func snap(url, tab string) snapshot.Snapshot {
	return snapshot.Snapshot{
		URL:     url,
		Title:   "t",
		TabID:   tab,
		Source:  snapshot.SourceInitialLoad,
		Outcome: snapshot.OutcomeSettled,
	}
}

func mustStart(t *testing.T, c *Coordinator, focus string) {
	t.Helper()
	if _, err := c.StartSession(context.Background(), focus); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
}

func TestHandleSnapshot_NoSession(t *testing.T) {
	cl := relevantClassifier()
	c, col, _ := newTest(t, cl)

	if err := c.HandleSnapshot(context.Background(), snap("https://example.com", "tab_1")); err != nil {
		t.Fatal(err)
	}
	if cl.callCount() != 0 {
		t.Error("classifier called without a session")
	}
	if len(col.all()) != 0 {
		t.Error("result published without a session")
	}
}

func TestHandleSnapshot_PausedSessionDrops(t *testing.T) {
	cl := relevantClassifier()
	c, col, _ := newTest(t, cl)
	ctx := context.Background()
	mustStart(t, c, "reading papers")
	if _, err := c.PauseSession(ctx); err != nil {
		t.Fatal(err)
	}

	if err := c.HandleSnapshot(ctx, snap("https://example.com", "tab_1")); err != nil {
		t.Fatal(err)
	}
	if cl.callCount() != 0 || len(col.all()) != 0 {
		t.Error("paused session still classified a snapshot")
	}
}

func TestHandleSnapshot_MalformedURL(t *testing.T) {
	cl := relevantClassifier()
	c, col, _ := newTest(t, cl)
	mustStart(t, c, "focus")

	if err := c.HandleSnapshot(context.Background(), snap("", "tab_1")); err != nil {
		t.Fatal(err)
	}
	if cl.callCount() != 0 || len(col.all()) != 0 {
		t.Error("snapshot without URL was not dropped")
	}
}

func TestWhitelist_RelevantWithoutNetwork(t *testing.T) {
	cl := relevantClassifier()
	c, col, _ := newTest(t, cl)
	ctx := context.Background()
	mustStart(t, c, "focus")

	// A bare-host entry covers every page on the site.
	if err := c.AddToWhitelist(ctx, "docs.example.com"); err != nil {
		t.Fatal(err)
	}
	if err := c.HandleSnapshot(ctx, snap("https://docs.example.com/api", "tab_1")); err != nil {
		t.Fatal(err)
	}

	if cl.callCount() != 0 {
		t.Error("whitelisted host reached the classifier")
	}
	res := col.lastVerdict(t)
	if res.Verdict != VerdictRelevant || !res.Whitelisted {
		t.Errorf("result = %+v, want whitelisted Relevant", res)
	}

	sess, err := c.Session(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sess.LastRelevantURL != "https://docs.example.com/api" {
		t.Errorf("last relevant = %q", sess.LastRelevantURL)
	}
}

func TestWhitelist_ExactURLEntry(t *testing.T) {
	cl := relevantClassifier()
	c, col, _ := newTest(t, cl)
	ctx := context.Background()
	mustStart(t, c, "focus")

	// A URL entry matches its page by exact string comparison only.
	if err := c.AddToWhitelist(ctx, "https://docs.example.com/page"); err != nil {
		t.Fatal(err)
	}

	if err := c.HandleSnapshot(ctx, snap("https://docs.example.com/page", "tab_1")); err != nil {
		t.Fatal(err)
	}
	if cl.callCount() != 0 {
		t.Error("exact whitelisted URL reached the classifier")
	}
	res := col.lastVerdict(t)
	if res.Verdict != VerdictRelevant || !res.Whitelisted {
		t.Errorf("result = %+v, want whitelisted Relevant", res)
	}

	// A sibling page on the same host is not covered.
	if err := c.HandleSnapshot(ctx, snap("https://docs.example.com/other", "tab_1")); err != nil {
		t.Fatal(err)
	}
	if got := cl.callCount(); got != 1 {
		t.Errorf("classifier calls = %d, want 1 for the non-matching URL", got)
	}
}

func TestClassify_IrrelevantShowsPrompt(t *testing.T) {
	cl := &fakeClassifier{fn: func(classify.Request) (classify.Assessment, error) {
		return classify.Irrelevant, nil
	}}
	c, col, pages := newTest(t, cl)
	mustStart(t, c, "deep work")

	if err := c.HandleSnapshot(context.Background(), snap("https://cats.example.com", "tab_1")); err != nil {
		t.Fatal(err)
	}

	res := col.lastVerdict(t)
	if res.Verdict != VerdictIrrelevant {
		t.Fatalf("verdict = %q", res.Verdict)
	}
	pages.mu.Lock()
	defer pages.mu.Unlock()
	if len(pages.prompts) != 1 || pages.prompts[0] != "tab_1:deep work" {
		t.Errorf("prompts = %v, want one with the session focus", pages.prompts)
	}
	if len(pages.badges) == 0 || pages.badges[len(pages.badges)-1] != "tab_1:irrelevant" {
		t.Errorf("badges = %v", pages.badges)
	}
}

func TestClassify_RelevantNoPrompt(t *testing.T) {
	cl := relevantClassifier()
	c, col, pages := newTest(t, cl)
	mustStart(t, c, "focus")

	if err := c.HandleSnapshot(context.Background(), snap("https://good.example.com", "tab_1")); err != nil {
		t.Fatal(err)
	}
	if res := col.lastVerdict(t); res.Verdict != VerdictRelevant {
		t.Fatalf("verdict = %q", res.Verdict)
	}
	pages.mu.Lock()
	defer pages.mu.Unlock()
	if len(pages.prompts) != 0 {
		t.Errorf("prompt shown for a relevant page: %v", pages.prompts)
	}
}

func TestClassify_CacheHitSkipsSecondCall(t *testing.T) {
	cl := relevantClassifier()
	c, col, _ := newTest(t, cl)
	ctx := context.Background()
	mustStart(t, c, "focus")

	if err := c.HandleSnapshot(ctx, snap("https://example.com/a", "tab_1")); err != nil {
		t.Fatal(err)
	}
	time.Sleep(60 * time.Millisecond) // clear the cooldown, stay inside cache TTL
	if err := c.HandleSnapshot(ctx, snap("https://example.com/a", "tab_1")); err != nil {
		t.Fatal(err)
	}

	if got := cl.callCount(); got != 1 {
		t.Errorf("classifier calls = %d, want 1 (second should hit cache)", got)
	}
	res := col.lastVerdict(t)
	if !res.FromCache || res.Verdict != VerdictRelevant {
		t.Errorf("second result = %+v, want cached Relevant", res)
	}
}

func TestSticky_SuppressesIrrelevantFlicker(t *testing.T) {
	verdicts := []classify.Assessment{classify.Relevant, classify.Irrelevant}
	i := 0
	cl := &fakeClassifier{fn: func(classify.Request) (classify.Assessment, error) {
		v := verdicts[i]
		i++
		return v, nil
	}}
	c, col, _ := newTest(t, cl)
	ctx := context.Background()
	mustStart(t, c, "focus")

	if err := c.HandleSnapshot(ctx, snap("https://example.com/spa", "tab_1")); err != nil {
		t.Fatal(err)
	}
	// Same focus means the first verdict is cached; wait out the
	// cooldown and drop the row so the second snapshot hits the
	// classifier again.
	time.Sleep(60 * time.Millisecond)
	clearCache(t, c)
	if err := c.HandleSnapshot(ctx, snap("https://example.com/spa", "tab_1")); err != nil {
		t.Fatal(err)
	}

	if got := cl.callCount(); got != 2 {
		t.Fatalf("classifier calls = %d, want 2", got)
	}
	res := col.lastVerdict(t)
	if res.Verdict != VerdictRelevant {
		t.Errorf("flicker published as %q, want sticky Relevant", res.Verdict)
	}

	// The suppressed verdict is also what the cache holds.
	cached, hit, err := c.Store().GetAssessment(ctx, "https://example.com/spa", "focus", time.Hour)
	if err != nil || !hit {
		t.Fatalf("cache lookup: hit=%v err=%v", hit, err)
	}
	if cached != string(VerdictRelevant) {
		t.Errorf("cached = %q, want Relevant", cached)
	}
}

func TestSticky_ExpiresAfterTTL(t *testing.T) {
	verdicts := []classify.Assessment{classify.Relevant, classify.Irrelevant}
	i := 0
	cl := &fakeClassifier{fn: func(classify.Request) (classify.Assessment, error) {
		v := verdicts[i]
		i++
		return v, nil
	}}
	c, col, _ := newTest(t, cl)
	ctx := context.Background()
	mustStart(t, c, "focus")

	if err := c.HandleSnapshot(ctx, snap("https://example.com/x", "tab_1")); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond) // past the 150ms sticky TTL
	clearCache(t, c)
	if err := c.HandleSnapshot(ctx, snap("https://example.com/x", "tab_1")); err != nil {
		t.Fatal(err)
	}

	if res := col.lastVerdict(t); res.Verdict != VerdictIrrelevant {
		t.Errorf("verdict = %q, want Irrelevant once the shield expired", res.Verdict)
	}
}

func TestQuotaLatch(t *testing.T) {
	fail := true
	cl := &fakeClassifier{fn: func(classify.Request) (classify.Assessment, error) {
		if fail {
			return "", classify.ErrQuotaExhausted
		}
		return classify.Relevant, nil
	}}
	c, col, _ := newTest(t, cl)
	ctx := context.Background()
	mustStart(t, c, "focus")

	if err := c.HandleSnapshot(ctx, snap("https://example.com/1", "tab_1")); err != nil {
		t.Fatal(err)
	}
	if res := col.lastVerdict(t); res.Verdict != VerdictLimitReached {
		t.Fatalf("verdict = %q, want LimitReached", res.Verdict)
	}
	if !c.LimitReached() {
		t.Fatal("latch not set after 429")
	}

	// Latched: a different URL gets LimitReached with no network call.
	time.Sleep(60 * time.Millisecond)
	if err := c.HandleSnapshot(ctx, snap("https://example.com/2", "tab_1")); err != nil {
		t.Fatal(err)
	}
	if got := cl.callCount(); got != 1 {
		t.Errorf("classifier calls while latched = %d, want 1", got)
	}
	if res := col.lastVerdict(t); res.Verdict != VerdictLimitReached {
		t.Errorf("verdict while latched = %q", res.Verdict)
	}

	fail = false
	c.ResetLimit()
	time.Sleep(60 * time.Millisecond)
	if err := c.HandleSnapshot(ctx, snap("https://example.com/3", "tab_1")); err != nil {
		t.Fatal(err)
	}
	if got := cl.callCount(); got != 2 {
		t.Errorf("classifier calls after reset = %d, want 2", got)
	}
	if res := col.lastVerdict(t); res.Verdict != VerdictRelevant {
		t.Errorf("verdict after reset = %q", res.Verdict)
	}
}

func TestCooldown_RebroadcastsToActiveTab(t *testing.T) {
	cl := relevantClassifier()
	c, col, pages := newTest(t, cl)
	ctx := context.Background()
	mustStart(t, c, "focus")

	if err := c.HandleSnapshot(ctx, snap("https://example.com/a", "tab_1")); err != nil {
		t.Fatal(err)
	}
	// Within the cooldown, active tab: re-broadcast, no new call.
	if err := c.HandleSnapshot(ctx, snap("https://example.com/a", "tab_1")); err != nil {
		t.Fatal(err)
	}
	if got := cl.callCount(); got != 1 {
		t.Errorf("classifier calls = %d, want 1", got)
	}
	res := col.lastVerdict(t)
	if !res.Rebroadcast || res.Verdict != VerdictRelevant {
		t.Errorf("result = %+v, want rebroadcast Relevant", res)
	}

	// Within the cooldown, inactive tab: dropped silently.
	pages.mu.Lock()
	pages.active = "tab_other"
	pages.mu.Unlock()
	before := len(col.all())
	if err := c.HandleSnapshot(ctx, snap("https://example.com/a", "tab_1")); err != nil {
		t.Fatal(err)
	}
	if len(col.all()) != before {
		t.Error("inactive tab still received a rebroadcast")
	}
}

func TestInflight_DropsConcurrentDuplicate(t *testing.T) {
	cl := &fakeClassifier{
		fn:      func(classify.Request) (classify.Assessment, error) { return classify.Relevant, nil },
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	c, _, _ := newTest(t, cl)
	ctx := context.Background()
	mustStart(t, c, "focus")

	done := make(chan error, 1)
	go func() {
		done <- c.HandleSnapshot(ctx, snap("https://example.com/slow", "tab_1"))
	}()
	<-cl.started // first classification is in flight

	if err := c.HandleSnapshot(ctx, snap("https://example.com/slow", "tab_1")); err != nil {
		t.Fatal(err)
	}
	close(cl.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	if got := cl.callCount(); got != 1 {
		t.Errorf("classifier calls = %d, want 1 (duplicate must be dropped)", got)
	}
}

func TestSessionLifecycle_Accounting(t *testing.T) {
	cl := relevantClassifier()
	c, _, pages := newTest(t, cl)
	ctx := context.Background()

	mustStart(t, c, "focus")
	pages.mu.Lock()
	rechecks := len(pages.rechecks)
	pages.mu.Unlock()
	if rechecks != 1 {
		t.Errorf("rechecks after start = %d, want 1 for the active tab", rechecks)
	}

	time.Sleep(30 * time.Millisecond)
	sess, err := c.PauseSession(ctx)
	if err != nil {
		t.Fatalf("PauseSession: %v", err)
	}
	if sess.AccumulatedMS < 20 {
		t.Errorf("accumulated after pause = %dms, want >= 20", sess.AccumulatedMS)
	}
	pausedTotal := sess.AccumulatedMS

	// Paused time must not accumulate.
	time.Sleep(30 * time.Millisecond)
	if _, err := c.ResumeSession(ctx); err != nil {
		t.Fatalf("ResumeSession: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	sess, err = c.EndSession(ctx)
	if err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if sess.AccumulatedMS < pausedTotal+20 {
		t.Errorf("accumulated after end = %dms, want >= %d", sess.AccumulatedMS, pausedTotal+20)
	}
	if sess.AccumulatedMS > pausedTotal+80 {
		t.Errorf("accumulated after end = %dms, paused interval leaked in", sess.AccumulatedMS)
	}

	day, err := c.DailyFocus(ctx, time.Now().Format("2006-01-02"))
	if err != nil {
		t.Fatal(err)
	}
	if day.FocusedMS != sess.AccumulatedMS {
		t.Errorf("ledger = %dms, session total = %dms", day.FocusedMS, sess.AccumulatedMS)
	}
	if day.Sessions != 1 {
		t.Errorf("ledger sessions = %d, want 1", day.Sessions)
	}
}

func TestSessionLifecycle_Errors(t *testing.T) {
	cl := relevantClassifier()
	c, _, _ := newTest(t, cl)
	ctx := context.Background()

	if _, err := c.PauseSession(ctx); !errors.Is(err, ErrNoSession) {
		t.Errorf("pause without session: %v", err)
	}
	mustStart(t, c, "focus")
	if _, err := c.StartSession(ctx, "another"); !errors.Is(err, ErrSessionExists) {
		t.Errorf("double start: %v", err)
	}
	if _, err := c.ResumeSession(ctx); !errors.Is(err, ErrNotPaused) {
		t.Errorf("resume while active: %v", err)
	}
	if _, err := c.PauseSession(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := c.PauseSession(ctx); !errors.Is(err, ErrAlreadyPaused) {
		t.Errorf("double pause: %v", err)
	}
	if _, err := c.EndSession(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := c.EndSession(ctx); !errors.Is(err, ErrNoSession) {
		t.Errorf("end after end: %v", err)
	}
}

func TestAssessmentCache_SurvivesSessionEnd(t *testing.T) {
	cl := relevantClassifier()
	c, col, _ := newTest(t, cl)
	ctx := context.Background()

	mustStart(t, c, "same focus")
	if err := c.HandleSnapshot(ctx, snap("https://example.com/a", "tab_1")); err != nil {
		t.Fatal(err)
	}
	if _, err := c.EndSession(ctx); err != nil {
		t.Fatal(err)
	}

	// A fresh session with the identical focus reuses the cached row
	// until its TTL runs out.
	mustStart(t, c, "same focus")
	time.Sleep(60 * time.Millisecond)
	if err := c.HandleSnapshot(ctx, snap("https://example.com/a", "tab_1")); err != nil {
		t.Fatal(err)
	}
	if got := cl.callCount(); got != 1 {
		t.Errorf("classifier calls = %d, want 1 (cached across sessions)", got)
	}
	if res := col.lastVerdict(t); !res.FromCache || res.Verdict != VerdictRelevant {
		t.Errorf("result = %+v, want cached Relevant", res)
	}
}

// clearCache drops the persisted assessments so the next snapshot has
// to go back to the classifier.
func clearCache(t *testing.T, c *Coordinator) {
	t.Helper()
	if _, err := c.Store().DB.Exec(`DELETE FROM assessment_cache`); err != nil {
		t.Fatal(err)
	}
}
