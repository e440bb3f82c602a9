// Package pagewatch observes the pages a focus session visits. It
// drives Chrome through Rod, waits for each page change to stabilize,
// and emits one content snapshot per meaningful change to its sink.
//
// pagewatch observes, it does not judge. Whether a page fits the
// session focus is the coordinator's call; the watcher only reports
// what the page says and renders the verdict the coordinator hands
// back (badge, off-focus prompt).
package pagewatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"

	"github.com/karstvig/focusd/idgen"
	"github.com/karstvig/focusd/pagewatch/internal/browser"
	"github.com/karstvig/focusd/pagewatch/internal/config"
	"github.com/karstvig/focusd/pagewatch/internal/stabilize"
	"github.com/karstvig/focusd/pagewatch/internal/trigger"
	"github.com/karstvig/focusd/pagewatch/snapshot"
)

// Watcher is the top-level orchestrator: one browser, one sink, one
// watched entry per open tab.
type Watcher struct {
	cfg    *config.Config
	mgr    *browser.Manager
	sink   Sink
	logger *slog.Logger
	newID  idgen.Generator
	quotes quotePicker

	runCtx context.Context

	mu     sync.Mutex
	tabs   map[string]*watchedTab
	active string // tab ID with user attention
}

type watchedTab struct {
	tab         *browser.Tab
	stab        *stabilize.Stabilizer
	historyDeb  *trigger.Debouncer
	mutationDeb *trigger.Debouncer
	prompt      promptState
	url         string
	backURL     string // go-back target while the prompt is shown
}

// New creates a Watcher from configuration.
func New(cfg *config.Config, logger *slog.Logger, sink Sink) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}

	mode := browser.ModeHeadless
	if cfg.Browser.Mode == "headful" {
		mode = browser.ModeHeadful
	}
	mgr := browser.NewManager(browser.Config{
		RemoteURL:       cfg.Browser.Remote,
		MemoryLimit:     cfg.Browser.MemoryLimit,
		RecycleInterval: cfg.Browser.RecycleInterval,
		BlockResources:  cfg.Browser.BlockResources,
		Mode:            mode,
		XvfbDisplay:     cfg.Browser.XvfbDisplay,
		Logger:          logger,
	})

	return &Watcher{
		cfg:    cfg,
		mgr:    mgr,
		sink:   sink,
		logger: logger,
		newID:  idgen.Prefixed("tab_", idgen.NanoID(8)),
		tabs:   make(map[string]*watchedTab),
	}
}

// Start brings the browser up. Pages are added with WatchPage.
func (w *Watcher) Start(ctx context.Context) error {
	w.runCtx = ctx
	if _, err := w.mgr.Start(ctx); err != nil {
		return fmt.Errorf("pagewatch: start browser: %w", err)
	}
	w.mgr.OnRecycle = func(b *rod.Browser) { w.rewatchAll(ctx) }
	return nil
}

// WatchPage opens a tab on url and starts watching it. Returns the tab
// ID used in later calls.
func (w *Watcher) WatchPage(ctx context.Context, url string) (string, error) {
	tabID := w.newID()

	tab, err := browser.OpenTab(ctx, w.mgr, tabID, url, browser.Events{})
	if err != nil {
		return "", fmt.Errorf("pagewatch: open tab: %w", err)
	}
	w.attach(tabID, tab, url)
	w.logger.Info("pagewatch: watching page", "tab", tabID, "url", url)
	return tabID, nil
}

// ApplyTimings swaps the stabilization and trigger timings used for
// tabs opened from now on. Already-watched tabs keep theirs.
func (w *Watcher) ApplyTimings(st config.StabilizeConfig, tr config.TriggerConfig) {
	w.mu.Lock()
	w.cfg.Stabilize = st
	w.cfg.Trigger = tr
	w.mu.Unlock()
	w.logger.Info("pagewatch: timings updated",
		"poll", st.PollInterval, "quiet", st.QuietPeriod, "max_wait", st.MaxWait)
}

// attach wires a tab's events into a stabilizer and registers it.
func (w *Watcher) attach(tabID string, tab *browser.Tab, url string) {
	w.mu.Lock()
	stCfg := w.cfg.Stabilize
	trCfg := w.cfg.Trigger
	w.mu.Unlock()

	stab := stabilize.New(tab, stabilize.Config{
		PollInterval: stCfg.PollInterval,
		QuietPeriod:  stCfg.QuietPeriod,
		MaxWait:      stCfg.MaxWait,
		SendCooldown: stCfg.SendCooldown,
		BodyLimit:    stCfg.BodyLimit,
		MinReadable:  stCfg.MinReadable,
		Logger:       w.logger,
	}, func(snap snapshot.Snapshot) {
		snap.TabID = tabID
		if err := w.sink.SendSnapshot(w.runCtx, snap); err != nil {
			w.logger.Error("pagewatch: send snapshot failed", "tab", tabID, "error", err)
		}
	})

	wt := &watchedTab{
		tab:  tab,
		stab: stab,
		url:  url,
	}
	wt.historyDeb = trigger.NewDebouncer(trCfg.HistoryDebounce, func() {
		stab.Trigger(snapshot.SourceHistory)
	})
	wt.mutationDeb = trigger.NewDebouncer(trCfg.MutationDebounce, func() {
		stab.Trigger(snapshot.SourceMutation)
	})

	tab.SetEvents(browser.Events{
		OnHistory: func(newURL string) {
			w.mu.Lock()
			wt.url = newURL
			w.mu.Unlock()
			wt.historyDeb.Hit()
		},
		OnMutation: func() {
			wt.mutationDeb.Hit()
		},
		OnPromptAction: func(action string) {
			w.handlePromptAction(tabID, action)
		},
	})

	w.mu.Lock()
	w.tabs[tabID] = wt
	if w.active == "" {
		w.active = tabID
	}
	w.mu.Unlock()

	stab.Trigger(snapshot.SourceInitialLoad)
}

// SetActiveTab records which tab has the user's attention. Prompts and
// re-broadcasts only target the active tab.
func (w *Watcher) SetActiveTab(tabID string) {
	w.mu.Lock()
	if _, ok := w.tabs[tabID]; ok {
		w.active = tabID
	}
	w.mu.Unlock()
}

// ActiveTab returns the tab ID with user attention, or empty.
func (w *Watcher) ActiveTab() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// RequestRecheck forces a fresh stabilization watch on a tab, e.g.
// after a site leaves the whitelist.
func (w *Watcher) RequestRecheck(tabID string) error {
	w.mu.Lock()
	wt, ok := w.tabs[tabID]
	w.mu.Unlock()
	if !ok {
		return fmt.Errorf("pagewatch: no tab %s", tabID)
	}
	wt.stab.Trigger(snapshot.SourceRecheck)
	return nil
}

// ShowOffFocusPrompt renders the overlay in a tab. backURL is where the
// "go back" action sends the tab, the session's last relevant page; empty
// falls back to plain history back. A tab already showing the prompt is
// left alone.
func (w *Watcher) ShowOffFocusPrompt(ctx context.Context, tabID, focus, backURL string) error {
	w.mu.Lock()
	wt, ok := w.tabs[tabID]
	if ok && wt.prompt == promptShown {
		w.mu.Unlock()
		return nil
	}
	if ok {
		wt.prompt = promptShown
		wt.backURL = backURL
	}
	w.mu.Unlock()
	if !ok {
		return fmt.Errorf("pagewatch: no tab %s", tabID)
	}

	if err := wt.tab.ShowPrompt(ctx, focus, w.quotes.pick()); err != nil {
		w.mu.Lock()
		wt.prompt = promptHidden
		w.mu.Unlock()
		return err
	}
	return nil
}

// SetBadge updates a tab's session indicator. state is "relevant",
// "irrelevant", "pending" or "" to clear it.
func (w *Watcher) SetBadge(ctx context.Context, tabID, state string) error {
	w.mu.Lock()
	wt, ok := w.tabs[tabID]
	w.mu.Unlock()
	if !ok {
		return fmt.Errorf("pagewatch: no tab %s", tabID)
	}
	return wt.tab.SetBadge(ctx, state)
}

// CloseTab stops watching a tab and closes it.
func (w *Watcher) CloseTab(tabID string) error {
	w.mu.Lock()
	wt, ok := w.tabs[tabID]
	delete(w.tabs, tabID)
	if w.active == tabID {
		w.active = ""
		for id := range w.tabs {
			w.active = id
			break
		}
	}
	w.mu.Unlock()
	if !ok {
		return fmt.Errorf("pagewatch: no tab %s", tabID)
	}

	wt.historyDeb.Stop()
	wt.mutationDeb.Stop()
	wt.stab.Stop()
	return wt.tab.Close()
}

// Stop shuts down all tabs and the browser.
func (w *Watcher) Stop() {
	w.mu.Lock()
	tabs := w.tabs
	w.tabs = make(map[string]*watchedTab)
	w.active = ""
	w.mu.Unlock()

	for id, wt := range tabs {
		wt.historyDeb.Stop()
		wt.mutationDeb.Stop()
		wt.stab.Stop()
		wt.tab.Close()
		w.logger.Info("pagewatch: stopped tab", "tab", id)
	}
	w.sink.Close()
	w.mgr.Close()
}

// handlePromptAction reacts to the user's choice in the off-focus
// overlay.
func (w *Watcher) handlePromptAction(tabID, action string) {
	w.mu.Lock()
	wt, ok := w.tabs[tabID]
	url, backURL := "", ""
	if ok {
		wt.prompt = promptHidden
		url = wt.url
		backURL = wt.backURL
		wt.backURL = ""
	}
	w.mu.Unlock()
	if !ok {
		return
	}

	ctx := w.runCtx
	w.logger.Info("pagewatch: prompt action", "tab", tabID, "action", action)

	switch action {
	case "back":
		var err error
		if backURL != "" {
			err = wt.tab.Navigate(ctx, backURL)
		} else {
			err = wt.tab.GoBack(ctx)
		}
		if err != nil {
			w.logger.Warn("pagewatch: go back failed", "tab", tabID, "error", err)
		}
	case "whitelist":
		if err := w.sink.RequestWhitelist(ctx, url); err != nil {
			w.logger.Error("pagewatch: whitelist request failed", "url", url, "error", err)
		}
	case "dismiss":
		// Nothing to do beyond clearing the shown flag.
	}
}

// rewatchAll reopens every watched page after a browser recycle.
func (w *Watcher) rewatchAll(ctx context.Context) {
	w.mu.Lock()
	old := w.tabs
	w.tabs = make(map[string]*watchedTab)
	w.active = ""
	w.mu.Unlock()

	for tabID, wt := range old {
		wt.historyDeb.Stop()
		wt.mutationDeb.Stop()
		wt.stab.Stop()

		tab, err := browser.OpenTab(ctx, w.mgr, tabID, wt.url, browser.Events{})
		if err != nil {
			w.logger.Error("pagewatch: rewatch failed", "tab", tabID, "url", wt.url, "error", err)
			continue
		}
		w.attach(tabID, tab, wt.url)
	}
}
