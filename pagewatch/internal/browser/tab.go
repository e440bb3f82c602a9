package browser

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/karstvig/focusd/pagewatch/snapshot"
)

//go:embed hooks.js
var hooksJS string

//go:embed prompt.js
var promptJS string

const bindingName = "__focusd_hooks"

// Events receives page signals from the injected hooks. All callbacks
// run on the binding listener goroutine.
type Events struct {
	// OnHistory fires on pushState/replaceState/popstate with the new URL.
	OnHistory func(newURL string)
	// OnMutation fires once per significant DOM mutation burst observed
	// in the page (the page-side observer already filters trivial churn).
	OnMutation func()
	// OnPromptAction fires when the user interacts with the off-focus
	// prompt: "back", "dismiss", or "whitelist".
	OnPromptAction func(action string)
}

// Tab wraps a Rod page with the focusd hooks: navigation and mutation
// signals out, the off-focus prompt overlay in. It satisfies the
// stabilizer's Page interface.
type Tab struct {
	TabID string

	page   *rod.Page
	mgr    *Manager
	events Events

	mu  sync.Mutex
	url string
}

// OpenTab creates a stealth tab, navigates it, and injects the hooks.
func OpenTab(ctx context.Context, mgr *Manager, tabID, pageURL string, ev Events) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	t := &Tab{TabID: tabID, page: page, mgr: mgr, events: ev, url: pageURL}

	if len(mgr.cfg.BlockResources) > 0 {
		t.blockResources(mgr.cfg.BlockResources)
	}

	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		mgr.log.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}

	if err := t.injectHooks(ctx); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: inject hooks: %w", err)
	}
	return t, nil
}

// AttachTab wraps an existing page (e.g. one the user opened themselves)
// without navigating it.
func AttachTab(ctx context.Context, mgr *Manager, tabID string, page *rod.Page) (*Tab, error) {
	info, err := page.Context(ctx).Info()
	if err != nil {
		return nil, fmt.Errorf("browser: page info: %w", err)
	}
	t := &Tab{TabID: tabID, page: page, mgr: mgr, url: info.URL}
	if err := t.injectHooks(ctx); err != nil {
		return nil, fmt.Errorf("browser: inject hooks: %w", err)
	}
	return t, nil
}

// SetEvents replaces the event callbacks. Call before the first signal
// is expected.
func (t *Tab) SetEvents(ev Events) {
	t.mu.Lock()
	t.events = ev
	t.mu.Unlock()
}

// URL returns the tab's current address as tracked through navigation
// and history signals. It never touches the DOM.
func (t *Tab) URL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.url
}

// View serialises the live DOM together with the tracked URL.
func (t *Tab) View(ctx context.Context) (*snapshot.View, error) {
	res, err := t.page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, fmt.Errorf("browser: read DOM: %w", err)
	}
	return &snapshot.View{URL: t.URL(), HTML: res.Value.Str()}, nil
}

// ShowPrompt renders the off-focus overlay in the page. quote is an
// optional motivational line shown under the message.
func (t *Tab) ShowPrompt(ctx context.Context, focus, quote string) error {
	_, err := t.page.Context(ctx).Eval(promptJS)
	if err != nil {
		return fmt.Errorf("browser: inject prompt: %w", err)
	}
	_, err = t.page.Context(ctx).Eval(`(focus, quote) => window.__focusd_showPrompt(focus, quote)`, focus, quote)
	if err != nil {
		return fmt.Errorf("browser: show prompt: %w", err)
	}
	return nil
}

// HidePrompt removes the overlay if shown.
func (t *Tab) HidePrompt(ctx context.Context) error {
	_, err := t.page.Context(ctx).Eval(`() => { if (window.__focusd_hidePrompt) window.__focusd_hidePrompt(); }`)
	return err
}

// SetBadge updates the small session indicator the hooks render in the
// page corner. state is "relevant", "irrelevant", "pending" or "".
func (t *Tab) SetBadge(ctx context.Context, state string) error {
	_, err := t.page.Context(ctx).Eval(`(s) => { if (window.__focusd_setBadge) window.__focusd_setBadge(s); }`, state)
	return err
}

// Navigate sends the tab to url.
func (t *Tab) Navigate(ctx context.Context, url string) error {
	if err := t.page.Context(ctx).Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate: %w", err)
	}
	t.mu.Lock()
	t.url = url
	t.mu.Unlock()
	return nil
}

// GoBack navigates the tab one history entry back.
func (t *Tab) GoBack(ctx context.Context) error {
	return t.page.Context(ctx).NavigateBack()
}

// Close closes the underlying page.
func (t *Tab) Close() error {
	if t.page != nil {
		return t.page.Close()
	}
	return nil
}

func (t *Tab) injectHooks(ctx context.Context) error {
	err := proto.RuntimeAddBinding{Name: bindingName}.Call(t.page)
	if err != nil {
		t.mgr.log.Warn("browser: add binding failed", "error", err)
	}
	go t.listenBinding(ctx)

	if _, err := t.page.Context(ctx).Eval(hooksJS); err != nil {
		return err
	}
	// Re-inject on full page loads so hooks survive hard navigations.
	if _, err := t.page.EvalOnNewDocument(hooksJS); err != nil {
		t.mgr.log.Warn("browser: persist hooks failed", "error", err)
	}
	return nil
}

// listenBinding receives JSON signals from the page-side hooks.
func (t *Tab) listenBinding(ctx context.Context) {
	t.page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}
		var sig struct {
			Event  string `json:"event"`
			URL    string `json:"url"`
			Action string `json:"action"`
		}
		if err := json.Unmarshal([]byte(e.Payload), &sig); err != nil {
			t.mgr.log.Warn("browser: bad hook payload", "error", err)
			return
		}

		t.mu.Lock()
		ev := t.events
		t.mu.Unlock()

		switch sig.Event {
		case "history":
			if sig.URL != "" {
				t.mu.Lock()
				t.url = sig.URL
				t.mu.Unlock()
			}
			if ev.OnHistory != nil {
				ev.OnHistory(sig.URL)
			}
		case "mutation":
			if ev.OnMutation != nil {
				ev.OnMutation()
			}
		case "prompt":
			if ev.OnPromptAction != nil {
				ev.OnPromptAction(sig.Action)
			}
		}
	})()
}

// blockResources drops requests for heavy resource types the text
// pipeline never needs.
func (t *Tab) blockResources(types []string) {
	blocked := make(map[string]bool, len(types))
	for _, ty := range types {
		blocked[strings.ToLower(ty)] = true
	}

	router := t.page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		ty := strings.ToLower(string(h.Request.Type()))
		drop := blocked[ty]
		switch ty {
		case "image":
			drop = drop || blocked["images"]
		case "font":
			drop = drop || blocked["fonts"]
		case "stylesheet":
			drop = drop || blocked["stylesheets"]
		}
		if drop {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
}
