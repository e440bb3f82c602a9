// Package browser manages the Chrome instance focusd watches: launch or
// remote attach via Rod, stealth setup, periodic recycling, and the tabs
// whose pages feed the stabilizer.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// Mode selects how pages are rendered.
type Mode int

const (
	ModeHeadless Mode = iota // Rod headless + stealth
	ModeHeadful              // Rod headful under Xvfb
)

// Config configures the browser manager.
type Config struct {
	// RemoteURL attaches to an already-running Chrome via its DevTools
	// WebSocket instead of launching one.
	RemoteURL string

	// MemoryLimit in bytes. The browser is recycled above it. Default 1GB.
	MemoryLimit int64

	// RecycleInterval bounds a Chrome process lifetime. Default 4h.
	RecycleInterval time.Duration

	// BlockResources lists resource types to drop (images, fonts, media,
	// stylesheets). Classification only needs text.
	BlockResources []string

	Mode        Mode
	XvfbDisplay string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = 1 << 30
	}
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = 4 * time.Hour
	}
	if c.XvfbDisplay == "" {
		c.XvfbDisplay = ":99"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns the Chrome process lifecycle.
type Manager struct {
	cfg Config
	log *slog.Logger

	mu        sync.RWMutex
	browser   *rod.Browser
	lnch      *launcher.Launcher
	xvfb      *exec.Cmd
	startedAt time.Time
	closed    bool

	// OnRecycle, when set, is called with the fresh browser handle after
	// a recycle so tab owners can reattach.
	OnRecycle func(*rod.Browser)
}

// NewManager creates a Manager. Call Start to bring Chrome up.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg, log: cfg.Logger}
}

// Start launches or attaches to Chrome and starts the recycle monitor.
func (m *Manager) Start(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("browser: manager closed")
	}

	b, err := m.connect()
	if err != nil {
		return nil, err
	}
	m.browser = b
	m.startedAt = time.Now()

	go m.monitor(ctx)
	return b, nil
}

// Browser returns the current handle.
func (m *Manager) Browser() *rod.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser
}

// Close tears down Chrome and the Xvfb display.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.teardown()
	return nil
}

func (m *Manager) connect() (*rod.Browser, error) {
	if m.cfg.Mode == ModeHeadful {
		if err := m.ensureXvfb(); err != nil {
			return nil, fmt.Errorf("browser: xvfb: %w", err)
		}
	}

	wsURL := m.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().Set("disable-blink-features", "AutomationControlled")
		if m.cfg.Mode == ModeHeadful {
			l = l.Headless(false).Env("DISPLAY", m.cfg.XvfbDisplay)
		} else {
			l = l.Headless(true)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		m.log.Info("browser: launched chrome", "mode", m.cfg.Mode)
	} else {
		m.log.Info("browser: attaching to remote chrome", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	if err := b.IgnoreCertErrors(true); err != nil {
		m.log.Warn("browser: ignore cert errors failed", "error", err)
	}
	return b, nil
}

// recycle replaces the Chrome process. Tab owners reattach through
// OnRecycle.
func (m *Manager) recycle() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("browser: manager closed")
	}
	m.log.Info("browser: recycling", "uptime", time.Since(m.startedAt))
	m.teardown()
	b, err := m.connect()
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("browser: relaunch: %w", err)
	}
	m.browser = b
	m.startedAt = time.Now()
	cb := m.OnRecycle
	m.mu.Unlock()

	if cb != nil {
		cb(b)
	}
	return nil
}

func (m *Manager) teardown() {
	if m.browser != nil {
		m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	if m.xvfb != nil {
		if m.xvfb.Process != nil {
			m.xvfb.Process.Kill()
			m.xvfb.Wait()
		}
		m.xvfb = nil
	}
}

func (m *Manager) monitor(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.RLock()
			closed, b, startedAt := m.closed, m.browser, m.startedAt
			m.mu.RUnlock()
			if closed || b == nil {
				return
			}

			if time.Since(startedAt) > m.cfg.RecycleInterval {
				m.log.Info("browser: recycle interval reached")
				if err := m.recycle(); err != nil {
					m.log.Error("browser: recycle failed", "error", err)
				}
				continue
			}

			used, err := jsHeapUsed(b)
			if err != nil {
				m.log.Debug("browser: heap probe failed", "error", err)
				continue
			}
			if used > m.cfg.MemoryLimit {
				m.log.Info("browser: memory limit exceeded", "used", used, "limit", m.cfg.MemoryLimit)
				if err := m.recycle(); err != nil {
					m.log.Error("browser: recycle failed", "error", err)
				}
			}
		}
	}
}

func (m *Manager) ensureXvfb() error {
	if m.xvfb != nil {
		return nil
	}
	cmd := exec.Command("Xvfb", m.cfg.XvfbDisplay, "-screen", "0", "1920x1080x24", "-ac")
	if err := cmd.Start(); err != nil {
		return err
	}
	m.xvfb = cmd
	time.Sleep(500 * time.Millisecond)
	m.log.Info("browser: xvfb started", "display", m.cfg.XvfbDisplay)
	return nil
}

// jsHeapUsed samples the first page's JS heap as a proxy for overall
// Chrome memory pressure.
func jsHeapUsed(b *rod.Browser) (int64, error) {
	pages, err := b.Pages()
	if err != nil || len(pages) == 0 {
		return 0, fmt.Errorf("no pages to probe")
	}
	res, err := pages[0].Eval(`() => performance.memory ? performance.memory.usedJSHeapSize : 0`)
	if err != nil {
		return 0, err
	}
	return int64(res.Value.Int()), nil
}
