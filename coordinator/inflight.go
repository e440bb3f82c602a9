package coordinator

import "sync"

// inflight is the per-URL classification lock. A snapshot for a URL
// already being classified is dropped rather than queued; the page will
// trigger again if it keeps changing.
type inflight struct {
	mu   sync.Mutex
	urls map[string]struct{}
}

func newInflight() *inflight {
	return &inflight{urls: make(map[string]struct{})}
}

// tryAcquire claims the URL. Returns false if already held.
func (f *inflight) tryAcquire(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, held := f.urls[url]; held {
		return false
	}
	f.urls[url] = struct{}{}
	return true
}

func (f *inflight) release(url string) {
	f.mu.Lock()
	delete(f.urls, url)
	f.mu.Unlock()
}

func (f *inflight) held(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, held := f.urls[url]
	return held
}
