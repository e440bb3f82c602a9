package coordinator

import (
	"sync"
	"time"
)

// sticky remembers which URLs were recently judged Relevant. Within the
// TTL an Irrelevant verdict for the same URL is treated as flicker and
// suppressed; it never upgrades anything else and never outlives the
// TTL.
type sticky struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]time.Time
}

func newSticky(ttl time.Duration) *sticky {
	return &sticky{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]time.Time),
	}
}

// markRelevant records a fresh Relevant verdict for url.
func (s *sticky) markRelevant(url string) {
	s.mu.Lock()
	s.entries[url] = s.now()
	s.mu.Unlock()
}

// override applies the flicker suppression: an Irrelevant verdict inside
// the window comes back as Relevant, anything else passes through.
func (s *sticky) override(url string, v Verdict) Verdict {
	if v != VerdictIrrelevant {
		return v
	}
	s.mu.Lock()
	at, ok := s.entries[url]
	if ok && s.now().Sub(at) > s.ttl {
		delete(s.entries, url)
		ok = false
	}
	s.mu.Unlock()
	if ok {
		return VerdictRelevant
	}
	return v
}

// clear drops all entries, done on session end.
func (s *sticky) clear() {
	s.mu.Lock()
	s.entries = make(map[string]time.Time)
	s.mu.Unlock()
}
