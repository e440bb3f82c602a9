package coordinator

import "time"

// Verdict is a terminal classification state for one page visit.
type Verdict string

const (
	VerdictRelevant     Verdict = "Relevant"
	VerdictIrrelevant   Verdict = "Irrelevant"
	VerdictError        Verdict = "Error"
	VerdictLimitReached Verdict = "LimitReached"
)

// Result is one published assessment, delivered to every publisher
// (WebSocket hub, tab badge, prompt).
type Result struct {
	SessionID   string    `json:"session_id"`
	TabID       string    `json:"tab_id"`
	URL         string    `json:"url"`
	Verdict     Verdict   `json:"verdict"`
	Whitelisted bool      `json:"whitelisted,omitempty"`
	FromCache   bool      `json:"from_cache,omitempty"`
	Rebroadcast bool      `json:"rebroadcast,omitempty"`
	At          time.Time `json:"at"`
}

// badgeState maps a verdict to the page badge rendered by pagewatch.
func badgeState(v Verdict) string {
	switch v {
	case VerdictRelevant:
		return "relevant"
	case VerdictIrrelevant:
		return "irrelevant"
	case VerdictError, VerdictLimitReached:
		return "pending"
	default:
		return ""
	}
}
