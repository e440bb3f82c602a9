// Package snapshot defines the types exchanged between pagewatch and its
// consumers. pagewatch observes and stabilizes; consumers (the session
// coordinator) interpret.
package snapshot

import "time"

// Source identifies what triggered a stabilization attempt.
type Source string

const (
	SourceInitialLoad Source = "initial_load"
	SourceHistory     Source = "history"
	SourceMutation    Source = "mutation"
	SourceRecheck     Source = "recheck" // coordinator-requested re-check
)

// Outcome records how a stabilization attempt concluded.
type Outcome string

const (
	// OutcomeSettled: the content fingerprint held still for the full
	// quiet period.
	OutcomeSettled Outcome = "settled"
	// OutcomeTimedOut: the max-wait deadline fired before the page
	// settled. The snapshot is taken anyway.
	OutcomeTimedOut Outcome = "timed_out"
)

// Snapshot is one settled observation of a page, ready for
// classification. Immutable once constructed.
type Snapshot struct {
	URL             string    `json:"url"`
	Title           string    `json:"title"`
	MetaDescription string    `json:"meta_description"`
	MetaKeywords    string    `json:"meta_keywords"`
	BodyText        string    `json:"body_text"` // bounded-length snippet
	ExtractedAt     time.Time `json:"extracted_at"`

	Source    Source  `json:"source"`
	Outcome   Outcome `json:"outcome"`
	TabID     string  `json:"tab_id"`     // set by the watcher before the snapshot leaves it
	RequestID string  `json:"request_id"` // stabilization token ID, for log correlation
}

// View is a raw read of a page at one instant: its address and full
// serialized DOM. Everything else is derived by extraction.
type View struct {
	URL  string
	HTML string
}
