package store

import (
	"context"
	"testing"
	"time"

	"github.com/karstvig/focusd/dbopen"
	_ "modernc.org/sqlite"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if _, err := db.Exec(Schema); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return &Store{DB: db}
}

func TestSessionRoundTrip(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	sess := &Session{ID: "ses_1", Focus: "writing the quarterly report"}
	if err := s.InsertSession(ctx, sess); err != nil {
		t.Fatalf("InsertSession: %v", err)
	}

	live, err := s.LiveSession(ctx)
	if err != nil {
		t.Fatalf("LiveSession: %v", err)
	}
	if live == nil || live.ID != "ses_1" {
		t.Fatalf("LiveSession = %+v, want ses_1", live)
	}
	if live.State != StateActive {
		t.Errorf("state = %q, want active", live.State)
	}

	now := time.Now().UnixMilli()
	live.State = StateEnded
	live.EndedAt = &now
	live.AccumulatedMS = 90_000
	live.LastRelevantURL = "https://example.com/report"
	if err := s.UpdateSession(ctx, live); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	if live, err = s.LiveSession(ctx); err != nil {
		t.Fatal(err)
	}
	if live != nil {
		t.Fatalf("LiveSession after end = %+v, want nil", live)
	}

	got, err := s.GetSession(ctx, "ses_1")
	if err != nil {
		t.Fatal(err)
	}
	if got.AccumulatedMS != 90_000 || got.LastRelevantURL != "https://example.com/report" {
		t.Errorf("persisted session = %+v", got)
	}
}

func TestWhitelist(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	if err := s.AddWhitelist(ctx, "Example.com"); err != nil {
		t.Fatal(err)
	}
	// Idempotent.
	if err := s.AddWhitelist(ctx, "example.com"); err != nil {
		t.Fatal(err)
	}
	if err := s.AddWhitelist(ctx, "https://news.site.com/article/42"); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		url  string
		host string
		want bool
	}{
		{"https://example.com/a", "example.com", true},
		{"https://www.example.com/b", "www.example.com", true},
		{"https://docs.example.com/c", "docs.example.com", true}, // parent match
		{"https://other.com/", "other.com", false},
		{"https://com/", "com", false},
		{"https://news.site.com/article/42", "news.site.com", true}, // exact URL entry
		{"https://news.site.com/article/43", "news.site.com", false},
	}
	for _, tc := range cases {
		got, err := s.IsWhitelisted(ctx, tc.url, tc.host)
		if err != nil {
			t.Fatal(err)
		}
		if got != tc.want {
			t.Errorf("IsWhitelisted(%q, %q) = %v, want %v", tc.url, tc.host, got, tc.want)
		}
	}

	removed, err := s.RemoveWhitelist(ctx, "example.com")
	if err != nil || !removed {
		t.Fatalf("RemoveWhitelist = %v, %v", removed, err)
	}
	if ok, _ := s.IsWhitelisted(ctx, "https://example.com/a", "example.com"); ok {
		t.Error("host still whitelisted after removal")
	}
}

func TestAssessmentCache(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	if err := s.PutAssessment(ctx, "https://example.com/a", "learning Go", "Relevant"); err != nil {
		t.Fatal(err)
	}

	got, ok, err := s.GetAssessment(ctx, "https://example.com/a", "learning Go", time.Hour)
	if err != nil || !ok {
		t.Fatalf("GetAssessment = %v, %v", ok, err)
	}
	if got != "Relevant" {
		t.Errorf("assessment = %q", got)
	}

	// Same URL, different focus: miss.
	if _, ok, _ = s.GetAssessment(ctx, "https://example.com/a", "gardening", time.Hour); ok {
		t.Error("cache hit across different focus")
	}

	// Past TTL: miss.
	if _, ok, _ = s.GetAssessment(ctx, "https://example.com/a", "learning Go", 0); ok {
		t.Error("cache hit past TTL")
	}

	// Upsert refreshes.
	if err := s.PutAssessment(ctx, "https://example.com/a", "learning Go", "Irrelevant"); err != nil {
		t.Fatal(err)
	}
	got, _, _ = s.GetAssessment(ctx, "https://example.com/a", "learning Go", time.Hour)
	if got != "Irrelevant" {
		t.Errorf("assessment after upsert = %q", got)
	}
}

func TestPruneAssessments(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	for _, url := range []string{"https://a.com", "https://b.com", "https://c.com"} {
		if err := s.PutAssessment(ctx, url, "f", "Relevant"); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := s.PruneAssessments(ctx, time.Hour, 2)
	if err != nil {
		t.Fatalf("PruneAssessments: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1 over the row bound", removed)
	}
}

func TestDailyFocusLedger(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	if err := s.AddDailyFocus(ctx, "2026-08-31", 60_000, false); err != nil {
		t.Fatal(err)
	}
	if err := s.AddDailyFocus(ctx, "2026-08-31", 30_000, true); err != nil {
		t.Fatal(err)
	}

	day, err := s.DailyFocus(ctx, "2026-08-31")
	if err != nil {
		t.Fatal(err)
	}
	if day.FocusedMS != 90_000 {
		t.Errorf("focused_ms = %d, want 90000", day.FocusedMS)
	}
	if day.Sessions != 1 {
		t.Errorf("sessions = %d, want 1", day.Sessions)
	}

	empty, err := s.DailyFocus(ctx, "2026-09-01")
	if err != nil {
		t.Fatal(err)
	}
	if empty.FocusedMS != 0 || empty.Sessions != 0 {
		t.Errorf("absent day = %+v, want zeros", empty)
	}

	if err := s.AddDailyFocus(ctx, "2026-08-30", 10_000, true); err != nil {
		t.Fatal(err)
	}
	list, err := s.ListDailyFocus(ctx, "2026-08-30")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Day != "2026-08-31" {
		t.Errorf("ListDailyFocus = %+v, want newest first", list)
	}
}
