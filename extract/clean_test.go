package extract

import "testing"

func TestCleanText(t *testing.T) {
	in := "  \ufeffhello\u200b   world\n\n\tagain\u00ad  "
	got := CleanText(in)
	if got != "hello world again" {
		t.Errorf("CleanText: got %q, want %q", got, "hello world again")
	}
}

func TestNormaliseForHash_WhitespaceInvariant(t *testing.T) {
	a := NormaliseForHash("Hello, World!  How are you?")
	b := NormaliseForHash("hello world\n\nhow   are you")
	if a != b {
		t.Errorf("NormaliseForHash not invariant: %q vs %q", a, b)
	}
}

func TestTruncate(t *testing.T) {
	text := "one two three four five"
	got := Truncate(text, 12)
	if len([]rune(got)) > 12 {
		t.Errorf("Truncate exceeded limit: %q (%d runes)", got, len([]rune(got)))
	}
	if got != "one two" {
		t.Errorf("Truncate: got %q, want %q", got, "one two")
	}
}

func TestTruncate_NoOp(t *testing.T) {
	if got := Truncate("short", 100); got != "short" {
		t.Errorf("Truncate: got %q, want unchanged", got)
	}
	if got := Truncate("anything", 0); got != "anything" {
		t.Errorf("Truncate with zero limit: got %q, want unchanged", got)
	}
}

func TestSnippeter_FallsBackToPlainText(t *testing.T) {
	d, err := Parse([]byte(`<html><body><p>tiny page</p></body></html>`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	s := NewSnippeter(100)
	got := s.Snippet(d, 2000)
	if got != "tiny page" {
		t.Errorf("Snippet: got %q, want fallback body text", got)
	}
}
