package idgen

import (
	"strings"
	"testing"
)

func TestNanoID_Length(t *testing.T) {
	gen := NanoID(12)
	id := gen()
	if len(id) != 12 {
		t.Fatalf("NanoID length: got %d, want 12", len(id))
	}
}

func TestNanoID_Unique(t *testing.T) {
	gen := NanoID(16)
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := gen()
		if seen[id] {
			t.Fatalf("NanoID collision after %d draws: %s", i, id)
		}
		seen[id] = true
	}
}

func TestUUIDv7_Parseable(t *testing.T) {
	id := UUIDv7()()
	if _, err := Parse(id); err != nil {
		t.Fatalf("Parse(%q): %v", id, err)
	}
}

func TestPrefixed(t *testing.T) {
	gen := Prefixed("stab_", NanoID(8))
	id := gen()
	if !strings.HasPrefix(id, "stab_") {
		t.Errorf("Prefixed: got %q, want stab_ prefix", id)
	}
	if len(id) != len("stab_")+8 {
		t.Errorf("Prefixed length: got %d, want %d", len(id), len("stab_")+8)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse("not-a-uuid"); err == nil {
		t.Error("Parse accepted invalid UUID")
	}
}
