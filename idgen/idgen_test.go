package idgen

import (
	"strings"
	"testing"
)

func TestUUIDv7(t *testing.T) {
	gen := UUIDv7()
	id := gen()
	if len(id) != 36 || len(strings.Split(id, "-")) != 5 {
		t.Fatalf("UUIDv7: bad format %q", id)
	}

	seen := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		next := gen()
		if _, ok := seen[next]; ok {
			t.Fatalf("duplicate at iteration %d", i)
		}
		seen[next] = struct{}{}
	}
}

func TestPrefixed(t *testing.T) {
	gen := Prefixed("evt_", Default)
	id := gen()
	if !strings.HasPrefix(id, "evt_") {
		t.Fatalf("Prefixed: got %q, want evt_ prefix", id)
	}
	if len(id) != 4+36 {
		t.Fatalf("Prefixed: got length %d, want 40", len(id))
	}
}

func TestNewDefaultsToUUIDv7(t *testing.T) {
	id := New()
	if len(id) != 36 || len(strings.Split(id, "-")) != 5 {
		t.Fatalf("New: got %q, want a UUID", id)
	}
}
