package ids

import (
	"testing"
	"time"
)

func TestNewIsSortableAndUnique(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	a := At(base)
	b := At(base.Add(time.Millisecond))
	if len(a) != 26 || len(b) != 26 {
		t.Fatalf("expected 26 char ULIDs, got %q %q", a, b)
	}
	if !(a < b) {
		t.Fatalf("expected %q < %q", a, b)
	}

	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := New()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
}
