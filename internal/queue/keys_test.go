package queue

import (
	"bytes"
	"testing"
)

func TestEncodePriorityPreservesOrder(t *testing.T) {
	priorities := []int64{-1 << 62, -100, -5, -1, 0, 1, 5, 100, 1 << 62}
	for i := 1; i < len(priorities); i++ {
		lo := encodePriority(priorities[i-1])
		hi := encodePriority(priorities[i])
		if lo >= hi {
			t.Errorf("encodePriority(%d) >= encodePriority(%d)", priorities[i-1], priorities[i])
		}
	}
	for _, p := range priorities {
		if got := decodePriority(encodePriority(p)); got != p {
			t.Errorf("roundtrip %d -> %d", p, got)
		}
	}
}

func TestWaitKeyOrdering(t *testing.T) {
	// Lower priority sorts first; ties broken by enqueue time.
	urgent := waitKey("q", -5, 2000, "b")
	lowOld := waitKey("q", 5, 1000, "a")
	lowNew := waitKey("q", 5, 3000, "c")

	if bytes.Compare(urgent, lowOld) >= 0 {
		t.Fatalf("priority -5 does not sort before 5")
	}
	if bytes.Compare(lowOld, lowNew) >= 0 {
		t.Fatalf("earlier enqueue does not sort first at equal priority")
	}
}

func TestIDFromIndexKey(t *testing.T) {
	key := waitKey("jobs", 7, 42, "deadbeef")
	prefix := waitPrefix("jobs")
	if got := idFromIndexKey(key, len(prefix), 16); got != "deadbeef" {
		t.Fatalf("id = %q", got)
	}
	sort, ok := sortFieldFromIndexKey(key, len(prefix), 0)
	if !ok || decodePriority(sort) != 7 {
		t.Fatalf("priority = %d, %v", decodePriority(sort), ok)
	}
}

func TestValidateName(t *testing.T) {
	if err := validateName("queue", "jobs-2024_a"); err != nil {
		t.Fatalf("valid name rejected: %v", err)
	}
	for _, bad := range []string{"", "a/b", "a\x00b"} {
		if err := validateName("queue", bad); err == nil {
			t.Errorf("accepted %q", bad)
		}
	}
}

func TestKeyRangeCoversPrefix(t *testing.T) {
	lo, hi := keyRange(waitPrefix("q"))
	inside := waitKey("q", 0, 0, "x")
	if bytes.Compare(inside, lo) < 0 || bytes.Compare(inside, hi) >= 0 {
		t.Fatalf("key outside range")
	}
	other := waitKey("q2", 0, 0, "x")
	if bytes.Compare(other, lo) >= 0 && bytes.Compare(other, hi) < 0 {
		t.Fatalf("range leaks into another queue")
	}
}
