package ids

import (
	"testing"
	"time"
)

func TestNewAtIsMonotonic(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := NewAt(at)
	b := NewAt(at)
	if a >= b {
		t.Fatalf("expected %s < %s", a, b)
	}
}

func TestTimeRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	got, ok := Time(NewAt(at))
	if !ok {
		t.Fatal("expected parseable id")
	}
	if !got.Equal(at) {
		t.Fatalf("Time()=%v, want %v", got, at)
	}
	if _, ok := Time("not-a-ulid"); ok {
		t.Fatal("expected invalid id to be rejected")
	}
}
