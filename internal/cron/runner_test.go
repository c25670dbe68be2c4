package cronrunner

import (
	"context"
	"testing"
	"time"
)

func TestTickIDStableWithinMinute(t *testing.T) {
	a := time.Date(2026, 1, 2, 3, 4, 1, 0, time.UTC)
	b := time.Date(2026, 1, 2, 3, 4, 59, 0, time.UTC)
	if TickID(a) != TickID(b) {
		t.Fatalf("TickID differs within one minute: %s vs %s", TickID(a), TickID(b))
	}
	if TickID(a) == TickID(a.Add(time.Minute)) {
		t.Fatalf("TickID should change across minutes")
	}
}

func TestAddRejectsBadSpec(t *testing.T) {
	r := New(nil, context.Background())
	if _, err := r.Add("not a spec", func(context.Context, string) {}); err == nil {
		t.Fatalf("expected error for bad spec")
	}
	if _, err := r.Add("0 0 */4 * * *", func(context.Context, string) {}); err != nil {
		t.Fatalf("default spec rejected: %v", err)
	}
}
