package webhook

import (
	"testing"
	"time"
)

func TestNextAttemptOffsetMatchesFixedSchedule(t *testing.T) {
	want := []time.Duration{0, 30 * time.Second, 120 * time.Second, 600 * time.Second, 3600 * time.Second}
	for i, w := range want {
		got, ok := NextAttemptOffset(i)
		if !ok {
			t.Fatalf("expected attempt %d to still be retryable", i)
		}
		if got != w {
			t.Errorf("attempt %d: got offset %s, want %s", i, got, w)
		}
	}
	if _, ok := NextAttemptOffset(len(want)); ok {
		t.Fatal("expected the schedule to be exhausted after 5 attempts")
	}
}
