package dispatch

import (
	"testing"
	"time"
)

func TestBackoffDoublesWithinJitter(t *testing.T) {
	b := Backoff{Base: 30 * time.Second, Max: time.Hour}

	cases := []struct {
		retryCount int
		center     time.Duration
	}{
		{0, 30 * time.Second},
		{1, 60 * time.Second},
		{2, 120 * time.Second},
		{3, 240 * time.Second},
	}

	for _, tc := range cases {
		for i := 0; i < 50; i++ {
			got := b.Next(tc.retryCount)
			lo := time.Duration(float64(tc.center) * (1 - jitterFraction))
			hi := time.Duration(float64(tc.center) * (1 + jitterFraction))
			if got < lo || got > hi {
				t.Fatalf("retry %d: delay %s outside [%s, %s]", tc.retryCount, got, lo, hi)
			}
		}
	}
}

func TestBackoffCapsAtMax(t *testing.T) {
	b := Backoff{Base: 30 * time.Second, Max: time.Hour}
	for i := 0; i < 50; i++ {
		if got := b.Next(20); got > time.Hour {
			t.Fatalf("delay %s exceeds cap", got)
		}
	}
}

func TestBackoffDefaults(t *testing.T) {
	var b Backoff
	got := b.Next(0)
	if got < 24*time.Second || got > 36*time.Second {
		t.Fatalf("default base delay %s out of range", got)
	}
}
