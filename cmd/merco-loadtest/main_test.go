package main

import (
	"errors"
	"testing"
	"time"
)

func TestPercentile(t *testing.T) {
	samples := make([]time.Duration, 100)
	for i := range samples {
		samples[i] = time.Duration(i+1) * time.Millisecond
	}
	cases := map[int]time.Duration{
		0:   time.Millisecond,
		50:  50 * time.Millisecond,
		99:  99 * time.Millisecond,
		100: 100 * time.Millisecond,
	}
	for p, want := range cases {
		if got := percentile(samples, p); got != want {
			t.Fatalf("p%d = %s, want %s", p, got, want)
		}
	}
	if percentile(nil, 50) != 0 {
		t.Fatal("empty samples should yield 0")
	}
}

func TestRunPhaseCountsFailures(t *testing.T) {
	stats := runPhase(100, 8, 10, func(i, _ int) error {
		if i%4 == 0 {
			return errors.New("boom")
		}
		return nil
	})
	if stats.ops != 100 || stats.failures != 25 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
