package main

import (
	"strings"
	"testing"
)

const baselineOutput = `goos: linux
goarch: amd64
pkg: github.com/SametHaymana/merco-api
BenchmarkAuthenticate-8         	  300000	      4000 ns/op	    1200 B/op	      20 allocs/op
BenchmarkAuthenticate-8         	  300000	      4200 ns/op	    1200 B/op	      20 allocs/op
BenchmarkAuthenticateStrict-8   	  100000	     12000 ns/op	    3000 B/op	      45 allocs/op
BenchmarkRefresh-8              	   50000	     30000 ns/op
BenchmarkAuthorize-8            	 2000000	       500 ns/op	       0 B/op	       0 allocs/op
BenchmarkUntracked-8            	 2000000	       100 ns/op
PASS
`

func TestParse(t *testing.T) {
	s, err := parse(strings.NewReader(baselineOutput))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := s["BenchmarkAuthenticate"]["ns/op"]; len(got) != 2 || got[1] != 4200 {
		t.Fatalf("unexpected samples %v", got)
	}
	if _, ok := s["BenchmarkUntracked"]; ok {
		t.Fatal("untracked benchmark should be ignored")
	}
	if got := median(s["BenchmarkAuthenticate"]["ns/op"]); got != 4100 {
		t.Fatalf("median = %v", got)
	}
}

func TestCompareDetectsRegression(t *testing.T) {
	base, _ := parse(strings.NewReader(baselineOutput))
	slower := strings.Replace(baselineOutput, "30000 ns/op", "45000 ns/op", 1)
	cand, _ := parse(strings.NewReader(slower))

	rows, failures := compare(base, cand, 0.30)
	if len(failures) != 1 || !strings.Contains(failures[0], "BenchmarkRefresh ns/op") {
		t.Fatalf("unexpected failures %v", failures)
	}
	if len(rows) != 7 {
		t.Fatalf("expected 7 rows, got %d", len(rows))
	}
}

func TestCompareZeroAllocBaseline(t *testing.T) {
	base, _ := parse(strings.NewReader(baselineOutput))
	allocating := strings.Replace(baselineOutput, "0 B/op	       0 allocs/op", "16 B/op	       1 allocs/op", 1)
	cand, _ := parse(strings.NewReader(allocating))

	_, failures := compare(base, cand, 0.30)
	if len(failures) != 1 || !strings.Contains(failures[0], "BenchmarkAuthorize allocs/op went from 0") {
		t.Fatalf("unexpected failures %v", failures)
	}
}

func TestCompareMissingSamples(t *testing.T) {
	base, _ := parse(strings.NewReader(baselineOutput))
	_, failures := compare(base, samples{}, 0.30)
	if len(failures) != 7 {
		t.Fatalf("expected 7 missing-sample failures, got %v", failures)
	}
}

func TestTrimProcs(t *testing.T) {
	for in, want := range map[string]string{
		"BenchmarkRefresh-16": "BenchmarkRefresh",
		"BenchmarkRefresh":    "BenchmarkRefresh",
		"BenchmarkFoo-bar":    "BenchmarkFoo-bar",
	} {
		if got := trimProcs(in); got != want {
			t.Fatalf("trimProcs(%q) = %q", in, got)
		}
	}
}
