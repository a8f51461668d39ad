package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	merco "github.com/SametHaymana/merco-api"
)

type fakeSource struct {
	snapshot merco.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() merco.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                   { return f.dropped }

func scrape(t *testing.T, exp *PrometheusExporter) (*http.Response, string) {
	t.Helper()
	srv := httptest.NewServer(exp.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body failed: %v", err)
	}
	return resp, string(body)
}

func TestScrapeEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: merco.MetricsSnapshot{
			Counters:   map[merco.MetricID]uint64{},
			Histograms: map[merco.MetricID][]uint64{},
		},
	})

	_, body := scrape(t, exp)
	if strings.Contains(body, "merco_") {
		t.Fatalf("expected no merco series for disabled metrics, got:\n%s", body)
	}
}

func TestScrapeIncludesCounterAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: merco.MetricsSnapshot{
			Counters: map[merco.MetricID]uint64{
				merco.MetricSignInSuccess: 7,
			},
			Histograms: map[merco.MetricID][]uint64{
				merco.MetricAuthenticateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	resp, out := scrape(t, exp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus text content type, got %q", got)
	}
	for _, want := range []string{
		"merco_signin_success_total 7",
		"merco_signin_failure_total 0",
		`merco_authenticate_latency_seconds_bucket{le="0.005"} 1`,
		`merco_authenticate_latency_seconds_bucket{le="+Inf"} 36`,
		"merco_authenticate_latency_seconds_count 36",
		"merco_audit_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestExporterRegistersInCustomRegistry(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: merco.MetricsSnapshot{
			Counters:   map[merco.MetricID]uint64{merco.MetricRefreshSuccess: 3},
			Histograms: map[merco.MetricID][]uint64{},
		},
	})

	reg := prometheus.NewRegistry()
	if err := reg.Register(exp); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == "merco_refresh_success_total" {
			found = true
			if v := mf.GetMetric()[0].GetCounter().GetValue(); v != 3 {
				t.Fatalf("expected 3, got %v", v)
			}
		}
		if mf.GetName() == "merco_authenticate_latency_seconds" {
			t.Fatal("histogram must be absent when latency is disabled")
		}
	}
	if !found {
		t.Fatal("merco_refresh_success_total not gathered")
	}
}
