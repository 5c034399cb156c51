package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/MrEthical07/deskauth"
)

type fakeSource struct {
	snapshot deskauth.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() deskauth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }

func sampleSource() fakeSource {
	return fakeSource{
		snapshot: deskauth.MetricsSnapshot{
			Counters: map[deskauth.MetricID]uint64{
				deskauth.MetricAuthenticateSuccess: 7,
			},
			Histograms: map[deskauth.MetricID][]uint64{
				deskauth.MetricAuthenticateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	}
}

func TestCollectorCounters(t *testing.T) {
	reg := prom.NewRegistry()
	if err := reg.Register(NewCollector(sampleSource())); err != nil {
		t.Fatalf("register: %v", err)
	}

	expected := `
# HELP deskauth_audit_dropped_total Dropped audit events due to dispatcher backpressure.
# TYPE deskauth_audit_dropped_total counter
deskauth_audit_dropped_total 2
# HELP deskauth_authenticate_success_total Requests authenticated to a namespace-scoped credential.
# TYPE deskauth_authenticate_success_total counter
deskauth_authenticate_success_total 7
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"deskauth_audit_dropped_total", "deskauth_authenticate_success_total")
	if err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}

func TestHandlerRendersHistogram(t *testing.T) {
	h, err := Handler(sampleSource())
	if err != nil {
		t.Fatalf("handler: %v", err)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	out := rec.Body.String()
	if !strings.Contains(out, `deskauth_authenticate_latency_seconds_bucket{le="0.005"} 1`) {
		t.Fatalf("expected first bucket, got:\n%s", out)
	}
	if !strings.Contains(out, `deskauth_authenticate_latency_seconds_bucket{le="+Inf"} 36`) {
		t.Fatalf("expected +Inf bucket, got:\n%s", out)
	}
}

func TestCollectorNilSource(t *testing.T) {
	if n := testutil.CollectAndCount(NewCollector(nil)); n != 0 {
		t.Fatalf("expected no metrics, got %d", n)
	}
}
