package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"

	"github.com/LemmyAI/puckserver/internal/transport"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	out := make(map[string]*dto.MetricFamily, len(mfs))
	for _, mf := range mfs {
		out[mf.GetName()] = mf
	}
	return out
}

func TestSessionMetrics(t *testing.T) {
	sess := transport.Session{
		State:      transport.StateConnected,
		PacketsIn:  4,
		PacketsOut: 9,
		Kicked:     1,
	}
	reg, err := NewRegistry(NewSessionMetrics(func() transport.Session { return sess }))
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	mfs := gather(t, reg)

	if v := mfs["puckserver_session_packets_in_total"].GetMetric()[0].GetCounter().GetValue(); v != 4 {
		t.Errorf("expected packets in 4, got %v", v)
	}
	if v := mfs["puckserver_session_packets_out_total"].GetMetric()[0].GetCounter().GetValue(); v != 9 {
		t.Errorf("expected packets out 9, got %v", v)
	}
	if v := mfs["puckserver_session_connected"].GetMetric()[0].GetGauge().GetValue(); v != 1 {
		t.Errorf("expected connected 1, got %v", v)
	}

	for _, m := range mfs["puckserver_session_state"].GetMetric() {
		label := m.GetLabel()[0].GetValue()
		want := 0.0
		if label == "connected" {
			want = 1
		}
		if m.GetGauge().GetValue() != want {
			t.Errorf("state %s: expected %v, got %v", label, want, m.GetGauge().GetValue())
		}
	}
}

func TestSessionMetrics_Scrape(t *testing.T) {
	reg, err := NewRegistry(NewSessionMetrics(func() transport.Session {
		return transport.Session{State: transport.StateListening}
	}))
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	rec := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, `puckserver_session_state{state="listening"} 1`) {
		t.Errorf("expected listening state in scrape, got:\n%s", body)
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Error("expected go runtime metrics")
	}
}

func TestNewRegistry_DuplicateCollector(t *testing.T) {
	m := NewSessionMetrics(func() transport.Session { return transport.Session{} })
	if _, err := NewRegistry(m, m); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}
