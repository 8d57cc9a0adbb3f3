package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/LemmyAI/puckserver/internal/transport"
)

const namespace = "puckserver"

// SessionMetrics exports a transport session snapshot to Prometheus. Values
// are read from the snapshot at scrape time.
type SessionMetrics struct {
	session func() transport.Session

	packetsIn  *prometheus.Desc
	packetsOut *prometheus.Desc
	kicked     *prometheus.Desc
	state      *prometheus.Desc
	connected  *prometheus.Desc
}

// NewSessionMetrics creates a collector reading from session.
func NewSessionMetrics(session func() transport.Session) *SessionMetrics {
	return &SessionMetrics{
		session: session,
		packetsIn: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "session", "packets_in_total"),
			"Packets decoded from the peer.", nil, nil),
		packetsOut: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "session", "packets_out_total"),
			"Packets flushed to the peer.", nil, nil),
		kicked: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "session", "kicked_total"),
			"Connections rejected while a peer was connected.", nil, nil),
		state: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "session", "state"),
			"Session state, 1 for the current state.", []string{"state"}, nil),
		connected: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "session", "connected"),
			"1 while a peer is connected.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (m *SessionMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.packetsIn
	ch <- m.packetsOut
	ch <- m.kicked
	ch <- m.state
	ch <- m.connected
}

// Collect implements prometheus.Collector.
func (m *SessionMetrics) Collect(ch chan<- prometheus.Metric) {
	sess := m.session()

	ch <- prometheus.MustNewConstMetric(m.packetsIn, prometheus.CounterValue, float64(sess.PacketsIn))
	ch <- prometheus.MustNewConstMetric(m.packetsOut, prometheus.CounterValue, float64(sess.PacketsOut))
	ch <- prometheus.MustNewConstMetric(m.kicked, prometheus.CounterValue, float64(sess.Kicked))

	for _, st := range []transport.State{
		transport.StateUnbound,
		transport.StateBinding,
		transport.StateListening,
		transport.StateConnected,
		transport.StateDisconnecting,
	} {
		v := 0.0
		if st == sess.State {
			v = 1
		}
		ch <- prometheus.MustNewConstMetric(m.state, prometheus.GaugeValue, v, st.String())
	}

	connected := 0.0
	if sess.State == transport.StateConnected {
		connected = 1
	}
	ch <- prometheus.MustNewConstMetric(m.connected, prometheus.GaugeValue, connected)
}

// NewRegistry returns a Prometheus registry with the Go runtime and process
// collectors and the given collectors registered.
func NewRegistry(cs ...prometheus.Collector) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
