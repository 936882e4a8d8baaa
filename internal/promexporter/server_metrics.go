package promexporter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"

	"github.com/pior/memcached"
)

type counterDesc struct {
	desc  *prometheus.Desc
	value func(memcached.ServerStats) uint64
}

// ServerMetrics exposes memcached.ServerStats. Values are read from a fresh
// snapshot at every scrape.
type ServerMetrics struct {
	stats    func() memcached.ServerStats
	counters []counterDesc
	current  *prometheus.Desc
}

func newCounter(name, help string, value func(memcached.ServerStats) uint64) counterDesc {
	return counterDesc{
		desc:  prometheus.NewDesc("memcached_"+name, help, nil, nil),
		value: value,
	}
}

// NewServerMetrics creates and registers the server collector.
func NewServerMetrics(registry prometheus.Registerer, stats func() memcached.ServerStats) *ServerMetrics {
	m := &ServerMetrics{
		stats: stats,
		counters: []counterDesc{
			newCounter("connections_total", "Connections accepted and attached to the event loop",
				func(s memcached.ServerStats) uint64 { return s.TotalConnections }),
			newCounter("connections_rejected_total", "Connections refused at the connection limit",
				func(s memcached.ServerStats) uint64 { return s.RejectedConnections }),
			newCounter("connections_idle_closed_total", "Connections closed by the idle timeout",
				func(s memcached.ServerStats) uint64 { return s.IdleClosed }),
			newCounter("read_bytes_total", "Bytes received from clients",
				func(s memcached.ServerStats) uint64 { return s.BytesRead }),
			newCounter("written_bytes_total", "Bytes sent to clients",
				func(s memcached.ServerStats) uint64 { return s.BytesWritten }),
			newCounter("dropped_bytes_total", "Received bytes discarded outside the receive window",
				func(s memcached.ServerStats) uint64 { return s.BytesDropped }),
			newCounter("cmd_get_total", "Get commands",
				func(s memcached.ServerStats) uint64 { return s.CmdGet }),
			newCounter("cmd_set_total", "Set commands",
				func(s memcached.ServerStats) uint64 { return s.CmdSet }),
			newCounter("get_hits_total", "Get commands that found the key",
				func(s memcached.ServerStats) uint64 { return s.GetHits }),
			newCounter("get_misses_total", "Get commands that did not find the key",
				func(s memcached.ServerStats) uint64 { return s.GetMisses }),
			newCounter("protocol_errors_total", "Rejected request lines",
				func(s memcached.ServerStats) uint64 { return s.ProtocolErrors }),
			newCounter("responses_total", "Responses fully transmitted",
				func(s memcached.ServerStats) uint64 { return s.Responses }),
		},
		current: prometheus.NewDesc("memcached_connections_current", "Open connections", nil, nil),
	}

	registry.MustRegister(m)
	return m
}

func (m *ServerMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.counters {
		ch <- c.desc
	}
	ch <- m.current
}

func (m *ServerMetrics) Collect(ch chan<- prometheus.Metric) {
	s := m.stats()
	for _, c := range m.counters {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.CounterValue, float64(c.value(s)))
	}
	ch <- prometheus.MustNewConstMetric(m.current, prometheus.GaugeValue, float64(s.CurrConnections))
}

// RegisterBreakerState exposes a circuit breaker state as a gauge
// (0=closed, 1=half-open, 2=open).
func RegisterBreakerState(registry prometheus.Registerer, name string, state func() gobreaker.State) {
	registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name:        "memcached_store_breaker_state",
			Help:        "Backing source circuit breaker state (0=closed, 1=half-open, 2=open)",
			ConstLabels: prometheus.Labels{"source": name},
		},
		func() float64 { return float64(state()) },
	))
}
