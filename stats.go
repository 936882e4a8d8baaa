package memcached

import (
	"sync/atomic"
)

// ServerStats contains engine counters. All fields are safe for concurrent
// access through Snapshot.
//
// For Prometheus integration, expose these as:
//   - Gauge: CurrConnections
//   - Counters: everything else
type ServerStats struct {
	// Connection lifecycle
	TotalConnections    uint64 // Connections attached to a loop
	RejectedConnections uint64 // Connections refused at the MaxConns limit
	IdleClosed          uint64 // Connections closed by the idle timeout

	// Traffic
	BytesRead    uint64 // Bytes received from sockets
	BytesWritten uint64 // Bytes handed to sockets
	BytesDropped uint64 // Received bytes discarded (window truncation, tail drop)

	// Commands
	CmdGet         uint64 // Well-formed get commands
	CmdSet         uint64 // Well-formed set commands
	GetHits        uint64
	GetMisses      uint64
	ProtocolErrors uint64 // Rejected request lines
	Responses      uint64 // Responses fully emitted

	CurrConnections int64
}

// statsCollector provides internal methods for updating server stats.
// Shared by the server, its loop and every connection.
type statsCollector struct {
	stats ServerStats
}

func newStatsCollector() *statsCollector {
	return &statsCollector{}
}

func (c *statsCollector) recordOpen() {
	atomic.AddUint64(&c.stats.TotalConnections, 1)
	atomic.AddInt64(&c.stats.CurrConnections, 1)
}

func (c *statsCollector) recordClose() {
	atomic.AddInt64(&c.stats.CurrConnections, -1)
}

func (c *statsCollector) recordReject() {
	atomic.AddUint64(&c.stats.RejectedConnections, 1)
}

func (c *statsCollector) recordIdleClose() {
	atomic.AddUint64(&c.stats.IdleClosed, 1)
}

func (c *statsCollector) recordRead(n int) {
	atomic.AddUint64(&c.stats.BytesRead, uint64(n))
}

func (c *statsCollector) recordWrite(n int) {
	atomic.AddUint64(&c.stats.BytesWritten, uint64(n))
}

func (c *statsCollector) recordDrop(n int) {
	atomic.AddUint64(&c.stats.BytesDropped, uint64(n))
}

func (c *statsCollector) recordGet(hit bool) {
	atomic.AddUint64(&c.stats.CmdGet, 1)
	if hit {
		atomic.AddUint64(&c.stats.GetHits, 1)
	} else {
		atomic.AddUint64(&c.stats.GetMisses, 1)
	}
}

func (c *statsCollector) recordSet() {
	atomic.AddUint64(&c.stats.CmdSet, 1)
}

func (c *statsCollector) recordProtocolError() {
	atomic.AddUint64(&c.stats.ProtocolErrors, 1)
}

func (c *statsCollector) recordResponse() {
	atomic.AddUint64(&c.stats.Responses, 1)
}

func (c *statsCollector) snapshot() ServerStats {
	return ServerStats{
		TotalConnections:    atomic.LoadUint64(&c.stats.TotalConnections),
		RejectedConnections: atomic.LoadUint64(&c.stats.RejectedConnections),
		IdleClosed:          atomic.LoadUint64(&c.stats.IdleClosed),
		BytesRead:           atomic.LoadUint64(&c.stats.BytesRead),
		BytesWritten:        atomic.LoadUint64(&c.stats.BytesWritten),
		BytesDropped:        atomic.LoadUint64(&c.stats.BytesDropped),
		CmdGet:              atomic.LoadUint64(&c.stats.CmdGet),
		CmdSet:              atomic.LoadUint64(&c.stats.CmdSet),
		GetHits:             atomic.LoadUint64(&c.stats.GetHits),
		GetMisses:           atomic.LoadUint64(&c.stats.GetMisses),
		ProtocolErrors:      atomic.LoadUint64(&c.stats.ProtocolErrors),
		Responses:           atomic.LoadUint64(&c.stats.Responses),
		CurrConnections:     atomic.LoadInt64(&c.stats.CurrConnections),
	}
}
