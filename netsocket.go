package memcached

import (
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// closeFlushTimeout bounds how long Close waits for queued packets to be
// written to a peer that stopped reading.
const closeFlushTimeout = 2 * time.Second

// NetSocket adapts a net.Conn to the Socket capability.
//
// A reader goroutine fills receive buffers from the connection and a writer
// goroutine drains transmit buffers into it, so Receive and Transmit never
// block. All buffers are fixed-size packets carved from one slab handed in by
// the caller; nothing is allocated per request.
//
// Receive, Transmit and Close must be called from a single goroutine.
type NetSocket struct {
	conn   net.Conn
	notify func()

	in     chan []byte // received packets
	rxFree chan []byte // empty receive packets
	txFree chan []byte // empty transmit packets
	out    chan []byte // filled transmit packets

	window atomic.Int64
	eof    atomic.Bool
	failed atomic.Bool

	done      chan struct{}
	closeOnce sync.Once
	closing   bool
	wg        sync.WaitGroup
}

// NewNetSocket starts the I/O goroutines of conn. slab is split into
// 2*queueDepth packets of packetSize bytes and must hold at least that much.
// notify is called whenever new data or capacity is available; release is
// called once both goroutines exited and the slab is no longer referenced.
func NewNetSocket(conn net.Conn, slab []byte, packetSize, queueDepth int, notify, release func()) *NetSocket {
	if notify == nil {
		notify = func() {}
	}

	s := &NetSocket{
		conn:   conn,
		notify: notify,
		in:     make(chan []byte, queueDepth),
		rxFree: make(chan []byte, queueDepth),
		txFree: make(chan []byte, queueDepth),
		out:    make(chan []byte, queueDepth),
		done:   make(chan struct{}),
	}

	for i := range 2 * queueDepth {
		start := i * packetSize
		packet := slab[start : start+packetSize : start+packetSize]
		if i < queueDepth {
			s.rxFree <- packet
		} else {
			s.txFree <- packet
		}
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()

	go func() {
		s.wg.Wait()
		if release != nil {
			release()
		}
	}()

	return s
}

// SlabSize returns the slab size NewNetSocket needs.
func SlabSize(packetSize, queueDepth int) int {
	return 2 * packetSize * queueDepth
}

func (s *NetSocket) Receive(fn func(view []byte)) bool {
	select {
	case packet := <-s.in:
		fn(packet)
		s.rxFree <- packet[:cap(packet)]
		return true
	default:
		return false
	}
}

func (s *NetSocket) Transmit(fn func(buf []byte) int) bool {
	if s.closing {
		return false
	}

	select {
	case packet := <-s.txFree:
		n := fn(packet)
		if n <= 0 {
			s.txFree <- packet
			return true
		}
		s.out <- packet[:n]
		return true
	default:
		return false
	}
}

// AdvertiseWindow caps the size of the next read from the connection.
func (s *NetSocket) AdvertiseWindow(n int) {
	s.window.Store(int64(n))
}

// Closed reports whether the peer is gone: the read side hit EOF and every
// received packet was consumed, or a write failed.
func (s *NetSocket) Closed() bool {
	if s.failed.Load() {
		return true
	}
	return s.eof.Load() && len(s.in) == 0 && len(s.out) == 0
}

// Close flushes queued transmit packets and closes the connection. It
// returns immediately; the slab is released once the goroutines exited.
func (s *NetSocket) Close() error {
	s.closeOnce.Do(func() {
		s.closing = true
		_ = s.conn.SetWriteDeadline(time.Now().Add(closeFlushTimeout))
		close(s.out)
	})
	return nil
}

func (s *NetSocket) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

func (s *NetSocket) readLoop() {
	defer s.wg.Done()

	for {
		var packet []byte
		select {
		case packet = <-s.rxFree:
		case <-s.done:
			return
		}

		limit := len(packet)
		if w := int(s.window.Load()); w > 0 && w < limit {
			limit = w
		}

		n, err := s.conn.Read(packet[:limit])
		if n > 0 {
			select {
			case s.in <- packet[:n]:
				s.notify()
			case <-s.done:
				return
			}
		} else {
			s.rxFree <- packet
		}

		if err != nil {
			s.eof.Store(true)
			s.notify()
			return
		}
	}
}

func (s *NetSocket) writeLoop() {
	defer s.wg.Done()

	for packet := range s.out {
		if !s.failed.Load() {
			if _, err := s.conn.Write(packet); err != nil {
				s.failed.Store(true)
			}
		}
		s.txFree <- packet[:cap(packet)]
		s.notify()
	}

	close(s.done)
	_ = s.conn.Close()
}
