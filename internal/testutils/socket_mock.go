package testutils

import (
	"bytes"
)

// SocketMock is a scripted implementation of the memcached Socket capability
// for testing. Inbound views are delivered one per Receive call, in order.
type SocketMock struct {
	inbound [][]byte
	written bytes.Buffer
	windows []int

	txSize  int // size of each transmit buffer
	txCalls int // transmit calls left, negative for unlimited

	receives  int
	transmits int

	hungUp bool
	closed bool

	rewind int // offset requested by RequestRewind, -1 when none
}

// NewSocketMock creates a socket that will deliver each view separately.
func NewSocketMock(views ...string) *SocketMock {
	m := &SocketMock{txSize: 64, txCalls: -1, rewind: -1}
	m.Feed(views...)
	return m
}

// Feed queues more inbound views.
func (m *SocketMock) Feed(views ...string) {
	for _, v := range views {
		m.inbound = append(m.inbound, []byte(v))
	}
}

// FeedBytes queues every byte of s as its own view.
func (m *SocketMock) FeedBytes(s string) {
	for i := range len(s) {
		m.inbound = append(m.inbound, []byte{s[i]})
	}
}

// SetTransmitCapacity sets the transmit buffer size and how many more
// Transmit calls get a buffer. calls < 0 means unlimited.
func (m *SocketMock) SetTransmitCapacity(size, calls int) {
	m.txSize = size
	m.txCalls = calls
}

func (m *SocketMock) Receive(fn func(view []byte)) bool {
	if len(m.inbound) == 0 || m.closed {
		return false
	}
	view := m.inbound[0]
	m.inbound = m.inbound[1:]
	m.receives++
	fn(view)
	return true
}

func (m *SocketMock) Transmit(fn func(buf []byte) int) bool {
	if m.txCalls == 0 || m.closed {
		return false
	}
	if m.txCalls > 0 {
		m.txCalls--
	}
	m.transmits++

	buf := bytes.Repeat([]byte{0xAA}, m.txSize)
	n := fn(buf)
	m.written.Write(buf[:n])
	return true
}

func (m *SocketMock) AdvertiseWindow(n int) {
	m.windows = append(m.windows, n)
}

// RequestRewind simulates the loss of transmitted bytes from off onwards.
func (m *SocketMock) RequestRewind(off int) {
	m.rewind = off
}

func (m *SocketMock) Rewind() (int, bool) {
	off := m.rewind
	m.rewind = -1
	return off, off >= 0
}

// HangUp simulates the peer going away.
func (m *SocketMock) HangUp() {
	m.hungUp = true
}

// Closed reports whether the peer hung up or the socket was closed.
func (m *SocketMock) Closed() bool {
	return m.hungUp || m.closed
}

func (m *SocketMock) Close() error {
	m.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (m *SocketMock) IsClosed() bool {
	return m.closed
}

// Written returns every byte transmitted so far.
func (m *SocketMock) Written() string {
	return m.written.String()
}

// Windows returns the advertised windows, oldest first.
func (m *SocketMock) Windows() []int {
	return m.windows
}

// PendingViews returns the number of inbound views not yet received.
func (m *SocketMock) PendingViews() int {
	return len(m.inbound)
}

// Receives returns the number of Receive calls that delivered a view.
func (m *SocketMock) Receives() int {
	return m.receives
}
