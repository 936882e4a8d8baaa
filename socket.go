package memcached

// Socket is the non-blocking transport capability a Connection runs over.
//
// Neither method blocks. When no data or no capacity is available they return
// false without calling fn, and the caller simply tries again on a later tick.
// Views passed to fn are owned by the socket and only valid during the call.
type Socket interface {
	// Receive calls fn with the next inbound view, if any. fn consumes the
	// whole view.
	Receive(fn func(view []byte)) bool

	// Transmit calls fn with a writable buffer when outbound capacity exists.
	// fn returns how many leading bytes of the buffer it filled; the socket
	// sends exactly those bytes.
	Transmit(fn func(buf []byte) int) bool
}

// WindowAdvertiser is implemented by sockets that can limit how many bytes the
// peer sends next. The Connection advertises its window before each receive.
type WindowAdvertiser interface {
	AdvertiseWindow(n int)
}

// Retransmitter is implemented by sockets that can lose bytes they already
// accepted from Transmit. Before sending new bytes the Connection asks for a
// rewind and regenerates the pending response from that offset. Offsets count
// from the first byte of the response in progress; a completed response
// cannot be rewound.
type Retransmitter interface {
	// Rewind returns the offset to resend from, if bytes were lost.
	Rewind() (off int, ok bool)
}

// closedSocket is implemented by sockets that know their peer is gone.
type closedSocket interface {
	Closed() bool
}
