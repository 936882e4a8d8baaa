package memcached

import (
	"io"
	"log/slog"
	"time"

	"github.com/smallnest/ringbuffer"

	"github.com/pior/memcached/internal/coarsetime"
	"github.com/pior/memcached/protocol"
	"github.com/pior/memcached/store"
)

// Connection is the protocol state of one client.
//
// It owns a parser, the key scratch the parser fills, and at most one pending
// response. Receiving and emitting never overlap: while a response is pending
// the connection does not accept input.
//
// A Connection is not safe for concurrent use; it is driven by one Loop.
type Connection struct {
	socket Socket
	store  store.Store

	scratch *protocol.KeyScratch
	parser  *protocol.Parser
	sizer   protocol.WindowSizer
	emitter *protocol.Emitter
	resend  int // next offset to retransmit, -1 when none

	// backlog holds the tail of a view when pipelining is on
	backlog *ringbuffer.RingBuffer

	stats      *statsCollector
	logger     *slog.Logger
	lastActive time.Time
}

// NewConnection returns a connection serving st over socket.
func NewConnection(socket Socket, st store.Store, cfg Config) *Connection {
	return newConnection(socket, st, cfg.withDefaults(), newStatsCollector())
}

func newConnection(socket Socket, st store.Store, cfg Config, stats *statsCollector) *Connection {
	scratch := protocol.NewKeyScratch(cfg.MaxKeyLength)

	c := &Connection{
		socket:     socket,
		store:      st,
		scratch:    scratch,
		parser:     protocol.NewParser(scratch, cfg.MaxLineLength),
		sizer:      protocol.NewWindowSizer(cfg.MaxLineLength, cfg.pipelineMode()),
		stats:      stats,
		logger:     cfg.Logger,
		lastActive: coarsetime.Now(),
		resend:     -1,
	}
	if cfg.Pipelining {
		c.backlog = ringbuffer.New(cfg.MaxLineLength)
	}
	return c
}

// Poll gives the connection one chance to make progress: finish the pending
// response, replay buffered request bytes, then receive. It reports whether
// anything happened.
func (c *Connection) Poll() bool {
	progress := c.flush()

	for c.emitter == nil && c.replay() {
		progress = true
		c.flush()
	}

	if c.emitter == nil && c.receive() {
		progress = true
		c.flush()
	}

	if progress {
		c.lastActive = coarsetime.Now()
	}
	return progress
}

// Pending reports whether a response is waiting for transmit capacity.
func (c *Connection) Pending() bool {
	return c.emitter != nil
}

// Window returns the number of bytes the connection accepts next.
func (c *Connection) Window() int {
	return c.sizer.Next(c.parser)
}

// IdleFor returns the time since the connection last made progress.
func (c *Connection) IdleFor() time.Duration {
	return coarsetime.Since(c.lastActive)
}

// Closed reports whether the socket is gone and nothing is left to answer.
func (c *Connection) Closed() bool {
	s, ok := c.socket.(closedSocket)
	if !ok || !s.Closed() {
		return false
	}
	return c.emitter == nil && (c.backlog == nil || c.backlog.IsEmpty())
}

// Close releases the socket. The protocol state is simply dropped.
func (c *Connection) Close() error {
	c.emitter = nil
	c.resend = -1
	if c.backlog != nil {
		c.backlog.Reset()
	}
	if closer, ok := c.socket.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (c *Connection) receive() bool {
	if wa, ok := c.socket.(WindowAdvertiser); ok {
		wa.AdvertiseWindow(c.sizer.Next(c.parser))
	}

	return c.socket.Receive(func(view []byte) {
		c.stats.recordRead(len(view))
		c.consume(view)
	})
}

// consume feeds view to the parser until a line completes. A view may be
// longer than the advertised window; bytes of the current line are always
// parsed, only the bytes after its terminator are kept in the backlog or
// dropped.
func (c *Connection) consume(view []byte) {
	for i, b := range view {
		action := c.parser.Step(b)
		if !action.Done() {
			continue
		}

		c.respond(action)
		if tail := c.drain(view[i+1:]); len(tail) > 0 {
			c.keepTail(tail)
		}
		return
	}
}

// drain discards the rest of a line rejected before its terminator and
// returns the bytes that follow it.
func (c *Connection) drain(tail []byte) []byte {
	for i, b := range tail {
		if c.parser.Idle() {
			return tail[i:]
		}
		c.parser.Step(b)
	}
	return nil
}

func (c *Connection) keepTail(tail []byte) {
	if c.backlog == nil {
		c.stats.recordDrop(len(tail))
		return
	}

	n := min(len(tail), c.backlog.Free())
	if n > 0 {
		_, _ = c.backlog.Write(tail[:n])
	}
	if n < len(tail) {
		c.stats.recordDrop(len(tail) - n)
	}
}

// replay feeds backlog bytes to the parser until a line completes or the
// backlog is empty.
func (c *Connection) replay() bool {
	if c.backlog == nil || c.backlog.IsEmpty() {
		return false
	}

	for !c.backlog.IsEmpty() {
		b, err := c.backlog.ReadByte()
		if err != nil {
			break
		}
		if action := c.parser.Step(b); action.Done() {
			c.respond(action)
			break
		}
	}
	return true
}

func (c *Connection) respond(action protocol.Action) {
	cmd := action.Command

	switch action.Kind {
	case protocol.Fail:
		c.stats.recordProtocolError()
		c.logger.Debug("memcached: request rejected", "reason", action.Reason.String())
	case protocol.Emit:
		if cmd.Kind == protocol.CmdSet {
			c.stats.recordSet()
		}
	}

	resp := protocol.ResponseFor(cmd, c.lookup)
	c.emitter = protocol.NewEmitter(resp)
}

func (c *Connection) lookup(key []byte) (uint32, []byte, bool) {
	item, ok := c.store.Get(key)
	c.stats.recordGet(ok)
	return item.Flags, item.Value, ok
}

// flush transmits the pending response for as long as the socket has
// capacity. It reports whether any byte was sent.
func (c *Connection) flush() bool {
	sent := c.retransmit()
	for c.emitter != nil && c.resend < 0 {
		n := 0
		ok := c.socket.Transmit(func(buf []byte) int {
			n = c.emitter.Fill(buf)
			return n
		})
		if !ok || n == 0 {
			break
		}

		sent = true
		c.stats.recordWrite(n)
		if c.emitter.Done() {
			c.emitter = nil
			c.stats.recordResponse()
		}
	}
	return sent
}

// retransmit resends bytes of the pending response the socket reported lost.
// New bytes are only emitted once the rewound range is sent again.
func (c *Connection) retransmit() bool {
	rt, ok := c.socket.(Retransmitter)
	if !ok || c.emitter == nil {
		return false
	}
	if off, ok := rt.Rewind(); ok && off >= 0 && off < c.emitter.Cursor() {
		c.resend = off
	}

	sent := false
	for c.resend >= 0 {
		n := 0
		ok := c.socket.Transmit(func(buf []byte) int {
			n = c.emitter.FillAt(buf, c.resend)
			return n
		})
		if !ok || n == 0 {
			break
		}

		sent = true
		c.stats.recordWrite(n)
		c.resend += n
		if c.resend >= c.emitter.Cursor() {
			c.resend = -1
		}
	}
	return sent
}
