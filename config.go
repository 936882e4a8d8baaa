package memcached

import (
	"log/slog"
	"time"

	"github.com/pior/memcached/protocol"
)

// Config holds the engine settings. Zero values select the defaults.
type Config struct {
	// MaxKeyLength is the capacity of the per-connection key scratch.
	// Default: 250.
	MaxKeyLength int

	// MaxLineLength is the line budget: a request line without terminator
	// after this many bytes is rejected. Default: the longest valid set line
	// for MaxKeyLength (307 for 250-byte keys).
	MaxLineLength int

	// Pipelining keeps request bytes that follow a completed line in a
	// bounded buffer of MaxLineLength bytes instead of dropping them.
	Pipelining bool

	// MaxConns is the maximum number of concurrent connections of a Server.
	// Default: 1024.
	MaxConns int32

	// PacketSize is the size of each device buffer of a NetSocket.
	// Default: 1460.
	PacketSize int

	// QueueDepth is the number of receive and transmit buffers per NetSocket.
	// Default: 4.
	QueueDepth int

	// IdleTimeout closes connections without activity for that long.
	// Zero disables it.
	IdleTimeout time.Duration

	// PollInterval is the longest the event loop sleeps when no connection
	// made progress. Default: 5ms.
	PollInterval time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

const (
	DefaultMaxConns     = 1024
	DefaultPacketSize   = 1460
	DefaultQueueDepth   = 4
	DefaultPollInterval = 5 * time.Millisecond
)

func (c Config) withDefaults() Config {
	if c.MaxKeyLength <= 0 {
		c.MaxKeyLength = protocol.MaxKeyLength
	}
	if c.MaxLineLength <= 0 {
		c.MaxLineLength = protocol.MaxLineLength - protocol.MaxKeyLength + c.MaxKeyLength
	}
	if c.MaxConns <= 0 {
		c.MaxConns = DefaultMaxConns
	}
	if c.PacketSize <= 0 {
		c.PacketSize = DefaultPacketSize
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = DefaultQueueDepth
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

func (c Config) pipelineMode() protocol.PipelineMode {
	if c.Pipelining {
		return protocol.PipelineBuffered
	}
	return protocol.PipelineDisabled
}
