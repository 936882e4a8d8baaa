package memcached

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/jackc/puddle/v2"

	"github.com/pior/memcached/protocol"
	"github.com/pior/memcached/store"
)

var (
	ErrServerClosed       = errors.New("memcached: server closed")
	ErrTooManyConnections = errors.New("memcached: too many open connections")
)

// rejectMessage is sent to connections refused at the MaxConns limit.
const rejectMessage = "too many open connections"

// Server accepts TCP connections and serves them from one event loop.
//
// Each connection gets a slab of packet buffers from a pool bounded by
// MaxConns. When the pool is exhausted new connections receive a
// SERVER_ERROR line and are closed.
type Server struct {
	cfg    Config
	store  store.Store
	loop   *Loop
	slabs  *puddle.Pool[[]byte]
	stats  *statsCollector
	logger *slog.Logger
}

func NewServer(st store.Store, cfg Config) (*Server, error) {
	cfg = cfg.withDefaults()
	stats := newStatsCollector()

	slabSize := SlabSize(cfg.PacketSize, cfg.QueueDepth)
	slabs, err := puddle.NewPool(&puddle.Config[[]byte]{
		Constructor: func(ctx context.Context) ([]byte, error) {
			return make([]byte, slabSize), nil
		},
		Destructor: func([]byte) {},
		MaxSize:    cfg.MaxConns,
	})
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:    cfg,
		store:  st,
		loop:   newLoop(cfg, stats),
		slabs:  slabs,
		stats:  stats,
		logger: cfg.Logger,
	}, nil
}

// ListenAndServe listens on the TCP address addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		addr = ":11211"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done. It closes ln, every
// connection and the buffer pool before returning ErrServerClosed.
// A Server serves at most once.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("memcached: serving", "addr", ln.Addr().String(), "max_conns", s.cfg.MaxConns,
		"pipelining", s.cfg.Pipelining, "max_line_length", s.cfg.MaxLineLength)

	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.loop.Run(loopCtx)
	}()

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	err := s.acceptLoop(ctx, ln)

	// The loop stops after the acceptor, so no connection is attached to a
	// stopped loop.
	stopLoop()
	wg.Wait()
	s.slabs.Close()

	if ctx.Err() != nil {
		return ErrServerClosed
	}
	return err
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	var backoff time.Duration

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return err
			}

			backoff = nextAcceptBackoff(backoff)
			s.logger.Warn("memcached: accept failed", "error", err, "retry_in", backoff)

			select {
			case <-time.After(backoff):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		backoff = 0

		if err := s.attach(ctx, conn); err != nil {
			s.reject(conn, err)
		}
	}
}

// nextAcceptBackoff doubles the accept retry delay, from 5ms up to 1s.
func nextAcceptBackoff(cur time.Duration) time.Duration {
	if cur <= 0 {
		return 5 * time.Millisecond
	}
	return min(cur*2, time.Second)
}

func (s *Server) attach(ctx context.Context, conn net.Conn) error {
	// the acceptor is the only acquirer, so a free slot cannot be taken
	// between the check and Acquire
	if s.slabs.Stat().AcquiredResources() >= s.cfg.MaxConns {
		return ErrTooManyConnections
	}
	slab, err := s.slabs.Acquire(ctx)
	if err != nil {
		return err
	}

	socket := NewNetSocket(conn, slab.Value(), s.cfg.PacketSize, s.cfg.QueueDepth, s.loop.Wake, slab.Release)
	s.loop.Attach(newConnection(socket, s.store, s.cfg, s.stats))

	s.logger.Debug("memcached: connection accepted", "remote", conn.RemoteAddr().String())
	return nil
}

func (s *Server) reject(conn net.Conn, err error) {
	s.stats.recordReject()
	s.logger.Warn("memcached: connection rejected", "remote", conn.RemoteAddr().String(), "error", err)

	_ = conn.SetWriteDeadline(time.Now().Add(closeFlushTimeout))
	_, _ = conn.Write(protocol.NewServerErrorResponse(rejectMessage).Bytes())
	_ = conn.Close()
}

// Stats returns a snapshot of the server counters.
func (s *Server) Stats() ServerStats {
	return s.stats.snapshot()
}

// StatsFunc returns Stats as a function, for metric exporters.
func (s *Server) StatsFunc() func() ServerStats {
	return s.Stats
}
