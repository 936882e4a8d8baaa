package memcached

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pior/memcached/internal/testutils"
	"github.com/pior/memcached/protocol"
	"github.com/pior/memcached/store"
)

func testStore() *store.Map {
	return store.NewMap(
		store.Item{Key: "foo", Flags: 0, Value: []byte("bar")},
		store.Item{Key: "flagged", Flags: 42, Value: []byte("hello world")},
	)
}

// pollUntilQuiet polls c until a Poll makes no progress.
func pollUntilQuiet(t testing.TB, c *Connection) {
	t.Helper()
	for range 10000 {
		if !c.Poll() {
			return
		}
	}
	t.Fatal("connection never went quiet")
}

func newTestConnection(t testing.TB, cfg Config, views ...string) (*Connection, *testutils.SocketMock) {
	t.Helper()
	socket := testutils.NewSocketMock(views...)
	return NewConnection(socket, testStore(), cfg), socket
}

// startServer runs a server on a random local port until the test ends.
func startServer(t testing.TB, st store.Store, cfg Config) (*Server, string) {
	t.Helper()

	srv, err := NewServer(st, cfg)
	require.NoError(t, err)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx, listener)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.ErrorIs(t, err, ErrServerClosed)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})

	return srv, listener.Addr().String()
}

func itemOf(key, value string) store.Item {
	return store.Item{Key: key, Value: []byte(value)}
}

func newReader(conn net.Conn) *bufio.Reader {
	return bufio.NewReader(conn)
}

type testClient struct {
	conn   net.Conn
	reader *bufio.Reader
}

func dial(t testing.TB, addr string) *testClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	return &testClient{conn: conn, reader: newReader(conn)}
}

func (c *testClient) send(t testing.TB, request string) {
	t.Helper()
	_, err := c.conn.Write([]byte(request))
	require.NoError(t, err)
}

func (c *testClient) roundTrip(t testing.TB, request string) (*protocol.Reply, error) {
	t.Helper()
	c.send(t, request)
	return protocol.ReadReply(c.reader)
}
