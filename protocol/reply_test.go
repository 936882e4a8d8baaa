package protocol

import (
	"bufio"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newReader(s string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(s))
}

func TestReadReply(t *testing.T) {
	t.Run("value", func(t *testing.T) {
		reply, err := ReadReply(newReader("VALUE foo 5 3\r\nbar\r\nEND\r\n"))
		require.NoError(t, err)
		require.True(t, reply.Hit())
		require.Equal(t, "foo", reply.Key)
		require.Equal(t, uint32(5), reply.Flags)
		require.Equal(t, []byte("bar"), reply.Data)
	})

	t.Run("miss", func(t *testing.T) {
		reply, err := ReadReply(newReader("END\r\n"))
		require.NoError(t, err)
		require.False(t, reply.Hit())
	})

	t.Run("value followed by another reply", func(t *testing.T) {
		r := newReader("VALUE k 0 4\r\na\r\nb\r\nEND\r\nEND\r\n")
		reply, err := ReadReply(r)
		require.NoError(t, err)
		require.Equal(t, []byte("a\r\nb"), reply.Data)

		reply, err = ReadReply(r)
		require.NoError(t, err)
		require.Equal(t, ReplyKindMiss, reply.Kind)
	})
}

func TestReadReplyErrors(t *testing.T) {
	t.Run("generic error", func(t *testing.T) {
		_, err := ReadReply(newReader("ERROR\r\n"))
		var target *GenericError
		require.ErrorAs(t, err, &target)
		require.False(t, ShouldCloseConnection(err))
	})

	t.Run("client error", func(t *testing.T) {
		_, err := ReadReply(newReader("CLIENT_ERROR KeyTooLong\r\n"))
		var target *ClientError
		require.ErrorAs(t, err, &target)
		require.Equal(t, "KeyTooLong", target.Message)
	})

	t.Run("server error", func(t *testing.T) {
		_, err := ReadReply(newReader("SERVER_ERROR too many open connections\r\n"))
		var target *ServerError
		require.ErrorAs(t, err, &target)
		require.Equal(t, "too many open connections", target.Message)
	})

	t.Run("not implemented", func(t *testing.T) {
		_, err := ReadReply(newReader("NOT_IMPLEMENTED\r\n"))
		var target *NotImplementedError
		require.ErrorAs(t, err, &target)
	})

	t.Run("unknown line", func(t *testing.T) {
		_, err := ReadReply(newReader("STORED\r\n"))
		var target *ParseError
		require.ErrorAs(t, err, &target)
		require.True(t, ShouldCloseConnection(err))
	})

	t.Run("missing CR", func(t *testing.T) {
		_, err := ReadReply(newReader("END\n"))
		var target *ParseError
		require.ErrorAs(t, err, &target)
	})

	t.Run("bad data terminator", func(t *testing.T) {
		_, err := ReadReply(newReader("VALUE foo 0 3\r\nbarX\r\nEND\r\n"))
		var target *ParseError
		require.ErrorAs(t, err, &target)
	})

	t.Run("bad header", func(t *testing.T) {
		_, err := ReadReply(newReader("VALUE foo x 3\r\nbar\r\nEND\r\n"))
		var target *ParseError
		require.ErrorAs(t, err, &target)
	})

	t.Run("eof", func(t *testing.T) {
		_, err := ReadReply(newReader(""))
		var target *ConnectionError
		require.ErrorAs(t, err, &target)
		require.ErrorIs(t, err, io.EOF)
		require.True(t, ShouldCloseConnection(err))
	})
}

func TestReadReplyRoundTrip(t *testing.T) {
	resp := NewValueResponse([]byte("key"), 99, []byte("payload"))
	reply, err := ReadReply(bufio.NewReader(strings.NewReader(string(resp.Bytes()))))
	require.NoError(t, err)
	require.Equal(t, "key", reply.Key)
	require.Equal(t, uint32(99), reply.Flags)
	require.Equal(t, []byte("payload"), reply.Data)
}

func TestShouldCloseConnectionNil(t *testing.T) {
	require.False(t, ShouldCloseConnection(nil))
	require.True(t, ShouldCloseConnection(io.ErrUnexpectedEOF))
}
