package protocol

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResponseBytes(t *testing.T) {
	tests := []struct {
		name string
		resp *Response
		want string
	}{
		{"value", NewValueResponse([]byte("foo"), 0, []byte("bar")), "VALUE foo 0 3\r\nbar\r\nEND\r\n"},
		{"value with flags", NewValueResponse([]byte("k"), 4294967295, []byte("hello")), "VALUE k 4294967295 5\r\nhello\r\nEND\r\n"},
		{"empty value", NewValueResponse([]byte("k"), 5, nil), "VALUE k 5 0\r\n\r\nEND\r\n"},
		{"binary value", NewValueResponse([]byte("k"), 1, []byte("a\r\nb")), "VALUE k 1 4\r\na\r\nb\r\nEND\r\n"},
		{"miss", NewMissResponse(), "END\r\n"},
		{"not implemented", NewNotImplementedResponse(), "NOT_IMPLEMENTED\r\n"},
		{"key too long", NewErrorResponse(ReasonKeyTooLong), "CLIENT_ERROR KeyTooLong\r\n"},
		{"unknown command", NewErrorResponse(ReasonUnknownCommand), "ERROR\r\n"},
		{"malformed line", NewErrorResponse(ReasonMalformedLine), "ERROR\r\n"},
		{"server error", NewServerErrorResponse("too many open connections"), "SERVER_ERROR too many open connections\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, string(tt.resp.Bytes()))
			require.Equal(t, len(tt.want), tt.resp.Len())
		})
	}
}

func TestResponseFor(t *testing.T) {
	lookup := func(key []byte) (uint32, []byte, bool) {
		if string(key) == "foo" {
			return 3, []byte("bar"), true
		}
		return 0, nil, false
	}

	hit := ResponseFor(Command{Kind: CmdGet, Key: []byte("foo")}, lookup)
	require.Equal(t, "VALUE foo 3 3\r\nbar\r\nEND\r\n", string(hit.Bytes()))

	miss := ResponseFor(Command{Kind: CmdGet, Key: []byte("nope")}, lookup)
	require.Equal(t, "END\r\n", string(miss.Bytes()))

	set := ResponseFor(Command{Kind: CmdSet, Key: []byte("foo"), NoReply: true}, lookup)
	require.Equal(t, "NOT_IMPLEMENTED\r\n", string(set.Bytes()))

	invalid := ResponseFor(invalidCommand(ReasonKeyTooLong), lookup)
	require.Equal(t, "CLIENT_ERROR KeyTooLong\r\n", string(invalid.Bytes()))
}

func TestEmitterChunked(t *testing.T) {
	value := bytes.Repeat([]byte("0123456789"), 50)
	want := "VALUE somekey 42 500\r\n" + string(value) + "\r\nEND\r\n"

	for size := 1; size <= len(want)+1; size++ {
		e := NewEmitter(NewValueResponse([]byte("somekey"), 42, value))
		var out []byte
		buf := make([]byte, size)
		prev := 0
		for !e.Done() {
			n := e.Fill(buf)
			require.Positive(t, n)
			require.Equal(t, prev+n, e.Cursor(), "cursor advances by exactly n")
			prev = e.Cursor()
			out = append(out, buf[:n]...)
		}
		require.Equal(t, want, string(out), "buffer size %d", size)
		require.Equal(t, 0, e.Remaining())
		require.Equal(t, 0, e.Fill(buf))
	}
}

func TestEmitterZeroLengthBuffer(t *testing.T) {
	e := NewEmitter(NewMissResponse())
	require.Equal(t, 0, e.Fill(nil))
	require.Equal(t, 0, e.Fill([]byte{}))
	require.Equal(t, 0, e.Cursor())
	require.Equal(t, 5, e.Remaining())

	buf := make([]byte, 16)
	require.Equal(t, 5, e.Fill(buf))
	require.Equal(t, "END\r\n", string(buf[:5]))
	require.True(t, e.Done())
}

func TestEmitterFillAtIsIdempotent(t *testing.T) {
	resp := NewValueResponse([]byte("foo"), 0, []byte("bar"))
	full := resp.Bytes()
	e := NewEmitter(resp)

	buf := make([]byte, 4)
	for !e.Done() {
		e.Fill(buf)
	}

	for off := 0; off < len(full); off++ {
		first := make([]byte, 7)
		second := make([]byte, 7)
		n1 := e.FillAt(first, off)
		n2 := e.FillAt(second, off)

		require.Equal(t, n1, n2)
		require.Equal(t, first[:n1], second[:n2])
		require.Equal(t, full[off:off+n1], first[:n1])
		require.Equal(t, len(full), e.Cursor(), "FillAt must not move the cursor")
	}
}

func TestEmitterFillAtBoundedByCursor(t *testing.T) {
	e := NewEmitter(NewValueResponse([]byte("foo"), 0, []byte("bar")))

	buf := make([]byte, 6)
	require.Equal(t, 6, e.Fill(buf))

	replay := make([]byte, 32)
	require.Equal(t, 0, e.FillAt(replay, 6), "bytes not yet emitted")
	require.Equal(t, 0, e.FillAt(replay, -1))
	n := e.FillAt(replay, 2)
	require.Equal(t, 4, n)
	require.Equal(t, "LUE ", string(replay[:n]))
	require.Equal(t, 6, e.Cursor())
}

func TestResponseReadAt(t *testing.T) {
	resp := NewValueResponse([]byte("foo"), 7, []byte("some data"))

	got, err := io.ReadAll(io.NewSectionReader(resp, 0, int64(resp.Len())))
	require.NoError(t, err)
	require.Equal(t, resp.Bytes(), got)

	buf := make([]byte, 4)
	n, err := resp.ReadAt(buf, int64(resp.Len()-2))
	require.Equal(t, 2, n)
	require.ErrorIs(t, err, io.EOF)

	n, err = resp.ReadAt(buf, int64(resp.Len()))
	require.Equal(t, 0, n)
	require.ErrorIs(t, err, io.EOF)

	_, err = resp.ReadAt(buf, -1)
	require.Error(t, err)
}
