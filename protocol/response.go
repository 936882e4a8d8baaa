package protocol

import (
	"errors"
	"io"
	"strconv"
)

var errNegativeOffset = errors.New("memcached: negative offset")

// maxSegments is the segment count of the longest response:
// VALUE, key, sp, flags, sp, len, CRLF, data, CRLF END CRLF.
const maxSegments = 9

// Response is an immutable logical response byte sequence.
//
// It is kept as a list of segments (status prefix, key, formatted numbers,
// data, trailer) instead of a flat buffer, so a large value is never copied
// before it reaches the transmit buffer. Every byte is addressed by its
// offset: reading at the same offset always yields the same bytes.
type Response struct {
	segs  [maxSegments][]byte
	nsegs int
	size  int

	// backing store for the formatted flags and length
	digits [MaxFlagsDigits + MaxNumberDigits]byte
}

func (r *Response) add(seg []byte) {
	if len(seg) == 0 {
		return
	}
	r.segs[r.nsegs] = seg
	r.nsegs++
	r.size += len(seg)
}

// NewValueResponse returns the hit response for key:
// VALUE <key> <flags> <len>\r\n<data>\r\nEND\r\n
//
// key and value are referenced, not copied, and must not be modified while
// the response is alive.
func NewValueResponse(key []byte, flags uint32, value []byte) *Response {
	r := &Response{}

	flagsDigits := strconv.AppendUint(r.digits[:0], uint64(flags), 10)
	n := len(flagsDigits)
	lenDigits := strconv.AppendUint(r.digits[n:n], uint64(len(value)), 10)

	r.add(valuePrefix)
	r.add(key)
	r.add(spaceBytes)
	r.add(flagsDigits)
	r.add(spaceBytes)
	r.add(lenDigits)
	r.add(crlfBytes)
	r.add(value)
	r.add(trailerWithEndBytes)
	return r
}

// NewMissResponse returns END\r\n.
func NewMissResponse() *Response {
	return newLineResponse(endLine)
}

// NewNotImplementedResponse returns NOT_IMPLEMENTED\r\n.
func NewNotImplementedResponse() *Response {
	return newLineResponse(notImplementedLine)
}

// NewErrorResponse returns the response line for a rejected request:
// CLIENT_ERROR <reason>\r\n for client errors, ERROR\r\n otherwise.
func NewErrorResponse(reason Reason) *Response {
	if !reason.IsClientError() {
		return newLineResponse(errorLine)
	}
	r := &Response{}
	r.add(clientErrorPrefix)
	r.add([]byte(reason.String()))
	r.add(crlfBytes)
	return r
}

// NewServerErrorResponse returns SERVER_ERROR <message>\r\n.
func NewServerErrorResponse(message string) *Response {
	r := &Response{}
	r.add([]byte(ReplyServerError + Space + message))
	r.add(crlfBytes)
	return r
}

func newLineResponse(line []byte) *Response {
	r := &Response{}
	r.add(line)
	return r
}

// LookupFunc resolves a key to its client flags and value.
type LookupFunc func(key []byte) (flags uint32, value []byte, found bool)

// ResponseFor maps a parsed command to its response. Only get commands call
// lookup.
func ResponseFor(cmd Command, lookup LookupFunc) *Response {
	switch cmd.Kind {
	case CmdGet:
		flags, value, found := lookup(cmd.Key)
		if !found {
			return NewMissResponse()
		}
		return NewValueResponse(cmd.Key, flags, value)
	case CmdSet:
		return NewNotImplementedResponse()
	default:
		return NewErrorResponse(cmd.Reason)
	}
}

// Len returns the total length of the logical sequence.
func (r *Response) Len() int {
	return r.size
}

// ReadAt implements io.ReaderAt over the logical sequence.
func (r *Response) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errNegativeOffset
	}
	if off >= int64(r.size) {
		return 0, io.EOF
	}
	n := r.copyAt(p, int(off))
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Bytes returns a flat copy of the whole sequence.
func (r *Response) Bytes() []byte {
	b := make([]byte, r.size)
	r.copyAt(b, 0)
	return b
}

// copyAt copies the bytes starting at off into p. It depends only on off and
// the immutable segments.
func (r *Response) copyAt(p []byte, off int) int {
	n := 0
	for i := 0; i < r.nsegs && n < len(p); i++ {
		seg := r.segs[i]
		if off >= len(seg) {
			off -= len(seg)
			continue
		}
		n += copy(p[n:], seg[off:])
		off = 0
	}
	return n
}

// Emitter streams a Response into caller-provided transmit buffers.
//
// The cursor only moves forward, by exactly the number of bytes handed to
// the transport. Bytes behind the cursor can be regenerated with FillAt.
type Emitter struct {
	resp   *Response
	cursor int
}

func NewEmitter(resp *Response) *Emitter {
	return &Emitter{resp: resp}
}

// Fill writes as many bytes as fit in buf starting at the cursor, advances
// the cursor by that count and returns it. An empty buf is a no-op.
func (e *Emitter) Fill(buf []byte) int {
	if len(buf) == 0 || e.cursor >= e.resp.size {
		return 0
	}
	n := e.resp.copyAt(buf, e.cursor)
	e.cursor += n
	return n
}

// FillAt regenerates already emitted bytes starting at off, for a transport
// that lost them. It writes at most Cursor()-off bytes and leaves the cursor
// untouched.
func (e *Emitter) FillAt(buf []byte, off int) int {
	if off < 0 || off >= e.cursor {
		return 0
	}
	limit := min(len(buf), e.cursor-off)
	return e.resp.copyAt(buf[:limit], off)
}

// Cursor returns the number of bytes emitted so far.
func (e *Emitter) Cursor() int {
	return e.cursor
}

// Len returns the total response length.
func (e *Emitter) Len() int {
	return e.resp.size
}

// Remaining returns the number of bytes still to emit.
func (e *Emitter) Remaining() int {
	return e.resp.size - e.cursor
}

// Done reports whether the whole response was emitted.
func (e *Emitter) Done() bool {
	return e.cursor >= e.resp.size
}

// Response returns the response being emitted.
func (e *Emitter) Response() *Response {
	return e.resp
}
