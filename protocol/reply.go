package protocol

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
)

// ReplyKind is the kind of a server reply.
type ReplyKind uint8

const (
	ReplyKindValue ReplyKind = iota + 1
	ReplyKindMiss
)

// Reply is a successful reply to a get request.
type Reply struct {
	Kind  ReplyKind
	Key   string
	Flags uint32
	Data  []byte
}

// Hit reports whether the reply carries a value.
func (r *Reply) Hit() bool {
	return r.Kind == ReplyKindValue
}

// ReadReply reads one complete reply from r.
//
// VALUE and END replies are returned as a Reply. Error lines are returned as
// *ClientError, *ServerError, *GenericError or *NotImplementedError, which
// leave r positioned at the next reply.
func ReadReply(r *bufio.Reader) (*Reply, error) {
	line, err := readLine(r)
	if err != nil {
		return nil, err
	}

	switch {
	case bytes.Equal(line, []byte(ReplyEnd)):
		return &Reply{Kind: ReplyKindMiss}, nil
	case bytes.Equal(line, []byte(ReplyError)):
		return nil, &GenericError{Message: ReplyError}
	case bytes.Equal(line, []byte(ReplyNotImplemented)):
		return nil, &NotImplementedError{}
	case bytes.HasPrefix(line, clientErrorPrefix):
		return nil, &ClientError{Message: string(line[len(clientErrorPrefix):])}
	case bytes.HasPrefix(line, []byte(ReplyServerError+Space)):
		return nil, &ServerError{Message: string(line[len(ReplyServerError)+1:])}
	case bytes.HasPrefix(line, valuePrefix):
		return readValue(r, line[len(valuePrefix):])
	}

	return nil, &ParseError{Message: "unexpected reply line: " + strconv.Quote(string(line))}
}

// readValue parses "<key> <flags> <bytes>" and the data block and END line
// that follow it.
func readValue(r *bufio.Reader, header []byte) (*Reply, error) {
	fields := bytes.Fields(header)
	if len(fields) != 3 {
		return nil, &ParseError{Message: "invalid VALUE line: " + strconv.Quote(string(header))}
	}

	flags, err := strconv.ParseUint(string(fields[1]), 10, 32)
	if err != nil {
		return nil, &ParseError{Message: "invalid flags", Err: err}
	}
	size, err := strconv.Atoi(string(fields[2]))
	if err != nil || size < 0 {
		return nil, &ParseError{Message: "invalid size", Err: err}
	}

	data := make([]byte, size+len(CRLF))
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, &ConnectionError{Op: "read", Err: err}
	}
	if !bytes.HasSuffix(data, crlfBytes) {
		return nil, &ParseError{Message: "data block not terminated by CRLF"}
	}

	end, err := readLine(r)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(end, []byte(ReplyEnd)) {
		return nil, &ParseError{Message: "expected END, got " + strconv.Quote(string(end))}
	}

	return &Reply{
		Kind:  ReplyKindValue,
		Key:   string(fields[0]),
		Flags: uint32(flags),
		Data:  data[:size],
	}, nil
}

// readLine returns the next line without its CRLF.
func readLine(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadSlice('\n')
	if err != nil {
		if err == bufio.ErrBufferFull {
			return nil, &ParseError{Message: "reply line too long", Err: err}
		}
		return nil, &ConnectionError{Op: "read", Err: err}
	}
	if len(line) < 2 || line[len(line)-2] != '\r' {
		return nil, &ParseError{Message: "reply line not terminated by CRLF"}
	}
	return line[:len(line)-2], nil
}
