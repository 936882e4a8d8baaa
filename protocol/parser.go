package protocol

import (
	"bytes"
	"math"
)

// State is the receive state of a Parser.
type State uint8

const (
	// StateIdle: no byte of the current line has been seen.
	StateIdle State = iota
	// StateReadingVerb: accumulating the command verb.
	StateReadingVerb
	// StateReadingKey: appending key bytes to the scratch.
	StateReadingKey
	// StateReadingArgs: reading the numeric arguments of a set line.
	StateReadingArgs
	// StateExpectingLineEnd: a CR was seen, only LF may follow.
	StateExpectingLineEnd
	// StateError: the line is rejected, bytes are discarded up to the next LF.
	StateError
)

var stateNames = [...]string{
	StateIdle:             "Idle",
	StateReadingVerb:      "ReadingVerb",
	StateReadingKey:       "ReadingKey",
	StateReadingArgs:      "ReadingArgs",
	StateExpectingLineEnd: "ExpectingLineEnd",
	StateError:            "Error",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

var (
	verbGetBytes = []byte(VerbGet)
	verbSetBytes = []byte(VerbSet)
)

// Parser is the byte-incremental receive state machine.
//
// It is fed one byte at a time with Step and never looks at packet
// boundaries: any fragmentation of the same stream yields the same actions.
// Apart from the connection's KeyScratch it only holds fixed-size fields.
//
// Lines end with CRLF; a bare LF is accepted as well. A rejected line is
// reported once, either at its terminator or as soon as the line budget is
// exhausted, after which the rest of the line is dropped silently.
type Parser struct {
	key           *KeyScratch
	maxLineLength int

	state    State
	prev     State // state interrupted by a CR
	consumed int   // bytes of the current line, terminator included

	verb    [MaxVerbLength]byte
	verbLen int
	kind    CommandKind

	tok     [MaxNumberDigits]byte
	tokLen  int
	args    [3]uint64
	argc    int
	noReply bool

	reason   Reason
	reported bool
}

// NewParser returns a parser appending keys to scratch. Lines longer than
// maxLineLength bytes are rejected; a value <= 0 selects MaxLineLength.
func NewParser(scratch *KeyScratch, maxLineLength int) *Parser {
	if scratch == nil {
		scratch = NewKeyScratch(MaxKeyLength)
	}
	if maxLineLength <= 0 {
		maxLineLength = MaxLineLength
	}
	return &Parser{
		key:           scratch,
		maxLineLength: maxLineLength,
	}
}

// State returns the current receive state.
func (p *Parser) State() State {
	return p.state
}

// Idle reports whether the next byte starts a new line.
func (p *Parser) Idle() bool {
	return p.state == StateIdle
}

// LineConsumed returns the number of bytes consumed on the current line.
func (p *Parser) LineConsumed() int {
	return p.consumed
}

// MaxLineLength returns the line budget.
func (p *Parser) MaxLineLength() int {
	return p.maxLineLength
}

// Reset abandons the current line and returns to StateIdle.
func (p *Parser) Reset() {
	p.state = StateIdle
	p.prev = StateIdle
	p.consumed = 0
	p.verbLen = 0
	p.kind = CmdInvalid
	p.tokLen = 0
	p.argc = 0
	p.noReply = false
	p.reason = ReasonNone
	p.reported = false
	p.key.Reset()
}

// Step consumes the next byte of the stream.
func (p *Parser) Step(b byte) Action {
	p.consumed++

	if b == '\n' {
		return p.endLine()
	}

	switch p.state {
	case StateError:
		// discard until LF
	case StateExpectingLineEnd:
		p.poison(ReasonMalformedLine)
	default:
		switch b {
		case '\r':
			if p.state != StateIdle {
				p.endToken()
			}
			if p.state != StateError {
				p.prev = p.state
				p.state = StateExpectingLineEnd
			}
		case ' ':
			if p.state == StateIdle {
				p.state = StateReadingVerb
			} else {
				p.endToken()
			}
		default:
			p.push(b)
		}
	}

	return p.checkBudget()
}

func (p *Parser) poison(reason Reason) {
	p.state = StateError
	p.reason = reason
}

func (p *Parser) push(b byte) {
	switch p.state {
	case StateIdle:
		p.state = StateReadingVerb
		fallthrough
	case StateReadingVerb:
		if p.verbLen == len(p.verb) {
			p.poison(ReasonUnknownCommand)
			return
		}
		p.verb[p.verbLen] = b
		p.verbLen++
	case StateReadingKey:
		if !isKeyByte(b) {
			p.poison(ReasonMalformedLine)
			return
		}
		if !p.key.Append(b) {
			p.poison(ReasonKeyTooLong)
		}
	case StateReadingArgs:
		if p.kind != CmdSet || p.tokLen == len(p.tok) {
			p.poison(ReasonMalformedLine)
			return
		}
		p.tok[p.tokLen] = b
		p.tokLen++
	}
}

// endToken closes the token in progress. Empty tokens (repeated spaces) are
// ignored.
func (p *Parser) endToken() {
	switch p.state {
	case StateReadingVerb:
		if p.verbLen == 0 {
			return
		}
		p.kind = matchVerb(p.verb[:p.verbLen])
		if p.kind == CmdInvalid {
			p.poison(ReasonUnknownCommand)
			return
		}
		p.state = StateReadingKey

	case StateReadingKey:
		if p.key.Len() > 0 {
			p.state = StateReadingArgs
		}

	case StateReadingArgs:
		if p.tokLen == 0 {
			return
		}
		tok := p.tok[:p.tokLen]
		p.tokLen = 0

		if p.noReply {
			p.poison(ReasonMalformedLine) // noreply must be the last token
			return
		}
		if string(tok) == NoReply {
			p.noReply = true
			return
		}
		v, ok := parseUint(tok)
		if !ok || p.argc == len(p.args) {
			p.poison(ReasonMalformedLine)
			return
		}
		p.args[p.argc] = v
		p.argc++
	}
}

func (p *Parser) endLine() Action {
	if p.state == StateExpectingLineEnd {
		p.state = p.prev
	}

	switch p.state {
	case StateIdle:
		return p.reject(ReasonUnknownCommand)
	case StateError:
		if p.reported {
			p.Reset()
			return Action{}
		}
		return p.reject(p.reason)
	}

	p.endToken()

	switch p.state {
	case StateError:
		return p.reject(p.reason)
	case StateReadingVerb:
		if p.verbLen == 0 {
			return p.reject(ReasonUnknownCommand)
		}
		return p.reject(ReasonMalformedLine)
	case StateReadingKey:
		return p.reject(ReasonMalformedLine)
	}

	return p.complete()
}

// complete builds the command of a well-formed line. The scratch is reset
// before the command is handed out.
func (p *Parser) complete() Action {
	cmd := Command{
		Kind: p.kind,
		Key:  bytes.Clone(p.key.Bytes()),
	}

	if p.kind == CmdSet {
		var flags uint64
		switch p.argc {
		case 2:
			flags, cmd.Length = p.args[0], p.args[1]
		case 3:
			flags, cmd.Exptime, cmd.Length = p.args[0], p.args[1], p.args[2]
		default:
			return p.reject(ReasonMalformedLine)
		}
		if flags > math.MaxUint32 {
			return p.reject(ReasonMalformedLine)
		}
		cmd.Flags = uint32(flags)
		cmd.NoReply = p.noReply
	}

	p.Reset()
	return Action{Kind: Emit, Command: cmd}
}

func (p *Parser) reject(reason Reason) Action {
	p.Reset()
	return Action{Kind: Fail, Command: invalidCommand(reason), Reason: reason}
}

// checkBudget fails the line once maxLineLength bytes were consumed without
// a terminator. The parser then keeps discarding with a fresh budget.
func (p *Parser) checkBudget() Action {
	if p.consumed < p.maxLineLength {
		return Action{}
	}
	p.consumed = 0

	if p.state == StateError && p.reported {
		return Action{}
	}

	reason := ReasonMalformedLine
	if p.state == StateError {
		reason = p.reason
	}
	p.poison(reason)
	p.reported = true
	p.key.Reset()

	return Action{Kind: Fail, Command: invalidCommand(reason), Reason: reason}
}

func matchVerb(verb []byte) CommandKind {
	switch {
	case bytes.EqualFold(verb, verbGetBytes):
		return CmdGet
	case bytes.EqualFold(verb, verbSetBytes):
		return CmdSet
	default:
		return CmdInvalid
	}
}

func parseUint(digits []byte) (uint64, bool) {
	if len(digits) == 0 || len(digits) > MaxNumberDigits {
		return 0, false
	}
	var v uint64
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, false
		}
		d := uint64(c - '0')
		if v > (math.MaxUint64-d)/10 {
			return 0, false
		}
		v = v*10 + d
	}
	return v, true
}
