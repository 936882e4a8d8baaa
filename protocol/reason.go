package protocol

// Reason identifies why a request line was rejected.
//
// Every reason maps to exactly one response line, so a rejected request still
// yields one reply and the connection stays usable.
type Reason uint8

const (
	ReasonNone Reason = iota

	// ReasonUnknownCommand: the verb is not get or set, or the line is empty.
	ReasonUnknownCommand

	// ReasonKeyTooLong: the key exceeds the configured maximum key length.
	ReasonKeyTooLong

	// ReasonMalformedLine: the line shape is wrong (missing key, bad
	// arguments, stray CR) or no terminator arrived within the line budget.
	ReasonMalformedLine

	// ReasonNotImplemented: a syntactically valid set command.
	ReasonNotImplemented
)

var reasonNames = [...]string{
	ReasonNone:           "None",
	ReasonUnknownCommand: "UnknownCommand",
	ReasonKeyTooLong:     "KeyTooLong",
	ReasonMalformedLine:  "MalformedLine",
	ReasonNotImplemented: "NotImplemented",
}

func (r Reason) String() string {
	if int(r) < len(reasonNames) {
		return reasonNames[r]
	}
	return "Unknown"
}

// Error makes a Reason usable as an error value.
func (r Reason) Error() string {
	return "memcached: " + r.String()
}

// IsClientError reports whether the reason is answered with CLIENT_ERROR
// instead of the generic ERROR line.
func (r Reason) IsClientError() bool {
	return r == ReasonKeyTooLong
}
