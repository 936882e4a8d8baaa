package protocol

// Protocol delimiters
const (
	CRLF  = "\r\n"
	Space = " "
)

// Request verbs. Matching is case-insensitive.
const (
	VerbGet = "get"
	VerbSet = "set"

	// MaxVerbLength is the length of the longest recognized verb.
	MaxVerbLength = 3
)

// Response tokens
const (
	ReplyValue          = "VALUE"
	ReplyEnd            = "END"
	ReplyError          = "ERROR"
	ReplyClientError    = "CLIENT_ERROR"
	ReplyServerError    = "SERVER_ERROR"
	ReplyNotImplemented = "NOT_IMPLEMENTED"

	// NoReply is the optional trailing token of a storage command.
	NoReply = "noreply"
)

// Protocol limits
const (
	MinKeyLength = 1
	MaxKeyLength = 250 // Maximum key length in bytes

	// MaxFlagsDigits is the width of the largest uint32 client flags value.
	MaxFlagsDigits = 10
	// MaxNumberDigits is the width of the largest uint64 value.
	MaxNumberDigits = 20

	// MaxLineLength is the longest valid request line:
	// set <key> <flags> <exptime> <bytes> noreply\r\n
	MaxLineLength = len(VerbSet) + 1 + MaxKeyLength +
		1 + MaxFlagsDigits +
		1 + MaxFlagsDigits +
		1 + MaxNumberDigits +
		1 + len(NoReply) +
		len(CRLF)
)

// Pre-built status lines
var (
	crlfBytes           = []byte(CRLF)
	endLine             = []byte(ReplyEnd + CRLF)
	errorLine           = []byte(ReplyError + CRLF)
	notImplementedLine  = []byte(ReplyNotImplemented + CRLF)
	valuePrefix         = []byte(ReplyValue + Space)
	spaceBytes          = []byte(Space)
	clientErrorPrefix   = []byte(ReplyClientError + Space)
	trailerWithEndBytes = []byte(CRLF + ReplyEnd + CRLF)
)
