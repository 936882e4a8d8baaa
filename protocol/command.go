package protocol

// CommandKind tags the variant held by a Command.
type CommandKind uint8

const (
	CmdInvalid CommandKind = iota
	CmdGet
	CmdSet
)

func (k CommandKind) String() string {
	switch k {
	case CmdGet:
		return VerbGet
	case CmdSet:
		return VerbSet
	default:
		return "invalid"
	}
}

// Command is a fully parsed request line.
//
// Key is owned by the Command (it is copied out of the parser scratch), so a
// Command stays valid after the parser moves on to the next line.
type Command struct {
	Kind CommandKind
	Key  []byte

	// Set arguments. The data block that follows a set line is not read.
	Flags   uint32
	Exptime uint64
	Length  uint64
	NoReply bool

	// Reason is set when Kind is CmdInvalid.
	Reason Reason
}

func invalidCommand(reason Reason) Command {
	return Command{Kind: CmdInvalid, Reason: reason}
}

// ActionKind is the outcome of feeding one byte to the Parser.
type ActionKind uint8

const (
	// Continue: more bytes are needed.
	Continue ActionKind = iota
	// Emit: a well-formed command is ready in Action.Command.
	Emit
	// Fail: the line was rejected, the reason is in Action.Reason.
	Fail
)

// Action is returned by Parser.Step.
type Action struct {
	Kind    ActionKind
	Command Command // valid for Emit; for Fail it carries the invalid command
	Reason  Reason  // valid for Fail
}

// Done reports whether the action ends a request line (Emit or Fail).
func (a Action) Done() bool {
	return a.Kind != Continue
}
