package protocol

// PipelineMode selects what happens to bytes that follow a completed line in
// the same receive view.
type PipelineMode uint8

const (
	// PipelineDisabled drops the tail. The receive window never exceeds the
	// line budget, so no buffer beyond the key scratch is needed.
	PipelineDisabled PipelineMode = iota

	// PipelineBuffered keeps up to one extra line of tail bytes in a bounded
	// buffer and advertises room for it in the window.
	PipelineBuffered
)

func (m PipelineMode) String() string {
	if m == PipelineBuffered {
		return "buffered"
	}
	return "disabled"
}

// WindowSizer computes how many bytes a connection is willing to receive next.
type WindowSizer struct {
	MaxLineLength int
	Mode          PipelineMode
}

// NewWindowSizer returns a sizer for the given line budget and mode.
// A maxLineLength <= 0 selects MaxLineLength.
func NewWindowSizer(maxLineLength int, mode PipelineMode) WindowSizer {
	if maxLineLength <= 0 {
		maxLineLength = MaxLineLength
	}
	return WindowSizer{MaxLineLength: maxLineLength, Mode: mode}
}

// Next returns the window for the parser's current position. With
// pipelining disabled the result is always in [1, MaxLineLength].
func (w WindowSizer) Next(p *Parser) int {
	window := w.MaxLineLength
	if !p.Idle() {
		window = max(w.MaxLineLength-p.LineConsumed(), 1)
	}

	if w.Mode == PipelineBuffered {
		window += w.MaxLineLength
	}

	return window
}
