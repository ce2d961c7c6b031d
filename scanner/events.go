package scanner

// EventKind labels the progress events a scan emits while running.
type EventKind int

const (
	EventMeta EventKind = iota
	EventProgress
	EventMatch
	EventWarn
	EventStatus
	EventDone
	EventStopped
	EventError
)

// Event is a single progress notification. Only the fields relevant
// to the Kind are populated.
type Event struct {
	Kind EventKind

	// EventMeta
	SourcePath    string
	DurationS     float64
	DurationKnown bool
	TotalSamples  int
	Workers       int
	OutputPath    string

	// EventProgress
	Done       int
	Total      int
	TotalKnown bool
	ElapsedS   float64
	ETAS       float64
	HasETA     bool
	OffsetS    int
	Matches    int
	NoMatch    int
	Errors     int
	RateLimits int

	// EventMatch / EventWarn / EventStatus / EventError
	Text string
	Err  error
}

// Emitter pushes events onto a buffered channel without ever blocking
// the scan; slow consumers lose events rather than stalling workers.
type Emitter struct {
	ch chan Event
}

func NewEmitter(buffer int) *Emitter {
	if buffer < 1 {
		buffer = 64
	}
	return &Emitter{ch: make(chan Event, buffer)}
}

// Events is the consumer side. It is closed by CloseEvents when the
// scan finishes.
func (e *Emitter) Events() <-chan Event {
	return e.ch
}

func (e *Emitter) Emit(ev Event) {
	if e == nil {
		return
	}
	select {
	case e.ch <- ev:
	default:
	}
}

func (e *Emitter) CloseEvents() {
	if e != nil {
		close(e.ch)
	}
}
