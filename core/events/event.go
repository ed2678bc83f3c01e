package events

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC streams,
// webhook fanout).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Recorder buffers events raised during a state transition so they can be
// published only after the transition commits.
type Recorder struct {
	events []Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	if evt == nil {
		return
	}
	r.events = append(r.events, evt)
}

// Drain returns the buffered events and resets the recorder.
func (r *Recorder) Drain() []Event {
	out := r.events
	r.events = nil
	return out
}

// Reset discards any buffered events.
func (r *Recorder) Reset() {
	r.events = nil
}
