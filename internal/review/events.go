package review

import "time"

// EventKind identifies a progress notification.
type EventKind string

const (
	EventPhaseChanged   EventKind = "phase_changed"
	EventWorkerUpdated  EventKind = "worker_updated"
	EventAggregateReady EventKind = "aggregate_ready"
	EventFixReady       EventKind = "fix_ready"
	EventFailed         EventKind = "failed"
)

// Event is one progress notification. Only the fields relevant to Kind are set.
type Event struct {
	Kind    EventKind     `json:"kind"`
	JobID   string        `json:"job_id"`
	Time    time.Time     `json:"time"`
	Phase   Phase         `json:"phase,omitempty"`
	Worker  *WorkerResult `json:"worker,omitempty"`
	Path    string        `json:"path,omitempty"`
	Message string        `json:"message,omitempty"`
}

// EventSink receives progress from a running queue. Emit is always called
// from the goroutine that called Queue.Run, in order.
type EventSink interface {
	Emit(Event)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(Event)

// Emit calls f(e).
func (f SinkFunc) Emit(e Event) { f(e) }

type discardSink struct{}

func (discardSink) Emit(Event) {}
