package types

// EventKind tags what a dispatched event carries.
type EventKind string

const (
	// EventNewData carries inference results for one output port.
	EventNewData EventKind = "new_data"
	// EventReply acknowledges an offload or control operation.
	EventReply EventKind = "reply"
)

// Event is the payload delivered to a handle's registered callback. The
// dispatcher hands each callback its own immutable snapshot; mutating a
// received event has no effect on the service.
type Event struct {
	Kind EventKind
	// Port names the output port a NewData event belongs to.
	Port string
	// Node optionally names the pipeline node that produced the result.
	Node string
	// Session identifies the offload session a Reply belongs to.
	Session string
	// Tensors is the result payload of a NewData event.
	Tensors Batch
	// Meta carries event metadata (artifact name, stored path, byte counts).
	Meta map[string]string
	// Err is set when the underlying operation failed; the event is still
	// delivered so failures are never silently swallowed.
	Err error
}

// EventCallback receives events on the handle's dispatch goroutine, never on
// the submitter's call stack. Invocations are serialized per handle.
type EventCallback func(Event)
