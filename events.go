package memoize

// EventType identifies the engine operation an Event reports.
type EventType int

const (
	// EventRetrieve is emitted when a lookup begins.
	EventRetrieve EventType = iota
	// EventRetrieved is emitted on a cache hit, carrying the value.
	EventRetrieved
	// EventSave is emitted when a value is stored.
	EventSave
	// EventOverflow is emitted before a batch eviction, carrying the keys
	// about to be removed.
	EventOverflow
	// EventDelete is emitted when a deletion begins.
	EventDelete
	// EventDeleted is emitted after a deletion, carrying the removed value.
	EventDeleted
	// EventEmpty is emitted when the store is cleared.
	EventEmpty
	// EventEnable is emitted on every Enable call, including redundant ones.
	EventEnable
	// EventDisable is emitted on every Disable call, including redundant ones.
	EventDisable
)

var eventTypeNames = map[EventType]string{
	EventRetrieve:  "retrieve",
	EventRetrieved: "retrieved",
	EventSave:      "save",
	EventOverflow:  "overflow",
	EventDelete:    "delete",
	EventDeleted:   "deleted",
	EventEmpty:     "empty",
	EventEnable:    "enable",
	EventDisable:   "disable",
}

func (t EventType) String() string {
	if s, ok := eventTypeNames[t]; ok {
		return s
	}
	return "unknown"
}

// Event is the observable side channel of a cache engine. Events are emitted
// at the documented points whether or not anything is subscribed; delivery to
// the configured channel is best-effort and never blocks the engine.
type Event struct {
	Type  EventType
	Key   string
	Value any
	Args  []any
	// Keys carries the evicted keys for EventOverflow.
	Keys []string
}
