package tabs

// EventType identifies what a registry mutation did.
type EventType string

const (
	EventOpened    EventType = "opened"
	EventUpdated   EventType = "updated"
	EventActivated EventType = "activated"
	EventClosed    EventType = "closed"
	EventReordered EventType = "reordered"
	EventRestored  EventType = "restored"
)

// Event is one step of a mutation, delivered to subscribers in order.
type Event struct {
	Type EventType `json:"type"`
	Key  string    `json:"key"`
}

// HasType reports whether events contains an event of type t.
func HasType(events []Event, t EventType) bool {
	for _, ev := range events {
		if ev.Type == t {
			return true
		}
	}
	return false
}
