package unifi

// Reserved event names emitted by the controller itself.
const (
	EventConnect   = "connect"
	EventClose     = "close"
	EventError     = "error"
	EventReconnect = "reconnect"
	EventLogin     = "login"
)

// SubsystemController is the subsystem name used for controller-wide events
// such as reconnect and login.
const SubsystemController = "controller"

// Event is one classified occurrence delivered to handlers.
//
// Payload is whatever the subsystem sent (decoded JSON) for subsystem
// events, the error for EventError, and nil for the other reserved events.
type Event struct {
	Subsystem string
	Name      string
	Payload   any
}

// IsLifecycle reports whether the event is one of the reserved names.
func (e Event) IsLifecycle() bool {
	switch e.Name {
	case EventConnect, EventClose, EventError, EventReconnect, EventLogin:
		return true
	}
	return false
}
