package status

import "time"

// State is the last known connection state of a subsystem.
type State string

const (
	StateUnknown      State = "unknown"
	StateConnected    State = "connected"
	StateClosed       State = "closed"
	StateErrored      State = "errored"
	StateReconnecting State = "reconnecting"
)

// SubsystemStatus is the lifecycle summary of one subsystem stream.
// The "controller" row tracks reconnect cycles.
type SubsystemStatus struct {
	Subsystem       string     `json:"subsystem"`
	State           State      `json:"state"`
	ConnectCount    int64      `json:"connect_count"`
	ReconnectCount  int64      `json:"reconnect_count"`
	LastConnectedAt *time.Time `json:"last_connected_at,omitempty"`
	LastClosedAt    *time.Time `json:"last_closed_at,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
	LastErrorAt     *time.Time `json:"last_error_at,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
