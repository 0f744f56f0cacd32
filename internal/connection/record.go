package connection

import "time"

// Status is the believed state of a receiver's connection.
type Status string

// Record statuses. StatusInactive only appears in history and
// notifications: a successful disconnect removes the Record.
const (
	StatusActive   Status = "active"
	StatusError    Status = "error"
	StatusUnknown  Status = "unknown"
	StatusInactive Status = "inactive"
)

// Operations recorded in history and notifications.
const (
	OpConnect    = "connect"
	OpDisconnect = "disconnect"
	OpQuery      = "query"
)

// Record is the cached outcome of the last operation on one receiver.
type Record struct {
	ReceiverID      string    `json:"receiverId"`
	SenderID        string    `json:"senderId,omitempty"`
	Status          Status    `json:"status"`
	Timestamp       time.Time `json:"timestamp"`
	TransportParams any       `json:"transportParams,omitempty"`
	Error           string    `json:"error,omitempty"`
	HTTPStatus      int       `json:"httpStatus,omitempty"`
}

// TransportFile is the sender's transport descriptor, usually SDP.
type TransportFile struct {
	Data string `json:"data"`
	Type string `json:"type"`
}

// Activation requests how staged parameters take effect.
type Activation struct {
	Mode string `json:"mode"`
}

// ActivateImmediate applies staged parameters on receipt.
const ActivateImmediate = "activate_immediate"

// StagedPatch is the body PATCHed to /single/receivers/{id}/staged.
// A nil SenderID is encoded as null.
type StagedPatch struct {
	SenderID      *string        `json:"sender_id"`
	MasterEnable  bool           `json:"master_enable"`
	Activation    Activation     `json:"activation"`
	TransportFile *TransportFile `json:"transport_file,omitempty"`
}

// ActiveParams is the body of GET /single/receivers/{id}/active.
type ActiveParams struct {
	SenderID        *string        `json:"sender_id"`
	MasterEnable    bool           `json:"master_enable"`
	TransportParams []any          `json:"transport_params,omitempty"`
	Activation      map[string]any `json:"activation,omitempty"`
}
