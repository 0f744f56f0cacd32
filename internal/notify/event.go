package notify

import (
	"time"

	"github.com/nerrad567/vega-nmos-core/internal/resource"
)

// Kind identifies the payload type of an Event.
type Kind string

// Event kinds.
const (
	KindResourceUpdate   Kind = "resourceUpdate"
	KindConnectionStatus Kind = "connectionStatus"
	KindConnectionState  Kind = "connectionState"
)

// Push channel status values carried by ConnectionStatus.
const (
	StatusConnected    = "connected"
	StatusError        = "error"
	StatusFailed       = "failed"
	StatusDisconnected = "disconnected"
)

// Event is one notification.
type Event struct {
	Kind    Kind      `json:"type"`
	Time    time.Time `json:"timestamp"`
	Payload any       `json:"payload"`
}

// ResourceUpdate reports one reconciled record change. Data holds the new
// value and is nil for a removal.
type ResourceUpdate struct {
	Type       resource.Collection `json:"type"`
	ID         string              `json:"id"`
	ChangeType string              `json:"changeType"`
	Data       resource.Resource   `json:"data"`
}

// ConnectionStatus reports a registry or push channel condition.
// ResourcePath is set when the status concerns one collection.
type ConnectionStatus struct {
	Status       string `json:"status"`
	Message      string `json:"message,omitempty"`
	ResourcePath string `json:"resourcePath,omitempty"`
}

// Collection returns the collection named by ResourcePath, or "" when the
// status is not collection specific.
func (s ConnectionStatus) Collection() resource.Collection {
	c, err := resource.ParseCollection(s.ResourcePath)
	if err != nil {
		return ""
	}
	return c
}

// ConnectionState reports the outcome of a connect, disconnect or state
// query against one receiver.
type ConnectionState struct {
	Operation  string    `json:"operation"`
	ReceiverID string    `json:"receiverId"`
	SenderID   string    `json:"senderId,omitempty"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	HTTPStatus int       `json:"httpStatus,omitempty"`
	Transport  any       `json:"transportParams,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Event wraps u in an Event stamped with t.
func (u ResourceUpdate) Event(t time.Time) Event {
	return Event{Kind: KindResourceUpdate, Time: t, Payload: u}
}

// Event wraps s in an Event stamped with t.
func (s ConnectionStatus) Event(t time.Time) Event {
	return Event{Kind: KindConnectionStatus, Time: t, Payload: s}
}

// Event wraps s in an Event stamped with t.
func (s ConnectionState) Event(t time.Time) Event {
	return Event{Kind: KindConnectionState, Time: t, Payload: s}
}
