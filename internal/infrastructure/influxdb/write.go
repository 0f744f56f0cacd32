package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementResourceChanges   = "nmos_resource_changes"
	MeasurementSubscriptionState = "nmos_subscription_state"
	MeasurementConnections       = "nmos_connections"
)

// WriteResourceChange records one reconciled registry change.
//
// Parameters:
//   - collection: Registry collection (e.g., "senders")
//   - resourceID: Identifier of the changed resource
//   - changeType: One of "added", "removed", "modified", "synced"
func (c *Client) WriteResourceChange(collection, resourceID, changeType string) {
	c.WritePoint(MeasurementResourceChanges,
		map[string]string{"collection": collection, "change_type": changeType},
		map[string]any{"resource_id": resourceID, "count": 1},
		time.Time{},
	)
}

// WriteSubscriptionState records a push-subscription status transition.
// An empty message is omitted.
func (c *Client) WriteSubscriptionState(collection, status, message string) {
	fields := map[string]any{"value": 1}
	if message != "" {
		fields["message"] = message
	}
	c.WritePoint(MeasurementSubscriptionState,
		map[string]string{"collection": collection, "status": status},
		fields,
		time.Time{},
	)
}

// WriteConnectionOutcome records the result of a connect, disconnect or
// state query. senderID and a zero httpStatus are omitted.
func (c *Client) WriteConnectionOutcome(operation, receiverID, senderID, status string, httpStatus int) {
	fields := map[string]any{"receiver_id": receiverID}
	if senderID != "" {
		fields["sender_id"] = senderID
	}
	if httpStatus > 0 {
		fields["http_status"] = httpStatus
	}
	c.WritePoint(MeasurementConnections,
		map[string]string{"operation": operation, "status": status},
		fields,
		time.Time{},
	)
}

// WritePoint queues a point. A zero at means now. Dropped once closed.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	if !c.IsConnected() {
		return
	}
	if at.IsZero() {
		at = time.Now()
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, at))
}
