package notify

// TelemetryWriter is the subset of *influxdb.Client used by TelemetrySink.
type TelemetryWriter interface {
	WriteResourceChange(collection, resourceID, changeType string)
	WriteSubscriptionState(collection, status, message string)
	WriteConnectionOutcome(operation, receiverID, senderID, status string, httpStatus int)
}

// TelemetrySink records notifications as time-series points.
type TelemetrySink struct {
	w TelemetryWriter
}

// NewTelemetrySink creates a sink writing through w.
func NewTelemetrySink(w TelemetryWriter) *TelemetrySink {
	return &TelemetrySink{w: w}
}

// Notify implements Sink.
func (s *TelemetrySink) Notify(ev Event) {
	switch p := ev.Payload.(type) {
	case ResourceUpdate:
		s.w.WriteResourceChange(string(p.Type), p.ID, p.ChangeType)
	case ConnectionStatus:
		s.w.WriteSubscriptionState(string(p.Collection()), p.Status, p.Message)
	case ConnectionState:
		s.w.WriteConnectionOutcome(p.Operation, p.ReceiverID, p.SenderID, p.Status, p.HTTPStatus)
	}
}
