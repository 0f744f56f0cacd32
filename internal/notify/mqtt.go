package notify

import (
	"github.com/nerrad567/vega-nmos-core/internal/infrastructure/mqtt"
)

// Publisher is the subset of *mqtt.Client used by MQTTSink.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	PublishJSON(topic string, v any, retained bool) error
	Topics() mqtt.Topics
}

// MQTTSink mirrors notifications onto retained MQTT state topics.
//
// Topic mapping:
//   - resourceUpdate:   {prefix}/resource/{collection}/{id}, cleared on removal
//   - connectionState:  {prefix}/connection/{receiver_id}/state
//   - connectionStatus: {prefix}/registry/status (not retained)
type MQTTSink struct {
	pub    Publisher
	qos    byte
	logger Logger
}

// NewMQTTSink creates a sink publishing through pub. Clearing retained
// resource topics uses qos.
func NewMQTTSink(pub Publisher, qos byte, logger Logger) *MQTTSink {
	return &MQTTSink{pub: pub, qos: qos, logger: orNoop(logger)}
}

// Notify implements Sink. Publish failures are logged and dropped.
func (s *MQTTSink) Notify(ev Event) {
	topics := s.pub.Topics()

	var (
		topic string
		err   error
	)
	switch p := ev.Payload.(type) {
	case ResourceUpdate:
		topic = topics.Resource(string(p.Type), p.ID)
		if p.ChangeType == "removed" {
			// An empty retained payload deletes the retained message.
			err = s.pub.Publish(topic, nil, s.qos, true)
		} else {
			err = s.pub.PublishJSON(topic, p, true)
		}
	case ConnectionState:
		topic = topics.ConnectionState(p.ReceiverID)
		if p.Operation == "disconnect" && p.Status != StatusError {
			err = s.pub.Publish(topic, nil, s.qos, true)
		} else {
			err = s.pub.PublishJSON(topic, p, true)
		}
	case ConnectionStatus:
		topic = topics.RegistryStatus()
		err = s.pub.PublishJSON(topic, p, false)
	default:
		s.logger.Debug("mqtt sink: ignoring event", "kind", ev.Kind)
		return
	}

	if err != nil {
		s.logger.Warn("mqtt sink: publish failed", "topic", topic, "kind", ev.Kind, "error", err)
	}
}
