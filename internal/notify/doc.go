// Package notify carries change notifications from the discovery engine and
// the connection orchestrator to their observers.
//
// Producers build an Event (resource update, push-channel status or
// connection state) and hand it to a Sink. Sinks must not block: the
// engine delivers events from a single dispatcher goroutine and a slow
// sink delays every subsequent notification.
//
// Provided sinks:
//   - Fanout: delivers to several sinks in order
//   - MQTTSink: publishes retained state topics through the MQTT client
//   - TelemetrySink: writes points through the InfluxDB client
//
// The WebSocket hub in package api implements Sink directly.
package notify
