// Package api implements the HTTP REST API and WebSocket server for Vega.
//
// This package provides:
//   - REST endpoints to run discovery, read the resource store and
//     inspect push subscription states
//   - REST endpoints to connect and disconnect receivers, query a
//     receiver's active state and read connection history
//   - WebSocket hub that relays resource and connection events to
//     dashboards
//   - Middleware stack (request ID, logging, recovery, CORS)
//   - Prometheus exposition at /metrics and a JSON system summary
//
// # Architecture
//
// The API server is a thin layer over the synchronization engine and the
// connection orchestrator. Requests call straight into them; events flow
// back out through the Hub, which implements notify.Sink.
//
// # Error Mapping
//
// Core errors map to HTTP statuses:
//
//	nmos.ErrInvalidArgument  400
//	nmos.ErrNotFound         404
//	nmos.ErrInvalidResource  422
//	nmos.ErrUpstream         502, upstream status and body echoed
//	nmos.ErrProtocol         502
//	nmos.ErrNetwork          504
//
// # Graceful Degradation
//
// The server operates without MQTT, InfluxDB or registration. Only the
// engine and orchestrator are required.
package api
