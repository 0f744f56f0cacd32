// Package influxdb writes control-plane telemetry to InfluxDB v2.
//
// Three measurements are recorded, each tagged service=vega:
//
//	nmos_resource_changes    collection, change_type  -> resource_id, count
//	nmos_subscription_state  collection, status       -> value, message
//	nmos_connections         operation, status        -> receiver_id, sender_id, http_status
//
// Points are queued on the non-blocking write API and flushed in batches,
// so writes never stall the sync engine. Batch failures are reported to the
// callback installed with SetOnError; connect and health-check failures are
// returned directly.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
package influxdb
