// Package mqtt mirrors Vega state onto an MQTT broker.
//
// The bus is optional and outbound first: registry record changes, push
// channel status and receiver connection records are published as
// retained JSON under a configurable prefix (see Topics), so automation
// and monitoring systems can follow the media network without speaking
// NMOS. Connect and disconnect requests may arrive on command topics.
//
// A retained presence document on {prefix}/system/status reads "online"
// while the session is up. Close replaces it with a graceful "offline";
// a crash leaves the broker to publish the will, whose reason is
// "unexpected_disconnect".
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if errors.Is(err, mqtt.ErrDisabled) {
//	    // bus off
//	}
//	defer client.Close()
//
//	client.PublishJSON(client.Topics().ConnectionState(receiverID), record, true)
package mqtt
