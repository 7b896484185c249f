// Package mqtt provides the MQTT client used to mirror readings.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Retained publishing of instrument readings and availability
//   - Topic subscriptions with wildcard support (used by "solarlog watch")
//   - Last Will and Testament so a crashed poller shows as offline
//
// # Topics
//
//	solarlog/<instrument>/reading   latest record, retained
//	solarlog/<instrument>/status    online/offline, retained
//	solarlog/system/status          process status, LWT
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS=true) when the broker is not on localhost
//   - Payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishRetained(mqtt.Topics{}.Reading("inverter"), payload)
package mqtt
