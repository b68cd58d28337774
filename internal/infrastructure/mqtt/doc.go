// Package mqtt provides MQTT client connectivity for valvectl.
//
// This package manages:
//   - Connection to a Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// MQTT serves two roles. The gpio.MQTTDriver publishes channel levels to a
// remote GPIO bridge, and telemetry.MQTTSink publishes scheduler events so
// dashboards can follow a run.
//
//	valvectl ↔ MQTT Broker ↔ GPIO bridge / dashboards
//
// # Topics
//
// All topics live under a configurable prefix (default "valvectl"):
//
//	valvectl/command/gpio/{channel}   channel level commands
//	valvectl/event/{operation_id}     scheduler events
//	valvectl/system/status            online/offline (retained, LWT)
//
// # Security Considerations
//
//   - Enable TLS when the broker is not on localhost (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := client.Topics().GPIOCommand(17)
//	client.Publish(topic, []byte(`{"on":true}`), client.QoS(), false)
package mqtt
