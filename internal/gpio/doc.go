// Package gpio implements relay output drivers.
//
// Three drivers satisfy Driver:
//
//   - RPIODriver writes BCM GPIO registers through go-rpio
//   - MQTTDriver publishes level commands to a remote GPIO bridge
//   - MemoryDriver records levels in memory for dry runs and tests
//
// # Polarity
//
// The scheduler only deals in logical levels. Polarity maps them to
// electrical ones. Most opto-isolated relay boards are active-low, so the
// default configuration drives LOW to energise a relay and HIGH to release it.
//
// # Usage
//
//	driver, err := gpio.Open(cfg.GPIO, mqttClient, cfg.MQTT.TopicPrefix, byte(cfg.MQTT.QoS))
//	if err != nil {
//	    return err
//	}
//	defer driver.Close()
//
//	if err := driver.Setup(ctx, plan.Channels()); err != nil {
//	    return err
//	}
package gpio
