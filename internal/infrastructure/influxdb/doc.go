// Package influxdb records valve telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes, and health monitoring.
//
// # Measurements
//
//   - valve_channel: one point per channel revert (held_ms, cancelled, failed)
//   - valve_operation: one point per finished operation
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.SetOnError(func(err error) { log.Warn("influx write", "error", err) })
//	client.WriteChannelHold(influxdb.ChannelHold{Channel: 17, Held: time.Minute})
//
// # Error Handling
//
// Writes never block and never return errors; batch failures arrive through
// the SetOnError callback. Connection and health check errors are returned
// directly.
package influxdb
