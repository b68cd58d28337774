// Package telemetry forwards recorded valve events to external systems.
//
// Observers here plug into history.Recorder:
//
//	rec := history.NewRecorder(repo, opID, log, telemetry.Fanout{
//	    telemetry.NewInfluxObserver(influxClient),
//	    telemetry.NewMQTTObserver(mqttClient, mqttClient.Topics(), mqttClient.QoS(), log),
//	    hub,
//	})
//	defer rec.Close()
//
// Observers run on the recorder's worker goroutine, one event at a time, so
// a slow broker delays later telemetry but never a valve. InfluxDB writes are
// batched; MQTT publishes are bounded by the client's publish timeout.
package telemetry
