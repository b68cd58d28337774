package telemetry

import (
	"encoding/json"
	"time"

	"github.com/nerrad567/valvectl/internal/history"
	"github.com/nerrad567/valvectl/internal/infrastructure/influxdb"
	"github.com/nerrad567/valvectl/internal/infrastructure/mqtt"
	"github.com/nerrad567/valvectl/internal/relay"
)

// Logger is the logging interface used by telemetry observers.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Publisher sends MQTT messages. Satisfied by *mqtt.Client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MetricWriter records telemetry points. Satisfied by *influxdb.Client.
type MetricWriter interface {
	WriteChannelHold(h influxdb.ChannelHold)
}

// Fanout forwards each event record to every observer in order.
type Fanout []history.Observer

// Observe implements history.Observer.
func (f Fanout) Observe(rec history.EventRecord) {
	for _, o := range f {
		if o != nil {
			o.Observe(rec)
		}
	}
}

// InfluxObserver writes one valve_channel point per channel revert.
type InfluxObserver struct {
	writer MetricWriter
}

// NewInfluxObserver creates an observer writing to w.
func NewInfluxObserver(w MetricWriter) *InfluxObserver {
	return &InfluxObserver{writer: w}
}

// Observe implements history.Observer.
func (o *InfluxObserver) Observe(rec history.EventRecord) {
	if rec.Kind != relay.EventChannelReverted {
		return
	}
	o.writer.WriteChannelHold(influxdb.ChannelHold{
		OperationID:  rec.OperationID,
		Channel:      rec.Channel,
		Group:        rec.Group,
		TargetActive: rec.TargetActive,
		Requested:    rec.Duration,
		Held:         rec.Held,
		Cancelled:    rec.Cancelled,
		Failed:       rec.Err != "",
		RevertedAt:   rec.Time,
	})
}

// stateMessage is the retained payload on <prefix>/state/gpio/<channel>.
type stateMessage struct {
	Channel     int    `json:"channel"`
	Active      bool   `json:"active"`
	OperationID string `json:"operation_id"`
	Timestamp   string `json:"timestamp"`
}

// MQTTObserver publishes every event to <prefix>/event/<operation_id> and
// keeps a retained per-channel state topic current.
//
// Publish failures are logged and dropped.
type MQTTObserver struct {
	pub    Publisher
	topics mqtt.Topics
	qos    byte
	logger Logger
}

// NewMQTTObserver creates an observer publishing through pub.
func NewMQTTObserver(pub Publisher, topics mqtt.Topics, qos byte, logger Logger) *MQTTObserver {
	if logger == nil {
		logger = noopLogger{}
	}
	return &MQTTObserver{pub: pub, topics: topics, qos: qos, logger: logger}
}

// Observe implements history.Observer.
func (o *MQTTObserver) Observe(rec history.EventRecord) {
	payload, err := json.Marshal(rec)
	if err != nil {
		o.logger.Warn("encoding event for mqtt failed", "error", err)
		return
	}
	o.publish(o.topics.Event(rec.OperationID), payload, false)

	var active bool
	switch rec.Kind {
	case relay.EventChannelActivated:
		active = rec.TargetActive
	case relay.EventChannelReverted:
		active = false
	default:
		return
	}

	state, err := json.Marshal(stateMessage{
		Channel:     rec.Channel,
		Active:      active,
		OperationID: rec.OperationID,
		Timestamp:   rec.Time.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		o.logger.Warn("encoding channel state failed", "error", err)
		return
	}
	o.publish(o.topics.GPIOState(rec.Channel), state, true)
}

func (o *MQTTObserver) publish(topic string, payload []byte, retained bool) {
	if err := o.pub.Publish(topic, payload, o.qos, retained); err != nil {
		o.logger.Warn("mqtt publish failed", "topic", topic, "error", err)
	}
}
