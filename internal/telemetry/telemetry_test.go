package telemetry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/valvectl/internal/history"
	"github.com/nerrad567/valvectl/internal/infrastructure/influxdb"
	"github.com/nerrad567/valvectl/internal/infrastructure/mqtt"
	"github.com/nerrad567/valvectl/internal/relay"
)

type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

type mockPublisher struct {
	messages []published
	err      error
}

func (m *mockPublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.messages = append(m.messages, published{topic, payload, qos, retained})
	return m.err
}

type mockWriter struct {
	holds []influxdb.ChannelHold
}

func (m *mockWriter) WriteChannelHold(h influxdb.ChannelHold) {
	m.holds = append(m.holds, h)
}

type warnLogger struct {
	warnings []string
}

func (l *warnLogger) Warn(msg string, _ ...any) { l.warnings = append(l.warnings, msg) }

func record(seq int, e relay.Event) history.EventRecord {
	return history.EventRecord{OperationID: "op-1", Seq: seq, Event: e}
}

func TestInfluxObserver(t *testing.T) {
	w := &mockWriter{}
	o := NewInfluxObserver(w)
	now := time.Now().UTC()

	o.Observe(record(1, relay.Event{Kind: relay.EventGroupStarted, Group: 1}))
	o.Observe(record(2, relay.Event{Kind: relay.EventChannelActivated, Channel: 17}))
	o.Observe(record(3, relay.Event{
		Kind:         relay.EventChannelReverted,
		Time:         now,
		Group:        1,
		Channel:      17,
		TargetActive: true,
		Duration:     time.Minute,
		Held:         20 * time.Second,
		Cancelled:    true,
		Err:          "relay: channel 17: revert: boom",
	}))

	if len(w.holds) != 1 {
		t.Fatalf("holds = %d, want 1 (only reverts are written)", len(w.holds))
	}
	h := w.holds[0]
	if h.OperationID != "op-1" || h.Channel != 17 || h.Group != 1 {
		t.Errorf("hold identity = %+v", h)
	}
	if h.Requested != time.Minute || h.Held != 20*time.Second {
		t.Errorf("Requested/Held = %v/%v", h.Requested, h.Held)
	}
	if !h.Cancelled || !h.Failed || !h.TargetActive {
		t.Errorf("flags = %+v", h)
	}
	if !h.RevertedAt.Equal(now) {
		t.Errorf("RevertedAt = %v, want %v", h.RevertedAt, now)
	}
}

func TestMQTTObserver_ChannelEvents(t *testing.T) {
	pub := &mockPublisher{}
	o := NewMQTTObserver(pub, mqtt.NewTopics("vt"), 1, nil)

	o.Observe(record(1, relay.Event{Kind: relay.EventChannelActivated, Channel: 4, TargetActive: true}))
	o.Observe(record(2, relay.Event{Kind: relay.EventChannelReverted, Channel: 4, TargetActive: true}))

	if len(pub.messages) != 4 {
		t.Fatalf("messages = %d, want 4", len(pub.messages))
	}

	tests := []struct {
		idx      int
		topic    string
		retained bool
		active   *bool
	}{
		{idx: 0, topic: "vt/event/op-1"},
		{idx: 1, topic: "vt/state/gpio/4", retained: true, active: ptr(true)},
		{idx: 2, topic: "vt/event/op-1"},
		{idx: 3, topic: "vt/state/gpio/4", retained: true, active: ptr(false)},
	}
	for _, tt := range tests {
		msg := pub.messages[tt.idx]
		if msg.topic != tt.topic {
			t.Errorf("messages[%d].topic = %q, want %q", tt.idx, msg.topic, tt.topic)
		}
		if msg.retained != tt.retained {
			t.Errorf("messages[%d].retained = %v, want %v", tt.idx, msg.retained, tt.retained)
		}
		if msg.qos != 1 {
			t.Errorf("messages[%d].qos = %d, want 1", tt.idx, msg.qos)
		}
		if tt.active != nil {
			var state stateMessage
			if err := json.Unmarshal(msg.payload, &state); err != nil {
				t.Fatalf("messages[%d] payload: %v", tt.idx, err)
			}
			if state.Active != *tt.active || state.Channel != 4 {
				t.Errorf("messages[%d] state = %+v", tt.idx, state)
			}
		}
	}

	var ev history.EventRecord
	if err := json.Unmarshal(pub.messages[0].payload, &ev); err != nil {
		t.Fatalf("event payload: %v", err)
	}
	if ev.Seq != 1 || ev.Kind != relay.EventChannelActivated || ev.OperationID != "op-1" {
		t.Errorf("event payload = %+v", ev)
	}
}

func TestMQTTObserver_GroupEventsHaveNoState(t *testing.T) {
	pub := &mockPublisher{}
	o := NewMQTTObserver(pub, mqtt.NewTopics(""), 0, nil)

	o.Observe(record(1, relay.Event{Kind: relay.EventGroupFinished, Outcome: relay.OutcomeCompleted}))

	if len(pub.messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(pub.messages))
	}
	if pub.messages[0].topic != "valvectl/event/op-1" {
		t.Errorf("topic = %q", pub.messages[0].topic)
	}
}

func TestMQTTObserver_PublishErrorLogged(t *testing.T) {
	pub := &mockPublisher{err: errors.New("not connected")}
	log := &warnLogger{}
	o := NewMQTTObserver(pub, mqtt.NewTopics("vt"), 0, log)

	o.Observe(record(1, relay.Event{Kind: relay.EventChannelReverted, Channel: 2}))

	if len(log.warnings) != 2 {
		t.Errorf("warnings = %v, want 2", log.warnings)
	}
}

func TestFanout(t *testing.T) {
	var order []string
	f := Fanout{
		history.ObserverFunc(func(history.EventRecord) { order = append(order, "a") }),
		nil,
		history.ObserverFunc(func(history.EventRecord) { order = append(order, "b") }),
	}

	f.Observe(record(1, relay.Event{Kind: relay.EventCleanup}))

	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Errorf("order = %v, want [a b]", order)
	}
}

func ptr[T any](v T) *T { return &v }
