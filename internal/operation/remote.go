package operation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nerrad567/valvectl/internal/infrastructure/mqtt"
)

// Subscriber routes broker messages to handlers. Satisfied by *mqtt.Client.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// stopCommand is the optional payload of a stop message. An empty payload,
// or one without operation_id, stops whatever is running.
type stopCommand struct {
	OperationID string `json:"operation_id"`
}

// RemoteStop stops the manager's active operation when a message arrives on
// the stop topic. It is the broker counterpart of `valvectl stop`.
type RemoteStop struct {
	manager *Manager
	sub     Subscriber
	topic   string
	logger  Logger
}

// ListenForStop subscribes to topic and stops m's active operation for each
// message received.
//
// Parameters:
//   - m: the manager whose operations are stopped
//   - sub: broker connection
//   - topic: usually mqtt.Topics.StopCommand()
//   - qos: subscription QoS
//   - logger: Logger instance (may be nil)
func ListenForStop(m *Manager, sub Subscriber, topic string, qos byte, logger Logger) (*RemoteStop, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	rs := &RemoteStop{
		manager: m,
		sub:     sub,
		topic:   topic,
		logger:  logger,
	}
	if err := sub.Subscribe(topic, qos, rs.handle); err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	logger.Info("listening for remote stop", "topic", topic)
	return rs, nil
}

// Close unsubscribes from the stop topic.
func (rs *RemoteStop) Close() error {
	return rs.sub.Unsubscribe(rs.topic)
}

// handle cancels the active operation and returns at once; teardown runs
// on the operation's own goroutine so the broker's delivery is not held up.
func (rs *RemoteStop) handle(topic string, payload []byte) error {
	var cmd stopCommand
	if len(bytes.TrimSpace(payload)) > 0 {
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return fmt.Errorf("decoding stop command on %s: %w", topic, err)
		}
	}

	id, err := rs.manager.Cancel(cmd.OperationID)
	switch {
	case errors.Is(err, ErrNoActiveOperation):
		rs.logger.Info("remote stop ignored, nothing running", "topic", topic)
		return nil
	case errors.Is(err, ErrUnknownOperation):
		rs.logger.Warn("remote stop ignored, operation not active", "requested", cmd.OperationID)
		return nil
	case err != nil:
		return err
	}

	rs.logger.Info("operation stopped remotely", "operation_id", id, "topic", topic)
	return nil
}
