package gpio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/valvectl/internal/infrastructure/mqtt"
	"github.com/nerrad567/valvectl/internal/relay"
)

// levelCommand is the payload a remote GPIO bridge receives.
type levelCommand struct {
	Channel   int    `json:"channel"`
	Level     string `json:"level"`
	On        bool   `json:"on"`
	High      bool   `json:"high"`
	Timestamp string `json:"timestamp"`
}

// MQTTDriver drives channels on a remote GPIO bridge over MQTT.
//
// Each Set publishes one command to <prefix>/command/gpio/<channel>.
// The bridge owns the electrical mapping but the driver still reports it
// in the "high" field so simple bridges can apply it directly.
type MQTTDriver struct {
	pub      Publisher
	topics   mqtt.Topics
	polarity Polarity
	qos      byte
}

// NewMQTTDriver creates a driver publishing through pub.
func NewMQTTDriver(pub Publisher, polarity Polarity, topicPrefix string, qos byte) *MQTTDriver {
	return &MQTTDriver{
		pub:      pub,
		topics:   mqtt.NewTopics(topicPrefix),
		polarity: polarity,
		qos:      qos,
	}
}

// Setup publishes the safe level for every channel.
func (d *MQTTDriver) Setup(ctx context.Context, channels []int) error {
	return d.setAll(ctx, channels)
}

// Set publishes level for channel.
func (d *MQTTDriver) Set(_ context.Context, channel int, level relay.Level) error {
	if err := validChannel(channel); err != nil {
		return err
	}

	payload, err := json.Marshal(levelCommand{
		Channel:   channel,
		Level:     level.String(),
		On:        level == relay.LevelActive,
		High:      d.polarity.High(level),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("gpio: marshalling command: %w", err)
	}

	if err := d.pub.Publish(d.topics.GPIOCommand(channel), payload, d.qos, false); err != nil {
		return fmt.Errorf("gpio: publishing channel %d: %w", channel, err)
	}
	return nil
}

// Cleanup publishes the safe level for every channel.
func (d *MQTTDriver) Cleanup(ctx context.Context, channels []int) error {
	return d.setAll(ctx, channels)
}

// Close is a no-op; the MQTT client is owned by the caller.
func (d *MQTTDriver) Close() error {
	return nil
}

func (d *MQTTDriver) setAll(ctx context.Context, channels []int) error {
	var errs []error
	for _, ch := range channels {
		if err := d.Set(ctx, ch, relay.LevelInactive); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
