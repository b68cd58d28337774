package gpio

import (
	"context"
	"fmt"

	"github.com/nerrad567/valvectl/internal/infrastructure/config"
	"github.com/nerrad567/valvectl/internal/relay"
)

// Driver is a relay.Driver with an explicit lifecycle.
//
// Setup prepares channels for output and drives them to the safe level.
// Close releases the underlying hardware or connection and must be called
// once the driver is no longer needed.
type Driver interface {
	relay.Driver
	Setup(ctx context.Context, channels []int) error
	Close() error
}

// Polarity maps logical levels to electrical levels.
type Polarity struct {
	// ActiveLow drives LOW for relay.LevelActive and HIGH for relay.LevelInactive.
	ActiveLow bool
}

// High reports whether level is driven as an electrical HIGH.
func (p Polarity) High(level relay.Level) bool {
	active := level == relay.LevelActive
	if p.ActiveLow {
		return !active
	}
	return active
}

// SafeHigh reports whether the safe (inactive) level is an electrical HIGH.
func (p Polarity) SafeHigh() bool {
	return p.High(relay.LevelInactive)
}

// Publisher is the subset of the MQTT client the MQTT driver needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Open creates the driver named by cfg.Driver.
//
// Parameters:
//   - cfg: GPIO configuration
//   - pub: MQTT publisher, required for the "mqtt" driver and ignored otherwise
//   - topicPrefix: MQTT topic prefix for the "mqtt" driver
//   - qos: MQTT QoS for the "mqtt" driver
//
// The returned driver still needs Setup before the first Set.
func Open(cfg config.GPIOConfig, pub Publisher, topicPrefix string, qos byte) (Driver, error) {
	polarity := Polarity{ActiveLow: cfg.ActiveLow}

	switch cfg.Driver {
	case config.DriverRPIO, "":
		return NewRPIODriver(polarity, cfg.ReleaseOnCleanup), nil
	case config.DriverMQTT:
		if pub == nil {
			return nil, ErrPublisherRequired
		}
		return NewMQTTDriver(pub, polarity, topicPrefix, qos), nil
	case config.DriverMemory:
		return NewMemoryDriver(polarity), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// validChannel reports whether channel is a usable BCM GPIO number.
func validChannel(channel int) error {
	if channel < 0 || channel > maxChannel {
		return fmt.Errorf("%w: %d (must be 0-%d)", ErrInvalidChannel, channel, maxChannel)
	}
	return nil
}

// maxChannel is the highest BCM GPIO number on the BCM2835 family.
const maxChannel = 53
