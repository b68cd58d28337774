package mqtt

import (
	"fmt"
	"strconv"
)

// DefaultTopicPrefix is used when the configured prefix is empty.
const DefaultTopicPrefix = "valvectl"

// Topics builds valvectl MQTT topics under a configurable prefix.
// Using these helpers keeps topic naming consistent between the GPIO
// bridge, the event publisher, and subscribers.
//
//	topics := mqtt.NewTopics("valvectl")
//	topics.GPIOCommand(17)   // "valvectl/command/gpio/17"
//	topics.StopCommand()     // "valvectl/command/stop"
//	topics.Event("4f1c...")  // "valvectl/event/4f1c..."
type Topics struct {
	Prefix string
}

// NewTopics returns topic builders for prefix, falling back to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// GPIOCommand returns the topic a remote GPIO bridge listens on for one channel.
//
// Example: valvectl/command/gpio/17
func (t Topics) GPIOCommand(channel int) string {
	return fmt.Sprintf("%s/command/gpio/%s", t.prefix(), strconv.Itoa(channel))
}

// GPIOState returns the retained topic holding a channel's last scheduled state.
//
// Example: valvectl/state/gpio/17
func (t Topics) GPIOState(channel int) string {
	return fmt.Sprintf("%s/state/gpio/%s", t.prefix(), strconv.Itoa(channel))
}

// Event returns the topic scheduler events for one operation are published on.
//
// Example: valvectl/event/4f1c2b9e-...
func (t Topics) Event(operationID string) string {
	return fmt.Sprintf("%s/event/%s", t.prefix(), operationID)
}

// StopCommand returns the topic that stops the active operation.
//
// Example: valvectl/command/stop
func (t Topics) StopCommand() string {
	return fmt.Sprintf("%s/command/stop", t.prefix())
}

// SystemStatus returns the online/offline status topic.
//
// Example: valvectl/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.prefix())
}

// AllGPIOCommands matches every GPIO command.
//
// Pattern: valvectl/command/gpio/+
func (t Topics) AllGPIOCommands() string {
	return fmt.Sprintf("%s/command/gpio/+", t.prefix())
}

// AllEvents matches every operation's event stream.
//
// Pattern: valvectl/event/+
func (t Topics) AllEvents() string {
	return fmt.Sprintf("%s/event/+", t.prefix())
}

// AllTopics matches everything under the prefix.
// Use with caution - this receives ALL traffic.
//
// Pattern: valvectl/#
func (t Topics) AllTopics() string {
	return t.prefix() + "/#"
}
