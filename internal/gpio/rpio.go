package gpio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"

	"github.com/nerrad567/valvectl/internal/relay"
)

// pinBank is the register-level access the RPIO driver needs.
// The default implementation memory-maps /dev/gpiomem through go-rpio.
type pinBank interface {
	Open() error
	Close() error
	Output(pin int)
	Input(pin int)
	Write(pin int, high bool)
}

// rpioBank drives BCM GPIO registers through go-rpio.
type rpioBank struct{}

func (rpioBank) Open() error  { return rpio.Open() }
func (rpioBank) Close() error { return rpio.Close() }

func (rpioBank) Output(pin int) { rpio.Pin(pin).Output() }
func (rpioBank) Input(pin int)  { rpio.Pin(pin).Input() }

func (rpioBank) Write(pin int, high bool) {
	if high {
		rpio.Pin(pin).Write(rpio.High)
		return
	}
	rpio.Pin(pin).Write(rpio.Low)
}

// RPIODriver drives Raspberry Pi GPIO pins directly.
//
// Pins are addressed by BCM number. Setup maps the GPIO registers on first
// use and switches every channel to output at the safe level.
//
// Thread Safety: all methods are safe for concurrent use.
type RPIODriver struct {
	bank             pinBank
	polarity         Polarity
	releaseOnCleanup bool

	mu     sync.Mutex
	open   bool
	output map[int]bool
}

// NewRPIODriver creates a driver for the local GPIO header.
//
// Parameters:
//   - polarity: logical to electrical level mapping
//   - releaseOnCleanup: switch pins back to input mode during Cleanup
func NewRPIODriver(polarity Polarity, releaseOnCleanup bool) *RPIODriver {
	return newRPIODriver(rpioBank{}, polarity, releaseOnCleanup)
}

func newRPIODriver(bank pinBank, polarity Polarity, releaseOnCleanup bool) *RPIODriver {
	return &RPIODriver{
		bank:             bank,
		polarity:         polarity,
		releaseOnCleanup: releaseOnCleanup,
		output:           make(map[int]bool),
	}
}

// Setup maps the GPIO registers if needed and configures channels as outputs
// at the safe level.
func (d *RPIODriver) Setup(_ context.Context, channels []int) error {
	for _, ch := range channels {
		if err := validChannel(ch); err != nil {
			return err
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.open {
		if err := d.bank.Open(); err != nil {
			return fmt.Errorf("gpio: opening GPIO memory: %w", err)
		}
		d.open = true
	}

	safe := d.polarity.SafeHigh()
	for _, ch := range channels {
		// Latch the safe level before enabling the output driver.
		d.bank.Write(ch, safe)
		d.bank.Output(ch)
		d.output[ch] = true
	}
	return nil
}

// Set drives channel to the electrical level for level.
func (d *RPIODriver) Set(_ context.Context, channel int, level relay.Level) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.open {
		return ErrNotOpen
	}
	if !d.output[channel] {
		if err := validChannel(channel); err != nil {
			return err
		}
		d.bank.Output(channel)
		d.output[channel] = true
	}

	d.bank.Write(channel, d.polarity.High(level))
	return nil
}

// Cleanup drives every channel to the safe level and, when configured,
// releases it to input mode.
func (d *RPIODriver) Cleanup(_ context.Context, channels []int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.open {
		return ErrNotOpen
	}

	var errs []error
	safe := d.polarity.SafeHigh()
	for _, ch := range channels {
		if err := validChannel(ch); err != nil {
			errs = append(errs, err)
			continue
		}
		d.bank.Write(ch, safe)
		if d.releaseOnCleanup {
			d.bank.Input(ch)
			delete(d.output, ch)
		}
	}
	return errors.Join(errs...)
}

// Close unmaps the GPIO registers. Pin levels are left as they are.
func (d *RPIODriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.open {
		return nil
	}
	d.open = false
	clear(d.output)

	if err := d.bank.Close(); err != nil {
		return fmt.Errorf("gpio: closing GPIO memory: %w", err)
	}
	return nil
}
