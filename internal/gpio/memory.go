package gpio

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/valvectl/internal/relay"
)

// Write is one recorded MemoryDriver level change.
type Write struct {
	Channel int
	Level   relay.Level
	High    bool
	At      time.Time
}

// MemoryDriver keeps channel levels in memory. It backs --dry-run and tests.
//
// Thread Safety: all methods are safe for concurrent use.
type MemoryDriver struct {
	polarity Polarity

	mu       sync.Mutex
	levels   map[int]relay.Level
	writes   []Write
	failures map[int]error
	setups   int
	cleanups int
	closed   bool
}

// NewMemoryDriver creates an in-memory driver.
func NewMemoryDriver(polarity Polarity) *MemoryDriver {
	return &MemoryDriver{
		polarity: polarity,
		levels:   make(map[int]relay.Level),
		failures: make(map[int]error),
	}
}

// Setup records every channel at the safe level.
func (d *MemoryDriver) Setup(_ context.Context, channels []int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, ch := range channels {
		if err := validChannel(ch); err != nil {
			return err
		}
		d.levels[ch] = relay.LevelInactive
	}
	d.setups++
	d.closed = false
	return nil
}

// Set records level for channel, or returns the injected failure.
func (d *MemoryDriver) Set(_ context.Context, channel int, level relay.Level) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrNotOpen
	}
	if err := validChannel(channel); err != nil {
		return err
	}
	if err, ok := d.failures[channel]; ok && level == relay.LevelActive {
		return err
	}

	d.levels[channel] = level
	d.writes = append(d.writes, Write{
		Channel: channel,
		Level:   level,
		High:    d.polarity.High(level),
		At:      time.Now(),
	})
	return nil
}

// Cleanup drives every channel to the safe level.
func (d *MemoryDriver) Cleanup(_ context.Context, channels []int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrNotOpen
	}

	var errs []error
	for _, ch := range channels {
		if err := validChannel(ch); err != nil {
			errs = append(errs, err)
			continue
		}
		d.levels[ch] = relay.LevelInactive
	}
	d.cleanups++
	return errors.Join(errs...)
}

// Close marks the driver closed.
func (d *MemoryDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// FailActivation makes every activation of channel return err.
// A nil err uses ErrInjected. Reverts still succeed.
func (d *MemoryDriver) FailActivation(channel int, err error) {
	if err == nil {
		err = ErrInjected
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[channel] = err
}

// Level returns the current logical level of channel.
func (d *MemoryDriver) Level(channel int) relay.Level {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.levels[channel]
}

// Writes returns a copy of every recorded Set, oldest first.
func (d *MemoryDriver) Writes() []Write {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.writes)
}

// Cleanups returns how many times Cleanup ran.
func (d *MemoryDriver) Cleanups() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cleanups
}
