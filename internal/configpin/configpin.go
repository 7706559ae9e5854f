// Package configpin watches the configuration-entry pin: while it is
// asserted, the next poll suspends normal multiplexing and hands
// control to the configuration dialogue. This build polls the pin
// over a Linux GPIO character device via
// github.com/warthog618/go-gpiocdev.
package configpin

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// Watcher reports whether the configuration pin is currently
// asserted. cmd/nmuxd installs Asserted as the core Scheduler's
// ConfigPinAsserted hook, which Scheduler.RunRound calls once per
// outer cycle.
type Watcher interface {
	Asserted() bool
	Close() error
}

// GPIOWatcher reads one active-low input line on a GPIO character
// device chip.
type GPIOWatcher struct {
	line *gpiocdev.Line
}

// NewGPIOWatcher requests offset on chip as an active-low input with
// an internal pull-up, so an unconnected pin reads deasserted.
func NewGPIOWatcher(chip string, offset int) (*GPIOWatcher, error) {
	line, err := gpiocdev.RequestLine(chip, offset,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.AsActiveLow,
	)
	if err != nil {
		return nil, fmt.Errorf("configpin: request line %s:%d: %w", chip, offset, err)
	}
	return &GPIOWatcher{line: line}, nil
}

// Asserted reports the current logic level, true meaning the
// configuration pin is pulled low (active, due to AsActiveLow).
func (w *GPIOWatcher) Asserted() bool {
	v, err := w.line.Value()
	if err != nil {
		return false
	}
	return v != 0
}

// Close releases the GPIO line request.
func (w *GPIOWatcher) Close() error {
	return w.line.Close()
}

// FixedWatcher is a software stand-in for hosted/simulated builds and
// tests with no real GPIO chip: a plain settable flag satisfying
// Watcher.
type FixedWatcher struct {
	asserted bool
}

// NewFixedWatcher returns a FixedWatcher initially deasserted.
func NewFixedWatcher() *FixedWatcher {
	return &FixedWatcher{}
}

// Set changes the reported state.
func (w *FixedWatcher) Set(asserted bool) {
	w.asserted = asserted
}

// Asserted implements Watcher.
func (w *FixedWatcher) Asserted() bool {
	return w.asserted
}

// Close implements Watcher; it is a no-op for FixedWatcher.
func (w *FixedWatcher) Close() error {
	return nil
}
