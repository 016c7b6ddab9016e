// Package platform assembles the hardware back-ends the firmware core
// consumes. Concrete boards live in build-tagged files and in the sim
// subpackage; the core never imports machine-specific code directly.
package platform

import (
	"time"

	"analogkb-go/services/configurator"
	"analogkb-go/services/keyboard"
	"analogkb-go/services/store"
	"analogkb-go/x/timex"
)

// SerialPort is the configurator's byte stream plus the receive notify
// hook (the USB CDC RX callback on hardware).
type SerialPort interface {
	configurator.SerialLink
	OnRx(fn func())
}

// Ticker installs the periodic scan callback at the requested rate.
type Ticker interface {
	OnTick(hz uint32, fn func())
}

// Device covers chip-level actions and the retained bootloader flag.
type Device interface {
	SystemReset()
	EnterBootloader()
	// BootloaderRequested reports whether the retained flag was set
	// before this boot; the app jumps before any other setup runs.
	BootloaderRequested() bool
}

// Board is one assembled set of back-ends.
type Board struct {
	ID string // selects the embedded board profile

	Mux    keyboard.Mux
	ADC    keyboard.ADCGroups
	HID    keyboard.HIDWriter
	MIDI   keyboard.MIDIWriter
	Serial SerialPort
	Flash  store.Flash
	Ticker Ticker
	Device Device

	// USBPoll runs the device-stack task from the main loop; nil on
	// boards without a polled USB stack.
	USBPoll func()
}

// TimeTicker drives the scan callback from a time.Ticker goroutine.
// Good enough on hosts and on MCUs with a working time base; boards
// with a hardware timer provide their own Ticker.
type TimeTicker struct {
	stop chan struct{}
}

func NewTimeTicker() *TimeTicker { return &TimeTicker{stop: make(chan struct{})} }

func (t *TimeTicker) OnTick(hz uint32, fn func()) {
	period := time.Duration(timex.PeriodFromHz(hz))
	go func() {
		tick := time.NewTicker(period)
		defer tick.Stop()
		for {
			select {
			case <-t.stop:
				return
			case <-tick.C:
				fn()
			}
		}
	}()
}

// Stop ends the tick goroutine.
func (t *TimeTicker) Stop() {
	close(t.stop)
}
