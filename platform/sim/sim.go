// Package sim is the host-side board: scripted ADC sources, synchronous
// DMA completion, recording USB sinks, RAM-backed flash. It drives the
// integration tests and the simwalk demo.
package sim

import (
	"errors"
	"sync"

	"analogkb-go/drivers/cd4051b"
	"analogkb-go/platform"
)

// Pin is a recorded GPIO output line.
type Pin struct {
	High bool
}

func (p *Pin) Set(high bool) { p.High = high }

// ADC completes conversions synchronously unless Async is set, in which
// case the test fires Complete itself. Source is keyed by
// (adc channel, mux channel); nil reads as mid-scale.
type ADC struct {
	Mux    *cd4051b.Device
	Source func(adcCh, muxCh uint8) uint16
	Async  bool

	complete func(group int)
	Starts   int
}

func (a *ADC) OnComplete(fn func(group int)) { a.complete = fn }

func (a *ADC) StartGroup(group int, buf []uint16) {
	a.Starts++
	base := uint8(group * 2)
	buf[0] = a.sample(base, a.Mux.Channel())
	buf[1] = a.sample(base+1, a.Mux.Channel())
	if !a.Async && a.complete != nil {
		a.complete(group)
	}
}

// Complete fires the completion callback, as the DMA ISR would.
func (a *ADC) Complete(group int) { a.complete(group) }

func (a *ADC) sample(adcCh, muxCh uint8) uint16 {
	if a.Source == nil {
		return 2048
	}
	return a.Source(adcCh, muxCh)
}

// HIDReport is one captured boot report.
type HIDReport struct {
	Modifier uint8
	Keys     [6]uint8
}

// HID records every report the dispatcher emits.
type HID struct {
	mu      sync.Mutex
	Reports []HIDReport
}

func (h *HID) KeyboardReport(modifier uint8, keys [6]uint8) error {
	h.mu.Lock()
	h.Reports = append(h.Reports, HIDReport{Modifier: modifier, Keys: keys})
	h.mu.Unlock()
	return nil
}

// Last returns the most recent report, if any.
func (h *HID) Last() (HIDReport, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.Reports) == 0 {
		return HIDReport{}, false
	}
	return h.Reports[len(h.Reports)-1], true
}

// MIDI records every 4-byte event packet.
type MIDI struct {
	mu      sync.Mutex
	Packets [][4]byte
}

func (m *MIDI) WritePacket(p [4]byte) error {
	m.mu.Lock()
	m.Packets = append(m.Packets, p)
	m.mu.Unlock()
	return nil
}

// Serial is a loopback CDC link. The device side implements the
// configurator's SerialLink; the test plays host with HostWrite/HostRead.
type Serial struct {
	mu      sync.Mutex
	toDev   []byte
	fromDev []byte
	onRx    func()
}

func (s *Serial) ReadByte() (byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.toDev) == 0 {
		return 0, false
	}
	b := s.toDev[0]
	s.toDev = s.toDev[1:]
	return b, true
}

func (s *Serial) Write(p []byte) (int, error) {
	s.mu.Lock()
	s.fromDev = append(s.fromDev, p...)
	s.mu.Unlock()
	return len(p), nil
}

func (s *Serial) Flush() error { return nil }

func (s *Serial) OnRx(fn func()) { s.onRx = fn }

// HostWrite queues bytes for the device and fires the RX callback.
func (s *Serial) HostWrite(p []byte) {
	s.mu.Lock()
	s.toDev = append(s.toDev, p...)
	cb := s.onRx
	s.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// HostRead drains everything the device has written.
func (s *Serial) HostRead() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.fromDev
	s.fromDev = nil
	return out
}

// Flash is a RAM-backed config region: erased bytes read 0xFF, program
// granularity is half-words, faults are injectable.
type Flash struct {
	Mem         [4096]byte
	Locked      bool
	FailErase   bool
	FailProgram bool
}

func NewFlash() *Flash {
	f := &Flash{Locked: true}
	for i := range f.Mem {
		f.Mem[i] = 0xFF
	}
	return f
}

func (f *Flash) Unlock() { f.Locked = false }
func (f *Flash) Lock()   { f.Locked = true }

func (f *Flash) ErasePages(n int) error {
	if f.Locked {
		return errors.New("sim flash: locked")
	}
	if f.FailErase {
		return errors.New("sim flash: erase fault")
	}
	for i := range f.Mem {
		f.Mem[i] = 0xFF
	}
	return nil
}

func (f *Flash) ProgramHalfword(off int, v uint16) error {
	if f.Locked {
		return errors.New("sim flash: locked")
	}
	if f.FailProgram {
		return errors.New("sim flash: program fault")
	}
	f.Mem[off] = uint8(v)
	f.Mem[off+1] = uint8(v >> 8)
	return nil
}

func (f *Flash) ReadAt(off int, p []byte) {
	copy(p, f.Mem[off:])
}

// Ticker is manually stepped; hz is recorded for inspection.
type Ticker struct {
	Hz uint32
	fn func()
}

func (t *Ticker) OnTick(hz uint32, fn func()) {
	t.Hz = hz
	t.fn = fn
}

// Step fires n scan ticks.
func (t *Ticker) Step(n int) {
	for i := 0; i < n; i++ {
		t.fn()
	}
}

// Control records chip-level actions.
type Control struct {
	Resets      int
	Bootloaders int
	BootFlag    bool
}

func (c *Control) SystemReset()              { c.Resets++ }
func (c *Control) EnterBootloader()          { c.Bootloaders++ }
func (c *Control) BootloaderRequested() bool { return c.BootFlag }

// Board bundles the simulator parts with the assembled platform.Board.
type Board struct {
	platform.Board

	Pins    [3]*Pin
	MuxDev  *cd4051b.Device
	ADCDev  *ADC
	HIDDev  *HID
	MIDIDev *MIDI
	Link    *Serial
	Store   *Flash
	Clock   *Ticker
	Ctl     *Control
}

// NewBoard assembles a full simulator board. The ADC idles at mid-scale
// until a Source is installed.
func NewBoard() *Board {
	a, bpin, c := &Pin{}, &Pin{}, &Pin{}
	mux := cd4051b.New(a, bpin, c)
	adc := &ADC{Mux: mux}
	hid := &HID{}
	midi := &MIDI{}
	link := &Serial{}
	flash := NewFlash()
	clock := &Ticker{}
	ctl := &Control{}

	b := &Board{
		Pins:    [3]*Pin{a, bpin, c},
		MuxDev:  mux,
		ADCDev:  adc,
		HIDDev:  hid,
		MIDIDev: midi,
		Link:    link,
		Store:   flash,
		Clock:   clock,
		Ctl:     ctl,
	}
	b.Board = platform.Board{
		ID:     "sim",
		Mux:    mux,
		ADC:    adc,
		HID:    hid,
		MIDI:   midi,
		Serial: link,
		Flash:  flash,
		Ticker: clock,
		Device: ctl,
	}
	return b
}
