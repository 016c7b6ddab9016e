//go:build rp2040 || rp2350

package main

import (
	"context"
	"machine"
	"sync"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"analogkb-go/drivers/cd4051b"
	"analogkb-go/platform"
	"analogkb-go/types"
)

// board on the RP2 bring-up PCB: mux select on GP2..GP4, the four sense
// lines on ADC0..ADC3, configurator on UART0. HID/MIDI go to the debug
// console until the USB descriptor work lands on this target.
func board() *platform.Board {
	a := outPin(machine.GPIO2)
	b := outPin(machine.GPIO3)
	c := outPin(machine.GPIO4)

	machine.InitADC()
	adc := &rp2ADC{}
	for i, pin := range []machine.Pin{machine.ADC0, machine.ADC1, machine.ADC2, machine.ADC3} {
		adc.ch[i] = machine.ADC{Pin: pin}
		adc.ch[i].Configure(machine.ADCConfig{})
	}

	serial := newUARTLink(uartx.UART0, 115200)

	return &platform.Board{
		ID:     "rev1",
		Mux:    cd4051b.New(a, b, c),
		ADC:    adc,
		HID:    consoleHID{},
		MIDI:   consoleMIDI{},
		Serial: serial,
		Flash:  newRP2Flash(),
		Ticker: platform.NewTimeTicker(),
		Device: rp2Device{},
	}
}

// ---- GPIO ----

type rp2Pin struct{ p machine.Pin }

func outPin(p machine.Pin) rp2Pin {
	p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	return rp2Pin{p: p}
}

func (p rp2Pin) Set(high bool) { p.p.Set(high) }

// ---- ADC ----

// rp2ADC reads the four sense lines synchronously; completion fires
// inline, which satisfies the scanner's ordering the same way DMA
// interrupts do.
type rp2ADC struct {
	ch       [4]machine.ADC
	complete func(group int)
}

func (a *rp2ADC) OnComplete(fn func(group int)) { a.complete = fn }

func (a *rp2ADC) StartGroup(group int, buf []uint16) {
	base := group * 2
	// machine.ADC returns 16-bit left-aligned samples; the pipeline
	// works in native 12-bit counts.
	buf[0] = a.ch[base].Get() >> 4
	buf[1] = a.ch[base+1].Get() >> 4
	if a.complete != nil {
		a.complete(group)
	}
}

// ---- Configurator link over uartx ----

type uartLink struct {
	u  *uartx.UART
	mu sync.Mutex
	rx []byte
	cb func()
}

func newUARTLink(u *uartx.UART, baud uint32) *uartLink {
	_ = u.Configure(uartx.UARTConfig{BaudRate: baud})
	l := &uartLink{u: u}
	go l.reader()
	return l
}

func (l *uartLink) reader() {
	buf := make([]byte, 64)
	for {
		n, err := l.u.RecvSomeContext(context.Background(), buf)
		if err != nil || n == 0 {
			continue
		}
		l.mu.Lock()
		l.rx = append(l.rx, buf[:n]...)
		cb := l.cb
		l.mu.Unlock()
		if cb != nil {
			cb()
		}
	}
}

func (l *uartLink) ReadByte() (byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.rx) == 0 {
		return 0, false
	}
	b := l.rx[0]
	l.rx = l.rx[1:]
	return b, true
}

func (l *uartLink) Write(p []byte) (int, error) { return l.u.Write(p) }
func (l *uartLink) Flush() error                { return nil }
func (l *uartLink) OnRx(fn func())              { l.cb = fn }

// ---- Flash ----

// rp2Flash adapts the half-word program contract onto the RP2 flash
// block device: programs accumulate in a RAM image and flush on Lock.
type rp2Flash struct {
	img   [types.ConfigPackedSize]byte
	dirty bool
}

func newRP2Flash() *rp2Flash { return &rp2Flash{} }

func (f *rp2Flash) regionStart() int64 {
	return machine.Flash.Size() - int64(machine.Flash.EraseBlockSize())*2
}

func (f *rp2Flash) Unlock() {
	machine.Flash.ReadAt(f.img[:], f.regionStart())
	f.dirty = false
}

func (f *rp2Flash) ErasePages(n int) error {
	start := f.regionStart() / int64(machine.Flash.EraseBlockSize())
	if err := machine.Flash.EraseBlocks(start, int64(n)); err != nil {
		return err
	}
	for i := range f.img {
		f.img[i] = 0xFF
	}
	return nil
}

func (f *rp2Flash) ProgramHalfword(off int, v uint16) error {
	f.img[off] = uint8(v)
	f.img[off+1] = uint8(v >> 8)
	f.dirty = true
	return nil
}

func (f *rp2Flash) Lock() {
	if !f.dirty {
		return
	}
	_, _ = machine.Flash.WriteAt(f.img[:], f.regionStart())
	f.dirty = false
}

func (f *rp2Flash) ReadAt(off int, p []byte) {
	var img [types.ConfigPackedSize]byte
	machine.Flash.ReadAt(img[:], f.regionStart())
	copy(p, img[off:])
}

// ---- Device control ----

type rp2Device struct{}

func (rp2Device) SystemReset()     { machine.CPUReset() }
func (rp2Device) EnterBootloader() { machine.EnterBootloader() }

// The RP2 ROM owns BOOTSEL entry; no retained-flag path on this target.
func (rp2Device) BootloaderRequested() bool { return false }

// ---- Console sinks (bring-up only) ----

type consoleHID struct{}

func (consoleHID) KeyboardReport(modifier uint8, keys [6]uint8) error {
	println("hid:", modifier, keys[0], keys[1], keys[2], keys[3], keys[4], keys[5])
	return nil
}

type consoleMIDI struct{}

func (consoleMIDI) WritePacket(p [4]byte) error {
	println("midi:", p[0], p[1], p[2], p[3])
	return nil
}
