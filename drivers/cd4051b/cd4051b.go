// Package cd4051b drives an 8:1 analog multiplexer (CD4051B family)
// through its three binary select lines.
//
// The driver only owns the select lines; the common analog pin is wired
// to an ADC input elsewhere. Channel switching is glitch-free enough for
// this application that no settle delay is imposed here; callers that
// need one schedule it themselves.
package cd4051b

// Pin is the single output line contract the driver needs.
type Pin interface {
	Set(high bool)
}

// Device is one multiplexer instance.
type Device struct {
	a, b, c Pin // select lines: LSB, MID, MSB
	ch      uint8
}

// New creates a driver over the three select lines and parks it on
// channel 0.
func New(a, b, c Pin) *Device {
	d := &Device{a: a, b: b, c: c}
	d.Select(0)
	return d
}

// Select routes the given channel (0..7) to the common pin.
// Out-of-range channels are ignored.
func (d *Device) Select(ch uint8) {
	if ch > 7 {
		return
	}
	d.ch = ch
	d.a.Set(ch&0b001 != 0)
	d.b.Set(ch&0b010 != 0)
	d.c.Set(ch&0b100 != 0)
}

// Channel returns the currently selected channel.
func (d *Device) Channel() uint8 { return d.ch }

// Next advances to the following channel, wrapping 7 -> 0.
func (d *Device) Next() { d.Select((d.ch + 1) & 7) }
