package keyboard

// Back-end contracts the sense-to-event pipeline consumes. Concrete
// implementations live under platform/ (host simulator, MCU backends).

// Mux switches the 8:1 analog multiplexer feeding the ADC inputs.
type Mux interface {
	Select(ch uint8)
	Channel() uint8
}

// ADCGroups starts DMA conversions for the two parallel ADC pairs.
// Group 0 covers ADC channels 0 and 1, group 1 covers channels 2 and 3.
// Completion is announced by calling the handler passed to OnComplete;
// on hardware that is the DMA-complete interrupt.
type ADCGroups interface {
	StartGroup(group int, buf []uint16)
	OnComplete(fn func(group int))
}

// HIDWriter emits one boot-keyboard report.
type HIDWriter interface {
	KeyboardReport(modifier uint8, keys [6]uint8) error
}

// MIDIWriter emits one 4-byte USB MIDI event packet.
type MIDIWriter interface {
	WritePacket(p [4]byte) error
}
