package types

import "errors"

// Device configuration model. The packed layout is an external contract:
// the configurator exposes it as a flat address space and the flash
// store persists it verbatim.

// NumKeys is fixed by the hardware: a 4x8 ADC/mux matrix.
const NumKeys = 32

// KeyType selects the per-key state machine.
type KeyType uint8

const (
	KeyDisabled KeyType = iota
	KeyCalibrate
	KeyThreshold
	KeyRapidTrigger
)

func (t KeyType) Valid() bool { return t <= KeyRapidTrigger }

// Mode is the global output mode.
type Mode uint8

const (
	ModeDisabled Mode = iota
	ModeCalibrate
	ModeKeyboard
	ModeMIDI
)

func (m Mode) Valid() bool { return m <= ModeMIDI }

// KeySwitchConfig is the per-key configuration (5 packed bytes).
// Depths and sensitivities are in 0.1 mm units.
type KeySwitchConfig struct {
	KeyCode              uint8 // HID usage
	KeyType              KeyType
	ActuationPoint       uint8
	RapidUpSensitivity   uint8 // release when this far above the deepest point
	RapidDownSensitivity uint8 // re-press when this far below the shallowest point
}

// KeySwitchCalibrationData is the raw-ADC envelope for one key
// (4 packed bytes: min then max, little-endian u16 each).
// Invariant after a calibration pass: MinValue <= MaxValue <= 4095.
type KeySwitchCalibrationData struct {
	MinValue uint16
	MaxValue uint16
}

// MIDIConfig is the per-key MIDI assignment (1 packed byte).
type MIDIConfig struct {
	NoteNumber uint8 // 0..127
}

// Config is the whole device configuration.
type Config struct {
	KeySwitchConfigs         [NumKeys]KeySwitchConfig
	KeySwitchCalibrationData [NumKeys]KeySwitchCalibrationData
	MIDIConfigs              [NumKeys]MIDIConfig
	Mode                     Mode
}

// Packed layout offsets and sizes.
const (
	KeySwitchConfigSize = 5
	CalibrationSize     = 4
	MIDIConfigSize      = 1

	PackedKeyConfigsOff   = 0
	PackedKeyConfigsSize  = NumKeys * KeySwitchConfigSize // 160
	PackedCalibrationOff  = PackedKeyConfigsOff + PackedKeyConfigsSize
	PackedCalibrationSize = NumKeys * CalibrationSize // 128
	PackedMIDIOff         = PackedCalibrationOff + PackedCalibrationSize
	PackedMIDISize        = NumKeys * MIDIConfigSize // 32
	PackedModeOff         = PackedMIDIOff + PackedMIDISize
	PackedReservedSize    = 3

	ConfigPackedSize = PackedModeOff + 1 + PackedReservedSize // 324
)

var ErrBadPackedSize = errors.New("config: bad packed size")

// Pack writes the 324-byte wire/flash representation into buf.
func (c *Config) Pack(buf []byte) error {
	if len(buf) < ConfigPackedSize {
		return ErrBadPackedSize
	}
	p := buf[PackedKeyConfigsOff:]
	for i := range c.KeySwitchConfigs {
		k := &c.KeySwitchConfigs[i]
		o := i * KeySwitchConfigSize
		p[o+0] = k.KeyCode
		p[o+1] = uint8(k.KeyType)
		p[o+2] = k.ActuationPoint
		p[o+3] = k.RapidUpSensitivity
		p[o+4] = k.RapidDownSensitivity
	}
	p = buf[PackedCalibrationOff:]
	for i := range c.KeySwitchCalibrationData {
		d := &c.KeySwitchCalibrationData[i]
		o := i * CalibrationSize
		p[o+0] = uint8(d.MinValue)
		p[o+1] = uint8(d.MinValue >> 8)
		p[o+2] = uint8(d.MaxValue)
		p[o+3] = uint8(d.MaxValue >> 8)
	}
	p = buf[PackedMIDIOff:]
	for i := range c.MIDIConfigs {
		p[i] = c.MIDIConfigs[i].NoteNumber
	}
	buf[PackedModeOff] = uint8(c.Mode)
	buf[PackedModeOff+1] = 0
	buf[PackedModeOff+2] = 0
	buf[PackedModeOff+3] = 0
	return nil
}

// Unpack replaces c with the configuration encoded in buf.
func (c *Config) Unpack(buf []byte) error {
	if len(buf) < ConfigPackedSize {
		return ErrBadPackedSize
	}
	p := buf[PackedKeyConfigsOff:]
	for i := range c.KeySwitchConfigs {
		k := &c.KeySwitchConfigs[i]
		o := i * KeySwitchConfigSize
		k.KeyCode = p[o+0]
		k.KeyType = KeyType(p[o+1])
		k.ActuationPoint = p[o+2]
		k.RapidUpSensitivity = p[o+3]
		k.RapidDownSensitivity = p[o+4]
	}
	p = buf[PackedCalibrationOff:]
	for i := range c.KeySwitchCalibrationData {
		d := &c.KeySwitchCalibrationData[i]
		o := i * CalibrationSize
		d.MinValue = uint16(p[o+0]) | uint16(p[o+1])<<8
		d.MaxValue = uint16(p[o+2]) | uint16(p[o+3])<<8
	}
	p = buf[PackedMIDIOff:]
	for i := range c.MIDIConfigs {
		c.MIDIConfigs[i].NoteNumber = p[i]
	}
	c.Mode = Mode(buf[PackedModeOff])
	return nil
}
