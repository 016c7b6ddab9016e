package keyboard

import (
	"github.com/chewxy/math32"

	"analogkb-go/types"
	"analogkb-go/x/mathx"
)

// Keyboard owns the 32 key runtimes and turns their pressed states into
// USB traffic once per scan round.
type Keyboard struct {
	cfg  *types.Config
	keys [types.NumKeys]KeySwitch

	wasPressed [types.NumKeys]bool

	hid  HIDWriter
	midi MIDIWriter
}

// New binds the runtime to a live Config. The Config is borrowed, not
// copied: calibration writes through so persistence captures it, and
// configurator writes become visible on the next reconciliation.
func New(cfg *types.Config, hid HIDWriter, midi MIDIWriter) *Keyboard {
	kb := &Keyboard{cfg: cfg, hid: hid, midi: midi}
	for i := range kb.keys {
		kb.keys[i].bind(&cfg.KeySwitchConfigs[i], &cfg.KeySwitchCalibrationData[i])
	}
	return kb
}

// StartCalibrate switches the whole device into calibration; each key's
// envelope resets when its variant is reconciled.
func (kb *Keyboard) StartCalibrate() { kb.cfg.Mode = types.ModeCalibrate }

// StopCalibrate freezes the envelopes and returns to keyboard output.
func (kb *Keyboard) StopCalibrate() { kb.cfg.Mode = types.ModeKeyboard }

// Position returns a key's travel truncated to whole 0.1 mm, as exposed
// through the live-position region.
func (kb *Keyboard) Position(i int) uint8 {
	if i < 0 || i >= types.NumKeys {
		return 0
	}
	return uint8(kb.keys[i].Position())
}

// SetADCValue routes one fresh sample to the key wired at
// (adc channel, mux channel). Out-of-range coordinates are ignored.
func (kb *Keyboard) SetADCValue(adcCh, muxCh uint8, v uint16) {
	idx := chToIndex(adcCh, muxCh)
	if idx < 0 {
		return
	}
	kb.keys[idx].Update(v)
}

// Update runs once per completed scan round: reconcile each key's
// variant against (mode, key type), then emit for the active mode.
func (kb *Keyboard) Update() {
	for i := range kb.keys {
		kb.keys[i].setVariant(effectiveKind(kb.cfg.Mode, kb.cfg.KeySwitchConfigs[i].KeyType))
	}

	switch kb.cfg.Mode {
	case types.ModeKeyboard:
		kb.updateKeyboard()
	case types.ModeMIDI:
		kb.updateMIDI()
	}
}

// effectiveKind is the (mode, key_type) -> variant table.
func effectiveKind(mode types.Mode, kt types.KeyType) types.KeyType {
	switch mode {
	case types.ModeDisabled:
		return types.KeyDisabled
	case types.ModeCalibrate:
		return types.KeyCalibrate
	case types.ModeKeyboard:
		if kt.Valid() {
			return kt
		}
		return types.KeyDisabled
	case types.ModeMIDI:
		if kt == types.KeyDisabled {
			return types.KeyDisabled
		}
		return types.KeyThreshold
	}
	return types.KeyDisabled
}

// updateKeyboard emits exactly one boot report per round, even when
// empty. The first six non-modifier usages win a slot; modifiers always
// land in the modifier byte.
func (kb *Keyboard) updateKeyboard() {
	var keys [6]uint8
	var modifier uint8
	n := 0

	for i := range kb.keys {
		if !kb.keys[i].IsPressed() {
			continue
		}
		code := kb.keys[i].KeyCode()
		if types.IsModifier(code) {
			modifier |= 1 << (code - types.ModifierBase)
			continue
		}
		if n < 6 {
			keys[n] = code
			n++
		}
	}
	_ = kb.hid.KeyboardReport(modifier, keys)
}

// USB MIDI code index numbers / status bytes, cable 0, channel 0.
const (
	midiCINNoteOn  = 0x09
	midiCINNoteOff = 0x08
	midiNoteOn     = 0x90
	midiNoteOff    = 0x80
)

// updateMIDI emits note events on press/release edges only. Strike
// velocity is the magnitude of the filtered key velocity in mm/s.
func (kb *Keyboard) updateMIDI() {
	for i := range kb.keys {
		pressed := kb.keys[i].IsPressed()
		note := kb.cfg.MIDIConfigs[i].NoteNumber

		if pressed && !kb.wasPressed[i] {
			vel := mathx.Clamp(math32.Round(math32.Abs(kb.keys[i].Velocity())), 0, 127)
			_ = kb.midi.WritePacket([4]byte{midiCINNoteOn, midiNoteOn, note, uint8(vel)})
		} else if !pressed && kb.wasPressed[i] {
			_ = kb.midi.WritePacket([4]byte{midiCINNoteOff, midiNoteOff, note, 0})
		}
		kb.wasPressed[i] = pressed
	}
}

// keyIndex is the fixed (adc channel, mux channel) -> key permutation of
// the sense PCB.
var keyIndex = [4][8]int8{
	{31, 30, 29, 28, 26, 25, 24, 27},
	{23, 22, 21, 16, 19, 18, 20, 17},
	{15, 14, 8, 9, 11, 12, 13, 10},
	{7, 0, 1, 2, 6, 5, 4, 3},
}

func chToIndex(adcCh, muxCh uint8) int8 {
	if adcCh > 3 || muxCh > 7 {
		return -1
	}
	return keyIndex[adcCh][muxCh]
}
