// Package store persists the device configuration to on-chip flash and
// supplies the built-in default map.
package store

import (
	"analogkb-go/types"
	"analogkb-go/x/fmtx"
)

// Flash is the back-end contract for the dedicated config region.
// Offsets are relative to the region base; erase granularity is pages,
// program granularity is 16-bit half-words.
type Flash interface {
	Unlock()
	ErasePages(n int) error
	ProgramHalfword(off int, v uint16) error
	Lock()
	ReadAt(off int, p []byte)
}

// erasePages covers the 324-byte config with headroom on 2 KiB pages.
const erasePages = 2

// Store reads and writes one Config image.
type Store struct {
	flash Flash
}

func New(flash Flash) *Store { return &Store{flash: flash} }

// Save writes cfg byte-for-byte to the config region. Returns false on
// any flash fault; the RAM copy stays authoritative either way.
func (s *Store) Save(cfg *types.Config) bool {
	var buf [types.ConfigPackedSize]byte
	if err := cfg.Pack(buf[:]); err != nil {
		return false
	}

	s.flash.Unlock()
	defer s.flash.Lock()

	if err := s.flash.ErasePages(erasePages); err != nil {
		fmtx.Printf("Error: flash erase failed: %s\n", err.Error())
		return false
	}
	for i := 0; i < len(buf); i += 2 {
		hw := uint16(buf[i]) | uint16(buf[i+1])<<8
		if err := s.flash.ProgramHalfword(i, hw); err != nil {
			fmtx.Printf("Error: flash program failed at %d: %s\n", i, err.Error())
			return false
		}
	}
	return true
}

// Load copies the flash image into cfg. An erased sentinel (32 set bits
// at offset 0) means no config was ever saved: cfg gets the defaults and
// Load returns false so the caller can start a calibration pass.
func (s *Store) Load(cfg *types.Config) bool {
	var buf [types.ConfigPackedSize]byte
	s.flash.ReadAt(0, buf[:])
	if buf[0] == 0xFF && buf[1] == 0xFF && buf[2] == 0xFF && buf[3] == 0xFF {
		println("Info: no saved config, using defaults")
		*cfg = DefaultConfig()
		return false
	}
	if err := cfg.Unpack(buf[:]); err != nil {
		*cfg = DefaultConfig()
		return false
	}
	return true
}

// defaultKeyMap is the row-major built-in layout.
var defaultKeyMap = [types.NumKeys]uint8{
	types.KeyEscape, types.Key1, types.Key2, types.Key3, types.Key4, types.Key5, types.Key6,
	types.Key7, types.KeyTab, types.KeyQ, types.KeyW, types.KeyE, types.KeyR, types.KeyT,
	types.Key8, types.KeyLeftShift, types.KeyA, types.KeyS, types.KeyD, types.KeyF, types.KeyG,
	types.KeyM, types.KeyLeftCtrl, types.KeyZ, types.KeyX, types.KeyC, types.KeyV,
	types.KeyH, types.KeyN, types.KeyB, types.KeyLeftAlt, types.KeySpace,
}

// DefaultConfig builds the factory configuration: the built-in key map,
// MIDI notes 53..84, nominal envelopes, keyboard mode.
func DefaultConfig() types.Config {
	var cfg types.Config
	for i := 0; i < types.NumKeys; i++ {
		cfg.KeySwitchConfigs[i] = types.KeySwitchConfig{
			KeyCode:              defaultKeyMap[i],
			KeyType:              types.KeyThreshold,
			ActuationPoint:       10,
			RapidUpSensitivity:   2,
			RapidDownSensitivity: 2,
		}
		cfg.KeySwitchCalibrationData[i] = types.KeySwitchCalibrationData{
			MinValue: 1000,
			MaxValue: 2048,
		}
		cfg.MIDIConfigs[i].NoteNumber = uint8(53 + i)
	}
	cfg.Mode = types.ModeKeyboard
	return cfg
}
