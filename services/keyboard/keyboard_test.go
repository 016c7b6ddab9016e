package keyboard

import (
	"testing"

	"analogkb-go/types"
)

type fakeHID struct {
	reports []struct {
		modifier uint8
		keys     [6]uint8
	}
}

func (h *fakeHID) KeyboardReport(modifier uint8, keys [6]uint8) error {
	h.reports = append(h.reports, struct {
		modifier uint8
		keys     [6]uint8
	}{modifier, keys})
	return nil
}

type fakeMIDI struct {
	packets [][4]byte
}

func (m *fakeMIDI) WritePacket(p [4]byte) error {
	m.packets = append(m.packets, p)
	return nil
}

// muxChanFor returns the (adc, mux) coordinates of a key index.
func muxChanFor(t *testing.T, key int) (uint8, uint8) {
	t.Helper()
	for adc := uint8(0); adc < 4; adc++ {
		for mux := uint8(0); mux < 8; mux++ {
			if chToIndex(adc, mux) == int8(key) {
				return adc, mux
			}
		}
	}
	t.Fatalf("no channel for key %d", key)
	return 0, 0
}

// feedKey feeds a fully-pressed / fully-released sample to one key.
func feedKey(t *testing.T, kb *Keyboard, key int, pressed bool) {
	t.Helper()
	adc, mux := muxChanFor(t, key)
	v := uint16(2048) // released
	if pressed {
		v = 500 // below min: full travel
	}
	kb.SetADCValue(adc, mux, v)
}

func testConfig() *types.Config {
	cfg := &types.Config{Mode: types.ModeKeyboard}
	for i := range cfg.KeySwitchConfigs {
		cfg.KeySwitchConfigs[i] = types.KeySwitchConfig{
			KeyCode:              uint8(4 + i),
			KeyType:              types.KeyThreshold,
			ActuationPoint:       10,
			RapidUpSensitivity:   2,
			RapidDownSensitivity: 2,
		}
		cfg.KeySwitchCalibrationData[i] = types.KeySwitchCalibrationData{MinValue: 1000, MaxValue: 2048}
		cfg.MIDIConfigs[i].NoteNumber = uint8(53 + i)
	}
	return cfg
}

func TestChToIndexIsAPermutation(t *testing.T) {
	seen := map[int8]bool{}
	for adc := uint8(0); adc < 4; adc++ {
		for mux := uint8(0); mux < 8; mux++ {
			idx := chToIndex(adc, mux)
			if idx < 0 || idx >= types.NumKeys {
				t.Fatalf("(%d,%d) -> %d out of range", adc, mux, idx)
			}
			if seen[idx] {
				t.Fatalf("(%d,%d) -> %d already mapped", adc, mux, idx)
			}
			seen[idx] = true
		}
	}
	if chToIndex(0, 0) != 31 || chToIndex(3, 1) != 0 {
		t.Fatal("permutation anchors moved")
	}
	if chToIndex(4, 0) != -1 || chToIndex(0, 8) != -1 {
		t.Fatal("out-of-range channels must map to -1")
	}
}

func TestEffectiveKindTable(t *testing.T) {
	for _, c := range []struct {
		mode types.Mode
		kt   types.KeyType
		want types.KeyType
	}{
		{types.ModeDisabled, types.KeyRapidTrigger, types.KeyDisabled},
		{types.ModeCalibrate, types.KeyDisabled, types.KeyCalibrate},
		{types.ModeKeyboard, types.KeyDisabled, types.KeyDisabled},
		{types.ModeKeyboard, types.KeyCalibrate, types.KeyCalibrate},
		{types.ModeKeyboard, types.KeyThreshold, types.KeyThreshold},
		{types.ModeKeyboard, types.KeyRapidTrigger, types.KeyRapidTrigger},
		{types.ModeMIDI, types.KeyDisabled, types.KeyDisabled},
		{types.ModeMIDI, types.KeyThreshold, types.KeyThreshold},
		{types.ModeMIDI, types.KeyRapidTrigger, types.KeyThreshold},
	} {
		if got := effectiveKind(c.mode, c.kt); got != c.want {
			t.Fatalf("effectiveKind(%d,%d) = %d, want %d", c.mode, c.kt, got, c.want)
		}
	}
}

func TestKeyboardReportPerRound(t *testing.T) {
	cfg := testConfig()
	hid := &fakeHID{}
	kb := New(cfg, hid, &fakeMIDI{})

	kb.Update() // reconcile; emits one empty report
	if len(hid.reports) != 1 {
		t.Fatalf("reports after empty round = %d, want 1", len(hid.reports))
	}
	if hid.reports[0].modifier != 0 || hid.reports[0].keys != [6]uint8{} {
		t.Fatalf("first report not empty: %+v", hid.reports[0])
	}

	feedKey(t, kb, 3, true)
	feedKey(t, kb, 7, true)
	kb.Update()
	if len(hid.reports) != 2 {
		t.Fatalf("reports = %d, want 2 (exactly one per round)", len(hid.reports))
	}
	r := hid.reports[1]
	if r.keys[0] != 4+3 || r.keys[1] != 4+7 || r.keys[2] != 0 {
		t.Fatalf("report keys = %v", r.keys)
	}
}

func TestKeyboardSixKeyOverflowKeepsModifiers(t *testing.T) {
	cfg := testConfig()
	// Key 30 carries a modifier usage; keys 0..7 are ordinary.
	cfg.KeySwitchConfigs[30].KeyCode = types.KeyLeftShift
	hid := &fakeHID{}
	kb := New(cfg, hid, &fakeMIDI{})
	kb.Update()

	for i := 0; i < 8; i++ {
		feedKey(t, kb, i, true)
	}
	feedKey(t, kb, 30, true)
	kb.Update()

	r := hid.reports[len(hid.reports)-1]
	if r.modifier != 1<<(types.KeyLeftShift-types.ModifierBase) {
		t.Fatalf("modifier = %#x, want shift bit", r.modifier)
	}
	for i := 0; i < 6; i++ {
		if r.keys[i] != uint8(4+i) {
			t.Fatalf("slot %d = %#x, want %#x", i, r.keys[i], 4+i)
		}
	}
	// Keys 6 and 7 overflowed and were dropped; the modifier was not.
}

func TestMIDINoteEdges(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = types.ModeMIDI
	midi := &fakeMIDI{}
	kb := New(cfg, &fakeHID{}, midi)

	kb.Update() // reconcile into threshold variants
	feedKey(t, kb, 5, true)
	kb.Update()
	if len(midi.packets) != 1 {
		t.Fatalf("packets after press = %d, want 1", len(midi.packets))
	}
	p := midi.packets[0]
	if p[0] != 0x09 || p[1] != 0x90 || p[2] != 53+5 {
		t.Fatalf("note-on packet = %v", p)
	}
	if p[3] != 127 {
		// A 4 mm stroke in one 4 ms sample saturates the velocity clamp.
		t.Fatalf("strike velocity = %d, want 127", p[3])
	}

	// Held: level, no event.
	feedKey(t, kb, 5, true)
	kb.Update()
	if len(midi.packets) != 1 {
		t.Fatalf("packets while held = %d, want 1", len(midi.packets))
	}

	// Release edge.
	feedKey(t, kb, 5, false)
	kb.Update()
	if len(midi.packets) != 2 {
		t.Fatalf("packets after release = %d, want 2", len(midi.packets))
	}
	p = midi.packets[1]
	if p[0] != 0x08 || p[1] != 0x80 || p[2] != 53+5 || p[3] != 0 {
		t.Fatalf("note-off packet = %v", p)
	}
}

func TestMIDIStrikeVelocityRounding(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = types.ModeMIDI
	midi := &fakeMIDI{}
	kb := New(cfg, &fakeHID{}, midi)
	kb.Update()

	// Force a rising edge with a known steady-state velocity.
	kb.keys[2].pressed = true
	kb.keys[2].velocity = 45.3
	kb.updateMIDI()
	if len(midi.packets) != 1 || midi.packets[0][3] != 45 {
		t.Fatalf("packets = %v, want one note-on with velocity 45", midi.packets)
	}

	// Negative velocity uses its magnitude.
	kb.wasPressed[2] = false
	kb.keys[2].velocity = -45.3
	kb.updateMIDI()
	if midi.packets[len(midi.packets)-1][3] != 45 {
		t.Fatalf("negative velocity packet = %v", midi.packets[len(midi.packets)-1])
	}
}

func TestDisabledModeEmitsNothing(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = types.ModeDisabled
	hid := &fakeHID{}
	midi := &fakeMIDI{}
	kb := New(cfg, hid, midi)

	kb.Update()
	feedKey(t, kb, 0, true)
	kb.Update()
	if len(hid.reports) != 0 || len(midi.packets) != 0 {
		t.Fatalf("disabled mode emitted hid=%d midi=%d", len(hid.reports), len(midi.packets))
	}
}

func TestCalibrateModeSuppressesOutput(t *testing.T) {
	cfg := testConfig()
	hid := &fakeHID{}
	kb := New(cfg, hid, &fakeMIDI{})

	kb.StartCalibrate()
	kb.Update()
	feedKey(t, kb, 0, true)
	kb.Update()
	if len(hid.reports) != 0 {
		t.Fatalf("calibrate mode emitted %d reports", len(hid.reports))
	}
	if cfg.KeySwitchCalibrationData[0].MaxValue != 500 {
		t.Fatalf("calibration envelope not tracking: %+v", cfg.KeySwitchCalibrationData[0])
	}

	kb.StopCalibrate()
	kb.Update()
	if cfg.Mode != types.ModeKeyboard {
		t.Fatalf("mode after StopCalibrate = %d", cfg.Mode)
	}
}

func TestReconciliationPreservesStateWhenUnchanged(t *testing.T) {
	cfg := testConfig()
	cfg.KeySwitchConfigs[0].KeyType = types.KeyRapidTrigger
	kb := New(cfg, &fakeHID{}, &fakeMIDI{})

	kb.Update()
	v0 := kb.keys[0].variant
	kb.Update()
	if kb.keys[0].variant != v0 {
		t.Fatal("unchanged reconciliation replaced the variant")
	}

	// A key-type change swaps the variant and clears pressed.
	feedKey(t, kb, 0, true)
	cfg.KeySwitchConfigs[0].KeyType = types.KeyThreshold
	kb.Update()
	if kb.keys[0].variant == v0 {
		t.Fatal("variant not replaced after key-type change")
	}
}
