package main

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analogkb-go/platform/sim"
	"analogkb-go/services/configurator"
	"analogkb-go/services/keyboard"
	"analogkb-go/services/store"
	"analogkb-go/types"
)

// hostRW adapts the simulator's loopback link into the io.ReadWriter
// the client expects, with the device engine processing synchronously.
type hostRW struct {
	link    *sim.Serial
	pending []byte
}

func (h *hostRW) Write(p []byte) (int, error) {
	h.link.HostWrite(p)
	return len(p), nil
}

func (h *hostRW) Read(p []byte) (int, error) {
	if len(h.pending) == 0 {
		h.pending = h.link.HostRead()
	}
	if len(h.pending) == 0 {
		return 0, io.EOF
	}
	n := copy(p, h.pending)
	h.pending = h.pending[n:]
	return n, nil
}

type deviceRig struct {
	cfg   types.Config
	flash *sim.Flash
	kb    *keyboard.Keyboard
}

// newDeviceClient stands up a real device engine behind a Client.
func newDeviceClient(t *testing.T) (*Client, *deviceRig) {
	t.Helper()
	rig := &deviceRig{cfg: store.DefaultConfig(), flash: sim.NewFlash()}
	rig.kb = keyboard.New(&rig.cfg, &sim.HID{}, &sim.MIDI{})

	link := &sim.Serial{}
	svc := configurator.New(link, &rig.cfg, rig.kb, store.New(rig.flash), &sim.Control{}, nil)
	link.OnRx(svc.Poll)

	return NewClient(&hostRW{link: link}), rig
}

func TestClientModeRoundTrip(t *testing.T) {
	c, _ := newDeviceClient(t)

	m, err := c.Mode()
	require.NoError(t, err)
	assert.Equal(t, types.ModeKeyboard, m)

	require.NoError(t, c.SetMode(types.ModeMIDI))
	m, err = c.Mode()
	require.NoError(t, err)
	assert.Equal(t, types.ModeMIDI, m)
}

func TestClientKeyConfigRoundTrip(t *testing.T) {
	c, rig := newDeviceClient(t)

	want := types.KeySwitchConfig{
		KeyCode:              types.KeyB,
		KeyType:              types.KeyRapidTrigger,
		ActuationPoint:       14,
		RapidUpSensitivity:   3,
		RapidDownSensitivity: 5,
	}
	require.NoError(t, c.SetKeyConfig(9, want))
	assert.Equal(t, want, rig.cfg.KeySwitchConfigs[9])

	got, err := c.KeyConfig(9)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestClientCalibrationAndNotes(t *testing.T) {
	c, _ := newDeviceClient(t)

	want := types.KeySwitchCalibrationData{MinValue: 612, MaxValue: 3801}
	require.NoError(t, c.SetCalibration(4, want))
	got, err := c.Calibration(4)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, c.SetNote(4, 72))
	n, err := c.Note(4)
	require.NoError(t, err)
	assert.Equal(t, uint8(72), n)
}

func TestClientPositions(t *testing.T) {
	c, rig := newDeviceClient(t)
	rig.kb.Update()               // reconcile variants
	rig.kb.SetADCValue(3, 1, 500) // key 0 fully pressed

	pos, err := c.Positions()
	require.NoError(t, err)
	assert.Equal(t, uint8(40), pos[0])
	assert.Equal(t, uint8(0), pos[1])
}

func TestClientSaveAndFactoryReset(t *testing.T) {
	c, rig := newDeviceClient(t)

	require.NoError(t, c.Save())
	assert.NotEqual(t, byte(0xFF), rig.flash.Mem[0], "flash still erased after save")

	require.NoError(t, c.FactoryReset())
	m, err := c.Mode()
	require.NoError(t, err)
	assert.Equal(t, types.ModeDisabled, m)
}

func TestClientErrorSurfacesAddress(t *testing.T) {
	c, _ := newDeviceClient(t)
	_, err := c.Read(0xFFFF, 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0xFFFF")
}

func TestProfileRoundTrip(t *testing.T) {
	c, rig := newDeviceClient(t)

	require.NoError(t, c.SetKeyConfig(2, types.KeySwitchConfig{
		KeyCode:              types.KeyZ,
		KeyType:              types.KeyRapidTrigger,
		ActuationPoint:       12,
		RapidUpSensitivity:   4,
		RapidDownSensitivity: 4,
	}))
	require.NoError(t, c.SetNote(2, 99))

	p, err := fetchProfile(c)
	require.NoError(t, err)
	require.Len(t, p.Keys, types.NumKeys)
	assert.Equal(t, "rapid_trigger", p.Keys[2].Type)
	assert.Equal(t, uint8(99), p.Keys[2].Note)

	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, saveProfile(path, p))

	// Wipe the device, then restore from the file.
	require.NoError(t, c.FactoryReset())
	assert.Equal(t, types.KeyThreshold, rig.cfg.KeySwitchConfigs[2].KeyType)

	loaded, err := loadProfile(path)
	require.NoError(t, err)
	require.NoError(t, applyProfile(c, loaded))
	assert.Equal(t, types.KeyRapidTrigger, rig.cfg.KeySwitchConfigs[2].KeyType)
	assert.Equal(t, uint8(99), rig.cfg.MIDIConfigs[2].NoteNumber)
}
