package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"analogkb-go/types"
	"analogkb-go/x/cobs"
)

// Protocol constants mirrored from the device's address map.
const (
	funcRead  = 0x00
	funcWrite = 0x01

	addrKeyConfigs  = 0x0000
	addrMIDI        = 0x0100
	addrCalibration = 0x1000
	addrPositions   = 0x2000
	addrMode        = 0x4000

	ctrlSave         = 0x3000
	ctrlCalibration  = 0x3001
	ctrlFactoryReset = 0x3002
	ctrlSystemReset  = 0x3003
	ctrlBootloader   = 0x3004
)

// Client speaks the COBS-framed read/write protocol over any byte
// stream (a serial port in production, a loopback in tests).
type Client struct {
	w io.Writer
	r *bufio.Reader
}

func NewClient(rw io.ReadWriter) *Client {
	return &Client{w: rw, r: bufio.NewReader(rw)}
}

func (c *Client) roundTrip(payload []byte) ([]byte, error) {
	enc := make([]byte, cobs.MaxEncodedLen(len(payload))+1)
	n := cobs.Encode(enc, payload)
	enc[n] = 0x00
	if _, err := c.w.Write(enc[:n+1]); err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}

	raw, err := c.r.ReadBytes(0x00)
	if err != nil {
		return nil, fmt.Errorf("response: %w", err)
	}
	dec := make([]byte, len(raw))
	m, err := cobs.Decode(dec, raw[:len(raw)-1])
	if err != nil {
		return nil, fmt.Errorf("response frame: %w", err)
	}
	if m < 4 {
		return nil, errors.New("short response")
	}
	if dec[0] != 0x00 {
		addr := uint16(dec[1])<<8 | uint16(dec[2])
		return nil, fmt.Errorf("device reported error at 0x%04X", addr)
	}
	return dec[:m], nil
}

// Read fetches length bytes from the flat address space.
func (c *Client) Read(addr uint16, length int) ([]byte, error) {
	if length < 0 || length > 255 {
		return nil, errors.New("length out of range")
	}
	resp, err := c.roundTrip([]byte{funcRead, byte(addr >> 8), byte(addr), byte(length)})
	if err != nil {
		return nil, err
	}
	got := int(resp[3])
	if len(resp) < 4+got {
		return nil, errors.New("truncated response payload")
	}
	return resp[4 : 4+got], nil
}

// Write stores data at addr.
func (c *Client) Write(addr uint16, data []byte) error {
	if len(data) > 255 {
		return errors.New("write too long")
	}
	p := append([]byte{funcWrite, byte(addr >> 8), byte(addr), byte(len(data))}, data...)
	_, err := c.roundTrip(p)
	return err
}

// Control issues a one-byte control write.
func (c *Client) Control(addr uint16, v byte) error {
	return c.Write(addr, []byte{v})
}

// ---- Typed accessors over the address map ----

func (c *Client) Mode() (types.Mode, error) {
	b, err := c.Read(addrMode, 1)
	if err != nil {
		return 0, err
	}
	return types.Mode(b[0]), nil
}

func (c *Client) SetMode(m types.Mode) error { return c.Control(addrMode, byte(m)) }

func (c *Client) Save() error          { return c.Control(ctrlSave, 0x01) }
func (c *Client) FactoryReset() error  { return c.Control(ctrlFactoryReset, 0x01) }
func (c *Client) SystemReset() error   { return c.Control(ctrlSystemReset, 0x01) }
func (c *Client) EnterDFU() error      { return c.Control(ctrlBootloader, 0x01) }

func (c *Client) Calibrate(on bool) error {
	v := byte(0x00)
	if on {
		v = 0x01
	}
	return c.Control(ctrlCalibration, v)
}

// KeyConfig reads one key's 5-byte configuration record.
func (c *Client) KeyConfig(key int) (types.KeySwitchConfig, error) {
	var k types.KeySwitchConfig
	if key < 0 || key >= types.NumKeys {
		return k, errors.New("key index out of range")
	}
	b, err := c.Read(addrKeyConfigs+uint16(key*types.KeySwitchConfigSize), types.KeySwitchConfigSize)
	if err != nil {
		return k, err
	}
	k.KeyCode = b[0]
	k.KeyType = types.KeyType(b[1])
	k.ActuationPoint = b[2]
	k.RapidUpSensitivity = b[3]
	k.RapidDownSensitivity = b[4]
	return k, nil
}

func (c *Client) SetKeyConfig(key int, k types.KeySwitchConfig) error {
	if key < 0 || key >= types.NumKeys {
		return errors.New("key index out of range")
	}
	return c.Write(addrKeyConfigs+uint16(key*types.KeySwitchConfigSize), []byte{
		k.KeyCode, byte(k.KeyType), k.ActuationPoint,
		k.RapidUpSensitivity, k.RapidDownSensitivity,
	})
}

// Note reads one key's MIDI note assignment.
func (c *Client) Note(key int) (uint8, error) {
	b, err := c.Read(addrMIDI+uint16(key), 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *Client) SetNote(key int, note uint8) error {
	return c.Write(addrMIDI+uint16(key), []byte{note})
}

// Calibration reads one key's envelope (min, max ADC counts).
func (c *Client) Calibration(key int) (types.KeySwitchCalibrationData, error) {
	var d types.KeySwitchCalibrationData
	b, err := c.Read(addrCalibration+uint16(key*types.CalibrationSize), types.CalibrationSize)
	if err != nil {
		return d, err
	}
	d.MinValue = uint16(b[0]) | uint16(b[1])<<8
	d.MaxValue = uint16(b[2]) | uint16(b[3])<<8
	return d, nil
}

func (c *Client) SetCalibration(key int, d types.KeySwitchCalibrationData) error {
	return c.Write(addrCalibration+uint16(key*types.CalibrationSize), []byte{
		byte(d.MinValue), byte(d.MinValue >> 8),
		byte(d.MaxValue), byte(d.MaxValue >> 8),
	})
}

// Positions reads the live travel of all keys, in 0.1 mm.
func (c *Client) Positions() ([types.NumKeys]uint8, error) {
	var out [types.NumKeys]uint8
	b, err := c.Read(addrPositions, types.NumKeys)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}
