// Package configurator implements the framed request/response protocol
// the host tool speaks over the virtual serial link: COBS-encoded
// packets, 0x00 delimited, exposing the live configuration as a flat
// 16-bit address space plus a handful of control commands.
package configurator

import (
	"analogkb-go/bus"
	"analogkb-go/errcode"
	"analogkb-go/services/keyboard"
	"analogkb-go/services/store"
	"analogkb-go/types"
	"analogkb-go/x/cobs"
	"analogkb-go/x/fmtx"
)

// SerialLink is the byte-stream contract (USB CDC, UART, loopback).
// ReadByte drains one buffered byte; ok=false means the buffer is empty.
type SerialLink interface {
	ReadByte() (b byte, ok bool)
	Write(p []byte) (int, error)
	Flush() error
}

// DeviceControl covers the two actions that leave the firmware.
type DeviceControl interface {
	SystemReset()
	EnterBootloader()
}

// Saver persists the live Config (the flash store in production).
type Saver interface {
	Save(cfg *types.Config) bool
}

// Wire constants.
const (
	funcRead  = 0x00
	funcWrite = 0x01

	statusOK  = 0x00
	statusErr = 0x01

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

	maxResponse = 512
	bufSize     = 640
)

var topicState = bus.T("configurator", "state")

// Service is the single protocol engine instance. It owns the receive
// buffer and holds non-owning references to the keyboard and Config; it
// runs from the serial-receive callback and mutates Config in place.
type Service struct {
	link  SerialLink
	cfg   *types.Config
	kb    *keyboard.Keyboard
	saver Saver
	dev   DeviceControl
	conn  *bus.Connection // optional; nil disables state publishing

	rx  [bufSize]byte
	rxn int

	dec     [bufSize]byte
	resp    [4 + 255]byte
	enc     [bufSize]byte
	scratch [types.ConfigPackedSize]byte

	frames uint32
	faults uint32

	// after runs post-response: system reset and bootloader entry must
	// not preempt their own acknowledgement.
	after func()
}

func New(link SerialLink, cfg *types.Config, kb *keyboard.Keyboard, saver Saver, dev DeviceControl, conn *bus.Connection) *Service {
	return &Service{link: link, cfg: cfg, kb: kb, saver: saver, dev: dev, conn: conn}
}

// Poll drains the serial link. Each 0x00 delimiter closes a frame, which
// is processed exactly once; payload bytes never contain zeros on the
// wire, so the delimiter is unambiguous.
func (s *Service) Poll() {
	for {
		b, ok := s.link.ReadByte()
		if !ok {
			return
		}
		if b == 0x00 {
			s.processFrame()
			continue
		}
		if s.rxn == len(s.rx) {
			// Drop the oldest byte; the mangled frame fails decode and
			// is answered with an error status.
			copy(s.rx[:], s.rx[1:])
			s.rxn--
		}
		s.rx[s.rxn] = b
		s.rxn++
	}
}

func (s *Service) processFrame() {
	frame := s.rx[:s.rxn]
	s.rxn = 0
	s.frames++

	n, err := cobs.Decode(s.dec[:], frame)
	if err != nil || n < 4 {
		s.fault(errcode.InvalidFrame)
		s.respond(statusErr, 0, nil)
		return
	}

	fn := s.dec[0]
	addr := uint16(s.dec[1])<<8 | uint16(s.dec[2])
	length := int(s.dec[3])

	switch fn {
	case funcRead:
		s.handleRead(addr, length)
	case funcWrite:
		if n != length+4 {
			s.fault(errcode.InvalidLength)
			s.respond(statusErr, addr, nil)
			break
		}
		s.handleWrite(addr, length, s.dec[4:4+length])
	default:
		s.fault(errcode.Unsupported)
		s.respond(statusErr, addr, nil)
	}

	s.publishState()

	if s.after != nil {
		run := s.after
		s.after = nil
		run()
	}
}

// packedRegion maps a protocol address range onto an offset in the
// packed Config image, for the three byte-addressable config regions.
func packedRegion(addr uint16, length int) (int, bool) {
	if length <= 0 {
		return 0, false
	}
	end := int(addr) + length - 1
	switch {
	case end <= addrKeyConfigs+types.PackedKeyConfigsSize-1:
		return types.PackedKeyConfigsOff + int(addr), true
	case int(addr) >= addrMIDI && end <= addrMIDI+types.PackedMIDISize-1:
		return types.PackedMIDIOff + int(addr) - addrMIDI, true
	case int(addr) >= addrCalibration && end <= addrCalibration+types.PackedCalibrationSize-1:
		return types.PackedCalibrationOff + int(addr) - addrCalibration, true
	}
	return 0, false
}

func (s *Service) handleRead(addr uint16, length int) {
	if 4+length > maxResponse {
		s.fault(errcode.ResponseTooBig)
		s.respond(statusErr, addr, nil)
		return
	}

	if off, ok := packedRegion(addr, length); ok {
		if err := s.cfg.Pack(s.scratch[:]); err != nil {
			s.respond(statusErr, addr, nil)
			return
		}
		s.respond(statusOK, addr, s.scratch[off:off+length])
		return
	}

	if length > 0 && int(addr) >= addrPositions && int(addr)+length-1 <= addrPositions+types.NumKeys-1 {
		data := s.resp[4 : 4+length]
		for i := 0; i < length; i++ {
			data[i] = s.kb.Position(int(addr) - addrPositions + i)
		}
		s.respond(statusOK, addr, data)
		return
	}

	if addr == addrMode && length == 1 {
		s.respond(statusOK, addr, []byte{uint8(s.cfg.Mode)})
		return
	}

	s.fault(errcode.BadAddress)
	s.respond(statusErr, addr, nil)
}

func (s *Service) handleWrite(addr uint16, length int, data []byte) {
	if off, ok := packedRegion(addr, length); ok {
		// Read-modify-write through the packed image keeps the byte
		// addressing identical to the flash layout.
		if err := s.cfg.Pack(s.scratch[:]); err != nil {
			s.respond(statusErr, addr, nil)
			return
		}
		copy(s.scratch[off:off+length], data)
		if err := s.cfg.Unpack(s.scratch[:]); err != nil {
			s.respond(statusErr, addr, nil)
			return
		}
		s.respond(statusOK, addr, nil)
		return
	}

	if (addr&0xFF00) == ctrlSave || addr == addrMode {
		if length != 1 {
			s.fault(errcode.InvalidLength)
			s.respond(statusErr, addr, nil)
			return
		}
		s.handleControl(addr, data[0])
		return
	}

	s.fault(errcode.BadAddress)
	s.respond(statusErr, addr, nil)
}

func (s *Service) handleControl(addr uint16, v byte) {
	switch addr {
	case ctrlSave:
		if !s.saver.Save(s.cfg) {
			s.fault(errcode.FlashFault)
			s.respond(statusErr, addr, nil)
			return
		}
	case ctrlCalibration:
		if v == 0x00 {
			s.kb.StopCalibrate()
		} else {
			s.kb.StartCalibrate()
		}
	case ctrlFactoryReset:
		*s.cfg = store.DefaultConfig()
		s.cfg.Mode = types.ModeDisabled
	case ctrlSystemReset:
		s.after = s.dev.SystemReset
	case ctrlBootloader:
		s.after = s.dev.EnterBootloader
	case addrMode:
		if types.Mode(v).Valid() {
			s.cfg.Mode = types.Mode(v)
		}
	default:
		s.fault(errcode.UnknownCommand)
		s.respond(statusErr, addr, nil)
		return
	}
	s.respond(statusOK, addr, nil)
}

// respond frames and sends one response: status, address, length, data.
func (s *Service) respond(status byte, addr uint16, data []byte) {
	s.resp[0] = status
	s.resp[1] = uint8(addr >> 8)
	s.resp[2] = uint8(addr)
	s.resp[3] = uint8(len(data))
	// data may already alias resp[4:].
	if len(data) > 0 && &data[0] != &s.resp[4] {
		copy(s.resp[4:], data)
	}
	n := cobs.Encode(s.enc[:], s.resp[:4+len(data)])
	s.enc[n] = 0x00
	if _, err := s.link.Write(s.enc[:n+1]); err != nil {
		fmtx.Printf("Warn: configurator write failed: %s\n", err.Error())
		return
	}
	_ = s.link.Flush()
}

func (s *Service) fault(code errcode.Code) {
	s.faults++
	fmtx.Printf("Warn: configurator: %s\n", string(code))
}

func (s *Service) publishState() {
	if s.conn == nil {
		return
	}
	s.conn.Publish(s.conn.NewMessage(topicState, map[string]any{
		"frames": s.frames,
		"faults": s.faults,
	}, true))
}
