// simwalk runs the firmware against the simulator board and walks one
// key through calibration, a press, and a save, printing the USB
// traffic as it happens. A smoke run for the whole pipeline.
package main

import (
	"context"
	"fmt"

	"analogkb-go/app"
	"analogkb-go/platform/sim"
	"analogkb-go/x/cobs"
)

func frame(payload []byte) []byte {
	enc := make([]byte, cobs.MaxEncodedLen(len(payload))+1)
	n := cobs.Encode(enc, payload)
	enc[n] = 0x00
	return enc[:n+1]
}

func main() {
	b := sim.NewBoard()

	key0 := uint16(2048)
	b.ADCDev.Source = func(adcCh, muxCh uint8) uint16 {
		if adcCh == 3 && muxCh == 1 { // key 0
			return key0
		}
		return 2048
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a := app.New(ctx, &b.Board)
	fmt.Printf("booted: mode=%d loaded=%v scan_hz=%d\n", a.Config.Mode, a.Loaded, b.Clock.Hz)

	fmt.Println("calibrating key 0 ...")
	for _, v := range []uint16{2048, 1500, 900, 500, 1200, 2048} {
		key0 = v
		b.Clock.Step(1)
	}
	cal := a.Config.KeySwitchCalibrationData[0]
	fmt.Printf("envelope: min=%d max=%d\n", cal.MinValue, cal.MaxValue)

	b.Link.HostWrite(frame([]byte{0x01, 0x30, 0x01, 0x01, 0x00})) // calibration off
	fmt.Printf("calibration-off response: % x\n", b.Link.HostRead())

	fmt.Println("pressing key 0 ...")
	key0 = 500
	b.Clock.Step(3)
	if rep, ok := b.HIDDev.Last(); ok {
		fmt.Printf("hid report: mod=%02x keys=% x\n", rep.Modifier, rep.Keys)
	}

	b.Link.HostWrite(frame([]byte{0x01, 0x30, 0x00, 0x01, 0x01})) // save
	fmt.Printf("save response: % x\n", b.Link.HostRead())
	fmt.Printf("flash[0:8]: % x\n", b.Store.Mem[:8])
}
