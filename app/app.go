// Package app wires the firmware: bus, board profile, flash load,
// keyboard pipeline, configurator, heartbeat. The boot order follows
// the hardware's needs — bootloader-flag recovery first, config before
// the scanner starts, configurator before USB accepts callbacks.
package app

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"analogkb-go/bus"
	"analogkb-go/platform"
	"analogkb-go/services/config"
	"analogkb-go/services/configurator"
	"analogkb-go/services/heartbeat"
	"analogkb-go/services/keyboard"
	"analogkb-go/services/store"
	"analogkb-go/types"
)

type App struct {
	Bus          *bus.Bus
	Config       types.Config
	Keyboard     *keyboard.Keyboard
	Scanner      *keyboard.Scanner
	Configurator *configurator.Service
	Store        *store.Store
	Profile      types.BoardProfile
	Loaded       bool

	board *platform.Board

	// mu serialises the two mutation contexts (scan tick, serial RX),
	// standing in for the ISR priority scheme of the target.
	mu sync.Mutex
}

// New boots the firmware on the given board. Returns nil when the
// retained bootloader flag diverts the boot path.
func New(ctx context.Context, b *platform.Board) *App {
	if b.Device.BootloaderRequested() {
		b.Device.EnterBootloader()
		return nil
	}

	a := &App{board: b, Bus: bus.NewBus(8)}

	// Publish the embedded board profile, then take what we need.
	appConn := a.Bus.NewConnection("app")
	boardSub := appConn.Subscribe(bus.T("config", "board"))
	config.NewConfigService().Start(
		context.WithValue(ctx, config.CtxBoardKey, b.ID),
		a.Bus.NewConnection("config"),
	)
	a.Profile = waitBoardProfile(boardSub)
	appConn.Unsubscribe(boardSub)

	a.Store = store.New(b.Flash)
	a.Loaded = a.Store.Load(&a.Config)
	a.Keyboard = keyboard.New(&a.Config, b.HID, b.MIDI)
	if !a.Loaded {
		// First boot: no envelope exists yet, build one from live keys.
		a.Keyboard.StartCalibrate()
	}
	a.Scanner = keyboard.NewScanner(a.Keyboard, b.Mux, b.ADC)

	a.Configurator = configurator.New(
		b.Serial, &a.Config, a.Keyboard, a.Store, b.Device,
		a.Bus.NewConnection("configurator"),
	)
	b.Serial.OnRx(func() {
		a.mu.Lock()
		a.Configurator.Poll()
		a.mu.Unlock()
	})
	b.Ticker.OnTick(a.Profile.ScanHz, func() {
		a.mu.Lock()
		a.Scanner.Tick()
		a.mu.Unlock()
	})

	hb := heartbeat.New(func() (uint32, uint32) {
		return a.Scanner.Rounds(), a.Scanner.Overruns()
	})
	_ = hb.Start(ctx, a.Bus.NewConnection("heartbeat"))

	appConn.Publish(appConn.NewMessage(bus.T("keyboard", "state"), map[string]any{
		"mode":   uint8(a.Config.Mode),
		"loaded": a.Loaded,
	}, true))

	println("Info: startup, mode:", int(a.Config.Mode), "loaded:", a.Loaded)
	return a
}

// Run polls the USB device stack until the context ends. Boards without
// a polled stack just park here.
func (a *App) Run(ctx context.Context) {
	if a == nil {
		return
	}
	if a.board.USBPoll == nil {
		<-ctx.Done()
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		a.board.USBPoll()
	}
}

func waitBoardProfile(sub *bus.Subscription) types.BoardProfile {
	select {
	case msg := <-sub.Channel():
		var p types.BoardProfile
		if err := decodeJSON(msg.Payload, &p); err == nil && p.ScanHz > 0 {
			return p
		}
	case <-time.After(250 * time.Millisecond):
	}
	println("Warn: board profile unavailable, using 250 Hz default")
	return types.BoardProfile{ScanHz: 250}
}

func decodeJSON[T any](src any, dst *T) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		// Accept maps, structs, numbers… by marshaling then decoding to T.
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, dst)
	}
}
