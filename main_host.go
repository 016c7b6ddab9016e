//go:build !(rp2040 || rp2350)

package main

import (
	"analogkb-go/platform"
	"analogkb-go/platform/sim"
)

// board on a host build is the simulator with a live 250 Hz ticker and
// idle keys; useful for poking the heartbeat and configurator plumbing
// without hardware.
func board() *platform.Board {
	b := sim.NewBoard()
	b.Board.Ticker = platform.NewTimeTicker()
	return &b.Board
}
