package keyboard

import (
	"analogkb-go/x/fmtx"
)

// Scanner walks the 8 mux positions, collecting four parallel ADC
// samples per position, and hands each completed round to the Keyboard.
//
// The 250 Hz tick both closes the previous round (Update/emit) and opens
// the next one; there is no partial-round dispatch. All mutation happens
// on the tick and ADC-complete callbacks, which the execution model
// guarantees never preempt each other.
type Scanner struct {
	kb  *Keyboard
	mux Mux
	adc ADCGroups

	running   bool
	channel   uint8
	groupDone [2]bool
	samples   [4]uint16

	rounds   uint32
	overruns uint32
}

// NewScanner wires the scan pipeline and installs the ADC completion
// handler. Call Tick from the 250 Hz timer.
func NewScanner(kb *Keyboard, mux Mux, adc ADCGroups) *Scanner {
	s := &Scanner{kb: kb, mux: mux, adc: adc}
	adc.OnComplete(s.groupComplete)
	return s
}

// Tick is the 250 Hz entry point. A still-running round means the
// previous scan overran its slot; the tick is skipped and counted, not
// treated as a fault.
func (s *Scanner) Tick() {
	if s.running {
		s.overruns++
		fmtx.Printf("Warn: scan overrun, skipping tick (total %d)\n", int(s.overruns))
		return
	}

	// Emit outputs from the round that just completed.
	s.kb.Update()

	s.running = true
	s.channel = 0
	s.groupDone[0] = false
	s.groupDone[1] = false
	s.mux.Select(0)
	s.startGroups()
}

func (s *Scanner) startGroups() {
	s.adc.StartGroup(0, s.samples[0:2])
	s.adc.StartGroup(1, s.samples[2:4])
}

// groupComplete runs at DMA-complete priority. Once both groups land for
// the current mux position, the four samples are routed to their keys
// and the cursor advances.
func (s *Scanner) groupComplete(group int) {
	if group < 0 || group > 1 || !s.running {
		return
	}
	s.groupDone[group] = true
	if !s.groupDone[0] || !s.groupDone[1] {
		return
	}

	ch := s.channel
	for adcCh := uint8(0); adcCh < 4; adcCh++ {
		s.kb.SetADCValue(adcCh, ch, s.samples[adcCh])
	}

	s.channel = (s.channel + 1) & 7
	s.groupDone[0] = false
	s.groupDone[1] = false
	if s.channel == 0 {
		s.running = false
		s.rounds++
		return
	}
	s.mux.Select(s.channel)
	s.startGroups()
}

// Rounds reports completed scan rounds since boot.
func (s *Scanner) Rounds() uint32 { return s.rounds }

// Overruns reports skipped ticks since boot.
func (s *Scanner) Overruns() uint32 { return s.overruns }
