package keyboard

import (
	"github.com/chewxy/math32"

	"analogkb-go/types"
	"analogkb-go/x/mathx"
)

// Fixed pipeline parameters. The 250 Hz scan cadence ties the sampling
// interval and the velocity filter together; changing one means
// re-deriving the others.
const (
	// FullTravel is the stroke length in 0.1 mm units.
	FullTravel = 40.0
	// curveA was precalculated by fitting distance-vs-ADC data.
	curveA = 200.0
	// SamplingInterval between samples of one key, in seconds (250 Hz).
	SamplingInterval = 0.004
	// velocityTau is the low-pass time constant for velocity, in seconds.
	velocityTau = 0.01
)

// adcToDistance maps a 12-bit ADC reading onto travel in 0.1 mm.
// The sensor is inverted: deeper press, lower count. Readings outside
// the calibration envelope saturate; a degenerate envelope (min >= max)
// means calibration has not run, which reads as no travel.
func adcToDistance(v uint16, cal *types.KeySwitchCalibrationData) float32 {
	if v < cal.MinValue {
		return FullTravel
	}
	if v > cal.MaxValue {
		return 0
	}
	if cal.MinValue >= cal.MaxValue {
		return 0
	}
	b := math32.Log(float32(cal.MaxValue-cal.MinValue)/curveA+1) / 4
	d := math32.Log(float32(cal.MaxValue-v)/curveA+1) * 10 / b
	return mathx.Clamp(d, 0, FullTravel)
}
