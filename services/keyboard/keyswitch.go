package keyboard

import (
	"analogkb-go/types"
)

// KeySwitch is the per-key runtime: filtered kinematics plus the active
// state-machine variant. Variants are swapped in place by the mode
// reconciliation at scan-round boundaries, never mid-sample.
type KeySwitch struct {
	cfg *types.KeySwitchConfig
	cal *types.KeySwitchCalibrationData

	position float32 // 0.1 mm
	velocity float32 // mm/s
	pressed  bool

	variant variant
}

// variant is one of disabled / calibrating / threshold / rapid-trigger.
type variant interface {
	kind() types.KeyType
	update(k *KeySwitch, v uint16) bool
}

func (k *KeySwitch) bind(cfg *types.KeySwitchConfig, cal *types.KeySwitchCalibrationData) {
	k.cfg = cfg
	k.cal = cal
	k.variant = disabledKey{}
}

// Update feeds one ADC sample through the active variant and returns the
// pressed state.
func (k *KeySwitch) Update(v uint16) bool {
	k.pressed = k.variant.update(k, v)
	return k.pressed
}

// IsPressed reports the result of the most recent sample.
func (k *KeySwitch) IsPressed() bool { return k.pressed }

// KeyCode returns the configured HID usage.
func (k *KeySwitch) KeyCode() uint8 { return k.cfg.KeyCode }

// Position returns the travel from the latest sample in 0.1 mm
// (unfiltered; only velocity is low-passed).
func (k *KeySwitch) Position() float32 { return k.position }

// Velocity returns the low-passed velocity in mm/s.
func (k *KeySwitch) Velocity() float32 { return k.velocity }

// setVariant swaps the state machine when the required kind differs,
// discarding variant-local state. Creating a calibrating variant resets
// the key's envelope so the pass rebuilds it from live samples.
func (k *KeySwitch) setVariant(kind types.KeyType) {
	if k.variant != nil && k.variant.kind() == kind {
		return
	}
	switch kind {
	case types.KeyCalibrate:
		k.cal.MinValue = 4095
		k.cal.MaxValue = 0
		k.variant = calibratingKey{}
	case types.KeyThreshold:
		k.variant = thresholdKey{}
	case types.KeyRapidTrigger:
		k.variant = &rapidTriggerKey{}
	default:
		k.variant = disabledKey{}
	}
	k.pressed = false
}

// updatePosVel refreshes position and the low-passed velocity from a
// new sample. Shared by the threshold and rapid-trigger variants.
func (k *KeySwitch) updatePosVel(v uint16) {
	pos := adcToDistance(v, k.cal)
	raw := (pos - k.position) / SamplingInterval / 10 // 0.1 mm -> mm/s
	const alpha = velocityTau / (velocityTau + SamplingInterval)
	k.velocity = alpha*k.velocity + (1-alpha)*raw
	k.position = pos
}

// ---- Disabled ----

type disabledKey struct{}

func (disabledKey) kind() types.KeyType { return types.KeyDisabled }

func (disabledKey) update(k *KeySwitch, v uint16) bool { return false }

// ---- Calibrating ----

type calibratingKey struct{}

func (calibratingKey) kind() types.KeyType { return types.KeyCalibrate }

func (calibratingKey) update(k *KeySwitch, v uint16) bool {
	if v > k.cal.MaxValue {
		k.cal.MaxValue = v
	}
	if v < k.cal.MinValue {
		k.cal.MinValue = v
	}
	return false
}

// ---- Threshold ----

type thresholdKey struct{}

func (thresholdKey) kind() types.KeyType { return types.KeyThreshold }

func (thresholdKey) update(k *KeySwitch, v uint16) bool {
	k.updatePosVel(v)
	return k.position > float32(k.cfg.ActuationPoint)
}

// ---- Rapid trigger ----

type rtState uint8

const (
	rtRest rtState = iota
	rtDown
	rtUp
)

// rapidTriggerKey re-actuates on small reversals relative to the most
// recent peak (deepest point while pressed) or valley (shallowest point
// while released past the actuation point).
type rapidTriggerKey struct {
	state rtState
	peak  float32 // 0.1 mm
}

func (*rapidTriggerKey) kind() types.KeyType { return types.KeyRapidTrigger }

func (r *rapidTriggerKey) update(k *KeySwitch, v uint16) bool {
	k.updatePosVel(v)
	return r.step(k)
}

// step applies the three-state decision to the current position.
func (r *rapidTriggerKey) step(k *KeySwitch) bool {
	pos := k.position
	ap := float32(k.cfg.ActuationPoint)

	switch r.state {
	case rtRest:
		if pos > ap {
			r.peak = pos
			r.state = rtDown
			return true
		}
	case rtDown:
		if pos <= ap {
			r.state = rtRest
			return false
		}
		if r.peak-pos > float32(k.cfg.RapidUpSensitivity) {
			r.peak = pos
			r.state = rtUp
			return false
		}
		if pos > r.peak {
			r.peak = pos
		}
	case rtUp:
		if pos <= ap {
			r.state = rtRest
			return false
		}
		if pos-r.peak > float32(k.cfg.RapidDownSensitivity) {
			r.peak = pos
			r.state = rtDown
			return true
		}
		if pos < r.peak {
			r.peak = pos
		}
	}
	return k.pressed
}
