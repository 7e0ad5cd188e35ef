// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pendant drives an XHC WHB04B-4 pendant over USB-HID: keycap and
// axis/increment decoding, the reset handshake, and display updates.
package pendant

// MotionMode selects which of the pendant's jog-speed tables is active.
type MotionMode byte

const (
	ModeContinuous MotionMode = 0
	ModeStep       MotionMode = 1
	ModeMPG        MotionMode = 2 // not implemented by this pendant revision
	ModePercent    MotionMode = 3 // not implemented by this pendant revision
)

// CoordinateSpace selects which position readout the pendant display shows.
type CoordinateSpace byte

const (
	SpaceMachine   CoordinateSpace = 0
	SpaceWorkpiece CoordinateSpace = 1
)

// AxisMode reflects the pendant's axis-select knob position, derived from
// the input report's Axis byte.
type AxisMode int

const (
	AxisOff AxisMode = iota
	AxisXYZ
	AxisABC
)

// fnKeyCode is the Key1 value that indicates the Fn chord is held, which
// redirects key decoding to fnKeymap.
const fnKeyCode = 0x0c

// keymap is indexed by Key1 when Key2 == 0. Index 0 is unused (no key
// code 0 exists).
var keymap = [...]string{
	0:  "",
	1:  "Reset",
	2:  "Stop",
	3:  "StartPause",
	4:  "Macro-1",
	5:  "Macro-2",
	6:  "Macro-3",
	7:  "Macro-4",
	8:  "Macro-5",
	9:  "Macro-6",
	10: "Macro-7",
	11: "Macro-8",
	12: "Fn",
	13: "Macro-9",
	14: "Continuous",
	15: "Step",
	16: "Macro-10",
}

// fnKeymap is indexed by Key2 when Key1 == fnKeyCode.
var fnKeymap = [...]string{
	0:  "",
	1:  "PendantReset",
	2:  "ApplicationExit",
	3:  "StartPause",
	4:  "Feed+",
	5:  "Feed-",
	6:  "Spindle+",
	7:  "Spindle-",
	8:  "M-Home",
	9:  "Safe-Z",
	10: "W-Home",
	11: "S-on/off",
	12: "",
	13: "Probe-Z",
	14: "",
	15: "Continuous",
	16: "Step",
}

// axisNames maps the input report's Axis byte to a selector name.
var axisNames = map[byte]string{
	0x00: "Noop",
	0x06: "Off",
	0x11: "X",
	0x12: "Y",
	0x13: "Z",
	0x14: "A",
	0x15: "B",
	0x16: "C",
}

// incrementTables gives the jog increment (in mm) for each knob position,
// keyed by MotionMode then the Incr byte. A zero-value entry with ok=false
// isn't present in the map; "Lead" (0x9b) is carried as a distinct sentinel
// since this pendant revision doesn't implement lead-jog.
var incrementTables = map[MotionMode]map[byte]float64{
	ModeStep: {
		0x0d: 0.001,
		0x0e: 0.01,
		0x0f: 0.1,
		0x10: 1.0,
		0x1a: 5.0,
		0x1b: 10.0,
	},
	ModeContinuous: {
		0x0d: 0.02,
		0x0e: 0.05,
		0x0f: 0.10,
		0x10: 0.30,
		0x1a: 0.60,
		0x1b: 1.0,
	},
}

const leadIncrementCode = 0x9b

// DecodeKey resolves a (Key1, Key2) pair to a keycap name, following the
// pendant's Fn-chord overload: Key2 == 0 looks up the base table; Key1 ==
// Fn with a nonzero Key2 looks up the Fn-modified table.
func DecodeKey(key1, key2 byte) (string, bool) {
	if key2 == 0 {
		if int(key1) >= len(keymap) {
			return "", false
		}
		name := keymap[key1]
		return name, name != ""
	}
	if key1 == fnKeyCode {
		if int(key2) >= len(fnKeymap) {
			return "", false
		}
		name := fnKeymap[key2]
		return name, name != ""
	}
	return "", false
}

// DecodeAxis resolves the input report's Axis byte to a selector name.
func DecodeAxis(axis byte) (string, bool) {
	name, ok := axisNames[axis]
	return name, ok
}

// DeriveAxisMode classifies the axis-select knob position into off/XYZ/ABC,
// matching the pendant's own axis-byte layout: 0x06 is "Off", anything
// below 0x14 that isn't 0x06 is linear (X/Y/Z), the rest is rotary (A/B/C).
func DeriveAxisMode(axis byte) AxisMode {
	if axis == 0x06 {
		return AxisOff
	}
	if axis < 0x14 {
		return AxisXYZ
	}
	return AxisABC
}

// DecodeIncrement returns the jog increment in mm for the given motion
// mode and Incr byte. ok is false for the idle byte (0x00), the unmodeled
// Lead position (0x9b), and any other unrecognized byte.
func DecodeIncrement(mode MotionMode, incr byte) (float64, bool) {
	if incr == leadIncrementCode {
		return 0, false
	}
	table, ok := incrementTables[mode]
	if !ok {
		return 0, false
	}
	v, ok := table[incr]
	return v, ok
}
