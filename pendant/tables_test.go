// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later

package pendant

import "testing"

func TestDecodeKeyBaseTable(t *testing.T) {
	name, ok := DecodeKey(0x03, 0x00)
	if !ok || name != "StartPause" {
		t.Errorf("DecodeKey(0x03,0) = (%q,%v), want (StartPause,true)", name, ok)
	}
}

func TestDecodeKeyFnChord(t *testing.T) {
	name, ok := DecodeKey(fnKeyCode, 0x02)
	if !ok || name != "ApplicationExit" {
		t.Errorf("DecodeKey(Fn,2) = (%q,%v), want (ApplicationExit,true)", name, ok)
	}
}

func TestDecodeKeyUnknownChordIgnored(t *testing.T) {
	// Key1 not Fn and Key2 nonzero: no defined mapping.
	_, ok := DecodeKey(0x03, 0x02)
	if ok {
		t.Error("expected unknown chord to be ignored")
	}
}

func TestDecodeKeyMacro10IsNotOverloaded(t *testing.T) {
	name, ok := DecodeKey(16, 0)
	if !ok || name != "Macro-10" {
		t.Errorf("DecodeKey(16,0) = (%q,%v), want (Macro-10,true)", name, ok)
	}
}

func TestDeriveAxisMode(t *testing.T) {
	cases := []struct {
		axis byte
		want AxisMode
	}{
		{0x06, AxisOff},
		{0x11, AxisXYZ},
		{0x13, AxisXYZ},
		{0x14, AxisABC},
		{0x16, AxisABC},
	}
	for _, c := range cases {
		if got := DeriveAxisMode(c.axis); got != c.want {
			t.Errorf("DeriveAxisMode(0x%02x) = %v, want %v", c.axis, got, c.want)
		}
	}
}

func TestDecodeIncrementStepVsContinuous(t *testing.T) {
	v, ok := DecodeIncrement(ModeStep, 0x0d)
	if !ok || v != 0.001 {
		t.Errorf("DecodeIncrement(Step,0x0d) = (%v,%v), want (0.001,true)", v, ok)
	}
	v, ok = DecodeIncrement(ModeContinuous, 0x0d)
	if !ok || v != 0.02 {
		t.Errorf("DecodeIncrement(Continuous,0x0d) = (%v,%v), want (0.02,true)", v, ok)
	}
}

func TestDecodeIncrementLeadIsUnsupported(t *testing.T) {
	if _, ok := DecodeIncrement(ModeStep, leadIncrementCode); ok {
		t.Error("Lead increment should resolve to no-increment")
	}
}

func TestDecodeIncrementIdleIsUnsupported(t *testing.T) {
	if _, ok := DecodeIncrement(ModeStep, 0x00); ok {
		t.Error("idle increment byte should resolve to no-increment")
	}
}
