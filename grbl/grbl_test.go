// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later

package grbl

import "testing"

func TestParseLineClassification(t *testing.T) {
	cases := []struct {
		line string
		kind Kind
		code int
	}{
		{"ok", KindOk, 0},
		{"error:13", KindError, 13},
		{"ALARM:5", KindAlarm, 5},
		{"<Idle|MPos:0.000,0.000,0.000|FS:0,0>", KindStatus, 0},
		{"[MSG:Caution: Unlocked]", KindFeedback, 0},
		{"[GC:G0 G54 G17 G21 G90 G94 M5 M9 T0 F0 S0]", KindGCodeState, 0},
		{"[VER:1.1h.20190825:]", KindBuild, 0},
		{"[OPT:V,15,128]", KindBuild, 0},
		{"[echo:G1X0.540Y10.4]", KindEcho, 0},
		{"[G54:0.000,0.000,0.000]", KindParameter, 0},
		{"[TLO:0.000]", KindParameter, 0},
		{"[PRB:0.000,0.000,0.000:1]", KindParameter, 0},
		{">G54 G17 G21 G90 G94 M5 M9 T0 F0 S0:ok", KindStartup, 0},
		{"$130=200.000", KindParameter, 0},
		{"$$", KindParameter, 0},
		{"Grbl 1.1h ['$' for help]", KindStandard, 0},
		{"random line", KindStandard, 0},
	}
	for _, c := range cases {
		p := ParseLine(c.line)
		if p.Kind != c.kind {
			t.Errorf("ParseLine(%q).Kind = %v, want %v", c.line, p.Kind, c.kind)
		}
		if p.Code != c.code {
			t.Errorf("ParseLine(%q).Code = %d, want %d", c.line, p.Code, c.code)
		}
	}
}

func TestAlarmDescription(t *testing.T) {
	if got := AlarmDescription(5, false); got != "Probe fail" {
		t.Errorf("AlarmDescription(5, false) = %q, want %q", got, "Probe fail")
	}
	if got := AlarmDescription(99, true); got != "" {
		t.Errorf("AlarmDescription(99, true) = %q, want empty", got)
	}
	if got := AlarmDescription(0, true); got != "" {
		t.Errorf("AlarmDescription(0, true) = %q, want empty (index 0 unused)", got)
	}
}

func TestErrorDescription(t *testing.T) {
	if got := ErrorDescription(13, false); got != "Check Door" {
		t.Errorf("ErrorDescription(13, false) = %q, want %q", got, "Check Door")
	}
	if got := ErrorDescription(-1, true); got != "" {
		t.Errorf("ErrorDescription(-1, true) = %q, want empty", got)
	}
}
