// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later

package serialink

import (
	"strings"
	"testing"

	"pendant-bridge/grbl"
)

func TestReadPacketClassifiesAndStripsCR(t *testing.T) {
	in := "ok\r\n<Idle|MPos:0.000,0.000,0.000|FS:0,0>\r\n"
	rd := NewReader(strings.NewReader(in))

	p, err := rd.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket: %v", err)
	}
	if p.Kind != grbl.KindOk {
		t.Errorf("first packet kind = %v, want KindOk", p.Kind)
	}

	p, err = rd.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket: %v", err)
	}
	if p.Kind != grbl.KindStatus {
		t.Errorf("second packet kind = %v, want KindStatus", p.Kind)
	}
	if p.Raw != "<Idle|MPos:0.000,0.000,0.000|FS:0,0>" {
		t.Errorf("second packet raw = %q, CR not stripped cleanly", p.Raw)
	}
}

func TestReadPacketSkipsBlankLines(t *testing.T) {
	rd := NewReader(strings.NewReader("\r\nok\r\n"))
	p, err := rd.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket: %v", err)
	}
	if p.Kind != grbl.KindOk {
		t.Errorf("kind = %v, want KindOk (blank line should have been skipped)", p.Kind)
	}
}

func TestReadPacketTruncatesOversizedLine(t *testing.T) {
	long := strings.Repeat("x", 200) + "\n"
	rd := NewReader(strings.NewReader(long))
	p, err := rd.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket: %v", err)
	}
	if len(p.Raw) != maxPacketSize {
		t.Errorf("truncated length = %d, want %d", len(p.Raw), maxPacketSize)
	}
}
