// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later

package hidlink

import "testing"

func TestParseInputReportRoundTrip(t *testing.T) {
	raw := []byte{0x04, 0x00, 0x03, 0x00, 0x0d, 0x11, 0xfe, 0x00} // StartPause, 0.001 incr, X axis, jog=-2
	r, err := ParseInputReport(raw)
	if err != nil {
		t.Fatalf("ParseInputReport: %v", err)
	}
	if r.Key1 != 0x03 || r.Axis != 0x11 || r.Jog != -2 {
		t.Errorf("decoded = %+v, unexpected fields", r)
	}
}

func TestParseInputReportRejectsWrongLength(t *testing.T) {
	if _, err := ParseInputReport([]byte{0x04, 0x00}); err == nil {
		t.Error("expected error for short packet")
	}
}

func TestParseInputReportRejectsBadHeader(t *testing.T) {
	raw := make([]byte, InputReportSize)
	raw[0] = 0x99
	if _, err := ParseInputReport(raw); err == nil {
		t.Error("expected error for bad header")
	}
}

func TestIsNull(t *testing.T) {
	var zero InputReport
	zero.Hdr = 0x04
	if !zero.IsNull() {
		t.Error("all-zero report should be IsNull")
	}
	zero.Jog = 1
	if zero.IsNull() {
		t.Error("nonzero jog should not be IsNull")
	}
}

func TestFractSignZero(t *testing.T) {
	mag, frac := fractSign(0)
	if mag != 0 || frac != 0 {
		t.Errorf("fractSign(0) = (%d, %d), want (0, 0)", mag, frac)
	}
}

func TestFractSignPositive(t *testing.T) {
	mag, frac := fractSign(1.25)
	if mag != 1 {
		t.Errorf("mag = %d, want 1", mag)
	}
	if frac != 2500 {
		t.Errorf("frac = %d, want 2500", frac)
	}
}

func TestFractSignNegative(t *testing.T) {
	mag, frac := fractSign(-3.5)
	if mag != 3 {
		t.Errorf("mag = %d, want 3", mag)
	}
	if frac&0x8000 == 0 {
		t.Error("sign bit not set for negative value")
	}
	if frac&0x7fff != 5000 {
		t.Errorf("fraction bits = %d, want 5000", frac&0x7fff)
	}
}

func TestBuildDisplayPayloadLength(t *testing.T) {
	payload := BuildDisplayPayload(1, 0, [3]float64{1.0, -2.5, 0}, 500, 0, false)
	if len(payload) != DisplayPayloadSize {
		t.Errorf("len = %d, want %d", len(payload), DisplayPayloadSize)
	}
	if payload[0] != 0xfe || payload[1] != 0xfd {
		t.Errorf("header bytes = %x %x, want fe fd (little-endian 0xfdfe)", payload[0], payload[1])
	}
}

func TestFragmentDisplayPayloadPadsLastChunk(t *testing.T) {
	var payload [DisplayPayloadSize]byte
	for i := range payload {
		payload[i] = byte(i + 1)
	}
	chunks := FragmentDisplayPayload(payload)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	// 20 bytes of real data = 7 + 7 + 6, so the third chunk's last byte is
	// the zero pad.
	if chunks[2][0] != payload[14] {
		t.Errorf("third chunk does not start at offset 14")
	}
	if chunks[2][6] != 0 {
		t.Errorf("third chunk's pad byte = %d, want 0", chunks[2][6])
	}
}
