// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package hidlink encodes and decodes the XHC WHB04B-4 pendant's USB-HID
// wire format: 8-byte input reports and the 20-byte display payload,
// fragmented into 7-byte HID output reports.
package hidlink

import (
	"encoding/binary"
	"fmt"
	"math"
)

// InputReportSize is the fixed length of a pendant input report.
const InputReportSize = 8

// InputReport is one decoded 8-byte input report from the pendant.
type InputReport struct {
	Hdr   byte
	Seed  byte
	Key1  byte
	Key2  byte
	Incr  byte
	Axis  byte
	Jog   int8
	Chksm byte
}

// expectedHeader is the only header byte the pendant is known to send.
const expectedHeader = 0x04

// ParseInputReport decodes an 8-byte input report. Checksum validation is
// deliberately not performed — the algorithm the pendant uses for its
// trailing checksum byte has never been reverse engineered, so it is
// carried through unchecked rather than rejecting otherwise-valid packets.
func ParseInputReport(b []byte) (InputReport, error) {
	if len(b) != InputReportSize {
		return InputReport{}, fmt.Errorf("input report: want %d bytes, got %d", InputReportSize, len(b))
	}
	r := InputReport{
		Hdr:   b[0],
		Seed:  b[1],
		Key1:  b[2],
		Key2:  b[3],
		Incr:  b[4],
		Axis:  b[5],
		Jog:   int8(b[6]),
		Chksm: b[7],
	}
	if r.Hdr != expectedHeader {
		return r, fmt.Errorf("input report: unexpected header 0x%02x", r.Hdr)
	}
	return r, nil
}

// IsNull reports whether r is the all-zero "no input" packet the pendant
// sends between keystrokes/jog events.
func (r InputReport) IsNull() bool {
	return r.Key1 == 0 && r.Key2 == 0 && r.Incr == 0 && r.Axis == 0 && r.Jog == 0
}

// Display header and the magic "seed" byte observed in every display
// payload written by this revision of the receiver firmware.
const (
	displayHeader = 0xfdfe
	displaySeed   = 0xfe
)

// DisplayPayloadSize is the packed length of one display update, before
// fragmentation into HID output reports: a 2-byte header, 2 flag bytes,
// three (magnitude, signed-fraction) coordinate pairs, and feed rate /
// spindle speed words — 2+1+1+3*4+2+2 = 20 bytes, split across three
// 7-byte HID reports with the last report zero-padded.
const DisplayPayloadSize = 20

// BuildDisplayPayload packs one display update into the pendant's 20-byte
// wire format: a header/seed/flags prefix, three fixed-point coordinate
// fields, then feed rate and spindle speed.
//
// coordinateSpace is 0 (machine) or 1 (workpiece); motionMode is 0-3
// (continuous/step/MPG/percent). reset, when true, tells the pendant to
// show its reset banner instead of the normal display.
func BuildDisplayPayload(motionMode, coordinateSpace byte, coords [3]float64, feedRate, spindleSpeed uint16, reset bool) [DisplayPayloadSize]byte {
	var out [DisplayPayloadSize]byte

	flags := ((coordinateSpace << 7) & 0x80) | (motionMode & 0x03)
	if reset {
		flags |= 0x40
	}

	binary.LittleEndian.PutUint16(out[0:2], displayHeader)
	out[2] = displaySeed
	out[3] = flags

	off := 4
	for _, c := range coords {
		mag, frac := fractSign(c)
		binary.LittleEndian.PutUint16(out[off:off+2], mag)
		binary.LittleEndian.PutUint16(out[off+2:off+4], frac)
		off += 4
	}

	binary.LittleEndian.PutUint16(out[off:off+2], feedRate)
	binary.LittleEndian.PutUint16(out[off+2:off+4], spindleSpeed)

	return out
}

// fractSign splits a coordinate into the pendant's (integer-magnitude,
// sign+fraction) pair: the low 15 bits of the second word hold the first
// four decimal digits of the fractional part, and bit 15 carries the sign.
// A zero value is sent as (0, 0), matching the pendant's idle display.
func fractSign(v float64) (mag, signFrac uint16) {
	if v == 0 {
		return 0, 0
	}
	mag = uint16(math.Abs(math.Trunc(v)))

	frac := math.Abs(v) - math.Trunc(math.Abs(v))
	digits := uint16(math.Round(frac*10000)) & 0x7fff

	signFrac = digits
	if v < 0 {
		signFrac |= 0x8000
	}
	return mag, signFrac
}

// FragmentDisplayPayload splits a display payload into three 7-byte
// chunks, zero-padding the final chunk. The pendant's HID report-ID prefix
// (0x06) is added by the caller per chunk when writing to the device.
func FragmentDisplayPayload(payload [DisplayPayloadSize]byte) [3][7]byte {
	var chunks [3][7]byte
	for i := range chunks {
		start := i * 7
		end := start + 7
		if end > DisplayPayloadSize {
			end = DisplayPayloadSize
		}
		copy(chunks[i][:], payload[start:end])
	}
	return chunks
}
