// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package serialink frames raw bytes off a GRBL serial connection into
// classified grbl.Packet values.
package serialink

import (
	"bufio"
	"bytes"
	"io"
	"log/slog"
	"unicode"

	"pendant-bridge/grbl"
)

// maxPacketSize bounds how many bytes ReadPacket accumulates before giving
// up on a line terminator, mirroring GRBL's own line-length limit.
const maxPacketSize = 128

// Reader frames a byte stream into classified GRBL packets, one line at a
// time.
type Reader struct {
	br *bufio.Reader
}

// NewReader wraps r (typically a serial port) for line-oriented reads.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, maxPacketSize*2)}
}

// ReadPacket blocks until a full line has been read, then classifies it.
// Carriage returns and non-printable bytes are stripped before
// classification, matching GRBL's CRLF line endings. Once maxPacketSize
// bytes arrive without a line feed, they are returned as one packet
// (classified like any other line) with a logged warning, rather than
// blocking forever waiting for a terminator that may never come; the bytes
// that follow are read as the next packet.
func (rd *Reader) ReadPacket() (grbl.Packet, error) {
	for {
		raw, err := rd.readLine()
		if err != nil {
			return grbl.Packet{}, err
		}
		if raw == "" {
			continue
		}
		return grbl.ParseLine(raw), nil
	}
}

func (rd *Reader) readLine() (string, error) {
	var lineBytes []byte
	for {
		b, err := rd.br.ReadByte()
		if err != nil {
			return "", err
		}
		if b == '\n' {
			break
		}
		lineBytes = append(lineBytes, b)
		if len(lineBytes) >= maxPacketSize {
			slog.Warn("Truncating oversized line from controller", "length", len(lineBytes))
			break
		}
	}

	clean := bytes.Map(func(r rune) rune {
		if r == '\r' {
			return -1
		}
		if unicode.IsPrint(r) {
			return r
		}
		return -1
	}, lineBytes)

	return string(clean), nil
}
