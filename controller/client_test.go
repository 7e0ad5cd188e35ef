// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later

package controller

import (
	"bufio"
	"io"
	"net"
	"strings"
	"testing"

	"pendant-bridge/grbl"
)

// fakeGrbl serves one end of a net.Pipe as a trivial stand-in GRBL
// controller: it replies "ok\r\n" to everything it reads a line of.
func fakeGrbl(t *testing.T, conn net.Conn) {
	t.Helper()
	r := bufio.NewReader(conn)
	for {
		_, err := r.ReadString('\n')
		if err != nil {
			return
		}
		if _, err := conn.Write([]byte("ok\r\n")); err != nil {
			return
		}
	}
}

func TestStreamLineWaitsForAck(t *testing.T) {
	clientConn, deviceConn := net.Pipe()
	defer clientConn.Close()
	go fakeGrbl(t, deviceConn)
	defer deviceConn.Close()

	c := newClient(clientConn)
	defer c.Shutdown()

	// 100+2 bytes leave 26 free in the 128-byte buffer, so the 30+2-byte
	// second line can only be sent once the first line's "ok" is consumed.
	if err := c.StreamLine(strings.Repeat("G", 100)); err != nil {
		t.Fatalf("StreamLine: %v", err)
	}
	if err := c.StreamLine(strings.Repeat("G", 30)); err != nil {
		t.Fatalf("StreamLine: %v", err)
	}

	c.bufMu.Lock()
	got := append([]int(nil), c.bufferedLineSizes...)
	c.bufMu.Unlock()
	if len(got) != 1 || got[0] != 32 {
		t.Errorf("bufferedLineSizes = %v, want [32]", got)
	}
}

func TestJogIncrementalAxisRejectsBadAxis(t *testing.T) {
	clientConn, deviceConn := net.Pipe()
	defer clientConn.Close()
	go fakeGrbl(t, deviceConn)
	defer deviceConn.Close()

	c := newClient(clientConn)
	defer c.Shutdown()

	if err := c.JogIncrementalAxis('W', 1, DefaultFeedRate); err == nil {
		t.Error("expected error for invalid axis")
	}
}

func TestJogIncrementalRequiresAnAxis(t *testing.T) {
	clientConn, deviceConn := net.Pipe()
	defer clientConn.Close()
	go fakeGrbl(t, deviceConn)
	defer deviceConn.Close()

	c := newClient(clientConn)
	defer c.Shutdown()

	if err := c.JogIncremental(nil, nil, nil, DefaultFeedRate); err == nil {
		t.Error("expected error when no axes are given")
	}
}

func TestDollarCommandCollectsUntilOk(t *testing.T) {
	clientConn, deviceConn := net.Pipe()
	defer clientConn.Close()

	go func() {
		r := bufio.NewReader(deviceConn)
		_, _ = r.ReadString('\n')
		deviceConn.Write([]byte("$0=10\r\n$1=25\r\nok\r\n"))
		// Keep reading so the client's Shutdown writes do not block.
		_, _ = io.Copy(io.Discard, r)
	}()
	defer deviceConn.Close()

	c := newClient(clientConn)
	defer c.Shutdown()

	reply, err := c.DollarCommand(grbl.DollarViewSettings)
	if err != nil {
		t.Fatalf("DollarCommand: %v", err)
	}
	if reply != "$0=10\n$1=25" {
		t.Errorf("reply = %q, want %q", reply, "$0=10\n$1=25")
	}
}
