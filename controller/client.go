// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package controller speaks the GRBL v1.1 streaming protocol over a serial
// port: character-counted line buffering, realtime commands, dollar
// commands, and the status/input packet queues a driving application
// reads from.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.bug.st/serial"

	"pendant-bridge/grbl"
	"pendant-bridge/serialink"
)

const (
	DefaultBaudRate    = 115200
	DefaultFeedRate    = 500
	inputQueueCapacity = 64
	statusQueueCapacity = 16
)

// link is the subset of serial.Port the client actually uses, which keeps
// tests free of the rest of go.bug.st/serial's port-configuration surface.
type link interface {
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
	Close() error
}

// Client owns a serial connection to a GRBL controller and tracks how many
// bytes GRBL currently has buffered, so lines are only sent when there is
// room for them.
type Client struct {
	port link
	rd   *serialink.Reader

	writeMu sync.Mutex

	bufMu             sync.Mutex
	bufferedLineSizes []int
	ackCh             chan struct{}

	inputQ  chan grbl.Packet
	statusQ chan string

	replyMu sync.Mutex
	replyQ  chan grbl.Packet // non-nil while a DollarCommand reply is pending

	closeOnce sync.Once
	done      chan struct{}
	closed    chan struct{}

	onLine func(dir, line string) // traffic log hook, may be nil
}

// Option configures a Client at Open time.
type Option func(*Client)

// WithTrafficLog registers a callback invoked for every line sent ("down")
// or received ("up").
func WithTrafficLog(f func(dir, line string)) Option {
	return func(c *Client) { c.onLine = f }
}

// Open opens portName at baud and starts the client's receive loop.
func Open(portName string, baud int, opts ...Option) (*Client, error) {
	mode := &serial.Mode{BaudRate: baud}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", portName, err)
	}
	slog.Info("Opened controller serial port", "port", portName, "baud", baud)
	return newClient(port, opts...), nil
}

func newClient(l link, opts ...Option) *Client {
	c := &Client{
		port:    l,
		rd:      serialink.NewReader(l),
		ackCh:   make(chan struct{}, 4096),
		inputQ:  make(chan grbl.Packet, inputQueueCapacity),
		statusQ: make(chan string, statusQueueCapacity),
		done:    make(chan struct{}),
		closed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.receiveLoop()
	return c
}

// StreamLine sends a line of G-code or a '$' command, blocking until GRBL
// has enough buffer space to accept it. The trailing "\r\n" is added here;
// cmd should not include it.
func (c *Client) StreamLine(cmd string) error {
	body := cmd
	numBytes := len(body) + 2 // "\r\n"

	// Drain every ack that has arrived since the last send, popping the
	// oldest outstanding line size for each.
	c.bufMu.Lock()
	for drained := true; drained; {
		select {
		case <-c.ackCh:
			c.popOldestLocked()
		default:
			drained = false
		}
	}
	for numBytes > grbl.RXBufferSize-sum(c.bufferedLineSizes) {
		c.bufMu.Unlock()
		select {
		case <-c.ackCh:
		case <-c.done:
			return errors.New("controller client is shut down")
		}
		c.bufMu.Lock()
		c.popOldestLocked()
	}
	c.bufferedLineSizes = append(c.bufferedLineSizes, numBytes)
	c.bufMu.Unlock()

	return c.writeLine(body)
}

func (c *Client) writeLine(body string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.port.Write([]byte(body + "\r\n")); err != nil {
		return fmt.Errorf("write to controller: %w", err)
	}
	c.logLine("down", body)
	return nil
}

// RealtimeCommand writes a single realtime byte, bypassing all buffer
// accounting — GRBL acts on these immediately regardless of its line
// buffer state.
func (c *Client) RealtimeCommand(b byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.port.Write([]byte{b}); err != nil {
		return fmt.Errorf("write realtime command: %w", err)
	}
	c.logLine("down", fmt.Sprintf("<realtime 0x%02x>", b))
	return nil
}

// DollarCommand sends "$" + suffix and collects every reply line up to the
// terminating "ok", joined by newlines. Only one DollarCommand may be in
// flight at a time; callers are expected to serialize through the
// pendant-input worker (the only caller), matching the single reader this
// reply channel assumes.
func (c *Client) DollarCommand(suffix string) (string, error) {
	replyQ := c.registerReply()
	defer c.unregisterReply()

	if err := c.writeLine("$" + suffix); err != nil {
		return "", err
	}
	return c.collectUntilOk(replyQ)
}

// registerReply installs a dedicated reply channel so the packets that make
// up this command's response are routed here instead of to GetInput's
// general queue — otherwise controllerInputWorker and collectUntilOk would
// race to drain the same inputQ and the terminating "ok" could go to
// whichever lost the race.
func (c *Client) registerReply() chan grbl.Packet {
	replyQ := make(chan grbl.Packet, 32)
	c.replyMu.Lock()
	c.replyQ = replyQ
	c.replyMu.Unlock()
	return replyQ
}

func (c *Client) unregisterReply() {
	c.replyMu.Lock()
	c.replyQ = nil
	c.replyMu.Unlock()
}

func (c *Client) collectUntilOk(replyQ chan grbl.Packet) (string, error) {
	const replyTimeout = 2 * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
	defer cancel()

	var lines []string
	for {
		select {
		case pkt := <-replyQ:
			if pkt.Kind == grbl.KindOk {
				return joinLines(lines), nil
			}
			lines = append(lines, pkt.Raw)
		case <-ctx.Done():
			return joinLines(lines), fmt.Errorf("dollar command reply: %w", ctx.Err())
		case <-c.done:
			return joinLines(lines), errors.New("controller client is shut down")
		}
	}
}

// KillAlarm sends "$X" and returns the controller's reply.
func (c *Client) KillAlarm() (string, error) {
	return c.DollarCommand(grbl.DollarKillAlarm)
}

// RunHomingCycle sends "$H".
func (c *Client) RunHomingCycle() error {
	_, err := c.DollarCommand(grbl.DollarRunHoming)
	return err
}

// JogIncrementalAxis streams a single-axis incremental jog move:
// "$J=G21 G91 <axis><distance> F<feedRate>".
func (c *Client) JogIncrementalAxis(axis byte, distance, feedRate float64) error {
	if axis != 'X' && axis != 'Y' && axis != 'Z' {
		return fmt.Errorf("invalid jog axis %q", axis)
	}
	cmd := fmt.Sprintf("$J=G21 G91 %c%g F%g", axis, distance, feedRate)
	return c.StreamLine(cmd)
}

// JogIncremental streams a multi-axis incremental jog move built from
// whichever of x, y, z are non-nil. At least one axis must be set.
func (c *Client) JogIncremental(x, y, z *float64, feedRate float64) error {
	body := "$J=G21 G91"
	any := false
	axes := []struct {
		name byte
		v    *float64
	}{{'X', x}, {'Y', y}, {'Z', z}}
	for _, a := range axes {
		if a.v != nil {
			body += fmt.Sprintf(" %c%g", a.name, *a.v)
			any = true
		}
	}
	if !any {
		return errors.New("jogIncremental: no axes given")
	}
	body += fmt.Sprintf(" F%g", feedRate)
	return c.StreamLine(body)
}

// GetInput returns the next non-status packet, or false if ctx is done
// first.
func (c *Client) GetInput(ctx context.Context) (grbl.Packet, bool) {
	select {
	case pkt := <-c.inputQ:
		return pkt, true
	case <-ctx.Done():
		return grbl.Packet{}, false
	case <-c.done:
		return grbl.Packet{}, false
	}
}

// GetStatus returns the next raw "<...>" status line, or false if ctx is
// done first.
func (c *Client) GetStatus(ctx context.Context) (string, bool) {
	select {
	case s := <-c.statusQ:
		return s, true
	case <-ctx.Done():
		return "", false
	case <-c.done:
		return "", false
	}
}

// Shutdown asks GRBL for a final status and help prompt, then closes the
// port. Matches the original shutdown sequence ("?" then "$" before
// closing), which flushes any pending realtime state cleanly.
func (c *Client) Shutdown() {
	c.closeOnce.Do(func() {
		_ = c.RealtimeCommand(grbl.CurrentStatus)
		_ = c.writeLine("$")
		close(c.done)
		c.port.Close()
		<-c.closed
	})
}

func (c *Client) receiveLoop() {
	defer close(c.closed)
	for {
		pkt, err := c.rd.ReadPacket()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			slog.Error("Controller read error", "error", err)
			return
		}
		c.logLine("up", pkt.Raw)
		c.dispatch(pkt)
	}
}

func (c *Client) dispatch(pkt grbl.Packet) {
	switch pkt.Kind {
	case grbl.KindOk:
		c.ack()
		c.pushInput(pkt)
	case grbl.KindError:
		slog.Warn("Controller reported error", "code", pkt.Code, "description", grbl.ErrorDescription(pkt.Code, true))
		c.ack()
		c.pushInput(pkt)
	case grbl.KindAlarm:
		slog.Error("Controller reported alarm", "code", pkt.Code, "description", grbl.AlarmDescription(pkt.Code, true))
		c.ack()
		c.pushInput(pkt)
	case grbl.KindStatus:
		select {
		case c.statusQ <- pkt.Raw:
		default:
			slog.Error("Status queue full, dropping status report")
		}
	default:
		c.pushInput(pkt)
	}
}

// pushInput delivers a non-status packet to whichever consumer currently
// owns it: a pending DollarCommand's reply channel if one is registered
// (its reply lines must not be stolen by GetInput's general reader), or the
// general inputQ otherwise.
func (c *Client) pushInput(pkt grbl.Packet) {
	c.replyMu.Lock()
	replyQ := c.replyQ
	c.replyMu.Unlock()
	if replyQ != nil {
		select {
		case replyQ <- pkt:
		default:
			slog.Error("Dollar command reply queue full, dropping packet", "kind", pkt.Kind.String())
		}
		return
	}

	select {
	case c.inputQ <- pkt:
	default:
		slog.Error("Input queue full, dropping packet", "kind", pkt.Kind.String())
	}
}

func (c *Client) ack() {
	select {
	case c.ackCh <- struct{}{}:
	default:
		slog.Warn("Ack channel full; dropping ack")
	}
}

// popOldestLocked drops the oldest outstanding line-size entry. Called with
// bufMu held. An ack with nothing outstanding is a protocol desync — logged
// and ignored rather than treated as fatal, since this is a best-effort
// bridge, not the authority on GRBL's internal state.
func (c *Client) popOldestLocked() {
	if len(c.bufferedLineSizes) == 0 {
		slog.Warn("Ack received with no buffered line outstanding; ignoring")
		return
	}
	c.bufferedLineSizes = c.bufferedLineSizes[1:]
}

func (c *Client) logLine(dir, line string) {
	if c.onLine != nil {
		c.onLine(dir, line)
	}
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}

func sum(xs []int) int {
	total := 0
	for _, x := range xs {
		total += x
	}
	return total
}
