// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later

package pendant

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cesanta/hid"

	"pendant-bridge/hidlink"
)

// VendorID and ProductID identify the XHC WHB04B-4's USB RF receiver.
const (
	VendorID  = 0x10ce
	ProductID = 0xeb93
)

// outputReportID is the HID report-id prefixed to every display write.
const outputReportID = 0x06

// Client drives the pendant's RF receiver: it decodes input reports and
// encodes display updates.
type Client struct {
	dev    hid.Device
	inputs chan hidlink.InputReport

	onReport func(dir, desc string) // traffic log hook, may be nil
}

// Option configures a Client at Open time.
type Option func(*Client)

// WithTrafficLog registers a callback invoked for every report sent
// ("down") or received ("up").
func WithTrafficLog(f func(dir, desc string)) Option {
	return func(c *Client) { c.onReport = f }
}

// Open finds the first matching pendant receiver and brings it out of
// reset at the given motion mode. If more than one receiver is attached,
// the first one enumerated is used and a warning is logged. Receivers are
// matched by VendorID/ProductID only; the device's manufacturer string is
// not checked.
func Open(motionMode MotionMode, opts ...Option) (*Client, error) {
	devices, err := hid.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerate HID devices: %w", err)
	}
	var info *hid.DeviceInfo
	matched := 0
	for _, d := range devices {
		if d.VendorID == VendorID && d.ProductID == ProductID {
			matched++
			if info == nil {
				info = d
			}
		}
	}
	if info == nil {
		return nil, fmt.Errorf("no pendant receiver found (VID=0x%04x PID=0x%04x)", VendorID, ProductID)
	}
	if matched > 1 {
		slog.Warn("More than one XHC pendant receiver found, using the first", "count", matched)
	}

	dev, err := info.Open()
	if err != nil {
		return nil, fmt.Errorf("open pendant receiver: %w", err)
	}

	c := &Client{
		dev:    dev,
		inputs: make(chan hidlink.InputReport, 8),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.readLoop()
	if err := c.Reset(motionMode); err != nil {
		dev.Close()
		return nil, fmt.Errorf("reset pendant: %w", err)
	}
	return c, nil
}

// Reset sends the pendant's reset banner followed by the initial display
// at motionMode. Both packets carry zero coordinates, feed rate and spindle
// speed, so the display shows zeros until the next UpdateDisplay.
func (c *Client) Reset(motionMode MotionMode) error {
	if err := c.writeDisplay(hidlink.BuildDisplayPayload(byte(motionMode), 0, [3]float64{}, 0, 0, true)); err != nil {
		return err
	}
	return c.writeDisplay(hidlink.BuildDisplayPayload(byte(motionMode), 0, [3]float64{}, 0, 0, false))
}

// UpdateDisplay pushes one display frame to the pendant's LCD.
func (c *Client) UpdateDisplay(motionMode MotionMode, space CoordinateSpace, coords [3]float64, feedRate, spindleSpeed uint16) error {
	return c.writeDisplay(hidlink.BuildDisplayPayload(byte(motionMode), byte(space), coords, feedRate, spindleSpeed, false))
}

func (c *Client) writeDisplay(payload [hidlink.DisplayPayloadSize]byte) error {
	chunks := hidlink.FragmentDisplayPayload(payload)
	for _, chunk := range chunks {
		report := make([]byte, 1+len(chunk))
		report[0] = outputReportID
		copy(report[1:], chunk[:])
		if err := c.dev.Write(report); err != nil {
			return fmt.Errorf("write display report: %w", err)
		}
	}
	if c.onReport != nil {
		c.onReport("down", "display update")
	}
	return nil
}

func (c *Client) readLoop() {
	for raw := range c.dev.ReadCh() {
		report, err := hidlink.ParseInputReport(raw)
		if err != nil {
			slog.Warn("Malformed pendant input report", "error", err)
			continue
		}
		if report.IsNull() {
			continue
		}
		if c.onReport != nil {
			c.onReport("up", fmt.Sprintf("key1=0x%02x key2=0x%02x axis=0x%02x", report.Key1, report.Key2, report.Axis))
		}
		select {
		case c.inputs <- report:
		default:
			slog.Warn("Pendant input queue full, dropping report")
		}
	}
	if err := c.dev.ReadError(); err != nil {
		slog.Error("Pendant receiver read error", "error", err)
	}
}

// NextInput returns the next non-null input report, or false if ctx is
// done first.
func (c *Client) NextInput(ctx context.Context) (hidlink.InputReport, bool) {
	select {
	case r := <-c.inputs:
		return r, true
	case <-ctx.Done():
		return hidlink.InputReport{}, false
	}
}

// Shutdown closes the receiver connection.
func (c *Client) Shutdown() {
	c.dev.Close()
}
