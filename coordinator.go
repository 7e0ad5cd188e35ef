// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"pendant-bridge/controller"
	"pendant-bridge/grbl"
	"pendant-bridge/hidlink"
	"pendant-bridge/pendant"
)

const (
	// jogSpeed is the feed rate used for STEP-mode jogs.
	jogSpeed = 500
	// maxSpeed bounds CONTINUOUS-mode jog feed rates.
	maxSpeed = 1000
	// statusPollInterval is how often the status poller requests a fresh
	// "?" report from the controller.
	statusPollInterval = 500 * time.Millisecond
)

// Coordinator wires the pendant and controller clients together: it runs
// the four long-running workers and owns the shared motion/axis state and
// the macro engine.
type Coordinator struct {
	pend  *pendant.Client
	ctlr  *controller.Client
	host  *Host
	state *sharedState

	macros [MaxMacros + 1]*Macro
	magic  map[string]magicCommand

	spindleOn       bool
	lastFeedSpeed   float64
	lastSpindleSpeed int

	statusCancel  context.CancelFunc
	pendantCancel context.CancelFunc
	wg            sync.WaitGroup

	pendantDone chan struct{} // closed once pendantInputWorker returns
}

// NewCoordinator starts all four workers and returns without waiting for
// them.
func NewCoordinator(pend *pendant.Client, ctlr *controller.Client, host *Host, macros [MaxMacros + 1]*Macro, initialMode pendant.MotionMode) *Coordinator {
	c := &Coordinator{
		pend:        pend,
		ctlr:        ctlr,
		host:        host,
		state:       newSharedState(initialMode),
		macros:      macros,
		pendantDone: make(chan struct{}),
	}
	c.magic = buildMagicCommands(ctlr, c.state)

	statusCtx, statusCancel := context.WithCancel(context.Background())
	pendantCtx, pendantCancel := context.WithCancel(context.Background())
	c.statusCancel = statusCancel
	c.pendantCancel = pendantCancel

	c.wg.Add(4)
	go func() { defer c.wg.Done(); c.statusPollWorker(statusCtx) }()
	go func() { defer c.wg.Done(); c.pendantInputWorker(pendantCtx) }()
	go func() { defer c.wg.Done(); c.controllerInputWorker() }()
	go func() { defer c.wg.Done(); c.controllerStatusWorker() }()

	return c
}

// Done returns a channel that's closed once the pendant-input worker has
// stopped, either because PendantReset/ApplicationExit was pressed or
// because Shutdown cancelled it. A dropped pendant connection does not
// close it: the worker keeps waiting for input. The caller's main loop
// blocks on this to know when to start shutting the whole program down.
func (c *Coordinator) Done() <-chan struct{} {
	return c.pendantDone
}

// Shutdown stops the workers in the same order the pendant-bridge's
// ancestor project used: status poller first, then pendant input, then the
// controller link (which unblocks the still-running controller
// input/status readers), finally joining everything.
func (c *Coordinator) Shutdown() {
	slog.Debug("Shutting down status poller")
	c.statusCancel()

	slog.Debug("Shutting down pendant input worker")
	c.pendantCancel()

	slog.Debug("Shutting down controller")
	c.ctlr.Shutdown()

	slog.Debug("Shutting down host")
	c.host.Shutdown(false)

	slog.Debug("Shutting down pendant")
	c.pend.Shutdown()

	c.wg.Wait()
}

func (c *Coordinator) statusPollWorker(ctx context.Context) {
	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.ctlr.RealtimeCommand(grbl.CurrentStatus); err != nil {
				slog.Error("Failed to poll controller status", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Coordinator) pendantInputWorker(ctx context.Context) {
	defer close(c.pendantDone)
	for {
		input, ok := c.pend.NextInput(ctx)
		if !ok {
			return
		}

		axisMode := pendant.DeriveAxisMode(input.Axis)
		c.state.SetAxisMode(axisMode)

		key, _ := pendant.DecodeKey(input.Key1, input.Key2)
		if key != "" {
			if exit := c.dispatchKey(key); exit {
				return
			}
		}

		if input.Jog != 0 && axisMode == pendant.AxisXYZ {
			c.dispatchJog(input)
		} else if axisMode == pendant.AxisABC {
			slog.Warn("Rotary-axis jogging is not implemented", "axis", input.Axis)
		}
	}
}

// dispatchKey runs the action bound to one decoded pendant key. It returns
// true when the pendant-input worker should stop (PendantReset re-arms the
// pendant and exits this worker; ApplicationExit tears the whole process
// down via the caller noticing Done() closes).
func (c *Coordinator) dispatchKey(key string) (exit bool) {
	switch key {
	case "Reset":
		if err := c.ctlr.RealtimeCommand(grbl.ResetGrbl); err != nil {
			slog.Error("Failed to send controller reset", "error", err)
		}
		if _, err := c.ctlr.KillAlarm(); err != nil {
			slog.Error("Failed to kill alarm lock", "error", err)
		}
	case "Stop":
		if err := c.ctlr.RealtimeCommand(grbl.FeedHold); err != nil {
			slog.Error("Failed to send feed hold", "error", err)
		}
	case "StartPause":
		if err := c.ctlr.RealtimeCommand(grbl.CycleStart); err != nil {
			slog.Error("Failed to send cycle start", "error", err)
		}
	case "Feed+", "Feed-", "Spindle+", "Spindle-", "M-Home", "Safe-Z", "W-Home", "Probe-Z":
		slog.Info("Key pressed, action not yet implemented", "key", key)
	case "S-on/off":
		c.spindleOn = !c.spindleOn
		cmd := "M5"
		if c.spindleOn {
			cmd = "M3"
		}
		if err := c.ctlr.StreamLine(cmd); err != nil {
			slog.Error("Failed to toggle spindle", "error", err)
		}
	case "Fn":
		// Modifier key by itself; nothing to do.
	case "Continuous":
		c.state.SetMotionMode(pendant.ModeContinuous)
	case "Step":
		c.state.SetMotionMode(pendant.ModeStep)
	case "PendantReset":
		if err := c.pend.Reset(c.state.MotionMode()); err != nil {
			slog.Error("Failed to reset pendant", "error", err)
		}
		return true
	case "ApplicationExit":
		return true
	default:
		if strings.HasPrefix(key, "Macro-") {
			c.runMacro(key)
			return false
		}
		slog.Warn("Unimplemented key", "key", key)
	}
	return false
}

func (c *Coordinator) runMacro(key string) {
	n, err := strconv.Atoi(strings.TrimPrefix(key, "Macro-"))
	if err != nil || n < 1 || n > MaxMacros {
		slog.Error("Malformed macro key", "key", key)
		return
	}
	macro := c.macros[n]
	if macro == nil {
		slog.Error("No macro bound to key", "key", key)
		return
	}
	slog.Debug("Running macro", "name", macro.Name, "description", macro.Description)

	if reply := executeMagic(c.magic, macro.Before); reply != "" {
		slog.Info("Macro before-commands reply", "reply", reply)
	}
	if macro.Commands != "" {
		if err := c.ctlr.StreamLine(macro.Commands); err != nil {
			slog.Error("Failed to stream macro command", "command", macro.Commands, "error", err)
		}
	}
	if reply := executeMagic(c.magic, macro.After); reply != "" {
		slog.Info("Macro after-commands reply", "reply", reply)
	}
}

func (c *Coordinator) dispatchJog(input hidlink.InputReport) {
	incr, ok := pendant.DecodeIncrement(c.state.MotionMode(), input.Incr)
	if !ok {
		return
	}
	axisName, ok := pendant.DecodeAxis(input.Axis)
	if !ok || len(axisName) != 1 {
		return
	}
	axis := axisName[0]

	var distance, feedRate float64
	switch c.state.MotionMode() {
	case pendant.ModeStep:
		distance = float64(input.Jog) * incr
		feedRate = jogSpeed
	case pendant.ModeContinuous:
		sign := 1.0
		if input.Jog < 0 {
			sign = -1.0
		}
		distance = sign
		feedRate = maxSpeed * incr
	default:
		return
	}

	if err := c.ctlr.JogIncrementalAxis(axis, distance, feedRate); err != nil {
		slog.Error("Failed to stream jog command", "axis", string(axis), "error", err)
	}
}

func (c *Coordinator) controllerInputWorker() {
	ctx := context.Background()
	for {
		pkt, ok := c.ctlr.GetInput(ctx)
		if !ok {
			return
		}
		slog.Debug("Controller input", "kind", pkt.Kind.String(), "raw", pkt.Raw)
		// TODO: a Startup or Feedback packet should trigger a pendant
		// display reset; not yet wired up.
	}
}

func (c *Coordinator) controllerStatusWorker() {
	ctx := context.Background()
	for {
		raw, ok := c.ctlr.GetStatus(ctx)
		if !ok {
			return
		}
		st := parseStatusLine(raw)
		c.applyStatus(st)
	}
}

// controllerStatus holds the fields this bridge understands from one
// GRBL "<...>" status report.
type controllerStatus struct {
	coordinateSpace pendant.CoordinateSpace
	coordinates     [3]float64
	haveCoordinates bool
	feedSpeed       float64
	haveFeedSpeed   bool
	spindleSpeed    int
	haveSpindle     bool
}

// parseStatusLine parses one stripped "<...>" status report into its
// recognized fields. Unrecognized field names are logged and ignored —
// GRBL's status report is a moving target across build options, so an
// unknown field should never be fatal.
func parseStatusLine(raw string) controllerStatus {
	var st controllerStatus
	body := strings.TrimSuffix(strings.TrimPrefix(raw, "<"), ">")
	for _, part := range strings.Split(body, "|") {
		kv := strings.SplitN(part, ":", 2)
		name := kv[0]
		var value string
		if len(kv) == 2 {
			value = kv[1]
		}
		switch name {
		case "MPos", "WPos":
			coords := strings.Split(value, ",")
			if len(coords) != 3 {
				continue
			}
			for i, s := range coords {
				v, err := strconv.ParseFloat(s, 64)
				if err != nil {
					continue
				}
				st.coordinates[i] = v
			}
			st.haveCoordinates = true
			if name == "MPos" {
				st.coordinateSpace = pendant.SpaceMachine
			} else {
				st.coordinateSpace = pendant.SpaceWorkpiece
			}
		case "Bf":
			// Planner/RX buffer counts: not surfaced on the pendant display.
		case "Ln":
			// Line number: not surfaced on the pendant display.
		case "FS":
			fields := strings.Split(value, ",")
			if len(fields) == 2 {
				if f, err := strconv.ParseFloat(fields[0], 64); err == nil {
					st.feedSpeed = f
					st.haveFeedSpeed = true
				}
				if s, err := strconv.Atoi(fields[1]); err == nil {
					st.spindleSpeed = s
					st.haveSpindle = true
				}
			}
		case "F":
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				st.feedSpeed = f
				st.haveFeedSpeed = true
			}
		case "WCO", "A", "Ov", "Pn":
			// Captured by GRBL but not parsed further here; TODO if the
			// pendant display ever needs work-coordinate offsets, axis
			// state letters, override percentages, or pin state.
		default:
			slog.Debug("Unimplemented status field", "field", name)
		}
	}
	return st
}

func (c *Coordinator) applyStatus(st controllerStatus) {
	coords := [3]float64{}
	if c.state.AxisMode() == pendant.AxisXYZ && st.haveCoordinates {
		coords = st.coordinates
	}

	feedForDisplay := 0.0
	if st.haveFeedSpeed && st.feedSpeed != c.lastFeedSpeed {
		feedForDisplay = st.feedSpeed
	}
	spindleForDisplay := 0
	if st.haveSpindle {
		spindleForDisplay = st.spindleSpeed
	}

	err := c.pend.UpdateDisplay(
		c.state.MotionMode(),
		st.coordinateSpace,
		coords,
		uint16(math.Max(0, feedForDisplay)),
		uint16(math.Max(0, float64(spindleForDisplay))),
	)
	if err != nil {
		slog.Error("Failed to update pendant display", "error", err)
	}

	if st.haveFeedSpeed {
		c.lastFeedSpeed = st.feedSpeed
	}
	if st.haveSpindle {
		c.lastSpindleSpeed = st.spindleSpeed
	}
}
