// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"sync/atomic"

	"pendant-bridge/pendant"
)

// sharedState holds the motion/axis mode the pendant-input worker is the
// sole writer of; every other worker only reads it. Atomics make those
// concurrent reads safe; the single-writer rule itself is a convention that
// this type does not enforce.
type sharedState struct {
	motionMode atomic.Int32
	axisMode   atomic.Int32
}

func newSharedState(initial pendant.MotionMode) *sharedState {
	s := &sharedState{}
	s.motionMode.Store(int32(initial))
	s.axisMode.Store(int32(pendant.AxisOff))
	return s
}

func (s *sharedState) MotionMode() pendant.MotionMode {
	return pendant.MotionMode(s.motionMode.Load())
}

func (s *sharedState) SetMotionMode(m pendant.MotionMode) {
	s.motionMode.Store(int32(m))
}

func (s *sharedState) AxisMode() pendant.AxisMode {
	return pendant.AxisMode(s.axisMode.Load())
}

func (s *sharedState) SetAxisMode(m pendant.AxisMode) {
	s.axisMode.Store(int32(m))
}
