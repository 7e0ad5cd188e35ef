// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"

	"pendant-bridge/controller"
	"pendant-bridge/grbl"
)

// MaxMacros is the number of user-definable Macro-N pendant keys.
const MaxMacros = 10

// Macro is one user-defined Macro-N binding: a list of magic commands to
// run before the macro's own G-code line, the line itself, and a list of
// magic commands to run after.
type Macro struct {
	Name        string
	Description string
	Before      []string
	After       []string
	Commands    string
}

// macroSpec is the on-disk YAML shape for one macro entry. Commands is a
// single G-code line (or empty/absent), not a list — matching the pendant's
// one-command-per-macro model.
type macroSpec struct {
	Description string `yaml:"description"`
	Before      string `yaml:"before"`
	After       string `yaml:"after"`
	Commands    string `yaml:"commands"`
}

// LoadMacroFile reads a YAML file of "Macro-N" entries and returns them
// indexed by N (index 0 unused, matching the pendant's 1-based macro
// keys). A macro name that doesn't parse as "Macro-<n>" with 1<=n<=MaxMacros
// is skipped with a logged warning rather than aborting the whole load —
// one malformed entry shouldn't cost the rest of the file.
func LoadMacroFile(path string) ([MaxMacros + 1]*Macro, error) {
	var macros [MaxMacros + 1]*Macro

	data, err := os.ReadFile(path)
	if err != nil {
		return macros, fmt.Errorf("read macro file %s: %w", path, err)
	}

	var raw map[string]macroSpec
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return macros, fmt.Errorf("parse macro file %s: %w", path, err)
	}

	for name, spec := range raw {
		n, ok := parseMacroName(name)
		if !ok {
			slog.Warn("Skipping macro with unrecognized name", "name", name)
			continue
		}
		if n < 1 || n > MaxMacros {
			slog.Warn("Skipping macro with out-of-range number", "name", name, "number", n)
			continue
		}
		macros[n] = &Macro{
			Name:        name,
			Description: spec.Description,
			Before:      splitFields(spec.Before),
			After:       splitFields(spec.After),
			Commands:    spec.Commands,
		}
	}
	return macros, nil
}

func parseMacroName(name string) (int, bool) {
	const prefix = "Macro-"
	if !strings.HasPrefix(name, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(name, prefix))
	if err != nil {
		return 0, false
	}
	return n, true
}

func splitFields(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}

// magicCommand is a zero-argument diagnostic or dollar/realtime action,
// invoked by name from a macro's before/after list.
type magicCommand func() (string, error)

// buildMagicCommands wires the fixed set of diagnostic and GRBL query
// commands a macro can invoke by name.
func buildMagicCommands(ctlr *controller.Client, state *sharedState) map[string]magicCommand {
	dollar := func(suffix string) magicCommand {
		return func() (string, error) { return ctlr.DollarCommand(suffix) }
	}
	realtime := func(b byte) magicCommand {
		return func() (string, error) { return "", ctlr.RealtimeCommand(b) }
	}

	return map[string]magicCommand{
		"VIEW_SETTINGS":   dollar(grbl.DollarViewSettings),
		"VIEW_PARAMETERS": dollar(grbl.DollarViewParameters),
		"VIEW_PARSER":     dollar(grbl.DollarViewParser),
		"VIEW_BUILD":      dollar(grbl.DollarViewBuild),
		"VIEW_STARTUPS":   dollar(grbl.DollarViewStartups),
		"HELP":            func() (string, error) { return ctlr.DollarCommand("") },
		"KILL_ALARM":      func() (string, error) { return ctlr.KillAlarm() },
		"CYCLE_START":     realtime(grbl.CycleStart),
		"FEED_HOLD":       realtime(grbl.FeedHold),
		"STATUS":          realtime(grbl.CurrentStatus),
		"RESET":           realtime(grbl.ResetGrbl),
		"JOG_CANCEL":      realtime(grbl.JogCancel),
		"DUMP_STATE":      dumpStateCommand(state),
	}
}

// dumpStateCommand reports the running worker goroutines and the shared
// motion/axis state, the Go analogue of the original's
// threading.enumerate() dump — Go has no equivalent goroutine
// introspection worth surfacing, so this reports what this program itself
// tracks instead.
func dumpStateCommand(state *sharedState) magicCommand {
	return func() (string, error) {
		return fmt.Sprintf(
			"workers: pendantInput, controllerInput, controllerStatus, statusPoll (goroutines=%d)\nmotionMode=%v axisMode=%v",
			runtime.NumGoroutine(), state.MotionMode(), state.AxisMode(),
		), nil
	}
}

// executeMagic runs each named magic command in order and joins their
// replies with newlines. An unknown command name is logged and skipped.
func executeMagic(commands map[string]magicCommand, names []string) string {
	var out []string
	for _, name := range names {
		cmd, ok := commands[name]
		if !ok {
			slog.Warn("Unknown magic command", "name", name)
			continue
		}
		reply, err := cmd()
		if err != nil {
			slog.Warn("Magic command failed", "name", name, "error", err)
			continue
		}
		if reply != "" {
			out = append(out, reply)
		}
	}
	return strings.Join(out, "\n")
}
