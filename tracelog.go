// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"
)

// formatLogTime formats a time.Time with local offset and millisecond
// precision.
func formatLogTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05.000-07:00")
}

// sessionNamePattern matches one rotated session log's filename.
var sessionNamePattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})-sess(\d+)-serial\.txt$`)

// TrafficLog appends every line/report sent to or received from the
// controller and pendant links to a per-session file, rotated once per
// process start. It exists purely for field diagnostics — nothing in this
// program reads its own log back.
type TrafficLog struct {
	file    *os.File
	mu      sync.Mutex
	isDirty bool
	done    chan struct{}
}

// NewTrafficLog creates (or appends to) a new rotated session file under
// logDir. If logDir is empty, or the directory/file cannot be created, it
// returns a TrafficLog whose writes are silently no-ops — a missing log
// directory should never stop the bridge from running.
func NewTrafficLog(logDir string) *TrafficLog {
	tl := &TrafficLog{done: make(chan struct{})}
	if logDir == "" {
		return tl
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		slog.Error("Failed to create log directory", "dir", logDir, "error", err)
		return tl
	}

	now := time.Now()
	filename := tl.findNextFileName(logDir, now)
	if filename == "" {
		slog.Error("Failed to read log directory, continuing without a log file", "dir", logDir)
		return tl
	}

	logPath := filepath.Join(logDir, filename)
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		slog.Error("Failed to create log file", "path", logPath, "error", err)
		return tl
	}

	tl.file = file
	slog.Info("Created traffic log file", "path", logPath)

	go tl.flushLoop()
	return tl
}

// findNextFileName scans logDir for today's existing session files and
// returns the next available name.
func (tl *TrafficLog) findNextFileName(logDir string, now time.Time) string {
	today := now.Format("2006-01-02")

	entries, err := os.ReadDir(logDir)
	if err != nil {
		return ""
	}
	maxSession := -1
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		matches := sessionNamePattern.FindStringSubmatch(entry.Name())
		if len(matches) != 3 || matches[1] != today {
			continue
		}
		if n, err := strconv.Atoi(matches[2]); err == nil && n > maxSession {
			maxSession = n
		}
	}
	return fmt.Sprintf("%s-sess%d-serial.txt", today, maxSession+1)
}

func (tl *TrafficLog) flushLoop() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			tl.mu.Lock()
			if tl.isDirty && tl.file != nil {
				tl.file.Sync()
				tl.isDirty = false
			}
			tl.mu.Unlock()
		case <-tl.done:
			return
		}
	}
}

// Controller returns a callback suitable for controller.WithTrafficLog,
// tagging lines with the "ctlr" source.
func (tl *TrafficLog) Controller() func(dir, line string) {
	return func(dir, line string) { tl.record("ctlr", dir, line) }
}

// Pendant returns a callback suitable for pendant.WithTrafficLog, tagging
// reports with the "pend" source.
func (tl *TrafficLog) Pendant() func(dir, desc string) {
	return func(dir, desc string) { tl.record("pend", dir, desc) }
}

func (tl *TrafficLog) record(source, dir, payload string) {
	if tl.file == nil {
		return
	}

	tl.mu.Lock()
	defer tl.mu.Unlock()

	line := fmt.Sprintf("%s %s %s %s\n", formatLogTime(time.Now()), source, dir, payload)
	if _, err := tl.file.WriteString(line); err != nil {
		slog.Error("Failed to write traffic log", "error", err)
		return
	}
	tl.isDirty = true
}

// Close flushes and closes the log file, if one was opened.
func (tl *TrafficLog) Close() {
	if tl.file == nil {
		return
	}
	close(tl.done)

	tl.mu.Lock()
	defer tl.mu.Unlock()
	if tl.isDirty {
		tl.file.Sync()
	}
	tl.file.Close()
	tl.file = nil
}
