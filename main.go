// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"pendant-bridge/controller"
	"pendant-bridge/pendant"
)

func main() {
	portName := flag.String("port", "", "Controller serial port (e.g. /dev/ttyUSB0 or COM3)")
	baud := flag.Int("baud", controller.DefaultBaudRate, "Controller serial baud rate")
	macroFile := flag.String("macro-file", "", "Path to a macro YAML file (optional)")
	logDir := flag.String("log-dir", "logs", "Directory for traffic log files")
	verbose := flag.Bool("verbose", false, "Verbose (debug) logging")
	flag.Parse()

	if *verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	if *portName == "" {
		slog.Error("-port is required")
		os.Exit(1)
	}

	var macros [MaxMacros + 1]*Macro
	if *macroFile != "" {
		loaded, err := LoadMacroFile(*macroFile)
		if err != nil {
			slog.Error("Failed to load macro file", "path", *macroFile, "error", err)
			os.Exit(1)
		}
		macros = loaded
	}

	traffic := NewTrafficLog(*logDir)
	defer traffic.Close()

	ctlr, err := controller.Open(*portName, *baud, controller.WithTrafficLog(traffic.Controller()))
	if err != nil {
		slog.Error("Failed to open controller", "port", *portName, "error", err)
		os.Exit(1)
	}
	defer ctlr.Shutdown()

	pend, err := pendant.Open(pendant.ModeStep, pendant.WithTrafficLog(traffic.Pendant()))
	if err != nil {
		slog.Error("Failed to open pendant", "error", err)
		os.Exit(1)
	}
	defer pend.Shutdown()

	host := NewHost()
	coord := NewCoordinator(pend, ctlr, host, macros, pendant.ModeStep)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	slog.Info("pendant-bridge running", "port", *portName, "baud", *baud)

	select {
	case sig := <-sigCh:
		slog.Info("Received signal, shutting down", "signal", sig.String())
	case <-coord.Done():
		slog.Info("Pendant-input worker exited, shutting down")
	}

	coord.Shutdown()
	slog.Info("pendant-bridge stopped")
}
