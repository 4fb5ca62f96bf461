// SPDX-FileCopyrightText: © 2026 Wuild Fabric Contributors
// SPDX-License-Identifier: MIT

// Command coordinatord runs the fabric's coordinator service: the
// in-memory worker registry that remote-tool clients consult to pick a
// tool-server (spec §4.E).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/wuild-go/fabric/internal/clog"
	"github.com/wuild-go/fabric/internal/config"
	"github.com/wuild-go/fabric/internal/coordinator"
)

func main() {
	var configPath string
	var verbose bool
	var help bool

	flag.Usage = usage
	flag.StringVar(&configPath, "c", "coordinatord.yaml", "path to coordinator configuration file")
	flag.BoolVar(&verbose, "l", false, "show logging output (for debugging)")
	flag.BoolVar(&help, "h", false, "show usage information")
	flag.Parse()

	if help {
		usage()
		os.Exit(0)
	}
	if verbose {
		clog.SetVerbose(true)
	}

	var cfg config.Coordinatord
	if err := config.LoadYAML(configPath, &cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	id := uuid.NewString()[:8]
	log := clog.New("coordinator", id)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("terminating coordinator...")
		cancel()
	}()

	svc := coordinator.New(log)
	addr := fmt.Sprintf("%s:%d", cfg.ListenHost, cfg.ListenPort)
	if err := svc.ListenAndServe(ctx, addr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Printf(`usage: coordinatord [-h|--help] [-l] [-c configPath]

Starts the coordinator service that tracks live tool-servers and publishes
registry snapshots to subscribed remote-tool clients and status tools.

Flags:
`)
	flag.PrintDefaults()
}
