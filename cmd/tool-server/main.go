// SPDX-FileCopyrightText: © 2026 Wuild Fabric Contributors
// SPDX-License-Identifier: MIT

// Command tool-server runs a fabric worker (spec §4.G): it advertises its
// configured toolset and load to its coordinators and compiles jobs
// dispatched to it by remote-tool clients.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/wuild-go/fabric/internal/clog"
	"github.com/wuild-go/fabric/internal/config"
	"github.com/wuild-go/fabric/internal/coordclient"
	"github.com/wuild-go/fabric/internal/executor"
	"github.com/wuild-go/fabric/internal/toolserver"
	"github.com/wuild-go/fabric/internal/toolset"
	"github.com/wuild-go/fabric/internal/version"
)

func main() {
	var configPath string
	var verbose bool
	var help bool

	flag.Usage = usage
	flag.StringVar(&configPath, "c", "tool-server.yaml", "path to worker configuration file")
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

	var cfg config.Worker
	if err := config.LoadYAML(configPath, &cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ts, err := toolset.LoadFile(cfg.ToolsFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	id := uuid.NewString()[:8]
	log := clog.New("tool-server", id)

	localExec := executor.New(cfg.ThreadCount, cfg.ScratchDir)
	checker := version.New(localExec)
	versions := checker.ProbeAll(ts, resolveExecutable)

	var coord *coordclient.Client
	if len(cfg.Coordinator.Hosts) > 0 {
		coord = coordclient.New(coordclient.Config{
			Hosts: cfg.Coordinator.Hosts,
			Port:  cfg.Coordinator.Port,
			Mode:  resolveMode(cfg.Coordinator.Mode),
		}, log, nil)
	}

	srv := toolserver.New(toolserver.Config{
		ListenHost:           cfg.ListenHost,
		ListenPort:           cfg.ListenPort,
		ThreadCount:          cfg.ThreadCount,
		Compression:          cfg.Compression.Resolve(),
		UseClientCompression: cfg.UseClientCompression,
		HostAllowlist:        cfg.HostAllowlist,
		SendInfoInterval:     cfg.SendInfoInterval,
	}, ts, localExec, coord, log, versions)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("terminating tool-server...")
		cancel()
		localExec.Close()
	}()

	if err := srv.ListenAndServe(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolveExecutable resolves a configured tool to a concrete executable
// path by trying each of its recognized names in order, matching the first
// one found on PATH.
func resolveExecutable(t toolset.Tool) (string, error) {
	for _, name := range t.Names {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("tool-server: no name of tool %q resolves on PATH", t.ID)
}

func resolveMode(m string) coordclient.Mode {
	if m == "all" {
		return coordclient.All
	}
	return coordclient.Any
}

func usage() {
	fmt.Printf(`usage: tool-server [-h|--help] [-l] [-c configPath]

Starts a tool-server (worker) that advertises its configured toolset and
load to its coordinators and compiles jobs dispatched to it.

Flags:
`)
	flag.PrintDefaults()
}
