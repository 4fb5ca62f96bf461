// SPDX-FileCopyrightText: © 2026 Wuild Fabric Contributors
// SPDX-License-Identifier: MIT

// Command tool-client is the fabric's front-end: invoked in place of a
// compiler, it classifies the invocation, splits it into a local
// preprocess half and a remote compile half when possible, and otherwise
// falls through to running the original command locally (spec §4.H, §6).
//
// Usage: tool-client [flags] -- <executable> <compiler arguments...>
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"

	"github.com/google/uuid"

	"github.com/wuild-go/fabric/internal/clog"
	"github.com/wuild-go/fabric/internal/config"
	"github.com/wuild-go/fabric/internal/coordclient"
	"github.com/wuild-go/fabric/internal/dispatch"
	"github.com/wuild-go/fabric/internal/executor"
	"github.com/wuild-go/fabric/internal/loadgate"
	"github.com/wuild-go/fabric/internal/remoteclient"
	"github.com/wuild-go/fabric/internal/toolset"
	"github.com/wuild-go/fabric/internal/version"
)

func main() {
	var configPath string
	var verbose bool
	var help bool

	flag.Usage = usage
	flag.StringVar(&configPath, "c", "tool-client.yaml", "path to client configuration file")
	flag.BoolVar(&verbose, "l", false, "show logging output (for debugging)")
	flag.BoolVar(&help, "h", false, "show usage information")
	flag.Parse()

	rest := flag.Args()
	if help || len(rest) == 0 {
		usage()
		if help {
			os.Exit(0)
		}
		os.Exit(1)
	}
	if verbose {
		clog.SetVerbose(true)
	}

	executableName := rest[0]
	compilerArgs := rest[1:]

	var cfg config.Client
	if err := config.LoadYAML(configPath, &cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if cfg.ClientID == "" {
		cfg.ClientID = uuid.NewString()
	}

	ts, err := toolset.LoadFile(cfg.ToolsFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := clog.New("tool-client", cfg.ClientID[:min(8, len(cfg.ClientID))])

	if _, ok := ts.ByExecutableName(executableName); !ok {
		os.Exit(dispatch.RunPassthrough(os.Stdout, executableName, compilerArgs))
	}

	localExec := executor.New(cfg.LocalWorkers, cfg.ScratchDir)
	checker := version.New(localExec)
	versions := checker.ProbeAll(ts, func(t toolset.Tool) (string, error) {
		for _, name := range t.Names {
			if path, err := exec.LookPath(name); err == nil {
				return path, nil
			}
		}
		return "", fmt.Errorf("tool-client: no name of tool %q resolves on PATH", t.ID)
	})

	remote := remoteclient.New(remoteclient.Config{
		ClientID:           cfg.ClientID,
		RequestTimeout:     cfg.RequestTimeout,
		QueueTimeout:       cfg.QueueTimeout,
		InvocationAttempts: cfg.InvocationAttempts,
		MinimalRemoteTasks: cfg.MinimalRemoteTasks,
		Compression:        cfg.Compression.Resolve(),
	}, log)

	coord := coordclient.New(coordclient.Config{
		Hosts: cfg.Coordinator.Hosts,
		Port:  cfg.Coordinator.Port,
		Mode:  resolveMode(cfg.Coordinator.Mode),
	}, log, remote.UpdateWorkers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go coord.Run(ctx)

	var gate *loadgate.Gate
	if cfg.MaxLoadAverage > 0 {
		gate = loadgate.New(cfg.MaxLoadAverage)
	}

	driver := dispatch.New(ts, localExec, remote, versions, cfg.ScratchDir, log, gate)
	os.Exit(driver.Run(os.Stdout, executableName, compilerArgs))
}

func resolveMode(m string) coordclient.Mode {
	if m == "all" {
		return coordclient.All
	}
	return coordclient.Any
}

func usage() {
	fmt.Printf(`usage: tool-client [-h|--help] [-l] [-c configPath] -- executable [args...]

Runs one compiler invocation, splitting it into a local preprocess step and
a remote compile step dispatched to a tool-server when possible, otherwise
falling back to running the invocation locally.

Flags:
`)
	flag.PrintDefaults()
}
