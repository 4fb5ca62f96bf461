// SPDX-FileCopyrightText: © 2026 Wuild Fabric Contributors
// SPDX-License-Identifier: MIT

// Command status is a one-shot CLI that connects to the configured
// coordinators, requests the current worker registry snapshot, and renders
// it as a human-readable aligned table or JSON (spec §6's status tool).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rivo/uniseg"

	"github.com/wuild-go/fabric/internal/clog"
	"github.com/wuild-go/fabric/internal/config"
	"github.com/wuild-go/fabric/internal/coordclient"
	"github.com/wuild-go/fabric/internal/registry"
)

// snapshotWait bounds how long the status tool waits for its first
// CoordinatorInfo snapshot before giving up.
const snapshotWait = 5 * time.Second

func main() {
	var configPath string
	var asJSON bool
	var help bool

	flag.Usage = usage
	flag.StringVar(&configPath, "c", "status.yaml", "path to status tool configuration file")
	flag.BoolVar(&asJSON, "json", false, "print the snapshot as JSON instead of a table")
	flag.BoolVar(&help, "h", false, "show usage information")
	flag.Parse()

	filter := flag.Arg(0)

	if help {
		usage()
		os.Exit(0)
	}

	var cfg config.Status
	if err := config.LoadYAML(configPath, &cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := clog.New("status", "cli")

	snapshotCh := make(chan registry.CoordinatorInfo, 1)
	var once sync.Once
	coord := coordclient.New(coordclient.Config{
		Hosts: cfg.Coordinator.Hosts,
		Port:  cfg.Coordinator.Port,
		Mode:  resolveMode(cfg.Coordinator.Mode),
	}, log, func(info registry.CoordinatorInfo) {
		once.Do(func() { snapshotCh <- info })
	})

	ctx, cancel := context.WithTimeout(context.Background(), snapshotWait)
	defer cancel()
	go coord.Run(ctx)

	var info registry.CoordinatorInfo
	select {
	case info = <-snapshotCh:
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "status: timed out waiting for a coordinator snapshot")
		os.Exit(1)
	}

	if filter != "" {
		info = filterByHost(info, filter)
	}

	if asJSON {
		printJSON(info)
	} else {
		printTable(info)
	}
}

func resolveMode(m string) coordclient.Mode {
	if m == "all" {
		return coordclient.All
	}
	return coordclient.Any
}

func filterByHost(info registry.CoordinatorInfo, substr string) registry.CoordinatorInfo {
	out := registry.CoordinatorInfo{Message: info.Message}
	for _, ts := range info.ToolServers {
		if strings.Contains(ts.Host, substr) {
			out.ToolServers = append(out.ToolServers, ts)
		}
	}
	return out
}

func printJSON(info registry.CoordinatorInfo) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(info)
}

// printTable renders info as a column-aligned table. Columns are padded by
// display width (uniseg.StringWidth) rather than byte or rune count, so
// host names containing wide or combining characters still line up.
func printTable(info registry.CoordinatorInfo) {
	headers := []string{"HOST", "PORT", "THREADS", "RUNNING", "QUEUED", "TOOLS"}
	rows := make([][]string, 0, len(info.ToolServers))
	for _, ts := range info.ToolServers {
		rows = append(rows, []string{
			ts.Host,
			fmt.Sprintf("%d", ts.Port),
			fmt.Sprintf("%d", ts.TotalThreads),
			fmt.Sprintf("%d", ts.RunningTasks),
			fmt.Sprintf("%d", ts.QueuedTasks),
			strings.Join(ts.ToolIDs, ","),
		})
	}
	sort.Slice(rows, func(a, b int) bool { return rows[a][0] < rows[b][0] })

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = uniseg.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := uniseg.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	printRow(headers, widths)
	for _, row := range rows {
		printRow(row, widths)
	}
	if info.Message != "" {
		fmt.Println(info.Message)
	}
}

func printRow(cells []string, widths []int) {
	var b strings.Builder
	for i, cell := range cells {
		b.WriteString(cell)
		for pad := widths[i] - uniseg.StringWidth(cell); pad > 0; pad-- {
			b.WriteByte(' ')
		}
		if i < len(cells)-1 {
			b.WriteString("  ")
		}
	}
	fmt.Println(b.String())
}

func usage() {
	fmt.Printf(`usage: status [-h|--help] [--json] [-c configPath] [hostFilter]

Requests a one-shot registry snapshot from the configured coordinators and
prints it as a table, or as JSON with --json. hostFilter, if given,
restricts the output to worker hosts whose name contains it.

Flags:
`)
	flag.PrintDefaults()
}
