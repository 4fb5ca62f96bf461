// SPDX-FileCopyrightText: © 2026 Wuild Fabric Contributors
// SPDX-License-Identifier: MIT

// Package config defines the effective configuration shape of each
// executable in the fabric (spec §6: worker, client/front-end, status
// tool, coordinator). Each struct is the target of a YAML file load with
// defaults applied in code; no command-line flag overrides a loaded value.
// Every struct carries a Validate method
// mirroring the original implementation's IConfig::Validate.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wuild-go/fabric/internal/envelope"
)

// Compression is the YAML-facing shape of an envelope.Info.
type Compression struct {
	Type  string `yaml:"type"`
	Level int8   `yaml:"level"`
}

// Resolve converts c to an envelope.Info, defaulting to None for an empty
// or unrecognized type name.
func (c Compression) Resolve() envelope.Info {
	switch c.Type {
	case "gzip":
		return envelope.Info{Type: envelope.Gzip, Level: c.Level}
	case "lz4":
		return envelope.Info{Type: envelope.LZ4, Level: c.Level}
	case "zstd":
		return envelope.Info{Type: envelope.ZStd, Level: c.Level}
	default:
		return envelope.Info{Type: envelope.None}
	}
}

// Coordinator is the coordinator-list shape shared by the worker and
// client/front-end configs (spec §6's "coordinator list").
type Coordinator struct {
	Hosts []string `yaml:"hosts"`
	Port  int      `yaml:"port"`
	// Mode is "any" (first reachable coordinator wins) or "all" (connect
	// to every listed coordinator and merge their snapshots).
	Mode string `yaml:"mode"`
}

// Worker is the tool-server's effective configuration.
type Worker struct {
	ListenHost           string        `yaml:"listenHost"`
	ListenPort           int           `yaml:"listenPort"`
	ThreadCount          int           `yaml:"threadCount"`
	Compression          Compression   `yaml:"compression"`
	UseClientCompression bool          `yaml:"useClientCompression"`
	HostAllowlist        []string      `yaml:"hostAllowlist,omitempty"`
	SendInfoInterval     time.Duration `yaml:"sendInfoInterval"`
	Coordinator          Coordinator   `yaml:"coordinator"`
	ToolsFile            string        `yaml:"toolsFile"`
	ScratchDir           string        `yaml:"scratchDir"`
}

// Validate applies defaults and checks the invariants a worker cannot run
// without.
func (w *Worker) Validate() error {
	if w.ListenPort <= 0 {
		return fmt.Errorf("config: worker.listenPort must be positive")
	}
	if w.ThreadCount <= 0 {
		w.ThreadCount = 4
	}
	if w.SendInfoInterval <= 0 {
		w.SendInfoInterval = 5 * time.Second
	}
	if w.ToolsFile == "" {
		return fmt.Errorf("config: worker.toolsFile is required")
	}
	if w.ScratchDir == "" {
		w.ScratchDir = os.TempDir()
	}
	return nil
}

// Client is the tool-client front-end's effective configuration.
type Client struct {
	ClientID           string        `yaml:"clientId"`
	Coordinator        Coordinator   `yaml:"coordinator"`
	QueueTimeout       time.Duration `yaml:"queueTimeout"`
	RequestTimeout     time.Duration `yaml:"requestTimeout"`
	InvocationAttempts int           `yaml:"invocationAttempts"`
	MinimalRemoteTasks int           `yaml:"minimalRemoteTasks"`
	MaxLoadAverage     float64       `yaml:"maxLoadAverage"`
	Compression        Compression   `yaml:"compression"`
	ToolsFile          string        `yaml:"toolsFile"`
	ScratchDir         string        `yaml:"scratchDir"`
	LocalWorkers       int           `yaml:"localWorkers"`
}

// Validate applies defaults.
func (c *Client) Validate() error {
	if c.ToolsFile == "" {
		return fmt.Errorf("config: client.toolsFile is required")
	}
	if c.ScratchDir == "" {
		c.ScratchDir = os.TempDir()
	}
	if c.LocalWorkers <= 0 {
		c.LocalWorkers = 4
	}
	if len(c.Coordinator.Hosts) == 0 {
		return fmt.Errorf("config: client.coordinator.hosts is required")
	}
	return nil
}

// Coordinatord is the coordinator process's effective configuration.
type Coordinatord struct {
	ListenHost string `yaml:"listenHost"`
	ListenPort int    `yaml:"listenPort"`
}

// Validate applies defaults.
func (c *Coordinatord) Validate() error {
	if c.ListenPort <= 0 {
		c.ListenPort = 8990
	}
	return nil
}

// Status is the status tool's effective configuration.
type Status struct {
	Coordinator Coordinator `yaml:"coordinator"`
}

// Validate applies defaults.
func (s *Status) Validate() error {
	if len(s.Coordinator.Hosts) == 0 {
		return fmt.Errorf("config: status.coordinator.hosts is required")
	}
	return nil
}

// LoadYAML reads path into v, then calls v's Validate method. v must be a
// pointer to one of this package's config structs.
func LoadYAML[T interface{ Validate() error }](path string, v T) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return v.Validate()
}
