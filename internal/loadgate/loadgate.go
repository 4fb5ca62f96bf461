// SPDX-FileCopyrightText: © 2026 Wuild Fabric Contributors
// SPDX-License-Identifier: MIT

// Package loadgate implements the tool-client's maxLoadAverage knob: a
// front-end should not bother shipping an invocation to a remote worker
// while its own host is idle enough to just compile it locally (spec §6's
// client CLI surface lists maxLoadAverage among the flags that affect core
// behavior, though its exact policy is left to the front-end).
package loadgate

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// sampleInterval bounds how often Gate re-reads the system load average;
// /proc/loadavg barely moves faster than this and every invocation calling
// Exceeded should not pay a syscall.
const sampleInterval = time.Second

// Gate reports whether the host's current load average exceeds a
// configured threshold, at most once per sampleInterval.
type Gate struct {
	threshold float64
	limiter   *rate.Limiter

	mu   sync.Mutex
	last bool
}

// New returns a Gate. A threshold of 0 disables throttling: Exceeded always
// reports true, so the front-end always prefers remote dispatch.
func New(threshold float64) *Gate {
	return &Gate{
		threshold: threshold,
		limiter:   rate.NewLimiter(rate.Every(sampleInterval), 1),
	}
}

// Exceeded reports whether the 1-minute load average is currently at or
// above the configured threshold. With threshold <= 0 it always reports
// true (no throttling).
func (g *Gate) Exceeded() bool {
	if g.threshold <= 0 {
		return true
	}
	if !g.limiter.Allow() {
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.last
	}
	avg, err := readLoadAverage()
	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil {
		// Can't sample (non-Linux, /proc unavailable): fail open so the
		// knob never silently blocks remote dispatch.
		g.last = true
		return true
	}
	g.last = avg >= g.threshold
	return g.last
}

func readLoadAverage() (float64, error) {
	f, err := os.Open("/proc/loadavg")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return 0, sc.Err()
	}
	fields := strings.Fields(sc.Text())
	if len(fields) == 0 {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseFloat(fields[0], 64)
}
