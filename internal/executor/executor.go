// SPDX-FileCopyrightText: © 2026 Wuild Fabric Contributors
// SPDX-License-Identifier: MIT

// Package executor implements the bounded-concurrency local subprocess pool
// shared by every process in the fabric: the build driver's own preprocess
// step and a tool-server's compile step both run through one of these
// (spec §4.D). A single driver goroutine owns the task queue and the count
// of in-flight subprocesses; it is the only goroutine that spawns a process
// or completes a finished one, matching the "local executor driver thread"
// of the concurrency model in spec §5. Each subprocess is waited on by its
// own goroutine, which hands the exit back to the driver.
package executor

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Task is one subprocess invocation submitted to an Executor.
//
// WriteInput, if true, means Input holds bytes that must be staged to a
// scratch file before the subprocess runs, with the argument at InputIndex
// rewritten to point at that scratch path. ReadOutput, if true, means the
// argument at OutputIndex is rewritten to a scratch path whose contents are
// read back and delivered to Callback once the subprocess exits.
type Task struct {
	Executable  string
	Args        []string
	WriteInput  bool
	ReadOutput  bool
	InputIndex  int
	OutputIndex int
	Input       []byte
	Callback    func(Result)
}

// Result is delivered to a Task's Callback exactly once, whether the
// subprocess ran to completion or the executor failed to spawn it.
type Result struct {
	Success bool
	StdOut  string
	Output  []byte
	Elapsed time.Duration
}

type queuedTask struct {
	task Task
}

type completion struct {
	entry       queuedTask
	elapsed     time.Duration
	runErr      error
	stdout      string
	inputPath   string
	outputPath  string
}

// Executor runs at most MaxWorkers concurrent subprocesses, queueing the
// rest FIFO. Concurrency is bounded by a semaphore.Weighted rather than a
// hand-rolled counter-and-compare: the driver goroutine is still the sole
// acquirer/releaser, so this adds no cross-goroutine contention, just a
// well-tested primitive for the one invariant that matters here (spec
// §4.D's maxWorkers bound). The zero value is not usable; construct with
// New.
type Executor struct {
	maxWorkers int
	scratchDir string
	sem        *semaphore.Weighted

	submit chan Task
	done   chan completion
	stop   chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once

	counter atomic.Uint64
	running atomic.Int64
	queued  atomic.Int64
}

// Stats reports the executor's current running and queued task counts, the
// inputs to a tool-server's published ToolServerInfo.RunningTasks /
// QueuedTasks (spec §3, §4.G).
func (e *Executor) Stats() (running, queued int) {
	return int(e.running.Load()), int(e.queued.Load())
}

// New returns an Executor bounded to maxWorkers concurrent subprocesses,
// staging scratch files under scratchDir. The driver goroutine is started
// lazily, on the first call to AddTask.
func New(maxWorkers int, scratchDir string) *Executor {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Executor{
		maxWorkers: maxWorkers,
		scratchDir: scratchDir,
		sem:        semaphore.NewWeighted(int64(maxWorkers)),
		submit:     make(chan Task, 64),
		done:       make(chan completion, 64),
		stop:       make(chan struct{}),
	}
}

// AddTask enqueues t unconditionally and starts the driver goroutine if it
// is not already running.
func (e *Executor) AddTask(t Task) {
	e.startOnce.Do(func() { go e.run() })
	e.submit <- t
}

// Close stops the driver from accepting further tasks. Already-running
// subprocesses are not killed (spec §5's cooperative shutdown): the driver
// keeps reaping them and delivering their callbacks until none remain.
// Close itself returns at once and does not wait for them.
// Already-queued-but-not-started tasks are not run.
func (e *Executor) Close() {
	e.stopOnce.Do(func() { close(e.stop) })
}

func (e *Executor) run() {
	var queue []Task
	running := 0
	draining := false

	for {
		if draining && running == 0 {
			return
		}

		select {
		case t, ok := <-e.submit:
			if ok && !draining {
				queue = append(queue, t)
				e.queued.Store(int64(len(queue)))
			}
		case c := <-e.done:
			running--
			e.running.Store(int64(running))
			e.sem.Release(1)
			e.complete(c)
		case <-e.stop:
			draining = true
			queue = nil
			e.queued.Store(0)
		}

		for !draining && len(queue) > 0 && e.sem.TryAcquire(1) {
			t := queue[0]
			queue = queue[1:]
			e.queued.Store(int64(len(queue)))
			if e.launch(t) {
				running++
				e.running.Store(int64(running))
			} else {
				e.sem.Release(1)
			}
		}
	}
}

// launch spawns t's subprocess. It returns false (and has already delivered
// a synthetic failure Result) if staging input or starting the process
// failed before a subprocess table entry was created.
func (e *Executor) launch(t Task) bool {
	idx := e.counter.Add(1)
	prefix := filepath.Join(e.scratchDir, fmt.Sprintf("task-%d", idx))

	args := append([]string(nil), t.Args...)
	var inputPath, outputPath string

	if t.WriteInput {
		inputPath = prefix + ".in"
		if err := os.WriteFile(inputPath, t.Input, 0o644); err != nil {
			e.fail(t, fmt.Errorf("executor: stage input: %w", err))
			return false
		}
		if t.InputIndex < 0 || t.InputIndex >= len(args) {
			os.Remove(inputPath)
			e.fail(t, fmt.Errorf("executor: input index %d out of range", t.InputIndex))
			return false
		}
		args[t.InputIndex] = inputPath
	}
	if t.ReadOutput {
		outputPath = prefix + ".out"
		if t.OutputIndex < 0 || t.OutputIndex >= len(args) {
			os.Remove(inputPath)
			e.fail(t, fmt.Errorf("executor: output index %d out of range", t.OutputIndex))
			return false
		}
		args[t.OutputIndex] = outputPath
	}

	cmd := exec.Command(t.Executable, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	start := time.Now()
	if err := cmd.Start(); err != nil {
		cleanupScratch(inputPath, outputPath)
		e.fail(t, fmt.Errorf("executor: spawn %s: %w", t.Executable, err))
		return false
	}

	go func() {
		err := cmd.Wait()
		e.done <- completion{
			entry:      queuedTask{task: t},
			elapsed:    time.Since(start),
			runErr:     err,
			stdout:     buf.String(),
			inputPath:  inputPath,
			outputPath: outputPath,
		}
	}()
	return true
}

// fail delivers a synthetic LocalSpawnFailed-style Result for a task that
// never reached the subprocess table.
func (e *Executor) fail(t Task, err error) {
	if t.Callback != nil {
		t.Callback(Result{Success: false, StdOut: err.Error()})
	}
}

// complete runs on the driver goroutine: it reads the output file (if
// requested), removes every scratch file for the task, and invokes the
// task's callback. Per spec §5, the callback runs on the driver thread and
// must be treated by callers as non-blocking.
func (e *Executor) complete(c completion) {
	t := c.entry.task
	res := Result{
		Success: c.runErr == nil,
		StdOut:  c.stdout,
		Elapsed: c.elapsed,
	}
	if res.Success && t.ReadOutput {
		out, err := os.ReadFile(c.outputPath)
		if err != nil {
			res.Success = false
			res.StdOut = fmt.Sprintf("%s\nexecutor: read output: %v", c.stdout, err)
		} else {
			res.Output = out
		}
	}
	cleanupScratch(c.inputPath, c.outputPath)
	if t.Callback != nil {
		t.Callback(res)
	}
}

func cleanupScratch(paths ...string) {
	for _, p := range paths {
		if p != "" {
			os.Remove(p)
		}
	}
}
