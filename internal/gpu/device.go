// Package gpu models a compute queue: command buffers made of ordered passes
// are submitted to a Device and observed through fences. Kernels execute on a
// worker pool, so submission is fire-and-forget and results may only be read
// back once the fence has signalled.
package gpu

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/alitto/pond/v2"
)

var (
	ErrDeviceClosed = errors.New("gpu: device closed")
	ErrNotSignaled  = errors.New("gpu: fence not signaled")
)

// Kernel runs one workgroup of a dispatch.
type Kernel func(gx, gy, gz int)

// Pass is a single dispatch. All groups of a pass may run concurrently;
// the next pass starts only after every group of this one finished.
type Pass struct {
	Name   string
	Groups [3]int
	Kernel Kernel
}

// CommandBuffer records passes for one submission.
type CommandBuffer struct {
	Label  string
	passes []Pass
}

// NewCommandBuffer starts an empty recording.
func NewCommandBuffer(label string) *CommandBuffer {
	return &CommandBuffer{Label: label}
}

// Dispatch records a pass over a gx×gy×gz group grid.
func (cb *CommandBuffer) Dispatch(name string, groups [3]int, k Kernel) {
	cb.passes = append(cb.passes, Pass{Name: name, Groups: groups, Kernel: k})
}

// Single records a pass with exactly one invocation (scans, compaction).
func (cb *CommandBuffer) Single(name string, fn func()) {
	cb.Dispatch(name, [3]int{1, 1, 1}, func(int, int, int) { fn() })
}

// Passes returns the recorded passes in order.
func (cb *CommandBuffer) Passes() []Pass {
	return cb.passes
}

// Device executes command buffers. Two pools are used so a queue slot waiting
// on its kernel groups never starves the groups themselves.
type Device struct {
	queue   pond.Pool
	workers pond.Pool

	mu     sync.Mutex
	closed bool
	stats  Stats
}

// Stats counts submissions since the device was created.
type Stats struct {
	Submitted  int
	Passes     int
	Dispatches int
}

// NewDevice creates a device with the given number of kernel workers
// (<=0 selects runtime.NumCPU()) and a queue depth of two submissions.
func NewDevice(workers int) *Device {
	if workers <= 0 {
		workers = max(runtime.NumCPU(), 1)
	}
	return &Device{
		queue:   pond.NewPool(2),
		workers: pond.NewPool(workers),
	}
}

// Submit enqueues cb and returns the fence that signals when every pass has run.
func (d *Device) Submit(cb *CommandBuffer) *Fence {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return signaledFence(ErrDeviceClosed)
	}
	d.stats.Submitted++
	d.stats.Passes += len(cb.passes)
	d.mu.Unlock()

	task := d.queue.SubmitErr(func() error {
		return d.run(cb)
	})
	return &Fence{label: cb.Label, task: task}
}

func (d *Device) run(cb *CommandBuffer) error {
	for _, p := range cb.passes {
		n := p.Groups[0] * p.Groups[1] * p.Groups[2]
		if n <= 0 {
			continue
		}
		d.mu.Lock()
		d.stats.Dispatches += n
		d.mu.Unlock()

		if n == 1 {
			p.Kernel(0, 0, 0)
			continue
		}
		group := d.workers.NewGroup()
		for gx := 0; gx < p.Groups[0]; gx++ {
			for gy := 0; gy < p.Groups[1]; gy++ {
				for gz := 0; gz < p.Groups[2]; gz++ {
					group.Submit(func() {
						p.Kernel(gx, gy, gz)
					})
				}
			}
		}
		if err := group.Wait(); err != nil {
			return fmt.Errorf("%s: pass %s: %w", cb.Label, p.Name, err)
		}
	}
	return nil
}

// Stats returns a snapshot of submission counters.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Close waits for in-flight submissions and stops the worker pools.
func (d *Device) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()
	d.queue.StopAndWait()
	d.workers.StopAndWait()
}
