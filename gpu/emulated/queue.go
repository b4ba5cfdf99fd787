// queue.go - Command-Queue und Command-Buffer des emulierten Geraets
// Dieses Modul enthaelt:
// - queue: Goroutine, die Command-Buffer in Commit-Reihenfolge ausfuehrt
// - commandBuffer/encoder: Aufzeichnung von Dispatches
// - execute: parallele Ausfuehrung der Workgroups eines Dispatches
package emulated

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/7blacky7/graphrt/buffer"
	"github.com/7blacky7/graphrt/fault"
	"github.com/7blacky7/graphrt/gpu"
	"github.com/7blacky7/graphrt/kernel"
	"github.com/7blacky7/graphrt/logutil"
)

// =============================================================================
// Queue
// =============================================================================

type queue struct {
	device *Device

	mu      sync.Mutex
	closed  bool
	pending chan *commandBuffer
	stopped chan struct{}
}

func newQueue(d *Device) *queue {
	q := &queue{
		device:  d,
		pending: make(chan *commandBuffer, 64),
		stopped: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *queue) run() {
	defer close(q.stopped)
	for cb := range q.pending {
		if q.device.isClosed() {
			cb.finish(errClosed)
			continue
		}
		cb.finish(cb.execute(q.device.threads))
	}
}

func (q *queue) submit(cb *commandBuffer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		cb.finish(errClosed)
		return
	}
	q.pending <- cb
}

func (q *queue) shutdown() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.pending)
	}
	q.mu.Unlock()
	<-q.stopped
}

func (q *queue) CommandBuffer() gpu.CommandBuffer {
	return &commandBuffer{queue: q, done: make(chan struct{})}
}

// =============================================================================
// Command-Buffer
// =============================================================================

type binding struct {
	buf    gpu.Buffer
	offset int
}

type dispatch struct {
	ps       *pipelineState
	bindings map[int]binding
	groups   gpu.Size
	threads  gpu.Size
}

type commandBuffer struct {
	queue      *queue
	dispatches []dispatch
	committed  bool
	encodeErr  error

	done chan struct{}
	err  error
}

func (cb *commandBuffer) ComputeCommandEncoder() gpu.ComputeCommandEncoder {
	return &encoder{cb: cb, bindings: make(map[int]binding)}
}

func (cb *commandBuffer) Commit() {
	if cb.committed {
		panic("emulated: command buffer committed twice")
	}
	cb.committed = true
	cb.queue.submit(cb)
}

func (cb *commandBuffer) Completed() <-chan struct{} { return cb.done }

// Err ist erst nach Completed gueltig.
func (cb *commandBuffer) Err() error { return cb.err }

func (cb *commandBuffer) finish(err error) {
	cb.err = err
	close(cb.done)
}

func (cb *commandBuffer) execute(threads int) error {
	if cb.encodeErr != nil {
		return cb.encodeErr
	}
	for _, d := range cb.dispatches {
		if err := d.execute(threads); err != nil {
			return err
		}
	}
	return nil
}

type encoder struct {
	cb       *commandBuffer
	ps       *pipelineState
	bindings map[int]binding
	err      error
}

func (e *encoder) SetPipelineState(ps gpu.PipelineState) {
	p, ok := ps.(*pipelineState)
	if !ok {
		e.err = fmt.Errorf("%w: foreign pipeline state %T", fault.ErrConfiguration, ps)
		return
	}
	e.ps = p
}

func (e *encoder) SetBuffer(b gpu.Buffer, offset, index int) {
	e.bindings[index] = binding{buf: b, offset: offset}
}

func (e *encoder) Dispatch(groups, threads gpu.Size) {
	if e.ps == nil {
		if e.err == nil {
			e.err = fmt.Errorf("%w: dispatch without pipeline state", fault.ErrConfiguration)
		}
		return
	}
	bindings := make(map[int]binding, len(e.bindings))
	for k, v := range e.bindings {
		bindings[k] = v
	}
	e.cb.dispatches = append(e.cb.dispatches, dispatch{ps: e.ps, bindings: bindings, groups: groups, threads: threads})
}

// EndEncoding uebertraegt einen Kodierfehler auf den Command-Buffer.
func (e *encoder) EndEncoding() {
	if e.err != nil && e.cb.encodeErr == nil {
		e.cb.encodeErr = e.err
	}
}

// =============================================================================
// Ausfuehrung
// =============================================================================

func (d dispatch) execute(threads int) error {
	n := 0
	for index := range d.bindings {
		n = max(n, index+1)
	}
	floats := make([][]float32, n)
	ints := make([][]int32, n)
	for index, b := range d.bindings {
		contents := b.buf.Contents()
		if b.offset < 0 || b.offset%4 != 0 || b.offset > len(contents) {
			return fmt.Errorf("%w: buffer %d: invalid offset %d", fault.ErrConfiguration, index, b.offset)
		}
		floats[index] = buffer.AsSlice[float32](contents[b.offset:])
		ints[index] = buffer.AsSlice[int32](contents[b.offset:])
	}

	groupCount := d.groups.Count()
	perGroup := d.threads.Count()
	total := groupCount * perGroup
	fn := d.ps.fn

	start := time.Now()
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(threads)
	for group := range groupCount {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			return kernel.Call(fn.name, func() {
				base := group * perGroup
				for t := range perGroup {
					fn.fn(base+t, total, floats, ints)
				}
			})
		})
	}
	err := g.Wait()
	logutil.Trace("emulated dispatch", "entry", fn.name, "threads", total, "duration", time.Since(start), "error", err)
	if err != nil {
		slog.Debug("emulated dispatch failed", "entry", fn.name, "error", err)
	}
	return err
}
