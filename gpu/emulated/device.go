// MODUL: emulated
// ZWECK: CPU-emulierter Compute-Treiber fuer das webgpu-Backend
// INPUT: Kernel-Quelltext als Go-Paket, Dispatches ueber die Command-Queue
// OUTPUT: gpu.Device mit CPU-Speicher
// NEBENEFFEKTE: Registriert sich als Treiber "emulated"; startet pro Queue eine Goroutine
// ABHAENGIGKEITEN: gpu, kernel, buffer, envconfig, golang.org/x/sync/errgroup
// HINWEISE: Compute-Funktionen haben die Signatur
//           func(index, total int, floats [][]float32, ints [][]int32)
//           floats[i] und ints[i] sind Aliase auf den an Index i gebundenen Buffer.

package emulated

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/7blacky7/graphrt/buffer"
	"github.com/7blacky7/graphrt/envconfig"
	"github.com/7blacky7/graphrt/fault"
	"github.com/7blacky7/graphrt/gpu"
	"github.com/7blacky7/graphrt/kernel"
)

// DriverName ist der Registrierungsname des Treibers.
const DriverName = "emulated"

// ComputeFunc wird einmal pro Grid-Thread aufgerufen.
type ComputeFunc = func(index, total int, floats [][]float32, ints [][]int32)

func init() {
	gpu.Register(DriverName, func() (gpu.Device, error) {
		return New(int(envconfig.GPUThreads())), nil
	})
}

// ============================================================================
// Device
// ============================================================================

// Device fuehrt Compute-Funktionen auf der CPU aus.
type Device struct {
	threads int

	mu     sync.Mutex
	closed bool
	queues []*queue
}

// New erstellt ein Geraet, das bis zu threads Workgroups parallel ausfuehrt.
func New(threads int) *Device {
	return &Device{threads: max(threads, 1)}
}

func (d *Device) Name() string {
	return fmt.Sprintf("%s (%d threads)", DriverName, d.threads)
}

func (d *Device) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Device) NewBuffer(length int) (gpu.Buffer, error) {
	if d.isClosed() {
		return nil, errClosed
	}
	if length < 0 {
		return nil, fmt.Errorf("%w: negative buffer length %d", fault.ErrConfiguration, length)
	}
	return &deviceBuffer{data: buffer.Alloc(length)}, nil
}

func (d *Device) NewLibrary(source string) (gpu.Library, error) {
	if d.isClosed() {
		return nil, errClosed
	}
	m, err := kernel.Compile(source)
	if err != nil {
		return nil, err
	}

	lib := &library{funcs: kernel.Collect[ComputeFunc](m)}
	for _, name := range m.Names() {
		if _, ok := lib.funcs[name]; ok {
			lib.names = append(lib.names, name)
		}
	}
	slog.Debug("emulated library compiled", "package", m.Package, "functions", lib.names)
	return lib, nil
}

func (d *Device) NewPipelineState(fn gpu.Function) (gpu.PipelineState, error) {
	if d.isClosed() {
		return nil, errClosed
	}
	f, ok := fn.(*function)
	if !ok {
		return nil, fmt.Errorf("%w: foreign function %T", fault.ErrConfiguration, fn)
	}
	return &pipelineState{fn: f}, nil
}

func (d *Device) NewCommandQueue() gpu.CommandQueue {
	q := newQueue(d)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		q.shutdown()
		return q
	}
	d.queues = append(d.queues, q)
	return q
}

// Close beendet alle Queues. Noch nicht ausgefuehrte Command-Buffer schlagen fehl.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	queues := d.queues
	d.queues = nil
	d.mu.Unlock()

	for _, q := range queues {
		q.shutdown()
	}
	return nil
}

var errClosed = fmt.Errorf("%w: device closed", fault.ErrDeviceFault)

// ============================================================================
// Buffer, Library, Function, PipelineState
// ============================================================================

type deviceBuffer struct {
	data []byte
}

func (b *deviceBuffer) Length() int      { return len(b.data) }
func (b *deviceBuffer) Contents() []byte { return b.data }

type library struct {
	names []string
	funcs map[string]ComputeFunc
}

func (l *library) FunctionNames() []string { return l.names }

func (l *library) Function(name string) (gpu.Function, error) {
	fn, ok := l.funcs[name]
	if !ok {
		return nil, fmt.Errorf("%w: compute function %q not found", fault.ErrConfiguration, name)
	}
	return &function{name: name, fn: fn}, nil
}

type function struct {
	name string
	fn   ComputeFunc
}

func (f *function) Name() string { return f.name }

type pipelineState struct {
	fn *function
}

func (p *pipelineState) Function() gpu.Function { return p.fn }
