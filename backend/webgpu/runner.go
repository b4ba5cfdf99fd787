// runner.go - Descriptor-Runner des webgpu-Backends
// Dieses Modul enthaelt:
// - impl: Compile (Kernel laden, Pipeline-States, Meta-Buffer), LoadWeights,
//   Views auf die Datenregion [Gewichte | Variablen] und Run
// - Backend: backend-Interface mit gemeinsamem Handler
package webgpu

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"time"

	"github.com/7blacky7/graphrt/buffer"
	"github.com/7blacky7/graphrt/gpu"
	"github.com/7blacky7/graphrt/graph"
	"github.com/7blacky7/graphrt/logutil"
	"github.com/7blacky7/graphrt/runner"
)

// Name ist der Backend-Name.
const Name = "webgpu"

// =============================================================================
// Runner
// =============================================================================

type dispatch struct {
	name    string
	groups  gpu.Size
	threads gpu.Size
	meta    gpu.Buffer
}

var _ runner.Impl = (*impl)(nil)

type impl struct {
	handler *Handler
	desc    *graph.WebGPUDescriptor

	data       *Buffer
	dispatches []dispatch
}

// NewRunner erstellt einen Runner, der auf handler ausfuehrt.
func NewRunner(handler *Handler, opts runner.Options) *runner.Machine {
	return runner.New(&impl{handler: handler}, opts)
}

func (r *impl) BackendName() string { return Name }

func (r *impl) Decode(body io.Reader) (graph.GraphDescriptor, error) {
	return runner.DecodeAs[graph.WebGPUDescriptor](body)
}

func (r *impl) SetDescriptor(d graph.GraphDescriptor) error {
	desc, err := runner.As[*graph.WebGPUDescriptor](Name, d)
	if err != nil {
		return err
	}
	r.desc = desc
	return nil
}

func size(s graph.Size) gpu.Size {
	return gpu.Size{Width: s.Width, Height: s.Height, Depth: s.Depth}
}

// Compile laedt den Kernel unter dem Digest des Quelltexts, legt die
// Pipeline-States und Meta-Buffer an und allokiert die Datenregion.
func (r *impl) Compile(context.Context) error {
	namespace := fmt.Sprintf("%x", sha256.Sum256([]byte(r.desc.KernelSource)))[:16]
	if err := r.handler.LoadKernel(r.desc.KernelSource, namespace); err != nil {
		return err
	}

	r.dispatches = make([]dispatch, len(r.desc.ExecInfos))
	for i, info := range r.desc.ExecInfos {
		name := qualify(namespace, info.EntryFuncName)
		if _, err := r.handler.PipelineStateByName(name); err != nil {
			return err
		}
		meta, err := r.handler.CreateBuffer(info.MetaBuffer)
		if err != nil {
			return err
		}
		r.dispatches[i] = dispatch{
			name:    name,
			groups:  size(info.ThreadgroupsPerGrid),
			threads: size(info.ThreadsPerThreadgroup),
			meta:    meta,
		}
	}

	data, err := r.handler.NewBuffer(r.desc.DataSize())
	if err != nil {
		return err
	}
	r.data = data
	return nil
}

// LoadWeights schreibt die Gewichte an den Anfang der Datenregion.
func (r *impl) LoadWeights(ctx context.Context, weights []float32) error {
	view, err := buffer.WriteView[float32](r.data, 0, len(weights))
	if err != nil {
		return err
	}
	copy(view, weights)
	return r.data.SyncWriteViews(ctx)
}

func (r *impl) views(names []string, view func(buffer.Buffer, int, int) ([]float32, error)) ([][]float32, error) {
	out := make([][]float32, len(names))
	for i, name := range names {
		a, err := r.desc.DataOffset(name)
		if err != nil {
			return nil, err
		}
		if out[i], err = view(r.data, a.Offset/graph.ElementSize, a.Size/graph.ElementSize); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *impl) InputViews(context.Context) ([][]float32, error) {
	return r.views(r.desc.Inputs, buffer.WriteView[float32])
}

func (r *impl) OutputViews(context.Context) ([][]float32, error) {
	return r.views(r.desc.Outputs, buffer.ReadView[float32])
}

// Run reiht alle Dispatches mit den Buffern [data, meta_i] ein und wartet
// nur auf den letzten.
func (r *impl) Run(ctx context.Context) error {
	if err := r.data.SyncWriteViews(ctx); err != nil {
		return err
	}

	start := time.Now()
	data := r.data.GPUBuffer()
	for i, d := range r.dispatches {
		last := i == len(r.dispatches)-1
		c, err := r.handler.ExecuteSinglePipelineState(ctx, d.name, d.groups, d.threads, []gpu.Buffer{data, d.meta}, last)
		if err != nil {
			return err
		}
		if last {
			if err := c.Wait(ctx); err != nil {
				return err
			}
		}
	}
	logutil.TraceContext(ctx, "webgpu run", "dispatches", len(r.dispatches), "duration", time.Since(start))

	return r.data.SyncReadViews(ctx)
}

func (r *impl) Close() error {
	r.data, r.dispatches = nil, nil
	return nil
}

// =============================================================================
// Backend
// =============================================================================

// Backend ist das webgpu-Backend. Alle Runner teilen sich einen Handler.
type Backend struct {
	opts    runner.Options
	handler *Handler
}

// New erstellt das Backend; das Geraet wird erst in Init geoeffnet.
func New(opts runner.Options) *Backend {
	return &Backend{opts: opts, handler: NewHandler()}
}

func (b *Backend) Name() string { return Name }

// Init oeffnet den GPU-Treiber.
func (b *Backend) Init(ctx context.Context) error {
	return b.handler.Init(ctx)
}

// Handler gibt den gemeinsamen Handler zurueck.
func (b *Backend) Handler() *Handler { return b.handler }

// CreateDescriptorRunner erstellt einen neuen Runner im Zustand empty.
func (b *Backend) CreateDescriptorRunner() runner.Runner {
	return NewRunner(b.handler, b.opts)
}

// Close gibt das Geraet frei.
func (b *Backend) Close() error {
	return b.handler.Close()
}
