// runner.go - Descriptor-Runner des webassembly-Backends
// Dieses Modul enthaelt:
// - impl: Compile startet den Worker (Handshake), Views sind Staging-Speicher
// - workerBacking: buffer.Backing ueber den Worker
// - Backend: Probe und Runner-Erzeugung
package webassembly

import (
	"context"
	"io"
	"time"

	"github.com/7blacky7/graphrt/buffer"
	"github.com/7blacky7/graphrt/graph"
	"github.com/7blacky7/graphrt/logutil"
	"github.com/7blacky7/graphrt/runner"
)

// Name ist der Backend-Name.
const Name = "webassembly"

// workerBacking leitet Transfers eines Staged-Buffers an den Worker.
type workerBacking struct {
	w *Worker
}

func (b workerBacking) Upload(ctx context.Context, offset int, data []byte) error {
	return b.w.Upload(ctx, offset, data)
}

func (b workerBacking) Download(ctx context.Context, offset int, dst []byte) error {
	return b.w.Download(ctx, offset, dst)
}

// =============================================================================
// Runner
// =============================================================================

var _ runner.Impl = (*impl)(nil)

type impl struct {
	desc   *graph.WebAssemblyDescriptor
	worker *Worker
	data   *buffer.Staged
}

// NewRunner erstellt einen Runner fuer das webassembly-Backend.
func NewRunner(opts runner.Options) *runner.Machine {
	return runner.New(&impl{}, opts)
}

func (r *impl) BackendName() string { return Name }

func (r *impl) Decode(body io.Reader) (graph.GraphDescriptor, error) {
	return runner.DecodeAs[graph.WebAssemblyDescriptor](body)
}

func (r *impl) SetDescriptor(d graph.GraphDescriptor) error {
	desc, err := runner.As[*graph.WebAssemblyDescriptor](Name, d)
	if err != nil {
		return err
	}
	r.desc = desc
	return nil
}

// Compile startet den Worker und fuehrt den Handshake aus. Schlaegt er
// fehl, wird der Worker geschlossen.
func (r *impl) Compile(ctx context.Context) error {
	module, err := r.desc.Module()
	if err != nil {
		return err
	}

	metas := make([][]byte, len(r.desc.ExecInfos))
	entries := make([]string, len(r.desc.ExecInfos))
	for i, info := range r.desc.ExecInfos {
		metas[i] = info.MetaBuffer
		entries[i] = info.EntryFuncName
	}

	w := StartWorker()
	if err := w.Instantiate(ctx, module, r.desc.DataSize(), metas, entries); err != nil {
		w.Close()
		return err
	}
	r.worker = w
	r.data = buffer.NewStaged(workerBacking{w: w}, r.desc.DataSize(), "wasm")
	return nil
}

// LoadWeights uebertraegt die Gewichte an den Anfang der Datenregion.
// Der Gewichts-View wird nach dem Upload abgemeldet, damit Run nur die
// Eingaben synchronisiert.
func (r *impl) LoadWeights(ctx context.Context, weights []float32) error {
	if len(weights) == 0 {
		return nil
	}
	view, err := buffer.WriteView[float32](r.data, 0, len(weights))
	if err != nil {
		return err
	}
	copy(view, weights)
	defer r.data.ReleaseWriteView(buffer.AsBytes(view))
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

// Run synchronisiert Eingaben, ruft die Kernel auf und holt die Ausgaben.
func (r *impl) Run(ctx context.Context) error {
	start := time.Now()
	if err := r.data.SyncWriteViews(ctx); err != nil {
		return err
	}
	if err := r.worker.Run(ctx); err != nil {
		return err
	}
	if err := r.data.SyncReadViews(ctx); err != nil {
		return err
	}
	logutil.TraceContext(ctx, "webassembly run", "entries", len(r.desc.ExecInfos), "duration", time.Since(start))
	return nil
}

func (r *impl) Close() error {
	if r.worker == nil {
		return nil
	}
	err := r.worker.Close()
	r.worker, r.data = nil, nil
	return err
}

// =============================================================================
// Backend
// =============================================================================

// Backend ist das webassembly-Backend. Jeder Runner erhaelt einen eigenen Worker.
type Backend struct {
	opts runner.Options
}

// New erstellt das Backend.
func New(opts runner.Options) *Backend {
	return &Backend{opts: opts}
}

func (b *Backend) Name() string { return Name }

// Init prueft, ob die wasm-Runtime Module uebersetzen kann.
func (b *Backend) Init(ctx context.Context) error {
	return Probe(ctx)
}

// CreateDescriptorRunner erstellt einen neuen Runner im Zustand empty.
func (b *Backend) CreateDescriptorRunner() runner.Runner {
	return NewRunner(b.opts)
}

func (b *Backend) Close() error { return nil }
