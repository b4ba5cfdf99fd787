// MODUL: fallback
// ZWECK: Interpretiertes Backend ohne Geraeteanforderungen
// INPUT: FallbackDescriptor mit Go-Kernelquelltext
// OUTPUT: Runner mit Host-Buffern
// NEBENEFFEKTE: Keine
// ABHAENGIGKEITEN: kernel (yaegi), buffer, runner, graph
// HINWEISE: Kernel-Funktionen haben die Signatur
//           func(inputs, outputs, weights [][]float32, option map[string]any)

package fallback

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/7blacky7/graphrt/buffer"
	"github.com/7blacky7/graphrt/fault"
	"github.com/7blacky7/graphrt/graph"
	"github.com/7blacky7/graphrt/kernel"
	"github.com/7blacky7/graphrt/logutil"
	"github.com/7blacky7/graphrt/runner"
)

// Name ist der Backend-Name.
const Name = "fallback"

// EntryFunc ist die Signatur eines fallback-Kernels.
type EntryFunc = func(inputs, outputs, weights [][]float32, option map[string]any)

// ============================================================================
// Runner
// ============================================================================

type call struct {
	name    string
	fn      EntryFunc
	inputs  [][]float32
	outputs [][]float32
	weights [][]float32
	option  map[string]any
}

var _ runner.Impl = (*impl)(nil)

type impl struct {
	desc  *graph.FallbackDescriptor
	funcs []EntryFunc

	weights   *buffer.Host
	variables *buffer.Host
	calls     []call
}

// NewRunner erstellt einen Runner fuer das fallback-Backend.
func NewRunner(opts runner.Options) *runner.Machine {
	return runner.New(&impl{}, opts)
}

func (r *impl) BackendName() string { return Name }

func (r *impl) Decode(body io.Reader) (graph.GraphDescriptor, error) {
	return runner.DecodeAs[graph.FallbackDescriptor](body)
}

func (r *impl) SetDescriptor(d graph.GraphDescriptor) error {
	desc, err := runner.As[*graph.FallbackDescriptor](Name, d)
	if err != nil {
		return err
	}
	r.desc = desc
	return nil
}

// Compile wertet den Kernelquelltext aus und loest alle Einsprungpunkte auf.
// Fehler bringen den Runner wie bei den anderen Backends in faulted.
func (r *impl) Compile(context.Context) error {
	m, err := kernel.Compile(r.desc.KernelSource)
	if err != nil {
		return fmt.Errorf("%w: %w", fault.ErrDeviceFault, err)
	}
	r.funcs = make([]EntryFunc, len(r.desc.ExecInfos))
	for i, info := range r.desc.ExecInfos {
		fn, err := kernel.Lookup[EntryFunc](m, info.EntryFuncName)
		if err != nil {
			return fmt.Errorf("%w: %w", fault.ErrDeviceFault, err)
		}
		r.funcs[i] = fn
	}
	return nil
}

// LoadWeights legt die Regionen an und loest die Argumentlisten aller
// Aufrufe einmalig auf.
func (r *impl) LoadWeights(ctx context.Context, weights []float32) error {
	r.weights = buffer.NewHost(r.desc.WeightLayout().TotalSize)
	r.variables = buffer.NewHost(r.desc.VariableAllocation.TotalSize)
	view, err := buffer.WriteView[float32](r.weights, 0, len(weights))
	if err != nil {
		return err
	}
	copy(view, weights)
	if err := r.weights.SyncWriteViews(ctx); err != nil {
		return err
	}

	r.calls = make([]call, len(r.desc.ExecInfos))
	for i, info := range r.desc.ExecInfos {
		c := call{name: info.EntryFuncName, fn: r.funcs[i], option: info.CallOption}
		if c.inputs, err = r.slices(info.Inputs); err != nil {
			return err
		}
		if c.outputs, err = r.slices(info.Outputs); err != nil {
			return err
		}
		if c.weights, err = r.slices(info.Weights); err != nil {
			return err
		}
		if c.option == nil {
			c.option = map[string]any{}
		}
		r.calls[i] = c
	}
	return nil
}

func (r *impl) slices(names []string) ([][]float32, error) {
	out := make([][]float32, len(names))
	for i, name := range names {
		a, weight, err := r.desc.Resolve(name)
		if err != nil {
			return nil, err
		}
		region := r.variables
		if weight {
			region = r.weights
		}
		view, err := buffer.WriteView[float32](region, a.Offset/graph.ElementSize, a.Size/graph.ElementSize)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out[i] = view
	}
	return out, nil
}

func (r *impl) InputViews(context.Context) ([][]float32, error) {
	return r.slices(r.desc.Inputs)
}

func (r *impl) OutputViews(context.Context) ([][]float32, error) {
	return r.slices(r.desc.Outputs)
}

// Run ruft die Kernel nacheinander auf. Eine Kernel-Panik ist ein Geraetefehler.
func (r *impl) Run(ctx context.Context) error {
	for _, c := range r.calls {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		if err := kernel.Call(c.name, func() { c.fn(c.inputs, c.outputs, c.weights, c.option) }); err != nil {
			return err
		}
		logutil.TraceContext(ctx, "fallback kernel", "entry", c.name, "duration", time.Since(start))
	}
	return nil
}

func (r *impl) Close() error {
	r.weights, r.variables, r.calls = nil, nil, nil
	return nil
}

// ============================================================================
// Backend
// ============================================================================

// Backend ist das fallback-Backend. Es ist immer verfuegbar.
type Backend struct {
	opts runner.Options
}

// New erstellt das Backend; opts werden an jeden Runner weitergegeben.
func New(opts runner.Options) *Backend {
	return &Backend{opts: opts}
}

func (b *Backend) Name() string               { return Name }
func (b *Backend) Init(context.Context) error { return nil }
func (b *Backend) Close() error               { return nil }

// CreateDescriptorRunner erstellt einen neuen Runner im Zustand empty.
func (b *Backend) CreateDescriptorRunner() runner.Runner {
	return NewRunner(b.opts)
}
