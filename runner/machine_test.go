package runner

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/7blacky7/graphrt/fault"
	"github.com/7blacky7/graphrt/graph"
)

var _ Impl = (*fakeImpl)(nil)

// fakeImpl rechnet y = x * 2 auf dem Host.
type fakeImpl struct {
	desc     *graph.FallbackDescriptor
	weights  []float32
	x, y     []float32
	runErr   error
	compiled int
	closed   bool
}

func (f *fakeImpl) BackendName() string { return "fallback" }

func (f *fakeImpl) Decode(r io.Reader) (graph.GraphDescriptor, error) {
	return DecodeAs[graph.FallbackDescriptor](r)
}

func (f *fakeImpl) SetDescriptor(d graph.GraphDescriptor) error {
	desc, err := As[*graph.FallbackDescriptor]("fallback", d)
	f.desc = desc
	return err
}

func (f *fakeImpl) Compile(context.Context) error {
	f.compiled++
	return nil
}

func (f *fakeImpl) LoadWeights(_ context.Context, w []float32) error {
	f.weights = w
	f.x, f.y = make([]float32, 1), make([]float32, 1)
	return nil
}

func (f *fakeImpl) InputViews(context.Context) ([][]float32, error)  { return [][]float32{f.x}, nil }
func (f *fakeImpl) OutputViews(context.Context) ([][]float32, error) { return [][]float32{f.y}, nil }

func (f *fakeImpl) Run(context.Context) error {
	if f.runErr != nil {
		return f.runErr
	}
	f.y[0] = f.x[0] * 2
	return nil
}

func (f *fakeImpl) Close() error {
	f.closed = true
	return nil
}

func descriptor() *graph.FallbackDescriptor {
	return &graph.FallbackDescriptor{
		Descriptor: graph.Descriptor{
			Inputs:             []string{"x"},
			Outputs:            []string{"y"},
			WeightAllocation:   graph.NewMemoryLayout(0),
			VariableAllocation: graph.NewMemoryLayout(8, graph.Allocation{Name: "x", Size: 4}, graph.Allocation{Name: "y", Offset: 4, Size: 4}),
			WeightEncoding:     "raw",
		},
		ExecInfos: []graph.FallbackExecInfo{{EntryFuncName: "Scale", Inputs: []string{"x"}, Outputs: []string{"y"}}},
	}
}

func requireSequencing(t *testing.T, err error) {
	t.Helper()
	if !errors.Is(err, fault.ErrSequencing) {
		t.Fatalf("erwartet ErrSequencing, bekommen %v", err)
	}
}

func TestLifecycle(t *testing.T) {
	ctx := t.Context()
	impl := &fakeImpl{}
	m := New(impl, Options{})
	require.Equal(t, StateEmpty, m.State())
	require.NotEmpty(t, m.ID())
	require.Nil(t, m.Descriptor())

	d := descriptor()
	require.NoError(t, m.SetDescriptor(d))
	require.Equal(t, StateDescriptorSet, m.State())
	require.Same(t, d, m.Descriptor())
	require.NoError(t, m.Compile(ctx))
	require.NoError(t, m.LoadWeights(ctx, nil))
	require.Equal(t, StateWeightsLoaded, m.State())

	in, err := m.InputViews(ctx)
	require.NoError(t, err)
	requireSequencing(t, m.Run(ctx))

	out, err := m.OutputViews(ctx)
	require.NoError(t, err)
	require.Equal(t, StateReady, m.State())

	in[0][0] = 3
	require.NoError(t, m.Run(ctx))
	require.Equal(t, float32(6), out[0][0])

	// Views bleiben stabil
	again, err := m.InputViews(ctx)
	require.NoError(t, err)
	require.Same(t, &in[0][0], &again[0][0])

	require.NoError(t, m.Close())
	require.True(t, impl.closed)
	requireSequencing(t, m.Run(ctx))
}

func TestSequencing(t *testing.T) {
	ctx := t.Context()
	m := New(&fakeImpl{}, Options{})

	requireSequencing(t, m.LoadWeights(ctx, nil))
	requireSequencing(t, m.Compile(ctx))
	_, err := m.InputViews(ctx)
	requireSequencing(t, err)

	require.NoError(t, m.SetDescriptor(descriptor()))
	requireSequencing(t, m.SetDescriptor(descriptor()))
	requireSequencing(t, m.LoadWeights(ctx, nil))

	require.NoError(t, m.Compile(ctx))
	requireSequencing(t, m.Compile(ctx))
	requireSequencing(t, m.Load(ctx, t.TempDir(), nil))
}

func TestInvalidDescriptor(t *testing.T) {
	m := New(&fakeImpl{}, Options{})
	d := descriptor()
	d.Outputs = []string{"missing"}
	if err := m.SetDescriptor(d); !errors.Is(err, fault.ErrConfiguration) {
		t.Fatalf("erwartet ErrConfiguration, bekommen %v", err)
	}
	require.Equal(t, StateEmpty, m.State())

	if err := m.SetDescriptor(&graph.WebGPUDescriptor{Descriptor: descriptor().Descriptor}); !errors.Is(err, fault.ErrConfiguration) {
		t.Fatalf("falscher Descriptor-Typ: erwartet ErrConfiguration, bekommen %v", err)
	}
}

func TestUnsupportedEncoding(t *testing.T) {
	ctx := t.Context()
	m := New(&fakeImpl{}, Options{})
	d := descriptor()
	d.WeightEncoding = "gzip"
	require.NoError(t, m.SetDescriptor(d))
	require.NoError(t, m.Compile(ctx))
	if err := m.LoadWeights(ctx, nil); !errors.Is(err, fault.ErrConfiguration) {
		t.Fatalf("erwartet ErrConfiguration, bekommen %v", err)
	}
	require.Equal(t, StateCompiled, m.State())
}

func TestFaulted(t *testing.T) {
	ctx := t.Context()
	impl := &fakeImpl{runErr: fault.ErrDeviceFault}
	m := New(impl, Options{})
	require.NoError(t, m.SetDescriptor(descriptor()))
	require.NoError(t, m.Compile(ctx))
	require.NoError(t, m.LoadWeights(ctx, nil))
	_, err := m.InputViews(ctx)
	require.NoError(t, err)
	_, err = m.OutputViews(ctx)
	require.NoError(t, err)

	require.ErrorIs(t, m.Run(ctx), fault.ErrDeviceFault)
	require.Equal(t, StateFaulted, m.State())

	impl.runErr = nil
	require.ErrorIs(t, m.Run(ctx), fault.ErrDeviceFault)
	_, err = m.OutputViews(ctx)
	require.ErrorIs(t, err, fault.ErrDeviceFault)
}

const descriptorJSON = `{
	"inputs": ["x"],
	"outputs": ["y"],
	"weight_allocation": {"total_size": 4, "allocations": {"w": {"offset": 0, "size": 4}}},
	"variable_allocation": {"total_size": 8, "allocations": {"x": {"offset": 0, "size": 4}, "y": {"offset": 4, "size": 4}}},
	"weight_encoding": "raw",
	"kernel_source": "package kernels",
	"exec_infos": [{"entry_func_name": "Scale", "inputs": ["x"], "outputs": ["y"], "weights": ["w"]}]
}`

func TestLoad(t *testing.T) {
	ctx := t.Context()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, graph.DescriptorFile("fallback")), []byte(descriptorJSON), 0o666))
	require.NoError(t, os.WriteFile(filepath.Join(dir, graph.WeightFile("fallback")), []byte{0, 0, 0x80, 0x3f}, 0o666))

	impl := &fakeImpl{}
	m := New(impl, Options{})
	var last int64
	require.NoError(t, m.Load(ctx, dir, func(loaded, total int64) {
		require.Equal(t, int64(4), total)
		last = loaded
	}))
	require.Equal(t, StateWeightsLoaded, m.State())
	require.Equal(t, int64(4), last)
	require.Equal(t, []float32{1}, impl.weights)
	require.Equal(t, 1, impl.compiled)
	require.Equal(t, "Scale", impl.desc.ExecInfos[0].EntryFuncName)
}

func TestLoadMissingFile(t *testing.T) {
	m := New(&fakeImpl{}, Options{})
	err := m.Load(t.Context(), t.TempDir(), nil)
	require.ErrorIs(t, err, fault.ErrTransport)
	require.Equal(t, StateEmpty, m.State())
}

func TestJoinPath(t *testing.T) {
	cases := map[[2]string]string{
		{"", "graph_webgpu.json"}:                         "graph_webgpu.json",
		{"/models/resnet", "graph_webgpu.json"}:           "/models/resnet/graph_webgpu.json",
		{"https://example.com/m/", "weight_webgpu.bin"}: "https://example.com/m/weight_webgpu.bin",
	}
	for in, want := range cases {
		if got := JoinPath(in[0], in[1]); got != want {
			t.Errorf("JoinPath(%q, %q) = %q, erwartet %q", in[0], in[1], got, want)
		}
	}
}
