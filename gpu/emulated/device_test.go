package emulated

import (
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/7blacky7/graphrt/buffer"
	"github.com/7blacky7/graphrt/fault"
	"github.com/7blacky7/graphrt/gpu"
)

const kernels = `package kernels

// Scale2 multipliziert n Elemente: meta = [x, y, n]
func Scale2(index, total int, floats [][]float32, ints [][]int32) {
	meta := ints[1]
	x, y, n := int(meta[0]), int(meta[1]), int(meta[2])
	for i := index; i < n; i += total {
		floats[0][y+i] = floats[0][x+i] * 2
	}
}

func AddOne(index, total int, floats [][]float32, ints [][]int32) {
	if index < len(floats[0]) {
		floats[0][index]++
	}
}

func Boom(index, total int, floats [][]float32, ints [][]int32) {
	if index == total-1 {
		panic("boom")
	}
}

func helperSignature(x int) int { return x }

func Other(x int) int { return helperSignature(x) }
`

func one() gpu.Size { return gpu.Size{Width: 1, Height: 1, Depth: 1} }

func setup(t *testing.T) (*Device, gpu.Library) {
	t.Helper()
	d := New(4)
	t.Cleanup(func() { d.Close() })
	lib, err := d.NewLibrary(kernels)
	require.NoError(t, err)
	return d, lib
}

func pipeline(t *testing.T, d *Device, lib gpu.Library, name string) gpu.PipelineState {
	t.Helper()
	fn, err := lib.Function(name)
	require.NoError(t, err)
	ps, err := d.NewPipelineState(fn)
	require.NoError(t, err)
	return ps
}

func TestRegistered(t *testing.T) {
	require.Contains(t, gpu.Drivers(), DriverName)
	d, err := gpu.Open(DriverName)
	require.NoError(t, err)
	require.NoError(t, d.Close())
}

func TestLibraryFunctions(t *testing.T) {
	_, lib := setup(t)
	if got := lib.FunctionNames(); !slices.Equal(got, []string{"Scale2", "AddOne", "Boom"}) {
		t.Errorf("erwartet nur Compute-Funktionen, bekommen %v", got)
	}
	if _, err := lib.Function("Other"); !errors.Is(err, fault.ErrConfiguration) {
		t.Errorf("erwartet ErrConfiguration, bekommen %v", err)
	}
}

func TestDispatch(t *testing.T) {
	d, lib := setup(t)
	ps := pipeline(t, d, lib, "Scale2")

	data, err := d.NewBuffer(4 * 8)
	require.NoError(t, err)
	copy(buffer.AsSlice[float32](data.Contents()), []float32{1, 2, 3, 4})
	meta, err := d.NewBuffer(12)
	require.NoError(t, err)
	copy(buffer.AsSlice[int32](meta.Contents()), []int32{0, 4, 4})

	cb := d.NewCommandQueue().CommandBuffer()
	enc := cb.ComputeCommandEncoder()
	enc.SetPipelineState(ps)
	enc.SetBuffer(data, 0, 0)
	enc.SetBuffer(meta, 0, 1)
	enc.Dispatch(gpu.Size{Width: 2, Height: 1, Depth: 1}, gpu.Size{Width: 2, Height: 1, Depth: 1})
	enc.EndEncoding()
	cb.Commit()

	require.NoError(t, gpu.Wait(t.Context(), cb))
	require.Equal(t, []float32{1, 2, 3, 4, 2, 4, 6, 8}, buffer.AsSlice[float32](data.Contents()))
}

func TestQueueOrder(t *testing.T) {
	d, lib := setup(t)
	ps := pipeline(t, d, lib, "AddOne")
	data, err := d.NewBuffer(4)
	require.NoError(t, err)

	q := d.NewCommandQueue()
	var last gpu.CommandBuffer
	for range 10 {
		cb := q.CommandBuffer()
		enc := cb.ComputeCommandEncoder()
		enc.SetPipelineState(ps)
		enc.SetBuffer(data, 0, 0)
		enc.Dispatch(one(), one())
		enc.EndEncoding()
		cb.Commit()
		last = cb
	}

	// die Queue fuehrt in Commit-Reihenfolge aus
	require.NoError(t, gpu.Wait(t.Context(), last))
	require.Equal(t, float32(10), buffer.AsSlice[float32](data.Contents())[0])
}

func TestKernelPanic(t *testing.T) {
	d, lib := setup(t)
	ps := pipeline(t, d, lib, "Boom")

	cb := d.NewCommandQueue().CommandBuffer()
	enc := cb.ComputeCommandEncoder()
	enc.SetPipelineState(ps)
	enc.Dispatch(one(), gpu.Size{Width: 4, Height: 1, Depth: 1})
	enc.EndEncoding()
	cb.Commit()

	if err := gpu.Wait(t.Context(), cb); !errors.Is(err, fault.ErrDeviceFault) {
		t.Fatalf("erwartet ErrDeviceFault, bekommen %v", err)
	}
}

func TestDispatchWithoutPipelineState(t *testing.T) {
	d, _ := setup(t)
	cb := d.NewCommandQueue().CommandBuffer()
	enc := cb.ComputeCommandEncoder()
	enc.Dispatch(one(), one())
	enc.EndEncoding()
	cb.Commit()

	if err := gpu.Wait(t.Context(), cb); !errors.Is(err, fault.ErrConfiguration) {
		t.Fatalf("erwartet ErrConfiguration, bekommen %v", err)
	}
}

func TestClosedDevice(t *testing.T) {
	d := New(1)
	q := d.NewCommandQueue()
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	cb := q.CommandBuffer()
	cb.Commit()
	if err := gpu.Wait(t.Context(), cb); !errors.Is(err, fault.ErrDeviceFault) {
		t.Errorf("Commit nach Close: erwartet ErrDeviceFault, bekommen %v", err)
	}
	if _, err := d.NewBuffer(4); !errors.Is(err, fault.ErrDeviceFault) {
		t.Errorf("NewBuffer nach Close: erwartet ErrDeviceFault, bekommen %v", err)
	}
}
