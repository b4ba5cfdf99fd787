package graph

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/7blacky7/graphrt/fault"
)

const fallbackJSON = `{
	"inputs": ["x"],
	"outputs": ["y"],
	"weight_encoding": "raw",
	"weight_allocation": {"total_size": 4, "allocations": {"w": {"name": "w", "offset": 0, "size": 4}}},
	"variable_allocation": {"total_size": 8, "allocations": {
		"x": {"name": "x", "offset": 0, "size": 4},
		"y": {"name": "y", "offset": 4, "size": 4}
	}},
	"kernel_source": "package kernels",
	"exec_infos": [
		{"entry_func_name": "Mul", "inputs": ["x"], "outputs": ["y"], "weights": ["w"], "call_option": {"n": 1}}
	]
}`

func TestDecodeFallback(t *testing.T) {
	d, err := Decode[FallbackDescriptor](strings.NewReader(fallbackJSON))
	if err != nil {
		t.Fatalf("Decode() = %v", err)
	}

	if len(d.ExecInfos) != 1 || d.ExecInfos[0].EntryFuncName != "Mul" {
		t.Fatalf("ExecInfos = %+v", d.ExecInfos)
	}
	if got := d.ExecInfos[0].CallOption["n"]; got != float64(1) {
		t.Errorf("CallOption[n] = %v", got)
	}
	if d.Common().WeightAllocation.TotalSize != 4 {
		t.Errorf("Common() liefert falschen Descriptor: %+v", d.Common())
	}
}

func TestDecodeFallbackRejectsNonWeight(t *testing.T) {
	bad := strings.Replace(fallbackJSON, `"weights": ["w"]`, `"weights": ["x"]`, 1)
	if _, err := Decode[FallbackDescriptor](strings.NewReader(bad)); !errors.Is(err, fault.ErrConfiguration) {
		t.Errorf("Decode() = %v, erwartet ErrConfiguration", err)
	}
}

func TestDecodeMalformed(t *testing.T) {
	if _, err := Decode[WebGPUDescriptor](strings.NewReader("{not json")); !errors.Is(err, fault.ErrConfiguration) {
		t.Errorf("Decode() = %v, erwartet ErrConfiguration", err)
	}
}

func TestMetaBufferUnmarshal(t *testing.T) {
	want := MetaBuffer{1, 0, 0, 0, 255}

	var fromArray MetaBuffer
	if err := fromArray.UnmarshalJSON([]byte(`[1, 0, 0, 0, 255]`)); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, fromArray); diff != "" {
		t.Errorf("array mismatch (-want +got):\n%s", diff)
	}

	var fromString MetaBuffer
	encoded := `"` + base64.StdEncoding.EncodeToString(want) + `"`
	if err := fromString.UnmarshalJSON([]byte(encoded)); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, fromString); diff != "" {
		t.Errorf("base64 mismatch (-want +got):\n%s", diff)
	}

	var bad MetaBuffer
	if err := bad.UnmarshalJSON([]byte(`[256]`)); err == nil {
		t.Error("Byte 256 sollte abgelehnt werden")
	}
}

func TestInt32MetaBuffer(t *testing.T) {
	got := Int32MetaBuffer(1, -1, 258)
	want := MetaBuffer{1, 0, 0, 0, 0xff, 0xff, 0xff, 0xff, 2, 1, 0, 0}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Int32MetaBuffer mismatch (-want +got):\n%s", diff)
	}
}

func TestWebGPUValidateGeometry(t *testing.T) {
	d := WebGPUDescriptor{
		Descriptor: testDescriptor(),
		ExecInfos: []WebGPUExecInfo{{
			EntryFuncName:         "ScaleTwo",
			ThreadgroupsPerGrid:   Size{1, 1, 1},
			ThreadsPerThreadgroup: Size{0, 1, 1},
		}},
	}
	if err := d.Validate(); !errors.Is(err, fault.ErrConfiguration) {
		t.Errorf("Validate() = %v, erwartet ErrConfiguration", err)
	}

	d.ExecInfos[0].ThreadsPerThreadgroup = Size{64, 1, 1}
	if err := d.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestWebAssemblyModule(t *testing.T) {
	d := WebAssemblyDescriptor{Descriptor: testDescriptor(), KernelSource: "!!"}
	if err := d.Validate(); !errors.Is(err, fault.ErrConfiguration) {
		t.Errorf("Validate() = %v, erwartet ErrConfiguration", err)
	}

	d.KernelSource = base64.StdEncoding.EncodeToString([]byte{0, 'a', 's', 'm'})
	bin, err := d.Module()
	if err != nil || len(bin) != 4 {
		t.Errorf("Module() = %v, %v", bin, err)
	}
}

func TestFileNames(t *testing.T) {
	if DescriptorFile("webgpu") != "graph_webgpu.json" {
		t.Error(DescriptorFile("webgpu"))
	}
	if WeightFile("fallback") != "weight_fallback.bin" {
		t.Error(WeightFile("fallback"))
	}
}

// Originalformat: eine gemeinsame memory_layout, Einzel-Layouts ohne total_size
const webgpuSharedJSON = `{
	"inputs": ["x"],
	"outputs": ["y"],
	"weight_encoding": "raw",
	"memory_layout": {"total_size": 12, "allocations": {
		"w": {"name": "w", "offset": 0, "size": 4},
		"x": {"name": "x", "offset": 4, "size": 4},
		"y": {"name": "y", "offset": 8, "size": 4}
	}},
	"weight_allocation": {"allocations": {"w": {"name": "w", "offset": 0, "size": 4}}},
	"variable_allocation": {"allocations": {
		"x": {"name": "x", "offset": 4, "size": 4},
		"y": {"name": "y", "offset": 8, "size": 4}
	}},
	"kernel_source": "package kernels",
	"exec_infos": [{
		"entry_func_name": "Scale",
		"threadgroups_per_grid": {"width": 1, "height": 1, "depth": 1},
		"threads_per_thread_group": {"width": 1, "height": 1, "depth": 1},
		"meta_buffer": [0, 0, 0, 0]
	}]
}`

func TestDecodeSharedMemoryLayout(t *testing.T) {
	d, err := Decode[WebGPUDescriptor](strings.NewReader(webgpuSharedJSON))
	if err != nil {
		t.Fatalf("Decode() = %v", err)
	}

	if got := d.DataSize(); got != 12 {
		t.Errorf("DataSize() = %d, erwartet 12", got)
	}
	if got := d.WeightLayout().TotalSize; got != 4 {
		t.Errorf("WeightLayout().TotalSize = %d, erwartet 4", got)
	}

	// Offsets sind absolut und werden nicht verschoben
	for name, want := range map[string]int{"w": 0, "x": 4, "y": 8} {
		a, err := d.DataOffset(name)
		if err != nil {
			t.Fatalf("DataOffset(%q) = %v", name, err)
		}
		if a.Offset != want {
			t.Errorf("DataOffset(%q) = %d, erwartet %d", name, a.Offset, want)
		}
	}
}

func TestDecodeSharedMemoryLayoutWasm(t *testing.T) {
	wasm := strings.Replace(webgpuSharedJSON, `"kernel_source": "package kernels"`,
		`"kernel_source": "`+base64.StdEncoding.EncodeToString([]byte("\x00asm"))+`"`, 1)
	d, err := Decode[WebAssemblyDescriptor](strings.NewReader(wasm))
	if err != nil {
		t.Fatalf("Decode() = %v", err)
	}
	if got := d.DataSize(); got != 12 {
		t.Errorf("DataSize() = %d, erwartet 12", got)
	}
}

func TestSharedMemoryLayoutRejected(t *testing.T) {
	// x ueberlappt w nur in der Kombination beider Layouts
	overlap := strings.Replace(webgpuSharedJSON,
		`"variable_allocation": {"allocations": {
		"x": {"name": "x", "offset": 4, "size": 4}`,
		`"variable_allocation": {"allocations": {
		"x": {"name": "x", "offset": 0, "size": 4}`, 1)

	cases := map[string]string{
		"out of range": strings.Replace(webgpuSharedJSON, `"total_size": 12`, `"total_size": 8`, 1),
		"overlap":      overlap,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode[WebGPUDescriptor](strings.NewReader(body)); !errors.Is(err, fault.ErrConfiguration) {
				t.Errorf("Decode() = %v, erwartet ErrConfiguration", err)
			}
		})
	}
}

func TestFallbackIgnoresSharedMemoryLayout(t *testing.T) {
	body := strings.Replace(fallbackJSON, `"weight_encoding": "raw",`,
		`"weight_encoding": "raw", "memory_layout": {"total_size": 0},`, 1)
	d, err := Decode[FallbackDescriptor](strings.NewReader(body))
	if err != nil {
		t.Fatalf("Decode() = %v", err)
	}
	if got := d.WeightLayout().TotalSize; got != 4 {
		t.Errorf("WeightLayout().TotalSize = %d, erwartet 4", got)
	}
}
