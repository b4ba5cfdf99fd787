// MODUL: variants
// ZWECK: Backend-spezifische Descriptor-Erweiterungen (webgpu, webassembly, fallback)
// INPUT: JSON-Felder kernel_source und exec_infos
// OUTPUT: WebGPUDescriptor, WebAssemblyDescriptor, FallbackDescriptor
// NEBENEFFEKTE: Keine
// ABHAENGIGKEITEN: descriptor.go
// HINWEISE: Meta-Buffer sind vorab serialisierte Kernel-Parameter

package graph

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/7blacky7/graphrt/fault"
)

// ============================================================================
// Hilfstypen
// ============================================================================

// Size ist eine dreidimensionale Dispatch-Groesse.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	Depth  int `json:"depth"`
}

// Count gibt das Produkt der Dimensionen zurueck.
func (s Size) Count() int {
	return s.Width * s.Height * s.Depth
}

// Valid meldet, ob alle Dimensionen positiv sind.
func (s Size) Valid() bool {
	return s.Width > 0 && s.Height > 0 && s.Depth > 0
}

// MetaBuffer enthaelt serialisierte skalare Kernel-Parameter.
// Im JSON entweder als Byte-Array oder als base64-String.
type MetaBuffer []byte

// UnmarshalJSON akzeptiert [1,2,3] und "AQID".
func (m *MetaBuffer) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return fmt.Errorf("meta_buffer: %w", err)
		}
		*m = raw
		return nil
	}

	var values []int
	if err := json.Unmarshal(b, &values); err != nil {
		return err
	}
	raw := make([]byte, len(values))
	for i, v := range values {
		if v < 0 || v > 255 {
			return fmt.Errorf("meta_buffer: byte %d out of range: %d", i, v)
		}
		raw[i] = byte(v)
	}
	*m = raw
	return nil
}

// Int32MetaBuffer serialisiert Parameter als little-endian int32.
func Int32MetaBuffer(values ...int32) MetaBuffer {
	m := make(MetaBuffer, 0, 4*len(values))
	for _, v := range values {
		m = binary.LittleEndian.AppendUint32(m, uint32(v))
	}
	return m
}

// ============================================================================
// webgpu
// ============================================================================

// WebGPUExecInfo beschreibt einen Compute-Dispatch.
type WebGPUExecInfo struct {
	EntryFuncName         string     `json:"entry_func_name"`
	ThreadgroupsPerGrid   Size       `json:"threadgroups_per_grid"`
	ThreadsPerThreadgroup Size       `json:"threads_per_thread_group"`
	MetaBuffer            MetaBuffer `json:"meta_buffer"`
}

// WebGPUDescriptor ist der Descriptor des GPU-Backends.
type WebGPUDescriptor struct {
	Descriptor
	KernelSource string           `json:"kernel_source"`
	ExecInfos    []WebGPUExecInfo `json:"exec_infos"`
}

// Validate prueft den gemeinsamen Teil und die Dispatch-Geometrie.
func (d *WebGPUDescriptor) Validate() error {
	if err := d.Descriptor.Validate(); err != nil {
		return err
	}
	for i, info := range d.ExecInfos {
		if info.EntryFuncName == "" {
			return fmt.Errorf("%w: exec_infos[%d]: empty entry_func_name", fault.ErrConfiguration, i)
		}
		if !info.ThreadgroupsPerGrid.Valid() || !info.ThreadsPerThreadgroup.Valid() {
			return fmt.Errorf("%w: exec_infos[%d] %s: invalid dispatch geometry", fault.ErrConfiguration, i, info.EntryFuncName)
		}
	}
	return nil
}

// ============================================================================
// webassembly
// ============================================================================

// WebAssemblyExecInfo beschreibt den Aufruf einer exportierten wasm-Funktion.
type WebAssemblyExecInfo struct {
	EntryFuncName string     `json:"entry_func_name"`
	MetaBuffer    MetaBuffer `json:"meta_buffer"`
}

// WebAssemblyDescriptor ist der Descriptor des WebAssembly-Backends.
// KernelSource enthaelt das wasm-Modul base64-kodiert.
type WebAssemblyDescriptor struct {
	Descriptor
	KernelSource string                `json:"kernel_source"`
	ExecInfos    []WebAssemblyExecInfo `json:"exec_infos"`
}

// Validate prueft den gemeinsamen Teil und das Kernel-Modul.
func (d *WebAssemblyDescriptor) Validate() error {
	if err := d.Descriptor.Validate(); err != nil {
		return err
	}
	if _, err := d.Module(); err != nil {
		return err
	}
	for i, info := range d.ExecInfos {
		if info.EntryFuncName == "" {
			return fmt.Errorf("%w: exec_infos[%d]: empty entry_func_name", fault.ErrConfiguration, i)
		}
	}
	return nil
}

// Module dekodiert das wasm-Binary.
func (d *WebAssemblyDescriptor) Module() ([]byte, error) {
	bin, err := base64.StdEncoding.DecodeString(d.KernelSource)
	if err != nil {
		return nil, fmt.Errorf("%w: kernel_source is not base64: %v", fault.ErrConfiguration, err)
	}
	return bin, nil
}

// ============================================================================
// fallback
// ============================================================================

// FallbackExecInfo beschreibt einen Kernel-Aufruf mit benannten Argumenten.
type FallbackExecInfo struct {
	EntryFuncName string         `json:"entry_func_name"`
	Inputs        []string       `json:"inputs"`
	Outputs       []string       `json:"outputs"`
	Weights       []string       `json:"weights"`
	CallOption    map[string]any `json:"call_option"`
}

// FallbackDescriptor ist der Descriptor des interpretierten Backends.
type FallbackDescriptor struct {
	Descriptor
	KernelSource string             `json:"kernel_source"`
	ExecInfos    []FallbackExecInfo `json:"exec_infos"`
}

// Validate prueft, dass alle Argumentnamen in genau einem Layout liegen.
// Der fallback-Runner haelt zwei getrennte Regionen, daher braucht jedes
// Layout sein eigenes total_size; memory_layout wird ignoriert.
func (d *FallbackDescriptor) Validate() error {
	if err := d.Descriptor.validate(false); err != nil {
		return err
	}
	for i, info := range d.ExecInfos {
		if info.EntryFuncName == "" {
			return fmt.Errorf("%w: exec_infos[%d]: empty entry_func_name", fault.ErrConfiguration, i)
		}
		for _, name := range slices.Concat(info.Inputs, info.Outputs, info.Weights) {
			if _, _, err := d.Resolve(name); err != nil {
				return fmt.Errorf("exec_infos[%d] %s: %w", i, info.EntryFuncName, err)
			}
		}
		for _, name := range info.Weights {
			if _, weight, _ := d.Resolve(name); !weight {
				return fmt.Errorf("%w: exec_infos[%d] %s: %q is not a weight", fault.ErrConfiguration, i, info.EntryFuncName, name)
			}
		}
	}
	return nil
}
