// MODUL: handler
// ZWECK: Verwaltung eines GPU-Geraets fuer das webgpu-Backend
// INPUT: Kernelquelltext, Dispatch-Auftraege der Runner
// OUTPUT: Buffer, Pipeline-States, Completion-Handles
// NEBENEFFEKTE: Oeffnet den Treiber aus GRAPHRT_GPU_DRIVER
// ABHAENGIGKEITEN: gpu, envconfig, fault
// HINWEISE: Der erste Geraete- oder Compile-Fehler ist dauerhaft; alle
//           folgenden Aufrufe liefern ihn erneut (fault.ErrDeviceFault)

package webgpu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/7blacky7/graphrt/envconfig"
	"github.com/7blacky7/graphrt/fault"
	"github.com/7blacky7/graphrt/gpu"
)

// Handler kapselt Geraet, Command-Queue und die geladenen Kernel.
type Handler struct {
	mu sync.Mutex

	device gpu.Device
	queue  gpu.CommandQueue

	functions  map[string]gpu.Function
	namespaces map[string][]string
	pipelines  map[string]gpu.PipelineState

	// unbeobachtete Command-Buffer, deren Fehler beim naechsten Warten geprueft werden
	inflight []gpu.CommandBuffer

	fault error
}

// NewHandler erstellt einen nicht initialisierten Handler.
func NewHandler() *Handler {
	return &Handler{
		functions:  make(map[string]gpu.Function),
		namespaces: make(map[string][]string),
		pipelines:  make(map[string]gpu.PipelineState),
	}
}

// Init oeffnet den konfigurierten Treiber. Ohne Treiber liefert Init
// fault.ErrPlatformUnavailable.
func (h *Handler) Init(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.device != nil {
		return nil
	}

	device, err := gpu.Open(envconfig.GPUDriver())
	if err != nil {
		return err
	}
	h.device = device
	h.queue = device.NewCommandQueue()
	slog.Debug("gpu device opened", "device", device.Name())
	return nil
}

// check prueft Initialisierung und Fehlerzustand; h.mu muss gehalten werden.
func (h *Handler) check() error {
	if h.fault != nil {
		return h.fault
	}
	if h.device == nil {
		return fmt.Errorf("%w: gpu handler not initialized", fault.ErrSequencing)
	}
	return nil
}

// setFault macht err dauerhaft; h.mu muss gehalten werden.
func (h *Handler) setFault(err error) error {
	if h.fault == nil {
		if !errors.Is(err, fault.ErrDeviceFault) {
			err = fmt.Errorf("%w: %w", fault.ErrDeviceFault, err)
		}
		h.fault = err
		slog.Error("gpu handler faulted", "error", err)
	}
	return h.fault
}

// CreateBuffer legt einen Geraete-Buffer mit dem Inhalt data an.
func (h *Handler) CreateBuffer(data []byte) (gpu.Buffer, error) {
	return h.newBuffer(len(data), data)
}

func (h *Handler) newBuffer(length int, data []byte) (gpu.Buffer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.check(); err != nil {
		return nil, err
	}
	b, err := h.device.NewBuffer(length)
	if err != nil {
		return nil, h.setFault(err)
	}
	copy(b.Contents(), data)
	return b, nil
}

// qualify bildet den registrierten Namen einer Kernel-Funktion.
func qualify(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + "." + name
}

// LoadKernel uebersetzt source und registriert die Funktionen unter
// namespace. Ein erneutes Laden desselben Namespace ersetzt die bisherigen
// Funktionen und verwirft deren Pipeline-States.
func (h *Handler) LoadKernel(source, namespace string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.check(); err != nil {
		return err
	}

	lib, err := h.device.NewLibrary(source)
	if err != nil {
		return h.setFault(err)
	}

	for _, name := range h.namespaces[namespace] {
		delete(h.functions, name)
		delete(h.pipelines, name)
	}

	names := make([]string, 0, len(lib.FunctionNames()))
	for _, fn := range lib.FunctionNames() {
		f, err := lib.Function(fn)
		if err != nil {
			return h.setFault(err)
		}
		name := qualify(namespace, fn)
		h.functions[name] = f
		names = append(names, name)
	}
	h.namespaces[namespace] = names
	slog.Debug("gpu kernel loaded", "namespace", namespace, "functions", len(names))
	return nil
}

// Functions gibt alle registrierten Funktionsnamen sortiert zurueck.
func (h *Handler) Functions() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Sorted(maps.Keys(h.functions))
}

// PipelineStateByName gibt den Pipeline-State fuer name zurueck und legt
// ihn beim ersten Aufruf an.
func (h *Handler) PipelineStateByName(name string) (gpu.PipelineState, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.check(); err != nil {
		return nil, err
	}
	return h.pipelineState(name)
}

func (h *Handler) pipelineState(name string) (gpu.PipelineState, error) {
	if ps, ok := h.pipelines[name]; ok {
		return ps, nil
	}
	fn, ok := h.functions[name]
	if !ok {
		return nil, fmt.Errorf("%w: gpu function %q not loaded", fault.ErrConfiguration, name)
	}
	ps, err := h.device.NewPipelineState(fn)
	if err != nil {
		return nil, h.setFault(err)
	}
	h.pipelines[name] = ps
	return ps, nil
}

// Completion wartet auf einen Command-Buffer.
type Completion struct {
	h  *Handler
	cb gpu.CommandBuffer
}

// Wait blockiert bis der Command-Buffer und alle vorher eingereihten
// abgeschlossen sind. Ein Ausfuehrungsfehler macht den Handler fehlerhaft.
func (c *Completion) Wait(ctx context.Context) error {
	if err := gpu.Wait(ctx, c.cb); err != nil && ctx.Err() == nil {
		c.h.mu.Lock()
		defer c.h.mu.Unlock()
		return c.h.setFault(err)
	} else if err != nil {
		return err
	}
	return c.h.collect(c.cb)
}

// collect prueft die Fehler der vor cb eingereihten Command-Buffer.
func (h *Handler) collect(cb gpu.CommandBuffer) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	i := slices.Index(h.inflight, cb)
	if i < 0 {
		return h.fault
	}
	for _, prev := range h.inflight[:i] {
		if err := prev.Err(); err != nil {
			return h.setFault(err)
		}
	}
	h.inflight = slices.Delete(h.inflight, 0, i+1)
	return h.fault
}

// ExecuteSinglePipelineState kodiert einen Dispatch mit buffers an den
// Indizes 0..n-1 und reiht ihn ein. Ein Completion-Handle wird nur bei
// wantCompletion zurueckgegeben.
func (h *Handler) ExecuteSinglePipelineState(ctx context.Context, name string, groups, threads gpu.Size, buffers []gpu.Buffer, wantCompletion bool) (*Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.check(); err != nil {
		return nil, err
	}
	ps, err := h.pipelineState(name)
	if err != nil {
		return nil, err
	}

	cb := h.queue.CommandBuffer()
	enc := cb.ComputeCommandEncoder()
	enc.SetPipelineState(ps)
	for i, b := range buffers {
		enc.SetBuffer(b, 0, i)
	}
	enc.Dispatch(groups, threads)
	enc.EndEncoding()
	cb.Commit()
	h.inflight = append(h.inflight, cb)

	if !wantCompletion {
		return nil, nil
	}
	return &Completion{h: h, cb: cb}, nil
}

// Sync reiht einen leeren Command-Buffer ein und wartet auf ihn. Danach
// sind alle vorher eingereihten Dispatches abgeschlossen.
func (h *Handler) Sync(ctx context.Context) error {
	h.mu.Lock()
	if err := h.check(); err != nil {
		h.mu.Unlock()
		return err
	}
	cb := h.queue.CommandBuffer()
	cb.Commit()
	h.inflight = append(h.inflight, cb)
	h.mu.Unlock()

	return (&Completion{h: h, cb: cb}).Wait(ctx)
}

// Close gibt das Geraet frei.
func (h *Handler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.device == nil {
		return nil
	}
	err := h.device.Close()
	h.device, h.queue = nil, nil
	clear(h.functions)
	clear(h.namespaces)
	clear(h.pipelines)
	h.inflight = nil
	return err
}
