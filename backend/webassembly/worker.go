// MODUL: worker
// ZWECK: Isolierter Ausfuehrungskontext fuer WebAssembly-Kernel
// INPUT: wasm-Modul, Meta-Buffer, Upload/Download/Run-Auftraege
// OUTPUT: Antworten ueber einen typisierten Kanal
// NEBENEFFEKTE: Startet eine Goroutine mit eigener wazero-Runtime
// ABHAENGIGKEITEN: github.com/tetratelabs/wazero, envconfig, fault
// HINWEISE: Genau ein Auftrag ist gleichzeitig unterwegs. Jeder Roundtrip ist
//           durch envconfig.WorkerTimeout() und ctx begrenzt. Nach einem
//           Fehler wird der Worker geschlossen und nie wiederverwendet.
//           Kernel-ABI: Export "memory"; jeder Einsprungpunkt (data_ptr i32, meta_ptr i32)

package webassembly

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/7blacky7/graphrt/envconfig"
	"github.com/7blacky7/graphrt/fault"
)

// pageSize ist die Seitengroesse des linearen wasm-Speichers.
const pageSize = 65536

// ============================================================================
// Nachrichten
// ============================================================================

type op int

const (
	opInstantiate op = iota
	opUpload
	opDownload
	opRun
)

func (o op) String() string {
	return [...]string{"instantiate", "upload", "download", "run"}[o]
}

type request struct {
	op op

	// instantiate
	module   []byte
	dataSize int
	metas    [][]byte
	entries  []string

	// upload/download
	offset int
	data   []byte
	length int
}

type response struct {
	data []byte
	err  error
}

type envelope struct {
	req   request
	reply chan response
}

// ============================================================================
// Worker (Aufruferseite)
// ============================================================================

// Worker ist die Aufruferseite des isolierten Ausfuehrungskontexts.
type Worker struct {
	requests chan envelope
	stopped  chan struct{}
	cancel   context.CancelFunc

	// mu serialisiert Roundtrips
	mu     sync.Mutex
	broken error
	once   sync.Once
}

// StartWorker startet die Worker-Goroutine.
func StartWorker() *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		requests: make(chan envelope),
		stopped:  make(chan struct{}),
		cancel:   cancel,
	}
	go w.loop(ctx)
	return w
}

// roundTrip sendet req und wartet auf die Antwort.
func (w *Worker) roundTrip(ctx context.Context, req request) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.broken != nil {
		return nil, w.broken
	}

	timeout := envconfig.WorkerTimeout()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	reply := make(chan response, 1)
	select {
	case w.requests <- envelope{req: req, reply: reply}:
	case <-w.stopped:
		return nil, w.breakWith(fmt.Errorf("%w: wasm worker stopped", fault.ErrDeviceFault))
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, w.breakWith(fmt.Errorf("%w: wasm worker %s: no response within %s", fault.ErrDeviceFault, req.op, timeout))
	}

	select {
	case resp := <-reply:
		if resp.err != nil {
			return nil, w.breakWith(resp.err)
		}
		return resp.data, nil
	case <-w.stopped:
		return nil, w.breakWith(fmt.Errorf("%w: wasm worker stopped", fault.ErrDeviceFault))
	case <-ctx.Done():
		// der Auftrag laeuft noch; der Worker ist nicht mehr konsistent
		w.breakWith(fmt.Errorf("%w: wasm worker %s: %w", fault.ErrDeviceFault, req.op, ctx.Err()))
		return nil, ctx.Err()
	case <-timer.C:
		return nil, w.breakWith(fmt.Errorf("%w: wasm worker %s: no response within %s", fault.ErrDeviceFault, req.op, timeout))
	}
}

// breakWith schliesst den Worker dauerhaft; w.mu muss gehalten werden.
func (w *Worker) breakWith(err error) error {
	if !errors.Is(err, fault.ErrDeviceFault) {
		err = fmt.Errorf("%w: %w", fault.ErrDeviceFault, err)
	}
	if w.broken == nil {
		w.broken = err
		slog.Warn("wasm worker faulted", "error", err)
	}
	w.shutdown()
	return w.broken
}

func (w *Worker) shutdown() {
	w.once.Do(func() {
		w.cancel()
		close(w.requests)
	})
}

// Instantiate uebersetzt module, prueft die Exporte, reserviert die
// Datenregion und schreibt die Meta-Buffer.
func (w *Worker) Instantiate(ctx context.Context, module []byte, dataSize int, metas [][]byte, entries []string) error {
	_, err := w.roundTrip(ctx, request{op: opInstantiate, module: module, dataSize: dataSize, metas: metas, entries: entries})
	return err
}

// Upload schreibt data an offset der Datenregion.
func (w *Worker) Upload(ctx context.Context, offset int, data []byte) error {
	_, err := w.roundTrip(ctx, request{op: opUpload, offset: offset, data: data})
	return err
}

// Download liest len(dst) Bytes ab offset der Datenregion.
func (w *Worker) Download(ctx context.Context, offset int, dst []byte) error {
	data, err := w.roundTrip(ctx, request{op: opDownload, offset: offset, length: len(dst)})
	if err != nil {
		return err
	}
	copy(dst, data)
	return nil
}

// Run ruft alle Einsprungpunkte in Reihenfolge auf.
func (w *Worker) Run(ctx context.Context) error {
	_, err := w.roundTrip(ctx, request{op: opRun})
	return err
}

// Close beendet den Worker und wartet auf die Goroutine.
func (w *Worker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.broken == nil {
		w.broken = fmt.Errorf("%w: wasm worker closed", fault.ErrSequencing)
	}
	w.shutdown()
	<-w.stopped
	return nil
}

// ============================================================================
// Worker-Goroutine
// ============================================================================

type instance struct {
	runtime wazero.Runtime
	module  api.Module
	memory  api.Memory

	dataPtr  uint32
	dataSize int
	metaPtrs []uint32
	entries  []api.Function
	names    []string
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.stopped)

	var inst *instance
	defer func() {
		if inst != nil {
			inst.runtime.Close(context.Background())
		}
	}()

	for env := range w.requests {
		var resp response
		func() {
			defer func() {
				if r := recover(); r != nil {
					resp.err = fmt.Errorf("%w: wasm worker panic: %v", fault.ErrDeviceFault, r)
				}
			}()
			switch env.req.op {
			case opInstantiate:
				if inst != nil {
					resp.err = fmt.Errorf("%w: wasm module already instantiated", fault.ErrSequencing)
					return
				}
				inst, resp.err = instantiate(ctx, env.req)
			default:
				if inst == nil {
					resp.err = fmt.Errorf("%w: wasm worker %s before instantiate", fault.ErrSequencing, env.req.op)
					return
				}
				resp.data, resp.err = inst.handle(ctx, env.req)
			}
		}()
		env.reply <- resp
	}
}

func instantiate(ctx context.Context, req request) (*instance, error) {
	start := time.Now()
	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))

	inst, err := func() (*instance, error) {
		compiled, err := rt.CompileModule(ctx, req.module)
		if err != nil {
			return nil, fmt.Errorf("%w: compile wasm module: %v", fault.ErrConfiguration, err)
		}
		mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("kernels"))
		if err != nil {
			return nil, fmt.Errorf("%w: instantiate wasm module: %v", fault.ErrConfiguration, err)
		}

		mem := mod.ExportedMemory("memory")
		if mem == nil {
			return nil, fmt.Errorf("%w: wasm module does not export memory", fault.ErrConfiguration)
		}

		inst := &instance{runtime: rt, module: mod, memory: mem, dataSize: req.dataSize, names: req.entries}
		for _, name := range req.entries {
			fn := mod.ExportedFunction(name)
			if fn == nil {
				return nil, fmt.Errorf("%w: wasm module does not export %q", fault.ErrConfiguration, name)
			}
			if params := fn.Definition().ParamTypes(); !slices.Equal(params, []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}) {
				return nil, fmt.Errorf("%w: wasm function %q must take (i32, i32)", fault.ErrConfiguration, name)
			}
			inst.entries = append(inst.entries, fn)
		}

		if err := inst.allocate(req.metas); err != nil {
			return nil, err
		}
		return inst, nil
	}()
	if err != nil {
		rt.Close(context.Background())
		return nil, err
	}

	slog.Debug("wasm module instantiated", "entries", len(inst.entries), "data_ptr", inst.dataPtr, "duration", time.Since(start))
	return inst, nil
}

// allocate legt Datenregion und Meta-Buffer hinter das bisherige Speicherende.
func (inst *instance) allocate(metas [][]byte) error {
	base := inst.memory.Size()
	need := inst.dataSize
	for _, m := range metas {
		need += (len(m) + 3) &^ 3
	}

	pages := uint32((need + pageSize - 1) / pageSize)
	if pages > 0 {
		if _, ok := inst.memory.Grow(pages); !ok {
			return fmt.Errorf("%w: cannot grow wasm memory by %d pages", fault.ErrDeviceFault, pages)
		}
	}

	inst.dataPtr = base
	ptr := base + uint32(inst.dataSize)
	for _, m := range metas {
		if !inst.memory.Write(ptr, m) {
			return fmt.Errorf("%w: write meta buffer at %d", fault.ErrDeviceFault, ptr)
		}
		inst.metaPtrs = append(inst.metaPtrs, ptr)
		ptr += uint32((len(m) + 3) &^ 3)
	}
	return nil
}

func (inst *instance) handle(ctx context.Context, req request) ([]byte, error) {
	switch req.op {
	case opUpload:
		if req.offset < 0 || req.offset+len(req.data) > inst.dataSize {
			return nil, fmt.Errorf("%w: upload [%d, %d) out of data region", fault.ErrConfiguration, req.offset, req.offset+len(req.data))
		}
		if !inst.memory.Write(inst.dataPtr+uint32(req.offset), req.data) {
			return nil, fmt.Errorf("%w: wasm memory write failed", fault.ErrDeviceFault)
		}
		return nil, nil

	case opDownload:
		if req.offset < 0 || req.offset+req.length > inst.dataSize {
			return nil, fmt.Errorf("%w: download [%d, %d) out of data region", fault.ErrConfiguration, req.offset, req.offset+req.length)
		}
		view, ok := inst.memory.Read(inst.dataPtr+uint32(req.offset), uint32(req.length))
		if !ok {
			return nil, fmt.Errorf("%w: wasm memory read failed", fault.ErrDeviceFault)
		}
		return slices.Clone(view), nil

	case opRun:
		for i, fn := range inst.entries {
			if _, err := fn.Call(ctx, uint64(inst.dataPtr), uint64(inst.metaPtrs[i])); err != nil {
				return nil, fmt.Errorf("%w: wasm kernel %s: %v", fault.ErrDeviceFault, inst.names[i], err)
			}
		}
		return nil, nil
	}
	return nil, fmt.Errorf("%w: unknown worker request %d", fault.ErrConfiguration, req.op)
}

// ============================================================================
// Probe
// ============================================================================

// emptyModule ist das kleinste gueltige wasm-Modul.
var emptyModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// Probe uebersetzt ein leeres Modul in einer Wegwerf-Runtime.
func Probe(ctx context.Context) error {
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)
	if _, err := rt.CompileModule(ctx, emptyModule); err != nil {
		return fmt.Errorf("%w: webassembly runtime: %v", fault.ErrPlatformUnavailable, err)
	}
	return nil
}
