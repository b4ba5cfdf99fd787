// machine.go - Zustandsmaschine fuer Runner
// Dieses Modul enthaelt:
// - Machine: implementiert Runner ueber eine backend-spezifische Impl
// - Uebergangspruefungen, Fehlerzustand und Logging pro Instanz
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/7blacky7/graphrt/fault"
	"github.com/7blacky7/graphrt/fetch"
	"github.com/7blacky7/graphrt/graph"
	"github.com/7blacky7/graphrt/weights"
)

// Options konfigurieren eine Machine.
type Options struct {
	// Fetcher fuer Load; nil = fetch.New ohne Cache
	Fetcher fetch.Fetcher
}

// Machine implementiert Runner.
type Machine struct {
	impl    Impl
	fetcher fetch.Fetcher
	id      string
	logger  *slog.Logger

	mu      sync.Mutex
	state   State
	closed  bool
	fault   error
	desc    graph.GraphDescriptor
	inputs  [][]float32
	outputs [][]float32
}

var _ Runner = (*Machine)(nil)

// New erstellt eine Machine im Zustand empty.
func New(impl Impl, opts Options) *Machine {
	if opts.Fetcher == nil {
		opts.Fetcher = fetch.New(fetch.Options{})
	}
	id := uuid.NewString()
	return &Machine{
		impl:    impl,
		fetcher: opts.Fetcher,
		id:      id,
		logger:  slog.With("backend", impl.BackendName(), "runner", id),
	}
}

func (m *Machine) BackendName() string { return m.impl.BackendName() }
func (m *Machine) ID() string          { return m.id }

// State gibt den aktuellen Zustand zurueck.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Descriptor gibt den gesetzten Descriptor zurueck (nil im Zustand empty).
func (m *Machine) Descriptor() graph.GraphDescriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.desc
}

// ============================================================================
// Uebergaenge
// ============================================================================

// require prueft den Zustand; m.mu muss gehalten werden.
func (m *Machine) require(op string, allowed ...State) error {
	if m.closed {
		return fmt.Errorf("%w: %s: runner closed", fault.ErrSequencing, op)
	}
	if m.state == StateFaulted {
		return fmt.Errorf("%w: %s: runner faulted: %v", fault.ErrDeviceFault, op, m.fault)
	}
	for _, s := range allowed {
		if m.state == s {
			return nil
		}
	}
	return fmt.Errorf("%w: %s not allowed in state %s", fault.ErrSequencing, op, m.state)
}

// fail setzt den Runner bei Geraetefehlern in den Zustand faulted.
func (m *Machine) fail(op string, err error) error {
	if errors.Is(err, fault.ErrDeviceFault) {
		m.state = StateFaulted
		m.fault = err
		m.logger.Error("runner faulted", "op", op, "error", err)
	}
	return err
}

func (m *Machine) SetDescriptor(d graph.GraphDescriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setDescriptor(d)
}

func (m *Machine) setDescriptor(d graph.GraphDescriptor) error {
	if err := m.require("set descriptor", StateEmpty); err != nil {
		return err
	}
	if d == nil {
		return fmt.Errorf("%w: nil descriptor", fault.ErrConfiguration)
	}
	if err := d.Validate(); err != nil {
		return err
	}
	if err := m.impl.SetDescriptor(d); err != nil {
		return m.fail("set descriptor", err)
	}
	m.desc = d
	m.state = StateDescriptorSet
	return nil
}

func (m *Machine) Compile(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.compile(ctx)
}

func (m *Machine) compile(ctx context.Context) error {
	if err := m.require("compile", StateDescriptorSet); err != nil {
		return err
	}
	start := time.Now()
	if err := m.impl.Compile(ctx); err != nil {
		return m.fail("compile", err)
	}
	m.state = StateCompiled
	m.logger.Debug("runner compiled", "duration", time.Since(start))
	return nil
}

func (m *Machine) LoadWeights(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadWeights(ctx, data)
}

func (m *Machine) loadWeights(ctx context.Context, data []byte) error {
	if err := m.require("load weights", StateCompiled); err != nil {
		return err
	}
	common := m.desc.Common()
	decoded, err := weights.Decode(common.WeightEncoding, data, common.WeightLayout())
	if err != nil {
		return err
	}
	if err := m.impl.LoadWeights(ctx, decoded); err != nil {
		return m.fail("load weights", err)
	}
	m.state = StateWeightsLoaded
	m.logger.Debug("runner weights loaded", "encoding", common.WeightEncoding, "bytes", len(data))
	return nil
}

// InputViews liefert bei jedem Aufruf dieselben Views.
func (m *Machine) InputViews(ctx context.Context) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.require("input views", StateWeightsLoaded, StateReady); err != nil {
		return nil, err
	}
	if m.inputs == nil {
		views, err := m.impl.InputViews(ctx)
		if err != nil {
			return nil, m.fail("input views", err)
		}
		m.inputs = views
		m.promote()
	}
	return m.inputs, nil
}

// OutputViews liefert bei jedem Aufruf dieselben Views.
func (m *Machine) OutputViews(ctx context.Context) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.require("output views", StateWeightsLoaded, StateReady); err != nil {
		return nil, err
	}
	if m.outputs == nil {
		views, err := m.impl.OutputViews(ctx)
		if err != nil {
			return nil, m.fail("output views", err)
		}
		m.outputs = views
		m.promote()
	}
	return m.outputs, nil
}

func (m *Machine) promote() {
	if m.inputs != nil && m.outputs != nil {
		m.state = StateReady
	}
}

func (m *Machine) Run(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.require("run", StateReady); err != nil {
		return err
	}
	start := time.Now()
	if err := m.impl.Run(ctx); err != nil {
		return m.fail("run", err)
	}
	m.logger.Debug("runner run", "duration", time.Since(start))
	return nil
}

// Close gibt die Backend-Ressourcen frei. Weitere Aufrufe liefern
// fault.ErrSequencing.
func (m *Machine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.impl.Close()
}
