// Package runner definiert den Descriptor-Runner und seine Zustandsmaschine.
//
// MODUL: runner
// ZWECK: Gemeinsamer Lebenszyklus aller Backends
//        (empty -> descriptor-set -> compiled -> weights-loaded -> ready, plus faulted)
// INPUT: Graph-Descriptor, Gewichtsdaten, Eingabewerte ueber Views
// OUTPUT: Ausgabewerte ueber Views
// NEBENEFFEKTE: Backend-Ressourcen (Geraete-Buffer, Worker)
// ABHAENGIGKEITEN: graph, weights, fetch, fault
// HINWEISE: Aufrufe werden pro Runner serialisiert; Aufrufe ausserhalb der
//           Reihenfolge liefern fault.ErrSequencing
package runner

import (
	"context"
	"io"

	"github.com/7blacky7/graphrt/fetch"
	"github.com/7blacky7/graphrt/graph"
)

// State ist der Lebenszyklus-Zustand eines Runners.
type State int

const (
	StateEmpty State = iota
	StateDescriptorSet
	StateCompiled
	StateWeightsLoaded
	StateReady
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateDescriptorSet:
		return "descriptor-set"
	case StateCompiled:
		return "compiled"
	case StateWeightsLoaded:
		return "weights-loaded"
	case StateReady:
		return "ready-to-run"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Runner fuehrt einen Graph-Descriptor auf einem Backend aus.
type Runner interface {
	BackendName() string

	// ID identifiziert die Instanz in Logs
	ID() string

	// Load laedt Descriptor und Gewichte aus dir und durchlaeuft
	// SetDescriptor, Compile und LoadWeights. progress meldet nur den
	// Gewichts-Download.
	Load(ctx context.Context, dir string, progress fetch.ProgressFunc) error

	SetDescriptor(d graph.GraphDescriptor) error

	// Descriptor gibt den gesetzten Descriptor zurueck, nil vor SetDescriptor
	Descriptor() graph.GraphDescriptor

	Compile(ctx context.Context) error

	// LoadWeights dekodiert das Gewichts-Blob mit dem Encoding des Descriptors
	LoadWeights(ctx context.Context, data []byte) error

	// InputViews liefert pro Eingabe einen beschreibbaren View
	InputViews(ctx context.Context) ([][]float32, error)

	// OutputViews liefert pro Ausgabe einen View, der nach Run aktuell ist
	OutputViews(ctx context.Context) ([][]float32, error)

	Run(ctx context.Context) error

	State() State
	Close() error
}

// Impl ist der backend-spezifische Teil eines Runners. Die Machine ruft
// die Methoden nur in gueltiger Reihenfolge und nie gleichzeitig auf.
type Impl interface {
	BackendName() string

	// Decode liest den Descriptor-Typ des Backends
	Decode(r io.Reader) (graph.GraphDescriptor, error)

	SetDescriptor(d graph.GraphDescriptor) error
	Compile(ctx context.Context) error

	// LoadWeights erhaelt die dekodierten Gewichte (WeightLayout().Floats() Elemente)
	LoadWeights(ctx context.Context, weights []float32) error

	InputViews(ctx context.Context) ([][]float32, error)
	OutputViews(ctx context.Context) ([][]float32, error)
	Run(ctx context.Context) error
	Close() error
}
