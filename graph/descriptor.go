// MODUL: descriptor
// ZWECK: Graph-Descriptor und seine Backend-Varianten
// INPUT: graph_<backend>.json aus dem Modell-Verzeichnis
// OUTPUT: validierte Descriptor-Strukturen
// NEBENEFFEKTE: Keine
// ABHAENGIGKEITEN: layout.go, fault
// HINWEISE: Descriptoren sind nach dem Laden unveraenderlich

package graph

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/7blacky7/graphrt/fault"
)

// ============================================================================
// Gemeinsamer Descriptor
// ============================================================================

// Descriptor ist der backend-unabhaengige Teil eines Graph-Descriptors.
type Descriptor struct {
	// Inputs und Outputs sind Variablennamen in Aufrufreihenfolge
	Inputs  []string `json:"inputs"`
	Outputs []string `json:"outputs"`

	// MemoryLayout ist die gemeinsame Datenregion von webgpu und webassembly.
	// Ist sie gesetzt, sind alle Offsets absolut in dieser Region und die
	// beiden Einzel-Layouts brauchen kein total_size.
	MemoryLayout *MemoryLayout `json:"memory_layout,omitempty"`

	WeightAllocation   MemoryLayout `json:"weight_allocation"`
	VariableAllocation MemoryLayout `json:"variable_allocation"`

	// WeightEncoding waehlt den Decoder fuer die Gewichtsdaten
	WeightEncoding string `json:"weight_encoding"`
}

// GraphDescriptor wird von allen Backend-Varianten implementiert.
type GraphDescriptor interface {
	Common() *Descriptor
	Validate() error
}

// Common gibt den gemeinsamen Teil zurueck.
func (d *Descriptor) Common() *Descriptor {
	return d
}

// Validate prueft die Layouts und dass Ein-/Ausgaben Variablen sind.
func (d *Descriptor) Validate() error {
	return d.validate(d.MemoryLayout != nil)
}

// validate prueft die Layouts gegen memory_layout (shared) oder jedes
// gegen sein eigenes total_size.
func (d *Descriptor) validate(shared bool) error {
	if shared {
		if err := d.validateShared(); err != nil {
			return err
		}
	} else {
		if err := d.WeightAllocation.Validate(); err != nil {
			return fmt.Errorf("weight_allocation: %w", err)
		}
		if err := d.VariableAllocation.Validate(); err != nil {
			return fmt.Errorf("variable_allocation: %w", err)
		}
	}
	if d.WeightEncoding == "" {
		return fmt.Errorf("%w: weight_encoding is empty", fault.ErrConfiguration)
	}

	for _, name := range slices.Concat(d.Inputs, d.Outputs) {
		if _, ok := d.VariableAllocation.Get(name); !ok {
			return fmt.Errorf("%w: input/output %q has no variable allocation", fault.ErrConfiguration, name)
		}
		if _, ok := d.WeightAllocation.Get(name); ok {
			return fmt.Errorf("%w: input/output %q is allocated as a weight", fault.ErrConfiguration, name)
		}
	}

	return nil
}

// validateShared prueft Gewichte und Variablen gemeinsam innerhalb von
// memory_layout: Bereich, Ausrichtung und Ueberlappung.
func (d *Descriptor) validateShared() error {
	if err := d.MemoryLayout.Validate(); err != nil {
		return fmt.Errorf("memory_layout: %w", err)
	}

	combined := NewMemoryLayout(d.MemoryLayout.TotalSize)
	for _, l := range []MemoryLayout{d.WeightAllocation, d.VariableAllocation} {
		for _, name := range l.Names() {
			if _, dup := combined.Get(name); dup {
				return fmt.Errorf("%w: %q is allocated in both layouts", fault.ErrConfiguration, name)
			}
			a, _ := l.Get(name)
			combined.Allocations.Set(name, a)
		}
	}
	if err := combined.Validate(); err != nil {
		return fmt.Errorf("memory_layout allocations: %w", err)
	}
	return nil
}

// Resolve sucht name in genau einem der beiden Layouts.
func (d *Descriptor) Resolve(name string) (a Allocation, weight bool, err error) {
	w, inWeights := d.WeightAllocation.Get(name)
	v, inVariables := d.VariableAllocation.Get(name)
	switch {
	case inWeights && inVariables:
		return Allocation{}, false, fmt.Errorf("%w: %q is allocated in both layouts", fault.ErrConfiguration, name)
	case inWeights:
		return w, true, nil
	case inVariables:
		return v, false, nil
	default:
		return Allocation{}, false, fmt.Errorf("%w: %q has no allocation", fault.ErrConfiguration, name)
	}
}

// WeightLayout ist das Layout, mit dem die Gewichtsdaten dekodiert werden.
// Fehlt total_size bei gemeinsamer memory_layout, reicht die Gewichtsregion
// vom Anfang bis zum Ende der letzten Gewichts-Allokation.
func (d *Descriptor) WeightLayout() MemoryLayout {
	l := d.WeightAllocation
	if d.MemoryLayout != nil && l.TotalSize == 0 {
		for _, name := range l.Names() {
			a, _ := l.Get(name)
			l.TotalSize = max(l.TotalSize, a.End())
		}
	}
	return l
}

// DataSize ist die Groesse der zusammenhaengenden Datenregion: memory_layout,
// sonst [Gewichte | Variablen].
func (d *Descriptor) DataSize() int {
	if d.MemoryLayout != nil {
		return d.MemoryLayout.TotalSize
	}
	return d.WeightAllocation.TotalSize + d.VariableAllocation.TotalSize
}

// DataOffset gibt die Allokation von name relativ zur Datenregion zurueck.
// Ohne memory_layout liegen Variablen hinter den Gewichten.
func (d *Descriptor) DataOffset(name string) (Allocation, error) {
	a, weight, err := d.Resolve(name)
	if err != nil {
		return Allocation{}, err
	}
	if !weight && d.MemoryLayout == nil {
		a.Offset += d.WeightAllocation.TotalSize
	}
	return a, nil
}

// ============================================================================
// Laden
// ============================================================================

// DescriptorFile gibt den Dateinamen des Descriptors fuer ein Backend zurueck.
func DescriptorFile(backend string) string {
	return "graph_" + backend + ".json"
}

// WeightFile gibt den Dateinamen der Gewichtsdaten fuer ein Backend zurueck.
func WeightFile(backend string) string {
	return "weight_" + backend + ".bin"
}

// Decode liest einen Descriptor vom Typ T und validiert ihn.
func Decode[T any, PT interface {
	*T
	GraphDescriptor
}](r io.Reader) (*T, error) {
	var d T
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return nil, fmt.Errorf("%w: decode descriptor: %v", fault.ErrConfiguration, err)
	}
	if err := PT(&d).Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}
