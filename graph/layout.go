// MODUL: layout
// ZWECK: Speicher-Layout einer Region (Gewichte oder Variablen)
// INPUT: JSON aus dem Graph-Descriptor
// OUTPUT: MemoryLayout mit geordneten Allokationen
// NEBENEFFEKTE: Keine
// ABHAENGIGKEITEN: go-ordered-map (Reihenfolge), gods redblacktree (Ueberlappung)
// HINWEISE: Offsets und Groessen sind Byte-Angaben, float32-ausgerichtet

package graph

import (
	"encoding/json"
	"fmt"

	"github.com/emirpasic/gods/v2/trees/redblacktree"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/7blacky7/graphrt/fault"
)

// ElementSize ist die Groesse eines float32-Elements in Bytes.
const ElementSize = 4

// Allocation beschreibt die Lage einer Variable in ihrer Region.
type Allocation struct {
	Name   string `json:"name"`
	Offset int    `json:"offset"`
	Size   int    `json:"size"`
}

// End gibt das erste Byte hinter der Allokation zurueck.
func (a Allocation) End() int {
	return a.Offset + a.Size
}

// MemoryLayout bildet Variablennamen auf Byte-Bereiche einer Region ab.
type MemoryLayout struct {
	TotalSize   int                                        `json:"total_size"`
	Allocations *orderedmap.OrderedMap[string, Allocation] `json:"allocations"`
}

// NewMemoryLayout erstellt ein Layout mit den Allokationen in gegebener Reihenfolge.
func NewMemoryLayout(totalSize int, allocs ...Allocation) MemoryLayout {
	m := orderedmap.New[string, Allocation](len(allocs))
	for _, a := range allocs {
		m.Set(a.Name, a)
	}
	return MemoryLayout{TotalSize: totalSize, Allocations: m}
}

// UnmarshalJSON liest das Layout und behaelt die Reihenfolge der Allokationen.
func (l *MemoryLayout) UnmarshalJSON(b []byte) error {
	var raw struct {
		TotalSize   int             `json:"total_size"`
		Allocations json.RawMessage `json:"allocations"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	allocs := orderedmap.New[string, Allocation]()
	if len(raw.Allocations) > 0 && string(raw.Allocations) != "null" {
		if err := json.Unmarshal(raw.Allocations, allocs); err != nil {
			return err
		}
	}

	// Name darf im JSON fehlen, der Schluessel ist massgeblich
	for pair := allocs.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.Name == "" {
			pair.Value.Name = pair.Key
		}
	}

	l.TotalSize = raw.TotalSize
	l.Allocations = allocs
	return nil
}

// Get gibt die Allokation fuer name zurueck.
func (l MemoryLayout) Get(name string) (Allocation, bool) {
	if l.Allocations == nil {
		return Allocation{}, false
	}
	return l.Allocations.Get(name)
}

// Names gibt alle Variablennamen in Deklarationsreihenfolge zurueck.
func (l MemoryLayout) Names() []string {
	if l.Allocations == nil {
		return nil
	}
	names := make([]string, 0, l.Allocations.Len())
	for pair := l.Allocations.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// Len gibt die Anzahl der Allokationen zurueck.
func (l MemoryLayout) Len() int {
	if l.Allocations == nil {
		return 0
	}
	return l.Allocations.Len()
}

// Floats gibt die Anzahl der float32-Elemente der Region zurueck.
func (l MemoryLayout) Floats() int {
	return l.TotalSize / ElementSize
}

// Validate prueft Bereichsgrenzen, Ausrichtung und Ueberlappungsfreiheit.
func (l MemoryLayout) Validate() error {
	if l.TotalSize < 0 || l.TotalSize%ElementSize != 0 {
		return fmt.Errorf("%w: total_size %d is not a non-negative multiple of %d", fault.ErrConfiguration, l.TotalSize, ElementSize)
	}
	if l.Allocations == nil {
		return nil
	}

	byOffset := redblacktree.New[int, Allocation]()
	for pair := l.Allocations.Oldest(); pair != nil; pair = pair.Next() {
		a := pair.Value
		if a.Name != pair.Key {
			return fmt.Errorf("%w: allocation %q is registered as %q", fault.ErrConfiguration, a.Name, pair.Key)
		}
		if a.Offset < 0 || a.Size < 0 || a.End() > l.TotalSize {
			return fmt.Errorf("%w: allocation %q [%d, %d) out of range [0, %d)", fault.ErrConfiguration, a.Name, a.Offset, a.End(), l.TotalSize)
		}
		if a.Offset%ElementSize != 0 || a.Size%ElementSize != 0 {
			return fmt.Errorf("%w: allocation %q is not %d-byte aligned", fault.ErrConfiguration, a.Name, ElementSize)
		}
		if a.Size == 0 {
			continue
		}
		if other, ok := byOffset.Get(a.Offset); ok {
			return fmt.Errorf("%w: allocations %q and %q overlap", fault.ErrConfiguration, other.Name, a.Name)
		}
		byOffset.Put(a.Offset, a)
	}

	var prev *Allocation
	it := byOffset.Iterator()
	for it.Next() {
		a := it.Value()
		if prev != nil && a.Offset < prev.End() {
			return fmt.Errorf("%w: allocations %q and %q overlap", fault.ErrConfiguration, prev.Name, a.Name)
		}
		prev = &a
	}

	return nil
}
