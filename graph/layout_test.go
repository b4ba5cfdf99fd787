// MODUL: layout_test
// ZWECK: Unit-Tests fuer MemoryLayout und Descriptor-Validierung
// INPUT: Keine
// OUTPUT: Test-Ergebnisse
// NEBENEFFEKTE: Keine
// ABHAENGIGKEITEN: testing, go-cmp, layout.go, descriptor.go

package graph

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/7blacky7/graphrt/fault"
)

// ============================================================================
// MemoryLayout Tests
// ============================================================================

func TestMemoryLayoutUnmarshalKeepsOrder(t *testing.T) {
	const data = `{
		"total_size": 24,
		"allocations": {
			"z": {"name": "z", "offset": 16, "size": 8},
			"a": {"offset": 0, "size": 8},
			"m": {"name": "m", "offset": 8, "size": 8}
		}
	}`

	var l MemoryLayout
	if err := l.UnmarshalJSON([]byte(data)); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{"z", "a", "m"}, l.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}

	a, ok := l.Get("a")
	if !ok || a.Name != "a" {
		t.Errorf("Get(a) = %+v, %v; Name sollte aus dem Schluessel kommen", a, ok)
	}
	if l.Floats() != 6 {
		t.Errorf("Floats() = %d, erwartet 6", l.Floats())
	}
	if err := l.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestMemoryLayoutValidate(t *testing.T) {
	cases := []struct {
		name   string
		layout MemoryLayout
		ok     bool
	}{
		{"leer", MemoryLayout{}, true},
		{"leer mit Groesse", NewMemoryLayout(0), true},
		{
			"dicht gepackt",
			NewMemoryLayout(16, Allocation{"a", 0, 8}, Allocation{"b", 8, 8}),
			true,
		},
		{
			"mit Luecke",
			NewMemoryLayout(32, Allocation{"b", 16, 8}, Allocation{"a", 0, 4}),
			true,
		},
		{
			"null-grosse Allokation",
			NewMemoryLayout(8, Allocation{"a", 0, 8}, Allocation{"empty", 0, 0}),
			true,
		},
		{
			"ueberlappend",
			NewMemoryLayout(16, Allocation{"a", 0, 12}, Allocation{"b", 8, 8}),
			false,
		},
		{
			"gleicher Offset",
			NewMemoryLayout(16, Allocation{"a", 4, 4}, Allocation{"b", 4, 4}),
			false,
		},
		{
			"ausserhalb",
			NewMemoryLayout(8, Allocation{"a", 4, 8}),
			false,
		},
		{
			"negativer Offset",
			NewMemoryLayout(8, Allocation{"a", -4, 4}),
			false,
		},
		{
			"nicht ausgerichtet",
			NewMemoryLayout(8, Allocation{"a", 2, 4}),
			false,
		},
		{
			"total_size nicht ausgerichtet",
			MemoryLayout{TotalSize: 6},
			false,
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.layout.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate() = %v, erwartet nil", err)
			}
			if !tt.ok && !errors.Is(err, fault.ErrConfiguration) {
				t.Errorf("Validate() = %v, erwartet ErrConfiguration", err)
			}
		})
	}
}

// TestValidLayoutsAreDisjoint prueft fuer gueltige Layouts, dass alle Bereiche
// paarweise disjunkt sind und in total_size passen.
func TestValidLayoutsAreDisjoint(t *testing.T) {
	layouts := []MemoryLayout{
		NewMemoryLayout(64, Allocation{"w0", 0, 16}, Allocation{"w1", 16, 32}, Allocation{"w2", 48, 16}),
		NewMemoryLayout(40, Allocation{"c", 32, 8}, Allocation{"a", 0, 4}, Allocation{"b", 4, 28}),
	}

	for _, l := range layouts {
		if err := l.Validate(); err != nil {
			t.Fatalf("Validate() = %v", err)
		}
		names := l.Names()
		for i, x := range names {
			a, _ := l.Get(x)
			if a.End() > l.TotalSize {
				t.Errorf("%s endet bei %d hinter total_size %d", x, a.End(), l.TotalSize)
			}
			for _, y := range names[i+1:] {
				b, _ := l.Get(y)
				if a.Offset < b.End() && b.Offset < a.End() {
					t.Errorf("%s und %s ueberlappen", x, y)
				}
			}
		}
	}
}

// ============================================================================
// Descriptor Tests
// ============================================================================

func testDescriptor() Descriptor {
	return Descriptor{
		Inputs:             []string{"x"},
		Outputs:            []string{"y"},
		WeightAllocation:   NewMemoryLayout(8, Allocation{"w", 0, 8}),
		VariableAllocation: NewMemoryLayout(16, Allocation{"x", 0, 8}, Allocation{"y", 8, 8}),
		WeightEncoding:     "raw",
	}
}

func TestDescriptorValidate(t *testing.T) {
	d := testDescriptor()
	if err := d.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}

	missing := testDescriptor()
	missing.Outputs = []string{"nope"}
	if err := missing.Validate(); !errors.Is(err, fault.ErrConfiguration) {
		t.Errorf("fehlende Ausgabe: %v, erwartet ErrConfiguration", err)
	}

	noEncoding := testDescriptor()
	noEncoding.WeightEncoding = ""
	if err := noEncoding.Validate(); !errors.Is(err, fault.ErrConfiguration) {
		t.Errorf("fehlendes Encoding: %v, erwartet ErrConfiguration", err)
	}
}

func TestDescriptorDataOffset(t *testing.T) {
	d := testDescriptor()

	w, err := d.DataOffset("w")
	if err != nil || w.Offset != 0 {
		t.Errorf("DataOffset(w) = %+v, %v", w, err)
	}
	y, err := d.DataOffset("y")
	if err != nil || y.Offset != 16 {
		t.Errorf("DataOffset(y) = %+v, %v; erwartet Offset 16", y, err)
	}
	if d.DataSize() != 24 {
		t.Errorf("DataSize() = %d, erwartet 24", d.DataSize())
	}
	if _, err := d.DataOffset("unknown"); !errors.Is(err, fault.ErrConfiguration) {
		t.Errorf("DataOffset(unknown) = %v", err)
	}
}

func TestResolveRejectsDoubleAllocation(t *testing.T) {
	d := testDescriptor()
	d.WeightAllocation = NewMemoryLayout(8, Allocation{"x", 0, 8})
	if _, _, err := d.Resolve("x"); !errors.Is(err, fault.ErrConfiguration) {
		t.Errorf("Resolve(x) = %v, erwartet ErrConfiguration", err)
	}
}
