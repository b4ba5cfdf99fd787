// Package kernel uebersetzt Kernel-Quelltext (ein Go-Paket) in aufrufbare
// Funktionen. Wird vom fallback-Backend und vom emulierten GPU-Treiber genutzt.
//
// MODUL: kernel
// ZWECK: Go-Quelltext parsen, interpretieren und exportierte Funktionen bereitstellen
// INPUT: kernel_source aus dem Graph-Descriptor
// OUTPUT: Module mit typisierten Funktionen
// NEBENEFFEKTE: Keine (jedes Compile erhaelt einen eigenen Interpreter)
// ABHAENGIGKEITEN: github.com/traefik/yaegi, fault
// HINWEISE: Nur Pakete unter math/ sind fuer Kernel importierbar
package kernel

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"log/slog"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/7blacky7/graphrt/fault"
)

// allowedImports sind die Standardbibliotheks-Symbole fuer Kernel.
var allowedImports = func() interp.Exports {
	exports := interp.Exports{}
	for key, symbols := range stdlib.Symbols {
		if strings.HasPrefix(key, "math/") {
			exports[key] = symbols
		}
	}
	return exports
}()

// Module ist ein uebersetztes Kernel-Paket.
type Module struct {
	Package string

	names []string
	funcs map[string]reflect.Value
}

// Compile parst source und wertet es in einem frischen Interpreter aus.
// Alle exportierten Funktionen ohne Receiver werden aufgeloest.
// Fehler sind fault.ErrConfiguration.
func Compile(source string) (*Module, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "kernel.go", source, parser.SkipObjectResolution)
	if err != nil {
		return nil, fmt.Errorf("%w: parse kernel source: %v", fault.ErrConfiguration, err)
	}
	if file.Name.Name == "main" {
		return nil, fmt.Errorf("%w: kernel source must not be package main", fault.ErrConfiguration)
	}

	m := &Module{Package: file.Name.Name, funcs: make(map[string]reflect.Value)}
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Recv != nil || !fn.Name.IsExported() {
			continue
		}
		m.names = append(m.names, fn.Name.Name)
	}

	i := interp.New(interp.Options{})
	if err := i.Use(allowedImports); err != nil {
		return nil, fmt.Errorf("%w: kernel imports: %v", fault.ErrConfiguration, err)
	}
	if _, err := i.Eval(source); err != nil {
		return nil, fmt.Errorf("%w: evaluate kernel source: %v", fault.ErrConfiguration, err)
	}

	for _, name := range m.names {
		v, err := i.Eval(m.Package + "." + name)
		if err != nil {
			return nil, fmt.Errorf("%w: resolve %s: %v", fault.ErrConfiguration, name, err)
		}
		m.funcs[name] = v
	}

	slog.Debug("kernel module compiled", "package", m.Package, "functions", len(m.names))
	return m, nil
}

// Names gibt die exportierten Funktionen in Quelltext-Reihenfolge zurueck.
func (m *Module) Names() []string {
	return m.names
}

// Lookup gibt die Funktion name mit der Signatur F zurueck.
func Lookup[F any](m *Module, name string) (F, error) {
	var zero F
	v, ok := m.funcs[name]
	if !ok {
		return zero, fmt.Errorf("%w: kernel function %q not found in package %s", fault.ErrConfiguration, name, m.Package)
	}
	f, ok := v.Interface().(F)
	if !ok {
		return zero, fmt.Errorf("%w: kernel function %q has signature %s, want %T", fault.ErrConfiguration, name, v.Type(), zero)
	}
	return f, nil
}

// Collect gibt alle exportierten Funktionen mit der Signatur F zurueck.
// Funktionen mit anderer Signatur (Hilfsfunktionen) werden uebersprungen.
func Collect[F any](m *Module) map[string]F {
	out := make(map[string]F, len(m.names))
	for _, name := range m.names {
		if f, ok := m.funcs[name].Interface().(F); ok {
			out[name] = f
		}
	}
	return out
}

// Call ruft fn auf und wandelt eine Panik des Kernels in einen Fehler um.
func Call(name string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: kernel %s panicked: %v", fault.ErrDeviceFault, name, r)
		}
	}()
	fn()
	return nil
}
