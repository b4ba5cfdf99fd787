// MODUL: backend
// ZWECK: Backend-Interface, geschlossene Factory und Backend-Auswahl
// INPUT: Backend-Reihenfolge (Default oder GRAPHRT_BACKEND_ORDER)
// OUTPUT: Initialisiertes Interface des ersten verfuegbaren Backends
// NEBENEFFEKTE: Probes oeffnen und schliessen Geraete bzw. Runtimes
// ABHAENGIGKEITEN: backend/webgpu, backend/webassembly, backend/fallback, envconfig
// HINWEISE: Es gibt keinen prozessweiten Zustand; das gewaehlte Interface
//           wird an den Aufrufer zurueckgegeben

package backend

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/7blacky7/graphrt/backend/fallback"
	"github.com/7blacky7/graphrt/backend/webassembly"
	"github.com/7blacky7/graphrt/backend/webgpu"
	"github.com/7blacky7/graphrt/envconfig"
	"github.com/7blacky7/graphrt/fault"
	"github.com/7blacky7/graphrt/runner"
)

// ============================================================================
// Backend-Namen
// ============================================================================

// Verfuegbare Backends
const (
	WebGPU      = webgpu.Name
	WebAssembly = webassembly.Name
	Fallback    = fallback.Name
)

// aliases bildet Kurznamen auf Backend-Namen ab.
var aliases = map[string]string{
	"gpu":  WebGPU,
	"wasm": WebAssembly,
	"cpu":  Fallback,
}

// Canonical gibt den Backend-Namen fuer name oder einen Alias zurueck.
func Canonical(name string) (string, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if alias, ok := aliases[name]; ok {
		return alias, true
	}
	switch name {
	case WebGPU, WebAssembly, Fallback:
		return name, true
	}
	return name, false
}

// All gibt alle Backends in Standard-Reihenfolge zurueck.
func All() []string {
	return []string{WebGPU, WebAssembly, Fallback}
}

// DefaultOrder gibt die Auswahlreihenfolge zurueck.
// Konfigurierbar via GRAPHRT_BACKEND_ORDER.
func DefaultOrder() []string {
	if order := envconfig.BackendOrder(); len(order) > 0 {
		return order
	}
	return All()
}

// ============================================================================
// Interface und Factory
// ============================================================================

// Interface ist ein Backend, das Runner erzeugt.
type Interface interface {
	Name() string

	// Init prueft die Verfuegbarkeit und reserviert das Geraet.
	// Nicht verfuegbare Plattformen liefern fault.ErrPlatformUnavailable.
	Init(ctx context.Context) error

	CreateDescriptorRunner() runner.Runner
	Close() error
}

// New erstellt das Backend name, ohne es zu initialisieren.
func New(name string, opts runner.Options) (Interface, error) {
	canonical, ok := Canonical(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown backend %q", fault.ErrConfiguration, name)
	}
	switch canonical {
	case WebGPU:
		return webgpu.New(opts), nil
	case WebAssembly:
		return webassembly.New(opts), nil
	default:
		return fallback.New(opts), nil
	}
}

// Disabled meldet, ob name ueber GRAPHRT_DISABLED_BACKENDS deaktiviert ist.
func Disabled(name string) bool {
	canonical, _ := Canonical(name)
	for _, d := range envconfig.DisabledBackends() {
		if c, _ := Canonical(d); c == canonical {
			return true
		}
	}
	return false
}

// probe initialisiert iface, sofern es nicht deaktiviert ist.
func probe(ctx context.Context, iface Interface) error {
	if Disabled(iface.Name()) {
		return fmt.Errorf("%w: %s disabled by GRAPHRT_DISABLED_BACKENDS", fault.ErrPlatformUnavailable, iface.Name())
	}
	return iface.Init(ctx)
}

// Availability probt jedes Backend und gibt es danach wieder frei.
func Availability(ctx context.Context, opts runner.Options) []Attempt {
	attempts := make([]Attempt, 0, len(All()))
	for _, name := range All() {
		iface, err := New(name, opts)
		if err == nil {
			err = probe(ctx, iface)
			iface.Close()
		}
		attempts = append(attempts, Attempt{Backend: name, Err: err})
	}
	return attempts
}

// Known meldet, ob name ein gueltiger Backend-Name oder Alias ist.
func Known(name string) bool {
	_, ok := Canonical(name)
	return ok
}

// Aliases gibt die Kurznamen als "alias=backend" sortiert zurueck.
func Aliases() []string {
	out := make([]string, 0, len(aliases))
	for alias, name := range aliases {
		out = append(out, alias+"="+name)
	}
	slices.Sort(out)
	return out
}
