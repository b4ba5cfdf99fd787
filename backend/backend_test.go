// MODUL: backend_test
// ZWECK: Unit-Tests fuer Factory, Probes und Backend-Auswahl
// INPUT: Keine
// OUTPUT: Test-Ergebnisse
// NEBENEFFEKTE: Oeffnet das emulierte GPU-Geraet und wazero-Runtimes
// ABHAENGIGKEITEN: testing, testify, gpu/emulated
// HINWEISE: Deaktivierung erfolgt ueber GRAPHRT_DISABLED_BACKENDS

package backend

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/7blacky7/graphrt/fault"
	_ "github.com/7blacky7/graphrt/gpu/emulated"
	"github.com/7blacky7/graphrt/runner"
)

// ============================================================================
// Factory Tests
// ============================================================================

func TestDefaultOrder(t *testing.T) {
	t.Setenv("GRAPHRT_BACKEND_ORDER", "")
	require.Equal(t, []string{WebGPU, WebAssembly, Fallback}, DefaultOrder())

	t.Setenv("GRAPHRT_BACKEND_ORDER", "Fallback, webgpu")
	require.Equal(t, []string{"fallback", "webgpu"}, DefaultOrder())
}

func TestNew(t *testing.T) {
	cases := map[string]string{
		"webgpu":      WebGPU,
		"gpu":         WebGPU,
		"webassembly": WebAssembly,
		"wasm":        WebAssembly,
		"fallback":    Fallback,
		"CPU":         Fallback,
	}
	for name, want := range cases {
		iface, err := New(name, runner.Options{})
		require.NoError(t, err, name)
		if iface.Name() != want {
			t.Errorf("New(%q): erwartet %s, bekommen %s", name, want, iface.Name())
		}
	}

	if _, err := New("opengl", runner.Options{}); !errors.Is(err, fault.ErrConfiguration) {
		t.Errorf("unbekanntes Backend: erwartet ErrConfiguration, bekommen %v", err)
	}
	require.Equal(t, []string{"cpu=fallback", "gpu=webgpu", "wasm=webassembly"}, Aliases())
}

// ============================================================================
// Auswahl Tests
// ============================================================================

// TestSelectOnlyFallback: nur fallback ist verfuegbar.
func TestSelectOnlyFallback(t *testing.T) {
	t.Setenv("GRAPHRT_DISABLED_BACKENDS", "webgpu,wasm")

	iface, err := Select(t.Context(), []string{"gpu", "wasm", "fallback"}, runner.Options{})
	require.NoError(t, err)
	defer iface.Close()
	require.Equal(t, Fallback, iface.Name())
}

func TestSelectPrefersFirst(t *testing.T) {
	t.Setenv("GRAPHRT_DISABLED_BACKENDS", "")
	t.Setenv("GRAPHRT_GPU_DRIVER", "emulated")

	iface, err := Select(t.Context(), nil, runner.Options{})
	require.NoError(t, err)
	defer iface.Close()
	require.Equal(t, WebGPU, iface.Name())
}

func TestSelectAllFail(t *testing.T) {
	t.Setenv("GRAPHRT_DISABLED_BACKENDS", "webgpu,webassembly,fallback")

	_, err := Select(t.Context(), []string{"webgpu", "wasm", "fallback"}, runner.Options{})
	require.ErrorIs(t, err, fault.ErrPlatformUnavailable)

	var selErr *SelectionError
	require.ErrorAs(t, err, &selErr)
	require.Len(t, selErr.Attempts, 3)
	require.NoError(t, selErr.Fatal)
	require.Contains(t, err.Error(), "no backend available")
}

func TestSelectUnknownName(t *testing.T) {
	t.Setenv("GRAPHRT_DISABLED_BACKENDS", "")

	_, err := Select(t.Context(), []string{"fallback", "opengl"}, runner.Options{})
	require.ErrorIs(t, err, fault.ErrConfiguration)
	require.NotErrorIs(t, err, fault.ErrPlatformUnavailable)
	require.Contains(t, err.Error(), "opengl")
	require.True(t, Known("cpu"))
	require.False(t, Known("opengl"))
}

// fake ist ein Kandidat mit vorgegebenem Probe-Ergebnis.
type fake struct {
	name   string
	err    error
	inited bool
	closed bool
}

func (f *fake) Name() string { return f.name }

func (f *fake) Init(context.Context) error {
	f.inited = true
	return f.err
}

func (f *fake) CreateDescriptorRunner() runner.Runner { return nil }

func (f *fake) Close() error {
	f.closed = true
	return nil
}

func TestSelectFrom(t *testing.T) {
	t.Setenv("GRAPHRT_DISABLED_BACKENDS", "")
	unavailable := &fake{name: "webgpu", err: fault.ErrPlatformUnavailable}
	ok := &fake{name: "webassembly"}
	later := &fake{name: "fallback"}

	iface, err := SelectFrom(t.Context(), []Interface{unavailable, ok, later})
	require.NoError(t, err)
	require.Same(t, ok, iface)

	require.True(t, unavailable.closed)
	require.False(t, ok.closed)
	require.False(t, later.inited, "nach dem ersten Erfolg wird nicht weiter geprobt")
	require.True(t, later.closed)
}

func TestSelectFromNone(t *testing.T) {
	_, err := SelectFrom(t.Context(), nil)
	require.ErrorIs(t, err, fault.ErrPlatformUnavailable)
}

func TestSelectFromStopsOnFatal(t *testing.T) {
	t.Setenv("GRAPHRT_DISABLED_BACKENDS", "")
	unavailable := &fake{name: "webgpu", err: fault.ErrPlatformUnavailable}
	broken := &fake{name: "webassembly", err: fmt.Errorf("%w: bad layout", fault.ErrConfiguration)}
	later := &fake{name: "fallback"}

	_, err := SelectFrom(t.Context(), []Interface{unavailable, broken, later})
	require.ErrorIs(t, err, fault.ErrConfiguration)
	require.NotErrorIs(t, err, fault.ErrPlatformUnavailable)

	var selErr *SelectionError
	require.ErrorAs(t, err, &selErr)
	require.Len(t, selErr.Attempts, 2, "der fatale Versuch wird noch erfasst")
	require.Equal(t, "webassembly", selErr.Attempts[1].Backend)
	require.Contains(t, err.Error(), "aborted")

	require.True(t, broken.closed)
	require.False(t, later.inited, "nach einem fatalen Fehler wird nicht weiter geprobt")
	require.True(t, later.closed)
}

func TestAvailability(t *testing.T) {
	t.Setenv("GRAPHRT_DISABLED_BACKENDS", "webassembly")
	t.Setenv("GRAPHRT_GPU_DRIVER", "none")

	attempts := Availability(t.Context(), runner.Options{})
	require.Len(t, attempts, 3)
	require.Equal(t, WebGPU, attempts[0].Backend)
	require.ErrorIs(t, attempts[0].Err, fault.ErrPlatformUnavailable)
	require.ErrorIs(t, attempts[1].Err, fault.ErrPlatformUnavailable)
	require.NoError(t, attempts[2].Err)
}
