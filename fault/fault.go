// Package fault definiert die Fehlerklassen der Laufzeit.
//
// Modul: fault.go - Fehler-Taxonomie
// Enthaelt: Sentinel-Fehler je Klasse, Kind, Retryable
//
// Alle Fehler werden mit fmt.Errorf("%w: ...") um einen der Sentinels
// gewickelt, damit Aufrufer die Klasse per errors.Is unterscheiden koennen.
package fault

import "errors"

// Fehler-Definitionen
var (
	// ErrConfiguration: fehlerhafter oder inkonsistenter Descriptor,
	// unbekanntes Weight-Encoding, Allokation ausserhalb des Bereichs.
	ErrConfiguration = errors.New("configuration error")

	// ErrPlatformUnavailable: Backend-Probe fehlgeschlagen.
	ErrPlatformUnavailable = errors.New("platform unavailable")

	// ErrTransport: Download fehlgeschlagen oder Gewichtsdaten abgeschnitten.
	ErrTransport = errors.New("transport error")

	// ErrDeviceFault: GPU-Compile/Dispatch-Fehler oder Worker-Absturz.
	// Die betroffene Runner-Instanz ist danach unbrauchbar.
	ErrDeviceFault = errors.New("device fault")

	// ErrSequencing: Operation vor ihrem Vorgaenger-Zustand aufgerufen.
	ErrSequencing = errors.New("sequencing error")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrConfiguration, "configuration"},
	{ErrPlatformUnavailable, "platform-unavailable"},
	{ErrTransport, "transport"},
	{ErrDeviceFault, "device-fault"},
	{ErrSequencing, "sequencing"},
}

// Kind gibt den Namen der Fehlerklasse zurueck, "" wenn keine passt.
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return ""
}

// Retryable meldet, ob die Backend-Auswahl nach diesem Fehler das naechste
// Backend probieren darf.
func Retryable(err error) bool {
	return errors.Is(err, ErrPlatformUnavailable)
}
