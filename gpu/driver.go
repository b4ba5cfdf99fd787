// driver.go - Registrierung der GPU-Treiber
// Dieses Modul verwaltet die Treiber-Factories; Treiber registrieren sich
// per init() und werden ueber ihren Namen geoeffnet.
package gpu

import (
	"fmt"
	"slices"
	"sync"

	"github.com/7blacky7/graphrt/fault"
)

// OpenFunc oeffnet ein Geraet. Ein Treiber ohne Hardware meldet
// fault.ErrPlatformUnavailable.
type OpenFunc func() (Device, error)

// DriverNone deaktiviert das GPU-Backend.
const DriverNone = "none"

var (
	mu      sync.Mutex
	drivers = make(map[string]OpenFunc)
	order   []string
)

// Register registriert einen Treiber.
func Register(name string, f OpenFunc) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := drivers[name]; ok {
		panic("gpu: driver already registered: " + name)
	}
	drivers[name] = f
	order = append(order, name)
}

// Drivers gibt die registrierten Treiber in Registrierungsreihenfolge zurueck.
func Drivers() []string {
	mu.Lock()
	defer mu.Unlock()
	return slices.Clone(order)
}

// Open oeffnet den Treiber name. Ein leerer Name waehlt den zuerst
// registrierten Treiber.
func Open(name string) (Device, error) {
	mu.Lock()
	if name == "" && len(order) > 0 {
		name = order[0]
	}
	f, ok := drivers[name]
	mu.Unlock()

	switch {
	case name == DriverNone:
		return nil, fmt.Errorf("%w: gpu disabled", fault.ErrPlatformUnavailable)
	case name == "":
		return nil, fmt.Errorf("%w: no gpu driver registered", fault.ErrPlatformUnavailable)
	case !ok:
		return nil, fmt.Errorf("%w: unknown gpu driver %q", fault.ErrPlatformUnavailable, name)
	}
	return f()
}
