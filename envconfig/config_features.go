// config_features.go - Feature-Flags und GPU-Konfiguration
//
// Dieses Modul enthaelt:
// - Feature-Flags (NoCache)
// - GPU-bezogene Environment-Variablen
package envconfig

import "runtime"

// =============================================================================
// Feature-Flags
// =============================================================================

var (
	// NoCache umgeht den Download-Cache (entspricht ignoreCache)
	NoCache = Bool("GRAPHRT_NOCACHE")
)

// =============================================================================
// GPU-Konfiguration
// =============================================================================

var (
	// GPUDriver waehlt den GPU-Treiber fuer das webgpu-Backend
	// Leer = erster registrierter Treiber, "none" = kein GPU-Backend
	GPUDriver = String("GRAPHRT_GPU_DRIVER")

	// GPUThreads begrenzt parallel ausgefuehrte Workgroups im emulierten Geraet
	// Konfigurierbar via GRAPHRT_GPU_THREADS
	GPUThreads = Uint("GRAPHRT_GPU_THREADS", uint(max(runtime.GOMAXPROCS(0), 1)))
)
