// config_utils.go - Getter-Fabriken und Export fuer Konfiguration
//
// Dieses Modul enthaelt:
// - parsed: generischer Getter mit Parser und Default-Wert
// - Bool, String, Uint: typisierte Getter
// - EnvVar: Struktur fuer Environment-Variablen-Info
// - AsMap: Gibt alle Konfigurationen als Map zurueck
package envconfig

import (
	"log/slog"
	"runtime"
	"strconv"
)

// =============================================================================
// Getter-Fabriken
// =============================================================================

// parsed liest key mit parse. Leere Variablen ergeben defaultValue,
// ungueltige invalid.
func parsed[T any](key string, defaultValue, invalid T, parse func(string) (T, error)) func() T {
	return func() T {
		s := Var(key)
		if s == "" {
			return defaultValue
		}
		v, err := parse(s)
		if err != nil {
			slog.Warn("invalid environment variable", "key", key, "value", s, "using", invalid)
			return invalid
		}
		return v
	}
}

// Bool liest einen Bool (Default: false). Gesetzte, aber nicht parsebare
// Werte wie "yes" gelten als true.
func Bool(k string) func() bool {
	return parsed(k, false, true, strconv.ParseBool)
}

// String liest einen String ohne Umwandlung
func String(s string) func() string {
	return func() string {
		return Var(s)
	}
}

// Uint liest einen uint, bei ungueltigem Wert gilt defaultValue
func Uint(key string, defaultValue uint) func() uint {
	return parsed(key, defaultValue, defaultValue, func(s string) (uint, error) {
		n, err := strconv.ParseUint(s, 10, 64)
		return uint(n), err
	})
}

// =============================================================================
// Export-Strukturen und -Funktionen
// =============================================================================

// EnvVar repraesentiert eine Environment-Variable mit Metadaten
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap gibt alle Konfigurationen als Map zurueck
// Enthaelt Namen, aktuelle Werte und Beschreibungen
func AsMap() map[string]EnvVar {
	ret := map[string]EnvVar{
		"GRAPHRT_DEBUG":             {"GRAPHRT_DEBUG", LogLevel(), "Show additional debug information (e.g. GRAPHRT_DEBUG=1)"},
		"GRAPHRT_BACKEND_ORDER":     {"GRAPHRT_BACKEND_ORDER", BackendOrder(), "Comma separated backend order (default webgpu,webassembly,fallback)"},
		"GRAPHRT_DISABLED_BACKENDS": {"GRAPHRT_DISABLED_BACKENDS", DisabledBackends(), "Comma separated backends that are never selected"},
		"GRAPHRT_GPU_DRIVER":        {"GRAPHRT_GPU_DRIVER", GPUDriver(), "GPU driver for the webgpu backend (\"none\" disables it)"},
		"GRAPHRT_GPU_THREADS":       {"GRAPHRT_GPU_THREADS", GPUThreads(), "Parallel workgroups of the emulated GPU device"},
		"GRAPHRT_FETCH_TIMEOUT":     {"GRAPHRT_FETCH_TIMEOUT", FetchTimeout(), "How long a descriptor or weight download may take (default \"5m\")"},
		"GRAPHRT_WORKER_TIMEOUT":    {"GRAPHRT_WORKER_TIMEOUT", WorkerTimeout(), "How long a webassembly worker round-trip may take (default \"1m\")"},
		"GRAPHRT_CACHE_DIR":         {"GRAPHRT_CACHE_DIR", CacheDir(), "The path to the download cache"},
		"GRAPHRT_NOCACHE":           {"GRAPHRT_NOCACHE", NoCache(), "Bypass the download cache"},

		// Proxy-Einstellungen
		"HTTP_PROXY":  {"HTTP_PROXY", String("HTTP_PROXY")(), "HTTP proxy"},
		"HTTPS_PROXY": {"HTTPS_PROXY", String("HTTPS_PROXY")(), "HTTPS proxy"},
		"NO_PROXY":    {"NO_PROXY", String("NO_PROXY")(), "No proxy"},
	}

	// Nicht-Windows: Case-sensitive Proxy-Variablen
	if runtime.GOOS != "windows" {
		ret["http_proxy"] = EnvVar{"http_proxy", String("http_proxy")(), "HTTP proxy"}
		ret["https_proxy"] = EnvVar{"https_proxy", String("https_proxy")(), "HTTPS proxy"}
		ret["no_proxy"] = EnvVar{"no_proxy", String("no_proxy")(), "No proxy"}
	}

	return ret
}
