// config.go - Haupt-Konfigurationsfunktionen fuer graphrt
//
// Dieses Modul enthaelt:
// - CacheDir: Gibt das Download-Cache-Verzeichnis zurueck (GRAPHRT_CACHE_DIR)
// - BackendOrder: Gibt die Backend-Reihenfolge zurueck (GRAPHRT_BACKEND_ORDER)
// - DisabledBackends: Gibt deaktivierte Backends zurueck (GRAPHRT_DISABLED_BACKENDS)
// - FetchTimeout: Gibt das Timeout fuer Descriptor-Downloads zurueck (GRAPHRT_FETCH_TIMEOUT)
// - WorkerTimeout: Gibt das Timeout fuer Worker-Roundtrips zurueck (GRAPHRT_WORKER_TIMEOUT)
// - LogLevel: Gibt Log-Level zurueck (GRAPHRT_DEBUG)
//
// Weitere Konfigurationen sind ausgelagert:
// - config_features.go: Feature-Flags und GPU-Variablen
// - config_utils.go: Utility-Funktionen und AsMap/Values
package envconfig

import (
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// CacheDir gibt das Verzeichnis fuer den Download-Cache zurueck
// Konfigurierbar via GRAPHRT_CACHE_DIR
// Default: $XDG_CACHE_HOME/graphrt bzw. $HOME/.cache/graphrt
func CacheDir() string {
	if s := Var("GRAPHRT_CACHE_DIR"); s != "" {
		return s
	}

	dir, err := os.UserCacheDir()
	if err != nil {
		home, err := os.UserHomeDir()
		if err != nil {
			panic(err)
		}
		dir = filepath.Join(home, ".cache")
	}

	return filepath.Join(dir, "graphrt")
}

// BackendOrder gibt die Reihenfolge zurueck, in der Backends probiert werden
// Konfigurierbar via GRAPHRT_BACKEND_ORDER (komma-separiert)
// Leer = Default-Reihenfolge des backend-Pakets
func BackendOrder() []string {
	return list(Var("GRAPHRT_BACKEND_ORDER"))
}

// DisabledBackends gibt Backends zurueck, deren Probe immer fehlschlaegt
// Konfigurierbar via GRAPHRT_DISABLED_BACKENDS (komma-separiert)
func DisabledBackends() []string {
	return list(Var("GRAPHRT_DISABLED_BACKENDS"))
}

// FetchTimeout gibt das Timeout fuer Descriptor- und Gewichts-Downloads zurueck
// Konfigurierbar via GRAPHRT_FETCH_TIMEOUT
// 0 oder negative Werte = unendlich
// Default: 5 Minuten
func FetchTimeout() time.Duration {
	return duration("GRAPHRT_FETCH_TIMEOUT", 5*time.Minute)
}

// WorkerTimeout gibt das Timeout fuer einen Worker-Roundtrip zurueck
// Konfigurierbar via GRAPHRT_WORKER_TIMEOUT
// 0 oder negative Werte = unendlich
// Default: 1 Minute
func WorkerTimeout() time.Duration {
	return duration("GRAPHRT_WORKER_TIMEOUT", time.Minute)
}

// LogLevel gibt das Log-Level zurueck
// Konfigurierbar via GRAPHRT_DEBUG
// Werte: 0/false = INFO (Default), 1/true = DEBUG, 2 = TRACE
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("GRAPHRT_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// Var gibt eine Environment-Variable zurueck
// Entfernt fuehrende/trailing Quotes und Leerzeichen
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

func duration(key string, defaultValue time.Duration) (d time.Duration) {
	d = defaultValue
	if s := Var(key); s != "" {
		if v, err := time.ParseDuration(s); err == nil {
			d = v
		} else if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			d = time.Duration(n) * time.Second
		} else {
			slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
		}
	}

	if d <= 0 {
		return time.Duration(math.MaxInt64)
	}

	return d
}

func list(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, strings.ToLower(item))
		}
	}
	return out
}
