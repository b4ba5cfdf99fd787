// Package weights rekonstruiert dichte float32-Gewichte aus kodierten Daten.
//
// Modul: decoder.go - Decoder-Interface und Registry
// Enthaelt: Decoder, Register, Get, Encodings
package weights

import (
	"fmt"
	"slices"
	"sync"

	"github.com/7blacky7/graphrt/fault"
	"github.com/7blacky7/graphrt/graph"
)

// Decoder wandelt kodierte Gewichtsdaten in ein dichtes float32-Array
// der Laenge layout.TotalSize/4.
type Decoder interface {
	Decode(data []byte, layout graph.MemoryLayout) ([]float32, error)
}

// DecoderFunc adaptiert eine Funktion an Decoder.
type DecoderFunc func(data []byte, layout graph.MemoryLayout) ([]float32, error)

// Decode ruft f auf.
func (f DecoderFunc) Decode(data []byte, layout graph.MemoryLayout) ([]float32, error) {
	return f(data, layout)
}

var (
	mu       sync.RWMutex
	decoders = map[string]Decoder{
		"raw":      DecoderFunc(decodeRaw),
		"eightbit": DecoderFunc(decodeEightbit),
		"float16":  DecoderFunc(decodeFloat16),
		"bfloat16": DecoderFunc(decodeBFloat16),
	}
)

// Register registriert einen Decoder unter name.
func Register(name string, d Decoder) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := decoders[name]; ok {
		panic("weights: decoder already registered: " + name)
	}
	decoders[name] = d
}

// Get gibt den Decoder fuer ein weight_encoding zurueck. Unbekannte Namen
// liefern ErrConfiguration, bevor Daten angefasst werden.
func Get(name string) (Decoder, error) {
	mu.RLock()
	defer mu.RUnlock()
	d, ok := decoders[name]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported encoding %q", fault.ErrConfiguration, name)
	}
	return d, nil
}

// Encodings gibt alle registrierten Encoding-Namen sortiert zurueck.
func Encodings() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(decoders))
	for name := range decoders {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Decode ist eine Abkuerzung fuer Get(encoding) + Decode.
func Decode(encoding string, data []byte, layout graph.MemoryLayout) ([]float32, error) {
	d, err := Get(encoding)
	if err != nil {
		return nil, err
	}
	return d.Decode(data, layout)
}

// need prueft, dass data fuer n Elemente zu je size Bytes reicht.
func need(encoding string, data []byte, n, size int) error {
	if len(data) < n*size {
		return fmt.Errorf("%w: %s weights truncated: need %d bytes, have %d", fault.ErrTransport, encoding, n*size, len(data))
	}
	return nil
}
