// Modul: encodings.go - Konkrete Decoder
// Enthaelt: raw, eightbit (Tabellen-basiert), float16, bfloat16
package weights

import (
	"encoding/binary"
	"math"

	bfloat16 "github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"

	"github.com/7blacky7/graphrt/graph"
)

// DecodeTable bildet die unteren 7 Bit eines eightbit-Codes auf einen Betrag ab.
// Bit 7 ist das Vorzeichen. table[0] = 0, table[k] = 2^((k-127)/8).
var DecodeTable = func() (t [128]float32) {
	for k := 1; k < len(t); k++ {
		t[k] = float32(math.Exp2(float64(k-127) / 8))
	}
	return t
}()

// decodeRaw interpretiert die Bytes als little-endian float32.
func decodeRaw(data []byte, layout graph.MemoryLayout) ([]float32, error) {
	n := layout.Floats()
	if err := need("raw", data, n, 4); err != nil {
		return nil, err
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return out, nil
}

// decodeEightbit expandiert je ein Byte zu einem float32 per DecodeTable.
func decodeEightbit(data []byte, layout graph.MemoryLayout) ([]float32, error) {
	n := layout.Floats()
	if err := need("eightbit", data, n, 1); err != nil {
		return nil, err
	}
	out := make([]float32, n)
	for i, b := range data[:n] {
		v := DecodeTable[b&0x7f]
		if b&0x80 != 0 {
			v = -v
		}
		out[i] = v
	}
	return out, nil
}

func decodeFloat16(data []byte, layout graph.MemoryLayout) ([]float32, error) {
	n := layout.Floats()
	if err := need("float16", data, n, 2); err != nil {
		return nil, err
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = float16.Frombits(binary.LittleEndian.Uint16(data[2*i:])).Float32()
	}
	return out, nil
}

func decodeBFloat16(data []byte, layout graph.MemoryLayout) ([]float32, error) {
	n := layout.Floats()
	if err := need("bfloat16", data, n, 2); err != nil {
		return nil, err
	}
	return bfloat16.DecodeFloat32(data[:2*n]), nil
}
