// Package buffer definiert den backend-unabhaengigen Speicherbereich mit
// asynchronen Schreib-/Lesezugriffen und Views.
//
// Modul: buffer.go - Buffer-Interface und typisierte Views
// Enthaelt: Buffer, Number, WriteView/ReadView, AsSlice/AsBytes, Bereichspruefung
//
// Ein Backend mit CPU-sichtbarem Speicher liefert direkte Aliase (keine Kopie),
// ein Backend ohne CPU-sichtbaren Speicher liefert Staging-Speicher, der erst
// durch SyncWriteViews/SyncReadViews mit dem Backend abgeglichen wird.
package buffer

import (
	"context"
	"fmt"
	"unsafe"

	"github.com/7blacky7/graphrt/fault"
)

// Buffer ist ein adressierbarer Speicherbereich eines Backends.
// Ein Buffer gehoert genau einem Runner und ist nicht fuer parallele
// Schreibzugriffe auf ueberlappende Bereiche ausgelegt.
type Buffer interface {
	// ByteLength gibt die Groesse in Bytes zurueck
	ByteLength() int

	// Backed kennzeichnet die physische Speicherklasse (z.B. "cpu", "gpu", "wasm")
	Backed() string

	// Write kopiert src an dstOffset; abgeschlossen, wenn Write zurueckkehrt
	Write(ctx context.Context, src []byte, dstOffset int) error

	// Read kopiert len(dst) Bytes ab srcOffset nach dst
	Read(ctx context.Context, dst []byte, srcOffset int) error

	// WriteView liefert einen Bereich, der direkt beschrieben wird.
	// Inhalte sind nach SyncWriteViews fuer das Backend sichtbar.
	WriteView(offset, length int) ([]byte, error)

	// ReadView liefert einen Bereich, der nach SyncReadViews aktuell ist.
	ReadView(offset, length int) ([]byte, error)

	SyncWriteViews(ctx context.Context) error
	SyncReadViews(ctx context.Context) error
}

// Number umfasst die Elementtypen, die als View angefordert werden koennen.
type Number interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64
}

func sizeOf[T Number]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

// AsSlice interpretiert b ohne Kopie als []T. b muss passend ausgerichtet sein.
func AsSlice[T Number](b []byte) []T {
	if len(b) == 0 {
		return []T{}
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(b))), len(b)/sizeOf[T]())
}

// AsBytes interpretiert s ohne Kopie als Bytes.
func AsBytes[T Number](s []T) []byte {
	if len(s) == 0 {
		return []byte{}
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*sizeOf[T]())
}

// WriteView fordert einen typisierten Schreib-View an. offset und length
// zaehlen Elemente vom Typ T.
func WriteView[T Number](b Buffer, offset, length int) ([]T, error) {
	n := sizeOf[T]()
	raw, err := b.WriteView(offset*n, length*n)
	if err != nil {
		return nil, err
	}
	return AsSlice[T](raw), nil
}

// ReadView fordert einen typisierten Lese-View an. offset und length
// zaehlen Elemente vom Typ T.
func ReadView[T Number](b Buffer, offset, length int) ([]T, error) {
	n := sizeOf[T]()
	raw, err := b.ReadView(offset*n, length*n)
	if err != nil {
		return nil, err
	}
	return AsSlice[T](raw), nil
}

// Alloc liefert length Bytes mit 8-Byte-Ausrichtung, damit jeder Number-Typ
// ohne Kopie darauf abgebildet werden kann.
func Alloc(length int) []byte {
	words := make([]uint64, (length+7)/8)
	return AsBytes(words)[:length]
}

// CheckRange prueft, dass [offset, offset+length) in total liegt.
func CheckRange(op string, offset, length, total int) error {
	if offset < 0 || length < 0 || offset+length > total {
		return fmt.Errorf("%w: %s [%d, %d) out of buffer range [0, %d)", fault.ErrConfiguration, op, offset, offset+length, total)
	}
	return nil
}
