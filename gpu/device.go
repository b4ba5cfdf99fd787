// device.go - GPU-Geraeteabstraktion fuer Compute-Shader
// Dieses Modul definiert die Schnittstellen, die ein GPU-Treiber bereitstellt:
// Geraet, Buffer, Bibliothek, Pipeline-State und Command-Queue.
package gpu

import (
	"context"
)

// Size ist eine dreidimensionale Dispatch-Groesse.
type Size struct {
	Width, Height, Depth int
}

// Count gibt das Produkt der Dimensionen zurueck.
func (s Size) Count() int {
	return s.Width * s.Height * s.Depth
}

// Device ist ein ueber einen Treiber geoeffnetes Compute-Geraet.
type Device interface {
	// Name identifiziert das Geraet in Logs
	Name() string

	// NewBuffer reserviert length genullte Bytes mit CPU-sichtbarem Inhalt
	NewBuffer(length int) (Buffer, error)

	// NewLibrary uebersetzt den Kernelquelltext
	NewLibrary(source string) (Library, error)

	NewPipelineState(fn Function) (PipelineState, error)
	NewCommandQueue() CommandQueue

	// Close gibt das Geraet frei. Ausstehende Command-Buffer schlagen fehl.
	Close() error
}

// Buffer ist Geraetespeicher mit CPU-sichtbarem Inhalt.
type Buffer interface {
	Length() int

	// Contents zeigt direkt auf den Geraetespeicher, Schreibzugriffe sehen
	// spaetere Dispatches
	Contents() []byte
}

// Library ist ein uebersetztes Kernel-Modul.
type Library interface {
	FunctionNames() []string
	Function(name string) (Function, error)
}

// Function ist eine einzelne Compute-Funktion einer Library.
type Function interface {
	Name() string
}

// PipelineState ist eine fuer die Ausfuehrung vorbereitete Funktion.
type PipelineState interface {
	Function() Function
}

// CommandQueue fuehrt Command-Buffer in Commit-Reihenfolge aus.
type CommandQueue interface {
	CommandBuffer() CommandBuffer
}

// CommandBuffer sammelt Dispatches und wird als Einheit ausgefuehrt.
type CommandBuffer interface {
	ComputeCommandEncoder() ComputeCommandEncoder

	// Commit reicht den Buffer ein, danach wird nichts mehr kodiert
	Commit()

	// Completed wird geschlossen, sobald der Buffer ausgefuehrt oder gescheitert ist
	Completed() <-chan struct{}

	// Err liefert den Ausfuehrungsfehler, nachdem Completed geschlossen ist
	Err() error
}

// ComputeCommandEncoder kodiert einen Dispatch in einen Command-Buffer.
type ComputeCommandEncoder interface {
	SetPipelineState(ps PipelineState)
	SetBuffer(b Buffer, offset, index int)
	Dispatch(threadgroupsPerGrid, threadsPerThreadgroup Size)
	EndEncoding()
}

// Wait blockiert bis cb abgeschlossen ist oder ctx endet.
func Wait(ctx context.Context, cb CommandBuffer) error {
	select {
	case <-cb.Completed():
		return cb.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
