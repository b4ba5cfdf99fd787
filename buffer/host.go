// Modul: host.go - CPU-Speicher mit direkten Views
// Enthaelt: Host (Views sind Aliase, Syncs sind No-Ops)
package buffer

import "context"

// Host ist ein Buffer im Prozessspeicher. Alle Views sind direkte Aliase.
type Host struct {
	data   []byte
	backed string
}

// NewHost allokiert einen null-initialisierten Host-Buffer.
func NewHost(byteLength int) *Host {
	return &Host{data: Alloc(byteLength), backed: "cpu"}
}

// Bytes gibt den gesamten Speicher zurueck.
func (h *Host) Bytes() []byte {
	return h.data
}

func (h *Host) ByteLength() int { return len(h.data) }
func (h *Host) Backed() string  { return h.backed }

func (h *Host) Write(_ context.Context, src []byte, dstOffset int) error {
	if err := CheckRange("write", dstOffset, len(src), len(h.data)); err != nil {
		return err
	}
	copy(h.data[dstOffset:], src)
	return nil
}

func (h *Host) Read(_ context.Context, dst []byte, srcOffset int) error {
	if err := CheckRange("read", srcOffset, len(dst), len(h.data)); err != nil {
		return err
	}
	copy(dst, h.data[srcOffset:])
	return nil
}

func (h *Host) WriteView(offset, length int) ([]byte, error) {
	if err := CheckRange("write view", offset, length, len(h.data)); err != nil {
		return nil, err
	}
	return h.data[offset : offset+length : offset+length], nil
}

func (h *Host) ReadView(offset, length int) ([]byte, error) {
	if err := CheckRange("read view", offset, length, len(h.data)); err != nil {
		return nil, err
	}
	return h.data[offset : offset+length : offset+length], nil
}

func (h *Host) SyncWriteViews(context.Context) error { return nil }
func (h *Host) SyncReadViews(context.Context) error  { return nil }
