// buffer.go - buffer.Buffer ueber einem Geraete-Buffer
// Views sind direkte Aliase auf den Geraetespeicher; Lesezugriffe warten
// vorher auf die Command-Queue.
package webgpu

import (
	"context"

	"github.com/7blacky7/graphrt/buffer"
	"github.com/7blacky7/graphrt/gpu"
)

// Buffer ist ein buffer.Buffer im Speicher des GPU-Geraets.
type Buffer struct {
	handler *Handler
	buf     gpu.Buffer
}

var _ buffer.Buffer = (*Buffer)(nil)

// NewBuffer legt einen null-initialisierten Buffer mit byteLength Bytes an.
func (h *Handler) NewBuffer(byteLength int) (*Buffer, error) {
	b, err := h.newBuffer(byteLength, nil)
	if err != nil {
		return nil, err
	}
	return &Buffer{handler: h, buf: b}, nil
}

// GPUBuffer gibt den Geraete-Buffer fuer Dispatches zurueck.
func (b *Buffer) GPUBuffer() gpu.Buffer { return b.buf }

func (b *Buffer) ByteLength() int { return b.buf.Length() }
func (b *Buffer) Backed() string  { return "gpu" }

func (b *Buffer) Write(_ context.Context, src []byte, dstOffset int) error {
	if err := buffer.CheckRange("write", dstOffset, len(src), b.ByteLength()); err != nil {
		return err
	}
	copy(b.buf.Contents()[dstOffset:], src)
	return nil
}

// Read wartet auf alle eingereihten Dispatches und kopiert dann.
func (b *Buffer) Read(ctx context.Context, dst []byte, srcOffset int) error {
	if err := buffer.CheckRange("read", srcOffset, len(dst), b.ByteLength()); err != nil {
		return err
	}
	if err := b.handler.Sync(ctx); err != nil {
		return err
	}
	copy(dst, b.buf.Contents()[srcOffset:])
	return nil
}

func (b *Buffer) WriteView(offset, length int) ([]byte, error) {
	return b.view("write view", offset, length)
}

func (b *Buffer) ReadView(offset, length int) ([]byte, error) {
	return b.view("read view", offset, length)
}

func (b *Buffer) view(op string, offset, length int) ([]byte, error) {
	if err := buffer.CheckRange(op, offset, length, b.ByteLength()); err != nil {
		return nil, err
	}
	return b.buf.Contents()[offset : offset+length : offset+length], nil
}

// SyncWriteViews ist ohne Wirkung; Views sind Aliase.
func (b *Buffer) SyncWriteViews(context.Context) error { return nil }

// SyncReadViews wartet auf alle eingereihten Dispatches.
func (b *Buffer) SyncReadViews(ctx context.Context) error {
	return b.handler.Sync(ctx)
}
