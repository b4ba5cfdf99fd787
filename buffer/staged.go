// Modul: staged.go - Buffer ohne CPU-sichtbaren Speicher
// Enthaelt: Backing, Staged (Views sind Staging-Speicher, Sync kopiert)
package buffer

import (
	"context"
	"fmt"
	"slices"
)

// Backing ist der entfernte Speicher hinter einem Staged-Buffer.
type Backing interface {
	Upload(ctx context.Context, offset int, data []byte) error
	Download(ctx context.Context, offset int, dst []byte) error
}

type stagedView struct {
	offset int
	data   []byte
}

// Staged haelt Views als eigenen Speicher und gleicht sie ueber Backing ab.
// Angeforderte Views bleiben fuer die Lebensdauer des Buffers registriert.
type Staged struct {
	backing    Backing
	byteLength int
	backed     string

	writeViews []stagedView
	readViews  []stagedView
}

// NewStaged erstellt einen Staged-Buffer ueber backing.
func NewStaged(backing Backing, byteLength int, backed string) *Staged {
	return &Staged{backing: backing, byteLength: byteLength, backed: backed}
}

func (s *Staged) ByteLength() int { return s.byteLength }
func (s *Staged) Backed() string  { return s.backed }

func (s *Staged) Write(ctx context.Context, src []byte, dstOffset int) error {
	if err := CheckRange("write", dstOffset, len(src), s.byteLength); err != nil {
		return err
	}
	return s.backing.Upload(ctx, dstOffset, src)
}

func (s *Staged) Read(ctx context.Context, dst []byte, srcOffset int) error {
	if err := CheckRange("read", srcOffset, len(dst), s.byteLength); err != nil {
		return err
	}
	return s.backing.Download(ctx, srcOffset, dst)
}

func (s *Staged) WriteView(offset, length int) ([]byte, error) {
	if err := CheckRange("write view", offset, length, s.byteLength); err != nil {
		return nil, err
	}
	v := stagedView{offset: offset, data: Alloc(length)}
	s.writeViews = append(s.writeViews, v)
	return v.data, nil
}

func (s *Staged) ReadView(offset, length int) ([]byte, error) {
	if err := CheckRange("read view", offset, length, s.byteLength); err != nil {
		return nil, err
	}
	v := stagedView{offset: offset, data: Alloc(length)}
	s.readViews = append(s.readViews, v)
	return v.data, nil
}

// SyncWriteViews laedt alle Schreib-Views in den Backing-Speicher.
func (s *Staged) SyncWriteViews(ctx context.Context) error {
	for _, v := range s.writeViews {
		if err := s.backing.Upload(ctx, v.offset, v.data); err != nil {
			return fmt.Errorf("sync write view at %d: %w", v.offset, err)
		}
	}
	return nil
}

// ReleaseWriteView meldet einen Schreib-View ab. Spaetere SyncWriteViews
// laden ihn nicht mehr hoch.
func (s *Staged) ReleaseWriteView(view []byte) {
	if len(view) == 0 {
		return
	}
	s.writeViews = slices.DeleteFunc(s.writeViews, func(v stagedView) bool {
		return len(v.data) > 0 && &v.data[0] == &view[0]
	})
}

// SyncReadViews holt den aktuellen Backing-Inhalt in alle Lese-Views.
func (s *Staged) SyncReadViews(ctx context.Context) error {
	for _, v := range s.readViews {
		if err := s.backing.Download(ctx, v.offset, v.data); err != nil {
			return fmt.Errorf("sync read view at %d: %w", v.offset, err)
		}
	}
	return nil
}
