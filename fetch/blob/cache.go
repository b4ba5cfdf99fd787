// Package blob implementiert einen inhaltsadressierten Disk-Cache fuer
// heruntergeladene Descriptoren und Gewichtsdaten.
//
// Modul: cache.go - DiskCache Kernfunktionen
// Enthaelt: DiskCache Struktur, Open, Get, GetFile und Hilfsfunktionen
package blob

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Entry enthaelt Metadaten zu einem Blob im Cache.
type Entry struct {
	Digest Digest
	Size   int64
	Time   time.Time // Zeitpunkt der Aufnahme
}

// DiskCache speichert Blobs und URL-Links auf der Platte.
//
// Verzeichnisstruktur:
//
//	<dir>/
//	  blobs/
//	    sha256-<digest> - <blob data>
//	  links/
//	    <sha256 der URL> - <digest>\n<url>
//
// Gleichzeitige Schreibzugriffe auf denselben Blob erzeugen dieselbe Datei;
// doppelte Arbeit wird nicht verhindert.
type DiskCache struct {
	dir string
	now func() time.Time
}

// PutBytes ist eine Abkuerzung fuer c.Put(d, bytes.NewReader(data), len(data)).
func PutBytes[S string | []byte](c *DiskCache, d Digest, data S) error {
	return c.Put(d, bytes.NewReader([]byte(data)), int64(len(data)))
}

// Open oeffnet einen Cache unter dir und legt fehlende Verzeichnisse an.
func Open(dir string) (*DiskCache, error) {
	if dir == "" {
		return nil, errors.New("blob: empty directory name")
	}

	info, err := os.Stat(dir)
	if err == nil && !info.IsDir() {
		return nil, fmt.Errorf("%q is not a directory", dir)
	}
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return nil, err
	}

	for _, subdir := range []string{"blobs", "links"} {
		if err := os.MkdirAll(filepath.Join(dir, subdir), 0o777); err != nil {
			return nil, err
		}
	}

	return &DiskCache{dir: dir, now: time.Now}, nil
}

// Dir gibt das Wurzelverzeichnis zurueck.
func (c *DiskCache) Dir() string {
	return c.dir
}

// Get liefert die Metadaten des Blobs d. Leere oder fehlende Dateien
// ergeben fs.ErrNotExist.
func (c *DiskCache) Get(d Digest) (Entry, error) {
	name := c.GetFile(d)
	info, err := os.Stat(name)
	if err != nil {
		return Entry{}, err
	}
	if info.Size() == 0 && d != Sum(nil) {
		return Entry{}, fs.ErrNotExist
	}
	return Entry{
		Digest: d,
		Size:   info.Size(),
		Time:   info.ModTime(),
	}, nil
}

// GetFile gibt den absoluten Pfad des Blobs d zurueck, ohne die Existenz
// zu pruefen.
func (c *DiskCache) GetFile(d Digest) string {
	return absJoin(c.dir, "blobs", d.String())
}

func absJoin(pp ...string) string {
	abs, err := filepath.Abs(filepath.Join(pp...))
	if err != nil {
		panic(err)
	}
	return abs
}
