// Modul: cache_writer.go - Schreiben von Blobs ueber temporaere Dateien
// Enthaelt: Put, Import, writeTemp, install
package blob

import (
	"cmp"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
)

// Put schreibt einen Blob mit bekanntem Digest. r muss exakt size Bytes mit
// passendem Digest liefern, sonst bleibt der Cache unveraendert.
func (c *DiskCache) Put(d Digest, r io.Reader, size int64) error {
	tmp, got, err := c.writeTemp(r, size)
	if err != nil {
		return err
	}
	if got != d {
		os.Remove(tmp)
		return fmt.Errorf("blob: digest mismatch, want %s, got %s", d, got)
	}
	return c.install(tmp, d)
}

// Import liest r vollstaendig, berechnet den Digest und nimmt den Blob auf.
// size < 0 akzeptiert jede Laenge.
func (c *DiskCache) Import(r io.Reader, size int64) (Digest, error) {
	tmp, d, err := c.writeTemp(r, size)
	if err != nil {
		return Digest{}, err
	}
	return d, c.install(tmp, d)
}

// writeTemp kopiert r in eine temporaere Datei im Cache und hasht dabei mit.
// Bei Fehlern wird die Datei entfernt.
func (c *DiskCache) writeTemp(r io.Reader, size int64) (name string, d Digest, err error) {
	f, err := os.CreateTemp(c.dir, "import-")
	if err != nil {
		return "", Digest{}, err
	}
	defer func() {
		if err != nil {
			os.Remove(f.Name())
		}
	}()

	// ein Byte mehr lesen, um zu lange Quellen zu erkennen
	if size >= 0 {
		r = io.LimitReader(r, size+1)
	}

	h := sha256.New()
	n, err := io.Copy(f, io.TeeReader(r, h))
	if err = cmp.Or(err, f.Close()); err != nil {
		return "", Digest{}, err
	}
	if size >= 0 && n != size {
		return "", Digest{}, fmt.Errorf("blob: expected %d bytes, got %d", size, n)
	}

	h.Sum(d.sum[:0])
	return f.Name(), d, nil
}

// install verschiebt tmp an den Platz des Blobs d.
func (c *DiskCache) install(tmp string, d Digest) error {
	name := c.GetFile(d)
	if err := os.Rename(tmp, name); err != nil {
		os.Remove(tmp)
		return err
	}
	now := c.now()
	os.Chtimes(name, now, now)
	return nil
}
