// Modul: cache_resolve.go - Links von URLs auf Blobs
// Enthaelt: Link, Resolve, Unlink, Links und linkPath
package blob

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Link verknuepft url mit dem Blob d. Der Blob muss im Cache liegen.
func (c *DiskCache) Link(url string, d Digest) error {
	if _, err := c.Get(d); err != nil {
		return err
	}
	return os.WriteFile(c.linkPath(url), []byte(d.String()+"\n"+url), 0o666)
}

// Resolve gibt den Digest zurueck, mit dem url verknuepft ist. Ohne Link
// wird fs.ErrNotExist zurueckgegeben.
func (c *DiskCache) Resolve(url string) (Digest, error) {
	data, err := os.ReadFile(c.linkPath(url))
	if err != nil {
		return Digest{}, err
	}
	digest, linked, ok := strings.Cut(string(data), "\n")
	if !ok || linked != url {
		return Digest{}, fmt.Errorf("blob: corrupt link for %q", url)
	}
	return ParseDigest(digest)
}

// Unlink entfernt den Link von url. ok ist false, wenn kein Link existierte.
func (c *DiskCache) Unlink(url string) (ok bool, _ error) {
	err := os.Remove(c.linkPath(url))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// Links liefert alle verknuepften URLs in lexikalischer Reihenfolge.
func (c *DiskCache) Links() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		entries, err := os.ReadDir(filepath.Join(c.dir, "links"))
		if err != nil {
			yield("", err)
			return
		}

		var urls []string
		for _, e := range entries {
			data, err := os.ReadFile(filepath.Join(c.dir, "links", e.Name()))
			if err != nil {
				yield("", err)
				return
			}
			if _, url, ok := strings.Cut(string(data), "\n"); ok {
				urls = append(urls, url)
			}
		}
		slices.Sort(urls)

		for _, url := range urls {
			if !yield(url, nil) {
				return
			}
		}
	}
}

func (c *DiskCache) linkPath(url string) string {
	return filepath.Join(c.dir, "links", fmt.Sprintf("%x", sha256.Sum256([]byte(url))))
}
