// cache.go - Zwischenspeichern von HTTP-Antworten im Disk-Cache
// Dieses Modul enthaelt cachingBody: der Body wird beim Lesen in eine
// temporaere Datei gespiegelt und nach vollstaendigem Lesen importiert.
package fetch

import (
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/7blacky7/graphrt/fetch/blob"
)

type cachingBody struct {
	io.ReadCloser

	cache *blob.DiskCache
	url   string
	size  int64

	tmp  *os.File
	n    int64
	done bool
}

func newCachingBody(body io.ReadCloser, cache *blob.DiskCache, url string, size int64) io.ReadCloser {
	tmp, err := os.CreateTemp(cache.Dir(), "download-")
	if err != nil {
		slog.Warn("download cache disabled for request", "url", url, "error", err)
		return body
	}
	return &cachingBody{ReadCloser: body, cache: cache, url: url, size: size, tmp: tmp}
}

func (b *cachingBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if n > 0 && b.tmp != nil {
		if _, werr := b.tmp.Write(p[:n]); werr != nil {
			slog.Warn("download cache write failed", "url", b.url, "error", werr)
			b.discard()
		}
		b.n += int64(n)
	}
	if errors.Is(err, io.EOF) && b.tmp != nil && !b.done {
		b.done = true
		b.commit()
	}
	return n, err
}

func (b *cachingBody) commit() {
	defer b.discard()
	if b.size >= 0 && b.n != b.size {
		return
	}
	if _, err := b.tmp.Seek(0, io.SeekStart); err != nil {
		return
	}
	d, err := b.cache.Import(b.tmp, b.n)
	if err == nil {
		err = b.cache.Link(b.url, d)
	}
	if err != nil {
		slog.Warn("download cache import failed", "url", b.url, "error", err)
		return
	}
	slog.Debug("download cached", "url", b.url, "digest", d)
}

func (b *cachingBody) discard() {
	if b.tmp == nil {
		return
	}
	b.tmp.Close()
	os.Remove(b.tmp.Name())
	b.tmp = nil
}

func (b *cachingBody) Close() error {
	b.discard()
	return b.ReadCloser.Close()
}
