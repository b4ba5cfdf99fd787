// progress.go - Lesen eines Bodies mit Fortschrittsmeldungen
package fetch

import (
	"bytes"
	"fmt"
	"io"

	"github.com/7blacky7/graphrt/fault"
)

// ChunkSize ist die Groesse eines Lesevorgangs in ReadProgressively.
const ChunkSize = 64 * 1024

// ProgressFunc erhaelt gelesene und erwartete Bytes.
type ProgressFunc func(loaded, total int64)

// ReadProgressively liest resp.Body vollstaendig und schliesst ihn.
// onProgress wird nach jedem Chunk aufgerufen; bei unbekannter Laenge oder
// ohne Callback wird ohne Fortschrittsmeldung gelesen.
func ReadProgressively(resp *Response, onProgress ProgressFunc) ([]byte, error) {
	defer resp.Body.Close()

	if onProgress == nil || resp.ContentLength < 0 {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", fault.ErrTransport, resp.URL, err)
		}
		return data, nil
	}

	total := resp.ContentLength
	var out bytes.Buffer
	out.Grow(int(total))
	chunk := make([]byte, ChunkSize)
	for {
		n, err := resp.Body.Read(chunk)
		if n > 0 {
			out.Write(chunk[:n])
			onProgress(int64(out.Len()), total)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", fault.ErrTransport, resp.URL, err)
		}
	}

	if int64(out.Len()) != total {
		return nil, fmt.Errorf("%w: read %s: got %d of %d bytes", fault.ErrTransport, resp.URL, out.Len(), total)
	}
	return out.Bytes(), nil
}
