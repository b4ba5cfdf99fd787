// load.go - Laden eines Modellverzeichnisses
// Dieses Modul enthaelt Load: Descriptor holen, setzen, kompilieren,
// Gewichte mit Fortschritt holen und laden.
package runner

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/7blacky7/graphrt/fault"
	"github.com/7blacky7/graphrt/fetch"
	"github.com/7blacky7/graphrt/graph"
)

// JoinPath haengt file an ein Verzeichnis oder eine URL an.
func JoinPath(dir, file string) string {
	if dir == "" {
		return file
	}
	return strings.TrimSuffix(dir, "/") + "/" + file
}

func (m *Machine) Load(ctx context.Context, dir string, progress fetch.ProgressFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.require("load", StateEmpty); err != nil {
		return err
	}

	start := time.Now()
	backend := m.impl.BackendName()

	resp, err := m.fetcher.Fetch(ctx, JoinPath(dir, graph.DescriptorFile(backend)))
	if err != nil {
		return err
	}
	d, err := m.impl.Decode(resp.Body)
	resp.Body.Close()
	if err != nil {
		return err
	}

	if err := m.setDescriptor(d); err != nil {
		return err
	}
	if err := m.compile(ctx); err != nil {
		return err
	}

	resp, err = m.fetcher.Fetch(ctx, JoinPath(dir, graph.WeightFile(backend)))
	if err != nil {
		return err
	}
	data, err := fetch.ReadProgressively(resp, progress)
	if err != nil {
		return err
	}
	if err := m.loadWeights(ctx, data); err != nil {
		return err
	}

	m.logger.Info("runner loaded", "dir", dir, "duration", time.Since(start))
	return nil
}

// DecodeAs dekodiert einen Descriptor vom Typ T fuer Impl.Decode.
func DecodeAs[T any, PT interface {
	*T
	graph.GraphDescriptor
}](body io.Reader) (graph.GraphDescriptor, error) {
	d, err := graph.Decode[T, PT](body)
	if err != nil {
		return nil, err
	}
	return PT(d), nil
}

// As prueft den Descriptor-Typ in Impl.SetDescriptor.
func As[T graph.GraphDescriptor](backend string, d graph.GraphDescriptor) (T, error) {
	t, ok := d.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s runner cannot use %T", fault.ErrConfiguration, backend, d)
	}
	return t, nil
}
