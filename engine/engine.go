// Package engine verbindet Backend-Auswahl, Runner und Modellverzeichnis
// zu einem ausfuehrbaren Graphen.
//
// Modul: engine.go - Graph und Prepare
// Enthaelt: Graph, Options, New, Prepare
package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/7blacky7/graphrt/backend"
	"github.com/7blacky7/graphrt/fetch"
	"github.com/7blacky7/graphrt/runner"
)

// Graph ist ein geladenes Modell, bereit zur Ausfuehrung.
// Eingaben werden in InputViews geschrieben, Ergebnisse stehen nach Run in
// OutputViews.
type Graph struct {
	BackendName string
	InputViews  [][]float32
	OutputViews [][]float32

	// Inputs und Outputs benennen die Views in gleicher Reihenfolge
	Inputs  []string
	Outputs []string

	runner runner.Runner

	// iface wird mit dem Graphen geschlossen, wenn Prepare es ausgewaehlt hat
	iface backend.Interface
}

// Options konfigurieren New und Prepare.
type Options struct {
	// Order ueberschreibt die Backend-Reihenfolge fuer Prepare
	Order []string

	// Progress meldet den Fortschritt des Gewichts-Downloads
	Progress fetch.ProgressFunc

	Runner runner.Options
}

// New laedt das Modell aus dir auf dem bereits initialisierten iface.
func New(ctx context.Context, iface backend.Interface, dir string, opts Options) (*Graph, error) {
	r := iface.CreateDescriptorRunner()
	if err := r.Load(ctx, dir, opts.Progress); err != nil {
		r.Close()
		return nil, err
	}

	in, err := r.InputViews(ctx)
	if err != nil {
		r.Close()
		return nil, err
	}
	out, err := r.OutputViews(ctx)
	if err != nil {
		r.Close()
		return nil, err
	}

	d := r.Descriptor().Common()
	return &Graph{
		BackendName: r.BackendName(),
		InputViews:  in,
		OutputViews: out,
		Inputs:      d.Inputs,
		Outputs:     d.Outputs,
		runner:      r,
	}, nil
}

// Prepare waehlt das erste verfuegbare Backend und laedt das Modell.
func Prepare(ctx context.Context, dir string, opts Options) (*Graph, error) {
	iface, err := backend.Select(ctx, opts.Order, opts.Runner)
	if err != nil {
		return nil, err
	}

	g, err := New(ctx, iface, dir, opts)
	if err != nil {
		iface.Close()
		return nil, err
	}
	g.iface = iface
	slog.Info("graph prepared", "backend", g.BackendName, "dir", dir, "runner", g.runner.ID())
	return g, nil
}

// Run fuehrt den Graphen mit den aktuellen Eingaben aus.
func (g *Graph) Run(ctx context.Context) error {
	return g.runner.Run(ctx)
}

// Runner gibt den zugrunde liegenden Runner zurueck.
func (g *Graph) Runner() runner.Runner {
	return g.runner
}

// Close gibt Runner und ggf. das ausgewaehlte Backend frei.
func (g *Graph) Close() error {
	err := g.runner.Close()
	if g.iface != nil {
		err = errors.Join(err, g.iface.Close())
	}
	return err
}
