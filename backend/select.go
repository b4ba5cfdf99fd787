// select.go - Backend-Auswahl
// Dieses Modul enthaelt:
// - Select: probiert Backends in Reihenfolge, erster Erfolg gewinnt
// - SelectFrom: wie Select, mit bereits erzeugten Kandidaten
// - SelectionError: listet alle fehlgeschlagenen Versuche
// Nur fault.Retryable-Fehler fuehren zum naechsten Kandidaten.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/7blacky7/graphrt/fault"
	"github.com/7blacky7/graphrt/runner"
)

// Attempt ist das Ergebnis eines Probe-Versuchs.
type Attempt struct {
	Backend string
	Err     error
}

// SelectionError wird zurueckgegeben, wenn kein Backend verfuegbar ist.
// Fatal ist gesetzt, wenn die Auswahl an einem nicht behebbaren Fehler
// abgebrochen wurde; der letzte Versuch enthaelt ihn.
type SelectionError struct {
	Attempts []Attempt
	Fatal    error
}

func (e *SelectionError) Error() string {
	if len(e.Attempts) == 0 {
		return "no backend candidates"
	}
	var sb strings.Builder
	if e.Fatal != nil {
		sb.WriteString("backend selection aborted:")
	} else {
		sb.WriteString("no backend available:")
	}
	for _, a := range e.Attempts {
		fmt.Fprintf(&sb, " %s: %v;", a.Backend, a.Err)
	}
	return strings.TrimSuffix(sb.String(), ";")
}

// Unwrap erlaubt errors.Is(err, fault.ErrPlatformUnavailable) bzw. die
// Klasse des Fehlers, an dem die Auswahl abgebrochen wurde.
func (e *SelectionError) Unwrap() error {
	if e.Fatal != nil {
		return e.Fatal
	}
	return fault.ErrPlatformUnavailable
}

// Select erstellt und initialisiert die Backends aus order nacheinander.
// Das erste erfolgreich initialisierte wird zurueckgegeben. Eine leere
// order verwendet DefaultOrder(). Unbekannte Namen in order sind ein
// Konfigurationsfehler; nur fault.Retryable-Fehler fuehren zum naechsten
// Backend.
func Select(ctx context.Context, order []string, opts runner.Options) (Interface, error) {
	if len(order) == 0 {
		order = DefaultOrder()
	}
	for _, name := range order {
		if !Known(name) {
			return nil, fmt.Errorf("%w: unknown backend %q in order %v", fault.ErrConfiguration, name, order)
		}
	}

	var attempts []Attempt
	for _, name := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		iface, err := New(name, opts)
		if err == nil {
			if err = probe(ctx, iface); err == nil {
				slog.Info("backend selected", "backend", iface.Name(), "order", order)
				return iface, nil
			}
			iface.Close()
		}
		attempts = append(attempts, Attempt{Backend: name, Err: err})
		if !fault.Retryable(err) {
			slog.Warn("backend selection aborted", "backend", name, "error", err)
			return nil, &SelectionError{Attempts: attempts, Fatal: err}
		}
		slog.Debug("backend unavailable", "backend", name, "error", err)
	}
	return nil, &SelectionError{Attempts: attempts}
}

// SelectFrom initialisiert candidates nacheinander. Das erste erfolgreich
// initialisierte wird zurueckgegeben, alle anderen werden geschlossen.
// Ein nicht behebbarer Fehler bricht die Auswahl ab.
func SelectFrom(ctx context.Context, candidates []Interface) (Interface, error) {
	var attempts []Attempt
	var selected Interface
	var fatal error
	for _, iface := range candidates {
		if selected != nil || fatal != nil {
			iface.Close()
			continue
		}
		err := ctx.Err()
		if err == nil {
			err = probe(ctx, iface)
		}
		if err == nil {
			selected = iface
			slog.Info("backend selected", "backend", iface.Name())
			continue
		}
		iface.Close()
		attempts = append(attempts, Attempt{Backend: iface.Name(), Err: err})
		if ctx.Err() == nil && !fault.Retryable(err) {
			fatal = err
		}
	}

	if selected == nil {
		if err := ctx.Err(); err != nil {
			return nil, errors.Join(err, &SelectionError{Attempts: attempts})
		}
		return nil, &SelectionError{Attempts: attempts, Fatal: fatal}
	}
	return selected, nil
}
