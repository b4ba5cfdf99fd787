// cmd_run.go - Run Command
// Hauptfunktionen: RunHandler, parseInputs, formatView
package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/7blacky7/graphrt/engine"
	"github.com/7blacky7/graphrt/fault"
	"github.com/7blacky7/graphrt/fetch"
	"github.com/7blacky7/graphrt/runner"
)

// RunHandler - Laedt einen Graphen, setzt Eingaben und gibt die Ausgaben aus
func RunHandler(cmd *cobra.Command, args []string) error {
	order, err := cmd.Flags().GetStringSlice("backend")
	if err != nil {
		return err
	}
	inputs, err := cmd.Flags().GetStringArray("input")
	if err != nil {
		return err
	}
	repeat, err := cmd.Flags().GetInt("repeat")
	if err != nil {
		return err
	}
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return err
	}

	values, err := parseInputs(inputs)
	if err != nil {
		return err
	}

	fetcher, err := fetch.Default()
	if err != nil {
		return err
	}

	opts := engine.Options{
		Order:  order,
		Runner: runner.Options{Fetcher: fetcher},
	}
	if f, ok := cmd.ErrOrStderr().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		bar := newBar(f, "loading weights")
		defer bar.Stop()
		opts.Progress = bar.Set
	}

	start := time.Now()
	g, err := engine.Prepare(cmd.Context(), args[0], opts)
	if err != nil {
		return err
	}
	defer g.Close()
	loaded := time.Since(start)

	if len(values) > len(g.InputViews) {
		return fmt.Errorf("%w: %d inputs given, graph has %d", fault.ErrConfiguration, len(values), len(g.InputViews))
	}
	for i, v := range values {
		if len(v) > len(g.InputViews[i]) {
			return fmt.Errorf("%w: input %s takes %d values, got %d", fault.ErrConfiguration, g.Inputs[i], len(g.InputViews[i]), len(v))
		}
		copy(g.InputViews[i], v)
	}

	start = time.Now()
	for range max(repeat, 1) {
		if err := g.Run(cmd.Context()); err != nil {
			return err
		}
	}
	ran := time.Since(start)

	w := cmd.OutOrStdout()
	for i, view := range g.OutputViews {
		fmt.Fprintf(w, "%s: %s\n", g.Outputs[i], formatView(view))
	}

	if verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "backend:       %s\n", g.BackendName)
		fmt.Fprintf(cmd.ErrOrStderr(), "load duration: %s\n", loaded)
		fmt.Fprintf(cmd.ErrOrStderr(), "run duration:  %s (%d runs)\n", ran, max(repeat, 1))
	}

	return nil
}

// parseInputs - Zerlegt je Flag eine komma-separierte Werteliste
func parseInputs(inputs []string) ([][]float32, error) {
	out := make([][]float32, 0, len(inputs))
	for i, s := range inputs {
		var values []float32
		for _, field := range strings.Split(s, ",") {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			v, err := strconv.ParseFloat(field, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: input %d: %v", fault.ErrConfiguration, i, err)
			}
			values = append(values, float32(v))
		}
		out = append(out, values)
	}
	return out, nil
}

// formatView - Formatiert einen View als Leerzeichen-getrennte Liste
func formatView(view []float32) string {
	parts := make([]string, len(view))
	for i, v := range view {
		parts[i] = strconv.FormatFloat(float64(v), 'g', -1, 32)
	}
	return strings.Join(parts, " ")
}

// =============================================================================
// Fortschrittsanzeige
// =============================================================================

const (
	ansiHideCursor = "\033[?25l"
	ansiShowCursor = "\033[?25h"
	ansiClearLine  = "\r\033[K"
)

// bar - Einzeilige Fortschrittsanzeige fuer den Gewichts-Download
type bar struct {
	w       io.Writer
	fd      int
	message string
	started bool
}

func newBar(f *os.File, message string) *bar {
	return &bar{w: f, fd: int(f.Fd()), message: message}
}

// Set - Zeichnet die Anzeige fuer loaded von total Bytes neu
func (b *bar) Set(loaded, total int64) {
	if !b.started {
		fmt.Fprint(b.w, ansiHideCursor)
		b.started = true
	}
	fmt.Fprint(b.w, ansiClearLine+b.render(loaded, total))
}

// Stop - Beendet die Anzeige
func (b *bar) Stop() {
	if b.started {
		fmt.Fprint(b.w, "\n"+ansiShowCursor)
		b.started = false
	}
}

func (b *bar) render(loaded, total int64) string {
	width, _, err := term.GetSize(b.fd)
	if err != nil || width <= 0 {
		width = 80
	}

	percent := 100
	if total > 0 {
		percent = int(loaded * 100 / total)
	}
	stats := fmt.Sprintf(" %3d%% %s/%s", percent, humanBytes(loaded), humanBytes(total))

	barWidth := width - runewidth.StringWidth(b.message) - len(stats) - 4
	if barWidth < 10 {
		return b.message + stats
	}
	filled := barWidth * percent / 100
	return fmt.Sprintf("%s [%s%s]%s", b.message, strings.Repeat("=", filled), strings.Repeat(" ", barWidth-filled), stats)
}

// humanBytes - Formatiert eine Byte-Anzahl mit Einheit
func humanBytes(n int64) string {
	const unit = 1000
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "kMGT"[exp])
}
