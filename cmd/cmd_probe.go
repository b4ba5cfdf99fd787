// cmd_probe.go - Probe und Env Commands
// Hauptfunktionen: ProbeHandler, EnvHandler, newTable
package cmd

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/7blacky7/graphrt/backend"
	"github.com/7blacky7/graphrt/envconfig"
	"github.com/7blacky7/graphrt/fault"
	"github.com/7blacky7/graphrt/gpu"
	"github.com/7blacky7/graphrt/runner"
)

// newTable - Tabelle im Stil von list/ps
func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	return table
}

// ProbeHandler - Probt jedes Backend und zeigt das Ergebnis
func ProbeHandler(cmd *cobra.Command, args []string) error {
	aliases := make(map[string][]string)
	for _, a := range backend.Aliases() {
		alias, name, _ := strings.Cut(a, "=")
		aliases[name] = append(aliases[name], alias)
	}

	var data [][]string
	for _, a := range backend.Availability(cmd.Context(), runner.Options{}) {
		status, reason := "available", ""
		if a.Err != nil {
			status, reason = fault.Kind(a.Err), a.Err.Error()
		}
		data = append(data, []string{a.Backend, strings.Join(aliases[a.Backend], ","), status, reason})
	}

	table := newTable(cmd.OutOrStdout(), "BACKEND", "ALIASES", "STATUS", "REASON")
	table.AppendBulk(data)
	table.Render()

	drivers := gpu.Drivers()
	if len(drivers) == 0 {
		drivers = []string{gpu.DriverNone}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\ngpu drivers: %s\n", strings.Join(drivers, ", "))
	fmt.Fprintf(cmd.OutOrStdout(), "order:       %s\n", strings.Join(backend.DefaultOrder(), ", "))

	return nil
}

// EnvHandler - Zeigt alle Konfigurationsvariablen mit aktuellem Wert
func EnvHandler(cmd *cobra.Command, args []string) error {
	vars := envconfig.AsMap()
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var data [][]string
	for _, k := range keys {
		v := vars[k]
		data = append(data, []string{v.Name, fmt.Sprintf("%v", v.Value), v.Description})
	}

	table := newTable(cmd.OutOrStdout(), "NAME", "VALUE", "DESCRIPTION")
	table.AppendBulk(data)
	table.Render()

	return nil
}
