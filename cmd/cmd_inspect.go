// cmd_inspect.go - Inspect Command
// Hauptfunktionen: InspectHandler, decodeDescriptor
package cmd

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/7blacky7/graphrt/backend"
	"github.com/7blacky7/graphrt/fault"
	"github.com/7blacky7/graphrt/fetch"
	"github.com/7blacky7/graphrt/graph"
	"github.com/7blacky7/graphrt/runner"
	"github.com/7blacky7/graphrt/weights"
)

// InspectHandler - Zeigt Eingaben, Ausgaben, Layouts und Kernel eines Descriptors
func InspectHandler(cmd *cobra.Command, args []string) error {
	name, err := cmd.Flags().GetString("backend")
	if err != nil {
		return err
	}
	canonical, ok := backend.Canonical(name)
	if !ok {
		return fmt.Errorf("%w: unknown backend %q", fault.ErrConfiguration, name)
	}

	fetcher, err := fetch.Default()
	if err != nil {
		return err
	}
	d, err := decodeDescriptor(cmd.Context(), fetcher, args[0], canonical)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	c := d.Common()
	encoding := c.WeightEncoding
	if !slices.Contains(weights.Encodings(), encoding) {
		encoding += " (unsupported)"
	}
	fmt.Fprintf(w, "backend:         %s\n", canonical)
	fmt.Fprintf(w, "inputs:          %v\n", c.Inputs)
	fmt.Fprintf(w, "outputs:         %v\n", c.Outputs)
	fmt.Fprintf(w, "weight encoding: %s\n", encoding)
	fmt.Fprintf(w, "data size:       %s\n", humanBytes(int64(c.DataSize())))
	fmt.Fprintln(w)

	var data [][]string
	for _, region := range []struct {
		name   string
		layout graph.MemoryLayout
	}{
		{"weight", c.WeightAllocation},
		{"variable", c.VariableAllocation},
	} {
		for _, n := range region.layout.Names() {
			a, _ := region.layout.Get(n)
			data = append(data, []string{region.name, a.Name, strconv.Itoa(a.Offset), strconv.Itoa(a.Size)})
		}
	}
	table := newTable(w, "REGION", "NAME", "OFFSET", "SIZE")
	table.AppendBulk(data)
	table.Render()
	fmt.Fprintln(w)

	table = newTable(w, "#", "ENTRY", "DETAIL")
	table.AppendBulk(execInfos(d))
	table.Render()

	return nil
}

// decodeDescriptor - Holt graph_<backend>.json und dekodiert die passende Variante
func decodeDescriptor(ctx context.Context, f fetch.Fetcher, dir, name string) (graph.GraphDescriptor, error) {
	resp, err := f.Fetch(ctx, runner.JoinPath(dir, graph.DescriptorFile(name)))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var decode func(io.Reader) (graph.GraphDescriptor, error)
	switch name {
	case backend.WebGPU:
		decode = runner.DecodeAs[graph.WebGPUDescriptor]
	case backend.WebAssembly:
		decode = runner.DecodeAs[graph.WebAssemblyDescriptor]
	default:
		decode = runner.DecodeAs[graph.FallbackDescriptor]
	}
	return decode(resp.Body)
}

// execInfos - Eine Zeile je Kernel-Aufruf
func execInfos(d graph.GraphDescriptor) [][]string {
	var data [][]string
	switch d := d.(type) {
	case *graph.WebGPUDescriptor:
		for i, e := range d.ExecInfos {
			detail := fmt.Sprintf("groups=%dx%dx%d threads=%dx%dx%d meta=%dB",
				e.ThreadgroupsPerGrid.Width, e.ThreadgroupsPerGrid.Height, e.ThreadgroupsPerGrid.Depth,
				e.ThreadsPerThreadgroup.Width, e.ThreadsPerThreadgroup.Height, e.ThreadsPerThreadgroup.Depth,
				len(e.MetaBuffer))
			data = append(data, []string{strconv.Itoa(i), e.EntryFuncName, detail})
		}
	case *graph.WebAssemblyDescriptor:
		for i, e := range d.ExecInfos {
			data = append(data, []string{strconv.Itoa(i), e.EntryFuncName, fmt.Sprintf("meta=%dB", len(e.MetaBuffer))})
		}
	case *graph.FallbackDescriptor:
		for i, e := range d.ExecInfos {
			detail := fmt.Sprintf("in=%v out=%v weights=%v", e.Inputs, e.Outputs, e.Weights)
			data = append(data, []string{strconv.Itoa(i), e.EntryFuncName, detail})
		}
	}
	return data
}
