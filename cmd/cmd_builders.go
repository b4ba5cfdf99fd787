// cmd_builders.go - Command-Builder Funktionen
// Hauptfunktionen: newRunCmd, newProbeCmd, newInspectCmd, newEnvCmd
package cmd

import (
	"github.com/spf13/cobra"
)

// newRunCmd - Erstellt den run Command
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run DIR",
		Short: "Load a graph directory and run it once",
		Long: `Load graph_<backend>.json and weight_<backend>.bin from DIR (a local
directory or an http(s) URL) on the first available backend and run it.

Each --input fills the next input view with comma separated values.`,
		Args: cobra.ExactArgs(1),
		RunE: RunHandler,
	}

	runCmd.Flags().StringSlice("backend", nil, "Backend order (webgpu, webassembly, fallback or gpu, wasm, cpu)")
	runCmd.Flags().StringArray("input", nil, "Comma separated values for the next input (repeatable)")
	runCmd.Flags().Int("repeat", 1, "Number of runs")
	runCmd.Flags().Bool("verbose", false, "Show backend and timings")

	return runCmd
}

// newProbeCmd - Erstellt den probe Command
func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Show which backends are available",
		Args:  cobra.NoArgs,
		RunE:  ProbeHandler,
	}
}

// newInspectCmd - Erstellt den inspect Command
func newInspectCmd() *cobra.Command {
	inspectCmd := &cobra.Command{
		Use:   "inspect DIR",
		Short: "Show the memory layout of a graph descriptor",
		Args:  cobra.ExactArgs(1),
		RunE:  InspectHandler,
	}

	inspectCmd.Flags().String("backend", "fallback", "Descriptor variant to read")

	return inspectCmd
}

// newEnvCmd - Erstellt den env Command
func newEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Show configuration environment variables",
		Args:  cobra.NoArgs,
		RunE:  EnvHandler,
	}
}
