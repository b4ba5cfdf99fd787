// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/containerd/console"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/7blacky7/graphrt/envconfig"
	"github.com/7blacky7/graphrt/logutil"
)

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-26s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// initLogging - Setzt den Default-Logger nach GRAPHRT_DEBUG
func initLogging(cmd *cobra.Command, _ []string) {
	slog.SetDefault(logutil.NewLogger(cmd.ErrOrStderr(), envconfig.LogLevel()))
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	// Windows-Konsole auf VT-Sequenzen fuer die Fortschrittsanzeige umstellen
	if runtime.GOOS == "windows" && term.IsTerminal(int(os.Stdout.Fd())) {
		console.ConsoleFromFile(os.Stdin) //nolint:errcheck
	}

	rootCmd := &cobra.Command{
		Use:               "graphrt",
		Short:             "Run precompiled computation graphs on webgpu, webassembly or fallback",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRun:  initLogging,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Print(cmd.UsageString())
		},
	}
	rootCmd.SetOut(os.Stdout)

	// Commands erstellen
	runCmd := newRunCmd()
	probeCmd := newProbeCmd()
	inspectCmd := newInspectCmd()
	envCmd := newEnvCmd()

	// Environment-Dokumentation hinzufuegen
	envVars := envconfig.AsMap()
	for _, cmd := range []*cobra.Command{runCmd, probeCmd, inspectCmd} {
		switch cmd {
		case runCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["GRAPHRT_DEBUG"],
				envVars["GRAPHRT_BACKEND_ORDER"],
				envVars["GRAPHRT_DISABLED_BACKENDS"],
				envVars["GRAPHRT_GPU_DRIVER"],
				envVars["GRAPHRT_GPU_THREADS"],
				envVars["GRAPHRT_FETCH_TIMEOUT"],
				envVars["GRAPHRT_WORKER_TIMEOUT"],
				envVars["GRAPHRT_CACHE_DIR"],
				envVars["GRAPHRT_NOCACHE"],
			})
		case probeCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["GRAPHRT_DISABLED_BACKENDS"],
				envVars["GRAPHRT_GPU_DRIVER"],
			})
		default:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["GRAPHRT_FETCH_TIMEOUT"],
				envVars["GRAPHRT_CACHE_DIR"],
				envVars["GRAPHRT_NOCACHE"],
			})
		}
	}

	rootCmd.AddCommand(
		runCmd,
		probeCmd,
		inspectCmd,
		envCmd,
	)

	return rootCmd
}
