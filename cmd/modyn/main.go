// Command modyn serves models through the modyn runtime and offers
// inspection commands for backends, plugins and model files.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type globalOpts struct {
	configPath string
	logLevel   string
	logFormat  string
}

func buildRootCmd() *cobra.Command {
	g := &globalOpts{}
	root := &cobra.Command{
		Use:           "modyn",
		Short:         "Model serving runtime with pooled instances and pluggable backends",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Config file (.yaml, .yml, .json or .toml)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level: debug|info|warn|error (defaults to config or info)")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", "console", "Log format: console|json")

	root.AddCommand(
		newServeCmd(g),
		newBackendsCmd(g),
		newDetectCmd(),
		newPluginsCmd(g),
		newDoctorCmd(g),
		&cobra.Command{Use: "version", Short: "Print the version", RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "modyn "+version)
			return err
		}},
	)
	return root
}

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "modyn:", err)
		os.Exit(1)
	}
}

// splitCSV splits a comma separated list, dropping blanks.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
