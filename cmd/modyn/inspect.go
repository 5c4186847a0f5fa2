package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"modyn/internal/backend"
	"modyn/internal/manager"
	"modyn/internal/plugin"
)

func newBackendsCmd(g *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List registered and discoverable backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g.configPath)
			if err != nil {
				return err
			}
			log, err := setupLogger(g, cfg)
			if err != nil {
				return err
			}
			rt, err := buildRuntime(cfg, &log)
			if err != nil {
				return err
			}
			defer rt.Close()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "BACKEND\tSOURCE")
			for _, id := range rt.AvailableBackends() {
				fmt.Fprintf(w, "%s\tregistered\n", id)
			}
			for _, id := range rt.Loader().DiscoverableBackends() {
				fmt.Fprintf(w, "%s\tplugin\n", id)
			}
			return w.Flush()
		},
	}
}

func newDetectCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "detect <model-file>...",
		Short:   "Print the backend each model file maps to",
		Example: "  modyn detect ~/models/resnet.onnx ~/models/llama.gguf",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var failed int
			for _, p := range args {
				id, err := backend.DetectBackend(p)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", p, err)
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", p, id)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files not recognised", failed, len(args))
			}
			return nil
		},
	}
}

func newPluginsCmd(g *globalOpts) *cobra.Command {
	cmd := &cobra.Command{Use: "plugins", Short: "Discover and inspect backend plugins", RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("plugins requires a subcommand: discover|inspect")
	}}
	discover := &cobra.Command{Use: "discover [dir]...", Short: "List plugins found in the search paths (or the given dirs)", RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(g.configPath)
		if err != nil {
			return err
		}
		log, err := setupLogger(g, cfg)
		if err != nil {
			return err
		}
		l := plugin.New(plugin.Config{SearchPaths: cfg.PluginPaths, Logger: &log})
		var dirs []string
		if len(args) > 0 {
			dirs = args
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tVERSION\tBACKEND\tPATH")
		n := l.Discover(dirs, func(d plugin.Descriptor) {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.Name, d.Version, d.Backend, d.Path)
		})
		if err := w.Flush(); err != nil {
			return err
		}
		log.Debug().Int("plugins", n).Msg("discovery finished")
		return nil
	}}
	inspect := &cobra.Command{Use: "inspect <plugin-file>", Short: "Print a plugin's metadata as JSON", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		l := plugin.New(plugin.Config{})
		d, err := l.Inspect(args[0])
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), d)
	}}
	cmd.AddCommand(discover, inspect)
	return cmd
}

func newDoctorCmd(g *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check backends, plugins, memory and model files; print a JSON report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g.configPath)
			if err != nil {
				return err
			}
			log, err := setupLogger(g, cfg)
			if err != nil {
				return err
			}
			rt, err := buildRuntime(cfg, &log)
			if err != nil {
				return err
			}
			defer rt.Close()
			reg, err := buildCatalog(cfg)
			if err != nil {
				return err
			}
			mcfg, err := managerConfig(cfg, rt, reg, &log)
			if err != nil {
				return err
			}
			mgr := manager.NewWithConfig(mcfg)
			defer mgr.Close()
			rep := mgr.SanityCheck()
			if err := writeJSON(cmd.OutOrStdout(), rep); err != nil {
				return err
			}
			if !rep.OK {
				return fmt.Errorf("sanity check failed")
			}
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
