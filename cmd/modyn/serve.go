package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"modyn/internal/config"
	"modyn/internal/httpapi"
	"modyn/internal/manager"
)

type serveOpts struct {
	addr         string
	modelsDir    string
	defaultModel string
	memoryMB     int
	pluginPaths  string
	corsOrigins  string
	inferTimeout time.Duration
	maxBodyBytes int64
}

func newServeCmd(g *globalOpts) *cobra.Command { return newServeCmdWith(g, &serveOpts{}) }

func newServeCmdWith(g *globalOpts, o *serveOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Example: "  modyn serve --models-dir ~/models --memory-mb 2048\n" +
			"  modyn serve -c modyn.yaml --addr :9090",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g.configPath)
			if err != nil {
				return err
			}
			o.apply(cmd, &cfg)
			return runServe(g, o, cfg)
		},
	}
	defaultAddr := ":8080"
	if v := os.Getenv("MODYN_ADDR"); v != "" {
		defaultAddr = v
	}
	f := cmd.Flags()
	f.StringVar(&o.addr, "addr", defaultAddr, "HTTP listen address (defaults MODYN_ADDR or :8080)")
	f.StringVar(&o.modelsDir, "models-dir", "", "Directory to scan for model files")
	f.StringVar(&o.defaultModel, "default-model", "", "Default model id when a request omits model")
	f.IntVar(&o.memoryMB, "memory-mb", 0, "Shared memory pool size in MiB (0 disables the pool)")
	f.StringVar(&o.pluginPaths, "plugin-path", "", "Comma separated plugin search paths")
	f.StringVar(&o.corsOrigins, "cors-origins", "", "Comma separated allowed CORS origins (enables CORS)")
	f.DurationVar(&o.inferTimeout, "infer-timeout", 0, "Maximum duration of one /infer request (0 disables)")
	f.Int64Var(&o.maxBodyBytes, "max-body-bytes", 1<<20, "Maximum /infer request body size")
	return cmd
}

// apply copies explicitly set flags over the file config. The listen address
// also applies when only its environment default is set.
func (o *serveOpts) apply(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("addr") || cfg.Addr == "" {
		cfg.Addr = o.addr
	}
	if f.Changed("models-dir") {
		cfg.ModelsDir = o.modelsDir
	}
	if f.Changed("default-model") {
		cfg.DefaultModel = o.defaultModel
	}
	if f.Changed("memory-mb") {
		cfg.Memory.SizeMB = o.memoryMB
	}
	if f.Changed("plugin-path") {
		cfg.PluginPaths = splitCSV(o.pluginPaths)
	}
	if f.Changed("cors-origins") {
		cfg.CORSOrigins = splitCSV(o.corsOrigins)
	}
}

func runServe(g *globalOpts, o *serveOpts, cfg config.Config) error {
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
	mgr.Start()
	defer mgr.Close()

	httpapi.SetLogger(log)
	httpapi.Configure(httpapi.Options{
		MaxBodyBytes: o.maxBodyBytes,
		InferTimeout: o.inferTimeout,
		CORSOrigins:  cfg.CORSOrigins,
	})

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(mgr),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("models_dir", cfg.ModelsDir).Int("models", len(reg)).Msg("modyn listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)
	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}
	cancelBase()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	return nil
}
