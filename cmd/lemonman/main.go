package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"lemonman/internal/config"
	"lemonman/internal/httpapi"
	"lemonman/internal/manager"
	"lemonman/internal/store"
	"lemonman/internal/upstream"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRootCmd wires flags over env over config file into one Config and
// runs the panel server.
func buildRootCmd() *cobra.Command {
	var (
		configPath string
		flagCfg    config.Config
	)
	root := &cobra.Command{
		Use:           "lemonman",
		Short:         "Web panel for managing models on a Lemonade Server instance",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := flagCfg
			cfg.Overlay(config.FromEnv())
			if configPath != "" {
				fileCfg, err := config.Load(configPath)
				if err != nil {
					return fmt.Errorf("load config %s: %w", configPath, err)
				}
				cfg.Overlay(fileCfg)
			}
			if err := cfg.ApplyDefaults(); err != nil {
				return err
			}
			return runServe(&cfg)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "Optional config file (.yaml/.json/.toml)")
	root.Flags().StringVar(&flagCfg.Addr, "addr", "", "HTTP listen address (defaults MANAGER_HOST:MANAGER_PORT or :9000)")
	root.Flags().StringVar(&flagCfg.BaseURL, "base-url", "", "Lemonade Server base URL (defaults LEMONADE_BASE)")
	root.Flags().StringVar(&flagCfg.APIKey, "api-key", "", "Bearer credential for the upstream server (defaults LEMONADE_KEY)")
	root.Flags().StringVar(&flagCfg.RecipeFile, "recipe-file", "", "Path to the upstream recipe_options.json (defaults RECIPE_FILE)")
	root.Flags().StringVar(&flagCfg.PrefsFile, "prefs-file", "", "Path to the panel prefs file (defaults PREFS_FILE)")
	root.Flags().StringVar(&flagCfg.LogLevel, "log-level", "", "Log level: debug|info|warn|error")
	return root
}

func runServe(cfg *config.Config) error {
	log := newLogger(cfg.LogLevel)

	// Base context canceled on SIGINT/SIGTERM so in-flight relays stop too.
	baseCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := store.New(cfg.RecipeFile, cfg.PrefsFile, log)
	gw := upstream.New(cfg, log)
	mgr := manager.New(st, gw, cfg, log)
	srv := httpapi.NewServer(mgr, cfg, log, baseCtx)

	httpSrv := &http.Server{Addr: cfg.Addr, Handler: srv.Routes()}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("upstream", cfg.BaseURL).
			Bool("api_key", cfg.APIKey != "").
			Str("recipe_file", cfg.RecipeFile).Str("prefs_file", cfg.PrefsFile).
			Msg("lemonman listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-baseCtx.Done():
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	return nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).With().Timestamp().Logger()
}
