package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tensord/internal/engine"
	"tensord/internal/httpapi"
	"tensord/internal/registry"
	"tensord/internal/service"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type daemonConfig struct {
	configPath  string
	addr        string
	modelsDir   string
	logLevel    string
	logFormat   string
	corsOrigins string
}

func newRootCmd() *cobra.Command {
	cfg := &daemonConfig{
		addr: envOr("TENSORD_ADDR", ":8080"),
	}
	root := &cobra.Command{
		Use:           "tensord",
		Short:         "Asynchronous ML inference service daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}
	root.Flags().StringVar(&cfg.configPath, "config", "", "Service config file (yaml/json/toml)")
	root.Flags().StringVar(&cfg.addr, "addr", cfg.addr, "Admin HTTP listen address, e.g. :8080 (empty disables)")
	root.Flags().StringVar(&cfg.modelsDir, "models-dir", "", "Directory to scan for model files to pre-register")
	root.Flags().StringVar(&cfg.logLevel, "log-level", envOr("TENSORD_LOG_LEVEL", "info"), "Log level: debug|info|warn|error")
	root.Flags().StringVar(&cfg.logFormat, "log-format", "console", "Log format: console|json")
	root.Flags().StringVar(&cfg.corsOrigins, "cors-origins", "", "Comma-separated allowed CORS origins for the admin API")
	_ = root.MarkFlagRequired("config")
	return root
}

func run(cfg *daemonConfig) error {
	log := buildLogger(cfg.logLevel, cfg.logFormat)

	models := registry.NewStore()
	if cfg.modelsDir != "" {
		n, err := models.ScanDir(cfg.modelsDir)
		if err != nil {
			return fmt.Errorf("scan models dir: %w", err)
		}
		log.Info().Int("models", n).Str("dir", cfg.modelsDir).Msg("model registry loaded")
	}

	// The daemon ships with the loopback engine; production deployments
	// plug a real runtime behind the same interface.
	reg := service.NewRegistry(service.Options{
		Engine: &engine.Func{},
		Models: models,
		Logger: log,
	})
	defer reg.Close()

	h, err := reg.Create(cfg.configPath)
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}

	api := httpapi.NewServer(reg, httpapi.Config{Logger: log})
	if err := api.Watch(h); err != nil {
		return err
	}
	if err := reg.Start(h); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	log.Info().Str("handle", string(h)).Str("config", cfg.configPath).Msg("service running")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.addr == "" {
		<-ctx.Done()
		return nil
	}

	srv := &http.Server{
		Addr:    cfg.addr,
		Handler: api.Mux(httpapi.Config{Logger: log, CORSOrigins: splitCSV(cfg.corsOrigins)}),
	}
	go func() {
		log.Info().Str("addr", cfg.addr).Msg("admin API listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("admin server error")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	return nil
}

func buildLogger(level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if format == "json" {
		log = zerolog.New(os.Stderr)
	} else {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return log.Level(lvl).With().Timestamp().Logger()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// splitCSV splits a comma-separated flag value, trimming whitespace and
// dropping empty entries.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
