package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/synqronlabs/courier"
	"github.com/synqronlabs/courier/metrics"
)

// app carries state shared by the subcommands after the root command has
// loaded the configuration.
type app struct {
	configPath  string
	logLevel    string
	host        string
	port        int
	security    string
	metricsAddr string

	file   *fileConfig
	logger *slog.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "courier",
		Short: "SMTP submission client",
		Long: `courier submits mail to an SMTP server over STARTTLS or implicit TLS,
authenticating with PLAIN, LOGIN or CRAM-MD5, and can probe a server's
advertised capabilities.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "Path to TOML configuration file")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVarP(&a.host, "host", "H", "", "Server host (overrides config)")
	flags.IntVarP(&a.port, "port", "p", 0, "Server port (overrides config)")
	flags.StringVar(&a.security, "security", "", "Connection security: off, tls or starttls (overrides config)")
	flags.StringVar(&a.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")

	rootCmd.AddCommand(newSendCommand(a), newProbeCommand(a))
	return rootCmd
}

func (a *app) load(cmd *cobra.Command) error {
	fc, err := loadConfig(a.configPath)
	if err != nil {
		return err
	}

	if a.host != "" {
		fc.Server.Host = a.host
	}
	if a.port != 0 {
		fc.Server.Port = a.port
	}
	if a.security != "" {
		fc.Server.Security = a.security
	}
	if a.logLevel != "" {
		fc.Log.Level = a.logLevel
	}
	if a.metricsAddr != "" {
		fc.Metrics.Listen = a.metricsAddr
	}

	logger, err := newLogger(cmd.ErrOrStderr(), fc.Log.Level, fc.Log.Format)
	if err != nil {
		return err
	}
	a.file = fc
	a.logger = logger
	return nil
}

// clientConfig builds the courier configuration, attaching a metrics
// collector served over HTTP when a listen address is configured. The
// returned stop function shuts the metrics server down.
func (a *app) clientConfig(ctx context.Context) (courier.Config, func(), error) {
	cfg, err := a.file.clientConfig(a.logger)
	if err != nil {
		return cfg, nil, err
	}
	if a.file.Metrics.Listen == "" {
		return cfg, func() {}, nil
	}

	reg := prometheus.NewRegistry()
	cfg.Observer = metrics.New(reg)

	ln, err := net.Listen("tcp", a.file.Metrics.Listen)
	if err != nil {
		return cfg, nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	a.logger.Info("serving metrics", slog.String("address", ln.Addr().String()))

	stop := func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	return cfg, stop, nil
}
