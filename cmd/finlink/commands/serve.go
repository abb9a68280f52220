package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/systmms/finlink/internal/api"
	"github.com/systmms/finlink/internal/config"
	"github.com/systmms/finlink/internal/connectors"
	"github.com/systmms/finlink/internal/credstore"
	"github.com/systmms/finlink/internal/health"
	"github.com/systmms/finlink/internal/registry"
)

func NewServeCommand(cfg *config.Config) *cobra.Command {
	var (
		listen     string
		noMonitor  bool
		autoReload bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Connect every provider and serve the adapter API",
		Long: `Load credentials, seal them into the credential store, connect every
implemented provider and serve the HTTP API until interrupted.

Credentials come from FINLINK_CREDENTIALS (a bundle produced by 'finlink seal')
or from the credentials file named in the configuration. FINLINK_MASTER_KEY
must be set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.LoadOptional(); err != nil {
				return err
			}
			def := cfg.Definition
			if listen != "" {
				def.Server.Listen = listen
			}
			if cmd.Flags().Changed("auto-reload") {
				def.Health.AutoReload = autoReload
			}
			logger := configuredLogger(cfg)
			cfg.Logger = logger

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			v, err := openVault(cfg)
			if err != nil {
				return err
			}
			defer v.Close()

			bundle, err := cfg.LoadBundle(v)
			if err != nil {
				return err
			}

			store, err := credstore.Open(ctx, def.Store)
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					logger.Warn("failed to close credential store: %v", err)
				}
			}()

			factories := connectors.NewRegistry()
			factories.ApplyOverrides(cfg.EndpointOverrides())

			reg := registry.New(v,
				registry.WithStore(store),
				registry.WithFactories(factories),
				registry.WithLogger(logger),
				registry.WithMetrics(registry.DefaultMetrics()),
				registry.WithHealthConcurrency(def.Registry.HealthConcurrency),
			)
			if err := reg.Initialize(ctx, bundle); err != nil {
				return fmt.Errorf("start adapters: %w", err)
			}
			defer reg.DisconnectAll(context.Background())

			var monitor *health.Monitor
			if !noMonitor {
				monitor = health.NewMonitor(reg,
					health.MonitorConfig{
						Interval:         def.Health.Interval(),
						FailureThreshold: def.Health.FailureThreshold,
						AutoReload:       def.Health.AutoReload,
					},
					health.WithReloadTrigger(reg),
					health.WithLogger(logger),
					health.WithMetrics(health.DefaultMetrics()),
				)
				if err := monitor.Start(ctx); err != nil {
					return err
				}
				defer monitor.Stop()
			}

			opts := []api.Option{api.WithLogger(logger), api.WithMonitor(monitor)}
			if def.Health.MetricsListen != "" {
				metricsServer := health.NewMetricsServer(health.MetricsServerConfig{
					Addr:     def.Health.MetricsListen,
					Gatherer: prometheus.DefaultGatherer,
				}, logger)
				if err := metricsServer.Start(); err != nil {
					return fmt.Errorf("start metrics server: %w", err)
				}
				defer func() { _ = metricsServer.Stop(context.Background()) }()
				opts = append(opts, api.WithGatherer(nil))
			}

			if def.Server.APITokenHash == "" {
				logger.Warn("no API token hash configured; /v1/adapters routes will refuse every request")
			}

			return api.NewServer(def.Server, reg, opts...).Start(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Override the API listen address")
	cmd.Flags().BoolVar(&noMonitor, "no-monitor", false, "Disable the background health monitor")
	cmd.Flags().BoolVar(&autoReload, "auto-reload", false, "Reload adapters that keep failing health checks")

	return cmd
}
