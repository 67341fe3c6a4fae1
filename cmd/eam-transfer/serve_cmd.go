package main

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/internal/server"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/infrastructure/progress"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/presentation/controllers"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/pkg/application"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/pkg/configuration"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/pkg/logging"
)

func newServeCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the transfer HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := backendOverride(g)
			if err != nil {
				return err
			}
			conf := configuration.Use()
			defer conf.Unload()
			if backend != "" {
				conf.StoreBackend = backend
			}
			logger := conf.Logger()
			log := logger.WithField("backend", conf.StoreBackend)

			ctx := cmd.Context()
			if conf.OpenTelemetry.Enabled {
				cleanup, err := logging.SetupTracing(ctx, conf.OpenTelemetry.ServiceName, conf.OpenTelemetry.TempoURL)
				if err != nil {
					return fmt.Errorf("setup tracing: %w", err)
				}
				defer cleanup()
				logger.Info("OpenTelemetry tracing enabled, exporting to " + conf.OpenTelemetry.TempoURL)
			}
			stores, closeStores, err := openStores(ctx, conf, log)
			if err != nil {
				return withCode(exitStore, err)
			}
			defer closeStores()

			hub := progress.NewHub(logger.WithField("component", "progress"), conf.CORS.AllowedOrigins...)
			sink := progress.Tee(progress.LogSink(logger.WithField("component", "import")), hub.Sink())
			if conf.Progress.Enabled {
				client := redis.NewClient(&redis.Options{Addr: conf.RedisURL})
				defer func() { _ = client.Close() }()
				pub := progress.NewRedisPublisher(client, progress.PublisherOptions{
					Channel: conf.Progress.Channel,
					Logger:  logger.WithField("component", "progress"),
				})
				defer pub.Close()
				sink = progress.Tee(sink, pub.Sink())
			}

			app := application.New(&application.ApplicationOptions{Logger: logger})
			rt := &runtime{conf: conf, logger: logger, stores: stores}
			if err := app.RegisterModules(transfer.NewModule(transfer.ModuleOptions{
				Stores:   stores,
				Importer: rt.importerOptions(),
				Controller: controllers.TransferControllerOptions{
					MaxUploadSize:  conf.MaxUploadSize,
					Progress:       sink,
					ProgressStream: hub,
				},
			})); err != nil {
				return err
			}

			srv, err := server.Default(&server.DefaultOptions{
				Logger:        logger,
				Configuration: conf,
				Application:   app,
			})
			if err != nil {
				return fmt.Errorf("create server: %w", err)
			}
			logger.Infof("Listening on: %s", conf.SocketAddress)
			return srv.Start(ctx, conf.SocketAddress)
		},
	}
}
