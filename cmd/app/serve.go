package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BuzzLyutic/task-lifecycle-engine/internal/config"
	"github.com/BuzzLyutic/task-lifecycle-engine/internal/events"
	"github.com/BuzzLyutic/task-lifecycle-engine/internal/handler"
	"github.com/BuzzLyutic/task-lifecycle-engine/internal/repo"
	"github.com/BuzzLyutic/task-lifecycle-engine/internal/service"
	"github.com/BuzzLyutic/task-lifecycle-engine/internal/worker"
)

var serveMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the event dispatcher",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "apply database migrations before serving")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if serveMigrate && cfg.StoreBackend == config.BackendPostgres {
		if err := repo.Migrate(cfg.DatabaseURL); err != nil {
			return err
		}
		logger.Info("database migrated")
	}

	store, closeStore, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	var publisher events.Publisher
	if cfg.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			return err
		}
		publisher = pub
		logger.Info("events enabled", zap.String("nats_url", cfg.NATSURL))
	} else {
		publisher = &events.NoopPublisher{}
		logger.Info("events disabled (NATS_URL not set)")
	}
	defer publisher.Close()

	dispatcher := worker.NewPool(publisher, logger, worker.Options{
		Workers:        cfg.WorkerCount,
		QueueSize:      cfg.EventQueueSize,
		PublishTimeout: cfg.PublishTimeout,
		MaxRetries:     cfg.PublishRetries,
	})

	svc, err := service.NewLifecycleService(ctx, store, dispatcher, logger, service.WithStoreTimeout(cfg.StoreTimeout))
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.NewRouter(handler.NewTaskHandler(svc, logger)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// The dispatcher outlives the signal context so queued events drain on shutdown.
	dispatcher.Start(context.Background())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		dispatcher.Stop()
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return err
	}
	logger.Info("Server stopped successfully!")
	return nil
}
