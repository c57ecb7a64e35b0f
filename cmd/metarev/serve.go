package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alfredjeanlab/metarev/internal/config"
	"github.com/alfredjeanlab/metarev/internal/content"
	"github.com/alfredjeanlab/metarev/internal/display"
	"github.com/alfredjeanlab/metarev/internal/events"
	"github.com/alfredjeanlab/metarev/internal/fields"
	"github.com/alfredjeanlab/metarev/internal/hooks"
	"github.com/alfredjeanlab/metarev/internal/presence"
	"github.com/alfredjeanlab/metarev/internal/revision"
	"github.com/alfredjeanlab/metarev/internal/server"
	"github.com/alfredjeanlab/metarev/internal/store"
	"github.com/alfredjeanlab/metarev/internal/store/memory"
	"github.com/alfredjeanlab/metarev/internal/store/postgres"
	metasync "github.com/alfredjeanlab/metarev/internal/sync"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the metarev server",
	GroupID: "system",
	// Override PersistentPreRunE so no client is created.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
		slog.SetDefault(logger)

		app, err := newApp(cfg, logger)
		if err != nil {
			return err
		}
		defer app.close()

		grpcServer, grpcHealth := app.server.NewGRPCServer()
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listening on %s: %w", cfg.GRPCAddr, err)
		}
		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "err", err)
			}
		}()

		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           app.server.NewHTTPHandler(cfg.AuthToken),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		app.start()
		logger.Info("metarev server started", "http_addr", cfg.HTTPAddr, "grpc_addr", cfg.GRPCAddr)

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		grpcHealth.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")
		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")
		return nil
	},
}

// app holds the wired server components.
type app struct {
	logger    *slog.Logger
	store     store.Store
	publisher events.Publisher
	server    *server.Server
	presence  *presence.Tracker
	scheduler *metasync.Scheduler
}

// newApp builds every component from cfg. Field registration happens here,
// before the server accepts requests.
func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{logger: logger}

	if cfg.DatabaseURL != "" {
		pg, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.store = pg
	} else {
		a.store = memory.New()
		logger.Warn("using in-memory store (METAREV_DATABASE_URL not set)")
	}

	catalog := content.NewCatalog(content.DefaultTypes()...)
	var file *fields.File
	if cfg.FieldsFile != "" {
		f, err := fields.LoadFile(cfg.FieldsFile)
		if err != nil {
			a.store.Close()
			return nil, err
		}
		for _, ct := range f.Types {
			if !catalog.Add(ct) {
				logger.Warn("ignoring content type", "type", ct.Name)
			}
		}
		file = f
	}

	if cfg.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			a.store.Close()
			return nil, err
		}
		a.publisher = pub
		logger.Info("events enabled", "nats_url", cfg.NATSURL)
	} else {
		a.publisher = &events.NoopPublisher{}
		logger.Info("events disabled (METAREV_NATS_URL not set)")
	}
	recorder := events.NewRecorder(a.store, a.publisher, logger)

	secret := []byte(cfg.FormSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			a.close()
			return nil, fmt.Errorf("generating form secret: %w", err)
		}
		logger.Warn("form tokens will not survive a restart (METAREV_FORM_SECRET not set)")
	}

	bus := hooks.NewBus()
	svc := content.NewService(a.store, catalog, bus,
		content.WithLogger(logger),
		content.WithRecorder(recorder),
		content.WithFormSecret(secret))

	reg := fields.New(catalog,
		fields.WithLogger(logger),
		fields.WithObserver(func(d *fields.Descriptor) {
			recorder.Emit(context.Background(), events.TopicFieldRegistered, 0, "", events.FieldRegistered{Field: d.Tracked()})
		}))
	if file != nil {
		if err := file.Apply(reg); err != nil {
			logger.Warn("some tracked fields were not registered", "err", err)
		}
		logger.Info("fields file loaded", "path", cfg.FieldsFile, "types", len(file.Types), "fields", len(file.Fields))
	}

	revision.New(svc, a.store, reg, revision.WithLogger(logger), revision.WithRecorder(recorder)).Attach(bus)
	display.New(svc, a.store, reg, logger).Attach(bus)

	a.presence = presence.New(cfg.LockTTL)
	a.server = server.New(svc, reg, recorder, server.WithLogger(logger), server.WithPresence(a.presence))

	if cfg.SyncEnabled() {
		var dests []metasync.Destination
		if cfg.SyncS3Bucket != "" {
			s3Dest, err := metasync.NewS3Destination(context.Background(), metasync.S3Options{
				Bucket:   cfg.SyncS3Bucket,
				Key:      cfg.SyncS3Key,
				Region:   cfg.SyncS3Region,
				Endpoint: cfg.SyncS3Endpoint,
			})
			if err != nil {
				logger.Error("failed to create S3 sync destination", "err", err)
			} else {
				dests = append(dests, s3Dest)
				logger.Info("sync S3 destination enabled", "bucket", cfg.SyncS3Bucket, "key", cfg.SyncS3Key)
			}
		}
		if cfg.SyncGitRepo != "" {
			dests = append(dests, metasync.NewGitDestination(cfg.SyncGitRepo, cfg.SyncGitFile, cfg.SyncGitBranch))
			logger.Info("sync git destination enabled", "repo", cfg.SyncGitRepo, "file", cfg.SyncGitFile)
		}
		if len(dests) > 0 {
			a.scheduler = metasync.NewScheduler(svc, dests, cfg.SyncInterval, logger)
			recorder.AddBroadcaster(a.scheduler)
		}
	}
	return a, nil
}

// start launches the background workers.
func (a *app) start() {
	a.presence.StartReaper(&presence.ReaperConfig{
		OnRelease: func(postID int64, actor string) {
			a.logger.Info("edit lock expired", "post_id", postID, "actor", actor)
		},
	})
	if a.scheduler != nil {
		a.scheduler.Start()
		a.logger.Info("sync scheduler started")
	}
}

// close stops the workers and releases the store and publisher.
func (a *app) close() {
	if a.scheduler != nil {
		a.scheduler.Stop()
		a.logger.Info("sync scheduler stopped")
	}
	if a.presence != nil {
		a.presence.Stop()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Error("error closing publisher", "err", err)
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing store", "err", err)
	}
	a.logger.Info("shutdown complete")
}
