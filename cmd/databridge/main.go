package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/databridge/databridge/internal/blob"
	"github.com/databridge/databridge/internal/config"
	"github.com/databridge/databridge/internal/connector"
	ftpconn "github.com/databridge/databridge/internal/connector/ftp"
	httpconn "github.com/databridge/databridge/internal/connector/http"
	tcpconn "github.com/databridge/databridge/internal/connector/tcp"
	"github.com/databridge/databridge/internal/dispatch"
	"github.com/databridge/databridge/internal/ingest"
	"github.com/databridge/databridge/internal/job"
	"github.com/databridge/databridge/internal/platform/sqlite"
	jobrepo "github.com/databridge/databridge/internal/repository/job"
	"github.com/databridge/databridge/internal/server"
	"github.com/databridge/databridge/internal/transform"
)

func main() {
	cfg := config.Load()

	// Root context: cancelled on SIGINT/SIGTERM so in-flight ingestions and
	// transform workers stop promptly during graceful shutdown.
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Open database
	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	jobRepo := jobrepo.NewRepository(db.DB)

	store, err := newBlobStore(rootCtx, cfg)
	if err != nil {
		slog.Error("failed to set up blob storage", "error", err)
		os.Exit(1)
	}

	// Connector registry
	registry := connector.NewRegistry()
	registry.Register(ftpconn.New())
	registry.Register(httpconn.New())
	registry.Register(tcpconn.New())

	// Transform workers consume dispatched jobs in the background.
	engine := transform.NewEngine(jobRepo, store, cfg.RawBucket, cfg.LakeBucket)
	pool := dispatch.NewPool(engine, cfg.Workers)
	poolDone := make(chan struct{})
	go func() {
		pool.Run(rootCtx)
		close(poolDone)
	}()

	// Services
	jobSvc := job.NewService(jobRepo)
	ingestSvc := ingest.NewService(jobRepo, registry, store, pool, cfg.RawBucket,
		time.Duration(cfg.JobTTLDays)*24*time.Hour)

	// Expired job records are reaped periodically.
	go reapLoop(rootCtx, jobSvc)

	// HTTP server — rootCtx is used as BaseContext so every request context
	// inherits from it and is cancelled on shutdown.
	srv := server.New(rootCtx, cfg.Port, ingestSvc, jobSvc)

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("server started", "port", cfg.Port)
	<-done

	// Cancel root context first so in-flight requests and transform workers
	// begin winding down immediately.
	rootCancel()

	// Wait for the transform pool to drain before shutting down HTTP.
	<-poolDone

	// Then drain connections with a deadline.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	slog.Info("server stopped")
}

// newBlobStore picks object storage: MinIO when an endpoint is configured,
// otherwise a local filesystem store.
func newBlobStore(ctx context.Context, cfg config.Config) (blob.Store, error) {
	if cfg.MinioEndpoint == "" {
		slog.Info("using local blob storage", "dir", cfg.BlobDir)
		return blob.NewLocalStore(cfg.BlobDir), nil
	}

	store, err := blob.NewMinioStore(blob.MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		UseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, err
	}
	for _, bucket := range []string{cfg.RawBucket, cfg.LakeBucket} {
		if err := store.EnsureBucket(ctx, bucket); err != nil {
			return nil, err
		}
	}
	slog.Info("using minio blob storage", "endpoint", cfg.MinioEndpoint)
	return store, nil
}

func reapLoop(ctx context.Context, jobSvc *job.Service) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := jobSvc.Reap(ctx); err != nil {
				slog.Error("failed to reap expired jobs", "error", err)
			}
		}
	}
}
