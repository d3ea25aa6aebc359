// Package server assembles and runs the note service: database, object
// storage, the AI collaborator, the background processing pipeline and the
// HTTP endpoint, with graceful shutdown on OS signals.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sethvargo/go-retry"

	"github.com/cjbpq/ai-note-app/internal/logging"
	"github.com/cjbpq/ai-note-app/internal/server/config"
	"github.com/cjbpq/ai-note-app/internal/server/httpapi"
	"github.com/cjbpq/ai-note-app/internal/server/notesvc"
	"github.com/cjbpq/ai-note-app/internal/server/pipeline"
	"github.com/cjbpq/ai-note-app/internal/server/prompts"
	"github.com/cjbpq/ai-note-app/internal/server/repositories/repomanager"
	"github.com/cjbpq/ai-note-app/internal/server/storage"
	"github.com/cjbpq/ai-note-app/internal/server/vision"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	queue   *pipeline.Queue
	workers []*pipeline.Worker
	httpSrv *http.Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := openDB(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	repos := repomanager.NewPostgresRepositoryManager()
	if err := repos.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	store, err := newStorageBackend(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	visionClient := vision.NewOpenAIClient(vision.OpenAIConfig{
		Endpoint: cfg.VisionEndpoint,
		APIKey:   cfg.VisionAPIKey,
		Model:    cfg.VisionModel,
	})

	registry, err := prompts.NewFileRegistry(cfg.PromptProfilePath)
	if err != nil {
		return nil, fmt.Errorf("prompt registry error: %w", err)
	}

	queue := pipeline.NewQueue(cfg.QueueCapacity)
	limits := pipeline.Limits{
		MaxFiles:      cfg.MaxUploadFiles,
		MaxFileSize:   cfg.MaxUploadFileSize,
		MaxActiveJobs: cfg.MaxActiveJobs,
	}
	gateway := pipeline.NewGateway(db, repos, store, queue, limits, logger)

	workers := make([]*pipeline.Worker, 0, cfg.WorkerCount)
	for i := 0; i < cfg.WorkerCount; i++ {
		workers = append(workers, pipeline.NewWorker(
			repos.Jobs(db), repos.Notes(db), store, visionClient, registry, logger))
	}

	noteService := notesvc.NewService(db, repos, logger)

	api := httpapi.NewServer(gateway, noteService, registry, httpapi.ServerConfig{
		JWTSecret:    []byte(cfg.SecretKey),
		PollInterval: cfg.StreamPollInterval,
	}, logger)

	httpSrv := &http.Server{
		Addr:    cfg.EndpointAddr,
		Handler: api.Handler(),
	}

	return &App{
		config:  cfg,
		logger:  logger,
		db:      db,
		queue:   queue,
		workers: workers,
		httpSrv: httpSrv,
	}, nil
}

// openDB opens the pool and pings it with backoff, so the service survives
// a database that is still coming up.
func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	backoff := retry.WithMaxRetries(5, retry.NewFibonacci(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func newStorageBackend(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	switch cfg.StorageKind {
	case "local":
		return storage.NewLocalBackend(cfg.LocalStorageDir, cfg.LocalPublicPrefix)
	default:
		return storage.NewS3Backend(ctx, storage.S3Config{
			RootUser:     cfg.S3RootUser,
			RootPassword: cfg.S3RootPassword,
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
		})
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "addr", app.config.EndpointAddr)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	for _, w := range app.workers {
		wg.Add(1)
		go func(w *pipeline.Worker) {
			defer wg.Done()
			w.Run(ctx, app.queue)
		}(w)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.logger.Error(ctx, "http server error", "error", err)
			cancelFunc()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := app.httpSrv.Shutdown(shutdownCtx); err != nil {
		app.logger.Error(shutdownCtx, "http shutdown error", "error", err)
	}

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(context.Background(), "db close error", "error", err)
	}

	app.logger.Info(context.Background(), "App stopped")
}
