package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/garnizeh/fieldops/api"
	dbfs "github.com/garnizeh/fieldops/db"
	"github.com/garnizeh/fieldops/internal/assistant"
	"github.com/garnizeh/fieldops/internal/audit"
	"github.com/garnizeh/fieldops/internal/config"
	"github.com/garnizeh/fieldops/internal/db"
	"github.com/garnizeh/fieldops/internal/geo"
	"github.com/garnizeh/fieldops/internal/lifecycle"
	"github.com/garnizeh/fieldops/internal/media"
	"github.com/garnizeh/fieldops/internal/realtime"
	"github.com/garnizeh/fieldops/internal/repository/sqlite"
	"github.com/garnizeh/fieldops/internal/tasks"
	"github.com/garnizeh/fieldops/pkg/ollama"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	var configPath = flag.String("config", "", "Path to config YAML file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	api.SetLogger(logger)
	geo.SetLogger(logger)
	ollama.SetLogger(logger)

	log.Printf("Starting fieldops server version %s (built at %s)", version, buildTime)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open database connection
	conn, err := db.New(ctx, cfg.DatabasePath, logger)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	if err := db.Migrate(ctx, conn, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		log.Fatalf("Failed to migrate DB: %v", err)
	}
	repo := sqlite.New(conn, logger)

	hub := realtime.NewHub(logger)
	jobs := realtime.NewPublishingJobRepo(repo, hub, logger)

	controller := lifecycle.NewController(jobs, repo, audit.NewRepoSink(repo, logger), lifecycle.Options{
		GPSVerification:        cfg.Lifecycle.GPSVerification,
		RadiusMeters:           cfg.Lifecycle.RadiusMeters,
		RequireAcknowledgement: cfg.Lifecycle.RequireAcknowledgement,
		LocationTimeout:        cfg.Lifecycle.LocationTimeout,
		MaxFixAge:              cfg.Lifecycle.MaxFixAge,
		MinPhotos:              cfg.Lifecycle.MinPhotos,
	}, logger)

	stager, err := media.NewStager(cfg.Media.StagingDir)
	if err != nil {
		log.Fatalf("Failed to prepare photo staging: %v", err)
	}
	store, closeStore, err := openStore(ctx, cfg.Media)
	if err != nil {
		log.Fatalf("Failed to open photo store: %v", err)
	}
	defer closeStore()

	uploader := media.NewUploader(store, stager, repo, repo, logger)
	controller.OnComplete(uploader.OnCompleted)

	pool := tasks.NewWorkerPool(repo, map[string]tasks.Handler{
		media.UploadTaskType: uploader.Handle,
	}, logger, cfg.Tasks.Workers)
	pool.Start(ctx)

	llm, err := ollama.NewDefaultClient(cfg.Ollama)
	if err != nil {
		log.Fatalf("Failed to create ollama client: %v", err)
	}
	defer llm.Close()

	asst, err := assistant.New(ctx, llm, cfg.Assistant, repo, repo, repo, repo, logger)
	if err != nil {
		logger.Warn("assistant disabled", "err", err)
		asst = nil
	}

	handler := api.SetupRoutes(api.Deps{
		Config:     cfg,
		Version:    version,
		BuildTime:  buildTime,
		Staff:      repo,
		Jobs:       jobs,
		Schemas:    repo,
		Controller: controller,
		Stager:     stager,
		Assistant:  asst,
		Hub:        hub,
		Health: map[string]api.HealthCheck{
			"db": conn.GetConn().PingContext,
		},
	})

	// Create HTTP server. WriteTimeout stays unset so websocket streams are
	// not cut; handlers are bounded by ReadTimeout and their own contexts.
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       cfg.APITimeout,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	hub.Close()
	pool.Stop()

	// Close database connection
	if err := conn.Close(); err != nil {
		log.Printf("Error closing DB: %v", err)
	}

	log.Println("Server exited")
}

// openStore picks the photo backend. The returned close func is never nil.
func openStore(ctx context.Context, cfg config.MediaConfig) (media.Store, func(), error) {
	switch cfg.Backend {
	case config.MediaGCS:
		s, err := media.NewGCSStore(ctx, cfg.Bucket, cfg.CredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				log.Printf("Error closing GCS client: %v", err)
			}
		}, nil
	default:
		s, err := media.NewLocalStore(cfg.LocalDir)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	}
}
