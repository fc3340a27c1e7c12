package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"loomtrack-backend/config"
	"loomtrack-backend/internal/api"
	"loomtrack-backend/internal/cache"
	"loomtrack-backend/internal/conn"
	"loomtrack-backend/internal/db"
	"loomtrack-backend/internal/model"
	"loomtrack-backend/internal/notification"
	"loomtrack-backend/internal/queue"
	"loomtrack-backend/internal/remote"
	"loomtrack-backend/internal/state"
	"loomtrack-backend/internal/sync"

	"github.com/SherClockHolmes/webpush-go"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "loomtrack-backend ", log.LstdFlags)

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	// Check for VAPID keys
	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		logger.Fatalf("VAPID keys must be configured. Please generate them and add them to your config file.")
	}

	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	// Initialize the local cache database
	gormDB, err := db.Init(&cfg.Cache)
	if err != nil {
		logger.Fatalf("failed to initialize cache database: %v", err)
	}
	logger.Println("cache database initialized successfully")

	localCache := cache.New(gormDB)

	// First-run settings come from the config file; once a settings copy
	// exists in the cache, that copy wins.
	defaults := model.DefaultSettings()
	defaults.RemoteEndpoint = cfg.Remote.Endpoint
	defaults.RemoteKey = cfg.Remote.Key

	container := state.New(localCache, defaults)
	logger.Printf("working set restored: %d records", len(container.Records()))

	pending := queue.New(func(ops []model.PendingOperation) {
		cache.Save(localCache, cache.KeyPending, ops)
	})
	pending.Restore(cache.Load(localCache, cache.KeyPending, []model.PendingOperation(nil)))
	if n := pending.Len(); n > 0 {
		logger.Printf("restored %d pending operations from a previous run", n)
	}

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start the notification worker pool
	workerPool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, &webpushOptions)
	workerPool.Start(ctx)

	// Wire the sync engine and run it in the background
	manager := conn.NewManager(func(s conn.State) {
		logger.Printf("connection state: %s", s)
	})
	engine := sync.NewEngine(container, pending, manager, remote.NewDialer(cfg.Sync.RemoteTimeout), sync.Config{
		DrainInterval: cfg.Sync.DrainInterval,
		RemoteTimeout: cfg.Sync.RemoteTimeout,
		DrainAttempts: cfg.Sync.DrainAttempts,
	})
	go engine.Run(ctx)

	mutations := sync.NewRouter(container, pending, engine, workerPool)

	// Initialize router
	router := api.NewRouter(mutations, gormDB, &webpushOptions)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	// Create a deadline to wait for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
