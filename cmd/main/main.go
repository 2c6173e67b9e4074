package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trading-data-viewer/src/cache"
	"trading-data-viewer/src/config"
	"trading-data-viewer/src/interfaces"
	"trading-data-viewer/src/logger"
	"trading-data-viewer/src/scheduler"
	"trading-data-viewer/src/server"
	"trading-data-viewer/src/service"
	"trading-data-viewer/src/storage"
)

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	flag.Parse()

	// Load config from YAML file
	config, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(config.LogLevel, config.Name)

	// 2. Setup Storage
	var store interfaces.IBarStore

	switch config.Storage.DBType {
	case "postgres":
		store, err = storage.NewPostgresStore(config.MConfig, appLogger)
	default:
		// Default to SQLite
		store, err = storage.NewSQLiteStore(config.MConfig, appLogger)
	}

	if err != nil {
		appLogger.Critical("Failed to init store: %v", err)
	}
	if err := store.Initialize(); err != nil {
		appLogger.Critical("Failed to open store: %v", err)
	}

	// 3. Connection pool over the shared handle
	pool := storage.NewConnectionPool(store.Handle(), config.Pool, appLogger)

	// 4. Catalog cache
	catalogCache := cache.New(config.Cache.Capacity,
		time.Duration(config.Cache.TTLSeconds)*time.Second, appLogger)

	// 5. Data service
	dataService, err := service.NewDataService(config, appLogger, store, pool, catalogCache)
	if err != nil {
		appLogger.Critical("Failed to build data service: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 6. Warm the instrument catalog
	if _, err := dataService.ListInstruments(ctx); err != nil {
		appLogger.Warning("Initial catalog load failed: %v", err)
	}

	// 7. Maintenance scheduler
	sched := scheduler.NewScheduler(ctx, config, appLogger, dataService, pool)
	if err := sched.RegisterAll(); err != nil {
		appLogger.Critical("Failed to register maintenance tasks: %v", err)
	}
	sched.Start()

	// 8. HTTP API
	srv := server.NewAPIServer(config, appLogger, dataService)
	go func() {
		if err := srv.Start(); err != nil {
			appLogger.Error("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		appLogger.Warning("Server shutdown: %v", err)
	}
	sched.Stop()
	cancel()
	pool.Close()
	if err := store.Close(); err != nil {
		appLogger.Warning("Store close: %v", err)
	}

	appLogger.Info("Shutdown complete.")
}
