package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cshum/vipsgen/vips"
	"go.uber.org/zap"

	"printview/internal/backend"
	"printview/internal/cachedir"
	"printview/internal/config"
	"printview/internal/extract"
	"printview/internal/files"
	httphandlers "printview/internal/http"
	"printview/internal/layercache"
	"printview/internal/logger"
	"printview/internal/thumbcache"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	vipsConfig := &vips.Config{
		ConcurrencyLevel: cfg.VipsConcurrency,
		MaxCacheMem:      cfg.VipsMaxCacheMB * 1024 * 1024, // Convert MB to bytes
		MaxCacheFiles:    0,                                // Disable disk cache
		MaxCacheSize:     0,                                // Disable disk cache
		ReportLeaks:      false,
		CacheTrace:       false,
		VectorEnabled:    true,
	}

	// Set up logging
	vips.SetLogging(func(domain string, level vips.LogLevel, message string) {
		// Map vips log levels to zap levels
		if level >= vips.LogLevelError {
			log.Error("vips", zap.String("domain", domain), zap.Int("level", int(level)), zap.String("message", message))
		} else if level >= vips.LogLevelWarning {
			log.Warn("vips", zap.String("domain", domain), zap.Int("level", int(level)), zap.String("message", message))
		}
		// Ignore info/debug messages to keep logs clean
	}, vips.LogLevelError)

	vips.Startup(vipsConfig)
	defer vips.Shutdown()

	log.Info("VIPS initialized",
		zap.Int("max_cache_mb", cfg.VipsMaxCacheMB),
		zap.Int("concurrency", cfg.VipsConcurrency),
	)

	log.Info("Starting Printview server",
		zap.Int("port", cfg.Port),
		zap.String("data_dir", cfg.DataDir),
	)

	printerConfig := config.LoadPrinterConfig(cfg.PrinterConfig)

	fileStore := files.New(cfg.DataDir, log)
	if err := fileStore.Scan(); err != nil {
		log.Warn("Initial scan failed", zap.Error(err))
	}

	client := backend.New(cfg.BackendURL)
	extractor := extract.NewRouter(cfg.DataDir, client, log)

	layerCache := layercache.New(cfg.LayerCacheSize, log)

	diskDir := cachedir.Resolve(cfg.CacheDir, log)
	thumbCache := thumbcache.New(thumbcache.Options{
		Dir:          diskDir,
		MemoryBudget: int64(cfg.ThumbMemoryMB) * 1024 * 1024,
		DiskBudget:   int64(cfg.ThumbDiskMB) * 1024 * 1024,
		DiskTTL:      printerConfig.ThumbnailDiskTTL(),
	}, extractor, log)

	log.Info("Thumbnail cache initialized",
		zap.String("disk_dir", diskDir),
		zap.Int("memory_mb", cfg.ThumbMemoryMB),
		zap.Int("disk_mb", cfg.ThumbDiskMB),
		zap.Duration("disk_ttl", printerConfig.ThumbnailDiskTTL()),
	)

	handlers := httphandlers.New(cfg, log, fileStore, layerCache, thumbCache, client)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/files", handlers.HandleFiles)
	mux.HandleFunc("/api/plates/", handlers.HandlePlateRoutes)
	mux.HandleFunc("/api/thumbnail", handlers.HandleThumbnail)
	mux.HandleFunc("/api/cache/clear", handlers.HandleCacheClear)
	mux.HandleFunc("/api/cache/info", handlers.HandleCacheInfo)
	mux.HandleFunc("/healthz", handlers.HandleHealthz)

	handler := handlers.CORSMiddleware(handlers.RequestLoggingMiddleware(mux))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handler,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.Int("port", cfg.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	layerCache.Close()
	thumbCache.Close()

	log.Info("Server stopped")
}
