package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cleansight/internal/config"
	"cleansight/internal/container"
	"cleansight/internal/handler"
	"cleansight/pkg/logger"
)

// Resources holds everything that needs an orderly shutdown
type Resources struct {
	container *container.Container
	server    *http.Server
	log       *logger.Logger
	mu        sync.Mutex
	closed    bool
}

// Cleanup stops the HTTP server first, then background workers and connections
func (r *Resources) Cleanup(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	r.log.Info("Starting graceful shutdown...")

	if r.server != nil {
		r.log.Info("Shutting down HTTP server...")
		if err := r.server.Shutdown(ctx); err != nil {
			r.log.WithError(err).Error("Failed to shutdown HTTP server")
			errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
		} else {
			r.log.Info("HTTP server shutdown complete")
		}
	}

	if r.container != nil {
		for name, check := range r.container.HealthChecks() {
			healthCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := check(healthCtx); err != nil {
				r.log.WithError(err).WithField("dependency", name).Warn("Health check failed before closing")
			}
			cancel()
		}
		r.container.Close()
		r.log.Info("Sessions, event listener and store connections closed")
	}

	if len(errs) > 0 {
		r.log.WithField("error_count", len(errs)).Error("Cleanup completed with errors")
		return fmt.Errorf("cleanup completed with %d errors: %v", len(errs), errs)
	}

	r.log.Info("Graceful shutdown completed successfully")
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.WithFields(map[string]interface{}{
		"port":        cfg.Port,
		"log_level":   cfg.LogLevel,
		"environment": cfg.Environment,
		"google":      cfg.GoogleEnabled(),
	}).Info("Starting cleansight server")

	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	c, err := container.New(initCtx, cfg, log)
	cancelInit()
	if err != nil {
		log.WithError(err).Fatal("Failed to create container")
	}

	if err := c.Start(); err != nil {
		c.Close()
		log.WithError(err).Fatal("Failed to start background services")
	}

	server := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        handler.NewRouter(c),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	resources := &Resources{
		container: c,
		server:    server,
		log:       log,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// runs on every exit path; a second call is a no-op
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := resources.Cleanup(cleanupCtx); err != nil {
			log.WithError(err).Error("Cleanup completed with errors")
		}
	}()

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("Server starting on port " + cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Server error occurred")
			serverErrChan <- err
		}
	}()

	select {
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("Received shutdown signal")
	case err := <-serverErrChan:
		log.WithError(err).Error("Server failed, initiating shutdown")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	if err := resources.Cleanup(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown completed with errors")
		cancel()
		os.Exit(1)
	}

	log.Info("Application shutdown complete")
}
