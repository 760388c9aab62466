package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rowanhart/routinely/internal/database"
	"github.com/rowanhart/routinely/internal/logging"
	"github.com/rowanhart/routinely/internal/push"
	"github.com/rowanhart/routinely/internal/server"
)

func main() {
	logger := logging.Setup(os.Getenv("ROUTINELY_LOG_LEVEL"))

	if len(os.Args) > 1 && os.Args[1] == "generate-vapid-keys" {
		pub, priv, err := push.GenerateVAPIDKeys()
		if err != nil {
			logger.Error("generate VAPID keys", "error", err)
			os.Exit(1)
		}
		fmt.Printf("ROUTINELY_VAPID_PUBLIC_KEY=%s\nROUTINELY_VAPID_PRIVATE_KEY=%s\n", pub, priv)
		return
	}

	port := os.Getenv("ROUTINELY_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("ROUTINELY_DB_PATH")
	if dbPath == "" {
		dbPath = "routinely.db"
	}

	db, err := database.Open(dbPath)
	if err != nil {
		logger.Error("open database", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	cfg := server.Config{
		Push: push.Config{
			VAPIDPublicKey:  os.Getenv("ROUTINELY_VAPID_PUBLIC_KEY"),
			VAPIDPrivateKey: os.Getenv("ROUTINELY_VAPID_PRIVATE_KEY"),
		},
		StrictMetrics: os.Getenv("ROUTINELY_STRICT_METRICS") == "true",
	}
	if !cfg.Push.Enabled() {
		logger.Info("web push disabled, set ROUTINELY_VAPID_PUBLIC_KEY and ROUTINELY_VAPID_PRIVATE_KEY to enable")
	}

	srv := server.New(db, cfg, logger)

	// Periodic cleanup of expired sessions and stale rate-limit buckets.
	cleanupDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := srv.SessionStore().DeleteExpired(); err != nil {
					logger.Error("session cleanup", "error", err)
				} else if n > 0 {
					logger.Info("expired sessions removed", "count", n)
				}
				srv.RateLimiter().Cleanup()
			case <-cleanupDone:
				return
			}
		}
	}()

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		fmt.Printf("Routinely running at http://localhost:%s\n", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down...")
	close(cleanupDone)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
