package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"netwatch/internal/api"
	"netwatch/internal/config"
	"netwatch/internal/detector"
	"netwatch/internal/ingest"
	"netwatch/internal/stats"
	"netwatch/internal/store"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Open the event store
	eventStore, err := store.NewStore(cfg.Store)
	if err != nil {
		log.Fatalf("Failed to open event store: %v", err)
	}
	defer eventStore.Close()
	log.Printf("Event store ready (driver: %s)", cfg.Store.Driver)

	// Wire services onto the shared store handle
	ingestSvc := ingest.NewService(eventStore)
	det := detector.New(eventStore, cfg.Detector)
	statsSvc := stats.NewService(eventStore, cfg.Stats)

	// Optionally consume agent events from NATS alongside the HTTP endpoint
	if cfg.NATS.Enabled {
		sub, err := ingest.NewSubscriber(cfg.NATS, ingestSvc, cfg.API.Timeout())
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer sub.Close()
		if err := sub.Start(); err != nil {
			log.Fatalf("Failed to subscribe to %s: %v", cfg.NATS.Subject, err)
		}
	}

	// Start HTTP server
	apiServer := api.NewServer(ingestSvc, det, statsSvc, cfg.API.Timeout())
	server := &http.Server{
		Addr:    cfg.API.ListenAddr,
		Handler: apiServer.Router(),
	}

	go func() {
		log.Printf("API server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v", server.Addr, err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("API server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("API server exited.")
}
