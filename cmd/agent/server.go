package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"moneyhistory/internal/domain/sync"
)

// StartServer creates and starts the control API server.
func StartServer(addr string, handler http.Handler) *http.Server {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Control API listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Control API server error: %v", err)
		}
	}()

	return srv
}

// GracefulShutdown stops the sync orchestrator and the control API server.
func GracefulShutdown(srv *http.Server, orch *sync.Orchestrator, timeout time.Duration) {
	log.Println("Agent shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Stop accepting requests first so no new syncs are triggered.
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Error shutting down control API server: %v", err)
	}

	if orch != nil {
		if err := orch.Shutdown(timeout); err != nil {
			log.Printf("Error shutting down sync orchestrator: %v", err)
		}
	}

	log.Println("Agent stopped")
}
