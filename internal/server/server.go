// Package server provides the HTTP REST API for the companies search service.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonathan/companies-search/internal/db"
	"github.com/jonathan/companies-search/internal/ingest"
	"github.com/jonathan/companies-search/internal/metrics"
)

// CompanyStore is the read side of the storage layer the API queries.
// Implemented by db.DB.
type CompanyStore interface {
	SearchCompanies(ctx context.Context, query string, limit, offset int) ([]db.Company, int, error)
	GetCompanyByNumber(ctx context.Context, companyNumber string) (*db.Company, error)
}

// Ingestor starts ingestion runs and reports their progress.
// Implemented by ingest.Controller.
type Ingestor interface {
	Start() error
	Status() ingest.Snapshot
}

// Config holds server configuration
type Config struct {
	Port int
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	store      CompanyStore
	ingestor   Ingestor
	metrics    *metrics.Metrics
}

// New creates a new server instance. m may be nil to disable metrics;
// metricsHandler serves the Prometheus exposition endpoint and may be nil.
func New(cfg Config, store CompanyStore, ingestor Ingestor, m *metrics.Metrics, metricsHandler http.Handler) *Server {
	s := &Server{
		store:    store,
		ingestor: ingestor,
		metrics:  m,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /ingest/start", s.handleStartIngestion)
	mux.HandleFunc("GET /ingest/status", s.handleIngestionStatus)
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("GET /company/{companyNumber}", s.handleGetCompany)
	mux.HandleFunc("GET /health", s.handleHealth)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.withLogging(s.withCORS(mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins listening for requests and blocks until shutdown.
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Println("Server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("[%s] %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}
