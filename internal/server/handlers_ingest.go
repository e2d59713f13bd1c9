package server

import (
	"errors"
	"net/http"

	"github.com/jonathan/companies-search/internal/ingest"
)

// handleStartIngestion accepts a new ingestion run. The run proceeds in the
// background; failures surface only through the status endpoint.
func (s *Server) handleStartIngestion(w http.ResponseWriter, _ *http.Request) {
	if err := s.ingestor.Start(); err != nil {
		if errors.Is(err, ingest.ErrAlreadyRunning) {
			s.errorResponse(w, http.StatusConflict, "already running")
			return
		}
		s.errorResponse(w, http.StatusInternalServerError, "Failed to start ingestion: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleIngestionStatus returns the latest snapshot of the current job.
func (s *Server) handleIngestionStatus(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.ingestor.Status())
}
