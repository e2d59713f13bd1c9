package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/companies-search/internal/db"
)

// searchRequest represents the validated query parameters of a search call.
type searchRequest struct {
	Query   string `validate:"required"`
	Page    int    `validate:"gte=1"`
	PerPage int    `validate:"gte=1,lte=100"`
}

var validate = validator.New()

// parseQueryInt parses an integer query parameter, falling back to
// defaultValue when the parameter is absent. A present but non-numeric value
// reports ok=false so the handler can reject it.
func parseQueryInt(r *http.Request, key string, defaultValue int) (int, bool) {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return defaultValue, true
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return 0, false
	}
	return val, true
}

// handleSearch runs a ranked full-text search with pagination.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	page, ok := parseQueryInt(r, "page", 1)
	if !ok {
		s.errorResponse(w, http.StatusBadRequest, "page must be an integer")
		return
	}
	perPage, ok := parseQueryInt(r, "per_page", 20)
	if !ok {
		s.errorResponse(w, http.StatusBadRequest, "per_page must be an integer")
		return
	}

	req := searchRequest{
		Query:   strings.TrimSpace(r.URL.Query().Get("query")),
		Page:    page,
		PerPage: perPage,
	}
	if err := validate.Struct(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "query is required; page must be >= 1 and per_page between 1 and 100")
		return
	}

	offset := (req.Page - 1) * req.PerPage
	companies, total, err := s.store.SearchCompanies(r.Context(), req.Query, req.PerPage, offset)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}
	s.metrics.IncSearches()

	if companies == nil {
		companies = []db.Company{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"companies": companies,
		"total":     total,
		"page":      req.Page,
		"per_page":  req.PerPage,
	})
}

// handleGetCompany retrieves a single company by its company number.
func (s *Server) handleGetCompany(w http.ResponseWriter, r *http.Request) {
	companyNumber := strings.TrimSpace(r.PathValue("companyNumber"))
	if companyNumber == "" {
		s.errorResponse(w, http.StatusBadRequest, "Company number is required")
		return
	}

	company, err := s.store.GetCompanyByNumber(r.Context(), companyNumber)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}
	if company == nil {
		s.errorResponse(w, http.StatusNotFound, "Company not found")
		return
	}

	s.jsonResponse(w, http.StatusOK, company)
}
