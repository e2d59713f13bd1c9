package match

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jonathan/companies-search/internal/db"
)

// DefaultCandidates is how many search hits are scored per debtor name.
const DefaultCandidates = 10

// debtorNameColumn is the expected header of the debtor name column.
const debtorNameColumn = "CustomerName"

// CompanySearcher is the slice of the storage layer used to shortlist
// candidate companies. Implemented by db.DB.
type CompanySearcher interface {
	SearchCompanies(ctx context.Context, query string, limit, offset int) ([]db.Company, int, error)
}

// Result is the outcome of matching one debtor name. MatchedName and
// CompanyNumber are empty when no candidate reached the threshold.
type Result struct {
	DebtorName     string
	NormalizedName string
	MatchedName    string
	CompanyNumber  string
	Confidence     float64
	HighConfidence bool
}

// LoadDebtors reads debtor names from a CSV stream with a CustomerName
// column. Blank names are dropped; malformed rows are skipped.
func LoadDebtors(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read debtor header row: %w", err)
	}
	col := -1
	for i, name := range header {
		if strings.TrimSpace(name) == debtorNameColumn {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("debtor file has no %s column", debtorNameColumn)
	}

	var names []string
	for {
		record, err := cr.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				continue
			}
			return nil, fmt.Errorf("failed to read debtor file: %w", err)
		}
		if col >= len(record) {
			continue
		}
		if name := strings.TrimSpace(record[col]); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// MatchDebtors matches each debtor name against the company store: the
// normalized name shortlists candidates through ranked search, then the raw
// debtor name is scored against each candidate's registered name. Names that
// normalize to nothing (likely personal names) are dropped entirely.
func MatchDebtors(ctx context.Context, store CompanySearcher, m *Matcher, debtors []string, threshold float64, candidates int) ([]Result, error) {
	if candidates <= 0 {
		candidates = DefaultCandidates
	}

	var results []Result
	for _, debtor := range debtors {
		normalized := m.Normalize(debtor)
		if normalized == "" {
			continue
		}

		shortlist, _, err := store.SearchCompanies(ctx, normalized, candidates, 0)
		if err != nil {
			return nil, fmt.Errorf("candidate search for %q failed: %w", debtor, err)
		}

		res := Result{DebtorName: debtor, NormalizedName: normalized}
		names := make([]string, len(shortlist))
		for i, c := range shortlist {
			names[i] = c.Name
		}
		if best := m.BestMatch(debtor, names, threshold); best != nil {
			res.MatchedName = best.Name
			res.Confidence = best.Confidence
			res.HighConfidence = true
			for _, c := range shortlist {
				if c.Name == best.Name {
					res.CompanyNumber = c.CompanyNumber
					break
				}
			}
		}
		results = append(results, res)
	}
	return results, nil
}

// WriteResults writes match results as CSV, one row per debtor name.
func WriteResults(w io.Writer, results []Result) error {
	cw := csv.NewWriter(w)
	header := []string{"debtor_name", "normalized_name", "matched_name",
		"company_number", "confidence", "high_confidence"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	for _, r := range results {
		record := []string{
			r.DebtorName,
			r.NormalizedName,
			r.MatchedName,
			r.CompanyNumber,
			strconv.FormatFloat(r.Confidence, 'f', 2, 64),
			strconv.FormatBool(r.HighConfidence),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write results: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
