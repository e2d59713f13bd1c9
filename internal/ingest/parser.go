package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/companies-search/internal/db"
)

// Column headers of the Companies House basic data product CSV. The published
// file pads some headers with spaces, so lookups trim before matching.
const (
	colCompanyName       = "CompanyName"
	colCompanyNumber     = "CompanyNumber"
	colCareOf            = "RegAddress.CareOf"
	colPOBox             = "RegAddress.POBox"
	colAddressLine1      = "RegAddress.AddressLine1"
	colAddressLine2      = "RegAddress.AddressLine2"
	colPostTown          = "RegAddress.PostTown"
	colCounty            = "RegAddress.County"
	colCountry           = "RegAddress.Country"
	colPostcode          = "RegAddress.PostCode"
	colCategory          = "CompanyCategory"
	colStatus            = "CompanyStatus"
	colCountryOfOrigin   = "CountryOfOrigin"
	colIncorporationDate = "IncorporationDate"
	colSICText1          = "SICCode.SicText_1"
	colSICCodes          = "SICCodes"
)

// StructuralError reports corruption that prevents locating further row
// boundaries in the stream. It is terminal for the run, unlike a malformed
// row, which is skipped.
type StructuralError struct {
	Offset int64
	Cause  error
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("structural parse failure at byte %d: %v", e.Offset, e.Cause)
}

func (e *StructuralError) Unwrap() error {
	return e.Cause
}

// Parser decodes the dataset CSV stream incrementally into company records.
type Parser struct {
	r   *csv.Reader
	idx map[string]int
}

// NewParser reads the header row and prepares column lookups. A header that
// cannot be read means the stream is unusable and returns a StructuralError.
func NewParser(r io.Reader) (*Parser, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, &StructuralError{Offset: cr.InputOffset(), Cause: fmt.Errorf("failed to read header row: %w", err)}
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}
	if _, ok := idx[colCompanyNumber]; !ok {
		return nil, &StructuralError{Offset: cr.InputOffset(), Cause: fmt.Errorf("header row has no %s column", colCompanyNumber)}
	}

	return &Parser{r: cr, idx: idx}, nil
}

// Next returns the next company record. A (nil, nil) return means the row was
// malformed and skipped; io.EOF signals end of input; a StructuralError means
// parsing cannot continue.
func (p *Parser) Next() (*db.Company, error) {
	record, err := p.r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			// The reader recovered a row boundary; drop the bad row.
			return nil, nil
		}
		// The underlying stream failed (IO error, corrupt compression).
		return nil, &StructuralError{Offset: p.r.InputOffset(), Cause: err}
	}

	number := p.field(record, colCompanyNumber)
	if number == "" {
		return nil, nil
	}

	c := &db.Company{
		CompanyNumber:     number,
		Name:              p.field(record, colCompanyName),
		Category:          p.field(record, colCategory),
		Status:            p.field(record, colStatus),
		CountryOfOrigin:   p.field(record, colCountryOfOrigin),
		IncorporationDate: p.field(record, colIncorporationDate),
		SICCodes:          p.field(record, colSICText1),
		Address: db.Address{
			CareOf:   p.field(record, colCareOf),
			POBox:    p.field(record, colPOBox),
			Line1:    p.field(record, colAddressLine1),
			Line2:    p.field(record, colAddressLine2),
			Town:     p.field(record, colPostTown),
			County:   p.field(record, colCounty),
			Country:  p.field(record, colCountry),
			Postcode: p.field(record, colPostcode),
		},
	}
	if c.SICCodes == "" {
		// Older snapshots carry a combined SICCodes column instead.
		c.SICCodes = p.field(record, colSICCodes)
	}
	return c, nil
}

// InputOffset returns the number of input bytes consumed so far, used for the
// running total-records estimate.
func (p *Parser) InputOffset() int64 {
	return p.r.InputOffset()
}

// field extracts and trims a column value, tolerating short rows.
func (p *Parser) field(record []string, col string) string {
	i, ok := p.idx[col]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}
