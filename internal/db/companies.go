package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const companyColumns = `company_number, COALESCE(name, ''), COALESCE(category, ''),
	COALESCE(status, ''), COALESCE(country_of_origin, ''), COALESCE(incorporation_date, ''),
	COALESCE(sic_codes, ''), COALESCE(care_of, ''), COALESCE(po_box, ''),
	COALESCE(address_line1, ''), COALESCE(address_line2, ''), COALESCE(post_town, ''),
	COALESCE(county, ''), COALESCE(country, ''), COALESCE(postcode, '')`

const upsertCompanySQL = `
	INSERT INTO companies
		(company_number, name, category, status, country_of_origin, incorporation_date,
		 sic_codes, care_of, po_box, address_line1, address_line2, post_town, county,
		 country, postcode)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	ON CONFLICT (company_number) DO UPDATE SET
		name = EXCLUDED.name,
		category = EXCLUDED.category,
		status = EXCLUDED.status,
		country_of_origin = EXCLUDED.country_of_origin,
		incorporation_date = EXCLUDED.incorporation_date,
		sic_codes = EXCLUDED.sic_codes,
		care_of = EXCLUDED.care_of,
		po_box = EXCLUDED.po_box,
		address_line1 = EXCLUDED.address_line1,
		address_line2 = EXCLUDED.address_line2,
		post_town = EXCLUDED.post_town,
		county = EXCLUDED.county,
		country = EXCLUDED.country,
		postcode = EXCLUDED.postcode`

func upsertArgs(c Company) []any {
	return []any{
		c.CompanyNumber, c.Name, c.Category, c.Status, c.CountryOfOrigin,
		c.IncorporationDate, c.SICCodes, c.Address.CareOf, c.Address.POBox,
		c.Address.Line1, c.Address.Line2, c.Address.Town, c.Address.County,
		c.Address.Country, c.Address.Postcode,
	}
}

// UpsertCompanies writes a batch of companies keyed by company_number, inserting
// new rows and overwriting attributes of existing ones. The batch goes out as a
// single pipelined round trip; if that fails the batch is retried row by row so
// that a defect in one row (e.g. a value exceeding a column limit) only skips
// that row. Returns the number of rows stored and the number skipped.
func (db *DB) UpsertCompanies(ctx context.Context, companies []Company) (stored, skipped int, err error) {
	if len(companies) == 0 {
		return 0, 0, nil
	}

	batch := &pgx.Batch{}
	for _, c := range companies {
		batch.Queue(upsertCompanySQL, upsertArgs(c)...)
	}

	br := db.pool.SendBatch(ctx, batch)
	var batchErr error
	for range companies {
		if _, execErr := br.Exec(); execErr != nil && batchErr == nil {
			batchErr = execErr
		}
	}
	if closeErr := br.Close(); closeErr != nil && batchErr == nil {
		batchErr = closeErr
	}
	if batchErr == nil {
		return len(companies), 0, nil
	}

	// A batch runs in an implicit transaction, so one bad row poisons the lot.
	// Retry individually to isolate it.
	return db.upsertRowByRow(ctx, companies, batchErr)
}

func (db *DB) upsertRowByRow(ctx context.Context, companies []Company, batchErr error) (stored, skipped int, err error) {
	for _, c := range companies {
		if _, execErr := db.pool.Exec(ctx, upsertCompanySQL, upsertArgs(c)...); execErr != nil {
			var pgErr *pgconn.PgError
			if errors.As(execErr, &pgErr) {
				// Server rejected this particular row; count it and move on.
				skipped++
				continue
			}
			// Connection-level failure: the whole batch is lost.
			return stored, skipped, fmt.Errorf("failed to upsert batch: %w (batch error: %v)", execErr, batchErr)
		}
		stored++
	}
	return stored, skipped, nil
}

// SearchCompanies runs a ranked full-text search over the companies table.
// Results are ordered by ts_rank, with ties broken by ascending company_number
// for stable pagination. Returns the page of companies and the total match count.
func (db *DB) SearchCompanies(ctx context.Context, query string, limit, offset int) ([]Company, int, error) {
	var total int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM companies
		 WHERE search_vector @@ plainto_tsquery('english', $1)`,
		query,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count search results: %w", err)
	}

	rows, err := db.pool.Query(ctx,
		`SELECT `+companyColumns+`
		 FROM companies
		 WHERE search_vector @@ plainto_tsquery('english', $1)
		 ORDER BY ts_rank(search_vector, plainto_tsquery('english', $1)) DESC,
		          company_number ASC
		 LIMIT $2 OFFSET $3`,
		query, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search companies: %w", err)
	}
	defer rows.Close()

	var companies []Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, 0, err
		}
		companies = append(companies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read search results: %w", err)
	}
	return companies, total, nil
}

// GetCompanyByNumber retrieves a single company by its business key.
// Returns nil without error when no company has that number.
func (db *DB) GetCompanyByNumber(ctx context.Context, companyNumber string) (*Company, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE company_number = $1`,
		companyNumber,
	)
	c, err := scanCompany(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// CountCompanies returns the total number of stored company records.
func (db *DB) CountCompanies(ctx context.Context) (int, error) {
	var total int
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM companies`).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count companies: %w", err)
	}
	return total, nil
}

func scanCompany(row pgx.Row) (Company, error) {
	var c Company
	err := row.Scan(
		&c.CompanyNumber, &c.Name, &c.Category, &c.Status, &c.CountryOfOrigin,
		&c.IncorporationDate, &c.SICCodes, &c.Address.CareOf, &c.Address.POBox,
		&c.Address.Line1, &c.Address.Line2, &c.Address.Town, &c.Address.County,
		&c.Address.Country, &c.Address.Postcode,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Company{}, err
		}
		return Company{}, fmt.Errorf("failed to scan company: %w", err)
	}
	return c, nil
}
