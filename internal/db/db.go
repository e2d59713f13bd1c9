// Package db provides PostgreSQL access for the company store.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// InitSchema creates the companies table, the GIN index for full-text search,
// and the trigger that recomputes search_vector on every insert or update.
// All statements are idempotent so this is safe to run at every startup.
func (db *DB) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS companies (
			id BIGSERIAL PRIMARY KEY,
			company_number VARCHAR(10) UNIQUE NOT NULL,
			name TEXT,
			category VARCHAR(100),
			status VARCHAR(50),
			country_of_origin VARCHAR(50),
			incorporation_date TEXT,
			sic_codes TEXT,
			care_of TEXT,
			po_box TEXT,
			address_line1 TEXT,
			address_line2 TEXT,
			post_town TEXT,
			county TEXT,
			country TEXT,
			postcode TEXT,
			search_vector TSVECTOR
		)`,
		`CREATE INDEX IF NOT EXISTS idx_companies_search_vector
			ON companies USING GIN(search_vector)`,
		`CREATE OR REPLACE FUNCTION companies_search_vector_update() RETURNS TRIGGER AS $$
		BEGIN
			NEW.search_vector = to_tsvector('english',
				COALESCE(NEW.name, '') || ' ' ||
				COALESCE(NEW.company_number, '') || ' ' ||
				COALESCE(NEW.care_of, '') || ' ' ||
				COALESCE(NEW.po_box, '') || ' ' ||
				COALESCE(NEW.address_line1, '') || ' ' ||
				COALESCE(NEW.address_line2, '') || ' ' ||
				COALESCE(NEW.post_town, '') || ' ' ||
				COALESCE(NEW.county, '') || ' ' ||
				COALESCE(NEW.country, '') || ' ' ||
				COALESCE(NEW.postcode, '') || ' ' ||
				COALESCE(NEW.category, '') || ' ' ||
				COALESCE(NEW.status, '') || ' ' ||
				COALESCE(NEW.country_of_origin, '') || ' ' ||
				COALESCE(NEW.sic_codes, '')
			);
			RETURN NEW;
		END
		$$ LANGUAGE plpgsql`,
		`DROP TRIGGER IF EXISTS companies_search_vector_update_trigger ON companies`,
		`CREATE TRIGGER companies_search_vector_update_trigger
			BEFORE INSERT OR UPDATE ON companies
			FOR EACH ROW EXECUTE FUNCTION companies_search_vector_update()`,
	}

	for _, stmt := range statements {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}
