package migrations

import (
	"log"

	"github.com/jmoiron/sqlx"
)

// Run creates the local search-cache schema. All durable data lives in the
// upstream backend; these tables only hold the last fetched copies used by
// search and autocomplete.
func Run(db *sqlx.DB) {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS customers_cache (
            id INTEGER PRIMARY KEY,
            name TEXT NOT NULL,
            phone TEXT,
            email TEXT,
            state TEXT,
            active INTEGER NOT NULL DEFAULT 1
        );`,
		`CREATE TABLE IF NOT EXISTS tool_groups_cache (
            name TEXT NOT NULL,
            category TEXT NOT NULL,
            equipment_type TEXT,
            stock INTEGER NOT NULL DEFAULT 0,
            cost REAL NOT NULL DEFAULT 0,
            invoice_number TEXT,
            PRIMARY KEY (name, category)
        );`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			log.Fatalf("migration failed: %v", err)
		}
	}
}
