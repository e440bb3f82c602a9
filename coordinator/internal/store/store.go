// Package store provides the SQLite persistence layer for the
// coordinator: session state, the site whitelist, the assessment cache,
// and the daily focus ledger.
package store

import (
	"database/sql"

	"github.com/karstvig/focusd/dbopen"
)

// Store is the coordinator database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the coordinator SQLite database at path and
// applies the schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	allOpts := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, allOpts...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}
