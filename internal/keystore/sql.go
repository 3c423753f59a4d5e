package keystore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLStore is a Store backed by a single table whose primary key is the code.
// The primary key makes a concurrent double insert a Duplicate, not a race.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	ownsDB  bool
}

// OpenSQL opens dsn with the dialect's driver and creates the table if absent.
func OpenSQL(ctx context.Context, d Dialect, dsn string) (*SQLStore, error) {
	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", d.Driver, err)
	}
	s, err := NewSQLStore(ctx, db, d, DefaultTable)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// NewSQLStore wraps an existing pool. The caller keeps ownership of db.
func NewSQLStore(ctx context.Context, db *sql.DB, d Dialect, table string) (*SQLStore, error) {
	if d.MaxOpenConns > 0 {
		db.SetMaxOpenConns(d.MaxOpenConns)
	}
	s := &SQLStore{db: db, dialect: d.withTable(table)}
	if _, err := db.ExecContext(ctx, s.dialect.createTable); err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", table, err)
	}
	return s, nil
}

func (s *SQLStore) Exists(ctx context.Context, code string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.dialect.exists, code).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up code: %w", err)
	}
	return true, nil
}

func (s *SQLStore) Insert(ctx context.Context, code, platform string) (Outcome, error) {
	_, err := s.db.ExecContext(ctx, s.dialect.insert, code, platform)
	if err == nil {
		return Inserted, nil
	}
	if s.dialect.isUniqueViolation(err) {
		return Duplicate, nil
	}
	return Inserted, fmt.Errorf("failed to insert code: %w", err)
}

func (s *SQLStore) List(ctx context.Context) ([]Code, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.list)
	if err != nil {
		return nil, fmt.Errorf("failed to list codes: %w", err)
	}
	defer rows.Close()

	var out []Code
	for rows.Next() {
		var c Code
		if err := rows.Scan(&c.Value, &c.Platform); err != nil {
			return nil, fmt.Errorf("failed to scan code: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Close closes the pool when the store opened it.
func (s *SQLStore) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}
