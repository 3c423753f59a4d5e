// Package keystore records every promo code ever obtained so duplicates can be told apart.
package keystore

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnsupportedDriver is returned by Open for an unknown driver name.
var ErrUnsupportedDriver = errors.New("unsupported store driver")

// Outcome is the result of an Insert that did not fail.
type Outcome int

const (
	Inserted Outcome = iota
	Duplicate
)

func (o Outcome) String() string {
	if o == Duplicate {
		return "duplicate"
	}
	return "inserted"
}

// Code is one stored promo code.
type Code struct {
	Value    string
	Platform string
}

// Store is the dedup store shared by all workers.
// Implementations must be safe for concurrent use and must never report two
// Inserted outcomes for the same value.
type Store interface {
	// Exists reports whether code has been stored before.
	Exists(ctx context.Context, code string) (bool, error)

	// Insert stores code. A value that is already present yields Duplicate and
	// a nil error; errors are reserved for storage failures.
	Insert(ctx context.Context, code, platform string) (Outcome, error)

	// List returns every stored code.
	List(ctx context.Context) ([]Code, error)

	Close() error
}

// Open returns the store for driver. "memory" (or "") ignores dsn.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "", "memory":
		return NewMemoryStore(), nil
	default:
		d, ok := dialects[driver]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
		}
		return OpenSQL(ctx, d, dsn)
	}
}
