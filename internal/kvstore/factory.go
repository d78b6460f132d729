package kvstore

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

var ErrInvalidDriver = errors.New("kvstore: invalid driver")

// New returns the Store for driver. The postgres driver requires a pool.
func New(driver string, pool *pgxpool.Pool) (Store, error) {
	switch driver {
	case DriverPostgres:
		if pool == nil {
			return nil, fmt.Errorf("%w: postgres driver needs a pool", ErrInvalidDriver)
		}
		return NewPostgres(pool), nil
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidDriver, driver)
	}
}
