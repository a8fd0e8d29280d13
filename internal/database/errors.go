package database

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("record not found")

// StoreError carries whatever diagnostics the database reported
type StoreError struct {
	Code    string
	Message string
	Details string
	Hint    string
	Err     error
}

func (e *StoreError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// wrap converts driver errors. Not-found becomes ErrNotFound, postgres
// errors keep their SQLSTATE, detail and hint.
func wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &StoreError{
			Code:    pgErr.Code,
			Message: pgErr.Message,
			Details: pgErr.Detail,
			Hint:    pgErr.Hint,
			Err:     err,
		}
	}
	return &StoreError{Message: err.Error(), Err: err}
}
