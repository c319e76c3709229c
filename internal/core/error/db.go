package errx

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// WrapDB maps HR data store errors to AppError. Missing rows from either the
// pgx or the database/sql driver become ErrNotFound.
func WrapDB(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) || errors.Is(err, ErrNotFound) {
		return New(errors.Join(ErrNotFound, err), http.StatusNotFound, NotFoundMessage)
	}

	return New(err, http.StatusBadGateway, DatabaseErrorMessage)
}
