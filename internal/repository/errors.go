// Package repository defines error types that are reused across the
// MySQL and in-memory stores. These sentinel values allow handlers to
// distinguish failure scenarios with errors.Is without knowing which
// store is in use.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrForbidden is returned when the caller attempts an operation that
// the resource owner rule denies (opining on one's own movie).
// Handlers translate it into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrMovieNotFound is returned when a movie id does not reference a row.
var ErrMovieNotFound = errors.New("movie not found")

// ErrUserNotFound is returned when a user lookup has no result.
var ErrUserNotFound = errors.New("user not found")

// ErrUsernameExists is returned by user creation on a duplicate username.
var ErrUsernameExists = errors.New("username already exists")

// ErrInvalidRefresh is returned for unknown, expired or revoked refresh
// tokens.
var ErrInvalidRefresh = errors.New("invalid refresh token")

// isDuplicateKey reports whether err is a MySQL unique constraint
// violation (error 1062).
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
