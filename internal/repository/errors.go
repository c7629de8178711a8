// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers to distinguish between different failure scenarios without
// knowing which SQL driver produced them.
package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrNotFound is returned when the addressed row does not exist.
// Handlers should translate this into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when an insert or update collides with the
// unique index on users.email.
var ErrEmailExists = errors.New("email already exists")

// ErrProviderIDExists is returned when an insert collides with the unique
// index on users.github_id.
var ErrProviderIDExists = errors.New("provider id already linked")

// ErrInvalidReference is returned when a foreign key (blog author, comment
// blog or user) points at a row that does not exist.
var ErrInvalidReference = errors.New("referenced row does not exist")

// isDuplicate reports a unique-constraint violation from either driver.
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// isForeignKeyViolation reports a failed foreign key check from either driver.
func isForeignKeyViolation(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1452
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
	}
	return false
}

// duplicateOf maps a unique violation on users to the matching sentinel by
// the name of the violated index.  The MySQL message also quotes the
// duplicated value, so only the text after "for key" is inspected.
func duplicateOf(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		if i := strings.LastIndex(me.Message, "for key"); i >= 0 && strings.Contains(me.Message[i:], "uq_users_github_id") {
			return ErrProviderIDExists
		}
		return ErrEmailExists
	}
	if _, cols, ok := strings.Cut(err.Error(), "constraint failed:"); ok && strings.Contains(cols, "users.github_id") {
		return ErrProviderIDExists
	}
	return ErrEmailExists
}

func unixNow() int64 { return time.Now().UTC().Unix() }

func fromUnix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
