package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// Open connects to the configured store and verifies the connection.
// driver is "mysql" or "sqlite"; dsn is passed to the driver unchanged
// except that MySQL DSNs get parseTime/charset defaults appended when no
// query string is present and SQLite DSNs always enable foreign keys.
func Open(driver, dsn string) (*sql.DB, error) {
	switch driver {
	case "mysql":
		// utf8mb4 keeps emoji in titles intact | loc=UTC keeps times consistent
		if !hasQuery(dsn) {
			dsn += "?charset=utf8mb4&parseTime=true&loc=UTC&clientFoundRows=true"
		}
	case "sqlite":
		dsn = sqliteDSN(dsn)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	// Pool settings
	if driver == "sqlite" {
		// a single writer avoids SQLITE_BUSY under concurrent requests
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func hasQuery(dsn string) bool { return strings.Contains(dsn, "?") }

// sqliteDSN adds the foreign_keys pragma so every pooled connection
// enforces references, not just the first one.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_pragma=foreign_keys") {
		return dsn
	}
	sep := "?"
	if hasQuery(dsn) {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)"
}
