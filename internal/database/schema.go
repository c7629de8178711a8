package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Each migration is a list of single statements because the MySQL driver
// rejects multi-statement Exec calls by default.  Timestamps are unix
// seconds in BIGINT columns so both drivers scan them the same way.
var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(20) NOT NULL,
		email VARCHAR(255) NOT NULL,
		password_hash VARCHAR(255) NULL,
		avatar VARCHAR(1024) NOT NULL DEFAULT '',
		email_verified TINYINT(1) NOT NULL DEFAULT 0,
		verify_token_hash CHAR(64) NULL,
		reset_token_hash CHAR(64) NULL,
		reset_expires_at BIGINT NULL,
		github_id VARCHAR(64) NULL,
		auth_provider VARCHAR(16) NOT NULL DEFAULT 'local',
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		UNIQUE KEY uq_users_email (email),
		UNIQUE KEY uq_users_github_id (github_id),
		KEY idx_users_verify_token (verify_token_hash),
		KEY idx_users_reset_token (reset_token_hash)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS blogs (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		author_id BIGINT UNSIGNED NOT NULL,
		title VARCHAR(255) NOT NULL,
		content MEDIUMTEXT NOT NULL,
		summary TEXT NULL,
		tags TEXT NOT NULL,
		category VARCHAR(100) NOT NULL,
		views BIGINT UNSIGNED NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		KEY idx_blogs_author (author_id),
		CONSTRAINT fk_blogs_author FOREIGN KEY (author_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS comments (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		blog_id BIGINT UNSIGNED NOT NULL,
		user_id BIGINT UNSIGNED NOT NULL,
		content TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		KEY idx_comments_blog (blog_id),
		CONSTRAINT fk_comments_blog FOREIGN KEY (blog_id) REFERENCES blogs(id) ON DELETE CASCADE,
		CONSTRAINT fk_comments_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT,
		avatar TEXT NOT NULL DEFAULT '',
		email_verified INTEGER NOT NULL DEFAULT 0,
		verify_token_hash TEXT,
		reset_token_hash TEXT,
		reset_expires_at INTEGER,
		github_id TEXT UNIQUE,
		auth_provider TEXT NOT NULL DEFAULT 'local',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_verify_token ON users(verify_token_hash)`,
	`CREATE INDEX IF NOT EXISTS idx_users_reset_token ON users(reset_token_hash)`,
	`CREATE TABLE IF NOT EXISTS blogs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		author_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		summary TEXT,
		tags TEXT NOT NULL DEFAULT '[]',
		category TEXT NOT NULL,
		views INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_blogs_author ON blogs(author_id)`,
	`CREATE TABLE IF NOT EXISTS comments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		blog_id INTEGER NOT NULL REFERENCES blogs(id) ON DELETE CASCADE,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_comments_blog ON comments(blog_id)`,
}

// Migrate creates the users, blogs and comments tables when missing.  The
// unique indexes on users.email and users.github_id are what resolve
// concurrent signup and OAuth races.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	stmts := mysqlSchema
	if driver == "sqlite" {
		stmts = sqliteSchema
	}
	for i, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
