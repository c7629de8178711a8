// Package repository contains data access logic separated from HTTP handlers.
// This file defines the blog repository: CRUD over the blogs table with the
// author populated from users on every read.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/iliyamo/blog-platform/internal/model"
)

// BlogRepo encapsulates all database queries related to blog posts.
type BlogRepo struct {
	db *sql.DB // db is the underlying database connection pool
}

// NewBlogRepo constructs a BlogRepo with the provided DB handle.
func NewBlogRepo(db *sql.DB) *BlogRepo {
	return &BlogRepo{db: db}
}

const blogSelect = `SELECT b.id, b.author_id, b.title, b.content, b.summary, b.tags, b.category, b.views,
	b.created_at, b.updated_at, u.id, u.name, u.email
	FROM blogs b LEFT JOIN users u ON u.id = b.author_id`

func scanBlog(row rowScanner) (model.Blog, error) {
	var (
		b                    model.Blog
		summary              sql.NullString
		tags                 string
		created, updated     int64
		authorID             sql.NullInt64
		authorName, authorEm sql.NullString
	)
	err := row.Scan(&b.ID, &b.AuthorID, &b.Title, &b.Content, &summary, &tags, &b.Category, &b.Views,
		&created, &updated, &authorID, &authorName, &authorEm)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Blog{}, ErrNotFound
		}
		return model.Blog{}, err
	}
	b.Summary = summary.String
	b.Tags = decodeTags(tags)
	b.CreatedAt = fromUnix(created)
	b.UpdatedAt = fromUnix(updated)
	if authorID.Valid {
		b.Author = &model.UserRef{ID: uint64(authorID.Int64), Name: authorName.String, Email: authorEm.String}
	}
	return b, nil
}

func encodeTags(tags []string) string {
	clean := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			clean = append(clean, t)
		}
	}
	bs, _ := json.Marshal(clean)
	return string(bs)
}

func decodeTags(raw string) []string {
	out := []string{}
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

// Create inserts a new blog and populates its ID, counters and timestamps.
// A missing author yields ErrInvalidReference.
func (r *BlogRepo) Create(ctx context.Context, b *model.Blog) error {
	now := unixNow()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO blogs (author_id, title, content, summary, tags, category, views, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		b.AuthorID, b.Title, b.Content, nullString(b.Summary), encodeTags(b.Tags), b.Category, now, now)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrInvalidReference
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	b.Views = 0
	b.Tags = decodeTags(encodeTags(b.Tags))
	b.CreatedAt = fromUnix(now)
	b.UpdatedAt = b.CreatedAt
	return nil
}

// GetByID fetches a blog with its author.  It returns ErrNotFound if no row
// is found.
func (r *BlogRepo) GetByID(ctx context.Context, id uint64) (model.Blog, error) {
	return scanBlog(r.db.QueryRowContext(ctx, blogSelect+" WHERE b.id = ?", id))
}

// Exists reports whether a blog with the id is stored.
func (r *BlogRepo) Exists(ctx context.Context, id uint64) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, "SELECT 1 FROM blogs WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// List returns all blogs ordered by id with authors populated.
func (r *BlogRepo) List(ctx context.Context) ([]model.Blog, error) {
	rows, err := r.db.QueryContext(ctx, blogSelect+" ORDER BY b.id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Blog{}
	for rows.Next() {
		b, err := scanBlog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// IncrementViews bumps the view counter of a blog.
func (r *BlogRepo) IncrementViews(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "UPDATE blogs SET views = views + 1 WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Update applies a partial update and returns the stored blog.
func (r *BlogRepo) Update(ctx context.Context, id uint64, p model.BlogPatch) (model.Blog, error) {
	if ok, err := r.Exists(ctx, id); err != nil {
		return model.Blog{}, err
	} else if !ok {
		return model.Blog{}, ErrNotFound
	}
	sets := []string{"updated_at = ?"}
	args := []any{unixNow()}
	if p.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *p.Title)
	}
	if p.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *p.Content)
	}
	if p.Summary != nil {
		sets = append(sets, "summary = ?")
		args = append(args, nullString(*p.Summary))
	}
	if p.Tags != nil {
		sets = append(sets, "tags = ?")
		args = append(args, encodeTags(*p.Tags))
	}
	if p.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, *p.Category)
	}
	args = append(args, id)
	if _, err := r.db.ExecContext(ctx, "UPDATE blogs SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...); err != nil {
		return model.Blog{}, err
	}
	return r.GetByID(ctx, id)
}

// Delete removes a blog and its comments within a transaction.  If the blog
// does not exist, ErrNotFound is returned.
func (r *BlogRepo) Delete(ctx context.Context, id uint64) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()
	if _, err = tx.ExecContext(ctx, "DELETE FROM comments WHERE blog_id = ?", id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM blogs WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
