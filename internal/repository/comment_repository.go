package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/blog-platform/internal/model"
)

// CommentRepo persists comments and lists them per blog.
type CommentRepo struct{ db *sql.DB }

func NewCommentRepo(db *sql.DB) *CommentRepo { return &CommentRepo{db: db} }

// Create inserts a comment.  ErrInvalidReference is returned when the blog
// or the user does not exist.
func (r *CommentRepo) Create(ctx context.Context, c *model.Comment) error {
	now := unixNow()
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO comments (blog_id, user_id, content, created_at, updated_at) VALUES (?,?,?,?,?)",
		c.BlogID, c.UserID, c.Content, now, now)
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
	c.ID = uint64(id)
	c.CreatedAt = fromUnix(now)
	c.UpdatedAt = c.CreatedAt
	return nil
}

// ListByBlog returns the comments of a blog oldest first, each with its
// writer populated.
func (r *CommentRepo) ListByBlog(ctx context.Context, blogID uint64) ([]model.Comment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.blog_id, c.user_id, c.content, c.created_at, c.updated_at, u.id, u.name, u.email
		 FROM comments c LEFT JOIN users u ON u.id = c.user_id
		 WHERE c.blog_id = ? ORDER BY c.id`, blogID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Comment{}
	for rows.Next() {
		var (
			c                model.Comment
			created, updated int64
			uid              sql.NullInt64
			name, email      sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.BlogID, &c.UserID, &c.Content, &created, &updated, &uid, &name, &email); err != nil {
			return nil, err
		}
		c.CreatedAt = fromUnix(created)
		c.UpdatedAt = fromUnix(updated)
		if uid.Valid {
			c.User = &model.UserRef{ID: uint64(uid.Int64), Name: name.String, Email: email.String}
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes a comment by id, returning ErrNotFound when absent.
func (r *CommentRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM comments WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
