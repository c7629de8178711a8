package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/blog-platform/internal/model"
)

// UserRepo is the credential store: every read and write of the users
// table goes through it.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// UserPatch carries the editable profile fields; nil fields are kept.
type UserPatch struct {
	Name   *string
	Email  *string
	Avatar *string
}

const userColumns = "id,name,email,password_hash,avatar,email_verified,verify_token_hash,reset_token_hash,reset_expires_at,github_id,auth_provider,created_at,updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (model.User, error) {
	var (
		u                           model.User
		hash, verify, reset, github sql.NullString
		resetExp                    sql.NullInt64
		created, updated            int64
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &hash, &u.Avatar, &u.EmailVerified,
		&verify, &reset, &resetExp, &github, &u.AuthProvider, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, err
	}
	u.PasswordHash = hash.String
	u.VerifyTokenHash = verify.String
	u.ResetTokenHash = reset.String
	u.ResetExpiresAt = fromUnix(resetExp.Int64)
	u.GitHubID = github.String
	u.CreatedAt = fromUnix(created)
	u.UpdatedAt = fromUnix(updated)
	return u, nil
}

func nullString(s string) sql.NullString { return sql.NullString{String: s, Valid: s != ""} }

// Create inserts u after checking the credential invariant and fills in its
// ID and timestamps.  A collision on the unique email or github_id index is
// reported as ErrEmailExists or ErrProviderIDExists.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	u.Email = normalizeEmail(u.Email)
	if u.AuthProvider == "" {
		u.AuthProvider = model.ProviderLocal
	}
	if err := u.Validate(); err != nil {
		return err
	}
	now := unixNow()
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO users (name,email,password_hash,avatar,email_verified,verify_token_hash,github_id,auth_provider,created_at,updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		u.Name, u.Email, nullString(u.PasswordHash), u.Avatar, u.EmailVerified,
		nullString(u.VerifyTokenHash), nullString(u.GitHubID), u.AuthProvider, now, now)
	if err != nil {
		if isDuplicate(err) {
			return duplicateOf(err)
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = uint64(id)
	u.CreatedAt = fromUnix(now)
	u.UpdatedAt = u.CreatedAt
	return nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", normalizeEmail(email)))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// GetByVerifyTokenHash fetches the user whose pending verification token
// hashes to hash.
func (r *UserRepo) GetByVerifyTokenHash(ctx context.Context, hash string) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE verify_token_hash=? LIMIT 1", hash))
}

// List returns every user ordered by id.
func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ConsumeVerifyToken marks the owner of the token hash as verified and
// clears the token.  The UPDATE is conditional on the hash still being
// present, so a token succeeds at most once.
// It returns ErrNotFound when no user holds the token.
func (r *UserRepo) ConsumeVerifyToken(ctx context.Context, hash string) (uint64, error) {
	u, err := r.GetByVerifyTokenHash(ctx, hash)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET email_verified=1, verify_token_hash=NULL, updated_at=? WHERE id=? AND verify_token_hash=?",
		unixNow(), u.ID, hash)
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// a concurrent request consumed it first
		return 0, ErrNotFound
	}
	return u.ID, nil
}

// SetResetToken stores the hash and expiry of a password reset token,
// replacing any earlier one.
func (r *UserRepo) SetResetToken(ctx context.Context, id uint64, hash string, exp time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET reset_token_hash=?, reset_expires_at=?, updated_at=? WHERE id=?",
		hash, exp.UTC().Unix(), unixNow(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ConsumeResetToken replaces the password of the user holding an unexpired
// reset token and clears the token.  Unknown or expired tokens yield
// ErrNotFound.
func (r *UserRepo) ConsumeResetToken(ctx context.Context, hash, passwordHash string, now time.Time) (uint64, error) {
	var id uint64
	err := r.DB.QueryRowContext(ctx,
		"SELECT id FROM users WHERE reset_token_hash=? AND reset_expires_at > ? LIMIT 1",
		hash, now.UTC().Unix()).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET password_hash=?, reset_token_hash=NULL, reset_expires_at=NULL, updated_at=? WHERE id=? AND reset_token_hash=?",
		passwordHash, unixNow(), id, hash)
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, ErrNotFound
	}
	return id, nil
}

// Update applies a profile patch and returns the stored row.
func (r *UserRepo) Update(ctx context.Context, id uint64, p UserPatch) (model.User, error) {
	if _, err := r.GetByID(ctx, id); err != nil {
		return model.User{}, err
	}
	sets := []string{"updated_at=?"}
	args := []any{unixNow()}
	if p.Name != nil {
		sets = append(sets, "name=?")
		args = append(args, strings.TrimSpace(*p.Name))
	}
	if p.Email != nil {
		sets = append(sets, "email=?")
		args = append(args, normalizeEmail(*p.Email))
	}
	if p.Avatar != nil {
		sets = append(sets, "avatar=?")
		args = append(args, *p.Avatar)
	}
	args = append(args, id)
	if _, err := r.DB.ExecContext(ctx, "UPDATE users SET "+strings.Join(sets, ", ")+" WHERE id=?", args...); err != nil {
		if isDuplicate(err) {
			return model.User{}, duplicateOf(err)
		}
		return model.User{}, err
	}
	return r.GetByID(ctx, id)
}

// Delete removes a user together with their blogs and every comment that
// referenced them or their blogs.
func (r *UserRepo) Delete(ctx context.Context, id uint64) (err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
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
	var exists uint64
	if err = tx.QueryRowContext(ctx, "SELECT id FROM users WHERE id=?", id).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if _, err = tx.ExecContext(ctx,
		"DELETE FROM comments WHERE user_id=? OR blog_id IN (SELECT id FROM blogs WHERE author_id=?)", id, id); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM blogs WHERE author_id=?", id); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, "DELETE FROM users WHERE id=?", id)
	return err
}

// DeleteAll removes every user and, with them, all blogs and comments.  It
// returns the number of users deleted.
func (r *UserRepo) DeleteAll(ctx context.Context) (n int64, err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()
	for _, q := range []string{"DELETE FROM comments", "DELETE FROM blogs"} {
		if _, err = tx.ExecContext(ctx, q); err != nil {
			return 0, err
		}
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM users")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }
