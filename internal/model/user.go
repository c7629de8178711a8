package model

import (
    "errors"
    "time"
)

// Auth providers recorded on a user.
const (
    ProviderLocal  = "local"
    ProviderGitHub = "github"
)

// User represents an identity record as stored in the `users` table.
// Secrets (password hash, pending token hashes) never leave the process:
// their json tags are "-" so handlers can return a User directly.
//
// Fields:
//  ID              – primary key identifier of the user.
//  Name            – display name (at most 20 characters).
//  Email           – unique, lower-cased email address.
//  PasswordHash    – bcrypt hash; empty for OAuth-only accounts.
//  Avatar          – URI of the avatar image, may be empty.
//  EmailVerified   – whether the email address was confirmed.
//  VerifyTokenHash – SHA-256 of the pending verification token.
//  ResetTokenHash  – SHA-256 of the pending password reset token.
//  ResetExpiresAt  – expiry of the reset token (zero when none).
//  GitHubID        – external provider id; empty for local accounts.
//  AuthProvider    – ProviderLocal or ProviderGitHub.
type User struct {
    ID              uint64    `json:"id"`              // users.id
    Name            string    `json:"name"`            // users.name
    Email           string    `json:"email"`           // users.email
    PasswordHash    string    `json:"-"`               // users.password_hash (nullable)
    Avatar          string    `json:"avatar"`          // users.avatar
    EmailVerified   bool      `json:"emailVerified"`   // users.email_verified
    VerifyTokenHash string    `json:"-"`               // users.verify_token_hash (nullable)
    ResetTokenHash  string    `json:"-"`               // users.reset_token_hash (nullable)
    ResetExpiresAt  time.Time `json:"-"`               // users.reset_expires_at (nullable)
    GitHubID        string    `json:"githubId,omitempty"` // users.github_id (nullable)
    AuthProvider    string    `json:"authProvider"`    // users.auth_provider
    CreatedAt       time.Time `json:"createdAt"`       // users.created_at
    UpdatedAt       time.Time `json:"updatedAt"`       // users.updated_at
}

// ErrMissingCredential is returned by Validate when the account has no way
// to authenticate for its provider.
var ErrMissingCredential = errors.New("user has no credential for its auth provider")

// Validate enforces the credential invariant: local accounts carry a
// password hash, OAuth accounts carry an external provider id.
func (u *User) Validate() error {
    switch u.AuthProvider {
    case ProviderLocal, "":
        if u.PasswordHash == "" {
            return ErrMissingCredential
        }
    case ProviderGitHub:
        if u.GitHubID == "" {
            return ErrMissingCredential
        }
    default:
        return errors.New("unknown auth provider " + u.AuthProvider)
    }
    return nil
}

// UserRef is the populated projection of a referenced user (blog author,
// comment writer).
type UserRef struct {
    ID    uint64 `json:"id"`
    Name  string `json:"name"`
    Email string `json:"email"`
}
