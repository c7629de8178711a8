// Package service implements the account flows that sit between the HTTP
// handlers and the credential store: signup, email verification, signin,
// password reset and OAuth identity resolution.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/iliyamo/blog-platform/internal/config"
	"github.com/iliyamo/blog-platform/internal/mail"
	"github.com/iliyamo/blog-platform/internal/model"
	"github.com/iliyamo/blog-platform/internal/repository"
	"github.com/iliyamo/blog-platform/internal/utils"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrConflict           = errors.New("conflict")
	ErrNotFound           = errors.New("not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnverified         = errors.New("email not verified")

	// ErrPasswordTooLong is a validation failure: bcrypt only accepts
	// MaxPasswordBytes of input.
	ErrPasswordTooLong = fmt.Errorf("%w: password longer than %d bytes", ErrValidation, MaxPasswordBytes)
)

// MaxNameLen bounds the display name of a user.
const MaxNameLen = 20

// MaxPasswordBytes is the longest password bcrypt will hash.
const MaxPasswordBytes = 72

// AuthService bundles the dependencies of the local account flows.
type AuthService struct {
	Users      *repository.UserRepo
	Tokens     *utils.TokenService
	Notifier   mail.Notifier
	ServerURL  string
	BcryptCost int
	ResetTTL   time.Duration
	now        func() time.Time
}

func NewAuthService(cfg config.Config, users *repository.UserRepo, tokens *utils.TokenService, n mail.Notifier) *AuthService {
	return &AuthService{
		Users:      users,
		Tokens:     tokens,
		Notifier:   n,
		ServerURL:  cfg.ServerURL,
		BcryptCost: cfg.BcryptCost,
		ResetTTL:   cfg.ResetTokenTTL,
		now:        time.Now,
	}
}

// SignupInput is the payload of a local registration.
type SignupInput struct {
	Name     string
	Email    string
	Password string
}

// Signup registers an unverified local account and emails the verification
// link.  A taken email yields ErrConflict whether it is caught by the
// lookup or by the unique index.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (model.User, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if name == "" || email == "" || in.Password == "" {
		return model.User{}, fmt.Errorf("%w: all fields are required", ErrValidation)
	}
	if utf8.RuneCountInString(name) > MaxNameLen {
		return model.User{}, fmt.Errorf("%w: name longer than %d characters", ErrValidation, MaxNameLen)
	}
	if len(in.Password) > MaxPasswordBytes {
		return model.User{}, ErrPasswordTooLong
	}

	if _, err := s.Users.GetByEmail(ctx, email); err == nil {
		return model.User{}, ErrConflict
	} else if !errors.Is(err, repository.ErrNotFound) {
		return model.User{}, err
	}

	hash, err := utils.HashPassword(in.Password, s.BcryptCost)
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}
	raw, tokenHash, err := utils.NewOneShotToken()
	if err != nil {
		return model.User{}, fmt.Errorf("verification token: %w", err)
	}
	u := model.User{
		Name:            name,
		Email:           email,
		PasswordHash:    hash,
		AuthProvider:    model.ProviderLocal,
		VerifyTokenHash: tokenHash,
	}
	if err := s.Users.Create(ctx, &u); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return model.User{}, ErrConflict
		}
		return model.User{}, err
	}

	link := s.ServerURL + "/api/public/emailverify/" + raw
	if msg, err := mail.VerificationEmail(u.Email, u.Name, link); err != nil {
		log.Printf("auth: render verification email for user %d: %v", u.ID, err)
	} else {
		s.Notifier.Notify(msg)
	}
	return u, nil
}

// VerifyEmail consumes a verification token.  Unknown or already used
// tokens yield ErrNotFound.
func (s *AuthService) VerifyEmail(ctx context.Context, rawToken string) (uint64, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return 0, ErrNotFound
	}
	id, err := s.Users.ConsumeVerifyToken(ctx, utils.HashToken(rawToken))
	if errors.Is(err, repository.ErrNotFound) {
		return 0, ErrNotFound
	}
	return id, err
}

// Signin checks a local password and issues a session token.  Unknown
// emails, password-less (OAuth) accounts and wrong passwords all yield
// ErrInvalidCredentials; a correct password on an unverified account yields
// ErrUnverified.
func (s *AuthService) Signin(ctx context.Context, email, password string) (model.User, utils.Token, error) {
	u, err := s.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.User{}, utils.Token{}, ErrInvalidCredentials
		}
		return model.User{}, utils.Token{}, err
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return model.User{}, utils.Token{}, ErrInvalidCredentials
	}
	if !u.EmailVerified {
		return model.User{}, utils.Token{}, ErrUnverified
	}
	tok, err := s.Tokens.Issue(u.ID, u.Email)
	if err != nil {
		return model.User{}, utils.Token{}, fmt.Errorf("issue token: %w", err)
	}
	return u, tok, nil
}

// RequestPasswordReset stores a fresh reset token for the account and emails
// a link valid for ResetTTL.  Any earlier pending link stops working.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	u, err := s.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	raw, hash, err := utils.NewOneShotToken()
	if err != nil {
		return fmt.Errorf("reset token: %w", err)
	}
	if err := s.Users.SetResetToken(ctx, u.ID, hash, s.now().Add(s.ResetTTL)); err != nil {
		return err
	}
	link := s.ServerURL + "/api/public/resetpassword/" + raw
	msg, err := mail.PasswordResetEmail(u.Email, u.Name, link, s.ResetTTL.String())
	if err != nil {
		log.Printf("auth: render reset email for user %d: %v", u.ID, err)
		return nil
	}
	s.Notifier.Notify(msg)
	return nil
}

// ResetPassword replaces the password of the account holding an unexpired
// reset token.  The token works once.
func (s *AuthService) ResetPassword(ctx context.Context, rawToken, newPassword string) (uint64, error) {
	if newPassword == "" {
		return 0, fmt.Errorf("%w: password is required", ErrValidation)
	}
	if len(newPassword) > MaxPasswordBytes {
		return 0, ErrPasswordTooLong
	}
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return 0, ErrNotFound
	}
	hash, err := utils.HashPassword(newPassword, s.BcryptCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}
	id, err := s.Users.ConsumeResetToken(ctx, utils.HashToken(rawToken), hash, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return 0, ErrNotFound
	}
	return id, err
}
