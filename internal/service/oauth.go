package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/iliyamo/blog-platform/internal/config"
	"github.com/iliyamo/blog-platform/internal/model"
	"github.com/iliyamo/blog-platform/internal/repository"
	"github.com/iliyamo/blog-platform/internal/utils"
)

// ErrNoEmail is returned when the provider exposes no usable email address.
var ErrNoEmail = errors.New("no email found in GitHub profile")

// GitHubProfile is the subset of the provider's user record we rely on.
type GitHubProfile struct {
	ID        string
	Login     string
	Name      string
	Email     string
	AvatarURL string
}

// OAuthBridge runs the GitHub authorization-code flow and maps the external
// identity onto a local account.
type OAuthBridge struct {
	conf   *oauth2.Config
	apiURL string
	Users  *repository.UserRepo
	Tokens *utils.TokenService
	// HTTPClient is used for the token exchange and the API calls; nil
	// means http.DefaultClient.
	HTTPClient *http.Client
}

func NewOAuthBridge(cfg config.OAuthConfig, users *repository.UserRepo, tokens *utils.TokenService) *OAuthBridge {
	endpoint := github.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	return &OAuthBridge{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Endpoint:     endpoint,
			Scopes:       []string{"user:email"},
		},
		apiURL: strings.TrimRight(cfg.APIURL, "/"),
		Users:  users,
		Tokens: tokens,
	}
}

// Enabled reports whether a GitHub application is configured.
func (b *OAuthBridge) Enabled() bool { return b.conf.ClientID != "" }

// AuthCodeURL is the provider page the browser is redirected to.
func (b *OAuthBridge) AuthCodeURL(state string) string {
	return b.conf.AuthCodeURL(state)
}

func (b *OAuthBridge) ctx(ctx context.Context) context.Context {
	if b.HTTPClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, b.HTTPClient)
	}
	return ctx
}

// Complete exchanges the authorization code, loads the profile, resolves
// the local account and issues a session token for it.
func (b *OAuthBridge) Complete(ctx context.Context, code string) (model.User, utils.Token, error) {
	ctx = b.ctx(ctx)
	tok, err := b.conf.Exchange(ctx, code)
	if err != nil {
		return model.User{}, utils.Token{}, fmt.Errorf("exchange code: %w", err)
	}
	profile, err := b.FetchProfile(ctx, tok)
	if err != nil {
		return model.User{}, utils.Token{}, err
	}
	u, err := b.ResolveIdentity(ctx, profile)
	if err != nil {
		return model.User{}, utils.Token{}, err
	}
	session, err := b.Tokens.Issue(u.ID, u.Email)
	if err != nil {
		return model.User{}, utils.Token{}, fmt.Errorf("issue token: %w", err)
	}
	return u, session, nil
}

// FetchProfile reads /user and, when the public profile hides the address,
// the primary verified entry of /user/emails.
func (b *OAuthBridge) FetchProfile(ctx context.Context, tok *oauth2.Token) (GitHubProfile, error) {
	client := b.conf.Client(b.ctx(ctx), tok)

	var raw struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := b.getJSON(ctx, client, "/user", &raw); err != nil {
		return GitHubProfile{}, err
	}
	if raw.ID == 0 {
		return GitHubProfile{}, errors.New("github profile has no id")
	}
	p := GitHubProfile{
		ID:        strconv.FormatInt(raw.ID, 10),
		Login:     raw.Login,
		Name:      raw.Name,
		Email:     strings.ToLower(strings.TrimSpace(raw.Email)),
		AvatarURL: raw.AvatarURL,
	}
	if p.Email == "" {
		var emails []struct {
			Email    string `json:"email"`
			Primary  bool   `json:"primary"`
			Verified bool   `json:"verified"`
		}
		if err := b.getJSON(ctx, client, "/user/emails", &emails); err != nil {
			return GitHubProfile{}, err
		}
		for _, e := range emails {
			if e.Primary && e.Verified {
				p.Email = strings.ToLower(strings.TrimSpace(e.Email))
				break
			}
		}
	}
	if p.Email == "" {
		return GitHubProfile{}, ErrNoEmail
	}
	return p, nil
}

func (b *OAuthBridge) getJSON(ctx context.Context, client *http.Client, path string, dst any) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.apiURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("github %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("github %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("github %s: decode: %w", path, err)
	}
	return nil
}

// ResolveIdentity returns the account owning the profile's email, creating
// a verified password-less GitHub account when none exists.  A concurrent
// callback that inserted the same email first is resolved by re-reading.
func (b *OAuthBridge) ResolveIdentity(ctx context.Context, p GitHubProfile) (model.User, error) {
	if p.Email == "" {
		return model.User{}, ErrNoEmail
	}
	u, err := b.Users.GetByEmail(ctx, p.Email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return model.User{}, err
	}

	u = model.User{
		Name:          displayName(p),
		Email:         p.Email,
		Avatar:        p.AvatarURL,
		EmailVerified: true,
		GitHubID:      p.ID,
		AuthProvider:  model.ProviderGitHub,
	}
	err = b.Users.Create(ctx, &u)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, repository.ErrEmailExists) && !errors.Is(err, repository.ErrProviderIDExists) {
		return model.User{}, err
	}
	// A racing insert may trip either unique index first.
	existing, getErr := b.Users.GetByEmail(ctx, p.Email)
	if getErr == nil {
		return existing, nil
	}
	if errors.Is(getErr, repository.ErrNotFound) {
		// the GitHub account is already linked under a different email
		return model.User{}, fmt.Errorf("%w: github account already linked", ErrConflict)
	}
	return model.User{}, getErr
}

func displayName(p GitHubProfile) string {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = p.Login
	}
	if name == "" {
		name = "github-" + p.ID
	}
	if r := []rune(name); len(r) > MaxNameLen {
		name = string(r[:MaxNameLen])
	}
	return name
}
