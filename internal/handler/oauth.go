package handler

import (
    "context"
    "crypto/subtle"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/blog-platform/internal/service"
    "github.com/iliyamo/blog-platform/internal/utils"
)

const oauthStateCookie = "oauth_state"

// OAuthHandler drives the GitHub login redirect and callback.
type OAuthHandler struct {
    Bridge          *service.OAuthBridge
    Auth            *AuthHandler
    FailureRedirect string
}

func NewOAuthHandler(b *service.OAuthBridge, a *AuthHandler, failureRedirect string) *OAuthHandler {
    return &OAuthHandler{Bridge: b, Auth: a, FailureRedirect: failureRedirect}
}

// GitHubLogin redirects the browser to GitHub with a fresh state value
// remembered in a short-lived cookie.
func (h *OAuthHandler) GitHubLogin(c echo.Context) error {
    if !h.Bridge.Enabled() {
        return msg(c, http.StatusNotFound, "GitHub login is not configured")
    }
    state, err := utils.RandomHex(16)
    if err != nil {
        return internalError(c, err)
    }
    c.SetCookie(&http.Cookie{
        Name:     oauthStateCookie,
        Value:    state,
        Path:     "/api/public/auth/github",
        MaxAge:   int((10 * time.Minute) / time.Second),
        HttpOnly: true,
        Secure:   h.Auth.Cfg.IsProd(),
        SameSite: http.SameSiteLaxMode,
    })
    return c.Redirect(http.StatusFound, h.Bridge.AuthCodeURL(state))
}

// GitHubCallback completes the flow.  Any failure sends the browser to the
// configured failure page.
func (h *OAuthHandler) GitHubCallback(c echo.Context) error {
    if !h.Bridge.Enabled() {
        return msg(c, http.StatusNotFound, "GitHub login is not configured")
    }
    fail := func(reason string, err error) error {
        if err != nil {
            c.Logger().Warnf("github callback: %s: %v", reason, err)
        } else {
            c.Logger().Warnf("github callback: %s", reason)
        }
        return c.Redirect(http.StatusFound, h.FailureRedirect)
    }

    ck, err := c.Cookie(oauthStateCookie)
    state := c.QueryParam("state")
    if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(ck.Value), []byte(state)) != 1 {
        return fail("state mismatch", nil)
    }
    c.SetCookie(&http.Cookie{Name: oauthStateCookie, Path: "/api/public/auth/github", MaxAge: -1})

    if e := c.QueryParam("error"); e != "" {
        return fail("provider error "+e, nil)
    }
    code := c.QueryParam("code")
    if code == "" {
        return fail("missing code", nil)
    }

    // covers the token exchange and profile calls as well as the store
    ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
    defer cancel()

    u, tok, err := h.Bridge.Complete(ctx, code)
    if err != nil {
        return fail("complete", err)
    }
    h.Auth.setSessionCookie(c, tok)
    return c.JSON(http.StatusOK, echo.Map{
        "message": "GitHub Login Successful!",
        "user":    u,
        "token":   tok.Raw,
    })
}
