package handler

import (
    "errors"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/blog-platform/internal/config"
    "github.com/iliyamo/blog-platform/internal/middleware"
    "github.com/iliyamo/blog-platform/internal/service"
    "github.com/iliyamo/blog-platform/internal/utils"
)

// AuthHandler bundles dependencies for the public account endpoints.
type AuthHandler struct {
    Cfg     config.Config
    Auth    *service.AuthService
    Tokens  *utils.TokenService
    Revoker middleware.Revoker
}

func NewAuthHandler(cfg config.Config, a *service.AuthService, t *utils.TokenService, r middleware.Revoker) *AuthHandler {
    return &AuthHandler{Cfg: cfg, Auth: a, Tokens: t, Revoker: r}
}

const passwordTooLong = "Password must be at most 72 bytes"

// ----- DTOs -----

type signupReq struct {
    Name     string `json:"name" validate:"required,max=20"`
    Email    string `json:"email" validate:"required,email"`
    Password string `json:"password" validate:"required"`
}
type signinReq struct {
    Email    string `json:"email" validate:"required"`
    Password string `json:"password" validate:"required"`
}
type resetRequestReq struct {
    Email string `json:"email" validate:"required"`
}
type resetPasswordReq struct {
    Password string `json:"password" validate:"required"`
}

// setSessionCookie hands the token to browsers as an HTTP-only cookie
// living as long as the token itself.
func (h *AuthHandler) setSessionCookie(c echo.Context, tok utils.Token) {
    c.SetCookie(&http.Cookie{
        Name:     middleware.CookieName,
        Value:    tok.Raw,
        Path:     "/",
        MaxAge:   int(h.Tokens.TTL() / time.Second),
        Expires:  tok.Exp,
        HttpOnly: true,
        Secure:   h.Cfg.IsProd(),
        SameSite: http.SameSiteStrictMode,
    })
}

func (h *AuthHandler) clearSessionCookie(c echo.Context) {
    c.SetCookie(&http.Cookie{
        Name:     middleware.CookieName,
        Value:    "",
        Path:     "/",
        MaxAge:   -1,
        Expires:  time.Unix(0, 0),
        HttpOnly: true,
        Secure:   h.Cfg.IsProd(),
        SameSite: http.SameSiteStrictMode,
    })
}

// Signup registers an unverified account and emails the verification link.
func (h *AuthHandler) Signup(c echo.Context) error {
    var req signupReq
    if err := c.Bind(&req); err != nil {
        return msg(c, http.StatusBadRequest, "Invalid request body")
    }
    if err := c.Validate(&req); err != nil {
        if hasRequiredFailure(err) {
            return msg(c, http.StatusBadRequest, "All fields are required")
        }
        switch _, field := failedTag(err); field {
        case "Name":
            return msg(c, http.StatusBadRequest, "Name must be at most 20 characters")
        default:
            return msg(c, http.StatusBadRequest, "Invalid email address")
        }
    }

    ctx, cancel := dbCtx(c)
    defer cancel()

    _, err := h.Auth.Signup(ctx, service.SignupInput{Name: req.Name, Email: req.Email, Password: req.Password})
    switch {
    case err == nil:
        return msg(c, http.StatusCreated, "User registered. Please verify your email.")
    case errors.Is(err, service.ErrConflict):
        return msg(c, http.StatusConflict, "Email already exists")
    case errors.Is(err, service.ErrPasswordTooLong):
        return msg(c, http.StatusBadRequest, passwordTooLong)
    case errors.Is(err, service.ErrValidation):
        return msg(c, http.StatusBadRequest, "All fields are required")
    default:
        return internalError(c, err)
    }
}

// VerifyEmail consumes the token from an emailed verification link.
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
    ctx, cancel := dbCtx(c)
    defer cancel()

    if _, err := h.Auth.VerifyEmail(ctx, c.Param("token")); err != nil {
        if errors.Is(err, service.ErrNotFound) {
            return msg(c, http.StatusNotFound, "Invalid verification token")
        }
        return internalError(c, err)
    }
    return msg(c, http.StatusOK, "Email verified successfully!")
}

// Signin checks a local password, sets the session cookie and also returns
// the token for clients using the Authorization header.
func (h *AuthHandler) Signin(c echo.Context) error {
    var req signinReq
    if err := c.Bind(&req); err != nil {
        return msg(c, http.StatusBadRequest, "Invalid request body")
    }
    if err := c.Validate(&req); err != nil {
        return msg(c, http.StatusBadRequest, "Invalid credentials")
    }

    ctx, cancel := dbCtx(c)
    defer cancel()

    u, tok, err := h.Auth.Signin(ctx, req.Email, req.Password)
    switch {
    case errors.Is(err, service.ErrInvalidCredentials):
        return msg(c, http.StatusBadRequest, "Invalid credentials")
    case errors.Is(err, service.ErrUnverified):
        return msg(c, http.StatusBadRequest, "Please verify your email first")
    case err != nil:
        return internalError(c, err)
    }

    h.setSessionCookie(c, tok)
    return c.JSON(http.StatusOK, echo.Map{
        "message": "User Logged In Successfully",
        "userId":  u.ID,
        "token":   tok.Raw,
    })
}

// RequestPasswordReset emails a time-limited reset link.
func (h *AuthHandler) RequestPasswordReset(c echo.Context) error {
    var req resetRequestReq
    if err := c.Bind(&req); err != nil {
        return msg(c, http.StatusBadRequest, "Invalid request body")
    }
    if err := c.Validate(&req); err != nil {
        return msg(c, http.StatusBadRequest, "Email is required")
    }

    ctx, cancel := dbCtx(c)
    defer cancel()

    if err := h.Auth.RequestPasswordReset(ctx, req.Email); err != nil {
        if errors.Is(err, service.ErrNotFound) {
            return msg(c, http.StatusNotFound, "User not found")
        }
        return internalError(c, err)
    }
    return msg(c, http.StatusOK, "Password reset link sent to your email")
}

// ResetPassword sets a new password using the token from a reset link.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
    var req resetPasswordReq
    if err := c.Bind(&req); err != nil {
        return msg(c, http.StatusBadRequest, "Invalid request body")
    }
    if err := c.Validate(&req); err != nil {
        return msg(c, http.StatusBadRequest, "Password is required")
    }

    ctx, cancel := dbCtx(c)
    defer cancel()

    if _, err := h.Auth.ResetPassword(ctx, c.Param("token"), req.Password); err != nil {
        switch {
        case errors.Is(err, service.ErrNotFound):
            return msg(c, http.StatusNotFound, "Invalid or expired reset token")
        case errors.Is(err, service.ErrPasswordTooLong):
            return msg(c, http.StatusBadRequest, passwordTooLong)
        case errors.Is(err, service.ErrValidation):
            return msg(c, http.StatusBadRequest, "Password is required")
        default:
            return internalError(c, err)
        }
    }
    return msg(c, http.StatusOK, "Password updated successfully")
}

// CheckAuth reports whether the caller holds a live session.  Browsers are
// expected to send the cookie; the bearer header is accepted as well.
func (h *AuthHandler) CheckAuth(c echo.Context) error {
    raw, ok := middleware.CookieToken(c)
    if !ok {
        raw, ok = middleware.BearerToken(c)
    }
    if !ok {
        return msg(c, http.StatusUnauthorized, "Unauthorized: No token provided")
    }
    claims, err := middleware.Authenticate(c, h.Tokens, h.Revoker, raw)
    if err != nil {
        return msg(c, http.StatusUnauthorized, "Invalid Token")
    }
    return c.JSON(http.StatusOK, echo.Map{"message": "User is authenticated", "userId": claims.UserID})
}

// Logout revokes the presented token until it would have expired and clears
// the session cookie.  Calling it without a valid token still clears the
// cookie.
func (h *AuthHandler) Logout(c echo.Context) error {
    if raw, ok := middleware.TokenFromRequest(c); ok {
        if claims, err := h.Tokens.Verify(raw); err == nil && h.Revoker != nil {
            ctx, cancel := dbCtx(c)
            defer cancel()
            if err := h.Revoker.Revoke(ctx, claims.ID, claims.Exp); err != nil {
                return internalError(c, err)
            }
        }
    }
    h.clearSessionCookie(c)
    return msg(c, http.StatusOK, "Logged out successfully")
}
