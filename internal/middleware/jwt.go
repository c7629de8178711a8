package middleware // middleware provides reusable HTTP middleware functions

import (
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/blog-platform/internal/utils"
)

// CookieName is the browser channel for the session token.  API clients
// send the same token as "Authorization: Bearer <token>".
const CookieName = "token"

// BearerToken returns the token carried in the Authorization header.
func BearerToken(c echo.Context) (string, bool) {
    auth := c.Request().Header.Get("Authorization")
    if !strings.HasPrefix(auth, "Bearer ") {
        return "", false
    }
    raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
    return raw, raw != ""
}

// CookieToken returns the token carried in the session cookie.
func CookieToken(c echo.Context) (string, bool) {
    ck, err := c.Cookie(CookieName)
    if err != nil || ck.Value == "" {
        return "", false
    }
    return ck.Value, true
}

// TokenFromRequest reads the bearer header first and falls back to the
// session cookie.
func TokenFromRequest(c echo.Context) (string, bool) {
    if raw, ok := BearerToken(c); ok {
        return raw, true
    }
    return CookieToken(c)
}

// Authenticate verifies raw and checks it against the revocation set.  A
// failing revocation lookup rejects the token.
func Authenticate(c echo.Context, tokens *utils.TokenService, revoked Revoker, raw string) (utils.Claims, error) {
    claims, err := tokens.Verify(raw)
    if err != nil {
        return utils.Claims{}, err
    }
    if revoked != nil {
        hit, err := revoked.IsRevoked(c.Request().Context(), claims.ID)
        if err != nil {
            c.Logger().Errorf("revocation lookup failed: %v", err)
            return utils.Claims{}, utils.ErrInvalidToken
        }
        if hit {
            return utils.Claims{}, utils.ErrInvalidToken
        }
    }
    return claims, nil
}

// JWTAuth returns an Echo middleware that validates the session token and
// injects the user id into the request context.  Handlers read it with
// UserID.
func JWTAuth(tokens *utils.TokenService, revoked Revoker) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            raw, ok := TokenFromRequest(c)
            if !ok {
                return c.JSON(http.StatusUnauthorized, echo.Map{"message": "No token provided or invalid format."})
            }
            claims, err := Authenticate(c, tokens, revoked, raw)
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"message": "Invalid token"})
            }
            c.Set(ctxUserID, claims.UserID)
            return next(c)
        }
    }
}
