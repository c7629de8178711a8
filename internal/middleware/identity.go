package middleware

// identity.go holds the context key set by JWTAuth and the helpers that
// read it back.

import (
    "strconv"

    "github.com/labstack/echo/v4"
)

const ctxUserID = "user_id"

// UserID returns the authenticated user id attached by JWTAuth.
func UserID(c echo.Context) (uint64, bool) {
    id, ok := c.Get(ctxUserID).(uint64)
    return id, ok && id != 0
}

// currentUserID is the string form used in rate limit keys.  It is empty
// until JWTAuth has run.
func currentUserID(c echo.Context) string {
    if id, ok := UserID(c); ok {
        return strconv.FormatUint(id, 10)
    }
    return ""
}
