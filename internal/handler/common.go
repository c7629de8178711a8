package handler // handler defines http handlers

import (
    "context"
    "errors"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/go-playground/validator/v10"
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/blog-platform/internal/middleware"
)

// dbTimeout bounds every store call made while serving a request.
const dbTimeout = 5 * time.Second

func dbCtx(c echo.Context) (context.Context, context.CancelFunc) {
    return context.WithTimeout(c.Request().Context(), dbTimeout)
}

// msg writes the {message} body every endpoint uses for non-data replies.
func msg(c echo.Context, status int, text string) error {
    return c.JSON(status, echo.Map{"message": text})
}

// internalError logs err and answers 500 without leaking details.
func internalError(c echo.Context, err error) error {
    c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
    return msg(c, http.StatusInternalServerError, "Internal Server Error")
}

// getUserID extracts the authenticated user id set by JWTAuth.
func getUserID(c echo.Context) (uint64, error) {
    if id, ok := middleware.UserID(c); ok {
        return id, nil
    }
    return 0, errors.New("invalid user_id in context")
}

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
    id, err := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
    return id, err == nil && id > 0
}

// RequestValidator plugs go-playground/validator into echo's c.Validate.
type RequestValidator struct {
    v *validator.Validate
}

func NewRequestValidator() *RequestValidator {
    return &RequestValidator{v: validator.New(validator.WithRequiredStructEnabled())}
}

func (rv *RequestValidator) Validate(i interface{}) error {
    return rv.v.Struct(i)
}

// failedTag returns the first failing rule and field of a validation error.
func failedTag(err error) (tag, field string) {
    var ve validator.ValidationErrors
    if errors.As(err, &ve) && len(ve) > 0 {
        return ve[0].Tag(), ve[0].Field()
    }
    return "", ""
}

// hasRequiredFailure reports whether any field failed the required rule.
func hasRequiredFailure(err error) bool {
    var ve validator.ValidationErrors
    if !errors.As(err, &ve) {
        return false
    }
    for _, fe := range ve {
        if fe.Tag() == "required" {
            return true
        }
    }
    return false
}
