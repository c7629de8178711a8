package handler // declare the package name; contains HTTP handlers

import (
    "net/http"

    "github.com/labstack/echo/v4"
)

// Root answers the liveness probe at "/" with a JSON message.
func Root(c echo.Context) error {
    return msg(c, http.StatusOK, "Server is running and working")
}

// Health is a plain-text health check for load balancers.
func Health(c echo.Context) error {
    return c.String(http.StatusOK, "ok")
}

// NotFound is the catch-all for unknown routes.
func NotFound(c echo.Context) error {
    return msg(c, http.StatusNotFound, "Not Found Router")
}
