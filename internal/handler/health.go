package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"
)

// Health answers GET /health with a plain "ok".  Load balancers and the
// school's monitoring poll it to confirm the pass service is up; it is
// registered outside authentication and the rate limiter.
func Health(c echo.Context) error {
    return c.String(http.StatusOK, "ok")
}
