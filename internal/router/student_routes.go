package router

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/hall-pass-service/internal/handler"
    "github.com/iliyamo/hall-pass-service/internal/middleware"
)

// RegisterStudent registers the student-facing pass lifecycle under
// /v1.  All routes require a valid JWT and the STUDENT role.  The
// engine enforces ownership of individual passes, so a student can
// only act on their own.
func RegisterStudent(e *echo.Echo, h *handler.PassHandler, loc *handler.LocationHandler, jwtSecret string) {
    g := e.Group(
        "/v1",
        middleware.JWTAuth(jwtSecret),
        middleware.RequireRole("STUDENT"),
    )
    g.POST("/passes", h.Request)
    g.GET("/passes", h.History)
    g.GET("/passes/active", h.Active)
    g.POST("/passes/:id/depart", h.Depart)
    g.POST("/passes/:id/return", h.Return)
    g.POST("/passes/:id/cancel", h.Cancel)

    // Destination picker.  Staff and admins get the same listing on
    // their own groups.
    g.GET("/locations", loc.List)
}
