package router

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/hall-pass-service/internal/handler"
    "github.com/iliyamo/hall-pass-service/internal/middleware"
)

// RegisterAdmin registers policy administration and reporting under
// /v1/admin.  All routes require the ADMIN role.
func RegisterAdmin(e *echo.Echo, pol *handler.PolicyAdminHandler, loc *handler.LocationHandler, exp *handler.ExportHandler, jwtSecret string) {
    g := e.Group(
        "/v1/admin",
        middleware.JWTAuth(jwtSecret),
        middleware.RequireRole("ADMIN"),
    )
    // No-fly window management.
    g.POST("/no-fly-windows", pol.CreateWindow)
    g.GET("/no-fly-windows", pol.ListWindows)
    g.DELETE("/no-fly-windows/:id", pol.DeactivateWindow)

    // Location management.
    g.POST("/locations", loc.Create)
    g.PATCH("/locations/:id", pol.UpdateLocation)

    // Pass history workbook.
    g.GET("/passes/export", exp.History)
}

// RegisterRealtime registers the websocket endpoint.  The handler
// authenticates via the token query parameter itself, so no JWT
// middleware wraps it.
func RegisterRealtime(e *echo.Echo, rt *handler.RealtimeHandler) {
    e.GET("/v1/ws", rt.Stream)
}
