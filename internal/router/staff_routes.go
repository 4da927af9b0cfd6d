package router

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/hall-pass-service/internal/handler"
    "github.com/iliyamo/hall-pass-service/internal/middleware"
)

// RegisterStaff registers the approval queue, monitor board and
// policy tooling shared by staff and admins under /v1/staff.
func RegisterStaff(e *echo.Echo, passes *handler.StaffPassHandler, mon *handler.MonitorHandler, pol *handler.PolicyAdminHandler, loc *handler.LocationHandler, jwtSecret string) {
    g := e.Group(
        "/v1/staff",
        middleware.JWTAuth(jwtSecret),
        middleware.RequireRole("STAFF", "ADMIN"),
    )
    // Approval queue and overrides.
    g.GET("/passes/pending", passes.Pending)
    g.POST("/passes/:id/approve", passes.Approve)
    g.POST("/passes/:id/deny", passes.Deny)
    g.POST("/passes/:id/return", passes.Return)
    g.POST("/passes/:id/expire", passes.Expire)

    // Hall monitor board and connection statistics.  These double as
    // the polling fallback when a websocket drops.
    g.GET("/monitor/passes", mon.Board)
    g.GET("/monitor/occupancy", mon.Occupancy)
    g.GET("/monitor/stats", mon.Stats)

    // Encounter groups are staff-manageable; a counselor should not
    // need an admin to keep two students apart.
    g.POST("/encounter-groups", pol.CreateGroup)
    g.GET("/encounter-groups", pol.ListGroups)
    g.DELETE("/encounter-groups/:id", pol.DeactivateGroup)
    g.GET("/encounter-groups/check/:id", pol.CheckEncounter)

    // Which no-fly windows are in force right now.
    g.GET("/no-fly-windows/check", pol.CheckWindows)

    g.GET("/locations", loc.List)
}
