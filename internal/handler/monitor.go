package handler

import (
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/hall-pass-service/internal/realtime"
    "github.com/iliyamo/hall-pass-service/internal/repository"
)

// MonitorHandler serves the hall monitor board: every active pass with
// its elapsed time and overtime flag, plus connection statistics.
// These endpoints are also the polling fallback for clients that lose
// their websocket; the board is always computed from the store, never
// from delivered events.
type MonitorHandler struct {
    Passes    *repository.PassRepo
    Locations *repository.LocationRepo
    Hub       *realtime.Hub
}

// NewMonitorHandler constructs a MonitorHandler.
func NewMonitorHandler(passes *repository.PassRepo, locations *repository.LocationRepo, hub *realtime.Hub) *MonitorHandler {
    if passes == nil || locations == nil || hub == nil {
        panic("nil dependency passed to NewMonitorHandler")
    }
    return &MonitorHandler{Passes: passes, Locations: locations, Hub: hub}
}

// boardRow augments a pass with the live timing the board displays.
type boardRow struct {
    *repository.PassDetail
    ElapsedSeconds   int  `json:"elapsed_seconds"`
    RemainingSeconds int  `json:"remaining_seconds"`
    Overtime         bool `json:"overtime"`
}

// Board handles GET /v1/monitor/passes.  It returns every active pass
// ordered by departure so the longest-out student is on top.
func (h *MonitorHandler) Board(c echo.Context) error {
    limit := 200
    if s := c.QueryParam("limit"); s != "" {
        if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 1000 {
            limit = n
        }
    }
    details, err := h.Passes.ListActiveDetailed(c.Request().Context(), limit)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    now := time.Now().UTC()
    rows := make([]boardRow, 0, len(details))
    for _, d := range details {
        elapsed := int(d.Elapsed(now).Seconds())
        remaining := d.TimeLimitMinutes*60 - elapsed
        if remaining < 0 {
            remaining = 0
        }
        rows = append(rows, boardRow{
            PassDetail:       d,
            ElapsedSeconds:   elapsed,
            RemainingSeconds: remaining,
            Overtime:         d.Overdue(now),
        })
    }
    return c.JSON(http.StatusOK, echo.Map{"passes": rows, "as_of": now})
}

// occupancyRow is one location's current load.
type occupancyRow struct {
    LocationID  uint64 `json:"location_id"`
    Name        string `json:"name"`
    Active      int    `json:"active"`
    MaxCapacity *int   `json:"max_capacity,omitempty"`
    Full        bool   `json:"full"`
}

// Occupancy handles GET /v1/staff/monitor/occupancy.  For every active
// location it reports how many students are currently headed there and
// whether the location is at capacity, so staff can see which
// destinations will start denying requests.
func (h *MonitorHandler) Occupancy(c echo.Context) error {
    ctx := c.Request().Context()
    locations, err := h.Locations.ListActive(ctx)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    counts, err := h.Passes.CountActiveByDestination(ctx)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    rows := make([]occupancyRow, 0, len(locations))
    for _, loc := range locations {
        active := counts[loc.ID]
        rows = append(rows, occupancyRow{
            LocationID:  loc.ID,
            Name:        loc.Name,
            Active:      active,
            MaxCapacity: loc.MaxCapacity,
            Full:        loc.MaxCapacity != nil && active >= *loc.MaxCapacity,
        })
    }
    return c.JSON(http.StatusOK, echo.Map{"locations": rows, "as_of": time.Now().UTC()})
}

// Stats handles GET /v1/monitor/stats.  It reports how many passes
// are currently out and who is watching.
func (h *MonitorHandler) Stats(c echo.Context) error {
    details, err := h.Passes.ListActiveDetailed(c.Request().Context(), 0)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    now := time.Now().UTC()
    overtime := 0
    for _, d := range details {
        if d.Overdue(now) {
            overtime++
        }
    }
    return c.JSON(http.StatusOK, echo.Map{
        "active_passes":   len(details),
        "overtime_passes": overtime,
        "sessions":        h.Hub.SessionCount(),
        "rooms":           h.Hub.Stats(),
        "as_of":           now,
    })
}
