package handler

import (
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/hall-pass-service/internal/model"
    "github.com/iliyamo/hall-pass-service/internal/repository"
)

// LocationHandler serves location lookup and creation.  Listing is
// available to every authenticated user since students pick a
// destination from it; creation is admin-only via the router.
type LocationHandler struct {
    Locations *repository.LocationRepo
}

// NewLocationHandler constructs a LocationHandler.
func NewLocationHandler(l *repository.LocationRepo) *LocationHandler {
    if l == nil {
        panic("nil repository passed to NewLocationHandler")
    }
    return &LocationHandler{Locations: l}
}

// List handles GET /v1/locations.  Only active locations are
// returned; deactivated ones stay in the database for history.
func (h *LocationHandler) List(c echo.Context) error {
    locations, err := h.Locations.ListActive(c.Request().Context())
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    return c.JSON(http.StatusOK, echo.Map{"locations": locations})
}

type createLocationReq struct {
    Name                    string  `json:"name"`
    Building                *string `json:"building,omitempty"`
    RoomNumber              *string `json:"room_number,omitempty"`
    Type                    string  `json:"type"`
    MaxCapacity             *int    `json:"max_capacity,omitempty"`
    RequiresApproval        *bool   `json:"requires_approval,omitempty"`
    DefaultTimeLimitMinutes int     `json:"default_time_limit_minutes"`
}

// Create handles POST /v1/admin/locations.
func (h *LocationHandler) Create(c echo.Context) error {
    var req createLocationReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    req.Name = strings.TrimSpace(req.Name)
    if req.Name == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
    }
    if req.MaxCapacity != nil && *req.MaxCapacity < 1 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "max_capacity must be positive"})
    }
    if req.DefaultTimeLimitMinutes < 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "default_time_limit_minutes must not be negative"})
    }
    locType := strings.TrimSpace(req.Type)
    if locType == "" {
        locType = "classroom"
    }
    requiresApproval := true
    if req.RequiresApproval != nil {
        requiresApproval = *req.RequiresApproval
    }
    loc := &model.Location{
        Name:                    req.Name,
        Building:                req.Building,
        RoomNumber:              req.RoomNumber,
        Type:                    locType,
        MaxCapacity:             req.MaxCapacity,
        RequiresApproval:        requiresApproval,
        DefaultTimeLimitMinutes: req.DefaultTimeLimitMinutes,
        IsActive:                true,
    }
    if err := h.Locations.Create(c.Request().Context(), loc); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create location failed"})
    }
    return c.JSON(http.StatusCreated, loc)
}
