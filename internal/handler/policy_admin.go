package handler

import (
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/hall-pass-service/internal/model"
    "github.com/iliyamo/hall-pass-service/internal/policy"
    "github.com/iliyamo/hall-pass-service/internal/repository"
)

// PolicyAdminHandler manages the rules the evaluator enforces: no-fly
// windows, encounter groups and location settings.  Routes using it
// sit behind the STAFF/ADMIN role middleware; destructive operations
// are registered admin-only in the router.
type PolicyAdminHandler struct {
    Windows   *repository.NoFlyRepo
    Groups    *repository.EncounterGroupRepo
    Locations *repository.LocationRepo
    Users     *repository.UserRepo
    Passes    *repository.PassRepo
}

// NewPolicyAdminHandler constructs a PolicyAdminHandler.
func NewPolicyAdminHandler(w *repository.NoFlyRepo, g *repository.EncounterGroupRepo, l *repository.LocationRepo, u *repository.UserRepo, p *repository.PassRepo) *PolicyAdminHandler {
    if w == nil || g == nil || l == nil || u == nil || p == nil {
        panic("nil repository passed to NewPolicyAdminHandler")
    }
    return &PolicyAdminHandler{Windows: w, Groups: g, Locations: l, Users: u, Passes: p}
}

// ----- no-fly windows -----

type createWindowReq struct {
    Name              string   `json:"name"`
    StartTime         string   `json:"start_time"` // "HH:MM"
    EndTime           string   `json:"end_time"`   // "HH:MM"
    DaysOfWeek        []int    `json:"days_of_week"`
    AffectedDivisions []string `json:"affected_divisions,omitempty"`
    AffectedGrades    []int    `json:"affected_grades,omitempty"`
    Description       *string  `json:"description,omitempty"`
}

// CreateWindow handles POST /v1/admin/no-fly-windows.
func (h *PolicyAdminHandler) CreateWindow(c echo.Context) error {
    adminID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var req createWindowReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    req.Name = strings.TrimSpace(req.Name)
    if req.Name == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
    }
    if !policy.ValidClock(req.StartTime) || !policy.ValidClock(req.EndTime) {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "start_time and end_time must be HH:MM"})
    }
    if len(req.DaysOfWeek) == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "days_of_week is required"})
    }
    for _, d := range req.DaysOfWeek {
        if d < 1 || d > 7 {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "days_of_week values must be 1 (Monday) through 7 (Sunday)"})
        }
    }
    w := &model.NoFlyWindow{
        Name:              req.Name,
        StartTime:         req.StartTime,
        EndTime:           req.EndTime,
        DaysOfWeek:        req.DaysOfWeek,
        AffectedDivisions: req.AffectedDivisions,
        AffectedGrades:    req.AffectedGrades,
        IsActive:          true,
        Description:       req.Description,
        CreatedBy:         adminID,
    }
    if err := h.Windows.Create(c.Request().Context(), w); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create window failed"})
    }
    return c.JSON(http.StatusCreated, w)
}

// ListWindows handles GET /v1/admin/no-fly-windows.  Pass
// ?active=true to hide deactivated windows.
func (h *PolicyAdminHandler) ListWindows(c echo.Context) error {
    activeOnly := c.QueryParam("active") == "true"
    windows, err := h.Windows.List(c.Request().Context(), activeOnly)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    return c.JSON(http.StatusOK, echo.Map{"windows": windows})
}

// DeactivateWindow handles DELETE /v1/admin/no-fly-windows/:id.
// Windows are never hard-deleted so historical denials stay explicable.
func (h *PolicyAdminHandler) DeactivateWindow(c echo.Context) error {
    id, err := pathID(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid window id"})
    }
    if err := h.Windows.Deactivate(c.Request().Context(), id); err != nil {
        if err == repository.ErrWindowNotFound {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "window not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    return c.NoContent(http.StatusNoContent)
}

// CheckWindows handles GET /v1/staff/no-fly-windows/check.  It reports
// which active windows apply at this moment; the front desk uses it to
// answer "why can't anyone request a pass right now".
func (h *PolicyAdminHandler) CheckWindows(c echo.Context) error {
    windows, err := h.Windows.ListActive(c.Request().Context())
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    now := time.Now().UTC()
    applying := make([]*model.NoFlyWindow, 0)
    for _, w := range windows {
        if policy.WindowInEffect(w, now) {
            applying = append(applying, w)
        }
    }
    return c.JSON(http.StatusOK, echo.Map{"in_effect": applying, "as_of": now})
}

// ----- encounter groups -----

type createGroupReq struct {
    Name       string     `json:"name"`
    Reason     string     `json:"reason"`
    StudentIDs []uint64   `json:"student_ids"`
    ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// CreateGroup handles POST /v1/staff/encounter-groups.  Every listed
// id must belong to a student account.
func (h *PolicyAdminHandler) CreateGroup(c echo.Context) error {
    staffID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var req createGroupReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    req.Name = strings.TrimSpace(req.Name)
    if req.Name == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
    }
    if len(req.StudentIDs) < 2 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "at least two student_ids are required"})
    }
    ok, err := h.Users.AllStudentsExist(c.Request().Context(), req.StudentIDs)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "student_ids must all reference student accounts"})
    }
    g := &model.EncounterGroup{
        Name:       req.Name,
        Reason:     strings.TrimSpace(req.Reason),
        IsActive:   true,
        ExpiresAt:  req.ExpiresAt,
        CreatedBy:  staffID,
        StudentIDs: req.StudentIDs,
    }
    if err := h.Groups.Create(c.Request().Context(), g); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create group failed"})
    }
    return c.JSON(http.StatusCreated, g)
}

// ListGroups handles GET /v1/staff/encounter-groups.
func (h *PolicyAdminHandler) ListGroups(c echo.Context) error {
    activeOnly := c.QueryParam("active") == "true"
    groups, err := h.Groups.List(c.Request().Context(), activeOnly)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    return c.JSON(http.StatusOK, echo.Map{"groups": groups})
}

// DeactivateGroup handles DELETE /v1/staff/encounter-groups/:id.
func (h *PolicyAdminHandler) DeactivateGroup(c echo.Context) error {
    id, err := pathID(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid group id"})
    }
    if err := h.Groups.Deactivate(c.Request().Context(), id); err != nil {
        if err == repository.ErrGroupNotFound {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "group not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    return c.NoContent(http.StatusNoContent)
}

// CheckEncounter handles GET /v1/staff/encounter-groups/check/:id.
// It answers "would this student's next request hit an encounter
// conflict right now": the active groups containing them, and whether
// another member of any of those groups currently holds an open pass.
func (h *PolicyAdminHandler) CheckEncounter(c echo.Context) error {
    studentID, err := pathID(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid student id"})
    }
    ctx := c.Request().Context()
    groups, err := h.Groups.ListActiveForStudent(ctx, studentID, time.Now().UTC())
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    others := make([]uint64, 0)
    for _, g := range groups {
        for _, id := range g.StudentIDs {
            if id != studentID {
                others = append(others, id)
            }
        }
    }
    holders := []uint64{}
    if len(others) > 0 {
        holders, err = h.Passes.OpenPassHolders(ctx, others)
        if err != nil {
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
        }
    }
    return c.JSON(http.StatusOK, echo.Map{
        "student_id":       studentID,
        "groups":           groups,
        "blocked":          len(holders) > 0,
        "blocking_members": holders,
    })
}

// ----- locations -----

type updateLocationReq struct {
    Name                    *string `json:"name,omitempty"`
    Type                    *string `json:"type,omitempty"`
    MaxCapacity             *int    `json:"max_capacity,omitempty"`
    RequiresApproval        *bool   `json:"requires_approval,omitempty"`
    DefaultTimeLimitMinutes *int    `json:"default_time_limit_minutes,omitempty"`
    IsActive                *bool   `json:"is_active,omitempty"`
}

// UpdateLocation handles PATCH /v1/admin/locations/:id.  Only the
// provided fields change; capacity and approval rules take effect on
// the next admission, never retroactively.
func (h *PolicyAdminHandler) UpdateLocation(c echo.Context) error {
    id, err := pathID(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid location id"})
    }
    var req updateLocationReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if req.MaxCapacity != nil && *req.MaxCapacity < 1 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "max_capacity must be positive"})
    }
    err = h.Locations.Update(c.Request().Context(), id, repository.LocationUpdate{
        Name:                    req.Name,
        Type:                    req.Type,
        MaxCapacity:             req.MaxCapacity,
        RequiresApproval:        req.RequiresApproval,
        DefaultTimeLimitMinutes: req.DefaultTimeLimitMinutes,
        IsActive:                req.IsActive,
    })
    if err != nil {
        if err == repository.ErrLocationNotFound {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "location not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    loc, err := h.Locations.GetByID(c.Request().Context(), id)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    return c.JSON(http.StatusOK, loc)
}
