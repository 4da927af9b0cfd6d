package handler

import (
    "net/http"
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/hall-pass-service/internal/engine"
    "github.com/iliyamo/hall-pass-service/internal/repository"
)

// StaffPassHandler exposes the approval queue and staff overrides.
// Routes using it are wrapped in the STAFF/ADMIN role middleware.
type StaffPassHandler struct {
    Engine *engine.Engine
    Passes *repository.PassRepo
}

// NewStaffPassHandler constructs a StaffPassHandler.
func NewStaffPassHandler(eng *engine.Engine, passes *repository.PassRepo) *StaffPassHandler {
    if eng == nil || passes == nil {
        panic("nil dependency passed to NewStaffPassHandler")
    }
    return &StaffPassHandler{Engine: eng, Passes: passes}
}

// Pending handles GET /v1/staff/passes/pending.  It lists passes
// awaiting approval, oldest first, so the queue is worked in order.
func (h *StaffPassHandler) Pending(c echo.Context) error {
    limit := 100
    if s := c.QueryParam("limit"); s != "" {
        if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 500 {
            limit = n
        }
    }
    passes, err := h.Passes.ListPending(c.Request().Context(), limit)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    return c.JSON(http.StatusOK, echo.Map{"passes": passes})
}

// Approve handles POST /v1/staff/passes/:id/approve.  Exactly one of
// two concurrent approvals succeeds; the loser receives 409.
func (h *StaffPassHandler) Approve(c echo.Context) error {
    staffID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    passID, err := pathID(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid pass id"})
    }
    p, err := h.Engine.Approve(c.Request().Context(), passID, staffID)
    if err != nil {
        return writeEngineError(c, err)
    }
    return c.JSON(http.StatusOK, p)
}

// Deny handles POST /v1/staff/passes/:id/deny.  A denied request is a
// staff-initiated cancellation of a pending or approved pass.
func (h *StaffPassHandler) Deny(c echo.Context) error {
    staffID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    passID, err := pathID(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid pass id"})
    }
    p, err := h.Engine.Cancel(c.Request().Context(), passID, staffID, getRole(c))
    if err != nil {
        return writeEngineError(c, err)
    }
    return c.JSON(http.StatusOK, p)
}

// Return handles POST /v1/staff/passes/:id/return.  Staff close an
// active pass on the student's behalf, e.g. at the front desk.
func (h *StaffPassHandler) Return(c echo.Context) error {
    staffID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    passID, err := pathID(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid pass id"})
    }
    p, err := h.Engine.Complete(c.Request().Context(), passID, staffID, getRole(c))
    if err != nil {
        return writeEngineError(c, err)
    }
    return c.JSON(http.StatusOK, p)
}

// Expire handles POST /v1/staff/passes/:id/expire.  The override for
// students who never returned; the pass closes without a return mark.
func (h *StaffPassHandler) Expire(c echo.Context) error {
    staffID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    passID, err := pathID(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid pass id"})
    }
    p, err := h.Engine.ForceExpire(c.Request().Context(), passID, staffID)
    if err != nil {
        return writeEngineError(c, err)
    }
    return c.JSON(http.StatusOK, p)
}
