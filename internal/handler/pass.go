package handler

import (
    "context"
    "net/http"
    "strconv"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/hall-pass-service/internal/engine"
    "github.com/iliyamo/hall-pass-service/internal/model"
    "github.com/iliyamo/hall-pass-service/internal/repository"
)

// PassEngine is the slice of the lifecycle engine the student surface
// needs.  *engine.Engine satisfies it; tests substitute a fake.
type PassEngine interface {
    Request(ctx context.Context, req engine.PassRequest) (*model.Pass, error)
    OpenPass(ctx context.Context, studentID uint64) (*model.Pass, error)
    Depart(ctx context.Context, passID, studentID uint64) (*model.Pass, error)
    Complete(ctx context.Context, passID, actorID uint64, actorRole string) (*model.Pass, error)
    Cancel(ctx context.Context, passID, actorID uint64, actorRole string) (*model.Pass, error)
}

// PassHandler exposes the student-facing pass lifecycle.  All methods
// assume JWT authentication and the STUDENT role check have already
// been performed by middleware; ownership of individual passes is
// enforced by the engine.
type PassHandler struct {
    Engine PassEngine
    Passes *repository.PassRepo
}

// NewPassHandler constructs a PassHandler.  Both dependencies must be non-nil.
func NewPassHandler(eng PassEngine, passes *repository.PassRepo) *PassHandler {
    if eng == nil || passes == nil {
        panic("nil dependency passed to NewPassHandler")
    }
    return &PassHandler{Engine: eng, Passes: passes}
}

type requestPassReq struct {
    OriginID         uint64  `json:"origin_id"`
    DestinationID    uint64  `json:"destination_id"`
    TimeLimitMinutes int     `json:"time_limit_minutes"` // 0 uses the destination default
    Notes            *string `json:"notes,omitempty"`
}

// Request handles POST /v1/passes.  On success the created pass is
// returned with 201; a policy denial returns 409 with the reason.
// Destinations that do not require approval activate immediately.
func (h *PassHandler) Request(c echo.Context) error {
    studentID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var req requestPassReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if req.OriginID == 0 || req.DestinationID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "origin_id and destination_id are required"})
    }
    if req.OriginID == req.DestinationID {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "origin and destination must differ"})
    }
    if req.Notes != nil {
        trimmed := strings.TrimSpace(*req.Notes)
        if trimmed == "" {
            req.Notes = nil
        } else {
            req.Notes = &trimmed
        }
    }

    p, err := h.Engine.Request(c.Request().Context(), engine.PassRequest{
        StudentID:        studentID,
        OriginID:         req.OriginID,
        DestinationID:    req.DestinationID,
        TimeLimitMinutes: req.TimeLimitMinutes,
        Notes:            req.Notes,
    })
    if err != nil {
        return writeEngineError(c, err)
    }
    return c.JSON(http.StatusCreated, p)
}

// Active handles GET /v1/passes/active.  It returns the student's
// current open pass or 404 when none exists.  Stale pending passes are
// expired on the way out, so the response always reflects policy.
func (h *PassHandler) Active(c echo.Context) error {
    studentID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    p, err := h.Engine.OpenPass(c.Request().Context(), studentID)
    if err != nil {
        return writeEngineError(c, err)
    }
    if p == nil || p.Status.IsTerminal() {
        return c.JSON(http.StatusNotFound, echo.Map{"error": "no open pass"})
    }
    return c.JSON(http.StatusOK, p)
}

// History handles GET /v1/passes.  It lists the student's own passes,
// newest first.  The optional limit query parameter caps the result;
// it defaults to 50.
func (h *PassHandler) History(c echo.Context) error {
    studentID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    limit := 50
    if s := c.QueryParam("limit"); s != "" {
        if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 500 {
            limit = n
        }
    }
    passes, err := h.Passes.ListByStudent(c.Request().Context(), studentID, limit)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    return c.JSON(http.StatusOK, echo.Map{"passes": passes})
}

// Depart handles POST /v1/passes/:id/depart.  The student confirms
// they are leaving; an approved pass becomes active and the countdown
// starts.
func (h *PassHandler) Depart(c echo.Context) error {
    studentID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    passID, err := pathID(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid pass id"})
    }
    p, err := h.Engine.Depart(c.Request().Context(), passID, studentID)
    if err != nil {
        return writeEngineError(c, err)
    }
    return c.JSON(http.StatusOK, p)
}

// Return handles POST /v1/passes/:id/return.  The student marks
// themself as back; an active pass becomes completed.
func (h *PassHandler) Return(c echo.Context) error {
    studentID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    passID, err := pathID(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid pass id"})
    }
    p, err := h.Engine.Complete(c.Request().Context(), passID, studentID, model.RoleStudent)
    if err != nil {
        return writeEngineError(c, err)
    }
    return c.JSON(http.StatusOK, p)
}

// Cancel handles POST /v1/passes/:id/cancel.  Only pending and
// approved passes can be cancelled, and only by their owner.
func (h *PassHandler) Cancel(c echo.Context) error {
    studentID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    passID, err := pathID(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid pass id"})
    }
    p, err := h.Engine.Cancel(c.Request().Context(), passID, studentID, model.RoleStudent)
    if err != nil {
        return writeEngineError(c, err)
    }
    return c.JSON(http.StatusOK, p)
}
