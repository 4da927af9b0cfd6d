package handler

import (
    "errors"
    "net/http"
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/hall-pass-service/internal/engine"
    "github.com/iliyamo/hall-pass-service/internal/policy"
    "github.com/iliyamo/hall-pass-service/internal/repository"
)

// getUserID extracts the user_id from echo.Context and converts it to uint64.
// The JWT middleware stores claims without normalizing their numeric type, so
// every plausible representation is accepted.
func getUserID(c echo.Context) (uint64, error) {
    v := c.Get("user_id")
    switch t := v.(type) {
    case uint64:
        return t, nil
    case int:
        return uint64(t), nil
    case int64:
        return uint64(t), nil
    case float64:
        return uint64(t), nil
    case string:
        if n, err := strconv.ParseUint(t, 10, 64); err == nil {
            return n, nil
        }
    }
    return 0, errors.New("invalid user_id in context")
}

// getRole extracts the role claim stored by the JWT middleware.
func getRole(c echo.Context) string {
    if r, ok := c.Get("role").(string); ok {
        return r
    }
    return ""
}

// pathID parses a numeric :id path parameter.
func pathID(c echo.Context) (uint64, error) {
    id, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || id == 0 {
        return 0, errors.New("invalid id")
    }
    return id, nil
}

// writeEngineError maps engine and policy errors onto HTTP responses.
// Policy denials carry a machine-readable reason so clients can show
// the student why the pass was refused; the unavailable reason maps to
// 503 because retrying is the correct client behavior there.
func writeEngineError(c echo.Context, err error) error {
    var denial *policy.Denial
    if errors.As(err, &denial) {
        status := http.StatusConflict
        if denial.Reason == policy.ReasonUnavailable {
            status = http.StatusServiceUnavailable
        }
        return c.JSON(status, echo.Map{
            "error":  "pass denied",
            "reason": string(denial.Reason),
            "detail": denial.Detail,
        })
    }
    switch {
    case errors.Is(err, engine.ErrInvalidRequest):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid pass request"})
    case errors.Is(err, engine.ErrAwaitingApproval):
        return c.JSON(http.StatusConflict, echo.Map{"error": "pass is awaiting staff approval and cannot depart yet"})
    case errors.Is(err, engine.ErrInvalidTransition):
        return c.JSON(http.StatusConflict, echo.Map{"error": "pass is not in a state that allows this action"})
    case errors.Is(err, repository.ErrPassNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "pass not found"})
    case errors.Is(err, repository.ErrForbidden):
        return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
    case errors.Is(err, engine.ErrStoreUnavailable):
        return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "service temporarily unavailable"})
    default:
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
    }
}
