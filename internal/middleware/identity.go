package middleware

// identity.go provides helpers shared across middleware files.  JWTAuth
// stores the token's raw sub claim under the "user_id" context key without
// normalizing its type: tokens parsed off the wire carry JSON numbers
// (float64), while tests and in-process callers tend to set uint64 or
// string values directly.

import (
    "strconv"

    "github.com/labstack/echo/v4"
)

// userID renders the authenticated caller's identifier as a string, or
// "guest" when the request carries no usable identity.
func userID(c echo.Context) string {
    switch v := c.Get("user_id").(type) {
    case string:
        if v != "" {
            return v
        }
    case float64:
        if v > 0 {
            return strconv.FormatUint(uint64(v), 10)
        }
    case uint64:
        if v > 0 {
            return strconv.FormatUint(v, 10)
        }
    case int:
        if v > 0 {
            return strconv.Itoa(v)
        }
    case int64:
        if v > 0 {
            return strconv.FormatInt(v, 10)
        }
    }
    return "guest"
}
