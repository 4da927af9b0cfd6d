package handler

import (
    "context"
    "net/http"
    "strconv"
    "time"

    "github.com/coder/websocket"
    "github.com/coder/websocket/wsjson"
    "github.com/golang-jwt/jwt/v5"
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/hall-pass-service/internal/model"
    "github.com/iliyamo/hall-pass-service/internal/realtime"
)

// RealtimeHandler upgrades clients to a websocket and streams pass
// events from the hub.  Browsers cannot set an Authorization header
// on a websocket handshake, so the access token travels in the token
// query parameter instead and is verified here rather than by the
// JWT middleware.
//
// Delivery is best effort: a slow client's events are dropped rather
// than buffered without bound, and there is no replay after a
// reconnect.  Clients resynchronize through the monitor endpoints.
type RealtimeHandler struct {
    Hub       *realtime.Hub
    JWTSecret string
}

// NewRealtimeHandler constructs a RealtimeHandler.
func NewRealtimeHandler(hub *realtime.Hub, secret string) *RealtimeHandler {
    if hub == nil {
        panic("nil hub passed to NewRealtimeHandler")
    }
    return &RealtimeHandler{Hub: hub, JWTSecret: secret}
}

// Stream handles GET /v1/ws.  Students are joined to their own room
// and the emergency channel; staff and admins additionally watch the
// hall monitor room, and admins the admin room.
func (h *RealtimeHandler) Stream(c echo.Context) error {
    userID, role, ok := h.identify(c.QueryParam("token"))
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
    }

    conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{})
    if err != nil {
        return nil // Accept already wrote the handshake failure
    }

    sess := realtime.NewSession(userID, role, 64)
    h.Hub.Register(sess)
    defer h.Hub.Unregister(sess)
    h.join(sess, userID, role)

    ctx, cancel := context.WithCancel(c.Request().Context())
    defer cancel()

    // Drain client frames so pings and close frames are processed;
    // inbound payloads carry no meaning on this endpoint.
    readErr := make(chan error, 1)
    go func() {
        for {
            if _, _, err := conn.Read(ctx); err != nil {
                readErr <- err
                return
            }
        }
    }()

    // Ping on an interval so half-open connections are detected and
    // their sessions pruned instead of lingering in the registry.
    heartbeat := time.NewTicker(30 * time.Second)
    defer heartbeat.Stop()

    for {
        select {
        case <-ctx.Done():
            _ = conn.Close(websocket.StatusNormalClosure, "closed")
            return nil
        case <-heartbeat.C:
            pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
            err := conn.Ping(pingCtx)
            cancelPing()
            if err != nil {
                _ = conn.Close(websocket.StatusNormalClosure, "ping_failed")
                return nil
            }
        case <-readErr:
            _ = conn.Close(websocket.StatusNormalClosure, "closed")
            return nil
        case <-sess.Done():
            _ = conn.Close(websocket.StatusNormalClosure, "closed")
            return nil
        case ev := <-sess.Events():
            writeCtx, cancelWrite := context.WithTimeout(ctx, 5*time.Second)
            err := wsjson.Write(writeCtx, conn, ev)
            cancelWrite()
            if err != nil {
                _ = conn.Close(websocket.StatusNormalClosure, "write_failed")
                return nil
            }
        }
    }
}

// join subscribes the session to the rooms its role is entitled to.
func (h *RealtimeHandler) join(sess *realtime.Session, userID uint64, role string) {
    h.Hub.Join(sess, realtime.RoomEmergency)
    switch role {
    case model.RoleAdmin:
        h.Hub.Join(sess, realtime.RoomAdmin)
        h.Hub.Join(sess, realtime.RoomHallMonitor)
    case model.RoleStaff:
        h.Hub.Join(sess, realtime.RoomHallMonitor)
    default:
        h.Hub.Join(sess, realtime.RoomStudent(userID))
    }
}

// identify validates the access token and extracts identity claims.
func (h *RealtimeHandler) identify(raw string) (uint64, string, bool) {
    if raw == "" {
        return 0, "", false
    }
    tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, echo.ErrUnauthorized
        }
        return []byte(h.JWTSecret), nil
    })
    if err != nil || !tok.Valid {
        return 0, "", false
    }
    claims, ok := tok.Claims.(jwt.MapClaims)
    if !ok {
        return 0, "", false
    }
    role, _ := claims["role"].(string)
    switch sub := claims["sub"].(type) {
    case float64:
        return uint64(sub), role, true
    case string:
        if n, err := strconv.ParseUint(sub, 10, 64); err == nil {
            return n, role, true
        }
    }
    return 0, "", false
}
