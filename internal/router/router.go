package router // package router defines how HTTP routes are registered for the API

import (
    "github.com/labstack/echo/v4" // import the Echo web framework to handle routing

    "github.com/iliyamo/hall-pass-service/internal/handler"    // import the handlers that implement business logic
    "github.com/iliyamo/hall-pass-service/internal/middleware" // import middleware for JWT authentication and role enforcement
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
    // Load balancers and monitoring systems use this endpoint to verify
    // that the service is up and running.
    e.GET("/healthz", handler.Health)
}

// RegisterAuth registers all authentication‑related routes and applies the
// necessary middleware.  Unauthenticated operations live under /v1/auth,
// while protected endpoints live under /v1.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
    // Operations that do not require an existing session: register, login
    // and the two refresh flavors.
    g := e.Group("/v1/auth")
    g.POST("/register", a.Register)
    g.POST("/login", a.Login)
    // Rotating refresh: exchanges the refresh token for a new pair.
    g.POST("/refresh", a.Refresh)
    // Non-rotating refresh: issues a new access token only.
    g.POST("/refresh-access", a.RefreshAccess)
    // Logout accepts a refresh token in the body or a bearer token in the
    // Authorization header; it does not require the JWT middleware.
    g.POST("/logout", a.Logout)

    // Protected identity endpoint.  Any authenticated role may call it.
    auth := e.Group("/v1", middleware.JWTAuth(jwtSecret))
    auth.GET("/me", a.Me)

    // Top-level alias so clients can call either /v1/auth/logout or
    // /v1/logout with a valid refresh token in the body.
    e.POST("/v1/logout", a.Logout)
}
