package middleware

import (
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/hall-pass-service/internal/config"
)

func newContext(t *testing.T, method, target string) echo.Context {
    t.Helper()
    e := echo.New()
    req := httptest.NewRequest(method, target, nil)
    rec := httptest.NewRecorder()
    return e.NewContext(req, rec)
}

func TestUserIDReadsClaimRepresentations(t *testing.T) {
    cases := []struct {
        name  string
        value interface{}
        want  string
    }{
        {"json number", float64(42), "42"},
        {"uint64", uint64(7), "7"},
        {"int", 9, "9"},
        {"int64", int64(11), "11"},
        {"string", "15", "15"},
        {"missing", nil, "guest"},
        {"empty string", "", "guest"},
        {"zero", float64(0), "guest"},
    }
    for _, tc := range cases {
        c := newContext(t, http.MethodGet, "/")
        if tc.value != nil {
            c.Set("user_id", tc.value)
        }
        if got := userID(c); got != tc.want {
            t.Errorf("%s: userID = %q, want %q", tc.name, got, tc.want)
        }
    }
}

func TestRateKeyIsolatesAuthenticatedCallers(t *testing.T) {
    cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: "user_route"}

    c := newContext(t, http.MethodPost, "/v1/passes")
    c.Set("user_id", float64(42))
    key := buildRateKey(cfg, c)
    if !strings.Contains(key, "user:42") {
        t.Fatalf("key %q does not isolate the caller", key)
    }

    anon := newContext(t, http.MethodPost, "/v1/passes")
    anonKey := buildRateKey(cfg, anon)
    if !strings.Contains(anonKey, "user:anon") {
        t.Fatalf("unauthenticated key %q must use the shared anon bucket", anonKey)
    }
    if key == anonKey {
        t.Fatal("authenticated and anonymous callers share a bucket")
    }
}

func TestCacheKeyStrategies(t *testing.T) {
    cfg := config.CacheConfig{Prefix: "cache", KeyStrategy: "route_query"}

    a := newContext(t, http.MethodGet, "/v1/locations?active=true")
    b := newContext(t, http.MethodGet, "/v1/locations?active=true")
    if cacheKeyFrom(cfg, a) != cacheKeyFrom(cfg, b) {
        t.Fatal("identical requests must map to the same key")
    }

    other := newContext(t, http.MethodGet, "/v1/locations?active=false")
    if cacheKeyFrom(cfg, a) == cacheKeyFrom(cfg, other) {
        t.Fatal("different queries must map to different keys")
    }

    routeOnly := config.CacheConfig{Prefix: "cache", KeyStrategy: "route"}
    if cacheKeyFrom(routeOnly, a) != cacheKeyFrom(routeOnly, other) {
        t.Fatal("route strategy must ignore the query string")
    }
}

func TestCachePayloadRoundTrip(t *testing.T) {
    hdr := http.Header{"Content-Type": []string{"application/json"}}
    body := []byte(`{"locations":[]}`)
    payload, err := encodePayload(http.StatusOK, hdr, body)
    if err != nil {
        t.Fatalf("encode: %v", err)
    }
    status, gotHdr, gotBody, ok := decodePayload(payload)
    if !ok || status != http.StatusOK {
        t.Fatalf("decode failed: ok=%v status=%d", ok, status)
    }
    if gotHdr.Get("Content-Type") != "application/json" {
        t.Fatalf("header lost in round trip: %v", gotHdr)
    }
    if string(gotBody) != string(body) {
        t.Fatalf("body mismatch: %q", gotBody)
    }

    if _, _, _, ok := decodePayload([]byte("short")); ok {
        t.Fatal("truncated payload must be rejected")
    }
}

func TestDisabledMiddlewaresPassThrough(t *testing.T) {
    called := false
    next := func(c echo.Context) error { called = true; return nil }

    cacheMW := NewRedisCache(config.CacheConfig{Enabled: false}, nil)
    c := newContext(t, http.MethodGet, "/v1/locations")
    if err := cacheMW(next)(c); err != nil || !called {
        t.Fatalf("disabled cache must pass through: err=%v called=%v", err, called)
    }

    called = false
    rlMW := NewTokenBucket(config.RateLimitConfig{Enabled: true, Capacity: 1, RefillInterval: time.Second}, nil)
    c = newContext(t, http.MethodPost, "/v1/passes")
    if err := rlMW(next)(c); err != nil || !called {
        t.Fatalf("limiter without redis must pass through: err=%v called=%v", err, called)
    }
}
