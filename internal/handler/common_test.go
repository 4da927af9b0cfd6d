package handler

import (
    "encoding/json"
    "errors"
    "net/http"
    "net/http/httptest"
    "testing"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/hall-pass-service/internal/engine"
    "github.com/iliyamo/hall-pass-service/internal/policy"
    "github.com/iliyamo/hall-pass-service/internal/repository"
)

func newTestContext(t *testing.T) (echo.Context, *httptest.ResponseRecorder) {
    t.Helper()
    e := echo.New()
    req := httptest.NewRequest(http.MethodGet, "/", nil)
    rec := httptest.NewRecorder()
    return e.NewContext(req, rec), rec
}

func TestHealth(t *testing.T) {
    c, rec := newTestContext(t)
    if err := Health(c); err != nil {
        t.Fatalf("health: %v", err)
    }
    if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
        t.Fatalf("unexpected response: %d %q", rec.Code, rec.Body.String())
    }
}

func TestWriteEngineErrorStatusCodes(t *testing.T) {
    cases := []struct {
        name string
        err  error
        want int
    }{
        {"invalid request", engine.ErrInvalidRequest, http.StatusBadRequest},
        {"invalid transition", engine.ErrInvalidTransition, http.StatusConflict},
        {"awaiting approval", engine.ErrAwaitingApproval, http.StatusConflict},
        {"not found", repository.ErrPassNotFound, http.StatusNotFound},
        {"forbidden", repository.ErrForbidden, http.StatusForbidden},
        {"store unavailable", engine.ErrStoreUnavailable, http.StatusServiceUnavailable},
        {"unknown", errors.New("boom"), http.StatusInternalServerError},
        {"policy denial", &policy.Denial{Reason: policy.ReasonQuota, Detail: "limit reached"}, http.StatusConflict},
        {"checks unavailable", &policy.Denial{Reason: policy.ReasonUnavailable}, http.StatusServiceUnavailable},
    }
    for _, tc := range cases {
        c, rec := newTestContext(t)
        if err := writeEngineError(c, tc.err); err != nil {
            t.Fatalf("%s: %v", tc.name, err)
        }
        if rec.Code != tc.want {
            t.Errorf("%s: status %d, want %d", tc.name, rec.Code, tc.want)
        }
    }
}

func TestWriteEngineErrorDenialBody(t *testing.T) {
    c, rec := newTestContext(t)
    denial := &policy.Denial{Reason: policy.ReasonNoFly, Detail: "passes are paused until 09:45"}
    if err := writeEngineError(c, denial); err != nil {
        t.Fatalf("write: %v", err)
    }
    var body map[string]string
    if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
        t.Fatalf("unmarshal: %v", err)
    }
    if body["reason"] != string(policy.ReasonNoFly) || body["detail"] != denial.Detail {
        t.Fatalf("unexpected body: %v", body)
    }
}

func TestGetUserIDAcceptsClaimRepresentations(t *testing.T) {
    cases := []struct {
        value interface{}
        want  uint64
    }{
        {uint64(7), 7},
        {int(8), 8},
        {int64(9), 9},
        {float64(10), 10},
        {"11", 11},
    }
    for _, tc := range cases {
        c, _ := newTestContext(t)
        c.Set("user_id", tc.value)
        got, err := getUserID(c)
        if err != nil || got != tc.want {
            t.Errorf("user_id %v: got %d, %v", tc.value, got, err)
        }
    }

    c, _ := newTestContext(t)
    c.Set("user_id", "not-a-number")
    if _, err := getUserID(c); err == nil {
        t.Errorf("expected error for malformed user_id")
    }
}

func TestPathID(t *testing.T) {
    c, _ := newTestContext(t)
    c.SetParamNames("id")
    c.SetParamValues("42")
    if id, err := pathID(c); err != nil || id != 42 {
        t.Fatalf("pathID: got %d, %v", id, err)
    }

    c, _ = newTestContext(t)
    c.SetParamNames("id")
    c.SetParamValues("0")
    if _, err := pathID(c); err == nil {
        t.Fatalf("zero id must be rejected")
    }
}
