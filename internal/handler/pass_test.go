package handler

import (
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/hall-pass-service/internal/engine"
    "github.com/iliyamo/hall-pass-service/internal/model"
    "github.com/iliyamo/hall-pass-service/internal/policy"
)

// fakePassEngine records calls and returns a canned pass or error, so the
// HTTP surface can be exercised without a database.
type fakePassEngine struct {
    requests []engine.PassRequest
    departs  []uint64
    pass     *model.Pass
    err      error
}

func (f *fakePassEngine) Request(_ context.Context, req engine.PassRequest) (*model.Pass, error) {
    f.requests = append(f.requests, req)
    return f.pass, f.err
}

func (f *fakePassEngine) OpenPass(_ context.Context, _ uint64) (*model.Pass, error) {
    return f.pass, f.err
}

func (f *fakePassEngine) Depart(_ context.Context, passID, _ uint64) (*model.Pass, error) {
    f.departs = append(f.departs, passID)
    return f.pass, f.err
}

func (f *fakePassEngine) Complete(_ context.Context, _, _ uint64, _ string) (*model.Pass, error) {
    return f.pass, f.err
}

func (f *fakePassEngine) Cancel(_ context.Context, _, _ uint64, _ string) (*model.Pass, error) {
    return f.pass, f.err
}

func requestContext(t *testing.T, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
    t.Helper()
    e := echo.New()
    var req *http.Request
    if body != "" {
        req = httptest.NewRequest(method, target, strings.NewReader(body))
        req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
    } else {
        req = httptest.NewRequest(method, target, nil)
    }
    rec := httptest.NewRecorder()
    c := e.NewContext(req, rec)
    c.Set("user_id", uint64(7))
    c.Set("role", model.RoleStudent)
    return c, rec
}

func TestRequestReturnsCreatedPass(t *testing.T) {
    fake := &fakePassEngine{pass: &model.Pass{
        ID:            31,
        StudentID:     7,
        OriginID:      1,
        DestinationID: 2,
        Status:        model.StatusPending,
    }}
    h := &PassHandler{Engine: fake}

    c, rec := requestContext(t, http.MethodPost, "/v1/passes",
        `{"origin_id":1,"destination_id":2,"notes":"  forgot my book  "}`)
    if err := h.Request(c); err != nil {
        t.Fatalf("request: %v", err)
    }
    if rec.Code != http.StatusCreated {
        t.Fatalf("status = %d, want 201", rec.Code)
    }

    var got model.Pass
    if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
        t.Fatalf("decode body: %v", err)
    }
    if got.ID != 31 || got.Status != model.StatusPending {
        t.Fatalf("unexpected pass in body: %+v", got)
    }

    if len(fake.requests) != 1 {
        t.Fatalf("engine saw %d requests, want 1", len(fake.requests))
    }
    req := fake.requests[0]
    if req.StudentID != 7 || req.OriginID != 1 || req.DestinationID != 2 {
        t.Fatalf("engine received wrong request: %+v", req)
    }
    if req.Notes == nil || *req.Notes != "forgot my book" {
        t.Fatalf("notes must be trimmed, got %v", req.Notes)
    }
}

func TestRequestDenialMapsToConflict(t *testing.T) {
    fake := &fakePassEngine{err: &policy.Denial{
        Reason: policy.ReasonQuota,
        Detail: "daily pass limit reached",
    }}
    h := &PassHandler{Engine: fake}

    c, rec := requestContext(t, http.MethodPost, "/v1/passes",
        `{"origin_id":1,"destination_id":2}`)
    if err := h.Request(c); err != nil {
        t.Fatalf("request: %v", err)
    }
    if rec.Code != http.StatusConflict {
        t.Fatalf("status = %d, want 409", rec.Code)
    }

    var body struct {
        Reason string `json:"reason"`
        Detail string `json:"detail"`
    }
    if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
        t.Fatalf("decode body: %v", err)
    }
    if body.Reason != string(policy.ReasonQuota) || body.Detail != "daily pass limit reached" {
        t.Fatalf("denial body = %+v", body)
    }
}

func TestRequestRejectsBadBodies(t *testing.T) {
    cases := []struct {
        name string
        body string
    }{
        {"missing ids", `{}`},
        {"same origin and destination", `{"origin_id":3,"destination_id":3}`},
        {"malformed json", `{"origin_id":`},
    }
    for _, tc := range cases {
        fake := &fakePassEngine{}
        h := &PassHandler{Engine: fake}
        c, rec := requestContext(t, http.MethodPost, "/v1/passes", tc.body)
        if err := h.Request(c); err != nil {
            t.Fatalf("%s: %v", tc.name, err)
        }
        if rec.Code != http.StatusBadRequest {
            t.Errorf("%s: status = %d, want 400", tc.name, rec.Code)
        }
        if len(fake.requests) != 0 {
            t.Errorf("%s: invalid body must not reach the engine", tc.name)
        }
    }
}

func TestDepartBeforeApprovalConflicts(t *testing.T) {
    fake := &fakePassEngine{err: engine.ErrAwaitingApproval}
    h := &PassHandler{Engine: fake}

    c, rec := requestContext(t, http.MethodPost, "/v1/passes/31/depart", "")
    c.SetParamNames("id")
    c.SetParamValues("31")
    if err := h.Depart(c); err != nil {
        t.Fatalf("depart: %v", err)
    }
    if rec.Code != http.StatusConflict {
        t.Fatalf("status = %d, want 409", rec.Code)
    }
    if !strings.Contains(rec.Body.String(), "awaiting staff approval") {
        t.Fatalf("body should name the approval wait, got %s", rec.Body.String())
    }
    if len(fake.departs) != 1 || fake.departs[0] != 31 {
        t.Fatalf("engine departs = %v", fake.departs)
    }
}
