package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sherrors "github.com/streamhouse/streamhouse/internal/errors"
	"github.com/streamhouse/streamhouse/internal/observability"
	"github.com/streamhouse/streamhouse/internal/registrar"
)

type fakeTriggerer struct {
	err     error
	gotRef  time.Time
	gotName string
}

func (f *fakeTriggerer) Trigger(ctx context.Context, table string, ref time.Time) (*registrar.TickResult, error) {
	f.gotName, f.gotRef = table, ref
	if f.err != nil {
		return nil, f.err
	}
	return &registrar.TickResult{
		Table:         table,
		ReferenceTime: ref.UTC(),
		Keys:          []string{"2024/03/01/05"},
		Statement:     "ALTER TABLE analytics.clicks ADD IF NOT EXISTS ...;",
		Duration:      12 * time.Millisecond,
	}, nil
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	DefaultMiddleware()(h).ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestTriggerHandler_Success(t *testing.T) {
	fake := &fakeTriggerer{}
	rec := serve(NewTriggerHandler(fake), http.MethodPost, "/trigger?table=clicks&time=2024-03-01T05:30:00Z")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp TriggerResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if resp.Table != "clicks" || len(resp.Partitions) != 1 || resp.DurationMS != 12 {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.RequestID == "" || rec.Header().Get("X-Request-ID") != resp.RequestID {
		t.Error("expected request id in body and header")
	}
	if !fake.gotRef.Equal(time.Date(2024, 3, 1, 5, 30, 0, 0, time.UTC)) {
		t.Errorf("unexpected reference time %v", fake.gotRef)
	}
}

func TestTriggerHandler_DefaultsToNow(t *testing.T) {
	fake := &fakeTriggerer{}
	h := NewTriggerHandler(fake)
	fixed := time.Date(2024, 3, 1, 5, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return fixed }

	if rec := serve(h, http.MethodPost, "/trigger?table=clicks"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !fake.gotRef.Equal(fixed) {
		t.Errorf("expected now as reference, got %v", fake.gotRef)
	}
}

func TestTriggerHandler_Errors(t *testing.T) {
	tests := []struct {
		name   string
		method string
		target string
		err    error
		status int
	}{
		{"wrong method", http.MethodGet, "/trigger?table=clicks", nil, http.StatusMethodNotAllowed},
		{"missing table", http.MethodPost, "/trigger", nil, http.StatusBadRequest},
		{"bad time", http.MethodPost, "/trigger?table=clicks&time=yesterday", nil, http.StatusBadRequest},
		{"unknown table", http.MethodPost, "/trigger?table=nope", sherrors.NotFound("registrar", "nope"), http.StatusNotFound},
		{"catalog failure", http.MethodPost, "/trigger?table=clicks", sherrors.Catalog("denied", nil), http.StatusBadGateway},
		{"catalog timeout", http.MethodPost, "/trigger?table=clicks", sherrors.CatalogTimeout("slow", nil), http.StatusGatewayTimeout},
		{"unexpected", http.MethodPost, "/trigger?table=clicks", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(NewTriggerHandler(&fakeTriggerer{err: tt.err}), tt.method, tt.target)
			if rec.Code != tt.status {
				t.Errorf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestTriggerHandler_CatalogErrorIsRetryable(t *testing.T) {
	rec := serve(NewTriggerHandler(&fakeTriggerer{err: sherrors.Catalog("denied", nil)}), http.MethodPost, "/trigger?table=clicks")
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !resp.Retryable || resp.Code != sherrors.CodeExecutionFailed {
		t.Errorf("unexpected error response %+v", resp)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })
	rec := serve(h, http.MethodGet, "/")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestHealthHandler(t *testing.T) {
	tables := func() []string { return []string{"clicks", "logs"} }

	h := HealthHandler("streamhouse", "analytics", tables, func() []string { return nil })
	rec := serve(h, http.MethodGet, "/health")
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if resp.Status != "healthy" || resp.Database != "analytics" || len(resp.Tables) != 2 {
		t.Errorf("unexpected health response %+v", resp)
	}

	h = HealthHandler("streamhouse", "analytics", tables, func() []string { return []string{"logs"} })
	rec = serve(h, http.MethodGet, "/health")
	resp = HealthResponse{}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if rec.Code != http.StatusOK || resp.Status != "degraded" || len(resp.Failing) != 1 {
		t.Errorf("expected degraded 200, got %d %+v", rec.Code, resp)
	}
}

func TestStatsHandler(t *testing.T) {
	stats := observability.NewTickStats()
	stats.Record("clicks", time.Now(), time.Second, nil, true)

	rec := serve(StatsHandler(stats), http.MethodGet, "/stats")
	var snap []observability.TableStats
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(snap) != 1 || snap[0].Table != "clicks" || snap[0].Succeeded != 1 {
		t.Errorf("unexpected stats %+v", snap)
	}
}
