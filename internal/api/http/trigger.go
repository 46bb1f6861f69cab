package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	sherrors "github.com/streamhouse/streamhouse/internal/errors"
	"github.com/streamhouse/streamhouse/internal/observability"
	"github.com/streamhouse/streamhouse/internal/registrar"
)

// Triggerer runs one table's tick on demand.
type Triggerer interface {
	Trigger(ctx context.Context, table string, ref time.Time) (*registrar.TickResult, error)
}

// TriggerResponse is the body of a successful manual tick.
type TriggerResponse struct {
	Table         string    `json:"table"`
	ReferenceTime time.Time `json:"reference_time"`
	Partitions    []string  `json:"partitions"`
	Statement     string    `json:"statement"`
	DurationMS    int64     `json:"duration_ms"`
	RequestID     string    `json:"request_id,omitempty"`
}

// TriggerHandler handles POST /trigger?table=<name>[&time=<RFC3339>].
type TriggerHandler struct {
	triggerer Triggerer
	now       func() time.Time
}

// NewTriggerHandler creates a trigger handler.
func NewTriggerHandler(t Triggerer) *TriggerHandler {
	return &TriggerHandler{triggerer: t, now: time.Now}
}

// ServeHTTP implements http.Handler.
func (h *TriggerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed", RequestID: requestID})
		return
	}

	table := r.URL.Query().Get("table")
	if table == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "table is required", RequestID: requestID})
		return
	}

	ref := h.now()
	if v := r.URL.Query().Get("time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "time must be RFC3339: " + err.Error(), RequestID: requestID})
			return
		}
		ref = t
	}

	res, err := h.triggerer.Trigger(r.Context(), table, ref)
	if err != nil {
		writeJSON(w, statusFor(err), ErrorResponse{
			Error:     err.Error(),
			Code:      sherrors.GetCode(err),
			Retryable: sherrors.IsRetryable(err),
			RequestID: requestID,
		})
		return
	}

	writeJSON(w, http.StatusOK, TriggerResponse{
		Table:         res.Table,
		ReferenceTime: res.ReferenceTime,
		Partitions:    res.Keys,
		Statement:     res.Statement,
		DurationMS:    res.Duration.Milliseconds(),
		RequestID:     requestID,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, sherrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, sherrors.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, sherrors.ErrCatalogTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, sherrors.ErrCatalog):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string   `json:"status"`
	Service  string   `json:"service"`
	Database string   `json:"database"`
	Tables   []string `json:"tables"`
	Failing  []string `json:"failing,omitempty"`
}

// HealthHandler reports liveness and the scheduled tables. The service is
// degraded, not down, while any table's latest tick has failed.
func HealthHandler(service, database string, tables, failing func() []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:   "healthy",
			Service:  service,
			Database: database,
			Tables:   tables(),
			Failing:  failing(),
		}
		if len(resp.Failing) > 0 {
			resp.Status = "degraded"
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// StatsHandler serves per-table tick statistics.
func StatsHandler(stats *observability.TickStats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, stats.Snapshot())
	}
}
