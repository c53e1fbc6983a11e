package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/miradorstack/pool-watcher/internal/engine"
	"github.com/miradorstack/pool-watcher/internal/models"
	"github.com/miradorstack/pool-watcher/internal/utils"
)

type watcherStub struct {
	status      engine.Status
	maintenance bool
}

func (w *watcherStub) Status() engine.Status       { return w.status }
func (w *watcherStub) SetMaintenance(enabled bool) { w.maintenance = enabled }
func (w *watcherStub) Maintenance() bool           { return w.maintenance }

func newStub() *watcherStub {
	return &watcherStub{status: engine.Status{
		ActivePool: "green",
		PoolKnown:  true,
		Window:     models.WindowSnapshot{Size: 10, ErrorCount: 8, ErrorRatePercent: 80},
		Capacity:   200,
		Stats: engine.Stats{
			Ingested:  10,
			Failovers: 1,
			Admitted:  map[models.AlertKind]int{models.AlertKindFailover: 1},
			Skipped:   map[models.AlertKind]int{},
		},
	}}
}

func TestStatusEndpoint(t *testing.T) {
	h := NewOpsHandler(newStub(), nil, http.NotFoundHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code %d", rec.Code)
	}

	var resp StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ActivePool == nil || *resp.ActivePool != "green" {
		t.Fatalf("unexpected active pool %v", resp.ActivePool)
	}
	if resp.ErrorRatePercent != 80 || resp.WindowCapacity != 200 {
		t.Fatalf("unexpected window fields: %+v", resp)
	}
	if resp.Admitted["failover"] != 1 || resp.Admitted["error_rate"] != 0 {
		t.Fatalf("unexpected admitted counts: %v", resp.Admitted)
	}
}

func TestStatusUnknownPoolIsNull(t *testing.T) {
	stub := newStub()
	stub.status.PoolKnown = false
	stub.status.ActivePool = ""
	resp := NewStatusResponse(stub.status)
	if resp.ActivePool != nil {
		t.Fatalf("expected nil active pool, got %q", *resp.ActivePool)
	}
}

func TestMaintenanceEndpoint(t *testing.T) {
	stub := newStub()
	h := NewOpsHandler(stub, nil, http.NotFoundHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/maintenance?enabled=true", nil))
	if rec.Code != http.StatusOK || !stub.maintenance {
		t.Fatalf("expected maintenance enabled, code=%d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/maintenance?enabled=maybe", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/maintenance", nil))
	var body map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || !body["maintenance"] {
		t.Fatalf("unexpected maintenance body %q (%v)", rec.Body.String(), err)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/maintenance", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	h := NewOpsHandler(newStub(), nil, http.NotFoundHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected healthz response %d %q", rec.Code, rec.Body.String())
	}
}

type latencyStub utils.LatencySummary

func (l latencyStub) DeliveryLatency() utils.LatencySummary { return utils.LatencySummary(l) }

func TestStatusIncludesDeliveryLatency(t *testing.T) {
	deliveries := latencyStub{P50: 12 * time.Millisecond, P95: 250 * time.Millisecond, Max: time.Second, Samples: 40}
	h := NewOpsHandler(newStub(), deliveries, http.NotFoundHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	var resp StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Delivery == nil {
		t.Fatal("expected delivery section")
	}
	if resp.Delivery.P50Ms != 12 || resp.Delivery.P95Ms != 250 || resp.Delivery.MaxMs != 1000 || resp.Delivery.Samples != 40 {
		t.Fatalf("unexpected delivery section %+v", resp.Delivery)
	}
}

func TestStatusOmitsDeliveryWithoutSource(t *testing.T) {
	h := NewOpsHandler(newStub(), nil, http.NotFoundHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if strings.Contains(rec.Body.String(), `"delivery"`) {
		t.Fatalf("expected no delivery section, got %s", rec.Body.String())
	}
}
