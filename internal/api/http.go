package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miradorstack/pool-watcher/internal/engine"
	"github.com/miradorstack/pool-watcher/internal/models"
	"github.com/miradorstack/pool-watcher/internal/utils"
)

// Watcher is the runtime view the HTTP ops surface needs.
type Watcher interface {
	Status() engine.Status
	SetMaintenance(enabled bool)
	Maintenance() bool
}

// DeliveryLatency reports recent alert delivery timings.
type DeliveryLatency interface {
	DeliveryLatency() utils.LatencySummary
}

// DeliveryStatus is the delivery latency section of /status.
type DeliveryStatus struct {
	P50Ms   float64 `json:"p50_ms"`
	P95Ms   float64 `json:"p95_ms"`
	MaxMs   float64 `json:"max_ms"`
	Samples int     `json:"samples"`
}

// StatusResponse is the JSON body served on /status.
type StatusResponse struct {
	ActivePool       *string         `json:"active_pool"`
	WindowSize       int             `json:"window_size"`
	WindowCapacity   int             `json:"window_capacity"`
	ErrorCount       int             `json:"error_count"`
	ErrorRatePercent float64         `json:"error_rate_percent"`
	Maintenance      bool            `json:"maintenance"`
	Ingested         int             `json:"ingested"`
	Failovers        int             `json:"failovers"`
	Admitted         map[string]int  `json:"admitted"`
	Skipped          map[string]int  `json:"skipped"`
	DeliveryFailures int             `json:"delivery_failures"`
	Delivery         *DeliveryStatus `json:"delivery,omitempty"`
}

// NewStatusResponse flattens an engine status for JSON output.
func NewStatusResponse(st engine.Status) StatusResponse {
	resp := StatusResponse{
		WindowSize:       st.Window.Size,
		WindowCapacity:   st.Capacity,
		ErrorCount:       st.Window.ErrorCount,
		ErrorRatePercent: st.Window.ErrorRatePercent,
		Maintenance:      st.Maintenance,
		Ingested:         st.Stats.Ingested,
		Failovers:        st.Stats.Failovers,
		Admitted:         kindCounts(st.Stats.Admitted),
		Skipped:          kindCounts(st.Stats.Skipped),
		DeliveryFailures: st.Stats.DeliveryFailures,
	}
	if st.PoolKnown {
		resp.ActivePool = models.StringPtr(st.ActivePool)
	}
	return resp
}

// NewDeliveryStatus converts a latency summary to milliseconds.
func NewDeliveryStatus(summary utils.LatencySummary) *DeliveryStatus {
	return &DeliveryStatus{
		P50Ms:   millis(summary.P50),
		P95Ms:   millis(summary.P95),
		MaxMs:   millis(summary.Max),
		Samples: summary.Samples,
	}
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func kindCounts(in map[models.AlertKind]int) map[string]int {
	out := make(map[string]int, len(models.AlertKinds))
	for _, kind := range models.AlertKinds {
		out[string(kind)] = in[kind]
	}
	return out
}

// NewOpsHandler serves metrics, liveness, status and the maintenance toggle. deliveries may
// be nil, in which case /status omits the delivery section.
func NewOpsHandler(w Watcher, deliveries DeliveryLatency, metricsHandler http.Handler) http.Handler {
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler)
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/status", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		resp := NewStatusResponse(w.Status())
		if deliveries != nil {
			resp.Delivery = NewDeliveryStatus(deliveries.DeliveryLatency())
		}
		writeJSON(rw, http.StatusOK, resp)
	})
	mux.HandleFunc("/maintenance", func(rw http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
		case http.MethodPost:
			enabled, err := strconv.ParseBool(r.URL.Query().Get("enabled"))
			if err != nil {
				http.Error(rw, "enabled must be a boolean", http.StatusBadRequest)
				return
			}
			w.SetMaintenance(enabled)
		default:
			http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(rw, http.StatusOK, map[string]bool{"maintenance": w.Maintenance()})
	})
	return mux
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
