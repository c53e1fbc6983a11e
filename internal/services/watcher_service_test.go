package services

import (
	"context"
	"testing"
	"time"

	"github.com/miradorstack/pool-watcher/internal/engine"
	"github.com/miradorstack/pool-watcher/internal/models"
)

type sliceSource struct {
	lines []string
}

func (s *sliceSource) Follow(ctx context.Context, handle func(string)) error {
	for _, line := range s.lines {
		if ctx.Err() != nil {
			return nil
		}
		handle(line)
	}
	return nil
}

func newTestEngine() *engine.Engine {
	return engine.NewEngine(engine.Config{
		WindowSize:         200,
		ErrorRateThreshold: 2,
		MinSamples:         10,
		Cooldown:           300 * time.Second,
		ExpectedPool:       "blue",
	}, nil, nil)
}

func TestHandleLineSkipsBlankAndUnparsable(t *testing.T) {
	eng := newTestEngine()
	svc := NewWatcherService(nil, nil, eng)

	for _, line := range []string{"", "   \n", "totally free text\n"} {
		if alerts := svc.HandleLine(context.Background(), line); len(alerts) != 0 {
			t.Fatalf("expected no alerts for %q", line)
		}
	}
	if got := svc.Status().Stats.Ingested; got != 0 {
		t.Fatalf("expected nothing ingested, got %d", got)
	}
}

func TestHandleLineRaisesFailover(t *testing.T) {
	svc := NewWatcherService(nil, nil, newTestEngine())
	ctx := context.Background()

	if alerts := svc.HandleLine(ctx, `{"status":200,"pool":"blue"}`+"\n"); len(alerts) != 0 {
		t.Fatalf("expected no alerts for the expected pool, got %d", len(alerts))
	}
	alerts := svc.HandleLine(ctx, `{"status":200,"pool":"green","release":"v2","upstream_addr":"10.0.0.2:80"}`+"\n")
	if len(alerts) != 1 || alerts[0].Kind != models.AlertKindFailover {
		t.Fatalf("expected a failover alert, got %+v", alerts)
	}
	if st := svc.Status(); st.ActivePool != "green" || !st.PoolKnown {
		t.Fatalf("unexpected active pool: %+v", st)
	}
}

func TestHandleLineFallbackRecordCounts(t *testing.T) {
	svc := NewWatcherService(nil, nil, newTestEngine())
	svc.HandleLine(context.Background(), `{"status": 503, "pool": "blue", "req": "GET /x`+"\n")
	st := svc.Status()
	if st.Stats.Ingested != 1 || st.Window.ErrorCount != 1 {
		t.Fatalf("expected salvaged error record in window, got %+v", st)
	}
}

func TestRunFeedsEveryLine(t *testing.T) {
	src := &sliceSource{}
	for i := 0; i < 12; i++ {
		src.lines = append(src.lines, `{"status":502,"pool":"blue"}`+"\n")
	}
	svc := NewWatcherService(nil, src, newTestEngine())
	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st := svc.Status()
	if st.Stats.Ingested != 12 {
		t.Fatalf("expected 12 ingested, got %d", st.Stats.Ingested)
	}
	if st.Stats.Admitted[models.AlertKindErrorRate] != 1 {
		t.Fatalf("expected exactly one admitted error-rate alert, got %v", st.Stats.Admitted)
	}
}

func TestMaintenanceToggle(t *testing.T) {
	svc := NewWatcherService(nil, nil, newTestEngine())
	svc.SetMaintenance(true)
	if !svc.Maintenance() {
		t.Fatal("expected maintenance enabled")
	}
	alerts := svc.HandleLine(context.Background(), `{"status":200,"pool":"green"}`+"\n")
	if len(alerts) != 0 {
		t.Fatalf("expected suppression in maintenance, got %d alerts", len(alerts))
	}
	svc.SetMaintenance(false)
	if svc.Maintenance() {
		t.Fatal("expected maintenance disabled")
	}
}
