package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/miradorstack/pool-watcher/internal/models"
	"github.com/miradorstack/pool-watcher/internal/utils"
)

// OutboxSink appends alerts to a local file, one tab-separated line per alert:
// timestamp, kind, JSON payload.
type OutboxSink struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewOutboxSink constructs a sink writing to path.
func NewOutboxSink(path string) *OutboxSink {
	return &OutboxSink{path: path, now: time.Now}
}

// Path returns the outbox file location.
func (o *OutboxSink) Path() string { return o.path }

// Deliver implements Sink.
func (o *OutboxSink) Deliver(_ context.Context, alert models.AlertRequest) error {
	payload, err := json.Marshal(Payload(alert))
	if err != nil {
		return utils.NewAppError("outbox.deliver", "marshal payload", err)
	}
	line := fmt.Sprintf("%s\t%s\t%s\n", o.now().UTC().Format(time.RFC3339Nano), alert.Kind, payload)

	o.mu.Lock()
	defer o.mu.Unlock()

	if dir := filepath.Dir(o.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return utils.NewAppError("outbox.deliver", "create outbox directory", err)
		}
	}
	f, err := os.OpenFile(o.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return utils.NewAppError("outbox.deliver", "open outbox", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return utils.NewAppError("outbox.deliver", "write outbox", err)
	}
	return nil
}
