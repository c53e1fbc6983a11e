package sink

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/pool-watcher/internal/models"
	"github.com/miradorstack/pool-watcher/internal/utils"
)

// DefaultSubjectPrefix is the subject namespace alerts are published under.
const DefaultSubjectPrefix = "alerts"

// streamPublisher is the subset of jetstream.JetStream used for publishing.
type streamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NATSSink publishes alerts to JetStream as protobuf-encoded structs.
type NATSSink struct {
	nc      *nats.Conn
	js      streamPublisher
	prefix  string
	timeout time.Duration
}

// NewNATSSink connects to natsURL and ensures the ALERTS stream covers prefix.>.
func NewNATSSink(natsURL, prefix string, logger *slog.Logger) (*NATSSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	prefix = normalisePrefix(prefix)

	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", slog.Any("error", err))
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "ALERTS",
		Subjects:  []string{prefix + ".>"},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		logger.Warn("failed to create ALERTS stream (may already exist)", slog.Any("error", err))
	}

	return &NATSSink{nc: nc, js: js, prefix: prefix, timeout: 5 * time.Second}, nil
}

// Deliver implements Sink.
func (n *NATSSink) Deliver(ctx context.Context, alert models.AlertRequest) error {
	data, err := EncodeAlert(alert)
	if err != nil {
		return utils.NewAppError("nats.deliver", "encode alert", err)
	}

	subject := n.Subject(alert.Kind)
	pubCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	if _, err := n.js.Publish(pubCtx, subject, data); err != nil {
		return utils.NewAppError("nats.deliver", subject, err)
	}
	return nil
}

// Subject returns the subject an alert kind is published on.
func (n *NATSSink) Subject(kind models.AlertKind) string {
	return n.prefix + "." + string(kind)
}

// Close drains the connection.
func (n *NATSSink) Close() {
	if n.nc != nil {
		n.nc.Close()
	}
}

// EncodeAlert serialises an alert as a protobuf Struct.
func EncodeAlert(alert models.AlertRequest) ([]byte, error) {
	created := alert.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	msg, err := structpb.NewStruct(map[string]any{
		"id":         uuid.NewString(),
		"kind":       string(alert.Kind),
		"severity":   string(alert.Severity),
		"title":      alert.Title,
		"body":       alert.Body,
		"created_at": created.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("build alert struct: %w", err)
	}
	return proto.Marshal(msg)
}

func normalisePrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		return DefaultSubjectPrefix
	}
	return prefix
}
