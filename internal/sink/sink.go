package sink

import (
	"context"
	"errors"
	"log/slog"

	"github.com/miradorstack/pool-watcher/internal/models"
)

// Sink delivers an admitted alert somewhere.
type Sink interface {
	Deliver(ctx context.Context, alert models.AlertRequest) error
}

// Func adapts a function to the Sink interface.
type Func func(ctx context.Context, alert models.AlertRequest) error

// Deliver implements Sink.
func (f Func) Deliver(ctx context.Context, alert models.AlertRequest) error {
	return f(ctx, alert)
}

// Fallback tries Primary and hands the alert to Fallback when it fails.
type Fallback struct {
	Primary  Sink
	Fallback Sink
	Logger   *slog.Logger
}

// Deliver implements Sink.
func (f Fallback) Deliver(ctx context.Context, alert models.AlertRequest) error {
	err := f.Primary.Deliver(ctx, alert)
	if err == nil || f.Fallback == nil {
		return err
	}
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("primary alert sink failed, using fallback", slog.String("kind", string(alert.Kind)), slog.Any("error", err))
	if fbErr := f.Fallback.Deliver(ctx, alert); fbErr != nil {
		return errors.Join(err, fbErr)
	}
	return nil
}

// Fanout delivers to every sink and reports all failures.
type Fanout []Sink

// Deliver implements Sink.
func (f Fanout) Deliver(ctx context.Context, alert models.AlertRequest) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Deliver(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
