package alerting

import (
	"context"
	"log/slog"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
	portssvc "github.com/SscSPs/fx_ledger/internal/core/ports/services"
	"github.com/SscSPs/fx_ledger/internal/middleware"
	"go.uber.org/multierr"
)

// LogSink writes alerts to the structured log. It is the fallback when no broker is configured.
type LogSink struct {
	logger *slog.Logger
}

var _ portssvc.AlertSink = (*LogSink)(nil)

// NewLogSink logs through logger, or through the request logger when logger is nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Deliver(ctx context.Context, event domain.AuditEvent) error {
	logger := s.logger
	if logger == nil {
		logger = middleware.GetLoggerFromCtx(ctx)
	}
	level := slog.LevelWarn
	if event.Severity == domain.SeverityCritical {
		level = slog.LevelError
	}
	attrs := []slog.Attr{
		slog.String("event_id", event.EventID),
		slog.String("kind", string(event.Kind)),
		slog.String("severity", event.Severity.String()),
		slog.String("action", event.Action),
		slog.String("resource", event.ResourceKind+"/"+event.ResourceID),
	}
	if event.TenantID != nil {
		attrs = append(attrs, slog.String("tenant_id", *event.TenantID))
	}
	if event.ActorID != nil {
		attrs = append(attrs, slog.String("actor_id", *event.ActorID))
	}
	logger.LogAttrs(ctx, level, "Audit alert", attrs...)
	return nil
}

// FanoutSink delivers to every sink and combines their failures.
type FanoutSink []portssvc.AlertSink

var _ portssvc.AlertSink = FanoutSink(nil)

func (f FanoutSink) Deliver(ctx context.Context, event domain.AuditEvent) error {
	var err error
	for _, sink := range f {
		err = multierr.Append(err, sink.Deliver(ctx, event))
	}
	return err
}
