package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/staybook/internal/domain"
)

// Logger is the audit sink for lifecycle operations. Deletion reports
// and depersonalization completions are emitted as structured events;
// the collector behind the slog handler owns retention.
type Logger struct {
	logger *slog.Logger
}

func NewLogger(logger *slog.Logger) *Logger {
	return &Logger{logger: logger}
}

func (al *Logger) logEvent(ctx context.Context, action string, attrs ...slog.Attr) {
	base := []slog.Attr{
		slog.String("event_id", uuid.NewString()),
		slog.String("action", action),
		slog.Time("timestamp", time.Now()),
	}
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		base = append(base, slog.String("request_id", reqID))
	}
	al.logger.LogAttrs(ctx, slog.LevelInfo, "audit", append(base, attrs...)...)
}

// DeletionCompleted records a finished soft-delete cascade with its
// per-type counts.
func (al *Logger) DeletionCompleted(ctx context.Context, report *domain.DeletionReport, reason string) {
	attrs := []slog.Attr{
		slog.String("root_type", string(report.Root.Type)),
		slog.String("root_id", report.Root.ID),
		slog.String("reason", reason),
		slog.Int("total", report.Total()),
	}
	for entityType, count := range report.Counts {
		attrs = append(attrs, slog.Int("count_"+string(entityType), count))
	}
	al.logEvent(ctx, "soft_delete", attrs...)
}

// DepersonalizationCompleted records a finished privacy erasure. Only
// the derived token is logged, never the cleared identity.
func (al *Logger) DepersonalizationCompleted(ctx context.Context, userID, token, reason string, references int64) {
	al.logEvent(ctx, "depersonalize",
		slog.String("user_id", userID),
		slog.String("anonymized_token", token),
		slog.String("reason", reason),
		slog.Int64("references_rewritten", references),
	)
}

// OperationRequested records an inbound mutation request before the
// engine has decided anything about it.
func (al *Logger) OperationRequested(ctx context.Context, action string, ref domain.EntityRef, client string) {
	al.logEvent(ctx, action+"_requested",
		slog.String("root_type", string(ref.Type)),
		slog.String("root_id", ref.ID),
		slog.String("client", client),
	)
}

// OperationRefused records a cascade the engine rejected before any
// mutation (active bookings, missing root).
func (al *Logger) OperationRefused(ctx context.Context, action string, ref domain.EntityRef, cause string) {
	al.logEvent(ctx, action+"_refused",
		slog.String("root_type", string(ref.Type)),
		slog.String("root_id", ref.ID),
		slog.String("cause", cause),
	)
}

type requestIDKey struct{}

// WithRequestID stores a request identifier for audit correlation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}
